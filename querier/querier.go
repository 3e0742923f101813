// Package querier provides a high-level API for querying mDNS (.local) services.
package querier

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/joshuafuller/beacon/internal/clock"
	"github.com/joshuafuller/beacon/internal/core"
	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/message"
	"github.com/joshuafuller/beacon/internal/netiface"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/security"
	"github.com/joshuafuller/beacon/internal/transport"
)

// Querier provides high-level mDNS query functionality, fronting the
// cache/question engine in internal/core.
//
// internal/core.Core is single-threaded: every call into it must come from
// the same goroutine. Querier owns exactly one such goroutine (run, below);
// Query reaches the engine only by submitting a closure to it over cmdCh,
// and inbound packets reach it over packetCh rather than being handed to
// Core.Receive directly by the receiver goroutines that read them off the
// socket.
//
// Example:
//
//	q, err := querier.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer q.Close()
//
//	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
//	defer cancel()
//
//	response, err := q.Query(ctx, "printer.local", querier.RecordTypeA)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, record := range response.Records {
//	    if ip := record.AsA(); ip != nil {
//	        fmt.Printf("Found printer at %s\n", ip)
//	    }
//	}
type Querier struct {
	core   *core.Core
	ifaces *netiface.Set
	clk    clock.Clock

	transportV4 transport.Transport
	transportV6 transport.Transport

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	cmdCh    chan func()
	packetCh chan inboundPacket

	explicitInterfaces []net.Interface
	interfaceFilter    func(net.Interface) bool

	defaultTimeout     time.Duration
	rateLimitCooldown  time.Duration
	rateLimiter        *security.RateLimiter
	rateLimitThreshold int
	rateLimitEnabled   bool

	// waiters is touched only from inside run(): either by a dispatched
	// Query command or by handleCacheEvent, both of which execute
	// synchronously on the owning goroutine, so no mutex guards it.
	waiters map[string][]chan *coredata.CacheRecord
}

type inboundPacket struct {
	data []byte
	src  net.Addr
}

// New creates a new Querier with optional configuration.
func New(opts ...Option) (*Querier, error) {
	ifaces := netiface.New()
	if err := ifaces.Discover(); err != nil {
		return nil, fmt.Errorf("discover interfaces: %w", err)
	}

	rctx, cancel := context.WithCancel(context.Background())

	q := &Querier{
		ifaces:             ifaces,
		clk:                clock.RealClock{},
		ctx:                rctx,
		cancel:             cancel,
		cmdCh:              make(chan func()),
		packetCh:           make(chan inboundPacket, 64),
		defaultTimeout:     1 * time.Second,
		rateLimitEnabled:   true,
		rateLimitThreshold: 100,
		rateLimitCooldown:  60 * time.Second,
		waiters:            make(map[string][]chan *coredata.CacheRecord),
	}

	for _, opt := range opts {
		if err := opt(q); err != nil {
			cancel()
			return nil, err
		}
	}

	applyInterfaceSelection(ifaces, q.explicitInterfaces, q.interfaceFilter)

	if q.transportV4 == nil {
		tv4, err := transport.NewUDPv4Transport()
		if err != nil {
			cancel()
			return nil, err
		}
		q.transportV4 = tv4
		tv6, _ := transport.NewUDPv6Transport()
		q.transportV6 = tv6
	}

	if q.rateLimitEnabled {
		q.rateLimiter = security.NewRateLimiter(q.rateLimitThreshold, q.rateLimitCooldown, 10000)
		q.wg.Add(1)
		go q.cleanupLoop()
	}

	q.core = core.New(core.Platform{
		Clock:       q.clk,
		Interfaces:  core.NetifaceLocator{Set: ifaces},
		TransportV4: q.transportV4,
		TransportV6: q.transportV6,
	}, core.WithCacheCallback(q.handleCacheEvent))

	q.wg.Add(1)
	go q.run()
	q.wg.Add(1)
	go q.runReceiver(q.transportV4)
	if q.transportV6 != nil {
		q.wg.Add(1)
		go q.runReceiver(q.transportV6)
	}

	return q, nil
}

// applyInterfaceSelection prunes ifaces down to explicit or filter-matched
// interfaces, by hardware address; the default (both nil) keeps whatever
// Discover already selected.
func applyInterfaceSelection(ifaces *netiface.Set, explicit []net.Interface, filter func(net.Interface) bool) {
	if explicit == nil && filter == nil {
		return
	}

	allowed := make(map[string]bool)
	if explicit != nil {
		for _, iface := range explicit {
			allowed[iface.HardwareAddr.String()] = true
		}
	} else {
		sys, err := net.Interfaces()
		if err != nil {
			return
		}
		for _, iface := range sys {
			if filter(iface) {
				allowed[iface.HardwareAddr.String()] = true
			}
		}
	}

	for _, info := range ifaces.All() {
		if !allowed[info.HardwareAddr.String()] {
			ifaces.DeregisterInterface(info.ID, false)
		}
	}
}

// run is the single goroutine permitted to touch q.core: it drives
// Core.Execute off a timer, feeds inbound packets from packetCh to
// Core.Receive, and executes commands submitted through cmdCh, always
// rescheduling the timer off whatever deadline the last call returned.
func (q *Querier) run() {
	defer q.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	reschedule := func(deadline time.Time) {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		d := time.Hour
		if !deadline.IsZero() {
			if until := time.Until(deadline); until > 0 {
				d = until
			} else {
				d = 0
			}
		}
		timer.Reset(d)
	}

	reschedule(q.core.Execute(q.ctx, q.clk.Now()))

	for {
		select {
		case <-q.ctx.Done():
			return
		case pkt := <-q.packetCh:
			reschedule(q.core.Receive(q.ctx, pkt.data, pkt.src, coredata.InterfaceAny, q.clk.Now()))
		case fn := <-q.cmdCh:
			fn()
			reschedule(q.core.Execute(q.ctx, q.clk.Now()))
		case <-timer.C:
			reschedule(q.core.Execute(q.ctx, q.clk.Now()))
		}
	}
}

// submit runs fn on the owning goroutine and blocks until it completes, or
// until the Querier is closed.
func (q *Querier) submit(fn func()) {
	done := make(chan struct{})
	select {
	case q.cmdCh <- func() { fn(); close(done) }:
	case <-q.ctx.Done():
		return
	}
	select {
	case <-done:
	case <-q.ctx.Done():
	}
}

// runReceiver pumps inbound packets from t through the link-local/rate-limit
// source check and into packetCh for the owning goroutine to process; it
// never touches q.core itself.
func (q *Querier) runReceiver(t transport.Transport) {
	defer q.wg.Done()

	const maxMDNSPacketSize = 9000 // RFC 6762 §17

	for {
		select {
		case <-q.ctx.Done():
			return
		default:
		}

		packet, src, err := t.Receive(q.ctx)
		if err != nil {
			select {
			case <-q.ctx.Done():
				return
			default:
				continue
			}
		}

		if len(packet) > maxMDNSPacketSize {
			continue
		}
		if !q.sourceAllowed(src) {
			continue
		}

		select {
		case q.packetCh <- inboundPacket{data: packet, src: src}:
		case <-q.ctx.Done():
			return
		}
	}
}

// sourceAllowed accepts IPv4 sources only from 169.254.0.0/16 or the
// private ranges (10/8, 172.16/12, 192.168/16), passes every non-IPv4
// source unchecked, and, if enabled, applies per-source rate limiting.
func (q *Querier) sourceAllowed(src net.Addr) bool {
	udpAddr, ok := src.(*net.UDPAddr)
	if !ok {
		return true
	}
	ip4 := udpAddr.IP.To4()
	if ip4 != nil {
		isLinkLocal := ip4[0] == 169 && ip4[1] == 254
		isPrivate := ip4[0] == 10 ||
			(ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31) ||
			(ip4[0] == 192 && ip4[1] == 168)
		if !isLinkLocal && !isPrivate {
			return false
		}
	}

	if q.rateLimitEnabled && q.rateLimiter != nil {
		if !q.rateLimiter.Allow(udpAddr.IP.String()) {
			return false
		}
	}
	return true
}

// handleCacheEvent is the Core cache callback: it always fires synchronously
// from inside run(), so it can touch q.waiters directly. Every newly
// inserted cache record is fanned out to any in-flight Query waiting on its
// name/type.
func (q *Querier) handleCacheEvent(ev core.CacheEvent) {
	if !ev.Added {
		return
	}
	key := waiterKey(ev.Record.Name.String(), ev.Record.Type)
	for _, ch := range q.waiters[key] {
		select {
		case ch <- ev.Record:
		default:
		}
	}
}

func waiterKey(name string, recordType protocol.RecordType) string {
	return fmt.Sprintf("%s|%d", name, recordType)
}

// Query sends an mDNS query and returns all responses received within the
// timeout: cached answers already known plus anything that arrives before
// ctx is done (or, absent a deadline on ctx, before the configured
// defaultTimeout elapses).
func (q *Querier) Query(ctx context.Context, name string, recordType RecordType) (*Response, error) {
	if err := protocol.ValidateName(name); err != nil {
		return nil, err
	}
	if err := protocol.ValidateRecordType(uint16(recordType)); err != nil {
		return nil, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.defaultTimeout)
		defer cancel()
	}

	qname := coredata.NewName(name)
	qtype := protocol.RecordType(recordType)
	key := waiterKey(qname.String(), qtype)

	ch := make(chan *coredata.CacheRecord, 32)
	response := &Response{Records: make([]ResourceRecord, 0)}
	seen := make(map[string]bool)

	q.submit(func() {
		q.waiters[key] = append(q.waiters[key], ch)

		now := q.clk.Now()
		question := &coredata.Question{QName: qname, QType: qtype, QClass: protocol.ClassIN}
		q.core.StartQuestion(question, now)

		for _, cr := range q.core.Lookup(qname, func(cr *coredata.CacheRecord) bool { return cr.Type == qtype }) {
			appendRecord(response, seen, cr)
		}
	})

	defer q.removeWaiter(key, ch, qname, qtype)

	for {
		select {
		case <-ctx.Done():
			return response, nil
		case cr := <-ch:
			appendRecord(response, seen, cr)
		}
	}
}

// removeWaiter undoes the submit block in Query: it stops the question and
// drops ch from q.waiters, both on the owning goroutine.
func (q *Querier) removeWaiter(key string, target chan *coredata.CacheRecord, qname coredata.Name, qtype protocol.RecordType) {
	q.submit(func() {
		q.core.StopQuestion(&coredata.Question{QName: qname, QType: qtype, QClass: protocol.ClassIN})

		list := q.waiters[key]
		for i, ch := range list {
			if ch == target {
				q.waiters[key] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(q.waiters[key]) == 0 {
			delete(q.waiters, key)
		}
	})
}

// appendRecord parses cr's rdata and appends it to response, deduplicating
// by name+type+rdata.
func appendRecord(response *Response, seen map[string]bool, cr *coredata.CacheRecord) {
	dedupeKey := fmt.Sprintf("%s|%d|%x", cr.Name.String(), cr.Type, cr.RData)
	if seen[dedupeKey] {
		return
	}
	seen[dedupeKey] = true

	data, err := message.ParseRDATA(uint16(cr.Type), cr.RData)
	if err != nil {
		return
	}

	response.Records = append(response.Records, ResourceRecord{
		Name:  cr.Name.String(),
		Type:  RecordType(cr.Type),
		Class: uint16(cr.Class),
		TTL:   cr.TTL,
		Data:  data,
	})
}

// cleanupLoop periodically cleans up stale rate limiter entries.
func (q *Querier) cleanupLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			if q.rateLimiter != nil {
				q.rateLimiter.Cleanup()
			}
		}
	}
}

// Close gracefully shuts down the Querier and releases its transports.
func (q *Querier) Close() error {
	q.cancel()
	q.wg.Wait()

	err := q.transportV4.Close()
	if q.transportV6 != nil {
		if cerr := q.transportV6.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
