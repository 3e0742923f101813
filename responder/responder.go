// Package responder implements mDNS service registration and response per
// RFC 6762/6763, fronting the probe/announce/defend engine in internal/core.
package responder

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/joshuafuller/beacon/internal/clock"
	"github.com/joshuafuller/beacon/internal/core"
	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/errors"
	"github.com/joshuafuller/beacon/internal/netiface"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/records"
	"github.com/joshuafuller/beacon/internal/transport"
)

// maxRenameAttempts bounds the RFC 6762 §9 rename-on-conflict loop so a
// persistently hostile or misconfigured peer can't wedge Register forever.
const maxRenameAttempts = 10

// Responder manages mDNS service registration, probing, announcing, and
// query response for every service it has registered.
//
// internal/core.Core is a single-threaded cooperative engine: every call
// into it (Execute, Receive, RegisterRecord, ...) must come from the same
// goroutine. Responder owns exactly one such goroutine (run, below) and
// every public method — Register, Unregister, UpdateService, GetService —
// reaches the engine only by submitting a closure to that goroutine over
// cmdCh and waiting for it to finish, the same way inbound packets reach
// it over packetCh instead of being handed to Core.Receive directly by the
// receiver goroutines that read them off the socket.
type Responder struct {
	core   *core.Core
	ifaces *netiface.Set
	clk    clock.Clock

	transportV4 transport.Transport
	transportV6 transport.Transport

	hostname string

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	cmdCh    chan func()
	packetCh chan inboundPacket

	// services/recordOwner are touched only from inside run(), either by a
	// dispatched command or by handleRecordEvent (itself always called
	// synchronously from Core.Execute/Receive, which also only ever run
	// inside run()) — so no mutex guards them.
	services    map[string]*registeredService
	recordOwner map[*coredata.AuthRecord]string

	onConflict func(serviceID string)
	onProbe    func()
	onAnnounce func()
}

type inboundPacket struct {
	data []byte
	src  net.Addr
}

// registeredService tracks one Register call's records, so a conflict on
// any one of them can rename and re-register the whole instance.
type registeredService struct {
	service *Service
	records []*coredata.AuthRecord
}

// New creates a Responder bound to the host's currently active interfaces.
func New(ctx context.Context, opts ...Option) (*Responder, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	hostname += ".local"

	ifaces := netiface.New()
	if err := ifaces.Discover(); err != nil {
		return nil, fmt.Errorf("discover interfaces: %w", err)
	}

	rctx, cancel := context.WithCancel(ctx)

	r := &Responder{
		ifaces:      ifaces,
		clk:         clock.RealClock{},
		hostname:    hostname,
		ctx:         rctx,
		cancel:      cancel,
		cmdCh:       make(chan func()),
		packetCh:    make(chan inboundPacket, 64),
		services:    make(map[string]*registeredService),
		recordOwner: make(map[*coredata.AuthRecord]string),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			cancel()
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if r.transportV4 == nil {
		tv4, err := transport.NewUDPv4Transport()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("create ipv4 transport: %w", err)
		}
		r.transportV4 = tv4
		// IPv6 is best-effort: a host with IPv6 disabled at the kernel
		// level still runs the responder over IPv4 alone.
		tv6, _ := transport.NewUDPv6Transport()
		r.transportV6 = tv6
	}

	r.core = core.New(core.Platform{
		Clock:       r.clk,
		Interfaces:  core.NetifaceLocator{Set: ifaces},
		TransportV4: r.transportV4,
		TransportV6: r.transportV6,
	}, core.WithRecordCallback(r.handleRecordEvent), core.WithSendCallback(r.handleSendEvent))

	r.wg.Add(1)
	go r.run()
	r.wg.Add(1)
	go r.runReceiver(r.transportV4)
	if r.transportV6 != nil {
		r.wg.Add(1)
		go r.runReceiver(r.transportV6)
	}

	return r, nil
}

// run is the single goroutine permitted to touch r.core: it drives
// Core.Execute off a timer, feeds inbound packets from packetCh to
// Core.Receive, and executes commands submitted through cmdCh, always
// rescheduling the timer off whatever deadline the last call returned.
func (r *Responder) run() {
	defer r.wg.Done()

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

	reschedule(r.core.Execute(r.ctx, r.clk.Now()))

	for {
		select {
		case <-r.ctx.Done():
			return
		case pkt := <-r.packetCh:
			reschedule(r.core.Receive(r.ctx, pkt.data, pkt.src, coredata.InterfaceAny, r.clk.Now()))
		case fn := <-r.cmdCh:
			fn()
			reschedule(r.core.Execute(r.ctx, r.clk.Now()))
		case <-timer.C:
			reschedule(r.core.Execute(r.ctx, r.clk.Now()))
		}
	}
}

// submit runs fn on the owning goroutine and blocks until it completes, or
// until the Responder is closed.
func (r *Responder) submit(fn func()) {
	done := make(chan struct{})
	select {
	case r.cmdCh <- func() { fn(); close(done) }:
	case <-r.ctx.Done():
		return
	}
	select {
	case <-done:
	case <-r.ctx.Done():
	}
}

// runReceiver pumps inbound packets from t into packetCh for the owning
// goroutine to process; it never touches r.core itself.
func (r *Responder) runReceiver(t transport.Transport) {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		packet, src, err := t.Receive(r.ctx)
		if err != nil {
			select {
			case <-r.ctx.Done():
				return
			default:
				continue
			}
		}

		select {
		case r.packetCh <- inboundPacket{data: packet, src: src}:
		case <-r.ctx.Done():
			return
		}
	}
}

// handleRecordEvent is the Core record callback: it always fires
// synchronously from inside run(), so it can call back into r.core
// directly (a legal nested call under Core's reentrancy guard) without
// going through submit. It watches for NameConflict on any record
// belonging to a registered service and drives the RFC 6762 §9 rename
// loop; MemFree and the success outcomes need no action here.
func (r *Responder) handleRecordEvent(ev core.RecordEvent) {
	if ev.Kind != errors.NameConflict {
		return
	}

	serviceID, ok := r.recordOwner[ev.Record]
	if !ok {
		return
	}
	entry := r.services[serviceID]
	if entry == nil {
		return
	}

	r.renameAndReregister(serviceID, entry)
}

// handleSendEvent is the Core send callback: it always fires synchronously
// from inside run(), reporting the lifecycle phase of whatever packet Core
// just transmitted for one of this responder's records.
func (r *Responder) handleSendEvent(ev core.SendEvent) {
	switch ev.Phase {
	case core.SendPhaseProbe:
		if r.onProbe != nil {
			r.onProbe()
		}
	case core.SendPhaseAnnounce:
		if r.onAnnounce != nil {
			r.onAnnounce()
		}
	}
}

// OnProbe registers fn to be called once for every probe packet the
// responder transmits while establishing a new record's uniqueness
// (RFC 6762 §8.1). Intended for observability/testing, not control flow.
func (r *Responder) OnProbe(fn func()) {
	r.submit(func() { r.onProbe = fn })
}

// OnAnnounce registers fn to be called once for every unsolicited
// announcement the responder transmits after a record's probing completes
// (RFC 6762 §8.3).
func (r *Responder) OnAnnounce(fn func()) {
	r.submit(func() { r.onAnnounce = fn })
}

// renameAndReregister withdraws every record of the conflicting service and
// re-registers the whole instance under a renamed instance name. Must run
// on the owning goroutine (called only from handleRecordEvent).
func (r *Responder) renameAndReregister(serviceID string, entry *registeredService) {
	now := r.clk.Now()
	for _, rec := range entry.records {
		r.core.DeregisterRecord(rec, true, now)
		delete(r.recordOwner, rec)
	}

	entry.service.Rename()
	delete(r.services, serviceID)

	if err := r.registerOnOwner(entry.service); err != nil && r.onConflict != nil {
		r.onConflict(serviceID)
	}
}

// Register builds the full record set for service (PTR, SRV, TXT, A/AAAA)
// and hands it to the probe/announce engine. Register returns once the
// records are accepted for probing; conflicts discovered later during
// probing are handled internally via the RFC 6762 §9 rename loop.
func (r *Responder) Register(service *Service) error {
	if service == nil {
		return fmt.Errorf("service cannot be nil")
	}
	if err := service.Validate(); err != nil {
		return err
	}
	if service.Hostname == "" {
		service.Hostname = r.hostname
	}

	var regErr error
	r.submit(func() { regErr = r.registerOnOwner(service) })
	return regErr
}

// registerOnOwner does the work of Register; it must run on the owning
// goroutine (via submit, or directly from the rename loop which is already
// running there).
func (r *Responder) registerOnOwner(service *Service) error {
attempts:
	for attempt := 1; attempt <= maxRenameAttempts; attempt++ {
		info := &records.ServiceInfo{
			InstanceName: service.InstanceName,
			ServiceType:  service.ServiceType,
			Hostname:     service.Hostname,
			Port:         service.Port,
			IPv4Address:  r.localIPv4(),
			IPv6Address:  r.localIPv6(),
			TXTRecords:   service.TXTRecords,
		}
		set, err := records.BuildRecordSet(info)
		if err != nil {
			return fmt.Errorf("build record set: %w", err)
		}

		now := r.clk.Now()
		var registered []*coredata.AuthRecord
		for _, rec := range set {
			unique := rec.RecordType != coredata.Shared
			if err := r.core.RegisterRecord(rec, unique, false, now); err != nil {
				for _, done := range registered {
					r.core.DeregisterRecord(done, true, now)
				}
				if err.Kind == errors.AlreadyRegistered && attempt < maxRenameAttempts {
					service.Rename()
					continue attempts
				}
				return err
			}
			registered = append(registered, rec)
		}

		serviceID := service.InstanceName + "." + service.ServiceType
		entry := &registeredService{service: service, records: set}
		r.services[serviceID] = entry
		for _, rec := range set {
			r.recordOwner[rec] = serviceID
		}
		return nil
	}
	return fmt.Errorf("max rename attempts (%d) exceeded for service %q", maxRenameAttempts, service.InstanceName)
}

// Unregister withdraws a registered service, sending goodbye packets for
// every one of its records (RFC 6762 §10.1).
func (r *Responder) Unregister(serviceID string) error {
	var unregErr error
	r.submit(func() {
		entry, ok := r.resolveOnOwner(serviceID)
		if !ok {
			unregErr = fmt.Errorf("service %q not registered", serviceID)
			return
		}
		key := entry.service.InstanceName + "." + entry.service.ServiceType
		delete(r.services, key)

		now := r.clk.Now()
		for _, rec := range entry.records {
			delete(r.recordOwner, rec)
			r.core.DeregisterRecord(rec, false, now)
		}
	})
	return unregErr
}

// UpdateService updates a registered service's TXT records without
// re-probing, per RFC 6762 §8.4: TXT is metadata, not part of the unique
// identity, so no conflict is possible from changing it.
func (r *Responder) UpdateService(serviceID string, txtRecords map[string]string) error {
	var updateErr error
	r.submit(func() {
		entry, ok := r.resolveOnOwner(serviceID)
		if !ok {
			updateErr = fmt.Errorf("service %q not found", serviceID)
			return
		}

		entry.service.TXTRecords = txtRecords
		rdata := encodeTXT(txtRecords)
		now := r.clk.Now()
		for _, rec := range entry.records {
			if rec.Type == protocol.RecordTypeTXT {
				r.core.UpdateRecordData(rec, rdata, rec.TTL, now)
			}
		}
	})
	return updateErr
}

// GetService retrieves a registered service by instance name or full
// "Instance._service._proto.local" service id.
func (r *Responder) GetService(serviceID string) (*Service, bool) {
	var result *Service
	var found bool
	r.submit(func() {
		entry, ok := r.resolveOnOwner(serviceID)
		if !ok {
			return
		}
		cp := *entry.service
		result = &cp
		found = true
	})
	return result, found
}

// resolveOnOwner finds a registeredService by instance name or full service
// id; must run on the owning goroutine.
func (r *Responder) resolveOnOwner(serviceID string) (*registeredService, bool) {
	for _, entry := range r.services {
		if entry.service.InstanceName == serviceID {
			return entry, true
		}
		if entry.service.InstanceName+"."+entry.service.ServiceType == serviceID {
			return entry, true
		}
	}
	return nil, false
}

// Close withdraws every registered service and releases the responder's
// transports.
func (r *Responder) Close() error {
	var ids []string
	r.submit(func() {
		ids = make([]string, 0, len(r.services))
		for id := range r.services {
			ids = append(ids, id)
		}
	})

	for _, id := range ids {
		_ = r.Unregister(id)
	}

	r.cancel()
	r.wg.Wait()

	var err error
	if r.transportV4 != nil {
		err = r.transportV4.Close()
	}
	if r.transportV6 != nil {
		if cerr := r.transportV6.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// localIPv4 returns the first non-loopback IPv4 address, or nil.
func (r *Responder) localIPv4() []byte {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipv4 := ipnet.IP.To4(); ipv4 != nil {
				return ipv4
			}
		}
	}
	return nil
}

// localIPv6 returns the first non-loopback, non-link-local IPv6 address, or
// nil if no IPv6 transport is available.
func (r *Responder) localIPv6() []byte {
	if r.transportV6 == nil {
		return nil
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.IsLinkLocalUnicast() || ipnet.IP.To4() != nil {
			continue
		}
		v6 := ipnet.IP.To16()
		if v6 != nil {
			return v6
		}
	}
	return nil
}

// encodeTXT is the TXT wire-form helper Register/UpdateService share.
func encodeTXT(txt map[string]string) []byte {
	if len(txt) == 0 {
		return []byte{0x00}
	}
	out := make([]byte, 0, 256)
	for key, value := range txt {
		entry := key + "=" + value
		n := len(entry)
		if n > 255 {
			n = 255
			entry = entry[:255]
		}
		out = append(out, byte(n))
		out = append(out, entry...)
	}
	return out
}
