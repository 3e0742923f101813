package core

import (
	"context"
	"net"
	"time"

	"github.com/joshuafuller/beacon/internal/assembler"
	"github.com/joshuafuller/beacon/internal/authstore"
	"github.com/joshuafuller/beacon/internal/cache"
	"github.com/joshuafuller/beacon/internal/clock"
	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/errors"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/question"
)

var multicastV4 = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}
var multicastV6 = &net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddrIPv6), Port: 5353}

// RecordEvent is delivered to a client's record callback: the outcome of an
// asynchronous Register/Update, or an unsolicited conflict/free.
type RecordEvent struct {
	Record *coredata.AuthRecord
	Kind   errors.Kind
}

// CacheEvent is delivered to a client's browse/query callback.
type CacheEvent struct {
	Record *coredata.CacheRecord
	Added  bool // false means the record (or its RRSet member) was removed
	Reason cache.RemoveReason
}

// SendPhase classifies which part of the probe/announce/defend lifecycle a
// flushed record packet belongs to, for clients that want visibility into
// the engine's wire activity (metrics, logging, tests).
type SendPhase int

const (
	SendPhaseProbe SendPhase = iota
	SendPhaseAnnounce
	SendPhaseGoodbye
)

// SendEvent is delivered whenever Core transmits a record as part of the
// probe/announce/defend/goodbye lifecycle.
type SendEvent struct {
	Record *coredata.AuthRecord
	Phase  SendPhase
}

// Core is the single-threaded mDNS engine: one authoritative-record store,
// one cache, one question list, driven entirely by Execute and Receive.
// Nothing here spawns a goroutine; the host program decides how Execute's
// returned deadline is turned into a wakeup (a timer, a select loop, a
// uv_timer, whatever fits).
type Core struct {
	platform Platform

	auth      *authstore.Store
	authFSM   *authstore.Engine
	cacheStore *cache.Store
	questions *question.Engine
	asm       *assembler.Assembler

	onRecordEvent func(RecordEvent)
	onCacheEvent  func(CacheEvent)
	onSendEvent   func(SendEvent)

	// busy/reentrancy implement the single cooperative-scheduler invariant
	// this whole engine depends on: Execute and Receive must never run
	// nested on top of each other except through the explicit reentrancy
	// counter a callback bumps when it calls back into the core (e.g. a
	// record callback that immediately re-registers a record). The
	// invariant checked on entry is busy == reentrancy+1.
	busy       int
	reentrancy int
}

// Option configures a Core at construction time.
type Option func(*Core)

// WithRecordCallback sets the callback fired on every record-store outcome.
func WithRecordCallback(fn func(RecordEvent)) Option {
	return func(c *Core) { c.onRecordEvent = fn }
}

// WithCacheCallback sets the callback fired on every cache add/remove.
func WithCacheCallback(fn func(CacheEvent)) Option {
	return func(c *Core) { c.onCacheEvent = fn }
}

// WithSendCallback sets the callback fired whenever a record's probe,
// announce, or goodbye packet goes out on the wire.
func WithSendCallback(fn func(SendEvent)) Option {
	return func(c *Core) { c.onSendEvent = fn }
}

// WithPacketBudget overrides the assembler's default packet size cap.
func WithPacketBudget(maxBytes int) Option {
	return func(c *Core) { c.asm.MaxSize = maxBytes }
}

// New constructs a Core bound to platform, ready to accept record and
// question registrations.
func New(platform Platform, opts ...Option) *Core {
	c := &Core{
		platform: platform,
		asm:      assembler.New(),
	}
	c.auth = authstore.New(func(rec *coredata.AuthRecord, kind errors.Kind) {
		if c.onRecordEvent != nil {
			c.onRecordEvent(RecordEvent{Record: rec, Kind: kind})
		}
	})
	c.authFSM = authstore.NewEngine(c.auth, platform.Clock)
	c.cacheStore = cache.New(platform.Clock, func(rec *coredata.CacheRecord, reason cache.RemoveReason) {
		if c.onCacheEvent != nil {
			c.onCacheEvent(CacheEvent{Record: rec, Added: false, Reason: reason})
		}
	})
	c.questions = question.New(platform.Clock)
	c.questions.OnUnanswered = c.handleUnansweredQuery

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// enter applies the busy/reentrancy guard; every exported entry point
// (Execute, Receive, and the client-facing Register*/Deregister*/Start*
// methods) calls it first and defers leave().
func (c *Core) enter() {
	c.busy++
	if c.busy != c.reentrancy+1 {
		// A client callback called back into the core without going
		// through withReentrancy; that callback must be rewritten to use
		// it instead of calling Register/Deregister directly.
		panic("core: re-entered outside the reentrancy guard")
	}
}

func (c *Core) leave() {
	c.busy--
}

// withReentrancy runs fn as a permitted nested entry, used internally when
// a record/cache callback is fired from inside Execute/Receive and that
// callback is allowed to call back into public Core methods.
func (c *Core) withReentrancy(fn func()) {
	c.reentrancy++
	defer func() { c.reentrancy-- }()
	fn()
}

func (c *Core) canCarry(q *coredata.Question) bool {
	return c.platform.Interfaces.CanCarry(q.QType == protocol.RecordTypeAAAA)
}

func (c *Core) send(ctx context.Context, ifaceID coredata.InterfaceID, packet []byte) {
	for _, info := range c.platform.Interfaces.All() {
		if ifaceID != coredata.InterfaceAny && info.ID != ifaceID {
			continue
		}
		if info.HasIPv4 && c.platform.TransportV4 != nil {
			_ = c.platform.TransportV4.Send(ctx, packet, multicastV4)
		}
		if info.HasIPv6 && c.platform.TransportV6 != nil {
			_ = c.platform.TransportV6.Send(ctx, packet, multicastV6)
		}
	}
}

// Execute drives the clock-only part of the schedule (no inbound packet):
// probe/announce/goodbye timing, cache expiration, and query backoff, each
// returning a deadline; Execute combines them and flushes anything they
// marked ready to send. Returns the absolute time Execute should next be
// called even with no new packet arriving.
func (c *Core) Execute(ctx context.Context, now time.Time) time.Time {
	c.enter()
	defer c.leave()

	nextAuth := c.authFSM.Tick(now)
	nextCache := c.cacheStore.Sweep(now)
	nextQuestion := c.questions.Tick(now, c.canCarry)

	c.flushResponses(ctx, now, nil)
	c.flushQueries(ctx)

	return clock.Deadline(nextAuth, nextCache, nextQuestion)
}

// flushResponses sends every due authoritative record as a multicast
// response. knownAnswers carries the just-received query's own Answer
// section (nil from Execute, which has no inbound query to suppress
// against) so the assembler can apply RFC 6762 §7.1 known-answer
// suppression instead of blindly re-announcing what the querier already has.
func (c *Core) flushResponses(ctx context.Context, now time.Time, knownAnswers []*coredata.RecordData) {
	var due []*coredata.AuthRecord
	var rateLimited []*coredata.AuthRecord
	for _, rec := range c.auth.All() {
		if rec.ImmedAnswer.Kind == coredata.SendTargetNone {
			continue
		}
		if !c.canMulticastNow(rec, now) {
			rateLimited = append(rateLimited, rec)
			continue
		}
		due = append(due, rec)
	}
	if len(due) == 0 {
		return
	}

	msg, sent, overflow := c.asm.BuildResponse(due, knownAnswers)
	c.consumeSuppressed(due, sent, overflow)
	if len(sent) == 0 {
		return
	}
	packet, err := encodeOrNil(msg)
	if err != nil {
		return
	}
	for _, rec := range sent {
		c.send(ctx, rec.ImmedAnswer.InterfaceID, packet)
		if c.onSendEvent != nil {
			c.onSendEvent(SendEvent{Record: rec, Phase: sendPhaseOf(rec)})
		}
		rec.LastMCTime = now
		rec.LastMCInterface = rec.ImmedAnswer.InterfaceID
		c.authFSM.Consume(rec)
		rec.ProbeDefense = false
		rec.QueryTriggered = false
	}
	// rateLimited records are left pinned: ImmedAnswer is untouched, so the
	// next Execute/Receive retries them once MulticastRateLimit has passed.
}

// canMulticastNow applies RFC 6762 §6.2's per-record, per-interface
// multicast rate limit. It only constrains query-triggered responses: the
// probe/announce/goodbye schedule paces its own transmissions (250ms probes,
// doubling announces, 500ms goodbyes) and is exempt, since the rate limit
// exists to stop repeated queries from provoking repeated answers, not to
// throttle the responder's own unsolicited lifecycle traffic.
func (c *Core) canMulticastNow(rec *coredata.AuthRecord, now time.Time) bool {
	if !rec.QueryTriggered {
		return true
	}
	if rec.LastMCTime.IsZero() || rec.LastMCInterface != rec.ImmedAnswer.InterfaceID {
		return true
	}
	limit := protocol.MulticastRateLimit
	if rec.ProbeDefense {
		limit = protocol.ProbeDefenseRateLimit
	}
	return now.Sub(rec.LastMCTime) >= limit
}

// consumeSuppressed clears ImmedAnswer on due records that BuildResponse
// dropped via known-answer suppression, leaving only budget overflow
// pinned for the next flush; a suppressed record was already answered as
// far as the querier is concerned and must not keep re-triggering a send
// attempt on every later tick.
func (c *Core) consumeSuppressed(due, sent, overflow []*coredata.AuthRecord) {
	keep := make(map[*coredata.AuthRecord]bool, len(sent)+len(overflow))
	for _, rec := range sent {
		keep[rec] = true
	}
	for _, rec := range overflow {
		keep[rec] = true
	}
	for _, rec := range due {
		if !keep[rec] {
			c.authFSM.Consume(rec)
		}
	}
}

// sendPhaseOf classifies a record's just-flushed packet by the lifecycle
// phase its RecordType was in when the send was scheduled: still Unique
// means a probe, Deregistering means a goodbye, and anything else
// (Verified, KnownUnique, Shared) means a steady-state announcement.
func sendPhaseOf(rec *coredata.AuthRecord) SendPhase {
	switch rec.RecordType {
	case coredata.Unique:
		return SendPhaseProbe
	case coredata.Deregistering:
		return SendPhaseGoodbye
	default:
		return SendPhaseAnnounce
	}
}

func (c *Core) flushQueries(ctx context.Context) {
	var due []*coredata.Question
	for _, q := range c.questions.Canonical() {
		if q.SendQNow.Kind != coredata.SendTargetNone {
			due = append(due, q)
		}
	}
	if len(due) == 0 {
		return
	}
	msg := c.asm.BuildQuery(due, c.knownAnswersFor(due))
	packet, err := encodeOrNil(msg)
	if err != nil {
		return
	}
	for _, q := range due {
		c.send(ctx, q.SendQNow.InterfaceID, packet)
		c.questions.Consume(q)
	}
}

// knownAnswersFor gathers cache records (with more than half their TTL
// remaining) matching any of the due questions, for known-answer
// suppression per RFC 6762 §7.1.
func (c *Core) knownAnswersFor(due []*coredata.Question) []*coredata.RecordData {
	var out []*coredata.RecordData
	now := c.platform.Clock.Now()
	for _, q := range due {
		g := c.cacheStore.Group(q.QName)
		if g == nil {
			continue
		}
		for _, rec := range g.Records {
			if rec.Type != q.QType {
				continue
			}
			if rec.ExpiresAt().Sub(now) <= time.Duration(rec.OriginalTTL)*time.Second/2 {
				continue
			}
			out = append(out, &rec.RecordData)
		}
	}
	return out
}
