package authstore

import (
	"time"

	"github.com/joshuafuller/beacon/internal/clock"
	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/errors"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// Engine drives the probe/announce/defend state machine over a Store. It
// never sends a packet itself: each Tick marks due records with an
// ImmedAnswer/ImmedAdditional SendTarget, and the caller (internal/core)
// builds and transmits the actual packet through the assembler, then calls
// Consume to clear the flag once the bytes are on the wire. This split
// keeps the FSM obvious to test without a socket.
type Engine struct {
	store *Store
	clk   clock.Clock

	// The reliability profile is chosen per record via StartProbing's
	// enhanced argument instead of globally: enhanced probing sends 8 probes
	// 125ms apart instead of 3 probes 250ms apart. It covers probing only;
	// completeProbing starts every record's announcements at
	// InitialAnnounceInterval, so enhanced records send the default
	// InitialAnnounceCount announcements, not InitialAnnounceCountEnhanced.
}

// NewEngine creates a probe/announce engine over store, driven by clk.
func NewEngine(store *Store, clk clock.Clock) *Engine {
	return &Engine{store: store, clk: clk}
}

// StartProbing begins the probe sequence for a freshly registered record
// that needs uniqueness verification (RecordType Unregistered -> Unique).
// Records registered as KnownUnique or Shared skip probing entirely and are
// handed straight to scheduleAnnounce by the caller.
func (e *Engine) StartProbing(rec *coredata.AuthRecord, enhanced bool) {
	rec.RecordType = coredata.Unique
	rec.ProbeCount = 0
	rec.AnnounceCount = 0
	rec.Acknowledged = false
	rec.ProbeRestarts = 0
	if enhanced {
		rec.ThisAPInterval = protocol.ProbeIntervalEnhanced
	} else {
		rec.ThisAPInterval = protocol.ProbeInterval
	}
	// The first probe goes out one full probe interval after this call
	// (250ms, or 125ms enhanced). The delay is fixed, not randomized.
	rec.LastAPTime = e.clk.Now()
}

// probeTarget returns the probe count a record's reliability profile needs.
func probeTarget(rec *coredata.AuthRecord) int {
	if rec.ThisAPInterval == protocol.ProbeIntervalEnhanced {
		return protocol.ProbeCountEnhanced
	}
	return protocol.ProbeCount
}

func announceTarget(rec *coredata.AuthRecord) int {
	if rec.ThisAPInterval == protocol.InitialAnnounceIntervalEnhanced {
		return protocol.InitialAnnounceCountEnhanced
	}
	return protocol.InitialAnnounceCount
}

// Tick advances every canonical record whose schedule has come due and
// returns the next absolute deadline across the whole store, so the
// scheduler knows when to call Tick again.
func (e *Engine) Tick(now time.Time) time.Time {
	var next time.Time
	for _, rec := range e.store.All() {
		deadline := e.tickOne(rec, now)
		next = clock.Deadline(next, deadline)
	}
	return next
}

func (e *Engine) tickOne(rec *coredata.AuthRecord, now time.Time) time.Time {
	due := rec.LastAPTime.Add(rec.ThisAPInterval)
	if rec.LastAPTime.IsZero() {
		due = now
	}

	switch rec.RecordType {
	case coredata.Unique:
		if now.Before(due) {
			return due
		}
		e.sendProbe(rec, now)
		if rec.ProbeCount >= probeTarget(rec) {
			e.completeProbing(rec, now)
			return now
		}
		return rec.LastAPTime.Add(rec.ThisAPInterval)

	case coredata.Verified, coredata.KnownUnique:
		if rec.AnnounceCount >= announceTarget(rec) {
			return time.Time{}
		}
		if now.Before(due) {
			return due
		}
		e.sendAnnounce(rec, now)
		return rec.LastAPTime.Add(rec.ThisAPInterval)

	case coredata.Deregistering:
		target := protocol.GoodbyeCount
		if rec.RapidDeregister {
			target = protocol.GoodbyeCountRapid
		}
		if rec.AnnounceCount >= target {
			e.store.Remove(rec)
			e.store.Notify(rec, errors.MemFree)
			return time.Time{}
		}
		if now.Before(due) {
			return due
		}
		e.sendGoodbye(rec, now)
		return rec.LastAPTime.Add(rec.ThisAPInterval)

	default:
		return time.Time{}
	}
}

func (e *Engine) sendProbe(rec *coredata.AuthRecord, now time.Time) {
	rec.ImmedAnswer = coredata.SendTarget{Kind: coredata.SendTargetAll}
	rec.ProbeCount++
	rec.LastAPTime = now
}

func (e *Engine) completeProbing(rec *coredata.AuthRecord, now time.Time) {
	rec.RecordType = coredata.Verified
	rec.AnnounceCount = 0
	rec.ThisAPInterval = protocol.InitialAnnounceInterval
	rec.LastAPTime = now
	rec.Acknowledged = true
	e.store.Notify(rec, errors.NoError)
}

func (e *Engine) sendAnnounce(rec *coredata.AuthRecord, now time.Time) {
	rec.ImmedAnswer = coredata.SendTarget{Kind: coredata.SendTargetAll}
	rec.AnnounceCount++
	rec.LastAPTime = now
	// RFC 6762 §8.3: successive announcements double the interval, capped.
	rec.ThisAPInterval *= 2
	if rec.ThisAPInterval > protocol.MaxQuestionInterval {
		rec.ThisAPInterval = protocol.MaxQuestionInterval
	}
}

func (e *Engine) sendGoodbye(rec *coredata.AuthRecord, now time.Time) {
	rec.TTL = 0
	rec.ImmedAnswer = coredata.SendTarget{Kind: coredata.SendTargetAll}
	rec.AnnounceCount++
	rec.LastAPTime = now
}

// Consume clears the transient ImmedAnswer/ImmedAdditional flags once the
// caller has built and transmitted a packet for rec.
func (e *Engine) Consume(rec *coredata.AuthRecord) {
	rec.ImmedAnswer = coredata.SendTarget{}
	rec.ImmedAdditional = coredata.SendTarget{}
	rec.ImmedUnicast = false
	rec.SendNSECNow = false
}

// Deregister starts a goodbye sequence for a Verified/KnownUnique record, or
// removes a still-probing/never-announced record immediately since it never
// asserted ownership on the wire.
func (e *Engine) Deregister(rec *coredata.AuthRecord, rapid bool, now time.Time) {
	if rec.RecordType == coredata.Unique && rec.AnnounceCount == 0 {
		e.store.Remove(rec)
		e.store.Notify(rec, errors.MemFree)
		return
	}
	if rec.RecordType == coredata.Shared {
		rec.RequireGoodbye = true
	}
	rec.RecordType = coredata.Deregistering
	rec.RapidDeregister = rapid
	rec.AnnounceCount = 0
	rec.ThisAPInterval = protocol.InitialAnnounceInterval
	rec.LastAPTime = now
}

// HandleProbeConflict runs the RFC 6762 §8.2 tie-break between our
// in-flight probe and a simultaneous probe seen from the network. On
// WeLose the caller must rename rec and call StartProbing again; on WeWin
// the incoming probe is ignored; on NoConflict there is nothing to do.
func (e *Engine) HandleProbeConflict(rec, theirs *coredata.AuthRecord, now time.Time) TieBreakResult {
	result := Compare(rec, theirs)
	if result == WeLose {
		rec.ProbeRestarts++
		if rec.ProbeRestarts > protocol.MaxProbeRestarts {
			e.store.Remove(rec)
			return result
		}
		e.store.Notify(rec, errors.NameConflict)
	}
	return result
}

// HandleAnswerConflict is called when an incoming response contradicts an
// already-Verified record we own. Per spec.md it is always a hard conflict:
// the record restarts probing under a new name (chosen by the caller).
func (e *Engine) HandleAnswerConflict(rec *coredata.AuthRecord, now time.Time) {
	e.store.Notify(rec, errors.NameConflict)
}

// RefillUpdateCredits tops up a record's rate-limit bucket; call once per
// protocol.UpdateCreditInterval tick.
func RefillUpdateCredits(rec *coredata.AuthRecord, now time.Time) {
	if rec.NextUpdateCredit.IsZero() || !now.Before(rec.NextUpdateCredit) {
		rec.UpdateCredits = protocol.UpdateCreditLimit
		rec.NextUpdateCredit = now.Add(protocol.UpdateCreditInterval)
		rec.UpdateBlocked = false
	}
}

// SpendUpdateCredit consumes one credit for an rdata update, returning false
// (and quadrupling the announce interval, per spec.md §4.1) if the bucket is
// already empty.
func SpendUpdateCredit(rec *coredata.AuthRecord) bool {
	if rec.UpdateCredits <= 0 {
		rec.UpdateBlocked = true
		rec.ThisAPInterval *= 4
		return false
	}
	rec.UpdateCredits--
	return true
}
