package core

import (
	"context"
	"net"
	"time"

	"github.com/joshuafuller/beacon/internal/clock"
	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/message"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// Receive processes one inbound packet, received on ifaceID from src, and
// returns the next Execute deadline the way Execute itself does — a packet
// can start or finish a probe, complete an announce early via an
// acknowledging response, or trigger a conflict, any of which reschedules
// something.
func (c *Core) Receive(ctx context.Context, packet []byte, src net.Addr, ifaceID coredata.InterfaceID, now time.Time) time.Time {
	c.enter()
	defer c.leave()

	msg, err := message.ParseMessage(packet)
	if err != nil {
		return time.Time{} // malformed packets are silently discarded, RFC 6762 §18.11
	}

	var knownAnswers []*coredata.RecordData
	if msg.Header.IsResponse() {
		if msg.Header.GetRCODE() != 0 {
			return time.Time{} // RFC 6762 §18.11: ignore non-zero RCODE
		}
		c.handleResponse(msg, ifaceID, now)
	} else {
		knownAnswers = c.handleQuery(msg, ifaceID, now)
	}

	c.flushResponses(ctx, now, knownAnswers)
	c.flushQueries(ctx)

	return clock.Deadline(
		c.authFSM.Tick(now),
		c.cacheStore.Sweep(now),
		c.questions.Tick(now, c.canCarry),
	)
}

// handleQuery marks every locally-owned record a question matches as due
// to answer, and returns the query's own Answer section (its known-answer
// list) so the caller can pass it through to flushResponses for RFC 6762
// §7.1 suppression.
func (c *Core) handleQuery(msg *message.DNSMessage, ifaceID coredata.InterfaceID, now time.Time) []*coredata.RecordData {
	isProbe := len(msg.Authorities) > 0

	for _, q := range msg.Questions {
		name := coredata.NewName(q.QNAME)
		for _, rec := range c.auth.ByNameHash(name.Hash()) {
			if rec.Type != protocol.RecordType(q.QTYPE) || !rec.Name.Equal(name) {
				continue
			}

			if isProbe && rec.IsProbing() {
				c.resolveProbeConflict(rec, msg, now)
				continue
			}
			if !rec.CanAnswerQueries() {
				continue
			}

			rec.AnsweredLocalQ = true
			rec.ImmedAnswer = coredata.SendTarget{Kind: coredata.SendTargetAll, InterfaceID: ifaceID}
			rec.QueryTriggered = true
			// A probe query for a name we already hold is a simultaneous
			// claim on it; RFC 6762 §6.2 requires defending within 250ms
			// instead of the usual 1s multicast rate limit.
			rec.ProbeDefense = isProbe
		}
	}

	return queryKnownAnswers(msg)
}

// queryKnownAnswers converts a query's Answer section into the RecordData
// shape the assembler's known-answer suppression compares against.
func queryKnownAnswers(msg *message.DNSMessage) []*coredata.RecordData {
	if len(msg.Answers) == 0 {
		return nil
	}
	out := make([]*coredata.RecordData, 0, len(msg.Answers))
	for _, a := range msg.Answers {
		out = append(out, &coredata.RecordData{
			Name:  coredata.NewName(a.NAME),
			Type:  protocol.RecordType(a.TYPE),
			Class: protocol.DNSClass(a.CLASS & protocol.ClassMask),
			TTL:   a.TTL,
			RData: a.RDATA,
		})
	}
	return out
}

// resolveProbeConflict runs the RFC 6762 §8.2 tie-break between our
// in-flight probe (rec) and a simultaneous probe whose proposed rdata
// arrived in the query's authority section.
func (c *Core) resolveProbeConflict(rec *coredata.AuthRecord, msg *message.DNSMessage, now time.Time) {
	for _, auth := range msg.Authorities {
		if auth.NAME != rec.Name.String() || protocol.RecordType(auth.TYPE) != rec.Type {
			continue
		}
		theirs := &coredata.AuthRecord{RecordData: coredata.RecordData{
			Name: rec.Name, Type: rec.Type, Class: rec.Class, RData: auth.RDATA,
		}}
		// HandleProbeConflict notifies NameConflict itself on WeLose, except
		// once ProbeRestarts is exhausted, when it removes rec without a
		// callback; the client's onRecordEvent handler is expected to rename
		// and re-register a surviving record.
		c.withReentrancy(func() {
			c.authFSM.HandleProbeConflict(rec, theirs, now)
		})
	}
}

func (c *Core) handleResponse(msg *message.DNSMessage, ifaceID coredata.InterfaceID, now time.Time) {
	rrset := responseRRSet(msg)

	for _, a := range msg.Answers {
		c.ingestAnswer(a, ifaceID, rrset, now)
	}
	for _, a := range msg.Additionals {
		c.ingestAnswer(a, ifaceID, rrset, now)
	}
}

func (c *Core) ingestAnswer(a message.Answer, ifaceID coredata.InterfaceID, rrset []*coredata.RecordData, now time.Time) {
	name := coredata.NewName(a.NAME)
	rdata := &coredata.RecordData{
		Name:       name,
		Type:       protocol.RecordType(a.TYPE),
		Class:      protocol.DNSClass(a.CLASS & protocol.ClassMask),
		TTL:        a.TTL,
		RData:      a.RDATA,
		Interface:  ifaceID,
		CacheFlush: a.CLASS&protocol.CacheFlushBit != 0,
	}

	for _, rec := range c.auth.ByNameHash(name.Hash()) {
		if !rec.RecordData.SameRRSet(rdata) {
			continue
		}
		if rec.RecordData.SameRData(rdata) {
			if rec.IsProbing() {
				rec.Acknowledged = true
			}
			continue
		}
		if rec.IsProbing() {
			theirs := &coredata.AuthRecord{RecordData: *rdata}
			c.withReentrancy(func() {
				c.authFSM.HandleProbeConflict(rec, theirs, now)
			})
		} else if rec.CanAnswerQueries() {
			c.withReentrancy(func() {
				c.authFSM.HandleAnswerConflict(rec, now)
			})
		}
	}

	cr := &coredata.CacheRecord{RecordData: *rdata}
	c.withReentrancy(func() {
		c.cacheStore.Insert(cr, rrset)
		if c.onCacheEvent != nil && !cr.IsGoodbye() {
			c.onCacheEvent(CacheEvent{Record: cr, Added: true})
		}
	})

	for _, q := range c.questions.Canonical() {
		if !q.QName.Equal(name) {
			continue
		}
		if q.QType == rdata.Type {
			c.questions.RecordAnswer(q, rdata.CacheFlush, now)
			c.cacheStore.MarkAnswered(cr, now)
			continue
		}
		if rdata.Type == protocol.RecordTypeCNAME && q.QType != protocol.RecordTypeCNAME {
			c.chaseCNAME(q, rdata, now)
		}
	}
}

// chaseCNAME follows a CNAME answer per spec.md §4.3: stop q, rewrite its
// name to the CNAME's target, and restart it there, bounded by
// protocol.MaxCNAMEReferrals and aborted on a self-referential CNAME.
func (c *Core) chaseCNAME(q *coredata.Question, rdata *coredata.RecordData, now time.Time) {
	parsed, err := message.ParseRDATA(uint16(protocol.RecordTypeCNAME), rdata.RData)
	if err != nil {
		return
	}
	target, ok := parsed.(string)
	if !ok {
		return
	}
	c.withReentrancy(func() {
		c.questions.ChaseCNAME(q, coredata.NewName(target), now)
	})
}

// handleUnansweredQuery synthesizes a negative cache entry for a question
// whose previous query drew no answer, per spec.md §4.3. It is wired as
// question.Engine's OnUnanswered hook.
func (c *Core) handleUnansweredQuery(q *coredata.Question, now time.Time) {
	baseTTL := c.negativeCacheBaseTTL(q)
	c.withReentrancy(func() {
		c.cacheStore.InsertNegative(q.QName, q.QType, q.QClass, baseTTL, now)
	})
}

// negativeCacheBaseTTL picks the TTL a fresh negative cache entry for q
// should start at: the MINIMUM field of a cached "local." SOA record if one
// exists, the fixed 24h default for a negative answer to "local." SOA
// itself, or the general 60s default.
func (c *Core) negativeCacheBaseTTL(q *coredata.Question) uint32 {
	localName := coredata.NewName("local.")
	if q.QType == protocol.RecordTypeSOA && q.QName.Equal(localName) {
		return uint32(protocol.NegativeCacheLocalSOATTL / time.Second)
	}
	if g := c.cacheStore.Group(localName); g != nil {
		for _, rec := range g.Records {
			if rec.Type != protocol.RecordTypeSOA {
				continue
			}
			parsed, err := message.ParseRDATA(uint16(protocol.RecordTypeSOA), rec.RData)
			if err != nil {
				continue
			}
			if soa, ok := parsed.(message.SOAData); ok {
				return soa.Minimum
			}
		}
	}
	return uint32(protocol.NegativeCacheDefaultTTL / time.Second)
}

func responseRRSet(msg *message.DNSMessage) []*coredata.RecordData {
	var out []*coredata.RecordData
	for _, a := range append(append([]message.Answer{}, msg.Answers...), msg.Additionals...) {
		out = append(out, &coredata.RecordData{
			Name:  coredata.NewName(a.NAME),
			Type:  protocol.RecordType(a.TYPE),
			Class: protocol.DNSClass(a.CLASS & protocol.ClassMask),
			TTL:   a.TTL,
			RData: a.RDATA,
		})
	}
	return out
}
