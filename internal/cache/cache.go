// Package cache implements the cache engine: storage for records learned
// from the network, cache-flush-bit coherence, the expiration/refresh
// schedule, and antecedent reconfirmation.
package cache

import (
	"time"

	"github.com/joshuafuller/beacon/internal/clock"
	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// RemoveReason distinguishes why a cache record left the store, passed to
// the client-facing remove callback by internal/core.
type RemoveReason int

const (
	// ReasonExpired means the record's TTL (plus grace period) elapsed
	// without a refresh.
	ReasonExpired RemoveReason = iota
	// ReasonGoodbye means a TTL=0 deletion record was received.
	ReasonGoodbye
	// ReasonFlushed means a cache-flush-bit response replaced the RRSet
	// and this record wasn't among the replacements.
	ReasonFlushed
)

// RemoveFunc is called once per record leaving the cache.
type RemoveFunc func(rec *coredata.CacheRecord, reason RemoveReason)

// Store is the name-hashed cache of learned records.
type Store struct {
	clk    clock.Clock
	groups map[uint32]*coredata.CacheGroup
	onRemove RemoveFunc

	count        int
	warnEmitted  bool

	lastReconfirm map[*coredata.CacheRecord]time.Time
}

// New creates an empty cache store.
func New(clk clock.Clock, onRemove RemoveFunc) *Store {
	return &Store{
		clk:      clk,
		groups:   make(map[uint32]*coredata.CacheGroup),
		onRemove: onRemove,
	}
}

// Count returns the total number of cached records across all groups.
func (s *Store) Count() int { return s.count }

func (s *Store) group(name coredata.Name) *coredata.CacheGroup {
	g, ok := s.groups[name.Hash()]
	if !ok {
		return nil
	}
	return g
}

func (s *Store) groupOrCreate(name coredata.Name) *coredata.CacheGroup {
	h := name.Hash()
	g, ok := s.groups[h]
	if !ok {
		g = &coredata.CacheGroup{Name: name}
		s.groups[h] = g
	}
	return g
}

// Lookup returns every cached record under name that the typ predicate
// accepts (every record under name when typ is nil). It does not filter by
// interface.
func (s *Store) Lookup(name coredata.Name, typ func(*coredata.CacheRecord) bool) []*coredata.CacheRecord {
	g := s.group(name)
	if g == nil {
		return nil
	}
	var out []*coredata.CacheRecord
	for _, r := range g.Records {
		if typ == nil || typ(r) {
			out = append(out, r)
		}
	}
	return out
}

// Group returns the raw group for a name, or nil.
func (s *Store) Group(name coredata.Name) *coredata.CacheGroup {
	return s.group(name)
}

// Insert adds or refreshes a record learned from the network.
//
//   - A TTL=0 goodbye record that matches an existing entry marks that
//     entry as already expired with no grace period, rather than deleting
//     it immediately: the entry stays in the cache until the next Sweep,
//     which removes it.
//   - A cache-flush-bit record replaces every other record in the same
//     RRSet that was not itself part of this packet's answer burst.
//   - Otherwise the record is added fresh, with DelayDelivery set when a
//     sibling in the group is expiring within one second, so closely timed
//     goodbye+refresh pairs collapse into a single add callback.
func (s *Store) Insert(rec *coredata.CacheRecord, packetRRSet []*coredata.RecordData) {
	now := s.clk.Now()
	g := s.groupOrCreate(rec.Name)

	if rec.CacheFlush {
		s.paintCacheFlush(g, rec, packetRRSet, now)
	}

	for _, existing := range g.Records {
		if existing.SameRRSet(&rec.RecordData) && existing.SameRData(&rec.RecordData) {
			if rec.IsGoodbye() {
				existing.TTL = 0
				existing.TimeRcvd = now.Add(-time.Second) // already expired; next Sweep removes it
				existing.OriginalTTL = 0
				return
			}
			existing.TTL = rec.TTL
			existing.OriginalTTL = rec.TTL
			existing.TimeRcvd = now
			existing.UnansweredQueries = 0
			return
		}
	}

	if rec.IsGoodbye() {
		return // nothing to delete; goodbye for an unknown record is a no-op
	}

	rec.TimeRcvd = now
	rec.OriginalTTL = rec.TTL
	for _, sibling := range g.Records {
		if sibling.SameRRSet(&rec.RecordData) {
			if until := sibling.ExpiresAt().Sub(now); until > 0 && until < time.Second {
				rec.DelayDelivery = sibling.ExpiresAt()
			}
			break
		}
	}
	g.Records = append(g.Records, rec)
	s.count++
}

// paintCacheFlush marks for removal every record sharing rec's RRSet that
// is not present in packetRRSet, the set of records the same packet
// answered with the cache-flush bit set (RFC 6762 §10.2).
func (s *Store) paintCacheFlush(g *coredata.CacheGroup, rec *coredata.CacheRecord, packetRRSet []*coredata.RecordData, now time.Time) {
	stale := g.FindSameRRSet(&rec.RecordData)
	for _, candidate := range stale {
		found := false
		for _, fresh := range packetRRSet {
			if candidate.SameRData(fresh) {
				found = true
				break
			}
		}
		if !found {
			candidate.TTL = 0
			candidate.TimeRcvd = now.Add(-time.Second)
		}
	}
}

// InsertNegative synthesizes or refreshes a "packet-negative" placeholder
// standing in for an unanswered question, per spec.md §4.3. baseTTL is the
// TTL to use the first time this name/qtype goes negative — the caller
// resolves it from a cached zone SOA's MINIMUM or a default before calling
// in, since rdata parsing lives in internal/message and this package stays
// codec-free (the same layering ReconfirmAntecedents's TargetResolver
// follows). A repeat negative for the same name/qtype/class doubles the
// prior entry's TTL instead of inserting a second one, capped at
// protocol.NegativeCacheMaxTTL.
func (s *Store) InsertNegative(name coredata.Name, qtype protocol.RecordType, class protocol.DNSClass, baseTTL uint32, now time.Time) *coredata.CacheRecord {
	g := s.groupOrCreate(name)
	for _, existing := range g.Records {
		if !existing.Negative || existing.Type != qtype || existing.Class != class {
			continue
		}
		ttl := existing.OriginalTTL * 2
		if max := uint32(protocol.NegativeCacheMaxTTL / time.Second); ttl > max {
			ttl = max
		}
		existing.TTL = ttl
		existing.OriginalTTL = ttl
		existing.TimeRcvd = now
		return existing
	}

	rec := &coredata.CacheRecord{
		RecordData:  coredata.NewRecordData(name, qtype, class, baseTTL, nil, coredata.InterfaceAny, false),
		TimeRcvd:    now,
		OriginalTTL: baseTTL,
		Negative:    true,
	}
	g.Records = append(g.Records, rec)
	s.count++
	return rec
}

// Remove deletes rec and fires the remove callback.
func (s *Store) Remove(rec *coredata.CacheRecord, reason RemoveReason) {
	g := s.group(rec.Name)
	if g == nil {
		return
	}
	if g.Remove(rec) {
		s.count--
		if len(g.Records) == 0 {
			delete(s.groups, rec.Name.Hash())
		}
	}
	if s.onRemove != nil {
		s.onRemove(rec, reason)
	}
}

// Sweep walks every group, removing records past TTL+GracePeriod and
// returning the absolute time of the earliest next expiry across the
// survivors, so the scheduler knows when to call Sweep again.
func (s *Store) Sweep(now time.Time) time.Time {
	var next time.Time
	for _, g := range s.groups {
		for _, rec := range append([]*coredata.CacheRecord{}, g.Records...) {
			deadline := rec.ExpiresAt().Add(rec.GracePeriod())
			if !now.Before(deadline) {
				reason := ReasonExpired
				if rec.IsGoodbye() {
					reason = ReasonGoodbye
				}
				s.Remove(rec, reason)
				continue
			}
			next = clock.Deadline(next, deadline)
			if refresh := s.nextRefreshQuery(rec, now); !refresh.IsZero() {
				next = clock.Deadline(next, refresh)
			}
		}
	}
	return next
}

// nextRefreshQuery computes when a record with an active question owner
// should next be re-queried, at 80/85/90/95% of its original TTL measured
// from when it was received (RFC 6762 §5.2), provided fewer than
// MaxUnansweredQueries refreshes have gone
// unanswered.
func (s *Store) nextRefreshQuery(rec *coredata.CacheRecord, now time.Time) time.Time {
	if rec.CRActiveQuestion == nil || rec.UnansweredQueries >= 4 {
		return time.Time{}
	}
	if !rec.NextRequiredQuery.IsZero() {
		return rec.NextRequiredQuery
	}
	ttl := time.Duration(rec.OriginalTTL) * time.Second
	percentiles := [4]float64{0.80, 0.85, 0.90, 0.95}
	step := rec.UnansweredQueries
	if step >= len(percentiles) {
		step = len(percentiles) - 1
	}
	return rec.TimeRcvd.Add(time.Duration(float64(ttl) * percentiles[step]))
}

// MarkQueried records a refresh-query attempt sent for rec, bumping the
// unanswered-query count and scheduling the next percentile deadline.
func (s *Store) MarkQueried(rec *coredata.CacheRecord, now time.Time) {
	rec.UnansweredQueries++
	rec.LastUnansweredTime = now
	rec.NextRequiredQuery = time.Time{}
	rec.NextRequiredQuery = s.nextRefreshQuery(rec, now)
}

// MarkAnswered resets a record's unanswered-query counter once a fresh
// answer for it arrives, whether from our own refresh query or anyone
// else's.
func (s *Store) MarkAnswered(rec *coredata.CacheRecord, now time.Time) {
	rec.UnansweredQueries = 0
	rec.LastUsed = now
	rec.NextRequiredQuery = time.Time{}
}
