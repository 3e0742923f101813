package coredata

import "time"

// CacheRecord is a resource record learned from the network.
type CacheRecord struct {
	RecordData

	TimeRcvd           time.Time
	OriginalTTL        uint32 // rroriginalttl: TTL as first received, before any harmonization
	UnansweredQueries  int
	LastUnansweredTime time.Time
	NextRequiredQuery  time.Time
	LastUsed           time.Time

	// CRActiveQuestion is the one Question responsible for keeping this
	// record fresh, or nil. At most one question owns a given record;
	// ownership transfers to another matching question on teardown.
	CRActiveQuestion *Question

	// DelayDelivery is a scheduled add-callback time: set when the record's
	// group already holds an entry expiring within 1s of this insert, so a
	// goodbye-then-refresh sequence collapses into one client event.
	DelayDelivery time.Time

	// NextInCFList threads this record into a transient cache-flush pass list.
	NextInCFList *CacheRecord

	// Negative marks a synthesized "packet-negative" placeholder standing in
	// for the absence of an answer, per spec.md §4.3's negative-caching rule.
	Negative bool
}

// ExpiresAt returns the wall-clock expiry implied by TimeRcvd+TTL.
func (c *CacheRecord) ExpiresAt() time.Time {
	return c.TimeRcvd.Add(time.Duration(c.TTL) * time.Second)
}

// IsGoodbye reports whether this record is a TTL=0 deletion marker.
func (c *CacheRecord) IsGoodbye() bool {
	return c.TTL == 0
}

// GracePeriod selects the expiry tolerance for this record, per spec.md
// §4.2 "Grace periods on expire": liveness is judged from whether a
// question still actively tracks the record, how many refresh queries
// remain, and how short the original TTL was.
func (c *CacheRecord) GracePeriod() time.Duration {
	switch {
	case c.OriginalTTL == 0:
		return 0
	case c.OriginalTTL <= 10:
		return 100 * time.Millisecond
	case c.CRActiveQuestion == nil:
		return 60 * time.Second
	case c.UnansweredQueries < 4:
		return time.Duration(c.OriginalTTL) * time.Second / 50
	default:
		return 1 * time.Second
	}
}

// CacheGroup is a hash-slot bucket keyed by name hash, linking every cache
// record sharing a name. It owns the name storage (a single Name value is
// enough in Go — the source's inline-vs-heap split for short/long names is
// a C storage-layout concern with no Go analogue).
type CacheGroup struct {
	Name    Name
	Records []*CacheRecord
}

// FindSameRRSet returns every record in the group sharing {type, class,
// interface} with key, used by cache-flush coherence and conflict checks.
func (g *CacheGroup) FindSameRRSet(key *RecordData) []*CacheRecord {
	var out []*CacheRecord
	for _, r := range g.Records {
		if r.SameRRSet(key) {
			out = append(out, r)
		}
	}
	return out
}

// Remove deletes a record from the group by pointer identity.
func (g *CacheGroup) Remove(target *CacheRecord) bool {
	for i, r := range g.Records {
		if r == target {
			g.Records = append(g.Records[:i], g.Records[i+1:]...)
			return true
		}
	}
	return false
}
