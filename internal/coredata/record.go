package coredata

import (
	"github.com/joshuafuller/beacon/internal/protocol"
)

// RecordData is the shape shared by every stored record, authoritative or
// cached: the wire fields (name/type/class/ttl/rdata) plus the
// interface-scope selector and the separately-tracked cache-flush bit (on
// the wire this is the top bit of the CLASS word, but it is never part of
// the stored class value — conflating the two would make {name,type,class}
// equality checks accidentally sensitive to a transient wire-framing bit).
type RecordData struct {
	Name      Name
	Type      protocol.RecordType
	Class     protocol.DNSClass
	TTL       uint32
	RData     []byte
	Interface InterfaceID

	// RDataHash is a precomputed hash of RData, used for cheap equality
	// checks during conflict detection and cache-flush coherence passes.
	RDataHash uint32

	// CacheFlush records whether this record's owner asserts this is the
	// entire current RRset (RFC 6762 §10.2). Kept separate from Class so
	// the class word in memory is always the plain DNS class.
	CacheFlush bool
}

// NewRecordData builds a RecordData and precomputes its rdata hash.
func NewRecordData(name Name, typ protocol.RecordType, class protocol.DNSClass, ttl uint32, rdata []byte, iface InterfaceID, cacheFlush bool) RecordData {
	return RecordData{
		Name:       name,
		Type:       typ,
		Class:      class,
		TTL:        ttl,
		RData:      rdata,
		Interface:  iface,
		RDataHash:  HashBytes(rdata),
		CacheFlush: cacheFlush,
	}
}

// SameRRSet reports whether two records share {name, type, class,
// interface} — the grouping key RRset-coherence rules (TTL harmonization,
// cache-flush painting, goodbye bundling) operate on.
func (r *RecordData) SameRRSet(o *RecordData) bool {
	return r.Type == o.Type && r.Class == o.Class && r.Interface == o.Interface && r.Name.Equal(o.Name)
}

// SameRData reports whether two records carry bit-identical rdata.
func (r *RecordData) SameRData(o *RecordData) bool {
	if r.RDataHash != o.RDataHash || len(r.RData) != len(o.RData) {
		return false
	}
	for i := range r.RData {
		if r.RData[i] != o.RData[i] {
			return false
		}
	}
	return true
}

// IdenticalSameNameRecord reports whether two records are the wire-identical
// same record: same RRset key and same rdata. A round-trip of encode then
// decode of any RR must yield a record equal under this predicate.
func (r *RecordData) IdenticalSameNameRecord(o *RecordData) bool {
	return r.SameRRSet(o) && r.SameRData(o)
}
