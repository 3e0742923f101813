package authstore

import (
	"bytes"

	"github.com/joshuafuller/beacon/internal/coredata"
)

// TieBreakResult is the outcome of comparing our probe record against a
// simultaneous probe (or an answer received while still probing) seen from
// another host for the same {name,type,class}.
type TieBreakResult int

const (
	// WeWin means our rdata lexicographically outranks theirs; we ignore
	// their probe and continue our own.
	WeWin TieBreakResult = iota
	// WeLose means theirs outranks ours; we must pick a new name and
	// restart probing from scratch.
	WeLose
	// NoConflict means the compared records don't actually collide
	// (different rrset, or byte-identical rdata).
	NoConflict
)

// Compare implements the RFC 6762 §8.2 simultaneous-probe tie-break: the
// lexicographically later rdata (as a sequence of canonicalized
// class/type/rdlength/rdata records, compared byte-wise) wins.
func Compare(ours, theirs *coredata.AuthRecord) TieBreakResult {
	if !ours.RecordData.SameRRSet(&theirs.RecordData) {
		return NoConflict
	}
	if ours.RecordData.SameRData(&theirs.RecordData) {
		return NoConflict
	}

	oc := canonicalOrderingKey(&ours.RecordData)
	tc := canonicalOrderingKey(&theirs.RecordData)
	switch bytes.Compare(oc, tc) {
	case 1:
		return WeWin
	default:
		return WeLose
	}
}

// canonicalOrderingKey builds the class, type, rdlength, rdata tuple the
// tie-break comparison runs over, per RFC 6762 §8.2.
func canonicalOrderingKey(r *coredata.RecordData) []byte {
	buf := make([]byte, 0, 6+len(r.RData))
	buf = append(buf, byte(r.Class>>8), byte(r.Class))
	buf = append(buf, byte(r.Type>>8), byte(r.Type))
	buf = append(buf, byte(len(r.RData)>>8), byte(len(r.RData)))
	buf = append(buf, r.RData...)
	return buf
}
