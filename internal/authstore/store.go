// Package authstore implements the authoritative-record engine: the hashed
// set of locally-owned records, the probe/announce/defend state machine
// that governs them, and the conflict tie-breaking used both against
// simultaneous probes and against contradicting responses.
package authstore

import (
	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/errors"
)

// Callback receives the outcome of an asynchronous record transition:
// errors.NoError on successful Acknowledge (probe completed), or
// errors.NameConflict / errors.MemFree for the terminal outcomes spec.md
// §7 defines. MemFree is always the last callback delivered for a record.
type Callback func(rec *coredata.AuthRecord, kind errors.Kind)

// Store is the hashed set of authoritative records plus a duplicate list.
// A record is on exactly one of the two at any time; removing the record
// CurrentRecord points at clears CurrentRecord, so the cursor never refers
// to a removed record.
type Store struct {
	byHash map[uint32][]*coredata.AuthRecord
	dups   map[*coredata.AuthRecord][]*coredata.AuthRecord // canonical -> shadows

	// CurrentRecord is the iteration cursor exposed to callback-triggered
	// removal. Removing the record it points at sets it to nil; it is not
	// moved on to the next record.
	CurrentRecord *coredata.AuthRecord

	onCallback Callback
}

// New creates an empty authoritative-record store.
func New(cb Callback) *Store {
	return &Store{
		byHash: make(map[uint32][]*coredata.AuthRecord),
		dups:   make(map[*coredata.AuthRecord][]*coredata.AuthRecord),
		onCallback: cb,
	}
}

// Add inserts rec as a fresh canonical record, or — if an identical
// {name,type,class,interface,rdata} record is already canonical — as a
// duplicate shadow of it. Returns errors.AlreadyRegistered only when rec
// itself (by pointer) is already tracked.
func (s *Store) Add(rec *coredata.AuthRecord) *errors.CoreError {
	h := rec.Name.Hash()
	for _, existing := range s.byHash[h] {
		if existing == rec {
			return &errors.CoreError{Kind: errors.AlreadyRegistered, Operation: "register record"}
		}
		if existing.SameRRSet(&rec.RecordData) && existing.SameRData(&rec.RecordData) {
			s.dups[existing] = append(s.dups[existing], rec)
			return nil
		}
	}
	s.byHash[h] = append(s.byHash[h], rec)
	return nil
}

// Remove deletes rec from whichever list holds it (canonical or shadow),
// clearing CurrentRecord to nil if the walk was sitting on rec.
func (s *Store) Remove(rec *coredata.AuthRecord) {
	h := rec.Name.Hash()
	list := s.byHash[h]
	for i, r := range list {
		if r == rec {
			s.byHash[h] = append(list[:i:i], list[i+1:]...)
			s.promoteShadow(rec)
			s.advanceCursor(rec)
			return
		}
	}
	for canon, shadows := range s.dups {
		for i, r := range shadows {
			if r == rec {
				s.dups[canon] = append(shadows[:i:i], shadows[i+1:]...)
				s.advanceCursor(rec)
				return
			}
		}
	}
}

// promoteShadow hands canonical status to the first remaining shadow of a
// removed canonical record, if any, so its duplicates don't become orphans.
func (s *Store) promoteShadow(removedCanonical *coredata.AuthRecord) {
	shadows, ok := s.dups[removedCanonical]
	if !ok || len(shadows) == 0 {
		return
	}
	newCanon := shadows[0]
	rest := shadows[1:]
	delete(s.dups, removedCanonical)

	h := newCanon.Name.Hash()
	s.byHash[h] = append(s.byHash[h], newCanon)
	if len(rest) > 0 {
		s.dups[newCanon] = append([]*coredata.AuthRecord{}, rest...)
	}
}

func (s *Store) advanceCursor(removed *coredata.AuthRecord) {
	if s.CurrentRecord == removed {
		s.CurrentRecord = nil
	}
}

// All returns every canonical (non-shadow) record, the set the probe/announce
// FSM and the response assembler iterate.
func (s *Store) All() []*coredata.AuthRecord {
	var out []*coredata.AuthRecord
	for _, list := range s.byHash {
		out = append(out, list...)
	}
	return out
}

// ShadowsOf returns the duplicate-list shadows of a canonical record.
func (s *Store) ShadowsOf(canon *coredata.AuthRecord) []*coredata.AuthRecord {
	return s.dups[canon]
}

// ByNameHash returns the canonical records sharing a name hash, the set
// conflict detection and response-matching walk for an incoming packet.
func (s *Store) ByNameHash(h uint32) []*coredata.AuthRecord {
	return s.byHash[h]
}

// Notify delivers a record-outcome callback through the reentrancy
// discipline owned by internal/core; Store itself just forwards.
func (s *Store) Notify(rec *coredata.AuthRecord, kind errors.Kind) {
	if s.onCallback != nil {
		s.onCallback(rec, kind)
	}
}
