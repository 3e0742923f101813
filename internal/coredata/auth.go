package coredata

import "time"

// AuthRecordType is the ownership/lifecycle state of a locally-owned record.
type AuthRecordType int

const (
	// Unregistered is the zero state: not yet handed to the probe/announce FSM.
	Unregistered AuthRecordType = iota
	// Deregistering means a goodbye sequence is in flight; the record answers
	// nothing new and is removed once goodbyes complete.
	Deregistering
	// Unique means the record is currently probing and MUST NOT answer queries.
	Unique
	// Verified means probing completed without conflict; the record MUST answer queries.
	Verified
	// KnownUnique means the record is asserted unique without probing (e.g.
	// learned to be conflict-free out of band) and answers immediately.
	KnownUnique
	// Shared means the record co-exists with peer copies, never probes, and
	// must send a goodbye before removal once it has announced.
	Shared
	// Advisory records are informational only (never sent, never answer queries).
	Advisory
)

// AuthRecord is a resource record this host asserts it owns.
type AuthRecord struct {
	RecordData

	RecordType AuthRecordType

	// Scheduling.
	ProbeCount     int
	AnnounceCount  int
	ThisAPInterval time.Duration
	LastAPTime     time.Time
	LastMCTime     time.Time
	LastMCInterface InterfaceID

	// Dependencies.
	DependentOn *AuthRecord // governs this record's probe outcome (e.g. TXT tied to SRV)
	RRSet       *AuthRecord // membership token: equal pointer => same atomic RRSet
	Additional1 *AuthRecord // records to piggyback in the assembler's pass 2
	Additional2 *AuthRecord

	// Transient per-tick flags, reset every Execute pass once consumed.
	ImmedAnswer     SendTarget
	ImmedAdditional SendTarget
	ImmedUnicast    bool
	SendNSECNow     bool
	// ProbeDefense marks an ImmedAnswer scheduled to defend this record's
	// name against a simultaneous probe (RFC 6762 §6.2), relaxing the
	// multicast rate limit from MulticastRateLimit to ProbeDefenseRateLimit.
	ProbeDefense    bool
	// QueryTriggered marks an ImmedAnswer set in response to an incoming
	// question rather than by the probe/announce/goodbye schedule; only
	// these are subject to the RFC 6762 §6.2 per-record rate limit, since
	// the schedule's own pacing already governs its own transmissions.
	QueryTriggered  bool
	NextResponse    *AuthRecord // list-threaded while a packet is being built
	NRAnswerTo      AnswerTarget
	NRAdditionalTo  *AuthRecord // the record that dragged this one in as an additional
	V4Requester     RequesterState
	V6Requester     RequesterState

	AnsweredLocalQ   bool
	RequireGoodbye   bool
	Acknowledged     bool

	// Update-credit bucket: 3 credits refilling every 6s; exhausting them
	// multiplies the announce interval by 4 (protocol.UpdateCreditInterval).
	UpdateCredits    int
	NextUpdateCredit time.Time
	UpdateBlocked    bool

	// ProbeRestarts counts tie-break losses; MaxProbeRestarts gives up silently.
	ProbeRestarts int

	// RapidDeregister requests the 1-goodbye-packet shortcut instead of 3.
	RapidDeregister bool
}

// RequesterState distinguishes "nobody asked" / "a specific unicast
// requester" / "the conflict-forces-multicast sentinel" for the per-family
// requester fields, replacing the source's zero/IP/all-ones overload.
type RequesterState struct {
	Kind RequesterKind
	Addr [16]byte // valid when Kind == RequesterUnicast; IPv4-mapped or raw IPv6
}

// RequesterKind enumerates RequesterState variants.
type RequesterKind int

const (
	// RequesterNone means no pending unicast reply is owed.
	RequesterNone RequesterKind = iota
	// RequesterUnicast means reply unicast to Addr.
	RequesterUnicast
	// RequesterConflictMulticast is the "all-ones" sentinel: a unicast
	// requester was seen, but a conflict also exists, so multicast instead.
	RequesterConflictMulticast
)

// CanAnswerQueries reports whether this record is in a state where it is
// permitted to answer incoming queries (spec.md: "During probing (Unique),
// the record MUST NOT answer queries. During Verified, it MUST.").
func (r *AuthRecord) CanAnswerQueries() bool {
	switch r.RecordType {
	case Verified, KnownUnique, Shared:
		return true
	default:
		return false
	}
}

// IsProbing reports whether the record is still in the probe phase.
func (r *AuthRecord) IsProbing() bool {
	return r.RecordType == Unique
}

// ConflictsWith reports whether r and o form a naming conflict per spec.md
// §3: equal {name, type, class, interface}, different rdata, and neither
// shielded by a shared RRSet token or a DependentOn relationship.
func (r *AuthRecord) ConflictsWith(o *AuthRecord) bool {
	if !r.RecordData.SameRRSet(&o.RecordData) {
		return false
	}
	if r.RecordData.SameRData(&o.RecordData) {
		return false
	}
	if r.RRSet != nil && r.RRSet == o.RRSet {
		return false
	}
	if r.DependentOn == o || o.DependentOn == r {
		return false
	}
	return true
}
