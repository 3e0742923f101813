package coredata

import (
	"time"

	"github.com/joshuafuller/beacon/internal/protocol"
)

// DupSuppressEntry records one observed duplicate query, used to avoid
// re-issuing a query another host on the link already asked moments ago.
type DupSuppressEntry struct {
	InterfaceID InterfaceID
	IsIPv6      bool
	Timestamp   time.Time
}

// dupSuppressRingSize bounds the DupSuppress ring per question.
const dupSuppressRingSize = 4

// Question is an active (or stopped, or duplicate) question being tracked
// by the question engine.
type Question struct {
	QName      Name
	QType      protocol.RecordType
	QClass     protocol.DNSClass
	Interface  InterfaceID

	// TargetQID is zero for multicast mDNS questions, non-zero for a
	// unicast exchange awaiting a response with matching transaction id.
	TargetQID uint16

	// Scheduling. ThisQInterval: -1 = stopped, 0 = deactivated, >0 = active.
	ThisQInterval   time.Duration
	LastQTime       time.Time
	LastQTxTime     time.Time
	RecentAnswerPkts int
	LastAnswerPktNum uint64
	SendQNow        SendTarget
	SendOnAll       bool

	// RequestUnicast true while the question still owes the QU bit on its
	// next few transmissions (1 normally, 4 under the reliability profile).
	RequestUnicast bool

	// Answer accounting used for burst-triggered interval reset and for the
	// browse-threshold behavior.
	CurrentAnswers int
	LargeAnswers   int
	UniqueAnswers  int

	// DuplicateOf is non-nil when this question coalesces onto a canonical
	// question that transmits on its behalf; duplicates still receive callbacks.
	DuplicateOf *Question

	// CNAMEReferrals counts CNAME chases so far (bounded at
	// protocol.MaxCNAMEReferrals); each chase carries the count, plus one,
	// onto the replacement question, and nothing resets it.
	CNAMEReferrals int

	// BrowseThreshold, if >0, parks the question at MaxQuestionInterval once
	// CurrentAnswers reaches it, waking again when CurrentAnswers drops below.
	BrowseThreshold int

	DupSuppress [dupSuppressRingSize]DupSuppressEntry
	dupSuppressNext int

	// NextInKAList threads this question into the transient known-answer
	// list being assembled for the current outbound packet.
	NextInKAList *Question

	// SuppressIfUnusable parks the question (answered with an immediate
	// negative) whenever no interface can currently carry it.
	SuppressIfUnusable bool

	// LongLived marks a question tied to an external long-lived-query
	// extension, whose cancellation must be propagated on Stop.
	LongLived bool
}

// IsStopped reports whether the question has been torn down.
func (q *Question) IsStopped() bool { return q.ThisQInterval < 0 }

// IsActive reports whether the question currently transmits.
func (q *Question) IsActive() bool { return q.ThisQInterval > 0 }

// Canonical walks DuplicateOf to the transmitting question.
func (q *Question) Canonical() *Question {
	c := q
	for c.DuplicateOf != nil {
		c = c.DuplicateOf
	}
	return c
}

// RecordDupSuppress appends an observed duplicate query to the ring buffer.
func (q *Question) RecordDupSuppress(iface InterfaceID, isIPv6 bool, at time.Time) {
	q.DupSuppress[q.dupSuppressNext] = DupSuppressEntry{InterfaceID: iface, IsIPv6: isIPv6, Timestamp: at}
	q.dupSuppressNext = (q.dupSuppressNext + 1) % dupSuppressRingSize
}

// SeenDuplicateRecently reports whether a matching duplicate query was
// observed on iface/family within window.
func (q *Question) SeenDuplicateRecently(iface InterfaceID, isIPv6 bool, now time.Time, window time.Duration) bool {
	for _, e := range q.DupSuppress {
		if e.Timestamp.IsZero() {
			continue
		}
		if e.InterfaceID == iface && e.IsIPv6 == isIPv6 && now.Sub(e.Timestamp) < window {
			return true
		}
	}
	return false
}

// MatchesKey reports whether this question matches another in every field
// that affects wire behavior, per FindDuplicateQuestion in spec.md §4.3.
func (q *Question) MatchesKey(o *Question) bool {
	return q.Interface == o.Interface &&
		q.TargetQID == o.TargetQID &&
		q.QType == o.QType &&
		q.QClass == o.QClass &&
		q.LongLived == o.LongLived &&
		q.SuppressIfUnusable == o.SuppressIfUnusable &&
		q.BrowseThreshold == o.BrowseThreshold &&
		q.QName.Equal(o.QName)
}
