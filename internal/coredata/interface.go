package coredata

// InterfaceID identifies a network interface a record or question is
// scoped to. Concrete interface ids are positive; the sentinel values below
// stand in for the scopes spec.md calls out by name.
//
// The source this is adapted from overloads a single pointer-sized field
// with magic sentinel values (interface pointer, or ~0/~1 for "all
// interfaces"/"unicast"). Per the arena/tagged-variant redesign, that
// becomes a small value type instead of a raw pointer with reserved bit
// patterns, but the same five scopes are preserved verbatim.
type InterfaceID int32

const (
	// InterfaceAny means "every active interface" — the default scope for
	// ordinary records and questions.
	InterfaceAny InterfaceID = 0

	// InterfaceLocalOnly restricts a record/question to the loopback-only
	// internal resolution domain; it is never sent on the wire.
	InterfaceLocalOnly InterfaceID = -1

	// InterfaceP2P restricts a record/question to peer-to-peer-capable
	// interfaces (e.g. AWDL-like links) only.
	InterfaceP2P InterfaceID = -2

	// InterfaceUnicast marks a question as unicast-only (answered over a
	// specific reply socket rather than the multicast group).
	InterfaceUnicast InterfaceID = -3

	// InterfaceMark is a transient scratch value meaning "selected during
	// this tick's packet-assembly pass", never persisted between ticks.
	InterfaceMark InterfaceID = -4
)

// IsSentinel reports whether id is one of the named scopes rather than a
// concrete interface.
func (id InterfaceID) IsSentinel() bool {
	return id <= InterfaceAny
}

// AnswerTarget tags who a pending answer on an AuthRecord should be sent to:
// nobody yet, a legacy unicast reply aimed at the byte offset of the
// question in the inbound packet, a delayed unicast reply, or ordinary
// multicast. This replaces the source's NULL / pointer-into-packet /
// ~0 / ~1 sentinel overload on NR_AnswerTo with an explicit tagged union.
type AnswerTarget struct {
	Kind         AnswerTargetKind
	PacketOffset int // valid when Kind == AnswerTargetLegacyUnicast
}

// AnswerTargetKind enumerates the AnswerTarget variants.
type AnswerTargetKind int

const (
	// AnswerTargetNone means the record has no pending answer this tick.
	AnswerTargetNone AnswerTargetKind = iota
	// AnswerTargetLegacyUnicast means reply directly to the querier's
	// (non-5353) source port, as for a conventional unicast DNS query.
	AnswerTargetLegacyUnicast
	// AnswerTargetUnicast means reply via mDNS unicast (QU bit honored).
	AnswerTargetUnicast
	// AnswerTargetMulticast means reply on the multicast group.
	AnswerTargetMulticast
)

// SendTarget tags which interface(s) a record is scheduled to be sent on:
// none, one specific interface, or every interface. Replaces the source's
// SendRNow/ImmedAnswer interface-pointer-or-"all" overload.
type SendTarget struct {
	Kind        SendTargetKind
	InterfaceID InterfaceID // valid when Kind == SendTargetInterface
}

// SendTargetKind enumerates the SendTarget variants.
type SendTargetKind int

const (
	// SendTargetNone means nothing is scheduled.
	SendTargetNone SendTargetKind = iota
	// SendTargetInterface means send on exactly InterfaceID.
	SendTargetInterface
	// SendTargetAll means send on every active interface.
	SendTargetAll
)
