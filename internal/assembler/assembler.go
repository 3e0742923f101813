// Package assembler builds outbound mDNS packets — responses, queries, and
// probes — from the authoritative-record and question engines' transient
// per-tick state, capping each packet at the configured MTU and applying
// known-answer suppression and cache-flush-bit painting along the way.
package assembler

import (
	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/message"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// Assembler packs coredata records and questions into wire-format
// messages. It holds no state between calls; every Build call is a pure
// function of its arguments plus the configured packet budget.
type Assembler struct {
	// MaxSize bounds the packet this assembler ever produces, typically
	// protocol.NormalMaxDNSMessageData (1440) for routine traffic or
	// protocol.AbsoluteMaxDNSMessageData (9000) when an interface's MTU
	// supports it.
	MaxSize int
}

// New creates an Assembler with the default, conservative packet budget.
func New() *Assembler {
	return &Assembler{MaxSize: protocol.NormalMaxDNSMessageData}
}

// BuildResponse packs due authoritative records into a response message.
// Pass 1 includes every record whose ImmedAnswer flag selected target;
// pass 2 fills remaining space with their piggybacked additionals
// (Additional1/Additional2), per RFC 6762 §12. Records that didn't fit are
// returned in overflow so the caller can leave their flags set for the next
// tick instead of silently dropping them.
func (a *Assembler) BuildResponse(due []*coredata.AuthRecord, knownAnswers []*coredata.RecordData) (msg *message.DNSMessage, sent []*coredata.AuthRecord, overflow []*coredata.AuthRecord) {
	msg = &message.DNSMessage{
		Header: message.DNSHeader{Flags: protocol.FlagQR | protocol.FlagAA},
	}
	size := 12

	additionals := make(map[*coredata.AuthRecord]bool)

	for _, rec := range due {
		if suppressedByKnownAnswer(&rec.RecordData, knownAnswers) {
			continue
		}
		answer, err := toAnswer(&rec.RecordData)
		if err != nil {
			continue
		}
		cost := estimateSize(answer)
		if size+cost > a.MaxSize {
			overflow = append(overflow, rec)
			continue
		}
		msg.Answers = append(msg.Answers, answer)
		size += cost
		sent = append(sent, rec)

		if rec.Additional1 != nil {
			additionals[rec.Additional1] = true
		}
		if rec.Additional2 != nil {
			additionals[rec.Additional2] = true
		}
	}

	for rec := range additionals {
		answer, err := toAnswer(&rec.RecordData)
		if err != nil {
			continue
		}
		cost := estimateSize(answer)
		if size+cost > a.MaxSize {
			continue
		}
		msg.Additionals = append(msg.Additionals, answer)
		size += cost
	}

	msg.Header.ANCount = uint16(len(msg.Answers))
	msg.Header.ARCount = uint16(len(msg.Additionals))
	return msg, sent, overflow
}

// BuildProbe packs a probe packet: the probe questions (QType matching the
// records' own type, asked with QU unset so every prober sees the tie-break
// contest) plus an authority section carrying the proposed rdata, per
// RFC 6762 §8.1.
func (a *Assembler) BuildProbe(probing []*coredata.AuthRecord) *message.DNSMessage {
	msg := &message.DNSMessage{Header: message.DNSHeader{}}
	seen := make(map[string]bool)

	for _, rec := range probing {
		key := rec.Name.String() + "|" + rec.Type.String()
		if !seen[key] {
			seen[key] = true
			msg.Questions = append(msg.Questions, message.Question{
				QNAME:  rec.Name.String(),
				QTYPE:  uint16(rec.Type),
				QCLASS: uint16(rec.Class),
			})
		}
		answer, err := toAnswer(&rec.RecordData)
		if err != nil {
			continue
		}
		msg.Authorities = append(msg.Authorities, answer)
	}

	msg.Header.QDCount = uint16(len(msg.Questions))
	msg.Header.NSCount = uint16(len(msg.Authorities))
	return msg
}

// BuildQuery packs due questions into a query message, including a
// known-answer list per RFC 6762 §7.1 drawn from the cache records the
// caller passes in (already filtered to those with TTL > half-elapsed).
func (a *Assembler) BuildQuery(due []*coredata.Question, knownAnswers []*coredata.RecordData) *message.DNSMessage {
	msg := &message.DNSMessage{Header: message.DNSHeader{}}
	size := 12
	seen := make(map[string]bool)

	for _, q := range due {
		key := q.QName.String() + "|" + q.QType.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		qclass := uint16(q.QClass)
		if q.RequestUnicast {
			qclass |= protocol.UnicastResponseBit
		}
		question := message.Question{QNAME: q.QName.String(), QTYPE: uint16(q.QType), QCLASS: qclass}
		msg.Questions = append(msg.Questions, question)
		size += estimateNameSize(question.QNAME) + 4
	}

	for _, ka := range knownAnswers {
		answer, err := toAnswer(ka)
		if err != nil {
			continue
		}
		cost := estimateSize(answer)
		if size+cost > a.MaxSize {
			break
		}
		msg.Answers = append(msg.Answers, answer)
		size += cost
	}

	msg.Header.QDCount = uint16(len(msg.Questions))
	msg.Header.ANCount = uint16(len(msg.Answers))
	return msg
}

func toAnswer(r *coredata.RecordData) (message.Answer, error) {
	return message.Answer{
		NAME:     r.Name.String(),
		TYPE:     uint16(r.Type),
		CLASS:    classWithFlush(r),
		TTL:      r.TTL,
		RDLENGTH: uint16(len(r.RData)),
		RDATA:    r.RData,
	}, nil
}

func classWithFlush(r *coredata.RecordData) uint16 {
	c := uint16(r.Class)
	if r.CacheFlush {
		c |= protocol.CacheFlushBit
	}
	return c
}

// suppressedByKnownAnswer implements RFC 6762 §7.1 known-answer
// suppression: skip an answer the querier already has cached with at
// least half its TTL remaining and byte-identical rdata.
func suppressedByKnownAnswer(r *coredata.RecordData, known []*coredata.RecordData) bool {
	for _, ka := range known {
		if r.SameRRSet(ka) && r.SameRData(ka) && ka.TTL >= r.TTL/2 {
			return true
		}
	}
	return false
}

func estimateSize(a message.Answer) int {
	return estimateNameSize(a.NAME) + 2 + 2 + 4 + 2 + len(a.RDATA)
}

func estimateNameSize(name string) int {
	if name == "" || name == "." {
		return 1
	}
	return len(name) + 2
}
