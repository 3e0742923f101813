package contract

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/joshuafuller/beacon/internal/message"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/transport"
	"github.com/joshuafuller/beacon/responder"
)

// TestRFC6762_Announcing_TwoAnnouncements validates RFC 6762 §8.3 announcing
// compliance: the responder sends unsolicited responses after probing
// completes ("MUST send at least two unsolicited responses").
func TestRFC6762_Announcing_TwoAnnouncements(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping RFC contract test in short mode")
	}

	ctx := context.Background()
	mock := transport.NewMockTransport()
	r, err := responder.New(ctx, responder.WithTransports(mock, nil))
	if err != nil {
		t.Fatalf("responder.New() error = %v, want nil", err)
	}
	defer func() { _ = r.Close() }()

	service := &responder.Service{
		InstanceName: "RFC Test Service",
		ServiceType:  "_http._tcp.local",
		Port:         8080,
	}

	var announcementCount int
	r.OnAnnounce(func() { announcementCount++ })

	if err := r.Register(service); err != nil {
		t.Fatalf("Register() error = %v, want nil", err)
	}

	waitForCondition(t, 3*time.Second, func() bool { return announcementCount >= 2 })

	if announcementCount < 2 {
		t.Errorf("announcementCount = %d, want ≥2 per RFC 6762 §8.3", announcementCount)
	}
}

// TestRFC6762_Announcing_GrowingInterval validates RFC 6762 §8.3 announcement
// spacing: successive announcements start half a second apart and double after
// that (capped), so every gap after the first is at least as large as the one
// before it.
func TestRFC6762_Announcing_GrowingInterval(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping RFC contract test in short mode")
	}

	ctx := context.Background()
	mock := transport.NewMockTransport()
	r, err := responder.New(ctx, responder.WithTransports(mock, nil))
	if err != nil {
		t.Fatalf("responder.New() error = %v, want nil", err)
	}
	defer func() { _ = r.Close() }()

	service := &responder.Service{
		InstanceName: "RFC Test Service",
		ServiceType:  "_http._tcp.local",
		Port:         8080,
	}

	var announceTimes []time.Time
	r.OnAnnounce(func() { announceTimes = append(announceTimes, time.Now()) })

	if err := r.Register(service); err != nil {
		t.Fatalf("Register() error = %v, want nil", err)
	}

	waitForCondition(t, 5*time.Second, func() bool { return len(announceTimes) >= 3 })

	if len(announceTimes) < 3 {
		t.Fatalf("expected at least 3 announcements, got %d", len(announceTimes))
	}

	first := announceTimes[1].Sub(announceTimes[0])
	second := announceTimes[2].Sub(announceTimes[1])
	if second+50*time.Millisecond < first {
		t.Errorf("announcement interval shrank: first=%v second=%v, want non-decreasing per RFC 6762 §8.3", first, second)
	}
}

// firstAnnouncement registers service on r with a mock transport, waits for
// the first announcement, and returns the sent answer records.
func firstAnnouncement(t *testing.T, mock *transport.MockTransport, r *responder.Responder, service *responder.Service) []message.Answer {
	t.Helper()

	var announced bool
	r.OnAnnounce(func() { announced = true })

	if err := r.Register(service); err != nil {
		t.Fatalf("Register() error = %v, want nil", err)
	}
	waitForCondition(t, 2*time.Second, func() bool { return announced })

	for _, call := range mock.SendCalls() {
		msg, err := message.ParseMessage(call.Packet)
		if err != nil {
			continue
		}
		if len(msg.Answers) == 0 {
			continue
		}
		flags := binary.BigEndian.Uint16(call.Packet[2:4])
		if (flags>>15)&0x01 == 1 { // QR=1: this is a response, not a probe query
			return msg.Answers
		}
	}
	t.Fatal("no announcement packet captured")
	return nil
}

// TestRFC6762_Announcing_ResponseFormat validates announcement message format
// per RFC 6762 §8.3: QR=1, AA=1, RCODE=0.
func TestRFC6762_Announcing_ResponseFormat(t *testing.T) {
	ctx := context.Background()
	mock := transport.NewMockTransport()
	r, err := responder.New(ctx, responder.WithTransports(mock, nil))
	if err != nil {
		t.Fatalf("responder.New() error = %v, want nil", err)
	}
	defer func() { _ = r.Close() }()

	service := &responder.Service{InstanceName: "RFC Test Service", ServiceType: "_http._tcp.local", Port: 8080}
	firstAnnouncement(t, mock, r, service)

	var announcePacket []byte
	for _, call := range mock.SendCalls() {
		flags := binary.BigEndian.Uint16(call.Packet[2:4])
		if (flags>>15)&0x01 == 1 {
			announcePacket = call.Packet
			break
		}
	}
	if len(announcePacket) < 12 {
		t.Fatalf("announcement message too short: %d bytes, want ≥12 (DNS header)", len(announcePacket))
	}

	flags := binary.BigEndian.Uint16(announcePacket[2:4])

	if qr := (flags >> 15) & 0x01; qr != 1 {
		t.Errorf("announcement QR bit = %d, want 1 (response per RFC 6762 §18.2)", qr)
	}
	if aa := (flags >> 10) & 0x01; aa != 1 {
		t.Errorf("announcement AA bit = %d, want 1 (authoritative per RFC 6762 §18.4)", aa)
	}
	if opcode := (flags >> 11) & 0x0F; opcode != 0 {
		t.Errorf("announcement OPCODE = %d, want 0 (standard query per RFC 6762 §18.3)", opcode)
	}
	if rcode := flags & 0x0F; rcode != 0 {
		t.Errorf("announcement RCODE = %d, want 0 (no error per RFC 6762 §18.11)", rcode)
	}
}

// TestRFC6762_Announcing_AnswerSection validates announcement answer section
// per RFC 6763 §6: PTR, SRV, TXT, A records.
func TestRFC6762_Announcing_AnswerSection(t *testing.T) {
	ctx := context.Background()
	mock := transport.NewMockTransport()
	r, err := responder.New(ctx, responder.WithTransports(mock, nil))
	if err != nil {
		t.Fatalf("responder.New() error = %v, want nil", err)
	}
	defer func() { _ = r.Close() }()

	service := &responder.Service{InstanceName: "RFC Test Service", ServiceType: "_http._tcp.local", Port: 8080}
	answers := firstAnnouncement(t, mock, r, service)

	if len(answers) < 4 {
		t.Errorf("announcement ANCOUNT = %d, want ≥4 (PTR, SRV, TXT, A per RFC 6763 §6)", len(answers))
	}
}

// TestRFC6762_Announcing_CacheFlushBit validates the cache-flush bit per
// RFC 6762 §10.2: set on unique records (SRV, TXT, A), clear on shared PTR.
func TestRFC6762_Announcing_CacheFlushBit(t *testing.T) {
	ctx := context.Background()
	mock := transport.NewMockTransport()
	r, err := responder.New(ctx, responder.WithTransports(mock, nil))
	if err != nil {
		t.Fatalf("responder.New() error = %v, want nil", err)
	}
	defer func() { _ = r.Close() }()

	service := &responder.Service{InstanceName: "RFC Test Service", ServiceType: "_http._tcp.local", Port: 8080}
	answers := firstAnnouncement(t, mock, r, service)

	for _, a := range answers {
		cacheFlush := a.CLASS&0x8000 != 0
		switch protocol.RecordType(a.TYPE) {
		case protocol.RecordTypePTR:
			if cacheFlush {
				t.Errorf("PTR record has cache-flush=true, want false (shared record per RFC 6762 §10.2)")
			}
		case protocol.RecordTypeSRV, protocol.RecordTypeTXT, protocol.RecordTypeA:
			if !cacheFlush {
				t.Errorf("%v record has cache-flush=false, want true (unique record per RFC 6762 §10.2)", protocol.RecordType(a.TYPE))
			}
		}
	}
}

// TestRFC6762_Announcing_TTL validates TTL values per RFC 6762 §10: service
// records at 120s, hostname records at 4500s.
func TestRFC6762_Announcing_TTL(t *testing.T) {
	ctx := context.Background()
	mock := transport.NewMockTransport()
	r, err := responder.New(ctx, responder.WithTransports(mock, nil))
	if err != nil {
		t.Fatalf("responder.New() error = %v, want nil", err)
	}
	defer func() { _ = r.Close() }()

	service := &responder.Service{InstanceName: "RFC Test Service", ServiceType: "_http._tcp.local", Port: 8080}
	answers := firstAnnouncement(t, mock, r, service)

	for _, a := range answers {
		switch protocol.RecordType(a.TYPE) {
		case protocol.RecordTypePTR, protocol.RecordTypeSRV, protocol.RecordTypeTXT:
			if a.TTL != protocol.TTLService {
				t.Errorf("%v record TTL = %d, want %d (service TTL per RFC 6762 §10)", protocol.RecordType(a.TYPE), a.TTL, uint32(protocol.TTLService))
			}
		case protocol.RecordTypeA:
			if a.TTL != protocol.TTLHostname {
				t.Errorf("%v record TTL = %d, want %d (hostname TTL per RFC 6762 §10)", protocol.RecordType(a.TYPE), a.TTL, uint32(protocol.TTLHostname))
			}
		}
	}
}

// TestRFC6762_Announcing_MulticastAddress validates the announcement
// destination per RFC 6762 §5: IPv4 multicast 224.0.0.251:5353.
func TestRFC6762_Announcing_MulticastAddress(t *testing.T) {
	ctx := context.Background()
	mock := transport.NewMockTransport()
	r, err := responder.New(ctx, responder.WithTransports(mock, nil))
	if err != nil {
		t.Fatalf("responder.New() error = %v, want nil", err)
	}
	defer func() { _ = r.Close() }()

	service := &responder.Service{InstanceName: "RFC Test Service", ServiceType: "_http._tcp.local", Port: 8080}

	var announced bool
	r.OnAnnounce(func() { announced = true })
	if err := r.Register(service); err != nil {
		t.Fatalf("Register() error = %v, want nil", err)
	}
	waitForCondition(t, 2*time.Second, func() bool { return announced })

	calls := mock.SendCalls()
	if len(calls) == 0 {
		t.Fatal("no packets sent")
	}

	wantAddr := "224.0.0.251:5353"
	if calls[0].Dest.String() != wantAddr {
		t.Errorf("packet dest = %q, want %q (RFC 6762 §5)", calls[0].Dest.String(), wantAddr)
	}
}
