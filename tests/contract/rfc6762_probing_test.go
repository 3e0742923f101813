package contract

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/joshuafuller/beacon/internal/transport"
	"github.com/joshuafuller/beacon/responder"
)

// TestRFC6762_Probing_ThreeQueries validates RFC 6762 §8.1 probing compliance:
// a new unique record gets exactly 3 probe queries before it is considered
// verified (RFC 6762 §8.1 requires at least 2; Beacon sends 3).
func TestRFC6762_Probing_ThreeQueries(t *testing.T) {
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

	var probeCount int
	r.OnProbe(func() { probeCount++ })

	if err := r.Register(service); err != nil {
		t.Fatalf("Register() error = %v, want nil", err)
	}

	waitForCondition(t, 2*time.Second, func() bool { return probeCount >= 3 })

	if probeCount < 2 {
		t.Errorf("probeCount = %d, want ≥2 per RFC 6762 §8.1", probeCount)
	}
	if probeCount != 3 {
		t.Errorf("probeCount = %d, want 3 (Beacon implementation)", probeCount)
	}
}

// TestRFC6762_Probing_250msInterval validates probe spacing per RFC 6762 §8.1.
func TestRFC6762_Probing_250msInterval(t *testing.T) {
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

	var probeTimes []time.Time
	r.OnProbe(func() { probeTimes = append(probeTimes, time.Now()) })

	if err := r.Register(service); err != nil {
		t.Fatalf("Register() error = %v, want nil", err)
	}

	waitForCondition(t, 2*time.Second, func() bool { return len(probeTimes) >= 3 })

	checkIntervals(t, probeTimes, 250*time.Millisecond, 100*time.Millisecond, "RFC 6762 §8.1")
}

// TestRFC6762_Probing_QueryFormat validates probe message format per RFC 6762 §8.1:
// probes are queries (QR=0), not responses.
func TestRFC6762_Probing_QueryFormat(t *testing.T) {
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

	var probed bool
	r.OnProbe(func() { probed = true })

	if err := r.Register(service); err != nil {
		t.Fatalf("Register() error = %v, want nil", err)
	}

	waitForCondition(t, 2*time.Second, func() bool { return probed })

	calls := mock.SendCalls()
	if len(calls) == 0 {
		t.Fatalf("no packets sent")
	}

	probeMessage := calls[0].Packet
	if len(probeMessage) < 12 {
		t.Fatalf("probe message too short: %d bytes, want ≥12 (DNS header)", len(probeMessage))
	}

	flags := binary.BigEndian.Uint16(probeMessage[2:4])

	if qr := (flags >> 15) & 0x01; qr != 0 {
		t.Errorf("probe QR bit = %d, want 0 (query per RFC 6762 §18.2)", qr)
	}
	if opcode := (flags >> 11) & 0x0F; opcode != 0 {
		t.Errorf("probe OPCODE = %d, want 0 (standard query per RFC 6762 §18.3)", opcode)
	}
}

// TestRFC6762_Probing_TieBreaking validates that Register succeeds and the
// service becomes discoverable once probing completes, per RFC 6762 §8.2.1's
// tie-break outcome when our data wins (exercised here as the ordinary,
// no-conflict path; conflict-handling itself is covered by
// tests/integration/conflict_resolution_test.go).
func TestRFC6762_Probing_TieBreaking(t *testing.T) {
	ctx := context.Background()
	mock := transport.NewMockTransport()
	r, err := responder.New(ctx, responder.WithTransports(mock, nil))
	if err != nil {
		t.Fatalf("responder.New() error = %v, want nil", err)
	}
	defer func() { _ = r.Close() }()

	service := &responder.Service{
		InstanceName: "Tie Break Test",
		ServiceType:  "_http._tcp.local",
		Port:         8080,
	}

	if err := r.Register(service); err != nil {
		t.Fatalf("Register() error = %v, want nil", err)
	}

	registered, exists := r.GetService(service.InstanceName)
	if !exists {
		t.Fatal("service not registered")
	}
	if registered == nil {
		t.Error("registered service is nil")
	}
}

// waitForCondition polls cond until it returns true or timeout elapses.
func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %v", timeout)
	}
}

// checkIntervals verifies consecutive timestamps fall within
// expectedInterval±tolerance, used by both probing and announcing timing tests.
func checkIntervals(t *testing.T, times []time.Time, expectedInterval, tolerance time.Duration, rfcSection string) {
	t.Helper()
	if len(times) < 2 {
		t.Fatalf("expected at least 2 timestamps, got %d", len(times))
	}

	minInterval := expectedInterval - tolerance
	maxInterval := expectedInterval + tolerance

	for i := 1; i < len(times); i++ {
		interval := times[i].Sub(times[i-1])
		if interval < minInterval || interval > maxInterval {
			t.Errorf("interval[%d] = %v, want ~%v (range: %v-%v) per %s",
				i, interval, expectedInterval, minInterval, maxInterval, rfcSection)
		}
	}
}
