package transport

import (
	"context"
	"net"
	"sync"
)

// MockTransport is a test double for Transport interface.
//
// This mock records all Send() calls for verification in tests,
// enabling unit testing of querier without real network sockets.
//
// T025: For testing, make T012 and T017 pass
type MockTransport struct {
	mu        sync.Mutex
	sendCalls []SendCall
	closed    bool
	inbound   chan inboundPacket
}

type inboundPacket struct {
	packet []byte
	src    net.Addr
}

// SendCall records a single Send() invocation.
type SendCall struct {
	Packet []byte
	Dest   net.Addr
}

// NewMockTransport creates a new mock transport for testing.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		sendCalls: make([]SendCall, 0),
		inbound:   make(chan inboundPacket, 16),
	}
}

// Send records the call for verification.
//
// T017: MockTransport.Send() records calls for verification
func (m *MockTransport) Send(_ context.Context, packet []byte, dest net.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Record the call
	m.sendCalls = append(m.sendCalls, SendCall{
		Packet: append([]byte(nil), packet...), // Copy to avoid aliasing
		Dest:   dest,
	})

	return nil
}

// Receive blocks until a packet queued by Inject arrives or ctx is canceled,
// whichever happens first. Close does not unblock it.
func (m *MockTransport) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	select {
	case pkt, ok := <-m.inbound:
		if !ok {
			return nil, nil, nil
		}
		return pkt.packet, pkt.src, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Inject queues packet as if it had arrived from src, for tests that need a
// responder or querier to observe an inbound packet (e.g. a conflicting
// answer during probing) without a real socket.
func (m *MockTransport) Inject(packet []byte, src net.Addr) {
	m.inbound <- inboundPacket{packet: append([]byte(nil), packet...), src: src}
}

// Close marks the transport as closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// SendCalls returns all recorded Send() calls.
//
// This allows tests to verify:
// - Number of Send() calls
// - Packet contents
// - Destination addresses
//
// T017: Verification helper for tests
func (m *MockTransport) SendCalls() []SendCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Return a copy to avoid race conditions
	calls := make([]SendCall, len(m.sendCalls))
	copy(calls, m.sendCalls)
	return calls
}
