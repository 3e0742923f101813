package transport

import (
	"context"
	"net"
)

// Transport sends and receives raw mDNS packets on one address family.
// UDPv4Transport, UDPv6Transport, and MockTransport all implement it; the
// responder, querier, and internal/core packages depend only on this
// interface so tests can swap in MockTransport without touching a socket.
type Transport interface {
	// Send transmits packet to dest, respecting ctx cancellation.
	Send(ctx context.Context, packet []byte, dest net.Addr) error
	// Receive blocks for the next inbound packet, respecting ctx
	// cancellation and deadline.
	Receive(ctx context.Context) ([]byte, net.Addr, error)
	// Close releases the underlying socket.
	Close() error
}
