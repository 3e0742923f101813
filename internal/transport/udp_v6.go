package transport

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/ipv6"

	"github.com/joshuafuller/beacon/internal/errors"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// UDPv6Transport implements Transport for IPv6 mDNS multicast, mirroring
// UDPv4Transport's lifecycle but wrapped in golang.org/x/net/ipv6 instead of
// ipv4, since IPv6 multicast group membership and hop-limit control go
// through a distinct PacketConn type.
type UDPv6Transport struct {
	conn net.PacketConn
	pc   *ipv6.PacketConn
}

var _ Transport = (*UDPv6Transport)(nil)

// NewUDPv6Transport creates a UDP multicast transport bound to mDNS port
// 5353 on ff02::fb, joined on every up, multicast-capable interface.
//
// RFC 6762 §5: the IPv6 mDNS link-local multicast group is ff02::fb.
// RFC 6762 §11: mDNS packets MUST be sent with hop limit 255.
func NewUDPv6Transport() (*UDPv6Transport, error) {
	lc := net.ListenConfig{Control: PlatformControl}
	conn, err := lc.ListenPacket(context.Background(), "udp6", fmt.Sprintf(":%d", protocol.Port))
	if err != nil {
		return nil, &errors.NetworkError{
			Operation: "create socket",
			Err:       err,
			Details:   fmt.Sprintf("failed to bind udp6 port %d", protocol.Port),
		}
	}

	pc := ipv6.NewPacketConn(conn)
	group := net.ParseIP(protocol.MulticastAddrIPv6)

	ifaces, err := net.Interfaces()
	if err != nil {
		_ = conn.Close()
		return nil, &errors.NetworkError{Operation: "enumerate interfaces", Err: err}
	}

	joined := 0
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		ifaceCopy := iface
		if err := pc.JoinGroup(&ifaceCopy, &net.UDPAddr{IP: group}); err != nil {
			continue
		}
		joined++
	}
	if joined == 0 {
		_ = conn.Close()
		return nil, &errors.NetworkError{
			Operation: "join multicast group",
			Err:       fmt.Errorf("no interfaces available"),
			Details:   "failed to join ff02::fb on any interface",
		}
	}

	if err := pc.SetMulticastHopLimit(255); err != nil {
		_ = conn.Close()
		return nil, &errors.NetworkError{Operation: "set hop limit", Err: err}
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		_ = conn.Close()
		return nil, &errors.NetworkError{Operation: "set multicast loopback", Err: err}
	}

	return &UDPv6Transport{conn: conn, pc: pc}, nil
}

// Send transmits packet to dest (the ff02::fb:5353 multicast address for
// routine mDNS traffic, or a specific unicast address for a legacy reply).
func (t *UDPv6Transport) Send(ctx context.Context, packet []byte, dest net.Addr) error {
	select {
	case <-ctx.Done():
		return &errors.NetworkError{Operation: "send", Err: ctx.Err()}
	default:
	}

	n, err := t.conn.WriteTo(packet, dest)
	if err != nil {
		return &errors.NetworkError{Operation: "send", Err: err, Details: fmt.Sprintf("to %s", dest)}
	}
	if n != len(packet) {
		return &errors.NetworkError{Operation: "send", Err: fmt.Errorf("partial write: %d/%d bytes", n, len(packet))}
	}
	return nil
}

// Receive waits for an incoming packet, respecting context cancellation.
func (t *UDPv6Transport) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	select {
	case <-ctx.Done():
		return nil, nil, &errors.NetworkError{Operation: "receive", Err: ctx.Err()}
	default:
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, nil, &errors.NetworkError{Operation: "set read deadline", Err: err}
		}
	}

	bufPtr := GetBuffer()
	defer PutBuffer(bufPtr)
	buffer := *bufPtr

	n, src, err := t.conn.ReadFrom(buffer)
	if err != nil {
		return nil, nil, &errors.NetworkError{Operation: "receive", Err: err}
	}
	result := make([]byte, n)
	copy(result, buffer[:n])
	return result, src, nil
}

// Close releases the underlying socket.
func (t *UDPv6Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	if err := t.conn.Close(); err != nil {
		return &errors.NetworkError{Operation: "close socket", Err: err}
	}
	return nil
}
