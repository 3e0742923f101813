package responder

import (
	"github.com/joshuafuller/beacon/internal/clock"
	"github.com/joshuafuller/beacon/internal/transport"
)

// Option is a functional option for configuring a Responder.
//
// This pattern allows flexible configuration without breaking API
// compatibility as Responder grows new knobs.
type Option func(*Responder) error

// WithHostname sets a custom hostname for the responder's A/AAAA records.
//
// If not provided, the system hostname is used, suffixed with ".local".
//
// Example:
//
//	r, err := New(ctx, WithHostname("mydevice.local"))
func WithHostname(hostname string) Option {
	return func(r *Responder) error {
		r.hostname = hostname
		return nil
	}
}

// WithClock overrides the responder's time source. Production code never
// needs this; it exists so tests can drive probe/announce timing with a
// fake clock instead of waiting on wall-clock time.
func WithClock(c clock.Clock) Option {
	return func(r *Responder) error {
		r.clk = c
		return nil
	}
}

// WithTransports overrides the responder's IPv4 and IPv6 transports,
// bypassing socket creation entirely. v6 may be nil for an IPv4-only
// responder. Intended for tests; production callers should rely on New's
// default transport.NewUDPv4Transport/NewUDPv6Transport wiring.
func WithTransports(v4, v6 transport.Transport) Option {
	return func(r *Responder) error {
		r.transportV4 = v4
		r.transportV6 = v6
		return nil
	}
}

// WithConflictHandler registers a callback fired when a service exhausts
// maxRenameAttempts during the RFC 6762 §9 rename loop and has to give up
// registering entirely. The responder itself never logs; a host program
// wires this to its own logging or alerting.
func WithConflictHandler(fn func(serviceID string)) Option {
	return func(r *Responder) error {
		r.onConflict = fn
		return nil
	}
}
