// Package core wires the authoritative-record, cache, and question engines
// together behind the two cooperative-scheduler entry points,
// Execute and Receive, and owns the busy/reentrancy invariant that makes
// callback-triggered list mutation safe.
package core

import (
	"github.com/joshuafuller/beacon/internal/clock"
	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/transport"
)

// Platform is everything the core needs from its host environment: time,
// the network, and the current interface topology. Production code wires
// this to internal/transport and internal/netiface; tests substitute fakes
// so the whole probe/announce/query lifecycle runs without a socket.
type Platform struct {
	Clock       clock.Clock
	Interfaces  InterfaceLocator
	TransportV4 transport.Transport
	TransportV6 transport.Transport
}

// InterfaceLocator is the subset of netiface.Set the core consults: which
// interfaces are active and whether any can carry a given address family.
// A narrow interface here keeps internal/core decoupled from how the
// interface set was populated (live discovery vs. a test fixture).
type InterfaceLocator interface {
	All() []InterfaceInfo
	CanCarry(needsIPv6Only bool) bool
}

// InterfaceInfo is the minimal per-interface fact the core acts on.
type InterfaceInfo struct {
	ID      coredata.InterfaceID
	HasIPv4 bool
	HasIPv6 bool
}
