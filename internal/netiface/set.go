// Package netiface tracks the set of active link interfaces the core is
// running on: per-interface IPv4/IPv6 availability, MAC, and
// "first representative" status, adapted from internal/network's
// DefaultInterfaces() filtering.
package netiface

import (
	"net"
	"sync"

	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/network"
)

// Info describes one active link interface.
type Info struct {
	ID              coredata.InterfaceID
	Name            string
	HardwareAddr    net.HardwareAddr
	HasIPv4         bool
	HasIPv6         bool
	FirstRepresentative bool // first interface enumerated for this link
}

// Set is the table of active interfaces. RegisterInterface/DeregisterInterface
// notifications (with a flapping flag) drive question-engine reactivation
// per the Activation/reactivation rules.
type Set struct {
	mu     sync.RWMutex
	byID   map[coredata.InterfaceID]*Info
	nextID coredata.InterfaceID
}

// New creates an empty interface set.
func New() *Set {
	return &Set{byID: make(map[coredata.InterfaceID]*Info), nextID: 1}
}

// Discover populates the set from the host's current interfaces, using the
// same filtering DefaultInterfaces() applies (up, multicast-capable,
// non-loopback, non-VPN, non-Docker).
func (s *Set) Discover() error {
	ifaces, err := network.DefaultInterfaces()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seenLink := make(map[string]bool)
	for _, iface := range ifaces {
		hasV4, hasV6 := addrFamilies(iface)
		id := s.nextID
		s.nextID++

		// The first interface observed for a given hardware address is the
		// one that sends on behalf of InterfaceAny-scoped records, so
		// multi-homed hosts don't double up multicast traffic.
		first := !seenLink[iface.HardwareAddr.String()]
		seenLink[iface.HardwareAddr.String()] = true

		s.byID[id] = &Info{
			ID:                  id,
			Name:                iface.Name,
			HardwareAddr:        iface.HardwareAddr,
			HasIPv4:             hasV4,
			HasIPv6:             hasV6,
			FirstRepresentative: first,
		}
	}
	return nil
}

func addrFamilies(iface net.Interface) (hasV4, hasV6 bool) {
	addrs, err := iface.Addrs()
	if err != nil {
		return false, false
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ipnet.IP.To4() != nil {
			hasV4 = true
		} else {
			hasV6 = true
		}
	}
	return hasV4, hasV6
}

// RegisterInterface adds or updates one interface (used both by Discover
// and by platform up/down notifications).
func (s *Set) RegisterInterface(info Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[info.ID] = &info
}

// DeregisterInterface removes an interface. flapping is informational only
// at this layer; the question engine is what reacts to it.
func (s *Set) DeregisterInterface(id coredata.InterfaceID, _ bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// Get returns the Info for id, if the interface is currently active.
func (s *Set) Get(id coredata.InterfaceID) (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.byID[id]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// All returns a snapshot of every currently active interface.
func (s *Set) All() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.byID))
	for _, info := range s.byID {
		out = append(out, *info)
	}
	return out
}

// CanCarry reports whether at least one active interface supports qtype
// (AAAA needs IPv6, A/PTR/SRV/TXT need IPv4 or IPv6). Used by the question
// engine's "suppress-if-unusable" behavior.
func (s *Set) CanCarry(needsIPv6Only bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, info := range s.byID {
		if needsIPv6Only && info.HasIPv6 {
			return true
		}
		if !needsIPv6Only && (info.HasIPv4 || info.HasIPv6) {
			return true
		}
	}
	return false
}
