package core

import "github.com/joshuafuller/beacon/internal/netiface"

// NetifaceLocator adapts a *netiface.Set to the InterfaceLocator interface,
// translating its richer Info records down to the fields the core acts on.
type NetifaceLocator struct {
	Set *netiface.Set
}

// All implements InterfaceLocator.
func (n NetifaceLocator) All() []InterfaceInfo {
	infos := n.Set.All()
	out := make([]InterfaceInfo, len(infos))
	for i, info := range infos {
		out[i] = InterfaceInfo{ID: info.ID, HasIPv4: info.HasIPv4, HasIPv6: info.HasIPv6}
	}
	return out
}

// CanCarry implements InterfaceLocator.
func (n NetifaceLocator) CanCarry(needsIPv6Only bool) bool {
	return n.Set.CanCarry(needsIPv6Only)
}
