// Package coredata defines the shared record/question data model the core
// engine operates on: DomainName hashing, the common ResourceRecord shape,
// and the richer AuthRecord/CacheRecord/CacheGroup/Question types built on
// top of it, per the core's data model.
package coredata

import "strings"

// Name is a case-insensitive domain name with a precomputed hash, mirroring
// every stored name in the core (RFC 1035 names are compared
// case-insensitively; a 32-bit hash accompanies every stored copy so
// lookups and equality checks avoid repeated string comparison).
type Name struct {
	value string
	hash  uint32
}

// NewName builds a Name from its canonical string form (e.g. "foo.local.")
// and precomputes its hash.
func NewName(s string) Name {
	return Name{value: s, hash: HashName(s)}
}

// String returns the name's textual form exactly as given to NewName (case
// is preserved, not folded).
func (n Name) String() string { return n.value }

// Hash returns the precomputed 32-bit name hash.
func (n Name) Hash() uint32 { return n.hash }

// Equal reports whether two names are the same under case-insensitive DNS
// comparison. The hash is checked first so the common mismatch case never
// touches strings.EqualFold.
func (n Name) Equal(other Name) bool {
	if n.hash != other.hash {
		return false
	}
	return strings.EqualFold(n.value, other.value)
}

// IsZero reports whether this Name was never initialized via NewName.
func (n Name) IsZero() bool { return n.value == "" && n.hash == 0 }

// HashName computes a case-insensitive 32-bit FNV-1a hash of a domain name.
// Folding to lowercase before hashing is what lets Hash() stand in for a
// case-insensitive comparison.
func HashName(s string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619

	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		h ^= uint32(c)
		h *= prime32
	}
	return h
}

// HashBytes computes a 32-bit FNV-1a hash of an arbitrary byte slice (used
// for rdata hashing, where no case-folding applies).
func HashBytes(b []byte) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619

	h := uint32(offset32)
	for _, c := range b {
		h ^= uint32(c)
		h *= prime32
	}
	return h
}
