package cache

import (
	"time"

	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// TargetResolver extracts the antecedent name a record's rdata points at
// (an SRV target host, a CNAME target, a PTR target), if any. Rdata parsing
// lives in internal/message, so internal/core supplies the resolver rather
// than this package depending on the codec.
type TargetResolver func(rec *coredata.CacheRecord) (coredata.Name, bool)

// Reconfirm marks rec as needing an immediate liveness check — typically
// triggered by a transport-layer "destination unreachable" signal or an
// explicit client Reconfirm call — by zeroing its unanswered-query count
// and scheduling a query on the next tick, rate-limited to once per
// protocol.ReconfirmMinInterval so a flapping link can't storm the network.
func (s *Store) Reconfirm(rec *coredata.CacheRecord, now time.Time) bool {
	if !s.lastReconfirm[rec].IsZero() && now.Sub(s.lastReconfirm[rec]) < protocol.ReconfirmMinInterval {
		return false
	}
	s.markLastReconfirm(rec, now)
	rec.UnansweredQueries = 0
	rec.NextRequiredQuery = now
	return true
}

func (s *Store) markLastReconfirm(rec *coredata.CacheRecord, now time.Time) {
	if s.lastReconfirm == nil {
		s.lastReconfirm = make(map[*coredata.CacheRecord]time.Time)
	}
	s.lastReconfirm[rec] = now
}

// ReconfirmAntecedents walks the chain of records rec's rdata depends on
// (e.g. an SRV record's target host address, a PTR's service instance) up
// to protocol.MaxGetRRDomainNameTargetDepth hops, reconfirming each one
// found in the cache. It stops early on a cycle or once resolve fails to
// find a further link.
func (s *Store) ReconfirmAntecedents(rec *coredata.CacheRecord, now time.Time, resolve TargetResolver) []*coredata.CacheRecord {
	var reconfirmed []*coredata.CacheRecord
	seen := map[*coredata.CacheRecord]bool{rec: true}
	cur := rec

	for depth := 0; depth < protocol.MaxGetRRDomainNameTargetDepth; depth++ {
		targetName, ok := resolve(cur)
		if !ok {
			break
		}
		g := s.group(targetName)
		if g == nil {
			break
		}
		var next *coredata.CacheRecord
		for _, candidate := range g.Records {
			if !seen[candidate] {
				next = candidate
				break
			}
		}
		if next == nil {
			break
		}
		seen[next] = true
		if s.Reconfirm(next, now) {
			reconfirmed = append(reconfirmed, next)
		}
		cur = next
	}
	return reconfirmed
}
