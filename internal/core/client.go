package core

import (
	"time"

	"github.com/joshuafuller/beacon/internal/authstore"
	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/errors"
)

// RegisterRecord hands a freshly constructed AuthRecord to the probe/announce
// FSM. A shared record (unique=false) or a known unique record (known=true)
// skips probing and goes straight to the announce phase; a unique record
// that is not known starts probing, with its first probe due one probe
// interval after registration.
func (c *Core) RegisterRecord(rec *coredata.AuthRecord, unique bool, known bool, now time.Time) *errors.CoreError {
	c.enter()
	defer c.leave()

	if err := c.auth.Add(rec); err != nil {
		return err
	}

	switch {
	case known && unique:
		rec.RecordType = coredata.KnownUnique
		rec.AnnounceCount = 0
	case !unique:
		rec.RecordType = coredata.Shared
		rec.AnnounceCount = 0
	default:
		c.authFSM.StartProbing(rec, false)
	}
	return nil
}

// DeregisterRecord starts the goodbye sequence (or removes immediately, for
// a record that never finished probing) for rec.
func (c *Core) DeregisterRecord(rec *coredata.AuthRecord, rapid bool, now time.Time) {
	c.enter()
	defer c.leave()
	c.authFSM.Deregister(rec, rapid, now)
}

// UpdateRecordData replaces rec's rdata, consuming one update credit; if
// the credit bucket is exhausted the update is still applied but the
// announce interval backs off per spec.md's rate-limit behavior.
func (c *Core) UpdateRecordData(rec *coredata.AuthRecord, rdata []byte, ttl uint32, now time.Time) {
	c.enter()
	defer c.leave()

	authstore.RefillUpdateCredits(rec, now)
	authstore.SpendUpdateCredit(rec)
	rec.RData = rdata
	rec.TTL = ttl
	rec.RDataHash = coredata.HashBytes(rdata)
	rec.AnnounceCount = 0
	rec.ImmedAnswer = coredata.SendTarget{Kind: coredata.SendTargetAll}
}

// StartQuestion begins tracking q (coalescing onto a matching question if
// one already exists).
func (c *Core) StartQuestion(q *coredata.Question, now time.Time) {
	c.enter()
	defer c.leave()
	c.questions.Start(q, now)
}

// StopQuestion tears down q.
func (c *Core) StopQuestion(q *coredata.Question) {
	c.enter()
	defer c.leave()
	c.questions.Stop(q)
}

// Reconfirm forces an immediate liveness recheck of a cached record,
// typically triggered by a transport-layer unreachable signal.
func (c *Core) Reconfirm(rec *coredata.CacheRecord, now time.Time) bool {
	c.enter()
	defer c.leave()
	return c.cacheStore.Reconfirm(rec, now)
}

// Lookup returns cached records matching name, filtered by pred.
func (c *Core) Lookup(name coredata.Name, pred func(*coredata.CacheRecord) bool) []*coredata.CacheRecord {
	c.enter()
	defer c.leave()
	return c.cacheStore.Lookup(name, pred)
}

// Records returns every currently registered authoritative record.
func (c *Core) Records() []*coredata.AuthRecord {
	c.enter()
	defer c.leave()
	return c.auth.All()
}
