// Package question implements the question engine: the active question
// list, its exponential-backoff query schedule, duplicate coalescing, and
// the browse-threshold and suppress-if-unusable behaviors.
package question

import (
	"time"

	"github.com/joshuafuller/beacon/internal/clock"
	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// burstAnswerThreshold, burstAnswerWindow, and burstIntervalFloor gate
// RecordAnswer's backoff reset to a genuine burst of answers (spec.md
// §4.3/§8's boundary condition), rather than firing on every single answer.
const (
	burstAnswerThreshold = 10
	burstAnswerWindow    = 1 * time.Second
	burstIntervalFloor   = protocol.InitialQuestionInterval * time.Duration(protocol.QuestionIntervalStep*protocol.QuestionIntervalStep*protocol.QuestionIntervalStep)
)

// Engine owns the list of tracked questions and advances their query
// schedule. Like authstore.Engine it never transmits: Tick marks due
// questions with SendQNow and the caller builds the actual packet via the
// assembler.
type Engine struct {
	clk       clock.Clock
	questions []*coredata.Question

	// CurrentQuestion is the walk cursor exposed to callback-triggered
	// Stop. Stopping the question it points at sets it to nil; it is not
	// moved on to the next question.
	CurrentQuestion *coredata.Question
	// RestartQuestion is not read or set by the engine: Tick always walks
	// the question list from the beginning.
	RestartQuestion *coredata.Question

	// OnUnanswered, if set, is called from Tick just before a question is
	// re-sent whose previous query drew zero answers — the negative-caching
	// trigger in spec.md §4.3 ("if no answer arrives after the final
	// query..."). It is never called for a question's very first query.
	OnUnanswered func(q *coredata.Question, now time.Time)
}

// New creates an empty question engine.
func New(clk clock.Clock) *Engine {
	return &Engine{clk: clk}
}

// Start begins tracking a new question, coalescing it onto an existing
// canonical question with an identical MatchesKey if one is already active.
func (e *Engine) Start(q *coredata.Question, now time.Time) {
	if dup := e.findDuplicate(q); dup != nil {
		q.DuplicateOf = dup
		q.ThisQInterval = dup.ThisQInterval
		e.questions = append(e.questions, q)
		return
	}
	q.ThisQInterval = protocol.InitialQuestionInterval
	q.LastQTime = time.Time{}
	q.RequestUnicast = true
	e.questions = append(e.questions, q)
}

// findDuplicate returns the canonical (non-duplicate) question matching q's
// wire-relevant fields, implementing FindDuplicateQuestion.
func (e *Engine) findDuplicate(q *coredata.Question) *coredata.Question {
	for _, existing := range e.questions {
		if existing.DuplicateOf != nil {
			continue
		}
		if existing.MatchesKey(q) {
			return existing
		}
	}
	return nil
}

// Stop tears down q: if q was canonical and other questions duplicated it,
// the first duplicate is promoted to canonical so transmission continues
// on their behalf.
func (e *Engine) Stop(q *coredata.Question) {
	q.ThisQInterval = -1
	for i, existing := range e.questions {
		if existing == q {
			e.questions = append(e.questions[:i:i], e.questions[i+1:]...)
			break
		}
	}
	e.promoteDuplicate(q)
	if e.CurrentQuestion == q {
		e.CurrentQuestion = nil
	}
}

func (e *Engine) promoteDuplicate(removed *coredata.Question) {
	for _, other := range e.questions {
		if other.DuplicateOf == removed {
			other.DuplicateOf = nil
			for _, rest := range e.questions {
				if rest != other && rest.DuplicateOf == removed {
					rest.DuplicateOf = other
				}
			}
			return
		}
	}
}

// All returns every tracked question, canonical and duplicate alike.
func (e *Engine) All() []*coredata.Question {
	return e.questions
}

// Canonical returns only the transmitting (non-duplicate) questions.
func (e *Engine) Canonical() []*coredata.Question {
	var out []*coredata.Question
	for _, q := range e.questions {
		if q.DuplicateOf == nil {
			out = append(out, q)
		}
	}
	return out
}

// Tick advances every canonical, active question whose schedule has come
// due, marking it to send and computing its next interval, and returns the
// earliest deadline across the whole list.
func (e *Engine) Tick(now time.Time, canCarry func(q *coredata.Question) bool) time.Time {
	var next time.Time
	for _, q := range e.Canonical() {
		if !q.IsActive() {
			continue
		}
		if canCarry != nil && q.SuppressIfUnusable && !canCarry(q) {
			continue
		}
		if q.BrowseThreshold > 0 && q.CurrentAnswers >= q.BrowseThreshold {
			// Parked at the slow poll rate until the answer count drops.
			next = clock.Deadline(next, q.LastQTime.Add(protocol.MaxQuestionInterval))
			continue
		}

		firstQuery := q.LastQTime.IsZero()
		due := q.LastQTime.Add(q.ThisQInterval)
		if firstQuery {
			due = now
		}
		if now.Before(due) {
			next = clock.Deadline(next, due)
			continue
		}

		if !firstQuery && q.CurrentAnswers == 0 && e.OnUnanswered != nil {
			e.OnUnanswered(q, now)
		}
		e.sendQuery(q, now)
		next = clock.Deadline(next, q.LastQTime.Add(q.ThisQInterval))
	}
	return next
}

func (e *Engine) sendQuery(q *coredata.Question, now time.Time) {
	q.SendQNow = coredata.SendTarget{Kind: coredata.SendTargetAll}
	q.LastQTime = now
	q.LastQTxTime = now
	q.RecentAnswerPkts = 0 // burst accounting restarts with each transmit

	// RFC 6762 §5.2: each successive query's interval grows by
	// QuestionIntervalStep over the last, capped at MaxQuestionInterval.
	q.ThisQInterval *= protocol.QuestionIntervalStep
	if q.ThisQInterval > protocol.MaxQuestionInterval {
		q.ThisQInterval = protocol.MaxQuestionInterval
	}
}

// Consume clears the transient SendQNow flag once the caller has built and
// transmitted a packet containing q.
func (e *Engine) Consume(q *coredata.Question) {
	q.SendQNow = coredata.SendTarget{}
}

// RecordAnswer updates a question's answer-accounting fields when a
// matching record arrives, driving the browse-threshold behavior and, per
// spec.md's boundary condition, resetting backoff to the initial interval
// when a genuine burst arrives: at least burstAnswerThreshold answers
// within burstAnswerWindow of the last transmit, and only once the
// interval has backed off to burstIntervalFloor or beyond. A single
// answer, or a trickle spread across more than a second, does not reset
// anything — only a flood right after a query goes out does, and only
// once per flood (RecentAnswerPkts clears on the reset, so it takes a
// fresh ten answers to trigger again).
func (e *Engine) RecordAnswer(q *coredata.Question, unique bool, now time.Time) {
	q.CurrentAnswers++
	if unique {
		q.UniqueAnswers++
	}
	q.RecentAnswerPkts++

	isBurst := q.RecentAnswerPkts >= burstAnswerThreshold &&
		q.ThisQInterval >= burstIntervalFloor &&
		!q.LastQTxTime.IsZero() && now.Sub(q.LastQTxTime) <= burstAnswerWindow
	if isBurst {
		q.ThisQInterval = protocol.InitialQuestionInterval
		q.RecentAnswerPkts = 0
	}
}

// ChaseCNAME follows a CNAME answer that resolves q's name to target: it
// stops q and restarts an equivalent question for target instead, per
// spec.md §4.3's CNAME-chasing boundary. It returns the replacement
// question, or nil if the chase was aborted because target is
// self-referential (equal to q's own name) or q has already chased
// protocol.MaxCNAMEReferrals times.
func (e *Engine) ChaseCNAME(q *coredata.Question, target coredata.Name, now time.Time) *coredata.Question {
	if target.Equal(q.QName) || q.CNAMEReferrals >= protocol.MaxCNAMEReferrals {
		return nil
	}

	next := &coredata.Question{
		QName:              target,
		QType:              q.QType,
		QClass:             q.QClass,
		Interface:          q.Interface,
		TargetQID:          q.TargetQID,
		RequestUnicast:     q.RequestUnicast,
		SuppressIfUnusable: q.SuppressIfUnusable,
		BrowseThreshold:    q.BrowseThreshold,
		LongLived:          q.LongLived,
		CNAMEReferrals:     q.CNAMEReferrals + 1,
	}

	e.Stop(q)
	e.Start(next, now)
	return next
}

// RecordRemoval decrements the answer count when a cached answer expires or
// is withdrawn, letting a parked browse-threshold question resume polling.
func (e *Engine) RecordRemoval(q *coredata.Question) {
	if q.CurrentAnswers > 0 {
		q.CurrentAnswers--
	}
}

// Reactivate wakes questions on an interface that just came back up,
// restarting their schedule at the initial interval — RFC 6762's
// reactivation-on-link-change behavior.
func (e *Engine) Reactivate(iface coredata.InterfaceID, now time.Time) {
	for _, q := range e.Canonical() {
		if q.Interface != iface && q.Interface != coredata.InterfaceAny {
			continue
		}
		q.ThisQInterval = protocol.InitialQuestionInterval
		q.LastQTime = time.Time{}
		q.RequestUnicast = true
	}
}
