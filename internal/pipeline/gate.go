package pipeline

import (
	"github.com/wonny/demandcast/backend/internal/contracts"
)

// GateDecision is the outcome of the sufficiency check for one entity
type GateDecision struct {
	Key       contracts.EntityKey
	Pass      bool
	Count     int // distinct observed days
	Span      int // calendar days between first and last observation
	Threshold int
	Reason    error // *contracts.InsufficientHistoryError when skipped
}

// Gate admits entities with at least Threshold distinct observed days.
// A skip is a normal outcome, never an error of the batch.
type Gate struct {
	threshold int
}

// NewGate creates a gate with the MIN_HISTORY_DAYS threshold
func NewGate(minHistoryDays int) *Gate {
	if minHistoryDays < 1 {
		minHistoryDays = 1
	}
	return &Gate{threshold: minHistoryDays}
}

// Threshold returns the configured minimum
func (g *Gate) Threshold() int {
	return g.threshold
}

// Check decides pass/skip for one entity
func (g *Gate) Check(key contracts.EntityKey, count, span int) GateDecision {
	d := GateDecision{
		Key:       key,
		Pass:      count >= g.threshold,
		Count:     count,
		Span:      span,
		Threshold: g.threshold,
	}
	if !d.Pass {
		d.Reason = &contracts.InsufficientHistoryError{Key: key, Count: count, Threshold: g.threshold}
	}
	return d
}

// CheckSeries checks a prepared (deduplicated) series
func (g *Gate) CheckSeries(s contracts.TimeSeries) GateDecision {
	return g.Check(s.Key, s.Len(), s.Span())
}

// Filter splits prepared series into eligible ones and skip decisions.
// Input order is preserved.
func (g *Gate) Filter(series []contracts.TimeSeries) ([]contracts.TimeSeries, []GateDecision) {
	eligible := make([]contracts.TimeSeries, 0, len(series))
	var skipped []GateDecision
	for _, s := range series {
		d := g.CheckSeries(s)
		if !d.Pass {
			skipped = append(skipped, d)
			continue
		}
		eligible = append(eligible, s)
	}
	return eligible, skipped
}
