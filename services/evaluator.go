package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/cppla/marketcore/models"
)

var hundred = decimal.NewFromInt(100)

// ProgressSnapshot is a freshly computed view of a user's progress towards one achievement.
// Percent is Current/Target*100 clamped to [0, 100] and rounded half away from
// zero to two decimals, so 1 of 3 reads 33.33; it is 100 when Target <= 0. Met is
// decided on the unrounded values.
type ProgressSnapshot struct {
	Current decimal.Decimal `json:"current"`
	Target  decimal.Decimal `json:"target"`
	Met     bool            `json:"met"`
	Percent float64         `json:"percent"`
}

// Evaluator computes progress snapshots from live aggregates. It has no side effects.
type Evaluator struct {
	src MetricSource
}

// NewEvaluator creates an evaluator reading from src.
func NewEvaluator(src MetricSource) *Evaluator {
	return &Evaluator{src: src}
}

// Evaluate measures userID against the achievement's requirement. A malformed
// descriptor fails with ErrUnknownMetric or ErrInvalidRequirement and must be
// treated as "do not unlock".
func (e *Evaluator) Evaluate(ctx context.Context, userID uint, a *models.Achievement) (ProgressSnapshot, error) {
	req := a.Requirement()
	if err := ValidateRequirement(req); err != nil {
		return ProgressSnapshot{}, err
	}
	current, err := metricTable[req.Metric].eval(ctx, e.src, userID, req.Filters)
	if err != nil {
		return ProgressSnapshot{}, err
	}
	return snapshot(current, req), nil
}

func snapshot(current decimal.Decimal, req models.Requirement) ProgressSnapshot {
	target := req.Threshold
	var met bool
	switch req.Op() {
	case models.OpGT:
		met = current.GreaterThan(target)
	case models.OpEQ:
		met = current.Equal(target)
	default:
		met = current.GreaterThanOrEqual(target)
	}

	percent := hundred
	if target.IsPositive() {
		percent = current.Div(target).Mul(hundred)
		if percent.GreaterThan(hundred) {
			percent = hundred
		}
		if percent.IsNegative() {
			percent = decimal.Zero
		}
	}
	return ProgressSnapshot{
		Current: current,
		Target:  target,
		Met:     met,
		Percent: percent.Round(2).InexactFloat64(),
	}
}
