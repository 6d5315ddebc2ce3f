// Package eligibility decides whether a participant's accrued fees may be compounded.
package eligibility

import (
	"time"

	"github.com/elys-network/autocompound/internal/types"
)

// Conditions are the inputs that come from outside the participant's own records.
type Conditions struct {
	Now         time.Time
	NetworkCost uint64
	CostKnown   bool // False when the cost oracle could not answer
}

// Reason names the first gate a participant failed.
type Reason string

const (
	Eligible          Reason = ""
	NotActive         Reason = "strategy_not_active"
	BelowMinimum      Reason = "pending_below_minimum"
	IntervalNotPassed Reason = "interval_not_elapsed"
	CostUnknown       Reason = "network_cost_unknown"
	AboveThreshold    Reason = "network_cost_above_threshold"
	AboveMaxCost      Reason = "network_cost_above_max"
)

// Evaluate runs every gate in order and returns the first that fails, or Eligible.
func Evaluate(st types.Strategy, fees types.FeeAccounting, cond Conditions, params types.Parameters) Reason {
	if r := evaluateLocal(st, fees, cond.Now, params); r != Eligible {
		return r
	}
	if params.CostGateEnabled {
		if !cond.CostKnown {
			return CostUnknown
		}
		if cond.NetworkCost > st.CostThreshold {
			return AboveThreshold
		}
		if cond.NetworkCost > params.MaxCost {
			return AboveMaxCost
		}
	}
	return Eligible
}

// NeedsCost reports whether the outcome of Evaluate depends on the network cost, that is the
// cost gate is enabled and every gate before it passes.
func NeedsCost(st types.Strategy, fees types.FeeAccounting, now time.Time, params types.Parameters) bool {
	return params.CostGateEnabled && evaluateLocal(st, fees, now, params) == Eligible
}

// evaluateLocal runs the gates that only look at the participant's own records.
func evaluateLocal(st types.Strategy, fees types.FeeAccounting, now time.Time, params types.Parameters) Reason {
	if !st.IsActive {
		return NotActive
	}
	if fees.PendingCompound.IsNil() || fees.PendingCompound.LT(params.MinCompoundAmount) {
		return BelowMinimum
	}
	if now.Sub(st.LastCompoundTime) < params.MinActionInterval {
		return IntervalNotPassed
	}
	return Eligible
}

// ShouldCompound reports whether every gate passes. It never fails.
func ShouldCompound(st types.Strategy, fees types.FeeAccounting, cond Conditions, params types.Parameters) bool {
	return Evaluate(st, fees, cond, params) == Eligible
}
