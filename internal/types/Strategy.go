/*

This file contains the per-participant strategy record and the per-(participant, pool) fee accounting record.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
)

// Strategy is keyed by participant only. A participant holds at most one active strategy
// no matter how many pools they reference.
type Strategy struct {
	IsActive         bool      `json:"is_active"`
	Pool             PoolID    `json:"pool,omitempty"` // Pool referenced by the latest activation (informational)
	TotalDeposited   math.Int  `json:"total_deposited"`
	TotalCompounded  math.Int  `json:"total_compounded"`
	LastCompoundTime time.Time `json:"last_compound_time"`
	CostThreshold    uint64    `json:"cost_threshold"` // Highest network execution cost the participant accepts
	RiskLevel        uint8     `json:"risk_level"`     // 1-10, advisory only
	ActivatedAt      time.Time `json:"activated_at,omitempty"`
}

// NewStrategy returns the implicit zero record of a participant that has never opted in.
func NewStrategy() Strategy {
	return Strategy{
		TotalDeposited:  math.ZeroInt(),
		TotalCompounded: math.ZeroInt(),
	}
}

// FeeAccounting tracks fees attributed to one participant in one pool.
type FeeAccounting struct {
	TotalFeesEarned math.Int  `json:"total_fees_earned"`
	PendingCompound math.Int  `json:"pending_compound"` // Accrued but not yet reinvested, never above TotalFeesEarned
	LastFeeTime     time.Time `json:"last_fee_time,omitempty"`
}

func NewFeeAccounting() FeeAccounting {
	return FeeAccounting{
		TotalFeesEarned: math.ZeroInt(),
		PendingCompound: math.ZeroInt(),
	}
}
