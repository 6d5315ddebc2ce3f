/*

This is the pool-level aggregate record kept by the compounding engine for every pool it has seen.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
)

// PoolID identifies a pool (e.g. the hex-encoded pool key of the hosting venue).
type PoolID string

// Address identifies a participant.
type Address string

// FeeDenominator is the parts-per-million denominator for pool fee tiers.
const FeeDenominator = 1_000_000

type PoolAggregate struct {
	PoolID                 PoolID    `json:"pool_id"`
	FeeTier                uint32    `json:"fee_tier"` // Parts per million, e.g. 3000 = 0.30%
	PoolActive             bool      `json:"pool_active"`
	ActiveParticipantCount int       `json:"active_participant_count"`
	TotalVolume            math.Int  `json:"total_volume"`         // Sum of outgoing trade amounts seen by the accountant
	TotalFeesCollected     math.Int  `json:"total_fees_collected"` // Sum of fees credited to traders in this pool
	TotalCompounded        math.Int  `json:"total_compounded"`     // Sum of fees reinvested for this pool
	BatchesExecuted        uint64    `json:"batches_executed"`
	TotalGasSaved          uint64    `json:"total_gas_saved"` // Gas units saved by batching, summed across participants
	InitializedAt          time.Time `json:"initialized_at,omitempty"`
}

// NewPoolAggregate returns a zero-valued aggregate with non-nil amounts.
func NewPoolAggregate(id PoolID) PoolAggregate {
	return PoolAggregate{
		PoolID:             id,
		TotalVolume:        math.ZeroInt(),
		TotalFeesCollected: math.ZeroInt(),
		TotalCompounded:    math.ZeroInt(),
	}
}

// ParticipantPool keys records that belong to one participant in one pool.
type ParticipantPool struct {
	Participant Address `json:"participant"`
	Pool        PoolID  `json:"pool"`
}
