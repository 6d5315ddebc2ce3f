/*

This file contains the tunable thresholds of the compounding engine.

*/

package types

import (
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"
)

const (
	MinRiskLevel = 1
	MaxRiskLevel = 10
)

// Parameters holds every threshold the registry, evaluator and batch scheduler read.
// Different profiles (production, testing) are different values of this struct.
type Parameters struct {
	// --- Eligibility ---
	MinCompoundAmount math.Int      `json:"min_compound_amount"` // Smallest pending amount worth compounding.
	MinActionInterval time.Duration `json:"min_action_interval"` // Minimum time between two compounds of one participant.
	MaxCost           uint64        `json:"max_cost"`            // Global ceiling on network execution cost and on participant cost thresholds.
	CostGateEnabled   bool          `json:"cost_gate_enabled"`   // When false the network cost predicate is skipped entirely.

	// --- Batching ---
	MinBatchSize     int           `json:"min_batch_size"`      // Queue length at which a batch may flush on size alone.
	MaxBatchSize     int           `json:"max_batch_size"`      // Hard cap on queue length; reaching it forces a flush.
	MaxBatchWaitTime time.Duration `json:"max_batch_wait_time"` // Age of the oldest request after which the batch flushes regardless of size.

	// --- Cost model (gas units) ---
	IndividualCompoundCost  uint64 `json:"individual_compound_cost"`   // Estimated cost of one participant compounding alone.
	BatchOverheadCost       uint64 `json:"batch_overhead_cost"`        // Fixed cost of a batch flush, split evenly across the batch.
	PerParticipantBatchCost uint64 `json:"per_participant_batch_cost"` // Marginal cost of each participant inside a batch.
}

var (
	ErrInvalidParameters = errors.New("parameters are invalid")
)

// Validate checks the internal consistency of a parameter set.
func (p Parameters) Validate() error {
	if p.MinCompoundAmount.IsNil() || !p.MinCompoundAmount.IsPositive() {
		return fmt.Errorf("%w: min compound amount must be positive", ErrInvalidParameters)
	}
	if p.MinActionInterval < 0 {
		return fmt.Errorf("%w: min action interval cannot be negative", ErrInvalidParameters)
	}
	if p.MaxCost == 0 {
		return fmt.Errorf("%w: max cost must be positive", ErrInvalidParameters)
	}
	if p.MinBatchSize < 1 {
		return fmt.Errorf("%w: min batch size must be at least 1", ErrInvalidParameters)
	}
	if p.MaxBatchSize < p.MinBatchSize {
		return fmt.Errorf("%w: max batch size %d is below min batch size %d", ErrInvalidParameters, p.MaxBatchSize, p.MinBatchSize)
	}
	if p.MaxBatchWaitTime <= 0 {
		return fmt.Errorf("%w: max batch wait time must be positive", ErrInvalidParameters)
	}
	if p.IndividualCompoundCost == 0 {
		return fmt.Errorf("%w: individual compound cost must be positive", ErrInvalidParameters)
	}
	return nil
}
