// Package registry owns strategy lifecycle and pool membership. Every function works on an
// open store transaction and reports events through the given emitter; the caller decides
// whether the unit of work commits.
package registry

import (
	"fmt"
	"time"

	"github.com/elys-network/autocompound/internal/batch"
	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/store"
	"github.com/elys-network/autocompound/internal/types"
)

// Reasons recorded on participant_removed events.
const (
	RemovedDeactivated        = "deactivated"
	RemovedLiquidityWithdrawn = "liquidity_withdrawn"
)

// ValidateStrategyInput checks the risk level first, then the cost threshold.
func ValidateStrategyInput(params types.Parameters, costThreshold uint64, riskLevel uint8) error {
	if riskLevel < types.MinRiskLevel || riskLevel > types.MaxRiskLevel {
		return fmt.Errorf("%w: got %d", types.ErrInvalidRiskLevel, riskLevel)
	}
	if costThreshold == 0 || costThreshold > params.MaxCost {
		return fmt.Errorf("%w: got %d, max %d", types.ErrInvalidCostThreshold, costThreshold, params.MaxCost)
	}
	return nil
}

// Activate opts the caller in. The record is overwritten with zeroed accumulators and the
// referenced pool is marked as having opted-in participants.
func Activate(tx *store.Tx, em events.Emitter, params types.Parameters, caller types.Address, pool types.PoolID, costThreshold uint64, riskLevel uint8, now time.Time) error {
	if err := ValidateStrategyInput(params, costThreshold, riskLevel); err != nil {
		return err
	}
	if tx.Strategy(caller).IsActive {
		return fmt.Errorf("%w: %s", types.ErrStrategyAlreadyActive, caller)
	}

	st := types.NewStrategy()
	st.IsActive = true
	st.Pool = pool
	st.LastCompoundTime = now
	st.ActivatedAt = now
	st.CostThreshold = costThreshold
	st.RiskLevel = riskLevel
	tx.SetStrategy(caller, st)

	agg := tx.PoolOrNew(pool)
	if !agg.PoolActive {
		agg.PoolActive = true
		tx.SetPool(agg)
	}

	em.Emit(events.KindStrategyActivated, pool, caller, events.StrategyActivated{
		CostThreshold: costThreshold,
		RiskLevel:     riskLevel,
	})
	return nil
}

// Deactivate clears the caller's strategy, removes them from every active set they belong to
// (the named pool first) and drops their queued compound requests.
func Deactivate(tx *store.Tx, em events.Emitter, caller types.Address, pool types.PoolID) error {
	st := tx.Strategy(caller)
	if !st.IsActive {
		return fmt.Errorf("%w: %s", types.ErrStrategyNotActive, caller)
	}
	st.IsActive = false
	tx.SetStrategy(caller, st)

	pools := append([]types.PoolID{pool}, tx.Pools()...)
	for _, id := range pools {
		Leave(tx, em, id, caller, RemovedDeactivated)
		batch.Dequeue(tx, id, caller)
	}

	em.Emit(events.KindStrategyDeactivated, pool, caller, events.StrategyDeactivated{
		TotalCompounded: st.TotalCompounded,
	})
	return nil
}

// Update changes threshold and risk level without touching accumulators or timing.
func Update(tx *store.Tx, em events.Emitter, params types.Parameters, caller types.Address, costThreshold uint64, riskLevel uint8) error {
	if err := ValidateStrategyInput(params, costThreshold, riskLevel); err != nil {
		return err
	}
	st := tx.Strategy(caller)
	if !st.IsActive {
		return fmt.Errorf("%w: %s", types.ErrStrategyNotActive, caller)
	}
	st.CostThreshold = costThreshold
	st.RiskLevel = riskLevel
	tx.SetStrategy(caller, st)

	em.Emit(events.KindStrategyUpdated, st.Pool, caller, events.StrategyUpdated{
		CostThreshold: costThreshold,
		RiskLevel:     riskLevel,
	})
	return nil
}

// Join adds an active participant to the pool's active set. No-op for inactive participants
// and existing members.
func Join(tx *store.Tx, em events.Emitter, pool types.PoolID, participant types.Address) bool {
	if !tx.Strategy(participant).IsActive {
		return false
	}
	if !tx.AddMember(pool, participant) {
		return false
	}
	agg, _ := tx.Pool(pool)
	em.Emit(events.KindParticipantAdded, pool, participant, events.ParticipantAdded{
		ActiveParticipantCount: agg.ActiveParticipantCount,
	})
	return true
}

// Leave removes the participant from the pool's active set.
func Leave(tx *store.Tx, em events.Emitter, pool types.PoolID, participant types.Address, reason string) bool {
	if !tx.RemoveMember(pool, participant) {
		return false
	}
	agg, _ := tx.Pool(pool)
	em.Emit(events.KindParticipantRemoved, pool, participant, events.ParticipantRemoved{
		ActiveParticipantCount: agg.ActiveParticipantCount,
		Reason:                 reason,
	})
	return true
}
