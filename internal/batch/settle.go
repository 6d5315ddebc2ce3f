package batch

import (
	"fmt"

	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/store"
	"github.com/elys-network/autocompound/internal/types"
)

// Apply moves every settlement's amount from pending into the compounded totals, credits the
// realized savings and emits one fees_compounded event per participant. It stops at the first
// settlement that would break the accounting; the caller rolls the transaction back.
func Apply(tx *store.Tx, em events.Emitter, plan types.SettlementPlan) error {
	agg := tx.PoolOrNew(plan.Pool)
	var totalSaved uint64

	for i, st := range plan.Settlements {
		acc := tx.Fees(st.Participant, plan.Pool)
		switch {
		case st.Amount.IsNil() || !st.Amount.IsPositive():
			return fmt.Errorf("settlement %d (%s): amount must be positive", i, st.Participant)
		case acc.PendingCompound.GT(acc.TotalFeesEarned):
			return fmt.Errorf("settlement %d (%s): pending %s exceeds earned %s", i, st.Participant, acc.PendingCompound, acc.TotalFeesEarned)
		case st.Amount.GT(acc.PendingCompound):
			return fmt.Errorf("settlement %d (%s): amount %s exceeds pending %s", i, st.Participant, st.Amount, acc.PendingCompound)
		}

		acc.PendingCompound = acc.PendingCompound.Sub(st.Amount)
		tx.SetFees(st.Participant, plan.Pool, acc)

		strategy := tx.Strategy(st.Participant)
		strategy.TotalCompounded = strategy.TotalCompounded.Add(st.Amount)
		strategy.LastCompoundTime = plan.ExecutedAt
		tx.SetStrategy(st.Participant, strategy)

		if st.GasSaved > 0 {
			tx.AddGasCredits(st.Participant, st.GasSaved)
			totalSaved += st.GasSaved
		}
		agg.TotalCompounded = agg.TotalCompounded.Add(st.Amount)

		em.Emit(events.KindFeesCompounded, plan.Pool, st.Participant, events.FeesCompounded{
			Amount:   st.Amount,
			Path:     plan.Kind,
			BatchID:  plan.BatchID,
			GasSaved: st.GasSaved,
		})
	}

	if plan.Kind == types.SettlementBatch {
		agg.BatchesExecuted++
	}
	agg.TotalGasSaved += totalSaved
	tx.SetPool(agg)
	return nil
}

// Participants lists the settled participants in plan order.
func Participants(plan types.SettlementPlan) []types.Address {
	out := make([]types.Address, len(plan.Settlements))
	for i, st := range plan.Settlements {
		out[i] = st.Participant
	}
	return out
}
