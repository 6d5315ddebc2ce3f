package compounder

import (
	"context"
	"fmt"

	"github.com/elys-network/autocompound/internal/batch"
	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/types"
)

// settle applies the plan to the engine's records and only then hands it to the reinvestor.
// The reinvestor runs under a context marked as this engine's settlement, so engine calls it
// makes with that context fail with ErrReentrantCall.
func (e *Engine) settle(ctx context.Context, u *unit, plan types.SettlementPlan) (*types.SettlementReceipt, error) {
	if err := batch.Apply(u.tx, &u.buf, plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBatchSettlementFailed, err)
	}

	receipt, err := e.reinvestor.Reinvest(context.WithValue(ctx, settlementKey{}, e), plan)
	if err != nil {
		return nil, fmt.Errorf("%w: reinvest %s: %w", ErrBatchSettlementFailed, plan.BatchID, err)
	}
	if receipt == nil {
		receipt = &types.SettlementReceipt{GasUsed: plan.TotalCost}
	}
	return receipt, nil
}

// flush settles the pool's whole queue as one batch. The queue is cleared before anything
// else happens.
func (e *Engine) flush(ctx context.Context, u *unit, pool types.PoolID, forced bool) error {
	q := u.tx.Queue(pool)
	u.tx.SetQueue(pool, nil)

	now := e.clock.Now()
	plan := batch.PlanBatch(u.tx.Store, pool, q, e.params, newBatchID(), now)
	log := e.logger.With().Str("batchID", plan.BatchID).Str("pool", string(pool)).Logger()

	if len(plan.Settlements) == 0 {
		log.Info().Int("queued", len(q)).Msg("Batch had nothing pending, queue cleared")
		return nil
	}

	receipt, err := e.settle(ctx, u, plan)
	if err != nil {
		log.Error().Err(err).Int("participants", len(plan.Settlements)).Msg("Batch settlement failed, rolling back")
		return err
	}

	var saved uint64
	for _, st := range plan.Settlements {
		saved += st.GasSaved
	}
	participants := batch.Participants(plan)
	u.buf.Emit(events.KindBatchExecuted, pool, "", events.BatchExecuted{
		BatchID:          plan.BatchID,
		ParticipantCount: len(participants),
		Participants:     participants,
		TotalAmount:      plan.TotalAmount,
		TotalCost:        plan.TotalCost,
		GasSaved:         saved,
		Forced:           forced,
		Reference:        receipt.Reference,
	})

	log.Info().
		Int("participants", len(participants)).
		Str("totalAmount", plan.TotalAmount.String()).
		Uint64("totalCost", plan.TotalCost).
		Uint64("gasSaved", saved).
		Bool("forced", forced).
		Str("reference", receipt.Reference).
		Msg("Batch executed")
	return nil
}

// settleAlone compounds one participant's full pending amount outside of any batch.
func (e *Engine) settleAlone(ctx context.Context, u *unit, caller types.Address, pool types.PoolID, kind types.SettlementKind) (types.SettlementPlan, error) {
	batch.Dequeue(u.tx, pool, caller)
	plan := batch.PlanSingle(u.tx.Store, pool, caller, kind, e.params, newBatchID(), e.clock.Now())
	if _, err := e.settle(ctx, u, plan); err != nil {
		return plan, err
	}
	return plan, nil
}
