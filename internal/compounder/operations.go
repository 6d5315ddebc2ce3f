package compounder

import (
	"context"
	"errors"
	"fmt"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/batch"
	"github.com/elys-network/autocompound/internal/eligibility"
	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/registry"
	"github.com/elys-network/autocompound/internal/types"
)

// ActivateStrategy opts the caller in.
func (e *Engine) ActivateStrategy(ctx context.Context, caller types.Address, pool types.PoolID, costThreshold uint64, riskLevel uint8) error {
	return e.mutate(ctx, "activate strategy", func(u *unit) error {
		return registry.Activate(u.tx, &u.buf, e.params, caller, pool, costThreshold, riskLevel, e.clock.Now())
	})
}

// DeactivateStrategy opts the caller out.
func (e *Engine) DeactivateStrategy(ctx context.Context, caller types.Address, pool types.PoolID) error {
	return e.mutate(ctx, "deactivate strategy", func(u *unit) error {
		return registry.Deactivate(u.tx, &u.buf, caller, pool)
	})
}

// UpdateStrategy changes the caller's cost threshold and risk level.
func (e *Engine) UpdateStrategy(ctx context.Context, caller types.Address, costThreshold uint64, riskLevel uint8) error {
	return e.mutate(ctx, "update strategy", func(u *unit) error {
		return registry.Update(u.tx, &u.buf, e.params, caller, costThreshold, riskLevel)
	})
}

// Compound settles the caller's pending fees immediately, subject to the full eligibility gate.
func (e *Engine) Compound(ctx context.Context, caller types.Address, pool types.PoolID) error {
	return e.mutate(ctx, "compound", func(u *unit) error {
		st, fees := u.tx.Strategy(caller), u.tx.Fees(caller, pool)
		reason := eligibility.Evaluate(st, fees, e.conditionsFor(ctx, st, fees), e.params)
		if reason != eligibility.Eligible {
			return fmt.Errorf("%w: %s", ErrCannotCompoundNow, reason)
		}
		_, err := e.settleAlone(ctx, u, caller, pool, types.SettlementDirect)
		return err
	})
}

// EmergencyCompound settles the caller's pending fees immediately. Only the presence of pending
// fees is required.
func (e *Engine) EmergencyCompound(ctx context.Context, caller types.Address, pool types.PoolID) error {
	return e.mutate(ctx, "emergency compound", func(u *unit) error {
		if !u.tx.Fees(caller, pool).PendingCompound.IsPositive() {
			return fmt.Errorf("%w: %s in %s", ErrNoFeesToCompound, caller, pool)
		}
		plan, err := e.settleAlone(ctx, u, caller, pool, types.SettlementEmergency)
		if err != nil {
			return err
		}
		u.buf.Emit(events.KindEmergencyCompound, pool, caller, events.EmergencyCompound{Amount: plan.TotalAmount})
		e.logger.Warn().
			Str("participant", string(caller)).
			Str("pool", string(pool)).
			Str("amount", plan.TotalAmount.String()).
			Msg("Emergency compound executed")
		return nil
	})
}

// ScheduleCompound queues a compound of amount for the caller in the pool. The batch is flushed
// right away when it becomes due. amount is checked against what is pending now; the flush
// settles whatever is pending by then.
func (e *Engine) ScheduleCompound(ctx context.Context, caller types.Address, pool types.PoolID, amount math.Int) error {
	return e.mutate(ctx, "schedule compound", func(u *unit) error {
		st, fees := u.tx.Strategy(caller), u.tx.Fees(caller, pool)
		cond := e.conditionsFor(ctx, st, fees)
		if reason := eligibility.Evaluate(st, fees, cond, e.params); reason != eligibility.Eligible {
			return fmt.Errorf("%w: %s", ErrCompoundConditionsNotMet, reason)
		}
		if amount.IsNil() || !amount.IsPositive() || amount.GT(fees.PendingCompound) {
			return fmt.Errorf("%w: must be positive and at most the pending %s", ErrInvalidAmount, fees.PendingCompound)
		}
		_, err := e.schedule(ctx, u, caller, pool, amount, cond)
		return err
	})
}

// schedule enqueues a request, making room first when the queue is full, and flushes the queue
// when it is due. Reports whether a flush happened.
func (e *Engine) schedule(ctx context.Context, u *unit, caller types.Address, pool types.PoolID, amount math.Int, cond eligibility.Conditions) (bool, error) {
	if u.tx.QueuedIndex(pool, caller) >= 0 {
		return false, fmt.Errorf("%w: %s in %s", ErrCompoundAlreadyScheduled, caller, pool)
	}
	if batch.IsFull(u.tx.Store, pool, e.params) {
		if err := e.flush(ctx, u, pool, false); err != nil {
			return false, err
		}
	}

	req := types.CompoundRequest{Participant: caller, Amount: amount, EnqueuedAt: cond.Now}
	if err := batch.Enqueue(u.tx, &u.buf, e.params, pool, req); err != nil {
		return false, err
	}
	if !batch.ShouldExecute(u.tx.Store, pool, e.params, cond) {
		return false, nil
	}
	return true, e.flush(ctx, u, pool, false)
}

// ForceBatchExecution flushes the pool's queue regardless of size, age and cost.
func (e *Engine) ForceBatchExecution(ctx context.Context, pool types.PoolID) error {
	return e.mutate(ctx, "force batch execution", func(u *unit) error {
		if u.tx.QueueLen(pool) == 0 {
			return fmt.Errorf("%w: %s", ErrNoPendingCompounds, pool)
		}
		return e.flush(ctx, u, pool, true)
	})
}

// FlushDueBatches flushes every pool whose queue is due, each as its own unit. One failing pool
// does not stop the others. Returns the number of batches flushed.
func (e *Engine) FlushDueBatches(ctx context.Context) (int, error) {
	if e.withinSettlement(ctx) {
		return 0, fmt.Errorf("flush due batches: %w", ErrReentrantCall)
	}
	var (
		flushed int
		errs    []error
	)
	for _, pool := range e.poolsWithPendingBatches() {
		var ran bool
		err := e.mutate(ctx, "flush due batch", func(u *unit) error {
			cond := e.batchConditions(ctx, u.tx.Store, pool)
			if !batch.ShouldExecute(u.tx.Store, pool, e.params, cond) {
				return nil
			}
			ran = true
			return e.flush(ctx, u, pool, false)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", pool, err))
			continue
		}
		if ran {
			flushed++
		}
	}
	return flushed, errors.Join(errs...)
}

func (e *Engine) poolsWithPendingBatches() []types.PoolID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.PoolsWithPendingBatches()
}
