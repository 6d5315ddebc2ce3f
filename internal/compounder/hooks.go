package compounder

import (
	"context"
	"fmt"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/accounting"
	"github.com/elys-network/autocompound/internal/eligibility"
	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/types"
)

// PoolHooks is the callback surface the trade-execution venue invokes. Calls may arrive in any
// order and frequency; each one is applied as a single unit.
type PoolHooks interface {
	AfterInitialize(ctx context.Context, pool types.PoolID, feeTier uint32) error
	AfterAddLiquidity(ctx context.Context, sender types.Address, pool types.PoolID, amount math.Int) error
	AfterRemoveLiquidity(ctx context.Context, sender types.Address, pool types.PoolID, amount math.Int) error
	AfterSwap(ctx context.Context, swap SwapEvent) (SwapAck, error)
}

var _ PoolHooks = (*Engine)(nil)

// SwapEvent is a settled trade. Deltas are the trader's signed balance changes for the pool's
// two assets; a negative delta is what the trader paid in.
type SwapEvent struct {
	Trader  types.Address `json:"trader"`
	Pool    types.PoolID  `json:"pool"`
	Delta0  math.Int      `json:"delta0"`
	Delta1  math.Int      `json:"delta1"`
	FeeTier uint32        `json:"fee_tier"` // Zero means use the tier registered at initialization
}

// SwapAck tells the venue what the engine did with a trade.
type SwapAck struct {
	Fee       math.Int `json:"fee"`
	Volume    math.Int `json:"volume"`
	Pending   math.Int `json:"pending"`
	Scheduled bool     `json:"scheduled"`
	Flushed   bool     `json:"flushed"`
}

// AfterInitialize registers a new pool and its fee tier.
func (e *Engine) AfterInitialize(ctx context.Context, pool types.PoolID, feeTier uint32) error {
	return e.mutate(ctx, "after initialize", func(u *unit) error {
		agg, ok := u.tx.Pool(pool)
		if ok && !agg.InitializedAt.IsZero() {
			return fmt.Errorf("%w: %s", ErrPoolAlreadyInitialized, pool)
		}
		if !ok {
			agg = types.NewPoolAggregate(pool)
		}
		agg.FeeTier = feeTier
		agg.InitializedAt = e.clock.Now()
		u.tx.SetPool(agg)

		u.buf.Emit(events.KindPoolInitialized, pool, "", events.PoolInitialized{FeeTier: feeTier})
		return nil
	})
}

// AfterAddLiquidity records liquidity supplied by sender. It never adds sender to the active set.
func (e *Engine) AfterAddLiquidity(ctx context.Context, sender types.Address, pool types.PoolID, amount math.Int) error {
	return e.mutate(ctx, "after add liquidity", func(u *unit) error {
		if amount.IsNil() || amount.IsNegative() {
			return fmt.Errorf("%w: liquidity amount cannot be negative", ErrInvalidAmount)
		}
		accounting.TrackLiquidity(u.tx, &u.buf, sender, pool, amount)
		return nil
	})
}

// AfterRemoveLiquidity records liquidity withdrawn by sender. A position that reaches zero
// leaves the pool's active set.
func (e *Engine) AfterRemoveLiquidity(ctx context.Context, sender types.Address, pool types.PoolID, amount math.Int) error {
	return e.mutate(ctx, "after remove liquidity", func(u *unit) error {
		if amount.IsNil() || amount.IsNegative() {
			return fmt.Errorf("%w: liquidity amount cannot be negative", ErrInvalidAmount)
		}
		accounting.TrackLiquidity(u.tx, &u.buf, sender, pool, amount.Neg())
		return nil
	})
}

// AfterSwap credits the trade's fee to the trader and, when the trader becomes eligible and is
// not already queued, schedules a compound of everything pending.
func (e *Engine) AfterSwap(ctx context.Context, swap SwapEvent) (SwapAck, error) {
	var ack SwapAck
	err := e.mutate(ctx, "after swap", func(u *unit) error {
		tier := swap.FeeTier
		if tier == 0 {
			if agg, ok := u.tx.Pool(swap.Pool); ok {
				tier = agg.FeeTier
			}
		}

		fee, volume := accounting.ComputeFee(swap.Delta0, swap.Delta1, tier)
		now := e.clock.Now()
		acc := accounting.Credit(u.tx, &u.buf, swap.Trader, swap.Pool, fee, volume, tier, now)
		ack = SwapAck{Fee: fee, Volume: volume, Pending: acc.PendingCompound}

		if fee.IsZero() || u.tx.QueuedIndex(swap.Pool, swap.Trader) >= 0 {
			return nil
		}
		st := u.tx.Strategy(swap.Trader)
		cond := e.conditionsFor(ctx, st, acc)
		if !eligibility.ShouldCompound(st, acc, cond, e.params) {
			return nil
		}
		flushed, err := e.schedule(ctx, u, swap.Trader, swap.Pool, acc.PendingCompound, cond)
		if err != nil {
			return err
		}
		ack.Scheduled = true
		ack.Flushed = flushed
		ack.Pending = u.tx.Fees(swap.Trader, swap.Pool).PendingCompound
		return nil
	})
	if err != nil {
		return SwapAck{}, err
	}
	return ack, nil
}
