// Package accounting turns trade settlements into fees credited to the trader.
package accounting

import (
	"time"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/registry"
	"github.com/elys-network/autocompound/internal/store"
	"github.com/elys-network/autocompound/internal/types"
)

// Outgoing returns the amount the trader paid into the pool. With one negative delta that is
// its magnitude; when the signs do not identify a paying side the absolute values are summed.
func Outgoing(delta0, delta1 math.Int) math.Int {
	d0 := orZero(delta0)
	d1 := orZero(delta1)
	switch {
	case d0.IsNegative() && !d1.IsNegative():
		return d0.Neg()
	case d1.IsNegative() && !d0.IsNegative():
		return d1.Neg()
	default:
		return d0.Abs().Add(d1.Abs())
	}
}

// ComputeFee returns the fee attributable to a trade and the outgoing volume it was charged
// on. A trade with non-zero volume always yields at least one unit of fee.
func ComputeFee(delta0, delta1 math.Int, feeTier uint32) (fee math.Int, outgoing math.Int) {
	outgoing = Outgoing(delta0, delta1)
	if outgoing.IsZero() {
		return math.ZeroInt(), outgoing
	}
	fee = outgoing.Mul(math.NewIntFromUint64(uint64(feeTier))).Quo(math.NewInt(types.FeeDenominator))
	if fee.IsZero() {
		fee = math.OneInt()
	}
	return fee, outgoing
}

// Credit books a trade against the trader's own accounting record for the pool and the pool
// aggregate. Accrual does not depend on strategy status; an active trader who produced a fee
// joins the pool's active set.
func Credit(tx *store.Tx, em events.Emitter, trader types.Address, pool types.PoolID, fee, outgoing math.Int, feeTier uint32, now time.Time) types.FeeAccounting {
	if outgoing.IsZero() && fee.IsZero() {
		return tx.Fees(trader, pool)
	}

	agg := tx.PoolOrNew(pool)
	agg.TotalVolume = agg.TotalVolume.Add(outgoing)
	agg.TotalFeesCollected = agg.TotalFeesCollected.Add(fee)
	tx.SetPool(agg)

	acc := tx.Fees(trader, pool)
	if fee.IsZero() {
		return acc
	}
	acc.TotalFeesEarned = acc.TotalFeesEarned.Add(fee)
	acc.PendingCompound = acc.PendingCompound.Add(fee)
	acc.LastFeeTime = now
	tx.SetFees(trader, pool, acc)

	em.Emit(events.KindFeesCollected, pool, trader, events.FeesCollected{
		Amount:  fee,
		Volume:  outgoing,
		FeeTier: feeTier,
		Pending: acc.PendingCompound,
	})

	registry.Join(tx, em, pool, trader)
	return acc
}

// TrackLiquidity applies a signed liquidity change to the participant's net position in the
// pool, saturating at zero, and returns the new position. Added liquidity counts towards the
// active strategy's deposits; a position that returns to zero leaves the active set.
func TrackLiquidity(tx *store.Tx, em events.Emitter, participant types.Address, pool types.PoolID, delta math.Int) math.Int {
	before := tx.Liquidity(participant, pool)
	after := before.Add(delta)
	if after.IsNegative() {
		after = math.ZeroInt()
	}
	tx.SetLiquidity(participant, pool, after)

	if delta.IsPositive() {
		if st := tx.Strategy(participant); st.IsActive {
			st.TotalDeposited = st.TotalDeposited.Add(delta)
			tx.SetStrategy(participant, st)
		}
	}
	if after.IsZero() && before.IsPositive() {
		registry.Leave(tx, em, pool, participant, registry.RemovedLiquidityWithdrawn)
	}
	return after
}

func orZero(i math.Int) math.Int {
	if i.IsNil() {
		return math.ZeroInt()
	}
	return i
}
