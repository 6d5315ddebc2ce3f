package vault

import (
	"context"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/types"
	"github.com/stretchr/testify/require"
)

func plan(settlements ...types.Settlement) types.SettlementPlan {
	total := math.ZeroInt()
	for _, st := range settlements {
		if !st.Amount.IsNil() {
			total = total.Add(st.Amount)
		}
	}
	return types.SettlementPlan{
		BatchID:     "batch-1",
		Pool:        "pool-1",
		Kind:        types.SettlementBatch,
		Settlements: settlements,
		TotalAmount: total,
		TotalCost:   160_000,
		ExecutedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPositionLedger_Reinvest(t *testing.T) {
	t.Parallel()

	l := NewPositionLedger()
	receipt, err := l.Reinvest(context.Background(), plan(
		types.Settlement{Participant: "alice", Amount: math.NewInt(10)},
		types.Settlement{Participant: "bob", Amount: math.NewInt(5)},
	))
	require.NoError(t, err)
	require.NotEmpty(t, receipt.Reference)
	require.Equal(t, uint64(160_000), receipt.GasUsed)

	_, err = l.Reinvest(context.Background(), plan(types.Settlement{Participant: "alice", Amount: math.NewInt(7)}))
	require.NoError(t, err)

	require.Equal(t, int64(17), l.Position("alice", "pool-1").Int64())
	require.Equal(t, int64(5), l.Position("bob", "pool-1").Int64())
	require.True(t, l.Position("carol", "pool-1").IsZero())
	require.Equal(t, 2, l.Receipts())

	positions := l.Positions()
	require.Len(t, positions, 2)
	require.Equal(t, types.Address("alice"), positions[0].Participant)
}

func TestPositionLedger_AllOrNothing(t *testing.T) {
	t.Parallel()

	l := NewPositionLedger()
	_, err := l.Reinvest(context.Background(), plan(
		types.Settlement{Participant: "alice", Amount: math.NewInt(10)},
		types.Settlement{Participant: "bob", Amount: math.ZeroInt()},
	))
	require.Error(t, err)
	require.True(t, l.Position("alice", "pool-1").IsZero())
	require.Zero(t, l.Receipts())
}

func TestPositionLedger_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPositionLedger().Reinvest(ctx, plan(types.Settlement{Participant: "alice", Amount: math.NewInt(1)}))
	require.ErrorIs(t, err, context.Canceled)
}
