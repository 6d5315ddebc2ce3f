package metrics

import (
	"context"
	"testing"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/store"
	"github.com/elys-network/autocompound/internal/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSink_Publish(t *testing.T) {
	pool := "metrics-test-pool"
	sink := Sink{Precision: 3}

	err := sink.Publish(context.Background(), []events.Event{
		{Kind: events.KindFeesCollected, Pool: types.PoolID(pool), Data: events.FeesCollected{Amount: math.NewInt(1500)}},
		{Kind: events.KindFeesCompounded, Pool: types.PoolID(pool), Data: events.FeesCompounded{Amount: math.NewInt(500), Path: types.SettlementBatch}},
		{Kind: events.KindBatchExecuted, Pool: types.PoolID(pool), Data: events.BatchExecuted{ParticipantCount: 2, GasSaved: 80_000}},
		{Kind: events.KindParticipantAdded, Pool: types.PoolID(pool), Data: events.ParticipantAdded{ActiveParticipantCount: 4}},
	})
	require.NoError(t, err)

	require.InDelta(t, 1.5, testutil.ToFloat64(FeesCollected.WithLabelValues(pool)), 1e-9)
	require.InDelta(t, 0.5, testutil.ToFloat64(FeesCompounded.WithLabelValues(pool, "BATCH")), 1e-9)
	require.Equal(t, 1.0, testutil.ToFloat64(BatchesExecuted.WithLabelValues(pool, "false")))
	require.Equal(t, 80_000.0, testutil.ToFloat64(GasSaved.WithLabelValues(pool)))
	require.Equal(t, 4.0, testutil.ToFloat64(ActiveParticipants.WithLabelValues(pool)))
}

func TestSyncFromState(t *testing.T) {
	active := types.NewStrategy()
	active.IsActive = true
	inactive := types.NewStrategy()

	SyncFromState(store.Snapshot{
		Strategies: []store.StrategyEntry{
			{Participant: "alice", Strategy: active},
			{Participant: "bob", Strategy: active},
			{Participant: "carol", Strategy: inactive},
		},
		Members: []store.MembersEntry{
			{Pool: "restored-pool", Participants: []types.Address{"alice", "bob"}},
		},
	})
	require.Equal(t, 2.0, testutil.ToFloat64(ActiveStrategies))
	require.Equal(t, 2.0, testutil.ToFloat64(ActiveParticipants.WithLabelValues("restored-pool")))

	// Events after the restore move the gauges from the restored baseline.
	err := Sink{}.Publish(context.Background(), []events.Event{
		{Kind: events.KindStrategyDeactivated, Pool: "restored-pool", Data: events.StrategyDeactivated{}},
		{Kind: events.KindParticipantRemoved, Pool: "restored-pool", Data: events.ParticipantRemoved{ActiveParticipantCount: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, 1.0, testutil.ToFloat64(ActiveStrategies))
	require.Equal(t, 1.0, testutil.ToFloat64(ActiveParticipants.WithLabelValues("restored-pool")))
}
