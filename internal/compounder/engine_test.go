package compounder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/config"
	"github.com/elys-network/autocompound/internal/eligibility"
	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/netcost"
	"github.com/elys-network/autocompound/internal/store"
	"github.com/elys-network/autocompound/internal/types"
	"github.com/elys-network/autocompound/internal/vault"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const pool types.PoolID = "pool-1"

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	engine   *Engine
	clock    *clockwork.FakeClock
	recorder *events.Recorder
	ledger   *vault.PositionLedger
}

type option func(*Config)

func withReinvestor(r vault.Reinvestor) option {
	return func(c *Config) { c.Reinvestor = r }
}

func withOracle(o netcost.Oracle) option {
	return func(c *Config) { c.Oracle = o }
}

func newHarness(t *testing.T, params types.Parameters, opts ...option) *harness {
	t.Helper()

	h := &harness{
		clock:    clockwork.NewFakeClockAt(t0),
		recorder: events.NewRecorder(0),
		ledger:   vault.NewPositionLedger(),
	}
	nop := zerolog.Nop()
	cfg := Config{
		Params:     params,
		Reinvestor: h.ledger,
		Clock:      h.clock,
		Sink:       h.recorder,
		Logger:     &nop,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	engine, err := New(cfg)
	require.NoError(t, err)
	h.engine = engine
	return h
}

// swap has the trader pay in amount of token0; with a 3000 ppm tier the fee is amount*3/1000.
func (h *harness) swap(t *testing.T, trader types.Address, amount int64) SwapAck {
	t.Helper()
	ack, err := h.engine.AfterSwap(context.Background(), SwapEvent{
		Trader: trader,
		Pool:   pool,
		Delta0: math.NewInt(-amount),
		Delta1: math.NewInt(amount - amount/100),
	})
	require.NoError(t, err)
	return ack
}

func (h *harness) activate(t *testing.T, participants ...types.Address) {
	t.Helper()
	for _, p := range participants {
		require.NoError(t, h.engine.ActivateStrategy(context.Background(), p, pool, 50, 5))
	}
}

type mutableOracle struct {
	mu   sync.Mutex
	cost uint64
	err  error
}

func (o *mutableOracle) CurrentCost(context.Context) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cost, o.err
}

func (o *mutableOracle) set(cost uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cost, o.err = cost, nil
}

func (o *mutableOracle) fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func testingParams() types.Parameters {
	return config.TestingParameters
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Params: config.TestingParameters})
	require.ErrorContains(t, err, "reinvestor")

	_, err = New(Config{Params: config.ProductionParameters, Reinvestor: vault.NewPositionLedger()})
	require.ErrorContains(t, err, "oracle")

	bad := config.TestingParameters
	bad.MaxBatchSize = 1
	_, err = New(Config{Params: bad, Reinvestor: vault.NewPositionLedger()})
	require.ErrorIs(t, err, types.ErrInvalidParameters)
}

func TestEngine_ActivateTradeCompoundScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, config.ProductionParameters, withOracle(netcost.Static(40)))
	e := h.engine

	require.NoError(t, e.AfterInitialize(ctx, pool, 3000))
	require.NoError(t, e.ActivateStrategy(ctx, "alice", pool, 50, 5))

	// 1e18 paid in at 3000 ppm yields a fee of 3e15.
	ack := h.swap(t, "alice", 1_000_000_000_000_000_000)
	fee := math.NewInt(3_000_000_000_000_000)
	require.True(t, ack.Fee.Equal(fee))
	require.False(t, ack.Scheduled)

	require.False(t, e.ShouldCompound(ctx, "alice", pool))
	require.Equal(t, eligibility.IntervalNotPassed, e.EligibilityReason(ctx, "alice", pool))
	require.ErrorIs(t, e.Compound(ctx, "alice", pool), ErrCannotCompoundNow)

	h.clock.Advance(time.Hour)
	require.True(t, e.ShouldCompound(ctx, "alice", pool))
	require.NoError(t, e.Compound(ctx, "alice", pool))

	st := e.GetStrategy("alice")
	require.True(t, st.TotalCompounded.Equal(fee))
	require.Equal(t, t0.Add(time.Hour), st.LastCompoundTime)

	acc := e.GetFeeAccounting("alice", pool)
	require.True(t, acc.PendingCompound.IsZero())
	require.True(t, acc.TotalFeesEarned.Equal(fee))
	require.True(t, h.ledger.Position("alice", pool).Equal(fee))
	require.Zero(t, e.GetGasCredits("alice"))

	agg, ok := e.GetPool(pool)
	require.True(t, ok)
	require.Equal(t, uint32(3000), agg.FeeTier)
	require.True(t, agg.TotalCompounded.Equal(fee))
	require.Equal(t, []types.Address{"alice"}, e.GetActiveParticipants(pool))

	require.Equal(t, []events.Kind{
		events.KindPoolInitialized,
		events.KindStrategyActivated,
		events.KindFeesCollected,
		events.KindParticipantAdded,
		events.KindFeesCompounded,
	}, h.recorder.Kinds())
}

func TestEngine_ShouldCompoundFalseRightAfterActivation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testingParams())
	h.swap(t, "alice", 1_000_000)
	h.activate(t, "alice")

	require.True(t, h.engine.GetFeeAccounting("alice", pool).PendingCompound.IsPositive())
	require.False(t, h.engine.ShouldCompound(context.Background(), "alice", pool))
}

func TestEngine_StrategyLifecycleErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, testingParams())
	e := h.engine

	require.ErrorIs(t, e.DeactivateStrategy(ctx, "bob", pool), ErrStrategyNotActive)
	require.ErrorIs(t, e.UpdateStrategy(ctx, "bob", 10, 2), ErrStrategyNotActive)
	require.ErrorIs(t, e.ActivateStrategy(ctx, "bob", pool, 50, 0), ErrInvalidRiskLevel)
	require.ErrorIs(t, e.ActivateStrategy(ctx, "bob", pool, 50, 11), ErrInvalidRiskLevel)
	require.ErrorIs(t, e.ActivateStrategy(ctx, "bob", pool, 0, 5), ErrInvalidCostThreshold)
	require.ErrorIs(t, e.ActivateStrategy(ctx, "bob", pool, e.Parameters().MaxCost+1, 5), ErrInvalidCostThreshold)

	require.NoError(t, e.ActivateStrategy(ctx, "bob", pool, 50, 5))
	err := e.ActivateStrategy(ctx, "bob", pool, 50, 5)
	require.ErrorIs(t, err, ErrStrategyAlreadyActive)
	require.Equal(t, KindState, Kind(err))

	require.NoError(t, e.UpdateStrategy(ctx, "bob", 70, 8))
	require.Equal(t, uint64(70), e.GetStrategy("bob").CostThreshold)
	require.NoError(t, e.DeactivateStrategy(ctx, "bob", pool))
	require.False(t, e.GetStrategy("bob").IsActive)
	require.NoError(t, e.ActivateStrategy(ctx, "bob", pool, 50, 5))
}

func TestEngine_FeesAccrueWithoutStrategy(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testingParams())
	h.swap(t, "carol", 1_000_000)
	h.swap(t, "carol", 0)

	acc := h.engine.GetFeeAccounting("carol", pool)
	require.Equal(t, int64(3000), acc.TotalFeesEarned.Int64())
	require.Empty(t, h.engine.GetActiveParticipants(pool))

	ack, err := h.engine.AfterSwap(context.Background(), SwapEvent{Trader: "carol", Pool: pool, Delta0: math.ZeroInt(), Delta1: math.ZeroInt()})
	require.NoError(t, err)
	require.True(t, ack.Fee.IsZero())
	require.Equal(t, int64(3000), h.engine.GetFeeAccounting("carol", pool).TotalFeesEarned.Int64())
}

func TestEngine_FeeTierFromInitialization(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, testingParams())
	require.NoError(t, h.engine.AfterInitialize(ctx, pool, 500))
	require.ErrorIs(t, h.engine.AfterInitialize(ctx, pool, 3000), ErrPoolAlreadyInitialized)

	ack, err := h.engine.AfterSwap(ctx, SwapEvent{Trader: "alice", Pool: pool, Delta0: math.NewInt(-1_000_000), Delta1: math.NewInt(999_000)})
	require.NoError(t, err)
	require.Equal(t, int64(500), ack.Fee.Int64())

	ack, err = h.engine.AfterSwap(ctx, SwapEvent{Trader: "alice", Pool: pool, Delta0: math.NewInt(-1_000_000), Delta1: math.NewInt(999_000), FeeTier: 10_000})
	require.NoError(t, err)
	require.Equal(t, int64(10_000), ack.Fee.Int64())
}

func TestEngine_LiquidityMembership(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, testingParams())
	e := h.engine

	require.NoError(t, e.AfterAddLiquidity(ctx, "dave", pool, math.NewInt(1000)))
	require.Empty(t, e.GetActiveParticipants(pool))

	h.activate(t, "alice")
	require.NoError(t, e.AfterAddLiquidity(ctx, "alice", pool, math.NewInt(1000)))
	require.Empty(t, e.GetActiveParticipants(pool))
	require.Equal(t, int64(1000), e.GetStrategy("alice").TotalDeposited.Int64())

	h.swap(t, "alice", 1_000_000)
	require.Equal(t, []types.Address{"alice"}, e.GetActiveParticipants(pool))
	agg, _ := e.GetPool(pool)
	require.Equal(t, 1, agg.ActiveParticipantCount)

	require.ErrorIs(t, e.AfterRemoveLiquidity(ctx, "alice", pool, math.NewInt(-1)), ErrInvalidAmount)
	require.NoError(t, e.AfterRemoveLiquidity(ctx, "alice", pool, math.NewInt(400)))
	require.Equal(t, []types.Address{"alice"}, e.GetActiveParticipants(pool))
	require.NoError(t, e.AfterRemoveLiquidity(ctx, "alice", pool, math.NewInt(600)))
	require.Empty(t, e.GetActiveParticipants(pool))
}

func TestEngine_EmergencyCompound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, config.ProductionParameters, withOracle(netcost.Static(40)))
	e := h.engine

	err := e.EmergencyCompound(ctx, "alice", pool)
	require.ErrorIs(t, err, ErrNoFeesToCompound)
	require.Equal(t, KindData, Kind(err))

	// Tiny fee, no strategy, no time elapsed: only "fees exist" is checked.
	h.swap(t, "alice", 10)
	require.NoError(t, e.EmergencyCompound(ctx, "alice", pool))

	require.True(t, e.GetFeeAccounting("alice", pool).PendingCompound.IsZero())
	require.Equal(t, int64(1), e.GetStrategy("alice").TotalCompounded.Int64())
	require.Equal(t, int64(1), h.ledger.Position("alice", pool).Int64())

	kinds := h.recorder.Kinds()
	require.Equal(t, []events.Kind{events.KindFeesCompounded, events.KindEmergencyCompound}, kinds[len(kinds)-2:])
	require.ErrorIs(t, e.EmergencyCompound(ctx, "alice", pool), ErrNoFeesToCompound)
}

func TestEngine_EmergencyCompoundDequeues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, testingParams())
	e := h.engine

	h.activate(t, "alice")
	h.swap(t, "alice", 1_000_000)
	h.clock.Advance(time.Minute)
	ack := h.swap(t, "alice", 1_000_000)
	require.True(t, ack.Scheduled)
	require.False(t, ack.Flushed)
	require.Equal(t, 1, e.GetPendingBatchSize(pool))

	require.NoError(t, e.EmergencyCompound(ctx, "alice", pool))
	require.Zero(t, e.GetPendingBatchSize(pool))
	require.Equal(t, int64(6000), e.GetStrategy("alice").TotalCompounded.Int64())
}

func TestEngine_ForceBatchExecution(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, testingParams())
	e := h.engine

	err := e.ForceBatchExecution(ctx, pool)
	require.ErrorIs(t, err, ErrNoPendingCompounds)

	h.activate(t, "alice")
	h.swap(t, "alice", 1_000_000)
	h.clock.Advance(time.Minute)
	require.NoError(t, e.ScheduleCompound(ctx, "alice", pool, math.NewInt(3000)))
	require.False(t, e.ShouldExecuteBatch(ctx, pool))

	require.NoError(t, e.ForceBatchExecution(ctx, pool))
	require.Zero(t, e.GetPendingBatchSize(pool))
	require.Equal(t, int64(3000), e.GetStrategy("alice").TotalCompounded.Int64())

	evts := h.recorder.Events()
	last := evts[len(evts)-1]
	require.Equal(t, events.KindBatchExecuted, last.Kind)
	data, ok := last.Data.(events.BatchExecuted)
	require.True(t, ok)
	require.True(t, data.Forced)
	require.Equal(t, []types.Address{"alice"}, data.Participants)
	require.NotEmpty(t, data.Reference)
}

func TestEngine_ScheduleCompoundErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, testingParams())
	e := h.engine

	require.ErrorIs(t, e.ScheduleCompound(ctx, "alice", pool, math.NewInt(1)), ErrCompoundConditionsNotMet)

	h.activate(t, "alice")
	h.swap(t, "alice", 1_000_000)
	require.ErrorIs(t, e.ScheduleCompound(ctx, "alice", pool, math.NewInt(1)), ErrCompoundConditionsNotMet)

	h.clock.Advance(time.Minute)
	require.ErrorIs(t, e.ScheduleCompound(ctx, "alice", pool, math.ZeroInt()), ErrInvalidAmount)
	require.ErrorIs(t, e.ScheduleCompound(ctx, "alice", pool, math.NewInt(3001)), ErrInvalidAmount)
	require.ErrorIs(t, e.ScheduleCompound(ctx, "alice", pool, math.Int{}), ErrInvalidAmount)

	require.NoError(t, e.ScheduleCompound(ctx, "alice", pool, math.NewInt(3000)))
	err := e.ScheduleCompound(ctx, "alice", pool, math.NewInt(3000))
	require.ErrorIs(t, err, ErrCompoundAlreadyScheduled)
	require.Equal(t, 1, e.GetPendingBatchSize(pool))

	batch := e.GetPendingBatch(pool)
	require.Equal(t, types.Address("alice"), batch[0].Participant)
	require.Equal(t, t0.Add(time.Minute), batch[0].EnqueuedAt)
}

func TestEngine_BatchFlushesAtMinSize(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testingParams())
	e := h.engine

	h.activate(t, "alice", "bob")
	h.swap(t, "alice", 1_000_000)
	h.swap(t, "bob", 1_000_000)
	h.clock.Advance(time.Minute)

	ack := h.swap(t, "alice", 1_000_000)
	require.True(t, ack.Scheduled)
	require.False(t, ack.Flushed)
	require.Equal(t, 1, e.GetPendingBatchSize(pool))

	ack = h.swap(t, "bob", 1_000_000)
	require.True(t, ack.Scheduled)
	require.True(t, ack.Flushed)
	require.True(t, ack.Pending.IsZero())
	require.Zero(t, e.GetPendingBatchSize(pool))

	for _, p := range []types.Address{"alice", "bob"} {
		require.Equal(t, int64(6000), e.GetStrategy(p).TotalCompounded.Int64())
		require.True(t, e.GetFeeAccounting(p, pool).PendingCompound.IsZero())
		require.Equal(t, uint64(40_000), e.GetGasCredits(p))
		require.Equal(t, int64(6000), h.ledger.Position(p, pool).Int64())
	}

	agg, _ := e.GetPool(pool)
	require.Equal(t, uint64(1), agg.BatchesExecuted)
	require.Equal(t, uint64(80_000), e.GetTotalGasSaved(pool))
	require.Equal(t, int64(12_000), agg.TotalCompounded.Int64())
	require.Equal(t, 1, h.ledger.Receipts())
}

func TestEngine_CostGate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cost := &mutableOracle{cost: 40}
	params := config.ProductionParameters
	params.MinCompoundAmount = math.NewInt(1)
	params.MinActionInterval = time.Minute
	h := newHarness(t, params, withOracle(cost))
	e := h.engine

	require.NoError(t, e.ActivateStrategy(ctx, "alice", pool, 30, 5))
	require.NoError(t, e.ActivateStrategy(ctx, "bob", pool, 60, 5))
	h.swap(t, "alice", 1_000_000)
	h.swap(t, "bob", 1_000_000)
	h.clock.Advance(time.Minute)

	// Alice is priced out at 40, bob is not.
	require.False(t, e.ShouldCompound(ctx, "alice", pool))
	require.Equal(t, eligibility.AboveThreshold, e.EligibilityReason(ctx, "alice", pool))
	require.True(t, h.swap(t, "bob", 1_000_000).Scheduled)

	cost.set(25)
	ack := h.swap(t, "alice", 1_000_000)
	require.True(t, ack.Scheduled)
	require.True(t, ack.Flushed, "average threshold 45 tolerates cost 25")
	require.Zero(t, e.GetPendingBatchSize(pool))

	cost.fail(errors.New("oracle down"))
	h.clock.Advance(time.Minute)
	require.False(t, h.swap(t, "bob", 1_000_000).Scheduled)
	require.Equal(t, eligibility.CostUnknown, e.EligibilityReason(ctx, "bob", pool))
}

func TestEngine_LoneRequestFlushesAfterMaxWait(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	params := testingParams()
	h := newHarness(t, params)
	e := h.engine

	h.activate(t, "alice")
	h.swap(t, "alice", 1_000_000)
	h.clock.Advance(time.Minute)
	require.True(t, h.swap(t, "alice", 1_000_000).Scheduled)

	h.clock.Advance(params.MaxBatchWaitTime - time.Second)
	require.False(t, e.ShouldExecuteBatch(ctx, pool))
	flushed, err := e.FlushDueBatches(ctx)
	require.NoError(t, err)
	require.Zero(t, flushed)

	h.clock.Advance(time.Second)
	require.True(t, e.ShouldExecuteBatch(ctx, pool))
	flushed, err = e.FlushDueBatches(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, flushed)
	require.Zero(t, e.GetPendingBatchSize(pool))
	require.Equal(t, int64(6000), e.GetStrategy("alice").TotalCompounded.Int64())
	require.Zero(t, e.GetGasCredits("alice"), "a batch of one saves nothing")
}

func TestEngine_QueueNeverExceedsMaxBatchSize(t *testing.T) {
	t.Parallel()

	params := testingParams()
	params.MinBatchSize = 3
	params.MaxBatchSize = 3
	h := newHarness(t, params)
	e := h.engine

	participants := []types.Address{"p1", "p2", "p3", "p4"}
	h.activate(t, participants...)
	for _, p := range participants {
		h.swap(t, p, 1_000_000)
	}
	h.clock.Advance(time.Minute)

	for i, p := range participants {
		ack := h.swap(t, p, 1_000_000)
		require.True(t, ack.Scheduled)
		require.LessOrEqual(t, e.GetPendingBatchSize(pool), params.MaxBatchSize)
		require.Equal(t, i == 2, ack.Flushed)
	}
	require.Equal(t, 1, e.GetPendingBatchSize(pool))
	agg, _ := e.GetPool(pool)
	require.Equal(t, uint64(1), agg.BatchesExecuted)
}

func TestEngine_FullQueueFlushesBeforeEnqueue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	params := testingParams()
	params.MaxBatchSize = 2
	h := newHarness(t, params)
	e := h.engine

	h.activate(t, "alice", "bob", "carol")
	for _, p := range []types.Address{"alice", "bob", "carol"} {
		h.swap(t, p, 1_000_000)
	}
	h.clock.Advance(time.Minute)

	// Restore a state whose queue is already at the cap.
	snap := e.Snapshot()
	snap.State.Queues = []store.QueueEntry{{
		Pool: pool,
		Requests: []types.CompoundRequest{
			{Participant: "alice", Amount: math.NewInt(3000), EnqueuedAt: h.clock.Now()},
			{Participant: "bob", Amount: math.NewInt(3000), EnqueuedAt: h.clock.Now()},
		},
	}}
	require.NoError(t, e.Restore(ctx, snap))
	require.Equal(t, 2, e.GetPendingBatchSize(pool))

	require.NoError(t, e.ScheduleCompound(ctx, "carol", pool, math.NewInt(3000)))
	require.Equal(t, []types.CompoundRequest{{Participant: "carol", Amount: math.NewInt(3000), EnqueuedAt: h.clock.Now()}}, e.GetPendingBatch(pool))
	require.Equal(t, int64(3000), e.GetStrategy("alice").TotalCompounded.Int64())
	require.Equal(t, int64(3000), e.GetStrategy("bob").TotalCompounded.Int64())
}

func TestEngine_FlushSettlesPendingAtFlushTime(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, testingParams())
	e := h.engine

	h.activate(t, "alice")
	h.swap(t, "alice", 1_000_000)
	h.clock.Advance(time.Minute)
	require.NoError(t, e.ScheduleCompound(ctx, "alice", pool, math.NewInt(1000)))

	ack := h.swap(t, "alice", 1_000_000)
	require.False(t, ack.Scheduled, "already queued")
	require.NoError(t, e.ForceBatchExecution(ctx, pool))

	var scheduled, compounded []int64
	for _, ev := range h.recorder.Events() {
		switch d := ev.Data.(type) {
		case events.BatchScheduled:
			scheduled = append(scheduled, d.Amount.Int64())
		case events.FeesCompounded:
			compounded = append(compounded, d.Amount.Int64())
		}
	}
	require.Equal(t, []int64{1000}, scheduled)
	require.Equal(t, []int64{6000}, compounded)
	require.Equal(t, int64(6000), e.GetStrategy("alice").TotalCompounded.Int64())
	require.True(t, e.GetFeeAccounting("alice", pool).PendingCompound.IsZero())
}

func TestEngine_BatchFailureRollsBackWholeOperation(t *testing.T) {
	t.Parallel()

	boom := errors.New("venue rejected settlement")
	failing := vault.ReinvestorFunc(func(context.Context, types.SettlementPlan) (*types.SettlementReceipt, error) {
		return nil, boom
	})
	h := newHarness(t, testingParams(), withReinvestor(failing))
	e := h.engine

	h.activate(t, "alice", "bob")
	h.swap(t, "alice", 1_000_000)
	h.swap(t, "bob", 1_000_000)
	h.clock.Advance(time.Minute)
	require.True(t, h.swap(t, "alice", 1_000_000).Scheduled)
	before := e.Snapshot()
	published := len(h.recorder.Events())

	_, err := e.AfterSwap(context.Background(), SwapEvent{
		Trader: "bob", Pool: pool, Delta0: math.NewInt(-1_000_000), Delta1: math.NewInt(990_000),
	})
	require.ErrorIs(t, err, ErrBatchSettlementFailed)
	require.ErrorIs(t, err, boom)
	require.Equal(t, KindBatch, Kind(err))

	after := e.Snapshot()
	require.Equal(t, before.State, after.State)
	require.Equal(t, []types.CompoundRequest{before.State.Queues[0].Requests[0]}, e.GetPendingBatch(pool))
	require.Equal(t, int64(3000), e.GetFeeAccounting("bob", pool).PendingCompound.Int64())
	require.Zero(t, e.GetGasCredits("alice"))
	require.Len(t, h.recorder.Events(), published, "nothing is published for a rolled back operation")
}

func TestEngine_ReentrantCallsRejectedDuringSettlement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var (
		engine *Engine
		errs   []error
	)
	reentrant := vault.ReinvestorFunc(func(ctx context.Context, plan types.SettlementPlan) (*types.SettlementReceipt, error) {
		errs = append(errs,
			engine.ScheduleCompound(ctx, "alice", pool, math.NewInt(1)),
			engine.EmergencyCompound(ctx, "alice", pool),
			engine.ActivateStrategy(ctx, "mallory", pool, 50, 5),
			engine.ForceBatchExecution(ctx, pool),
		)
		_, swapErr := engine.AfterSwap(ctx, SwapEvent{Trader: "alice", Pool: pool, Delta0: math.NewInt(-1000), Delta1: math.NewInt(990)})
		errs = append(errs, swapErr)
		return &types.SettlementReceipt{Reference: "ok"}, nil
	})
	h := newHarness(t, testingParams(), withReinvestor(reentrant))
	engine = h.engine

	h.swap(t, "alice", 1_000_000)
	require.NoError(t, engine.EmergencyCompound(ctx, "alice", pool))

	require.Len(t, errs, 5)
	for _, err := range errs {
		require.ErrorIs(t, err, ErrReentrantCall)
	}
	require.False(t, engine.GetStrategy("mallory").IsActive)
	require.Equal(t, int64(3000), engine.GetStrategy("alice").TotalCompounded.Int64())

	// The guard is released once settlement returns.
	require.NoError(t, engine.ActivateStrategy(ctx, "mallory", pool, 50, 5))
}

func TestEngine_ConcurrentCallerWaitsForSettlement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := vault.NewPositionLedger()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	blocking := vault.ReinvestorFunc(func(ctx context.Context, plan types.SettlementPlan) (*types.SettlementReceipt, error) {
		once.Do(func() { close(entered) })
		<-release
		return ledger.Reinvest(ctx, plan)
	})
	h := newHarness(t, testingParams(), withReinvestor(blocking))
	e := h.engine
	h.swap(t, "alice", 1_000_000)

	settled := make(chan error, 1)
	go func() { settled <- e.EmergencyCompound(ctx, "alice", pool) }()
	<-entered

	activated := make(chan error, 1)
	go func() { activated <- e.ActivateStrategy(ctx, "bob", pool, 50, 5) }()
	select {
	case err := <-activated:
		t.Fatalf("activation returned while another settlement was in flight: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-settled)
	require.NoError(t, <-activated)
	require.True(t, e.GetStrategy("bob").IsActive)
	require.Equal(t, int64(3000), ledger.Position("alice", pool).Int64())
}

func TestEngine_PanickingReinvestorLeavesEngineUsable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := vault.NewPositionLedger()
	var crashed atomic.Bool
	flaky := vault.ReinvestorFunc(func(ctx context.Context, plan types.SettlementPlan) (*types.SettlementReceipt, error) {
		if !crashed.Swap(true) {
			panic("venue client crashed")
		}
		return ledger.Reinvest(ctx, plan)
	})
	h := newHarness(t, testingParams(), withReinvestor(flaky))
	e := h.engine
	h.swap(t, "alice", 1_000_000)
	before := e.Snapshot()

	require.Panics(t, func() { _ = e.EmergencyCompound(ctx, "alice", pool) })
	require.Equal(t, before.State, e.Snapshot().State)

	require.NoError(t, e.ActivateStrategy(ctx, "bob", pool, 50, 5))
	require.NoError(t, e.EmergencyCompound(ctx, "alice", pool))
	require.Equal(t, int64(3000), e.GetStrategy("alice").TotalCompounded.Int64())
}

type countingOracle struct {
	calls atomic.Int64
	cost  uint64
}

func (o *countingOracle) CurrentCost(context.Context) (uint64, error) {
	o.calls.Add(1)
	return o.cost, nil
}

func TestEngine_OracleConsultedOnlyWhenCostDecides(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	oracle := &countingOracle{cost: 10}
	params := config.ProductionParameters
	params.MinCompoundAmount = math.NewInt(1)
	params.MinActionInterval = time.Minute
	h := newHarness(t, params, withOracle(oracle))
	e := h.engine

	// Trades by participants without a strategy never reach the oracle.
	for i := 0; i < 5; i++ {
		h.swap(t, "trader", 1_000_000)
	}
	require.Equal(t, eligibility.NotActive, e.EligibilityReason(ctx, "trader", pool))
	require.False(t, e.ShouldExecuteBatch(ctx, pool))
	require.Zero(t, oracle.calls.Load())

	// Nor do trades inside the action interval.
	require.NoError(t, e.ActivateStrategy(ctx, "alice", pool, 50, 5))
	h.swap(t, "alice", 1_000_000)
	require.Equal(t, eligibility.IntervalNotPassed, e.EligibilityReason(ctx, "alice", pool))
	require.Zero(t, oracle.calls.Load())

	h.clock.Advance(time.Minute)
	require.True(t, h.swap(t, "alice", 1_000_000).Scheduled)
	require.Equal(t, int64(1), oracle.calls.Load())

	// A lone request below the minimum batch size needs no cost to decide.
	require.False(t, e.ShouldExecuteBatch(ctx, pool))
	flushed, err := e.FlushDueBatches(ctx)
	require.NoError(t, err)
	require.Zero(t, flushed)
	require.Equal(t, int64(1), oracle.calls.Load())
}

type stalledOracle struct{}

func (stalledOracle) CurrentCost(ctx context.Context) (uint64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestEngine_StalledOracleIsBounded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	params := config.ProductionParameters
	params.MinCompoundAmount = math.NewInt(1)
	params.MinActionInterval = time.Minute
	h := newHarness(t, params, withOracle(stalledOracle{}), func(c *Config) {
		c.CostTimeout = 20 * time.Millisecond
	})
	e := h.engine

	require.NoError(t, e.ActivateStrategy(ctx, "alice", pool, 50, 5))
	h.swap(t, "alice", 1_000_000)
	h.clock.Advance(time.Minute)

	start := time.Now()
	ack := h.swap(t, "alice", 1_000_000)
	require.False(t, ack.Scheduled)
	require.Less(t, time.Since(start), 5*time.Second)

	err := e.Compound(ctx, "alice", pool)
	require.ErrorIs(t, err, ErrCannotCompoundNow)
	require.Contains(t, err.Error(), string(eligibility.CostUnknown))
}

func TestEngine_EventsAreSequenced(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, testingParams())
	h.activate(t, "alice")
	require.Error(t, h.engine.ActivateStrategy(ctx, "alice", pool, 50, 5))
	h.swap(t, "alice", 1_000_000)

	evts := h.recorder.Events()
	require.Len(t, evts, 3)
	for i, e := range evts {
		require.Equal(t, uint64(i+1), e.Sequence)
		require.NotEmpty(t, e.ID.String())
		require.Equal(t, t0, e.EmittedAt)
	}
}

func TestEngine_SnapshotRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, testingParams())
	h.activate(t, "alice", "bob")
	h.swap(t, "alice", 1_000_000)
	h.swap(t, "bob", 2_000_000)
	require.NoError(t, h.engine.AfterAddLiquidity(ctx, "bob", pool, math.NewInt(10)))
	h.clock.Advance(time.Minute)
	require.NoError(t, h.engine.ScheduleCompound(ctx, "alice", pool, math.NewInt(3000)))

	snap := h.engine.Snapshot()
	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored := newHarness(t, testingParams())
	require.NoError(t, restored.engine.Restore(ctx, decoded))

	again, err := json.Marshal(restored.engine.Snapshot().State)
	require.NoError(t, err)
	orig, err := json.Marshal(snap.State)
	require.NoError(t, err)
	require.JSONEq(t, string(orig), string(again))

	require.Equal(t, 1, restored.engine.GetPendingBatchSize(pool))
	require.Equal(t, []types.Address{"alice", "bob"}, restored.engine.GetActiveParticipants(pool))

	restored.swap(t, "bob", 1_000_000)
	evts := restored.recorder.Events()
	require.Equal(t, snap.Sequence+1, evts[0].Sequence)

	require.Error(t, h.engine.Restore(ctx, Snapshot{}), "cannot move the sequence backwards")
}

func TestKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err      error
		expected ErrorKind
	}{
		{nil, KindNone},
		{ErrInvalidRiskLevel, KindValidation},
		{ErrInvalidCostThreshold, KindValidation},
		{ErrInvalidAmount, KindValidation},
		{ErrStrategyAlreadyActive, KindState},
		{ErrStrategyNotActive, KindState},
		{ErrPoolAlreadyInitialized, KindState},
		{ErrCompoundAlreadyScheduled, KindState},
		{ErrReentrantCall, KindState},
		{ErrCannotCompoundNow, KindEligibility},
		{ErrCompoundConditionsNotMet, KindEligibility},
		{ErrNoFeesToCompound, KindData},
		{ErrNoPendingCompounds, KindData},
		{ErrBatchSettlementFailed, KindBatch},
		{errors.New("something else"), KindInternal},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, Kind(tt.err), "%v", tt.err)
	}
}
