// Package compounder is the auto-compounding engine attached to a pool's trade pipeline.
//
// The engine owns all strategy, accrual and batch state for the pools it is attached to.
// Every public call is serialized and runs as one all-or-nothing unit: writes go through an
// undo-log transaction, events are buffered and only published once the unit commits.
package compounder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/elys-network/autocompound/internal/batch"
	"github.com/elys-network/autocompound/internal/eligibility"
	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/logger"
	"github.com/elys-network/autocompound/internal/netcost"
	"github.com/elys-network/autocompound/internal/store"
	"github.com/elys-network/autocompound/internal/types"
	"github.com/elys-network/autocompound/internal/vault"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Engine is the compounding engine. Create it with New.
type Engine struct {
	mu sync.Mutex

	state      *store.Store
	params     types.Parameters
	clock      clockwork.Clock
	oracle     netcost.Oracle
	reinvestor vault.Reinvestor
	sink       events.Sink
	logger     zerolog.Logger

	costTimeout time.Duration
	sequence    uint64
}

// Config holds the dependencies of an Engine.
type Config struct {
	Params     types.Parameters
	Reinvestor vault.Reinvestor
	Oracle     netcost.Oracle  // Required when the cost gate is enabled
	Clock      clockwork.Clock // Defaults to the real clock
	Sink       events.Sink     // Optional
	Logger     *zerolog.Logger // Defaults to the "compounder" component logger

	// CostTimeout bounds a single oracle call. Defaults to DEFAULT_COST_TIMEOUT.
	CostTimeout time.Duration
}

const DEFAULT_COST_TIMEOUT = 2 * time.Second

// New creates an engine with empty state.
func New(cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Oracle == nil {
		cfg.Oracle = netcost.Static(0)
	}
	if cfg.CostTimeout <= 0 {
		cfg.CostTimeout = DEFAULT_COST_TIMEOUT
	}
	l := logger.GetForComponent("compounder")
	if cfg.Logger != nil {
		l = *cfg.Logger
	}

	e := &Engine{
		state:      store.New(),
		params:     cfg.Params,
		clock:      cfg.Clock,
		oracle:     cfg.Oracle,
		reinvestor: cfg.Reinvestor,
		sink:       cfg.Sink,
		logger:     l,

		costTimeout: cfg.CostTimeout,
	}

	e.logger.Info().
		Bool("costGateEnabled", cfg.Params.CostGateEnabled).
		Str("minCompoundAmount", cfg.Params.MinCompoundAmount.String()).
		Dur("minActionInterval", cfg.Params.MinActionInterval).
		Int("minBatchSize", cfg.Params.MinBatchSize).
		Int("maxBatchSize", cfg.Params.MaxBatchSize).
		Dur("maxBatchWaitTime", cfg.Params.MaxBatchWaitTime).
		Msg("Compounding engine created")
	return e, nil
}

func validateConfig(cfg Config) error {
	if err := cfg.Params.Validate(); err != nil {
		return err
	}
	if cfg.Reinvestor == nil {
		return fmt.Errorf("reinvestor cannot be nil")
	}
	if cfg.Params.CostGateEnabled && cfg.Oracle == nil {
		return fmt.Errorf("cost oracle is required when the cost gate is enabled")
	}
	return nil
}

// unit is one all-or-nothing piece of work.
type unit struct {
	tx  *store.Tx
	buf events.Buffer
}

// settlementKey marks the context handed to the reinvestor. Its value is the settling engine.
type settlementKey struct{}

// withinSettlement reports whether ctx descends from one of this engine's settlements.
// Reinvestors must pass the context they were given to any engine call they make.
func (e *Engine) withinSettlement(ctx context.Context) bool {
	owner, _ := ctx.Value(settlementKey{}).(*Engine)
	return owner == e
}

// mutate runs fn as one unit. Any error rolls back every write fn made; on success the
// buffered events are stamped and published. Calls from inside this engine's own settlement
// are rejected, every other caller waits for the lock.
func (e *Engine) mutate(ctx context.Context, op string, fn func(u *unit) error) error {
	if e.withinSettlement(ctx) {
		return fmt.Errorf("%s: %w", op, ErrReentrantCall)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	u := &unit{tx: e.state.Begin()}
	defer u.tx.Rollback()

	if err := fn(u); err != nil {
		e.logger.Debug().Err(err).Str("op", op).Int("revertedWrites", u.tx.Writes()).Msg("Operation rolled back")
		return err
	}
	u.tx.Commit()
	e.publish(ctx, u.buf.Drain())
	return nil
}

func (e *Engine) publish(ctx context.Context, evts []events.Event) {
	if len(evts) == 0 {
		return
	}
	now := e.clock.Now()
	for i := range evts {
		e.sequence++
		evts[i].ID = uuid.New()
		evts[i].Sequence = e.sequence
		evts[i].EmittedAt = now
	}
	if e.sink == nil {
		return
	}
	if err := e.sink.Publish(ctx, evts); err != nil {
		e.logger.Error().Err(err).Int("events", len(evts)).Msg("Failed to publish events")
	}
}

// now returns conditions carrying only the current time.
func (e *Engine) now() eligibility.Conditions {
	return eligibility.Conditions{Now: e.clock.Now()}
}

// sampleCost fills in the network cost. A failed or timed out oracle call leaves the cost
// unknown, which the cost gate treats as a rejection.
func (e *Engine) sampleCost(ctx context.Context, cond eligibility.Conditions) eligibility.Conditions {
	cctx, cancel := context.WithTimeout(ctx, e.costTimeout)
	defer cancel()
	cost, err := e.oracle.CurrentCost(cctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Network cost unavailable, cost gate will reject")
		return cond
	}
	cond.NetworkCost = cost
	cond.CostKnown = true
	return cond
}

// conditionsFor samples the oracle only when the cost gate is the one left to decide the
// participant's eligibility.
func (e *Engine) conditionsFor(ctx context.Context, st types.Strategy, fees types.FeeAccounting) eligibility.Conditions {
	cond := e.now()
	if !eligibility.NeedsCost(st, fees, cond.Now, e.params) {
		return cond
	}
	return e.sampleCost(ctx, cond)
}

// batchConditions samples the oracle only when the pool's flush decision depends on the cost.
func (e *Engine) batchConditions(ctx context.Context, s *store.Store, pool types.PoolID) eligibility.Conditions {
	cond := e.now()
	if !batch.NeedsCost(s, pool, e.params, cond.Now) {
		return cond
	}
	return e.sampleCost(ctx, cond)
}

func newBatchID() string {
	return uuid.New().String()
}
