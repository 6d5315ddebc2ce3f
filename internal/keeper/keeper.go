// Package keeper runs the periodic sweep that flushes timed-out batches and persists engine state.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elys-network/autocompound/internal/compounder"
	"github.com/elys-network/autocompound/internal/logger"
	"github.com/elys-network/autocompound/internal/metrics"
	"github.com/elys-network/autocompound/internal/state"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Engine is the part of the compounding engine the keeper drives.
type Engine interface {
	FlushDueBatches(ctx context.Context) (int, error)
	Snapshot() compounder.Snapshot
}

// Store persists the cycle counter and engine snapshots.
type Store interface {
	IncrementCycleNumber(ctx context.Context) (int, error)
	SaveEngineSnapshot(ctx context.Context, cycleNumber int, snap compounder.Snapshot) (int64, error)
}

// PostgresStore is the Store backed by the state package. Keep bounds the number of retained
// snapshots; 0 keeps all.
type PostgresStore struct {
	Keep int
}

func (PostgresStore) IncrementCycleNumber(ctx context.Context) (int, error) {
	return state.IncrementCycleNumber(ctx)
}

func (p PostgresStore) SaveEngineSnapshot(ctx context.Context, cycleNumber int, snap compounder.Snapshot) (int64, error) {
	id, err := state.SaveEngineSnapshot(ctx, cycleNumber, snap)
	if err != nil || p.Keep <= 0 {
		return id, err
	}
	if _, err := state.PruneEngineSnapshots(ctx, p.Keep); err != nil {
		log := logger.GetForComponent("keeper")
		log.Warn().Err(err).Msg("Failed to prune old engine snapshots")
	}
	return id, nil
}

// Keeper flushes due batches on a cron schedule.
type Keeper struct {
	logger   zerolog.Logger
	engine   Engine
	store    Store
	clock    clockwork.Clock
	schedule string

	mu   sync.Mutex
	cron *cron.Cron
}

// Config holds the configuration for creating a new Keeper.
type Config struct {
	Engine   Engine
	Store    Store           // Optional; without it cycles are neither counted nor snapshotted
	Schedule string          // cron spec, e.g. "@every 1m"
	Clock    clockwork.Clock // Defaults to the real clock
}

// CycleResult describes one completed sweep.
type CycleResult struct {
	CycleID     string
	CycleNumber int
	Flushed     int
	SnapshotID  int64
	Duration    time.Duration
}

// New creates a keeper. The schedule is parsed up front so a bad spec fails at startup.
func New(cfg Config) (*Keeper, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("keeper configuration validation failed: engine cannot be nil")
	}
	if cfg.Schedule == "" {
		return nil, fmt.Errorf("keeper configuration validation failed: schedule cannot be empty")
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid keeper schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	k := &Keeper{
		logger:   logger.GetForComponent("keeper"),
		engine:   cfg.Engine,
		store:    cfg.Store,
		clock:    cfg.Clock,
		schedule: cfg.Schedule,
	}
	k.logger.Info().Str("schedule", cfg.Schedule).Bool("persistent", cfg.Store != nil).Msg("Keeper created")
	return k, nil
}

// Start registers the sweep and starts the scheduler. Overlapping sweeps are skipped.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cron != nil {
		return fmt.Errorf("keeper already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(k.schedule, func() {
		if _, err := k.RunCycle(ctx); err != nil {
			k.logger.Error().Err(err).Msg("Keeper cycle failed")
		}
	}); err != nil {
		return fmt.Errorf("register keeper sweep: %w", err)
	}
	c.Start()
	k.cron = c
	k.logger.Info().Msg("Keeper started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish or ctx to expire.
func (k *Keeper) Stop(ctx context.Context) {
	k.mu.Lock()
	c := k.cron
	k.cron = nil
	k.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
		k.logger.Info().Msg("Keeper stopped")
	case <-ctx.Done():
		k.logger.Warn().Msg("Keeper stop timed out waiting for running cycle")
	}
}

// RunCycle performs one sweep: flush due batches, take the next cycle number, save a snapshot.
// Flushed batches stay committed even when persistence fails.
func (k *Keeper) RunCycle(ctx context.Context) (CycleResult, error) {
	start := k.clock.Now()
	result := CycleResult{CycleID: uuid.New().String()}
	cycleLogger := k.logger.With().Str("cycle_id", result.CycleID).Logger()

	cycleLogger.Debug().Msg("--- Starting keeper cycle ---")

	var errs []error
	flushed, err := k.engine.FlushDueBatches(ctx)
	result.Flushed = flushed
	if err != nil {
		cycleLogger.Error().Err(err).Int("flushed", flushed).Msg("Some due batches could not be flushed")
		errs = append(errs, fmt.Errorf("flush due batches: %w", err))
	}

	if k.store != nil {
		if err := k.persist(ctx, &result); err != nil {
			cycleLogger.Error().Err(err).Msg("Failed to persist keeper cycle")
			errs = append(errs, err)
		}
	}

	result.Duration = k.clock.Since(start)
	metrics.KeeperSweepDuration.Observe(result.Duration.Seconds())

	err = errors.Join(errs...)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.KeeperSweepsTotal.WithLabelValues(status).Inc()

	event := cycleLogger.Info()
	if result.Flushed == 0 && err == nil {
		event = cycleLogger.Debug()
	}
	event.
		Int("cycle", result.CycleNumber).
		Int("flushed", result.Flushed).
		Int64("snapshotID", result.SnapshotID).
		Dur("duration", result.Duration).
		Msg("Keeper cycle completed")
	return result, err
}

func (k *Keeper) persist(ctx context.Context, result *CycleResult) error {
	cycleNumber, err := k.store.IncrementCycleNumber(ctx)
	if err != nil {
		return fmt.Errorf("increment cycle number: %w", err)
	}
	result.CycleNumber = cycleNumber

	snapshotID, err := k.store.SaveEngineSnapshot(ctx, cycleNumber, k.engine.Snapshot())
	if err != nil {
		return fmt.Errorf("save engine snapshot: %w", err)
	}
	result.SnapshotID = snapshotID
	return nil
}
