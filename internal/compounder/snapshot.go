package compounder

import (
	"context"
	"fmt"
	"time"

	"github.com/elys-network/autocompound/internal/store"
)

// Snapshot is the full engine state at a point in time.
type Snapshot struct {
	Sequence uint64         `json:"sequence"`
	TakenAt  time.Time      `json:"taken_at"`
	State    store.Snapshot `json:"state"`
}

// Snapshot copies the engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Sequence: e.sequence,
		TakenAt:  e.clock.Now(),
		State:    e.state.Snapshot(),
	}
}

// Restore replaces the engine state with the snapshot. Event sequencing continues from the
// snapshot's sequence.
func (e *Engine) Restore(ctx context.Context, snap Snapshot) error {
	if e.withinSettlement(ctx) {
		return fmt.Errorf("restore: %w", ErrReentrantCall)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if snap.Sequence < e.sequence {
		return fmt.Errorf("snapshot sequence %d is behind engine sequence %d", snap.Sequence, e.sequence)
	}
	e.state = store.FromSnapshot(snap.State)
	e.sequence = snap.Sequence
	e.logger.Info().
		Uint64("sequence", snap.Sequence).
		Time("takenAt", snap.TakenAt).
		Int("strategies", len(snap.State.Strategies)).
		Int("pools", len(snap.State.Pools)).
		Msg("Engine state restored from snapshot")
	return nil
}
