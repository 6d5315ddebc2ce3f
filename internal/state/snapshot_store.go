// ./internal/state/snapshot_store.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elys-network/autocompound/internal/compounder"
	"github.com/rs/zerolog/log"
)

// SaveEngineSnapshot stores the engine state taken at the end of a keeper cycle.
func SaveEngineSnapshot(ctx context.Context, cycleNumber int, snap compounder.Snapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	stateJSON, err := json.Marshal(snap.State)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal engine state for cycle %d: %w", cycleNumber, err)
	}

	var snapshotID int64
	err = DB.QueryRowContext(ctx, `
		INSERT INTO engine_snapshots (cycle_number, sequence, taken_at, state)
		VALUES ($1, $2, $3, $4)
		RETURNING snapshot_id;`,
		cycleNumber, int64(snap.Sequence), snap.TakenAt, stateJSON,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert engine snapshot for cycle %d: %w", cycleNumber, err)
	}

	log.Debug().
		Int("cycle", cycleNumber).
		Int64("snapshot_id", snapshotID).
		Uint64("sequence", snap.Sequence).
		Msg("Saved engine snapshot")
	return snapshotID, nil
}

// LoadLatestEngineSnapshot returns the most recent snapshot, or nil if none was ever saved.
func LoadLatestEngineSnapshot(ctx context.Context) (*compounder.Snapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var (
		snap      compounder.Snapshot
		sequence  int64
		stateJSON []byte
	)
	err := DB.QueryRowContext(ctx, `
		SELECT sequence, taken_at, state
		FROM engine_snapshots
		ORDER BY taken_at DESC, snapshot_id DESC
		LIMIT 1;`).Scan(&sequence, &snap.TakenAt, &stateJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load latest engine snapshot: %w", err)
	}
	if err := json.Unmarshal(stateJSON, &snap.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal engine snapshot: %w", err)
	}
	snap.Sequence = uint64(sequence)
	return &snap, nil
}

// PruneEngineSnapshots keeps only the newest `keep` snapshots.
func PruneEngineSnapshots(ctx context.Context, keep int) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if keep < 1 {
		return 0, fmt.Errorf("must keep at least one snapshot, got %d", keep)
	}
	result, err := DB.ExecContext(ctx, `
		DELETE FROM engine_snapshots
		WHERE snapshot_id NOT IN (
			SELECT snapshot_id FROM engine_snapshots
			ORDER BY taken_at DESC, snapshot_id DESC
			LIMIT $1
		);`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune engine snapshots: %w", err)
	}
	return result.RowsAffected()
}
