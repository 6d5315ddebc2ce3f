// ./internal/state/analytics.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/types"
	"github.com/lib/pq"
)

// BatchRecord summarizes one executed batch from the audit log.
type BatchRecord struct {
	BatchID      string          `json:"batch_id"`
	Pool         types.PoolID    `json:"pool"`
	Participants []types.Address `json:"participants"`
	ExecutedAt   time.Time       `json:"executed_at"`
	Data         json.RawMessage `json:"data"`
}

// BatchSummary aggregates all executed batches.
type BatchSummary struct {
	BatchesExecuted     int64      `json:"batches_executed"`
	ParticipantsSettled int64      `json:"participants_settled"`
	AverageBatchSize    float64    `json:"average_batch_size"`
	TotalGasSaved       int64      `json:"total_gas_saved"`
	ForcedBatches       int64      `json:"forced_batches"`
	LastExecutedAt      *time.Time `json:"last_executed_at,omitempty"`
}

// GetRecentEvents returns the newest events, newest first.
func GetRecentEvents(ctx context.Context, limit int) ([]events.Record, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := DB.QueryContext(ctx, `
		SELECT event_id, sequence, kind, pool_id, participant, emitted_at, data
		FROM engine_events
		ORDER BY emitted_at DESC, sequence DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// GetParticipantEvents returns the newest events about one participant, including batches
// the participant was settled in.
func GetParticipantEvents(ctx context.Context, participant types.Address, limit int) ([]events.Record, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := DB.QueryContext(ctx, `
		SELECT event_id, sequence, kind, pool_id, participant, emitted_at, data
		FROM engine_events
		WHERE participant = $1 OR $1 = ANY(batch_participants)
		ORDER BY emitted_at DESC, sequence DESC
		LIMIT $2`, string(participant), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for %s: %w", participant, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// GetBatchesForPool returns the newest executed batches of a pool.
func GetBatchesForPool(ctx context.Context, pool types.PoolID, limit int) ([]BatchRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := DB.QueryContext(ctx, `
		SELECT batch_id, pool_id, batch_participants, emitted_at, data
		FROM engine_events
		WHERE kind = $1 AND pool_id = $2
		ORDER BY emitted_at DESC
		LIMIT $3`, string(events.KindBatchExecuted), string(pool), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches for pool %s: %w", pool, err)
	}
	defer rows.Close()

	var batches []BatchRecord
	for rows.Next() {
		var (
			b            BatchRecord
			batchID      sql.NullString
			poolID       string
			participants []string
		)
		if err := rows.Scan(&batchID, &poolID, pq.Array(&participants), &b.ExecutedAt, &b.Data); err != nil {
			return nil, fmt.Errorf("failed to scan batch row: %w", err)
		}
		b.BatchID = batchID.String
		b.Pool = types.PoolID(poolID)
		b.Participants = make([]types.Address, len(participants))
		for i, p := range participants {
			b.Participants[i] = types.Address(p)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batch rows: %w", err)
	}
	return batches, nil
}

// GetBatchSummary aggregates every batch_executed event.
func GetBatchSummary(ctx context.Context) (*BatchSummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	var (
		summary BatchSummary
		avgSize sql.NullFloat64
		lastAt  sql.NullTime
	)
	err := DB.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(COALESCE(array_length(batch_participants, 1), 0)), 0),
			AVG(COALESCE(array_length(batch_participants, 1), 0)),
			COALESCE(SUM((data->>'gas_saved')::BIGINT), 0),
			COUNT(*) FILTER (WHERE (data->>'forced')::BOOLEAN),
			MAX(emitted_at)
		FROM engine_events
		WHERE kind = $1`, string(events.KindBatchExecuted)).Scan(
		&summary.BatchesExecuted,
		&summary.ParticipantsSettled,
		&avgSize,
		&summary.TotalGasSaved,
		&summary.ForcedBatches,
		&lastAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch summary: %w", err)
	}
	if avgSize.Valid {
		summary.AverageBatchSize = avgSize.Float64
	}
	if lastAt.Valid {
		summary.LastExecutedAt = &lastAt.Time
	}
	return &summary, nil
}

func scanRecords(rows *sql.Rows) ([]events.Record, error) {
	var records []events.Record
	for rows.Next() {
		var (
			r           events.Record
			sequence    int64
			kind        string
			pool        string
			participant string
		)
		if err := rows.Scan(&r.ID, &sequence, &kind, &pool, &participant, &r.EmittedAt, &r.Data); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		r.Sequence = uint64(sequence)
		r.Kind = events.Kind(kind)
		r.Pool = types.PoolID(pool)
		r.Participant = types.Address(participant)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return records, nil
}

// AuditLog exposes the audit-log queries as methods for the HTTP API.
type AuditLog struct{}

func (AuditLog) RecentEvents(ctx context.Context, limit int) ([]events.Record, error) {
	return GetRecentEvents(ctx, limit)
}

func (AuditLog) ParticipantEvents(ctx context.Context, participant types.Address, limit int) ([]events.Record, error) {
	return GetParticipantEvents(ctx, participant, limit)
}

func (AuditLog) PoolBatches(ctx context.Context, pool types.PoolID, limit int) ([]BatchRecord, error) {
	return GetBatchesForPool(ctx, pool, limit)
}

func (AuditLog) BatchSummary(ctx context.Context) (*BatchSummary, error) {
	return GetBatchSummary(ctx)
}
