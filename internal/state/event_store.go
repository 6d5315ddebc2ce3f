package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/metrics"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// EventStore persists committed engine events to the engine_events table.
type EventStore struct{}

var _ events.Sink = EventStore{}

// Publish writes all events in one transaction.
func (EventStore) Publish(ctx context.Context, evts []events.Event) (err error) {
	if len(evts) == 0 {
		return nil
	}
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	defer func() {
		if err != nil {
			metrics.EventStoreWritesTotal.WithLabelValues("error").Inc()
			return
		}
		metrics.EventStoreWritesTotal.WithLabelValues("success").Add(float64(len(evts)))
	}()

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO engine_events (
			event_id, sequence, kind, pool_id, participant, emitted_at, data, batch_id, batch_participants
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING;`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range evts {
		row, rowErr := eventRowFrom(e)
		if rowErr != nil {
			err = rowErr
			return err
		}
		if _, err = stmt.ExecContext(ctx,
			e.ID, int64(e.Sequence), string(e.Kind), string(e.Pool), string(e.Participant), e.EmittedAt,
			row.data, row.batchID, pq.Array(row.participants),
		); err != nil {
			return fmt.Errorf("failed to insert event %d (%s): %w", e.Sequence, e.Kind, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	log.Debug().Int("count", len(evts)).Uint64("last_sequence", evts[len(evts)-1].Sequence).Msg("Persisted engine events")
	return nil
}

type eventRow struct {
	data         []byte
	batchID      sql.NullString
	participants []string
}

// eventRowFrom encodes the payload and lifts batch columns out of settlement events.
func eventRowFrom(e events.Event) (eventRow, error) {
	var row eventRow
	data, err := json.Marshal(e.Data)
	if err != nil {
		return row, fmt.Errorf("failed to marshal %s payload: %w", e.Kind, err)
	}
	row.data = data

	switch d := e.Data.(type) {
	case events.BatchExecuted:
		row.batchID = sql.NullString{String: d.BatchID, Valid: d.BatchID != ""}
		row.participants = make([]string, len(d.Participants))
		for i, p := range d.Participants {
			row.participants[i] = string(p)
		}
	case events.FeesCompounded:
		row.batchID = sql.NullString{String: d.BatchID, Valid: d.BatchID != ""}
	}
	return row, nil
}
