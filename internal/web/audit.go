package web

import (
	"context"
	"time"

	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/state"
	"github.com/elys-network/autocompound/internal/types"
)

// AuditLog is the read side of the event history.
type AuditLog interface {
	RecentEvents(ctx context.Context, limit int) ([]events.Record, error)
	ParticipantEvents(ctx context.Context, participant types.Address, limit int) ([]events.Record, error)
	PoolBatches(ctx context.Context, pool types.PoolID, limit int) ([]state.BatchRecord, error)
	BatchSummary(ctx context.Context) (*state.BatchSummary, error)
}

var (
	_ AuditLog = state.AuditLog{}
	_ AuditLog = RecorderAudit{}
)

// RecorderAudit serves the event history from an in-memory recorder when no database is configured.
type RecorderAudit struct {
	Recorder *events.Recorder
}

func (a RecorderAudit) RecentEvents(_ context.Context, limit int) ([]events.Record, error) {
	return a.newest(limit, func(events.Event) bool { return true })
}

func (a RecorderAudit) ParticipantEvents(_ context.Context, participant types.Address, limit int) ([]events.Record, error) {
	return a.newest(limit, func(e events.Event) bool {
		if e.Participant == participant {
			return true
		}
		if b, ok := e.Data.(events.BatchExecuted); ok {
			for _, p := range b.Participants {
				if p == participant {
					return true
				}
			}
		}
		return false
	})
}

func (a RecorderAudit) PoolBatches(_ context.Context, pool types.PoolID, limit int) ([]state.BatchRecord, error) {
	records, err := a.newest(limit, func(e events.Event) bool {
		return e.Kind == events.KindBatchExecuted && e.Pool == pool
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]events.BatchExecuted)
	for _, e := range a.Recorder.Events() {
		if b, ok := e.Data.(events.BatchExecuted); ok {
			byID[e.ID.String()] = b
		}
	}
	batches := make([]state.BatchRecord, 0, len(records))
	for _, r := range records {
		b := byID[r.ID.String()]
		batches = append(batches, state.BatchRecord{
			BatchID:      b.BatchID,
			Pool:         r.Pool,
			Participants: b.Participants,
			ExecutedAt:   r.EmittedAt,
			Data:         r.Data,
		})
	}
	return batches, nil
}

func (a RecorderAudit) BatchSummary(context.Context) (*state.BatchSummary, error) {
	var (
		summary state.BatchSummary
		last    time.Time
	)
	for _, e := range a.Recorder.Events() {
		b, ok := e.Data.(events.BatchExecuted)
		if !ok {
			continue
		}
		summary.BatchesExecuted++
		summary.ParticipantsSettled += int64(b.ParticipantCount)
		summary.TotalGasSaved += int64(b.GasSaved)
		if b.Forced {
			summary.ForcedBatches++
		}
		if e.EmittedAt.After(last) {
			last = e.EmittedAt
		}
	}
	if summary.BatchesExecuted > 0 {
		summary.AverageBatchSize = float64(summary.ParticipantsSettled) / float64(summary.BatchesExecuted)
		summary.LastExecutedAt = &last
	}
	return &summary, nil
}

func (a RecorderAudit) newest(limit int, keep func(events.Event) bool) ([]events.Record, error) {
	evts := a.Recorder.Events()
	var out []events.Record
	for i := len(evts) - 1; i >= 0 && len(out) < limit; i-- {
		if !keep(evts[i]) {
			continue
		}
		r, err := events.ToRecord(evts[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
