// Package batch keeps the per-pool queues of pending compounds, decides when a queue flushes
// and turns a flushed queue into settlements with their share of the batch cost.
package batch

import (
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/eligibility"
	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/store"
	"github.com/elys-network/autocompound/internal/types"
)

// Enqueue appends a request to the pool's queue. The caller makes room first when the queue
// is full.
func Enqueue(tx *store.Tx, em events.Emitter, params types.Parameters, pool types.PoolID, req types.CompoundRequest) error {
	if tx.QueuedIndex(pool, req.Participant) >= 0 {
		return fmt.Errorf("%w: %s in %s", types.ErrCompoundAlreadyScheduled, req.Participant, pool)
	}
	q := tx.Queue(pool)
	if len(q) >= params.MaxBatchSize {
		return fmt.Errorf("queue for %s is full (%d)", pool, len(q))
	}
	q = append(q, req)
	tx.SetQueue(pool, q)

	em.Emit(events.KindBatchScheduled, pool, req.Participant, events.BatchScheduled{
		Amount:    req.Amount,
		BatchSize: len(q),
	})
	return nil
}

// Dequeue removes the participant's request from the pool's queue if there is one.
func Dequeue(tx *store.Tx, pool types.PoolID, participant types.Address) bool {
	idx := tx.QueuedIndex(pool, participant)
	if idx < 0 {
		return false
	}
	q := tx.Queue(pool)
	tx.SetQueue(pool, append(q[:idx], q[idx+1:]...))
	return true
}

// IsFull reports whether the next enqueue needs a flush first.
func IsFull(s *store.Store, pool types.PoolID, params types.Parameters) bool {
	return s.QueueLen(pool) >= params.MaxBatchSize
}

// OldestAge returns how long the oldest queued request has waited.
func OldestAge(q []types.CompoundRequest, now time.Time) time.Duration {
	if len(q) == 0 {
		return 0
	}
	return now.Sub(q[0].EnqueuedAt)
}

// AverageCostThreshold is the mean cost threshold of the queued participants.
func AverageCostThreshold(s *store.Store, q []types.CompoundRequest) uint64 {
	if len(q) == 0 {
		return 0
	}
	var sum uint64
	for _, req := range q {
		sum += s.Strategy(req.Participant).CostThreshold
	}
	return sum / uint64(len(q))
}

// ShouldExecute reports whether the pool's queue is due. A non-empty queue flushes when it
// has reached the minimum size at a network cost the batch tolerates, when its oldest request
// has waited MaxBatchWaitTime, or when it is at MaxBatchSize.
func ShouldExecute(s *store.Store, pool types.PoolID, params types.Parameters, cond eligibility.Conditions) bool {
	q := s.Queue(pool)
	if len(q) == 0 {
		return false
	}
	if len(q) >= params.MaxBatchSize {
		return true
	}
	if OldestAge(q, cond.Now) >= params.MaxBatchWaitTime {
		return true
	}
	if len(q) < params.MinBatchSize {
		return false
	}
	if !params.CostGateEnabled {
		return true
	}
	return cond.CostKnown && AverageCostThreshold(s, q) >= cond.NetworkCost
}

// NeedsCost reports whether ShouldExecute would consult the network cost for the pool now.
func NeedsCost(s *store.Store, pool types.PoolID, params types.Parameters, now time.Time) bool {
	if !params.CostGateEnabled {
		return false
	}
	q := s.Queue(pool)
	return len(q) >= params.MinBatchSize &&
		len(q) < params.MaxBatchSize &&
		OldestAge(q, now) < params.MaxBatchWaitTime
}

// CostShare is the gas attributed to each participant of a batch of n, and what each saves
// compared with compounding alone.
func CostShare(params types.Parameters, n int) (share uint64, saved uint64) {
	if n <= 0 {
		return 0, 0
	}
	share = params.BatchOverheadCost/uint64(n) + params.PerParticipantBatchCost
	if params.IndividualCompoundCost > share {
		saved = params.IndividualCompoundCost - share
	}
	return share, saved
}

// PlanBatch builds the settlement plan for a flushed queue. Each participant settles their
// current pending amount; entries with nothing pending are skipped.
func PlanBatch(s *store.Store, pool types.PoolID, q []types.CompoundRequest, params types.Parameters, batchID string, now time.Time) types.SettlementPlan {
	participants := make([]types.Address, 0, len(q))
	for _, req := range q {
		if s.Fees(req.Participant, pool).PendingCompound.IsPositive() {
			participants = append(participants, req.Participant)
		}
	}
	share, saved := CostShare(params, len(participants))
	plan := newPlan(batchID, pool, types.SettlementBatch, now)
	for _, p := range participants {
		plan.add(types.Settlement{
			Participant: p,
			Amount:      s.Fees(p, pool).PendingCompound,
			CostShare:   share,
			GasSaved:    saved,
		})
	}
	return plan.SettlementPlan
}

// PlanSingle builds the plan for one participant settling alone, at the individual cost.
func PlanSingle(s *store.Store, pool types.PoolID, participant types.Address, kind types.SettlementKind, params types.Parameters, batchID string, now time.Time) types.SettlementPlan {
	plan := newPlan(batchID, pool, kind, now)
	plan.add(types.Settlement{
		Participant: participant,
		Amount:      s.Fees(participant, pool).PendingCompound,
		CostShare:   params.IndividualCompoundCost,
	})
	return plan.SettlementPlan
}

type planBuilder struct {
	types.SettlementPlan
}

func newPlan(batchID string, pool types.PoolID, kind types.SettlementKind, now time.Time) *planBuilder {
	return &planBuilder{types.SettlementPlan{
		BatchID:     batchID,
		Pool:        pool,
		Kind:        kind,
		TotalAmount: math.ZeroInt(),
		ExecutedAt:  now,
	}}
}

func (b *planBuilder) add(st types.Settlement) {
	b.Settlements = append(b.Settlements, st)
	b.TotalAmount = b.TotalAmount.Add(st.Amount)
	b.TotalCost += st.CostShare
}
