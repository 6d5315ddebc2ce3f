package vault

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/logger"
	"github.com/elys-network/autocompound/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Position is the amount reinvested on behalf of one participant in one pool.
type Position struct {
	Participant types.Address `json:"participant"`
	Pool        types.PoolID  `json:"pool"`
	Amount      math.Int      `json:"amount"`
}

// PositionLedger is an in-memory Reinvestor that books settlements against per-participant
// positions. The daemon uses it when no external settlement venue is configured.
type PositionLedger struct {
	mu        sync.Mutex
	positions map[types.ParticipantPool]math.Int
	receipts  int
	logger    zerolog.Logger
}

func NewPositionLedger() *PositionLedger {
	return &PositionLedger{
		positions: make(map[types.ParticipantPool]math.Int),
		logger:    logger.GetForComponent("position_ledger"),
	}
}

// Reinvest books every settlement or none.
func (l *PositionLedger) Reinvest(ctx context.Context, plan types.SettlementPlan) (*types.SettlementReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, st := range plan.Settlements {
		if st.Amount.IsNil() || !st.Amount.IsPositive() {
			return nil, fmt.Errorf("settlement %d for %s has non-positive amount", i, st.Participant)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, st := range plan.Settlements {
		key := types.ParticipantPool{Participant: st.Participant, Pool: plan.Pool}
		current, ok := l.positions[key]
		if !ok {
			current = math.ZeroInt()
		}
		l.positions[key] = current.Add(st.Amount)
	}
	l.receipts++

	receipt := &types.SettlementReceipt{
		Reference: uuid.New().String(),
		GasUsed:   plan.TotalCost,
	}
	l.logger.Debug().
		Str("batchID", plan.BatchID).
		Str("pool", string(plan.Pool)).
		Str("kind", string(plan.Kind)).
		Int("settlements", len(plan.Settlements)).
		Str("totalAmount", plan.TotalAmount.String()).
		Str("reference", receipt.Reference).
		Msg("Settlement booked")
	return receipt, nil
}

// Position returns the amount reinvested for the participant in the pool.
func (l *PositionLedger) Position(participant types.Address, pool types.PoolID) math.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amt, ok := l.positions[types.ParticipantPool{Participant: participant, Pool: pool}]; ok {
		return amt
	}
	return math.ZeroInt()
}

// Positions returns every position ordered by pool, then participant.
func (l *PositionLedger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, 0, len(l.positions))
	for key, amt := range l.positions {
		out = append(out, Position{Participant: key.Participant, Pool: key.Pool, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pool != out[j].Pool {
			return out[i].Pool < out[j].Pool
		}
		return out[i].Participant < out[j].Participant
	})
	return out
}

// Receipts returns how many settlements have been booked.
func (l *PositionLedger) Receipts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.receipts
}
