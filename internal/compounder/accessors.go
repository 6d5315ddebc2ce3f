package compounder

import (
	"context"

	"github.com/elys-network/autocompound/internal/batch"
	"github.com/elys-network/autocompound/internal/eligibility"
	"github.com/elys-network/autocompound/internal/types"
)

// Read accessors take the engine lock and must not be called from inside a Reinvestor.

func (e *Engine) GetStrategy(participant types.Address) types.Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Strategy(participant)
}

func (e *Engine) GetPool(pool types.PoolID) (types.PoolAggregate, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Pool(pool)
}

// GetPools returns every pool the engine has a record for.
func (e *Engine) GetPools() []types.PoolAggregate {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := e.state.Pools()
	out := make([]types.PoolAggregate, 0, len(ids))
	for _, id := range ids {
		agg, _ := e.state.Pool(id)
		out = append(out, agg)
	}
	return out
}

func (e *Engine) GetFeeAccounting(participant types.Address, pool types.PoolID) types.FeeAccounting {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Fees(participant, pool)
}

func (e *Engine) GetActiveParticipants(pool types.PoolID) []types.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Members(pool)
}

func (e *Engine) GetPendingBatchSize(pool types.PoolID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.QueueLen(pool)
}

func (e *Engine) GetPendingBatch(pool types.PoolID) []types.CompoundRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Queue(pool)
}

// GetGasCredits returns the gas the participant has saved through batching.
func (e *Engine) GetGasCredits(participant types.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.GasCredits(participant)
}

// GetTotalGasSaved returns the gas saved by batching across all participants of the pool.
func (e *Engine) GetTotalGasSaved(pool types.PoolID) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	agg, _ := e.state.Pool(pool)
	return agg.TotalGasSaved
}

func (e *Engine) ShouldCompound(ctx context.Context, participant types.Address, pool types.PoolID) bool {
	return e.EligibilityReason(ctx, participant, pool) == eligibility.Eligible
}

// EligibilityReason returns the first gate the participant fails, or eligibility.Eligible.
func (e *Engine) EligibilityReason(ctx context.Context, participant types.Address, pool types.PoolID) eligibility.Reason {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, fees := e.state.Strategy(participant), e.state.Fees(participant, pool)
	return eligibility.Evaluate(st, fees, e.conditionsFor(ctx, st, fees), e.params)
}

func (e *Engine) ShouldExecuteBatch(ctx context.Context, pool types.PoolID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return batch.ShouldExecute(e.state, pool, e.params, e.batchConditions(ctx, e.state, pool))
}

// Parameters returns the parameter set the engine runs with.
func (e *Engine) Parameters() types.Parameters {
	return e.params
}
