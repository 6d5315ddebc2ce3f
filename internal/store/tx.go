package store

import (
	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/types"
)

// Tx applies writes directly to the store and keeps an undo log so the whole unit can be
// reverted. Writes are visible to readers of the store before Commit, which lets external
// collaborators invoked mid-operation observe fully-updated state.
type Tx struct {
	*Store
	undo []func()
	done bool
}

// Begin starts a transaction on the store.
func (s *Store) Begin() *Tx {
	return &Tx{Store: s}
}

// Commit discards the undo log. Subsequent Rollback calls are no-ops.
func (tx *Tx) Commit() {
	tx.undo = nil
	tx.done = true
}

// Rollback reverts every write made through the transaction, newest first.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.done = true
}

// Writes returns the number of writes recorded so far.
func (tx *Tx) Writes() int {
	return len(tx.undo)
}

func set[K comparable, V any](tx *Tx, m map[K]V, key K, value V) {
	old, existed := m[key]
	tx.undo = append(tx.undo, func() {
		if existed {
			m[key] = old
		} else {
			delete(m, key)
		}
	})
	m[key] = value
}

func (tx *Tx) SetStrategy(participant types.Address, st types.Strategy) {
	set(tx, tx.strategies, participant, st)
}

func (tx *Tx) SetPool(p types.PoolAggregate) {
	set(tx, tx.pools, p.PoolID, p)
}

func (tx *Tx) SetFees(participant types.Address, pool types.PoolID, f types.FeeAccounting) {
	set(tx, tx.fees, types.ParticipantPool{Participant: participant, Pool: pool}, f)
}

func (tx *Tx) SetLiquidity(participant types.Address, pool types.PoolID, amount math.Int) {
	set(tx, tx.liquidity, types.ParticipantPool{Participant: participant, Pool: pool}, amount)
}

func (tx *Tx) SetQueue(pool types.PoolID, q []types.CompoundRequest) {
	cp := make([]types.CompoundRequest, len(q))
	copy(cp, q)
	set(tx, tx.queues, pool, cp)
}

func (tx *Tx) AddGasCredits(participant types.Address, amount uint64) {
	set(tx, tx.gasCredits, participant, tx.gasCredits[participant]+amount)
}

// AddMember appends the participant to the pool's active set and keeps the aggregate's
// participant count in step. Returns false if already a member.
func (tx *Tx) AddMember(pool types.PoolID, participant types.Address) bool {
	current := tx.members[pool]
	if indexOf(current, participant) >= 0 {
		return false
	}
	next := make([]types.Address, len(current), len(current)+1)
	copy(next, current)
	next = append(next, participant)
	set(tx, tx.members, pool, next)

	agg := tx.PoolOrNew(pool)
	agg.ActiveParticipantCount = len(next)
	tx.SetPool(agg)
	return true
}

// RemoveMember drops the participant from the pool's active set, preserving the order of
// the remaining members. Returns false if not a member.
func (tx *Tx) RemoveMember(pool types.PoolID, participant types.Address) bool {
	current := tx.members[pool]
	idx := indexOf(current, participant)
	if idx < 0 {
		return false
	}
	next := make([]types.Address, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)
	set(tx, tx.members, pool, next)

	agg := tx.PoolOrNew(pool)
	agg.ActiveParticipantCount = len(next)
	tx.SetPool(agg)
	return true
}
