// Package store holds the keyed state of the compounding engine and the undo-log
// transaction every mutation goes through.
package store

import (
	"sort"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/types"
)

// Store owns every record of one engine instance. It is not safe for concurrent use;
// the engine serializes access.
type Store struct {
	strategies map[types.Address]types.Strategy
	pools      map[types.PoolID]types.PoolAggregate
	members    map[types.PoolID][]types.Address
	fees       map[types.ParticipantPool]types.FeeAccounting
	liquidity  map[types.ParticipantPool]math.Int
	queues     map[types.PoolID][]types.CompoundRequest
	gasCredits map[types.Address]uint64
}

func New() *Store {
	return &Store{
		strategies: make(map[types.Address]types.Strategy),
		pools:      make(map[types.PoolID]types.PoolAggregate),
		members:    make(map[types.PoolID][]types.Address),
		fees:       make(map[types.ParticipantPool]types.FeeAccounting),
		liquidity:  make(map[types.ParticipantPool]math.Int),
		queues:     make(map[types.PoolID][]types.CompoundRequest),
		gasCredits: make(map[types.Address]uint64),
	}
}

// Strategy returns the participant's record, or the implicit zero record.
func (s *Store) Strategy(participant types.Address) types.Strategy {
	if st, ok := s.strategies[participant]; ok {
		return st
	}
	return types.NewStrategy()
}

// Pool returns the pool aggregate and whether it exists.
func (s *Store) Pool(pool types.PoolID) (types.PoolAggregate, bool) {
	p, ok := s.pools[pool]
	return p, ok
}

// PoolOrNew returns the pool aggregate, or a fresh zero aggregate.
func (s *Store) PoolOrNew(pool types.PoolID) types.PoolAggregate {
	if p, ok := s.pools[pool]; ok {
		return p
	}
	return types.NewPoolAggregate(pool)
}

// Pools returns every known pool id in lexical order.
func (s *Store) Pools() []types.PoolID {
	ids := make([]types.PoolID, 0, len(s.pools))
	for id := range s.pools {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Fees returns the (participant, pool) accounting record, or the zero record.
func (s *Store) Fees(participant types.Address, pool types.PoolID) types.FeeAccounting {
	if f, ok := s.fees[types.ParticipantPool{Participant: participant, Pool: pool}]; ok {
		return f
	}
	return types.NewFeeAccounting()
}

// Liquidity returns the net liquidity tracked for a participant in a pool.
func (s *Store) Liquidity(participant types.Address, pool types.PoolID) math.Int {
	if l, ok := s.liquidity[types.ParticipantPool{Participant: participant, Pool: pool}]; ok {
		return l
	}
	return math.ZeroInt()
}

// Members returns a copy of the pool's active participant list in insertion order.
func (s *Store) Members(pool types.PoolID) []types.Address {
	members := s.members[pool]
	out := make([]types.Address, len(members))
	copy(out, members)
	return out
}

// Queue returns a copy of the pool's pending batch, oldest first.
func (s *Store) Queue(pool types.PoolID) []types.CompoundRequest {
	q := s.queues[pool]
	out := make([]types.CompoundRequest, len(q))
	copy(out, q)
	return out
}

func (s *Store) QueueLen(pool types.PoolID) int {
	return len(s.queues[pool])
}

// QueuedIndex returns the position of the participant in the pool's queue, or -1.
func (s *Store) QueuedIndex(pool types.PoolID, participant types.Address) int {
	for i, req := range s.queues[pool] {
		if req.Participant == participant {
			return i
		}
	}
	return -1
}

// PoolsWithPendingBatches returns pools with a non-empty queue in lexical order.
func (s *Store) PoolsWithPendingBatches() []types.PoolID {
	ids := make([]types.PoolID, 0, len(s.queues))
	for id, q := range s.queues {
		if len(q) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) GasCredits(participant types.Address) uint64 {
	return s.gasCredits[participant]
}

func indexOf(list []types.Address, participant types.Address) int {
	for i, p := range list {
		if p == participant {
			return i
		}
	}
	return -1
}
