package store

import (
	"sort"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/types"
)

// Snapshot is a serializable copy of a store. Entries are sorted so equal stores produce
// byte-identical JSON.
type Snapshot struct {
	Strategies []StrategyEntry       `json:"strategies"`
	Pools      []types.PoolAggregate `json:"pools"`
	Members    []MembersEntry        `json:"members"`
	Fees       []FeesEntry           `json:"fees"`
	Liquidity  []LiquidityEntry      `json:"liquidity"`
	Queues     []QueueEntry          `json:"queues"`
	GasCredits []GasCreditEntry      `json:"gas_credits"`
}

type StrategyEntry struct {
	Participant types.Address  `json:"participant"`
	Strategy    types.Strategy `json:"strategy"`
}

type MembersEntry struct {
	Pool         types.PoolID    `json:"pool"`
	Participants []types.Address `json:"participants"`
}

type FeesEntry struct {
	types.ParticipantPool
	Fees types.FeeAccounting `json:"fees"`
}

type LiquidityEntry struct {
	types.ParticipantPool
	Amount math.Int `json:"amount"`
}

type QueueEntry struct {
	Pool     types.PoolID            `json:"pool"`
	Requests []types.CompoundRequest `json:"requests"`
}

type GasCreditEntry struct {
	Participant types.Address `json:"participant"`
	Credits     uint64        `json:"credits"`
}

// Snapshot copies the store.
func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	for p, st := range s.strategies {
		snap.Strategies = append(snap.Strategies, StrategyEntry{Participant: p, Strategy: st})
	}
	sort.Slice(snap.Strategies, func(i, j int) bool { return snap.Strategies[i].Participant < snap.Strategies[j].Participant })

	for _, id := range s.Pools() {
		snap.Pools = append(snap.Pools, s.pools[id])
	}
	for pool, members := range s.members {
		if len(members) == 0 {
			continue
		}
		snap.Members = append(snap.Members, MembersEntry{Pool: pool, Participants: s.Members(pool)})
	}
	sort.Slice(snap.Members, func(i, j int) bool { return snap.Members[i].Pool < snap.Members[j].Pool })

	for key, f := range s.fees {
		snap.Fees = append(snap.Fees, FeesEntry{ParticipantPool: key, Fees: f})
	}
	sort.Slice(snap.Fees, func(i, j int) bool { return lessKey(snap.Fees[i].ParticipantPool, snap.Fees[j].ParticipantPool) })

	for key, l := range s.liquidity {
		snap.Liquidity = append(snap.Liquidity, LiquidityEntry{ParticipantPool: key, Amount: l})
	}
	sort.Slice(snap.Liquidity, func(i, j int) bool {
		return lessKey(snap.Liquidity[i].ParticipantPool, snap.Liquidity[j].ParticipantPool)
	})

	for _, pool := range s.PoolsWithPendingBatches() {
		snap.Queues = append(snap.Queues, QueueEntry{Pool: pool, Requests: s.Queue(pool)})
	}

	for p, c := range s.gasCredits {
		snap.GasCredits = append(snap.GasCredits, GasCreditEntry{Participant: p, Credits: c})
	}
	sort.Slice(snap.GasCredits, func(i, j int) bool { return snap.GasCredits[i].Participant < snap.GasCredits[j].Participant })

	return snap
}

// FromSnapshot rebuilds a store from a snapshot.
func FromSnapshot(snap Snapshot) *Store {
	s := New()
	for _, e := range snap.Strategies {
		s.strategies[e.Participant] = e.Strategy
	}
	for _, p := range snap.Pools {
		s.pools[p.PoolID] = p
	}
	for _, e := range snap.Members {
		members := make([]types.Address, len(e.Participants))
		copy(members, e.Participants)
		s.members[e.Pool] = members
	}
	for _, e := range snap.Fees {
		s.fees[e.ParticipantPool] = e.Fees
	}
	for _, e := range snap.Liquidity {
		s.liquidity[e.ParticipantPool] = e.Amount
	}
	for _, e := range snap.Queues {
		q := make([]types.CompoundRequest, len(e.Requests))
		copy(q, e.Requests)
		s.queues[e.Pool] = q
	}
	for _, e := range snap.GasCredits {
		s.gasCredits[e.Participant] = e.Credits
	}
	return s
}

func lessKey(a, b types.ParticipantPool) bool {
	if a.Participant != b.Participant {
		return a.Participant < b.Participant
	}
	return a.Pool < b.Pool
}
