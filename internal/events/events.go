// Package events defines the audit-log events emitted by the compounding engine.
//
// Field names and field order of every payload are part of the persisted audit log layout
// and are read by downstream tooling. Add fields at the end; never rename or reorder.
package events

import (
	"encoding/json"
	"time"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/types"
	"github.com/google/uuid"
)

type Kind string

const (
	KindPoolInitialized     Kind = "pool_initialized"
	KindStrategyActivated   Kind = "strategy_activated"
	KindStrategyDeactivated Kind = "strategy_deactivated"
	KindStrategyUpdated     Kind = "strategy_updated"
	KindFeesCollected       Kind = "fees_collected"
	KindFeesCompounded      Kind = "fees_compounded"
	KindBatchScheduled      Kind = "batch_scheduled"
	KindBatchExecuted       Kind = "batch_executed"
	KindEmergencyCompound   Kind = "emergency_compound"
	KindParticipantAdded    Kind = "participant_added"
	KindParticipantRemoved  Kind = "participant_removed"
)

// Event is the envelope of every emitted event. Sequence is assigned by the engine and is
// strictly increasing within one engine instance.
type Event struct {
	ID          uuid.UUID     `json:"id"`
	Sequence    uint64        `json:"sequence"`
	Kind        Kind          `json:"kind"`
	Pool        types.PoolID  `json:"pool,omitempty"`
	Participant types.Address `json:"participant,omitempty"`
	EmittedAt   time.Time     `json:"emitted_at"`
	Data        any           `json:"data"`
}

// Record is an event read back from storage with its payload still encoded.
type Record struct {
	ID          uuid.UUID       `json:"id"`
	Sequence    uint64          `json:"sequence"`
	Kind        Kind            `json:"kind"`
	Pool        types.PoolID    `json:"pool,omitempty"`
	Participant types.Address   `json:"participant,omitempty"`
	EmittedAt   time.Time       `json:"emitted_at"`
	Data        json.RawMessage `json:"data"`
}

type PoolInitialized struct {
	FeeTier uint32 `json:"fee_tier"`
}

type StrategyActivated struct {
	CostThreshold uint64 `json:"cost_threshold"`
	RiskLevel     uint8  `json:"risk_level"`
}

type StrategyDeactivated struct {
	TotalCompounded math.Int `json:"total_compounded"`
}

type StrategyUpdated struct {
	CostThreshold uint64 `json:"cost_threshold"`
	RiskLevel     uint8  `json:"risk_level"`
}

type FeesCollected struct {
	Amount  math.Int `json:"amount"`
	Volume  math.Int `json:"volume"`
	FeeTier uint32   `json:"fee_tier"`
	Pending math.Int `json:"pending"`
}

type FeesCompounded struct {
	Amount   math.Int             `json:"amount"`
	Path     types.SettlementKind `json:"path"`
	BatchID  string               `json:"batch_id"`
	GasSaved uint64               `json:"gas_saved"`
}

// BatchScheduled records a request joining a pool's queue. Amount is what was requested at
// enqueue time; the flush settles the participant's pending amount as of the flush, which
// FeesCompounded reports.
type BatchScheduled struct {
	Amount    math.Int `json:"amount"`
	BatchSize int      `json:"batch_size"`
}

type BatchExecuted struct {
	BatchID          string          `json:"batch_id"`
	ParticipantCount int             `json:"participant_count"`
	Participants     []types.Address `json:"participants"`
	TotalAmount      math.Int        `json:"total_amount"`
	TotalCost        uint64          `json:"total_cost"`
	GasSaved         uint64          `json:"gas_saved"`
	Forced           bool            `json:"forced"`
	Reference        string          `json:"reference"`
}

type EmergencyCompound struct {
	Amount math.Int `json:"amount"`
}

type ParticipantAdded struct {
	ActiveParticipantCount int `json:"active_participant_count"`
}

type ParticipantRemoved struct {
	ActiveParticipantCount int    `json:"active_participant_count"`
	Reason                 string `json:"reason"`
}
