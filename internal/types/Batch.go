/*

This file contains the types for pending compound batches and the settlements produced when a batch is flushed.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
)

// CompoundRequest is one participant's entry in a pool's pending batch.
type CompoundRequest struct {
	Participant Address   `json:"participant"`
	Amount      math.Int  `json:"amount"` // Pending amount at the time the request was queued
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// SettlementKind tells the reinvestor which path produced a settlement.
type SettlementKind string

const (
	SettlementBatch     SettlementKind = "BATCH"
	SettlementDirect    SettlementKind = "DIRECT"
	SettlementEmergency SettlementKind = "EMERGENCY"
)

// Settlement is the reinvestment owed to a single participant.
type Settlement struct {
	Participant Address  `json:"participant"`
	Amount      math.Int `json:"amount"`
	CostShare   uint64   `json:"cost_share"` // Gas units attributed to this participant
	GasSaved    uint64   `json:"gas_saved"`  // Savings versus an individual compound
}

// SettlementPlan is handed to the reinvestor once all internal accounting has been applied.
type SettlementPlan struct {
	BatchID     string         `json:"batch_id"`
	Pool        PoolID         `json:"pool"`
	Kind        SettlementKind `json:"kind"`
	Settlements []Settlement   `json:"settlements"`
	TotalAmount math.Int       `json:"total_amount"`
	TotalCost   uint64         `json:"total_cost"` // Gas units for the whole settlement
	ExecutedAt  time.Time      `json:"executed_at"`
}

// SettlementReceipt is returned by the reinvestor for a successful settlement.
type SettlementReceipt struct {
	Reference string `json:"reference"` // Reinvestor-specific id (tx hash, ledger entry)
	GasUsed   uint64 `json:"gas_used"`
}
