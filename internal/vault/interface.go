package vault

import (
	"context"

	"github.com/elys-network/autocompound/internal/types"
)

// Reinvestor defines the boundary where compounded fees leave the engine and go back into
// participants' positions. Implementations may be a ledger, a chain client or a test double.
//
// The engine calls Reinvest only after all of its own accounting for the plan has been applied.
// Any error makes the engine discard the whole plan, so implementations must either move every
// settlement or none.
type Reinvestor interface {
	// Reinvest moves each settlement's amount into the participant's position in plan.Pool.
	Reinvest(ctx context.Context, plan types.SettlementPlan) (*types.SettlementReceipt, error)
}

// ReinvestorFunc adapts a function to the Reinvestor interface.
type ReinvestorFunc func(ctx context.Context, plan types.SettlementPlan) (*types.SettlementReceipt, error)

func (f ReinvestorFunc) Reinvest(ctx context.Context, plan types.SettlementPlan) (*types.SettlementReceipt, error) {
	return f(ctx, plan)
}
