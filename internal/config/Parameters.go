/*

This file contains the parameter profiles for the compounding engine.

ProductionParameters is what a live pool runs with. TestingParameters keeps every gate in place
but shrinks amounts and intervals so a local pool can exercise the full compound cycle in minutes.

*/

package config

import (
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/types"
)

const (
	ProfileProduction = "production"
	ProfileTesting    = "testing"
)

// ProductionParameters is the reference parameter set.
var ProductionParameters = types.Parameters{
	// --- Eligibility ---
	MinCompoundAmount: math.NewInt(1_000_000_000_000_000), // 0.001 of an 18-decimal base unit.
	// Rationale: below this the reinvested amount is smaller than the cost of moving it.

	MinActionInterval: time.Hour, // At most one compound per participant per hour.
	// Rationale: compounding more often than hourly adds cost without measurable yield.

	MaxCost: 100, // Network cost ceiling (gwei).
	// Rationale: participants may choose a lower threshold, never a higher one.

	CostGateEnabled: true,

	// --- Batching ---
	MinBatchSize: 2, // A batch of one saves nothing.

	MaxBatchSize: 10, // Cap the number of participants settled in one unit.
	// Rationale: keeps a single settlement well inside execution limits.

	MaxBatchWaitTime: 30 * time.Minute, // A lone request never waits longer than this.

	// --- Cost model ---
	IndividualCompoundCost:  120_000,
	BatchOverheadCost:       80_000,
	PerParticipantBatchCost: 40_000,
}

// TestingParameters lowers the floors for accelerated local runs.
var TestingParameters = types.Parameters{
	MinCompoundAmount: math.NewInt(1), // Smallest representable unit.
	MinActionInterval: time.Minute,
	MaxCost:           100,
	CostGateEnabled:   false, // Local networks report meaningless costs.

	MinBatchSize:     2,
	MaxBatchSize:     10,
	MaxBatchWaitTime: 2 * time.Minute,

	IndividualCompoundCost:  120_000,
	BatchOverheadCost:       80_000,
	PerParticipantBatchCost: 40_000,
}

// ParametersForProfile returns a copy of the named built-in profile.
func ParametersForProfile(profile string) (types.Parameters, error) {
	switch profile {
	case ProfileProduction, "":
		return ProductionParameters, nil
	case ProfileTesting:
		return TestingParameters, nil
	default:
		return types.Parameters{}, fmt.Errorf("unknown parameter profile %q", profile)
	}
}
