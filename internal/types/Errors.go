/*

This file contains the named failures shared by the registry, accountant, scheduler and engine.

*/

package types

import "errors"

var (
	// Validation
	ErrInvalidRiskLevel     = errors.New("risk level must be between 1 and 10")
	ErrInvalidCostThreshold = errors.New("cost threshold must be positive and not above the max cost")
	ErrInvalidAmount        = errors.New("invalid compound amount")

	// State
	ErrStrategyAlreadyActive    = errors.New("strategy already active")
	ErrStrategyNotActive        = errors.New("strategy not active")
	ErrPoolAlreadyInitialized   = errors.New("pool already initialized")
	ErrCompoundAlreadyScheduled = errors.New("compound already scheduled for this pool")
	ErrReentrantCall            = errors.New("reentrant call during settlement")

	// Eligibility
	ErrCannotCompoundNow        = errors.New("cannot compound now")
	ErrCompoundConditionsNotMet = errors.New("compound conditions not met")

	// Data
	ErrNoFeesToCompound   = errors.New("no fees to compound")
	ErrNoPendingCompounds = errors.New("no pending compounds")

	// Batch
	ErrBatchSettlementFailed = errors.New("batch settlement failed")
)
