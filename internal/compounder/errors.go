package compounder

import (
	"errors"

	"github.com/elys-network/autocompound/internal/types"
)

// Named failures returned by the engine. Match with errors.Is.
var (
	ErrInvalidRiskLevel     = types.ErrInvalidRiskLevel
	ErrInvalidCostThreshold = types.ErrInvalidCostThreshold
	ErrInvalidAmount        = types.ErrInvalidAmount

	ErrStrategyAlreadyActive    = types.ErrStrategyAlreadyActive
	ErrStrategyNotActive        = types.ErrStrategyNotActive
	ErrPoolAlreadyInitialized   = types.ErrPoolAlreadyInitialized
	ErrCompoundAlreadyScheduled = types.ErrCompoundAlreadyScheduled
	ErrReentrantCall            = types.ErrReentrantCall

	ErrCannotCompoundNow        = types.ErrCannotCompoundNow
	ErrCompoundConditionsNotMet = types.ErrCompoundConditionsNotMet

	ErrNoFeesToCompound   = types.ErrNoFeesToCompound
	ErrNoPendingCompounds = types.ErrNoPendingCompounds

	ErrBatchSettlementFailed = types.ErrBatchSettlementFailed
)

// ErrorKind groups failures by what the caller did wrong.
type ErrorKind string

const (
	KindNone        ErrorKind = ""
	KindValidation  ErrorKind = "validation"
	KindState       ErrorKind = "state"
	KindEligibility ErrorKind = "eligibility"
	KindData        ErrorKind = "data"
	KindBatch       ErrorKind = "batch"
	KindInternal    ErrorKind = "internal"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrBatchSettlementFailed, KindBatch},
	{ErrInvalidRiskLevel, KindValidation},
	{ErrInvalidCostThreshold, KindValidation},
	{ErrInvalidAmount, KindValidation},
	{ErrStrategyAlreadyActive, KindState},
	{ErrStrategyNotActive, KindState},
	{ErrPoolAlreadyInitialized, KindState},
	{ErrCompoundAlreadyScheduled, KindState},
	{ErrReentrantCall, KindState},
	{ErrCannotCompoundNow, KindEligibility},
	{ErrCompoundConditionsNotMet, KindEligibility},
	{ErrNoFeesToCompound, KindData},
	{ErrNoPendingCompounds, KindData},
}

// Kind classifies an error returned by the engine. Unknown non-nil errors are internal.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
