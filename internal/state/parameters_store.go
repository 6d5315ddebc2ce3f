// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/types"
	"github.com/rs/zerolog/log"
)

// SaveParameters stores a new version of a parameter set, optionally making it the active one.
func SaveParameters(params types.Parameters, configName string, version int, makeActive bool) (paramsID int64, err error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if err := params.Validate(); err != nil {
		return 0, err
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if makeActive {
		_, err = tx.Exec(`UPDATE engine_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
        INSERT INTO engine_parameters (
            version, config_name, is_active, activated_at, created_at,
            min_compound_amount, min_action_interval_seconds, max_cost, cost_gate_enabled,
            min_batch_size, max_batch_size, max_batch_wait_seconds,
            individual_compound_cost, batch_overhead_cost, per_participant_batch_cost
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8, $9,
            $10, $11, $12,
            $13, $14, $15
        ) RETURNING params_id;`

	now := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, now, now,
		params.MinCompoundAmount.String(), int64(params.MinActionInterval/time.Second), int64(params.MaxCost), params.CostGateEnabled,
		params.MinBatchSize, params.MaxBatchSize, int64(params.MaxBatchWaitTime/time.Second),
		int64(params.IndividualCompoundCost), int64(params.BatchOverheadCost), int64(params.PerParticipantBatchCost),
	).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert engine parameters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved engine parameters")
	return paramsID, nil
}

// ErrNoActiveParameters is returned when a config has no active parameter row.
var ErrNoActiveParameters = errors.New("no active engine parameters")

// LoadActiveParameters loads the currently active parameters of a config.
func LoadActiveParameters(configName string) (*types.Parameters, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT
            min_compound_amount::TEXT, min_action_interval_seconds, max_cost, cost_gate_enabled,
            min_batch_size, max_batch_size, max_batch_wait_seconds,
            individual_compound_cost, batch_overhead_cost, per_participant_batch_cost
        FROM engine_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var (
		row    parameterRow
		params *types.Parameters
	)
	err := DB.QueryRow(query, configName).Scan(
		&row.minCompoundAmount, &row.minActionIntervalSeconds, &row.maxCost, &row.costGateEnabled,
		&row.minBatchSize, &row.maxBatchSize, &row.maxBatchWaitSeconds,
		&row.individualCompoundCost, &row.batchOverheadCost, &row.perParticipantBatchCost,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w for config '%s'", ErrNoActiveParameters, configName)
		}
		return nil, fmt.Errorf("failed to scan active parameters for config '%s': %w", configName, err)
	}

	params, err = row.toParameters()
	if err != nil {
		return nil, fmt.Errorf("stored parameters for config '%s' are unusable: %w", configName, err)
	}
	log.Info().Str("config", configName).Msg("Loaded active engine parameters")
	return params, nil
}

// GetActiveParametersID returns the params_id of the active parameters, or nil if none.
func GetActiveParametersID(configName string) (*int64, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var paramsID int64
	err := DB.QueryRow(`
        SELECT params_id FROM engine_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`, configName).Scan(&paramsID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active parameters ID for config '%s': %w", configName, err)
	}
	return &paramsID, nil
}

// LatestParametersVersion returns the highest stored version of a config, or 0 if none.
func LatestParametersVersion(configName string) (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var version int
	err := DB.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM engine_parameters WHERE config_name = $1;`, configName).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest parameters version for config '%s': %w", configName, err)
	}
	return version, nil
}

type parameterRow struct {
	minCompoundAmount        string
	minActionIntervalSeconds int64
	maxCost                  int64
	costGateEnabled          bool
	minBatchSize             int
	maxBatchSize             int
	maxBatchWaitSeconds      int64
	individualCompoundCost   int64
	batchOverheadCost        int64
	perParticipantBatchCost  int64
}

func (r parameterRow) toParameters() (*types.Parameters, error) {
	amount, ok := math.NewIntFromString(r.minCompoundAmount)
	if !ok {
		return nil, fmt.Errorf("invalid min_compound_amount %q", r.minCompoundAmount)
	}
	for name, v := range map[string]int64{
		"min_action_interval_seconds": r.minActionIntervalSeconds,
		"max_cost":                    r.maxCost,
		"max_batch_wait_seconds":      r.maxBatchWaitSeconds,
		"individual_compound_cost":    r.individualCompoundCost,
		"batch_overhead_cost":         r.batchOverheadCost,
		"per_participant_batch_cost":  r.perParticipantBatchCost,
	} {
		if v < 0 {
			return nil, fmt.Errorf("%s cannot be negative: %d", name, v)
		}
	}

	p := &types.Parameters{
		MinCompoundAmount:       amount,
		MinActionInterval:       time.Duration(r.minActionIntervalSeconds) * time.Second,
		MaxCost:                 uint64(r.maxCost),
		CostGateEnabled:         r.costGateEnabled,
		MinBatchSize:            r.minBatchSize,
		MaxBatchSize:            r.maxBatchSize,
		MaxBatchWaitTime:        time.Duration(r.maxBatchWaitSeconds) * time.Second,
		IndividualCompoundCost:  uint64(r.individualCompoundCost),
		BatchOverheadCost:       uint64(r.batchOverheadCost),
		PerParticipantBatchCost: uint64(r.perParticipantBatchCost),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
