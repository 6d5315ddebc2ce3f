package config

import (
	"fmt"
	"os"
	"time"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/types"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ParametersFile is the YAML layout of a parameter override file. Every field is optional;
// unset fields keep the value of the base profile.
//
//	profile: testing
//	min_compound_amount: "1000"
//	min_action_interval: 5m
//	cost_gate_enabled: true
type ParametersFile struct {
	Profile                 string  `yaml:"profile"`
	MinCompoundAmount       string  `yaml:"min_compound_amount"`
	MinActionInterval       string  `yaml:"min_action_interval"`
	MaxCost                 *uint64 `yaml:"max_cost"`
	CostGateEnabled         *bool   `yaml:"cost_gate_enabled"`
	MinBatchSize            *int    `yaml:"min_batch_size"`
	MaxBatchSize            *int    `yaml:"max_batch_size"`
	MaxBatchWaitTime        string  `yaml:"max_batch_wait_time"`
	IndividualCompoundCost  *uint64 `yaml:"individual_compound_cost"`
	BatchOverheadCost       *uint64 `yaml:"batch_overhead_cost"`
	PerParticipantBatchCost *uint64 `yaml:"per_participant_batch_cost"`
}

// LoadParametersFile reads a YAML override file and applies it on top of its base profile.
func LoadParametersFile(path string) (types.Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Parameters{}, fmt.Errorf("read parameters file: %w", err)
	}
	return ParseParameters(data)
}

// ParseParameters parses YAML override content.
func ParseParameters(data []byte) (types.Parameters, error) {
	var file ParametersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return types.Parameters{}, fmt.Errorf("parse parameters file: %w", err)
	}

	params, err := ParametersForProfile(file.Profile)
	if err != nil {
		return types.Parameters{}, err
	}

	if file.MinCompoundAmount != "" {
		amount, ok := math.NewIntFromString(file.MinCompoundAmount)
		if !ok {
			return types.Parameters{}, fmt.Errorf("min_compound_amount %q is not an integer", file.MinCompoundAmount)
		}
		params.MinCompoundAmount = amount
	}
	if params.MinActionInterval, err = overrideDuration(file.MinActionInterval, params.MinActionInterval); err != nil {
		return types.Parameters{}, fmt.Errorf("min_action_interval: %w", err)
	}
	if params.MaxBatchWaitTime, err = overrideDuration(file.MaxBatchWaitTime, params.MaxBatchWaitTime); err != nil {
		return types.Parameters{}, fmt.Errorf("max_batch_wait_time: %w", err)
	}
	if file.MaxCost != nil {
		params.MaxCost = *file.MaxCost
	}
	if file.CostGateEnabled != nil {
		params.CostGateEnabled = *file.CostGateEnabled
	}
	if file.MinBatchSize != nil {
		params.MinBatchSize = *file.MinBatchSize
	}
	if file.MaxBatchSize != nil {
		params.MaxBatchSize = *file.MaxBatchSize
	}
	if file.IndividualCompoundCost != nil {
		params.IndividualCompoundCost = *file.IndividualCompoundCost
	}
	if file.BatchOverheadCost != nil {
		params.BatchOverheadCost = *file.BatchOverheadCost
	}
	if file.PerParticipantBatchCost != nil {
		params.PerParticipantBatchCost = *file.PerParticipantBatchCost
	}

	if err := params.Validate(); err != nil {
		return types.Parameters{}, err
	}

	log.Debug().
		Str("profile", file.Profile).
		Str("minCompoundAmount", params.MinCompoundAmount.String()).
		Dur("minActionInterval", params.MinActionInterval).
		Bool("costGateEnabled", params.CostGateEnabled).
		Msg("Parameters file parsed")

	return params, nil
}

func overrideDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
