package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Profile selects the built-in parameter profile ("production" or "testing").
	Profile string
	// ParamsFile is an optional YAML file overriding the profile's parameters.
	ParamsFile string
	// ParamsConfigName is the name under which active parameters are stored in the database.
	ParamsConfigName string

	// KeeperSchedule is the cron spec of the keeper sweep (e.g. "@every 1m").
	KeeperSchedule string

	// StaticNetworkCost is used when no cost oracle endpoint is configured.
	StaticNetworkCost uint64
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Only the database variables are required; everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Profile = getEnvOrDefault("AUTOCOMPOUND_PROFILE", ProfileProduction)
	if _, err = ParametersForProfile(Profile); err != nil {
		return err
	}

	ParamsFile = getEnvOrDefault("AUTOCOMPOUND_PARAMS_FILE", "")
	ParamsConfigName = getEnvOrDefault("AUTOCOMPOUND_PARAMS_NAME", "default_autocompound_"+Profile)
	KeeperSchedule = getEnvOrDefault("KEEPER_SCHEDULE", "@every 1m")

	if _, exists := os.LookupEnv("STATIC_NETWORK_COST"); exists {
		StaticNetworkCost, err = getEnvAsUint64("STATIC_NETWORK_COST")
		if err != nil {
			return err
		}
	}

	if _, err = getEnv("DB_NAME"); err != nil {
		return err
	}
	if _, err = getEnv("DB_USER"); err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("Profile", Profile).
		Str("ParamsFile", ParamsFile).
		Str("KeeperSchedule", KeeperSchedule).
		Uint64("StaticNetworkCost", StaticNetworkCost).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as an int, falling back when unset or invalid.
func getEnvAsInt(key string, fallback int) int {
	valueStr, err := getEnv(key)
	if err != nil {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid integer environment variable, using default")
		return fallback
	}
	return value
}
