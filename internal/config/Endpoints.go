package config

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// CostOracleURL is the HTTP endpoint reporting the current network execution cost.
	// Empty means the static cost is used.
	CostOracleURL string
	// CostOracleTTL is how long a fetched network cost is reused.
	CostOracleTTL time.Duration
	// CostOracleTimeout bounds how long one eligibility decision waits for the network cost.
	CostOracleTimeout time.Duration
	// WebPort is the port of the HTTP API.
	WebPort string
	// APICredentialsFile is the YAML file of hashed API tokens. Empty leaves the API read-only.
	APICredentialsFile string
	// DBPort is the PostgreSQL port.
	DBPort int
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	CostOracleURL = getEnvOrDefault("COST_ORACLE_URL", "")
	CostOracleTTL = time.Duration(getEnvAsInt("COST_ORACLE_TTL_SECONDS", 15)) * time.Second
	CostOracleTimeout = time.Duration(getEnvAsInt("COST_ORACLE_TIMEOUT_MS", 2000)) * time.Millisecond
	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	APICredentialsFile = getEnvOrDefault("API_CREDENTIALS_FILE", "")
	DBPort = getEnvAsInt("DB_PORT", 5432)

	log.Debug().
		Str("CostOracleURL", CostOracleURL).
		Dur("CostOracleTTL", CostOracleTTL).
		Dur("CostOracleTimeout", CostOracleTimeout).
		Str("WebPort", WebPort).
		Str("APICredentialsFile", APICredentialsFile).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
