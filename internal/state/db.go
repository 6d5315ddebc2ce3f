// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Connected to PostgreSQL")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// Tables owned by this service, in drop order.
var Tables = []string{"engine_snapshots", "engine_events", "engine_parameters", "keeper_cycle_counter"}

// EnsureSchema applies the DDL for every table the service uses. Safe to run repeatedly.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS engine_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			min_compound_amount NUMERIC(78, 0) NOT NULL,
			min_action_interval_seconds BIGINT NOT NULL,
			max_cost BIGINT NOT NULL,
			cost_gate_enabled BOOLEAN NOT NULL,
			min_batch_size INTEGER NOT NULL,
			max_batch_size INTEGER NOT NULL,
			max_batch_wait_seconds BIGINT NOT NULL,
			individual_compound_cost BIGINT NOT NULL,
			batch_overhead_cost BIGINT NOT NULL,
			per_participant_batch_cost BIGINT NOT NULL,
			CONSTRAINT uq_engine_parameters_config_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_engine_parameters_config_active ON engine_parameters(config_name, is_active, activated_at DESC);

		-- Audit log. Column names mirror the event envelope.
		CREATE TABLE IF NOT EXISTS engine_events (
			event_id UUID PRIMARY KEY,
			sequence BIGINT NOT NULL,
			kind VARCHAR(64) NOT NULL,
			pool_id TEXT NOT NULL DEFAULT '',
			participant TEXT NOT NULL DEFAULT '',
			emitted_at TIMESTAMPTZ NOT NULL,
			data JSONB NOT NULL,
			batch_id TEXT,
			batch_participants TEXT[]
		);
		CREATE INDEX IF NOT EXISTS idx_engine_events_emitted ON engine_events(emitted_at DESC, sequence DESC);
		CREATE INDEX IF NOT EXISTS idx_engine_events_participant ON engine_events(participant, emitted_at DESC);
		CREATE INDEX IF NOT EXISTS idx_engine_events_kind ON engine_events(kind);

		CREATE TABLE IF NOT EXISTS engine_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			cycle_number INTEGER NOT NULL,
			sequence BIGINT NOT NULL,
			taken_at TIMESTAMPTZ NOT NULL,
			state JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_engine_snapshots_taken ON engine_snapshots(taken_at DESC);

		CREATE TABLE IF NOT EXISTS keeper_cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);
		INSERT INTO keeper_cycle_counter (id, current_cycle)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection(ctx context.Context) error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
