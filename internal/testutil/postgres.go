// Package testutil provides test helpers including container management.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tilestrike/arena/internal/config"
	"github.com/tilestrike/arena/internal/storage/postgres"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	RawPool   *pgxpool.Pool
	Config    config.DatabaseConfig
}

// NewPostgresContainer starts a PostgreSQL test container and returns
// a connected Pool.
//
// Precondition: Docker must be available.
// Postcondition: Returns a running container with a connected pool,
// or fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("getting container host: %v", err)
	}

	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
	}

	dbCfg := config.DatabaseConfig{
		Enabled:         true,
		Host:            host,
		Port:            mappedPort.Int(),
		User:            "test",
		Password:        "test",
		Name:            "test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	pool, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v [%s]", err, time.Since(start))
	}

	t.Logf("postgres container started [%s]", time.Since(start))

	pc := &PostgresContainer{
		container: container,
		Pool:      pool,
		RawPool:   pool.DB(),
		Config:    dbCfg,
	}

	t.Cleanup(func() {
		pool.Close()
		_ = container.Terminate(ctx)
	})

	return pc
}

// ApplyMigrations runs the schema creation SQL directly for tests.
// This avoids requiring the migrate tool in the test environment.
//
// Precondition: Pool must be connected.
// Postcondition: The matches and match_players tables exist in the test database.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	schema := `
		CREATE EXTENSION IF NOT EXISTS pgcrypto;

		CREATE TABLE IF NOT EXISTS matches (
			id                UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
			code              VARCHAR(6)   NOT NULL,
			map               VARCHAR(64)  NOT NULL,
			game_type         VARCHAR(16)  NOT NULL,
			game_time_minutes INT          NOT NULL,
			winner_id         VARCHAR(64)  NOT NULL DEFAULT '',
			winner_name       VARCHAR(64)  NOT NULL DEFAULT '',
			end_reason        VARCHAR(32)  NOT NULL,
			stake_amount      DOUBLE PRECISION NOT NULL DEFAULT 0,
			escrow_game_id    VARCHAR(128),
			escrow_contract   VARCHAR(128),
			started_at        TIMESTAMPTZ  NOT NULL,
			ended_at          TIMESTAMPTZ  NOT NULL,
			created_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_matches_code ON matches (code);

		CREATE TABLE IF NOT EXISTS match_players (
			match_id              UUID        NOT NULL REFERENCES matches (id) ON DELETE CASCADE,
			player_id             VARCHAR(64) NOT NULL,
			name                  VARCHAR(64) NOT NULL,
			placement             INT         NOT NULL,
			kills                 INT         NOT NULL DEFAULT 0,
			deaths                INT         NOT NULL DEFAULT 0,
			assists               INT         NOT NULL DEFAULT 0,
			score                 INT         NOT NULL DEFAULT 0,
			damage_dealt          INT         NOT NULL DEFAULT 0,
			damage_taken          INT         NOT NULL DEFAULT 0,
			survival_time_seconds INT         NOT NULL DEFAULT 0,
			shots_fired           INT         NOT NULL DEFAULT 0,
			shots_hit             INT         NOT NULL DEFAULT 0,
			PRIMARY KEY (match_id, player_id)
		);
	`

	_, err := pc.RawPool.Exec(ctx, schema)
	if err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	t.Logf("migrations applied [%s]", time.Since(start))
}

// DSN returns the connection string for the test database.
func (pc *PostgresContainer) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pc.Config.User, pc.Config.Password,
		pc.Config.Host, pc.Config.Port,
		pc.Config.Name, pc.Config.SSLMode,
	)
}
