// Package testutil starts the backing services of stockragd in containers
// for integration and e2e tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/cloo-solutions/stockrag/internal/database"
)

const (
	pgvectorImage = "pgvector/pgvector:0.8.1-pg18"
	rustfsImage   = "rustfs/rustfs:latest"

	pgCredential     = "stockrag"
	RustFSCredential = "rustfsadmin"
)

// businessTables are truncated children first.
var businessTables = []string{
	"document_chunks", "sync_status",
	"invoices", "purchases", "products", "suppliers", "clients", "users",
}

// started is a running container with its mapped address.
type started struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

func (s started) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(s.Container)
}

func start(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, port nat.Port) started {
	t.Helper()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", req.Image, err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("%s host: %v", req.Image, err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("%s port %s: %v", req.Image, port, err)
	}
	return started{Container: c, Host: host, Port: mapped.Port()}
}

// PostgresContainer runs Postgres with the pgvector extension available.
type PostgresContainer struct {
	started
}

func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	s := start(ctx, t, testcontainers.ContainerRequest{
		Image:        pgvectorImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     pgCredential,
			"POSTGRES_PASSWORD": pgCredential,
			"POSTGRES_DB":       pgCredential,
		},
		// The entrypoint restarts the server once after init.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}, "5432/tcp")
	return &PostgresContainer{started: s}
}

func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pgCredential, pgCredential, pc.Host, pc.Port, pgCredential)
}

// RustFSContainer runs an S3-compatible object store.
type RustFSContainer struct {
	started
}

func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	s := start(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSCredential,
			"RUSTFS_SECRET_KEY": RustFSCredential,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000/tcp")
	return &RustFSContainer{started: s}
}

func (rc *RustFSContainer) Endpoint() string {
	return fmt.Sprintf("http://%s:%s", rc.Host, rc.Port)
}

// NewTestPool applies the migrations in migrationsDir through the same runner
// the daemon uses, then opens a pool against the container.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	abs, err := filepath.Abs(migrationsDir)
	if err != nil {
		t.Fatalf("resolve migrations dir: %v", err)
	}

	pool, err := database.NewPool(ctx, database.Config{
		URL:            pc.ConnectionString(),
		MaxConns:       5,
		ConnectTimeout: 15 * time.Second,
	})
	if err != nil {
		t.Fatalf("connect to test database: %v", err)
	}

	if err := database.Migrate(pc.ConnectionString(), "file://"+abs, zaptest.NewLogger(t)); err != nil {
		pool.Close()
		t.Fatalf("migrate test database: %v", err)
	}
	return pool
}

// TruncateAll empties every stockrag table between tests.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	for _, table := range businessTables {
		if _, err := pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}
