// Package testutil starts the backing services used by integration and e2e tests.
package testutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cloo-solutions/docqa/internal/storage"
)

const (
	postgresImage = "pgvector/pgvector:0.8.1-pg18"
	postgresUser  = "docqa"
	postgresDB    = "docqa"

	rustfsImage = "rustfs/rustfs:latest"

	// RustFSAccessKey and RustFSSecretKey are the credentials the RustFS container accepts.
	RustFSAccessKey = "rustfsadmin"
	RustFSSecretKey = "rustfsadmin"
)

// PostgresContainer is a pgvector-enabled PostgreSQL server.
type PostgresContainer struct {
	container testcontainers.Container
	url       string
	stop      sync.Once
}

// RustFSContainer is an S3-compatible object store.
type RustFSContainer struct {
	container testcontainers.Container
	endpoint  string
	stop      sync.Once
}

// NewPostgresContainer starts PostgreSQL with the vector extension available.
// The container is removed when the test ends.
func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	t.Helper()
	c := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresUser,
			"POSTGRES_DB":       postgresDB,
		},
		// The server restarts once after init; the second line marks the real start.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	})

	port, err := c.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get postgres port: %v", err)
	}
	hostPort := containerHost(ctx, t, c) + ":" + port.Port()
	pc := &PostgresContainer{
		container: c,
		url:       fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", postgresUser, postgresUser, hostPort, postgresDB),
	}
	t.Cleanup(func() { _ = pc.Terminate(context.Background()) })
	return pc
}

// ConnectionString returns a URL usable by pgx and golang-migrate.
func (pc *PostgresContainer) ConnectionString() string {
	return pc.url
}

// Terminate removes the container. Calling it more than once is safe.
func (pc *PostgresContainer) Terminate(context.Context) error {
	var err error
	pc.stop.Do(func() { err = testcontainers.TerminateContainer(pc.container) })
	return err
}

// NewRustFSContainer starts RustFS. The container is removed when the test ends.
func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	t.Helper()
	c := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSAccessKey,
			"RUSTFS_SECRET_KEY": RustFSSecretKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	})

	port, err := c.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("failed to get rustfs port: %v", err)
	}
	rc := &RustFSContainer{
		container: c,
		endpoint:  "http://" + containerHost(ctx, t, c) + ":" + port.Port(),
	}
	t.Cleanup(func() { _ = rc.Terminate(context.Background()) })
	return rc
}

// Endpoint returns the S3 endpoint URL.
func (rc *RustFSContainer) Endpoint() string {
	return rc.endpoint
}

// S3Config returns client settings for bucket on this container.
func (rc *RustFSContainer) S3Config(bucket string) storage.S3ClientConfig {
	return storage.S3ClientConfig{
		Endpoint:        rc.endpoint,
		Region:          "us-east-1",
		AccessKeyID:     RustFSAccessKey,
		SecretAccessKey: RustFSSecretKey,
		Bucket:          bucket,
		UsePathStyle:    true,
	}
}

// NewS3Client connects to the container and creates bucket.
func (rc *RustFSContainer) NewS3Client(ctx context.Context, t *testing.T, bucket string) *storage.S3Client {
	t.Helper()
	client, err := storage.NewS3Client(ctx, rc.S3Config(bucket))
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket %s: %v", bucket, err)
	}
	return client
}

// Terminate removes the container. Calling it more than once is safe.
func (rc *RustFSContainer) Terminate(context.Context) error {
	var err error
	rc.stop.Do(func() { err = testcontainers.TerminateContainer(rc.container) })
	return err
}

// NewTestPool applies the migrations in migrationsDir with golang-migrate and
// returns a pool that has answered a ping.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()
	if err := migrateUp(pc.ConnectionString(), migrationsDir); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	var pool *pgxpool.Pool
	connect := func() error {
		p, err := pgxpool.New(ctx, pc.ConnectionString())
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(connect, policy); err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	return pool
}

// StartPostgres starts a migrated database whose pool and container are
// released when the test ends.
func StartPostgres(ctx context.Context, t *testing.T, migrationsDir string) *pgxpool.Pool {
	t.Helper()
	pool := NewTestPool(ctx, t, NewPostgresContainer(ctx, t), migrationsDir)
	t.Cleanup(pool.Close)
	return pool
}

func migrateUp(databaseURL, migrationsDir string) error {
	dir, err := filepath.Abs(migrationsDir)
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func startContainer(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}
	return c
}

func containerHost(ctx context.Context, t *testing.T, c testcontainers.Container) string {
	t.Helper()
	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	return host
}
