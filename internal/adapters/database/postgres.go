package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Migrations holds the reference-data schema
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Config holds database configuration
type Config struct {
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	ConnectionString string
	MaxConns         int
	MaxIdleConns     int
	MaxLifetime      time.Duration
}

// Validate checks the configuration and fills ConnectionString when it is empty
func (c *Config) Validate() error {
	if c.ConnectionString != "" {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("invalid port")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Password == "" {
		return fmt.Errorf("password is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	c.ConnectionString = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode,
	)
	return nil
}

// NewPostgresPool creates a PostgreSQL connection pool and verifies it with a ping
func NewPostgresPool(ctx context.Context, config Config) (*pgxpool.Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = int32(config.MaxConns)
	}
	if config.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(config.MaxIdleConns)
	}
	if config.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// MigrationRunner applies the NNNN_name.up.sql / NNNN_name.down.sql files in a
// directory of fsys with golang-migrate. Versions are tracked in schema_migrations.
type MigrationRunner struct {
	db         *pgxpool.Pool
	migrations fs.FS
	dir        string
}

// NewMigrationRunner creates a migration runner over the files in dir of fsys
func NewMigrationRunner(db *pgxpool.Pool, fsys fs.FS, dir string) *MigrationRunner {
	return &MigrationRunner{
		db:         db,
		migrations: fsys,
		dir:        dir,
	}
}

// Validate checks that dir holds at least one well-formed migration and no
// duplicate versions
func (m *MigrationRunner) Validate() error {
	src, err := m.source()
	if err != nil {
		return err
	}
	return src.Close()
}

// Versions lists the migration versions found in dir, in apply order
func (m *MigrationRunner) Versions() ([]uint, error) {
	src, err := m.source()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return nil, err
	}
	versions := []uint{v}
	for {
		v, err = src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return versions, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read migration after %d: %w", versions[len(versions)-1], err)
		}
		versions = append(versions, v)
	}
}

// Up applies every pending migration and returns the resulting schema version.
// An up-to-date schema is not an error.
func (m *MigrationRunner) Up(ctx context.Context) (uint, error) {
	return m.run(ctx, func(mg *migrate.Migrate) error { return mg.Up() })
}

// Down reverts steps migrations, or all of them when steps <= 0, and returns
// the resulting schema version (0 once everything is reverted)
func (m *MigrationRunner) Down(ctx context.Context, steps int) (uint, error) {
	return m.run(ctx, func(mg *migrate.Migrate) error {
		if steps <= 0 {
			return mg.Down()
		}
		return mg.Steps(-steps)
	})
}

func (m *MigrationRunner) source() (source.Driver, error) {
	if m.migrations == nil || m.dir == "" {
		return nil, fmt.Errorf("migrations directory is required")
	}
	src, err := iofs.New(m.migrations, m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory %s: %w", m.dir, err)
	}
	if _, err := src.First(); err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("no migrations found in %s: %w", m.dir, err)
	}
	return src, nil
}

func (m *MigrationRunner) run(ctx context.Context, apply func(*migrate.Migrate) error) (uint, error) {
	if m.db == nil {
		return 0, fmt.Errorf("database pool is required")
	}
	src, err := m.source()
	if err != nil {
		return 0, err
	}

	db := stdlib.OpenDB(*m.db.Config().ConnConfig)
	defer db.Close()

	mg, err := newMigrate(src, db)
	if err != nil {
		_ = src.Close()
		return 0, err
	}
	defer mg.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mg.GracefulStop <- true
		case <-done:
		}
	}()

	if err := apply(mg); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("migrations interrupted: %w", err)
	}

	version, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

func newMigrate(src source.Driver, db *sql.DB) (*migrate.Migrate, error) {
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	mg, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return mg, nil
}
