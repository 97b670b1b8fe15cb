// Package postgres provides a PostgreSQL implementation of the registry.Storage interface.
// Records are stored as JSONB documents next to indexed identity columns. A unique
// constraint on transaction_id refuses duplicate registrations and updates are
// conditioned on the row version.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/goregistry/pkg/registry"
)

const (
	uniqueViolation       = "23505"
	transactionConstraint = "registrations_transaction_id_key"
)

// Storage implements registry.Storage using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// AutoMigrate applies pending schema migrations in New
	AutoMigrate bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.AutoMigrate {
		if err := MigrateUp(config.ConnectionString); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &Storage{pool: pool, config: config}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the PostgreSQL connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetRecord implements registry.Storage
func (s *Storage) GetRecord(ctx context.Context, key string) (*registry.Record, error) {
	return s.getOne(ctx, `SELECT data, version FROM registrations WHERE key = $1`, key)
}

// GetRecordByTransaction implements registry.Storage
func (s *Storage) GetRecordByTransaction(ctx context.Context, transactionID string) (*registry.Record, error) {
	return s.getOne(ctx, `SELECT data, version FROM registrations WHERE transaction_id = $1`, transactionID)
}

func (s *Storage) getOne(ctx context.Context, query string, arg string) (*registry.Record, error) {
	var data []byte
	var version int64
	err := s.pool.QueryRow(ctx, query, arg).Scan(&data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, registry.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(data, version)
}

// FindByTransactionPrefix implements registry.Storage
func (s *Storage) FindByTransactionPrefix(ctx context.Context, prefix string) ([]*registry.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data, version FROM registrations
		 WHERE transaction_id LIKE $1 ESCAPE '\'
		 ORDER BY transaction_id COLLATE "C"`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*registry.Record, 0)
	for rows.Next() {
		var data []byte
		var version int64
		if err := rows.Scan(&data, &version); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(data, version)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CreateRecord implements registry.Storage
func (s *Storage) CreateRecord(ctx context.Context, rec *registry.Record) error {
	if rec == nil || rec.Key == "" || rec.TransactionID == "" {
		return fmt.Errorf("%w: key and transaction id are required", registry.ErrInvalidRegistration)
	}

	rec.Version = 1
	data, err := json.Marshal(rec)
	if err != nil {
		rec.Version = 0
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO registrations
		 (key, id, transaction_id, product, status, trashed, version, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.Key, rec.ID, rec.TransactionID, rec.Product, string(rec.Status), rec.Trashed,
		rec.Version, data, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		rec.Version = 0
		return mapWriteError(err, rec.Key)
	}
	return nil
}

// UpdateRecord implements registry.Storage
func (s *Storage) UpdateRecord(ctx context.Context, rec *registry.Record) error {
	if rec == nil || rec.Key == "" || rec.TransactionID == "" {
		return fmt.Errorf("%w: key and transaction id are required", registry.ErrInvalidRegistration)
	}

	expected := rec.Version
	rec.Version = expected + 1
	data, err := json.Marshal(rec)
	if err != nil {
		rec.Version = expected
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE registrations
		 SET transaction_id = $2, product = $3, status = $4, trashed = $5,
		     version = $6, data = $7, updated_at = $8
		 WHERE key = $1 AND version = $9`,
		rec.Key, rec.TransactionID, rec.Product, string(rec.Status), rec.Trashed,
		rec.Version, data, rec.UpdatedAt, expected,
	)
	if err != nil {
		rec.Version = expected
		return mapWriteError(err, rec.Key)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	rec.Version = expected
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM registrations WHERE key = $1)`, rec.Key,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return registry.ErrRecordNotFound
	}
	return registry.ErrVersionConflict
}

func mapWriteError(err error, key string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == transactionConstraint {
			return registry.ErrDuplicateTransaction
		}
		return fmt.Errorf("registry key %q already exists", key)
	}
	return err
}

func decodeRecord(data []byte, version int64) (*registry.Record, error) {
	var rec registry.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	rec.Version = version
	return &rec, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes LIKE wildcards so prefix matches literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
