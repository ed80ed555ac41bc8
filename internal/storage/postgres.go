package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ziesha-go/ledger/internal/kvstore"
)

// Common errors, following the teacher's per-package sentinel-error idiom
// (internal/storage/postgres.go in the original).
var (
	ErrDBConnection = errors.New("storage: database connection error")
	ErrQueryFailed  = errors.New("storage: query failed")
)

// Config holds database configuration (adapted from the teacher's
// storage.Config/DefaultConfig pattern).
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DefaultConfig returns default database configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "ziesha",
		Password: "",
		Database: "ziesha_ledger",
		SSLMode:  "disable",
		MaxConns: 20,
	}
}

// PostgresStore implements kvstore.Store over a single (key, value) table,
// giving pgx a concrete home inside the abstract KV interface boundary
// spec §1 calls out as a collaborator, rather than a block/tx-shaped
// schema (adapted from the teacher's PostgresStore, which persisted a full
// relational block/tx schema that has no counterpart here since the
// block/tx model is entirely expressed through the KV key layout, spec §6).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool and ensures the backing table exists.
func NewPostgresStore(ctx context.Context, cfg *Config) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, cfg.MaxConns,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS kv_entries (
			key   TEXT PRIMARY KEY,
			value BYTEA NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Get satisfies kvstore.Store.
func (s *PostgresStore) Get(key string) ([]byte, bool, error) {
	ctx := context.Background()
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return value, true, nil
}

// Pairs satisfies kvstore.Store: a LIKE-prefix scan ordered by key, the SQL
// analogue of the LevelDB seek+take_while scan in
// original_source/src/db/disk.rs.
func (s *PostgresStore) Pairs(prefix string) ([]kvstore.Pair, error) {
	ctx := context.Background()
	like := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix) + "%"
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM kv_entries WHERE key LIKE $1 ESCAPE '\' ORDER BY key COLLATE "C"`, like)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []kvstore.Pair
	for rows.Next() {
		var p kvstore.Pair
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update satisfies kvstore.Store: applies the batch inside one transaction
// so the commit is atomic (spec §6: "atomic batched updates").
func (s *PostgresStore) Update(ops []kvstore.WriteOp) error {
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer tx.Rollback(ctx)

	for _, op := range ops {
		if op.Remove {
			if _, err := tx.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, op.Key); err != nil {
				return fmt.Errorf("%w: %v", ErrQueryFailed, err)
			}
			continue
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO kv_entries (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
		`, op.Key, op.Value)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrQueryFailed, err)
		}
	}
	return tx.Commit(ctx)
}
