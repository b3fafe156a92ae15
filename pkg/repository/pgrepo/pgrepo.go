// Package pgrepo backs the repository store with PostgreSQL. The primary key
// on the sequence hash plus INSERT ... ON CONFLICT DO NOTHING gives the
// atomic insert-if-absent the no-overwrite rule needs.
package pgrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/repository"
)

// Config contains PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString returns the PostgreSQL connection string.
func (c *Config) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// Store implements repository.Store on a PostgreSQL database.
type Store struct {
	db *sql.DB
}

// NewStore opens a connection pool, verifies connectivity and applies the
// schema.
func NewStore(config *Config) (*Store, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("pgrepo: opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pgrepo: pinging database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("pgrepo: running migrations: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repository_entries (
		sequence_hash BYTEA PRIMARY KEY,
		ciphertext BYTEA NOT NULL,
		stored_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// PutIfAbsent implements repository.Store. The conflict target is the primary
// key, so concurrent writers of the same hash see exactly one success.
func (s *Store) PutIfAbsent(ctx context.Context, h hashchain.SequenceHash, e repository.Entry) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO repository_entries (sequence_hash, ciphertext, stored_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (sequence_hash) DO NOTHING
	`, h[:], e.Ciphertext, e.StoredAt)
	if err != nil {
		return fmt.Errorf("%w: %s", repository.ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %s", repository.ErrUnavailable, err)
	}
	if n == 0 {
		return repository.ErrDuplicateKey
	}
	return nil
}

// Get implements repository.Store.
func (s *Store) Get(ctx context.Context, h hashchain.SequenceHash) (*repository.Entry, error) {
	var e repository.Entry
	err := s.db.QueryRowContext(ctx, `
		SELECT ciphertext, stored_at FROM repository_entries WHERE sequence_hash = $1
	`, h[:]).Scan(&e.Ciphertext, &e.StoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrUnavailable, err)
	}
	return &e, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
