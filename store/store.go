package store

import (
	"context"
	"database/sql"
	"errors"

	"checkout-engine/model"

	_ "github.com/lib/pq"
)

// PostgresStore is a Store backed by Postgres. Variant counters are only
// changed by conditional updates so concurrent reservations never oversell.
type PostgresStore struct {
	DB *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	DB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := DB.Ping(); err != nil {
		_ = DB.Close()
		return nil, err
	}
	return &PostgresStore{DB: DB}, nil
}

func (s *PostgresStore) Close() error { return s.DB.Close() }

// Migrate runs the schema script.
func (s *PostgresStore) Migrate(ctx context.Context, script string) error {
	_, err := s.DB.ExecContext(ctx, script)
	return err
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}
