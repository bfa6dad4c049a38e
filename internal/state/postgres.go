package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists contract state in a PostgreSQL key/value table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres builds a Postgres-backed store.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the state table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS contract_state (
        key TEXT PRIMARY KEY,
        value BYTEA NOT NULL
    )`)
	if err != nil {
		return fmt.Errorf("ensure contract_state table: %w", err)
	}
	return nil
}

// Get fetches the value stored under key.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM contract_state WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrKeyAbsent
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Insert stores a value under a key that must not exist yet.
func (s *PostgresStore) Insert(ctx context.Context, key string, value []byte) error {
	cmd, err := s.db.Exec(ctx, `INSERT INTO contract_state (key, value) VALUES ($1, $2)
        ON CONFLICT (key) DO NOTHING`, key, value)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrKeyExists
	}
	return nil
}

// Replace overwrites the value under a key that must already exist.
func (s *PostgresStore) Replace(ctx context.Context, key string, value []byte) error {
	cmd, err := s.db.Exec(ctx, `UPDATE contract_state SET value = $1 WHERE key = $2`, value, key)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrKeyAbsent
	}
	return nil
}

// Remove deletes the value under a key that must already exist.
func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	cmd, err := s.db.Exec(ctx, `DELETE FROM contract_state WHERE key = $1`, key)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrKeyAbsent
	}
	return nil
}

// Apply commits a full write set inside one database transaction so a failed
// flush leaves the persisted state untouched.
func (s *PostgresStore) Apply(ctx context.Context, writes []Write) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, w := range writes {
		switch w.Op {
		case OpInsert:
			cmd, err := tx.Exec(ctx, `INSERT INTO contract_state (key, value) VALUES ($1, $2)
                ON CONFLICT (key) DO NOTHING`, w.Key, w.Value)
			if err != nil {
				return err
			}
			if cmd.RowsAffected() == 0 {
				return fmt.Errorf("apply insert %q: %w", w.Key, ErrKeyExists)
			}
		case OpReplace:
			cmd, err := tx.Exec(ctx, `UPDATE contract_state SET value = $1 WHERE key = $2`, w.Value, w.Key)
			if err != nil {
				return err
			}
			if cmd.RowsAffected() == 0 {
				return fmt.Errorf("apply replace %q: %w", w.Key, ErrKeyAbsent)
			}
		case OpRemove:
			cmd, err := tx.Exec(ctx, `DELETE FROM contract_state WHERE key = $1`, w.Key)
			if err != nil {
				return err
			}
			if cmd.RowsAffected() == 0 {
				return fmt.Errorf("apply remove %q: %w", w.Key, ErrKeyAbsent)
			}
		default:
			return fmt.Errorf("apply: unknown write op %d", w.Op)
		}
	}

	return tx.Commit(ctx)
}
