package state

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS provisioning_accounts (
    role       TEXT PRIMARY KEY,
    address    TEXT NOT NULL CHECK (address <> ''),
    secret     TEXT NOT NULL CHECK (secret <> ''),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists account records in PostgreSQL. Save is insert-only
// so a stored role is never overwritten; Replace swaps every row at once.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the accounts table when it does not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("migrate provisioning_accounts: %w", err)
	}
	return nil
}

// Load returns every stored record. An empty table is reported as ErrStateFile.
func (p *PostgresStore) Load(ctx context.Context) (State, error) {
	rows, err := p.db.Query(ctx, `SELECT role, address, secret FROM provisioning_accounts`)
	if err != nil {
		return nil, fmt.Errorf("%w: query accounts: %w", ErrStateFile, err)
	}
	defer rows.Close()

	s := New()
	for rows.Next() {
		var rec AccountRecord
		var role string
		if err := rows.Scan(&role, &rec.Address, &rec.Secret); err != nil {
			return nil, fmt.Errorf("%w: scan account: %w", ErrStateFile, err)
		}
		rec.Role = Role(role)
		s[rec.Role] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read accounts: %w", ErrStateFile, err)
	}
	if len(s) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrStateFile, ErrNoState)
	}
	return s, nil
}

// Save inserts records for roles not yet stored; existing rows are kept.
func (p *PostgresStore) Save(ctx context.Context, s State) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for role, rec := range s {
		if _, err := tx.Exec(ctx, `INSERT INTO provisioning_accounts (role, address, secret)
        VALUES ($1, $2, $3) ON CONFLICT (role) DO NOTHING`, string(role), rec.Address, rec.Secret); err != nil {
			return fmt.Errorf("store %s account: %w", role, err)
		}
	}

	return tx.Commit(ctx)
}

// Replace deletes every stored record and writes s in the same transaction,
// so a failed insert leaves the previous accounts in place.
func (p *PostgresStore) Replace(ctx context.Context, s State) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM provisioning_accounts`); err != nil {
		return fmt.Errorf("clear stored accounts: %w", err)
	}
	for role, rec := range s {
		if _, err := tx.Exec(ctx, `INSERT INTO provisioning_accounts (role, address, secret)
        VALUES ($1, $2, $3)`, string(role), rec.Address, rec.Secret); err != nil {
			return fmt.Errorf("store %s account: %w", role, err)
		}
	}

	return tx.Commit(ctx)
}
