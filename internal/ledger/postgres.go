package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the production ledger: double-entry rows in a single
// transaction with deterministic lock ordering.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(ctx context.Context, db *pgxpool.Pool) (*Postgres, error) {
	l := &Postgres{db: db}
	if err := l.bootstrap(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Postgres) bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS transfers (
			id BIGSERIAL PRIMARY KEY,
			from_account_id BIGINT NOT NULL REFERENCES accounts(id),
			to_account_id BIGINT NOT NULL REFERENCES accounts(id),
			amount BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			transfer_id BIGINT NOT NULL REFERENCES transfers(id),
			account_id BIGINT NOT NULL REFERENCES accounts(id),
			delta BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ledger bootstrap failed: %w", err)
		}
	}
	return nil
}

// Transfer moves amount from one account to another inside a single
// transaction. Rows are locked in ascending id order to prevent deadlocks
// between concurrent transfers touching the same pair.
func (l *Postgres) Transfer(ctx context.Context, amount, from, to int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return ErrSelfTransfer
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	first, second := from, to
	if first > second {
		first, second = second, first
	}

	var balFirst, balSecond int64
	if err := tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", first).Scan(&balFirst); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lock acquisition failed: %w", err)
	}
	if err := tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", second).Scan(&balSecond); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lock acquisition failed: %w", err)
	}

	fromBalance := balFirst
	if from != first {
		fromBalance = balSecond
	}
	if fromBalance < amount {
		return ErrInsufficientFunds
	}

	var transferID int64
	err = tx.QueryRow(ctx,
		"INSERT INTO transfers (from_account_id, to_account_id, amount) VALUES ($1, $2, $3) RETURNING id",
		from, to, amount,
	).Scan(&transferID)
	if err != nil {
		return fmt.Errorf("transfer insert failed: %w", err)
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO ledger_entries (transfer_id, account_id, delta) VALUES ($1, $2, $3), ($1, $4, $5)",
		transferID, from, -amount, to, amount,
	)
	if err != nil {
		return fmt.Errorf("ledger entry failed: %w", err)
	}

	if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance - $1 WHERE id = $2", amount, from); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance + $1 WHERE id = $2", amount, to); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// CreateAccount opens a new account with the given starting balance.
func (l *Postgres) CreateAccount(ctx context.Context, initialBalance int64) (int64, error) {
	var id int64
	err := l.db.QueryRow(ctx, "INSERT INTO accounts (balance) VALUES ($1) RETURNING id", initialBalance).Scan(&id)
	return id, err
}

// GetAccount retrieves a single account by id.
func (l *Postgres) GetAccount(ctx context.Context, id int64) (*Account, error) {
	var acc Account
	err := l.db.QueryRow(ctx,
		"SELECT id, balance, created_at FROM accounts WHERE id = $1", id,
	).Scan(&acc.ID, &acc.Balance, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// GetEntries retrieves the double-entry legs touching an account, newest first.
func (l *Postgres) GetEntries(ctx context.Context, accountID int64) ([]Entry, error) {
	var exists bool
	if err := l.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id=$1)", accountID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrAccountNotFound
	}

	rows, err := l.db.Query(ctx,
		"SELECT account_id, delta FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC",
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.AccountID, &e.Delta); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
