// Package ledger is the value-transfer collaborator the marketplace engine
// builds on. It moves integer amounts atomically between accounts and is the
// only place balances live; the engine never inspects balances directly.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("transfer amount must be positive")
	ErrSelfTransfer      = errors.New("cannot transfer to self")
)

// Account represents a party's balance on the ledger.
type Account struct {
	ID        int64     `json:"id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry represents one leg of a double-entry transfer. The deltas for a
// given transfer always sum to zero.
type Entry struct {
	AccountID int64 `json:"account_id"`
	Delta     int64 `json:"delta"`
}

// Transferrer atomically moves amount from one account to another.
// Either both balances change or neither does.
type Transferrer interface {
	Transfer(ctx context.Context, amount, from, to int64) error
}

// Ledger is the full account surface: transfers plus account management.
type Ledger interface {
	Transferrer
	CreateAccount(ctx context.Context, initialBalance int64) (int64, error)
	GetAccount(ctx context.Context, id int64) (*Account, error)
	GetEntries(ctx context.Context, accountID int64) ([]Entry, error)
}
