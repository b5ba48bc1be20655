package ledger

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process ledger used by tests and the benchmark's demo
// mode. Same contract as Postgres, one mutex instead of row locks.
type Memory struct {
	mu       sync.Mutex
	nextID   int64
	balances map[int64]int64
	entries  map[int64][]Entry
	created  map[int64]time.Time

	// FailErr makes the FailAt-th Transfer call (1-based) fail with the
	// given error. Tests use it to exercise compensation paths.
	FailErr error
	FailAt  int
	calls   int
}

func NewMemory() *Memory {
	return &Memory{
		nextID:   1,
		balances: make(map[int64]int64),
		entries:  make(map[int64][]Entry),
		created:  make(map[int64]time.Time),
	}
}

func (l *Memory) Transfer(ctx context.Context, amount, from, to int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.FailErr != nil && l.calls == l.FailAt {
		return l.FailErr
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return ErrSelfTransfer
	}
	fromBal, ok := l.balances[from]
	if !ok {
		return ErrAccountNotFound
	}
	if _, ok := l.balances[to]; !ok {
		return ErrAccountNotFound
	}
	if fromBal < amount {
		return ErrInsufficientFunds
	}

	l.balances[from] -= amount
	l.balances[to] += amount
	l.entries[from] = append(l.entries[from], Entry{AccountID: from, Delta: -amount})
	l.entries[to] = append(l.entries[to], Entry{AccountID: to, Delta: amount})
	return nil
}

func (l *Memory) CreateAccount(ctx context.Context, initialBalance int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.balances[id] = initialBalance
	l.created[id] = time.Now()
	return id, nil
}

func (l *Memory) GetAccount(ctx context.Context, id int64) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &Account{ID: id, Balance: bal, CreatedAt: l.created[id]}, nil
}

func (l *Memory) GetEntries(ctx context.Context, accountID int64) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.balances[accountID]; !ok {
		return nil, ErrAccountNotFound
	}
	out := make([]Entry, len(l.entries[accountID]))
	copy(out, l.entries[accountID])
	return out, nil
}
