// Package store owns every marketplace record. The lifecycle engine holds no
// state of its own: it re-reads current records inside each operation and
// writes back through a transaction that commits all of them or none.
package store

import (
	"context"
	"errors"

	"github.com/harbourfi/factormart/internal/domain"
)

var ErrNotFound = errors.New("record not found")

// Reader is the side-effect-free lookup surface backing the read path.
// Rating getters return a zero-valued record when none exists.
type Reader interface {
	GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error)
	ListOpenInvoices(ctx context.Context) ([]domain.Invoice, error)
	GetPurchase(ctx context.Context, invoiceID int64) (*domain.Purchase, error)
	GetSellerRating(ctx context.Context, seller domain.AccountID) (domain.SellerRating, error)
	GetBuyerRating(ctx context.Context, buyer domain.AccountID) (domain.BuyerRating, error)
	GetPaymentConfirmation(ctx context.Context, invoiceID int64) (*domain.PaymentConfirmation, error)
	GetDisputeRecord(ctx context.Context, invoiceID int64) (*domain.DisputeRecord, error)
	GetConfig(ctx context.Context) (domain.PlatformConfig, error)
	Stats(ctx context.Context) (domain.PlatformStats, error)
}

// Tx is the record surface visible inside Atomically. GetInvoice takes a
// write lock on the row, so two concurrent operations on the same invoice
// serialize there: the second sees the first's committed status or nothing.
type Tx interface {
	CreateInvoice(ctx context.Context, inv *domain.Invoice) error
	GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error)
	PutInvoice(ctx context.Context, inv domain.Invoice) error
	GetPurchase(ctx context.Context, invoiceID int64) (*domain.Purchase, error)
	PutPurchase(ctx context.Context, p domain.Purchase) error
	GetSellerRating(ctx context.Context, seller domain.AccountID) (domain.SellerRating, error)
	PutSellerRating(ctx context.Context, r domain.SellerRating) error
	GetBuyerRating(ctx context.Context, buyer domain.AccountID) (domain.BuyerRating, error)
	PutBuyerRating(ctx context.Context, r domain.BuyerRating) error
	PutPaymentConfirmation(ctx context.Context, c domain.PaymentConfirmation) error
	GetDisputeRecord(ctx context.Context, invoiceID int64) (*domain.DisputeRecord, error)
	PutDisputeRecord(ctx context.Context, d domain.DisputeRecord) error
	GetConfig(ctx context.Context) (domain.PlatformConfig, error)
	PutConfig(ctx context.Context, cfg domain.PlatformConfig) error
}

// Store is the full record store contract.
type Store interface {
	Reader

	// Atomically runs fn within a transaction. If fn returns an error the
	// transaction is rolled back and no write in it takes effect.
	Atomically(ctx context.Context, fn func(Tx) error) error
}
