package market

import (
	"context"
	"errors"

	"github.com/harbourfi/factormart/internal/domain"
	"github.com/harbourfi/factormart/internal/pricing"
	"github.com/harbourfi/factormart/internal/store"
)

// The read path: pure lookups, no side effects, no authorization checks.

func (e *Engine) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return inv, nil
}

// ListOpenInvoices returns Available listings still ahead of their due
// height, in id order.
func (e *Engine) ListOpenInvoices(ctx context.Context) ([]domain.Invoice, error) {
	invoices, err := e.store.ListOpenInvoices(ctx)
	if err != nil {
		return nil, err
	}
	height := e.clock.CurrentHeight()
	open := invoices[:0]
	for _, inv := range invoices {
		if inv.DueHeight > height {
			open = append(open, inv)
		}
	}
	return open, nil
}

func (e *Engine) GetInvoicePurchase(ctx context.Context, invoiceID int64) (*domain.Purchase, error) {
	p, err := e.store.GetPurchase(ctx, invoiceID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return p, nil
}

func (e *Engine) GetSellerRating(ctx context.Context, seller domain.AccountID) (domain.SellerRating, error) {
	return e.store.GetSellerRating(ctx, seller)
}

func (e *Engine) GetBuyerRating(ctx context.Context, buyer domain.AccountID) (domain.BuyerRating, error) {
	return e.store.GetBuyerRating(ctx, buyer)
}

func (e *Engine) GetPaymentConfirmation(ctx context.Context, invoiceID int64) (*domain.PaymentConfirmation, error) {
	c, err := e.store.GetPaymentConfirmation(ctx, invoiceID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return c, nil
}

func (e *Engine) GetDisputeRecord(ctx context.Context, invoiceID int64) (*domain.DisputeRecord, error) {
	d, err := e.store.GetDisputeRecord(ctx, invoiceID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return d, nil
}

func (e *Engine) GetPlatformStats(ctx context.Context) (domain.PlatformStats, error) {
	return e.store.Stats(ctx)
}

// IsInvoiceOverdue reports whether a sold invoice has outlived its due height.
func (e *Engine) IsInvoiceOverdue(ctx context.Context, invoiceID int64) (bool, error) {
	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return false, mapStoreErr(err)
	}
	return inv.Status == domain.StatusSold && e.clock.CurrentHeight() > inv.DueHeight, nil
}

// CalculateROI reports the buyer's return on the invoice in basis points.
func (e *Engine) CalculateROI(ctx context.Context, invoiceID int64) (int64, error) {
	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return pricing.ROIBps(inv.OriginalAmount, inv.DiscountedAmount), nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
