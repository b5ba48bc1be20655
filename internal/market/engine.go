// Package market is the invoice lifecycle engine: the state machine ruling
// which transitions are legal, how escrowed value moves, and how reputation
// counters accrue. Every mutating operation runs as one store transaction;
// value transfers happen after all preconditions pass and before any record
// write, so a failed operation is indistinguishable from one never attempted.
package market

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/harbourfi/factormart/internal/chain"
	"github.com/harbourfi/factormart/internal/domain"
	"github.com/harbourfi/factormart/internal/ledger"
	"github.com/harbourfi/factormart/internal/pricing"
	"github.com/harbourfi/factormart/internal/store"
)

// Engine wires the record store, the value-transfer primitive and the height
// clock together. Caller identity is always an explicit parameter; the
// engine reads no ambient caller state.
type Engine struct {
	store  store.Store
	funds  ledger.Transferrer
	clock  chain.Clock
	escrow domain.AccountID
	admin  domain.AccountID
	log    *zap.Logger
}

func NewEngine(s store.Store, funds ledger.Transferrer, clock chain.Clock, escrow, admin domain.AccountID, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: s, funds: funds, clock: clock, escrow: escrow, admin: admin, log: log}
}

// maxOriginalAmount keeps bps arithmetic on an invoice amount inside int64.
const maxOriginalAmount = math.MaxInt64 / pricing.BpsScale

// CreateInvoice lists a receivable for sale. The discounted amount is
// computed once here and never recomputed.
func (e *Engine) CreateInvoice(ctx context.Context, caller domain.AccountID, req domain.CreateInvoiceRequest) (*domain.Invoice, error) {
	if req.OriginalAmount <= 0 || req.OriginalAmount > maxOriginalAmount {
		return nil, ErrInvalidAmount
	}

	height := e.clock.CurrentHeight()
	if req.DueHeight <= height {
		return nil, ErrExpired
	}

	var inv domain.Invoice
	err := e.store.Atomically(ctx, func(tx store.Tx) error {
		cfg, err := tx.GetConfig(ctx)
		if err != nil {
			return fmt.Errorf("config read failed: %w", err)
		}
		if req.DiscountRateBps < cfg.MinDiscountBps || req.DiscountRateBps > cfg.MaxDiscountBps {
			return ErrInvalidDiscount
		}

		inv = domain.Invoice{
			Seller:           caller,
			Debtor:           req.Debtor,
			OriginalAmount:   req.OriginalAmount,
			DiscountRateBps:  req.DiscountRateBps,
			DiscountedAmount: pricing.DiscountedAmount(req.OriginalAmount, req.DiscountRateBps),
			DueHeight:        req.DueHeight,
			CreatedHeight:    height,
			Status:           domain.StatusAvailable,
			Description:      req.Description,
			InvoiceNumber:    req.InvoiceNumber,
		}
		if err := tx.CreateInvoice(ctx, &inv); err != nil {
			return fmt.Errorf("invoice insert failed: %w", err)
		}

		rating, err := tx.GetSellerRating(ctx, caller)
		if err != nil {
			return err
		}
		rating.TotalInvoices++
		rating.TotalVolume += req.OriginalAmount
		return tx.PutSellerRating(ctx, rating)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("invoice listed",
		zap.Int64("invoice_id", inv.ID),
		zap.Int64("seller", caller),
		zap.Int64("discounted_amount", inv.DiscountedAmount))
	return &inv, nil
}

// PurchaseInvoice sells an Available invoice to the caller. The buyer pays
// the discounted price into escrow, the seller receives the price net of the
// platform fee, and the fee accrues to the platform. Exactly one concurrent
// purchase can win: the loser observes Sold and gets ErrNotAvailable.
func (e *Engine) PurchaseInvoice(ctx context.Context, caller domain.AccountID, invoiceID int64) (int64, error) {
	var price int64
	err := e.store.Atomically(ctx, func(tx store.Tx) error {
		inv, err := tx.GetInvoice(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if inv.Status != domain.StatusAvailable {
			return ErrNotAvailable
		}
		if caller == inv.Seller {
			return ErrCannotBuyOwnInvoice
		}

		height := e.clock.CurrentHeight()
		if height >= inv.DueHeight {
			return ErrExpired
		}

		cfg, err := tx.GetConfig(ctx)
		if err != nil {
			return fmt.Errorf("config read failed: %w", err)
		}
		price = inv.DiscountedAmount
		fee := pricing.PlatformFee(price, cfg.FeeRateBps)

		// All preconditions hold; move value before touching records.
		// A fully discounted invoice has price 0 and moves no funds.
		if price > 0 {
			if err := e.funds.Transfer(ctx, price, caller, e.escrow); err != nil {
				return mapTransferErr(err)
			}
		}
		if sellerShare := price - fee; sellerShare > 0 {
			if err := e.funds.Transfer(ctx, sellerShare, e.escrow, inv.Seller); err != nil {
				// Undo the first leg so the buyer is whole again.
				if refundErr := e.funds.Transfer(ctx, price, e.escrow, caller); refundErr != nil {
					e.log.Error("escrow refund failed after payout failure",
						zap.Int64("invoice_id", invoiceID),
						zap.Int64("buyer", caller),
						zap.Error(refundErr))
				}
				return mapTransferErr(err)
			}
		}

		inv.Status = domain.StatusSold
		if err := tx.PutInvoice(ctx, *inv); err != nil {
			return err
		}
		if err := tx.PutPurchase(ctx, domain.Purchase{
			InvoiceID:      invoiceID,
			Buyer:          caller,
			PurchasePrice:  price,
			PurchaseHeight: height,
		}); err != nil {
			return err
		}

		rating, err := tx.GetBuyerRating(ctx, caller)
		if err != nil {
			return err
		}
		rating.TotalPurchases++
		rating.TotalInvested += price
		if err := tx.PutBuyerRating(ctx, rating); err != nil {
			return err
		}

		cfg.FeesCollected += fee
		return tx.PutConfig(ctx, cfg)
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("invoice purchased",
		zap.Int64("invoice_id", invoiceID),
		zap.Int64("buyer", caller),
		zap.Int64("price", price))
	return price, nil
}

// ConfirmPayment records the debtor's repayment to the buyer. Write-once:
// a second confirmation fails with ErrAlreadyConfirmed. AmountPaid is taken
// as reported and may be below the purchase price, in which case the buyer's
// returns go negative.
func (e *Engine) ConfirmPayment(ctx context.Context, caller domain.AccountID, invoiceID, amountPaid int64) (int64, error) {
	if amountPaid <= 0 {
		return 0, ErrInvalidAmount
	}

	err := e.store.Atomically(ctx, func(tx store.Tx) error {
		inv, err := tx.GetInvoice(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		purchase, err := tx.GetPurchase(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if caller != purchase.Buyer {
			return ErrUnauthorized
		}
		if inv.Status != domain.StatusSold {
			return ErrInvalidStatus
		}
		if purchase.PaymentReceived {
			return ErrAlreadyConfirmed
		}

		if err := tx.PutPaymentConfirmation(ctx, domain.PaymentConfirmation{
			InvoiceID:          invoiceID,
			Confirmer:          caller,
			ConfirmationHeight: e.clock.CurrentHeight(),
			AmountPaid:         amountPaid,
		}); err != nil {
			return err
		}

		purchase.PaymentReceived = true
		if err := tx.PutPurchase(ctx, *purchase); err != nil {
			return err
		}

		inv.Status = domain.StatusPaid
		if err := tx.PutInvoice(ctx, *inv); err != nil {
			return err
		}

		sellerRating, err := tx.GetSellerRating(ctx, inv.Seller)
		if err != nil {
			return err
		}
		sellerRating.SuccessfulInvoices++
		if err := tx.PutSellerRating(ctx, sellerRating); err != nil {
			return err
		}

		buyerRating, err := tx.GetBuyerRating(ctx, caller)
		if err != nil {
			return err
		}
		buyerRating.SuccessfulPurchases++
		buyerRating.ReturnsEarned += amountPaid - purchase.PurchasePrice
		return tx.PutBuyerRating(ctx, buyerRating)
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("payment confirmed",
		zap.Int64("invoice_id", invoiceID),
		zap.Int64("amount_paid", amountPaid))
	return amountPaid, nil
}

// FileDispute suspends a Sold invoice. Only the buyer or the seller may file.
func (e *Engine) FileDispute(ctx context.Context, caller domain.AccountID, invoiceID int64, reason string) error {
	err := e.store.Atomically(ctx, func(tx store.Tx) error {
		inv, err := tx.GetInvoice(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if inv.Status != domain.StatusSold {
			return ErrInvalidStatus
		}
		purchase, err := tx.GetPurchase(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if caller != purchase.Buyer && caller != inv.Seller {
			return ErrUnauthorized
		}

		if err := tx.PutDisputeRecord(ctx, domain.DisputeRecord{
			InvoiceID:     invoiceID,
			Disputer:      caller,
			Reason:        reason,
			DisputeHeight: e.clock.CurrentHeight(),
		}); err != nil {
			return err
		}

		inv.Status = domain.StatusDisputed
		if err := tx.PutInvoice(ctx, *inv); err != nil {
			return err
		}

		rating, err := tx.GetSellerRating(ctx, inv.Seller)
		if err != nil {
			return err
		}
		rating.DisputedInvoices++
		return tx.PutSellerRating(ctx, rating)
	})
	if err != nil {
		return err
	}

	e.log.Info("dispute filed",
		zap.Int64("invoice_id", invoiceID),
		zap.Int64("disputer", caller))
	return nil
}

// ResolveDispute closes an open dispute and returns the invoice to Sold.
// Resolution does not pick a winner; it unblocks further confirm or dispute
// cycles. Admin only.
func (e *Engine) ResolveDispute(ctx context.Context, caller domain.AccountID, invoiceID int64, resolution string) error {
	if caller != e.admin {
		return ErrUnauthorized
	}

	err := e.store.Atomically(ctx, func(tx store.Tx) error {
		inv, err := tx.GetInvoice(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if inv.Status != domain.StatusDisputed {
			return ErrInvalidStatus
		}
		dispute, err := tx.GetDisputeRecord(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		dispute.Resolved = true
		dispute.Resolution = resolution
		if err := tx.PutDisputeRecord(ctx, *dispute); err != nil {
			return err
		}

		inv.Status = domain.StatusSold
		return tx.PutInvoice(ctx, *inv)
	})
	if err != nil {
		return err
	}

	e.log.Info("dispute resolved", zap.Int64("invoice_id", invoiceID))
	return nil
}

// MarkOverdue expires a Sold invoice whose due height has passed. Anyone may
// call it; overdue is a fact of the clock, not a privilege.
func (e *Engine) MarkOverdue(ctx context.Context, invoiceID int64) error {
	return e.store.Atomically(ctx, func(tx store.Tx) error {
		inv, err := tx.GetInvoice(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if inv.Status != domain.StatusSold {
			return ErrInvalidStatus
		}
		if e.clock.CurrentHeight() <= inv.DueHeight {
			return ErrNotYetOverdue
		}

		inv.Status = domain.StatusExpired
		return tx.PutInvoice(ctx, *inv)
	})
}

// CancelInvoice lets the seller withdraw an unsold listing.
func (e *Engine) CancelInvoice(ctx context.Context, caller domain.AccountID, invoiceID int64) error {
	return e.store.Atomically(ctx, func(tx store.Tx) error {
		inv, err := tx.GetInvoice(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if caller != inv.Seller {
			return ErrUnauthorized
		}
		if inv.Status != domain.StatusAvailable {
			return ErrInvalidStatus
		}

		inv.Status = domain.StatusExpired
		return tx.PutInvoice(ctx, *inv)
	})
}

func mapTransferErr(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, ledger.ErrAccountNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("transfer failed: %w", err)
	}
}
