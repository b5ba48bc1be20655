package market

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harbourfi/factormart/internal/chain"
	"github.com/harbourfi/factormart/internal/domain"
	"github.com/harbourfi/factormart/internal/ledger"
	"github.com/harbourfi/factormart/internal/store"
)

type fixture struct {
	engine *Engine
	store  *store.Memory
	funds  *ledger.Memory
	clock  *chain.Manual

	escrow domain.AccountID
	admin  domain.AccountID
	seller domain.AccountID
	buyer  domain.AccountID
	debtor domain.AccountID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	funds := ledger.NewMemory()
	escrow, err := funds.CreateAccount(ctx, 0)
	require.NoError(t, err)
	admin, err := funds.CreateAccount(ctx, 0)
	require.NoError(t, err)
	seller, err := funds.CreateAccount(ctx, 0)
	require.NoError(t, err)
	buyer, err := funds.CreateAccount(ctx, 1_000_000)
	require.NoError(t, err)
	debtor, err := funds.CreateAccount(ctx, 1_000_000)
	require.NoError(t, err)

	st := store.NewMemory(domain.PlatformConfig{
		FeeRateBps:     250,
		MinDiscountBps: 100,
		MaxDiscountBps: 5000,
	})
	clock := chain.NewManual(100)

	return &fixture{
		engine: NewEngine(st, funds, clock, escrow, admin, nil),
		store:  st,
		funds:  funds,
		clock:  clock,
		escrow: escrow,
		admin:  admin,
		seller: seller,
		buyer:  buyer,
		debtor: debtor,
	}
}

func (f *fixture) list(t *testing.T) *domain.Invoice {
	t.Helper()
	inv, err := f.engine.CreateInvoice(context.Background(), f.seller, domain.CreateInvoiceRequest{
		Debtor:          f.debtor,
		OriginalAmount:  100_000,
		DiscountRateBps: 1000,
		DueHeight:       200,
		Description:     "Q3 receivable",
		InvoiceNumber:   "INV-2024-001",
	})
	require.NoError(t, err)
	return inv
}

func (f *fixture) balance(t *testing.T, id domain.AccountID) int64 {
	t.Helper()
	acc, err := f.funds.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func TestCreateInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.list(t)
	assert.Equal(t, int64(1), inv.ID)
	assert.Equal(t, domain.StatusAvailable, inv.Status)
	assert.Equal(t, int64(90_000), inv.DiscountedAmount)
	assert.Equal(t, int64(100), inv.CreatedHeight)

	rating, err := f.engine.GetSellerRating(ctx, f.seller)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rating.TotalInvoices)
	assert.Equal(t, int64(100_000), rating.TotalVolume)

	// ids strictly increase, never reused
	second := f.list(t)
	assert.Equal(t, int64(2), second.ID)
}

func TestCreateInvoiceRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  domain.CreateInvoiceRequest
		want error
	}{
		{"zero amount", domain.CreateInvoiceRequest{OriginalAmount: 0, DiscountRateBps: 1000, DueHeight: 200}, ErrInvalidAmount},
		{"negative amount", domain.CreateInvoiceRequest{OriginalAmount: -5, DiscountRateBps: 1000, DueHeight: 200}, ErrInvalidAmount},
		{"amount too large for bps arithmetic", domain.CreateInvoiceRequest{OriginalAmount: maxOriginalAmount + 1, DiscountRateBps: 1000, DueHeight: 200}, ErrInvalidAmount},
		{"discount below min", domain.CreateInvoiceRequest{OriginalAmount: 1000, DiscountRateBps: 50, DueHeight: 200}, ErrInvalidDiscount},
		{"discount above max", domain.CreateInvoiceRequest{OriginalAmount: 1000, DiscountRateBps: 6000, DueHeight: 200}, ErrInvalidDiscount},
		{"due height in past", domain.CreateInvoiceRequest{OriginalAmount: 1000, DiscountRateBps: 1000, DueHeight: 100}, ErrExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateInvoice(ctx, f.seller, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// nothing was listed and no rating materialized
	rating, err := f.engine.GetSellerRating(ctx, f.seller)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rating.TotalInvoices)
}

func TestPurchaseInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.list(t)

	paid, err := f.engine.PurchaseInvoice(ctx, f.buyer, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90_000), paid)

	// buyer pays 90000, seller nets 90000-2250, fee stays in escrow
	assert.Equal(t, int64(910_000), f.balance(t, f.buyer))
	assert.Equal(t, int64(87_750), f.balance(t, f.seller))
	assert.Equal(t, int64(2_250), f.balance(t, f.escrow))

	got, err := f.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSold, got.Status)

	purchase, err := f.engine.GetInvoicePurchase(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, f.buyer, purchase.Buyer)
	assert.Equal(t, int64(90_000), purchase.PurchasePrice)
	assert.False(t, purchase.PaymentReceived)

	rating, err := f.engine.GetBuyerRating(ctx, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rating.TotalPurchases)
	assert.Equal(t, int64(90_000), rating.TotalInvested)

	cfg, err := f.store.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2_250), cfg.FeesCollected)
}

func TestPurchaseInvoiceRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.list(t)

	_, err := f.engine.PurchaseInvoice(ctx, f.buyer, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.PurchaseInvoice(ctx, f.seller, inv.ID)
	assert.ErrorIs(t, err, ErrCannotBuyOwnInvoice)

	// past due height
	f.clock.Set(200)
	_, err = f.engine.PurchaseInvoice(ctx, f.buyer, inv.ID)
	assert.ErrorIs(t, err, ErrExpired)
	f.clock.Set(100)

	// broke buyer: operation rolls back entirely
	broke, err := f.funds.CreateAccount(ctx, 10)
	require.NoError(t, err)
	_, err = f.engine.PurchaseInvoice(ctx, broke, inv.ID)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(10), f.balance(t, broke))
	got, err := f.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailable, got.Status)
}

func TestPurchaseInvoiceSecondAttemptFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.list(t)

	_, err := f.engine.PurchaseInvoice(ctx, f.buyer, inv.ID)
	require.NoError(t, err)

	rival, err := f.funds.CreateAccount(ctx, 1_000_000)
	require.NoError(t, err)

	afterFirst, err := f.engine.GetInvoicePurchase(ctx, inv.ID)
	require.NoError(t, err)

	_, err = f.engine.PurchaseInvoice(ctx, rival, inv.ID)
	assert.ErrorIs(t, err, ErrNotAvailable)

	// post-first-purchase state is untouched
	assert.Equal(t, int64(1_000_000), f.balance(t, rival))
	unchanged, err := f.engine.GetInvoicePurchase(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, afterFirst, unchanged)
}

func TestPurchaseCompensatesFailedPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.list(t)

	// first leg (buyer->escrow) succeeds, second (escrow->seller) fails
	f.funds.FailErr = ledger.ErrAccountNotFound
	f.funds.FailAt = 2

	_, err := f.engine.PurchaseInvoice(ctx, f.buyer, inv.ID)
	require.Error(t, err)

	// refund leg made the buyer whole; no record written
	assert.Equal(t, int64(1_000_000), f.balance(t, f.buyer))
	assert.Equal(t, int64(0), f.balance(t, f.escrow))
	got, err := f.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailable, got.Status)
	_, err = f.engine.GetInvoicePurchase(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentPurchaseExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.list(t)

	rival, err := f.funds.CreateAccount(ctx, 1_000_000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, caller := range []domain.AccountID{f.buyer, rival} {
		wg.Add(1)
		go func(i int, caller domain.AccountID) {
			defer wg.Done()
			_, errs[i] = f.engine.PurchaseInvoice(ctx, caller, inv.ID)
		}(i, caller)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrNotAvailable)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.list(t)
	_, err := f.engine.PurchaseInvoice(ctx, f.buyer, inv.ID)
	require.NoError(t, err)

	paid, err := f.engine.ConfirmPayment(ctx, f.buyer, inv.ID, 95_000)
	require.NoError(t, err)
	assert.Equal(t, int64(95_000), paid)

	got, err := f.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, got.Status)

	conf, err := f.engine.GetPaymentConfirmation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(95_000), conf.AmountPaid)
	assert.Equal(t, f.buyer, conf.Confirmer)

	sellerRating, err := f.engine.GetSellerRating(ctx, f.seller)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sellerRating.SuccessfulInvoices)

	buyerRating, err := f.engine.GetBuyerRating(ctx, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), buyerRating.SuccessfulPurchases)
	assert.Equal(t, int64(5_000), buyerRating.ReturnsEarned)

	// write-once: second confirmation fails and counters stay put
	_, err = f.engine.ConfirmPayment(ctx, f.buyer, inv.ID, 95_000)
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	buyerRating, err = f.engine.GetBuyerRating(ctx, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), buyerRating.SuccessfulPurchases)
}

func TestConfirmPaymentUnderpaymentGoesNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.list(t)
	_, err := f.engine.PurchaseInvoice(ctx, f.buyer, inv.ID)
	require.NoError(t, err)

	// debtor paid less than the purchase price; no floor is applied
	_, err = f.engine.ConfirmPayment(ctx, f.buyer, inv.ID, 80_000)
	require.NoError(t, err)

	rating, err := f.engine.GetBuyerRating(ctx, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(-10_000), rating.ReturnsEarned)
}

func TestConfirmPaymentRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.list(t)

	// no purchase yet
	_, err := f.engine.ConfirmPayment(ctx, f.buyer, inv.ID, 1000)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.PurchaseInvoice(ctx, f.buyer, inv.ID)
	require.NoError(t, err)

	_, err = f.engine.ConfirmPayment(ctx, f.seller, inv.ID, 1000)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.engine.ConfirmPayment(ctx, f.buyer, inv.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.engine.ConfirmPayment(ctx, f.buyer, 999, 1000)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDisputeLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.list(t)

	// disputes require a sold invoice
	err := f.engine.FileDispute(ctx, f.seller, inv.ID, "never shipped")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.engine.PurchaseInvoice(ctx, f.buyer, inv.ID)
	require.NoError(t, err)

	// only buyer or seller may file
	err = f.engine.FileDispute(ctx, f.debtor, inv.ID, "not my problem")
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.engine.FileDispute(ctx, f.buyer, inv.ID, "debtor unreachable"))

	got, err := f.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisputed, got.Status)

	rating, err := f.engine.GetSellerRating(ctx, f.seller)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rating.DisputedInvoices)

	// disputed invoices cannot be disputed again or confirmed
	err = f.engine.FileDispute(ctx, f.buyer, inv.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = f.engine.ConfirmPayment(ctx, f.buyer, inv.ID, 1000)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	// resolution is admin-only and returns the invoice to Sold
	err = f.engine.ResolveDispute(ctx, f.buyer, inv.ID, "settled")
	assert.ErrorIs(t, err, ErrUnauthorized)
	require.NoError(t, f.engine.ResolveDispute(ctx, f.admin, inv.ID, "settled amicably"))

	got, err = f.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSold, got.Status)

	record, err := f.engine.GetDisputeRecord(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, record.Resolved)
	assert.Equal(t, "settled amicably", record.Resolution)

	// the sold lifecycle is unblocked again
	_, err = f.engine.ConfirmPayment(ctx, f.buyer, inv.ID, 100_000)
	require.NoError(t, err)
}

func TestRefileDisputeReplacesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.list(t)

	_, err := f.engine.PurchaseInvoice(ctx, f.buyer, inv.ID)
	require.NoError(t, err)
	require.NoError(t, f.engine.FileDispute(ctx, f.buyer, inv.ID, "debtor unreachable"))
	require.NoError(t, f.engine.ResolveDispute(ctx, f.admin, inv.ID, "debtor located"))

	// a fresh dispute after resolution overwrites the old record entirely
	f.clock.Advance(10)
	require.NoError(t, f.engine.FileDispute(ctx, f.seller, inv.ID, "buyer withholding payout"))

	record, err := f.engine.GetDisputeRecord(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, f.seller, record.Disputer)
	assert.Equal(t, "buyer withholding payout", record.Reason)
	assert.Equal(t, int64(110), record.DisputeHeight)
	assert.False(t, record.Resolved)
	assert.Empty(t, record.Resolution)
}

func TestResolveDisputeRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.list(t)

	err := f.engine.ResolveDispute(ctx, f.admin, 999, "x")
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.engine.ResolveDispute(ctx, f.admin, inv.ID, "x")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.list(t)

	err := f.engine.MarkOverdue(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.engine.PurchaseInvoice(ctx, f.buyer, inv.ID)
	require.NoError(t, err)

	err = f.engine.MarkOverdue(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrNotYetOverdue)

	// exactly at due height is still not overdue
	f.clock.Set(inv.DueHeight)
	err = f.engine.MarkOverdue(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrNotYetOverdue)

	f.clock.Set(inv.DueHeight + 1)
	overdue, err := f.engine.IsInvoiceOverdue(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, overdue)

	require.NoError(t, f.engine.MarkOverdue(ctx, inv.ID))
	got, err := f.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)

	err = f.engine.MarkOverdue(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCancelInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.list(t)

	err := f.engine.CancelInvoice(ctx, f.buyer, inv.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.engine.CancelInvoice(ctx, f.seller, inv.ID))
	got, err := f.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)

	err = f.engine.CancelInvoice(ctx, f.seller, inv.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	err = f.engine.CancelInvoice(ctx, f.seller, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.list(t)

	roi, err := f.engine.CalculateROI(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1111), roi)

	open, err := f.engine.ListOpenInvoices(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, inv.ID, open[0].ID)

	// past-due listings drop out of the browse view
	f.clock.Set(300)
	open, err = f.engine.ListOpenInvoices(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
	f.clock.Set(100)

	// unknown ratings read as zero values, not errors
	rating, err := f.engine.GetSellerRating(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, domain.SellerRating{Seller: 12345}, rating)

	stats, err := f.engine.GetPlatformStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalInvoices)
	assert.Equal(t, int64(250), stats.FeeRateBps)
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.engine.CreateInvoice(ctx, f.seller, domain.CreateInvoiceRequest{
		Debtor:          f.debtor,
		OriginalAmount:  100_000,
		DiscountRateBps: 1000,
		DueHeight:       200,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inv.ID)
	assert.Equal(t, domain.StatusAvailable, inv.Status)

	paid, err := f.engine.PurchaseInvoice(ctx, f.buyer, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90_000), paid)
	assert.Equal(t, int64(87_750), f.balance(t, f.seller))

	cfg, err := f.store.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2_250), cfg.FeesCollected)

	_, err = f.engine.ConfirmPayment(ctx, f.buyer, inv.ID, 95_000)
	require.NoError(t, err)

	got, err := f.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, got.Status)

	rating, err := f.engine.GetBuyerRating(ctx, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000), rating.ReturnsEarned)
}
