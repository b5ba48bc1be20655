package domain

// InvoiceStatus is the closed set of lifecycle states an invoice moves through.
type InvoiceStatus string

const (
	StatusAvailable InvoiceStatus = "available"
	StatusSold      InvoiceStatus = "sold"
	StatusPaid      InvoiceStatus = "paid"
	StatusDisputed  InvoiceStatus = "disputed"
	StatusExpired   InvoiceStatus = "expired"
)

// AccountID identifies a party on the ledger. Sellers, debtors, buyers, the
// admin and the escrow holder are all ledger accounts.
type AccountID = int64

// Invoice is a receivable listed for sale at a discount.
// DiscountedAmount is fixed at creation and never recomputed.
type Invoice struct {
	ID               int64         `json:"id"`
	Seller           AccountID     `json:"seller"`
	Debtor           AccountID     `json:"debtor"`
	OriginalAmount   int64         `json:"original_amount"`
	DiscountRateBps  int64         `json:"discount_rate_bps"`
	DiscountedAmount int64         `json:"discounted_amount"`
	DueHeight        int64         `json:"due_height"`
	CreatedHeight    int64         `json:"created_height"`
	Status           InvoiceStatus `json:"status"`
	Description      string        `json:"description"`
	InvoiceNumber    string        `json:"invoice_number"`
}

// Purchase exists once an invoice has been sold. PaymentReceived flips
// false->true exactly once, on payment confirmation.
type Purchase struct {
	InvoiceID       int64     `json:"invoice_id"`
	Buyer           AccountID `json:"buyer"`
	PurchasePrice   int64     `json:"purchase_price"`
	PurchaseHeight  int64     `json:"purchase_height"`
	PaymentReceived bool      `json:"payment_received"`
}

// SellerRating aggregates a seller's marketplace history.
// A seller with no history reads as the zero value.
type SellerRating struct {
	Seller             AccountID `json:"seller"`
	TotalInvoices      int64     `json:"total_invoices"`
	SuccessfulInvoices int64     `json:"successful_invoices"`
	DisputedInvoices   int64     `json:"disputed_invoices"`
	AverageRating      int64     `json:"average_rating"`
	TotalVolume        int64     `json:"total_volume"`
}

// BuyerRating aggregates a buyer's marketplace history.
// ReturnsEarned may go negative when a debtor underpays.
type BuyerRating struct {
	Buyer               AccountID `json:"buyer"`
	TotalPurchases      int64     `json:"total_purchases"`
	SuccessfulPurchases int64     `json:"successful_purchases"`
	TotalInvested       int64     `json:"total_invested"`
	ReturnsEarned       int64     `json:"returns_earned"`
}

// PaymentConfirmation is the write-once record of the debtor's repayment.
type PaymentConfirmation struct {
	InvoiceID          int64     `json:"invoice_id"`
	Confirmer          AccountID `json:"confirmer"`
	ConfirmationHeight int64     `json:"confirmation_height"`
	AmountPaid         int64     `json:"amount_paid"`
}

// DisputeRecord tracks a dispute filed against a sold invoice.
// Resolved flips false->true exactly once.
type DisputeRecord struct {
	InvoiceID     int64     `json:"invoice_id"`
	Disputer      AccountID `json:"disputer"`
	Reason        string    `json:"reason"`
	DisputeHeight int64     `json:"dispute_height"`
	Resolved      bool      `json:"resolved"`
	Resolution    string    `json:"resolution"`
}

// PlatformConfig is the singleton holding platform-wide parameters.
// FeesCollected grows through purchase accrual, shrinks through admin
// withdrawal, and never goes negative.
type PlatformConfig struct {
	FeeRateBps     int64 `json:"fee_rate_bps"`
	MinDiscountBps int64 `json:"min_discount_bps"`
	MaxDiscountBps int64 `json:"max_discount_bps"`
	FeesCollected  int64 `json:"fees_collected"`
}

// PlatformStats is the aggregate view served by the platform stats read.
type PlatformStats struct {
	TotalInvoices  int64 `json:"total_invoices"`
	TotalSold      int64 `json:"total_sold"`
	TotalPaid      int64 `json:"total_paid"`
	TotalDisputed  int64 `json:"total_disputed"`
	TotalExpired   int64 `json:"total_expired"`
	FeesCollected  int64 `json:"fees_collected"`
	FeeRateBps     int64 `json:"fee_rate_bps"`
	MinDiscountBps int64 `json:"min_discount_bps"`
	MaxDiscountBps int64 `json:"max_discount_bps"`
}
