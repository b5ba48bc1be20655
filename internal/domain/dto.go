package domain

// CreateInvoiceRequest is the payload for listing an invoice.
type CreateInvoiceRequest struct {
	Debtor          AccountID `json:"debtor"`
	OriginalAmount  int64     `json:"original_amount"`
	DiscountRateBps int64     `json:"discount_rate_bps"`
	DueHeight       int64     `json:"due_height"`
	Description     string    `json:"description"`
	InvoiceNumber   string    `json:"invoice_number"`
}

// ConfirmPaymentRequest carries the amount the debtor actually paid.
type ConfirmPaymentRequest struct {
	AmountPaid int64 `json:"amount_paid"`
}

// FileDisputeRequest carries the disputer's stated reason.
type FileDisputeRequest struct {
	Reason string `json:"reason"`
}

// ResolveDisputeRequest carries the admin's resolution text.
type ResolveDisputeRequest struct {
	Resolution string `json:"resolution"`
}

// SetFeeRateRequest updates the platform fee rate for future purchases.
type SetFeeRateRequest struct {
	RateBps int64 `json:"rate_bps"`
}

// SetDiscountLimitsRequest updates the discount bounds for future listings.
type SetDiscountLimitsRequest struct {
	MinBps int64 `json:"min_bps"`
	MaxBps int64 `json:"max_bps"`
}

// WithdrawFeesRequest moves collected fees from escrow to the admin account.
type WithdrawFeesRequest struct {
	Amount int64 `json:"amount"`
}
