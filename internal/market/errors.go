package market

import "errors"

// Every operation failure surfaces as exactly one of these. Precondition
// checks all run before any transfer or record write, so an operation that
// returns an error leaves state untouched.
var (
	ErrUnauthorized        = errors.New("caller not authorized")
	ErrNotFound            = errors.New("invoice not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidDiscount     = errors.New("discount rate outside allowed bounds")
	ErrExpired             = errors.New("invoice due date has passed")
	ErrNotAvailable        = errors.New("invoice not available for purchase")
	ErrCannotBuyOwnInvoice = errors.New("seller cannot buy own invoice")
	ErrAlreadyConfirmed    = errors.New("payment already confirmed")
	ErrInvalidStatus       = errors.New("operation not allowed in current status")
	ErrNotYetOverdue       = errors.New("invoice is not yet overdue")
	ErrInsufficientFunds   = errors.New("insufficient funds")
)
