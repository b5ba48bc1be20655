package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/harbourfi/factormart/internal/logger"
)

// NewRouter wires the full HTTP surface. Mutating endpoints require a bearer
// token; the read path is public.
func NewRouter(h *Handler, auth *Auth, log *zap.Logger) http.Handler {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/auth/token", observe("/auth/token", auth.TokenHandler)).Methods("POST")

	// invoice lifecycle
	v1.HandleFunc("/invoices", observe("/invoices", auth.Middleware(h.CreateInvoiceHandler))).Methods("POST")
	v1.HandleFunc("/invoices", observe("/invoices", h.ListInvoicesHandler)).Methods("GET")
	v1.HandleFunc("/invoices/{id}", observe("/invoices/{id}", h.GetInvoiceHandler)).Methods("GET")
	v1.HandleFunc("/invoices/{id}/purchase", observe("/invoices/{id}/purchase", auth.Middleware(h.PurchaseInvoiceHandler))).Methods("POST")
	v1.HandleFunc("/invoices/{id}/payment", observe("/invoices/{id}/payment", auth.Middleware(h.ConfirmPaymentHandler))).Methods("POST")
	v1.HandleFunc("/invoices/{id}/dispute", observe("/invoices/{id}/dispute", auth.Middleware(h.FileDisputeHandler))).Methods("POST")
	v1.HandleFunc("/invoices/{id}/resolve", observe("/invoices/{id}/resolve", auth.Middleware(h.ResolveDisputeHandler))).Methods("POST")
	v1.HandleFunc("/invoices/{id}/overdue", observe("/invoices/{id}/overdue", auth.Middleware(h.MarkOverdueHandler))).Methods("POST")
	v1.HandleFunc("/invoices/{id}/cancel", observe("/invoices/{id}/cancel", auth.Middleware(h.CancelInvoiceHandler))).Methods("POST")

	// read path
	v1.HandleFunc("/invoices/{id}/purchase", observe("/invoices/{id}/purchase", h.GetPurchaseHandler)).Methods("GET")
	v1.HandleFunc("/invoices/{id}/payment", observe("/invoices/{id}/payment", h.GetPaymentConfirmationHandler)).Methods("GET")
	v1.HandleFunc("/invoices/{id}/dispute", observe("/invoices/{id}/dispute", h.GetDisputeHandler)).Methods("GET")
	v1.HandleFunc("/invoices/{id}/roi", observe("/invoices/{id}/roi", h.GetROIHandler)).Methods("GET")
	v1.HandleFunc("/invoices/{id}/overdue", observe("/invoices/{id}/overdue", h.IsOverdueHandler)).Methods("GET")
	v1.HandleFunc("/sellers/{id}/rating", observe("/sellers/{id}/rating", h.GetSellerRatingHandler)).Methods("GET")
	v1.HandleFunc("/buyers/{id}/rating", observe("/buyers/{id}/rating", h.GetBuyerRatingHandler)).Methods("GET")
	v1.HandleFunc("/platform/stats", observe("/platform/stats", h.PlatformStatsHandler)).Methods("GET")

	// admin surface
	v1.HandleFunc("/platform/fee-rate", observe("/platform/fee-rate", auth.Middleware(h.SetFeeRateHandler))).Methods("POST")
	v1.HandleFunc("/platform/discount-limits", observe("/platform/discount-limits", auth.Middleware(h.SetDiscountLimitsHandler))).Methods("POST")
	v1.HandleFunc("/platform/withdraw", observe("/platform/withdraw", auth.Middleware(h.WithdrawFeesHandler))).Methods("POST")

	// ledger accounts
	v1.HandleFunc("/accounts", observe("/accounts", h.CreateAccountHandler)).Methods("POST")
	v1.HandleFunc("/accounts/{id}", observe("/accounts/{id}", h.GetAccountHandler)).Methods("GET")
	v1.HandleFunc("/accounts/{id}/entries", observe("/accounts/{id}/entries", h.GetAccountEntriesHandler)).Methods("GET")

	return logger.RequestLog(log, r)
}
