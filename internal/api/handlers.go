package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/harbourfi/factormart/internal/domain"
	"github.com/harbourfi/factormart/internal/ledger"
	"github.com/harbourfi/factormart/internal/market"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factormart_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "factormart_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	engine *market.Engine
	funds  ledger.Ledger
}

func NewHandler(engine *market.Engine, funds ledger.Ledger) *Handler {
	return &Handler{engine: engine, funds: funds}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// observe wraps a handler with the request counter and latency histogram.
func observe(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
		defer timer.ObserveDuration()

		sw := &codeWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(sw.status)).Inc()
	}
}

type codeWriter struct {
	http.ResponseWriter
	status int
}

func (w *codeWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) CreateInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := Caller(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}

	var req domain.CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	inv, err := h.engine.CreateInvoice(r.Context(), caller, req)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, inv)
}

func (h *Handler) ListInvoicesHandler(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.engine.ListOpenInvoices(r.Context())
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	if invoices == nil {
		invoices = []domain.Invoice{}
	}
	respondWithJSON(w, http.StatusOK, invoices)
}

func (h *Handler) GetInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}
	inv, err := h.engine.GetInvoice(r.Context(), id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, inv)
}

func (h *Handler) PurchaseInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := Caller(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}

	paid, err := h.engine.PurchaseInvoice(r.Context(), caller, id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"amount_paid": paid})
}

func (h *Handler) ConfirmPaymentHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := Caller(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}

	var req domain.ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	paid, err := h.engine.ConfirmPayment(r.Context(), caller, id, req.AmountPaid)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"amount_paid": paid})
}

func (h *Handler) FileDisputeHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := Caller(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}

	var req domain.FileDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	if err := h.engine.FileDispute(r.Context(), caller, id, req.Reason); err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "disputed"})
}

func (h *Handler) ResolveDisputeHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := Caller(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}

	var req domain.ResolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	if err := h.engine.ResolveDispute(r.Context(), caller, id, req.Resolution); err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (h *Handler) MarkOverdueHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}

	if err := h.engine.MarkOverdue(r.Context(), id); err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "expired"})
}

func (h *Handler) CancelInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := Caller(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}

	if err := h.engine.CancelInvoice(r.Context(), caller, id); err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) GetPurchaseHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}
	p, err := h.engine.GetInvoicePurchase(r.Context(), id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (h *Handler) GetPaymentConfirmationHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}
	c, err := h.engine.GetPaymentConfirmation(r.Context(), id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *Handler) GetDisputeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}
	d, err := h.engine.GetDisputeRecord(r.Context(), id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, d)
}

func (h *Handler) GetROIHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}
	roi, err := h.engine.CalculateROI(r.Context(), id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"roi_bps": roi})
}

func (h *Handler) IsOverdueHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}
	overdue, err := h.engine.IsInvoiceOverdue(r.Context(), id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"overdue": overdue})
}

func (h *Handler) GetSellerRatingHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid seller id")
		return
	}
	rating, err := h.engine.GetSellerRating(r.Context(), id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rating)
}

func (h *Handler) GetBuyerRatingHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid buyer id")
		return
	}
	rating, err := h.engine.GetBuyerRating(r.Context(), id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rating)
}

func (h *Handler) PlatformStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.GetPlatformStats(r.Context())
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (h *Handler) SetFeeRateHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := Caller(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}

	var req domain.SetFeeRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	if err := h.engine.SetPlatformFeeRate(r.Context(), caller, req.RateBps); err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"fee_rate_bps": req.RateBps})
}

func (h *Handler) SetDiscountLimitsHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := Caller(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}

	var req domain.SetDiscountLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	if err := h.engine.SetDiscountLimits(r.Context(), caller, req.MinBps, req.MaxBps); err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, req)
}

func (h *Handler) WithdrawFeesHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := Caller(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}

	var req domain.WithdrawFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	if err := h.engine.WithdrawPlatformFees(r.Context(), caller, req.Amount); err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"withdrawn": req.Amount})
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := h.funds.CreateAccount(r.Context(), 0)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "System error creating account")
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]int64{"account_id": id})
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid account id")
		return
	}
	acc, err := h.funds.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			respondWithError(w, http.StatusNotFound, "Account not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	respondWithJSON(w, http.StatusOK, acc)
}

func (h *Handler) GetAccountEntriesHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid account id")
		return
	}
	entries, err := h.funds.GetEntries(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			respondWithError(w, http.StatusNotFound, "Account not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	respondWithJSON(w, http.StatusOK, entries)
}

// respondWithEngineError maps the engine's typed failures onto HTTP codes.
func respondWithEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, market.ErrUnauthorized):
		respondWithError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, market.ErrCannotBuyOwnInvoice):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, market.ErrNotAvailable),
		errors.Is(err, market.ErrAlreadyConfirmed),
		errors.Is(err, market.ErrInvalidStatus):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrInvalidDiscount),
		errors.Is(err, market.ErrExpired),
		errors.Is(err, market.ErrNotYetOverdue),
		errors.Is(err, market.ErrInsufficientFunds):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
