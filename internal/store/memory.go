package store

import (
	"context"
	"sort"
	"sync"

	"github.com/harbourfi/factormart/internal/domain"
)

// Memory keeps all records in maps behind a single mutex. Atomically
// snapshots the maps before running fn and restores the snapshot when fn
// fails, so a failed operation leaves no trace. Used by the engine's test
// suite and the benchmark's demo mode.
type Memory struct {
	mu sync.Mutex

	nextInvoiceID int64
	invoices      map[int64]domain.Invoice
	purchases     map[int64]domain.Purchase
	sellerRatings map[domain.AccountID]domain.SellerRating
	buyerRatings  map[domain.AccountID]domain.BuyerRating
	confirmations map[int64]domain.PaymentConfirmation
	disputes      map[int64]domain.DisputeRecord
	config        domain.PlatformConfig
}

func NewMemory(cfg domain.PlatformConfig) *Memory {
	return &Memory{
		nextInvoiceID: 1,
		invoices:      make(map[int64]domain.Invoice),
		purchases:     make(map[int64]domain.Purchase),
		sellerRatings: make(map[domain.AccountID]domain.SellerRating),
		buyerRatings:  make(map[domain.AccountID]domain.BuyerRating),
		confirmations: make(map[int64]domain.PaymentConfirmation),
		disputes:      make(map[int64]domain.DisputeRecord),
		config:        cfg,
	}
}

type memorySnapshot struct {
	nextInvoiceID int64
	invoices      map[int64]domain.Invoice
	purchases     map[int64]domain.Purchase
	sellerRatings map[domain.AccountID]domain.SellerRating
	buyerRatings  map[domain.AccountID]domain.BuyerRating
	confirmations map[int64]domain.PaymentConfirmation
	disputes      map[int64]domain.DisputeRecord
	config        domain.PlatformConfig
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		nextInvoiceID: m.nextInvoiceID,
		invoices:      cloneMap(m.invoices),
		purchases:     cloneMap(m.purchases),
		sellerRatings: cloneMap(m.sellerRatings),
		buyerRatings:  cloneMap(m.buyerRatings),
		confirmations: cloneMap(m.confirmations),
		disputes:      cloneMap(m.disputes),
		config:        m.config,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.nextInvoiceID = s.nextInvoiceID
	m.invoices = s.invoices
	m.purchases = s.purchases
	m.sellerRatings = s.sellerRatings
	m.buyerRatings = s.buyerRatings
	m.confirmations = s.confirmations
	m.disputes = s.disputes
	m.config = s.config
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Atomically serializes all mutating operations under one mutex, which also
// covers the per-invoice and per-identity ordering requirements.
func (m *Memory) Atomically(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn((*memoryTx)(m)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// memoryTx exposes the Tx surface over the locked store.
type memoryTx Memory

func (tx *memoryTx) CreateInvoice(ctx context.Context, inv *domain.Invoice) error {
	inv.ID = tx.nextInvoiceID
	tx.nextInvoiceID++
	tx.invoices[inv.ID] = *inv
	return nil
}

func (tx *memoryTx) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	inv, ok := tx.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (tx *memoryTx) PutInvoice(ctx context.Context, inv domain.Invoice) error {
	tx.invoices[inv.ID] = inv
	return nil
}

func (tx *memoryTx) GetPurchase(ctx context.Context, invoiceID int64) (*domain.Purchase, error) {
	p, ok := tx.purchases[invoiceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (tx *memoryTx) PutPurchase(ctx context.Context, p domain.Purchase) error {
	tx.purchases[p.InvoiceID] = p
	return nil
}

func (tx *memoryTx) GetSellerRating(ctx context.Context, seller domain.AccountID) (domain.SellerRating, error) {
	r, ok := tx.sellerRatings[seller]
	if !ok {
		return domain.SellerRating{Seller: seller}, nil
	}
	return r, nil
}

func (tx *memoryTx) PutSellerRating(ctx context.Context, r domain.SellerRating) error {
	tx.sellerRatings[r.Seller] = r
	return nil
}

func (tx *memoryTx) GetBuyerRating(ctx context.Context, buyer domain.AccountID) (domain.BuyerRating, error) {
	r, ok := tx.buyerRatings[buyer]
	if !ok {
		return domain.BuyerRating{Buyer: buyer}, nil
	}
	return r, nil
}

func (tx *memoryTx) PutBuyerRating(ctx context.Context, r domain.BuyerRating) error {
	tx.buyerRatings[r.Buyer] = r
	return nil
}

func (tx *memoryTx) PutPaymentConfirmation(ctx context.Context, c domain.PaymentConfirmation) error {
	tx.confirmations[c.InvoiceID] = c
	return nil
}

func (tx *memoryTx) GetDisputeRecord(ctx context.Context, invoiceID int64) (*domain.DisputeRecord, error) {
	d, ok := tx.disputes[invoiceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (tx *memoryTx) PutDisputeRecord(ctx context.Context, d domain.DisputeRecord) error {
	tx.disputes[d.InvoiceID] = d
	return nil
}

func (tx *memoryTx) GetConfig(ctx context.Context) (domain.PlatformConfig, error) {
	return tx.config, nil
}

func (tx *memoryTx) PutConfig(ctx context.Context, cfg domain.PlatformConfig) error {
	tx.config = cfg
	return nil
}

// Reader surface.

func (m *Memory) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (m *Memory) ListOpenInvoices(ctx context.Context) ([]domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Invoice
	for _, inv := range m.invoices {
		if inv.Status == domain.StatusAvailable {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetPurchase(ctx context.Context, invoiceID int64) (*domain.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[invoiceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) GetSellerRating(ctx context.Context, seller domain.AccountID) (domain.SellerRating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.sellerRatings[seller]
	if !ok {
		return domain.SellerRating{Seller: seller}, nil
	}
	return r, nil
}

func (m *Memory) GetBuyerRating(ctx context.Context, buyer domain.AccountID) (domain.BuyerRating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.buyerRatings[buyer]
	if !ok {
		return domain.BuyerRating{Buyer: buyer}, nil
	}
	return r, nil
}

func (m *Memory) GetPaymentConfirmation(ctx context.Context, invoiceID int64) (*domain.PaymentConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.confirmations[invoiceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) GetDisputeRecord(ctx context.Context, invoiceID int64) (*domain.DisputeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[invoiceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *Memory) GetConfig(ctx context.Context) (domain.PlatformConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config, nil
}

func (m *Memory) Stats(ctx context.Context) (domain.PlatformStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := domain.PlatformStats{
		FeesCollected:  m.config.FeesCollected,
		FeeRateBps:     m.config.FeeRateBps,
		MinDiscountBps: m.config.MinDiscountBps,
		MaxDiscountBps: m.config.MaxDiscountBps,
	}
	for _, inv := range m.invoices {
		stats.TotalInvoices++
		switch inv.Status {
		case domain.StatusSold:
			stats.TotalSold++
		case domain.StatusPaid:
			stats.TotalPaid++
		case domain.StatusDisputed:
			stats.TotalDisputed++
		case domain.StatusExpired:
			stats.TotalExpired++
		}
	}
	return stats, nil
}
