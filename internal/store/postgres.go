package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harbourfi/factormart/internal/domain"
)

// Postgres is the production record store. Atomically maps onto a database
// transaction; per-invoice serialization comes from SELECT ... FOR UPDATE on
// the invoice row, per-identity serialization from FOR UPDATE on the rating
// rows.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(ctx context.Context, db *pgxpool.Pool, defaults domain.PlatformConfig) (*Postgres, error) {
	s := &Postgres{db: db}
	if err := s.bootstrap(ctx, defaults); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Postgres) bootstrap(ctx context.Context, defaults domain.PlatformConfig) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS invoices (
			id BIGSERIAL PRIMARY KEY,
			seller BIGINT NOT NULL,
			debtor BIGINT NOT NULL,
			original_amount BIGINT NOT NULL,
			discount_rate_bps BIGINT NOT NULL,
			discounted_amount BIGINT NOT NULL,
			due_height BIGINT NOT NULL,
			created_height BIGINT NOT NULL,
			status VARCHAR(16) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			invoice_number TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS purchases (
			invoice_id BIGINT PRIMARY KEY REFERENCES invoices(id),
			buyer BIGINT NOT NULL,
			purchase_price BIGINT NOT NULL,
			purchase_height BIGINT NOT NULL,
			payment_received BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS seller_ratings (
			seller BIGINT PRIMARY KEY,
			total_invoices BIGINT NOT NULL DEFAULT 0,
			successful_invoices BIGINT NOT NULL DEFAULT 0,
			disputed_invoices BIGINT NOT NULL DEFAULT 0,
			average_rating BIGINT NOT NULL DEFAULT 0,
			total_volume BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS buyer_ratings (
			buyer BIGINT PRIMARY KEY,
			total_purchases BIGINT NOT NULL DEFAULT 0,
			successful_purchases BIGINT NOT NULL DEFAULT 0,
			total_invested BIGINT NOT NULL DEFAULT 0,
			returns_earned BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS payment_confirmations (
			invoice_id BIGINT PRIMARY KEY REFERENCES invoices(id),
			confirmer BIGINT NOT NULL,
			confirmation_height BIGINT NOT NULL,
			amount_paid BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dispute_records (
			invoice_id BIGINT PRIMARY KEY REFERENCES invoices(id),
			disputer BIGINT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			dispute_height BIGINT NOT NULL,
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			resolution TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS platform_config (
			singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			fee_rate_bps BIGINT NOT NULL,
			min_discount_bps BIGINT NOT NULL,
			max_discount_bps BIGINT NOT NULL,
			fees_collected BIGINT NOT NULL DEFAULT 0 CHECK (fees_collected >= 0)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store bootstrap failed: %w", err)
		}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO platform_config (fee_rate_bps, min_discount_bps, max_discount_bps, fees_collected)
		 VALUES ($1, $2, $3, $4) ON CONFLICT (singleton) DO NOTHING`,
		defaults.FeeRateBps, defaults.MinDiscountBps, defaults.MaxDiscountBps, defaults.FeesCollected)
	if err != nil {
		return fmt.Errorf("config seed failed: %w", err)
	}
	return nil
}

func (s *Postgres) Atomically(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

const invoiceColumns = `id, seller, debtor, original_amount, discount_rate_bps,
	discounted_amount, due_height, created_height, status, description, invoice_number`

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := row.Scan(&inv.ID, &inv.Seller, &inv.Debtor, &inv.OriginalAmount,
		&inv.DiscountRateBps, &inv.DiscountedAmount, &inv.DueHeight,
		&inv.CreatedHeight, &inv.Status, &inv.Description, &inv.InvoiceNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (t *pgTx) CreateInvoice(ctx context.Context, inv *domain.Invoice) error {
	return t.tx.QueryRow(ctx,
		`INSERT INTO invoices (seller, debtor, original_amount, discount_rate_bps,
			discounted_amount, due_height, created_height, status, description, invoice_number)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		inv.Seller, inv.Debtor, inv.OriginalAmount, inv.DiscountRateBps,
		inv.DiscountedAmount, inv.DueHeight, inv.CreatedHeight, inv.Status,
		inv.Description, inv.InvoiceNumber,
	).Scan(&inv.ID)
}

func (t *pgTx) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	return scanInvoice(t.tx.QueryRow(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE id = $1 FOR UPDATE", id))
}

func (t *pgTx) PutInvoice(ctx context.Context, inv domain.Invoice) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE invoices SET status = $2, description = $3 WHERE id = $1`,
		inv.ID, inv.Status, inv.Description)
	return err
}

func (t *pgTx) GetPurchase(ctx context.Context, invoiceID int64) (*domain.Purchase, error) {
	return scanPurchase(t.tx.QueryRow(ctx,
		`SELECT invoice_id, buyer, purchase_price, purchase_height, payment_received
		 FROM purchases WHERE invoice_id = $1 FOR UPDATE`, invoiceID))
}

func (t *pgTx) PutPurchase(ctx context.Context, p domain.Purchase) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO purchases (invoice_id, buyer, purchase_price, purchase_height, payment_received)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (invoice_id) DO UPDATE SET payment_received = EXCLUDED.payment_received`,
		p.InvoiceID, p.Buyer, p.PurchasePrice, p.PurchaseHeight, p.PaymentReceived)
	return err
}

func (t *pgTx) GetSellerRating(ctx context.Context, seller domain.AccountID) (domain.SellerRating, error) {
	return scanSellerRating(t.tx.QueryRow(ctx,
		`SELECT seller, total_invoices, successful_invoices, disputed_invoices, average_rating, total_volume
		 FROM seller_ratings WHERE seller = $1 FOR UPDATE`, seller), seller)
}

func (t *pgTx) PutSellerRating(ctx context.Context, r domain.SellerRating) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO seller_ratings (seller, total_invoices, successful_invoices, disputed_invoices, average_rating, total_volume)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (seller) DO UPDATE SET
			total_invoices = EXCLUDED.total_invoices,
			successful_invoices = EXCLUDED.successful_invoices,
			disputed_invoices = EXCLUDED.disputed_invoices,
			average_rating = EXCLUDED.average_rating,
			total_volume = EXCLUDED.total_volume`,
		r.Seller, r.TotalInvoices, r.SuccessfulInvoices, r.DisputedInvoices, r.AverageRating, r.TotalVolume)
	return err
}

func (t *pgTx) GetBuyerRating(ctx context.Context, buyer domain.AccountID) (domain.BuyerRating, error) {
	return scanBuyerRating(t.tx.QueryRow(ctx,
		`SELECT buyer, total_purchases, successful_purchases, total_invested, returns_earned
		 FROM buyer_ratings WHERE buyer = $1 FOR UPDATE`, buyer), buyer)
}

func (t *pgTx) PutBuyerRating(ctx context.Context, r domain.BuyerRating) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO buyer_ratings (buyer, total_purchases, successful_purchases, total_invested, returns_earned)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (buyer) DO UPDATE SET
			total_purchases = EXCLUDED.total_purchases,
			successful_purchases = EXCLUDED.successful_purchases,
			total_invested = EXCLUDED.total_invested,
			returns_earned = EXCLUDED.returns_earned`,
		r.Buyer, r.TotalPurchases, r.SuccessfulPurchases, r.TotalInvested, r.ReturnsEarned)
	return err
}

func (t *pgTx) PutPaymentConfirmation(ctx context.Context, c domain.PaymentConfirmation) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO payment_confirmations (invoice_id, confirmer, confirmation_height, amount_paid)
		 VALUES ($1, $2, $3, $4)`,
		c.InvoiceID, c.Confirmer, c.ConfirmationHeight, c.AmountPaid)
	return err
}

func (t *pgTx) GetDisputeRecord(ctx context.Context, invoiceID int64) (*domain.DisputeRecord, error) {
	return scanDispute(t.tx.QueryRow(ctx,
		`SELECT invoice_id, disputer, reason, dispute_height, resolved, resolution
		 FROM dispute_records WHERE invoice_id = $1 FOR UPDATE`, invoiceID))
}

func (t *pgTx) PutDisputeRecord(ctx context.Context, d domain.DisputeRecord) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO dispute_records (invoice_id, disputer, reason, dispute_height, resolved, resolution)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (invoice_id) DO UPDATE SET
			disputer = EXCLUDED.disputer,
			reason = EXCLUDED.reason,
			dispute_height = EXCLUDED.dispute_height,
			resolved = EXCLUDED.resolved,
			resolution = EXCLUDED.resolution`,
		d.InvoiceID, d.Disputer, d.Reason, d.DisputeHeight, d.Resolved, d.Resolution)
	return err
}

func (t *pgTx) GetConfig(ctx context.Context) (domain.PlatformConfig, error) {
	return scanConfig(t.tx.QueryRow(ctx,
		`SELECT fee_rate_bps, min_discount_bps, max_discount_bps, fees_collected
		 FROM platform_config FOR UPDATE`))
}

func (t *pgTx) PutConfig(ctx context.Context, cfg domain.PlatformConfig) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE platform_config SET fee_rate_bps = $1, min_discount_bps = $2,
			max_discount_bps = $3, fees_collected = $4`,
		cfg.FeeRateBps, cfg.MinDiscountBps, cfg.MaxDiscountBps, cfg.FeesCollected)
	return err
}

// Reader surface over the pool.

func (s *Postgres) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	return scanInvoice(s.db.QueryRow(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE id = $1", id))
}

func (s *Postgres) ListOpenInvoices(ctx context.Context) ([]domain.Invoice, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE status = $1 ORDER BY id",
		domain.StatusAvailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func scanPurchase(row pgx.Row) (*domain.Purchase, error) {
	var p domain.Purchase
	err := row.Scan(&p.InvoiceID, &p.Buyer, &p.PurchasePrice, &p.PurchaseHeight, &p.PaymentReceived)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Postgres) GetPurchase(ctx context.Context, invoiceID int64) (*domain.Purchase, error) {
	return scanPurchase(s.db.QueryRow(ctx,
		`SELECT invoice_id, buyer, purchase_price, purchase_height, payment_received
		 FROM purchases WHERE invoice_id = $1`, invoiceID))
}

func scanSellerRating(row pgx.Row, seller domain.AccountID) (domain.SellerRating, error) {
	var r domain.SellerRating
	err := row.Scan(&r.Seller, &r.TotalInvoices, &r.SuccessfulInvoices,
		&r.DisputedInvoices, &r.AverageRating, &r.TotalVolume)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SellerRating{Seller: seller}, nil
		}
		return domain.SellerRating{}, err
	}
	return r, nil
}

func (s *Postgres) GetSellerRating(ctx context.Context, seller domain.AccountID) (domain.SellerRating, error) {
	return scanSellerRating(s.db.QueryRow(ctx,
		`SELECT seller, total_invoices, successful_invoices, disputed_invoices, average_rating, total_volume
		 FROM seller_ratings WHERE seller = $1`, seller), seller)
}

func scanBuyerRating(row pgx.Row, buyer domain.AccountID) (domain.BuyerRating, error) {
	var r domain.BuyerRating
	err := row.Scan(&r.Buyer, &r.TotalPurchases, &r.SuccessfulPurchases,
		&r.TotalInvested, &r.ReturnsEarned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BuyerRating{Buyer: buyer}, nil
		}
		return domain.BuyerRating{}, err
	}
	return r, nil
}

func (s *Postgres) GetBuyerRating(ctx context.Context, buyer domain.AccountID) (domain.BuyerRating, error) {
	return scanBuyerRating(s.db.QueryRow(ctx,
		`SELECT buyer, total_purchases, successful_purchases, total_invested, returns_earned
		 FROM buyer_ratings WHERE buyer = $1`, buyer), buyer)
}

func (s *Postgres) GetPaymentConfirmation(ctx context.Context, invoiceID int64) (*domain.PaymentConfirmation, error) {
	var c domain.PaymentConfirmation
	err := s.db.QueryRow(ctx,
		`SELECT invoice_id, confirmer, confirmation_height, amount_paid
		 FROM payment_confirmations WHERE invoice_id = $1`, invoiceID,
	).Scan(&c.InvoiceID, &c.Confirmer, &c.ConfirmationHeight, &c.AmountPaid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func scanDispute(row pgx.Row) (*domain.DisputeRecord, error) {
	var d domain.DisputeRecord
	err := row.Scan(&d.InvoiceID, &d.Disputer, &d.Reason, &d.DisputeHeight, &d.Resolved, &d.Resolution)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *Postgres) GetDisputeRecord(ctx context.Context, invoiceID int64) (*domain.DisputeRecord, error) {
	return scanDispute(s.db.QueryRow(ctx,
		`SELECT invoice_id, disputer, reason, dispute_height, resolved, resolution
		 FROM dispute_records WHERE invoice_id = $1`, invoiceID))
}

func scanConfig(row pgx.Row) (domain.PlatformConfig, error) {
	var cfg domain.PlatformConfig
	err := row.Scan(&cfg.FeeRateBps, &cfg.MinDiscountBps, &cfg.MaxDiscountBps, &cfg.FeesCollected)
	if err != nil {
		return domain.PlatformConfig{}, err
	}
	return cfg, nil
}

func (s *Postgres) GetConfig(ctx context.Context) (domain.PlatformConfig, error) {
	return scanConfig(s.db.QueryRow(ctx,
		`SELECT fee_rate_bps, min_discount_bps, max_discount_bps, fees_collected FROM platform_config`))
}

func (s *Postgres) Stats(ctx context.Context) (domain.PlatformStats, error) {
	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return domain.PlatformStats{}, err
	}
	stats := domain.PlatformStats{
		FeesCollected:  cfg.FeesCollected,
		FeeRateBps:     cfg.FeeRateBps,
		MinDiscountBps: cfg.MinDiscountBps,
		MaxDiscountBps: cfg.MaxDiscountBps,
	}

	rows, err := s.db.Query(ctx, "SELECT status, COUNT(*) FROM invoices GROUP BY status")
	if err != nil {
		return domain.PlatformStats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.InvoiceStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return domain.PlatformStats{}, err
		}
		stats.TotalInvoices += count
		switch status {
		case domain.StatusSold:
			stats.TotalSold = count
		case domain.StatusPaid:
			stats.TotalPaid = count
		case domain.StatusDisputed:
			stats.TotalDisputed = count
		case domain.StatusExpired:
			stats.TotalExpired = count
		}
	}
	return stats, rows.Err()
}
