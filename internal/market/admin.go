package market

import (
	"context"

	"go.uber.org/zap"

	"github.com/harbourfi/factormart/internal/store"
)

const (
	maxFeeRateBps  = 1000
	maxDiscountBps = 5000
)

// SetPlatformFeeRate changes the fee charged on future purchases. Capped at
// 10% to keep the platform honest.
func (e *Engine) SetPlatformFeeRate(ctx context.Context, caller int64, rateBps int64) error {
	if caller != e.admin {
		return ErrUnauthorized
	}
	if rateBps < 0 || rateBps > maxFeeRateBps {
		return ErrInvalidAmount
	}

	err := e.store.Atomically(ctx, func(tx store.Tx) error {
		cfg, err := tx.GetConfig(ctx)
		if err != nil {
			return err
		}
		cfg.FeeRateBps = rateBps
		return tx.PutConfig(ctx, cfg)
	})
	if err != nil {
		return err
	}

	e.log.Info("platform fee rate updated", zap.Int64("rate_bps", rateBps))
	return nil
}

// SetDiscountLimits changes the bounds future listings must price within.
func (e *Engine) SetDiscountLimits(ctx context.Context, caller int64, minBps, maxBps int64) error {
	if caller != e.admin {
		return ErrUnauthorized
	}
	if minBps < 0 || minBps >= maxBps || maxBps > maxDiscountBps {
		return ErrInvalidDiscount
	}

	err := e.store.Atomically(ctx, func(tx store.Tx) error {
		cfg, err := tx.GetConfig(ctx)
		if err != nil {
			return err
		}
		cfg.MinDiscountBps = minBps
		cfg.MaxDiscountBps = maxBps
		return tx.PutConfig(ctx, cfg)
	})
	if err != nil {
		return err
	}

	e.log.Info("discount limits updated",
		zap.Int64("min_bps", minBps),
		zap.Int64("max_bps", maxBps))
	return nil
}

// WithdrawPlatformFees moves collected fees out of escrow to the admin
// account. The fee counter and the escrow balance move together or not at
// all: the transfer runs before the counter write, and a transfer failure
// aborts the transaction.
func (e *Engine) WithdrawPlatformFees(ctx context.Context, caller int64, amount int64) error {
	if caller != e.admin {
		return ErrUnauthorized
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	err := e.store.Atomically(ctx, func(tx store.Tx) error {
		cfg, err := tx.GetConfig(ctx)
		if err != nil {
			return err
		}
		if amount > cfg.FeesCollected {
			return ErrInsufficientFunds
		}

		if err := e.funds.Transfer(ctx, amount, e.escrow, e.admin); err != nil {
			return mapTransferErr(err)
		}

		cfg.FeesCollected -= amount
		return tx.PutConfig(ctx, cfg)
	})
	if err != nil {
		return err
	}

	e.log.Info("platform fees withdrawn", zap.Int64("amount", amount))
	return nil
}
