package main

import (
	"context"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/harbourfi/factormart/internal/api"
	"github.com/harbourfi/factormart/internal/chain"
	"github.com/harbourfi/factormart/internal/config"
	"github.com/harbourfi/factormart/internal/domain"
	"github.com/harbourfi/factormart/internal/ledger"
	"github.com/harbourfi/factormart/internal/logger"
	"github.com/harbourfi/factormart/internal/market"
	"github.com/harbourfi/factormart/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zl.Sync()

	ctx := context.Background()
	dbPool, err := pgxpool.New(ctx, cfg.DBSource)
	if err != nil {
		zl.Fatal("unable to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	funds, err := ledger.NewPostgres(ctx, dbPool)
	if err != nil {
		zl.Fatal("ledger init failed", zap.Error(err))
	}

	records, err := store.NewPostgres(ctx, dbPool, domain.PlatformConfig{
		FeeRateBps:     cfg.DefaultFeeRateBps,
		MinDiscountBps: cfg.DefaultMinDiscountBps,
		MaxDiscountBps: cfg.DefaultMaxDiscountBps,
	})
	if err != nil {
		zl.Fatal("store init failed", zap.Error(err))
	}

	clock := chain.NewTicker(cfg.HeightBase, cfg.HeightInterval)
	engine := market.NewEngine(records, funds, clock, cfg.EscrowAccount, cfg.AdminAccount, zl)

	auth := api.NewAuth(cfg.JWTSecret)
	handler := api.NewHandler(engine, funds)
	router := api.NewRouter(handler, auth, zl)

	zl.Info("server starting",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.Int64("height", clock.CurrentHeight()))
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}
