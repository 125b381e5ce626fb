package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/droply/share-exchange/internal/config"
	"github.com/droply/share-exchange/internal/curve"
	"github.com/droply/share-exchange/internal/dividend"
	"github.com/droply/share-exchange/internal/exchange"
	"github.com/droply/share-exchange/internal/ledger"
	"github.com/droply/share-exchange/internal/limits"
	"github.com/droply/share-exchange/internal/metrics"
	"github.com/droply/share-exchange/internal/wallet"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	// --- Ledger store ---
	var st ledger.Store
	var cleanup []func()
	var rdb *redis.Client

	if cfg.DB.URL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DB.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = ledger.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("db.url not set, using in-memory ledger (data will not persist)")
		st = ledger.NewMemoryStore()
	}

	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("invalid redis.url", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = ledger.NewCachedStore(st, rdb, cfg.Redis.CacheTTL)
		slog.Info("Redis cache enabled")
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Wallet service ---
	var w wallet.Service
	if cfg.Wallet.BaseURL != "" {
		w = wallet.NewHTTPClient(cfg.Wallet.BaseURL, cfg.Wallet.Timeout)
		slog.Info("wallet service configured", "url", cfg.Wallet.BaseURL)
	} else {
		slog.Warn("wallet.base_url not set, using in-memory wallet (development only)")
		w = wallet.NewMemoryService()
	}

	// --- Pricing engine ---
	engine, err := curve.NewEngine(
		decimal.NewFromFloat(cfg.Curve.Elasticity),
		decimal.NewFromFloat(cfg.Curve.PriceFloor),
	)
	if err != nil {
		slog.Error("invalid curve configuration", "err", err)
		os.Exit(1)
	}

	// --- Concentration limits ---
	var limiter *limits.Limiter
	if cfg.Limits.MaxOwnershipFraction > 0 || cfg.Limits.MaxTotalInvested > 0 {
		limiter = limits.NewLimiter(
			decimal.NewFromFloat(cfg.Limits.MaxOwnershipFraction),
			decimal.NewFromFloat(cfg.Limits.MaxTotalInvested),
		)
	}

	// --- WebSocket hub ---
	hub := exchange.NewHub()
	go hub.Run()

	// --- Services ---
	locks := ledger.NewMarketLocks()
	svc := exchange.NewService(st, w, engine, locks, limiter, hub)
	distributor := dividend.NewDistributor(st, w, locks, hub)

	// --- Payout trigger (Redis Pub/Sub) ---
	triggerCtx, stopTrigger := context.WithCancel(context.Background())
	defer stopTrigger()
	if rdb != nil {
		trigger := dividend.NewTrigger(rdb, distributor, cfg.Payout.Channel)
		go func() {
			if err := trigger.Run(triggerCtx); err != nil && triggerCtx.Err() == nil {
				slog.Error("payout trigger stopped", "err", err)
			}
		}()
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"share-exchange"}`))
	})

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ws", hub.HandleWS)

		r.Get("/markets", svc.HandleListMarkets)
		r.Post("/markets", svc.HandleCreateMarket)
		r.Get("/markets/{contentID}", svc.HandleGetMarket)
		r.Get("/markets/{contentID}/history", svc.HandleHistory)
		r.Post("/markets/{contentID}/buy", svc.HandleBuy)
		r.Post("/markets/{contentID}/sell", svc.HandleSell)

		r.Post("/markets/{contentID}/dividends", distributor.HandleDistribute)
		r.Get("/markets/{contentID}/dividends", distributor.HandleListEvents)

		r.Get("/holdings/{userID}", svc.HandlePortfolio)
		r.Get("/holdings/{userID}/{contentID}", svc.HandleGetHolding)
		r.Get("/users/{userID}/trades", svc.HandleUserTrades)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("share-exchange listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopTrigger()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down share-exchange...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("share-exchange stopped")
}
