// Package main runs the radar: it streams PumpSwap transactions, decodes
// them and maintains per-pool analytics persisted on a fixed interval.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pumpswap-radar/internal/config"
	"pumpswap-radar/internal/dex/pumpswap"
	"pumpswap-radar/internal/geyser"
	"pumpswap-radar/internal/holders"
	"pumpswap-radar/internal/observability"
	"pumpswap-radar/internal/pipeline"
	"pumpswap-radar/internal/storage"
	chstore "pumpswap-radar/internal/storage/clickhouse"
	filestore "pumpswap-radar/internal/storage/file"
	"pumpswap-radar/internal/storage/migrations"
	pgstore "pumpswap-radar/internal/storage/postgres"
	"pumpswap-radar/internal/tracker"
	"pumpswap-radar/internal/trade"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the config file")
	flag.Parse()

	// Optional .env next to the binary; real env vars take precedence.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals: first one cancels, second one forces exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn("forcing immediate shutdown", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	err = run(ctx, cfg, logger)
	close(done)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("radar stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, cleanup, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var holderSrc tracker.HolderSource
	if cfg.Holders.Endpoint != "" {
		holderSrc = holders.NewClient(cfg.Holders.Endpoint, cfg.Holders.APIKey,
			cfg.Holders.Timeout, logger.Named("holders"))
	} else {
		logger.Warn("holders endpoint not configured, holder metrics disabled")
	}

	trackerCfg := tracker.DefaultConfig()
	trackerCfg.Window = cfg.Tracker.Window
	trackerCfg.WhaleMinBuy = cfg.Tracker.WhaleMinBuy
	trackerCfg.WhaleExitBalance = cfg.Tracker.WhaleExitBalance
	trackerCfg.MaxPriceJump = cfg.Tracker.MaxPriceJump
	trackerCfg.TokenSupply = cfg.Tracker.TokenSupply
	trackerCfg.SOLPriceUSD = cfg.Tracker.SOLPriceUSD
	trackerCfg.McapFloor = cfg.Tracker.McapFloor
	trackerCfg.MaxHistory = cfg.Tracker.MaxHistory
	trackerCfg.ReconcileInterval = cfg.Tracker.ReconcileInterval

	trk := tracker.New(trackerCfg, holderSrc, store, logger.Named("tracker"))

	streamCfg := geyser.DefaultConfig()
	streamCfg.PingInterval = cfg.Geyser.PingInterval
	streamCfg.IdleTimeout = cfg.Geyser.IdleTimeout
	streamCfg.ReconnectDelay = cfg.Geyser.ReconnectDelay
	streamCfg.Buffer = cfg.Geyser.Buffer
	streamCfg.DedupWindow = cfg.Geyser.DedupWindow

	stream := geyser.NewClient(cfg.Geyser.Endpoint, &streamCfg,
		logger.Named("geyser"), geyser.WithToken(cfg.Geyser.Token))
	defer stream.Close()

	tradeClient := trade.NewClient(trade.Options{
		Enabled:  cfg.Trading.Enabled,
		Endpoint: cfg.Trading.Endpoint,
		APIKey:   cfg.Trading.APIKey,
	}, logger.Named("trade"))

	runner := pipeline.NewRunner(pipeline.RunnerOptions{
		Stream:  stream,
		Request: geyser.NewSubscribeRequest(cfg.AMM.ProgramID, cfg.AMM.Commitment),
		Parser:  pumpswap.NewParser(cfg.AMM.ProgramID, logger.Named("parser")),
		Tracker: trk,
		Trade:   tradeClient,
		Order: trade.Order{
			Unit:          cfg.Trading.Unit,
			WalletAddress: cfg.Trading.Wallet,
			Amount:        cfg.Trading.Amount,
			Slippage:      cfg.Trading.Slippage,
			PriorityFee:   cfg.Trading.PriorityFee,
			TipAmount:     cfg.Trading.TipAmount,
		},
		Logger: logger.Named("pipeline"),
	})

	logger.Info("radar starting",
		zap.String("program", cfg.AMM.ProgramID),
		zap.String("commitment", cfg.AMM.Commitment),
		zap.String("storage", cfg.Storage.Backend))

	return runner.Run(ctx)
}

// newStore builds the configured metrics history backend and runs its
// migrations. The returned cleanup closes the backend's connections.
func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.MetricsHistoryStore, func(), error) {
	switch cfg.Storage.Backend {
	case "file":
		store, err := filestore.NewHistoryStore(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pgstore.NewHistoryStore(pool), pool.Close, nil

	case "clickhouse":
		conn, err := chstore.NewConn(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return chstore.NewHistoryStore(conn), func() {
			if err := conn.Close(); err != nil {
				logger.Warn("close clickhouse", zap.Error(err))
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	logger.Info("metrics server starting", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
