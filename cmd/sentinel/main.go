package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentinel-moderation/internal/analytics"
	"sentinel-moderation/internal/bot"
	"sentinel-moderation/internal/config"
	"sentinel-moderation/internal/engine"
	"sentinel-moderation/internal/features"
	"sentinel-moderation/internal/modules/audit"
	"sentinel-moderation/internal/queue"
	"sentinel-moderation/internal/scoring"
	"sentinel-moderation/internal/storage"
	"sentinel-moderation/internal/window"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type stats struct {
	window.Stats
	QueuePending int `json:"queue_pending"`
}

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := storage.New(startCtx, cfg.DatabaseURL)
	cancelStart()
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	auditLogger := audit.NewLogger(store, logger)
	analyticsService := analytics.New(store)

	gate, err := features.NewGate(store, cfg.Features.CacheTTL(), logger)
	if err != nil {
		logger.Fatal("feature gate init failed", zap.Error(err))
	}
	defer gate.Close()

	eng := engine.New(engine.Config{
		Window: window.Config{
			JoinWindow:        cfg.Engine.JoinWindow(),
			ActivityWindow:    cfg.Engine.ActivityWindow(),
			ImageWindow:       cfg.Engine.ImageWindow(),
			RecentContentSize: cfg.Engine.RecentContentSize,
		},
		Rules: scoring.Rules{
			ActivityLimit:   cfg.Engine.ActivityLimit,
			RepeatThreshold: cfg.Engine.RepeatThreshold,
			FlagThreshold:   cfg.Engine.FlagThreshold,
		},
		RaidJoins:    cfg.Engine.RaidJoins,
		ImageLimit:   cfg.Engine.ImageLimit,
		ImageTimeout: cfg.Engine.ImageTimeout(),
	}, gate, logger)

	pool := queue.New(cfg.Queue.Workers, cfg.Queue.Buffer, logger)

	botSvc, err := bot.New(cfg, logger, store, eng, gate, pool, auditLogger, analyticsService)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started")

	stopCleanup := startAuditCleanup(store, cfg.AuditRetentionDays, logger)
	defer stopCleanup()

	var server *http.Server
	if cfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(stats{Stats: eng.Stats(), QueuePending: pool.Pending()})
		})
		server = &http.Server{Addr: cfg.Health.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(ctx)
	}
	botSvc.Close(ctx)
}

func startAuditCleanup(store *storage.Store, retentionDays int, logger *zap.Logger) func() {
	ticker := time.NewTicker(6 * time.Hour)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if err := store.CleanupAuditLogs(ctx, retentionDays); err != nil {
					logger.Warn("audit cleanup failed", zap.Error(err))
				}
				cancel()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
