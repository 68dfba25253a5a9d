package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/masumi-network/masumi-payments-go/internal/api"
	"github.com/masumi-network/masumi-payments-go/internal/auth"
	"github.com/masumi-network/masumi-payments-go/internal/config"
	"github.com/masumi-network/masumi-payments-go/internal/health"
	"github.com/masumi-network/masumi-payments-go/internal/masumi"
	"github.com/masumi-network/masumi-payments-go/internal/metrics"
	"github.com/masumi-network/masumi-payments-go/internal/notify"
	"github.com/masumi-network/masumi-payments-go/internal/payment"
)

func main() {
	boot, _ := zap.NewProduction()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal("config load failed", zap.Error(err))
	}
	if cfg.Agent.Identifier == "" {
		boot.Fatal("config load failed", zap.Error(&config.Error{Missing: []string{"AGENT_IDENTIFIER"}}))
	}

	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		boot.Fatal("logger init failed", zap.Error(err))
	}
	defer log.Sync() //nolint:errcheck

	network, err := payment.ParseNetwork(cfg.Agent.Network)
	if err != nil {
		log.Fatal("invalid NETWORK", zap.Error(err))
	}
	amounts, err := payment.ParseAmounts(cfg.Agent.Amounts)
	if err != nil {
		log.Fatal("invalid PAYMENT_AMOUNTS", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Payment service client + tracker ──────────────────────────────────────
	rec := metrics.NewPrometheusRecorder()
	client := masumi.NewFromConfig(cfg, masumi.WithLogger(log), masumi.WithMetrics(rec))

	tracker, err := payment.NewTracker(cfg, client, cfg.Agent.Identifier, amounts,
		payment.WithNetwork(network),
		payment.WithPurchaserIdentifier(cfg.Agent.PurchaserIdentifier),
		payment.WithLogger(log),
		payment.WithMetrics(rec),
	)
	if err != nil {
		log.Fatal("tracker init failed", zap.Error(err))
	}

	// ── Confirmation sink + monitor ───────────────────────────────────────────
	publisher := notify.NewPublisher(rdb, cfg.Agent.Identifier, string(network), log)
	monitorOpts := monitorOptions(cfg)
	if err := tracker.StartStatusMonitoring(publisher.Publish, monitorOpts...); err != nil {
		log.Fatal("status monitor start failed", zap.Error(err))
	}

	// ── gRPC health ───────────────────────────────────────────────────────────
	hs := health.NewServer(log)
	go hs.Sync(ctx, tracker, time.Second)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCHealthPort))
	if err != nil {
		log.Fatal("grpc health listen failed", zap.Error(err))
	}
	go func() {
		log.Info("gRPC health server starting", zap.Int("port", cfg.Server.GRPCHealthPort))
		if err := hs.Serve(lis); err != nil {
			log.Error("gRPC health server error", zap.Error(err))
		}
	}()

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: newEngine(tracker, publisher, rdb, rec, cfg.Operators(), monitorOpts, log),
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := tracker.Shutdown(shutdownCtx); err != nil {
		log.Error("status monitor shutdown error", zap.Error(err))
	}
	hs.Stop()
	log.Info("shutdown complete")
}

// newLogger builds a production logger at the given level name.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func monitorOptions(cfg *config.Config) []payment.MonitorOption {
	var opts []payment.MonitorOption
	if cfg.Monitor.PollIntervalSec > 0 {
		opts = append(opts, payment.WithPollInterval(time.Duration(cfg.Monitor.PollIntervalSec)*time.Second))
	}
	if cfg.Monitor.IdleIntervalSec > 0 {
		opts = append(opts, payment.WithIdleInterval(time.Duration(cfg.Monitor.IdleIntervalSec)*time.Second))
	}
	if cfg.Monitor.StatusLimit > 0 {
		opts = append(opts, payment.WithStatusLimit(cfg.Monitor.StatusLimit))
	}
	return opts
}

// newEngine mounts the health, metrics and operator API routes.
func newEngine(
	tracker *payment.Tracker,
	publisher *notify.Publisher,
	rdb *redis.Client,
	rec *metrics.PrometheusRecorder,
	operators []string,
	monitorOpts []payment.MonitorOption,
	log *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "monitoring": tracker.Monitoring()})
	})
	r.GET("/metrics", gin.WrapH(rec.Handler()))

	rg := r.Group("/api", auth.Middleware(rdb, operators))
	api.NewHandler(tracker, publisher, publisher.Publish, monitorOpts, log).Register(rg)
	return r
}
