package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/example/rickshaw-rides/internal/config"
	"github.com/example/rickshaw-rides/internal/geo"
	httpapi "github.com/example/rickshaw-rides/internal/http"
	"github.com/example/rickshaw-rides/internal/ingest"
	"github.com/example/rickshaw-rides/internal/logging"
	"github.com/example/rickshaw-rides/internal/payout"
	"github.com/example/rickshaw-rides/internal/ride"
	"github.com/example/rickshaw-rides/internal/seed"
	"github.com/example/rickshaw-rides/internal/stats"
	"github.com/example/rickshaw-rides/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("rickshaw-api", cfg.LogLevel)

	var store storage.Store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		if cfg.RunMigrations {
			if err := runMigrations(ps); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
		logger.Info("using in-memory store")
	}

	var dir geo.Directory
	if cfg.RedisAddr != "" {
		dir = geo.NewRedisDirectory(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		logger.Info("puller directory backed by redis", "addr", cfg.RedisAddr)
	} else {
		dir = geo.NewIndex()
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	var payouts ride.PayoutClient
	if os.Getenv("STRIPE_API_KEY") != "" {
		payouts = payout.NewStripeClient(nil)
		logger.Info("stripe payouts enabled")
	}

	rideSvc := ride.NewService(store, payouts, logger)
	rideSvc.PayoutPerPoint = cfg.PayoutPerPoint
	rideSvc.PayoutCurrency = cfg.PayoutCurrency

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SeedDemo {
		if err := seed.Load(ctx, store, dir); err != nil {
			logger.Error("seed failed", "error", err)
			os.Exit(1)
		}
		logger.Info("demo data seeded")
	}

	srv := httpapi.New(httpapi.Options{
		Logger:      logger,
		Store:       store,
		Directory:   dir,
		Rides:       rideSvc,
		Stats:       stats.NewAggregator(store),
		Kafka:       producer,
		NearbyLimit: cfg.NearbyLimit,
		SpeedMps:    cfg.RickshawSpeedMps,
	})

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("rickshaw-rides listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func runMigrations(ps *storage.PostgresStore) error {
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_schema.sql"))
	if err != nil {
		return err
	}
	_, err = ps.DB().Exec(string(b))
	return err
}
