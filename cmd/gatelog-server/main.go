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
	_ "time/tzdata"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/gatelog/internal/config"
	"github.com/BrandonDHaskell/gatelog/internal/db"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/enrich"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/events"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/refdata"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/service"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/store"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/store/memory"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/store/redisstore"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/store/sqlite"
	"github.com/BrandonDHaskell/gatelog/internal/httpapi"
	"github.com/BrandonDHaskell/gatelog/internal/metrics"
)

func main() {
	configPath := flag.String("config", os.Getenv("GATELOG_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gatelog-server: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gatelog-server: logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tables, err := refdata.Load(cfg.RefData.Path)
	switch {
	case errors.Is(err, refdata.ErrMalformed):
		logger.Warn("reference data partially loaded", zap.Error(err))
	case err != nil:
		return err
	}
	logger.Info("reference data loaded",
		zap.Int("authorities", len(tables.Authorities())),
		zap.Int("purposes", len(tables.Purposes())),
		zap.Int("vehicles", len(tables.Vehicles())),
	)

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("export timezone: %w", err)
	}

	// Stores
	ledgerStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Events
	var publisher events.Publisher = events.Noop{}
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("gatelog-server"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer func() { _ = nc.Drain() }()
		publisher = events.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix)
		logger.Info("publishing ledger events", zap.String("nats", cfg.NATS.URL))
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Services
	ledger, err := service.NewLedgerService(ctx, service.LedgerDependencies{
		Store:             ledgerStore,
		Tables:            tables,
		Publisher:         publisher,
		Metrics:           m,
		Logger:            logger,
		Exporter:          service.NewExporter(service.ExportConfig{TimeLayout: cfg.Export.TimeLayout, Location: loc}),
		DefaultOperatorID: cfg.Operator.DefaultID,
	})
	if err != nil {
		return err
	}

	lookups := service.NewLookupDesk()
	pruner := service.NewLookupPruner(lookups, service.PrunerConfig{
		TTL:      cfg.LookupTTL,
		Interval: cfg.PruneInterval,
	}, logger)

	enrichDeps := service.EnrichmentDependencies{
		Tables:  tables,
		Metrics: m,
		Logger:  logger,
		Timeout: cfg.Enrich.Timeout,
	}
	hc := &http.Client{Timeout: cfg.Enrich.Timeout}
	if cfg.Enrich.GeminiAPIKey != "" {
		gemini, err := enrich.NewGeminiClient(ctx, hc, enrich.GeminiConfig{
			Endpoint: cfg.Enrich.GeminiEndpoint,
			Model:    cfg.Enrich.GeminiModel,
			APIKey:   cfg.Enrich.GeminiAPIKey,
		})
		if err != nil {
			return err
		}
		enrichDeps.Generator = gemini
	}
	if cfg.Enrich.ANPRURL != "" {
		enrichDeps.Recognizer = enrich.NewANPRClient(hc, cfg.Enrich.ANPRURL, cfg.Enrich.ANPRMinConfidence)
	}

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:         logger,
		Addr:           cfg.HTTP.Addr,
		Ledger:         ledger,
		Decisions:      service.NewDecisionDesk(ledger),
		Lookups:        lookups,
		Resolver:       service.NewResolver(tables),
		Enrichment:     service.NewEnrichmentService(enrichDeps),
		Metrics:        m,
		MetricsHandler: promhttp.Handler(),
		JWTSecret:      cfg.Auth.JWTSecret,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pruner.Start(gctx)
		<-gctx.Done()
		pruner.Stop()
		return nil
	})

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr), zap.String("store", cfg.Store.Driver))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore returns the configured ledger store and a func releasing
// whatever it holds open.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.LedgerStore, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("using in-memory ledger store; entries are lost on restart")
		return memory.New(), func() {}, nil

	case "redis":
		opts, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		s := redisstore.NewLedgerStore(client, redisstore.WithKeyPrefix(cfg.Store.RedisKeyPrefix))
		return s, func() { _ = client.Close() }, nil

	default:
		sqlDB, err := db.Open(ctx, db.Config{Path: cfg.Store.SQLitePath})
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		writer := db.NewWorker(sqlDB)
		closeFn := func() {
			writer.Close()
			_ = sqlDB.Close()
		}
		return sqlite.NewLedgerStore(sqlDB, writer), closeFn, nil
	}
}
