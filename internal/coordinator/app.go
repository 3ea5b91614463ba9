// Package coordinator wires the Venue Client, Ingestion Pipeline, Rule
// Engine, and Intent Pipeline into one process and multiplexes their
// independent scheduled loops — adapted from the teacher's internal/app
// select-over-tickers Run loop, generalized from a single trading loop to
// several cooperating subsystem loops that coordinate only through the
// database and metrics registry (spec.md §5, §9).
package coordinator

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marketpulse/marketpulse-x/internal/ingest"
	"github.com/marketpulse/marketpulse-x/internal/intent"
	"github.com/marketpulse/marketpulse-x/internal/metrics"
	"github.com/marketpulse/marketpulse-x/internal/model"
	"github.com/marketpulse/marketpulse-x/internal/notify"
	"github.com/marketpulse/marketpulse-x/internal/ruleengine"
	"github.com/marketpulse/marketpulse-x/internal/store"
	"github.com/marketpulse/marketpulse-x/internal/venue"
)

// Config configures the coordinator process (spec.md §6's "Configuration
// (consumed): environment-variable settings").
type Config struct {
	DBPath          string
	DataSourceMode  string // "mock" | "real"
	VenueBaseURL    string
	RulesDir        string
	SynonymsDir     string
	PolicyID        string
	TelegramEnabled bool
	TelegramToken   string
	TelegramChatID  string
	MetricsAddr     string
	IngestConfig    ingest.Config
	RuleConfig      ruleengine.Config
	ExpireInterval  time.Duration
}

// DefaultConfig returns conservative defaults suitable for local/mock runs.
func DefaultConfig() Config {
	return Config{
		DBPath:         "marketpulse.db",
		DataSourceMode: "mock",
		RulesDir:       "rules",
		SynonymsDir:    "synonyms",
		PolicyID:       "default",
		MetricsAddr:    ":9090",
		IngestConfig:   ingest.DefaultConfig(),
		RuleConfig:     ruleengine.DefaultConfig(),
		ExpireInterval: 30 * time.Second,
	}
}

// App owns every constructed collaborator and their lifecycle — no
// package-level singletons (spec.md §9 design note).
type App struct {
	cfg Config

	store    *store.Store
	venue    venue.Client
	metrics  *metrics.Registry
	breaker  *ruleengine.Breaker
	notifier notify.Transport

	ingestPipeline *ingest.Pipeline
	ruleEngine     *ruleengine.Engine
	defLoader      *ruleengine.DefinitionLoader
	intentPipeline *intent.Pipeline

	logger *zap.Logger
}

// New constructs every collaborator. The venue client is real REST when
// DataSourceMode=="real", synthetic otherwise — the only branch point
// between a live deployment and a self-contained demo run.
func New(cfg Config, logger *zap.Logger) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	var base venue.Client
	if cfg.DataSourceMode == "real" {
		restCfg := venue.DefaultRESTConfig(cfg.VenueBaseURL)
		base = venue.NewRESTClient(restCfg, logger)
	} else {
		base = venue.NewSyntheticClient(1, 12, 2)
	}
	cachedVenue := venue.NewCache(base, 5*time.Second)

	reg := metrics.New()
	breaker := ruleengine.NewBreaker()

	var transport notify.Transport
	if cfg.TelegramEnabled {
		transport = notify.NewTelegramTransport(cfg.TelegramToken, cfg.TelegramChatID)
	} else {
		transport = &notify.DryRunTransport{Sink: func(rendered string) { logger.Info("alert", zap.String("payload", rendered)) }}
	}

	ingestPipeline := ingest.New(cfg.IngestConfig, cachedVenue, st, reg, logger)
	ruleEngine := ruleengine.New(cfg.RuleConfig, st, reg, breaker, transport, logger)
	defLoader := ruleengine.NewDefinitionLoader(cfg.RulesDir, cfg.SynonymsDir, st, logger)

	gauntlet := intent.NewGauntlet(st, cachedVenue, breaker)
	intentPipeline := intent.New(st, gauntlet, intent.SyntheticFillConfirmer{}, reg, cfg.PolicyID)

	if err := seedDefaultPolicy(context.Background(), st, cfg.PolicyID); err != nil {
		return nil, err
	}

	return &App{
		cfg:            cfg,
		store:          st,
		venue:          cachedVenue,
		metrics:        reg,
		breaker:        breaker,
		notifier:       transport,
		ingestPipeline: ingestPipeline,
		ruleEngine:     ruleEngine,
		defLoader:      defLoader,
		intentPipeline: intentPipeline,
		logger:         logger,
	}, nil
}

// seedDefaultPolicy ensures an execution policy exists so the Intent
// Pipeline always has one to read; operators override it via the rules
// directory's policy document (a future extension) or by editing the row
// directly — core conformance just needs a sane default present.
func seedDefaultPolicy(ctx context.Context, st *store.Store, policyID string) error {
	_, err := st.GetExecutionPolicy(ctx, policyID)
	if err == nil {
		return nil
	}
	if err != store.ErrNotFound {
		return err
	}
	return st.UpsertExecutionPolicy(ctx, model.ExecutionPolicy{
		PolicyID:            policyID,
		Mode:                model.ModeSemiAuto,
		MaxNotionalPerOrder: decimal.NewFromInt(200),
		MaxConcurrentOrders: 10,
		MaxDailyNotional:    decimal.NewFromInt(5000),
		SlippageBps:         decimal.NewFromInt(100),
		Enabled:             true,
	})
}

// Run starts every independent scheduled loop and blocks until ctx is
// cancelled or any loop returns a non-cancellation error, in which case
// the others are stopped too (errgroup's first-error-cancels-context
// semantics) — the loops themselves never share locks, only the database
// and the metrics registry (spec.md §9 "cooperative scheduling").
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.defLoader.LoadOnce(gctx); err != nil {
			a.logger.Warn("initial rule/synonym load failed", zap.Error(err))
		}
		return a.defLoader.Watch(gctx)
	})

	g.Go(func() error { return a.ingestPipeline.Run(gctx) })
	g.Go(func() error { return a.ruleEngine.Run(gctx) })
	g.Go(func() error { return a.runExpirySweep(gctx) })
	g.Go(func() error { return a.runMetricsServer(gctx) })

	err := g.Wait()
	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}

// runExpirySweep periodically expires "sent" intents that outlived their
// ttl_secs without a fill — the Intent Pipeline's own housekeeping loop.
func (a *App) runExpirySweep(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.ExpireInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := a.store.ExpireStaleSentIntents(ctx, now); err != nil {
				a.logger.Warn("expire stale intents failed", zap.Error(err))
			}
		}
	}
}

// runMetricsServer exposes the constructed Registry's Gatherer over HTTP
// until ctx is cancelled.
func (a *App) runMetricsServer(ctx context.Context) error {
	if a.cfg.MetricsAddr == "" {
		<-ctx.Done()
		return ctx.Err()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics.Gatherer(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Close releases the store's underlying connection.
func (a *App) Close() error {
	return a.store.Close()
}

// CreateIntent and ConfirmIntent expose the Intent Pipeline's two
// operations to the request-driven path (spec.md §5: "a request-driven
// Intent path" alongside the two scheduled loops).
func (a *App) CreateIntent(ctx context.Context, signalID string) (model.OrderIntent, error) {
	return a.intentPipeline.CreateIntent(ctx, signalID, time.Now().UTC())
}

func (a *App) ConfirmIntent(ctx context.Context, ruleID, intentID string) (model.OrderIntent, error) {
	return a.intentPipeline.ConfirmIntent(ctx, ruleID, intentID, time.Now().UTC())
}
