// Package ingest implements the Ingestion Pipeline: a bounded-concurrency,
// chunked poller that pulls markets and books from the Venue Client and
// writes deduplicated, monotonically-ordered ticks to the store.
package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marketpulse/marketpulse-x/internal/metrics"
	"github.com/marketpulse/marketpulse-x/internal/model"
	"github.com/marketpulse/marketpulse-x/internal/store"
	"github.com/marketpulse/marketpulse-x/internal/venue"
)

// Config governs one Pipeline's cadence and fan-out shape (spec.md §4.2/§5).
type Config struct {
	PollInterval     time.Duration
	ChunkSize        int
	MaxConcurrency   int
	MaxRetries       int
	MinFlushInterval time.Duration // spec.md §4.2(5) dedup window
	Source           string        // metrics label, e.g. "polymarket"
}

// DefaultConfig matches the teacher's own polling cadence
// (internal/portfolio/tracker.go's sync interval) generalized with
// chunking and bounded parallelism.
func DefaultConfig() Config {
	return Config{
		PollInterval:     10 * time.Second,
		ChunkSize:        25,
		MaxConcurrency:   8,
		MaxRetries:       3,
		MinFlushInterval: 30 * time.Second,
		Source:           "venue",
	}
}

// Pipeline runs the scheduled poll loop. It owns no process-wide state;
// callers construct one per venue/source.
type Pipeline struct {
	cfg     Config
	client  venue.Client
	store   *store.Store
	metrics *metrics.Registry
	logger  *zap.Logger
	backoff Backoff
	dedup   *dedupCache

	running bool
}

// New builds a Pipeline.
func New(cfg Config, client venue.Client, st *store.Store, m *metrics.Registry, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		client:  client,
		store:   st,
		metrics: m,
		logger:  logger.With(zap.String("component", "ingest")),
		backoff: DefaultBackoff(cfg.MaxRetries),
		dedup:   newDedupCache(),
	}
}

// Run blocks, polling on cfg.PollInterval until ctx is cancelled. It never
// overlaps cycles: if a cycle takes longer than the interval, the next tick
// is skipped rather than starting a second concurrent cycle (spec.md §5
// no-overlap back pressure), matching the teacher's ticker-driven run loop.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.running {
				p.logger.Warn("skipping cycle, previous cycle still running")
				continue
			}
			p.running = true
			start := time.Now()
			if err := p.cycle(ctx); err != nil {
				p.logger.Error("ingest cycle failed", zap.Error(err))
			}
			p.metrics.IngestLatencyMs.WithLabelValues(p.cfg.Source).Observe(float64(time.Since(start).Milliseconds()))
			p.running = false
		}
	}
}

// cycle performs one full poll: paginate markets in chunks, fan each
// chunk's option books out across a bounded worker pool.
func (p *Pipeline) cycle(ctx context.Context) error {
	cursor := ""
	for {
		page, err := p.fetchPageWithRetry(ctx, cursor)
		if err != nil {
			return err
		}
		if err := p.ingestMarkets(ctx, page.Markets); err != nil {
			return err
		}
		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

func (p *Pipeline) fetchPageWithRetry(ctx context.Context, cursor string) (venue.Page, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		page, err := p.client.ListMarkets(ctx, p.cfg.ChunkSize, cursor)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if venErr, ok := err.(*venue.Error); !ok || !venErr.Retriable() {
			return venue.Page{}, err
		}
		delay, ok := p.backoff.Next(attempt + 1)
		if !ok {
			return venue.Page{}, lastErr
		}
		p.logger.Warn("retrying list_markets", zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return venue.Page{}, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// ingestMarkets fans out over markets in chunks of cfg.ChunkSize, bounded
// to cfg.MaxConcurrency concurrent workers via errgroup.SetLimit.
func (p *Pipeline) ingestMarkets(ctx context.Context, markets []venue.MarketDetail) error {
	for start := 0; start < len(markets); start += p.cfg.ChunkSize {
		end := start + p.cfg.ChunkSize
		if end > len(markets) {
			end = len(markets)
		}
		chunk := markets[start:end]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.cfg.MaxConcurrency)
		for _, m := range chunk {
			m := m
			g.Go(func() error {
				return p.ingestOneMarket(gctx, m)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) ingestOneMarket(ctx context.Context, m venue.MarketDetail) error {
	if err := p.store.UpsertMarket(ctx, model.Market{
		MarketID:  m.MarketID,
		Title:     m.Title,
		Status:    model.MarketStatus(m.Status),
		Tags:      m.Tags,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		p.logger.Error("upsert market failed, skipping record", zap.String("market_id", m.MarketID), zap.Error(err))
		return nil // fatal/schema error per §7: log and skip, never abort the cycle
	}

	for _, o := range m.Options {
		if err := p.store.UpsertOption(ctx, model.Option{OptionID: o.OptionID, MarketID: m.MarketID, Label: o.Label}); err != nil {
			p.logger.Error("upsert option failed, skipping record", zap.String("option_id", o.OptionID), zap.Error(err))
			continue
		}
		if err := p.ingestOneOption(ctx, m.MarketID, o); err != nil {
			if ctx.Err() != nil {
				return err
			}
			p.logger.Warn("ingest option failed after retries, skipping", zap.String("option_id", o.OptionID), zap.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) ingestOneOption(ctx context.Context, marketID string, o venue.OptionDetail) error {
	book, err := p.fetchBookWithRetry(ctx, o.OptionID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if !p.dedup.Accept(marketID, o.OptionID, now, o.LastPrice, book.BestBid, book.BestAsk, p.cfg.MinFlushInterval) {
		return nil
	}

	tick := model.Tick{
		MarketID: marketID,
		OptionID: o.OptionID,
		TS:       now,
		Price:    o.LastPrice,
	}
	if !book.BestBid.IsZero() || !book.BestAsk.IsZero() {
		bid, ask := book.BestBid, book.BestAsk
		tick.BestBid = &bid
		tick.BestAsk = &ask
	}
	if !book.Liquidity.IsZero() {
		liq := book.Liquidity
		tick.Liquidity = &liq
	}

	if err := p.store.InsertTick(ctx, tick); err != nil {
		p.logger.Error("insert tick failed, skipping record", zap.String("option_id", o.OptionID), zap.Error(err))
		return nil
	}
	p.metrics.IngestLastTickTimestamp.WithLabelValues(p.cfg.Source).Set(float64(now.Unix()))
	return nil
}

func (p *Pipeline) fetchBookWithRetry(ctx context.Context, optionID string) (venue.Book, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		book, err := p.client.GetBook(ctx, optionID)
		if err == nil {
			p.metrics.RequestsTotal.WithLabelValues("get_book", "ok").Inc()
			return book, nil
		}
		lastErr = err
		p.metrics.RequestsTotal.WithLabelValues("get_book", "error").Inc()
		if venErr, ok := err.(*venue.Error); !ok || !venErr.Retriable() {
			return venue.Book{}, err
		}
		delay, ok := p.backoff.Next(attempt + 1)
		if !ok {
			return venue.Book{}, lastErr
		}
		select {
		case <-ctx.Done():
			return venue.Book{}, ctx.Err()
		case <-time.After(delay):
		}
	}
}
