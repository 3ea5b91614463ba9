package ruleengine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/internal/metrics"
	"github.com/marketpulse/marketpulse-x/internal/model"
	"github.com/marketpulse/marketpulse-x/internal/notify"
	"github.com/marketpulse/marketpulse-x/internal/store"
)

// Config tunes the evaluation loop.
type Config struct {
	EvalInterval time.Duration
	Lookback     time.Duration // window passed to buildMarketView
}

// DefaultConfig matches spec.md §4.3's default 2s evaluation cadence and a
// 15-minute lookback window for window-stat predicates.
func DefaultConfig() Config {
	return Config{EvalInterval: 2 * time.Second, Lookback: 15 * time.Minute}
}

// Engine runs the per-cycle rule evaluation loop: load enabled rules, build
// each rule's scope(s), check cooldown and the circuit breaker, evaluate the
// predicate, and on a fire persist a Signal, update KPIs, audit-log the
// event, and dispatch an alert.
type Engine struct {
	cfg      Config
	store    *store.Store
	metrics  *metrics.Registry
	breaker  *Breaker
	notifier notify.Transport
	logger   *zap.Logger
	preds    map[model.RuleType]Predicate
}

// New constructs an Engine.
func New(cfg Config, st *store.Store, reg *metrics.Registry, breaker *Breaker, notifier notify.Transport, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    st,
		metrics:  reg,
		breaker:  breaker,
		notifier: notifier,
		logger:   logger.With(zap.String("component", "ruleengine")),
		preds:    allPredicates(),
	}
}

// Run ticks every cfg.EvalInterval until ctx is cancelled, running one
// evaluation cycle per tick. A cycle overrunning the tick interval simply
// delays the next tick (time.Ticker semantics) rather than overlapping.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := e.cycle(ctx, now); err != nil {
				e.logger.Warn("evaluation cycle failed", zap.Error(err))
			}
		}
	}
}

func (e *Engine) cycle(ctx context.Context, now time.Time) error {
	start := time.Now()
	defer func() { e.metrics.RuleEvalMs.Observe(float64(time.Since(start).Milliseconds())) }()

	rules, err := e.store.ListEnabledRules(ctx)
	if err != nil {
		return fmt.Errorf("list enabled rules: %w", err)
	}

	scopesByRule := make(map[model.RuleType][]Scope)
	for _, r := range rules {
		if _, ok := scopesByRule[r.Type]; ok {
			continue
		}
		scopes, err := e.buildScopes(ctx, r.Type)
		if err != nil {
			e.logger.Warn("build scopes failed", zap.String("rule_type", string(r.Type)), zap.Error(err))
			continue
		}
		scopesByRule[r.Type] = scopes
	}

	for _, rule := range rules {
		pred, ok := e.preds[rule.Type]
		if !ok {
			continue
		}
		for _, scope := range scopesByRule[rule.Type] {
			if err := e.evaluateOne(ctx, rule, pred, scope, now); err != nil {
				e.logger.Warn("rule evaluation failed",
					zap.String("rule_id", rule.RuleID), zap.String("scope", scope.ID), zap.Error(err))
			}
		}
	}
	return nil
}

// buildScopes returns the set of scopes a rule type evaluates: one scope
// per market for single-market rules, one scope per synonym group for
// group rules (spec.md §4.3's scope distinction).
func (e *Engine) buildScopes(ctx context.Context, ruleType model.RuleType) ([]Scope, error) {
	switch ruleType {
	case model.RuleSynonymMisprice, model.RuleCrossMarketMisprice:
		return e.buildGroupScopes(ctx)
	case model.RuleDutchBookDetect:
		// DUTCH_BOOK_DETECT fires against both an explicit single-market
		// basket (all of one market's own options) and an auto-detected
		// synonym-group basket (one representative option per member
		// market) — the predicate itself branches on len(scope.Markets).
		single, err := e.buildSingleMarketScopes(ctx)
		if err != nil {
			return nil, err
		}
		group, err := e.buildGroupScopes(ctx)
		if err != nil {
			return nil, err
		}
		return append(single, group...), nil
	default:
		return e.buildSingleMarketScopes(ctx)
	}
}

func (e *Engine) buildSingleMarketScopes(ctx context.Context) ([]Scope, error) {
	markets, err := e.store.ListMarkets(ctx)
	if err != nil {
		return nil, err
	}
	scopes := make([]Scope, 0, len(markets))
	for _, m := range markets {
		mv, err := buildMarketView(ctx, e.store, m.MarketID, e.cfg.Lookback)
		if err != nil {
			e.logger.Warn("build market view failed", zap.String("market_id", m.MarketID), zap.Error(err))
			continue
		}
		scopes = append(scopes, Scope{ID: m.MarketID, Markets: []MarketView{mv}})
	}
	return scopes, nil
}

func (e *Engine) buildGroupScopes(ctx context.Context) ([]Scope, error) {
	groups, err := e.store.ListSynonymGroups(ctx)
	if err != nil {
		return nil, err
	}
	scopes := make([]Scope, 0, len(groups))
	for _, g := range groups {
		members := append([]string(nil), g.Members...)
		sort.Strings(members)
		if len(members) == 0 {
			continue
		}
		views := make([]MarketView, 0, len(members))
		for _, marketID := range members {
			mv, err := buildMarketView(ctx, e.store, marketID, e.cfg.Lookback)
			if err != nil {
				e.logger.Warn("build market view failed", zap.String("market_id", marketID), zap.Error(err))
				continue
			}
			views = append(views, mv)
		}
		if len(views) < 2 {
			continue
		}
		scopes = append(scopes, Scope{ID: members[0], Markets: views})
	}
	return scopes, nil
}

func (e *Engine) evaluateOne(ctx context.Context, rule model.RuleDefinition, pred Predicate, scope Scope, now time.Time) error {
	cooldownSecs := paramOr(rule.Params, "cooldown_secs", 60)
	active, err := cooldownActive(ctx, e.store, rule.RuleID, scope.ID, now, cooldownSecs)
	if err != nil {
		return fmt.Errorf("cooldown check: %w", err)
	}
	if active {
		return nil
	}

	if !e.breaker.Allowed(rule.RuleID, scope.ID, now) {
		return nil
	}

	result, fired := pred.Evaluate(rule.Params, scope)
	if !fired {
		return nil
	}

	windowSecs := paramOr(rule.Params, "breaker_window_secs", 3600)
	breakerMax := paramOr(rule.Params, "breaker_max", 5)
	baseCooldown := time.Duration(paramOr(rule.Params, "breaker_cooldown_secs", 900)) * time.Second
	e.breaker.RecordEmission(rule.RuleID, scope.ID, now, windowSecs, breakerMax, baseCooldown)

	last, lastErr := e.store.LastSignalAt(ctx, rule.RuleID, scope.ID)
	gapSecs := 0.0
	if lastErr == nil {
		gapSecs = now.Sub(last).Seconds()
	}

	sig := model.Signal{
		SignalID:  uuid.NewString(),
		MarketID:  result.MarketID,
		OptionID:  result.OptionID,
		RuleID:    rule.RuleID,
		Level:     result.Level,
		Score:     result.Score,
		EdgeScore: result.EdgeScore,
		Payload: model.SignalPayload{
			RuleType:       rule.Type,
			Reason:         result.Reason,
			WindowStats:    result.WindowStats,
			SuggestedTrade: result.SuggestedTrade,
			BookSnapshot:   result.BookSnapshot,
		},
		CreatedAt: now,
	}
	if err := e.store.InsertSignal(ctx, sig); err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}

	if err := updateKPI(ctx, e.store, rule.Type, result.Level, result.EdgeScore, gapSecs, now); err != nil {
		e.logger.Warn("kpi update failed", zap.String("rule_id", rule.RuleID), zap.Error(err))
	}

	e.metrics.SignalsTotal.WithLabelValues(string(rule.Type)).Inc()

	if err := e.store.InsertAuditLog(ctx, model.AuditLog{
		At:         now,
		Actor:      "system",
		Action:     "signal_emitted",
		EntityType: "signal",
		EntityID:   sig.SignalID,
		Detail:     map[string]any{"rule_id": rule.RuleID, "market_id": result.MarketID, "level": result.Level},
	}); err != nil {
		e.logger.Warn("audit log failed", zap.String("signal_id", sig.SignalID), zap.Error(err))
	}

	e.dispatchAlert(ctx, rule, result)
	return nil
}

// dispatchAlert sends the alert transport; a delivery failure is recorded
// and swallowed, never failing the evaluation cycle (spec.md §7's posture
// on alert-delivery errors).
func (e *Engine) dispatchAlert(ctx context.Context, rule model.RuleDefinition, result *Result) {
	legs := make([]string, 0, len(result.BookSnapshot))
	for _, leg := range result.BookSnapshot {
		legs = append(legs, fmt.Sprintf("%s @ %s", leg.Label, leg.LastPrice.String()))
	}
	payload := notify.AlertPayload{
		RuleName:    rule.Name,
		MarketTitle: result.MarketID,
		Level:       string(result.Level),
		EdgeScore:   result.EdgeScore,
		Reason:      result.Reason,
		TopLegs:     legs,
	}
	if err := e.notifier.Send(ctx, payload); err != nil {
		e.metrics.AlertFailuresTotal.Inc()
		e.logger.Warn("alert dispatch failed", zap.String("rule_id", rule.RuleID), zap.Error(err))
	}
}
