package intent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marketpulse/marketpulse-x/internal/metrics"
	"github.com/marketpulse/marketpulse-x/internal/model"
	"github.com/marketpulse/marketpulse-x/internal/store"
)

// ErrSignalLevelIneligible is returned by CreateIntent when the signal's
// level is outside {P1, P2} (spec.md §4.4 step 1).
var ErrSignalLevelIneligible = errors.New("intent: signal level ineligible for intent creation")

// ErrNoActivePolicy is returned when no enabled execution policy exists.
var ErrNoActivePolicy = errors.New("intent: no active execution policy")

// Pipeline implements the Intent Pipeline's two operations: create_intent
// and confirm_intent (spec.md §4.4).
type Pipeline struct {
	store    *store.Store
	gauntlet *Gauntlet
	fills    FillConfirmer
	metrics  *metrics.Registry
	policyID string
}

// New constructs a Pipeline bound to a single named execution policy —
// spec.md §6 treats the policy as a run-wide default, not a per-intent
// choice.
func New(st *store.Store, gauntlet *Gauntlet, fills FillConfirmer, reg *metrics.Registry, policyID string) *Pipeline {
	return &Pipeline{store: st, gauntlet: gauntlet, fills: fills, metrics: reg, policyID: policyID}
}

// CreateIntent implements create_intent(signal_id) -> Intent.
func (p *Pipeline) CreateIntent(ctx context.Context, signalID string, now time.Time) (model.OrderIntent, error) {
	sig, err := p.store.GetSignal(ctx, signalID)
	if err != nil {
		return model.OrderIntent{}, fmt.Errorf("load signal %s: %w", signalID, err)
	}
	if sig.Level != model.LevelP1 && sig.Level != model.LevelP2 {
		return model.OrderIntent{}, fmt.Errorf("%w: signal %s has level %s", ErrSignalLevelIneligible, signalID, sig.Level)
	}

	plan, err := planFor(sig)
	if err != nil {
		return model.OrderIntent{}, fmt.Errorf("plan signal %s: %w", signalID, err)
	}

	policy, err := p.store.GetExecutionPolicy(ctx, p.policyID)
	if err != nil {
		return model.OrderIntent{}, fmt.Errorf("%w: %v", ErrNoActivePolicy, err)
	}

	leg := plan.Legs[0]
	side := model.Side(leg.Side)
	limit := leg.LimitPrice

	in := model.OrderIntent{
		IntentID:   uuid.NewString(),
		SignalID:   signalID,
		MarketID:   sig.MarketID,
		Side:       side,
		Qty:        leg.Qty,
		LimitPrice: &limit,
		TTLSecs:    defaultTTLSecs,
		Status:     model.IntentSuggested,
		PolicyID:   policy.PolicyID,
		Detail: model.IntentDetail{
			Plan:            plan,
			PayloadSnapshot: sig.Payload,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.store.InsertIntent(ctx, in); err != nil {
		return model.OrderIntent{}, fmt.Errorf("insert intent: %w", err)
	}
	p.metrics.OrderIntentsTotal.WithLabelValues(string(model.IntentSuggested)).Inc()
	return in, nil
}

// defaultTTLSecs bounds how long a suggested intent may wait for
// confirmation: ConfirmIntent past the TTL marks it expired. The expiry
// sweep applies the same TTL to intents left in "sent".
const defaultTTLSecs = 300

// ConfirmIntent implements confirm_intent(intent_id) -> Intent.
func (p *Pipeline) ConfirmIntent(ctx context.Context, ruleID, intentID string, now time.Time) (model.OrderIntent, error) {
	in, err := p.store.GetIntent(ctx, intentID)
	if err != nil {
		return model.OrderIntent{}, fmt.Errorf("load intent %s: %w", intentID, err)
	}

	// A terminal intent is a no-op (spec.md §8 idempotence note).
	if in.Status != model.IntentSuggested {
		return in, nil
	}

	if now.After(in.CreatedAt.Add(time.Duration(in.TTLSecs) * time.Second)) {
		expired, err := p.store.TransitionIntent(ctx, intentID, model.IntentSuggested, model.IntentExpired, nil)
		if err != nil {
			return model.OrderIntent{}, fmt.Errorf("expire intent %s: %w", intentID, err)
		}
		p.metrics.OrderIntentsTotal.WithLabelValues(string(model.IntentExpired)).Inc()
		return expired, nil
	}

	policy, err := p.store.GetExecutionPolicy(ctx, in.PolicyID)
	if err != nil {
		return model.OrderIntent{}, fmt.Errorf("load policy %s: %w", in.PolicyID, err)
	}

	checks, passed := p.gauntlet.Evaluate(ctx, ruleID, in, policy, now)
	if !passed {
		rejected, err := p.store.TransitionIntent(ctx, intentID, model.IntentSuggested, model.IntentRejected, func(d *model.IntentDetail) {
			d.Checks = checks
		})
		if err != nil {
			return model.OrderIntent{}, fmt.Errorf("reject intent %s: %w", intentID, err)
		}
		p.auditReject(ctx, rejected, now)
		p.metrics.OrderIntentsTotal.WithLabelValues(string(model.IntentRejected)).Inc()
		return rejected, nil
	}

	sent, err := p.store.TransitionIntent(ctx, intentID, model.IntentSuggested, model.IntentSent, func(d *model.IntentDetail) {
		d.Checks = checks
	})
	if err != nil {
		return model.OrderIntent{}, fmt.Errorf("send intent %s: %w", intentID, err)
	}
	p.metrics.OrderIntentsTotal.WithLabelValues(string(model.IntentSent)).Inc()

	fillPrice, err := p.fills.Confirm(ctx, sent)
	if err != nil {
		// A confirmer that can't reach the venue leaves the intent in
		// "sent"; ExpireStaleSentIntents sweeps it once its TTL elapses.
		return sent, fmt.Errorf("confirm fill for intent %s: %w", intentID, err)
	}

	filled, err := p.store.TransitionIntent(ctx, intentID, model.IntentSent, model.IntentFilled, func(d *model.IntentDetail) {
		d.FillPrice = &fillPrice
	})
	if err != nil {
		return model.OrderIntent{}, fmt.Errorf("fill intent %s: %w", intentID, err)
	}
	p.metrics.OrderIntentsTotal.WithLabelValues(string(model.IntentFilled)).Inc()
	return filled, nil
}

func (p *Pipeline) auditReject(ctx context.Context, in model.OrderIntent, now time.Time) {
	reasons := make([]string, 0, len(in.Detail.Checks))
	for _, c := range in.Detail.Checks {
		if !c.Passed {
			reasons = append(reasons, c.Name+": "+c.Reason)
		}
	}
	_ = p.store.InsertAuditLog(ctx, model.AuditLog{
		At:         now,
		Actor:      "operator",
		Action:     "intent_rejected",
		EntityType: "order_intent",
		EntityID:   in.IntentID,
		Detail:     map[string]any{"reasons": reasons},
	})
}

// planFor extracts the SuggestedTrade a rule's predicate already attached
// to the signal's payload. Every predicate in internal/ruleengine except
// SYNONYM_MISPRICE builds one; a signal without a plan (every
// SYNONYM_MISPRICE signal among them) is a schema violation this layer
// treats as fatal for the one signal (spec.md §7).
func planFor(sig model.Signal) (model.SuggestedTrade, error) {
	if sig.Payload.SuggestedTrade == nil || len(sig.Payload.SuggestedTrade.Legs) == 0 {
		return model.SuggestedTrade{}, fmt.Errorf("signal %s has no suggested trade plan", sig.SignalID)
	}
	return *sig.Payload.SuggestedTrade, nil
}
