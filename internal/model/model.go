// Package model defines the shared domain types persisted and exchanged
// across the ingestion, rule-evaluation, and intent/risk subsystems.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus is the closed set of lifecycle states for a Market.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "open"
	MarketClosing MarketStatus = "closing"
	MarketClosed  MarketStatus = "closed"
)

// Market is a prediction-market venue listing. One Market owns zero or more
// Options.
type Market struct {
	MarketID  string
	Title     string
	Status    MarketStatus
	StartsAt  *time.Time
	EndsAt    *time.Time
	Tags      []string
	Embedding []float32 // reserved for method=embedding synonym grouping; unused for core conformance
	UpdatedAt time.Time
}

// Option is a purchasable outcome within exactly one Market. For real
// venues OptionID equals the upstream CLOB token identifier.
type Option struct {
	OptionID string
	MarketID string
	Label    string
}

// Tick is an append-only time-series observation for one (MarketID, OptionID).
type Tick struct {
	TS        time.Time
	MarketID  string
	OptionID  string
	Price     decimal.Decimal
	Volume    *decimal.Decimal
	BestBid   *decimal.Decimal
	BestAsk   *decimal.Decimal
	Liquidity *decimal.Decimal
}

// RuleType is the closed set of predicate families the Rule Engine supports.
type RuleType string

const (
	RuleSumLT1             RuleType = "SUM_LT_1"
	RuleSpikeDetect        RuleType = "SPIKE_DETECT"
	RuleEndgameSweep       RuleType = "ENDGAME_SWEEP"
	RuleSynonymMisprice    RuleType = "SYNONYM_MISPRICE"
	RuleDutchBookDetect    RuleType = "DUTCH_BOOK_DETECT"
	RuleCrossMarketMisprice RuleType = "CROSS_MARKET_MISPRICE"
	RuleTrendBreakout      RuleType = "TREND_BREAKOUT"
)

// RuleDefinition is a declarative, versioned rule instance.
type RuleDefinition struct {
	RuleID  string
	Name    string
	Type    RuleType
	Params  map[string]float64
	Enabled bool
	Version int
}

// Level is signal severity.
type Level string

const (
	LevelP1 Level = "P1"
	LevelP2 Level = "P2"
	LevelP3 Level = "P3"
)

// BookLeg is one contributing option's book state at signal emission time.
type BookLeg struct {
	MarketID  string          `json:"market_id"`
	OptionID  string          `json:"option_id"`
	Label     string          `json:"label,omitempty"`
	LastPrice decimal.Decimal `json:"last_price"`
	BestBid   decimal.Decimal `json:"best_bid,omitempty"`
	BestAsk   decimal.Decimal `json:"best_ask,omitempty"`
}

// TradeLeg is one leg of a suggested trade plan.
type TradeLeg struct {
	MarketID       string          `json:"market_id"`
	OptionID       string          `json:"option_id"`
	Side           string          `json:"side"` // buy|sell
	Qty            decimal.Decimal `json:"qty"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	LimitPrice     decimal.Decimal `json:"limit_price"`
}

// SuggestedTrade is a rule-specific trade plan attached to a signal.
type SuggestedTrade struct {
	Legs   []TradeLeg `json:"legs"`
	Reason string     `json:"reason"`
}

// SignalPayload is the tagged-variant structured payload carried by a
// Signal. Known shapes are pinned per rule_type; WindowStats and the Extra
// bag provide forward compatibility for fields a given predicate doesn't
// use.
type SignalPayload struct {
	RuleType      RuleType          `json:"rule_type"`
	Reason        string            `json:"reason"`
	WindowStats   map[string]float64 `json:"window_stats,omitempty"`
	SuggestedTrade *SuggestedTrade  `json:"suggested_trade,omitempty"`
	BookSnapshot  []BookLeg         `json:"book_snapshot"`
	Extra         map[string]any    `json:"extra,omitempty"`
	Truncated     bool              `json:"truncated,omitempty"`
}

// Signal is an emitted arbitrage/anomaly opportunity.
type Signal struct {
	SignalID  string
	MarketID  string
	OptionID  *string
	RuleID    string
	Level     Level
	Score     float64
	EdgeScore float64
	Payload   SignalPayload
	CreatedAt time.Time
}

// SynonymMethod is how a SynonymGroup's membership was derived.
type SynonymMethod string

const (
	SynonymExplicit  SynonymMethod = "explicit"
	SynonymKeyword   SynonymMethod = "keyword"
	SynonymEmbedding SynonymMethod = "embedding" // reserved, not populated by core conformance
)

// SynonymGroup is a set of markets deemed semantically equivalent.
type SynonymGroup struct {
	GroupID string
	Method  SynonymMethod
	Title   string
	Members []string // market IDs
}

// ExecutionMode controls how the Intent Pipeline's confirm step behaves.
type ExecutionMode string

const (
	ModeSemiAuto ExecutionMode = "semi_auto"
	ModeManual   ExecutionMode = "manual"
	ModeAuto     ExecutionMode = "auto"
)

// ExecutionPolicy bounds the risk gauntlet for a run.
type ExecutionPolicy struct {
	PolicyID            string
	Mode                ExecutionMode
	MaxNotionalPerOrder decimal.Decimal
	MaxConcurrentOrders int
	MaxDailyNotional    decimal.Decimal
	SlippageBps         decimal.Decimal
	Enabled             bool
}

// IntentStatus is the closed set of OrderIntent lifecycle states.
type IntentStatus string

const (
	IntentSuggested IntentStatus = "suggested"
	IntentSent      IntentStatus = "sent"
	IntentFilled    IntentStatus = "filled"
	IntentRejected  IntentStatus = "rejected"
	IntentExpired   IntentStatus = "expired"
)

// Side is a trade direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// CheckResult records one risk-gauntlet check's outcome.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// IntentDetail is the tagged detail payload on an OrderIntent.
type IntentDetail struct {
	Plan            SuggestedTrade  `json:"plan"`
	PayloadSnapshot SignalPayload   `json:"payload_snapshot"`
	Checks          []CheckResult   `json:"checks,omitempty"`
	FillPrice       *decimal.Decimal `json:"fill_price,omitempty"`
}

// OrderIntent is an operator-confirmable trade proposal synthesized from a Signal.
type OrderIntent struct {
	IntentID    string
	SignalID    string
	MarketID    string
	Side        Side
	Qty         decimal.Decimal
	LimitPrice  *decimal.Decimal
	TTLSecs     int
	Status      IntentStatus
	PolicyID    string
	Detail      IntentDetail
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RuleKpiDaily aggregates one rule_type's performance for one UTC day.
type RuleKpiDaily struct {
	Day         string // YYYY-MM-DD
	RuleType    RuleType
	Signals     int
	P1Signals   int
	AvgGapSecs  float64
	EstEdgeBps  float64
}

// AuditLog records an attempted or completed state-affecting action.
type AuditLog struct {
	ID         int64
	At         time.Time
	Actor      string // "system" | "operator"
	Action     string
	EntityType string
	EntityID   string
	Detail     map[string]any
}
