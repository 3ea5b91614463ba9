package intent

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// FillConfirmer advances a "sent" intent to "filled", returning the price
// it filled at. Real execution venues would poll or subscribe to fills;
// core conformance only needs the synthetic model below, so the interface
// is the seam for a future live implementation.
type FillConfirmer interface {
	Confirm(ctx context.Context, in model.OrderIntent) (decimal.Decimal, error)
}

// SyntheticFillConfirmer fills every intent immediately at its leg's
// reference price, adapted from the teacher's internal/paper/simulator.go
// immediate-fill model (minus balance/fee tracking, which is out of scope —
// see SPEC_FULL.md's Non-goals on portfolio accounting).
type SyntheticFillConfirmer struct{}

// Confirm always succeeds, filling at the plan's first-leg reference price.
func (SyntheticFillConfirmer) Confirm(ctx context.Context, in model.OrderIntent) (decimal.Decimal, error) {
	return in.Detail.Plan.Legs[0].ReferencePrice, nil
}
