// Package notify generalizes the teacher's Telegram notifier into a
// Transport interface, adding dry-run tagging and the ≤4KB payload cap
// from spec.md §6.
package notify

import (
	"context"
	"fmt"
	"strings"
)

// maxPayloadBytes is the alert payload size cap (spec.md §6).
const maxPayloadBytes = 4096

// AlertPayload is the structured shape handed to a Transport.
type AlertPayload struct {
	RuleName    string
	MarketTitle string
	Level       string
	EdgeScore   float64
	Reason      string
	TopLegs     []string
}

// Transport delivers a rendered alert. DryRunTransport and
// TelegramTransport both satisfy it.
type Transport interface {
	Send(ctx context.Context, payload AlertPayload) error
}

// render produces the text payload. When it exceeds maxPayloadBytes, legs
// are dropped from the end of the list and then Reason is cut to 32 bytes
// until the whole message fits, and truncated output is tagged rather than
// silently dropped (SPEC_FULL.md §3). If the header lines alone exceed the
// cap, the shortened message is returned over the cap.
func render(p AlertPayload, dryRun bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s — %s\n", p.Level, p.RuleName, p.MarketTitle)
	fmt.Fprintf(&b, "edge_score=%.4f\n", p.EdgeScore)
	fmt.Fprintf(&b, "reason: %s\n", p.Reason)
	for _, leg := range p.TopLegs {
		fmt.Fprintf(&b, "- %s\n", leg)
	}
	if dryRun {
		b.WriteString("transport=dry-run\n")
	}

	out := b.String()
	if len(out) <= maxPayloadBytes {
		return out
	}
	return truncate(p, dryRun)
}

func truncate(p AlertPayload, dryRun bool) string {
	legs := p.TopLegs
	reason := p.Reason
	reasonCut := false
	for {
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] %s — %s\n", p.Level, p.RuleName, p.MarketTitle)
		fmt.Fprintf(&b, "edge_score=%.4f\n", p.EdgeScore)
		fmt.Fprintf(&b, "reason: %s\n", reason)
		for _, leg := range legs {
			fmt.Fprintf(&b, "- %s\n", leg)
		}
		if dryRun {
			b.WriteString("transport=dry-run\n")
		}
		b.WriteString("truncated=true\n")

		out := b.String()
		if len(out) <= maxPayloadBytes || (len(legs) == 0 && (reasonCut || len(reason) <= 32)) {
			return out
		}
		if len(legs) > 0 {
			legs = legs[:len(legs)-1]
			continue
		}
		reason = reason[:32] + "..."
		reasonCut = true
	}
}
