package notify

import (
	"context"
	"strings"
	"testing"
)

func TestRenderUnderCapPassesThrough(t *testing.T) {
	p := AlertPayload{
		RuleName:    "SUM_LT_1",
		MarketTitle: "Will it rain tomorrow?",
		Level:       "P1",
		EdgeScore:   0.03,
		Reason:      "basket sums to 0.97, gap 0.03 >= min_gap 0.01",
		TopLegs:     []string{"BUY Yes @ 0.48", "BUY No @ 0.49"},
	}

	out := render(p, false)
	if strings.Contains(out, "truncated=true") {
		t.Fatalf("expected no truncation marker, got: %s", out)
	}
	if strings.Contains(out, "transport=dry-run") {
		t.Fatalf("expected no dry-run tag for live send, got: %s", out)
	}
	if !strings.Contains(out, "SUM_LT_1") || !strings.Contains(out, "BUY Yes @ 0.48") {
		t.Fatalf("expected rendered payload to contain rule name and legs, got: %s", out)
	}
}

func TestRenderDryRunTagsOutput(t *testing.T) {
	p := AlertPayload{RuleName: "SPIKE_DETECT", MarketTitle: "X", Level: "P2", Reason: "r"}
	out := render(p, true)
	if !strings.Contains(out, "transport=dry-run") {
		t.Fatalf("expected dry-run tag, got: %s", out)
	}
}

func TestRenderOverCapTruncatesLegsThenReason(t *testing.T) {
	legs := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		legs = append(legs, "BUY Outcome-With-A-Fairly-Long-Label @ 0.4821")
	}
	p := AlertPayload{
		RuleName:    "CROSS_MARKET_MISPRICE",
		MarketTitle: "Long title repeated many times to pad size",
		Level:       "P1",
		EdgeScore:   0.05,
		Reason:      strings.Repeat("very long reason text that keeps going on and on ", 50),
		TopLegs:     legs,
	}

	out := render(p, false)
	if len(out) > maxPayloadBytes {
		t.Fatalf("expected output within cap, got %d bytes", len(out))
	}
	if !strings.Contains(out, "truncated=true") {
		t.Fatalf("expected truncation marker, got: %s", out)
	}
}

func TestDryRunTransportSendCallsSink(t *testing.T) {
	var captured string
	tr := &DryRunTransport{Sink: func(rendered string) { captured = rendered }}

	err := tr.Send(context.Background(), AlertPayload{RuleName: "ENDGAME_SWEEP", MarketTitle: "M", Level: "P1", Reason: "near expiry volume spike"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(captured, "ENDGAME_SWEEP") {
		t.Fatalf("expected sink to capture rendered payload, got: %s", captured)
	}
	if !strings.Contains(captured, "transport=dry-run") {
		t.Fatalf("expected dry-run tag in sink output, got: %s", captured)
	}
}

func TestDryRunTransportSendWithoutSinkIsNoop(t *testing.T) {
	tr := &DryRunTransport{}
	if err := tr.Send(context.Background(), AlertPayload{RuleName: "X", Level: "P2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTelegramTransportDisabledSendIsNoop(t *testing.T) {
	tr := NewTelegramTransport("", "")
	if tr.Enabled() {
		t.Fatalf("expected transport to be disabled with empty credentials")
	}
	if err := tr.Send(context.Background(), AlertPayload{RuleName: "X"}); err != nil {
		t.Fatalf("expected disabled send to no-op, got: %v", err)
	}
}
