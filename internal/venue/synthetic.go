package venue

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"
)

// SyntheticClient is a deterministic, seeded-random Venue Client used for
// offline tests and the synthetic/dry-run deployment mode (spec.md §4.1).
// It never makes a network call.
type SyntheticClient struct {
	rng      *rand.Rand
	markets  []MarketDetail
}

// NewSyntheticClient builds a SyntheticClient with n markets of
// optionsPerMarket binary options each, seeded for reproducible test runs.
func NewSyntheticClient(seed int64, n, optionsPerMarket int) *SyntheticClient {
	rng := rand.New(rand.NewSource(seed))
	markets := make([]MarketDetail, 0, n)
	for i := 0; i < n; i++ {
		md := MarketDetail{
			MarketID: fmt.Sprintf("synthetic-market-%d", i),
			Title:    fmt.Sprintf("Synthetic market %d", i),
			Status:   "open",
		}
		for j := 0; j < optionsPerMarket; j++ {
			md.Options = append(md.Options, OptionDetail{
				OptionID:  fmt.Sprintf("synthetic-market-%d-opt-%d", i, j),
				Label:     fmt.Sprintf("Outcome %d", j),
				LastPrice: decimal.NewFromFloat(rng.Float64()),
			})
		}
		markets = append(markets, md)
	}
	return &SyntheticClient{rng: rng, markets: markets}
}

// ListMarkets returns all synthetic markets in one page; limit and cursor
// are ignored.
func (c *SyntheticClient) ListMarkets(ctx context.Context, limit int, cursor string) (Page, error) {
	return Page{Markets: c.markets}, nil
}

// GetMarketDetail looks up one synthetic market by ID.
func (c *SyntheticClient) GetMarketDetail(ctx context.Context, marketID string) (MarketDetail, error) {
	for _, m := range c.markets {
		if m.MarketID == marketID {
			return m, nil
		}
	}
	return MarketDetail{}, fatalErr("get_market_detail", fmt.Errorf("synthetic market %s not found", marketID))
}

// GetBook synthesizes a book around the option's last price with a small
// random spread, walking the price with a bounded random jitter each call
// so repeated polls exercise SPIKE_DETECT and the dedup invariants.
func (c *SyntheticClient) GetBook(ctx context.Context, optionID string) (Book, error) {
	for _, m := range c.markets {
		for i, o := range m.Options {
			if o.OptionID != optionID {
				continue
			}
			jitter := decimal.NewFromFloat((c.rng.Float64() - 0.5) * 0.02)
			mid := o.LastPrice.Add(jitter)
			if mid.LessThan(decimal.NewFromFloat(0.01)) {
				mid = decimal.NewFromFloat(0.01)
			}
			if mid.GreaterThan(decimal.NewFromFloat(0.99)) {
				mid = decimal.NewFromFloat(0.99)
			}
			m.Options[i].LastPrice = mid
			spread := decimal.NewFromFloat(0.01)
			return Book{
				OptionID:  optionID,
				BestBid:   mid.Sub(spread),
				BestAsk:   mid.Add(spread),
				Liquidity: decimal.NewFromFloat(100 + c.rng.Float64()*900),
			}, nil
		}
	}
	return Book{}, fatalErr("get_book", fmt.Errorf("synthetic option %s not found", optionID))
}
