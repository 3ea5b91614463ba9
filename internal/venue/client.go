// Package venue implements the read-only venue client: listing markets,
// fetching market detail and order books over REST, with a TTL-cached,
// singleflight-coalesced book lookup. It never signs or places orders.
package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Book is an L1 order-book snapshot for one option.
type Book struct {
	OptionID  string
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	Liquidity decimal.Decimal
	FetchedAt time.Time
}

// MarketDetail is the full venue-side view of one market and its options.
type MarketDetail struct {
	MarketID string
	Title    string
	Status   string
	Tags     []string
	Options  []OptionDetail
}

// OptionDetail is one option's venue-side view, including its last traded
// price (used by the Ingestion Pipeline to build a Tick when the book has
// no resting liquidity on one side).
type OptionDetail struct {
	OptionID  string
	Label     string
	LastPrice decimal.Decimal
}

// Page is one page of a ListMarkets call.
type Page struct {
	Markets    []MarketDetail
	NextCursor string
}

// Client is the read-only Venue Client contract. RESTClient and
// SyntheticClient both satisfy it.
type Client interface {
	ListMarkets(ctx context.Context, limit int, cursor string) (Page, error)
	GetMarketDetail(ctx context.Context, marketID string) (MarketDetail, error)
	GetBook(ctx context.Context, optionID string) (Book, error)
}

// Error is the typed error shape returned by a Client, distinguishing
// retriable transport/5xx conditions from fatal schema/4xx conditions per
// SPEC_FULL.md §1.2.
type Error struct {
	Op        string
	Err       error
	retriable bool
}

func (e *Error) Error() string {
	return "venue: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retriable reports whether the Ingestion Pipeline should retry this error
// with backoff rather than skip the record.
func (e *Error) Retriable() bool {
	return e.retriable
}

func retriableErr(op string, err error) error {
	return &Error{Op: op, Err: err, retriable: true}
}

func fatalErr(op string, err error) error {
	return &Error{Op: op, Err: err, retriable: false}
}
