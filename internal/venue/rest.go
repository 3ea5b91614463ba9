package venue

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RESTClient is the real Venue Client implementation, talking to a
// Polymarket-shaped Gamma/CLOB REST surface. Grounded on the teacher's
// resty-based exchange client: base URL, timeout, retry policy, and
// per-category rate limiting are kept; all trading/signing methods are
// dropped since this module never places orders.
type RESTClient struct {
	http   *resty.Client
	listRL *TokenBucket
	bookRL *TokenBucket
	logger *zap.Logger
}

// RESTConfig configures a RESTClient.
type RESTConfig struct {
	BaseURL        string
	Timeout        time.Duration
	RetryCount     int
	ListBurst      float64
	ListRatePerSec float64
	BookBurst      float64
	BookRatePerSec float64
}

// DefaultRESTConfig returns conservative defaults suitable for a polling
// monitor (lower throughput than a market maker needs).
func DefaultRESTConfig(baseURL string) RESTConfig {
	return RESTConfig{
		BaseURL:        baseURL,
		Timeout:        10 * time.Second,
		RetryCount:     3,
		ListBurst:      20,
		ListRatePerSec: 5,
		BookBurst:      60,
		BookRatePerSec: 15,
	}
}

// NewRESTClient builds a RESTClient from cfg.
func NewRESTClient(cfg RESTConfig, logger *zap.Logger) *RESTClient {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")

	return &RESTClient{
		http:   httpClient,
		listRL: NewTokenBucket(cfg.ListBurst, cfg.ListRatePerSec),
		bookRL: NewTokenBucket(cfg.BookBurst, cfg.BookRatePerSec),
		logger: logger.With(zap.String("component", "venue")),
	}
}

type marketsResponse struct {
	Markets []struct {
		ConditionID string `json:"condition_id"`
		Question    string `json:"question"`
		Status      string `json:"status"`
		Tags        []string `json:"tags"`
		Tokens      []struct {
			TokenID string `json:"token_id"`
			Outcome string `json:"outcome"`
			Price   string `json:"price"`
		} `json:"tokens"`
	} `json:"markets"`
	NextCursor string `json:"next_cursor"`
}

// ListMarkets fetches one page of markets.
func (c *RESTClient) ListMarkets(ctx context.Context, limit int, cursor string) (Page, error) {
	if err := c.listRL.Wait(ctx); err != nil {
		return Page{}, retriableErr("list_markets", err)
	}

	var result marketsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetQueryParam("next_cursor", cursor).
		SetResult(&result).
		Get("/markets")
	if err != nil {
		return Page{}, retriableErr("list_markets", err)
	}
	if resp.StatusCode() >= 500 {
		return Page{}, retriableErr("list_markets", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	if resp.StatusCode() != http.StatusOK {
		return Page{}, fatalErr("list_markets", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	page := Page{NextCursor: result.NextCursor}
	for _, m := range result.Markets {
		md := MarketDetail{MarketID: m.ConditionID, Title: m.Question, Status: m.Status, Tags: m.Tags}
		for _, tok := range m.Tokens {
			price, perr := decimal.NewFromString(tok.Price)
			if perr != nil {
				c.logger.Warn("skipping option with unparseable price", zap.String("token_id", tok.TokenID), zap.Error(perr))
				continue
			}
			md.Options = append(md.Options, OptionDetail{OptionID: tok.TokenID, Label: tok.Outcome, LastPrice: price})
		}
		page.Markets = append(page.Markets, md)
	}
	return page, nil
}

// GetMarketDetail fetches a single market by ID.
func (c *RESTClient) GetMarketDetail(ctx context.Context, marketID string) (MarketDetail, error) {
	if err := c.listRL.Wait(ctx); err != nil {
		return MarketDetail{}, retriableErr("get_market_detail", err)
	}

	var result struct {
		ConditionID string   `json:"condition_id"`
		Question    string   `json:"question"`
		Status      string   `json:"status"`
		Tags        []string `json:"tags"`
		Tokens      []struct {
			TokenID string `json:"token_id"`
			Outcome string `json:"outcome"`
			Price   string `json:"price"`
		} `json:"tokens"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/markets/" + marketID)
	if err != nil {
		return MarketDetail{}, retriableErr("get_market_detail", err)
	}
	if resp.StatusCode() >= 500 {
		return MarketDetail{}, retriableErr("get_market_detail", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	if resp.StatusCode() == http.StatusNotFound {
		return MarketDetail{}, fatalErr("get_market_detail", fmt.Errorf("market %s not found", marketID))
	}
	if resp.StatusCode() != http.StatusOK {
		return MarketDetail{}, fatalErr("get_market_detail", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	md := MarketDetail{MarketID: result.ConditionID, Title: result.Question, Status: result.Status, Tags: result.Tags}
	for _, tok := range result.Tokens {
		price, perr := decimal.NewFromString(tok.Price)
		if perr != nil {
			continue
		}
		md.Options = append(md.Options, OptionDetail{OptionID: tok.TokenID, Label: tok.Outcome, LastPrice: price})
	}
	return md, nil
}

// GetBook fetches the raw L1 book for one option, bypassing any cache.
// Callers wanting TTL-cached, coalesced reads should go through Cache
// instead.
func (c *RESTClient) GetBook(ctx context.Context, optionID string) (Book, error) {
	if err := c.bookRL.Wait(ctx); err != nil {
		return Book{}, retriableErr("get_book", err)
	}

	var result struct {
		Bids []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"bids"`
		Asks []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"asks"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", optionID).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return Book{}, retriableErr("get_book", err)
	}
	if resp.StatusCode() >= 500 {
		return Book{}, retriableErr("get_book", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	if resp.StatusCode() != http.StatusOK {
		return Book{}, fatalErr("get_book", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	b := Book{OptionID: optionID, FetchedAt: time.Now().UTC()}
	liquidity := decimal.Zero
	if len(result.Bids) > 0 {
		if p, err := decimal.NewFromString(result.Bids[0].Price); err == nil {
			b.BestBid = p
		}
		for _, lvl := range result.Bids {
			if sz, err := decimal.NewFromString(lvl.Size); err == nil {
				liquidity = liquidity.Add(sz)
			}
		}
	}
	if len(result.Asks) > 0 {
		if p, err := decimal.NewFromString(result.Asks[0].Price); err == nil {
			b.BestAsk = p
		}
		for _, lvl := range result.Asks {
			if sz, err := decimal.NewFromString(lvl.Size); err == nil {
				liquidity = liquidity.Add(sz)
			}
		}
	}
	b.Liquidity = liquidity
	return b, nil
}
