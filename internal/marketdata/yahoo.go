package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"score-trader/internal/api"
	"score-trader/internal/types"
)

// YahooGateway fetches point-in-time quotes from the Yahoo Finance v7
// quote endpoint. Symbols ending in -USD are treated as crypto.
type YahooGateway struct {
	client  *api.Client
	retries *api.RetryConfig
	now     func() time.Time
}

func NewYahooGateway() *YahooGateway {
	return &YahooGateway{
		client: api.NewClient(
			api.WithBaseURL("https://query1.finance.yahoo.com"),
			api.WithTimeout(15*time.Second),
		),
		retries: &api.RetryConfig{MaxAttempts: 2, InitialWait: time.Second, MaxWait: 3 * time.Second},
		now:     time.Now,
	}
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string  `json:"symbol"`
			QuoteType                  string  `json:"quoteType"`
			RegularMarketPrice         float64 `json:"regularMarketPrice"`
			RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
			RegularMarketVolume        float64 `json:"regularMarketVolume"`
			MarketCap                  float64 `json:"marketCap"`
			Sector                     string  `json:"sector"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

// FetchQuote fetches a single symbol.
func (g *YahooGateway) FetchQuote(ctx context.Context, symbol string) (types.Quote, error) {
	quotes, errs := g.FetchQuotes(ctx, []string{symbol})
	if q, ok := quotes[symbol]; ok {
		return q, nil
	}
	if err, ok := errs[symbol]; ok {
		return types.Quote{}, err
	}
	return types.Quote{}, fmt.Errorf("no quote returned for %s", symbol)
}

// FetchQuotes fetches a batch in a single request. Symbols missing from
// the response land in the error map; one bad symbol never fails the rest.
func (g *YahooGateway) FetchQuotes(ctx context.Context, symbols []string) (map[string]types.Quote, map[string]error) {
	quotes := make(map[string]types.Quote, len(symbols))
	errs := make(map[string]error)
	if len(symbols) == 0 {
		return quotes, errs
	}

	path := "/v7/finance/quote?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	req := api.NewRequest("GET", path).WithContext(ctx)
	for k, v := range api.YahooFinanceHeaders() {
		req.WithHeader(k, v)
	}

	resp, err := g.client.DoWithRetry(req, g.retries)
	if err != nil {
		for _, s := range symbols {
			errs[s] = err
		}
		return quotes, errs
	}

	var parsed yahooQuoteResponse
	if err := resp.ParseJSON(&parsed); err != nil {
		for _, s := range symbols {
			errs[s] = err
		}
		return quotes, errs
	}
	if e := parsed.QuoteResponse.Error; e != nil {
		err := fmt.Errorf("yahoo quote error %s: %s", e.Code, e.Description)
		for _, s := range symbols {
			errs[s] = err
		}
		return quotes, errs
	}

	now := g.now()
	for _, r := range parsed.QuoteResponse.Result {
		if r.RegularMarketPrice <= 0 {
			errs[r.Symbol] = fmt.Errorf("no price for %s", r.Symbol)
			continue
		}
		quotes[r.Symbol] = types.Quote{
			Symbol:    r.Symbol,
			Type:      InstrumentTypeOf(r.Symbol, r.QuoteType),
			Price:     r.RegularMarketPrice,
			ChangePct: r.RegularMarketChangePercent,
			Volume:    r.RegularMarketVolume,
			MarketCap: r.MarketCap,
			Sector:    r.Sector,
			Time:      now,
		}
	}
	for _, s := range symbols {
		if _, ok := quotes[s]; !ok {
			if _, ok := errs[s]; !ok {
				errs[s] = fmt.Errorf("symbol %s missing from response", s)
			}
		}
	}
	return quotes, errs
}

// InstrumentTypeOf classifies a symbol, preferring the venue's own quote
// type when present.
func InstrumentTypeOf(symbol, quoteType string) types.InstrumentType {
	if strings.EqualFold(quoteType, "CRYPTOCURRENCY") || strings.HasSuffix(symbol, "-USD") {
		return types.Crypto
	}
	return types.Stock
}
