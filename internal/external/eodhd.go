package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/mtlprog/folio/internal/domain"
)

const (
	// DefaultRateLimit is the default number of EODHD requests per second.
	DefaultRateLimit = 5
	// maxSymbolsPerRequest keeps each real-time call within the documented batch size.
	maxSymbolsPerRequest = 15
)

// EODHDClient fetches delayed stock quotes from the EODHD real-time API.
type EODHDClient struct {
	baseURL    string
	apiKey     string
	exchange   string
	httpClient *http.Client
	limiter    *rate.Limiter
	delay      time.Duration
	maxRetries int
}

// ClientOption configures an EODHDClient.
type ClientOption func(*EODHDClient)

// WithRateLimit caps outgoing requests per second. Zero or less disables the cap.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *EODHDClient) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewEODHDClient creates a quote client. Tickers without an exchange suffix are
// looked up on exchange, e.g. "US".
func NewEODHDClient(baseURL, apiKey, exchange string, delay time.Duration, maxRetries int, opts ...ClientOption) *EODHDClient {
	c := &EODHDClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		exchange:   exchange,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		delay:      delay,
		maxRetries: maxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type realtimeQuote struct {
	Code  string          `json:"code"`
	Close json.RawMessage `json:"close"`
}

// FetchPrices returns the last close for each ticker, keyed by the normalized ticker.
// Tickers the API has no price for are left out.
func (c *EODHDClient) FetchPrices(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	tickers = lo.Uniq(lo.FilterMap(tickers, func(t string, _ int) (string, bool) {
		n := domain.NormalizeKey(t)
		return n, n != ""
	}))
	if len(tickers) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	// The API answers with the symbol it was asked for, so map it back to the ticker.
	bySymbol := lo.SliceToMap(tickers, func(t string) (string, string) { return c.symbol(t), t })
	symbols := lo.Map(tickers, func(t string, _ int) string { return c.symbol(t) })

	result := make(map[string]decimal.Decimal, len(tickers))
	for _, batch := range lo.Chunk(symbols, maxSymbolsPerRequest) {
		quotes, err := c.fetchBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, rq := range quotes {
			ticker, ok := bySymbol[strings.ToUpper(rq.Code)]
			if !ok {
				continue
			}
			// Unlisted or suspended symbols report "NA".
			price, err := decimal.NewFromString(strings.Trim(string(rq.Close), `"`))
			if err != nil || !price.IsPositive() {
				continue
			}
			result[ticker] = price
		}
	}
	return result, nil
}

// fetchBatch asks for the first symbol in the path and the rest in the s parameter.
func (c *EODHDClient) fetchBatch(ctx context.Context, symbols []string) ([]realtimeQuote, error) {
	q := url.Values{}
	q.Set("api_token", c.apiKey)
	q.Set("fmt", "json")
	if len(symbols) > 1 {
		q.Set("s", strings.Join(symbols[1:], ","))
	}
	addr := fmt.Sprintf("%s/real-time/%s?%s", c.baseURL, url.PathEscape(symbols[0]), q.Encode())

	body, err := c.fetchWithRetry(ctx, addr)
	if err != nil {
		return nil, err
	}
	return parseRealtime(body)
}

func (c *EODHDClient) symbol(ticker string) string {
	if strings.Contains(ticker, ".") || c.exchange == "" {
		return ticker
	}
	return ticker + "." + strings.ToUpper(c.exchange)
}

// parseRealtime accepts both the single-object and the array response shapes.
func parseRealtime(body []byte) ([]realtimeQuote, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var quotes []realtimeQuote
		if err := json.Unmarshal(body, &quotes); err != nil {
			return nil, fmt.Errorf("parsing EODHD response: %w", err)
		}
		return quotes, nil
	}
	var q realtimeQuote
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("parsing EODHD response: %w", err)
	}
	return []realtimeQuote{q}, nil
}

func (c *EODHDClient) fetchWithRetry(ctx context.Context, addr string) ([]byte, error) {
	var lastErr error
	for attempt := range c.maxRetries + 1 {
		if attempt > 0 {
			baseDelay := c.delay
			if baseDelay == 0 {
				baseDelay = 10 * time.Second
			}
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("creating EODHD request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("EODHD request failed: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading EODHD response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("EODHD HTTP %d (attempt %d/%d)", resp.StatusCode, attempt+1, c.maxRetries+1)
			continue
		}

		// The body may echo the request URL, which carries the API token.
		return nil, fmt.Errorf("EODHD HTTP %d", resp.StatusCode)
	}

	return nil, lastErr
}
