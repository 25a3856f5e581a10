package external

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type mockFetcher struct {
	prices  map[string]decimal.Decimal
	err     error
	tickers []string
}

func (m *mockFetcher) FetchPrices(_ context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	m.tickers = tickers
	return m.prices, m.err
}

type mockQuoteRepo struct {
	quotes map[string]Quote
}

func (m *mockQuoteRepo) SaveQuotes(_ context.Context, prices map[string]decimal.Decimal) error {
	for ticker, price := range prices {
		m.quotes[ticker] = Quote{Ticker: ticker, Price: price, UpdatedAt: time.Now()}
	}
	return nil
}

func (m *mockQuoteRepo) GetAllQuotes(_ context.Context) ([]Quote, error) {
	var result []Quote
	for _, q := range m.quotes {
		result = append(result, q)
	}
	return result, nil
}

type mockHoldings struct {
	items   []domain.Holding
	updates map[string]decimal.Decimal
	failID  string
}

func (m *mockHoldings) Items() []domain.Holding { return m.items }

func (m *mockHoldings) Update(_ context.Context, id string, patch domain.HoldingPatch) (domain.Holding, error) {
	if id == m.failID {
		return domain.Holding{}, errors.New("remote unavailable")
	}
	m.updates[id] = *patch.CurrentPrice
	return domain.Holding{ID: id}, nil
}

type mockTargets []domain.TargetAllocation

func (m mockTargets) Items() []domain.TargetAllocation { return m }

func newHoldings() *mockHoldings {
	return &mockHoldings{
		items: []domain.Holding{
			{ID: "h1", Name: "Apple", Ticker: "AAPL", CurrentPrice: d("180")},
			{ID: "h2", Name: "Microsoft", Ticker: "msft", CurrentPrice: d("400")},
			{ID: "h3", Name: "Private fund"},
		},
		updates: make(map[string]decimal.Decimal),
	}
}

func TestFetchRepricesMovedHoldings(t *testing.T) {
	fetcher := &mockFetcher{prices: map[string]decimal.Decimal{
		"AAPL": d("190"),
		"MSFT": d("400"),
		"GOOG": d("140"),
	}}
	repo := &mockQuoteRepo{quotes: make(map[string]Quote)}
	holdings := newHoldings()
	targets := mockTargets{{Positions: []domain.TargetPosition{{Name: "Alphabet", Ticker: "goog"}, {Name: "Cash"}}}}

	if err := NewService(fetcher, repo, holdings, targets).Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	sort.Strings(fetcher.tickers)
	if got := fetcher.tickers; len(got) != 3 || got[0] != "AAPL" || got[1] != "GOOG" || got[2] != "MSFT" {
		t.Errorf("quoted tickers = %v", got)
	}
	if len(holdings.updates) != 1 || !holdings.updates["h1"].Equal(d("190")) {
		t.Errorf("updates = %v, want only h1 repriced", holdings.updates)
	}
	if len(repo.quotes) != 3 {
		t.Errorf("stored quotes = %d, want 3", len(repo.quotes))
	}
}

func TestFetchSkipsTentativeHoldings(t *testing.T) {
	fetcher := &mockFetcher{prices: map[string]decimal.Decimal{"AAPL": d("110")}}
	repo := &mockQuoteRepo{quotes: make(map[string]Quote)}
	holdings := &mockHoldings{
		items:   []domain.Holding{{ID: store.TempIDPrefix + "abc", Name: "Apple", Ticker: "AAPL", CurrentPrice: d("100")}},
		updates: make(map[string]decimal.Decimal),
	}

	if err := NewService(fetcher, repo, holdings, nil).Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(holdings.updates) != 0 {
		t.Errorf("updates = %v, want none for a holding without a server id", holdings.updates)
	}
	if _, ok := repo.quotes["AAPL"]; !ok {
		t.Error("quote for the tentative holding's ticker should still be stored")
	}
}

func TestFetchJoinsRepriceFailures(t *testing.T) {
	fetcher := &mockFetcher{prices: map[string]decimal.Decimal{"AAPL": d("190"), "MSFT": d("410")}}
	holdings := newHoldings()
	holdings.failID = "h1"

	err := NewService(fetcher, &mockQuoteRepo{quotes: make(map[string]Quote)}, holdings, nil).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected reprice error")
	}
	if !holdings.updates["h2"].Equal(d("410")) {
		t.Error("h2 should be repriced despite h1 failing")
	}
}

func TestFetchQuoteFailure(t *testing.T) {
	fetcher := &mockFetcher{err: errors.New("EODHD HTTP 500")}
	holdings := newHoldings()

	if err := NewService(fetcher, &mockQuoteRepo{quotes: make(map[string]Quote)}, holdings, nil).Fetch(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if len(holdings.updates) != 0 {
		t.Error("no holding should change when quotes are unavailable")
	}
}

func TestFetchWithoutTickers(t *testing.T) {
	fetcher := &mockFetcher{}
	holdings := &mockHoldings{items: []domain.Holding{{ID: "h1", Name: "Private fund"}}}

	if err := NewService(fetcher, &mockQuoteRepo{}, holdings, nil).Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fetcher.tickers != nil {
		t.Error("provider should not be called without tickers")
	}
}

func TestReferencePrices(t *testing.T) {
	prices := referencePrices([]Quote{{Ticker: "goog", Price: d("140")}, {Ticker: "AAPL", Price: d("190")}})
	if len(prices) != 2 || !prices["GOOG"].Equal(d("140")) {
		t.Errorf("prices = %v, want GOOG normalized", prices)
	}
}
