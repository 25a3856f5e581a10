package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/analytics"
	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/rebalance"
)

type mockSource struct {
	summary    domain.PortfolioSummary
	err        error
	lastTarget string
	lastOpts   rebalance.Options
	quotes     func() map[string]decimal.Decimal
}

func (m *mockSource) Summary() domain.PortfolioSummary { return m.summary }

func (m *mockSource) WithQuotes(_ context.Context, opts rebalance.Options) rebalance.Options {
	if m.quotes != nil {
		opts.ReferencePrices = m.quotes()
	}
	return opts
}

func (m *mockSource) Analyze(targetID string, opts rebalance.Options) (analytics.Report, error) {
	m.lastTarget = targetID
	m.lastOpts = opts
	if m.err != nil {
		return analytics.Report{}, m.err
	}
	return analytics.Report{TotalValue: m.summary.TotalValue, HoldingCount: len(m.summary.Holdings)}, nil
}

type mockRepo struct {
	saveErr   error
	savedData json.RawMessage
	savedDate time.Time
	savedOwn  string
	latest    *Snapshot
	latestErr error
	byDate    *Snapshot
	byDateArg time.Time
}

func (m *mockRepo) Save(_ context.Context, ownerID string, date time.Time, data json.RawMessage) error {
	m.savedOwn = ownerID
	m.savedData = data
	m.savedDate = date
	return m.saveErr
}

func (m *mockRepo) GetLatest(_ context.Context, _ string) (*Snapshot, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	return m.latest, nil
}

func (m *mockRepo) GetByDate(_ context.Context, _ string, date time.Time) (*Snapshot, error) {
	m.byDateArg = date
	if m.byDate == nil {
		return nil, ErrNotFound
	}
	return m.byDate, nil
}

func (m *mockRepo) List(_ context.Context, _ string, _ int) ([]Snapshot, error) {
	return nil, nil
}

func TestGenerateSuccess(t *testing.T) {
	source := &mockSource{summary: domain.PortfolioSummary{TotalValue: decimal.NewFromInt(1000)}}
	repo := &mockRepo{}
	svc := NewService(source, repo, "u1", "", rebalance.DefaultOptions())

	at := time.Date(2026, 3, 14, 23, 30, 0, 0, time.FixedZone("UTC-3", -3*3600))
	data, err := svc.Generate(context.Background(), at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !data.Report.TotalValue.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("report total = %s, want 1000", data.Report.TotalValue)
	}
	if source.lastTarget != "" {
		t.Errorf("snapshot analyzed against %q, want no target", source.lastTarget)
	}

	if repo.savedOwn != "u1" {
		t.Errorf("owner = %q, want u1", repo.savedOwn)
	}
	if want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC); !repo.savedDate.Equal(want) {
		t.Errorf("date = %v, want %v", repo.savedDate, want)
	}

	var stored Data
	if err := json.Unmarshal(repo.savedData, &stored); err != nil {
		t.Fatalf("stored data is not valid JSON: %v", err)
	}
	if !stored.Summary.TotalValue.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("stored total = %s, want 1000", stored.Summary.TotalValue)
	}
}

func TestGenerateUsesTarget(t *testing.T) {
	source := &mockSource{}
	svc := NewService(source, &mockRepo{}, "u1", "t1", rebalance.DefaultOptions())

	if _, err := svc.Generate(context.Background(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.lastTarget != "t1" {
		t.Errorf("analyzed against %q, want t1", source.lastTarget)
	}
}

func TestGenerateResolvesQuotesEachRun(t *testing.T) {
	price := decimal.NewFromInt(100)
	source := &mockSource{quotes: func() map[string]decimal.Decimal {
		return map[string]decimal.Decimal{"AAPL": price}
	}}
	svc := NewService(source, &mockRepo{}, "u1", "", rebalance.DefaultOptions())

	for _, want := range []int64{100, 120} {
		price = decimal.NewFromInt(want)
		if _, err := svc.Generate(context.Background(), time.Now()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := source.lastOpts.ReferencePrices["AAPL"]; !got.Equal(decimal.NewFromInt(want)) {
			t.Errorf("AAPL priced at %s, want %d", got, want)
		}
	}
}

func TestGenerateAnalyzeError(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(&mockSource{err: errors.New("boom")}, repo, "u1", "", rebalance.DefaultOptions())

	if _, err := svc.Generate(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error")
	}
	if repo.savedData != nil {
		t.Error("nothing should be saved when analysis fails")
	}
}

func TestGenerateRepoSaveError(t *testing.T) {
	repo := &mockRepo{saveErr: errors.New("db error")}
	svc := NewService(&mockSource{}, repo, "u1", "", rebalance.DefaultOptions())

	if _, err := svc.Generate(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error")
	}
}

func TestGetByDateNormalizesDay(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(&mockSource{}, repo, "u1", "", rebalance.DefaultOptions())

	_, err := svc.GetByDate(context.Background(), time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if want := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC); !repo.byDateArg.Equal(want) {
		t.Errorf("queried %v, want %v", repo.byDateArg, want)
	}
}

func TestUTCDay(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"utc end of day", time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC), time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)},
		{"west of utc rolls forward", time.Date(2026, 5, 1, 22, 0, 0, 0, time.FixedZone("UTC-4", -4*3600)), time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)},
		{"east of utc rolls back", time.Date(2026, 5, 2, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600)), time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UTCDay(tt.in); !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Errorf("UTCDay(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
