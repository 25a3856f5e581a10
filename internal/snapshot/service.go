// Package snapshot records a daily copy of the portfolio valuation and scores so the
// history can be compared day over day.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mtlprog/folio/internal/analytics"
	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/rebalance"
)

// PortfolioSource values and scores the current holdings. WithQuotes adds the latest
// stored market prices to opts.
type PortfolioSource interface {
	Summary() domain.PortfolioSummary
	Analyze(targetID string, opts rebalance.Options) (analytics.Report, error)
	WithQuotes(ctx context.Context, opts rebalance.Options) rebalance.Options
}

// Data is the payload stored with each snapshot.
type Data struct {
	Summary domain.PortfolioSummary `json:"summary"`
	Report  analytics.Report        `json:"report"`
}

// Service manages snapshot generation and retrieval for one owner.
type Service struct {
	source   PortfolioSource
	repo     Repository
	ownerID  string
	targetID string
	opts     rebalance.Options
}

// NewService creates a new snapshot service. When targetID is set each snapshot also
// records the imbalances against that target allocation.
func NewService(source PortfolioSource, repo Repository, ownerID, targetID string, opts rebalance.Options) *Service {
	return &Service{source: source, repo: repo, ownerID: ownerID, targetID: targetID, opts: opts}
}

// Generate values the portfolio with the quotes known at call time and stores it as
// the snapshot for date.
func (s *Service) Generate(ctx context.Context, date time.Time) (Data, error) {
	report, err := s.source.Analyze(s.targetID, s.source.WithQuotes(ctx, s.opts))
	if err != nil {
		return Data{}, fmt.Errorf("analyzing portfolio: %w", err)
	}
	data := Data{Summary: s.source.Summary(), Report: report}

	raw, err := json.Marshal(data)
	if err != nil {
		return Data{}, fmt.Errorf("marshaling snapshot data: %w", err)
	}

	if err := s.repo.Save(ctx, s.ownerID, UTCDay(date), raw); err != nil {
		return Data{}, fmt.Errorf("saving snapshot: %w", err)
	}
	return data, nil
}

// GetLatest retrieves the most recent snapshot.
func (s *Service) GetLatest(ctx context.Context) (*Snapshot, error) {
	return s.repo.GetLatest(ctx, s.ownerID)
}

// GetByDate retrieves the snapshot of a specific day.
func (s *Service) GetByDate(ctx context.Context, date time.Time) (*Snapshot, error) {
	return s.repo.GetByDate(ctx, s.ownerID, UTCDay(date))
}

// List retrieves recent snapshots, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Snapshot, error) {
	return s.repo.List(ctx, s.ownerID, limit)
}

// UTCDay truncates t to midnight of its UTC calendar day, the key snapshots are stored under.
func UTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
