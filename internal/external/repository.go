package external

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/domain"
)

// Quote is the last known market price of a ticker.
type Quote struct {
	Ticker    string          `json:"ticker"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// QuoteRepository defines persistent storage for market quotes.
type QuoteRepository interface {
	SaveQuotes(ctx context.Context, prices map[string]decimal.Decimal) error
	GetAllQuotes(ctx context.Context) ([]Quote, error)
}

// PgQuoteRepository implements QuoteRepository with PostgreSQL.
type PgQuoteRepository struct {
	pool *pgxpool.Pool
}

// NewPgQuoteRepository creates a new PostgreSQL quote repository.
func NewPgQuoteRepository(pool *pgxpool.Pool) *PgQuoteRepository {
	return &PgQuoteRepository{pool: pool}
}

// SaveQuotes upserts every price in one round trip.
func (r *PgQuoteRepository) SaveQuotes(ctx context.Context, prices map[string]decimal.Decimal) error {
	if len(prices) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for ticker, price := range prices {
		batch.Queue(
			`INSERT INTO quotes (ticker, price, updated_at)
			 VALUES ($1, $2, NOW())
			 ON CONFLICT (ticker) DO UPDATE SET price = $2, updated_at = NOW()`,
			ticker, price)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving %d quotes: %w", len(prices), err)
	}
	return nil
}

func (r *PgQuoteRepository) GetAllQuotes(ctx context.Context) ([]Quote, error) {
	rows, err := r.pool.Query(ctx, `SELECT ticker, price, updated_at FROM quotes ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("getting all quotes: %w", err)
	}
	quotes, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Quote])
	if err != nil {
		return nil, fmt.Errorf("scanning quotes: %w", err)
	}
	return quotes, nil
}

// ReferencePrices returns the stored quotes keyed for rebalance.Options.ReferencePrices.
func (r *PgQuoteRepository) ReferencePrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	quotes, err := r.GetAllQuotes(ctx)
	if err != nil {
		return nil, err
	}
	return referencePrices(quotes), nil
}

func referencePrices(quotes []Quote) map[string]decimal.Decimal {
	return lo.SliceToMap(quotes, func(q Quote) (string, decimal.Decimal) {
		return domain.NormalizeKey(q.Ticker), q.Price
	})
}
