package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/store"
)

const holdingColumns = `id, owner_id, name, ticker, quantity, purchase_price, current_price, created_at, updated_at`

// HoldingRepository persists holdings for one owner.
type HoldingRepository struct {
	pool    *pgxpool.Pool
	ownerID string
}

var _ store.HoldingRemote = (*HoldingRepository)(nil)

// NewHoldingRepository creates a PostgreSQL holding repository scoped to ownerID.
func NewHoldingRepository(pool *pgxpool.Pool, ownerID string) *HoldingRepository {
	return &HoldingRepository{pool: pool, ownerID: ownerID}
}

func scanHolding(row rowScanner) (domain.Holding, error) {
	var h domain.Holding
	err := row.Scan(&h.ID, &h.OwnerID, &h.Name, &h.Ticker, &h.Quantity, &h.PurchasePrice,
		&h.CurrentPrice, &h.CreatedAt, &h.UpdatedAt)
	return h, err
}

// List returns the owner's holdings, newest first.
func (r *HoldingRepository) List(ctx context.Context) ([]domain.Holding, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE owner_id = $1 ORDER BY created_at DESC, id`,
		r.ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing holdings: %w", err)
	}
	defer rows.Close()

	holdings := []domain.Holding{}
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating holdings: %w", err)
	}
	return holdings, nil
}

// Get loads one holding.
func (r *HoldingRepository) Get(ctx context.Context, id string) (domain.Holding, error) {
	h, err := scanHolding(r.pool.QueryRow(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE id = $1 AND owner_id = $2`, id, r.ownerID))
	if err != nil {
		if nf := notFound(err, "holding", id); nf != nil {
			return domain.Holding{}, nf
		}
		return domain.Holding{}, fmt.Errorf("loading holding %s: %w", id, err)
	}
	return h, nil
}

// Create inserts a holding and returns the stored row.
func (r *HoldingRepository) Create(ctx context.Context, d domain.HoldingDraft) (domain.Holding, error) {
	h, err := scanHolding(r.pool.QueryRow(ctx,
		`INSERT INTO holdings (id, owner_id, name, ticker, quantity, purchase_price, current_price)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+holdingColumns,
		uuid.NewString(), r.ownerID, strings.TrimSpace(d.Name), strings.TrimSpace(d.Ticker),
		d.Quantity, d.PurchasePrice, d.CurrentPrice))
	if err != nil {
		return domain.Holding{}, fmt.Errorf("creating holding: %w", err)
	}
	return h, nil
}

// Update applies the non-nil fields of p.
func (r *HoldingRepository) Update(ctx context.Context, id string, p domain.HoldingPatch) (domain.Holding, error) {
	sql, args := holdingUpdate(p).update("holdings", holdingColumns, id, r.ownerID)
	h, err := scanHolding(r.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if nf := notFound(err, "holding", id); nf != nil {
			return domain.Holding{}, nf
		}
		return domain.Holding{}, fmt.Errorf("updating holding %s: %w", id, err)
	}
	return h, nil
}

func holdingUpdate(p domain.HoldingPatch) *assignments {
	a := &assignments{}
	if p.Name != nil {
		a.set("name", strings.TrimSpace(*p.Name))
	}
	if p.Ticker != nil {
		a.set("ticker", strings.TrimSpace(*p.Ticker))
	}
	if p.Quantity != nil {
		a.set("quantity", *p.Quantity)
	}
	if p.PurchasePrice != nil {
		a.set("purchase_price", *p.PurchasePrice)
	}
	if p.CurrentPrice != nil {
		a.set("current_price", *p.CurrentPrice)
	}
	return a
}

// Delete removes a holding.
func (r *HoldingRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM holdings WHERE id = $1 AND owner_id = $2`, id, r.ownerID)
	if err != nil {
		return fmt.Errorf("deleting holding %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("holding %s: %w", id, store.ErrNotFound)
	}
	return nil
}
