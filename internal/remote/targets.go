package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/store"
)

const targetColumns = `id, owner_id, name, description, positions, total_weight, created_at, updated_at`

// TargetRepository persists target allocations for one owner. Positions are kept as
// a JSONB array so their order survives round trips.
type TargetRepository struct {
	pool    *pgxpool.Pool
	ownerID string
}

var _ store.TargetRemote = (*TargetRepository)(nil)

// NewTargetRepository creates a PostgreSQL target repository scoped to ownerID.
func NewTargetRepository(pool *pgxpool.Pool, ownerID string) *TargetRepository {
	return &TargetRepository{pool: pool, ownerID: ownerID}
}

func scanTarget(row rowScanner) (domain.TargetAllocation, error) {
	var (
		t         domain.TargetAllocation
		positions []byte
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Description, &positions, &t.TotalWeight,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, err
	}
	if err := json.Unmarshal(positions, &t.Positions); err != nil {
		return t, fmt.Errorf("decoding positions of %s: %w", t.ID, err)
	}
	return t, nil
}

func encodePositions(positions []domain.TargetPosition) ([]byte, error) {
	if positions == nil {
		positions = []domain.TargetPosition{}
	}
	data, err := json.Marshal(positions)
	if err != nil {
		return nil, fmt.Errorf("encoding positions: %w", err)
	}
	return data, nil
}

// List returns the owner's target allocations, newest first.
func (r *TargetRepository) List(ctx context.Context) ([]domain.TargetAllocation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+targetColumns+` FROM target_allocations WHERE owner_id = $1 ORDER BY created_at DESC, id`,
		r.ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing target allocations: %w", err)
	}
	defer rows.Close()

	targets := []domain.TargetAllocation{}
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning target allocation: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating target allocations: %w", err)
	}
	return targets, nil
}

// Get loads one target allocation.
func (r *TargetRepository) Get(ctx context.Context, id string) (domain.TargetAllocation, error) {
	t, err := scanTarget(r.pool.QueryRow(ctx,
		`SELECT `+targetColumns+` FROM target_allocations WHERE id = $1 AND owner_id = $2`, id, r.ownerID))
	if err != nil {
		if nf := notFound(err, "target allocation", id); nf != nil {
			return domain.TargetAllocation{}, nf
		}
		return domain.TargetAllocation{}, fmt.Errorf("loading target allocation %s: %w", id, err)
	}
	return t, nil
}

// Create inserts a target allocation and returns the stored row.
func (r *TargetRepository) Create(ctx context.Context, d domain.TargetDraft) (domain.TargetAllocation, error) {
	positions, err := encodePositions(d.Positions)
	if err != nil {
		return domain.TargetAllocation{}, err
	}
	t, err := scanTarget(r.pool.QueryRow(ctx,
		`INSERT INTO target_allocations (id, owner_id, name, description, positions, total_weight)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		 RETURNING `+targetColumns,
		uuid.NewString(), r.ownerID, strings.TrimSpace(d.Name), d.Description, positions,
		domain.SumWeights(d.Positions)))
	if err != nil {
		return domain.TargetAllocation{}, fmt.Errorf("creating target allocation: %w", err)
	}
	return t, nil
}

// Update applies the set fields of p. New positions also rewrite total_weight.
func (r *TargetRepository) Update(ctx context.Context, id string, p domain.TargetPatch) (domain.TargetAllocation, error) {
	a, err := targetUpdate(p)
	if err != nil {
		return domain.TargetAllocation{}, err
	}
	sql, args := a.update("target_allocations", targetColumns, id, r.ownerID)
	t, err := scanTarget(r.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if nf := notFound(err, "target allocation", id); nf != nil {
			return domain.TargetAllocation{}, nf
		}
		return domain.TargetAllocation{}, fmt.Errorf("updating target allocation %s: %w", id, err)
	}
	return t, nil
}

func targetUpdate(p domain.TargetPatch) (*assignments, error) {
	a := &assignments{}
	if p.Name != nil {
		a.set("name", strings.TrimSpace(*p.Name))
	}
	if p.Description != nil {
		a.set("description", *p.Description)
	}
	if p.Positions != nil {
		positions, err := encodePositions(p.Positions)
		if err != nil {
			return nil, err
		}
		a.setCast("positions", positions, "jsonb")
		a.set("total_weight", domain.SumWeights(p.Positions))
	}
	return a, nil
}

// Delete removes a target allocation.
func (r *TargetRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM target_allocations WHERE id = $1 AND owner_id = $2`, id, r.ownerID)
	if err != nil {
		return fmt.Errorf("deleting target allocation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("target allocation %s: %w", id, store.ErrNotFound)
	}
	return nil
}
