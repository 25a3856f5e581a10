package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that the requested snapshot was not found.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is one stored day of portfolio history.
type Snapshot struct {
	ID           int64           `json:"id"`
	OwnerID      string          `json:"ownerId"`
	SnapshotDate time.Time       `json:"snapshotDate"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Repository defines persistent storage for snapshots.
type Repository interface {
	Save(ctx context.Context, ownerID string, date time.Time, data json.RawMessage) error
	GetLatest(ctx context.Context, ownerID string) (*Snapshot, error)
	GetByDate(ctx context.Context, ownerID string, date time.Time) (*Snapshot, error)
	List(ctx context.Context, ownerID string, limit int) ([]Snapshot, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const snapshotColumns = `id, owner_id, snapshot_date, data, created_at`

// Save stores data for the day, replacing an earlier snapshot of the same day.
func (r *PgRepository) Save(ctx context.Context, ownerID string, date time.Time, data json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO portfolio_snapshots (owner_id, snapshot_date, data)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (owner_id, snapshot_date)
		 DO UPDATE SET data = $3::jsonb`,
		ownerID, date, data)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (r *PgRepository) GetLatest(ctx context.Context, ownerID string) (*Snapshot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM portfolio_snapshots
		 WHERE owner_id = $1
		 ORDER BY snapshot_date DESC
		 LIMIT 1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}
	return collectOne(rows, "getting latest snapshot")
}

func (r *PgRepository) GetByDate(ctx context.Context, ownerID string, date time.Time) (*Snapshot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM portfolio_snapshots
		 WHERE owner_id = $1 AND snapshot_date = $2`, ownerID, date)
	if err != nil {
		return nil, fmt.Errorf("getting snapshot by date: %w", err)
	}
	return collectOne(rows, "getting snapshot by date")
}

func (r *PgRepository) List(ctx context.Context, ownerID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM portfolio_snapshots
		 WHERE owner_id = $1
		 ORDER BY snapshot_date DESC
		 LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	snapshots, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Snapshot])
	if err != nil {
		return nil, fmt.Errorf("scanning snapshots: %w", err)
	}
	return snapshots, nil
}

func collectOne(rows pgx.Rows, what string) (*Snapshot, error) {
	s, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[Snapshot])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return &s, nil
}
