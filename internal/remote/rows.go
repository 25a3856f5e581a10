package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/domain"
)

// holdingRow mirrors row_to_json(holdings).
type holdingRow struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Name          string          `json:"name"`
	Ticker        string          `json:"ticker"`
	Quantity      decimal.Decimal `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// targetRow mirrors row_to_json(target_allocations).
type targetRow struct {
	ID          string                  `json:"id"`
	OwnerID     string                  `json:"owner_id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Positions   []domain.TargetPosition `json:"positions"`
	TotalWeight decimal.Decimal         `json:"total_weight"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// DecodeHoldingRow decodes a holdings row carried in a change notification.
func DecodeHoldingRow(raw json.RawMessage) (domain.Holding, error) {
	var r holdingRow
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.Holding{}, fmt.Errorf("decoding holding row: %w", err)
	}
	if r.ID == "" {
		return domain.Holding{}, fmt.Errorf("decoding holding row: missing id")
	}
	return domain.Holding{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Name:          r.Name,
		Ticker:        r.Ticker,
		Quantity:      r.Quantity,
		PurchasePrice: r.PurchasePrice,
		CurrentPrice:  r.CurrentPrice,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

// DecodeTargetRow decodes a target_allocations row carried in a change notification.
func DecodeTargetRow(raw json.RawMessage) (domain.TargetAllocation, error) {
	var r targetRow
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.TargetAllocation{}, fmt.Errorf("decoding target row: %w", err)
	}
	if r.ID == "" {
		return domain.TargetAllocation{}, fmt.Errorf("decoding target row: missing id")
	}
	return domain.TargetAllocation{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Name:        r.Name,
		Description: r.Description,
		Positions:   r.Positions,
		TotalWeight: r.TotalWeight,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}
