package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/app"
	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/export"
	"github.com/mtlprog/folio/internal/rebalance"
	"github.com/mtlprog/folio/internal/snapshot"
	"github.com/mtlprog/folio/internal/store"
	"github.com/mtlprog/folio/internal/validation"
)

// Handler provides HTTP endpoints for the portfolio API.
type Handler struct {
	app       *app.App
	snapshots *snapshot.Service
}

// NewHandler creates a new API handler.
func NewHandler(a *app.App) *Handler {
	return &Handler{app: a}
}

// GetSummary handles GET /api/v1/summary.
func (h *Handler) GetSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Summary())
}

// GetRebalance handles GET /api/v1/rebalance/{targetID}.
func (h *Handler) GetRebalance(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.options(w, r)
	if !ok {
		return
	}
	res, err := h.app.Rebalance(chi.URLParam(r, "targetID"), opts)
	if err != nil {
		writeStoreError(w, err, "calculate rebalance")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExportRebalance handles GET /api/v1/rebalance/{targetID}/export.xlsx.
func (h *Handler) ExportRebalance(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.options(w, r)
	if !ok {
		return
	}
	plan, err := h.app.Plan(chi.URLParam(r, "targetID"), opts)
	if err != nil {
		writeStoreError(w, err, "build trade plan")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "rebalance-"+plan.Target.ID+".xlsx"))
	if err := export.WriteWorkbook(w, plan); err != nil {
		slog.Error("failed to write workbook", "target", plan.Target.ID, "error", err)
	}
}

// GetAnalytics handles GET /api/v1/analytics?target={id}.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.options(w, r)
	if !ok {
		return
	}
	report, err := h.app.Analyze(r.URL.Query().Get("target"), opts)
	if err != nil {
		writeStoreError(w, err, "analyze portfolio")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Refresh handles POST /api/v1/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.app.FetchAll(r.Context()); err != nil {
		slog.Error("failed to refresh collections", "error", err)
		writeError(w, http.StatusBadGateway, "failed to refresh collections")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"holdings": len(h.app.Holdings.Items()),
		"targets":  len(h.app.Targets.Items()),
	})
}

func (h *Handler) stampHolding(d domain.HoldingDraft) domain.HoldingDraft {
	d.OwnerID = h.app.OwnerID
	return d
}

func (h *Handler) stampTarget(d domain.TargetDraft) domain.TargetDraft {
	d.OwnerID = h.app.OwnerID
	return d
}

// options merges the query overrides into the configured defaults and validates them.
func (h *Handler) options(w http.ResponseWriter, r *http.Request) (rebalance.Options, bool) {
	opts, err := parseOptions(h.app.Options, r.URL.Query())
	if err == nil {
		err = validation.ValidateOptions(opts)
	}
	if err != nil {
		writeStoreError(w, err, "parse options")
		return rebalance.Options{}, false
	}
	return h.app.WithQuotes(r.Context(), opts), true
}

// parseOptions overrides base with minimumUnit, threshold, commission, considerCommission,
// allowFractional, includeUntargeted, rounding and price.<TICKER> query parameters.
func parseOptions(base rebalance.Options, q url.Values) (rebalance.Options, error) {
	opts := base
	errs := make(map[string]string)

	decimals := map[string]*decimal.Decimal{
		"minimumUnit": &opts.MinimumUnit,
		"threshold":   &opts.Threshold,
		"commission":  &opts.Commission,
	}
	for key, dst := range decimals {
		if v := q.Get(key); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				errs[key] = "must be a number"
				continue
			}
			*dst = d
		}
	}

	flags := map[string]*bool{
		"considerCommission": &opts.ConsiderCommission,
		"allowFractional":    &opts.AllowFractional,
		"includeUntargeted":  &opts.IncludeUntargeted,
	}
	for key, dst := range flags {
		if v := q.Get(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs[key] = "must be true or false"
				continue
			}
			*dst = b
		}
	}

	if v := q.Get("rounding"); v != "" {
		opts.Rounding = rebalance.Rounding(strings.ToLower(strings.TrimSpace(v)))
	}

	prices := make(map[string]decimal.Decimal)
	for key, values := range q {
		ticker, ok := strings.CutPrefix(key, "price.")
		if !ok || len(values) == 0 {
			continue
		}
		price, err := decimal.NewFromString(values[0])
		if err != nil {
			errs[key] = "must be a number"
			continue
		}
		prices[domain.NormalizeKey(ticker)] = price
	}
	if len(prices) > 0 {
		opts.ReferencePrices = lo.Assign(base.ReferencePrices, prices)
	}

	if len(errs) > 0 {
		return base, &validation.Error{Fields: errs}
	}
	return opts, nil
}

// collectionResponse is the JSON form of a store snapshot.
type collectionResponse[T any] struct {
	Items     []T    `json:"items"`
	Selected  *T     `json:"selected,omitempty"`
	IsLoading bool   `json:"isLoading"`
	Error     string `json:"error,omitempty"`
}

func listItems[T store.Item[T], D store.Draft[T], P store.Patch[T]](s *store.Store[T, D, P]) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := s.Snapshot()
		items := snap.Items
		if items == nil {
			items = []T{}
		}
		writeJSON(w, http.StatusOK, collectionResponse[T]{
			Items:     items,
			Selected:  snap.Selected,
			IsLoading: snap.IsLoading,
			Error:     snap.Error,
		})
	}
}

func createItem[T store.Item[T], D store.Draft[T], P store.Patch[T]](s *store.Store[T, D, P], stamp func(D) D) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := validation.DecodeStrict[D](r.Body)
		if err != nil {
			writeStoreError(w, err, "decode request")
			return
		}
		created, err := s.Create(r.Context(), stamp(draft))
		if err != nil {
			writeStoreError(w, err, "create item")
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateItem[T store.Item[T], D store.Draft[T], P store.Patch[T]](s *store.Store[T, D, P]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patch, err := validation.DecodeStrict[P](r.Body)
		if err != nil {
			writeStoreError(w, err, "decode request")
			return
		}
		updated, err := s.Update(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeStoreError(w, err, "update item")
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteItem[T store.Item[T], D store.Draft[T], P store.Patch[T]](s *store.Store[T, D, P]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeStoreError(w, err, "delete item")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeStoreError maps validation failures to 400, unknown ids to 404 and remote
// failures to 502.
func writeStoreError(w http.ResponseWriter, err error, op string) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, app.ErrNoTarget):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusBadGateway, "failed to "+op)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
