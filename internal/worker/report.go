package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtlprog/folio/internal/export"
)

// PlanGenerator builds the current trade plan.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context) (export.Plan, error)
}

// PlanExporter receives each generated plan.
type PlanExporter interface {
	Export(ctx context.Context, plan export.Plan) error
}

// ReportWorker periodically regenerates the trade plan and hands it to an exporter.
type ReportWorker struct {
	generator PlanGenerator
	interval  time.Duration
	hook      PlanExporter
}

// NewReportWorker creates a new ReportWorker.
func NewReportWorker(generator PlanGenerator, interval time.Duration, hook PlanExporter) *ReportWorker {
	return &ReportWorker{
		generator: generator,
		interval:  interval,
		hook:      hook,
	}
}

func (w *ReportWorker) runOnce(ctx context.Context) {
	plan, err := w.generator.GeneratePlan(ctx)
	if err != nil {
		slog.Error("ReportWorker: generation failed", "error", err)
		return
	}
	if err := w.hook.Export(ctx, plan); err != nil {
		slog.Error("ReportWorker: export failed", "error", err)
		return
	}
	slog.Info("ReportWorker: export completed", "target", plan.Target.Name)
}

// Run starts the report worker loop. It blocks until the context is cancelled.
func (w *ReportWorker) Run(ctx context.Context) {
	slog.Info("ReportWorker: starting", "interval", w.interval)

	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ReportWorker: shutting down")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}
