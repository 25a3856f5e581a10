package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mtlprog/folio/internal/snapshot"
)

// SnapshotGenerator stores the portfolio history entry for a day.
type SnapshotGenerator interface {
	Generate(ctx context.Context, date time.Time) (snapshot.Data, error)
}

// SnapshotWorker periodically records portfolio snapshots. Every run within the same
// UTC day overwrites that day's entry.
type SnapshotWorker struct {
	generator SnapshotGenerator
	interval  time.Duration
	schedule  string
	now       func() time.Time
}

// NewSnapshotWorker creates a SnapshotWorker that runs every interval.
func NewSnapshotWorker(generator SnapshotGenerator, interval time.Duration) *SnapshotWorker {
	return &SnapshotWorker{generator: generator, interval: interval, now: time.Now}
}

// NewScheduledSnapshotWorker creates a SnapshotWorker driven by a standard five-field
// cron expression such as "30 21 * * 1-5".
func NewScheduledSnapshotWorker(generator SnapshotGenerator, schedule string) (*SnapshotWorker, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parsing snapshot schedule %q: %w", schedule, err)
	}
	return &SnapshotWorker{generator: generator, schedule: schedule, now: time.Now}, nil
}

func (w *SnapshotWorker) runOnce(ctx context.Context) {
	date := snapshot.UTCDay(w.now())
	data, err := w.generator.Generate(ctx, date)
	if err != nil {
		slog.Error("SnapshotWorker: generation failed", "date", date.Format(time.DateOnly), "error", err)
		return
	}
	slog.Info("SnapshotWorker: snapshot stored",
		"date", date.Format(time.DateOnly),
		"total_value", data.Summary.TotalValue.String(),
		"health", data.Report.HealthScore.String())
}

// Run generates one snapshot at startup and then on every tick until ctx is cancelled.
func (w *SnapshotWorker) Run(ctx context.Context) {
	if w.schedule != "" {
		w.runScheduled(ctx)
		return
	}
	slog.Info("SnapshotWorker: starting", "interval", w.interval)

	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("SnapshotWorker: shutting down")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *SnapshotWorker) runScheduled(ctx context.Context) {
	slog.Info("SnapshotWorker: starting", "schedule", w.schedule)

	w.runOnce(ctx)

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(w.schedule, func() { w.runOnce(ctx) }); err != nil {
		slog.Error("SnapshotWorker: invalid schedule", "schedule", w.schedule, "error", err)
		return
	}
	c.Start()

	<-ctx.Done()
	slog.Info("SnapshotWorker: shutting down")
	<-c.Stop().Done()
}
