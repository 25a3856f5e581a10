package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/export"
)

type mockPlanGenerator struct {
	callCount atomic.Int32
	err       error
}

func (m *mockPlanGenerator) GeneratePlan(_ context.Context) (export.Plan, error) {
	m.callCount.Add(1)
	if m.err != nil {
		return export.Plan{}, m.err
	}
	return export.Plan{Target: domain.TargetAllocation{Name: "Growth"}}, nil
}

type mockPlanExporter struct {
	callCount atomic.Int32
	lastName  atomic.Value
}

func (m *mockPlanExporter) Export(_ context.Context, plan export.Plan) error {
	m.callCount.Add(1)
	m.lastName.Store(plan.Target.Name)
	return nil
}

func TestReportWorkerRunsAndShutdown(t *testing.T) {
	gen := &mockPlanGenerator{}
	hook := &mockPlanExporter{}
	w := NewReportWorker(gen, 50*time.Millisecond, hook)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := gen.callCount.Load(); got < 1 {
		t.Errorf("generate count = %d, want >= 1", got)
	}
	if got := hook.callCount.Load(); got != gen.callCount.Load() {
		t.Errorf("export count = %d, want one per generation", got)
	}
	if name, _ := hook.lastName.Load().(string); name != "Growth" {
		t.Errorf("exported target = %q, want Growth", name)
	}
}

func TestReportWorkerSkipsExportOnFailure(t *testing.T) {
	gen := &mockPlanGenerator{err: errors.New("no target allocations")}
	hook := &mockPlanExporter{}
	w := NewReportWorker(gen, time.Hour, hook)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	if gen.callCount.Load() != 1 {
		t.Errorf("generate count = %d, want the startup run only", gen.callCount.Load())
	}
	if hook.callCount.Load() != 0 {
		t.Error("export should not run when generation fails")
	}
}
