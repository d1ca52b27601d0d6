package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/qr-tracker/qr-tracker/internal/telemetry"
)

type fakePruner struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	deleted int64
	err     error
}

func (f *fakePruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, f.err
}

func (f *fakePruner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ---------------------------------------------------------------------------
// NewScanRetentionJob: interval defaulting
// ---------------------------------------------------------------------------

func TestNewScanRetentionJob_Intervals(t *testing.T) {
	tests := []struct {
		hours int
		want  time.Duration
	}{
		{0, 24 * time.Hour},
		{-3, 24 * time.Hour},
		{1, time.Hour},
		{48, 48 * time.Hour},
	}
	for _, tt := range tests {
		j := NewScanRetentionJob(&fakePruner{}, 30, tt.hours)
		if j.interval != tt.want {
			t.Errorf("NewScanRetentionJob(hours=%d).interval = %v, want %v", tt.hours, j.interval, tt.want)
		}
	}
}

func TestScanRetentionJob_Enabled(t *testing.T) {
	if NewScanRetentionJob(&fakePruner{}, 0, 1).Enabled() {
		t.Error("Enabled() = true with retention 0")
	}
	if NewScanRetentionJob(nil, 30, 1).Enabled() {
		t.Error("Enabled() = true with nil pruner")
	}
	if !NewScanRetentionJob(&fakePruner{}, 30, 1).Enabled() {
		t.Error("Enabled() = false with retention 30")
	}
}

// ---------------------------------------------------------------------------
// RunOnce
// ---------------------------------------------------------------------------

func TestScanRetentionJob_RunOnce_Cutoff(t *testing.T) {
	p := &fakePruner{deleted: 12}
	j := NewScanRetentionJob(p, 90, 24)
	fixed := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }
	before := testutil.ToFloat64(telemetry.ScansPrunedTotal)

	if got := j.RunOnce(context.Background()); got != 12 {
		t.Errorf("RunOnce() = %d, want 12", got)
	}
	want := fixed.Add(-90 * 24 * time.Hour)
	if len(p.cutoffs) != 1 || !p.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", p.cutoffs, want)
	}
	if delta := testutil.ToFloat64(telemetry.ScansPrunedTotal) - before; delta != 12 {
		t.Errorf("scans_pruned_total delta = %v, want 12", delta)
	}
}

func TestScanRetentionJob_RunOnce_Error(t *testing.T) {
	p := &fakePruner{err: errors.New("db down")}
	j := NewScanRetentionJob(p, 30, 24)

	if got := j.RunOnce(context.Background()); got != 0 {
		t.Errorf("RunOnce() = %d, want 0 on error", got)
	}
}

func TestScanRetentionJob_RunOnce_Disabled(t *testing.T) {
	p := &fakePruner{}
	j := NewScanRetentionJob(p, 0, 24)

	j.RunOnce(context.Background())
	if p.callCount() != 0 {
		t.Errorf("pruner called %d times while disabled", p.callCount())
	}
}

// ---------------------------------------------------------------------------
// Start / Stop
// ---------------------------------------------------------------------------

func TestScanRetentionJob_Start_RunsImmediatelyAndStops(t *testing.T) {
	p := &fakePruner{}
	j := NewScanRetentionJob(p, 30, 24)

	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for p.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.callCount() != 1 {
		t.Fatalf("pruner calls = %d, want 1 immediate run", p.callCount())
	}

	j.Stop()
	j.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

func TestScanRetentionJob_Start_ContextCancel(t *testing.T) {
	j := NewScanRetentionJob(&fakePruner{}, 30, 24)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after context cancel")
	}
}

func TestScanRetentionJob_Start_DisabledReturns(t *testing.T) {
	j := NewScanRetentionJob(&fakePruner{}, 0, 24)

	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start() should return immediately when disabled")
	}
}
