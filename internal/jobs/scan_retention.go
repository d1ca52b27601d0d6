// scan_retention.go implements the ScanRetentionJob background job, which
// periodically deletes scans older than tracking.retention_days.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/qr-tracker/qr-tracker/internal/telemetry"
)

// ScanPruner deletes scans recorded before cutoff and returns how many were removed
type ScanPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ScanRetentionJob prunes old scans on a fixed interval
type ScanRetentionJob struct {
	pruner    ScanPruner
	retention time.Duration
	interval  time.Duration
	stopChan  chan struct{}
	stopOnce  sync.Once
	now       func() time.Time
}

// NewScanRetentionJob creates the job. intervalHours <= 0 defaults to daily.
func NewScanRetentionJob(pruner ScanPruner, retentionDays, intervalHours int) *ScanRetentionJob {
	if intervalHours <= 0 {
		intervalHours = 24
	}

	return &ScanRetentionJob{
		pruner:    pruner,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  time.Duration(intervalHours) * time.Hour,
		stopChan:  make(chan struct{}),
		now:       time.Now,
	}
}

// Enabled reports whether a retention window is configured
func (j *ScanRetentionJob) Enabled() bool {
	return j.retention > 0 && j.pruner != nil
}

// Start runs one pass immediately, then one per interval until Stop or ctx is done
func (j *ScanRetentionJob) Start(ctx context.Context) {
	if !j.Enabled() {
		slog.Info("scan retention disabled")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("scan retention job started", "retention", j.retention, "interval", j.interval)

	j.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx)
		case <-j.stopChan:
			slog.Info("scan retention job stopped")
			return
		case <-ctx.Done():
			slog.Info("scan retention job context cancelled")
			return
		}
	}
}

// Stop stops the job. Safe to call more than once.
func (j *ScanRetentionJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

// RunOnce deletes every scan older than the retention window
func (j *ScanRetentionJob) RunOnce(ctx context.Context) int64 {
	if !j.Enabled() {
		return 0
	}

	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("scan retention run failed", "cutoff", cutoff, "error", err)
		return 0
	}

	telemetry.ScansPrunedTotal.Add(float64(deleted))
	if deleted > 0 {
		slog.Info("scan retention run completed", "deleted", deleted, "cutoff", cutoff)
	} else {
		slog.Debug("scan retention run completed: nothing to prune", "cutoff", cutoff)
	}
	return deleted
}
