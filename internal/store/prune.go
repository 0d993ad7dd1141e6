package store

import (
	"context"
	"time"
)

// RetentionConfig names per-table retention windows.
type RetentionConfig struct {
	Events      time.Duration
	Compaction  time.Duration
	Alerts      time.Duration
	Insights    time.Duration
	Baselines   time.Duration
	Earnings    time.Duration
}

// Prune deletes rows older than the configured retention window for each
// table, one DELETE per table inside its own transaction so readers are
// never blocked beyond a single statement's duration.
func (w *Writer) Prune(ctx context.Context, cfg RetentionConfig) error {
	return w.pruneTables(ctx, time.Now().UTC(), cfg)
}

func (w *Writer) pruneTables(ctx context.Context, now time.Time, cfg RetentionConfig) error {
	tables := []struct {
		name   string
		column string
		window time.Duration
	}{
		{"events", "timestamp", cfg.Events},
		{"hashstore_compaction_history", "last_run_iso", cfg.Compaction},
		{"alerts", "timestamp", cfg.Alerts},
		{"insights", "timestamp", cfg.Insights},
	}

	for _, t := range tables {
		cutoff := now.Add(-t.window).Format(time.RFC3339Nano)
		table, column := t.name, t.column
		if err := w.runWithRetrySQL(ctx, "DELETE FROM "+table+" WHERE "+column+" < ?", cutoff); err != nil {
			return err
		}
	}

	cutoffBaselines := now.Add(-cfg.Baselines).Format(time.RFC3339Nano)
	if err := w.runWithRetrySQL(ctx, "DELETE FROM analytics_baselines WHERE last_updated < ?", cutoffBaselines); err != nil {
		return err
	}

	cutoffEarnings := now.Add(-cfg.Earnings).Format(time.RFC3339Nano)
	if err := w.runWithRetrySQL(ctx, "DELETE FROM earnings_estimates WHERE timestamp < ?", cutoffEarnings); err != nil {
		return err
	}

	return nil
}
