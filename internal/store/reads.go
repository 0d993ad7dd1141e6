package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/nodewatch/storj-node-monitor/internal/model"
)

// StorageSnapshotsSince returns storage_snapshots rows for nodeName with
// timestamp >= since, ordered oldest first — the input to the 1/7/30-day
// storage forecast.
func (s *Store) StorageSnapshotsSince(ctx context.Context, nodeName string, since time.Time) ([]model.StorageSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, node_name, total_bytes, used_bytes, available_bytes, trash_bytes,
		       used_percent, trash_percent, available_percent
		FROM storage_snapshots
		WHERE node_name = ? AND timestamp >= ?
		ORDER BY timestamp ASC`, nodeName, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, classifyErr("select storage_snapshots", err)
	}
	defer rows.Close()

	var out []model.StorageSnapshot
	for rows.Next() {
		var snap model.StorageSnapshot
		var ts string
		var total, used, avail, trash *int64
		var usedPct, trashPct, availPct *float64
		if err := rows.Scan(&ts, &snap.NodeName, &total, &used, &avail, &trash, &usedPct, &trashPct, &availPct); err != nil {
			return nil, err
		}
		snap.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if total != nil {
			snap.TotalBytes = *total
		}
		snap.UsedBytes, snap.AvailableBytes, snap.TrashBytes = used, avail, trash
		snap.UsedPercent, snap.TrashPercent, snap.AvailablePercent = usedPct, trashPct, availPct
		out = append(out, snap)
	}
	return out, rows.Err()
}

// LatestReputation returns the most recent reputation sample per satellite
// for nodeName.
func (s *Store) LatestReputation(ctx context.Context, nodeName string) ([]model.ReputationSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.timestamp, r.node_name, r.satellite, r.audit_score, r.suspension_score,
		       r.online_score, r.audit_success_count, r.audit_total_count, r.is_disqualified, r.is_suspended
		FROM reputation_history r
		INNER JOIN (
			SELECT satellite, MAX(timestamp) AS max_ts
			FROM reputation_history WHERE node_name = ?
			GROUP BY satellite
		) latest ON latest.satellite = r.satellite AND latest.max_ts = r.timestamp
		WHERE r.node_name = ?`, nodeName, nodeName)
	if err != nil {
		return nil, classifyErr("select reputation_history", err)
	}
	defer rows.Close()

	var out []model.ReputationSample
	for rows.Next() {
		var r model.ReputationSample
		var ts string
		var disq, susp int
		if err := rows.Scan(&ts, &r.NodeName, &r.Satellite, &r.AuditScore, &r.SuspensionScore,
			&r.OnlineScore, &r.AuditSuccessCount, &r.AuditTotalCount, &disq, &susp); err != nil {
			return nil, err
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		r.IsDisqualified, r.IsSuspended = disq != 0, susp != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActiveAlerts returns unresolved alerts for nodeName (or every node when
// nodeName is empty), newest first.
func (s *Store) ActiveAlerts(ctx context.Context, nodeName string) ([]model.Alert, error) {
	query := `SELECT id, timestamp, node_name, alert_type, severity, title, message,
	                  acknowledged, acknowledged_at, resolved, resolved_at, metadata_json
	          FROM alerts WHERE resolved = 0`
	args := []interface{}{}
	if nodeName != "" {
		query += " AND node_name = ?"
		args = append(args, nodeName)
	}
	query += " ORDER BY timestamp DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyErr("select alerts", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var ts string
		var ackAt, resAt *string
		var ack, res int
		var metaJSON *string
		if err := rows.Scan(&a.ID, &ts, &a.NodeName, &a.AlertType, &a.Severity, &a.Title, &a.Message,
			&ack, &ackAt, &res, &resAt, &metaJSON); err != nil {
			return nil, err
		}
		a.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		a.Acknowledged, a.Resolved = ack != 0, res != 0
		if ackAt != nil {
			t, _ := time.Parse(time.RFC3339Nano, *ackAt)
			a.AcknowledgedAt = &t
		}
		if resAt != nil {
			t, _ := time.Parse(time.RFC3339Nano, *resAt)
			a.ResolvedAt = &t
		}
		if metaJSON != nil {
			_ = json.Unmarshal([]byte(*metaJSON), &a.Metadata)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// HourlyStatsSince returns hourly_stats rows for nodeName from since onward,
// oldest first — the input to historical/aggregated performance views.
func (s *Store) HourlyStatsSince(ctx context.Context, nodeName string, since time.Time) ([]model.HourlyStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hour_timestamp, node_name, dl_success, dl_fail, ul_success, ul_fail,
		       audit_success, audit_fail, total_download_size, total_upload_size
		FROM hourly_stats
		WHERE node_name = ? AND hour_timestamp >= ?
		ORDER BY hour_timestamp ASC`, nodeName, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, classifyErr("select hourly_stats", err)
	}
	defer rows.Close()

	var out []model.HourlyStat
	for rows.Next() {
		var h model.HourlyStat
		var ts string
		if err := rows.Scan(&ts, &h.NodeName, &h.DlSuccess, &h.DlFail, &h.UlSuccess, &h.UlFail,
			&h.AuditSuccess, &h.AuditFail, &h.TotalDownloadSize, &h.TotalUploadSize); err != nil {
			return nil, err
		}
		h.HourTimestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, h)
	}
	return out, rows.Err()
}

// EarningsForPeriod returns every satellite's earnings_estimates row for
// (nodeName, period).
func (s *Store) EarningsForPeriod(ctx context.Context, nodeName, period string) ([]model.EarningsEstimate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_name, satellite, period, egress_gross, egress_net, storage_gross, storage_net,
		       repair_gross, repair_net, audit_gross, audit_net, total_earnings_gross, total_earnings_net,
		       held_amount, node_age_months, held_percentage, is_finalized, timestamp
		FROM earnings_estimates WHERE node_name = ? AND period = ?`, nodeName, period)
	if err != nil {
		return nil, classifyErr("select earnings_estimates", err)
	}
	defer rows.Close()

	var out []model.EarningsEstimate
	for rows.Next() {
		var e model.EarningsEstimate
		var ts string
		var finalized int
		if err := rows.Scan(&e.NodeName, &e.Satellite, &e.Period, &e.EgressGross, &e.EgressNet,
			&e.StorageGross, &e.StorageNet, &e.RepairGross, &e.RepairNet, &e.AuditGross, &e.AuditNet,
			&e.TotalEarningsGross, &e.TotalEarningsNet, &e.HeldAmount, &e.NodeAgeMonths,
			&e.HeldPercentage, &finalized, &ts); err != nil {
			return nil, err
		}
		e.IsFinalized = finalized != 0
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CompactionHistorySince returns hashstore_compaction_history rows for
// nodeName at or after since, newest first — the input to the
// get_hashstore_stats frame.
func (s *Store) CompactionHistorySince(ctx context.Context, nodeName string, since time.Time) ([]model.CompactionRecord, error) {
	query := `SELECT node_name, satellite, store, last_run_iso, duration_ms, data_reclaimed_bytes,
	                 data_rewritten_bytes, table_load, trash_percent
	          FROM hashstore_compaction_history
	          WHERE last_run_iso >= ?`
	args := []interface{}{since.UTC().Format(time.RFC3339Nano)}
	if nodeName != "" {
		query += " AND node_name = ?"
		args = append(args, nodeName)
	}
	query += " ORDER BY last_run_iso DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyErr("select hashstore_compaction_history", err)
	}
	defer rows.Close()

	var out []model.CompactionRecord
	for rows.Next() {
		var r model.CompactionRecord
		var durationMs int64
		if err := rows.Scan(&r.NodeName, &r.Satellite, &r.Store, &r.LastRunISO, &durationMs,
			&r.DataReclaimedBytes, &r.DataRewrittenBytes, &r.TableLoad, &r.TrashPercent); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// EarningsHistory returns earnings_estimates rows for nodeName (optionally
// restricted to one satellite) whose period covers the last `days`,
// newest-period first — the input to the get_earnings_history frame.
func (s *Store) EarningsHistory(ctx context.Context, nodeName, satellite string, days int) ([]model.EarningsEstimate, error) {
	since := time.Now().AddDate(0, 0, -days)
	minPeriod := since.Format("2006-01")

	query := `SELECT node_name, satellite, period, egress_gross, egress_net, storage_gross, storage_net,
	                 repair_gross, repair_net, audit_gross, audit_net, total_earnings_gross, total_earnings_net,
	                 held_amount, node_age_months, held_percentage, is_finalized, timestamp
	          FROM earnings_estimates WHERE node_name = ? AND period >= ?`
	args := []interface{}{nodeName, minPeriod}
	if satellite != "" {
		query += " AND satellite = ?"
		args = append(args, satellite)
	}
	query += " ORDER BY period DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyErr("select earnings_estimates", err)
	}
	defer rows.Close()

	var out []model.EarningsEstimate
	for rows.Next() {
		var e model.EarningsEstimate
		var ts string
		var finalized int
		if err := rows.Scan(&e.NodeName, &e.Satellite, &e.Period, &e.EgressGross, &e.EgressNet,
			&e.StorageGross, &e.StorageNet, &e.RepairGross, &e.RepairNet, &e.AuditGross, &e.AuditNet,
			&e.TotalEarningsGross, &e.TotalEarningsNet, &e.HeldAmount, &e.NodeAgeMonths,
			&e.HeldPercentage, &finalized, &ts); err != nil {
			return nil, err
		}
		e.IsFinalized = finalized != 0
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Baseline reads the cached baseline row for (node, metric, window), if any.
func (s *Store) Baseline(ctx context.Context, nodeName, metric string, windowHours int) (*model.Baseline, error) {
	var b model.Baseline
	var lastUpdated string
	err := s.db.QueryRowContext(ctx, `
		SELECT node_name, metric_name, window_hours, mean_value, std_dev, min_value, max_value,
		       sample_count, last_updated
		FROM analytics_baselines WHERE node_name = ? AND metric_name = ? AND window_hours = ?`,
		nodeName, metric, windowHours,
	).Scan(&b.NodeName, &b.MetricName, &b.WindowHours, &b.Mean, &b.StdDev, &b.Min, &b.Max,
		&b.SampleCount, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classifyErr("select analytics_baselines", err)
	}
	b.LastUpdated, _ = time.Parse(time.RFC3339Nano, lastUpdated)
	return &b, nil
}
