package store

import (
	"context"
	"database/sql"
	"time"
)

// hourlyAggregateSQL upserts hourly_stats rows for every (hour, node) bucket
// in [since, until) using a single GROUP BY over events, rather than one
// query per hour — the same shape whether aggregating the current hour or
// backfilling months of history.
const hourlyAggregateSQL = `
INSERT INTO hourly_stats
	(hour_timestamp, node_name, dl_success, dl_fail, ul_success, ul_fail,
	 audit_success, audit_fail, total_download_size, total_upload_size)
SELECT
	strftime('%Y-%m-%dT%H:00:00Z', timestamp) AS hour_bucket,
	node_name,
	SUM(CASE WHEN action = 'GET' AND status = 'success' THEN 1 ELSE 0 END),
	SUM(CASE WHEN action = 'GET' AND status = 'failed' THEN 1 ELSE 0 END),
	SUM(CASE WHEN action = 'PUT' AND status = 'success' THEN 1 ELSE 0 END),
	SUM(CASE WHEN action = 'PUT' AND status = 'failed' THEN 1 ELSE 0 END),
	SUM(CASE WHEN action = 'GET_AUDIT' AND status = 'success' THEN 1 ELSE 0 END),
	SUM(CASE WHEN action = 'GET_AUDIT' AND status = 'failed' THEN 1 ELSE 0 END),
	SUM(CASE WHEN action = 'GET' AND status = 'success' THEN size ELSE 0 END),
	SUM(CASE WHEN action = 'PUT' AND status = 'success' THEN size ELSE 0 END)
FROM events
WHERE timestamp >= ? AND timestamp < ?
GROUP BY hour_bucket, node_name
ON CONFLICT(hour_timestamp, node_name) DO UPDATE SET
	dl_success = excluded.dl_success,
	dl_fail = excluded.dl_fail,
	ul_success = excluded.ul_success,
	ul_fail = excluded.ul_fail,
	audit_success = excluded.audit_success,
	audit_fail = excluded.audit_fail,
	total_download_size = excluded.total_download_size,
	total_upload_size = excluded.total_upload_size
`

// AggregateHour upserts hourly_stats for the bucket containing at.
func (w *Writer) AggregateHour(ctx context.Context, at time.Time) error {
	hourStart := at.UTC().Truncate(time.Hour)
	hourEnd := hourStart.Add(time.Hour)
	return w.runWithRetrySQL(ctx, hourlyAggregateSQL,
		hourStart.Format(time.RFC3339Nano), hourEnd.Format(time.RFC3339Nano))
}

// BackfillHourly aggregates every hour bucket from the last stored bucket
// (exclusive) through now (exclusive of the current, still-open hour), in
// one query. When hourly_stats is empty, it backfills from the earliest
// event instead.
func (w *Writer) BackfillHourly(ctx context.Context, now time.Time) error {
	since, err := w.lastHourlyBucketOrEarliestEvent(ctx)
	if err != nil {
		return err
	}
	if since.IsZero() {
		return nil // no events at all yet
	}

	until := now.UTC().Truncate(time.Hour)
	if !until.After(since) {
		return nil
	}

	return w.runWithRetrySQL(ctx, hourlyAggregateSQL,
		since.Format(time.RFC3339Nano), until.Format(time.RFC3339Nano))
}

func (w *Writer) lastHourlyBucketOrEarliestEvent(ctx context.Context) (time.Time, error) {
	var lastBucket sql.NullString
	err := w.store.db.QueryRowContext(ctx, `SELECT MAX(hour_timestamp) FROM hourly_stats`).Scan(&lastBucket)
	if err != nil {
		return time.Time{}, classifyErr("select max hourly bucket", err)
	}
	if lastBucket.Valid && lastBucket.String != "" {
		t, err := time.Parse(time.RFC3339Nano, lastBucket.String)
		if err != nil {
			return time.Time{}, err
		}
		return t.Add(time.Hour), nil
	}

	var earliest sql.NullString
	err = w.store.db.QueryRowContext(ctx, `SELECT MIN(timestamp) FROM events`).Scan(&earliest)
	if err != nil {
		return time.Time{}, classifyErr("select min event timestamp", err)
	}
	if !earliest.Valid || earliest.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, earliest.String)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(time.Hour), nil
}
