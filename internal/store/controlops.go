package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/nodewatch/storj-node-monitor/internal/model"
)

// controlOp is one upsert/update the writer applies inside its own
// transaction, distinct from the high-volume TrafficEvent batch.
type controlOp interface {
	apply(tx *sql.Tx) error
}

type upsertReputationOp struct{ sample model.ReputationSample }

func (op upsertReputationOp) apply(tx *sql.Tx) error {
	_, err := tx.Exec(`
		INSERT INTO reputation_history
			(timestamp, node_name, satellite, audit_score, suspension_score, online_score,
			 audit_success_count, audit_total_count, is_disqualified, is_suspended)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.sample.Timestamp.UTC().Format(time.RFC3339Nano), op.sample.NodeName, op.sample.Satellite,
		op.sample.AuditScore, op.sample.SuspensionScore, op.sample.OnlineScore,
		op.sample.AuditSuccessCount, op.sample.AuditTotalCount,
		boolToInt(op.sample.IsDisqualified), boolToInt(op.sample.IsSuspended))
	return err
}

type insertStorageSnapshotOp struct{ snap model.StorageSnapshot }

func (op insertStorageSnapshotOp) apply(tx *sql.Tx) error {
	_, err := tx.Exec(`
		INSERT INTO storage_snapshots
			(timestamp, node_name, total_bytes, used_bytes, available_bytes, trash_bytes,
			 used_percent, trash_percent, available_percent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.snap.Timestamp.UTC().Format(time.RFC3339Nano), op.snap.NodeName,
		nullIfZero(op.snap.TotalBytes), int64Ptr(op.snap.UsedBytes), int64Ptr(op.snap.AvailableBytes),
		int64Ptr(op.snap.TrashBytes), floatPtr(op.snap.UsedPercent), floatPtr(op.snap.TrashPercent),
		floatPtr(op.snap.AvailablePercent))
	return err
}

type upsertEarningsOp struct{ est model.EarningsEstimate }

func (op upsertEarningsOp) apply(tx *sql.Tx) error {
	_, err := tx.Exec(`
		INSERT INTO earnings_estimates
			(node_name, satellite, period, egress_gross, egress_net, storage_gross, storage_net,
			 repair_gross, repair_net, audit_gross, audit_net, total_earnings_gross, total_earnings_net,
			 held_amount, node_age_months, held_percentage, is_finalized, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_name, satellite, period) DO UPDATE SET
			egress_gross=excluded.egress_gross, egress_net=excluded.egress_net,
			storage_gross=excluded.storage_gross, storage_net=excluded.storage_net,
			repair_gross=excluded.repair_gross, repair_net=excluded.repair_net,
			audit_gross=excluded.audit_gross, audit_net=excluded.audit_net,
			total_earnings_gross=excluded.total_earnings_gross, total_earnings_net=excluded.total_earnings_net,
			held_amount=excluded.held_amount, node_age_months=excluded.node_age_months,
			held_percentage=excluded.held_percentage, is_finalized=excluded.is_finalized,
			timestamp=excluded.timestamp`,
		op.est.NodeName, op.est.Satellite, op.est.Period, op.est.EgressGross, op.est.EgressNet,
		op.est.StorageGross, op.est.StorageNet, op.est.RepairGross, op.est.RepairNet,
		op.est.AuditGross, op.est.AuditNet, op.est.TotalEarningsGross, op.est.TotalEarningsNet,
		op.est.HeldAmount, op.est.NodeAgeMonths, op.est.HeldPercentage, boolToInt(op.est.IsFinalized),
		op.est.Timestamp.UTC().Format(time.RFC3339Nano))
	return err
}

type upsertCompactionOp struct{ rec model.CompactionRecord }

func (op upsertCompactionOp) apply(tx *sql.Tx) error {
	_, err := tx.Exec(`
		INSERT INTO hashstore_compaction_history
			(node_name, satellite, store, last_run_iso, duration_ms, data_reclaimed_bytes,
			 data_rewritten_bytes, table_load, trash_percent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_name, satellite, store, last_run_iso) DO UPDATE SET
			duration_ms=excluded.duration_ms, data_reclaimed_bytes=excluded.data_reclaimed_bytes,
			data_rewritten_bytes=excluded.data_rewritten_bytes, table_load=excluded.table_load,
			trash_percent=excluded.trash_percent`,
		op.rec.NodeName, op.rec.Satellite, op.rec.Store, op.rec.LastRunISO,
		op.rec.Duration.Milliseconds(), op.rec.DataReclaimedBytes, op.rec.DataRewrittenBytes,
		op.rec.TableLoad, op.rec.TrashPercent)
	return err
}

type insertAlertOp struct {
	alert  model.Alert
	result *int64 // receives the inserted row ID, if non-nil
}

func (op insertAlertOp) apply(tx *sql.Tx) error {
	meta, err := json.Marshal(op.alert.Metadata)
	if err != nil {
		return err
	}
	res, err := tx.Exec(`
		INSERT INTO alerts (timestamp, node_name, alert_type, severity, title, message, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		op.alert.Timestamp.UTC().Format(time.RFC3339Nano), op.alert.NodeName, op.alert.AlertType,
		op.alert.Severity, op.alert.Title, op.alert.Message, string(meta))
	if err != nil {
		return err
	}
	if op.result != nil {
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		*op.result = id
	}
	return nil
}

type insertInsightOp struct{ insight model.Insight }

func (op insertInsightOp) apply(tx *sql.Tx) error {
	meta, err := json.Marshal(op.insight.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO insights
			(timestamp, node_name, insight_type, severity, title, description, category, confidence, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.insight.Timestamp.UTC().Format(time.RFC3339Nano), op.insight.NodeName, op.insight.InsightType,
		op.insight.Severity, op.insight.Title, op.insight.Description, op.insight.Category,
		op.insight.Confidence, string(meta))
	return err
}

type upsertBaselineOp struct{ b model.Baseline }

func (op upsertBaselineOp) apply(tx *sql.Tx) error {
	_, err := tx.Exec(`
		INSERT INTO analytics_baselines
			(node_name, metric_name, window_hours, mean_value, std_dev, min_value, max_value,
			 sample_count, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_name, metric_name, window_hours) DO UPDATE SET
			mean_value=excluded.mean_value, std_dev=excluded.std_dev, min_value=excluded.min_value,
			max_value=excluded.max_value, sample_count=excluded.sample_count,
			last_updated=excluded.last_updated`,
		op.b.NodeName, op.b.MetricName, op.b.WindowHours, op.b.Mean, op.b.StdDev,
		op.b.Min, op.b.Max, op.b.SampleCount, op.b.LastUpdated.UTC().Format(time.RFC3339Nano))
	return err
}

type acknowledgeAlertOp struct {
	alertID int64
	at      time.Time
}

func (op acknowledgeAlertOp) apply(tx *sql.Tx) error {
	_, err := tx.Exec(`UPDATE alerts SET acknowledged=1, acknowledged_at=? WHERE id=?`,
		op.at.UTC().Format(time.RFC3339Nano), op.alertID)
	return err
}

type resolveAlertOp struct {
	alertID int64
	at      time.Time
}

func (op resolveAlertOp) apply(tx *sql.Tx) error {
	_, err := tx.Exec(`UPDATE alerts SET resolved=1, resolved_at=? WHERE id=?`,
		op.at.UTC().Format(time.RFC3339Nano), op.alertID)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfZero(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func int64Ptr(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
