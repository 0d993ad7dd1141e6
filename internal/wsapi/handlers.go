package wsapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nodewatch/storj-node-monitor/internal/analytics"
	"github.com/nodewatch/storj-node-monitor/internal/broadcast"
	"github.com/nodewatch/storj-node-monitor/internal/model"
)

const requestTimeout = 5 * time.Second

type nodeRequest struct {
	NodeName string `json:"node_name"`
}

func (s *Server) handleHistoricalPerformance(c *broadcast.Client, payload json.RawMessage) {
	var req struct {
		nodeRequest
		Hours int `json:"hours"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.NodeName == "" {
		return
	}
	if req.Hours <= 0 {
		req.Hours = 24
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	rows, err := s.store.HourlyStatsSince(ctx, req.NodeName, time.Now().Add(-time.Duration(req.Hours)*time.Hour))
	if err != nil {
		s.logErr("historical_performance_data", err)
		return
	}
	s.send(c, "historical_performance_data", map[string]interface{}{"node_name": req.NodeName, "hours": req.Hours, "series": rows})
}

func (s *Server) handleAggregatedPerformance(c *broadcast.Client, payload json.RawMessage) {
	var req struct {
		Nodes []string `json:"nodes"`
		Hours int      `json:"hours"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	if req.Hours <= 0 {
		req.Hours = 24
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	since := time.Now().Add(-time.Duration(req.Hours) * time.Hour)

	agg := map[string]int64{}
	for _, n := range req.Nodes {
		rows, err := s.store.HourlyStatsSince(ctx, n, since)
		if err != nil {
			s.logErr("aggregated_performance_data", err)
			continue
		}
		for _, r := range rows {
			agg["dl_success"] += r.DlSuccess
			agg["dl_fail"] += r.DlFail
			agg["ul_success"] += r.UlSuccess
			agg["ul_fail"] += r.UlFail
			agg["audit_success"] += r.AuditSuccess
			agg["audit_fail"] += r.AuditFail
		}
	}
	s.send(c, "aggregated_performance_data", map[string]interface{}{"nodes": req.Nodes, "hours": req.Hours, "totals": agg})
}

func (s *Server) handleReputationData(c *broadcast.Client, payload json.RawMessage) {
	var req nodeRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.NodeName == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	rows, err := s.store.LatestReputation(ctx, req.NodeName)
	if err != nil {
		s.logErr("reputation_data", err)
		return
	}
	s.send(c, "reputation_data", map[string]interface{}{"node_name": req.NodeName, "satellites": rows})
}

func (s *Server) handleStorageData(c *broadcast.Client, payload json.RawMessage) {
	var req nodeRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.NodeName == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	snapshots, err := s.store.StorageSnapshotsSince(ctx, req.NodeName, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		s.logErr("storage_data", err)
		return
	}
	if len(snapshots) == 0 {
		s.send(c, "storage_data", map[string]interface{}{"node_name": req.NodeName})
		return
	}

	latest := snapshots[len(snapshots)-1]
	forecast1 := analytics.ForecastStorage(snapshots, 1)
	forecast7 := analytics.ForecastStorage(snapshots, 7)
	forecast30 := analytics.ForecastStorage(snapshots, 30)

	s.send(c, "storage_data", map[string]interface{}{
		"node_name": req.NodeName,
		"latest":    latest,
		"forecast": map[string]interface{}{
			"1d":  forecast1,
			"7d":  forecast7,
			"30d": forecast30,
		},
	})
}

func (s *Server) handleStorageHistory(c *broadcast.Client, payload json.RawMessage) {
	var req struct {
		nodeRequest
		Days int `json:"days"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.NodeName == "" {
		return
	}
	if req.Days <= 0 {
		req.Days = 30
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	rows, err := s.store.StorageSnapshotsSince(ctx, req.NodeName, time.Now().Add(-time.Duration(req.Days)*24*time.Hour))
	if err != nil {
		s.logErr("storage_history", err)
		return
	}
	s.send(c, "storage_history", map[string]interface{}{"node_name": req.NodeName, "days": req.Days, "snapshots": rows})
}

func (s *Server) handleActiveAlerts(c *broadcast.Client, payload json.RawMessage) {
	var req nodeRequest
	_ = json.Unmarshal(payload, &req) // node_name optional: empty means every node

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	rows, err := s.store.ActiveAlerts(ctx, req.NodeName)
	if err != nil {
		s.logErr("active_alerts", err)
		return
	}
	s.send(c, "active_alerts", map[string]interface{}{"alerts": rows})
}

func (s *Server) handleAcknowledgeAlert(c *broadcast.Client, payload json.RawMessage) {
	var req struct {
		AlertID int64 `json:"alert_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.AlertID == 0 {
		return
	}
	s.alerts.Acknowledge(req.AlertID)
	s.send(c, "alert_acknowledged", map[string]interface{}{"alert_id": req.AlertID})
}

func (s *Server) handleEarningsData(c *broadcast.Client, payload json.RawMessage) {
	var req struct {
		nodeRequest
		Period string `json:"period"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.NodeName == "" {
		return
	}
	if req.Period == "" {
		req.Period = time.Now().UTC().Format("2006-01")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	rows, err := s.store.EarningsForPeriod(ctx, req.NodeName, req.Period)
	if err != nil {
		s.logErr("earnings_data", err)
		return
	}
	s.send(c, "earnings_data", map[string]interface{}{"node_name": req.NodeName, "period": req.Period, "satellites": rows})
}

func (s *Server) handleAlertSummary(c *broadcast.Client, payload json.RawMessage) {
	var req nodeRequest
	_ = json.Unmarshal(payload, &req)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	rows, err := s.store.ActiveAlerts(ctx, req.NodeName)
	if err != nil {
		s.logErr("alert_summary", err)
		return
	}
	counts := map[string]int{}
	for _, a := range rows {
		counts[string(a.Severity)]++
	}
	s.send(c, "alert_summary", map[string]interface{}{"node_name": req.NodeName, "counts": counts, "total": len(rows)})
}

func (s *Server) handleInsights(c *broadcast.Client, payload json.RawMessage) {
	var req nodeRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.NodeName == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	reputation, err := s.store.LatestReputation(ctx, req.NodeName)
	if err != nil {
		s.logErr("insights_data", err)
		return
	}
	var insights []map[string]interface{}
	for _, r := range reputation {
		score := analytics.ReputationHealthScore(r.AuditScore, r.SuspensionScore, r.OnlineScore)
		insights = append(insights, map[string]interface{}{"satellite": r.Satellite, "health_score": score})
	}
	s.send(c, "insights_data", map[string]interface{}{"node_name": req.NodeName, "insights": insights})
}

func (s *Server) handleComparisonData(c *broadcast.Client, payload json.RawMessage) {
	var req struct {
		Nodes  []string `json:"nodes"`
		Period string   `json:"period"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || len(req.Nodes) == 0 {
		return
	}
	if req.Period == "" {
		req.Period = time.Now().UTC().Format("2006-01")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	comparison := make(map[string]float64, len(req.Nodes))
	for _, n := range req.Nodes {
		rows, err := s.store.EarningsForPeriod(ctx, n, req.Period)
		if err != nil {
			s.logErr("comparison_data", err)
			continue
		}
		var total float64
		for _, e := range rows {
			total += e.TotalEarningsNet
		}
		comparison[n] = total
	}
	s.send(c, "comparison_data", map[string]interface{}{"period": req.Period, "earnings_net": comparison})
}

// handleLatencyStats answers get_latency_stats {node_name} with p50/p90/p99
// durations over the node's in-memory window (STATS_WINDOW_MINUTES). The
// request names a single node, not a view, and an "hours" field is not read.
func (s *Server) handleLatencyStats(c *broadcast.Client, payload json.RawMessage) {
	var req nodeRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.NodeName == "" {
		return
	}
	if s.registry == nil {
		s.send(c, "latency_stats", map[string]interface{}{"node_name": req.NodeName})
		return
	}
	state, ok := s.registry.Get(req.NodeName)
	if !ok {
		s.send(c, "latency_stats", map[string]interface{}{"node_name": req.NodeName})
		return
	}

	durations := durationsMs(state.Snapshot())
	p50, _ := analytics.Percentile(durations, 50)
	p90, _ := analytics.Percentile(durations, 90)
	p99, _ := analytics.Percentile(durations, 99)

	s.send(c, "latency_stats", map[string]interface{}{
		"node_name": req.NodeName,
		"samples":   len(durations),
		"p50_ms":    p50, "p90_ms": p90, "p99_ms": p99,
	})
}

// handleLatencyHistogram answers get_latency_histogram {node_name,
// bucket_size_ms}, bucketing the node's in-memory duration samples into
// fixed-width millisecond buckets. The request names a single node, not a
// view, and an "hours" field is not read.
func (s *Server) handleLatencyHistogram(c *broadcast.Client, payload json.RawMessage) {
	var req struct {
		nodeRequest
		BucketSizeMs int `json:"bucket_size_ms"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.NodeName == "" {
		return
	}
	if req.BucketSizeMs <= 0 {
		req.BucketSizeMs = 100
	}
	if s.registry == nil {
		s.send(c, "latency_histogram", map[string]interface{}{"node_name": req.NodeName, "buckets": []int{}})
		return
	}
	state, ok := s.registry.Get(req.NodeName)
	if !ok {
		s.send(c, "latency_histogram", map[string]interface{}{"node_name": req.NodeName, "buckets": []int{}})
		return
	}

	durations := durationsMs(state.Snapshot())
	buckets := map[int]int{}
	for _, d := range durations {
		idx := int(d) / req.BucketSizeMs
		buckets[idx]++
	}
	s.send(c, "latency_histogram", map[string]interface{}{
		"node_name": req.NodeName, "bucket_size_ms": req.BucketSizeMs, "buckets": buckets,
	})
}

// durationsMs extracts the explicit per-event durations recorded on
// (absent for events whose source line carried no elapsed time).
func durationsMs(events []model.TrafficEvent) []float64 {
	out := make([]float64, 0, len(events))
	for _, e := range events {
		if e.DurationMs != nil {
			out = append(out, float64(*e.DurationMs))
		}
	}
	return out
}

// handleHashstoreStats answers get_hashstore_stats {filters}, returning
// recent compaction records. "filters" currently recognizes node_name and
// days; an absent node_name returns every node's history.
func (s *Server) handleHashstoreStats(c *broadcast.Client, payload json.RawMessage) {
	var req struct {
		nodeRequest
		Days int `json:"days"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	if req.Days <= 0 {
		req.Days = 30
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	rows, err := s.store.CompactionHistorySince(ctx, req.NodeName, time.Now().Add(-time.Duration(req.Days)*24*time.Hour))
	if err != nil {
		s.logErr("hashstore_stats_data", err)
		return
	}
	s.send(c, "hashstore_stats_data", map[string]interface{}{"node_name": req.NodeName, "days": req.Days, "compactions": rows})
}

// handleEarningsHistory answers get_earnings_history {node_name, satellite?,
// days}.
func (s *Server) handleEarningsHistory(c *broadcast.Client, payload json.RawMessage) {
	var req struct {
		nodeRequest
		Satellite string `json:"satellite"`
		Days      int    `json:"days"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.NodeName == "" {
		return
	}
	if req.Days <= 0 {
		req.Days = 90
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	rows, err := s.store.EarningsHistory(ctx, req.NodeName, req.Satellite, req.Days)
	if err != nil {
		s.logErr("earnings_history", err)
		return
	}
	s.send(c, "earnings_history", map[string]interface{}{
		"node_name": req.NodeName, "satellite": req.Satellite, "days": req.Days, "estimates": rows,
	})
}

func (s *Server) logErr(context string, err error) {
	if s.log != nil {
		s.log.Warn(nil, "wsapi request failed", map[string]interface{}{"context": context, "error": err.Error()})
	}
}
