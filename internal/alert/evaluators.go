package alert

import (
	"fmt"

	"github.com/nodewatch/storj-node-monitor/internal/analytics"
	"github.com/nodewatch/storj-node-monitor/internal/model"
)

// EvaluateReputation checks one satellite's reputation sample against the
// threshold table, returning zero or more alert candidates.
func EvaluateReputation(nodeName string, r model.ReputationSample) []Candidate {
	var out []Candidate

	switch {
	case r.AuditScore < 70:
		out = append(out, reputationCandidate(nodeName, r.Satellite, "audit_score", model.SeverityCritical,
			"Audit score critical", fmt.Sprintf("audit score %.1f%% on satellite %s", r.AuditScore, r.Satellite)))
	case r.AuditScore < 85:
		out = append(out, reputationCandidate(nodeName, r.Satellite, "audit_score", model.SeverityWarning,
			"Audit score low", fmt.Sprintf("audit score %.1f%% on satellite %s", r.AuditScore, r.Satellite)))
	}

	if r.SuspensionScore < 60 {
		out = append(out, reputationCandidate(nodeName, r.Satellite, "suspension_score", model.SeverityCritical,
			"Suspension score critical", fmt.Sprintf("suspension score %.1f%% on satellite %s", r.SuspensionScore, r.Satellite)))
	}

	if r.OnlineScore < 95 {
		out = append(out, reputationCandidate(nodeName, r.Satellite, "online_score", model.SeverityWarning,
			"Online score low", fmt.Sprintf("online score %.1f%% on satellite %s", r.OnlineScore, r.Satellite)))
	}

	if r.IsDisqualified {
		out = append(out, reputationCandidate(nodeName, r.Satellite, "disqualified", model.SeverityCritical,
			"Node disqualified", fmt.Sprintf("node disqualified on satellite %s", r.Satellite)))
	}

	if r.IsSuspended {
		out = append(out, reputationCandidate(nodeName, r.Satellite, "suspended", model.SeverityCritical,
			"Node suspended", fmt.Sprintf("node suspended on satellite %s", r.Satellite)))
	}

	return out
}

func reputationCandidate(nodeName, satellite, metric string, sev model.Severity, title, message string) Candidate {
	return Candidate{
		NodeName: nodeName, AlertType: "reputation", Satellite: satellite, Metric: metric,
		Severity: sev, Title: title, Message: message,
		Metadata: map[string]interface{}{"satellite": satellite, "metric": metric},
	}
}

// EvaluateStorage checks a storage snapshot's usage percentage and, when
// available, the storage forecast's days-until-full against the threshold
// table.
func EvaluateStorage(nodeName string, usedPercent float64, forecast analytics.StorageForecast) []Candidate {
	var out []Candidate

	switch {
	case usedPercent >= 95:
		out = append(out, storageCandidate(nodeName, "storage_used", model.SeverityCritical,
			"Storage nearly full", fmt.Sprintf("disk usage at %.1f%%", usedPercent)))
	case usedPercent >= 80:
		out = append(out, storageCandidate(nodeName, "storage_used", model.SeverityWarning,
			"Storage usage high", fmt.Sprintf("disk usage at %.1f%%", usedPercent)))
	}

	if forecast.DaysUntilFull != nil {
		days := *forecast.DaysUntilFull
		switch {
		case days <= 7:
			out = append(out, storageCandidate(nodeName, "days_until_full", model.SeverityCritical,
				"Disk will be full soon", fmt.Sprintf("%.1f days until full at current growth rate", days)))
		case days <= 30:
			out = append(out, storageCandidate(nodeName, "days_until_full", model.SeverityWarning,
				"Disk filling up", fmt.Sprintf("%.1f days until full at current growth rate", days)))
		}
	}

	return out
}

func storageCandidate(nodeName, metric string, sev model.Severity, title, message string) Candidate {
	return Candidate{
		NodeName: nodeName, AlertType: "storage", Metric: metric,
		Severity: sev, Title: title, Message: message,
		Metadata: map[string]interface{}{"metric": metric},
	}
}

// EvaluateLatency checks a p99 latency reading (milliseconds) against the
// threshold table.
func EvaluateLatency(nodeName string, p99Ms float64) []Candidate {
	switch {
	case p99Ms >= 10000:
		return []Candidate{{
			NodeName: nodeName, AlertType: "latency", Metric: "p99", Severity: model.SeverityCritical,
			Title: "Latency critical", Message: fmt.Sprintf("p99 latency %.0fms", p99Ms),
			Metadata: map[string]interface{}{"metric": "p99", "value_ms": p99Ms},
		}}
	case p99Ms >= 5000:
		return []Candidate{{
			NodeName: nodeName, AlertType: "latency", Metric: "p99", Severity: model.SeverityWarning,
			Title: "Latency elevated", Message: fmt.Sprintf("p99 latency %.0fms", p99Ms),
			Metadata: map[string]interface{}{"metric": "p99", "value_ms": p99Ms},
		}}
	default:
		return nil
	}
}

// EvaluateAnomaly turns a z-score anomaly result into an alert candidate for
// the given metric.
func EvaluateAnomaly(nodeName, metric string, a analytics.Anomaly) Candidate {
	return Candidate{
		NodeName: nodeName, AlertType: "anomaly", Metric: metric,
		Severity: model.Severity(a.Severity),
		Title:    fmt.Sprintf("Anomaly detected: %s", metric),
		Message:  fmt.Sprintf("%s in %s (z=%.2f, confidence=%.2f)", a.Type, metric, a.Z, a.Confidence),
		Metadata: map[string]interface{}{
			"metric": metric, "z_score": a.Z, "type": string(a.Type), "confidence": a.Confidence,
		},
	}
}
