package poll

import (
	"context"
	"time"

	infraerrors "github.com/nodewatch/storj-node-monitor/infrastructure/errors"
	"github.com/nodewatch/storj-node-monitor/infrastructure/resilience"
	"github.com/nodewatch/storj-node-monitor/internal/alert"
	"github.com/nodewatch/storj-node-monitor/internal/analytics"
	"github.com/nodewatch/storj-node-monitor/internal/model"
	"github.com/nodewatch/storj-node-monitor/internal/nodeapi"
)

// logAPIFailure reports a node-API call failure. Permanent failures (the
// circuit breaker tripping, or a 4xx the daemon isn't going to stop
// returning) are logged at most once per endpoint and node per hour, since the
// breaker will keep that endpoint's poller from retrying every tick anyway.
func (s *Scheduler) logAPIFailure(ctx context.Context, endpoint, nodeName string, err error) {
	if s.log == nil {
		return
	}
	if err == resilience.ErrCircuitOpen || err == resilience.ErrTooManyRequests {
		return
	}

	svcErr := infraerrors.GetServiceError(err)
	permanent := svcErr != nil && svcErr.Code == infraerrors.ErrCodeAPIPermanent
	if !permanent {
		s.log.Warn(ctx, endpoint+" poll failed", map[string]interface{}{"node": nodeName, "error": err.Error()})
		return
	}

	warnKey := endpoint + ":" + nodeName
	if _, seen := s.warnOnce.Get(warnKey); seen {
		return
	}
	s.warnOnce.Set(warnKey, struct{}{}, time.Hour)
	s.log.Warn(ctx, endpoint+" endpoint disabled after permanent failure", map[string]interface{}{
		"node": nodeName, "error": err.Error(),
	})
}

// statsTick trims idle state out of every subscribed view and pushes a
// fresh stats_update to clients watching it.
func (s *Scheduler) statsTick(ctx context.Context) error {
	now := time.Now()
	s.engine.Touch(now)
	for _, key := range s.engine.Keys() {
		vs, ok := s.engine.Get(key)
		if !ok {
			continue
		}
		payload := vs.ToPayload(now, 60)
		if err := s.hub.Broadcast("stats_update", payload, ""); err != nil {
			return err
		}
	}
	return nil
}

// performanceTick broadcasts each node's current activity snapshot (active
// compactions, most recent events) at a tighter cadence than the full stats
// tick, on its own 2-second live-performance interval.
func (s *Scheduler) performanceTick(ctx context.Context) error {
	for _, name := range s.registry.NodeNames() {
		st, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		compactions := st.ActiveCompactions()
		if err := s.hub.Broadcast("active_compactions_update", map[string]interface{}{
			"node_name":   name,
			"compactions": compactions,
		}, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) hourlyAggregate(ctx context.Context) error {
	return s.writer.BackfillHourly(ctx, time.Now())
}

func (s *Scheduler) prune(ctx context.Context) error {
	return s.writer.Prune(ctx, s.retention)
}

// pollReputation fetches each node's satellite reputation from its own API
// and persists a sample per satellite, raising threshold alerts along the
// way.
func (s *Scheduler) pollReputation(ctx context.Context) error {
	now := time.Now()
	for _, n := range s.nodes {
		client, ok := s.apiClients[n.Name]
		if !ok || n.APIBase == "" {
			continue
		}
		var sats []nodeapi.Satellite
		cb := s.breakerFor("reputation:" + n.Name)
		err := cb.Execute(ctx, func() error {
			var callErr error
			sats, callErr = client.GetSatellites(ctx)
			return callErr
		})
		if err != nil {
			s.logAPIFailure(ctx, "reputation", n.Name, err)
			continue
		}
		for _, sat := range sats {
			sample := model.ReputationSample{
				Timestamp:         now,
				NodeName:          n.Name,
				Satellite:         sat.ID,
				AuditScore:        sat.AuditScore * 100,
				SuspensionScore:   sat.SuspensionScore * 100,
				OnlineScore:       sat.OnlineScore * 100,
				AuditSuccessCount: sat.AuditSuccessCount,
				AuditTotalCount:   sat.AuditCount,
				IsDisqualified:    sat.Disqualified != nil,
				IsSuspended:       sat.Suspended != nil,
			}
			s.writer.EnqueueReputation(sample)

			for _, c := range alert.EvaluateReputation(n.Name, sample) {
				c.Satellite = sat.ID
				if _, err := s.alerts.Generate(ctx, c); err != nil && s.log != nil {
					s.log.Warn(ctx, "alert generation failed", map[string]interface{}{"node": n.Name, "error": err.Error()})
				}
			}
		}
	}
	return nil
}

// pollStorage fetches each node's disk capacity, persists a snapshot, and
// raises capacity/forecast alerts.
func (s *Scheduler) pollStorage(ctx context.Context) error {
	now := time.Now()
	for _, n := range s.nodes {
		client, ok := s.apiClients[n.Name]
		if !ok || n.APIBase == "" {
			continue
		}
		var dash *nodeapi.Dashboard
		cb := s.breakerFor("storage:" + n.Name)
		err := cb.Execute(ctx, func() error {
			var callErr error
			dash, callErr = client.GetDashboard(ctx)
			return callErr
		})
		if err != nil {
			s.logAPIFailure(ctx, "storage", n.Name, err)
			continue
		}

		used, avail, trash := dash.DiskSpace.Used, dash.DiskSpace.Available, dash.DiskSpace.Trash
		usedPct, trashPct, availPct := analytics.StoragePercentages(used, avail, trash)

		snap := model.StorageSnapshot{
			Timestamp: now, NodeName: n.Name, TotalBytes: used + avail,
			UsedBytes: &used, AvailableBytes: &avail, TrashBytes: &trash,
			UsedPercent: &usedPct, TrashPercent: &trashPct, AvailablePercent: &availPct,
		}
		s.writer.EnqueueStorageSnapshot(snap)

		history, err := s.st.StorageSnapshotsSince(ctx, n.Name, now.Add(-30*24*time.Hour))
		if err != nil {
			continue
		}
		forecast := analytics.ForecastStorage(append(history, snap), 7)
		for _, c := range alert.EvaluateStorage(n.Name, usedPct, forecast) {
			if _, err := s.alerts.Generate(ctx, c); err != nil && s.log != nil {
				s.log.Warn(ctx, "alert generation failed", map[string]interface{}{"node": n.Name, "error": err.Error()})
			}
		}
	}
	return nil
}

// pollEarnings recomputes the current month's storage earnings from
// persisted storage snapshots, as one row per node with an empty satellite.
// Egress, repair and audit earnings are not included, and no per-satellite
// rows are written.
func (s *Scheduler) pollEarnings(ctx context.Context) error {
	now := time.Now()
	period := now.UTC().Format("2006-01")
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	for _, n := range s.nodes {
		snapshots, err := s.st.StorageSnapshotsSince(ctx, n.Name, monthStart)
		if err != nil {
			continue
		}
		storageGross, storageNet := analytics.StorageEarnings(snapshots, monthStart, now, s.pricing)

		est := model.EarningsEstimate{
			NodeName: n.Name, Satellite: "", Period: period,
			StorageGross: storageGross, StorageNet: storageNet,
			TotalEarningsGross: storageGross, TotalEarningsNet: storageNet,
			Timestamp: now,
		}
		s.writer.EnqueueEarnings(est)
	}
	return nil
}

// evaluateAlerts runs the lower-frequency evaluators that don't have a
// dedicated poller of their own: latency thresholds derived from recent
// traffic, and z-score anomalies against each node's stored baseline.
func (s *Scheduler) evaluateAlerts(ctx context.Context) error {
	for _, name := range s.registry.NodeNames() {
		st, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		events := st.Snapshot()
		var durations []float64
		for _, e := range events {
			if e.DurationMs != nil {
				durations = append(durations, float64(*e.DurationMs))
			}
		}
		p99, ok := analytics.Percentile(durations, 99)
		if !ok {
			continue
		}
		for _, c := range alert.EvaluateLatency(name, p99) {
			if _, err := s.alerts.Generate(ctx, c); err != nil && s.log != nil {
				s.log.Warn(ctx, "alert generation failed", map[string]interface{}{"node": name, "error": err.Error()})
			}
		}

		baseline, err := s.baselines.Get(ctx, name, "latency_p99", 24)
		if err != nil || baseline == nil {
			s.baselines.Update(name, "latency_p99", 24, durations)
			continue
		}
		if a, ok := analytics.ZScoreAnomaly(p99, baseline.Mean, baseline.StdDev); ok {
			candidate := alert.EvaluateAnomaly(name, "latency_p99", a)
			if _, err := s.alerts.Generate(ctx, candidate); err != nil && s.log != nil {
				s.log.Warn(ctx, "alert generation failed", map[string]interface{}{"node": name, "error": err.Error()})
			}
		}
		s.baselines.Update(name, "latency_p99", 24, durations)
	}
	return nil
}
