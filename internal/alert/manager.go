// Package alert implements threshold and anomaly-driven alert generation:
// deduplication with a cooldown window, synchronous persistence, and
// fire-and-forget dispatch to the broadcaster and notification adapters.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/nodewatch/storj-node-monitor/infrastructure/cache"
	"github.com/nodewatch/storj-node-monitor/infrastructure/logging"
	"github.com/nodewatch/storj-node-monitor/infrastructure/metrics"
	"github.com/nodewatch/storj-node-monitor/internal/model"
)

// Writer is the persistence surface the Manager needs — satisfied by
// *store.Writer.
type Writer interface {
	InsertAlertSync(ctx context.Context, a model.Alert) (int64, error)
	EnqueueAcknowledgeAlert(alertID int64, at time.Time)
	EnqueueResolveAlert(alertID int64, at time.Time)
}

// Broadcaster delivers a newly generated alert to WebSocket clients scoped
// to the node it concerns.
type Broadcaster interface {
	BroadcastAlert(nodeName string, a model.Alert)
}

// Notifier dispatches one alert to every configured external channel. It
// must not block or propagate per-channel errors to the caller.
type Notifier interface {
	Notify(alertType string, severity model.Severity, message string, details map[string]interface{})
}

const defaultCooldown = 15 * time.Minute

// Manager generates, deduplicates, and dispatches alerts.
type Manager struct {
	writer      Writer
	broadcaster Broadcaster
	notifier    Notifier
	log         *logging.Logger

	cooldown time.Duration
	seen     *cache.Cache // dedup key -> struct{}, TTL = cooldown
}

// NewManager wires an alert manager. cooldown <= 0 falls back to the
// 15-minute default.
func NewManager(writer Writer, broadcaster Broadcaster, notifier Notifier, log *logging.Logger, cooldown time.Duration) *Manager {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	cfg := cache.DefaultConfig()
	cfg.DefaultTTL = cooldown
	return &Manager{
		writer:      writer,
		broadcaster: broadcaster,
		notifier:    notifier,
		log:         log,
		cooldown:    cooldown,
		seen:        cache.NewCache(cfg),
	}
}

// Candidate is a not-yet-deduplicated alert an evaluator wants generated.
type Candidate struct {
	NodeName  string
	AlertType string
	Satellite string // optional, included in the dedup key when set
	Metric    string // optional, included in the dedup key when set
	Severity  model.Severity
	Title     string
	Message   string
	Metadata  map[string]interface{}
}

// dedupKey builds nodeName:alertType[:satellite][:metric].
func (c Candidate) dedupKey() string {
	key := fmt.Sprintf("%s:%s", c.NodeName, c.AlertType)
	if c.Satellite != "" {
		key += ":" + c.Satellite
	}
	if c.Metric != "" {
		key += ":" + c.Metric
	}
	return key
}

// Generate runs the dedup-check, synchronous-persistence,
// cooldown update, broadcast, and fire-and-forget notification dispatch.
// Returns (nil, nil) when the candidate is suppressed by cooldown.
func (m *Manager) Generate(ctx context.Context, c Candidate) (*model.Alert, error) {
	key := c.dedupKey()
	if _, onCooldown := m.seen.Get(key); onCooldown {
		if mx := metrics.Global(); mx != nil {
			mx.RecordAlertSuppressed(c.AlertType)
		}
		return nil, nil
	}

	a := model.Alert{
		Timestamp: time.Now(),
		NodeName:  c.NodeName,
		AlertType: c.AlertType,
		Severity:  c.Severity,
		Title:     c.Title,
		Message:   c.Message,
		Metadata:  c.Metadata,
	}

	id, err := m.writer.InsertAlertSync(ctx, a)
	if err != nil {
		// Persistence failure: do not cache or broadcast.
		return nil, err
	}
	a.ID = id

	m.seen.Set(key, struct{}{}, m.cooldown)

	if mx := metrics.Global(); mx != nil {
		mx.RecordAlertGenerated(a.AlertType, string(a.Severity))
	}

	if m.broadcaster != nil {
		m.broadcaster.BroadcastAlert(c.NodeName, a)
	}

	if m.notifier != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil && m.log != nil {
					m.log.WithFields(map[string]interface{}{"panic": r}).Error("notifier panicked")
				}
			}()
			m.notifier.Notify(a.AlertType, a.Severity, a.Message, a.Metadata)
		}()
	}

	return &a, nil
}

// Acknowledge transitions an alert to acknowledged.
func (m *Manager) Acknowledge(alertID int64) {
	m.writer.EnqueueAcknowledgeAlert(alertID, time.Now())
}

// Resolve transitions an alert to resolved.
func (m *Manager) Resolve(alertID int64) {
	m.writer.EnqueueResolveAlert(alertID, time.Now())
}
