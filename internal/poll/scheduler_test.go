package poll

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewatch/storj-node-monitor/infrastructure/logging"
	"github.com/nodewatch/storj-node-monitor/internal/alert"
	"github.com/nodewatch/storj-node-monitor/internal/analytics"
	"github.com/nodewatch/storj-node-monitor/internal/broadcast"
	"github.com/nodewatch/storj-node-monitor/internal/model"
	"github.com/nodewatch/storj-node-monitor/internal/nodestate"
	"github.com/nodewatch/storj-node-monitor/internal/stats"
	"github.com/nodewatch/storj-node-monitor/internal/store"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	log := logging.New("poll-test", "error", "text")
	st, err := store.Open(filepath.Join(t.TempDir(), "monitor.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	writer := store.NewWriter(st, store.WriterConfig{BatchSize: 10, BatchInterval: 10 * time.Millisecond}, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	writer.Start(ctx)

	baselines := analytics.NewBaselines(st, writer)
	hub := broadcast.NewHub(log)
	engine := stats.NewEngine()
	registry := nodestate.NewRegistry()
	mgr := alert.NewManager(writer, hub, nil, log, time.Minute)

	return NewScheduler(Deps{
		Registry: registry, Engine: engine, Hub: hub, Writer: writer, Store: st,
		Baselines: baselines, Alerts: mgr, Nodes: nil,
		Pricing: analytics.PricingConfig{StoragePerTB: 1.5, OperatorShare: 1.0},
		Log:     log,
	})
}

func TestStatsTickBroadcastsSubscribedViews(t *testing.T) {
	s := newTestScheduler(t)
	v := s.engine.Subscribe(stats.NewView(nil))
	v.AddEvent(model.TrafficEvent{NodeName: "node-a", Action: "GET", Status: model.StatusSuccess, Size: 10, Timestamp: time.Now()})

	assert.NoError(t, s.statsTick(context.Background()))
}

func TestPollTasksNoOpWithoutNodes(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	assert.NoError(t, s.pollReputation(ctx))
	assert.NoError(t, s.pollStorage(ctx))
	assert.NoError(t, s.pollEarnings(ctx))
	assert.NoError(t, s.evaluateAlerts(ctx))
	assert.NoError(t, s.hourlyAggregate(ctx))
	assert.NoError(t, s.prune(ctx))
	assert.NoError(t, s.performanceTick(ctx))
}

func TestSupervisedRecoversPanicAndBacksOff(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	calls := 0
	task := s.supervised(ctx, "panicky", func(context.Context) error {
		calls++
		panic("boom")
	})

	assert.NotPanics(t, func() { task() })
	assert.Equal(t, 1, calls)

	// Immediately re-running must be a no-op: the backoff window suppresses it.
	task()
	assert.Equal(t, 1, calls)
}

func TestSupervisedBacksOffAfterError(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	calls := 0
	task := s.supervised(ctx, "failing", func(context.Context) error {
		calls++
		return assertError{}
	})

	task()
	task()
	assert.Equal(t, 1, calls, "second run within the backoff window must be skipped")
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
