// Package poll runs the periodic background work the monitor owns outside
// of request/response handling: stats ticking, hourly aggregation,
// pruning, and the Node API pollers (reputation, storage, earnings) and
// their derived alert evaluation. Every task is a supervised
// goroutine: a panic or error is logged, the task backs off, and polling
// resumes rather than taking the process down.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nodewatch/storj-node-monitor/infrastructure/cache"
	"github.com/nodewatch/storj-node-monitor/infrastructure/logging"
	"github.com/nodewatch/storj-node-monitor/infrastructure/resilience"
	"github.com/nodewatch/storj-node-monitor/internal/alert"
	"github.com/nodewatch/storj-node-monitor/internal/analytics"
	"github.com/nodewatch/storj-node-monitor/internal/broadcast"
	"github.com/nodewatch/storj-node-monitor/internal/model"
	"github.com/nodewatch/storj-node-monitor/internal/nodeapi"
	"github.com/nodewatch/storj-node-monitor/internal/nodestate"
	"github.com/nodewatch/storj-node-monitor/internal/stats"
	"github.com/nodewatch/storj-node-monitor/internal/store"
)

// backoff is how long a failing task waits before its next scheduled tick
// is allowed to run again, beyond cron's own interval, when a run errors.
const backoff = 60 * time.Second

// Scheduler owns the cron runtime and every collaborator the periodic
// tasks need.
type Scheduler struct {
	cron *cron.Cron
	log  *logging.Logger

	registry  *nodestate.Registry
	engine    *stats.Engine
	hub       *broadcast.Hub
	writer    *store.Writer
	st        *store.Store
	baselines *analytics.Baselines
	alerts    *alert.Manager
	nodes     []model.Node
	pricing   analytics.PricingConfig
	retention store.RetentionConfig

	apiClients map[string]*nodeapi.Client

	statsIntervalSeconds       int
	performanceIntervalSeconds int

	lastFailure map[string]time.Time

	// breakers holds one circuit breaker per (endpoint, node) pair, so a
	// node daemon that's permanently failing one API call doesn't keep
	// getting hit every poll interval. warnOnce dedupes the "disabled"
	// log line to once per (endpoint, node) pair per hour.
	breakersMu sync.Mutex
	breakers   map[string]*resilience.CircuitBreaker
	warnOnce   *cache.Cache
}

// Deps bundles every collaborator the scheduler wires into its tasks.
type Deps struct {
	Registry  *nodestate.Registry
	Engine    *stats.Engine
	Hub       *broadcast.Hub
	Writer    *store.Writer
	Store     *store.Store
	Baselines *analytics.Baselines
	Alerts    *alert.Manager
	Nodes     []model.Node
	Pricing   analytics.PricingConfig
	Retention store.RetentionConfig

	StatsIntervalSeconds       int
	PerformanceIntervalSeconds int

	Log *logging.Logger
}

// NewScheduler builds a Scheduler ready for Start.
func NewScheduler(d Deps) *Scheduler {
	clients := make(map[string]*nodeapi.Client, len(d.Nodes))
	for _, n := range d.Nodes {
		clients[n.Name] = nodeapi.NewClient(n.APIBase)
	}

	statsInterval := d.StatsIntervalSeconds
	if statsInterval <= 0 {
		statsInterval = 5
	}
	perfInterval := d.PerformanceIntervalSeconds
	if perfInterval <= 0 {
		perfInterval = 2
	}

	return &Scheduler{
		cron:                       cron.New(cron.WithSeconds()),
		log:                        d.Log,
		registry:                   d.Registry,
		engine:                     d.Engine,
		hub:                        d.Hub,
		writer:                     d.Writer,
		st:                         d.Store,
		baselines:                  d.Baselines,
		alerts:                     d.Alerts,
		nodes:                      d.Nodes,
		pricing:                    d.Pricing,
		retention:                  d.Retention,
		apiClients:                 clients,
		statsIntervalSeconds:       statsInterval,
		performanceIntervalSeconds: perfInterval,
		lastFailure:                make(map[string]time.Time),
		breakers:                   make(map[string]*resilience.CircuitBreaker),
		warnOnce:                   cache.NewCache(cache.DefaultConfig()),
	}
}

// breakerFor returns the circuit breaker for a (endpoint, node) key,
// creating it on first use.
func (s *Scheduler) breakerFor(key string) *resilience.CircuitBreaker {
	s.breakersMu.Lock()
	defer s.breakersMu.Unlock()
	cb, ok := s.breakers[key]
	if !ok {
		cb = resilience.New(resilience.DefaultConfig())
		s.breakers[key] = cb
	}
	return cb
}

// Start registers every task and begins the cron runtime. ctx cancellation
// is observed within one polling interval of each task (each run checks
// ctx.Err() before doing work).
func (s *Scheduler) Start(ctx context.Context) {
	s.addSeconds(ctx, "stats_tick", s.statsIntervalSeconds, s.statsTick)
	s.addSeconds(ctx, "performance_tick", s.performanceIntervalSeconds, s.performanceTick)
	s.addEvery(ctx, "hourly_aggregator", 10*time.Minute, s.hourlyAggregate)
	s.addEvery(ctx, "db_pruner", 6*time.Hour, s.prune)
	s.addEvery(ctx, "reputation_poller", 5*time.Minute, s.pollReputation)
	s.addEvery(ctx, "storage_poller", 5*time.Minute, s.pollStorage)
	s.addEvery(ctx, "earnings_poller", 5*time.Minute, s.pollEarnings)
	s.addEvery(ctx, "alert_evaluator", 5*time.Minute, s.evaluateAlerts)
	s.cron.Start()
}

// Stop halts the cron runtime and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	c := s.cron.Stop()
	<-c.Done()
}

func (s *Scheduler) addEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	spec := "@every " + interval.String()
	s.cron.AddFunc(spec, s.supervised(ctx, name, fn))
}

func (s *Scheduler) addSeconds(ctx context.Context, name string, seconds int, fn func(context.Context) error) {
	s.addEvery(ctx, name, time.Duration(seconds)*time.Second, fn)
}

// supervised wraps a task so a panic or error is logged and backed off
// rather than propagating into the cron runtime or crashing the process.
func (s *Scheduler) supervised(ctx context.Context, name string, fn func(context.Context) error) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		if until, ok := s.lastFailure[name]; ok && time.Now().Before(until) {
			return
		}

		defer func() {
			if r := recover(); r != nil {
				s.onFailure(name, nil)
				if s.log != nil {
					s.log.Error(ctx, "poll task panicked", nil, map[string]interface{}{"task": name, "panic": r})
				}
			}
		}()

		if err := fn(ctx); err != nil {
			s.onFailure(name, err)
			if s.log != nil {
				s.log.Error(ctx, "poll task failed", err, map[string]interface{}{"task": name})
			}
		}
	}
}

func (s *Scheduler) onFailure(name string, err error) {
	s.lastFailure[name] = time.Now().Add(backoff)
}
