// Command monitor is the storage-node monitoring daemon: it tails each
// configured node's log, maintains live and persisted state, serves the
// WebSocket/REST management API, and runs the periodic pollers and alert
// pipeline described across internal/ingest, internal/store,
// internal/poll, and internal/wsapi.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/nodewatch/storj-node-monitor/infrastructure/logging"
	"github.com/nodewatch/storj-node-monitor/infrastructure/metrics"
	"github.com/nodewatch/storj-node-monitor/infrastructure/middleware"
	"github.com/nodewatch/storj-node-monitor/internal/alert"
	"github.com/nodewatch/storj-node-monitor/internal/analytics"
	"github.com/nodewatch/storj-node-monitor/internal/broadcast"
	"github.com/nodewatch/storj-node-monitor/internal/config"
	"github.com/nodewatch/storj-node-monitor/internal/ingest"
	"github.com/nodewatch/storj-node-monitor/internal/model"
	"github.com/nodewatch/storj-node-monitor/internal/nodestate"
	"github.com/nodewatch/storj-node-monitor/internal/notify"
	"github.com/nodewatch/storj-node-monitor/internal/poll"
	"github.com/nodewatch/storj-node-monitor/internal/stats"
	"github.com/nodewatch/storj-node-monitor/internal/store"
	"github.com/nodewatch/storj-node-monitor/internal/wsapi"
)

const shutdownBudget = 10 * time.Second

func main() {
	// Best-effort: production deployments set real environment variables
	// and carry no .env file, so a missing file is not an error.
	_ = godotenv.Load()

	nodesPath := os.Getenv("NODES_FILE")
	if nodesPath == "" {
		nodesPath = "nodes.yaml"
	}

	cfg, err := config.Load(nodesPath)
	if err != nil {
		log.Fatalf("CRITICAL: loading config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}
	logger := logging.New("storj-node-monitor", logLevel, logFormat)

	st, err := store.Open(cfg.DatabaseFile, logger)
	if err != nil {
		log.Fatalf("CRITICAL: opening database: %v", err)
	}
	defer st.Close()

	writer := store.NewWriter(st, store.WriterConfig{
		BatchSize:     1000,
		BatchInterval: cfg.DBWriteBatchInterval,
		QueueMaxSize:  cfg.DBQueueMaxSize,
		MaxRetries:    cfg.DBMaxRetries,
		RetryBase:     cfg.DBRetryBaseDelay,
		RetryMax:      cfg.DBRetryMaxDelay,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	writer.Start(ctx)

	registry := nodestate.NewRegistry()
	engine := stats.NewEngine()
	engine.Subscribe(stats.NewView(nil)) // Aggregate view always has a live subscriber

	hub := broadcast.NewHub(logger)
	batcher := broadcast.NewLogBatcher(hub, cfg.WebSocketBatchInterval, cfg.WebSocketBatchSize)
	batcher.Start()
	defer batcher.Stop()

	baselines := analytics.NewBaselines(st, writer)

	dispatcher := buildNotifier(cfg, logger)
	alertManager := alert.NewManager(writer, hub, dispatcher, logger, cfg.AlertCooldown)

	runIngestion(ctx, cfg, registry, engine, writer, batcher, logger)

	scheduler := poll.NewScheduler(poll.Deps{
		Registry: registry, Engine: engine, Hub: hub, Writer: writer, Store: st,
		Baselines: baselines, Alerts: alertManager, Nodes: cfg.Nodes,
		Pricing: analytics.PricingConfig{
			EgressPerTB: cfg.PricingEgressPerTB, StoragePerTB: cfg.PricingStoragePerTB,
			RepairPerTB: cfg.PricingRepairPerTB, AuditPerTB: cfg.PricingAuditPerTB,
			OperatorShare: cfg.OperatorShare,
		},
		Retention: store.RetentionConfig{
			Events: cfg.RetentionEvents, Compaction: cfg.RetentionCompaction,
			Alerts: cfg.RetentionAlerts, Insights: cfg.RetentionAlerts,
			Baselines: cfg.RetentionBaselines, Earnings: cfg.RetentionEarnings,
		},
		StatsIntervalSeconds:       cfg.StatsIntervalSeconds,
		PerformanceIntervalSeconds: cfg.PerformanceIntervalSeconds,
		Log:                        logger,
	})
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if metrics.Enabled() {
		metrics.Init("storj-node-monitor")
	}

	server := wsapi.NewServer(hub, engine, st, baselines, alertManager, registry, cfg.Nodes, cfg.StatsWindowMinutes, logger, wsapi.MiddlewareConfig{
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RequestTimeout:      cfg.RequestTimeout,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		RateLimitEnabled:    cfg.RateLimitEnabled,
		RateLimitPerSecond:  cfg.RateLimitPerSecond,
		RateLimitBurst:      cfg.RateLimitBurst,
	})

	httpServer := &http.Server{
		Addr:              cfg.ServerHost + ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           server.Router(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdown := middleware.NewGracefulShutdown(httpServer, shutdownBudget)
	shutdown.OnShutdown(func() {
		cancel()
		scheduler.Stop()
		batcher.Stop()
	})
	shutdown.ListenForSignals()

	logger.Info(context.Background(), "storj-node-monitor starting", map[string]interface{}{
		"addr": httpServer.Addr, "nodes": len(cfg.Nodes),
	})

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal(context.Background(), "server error", err)
	}
}

// runIngestion starts one Ingestor goroutine per configured node.
func runIngestion(ctx context.Context, cfg *config.Config, registry *nodestate.Registry, engine *stats.Engine, writer *store.Writer, batcher *broadcast.LogBatcher, logger *logging.Logger) {
	for _, n := range cfg.Nodes {
		state := nodestate.New(n.Name, time.Duration(cfg.StatsWindowMinutes)*time.Minute, 100_000)
		registry.Register(n.Name, state)

		var src ingest.Source
		switch {
		case n.Forward != "":
			src = ingest.NewTCPSource(n.Forward)
		case n.LogPath != "":
			src = ingest.NewFileTailer(n.LogPath, 500*time.Millisecond)
		default:
			continue
		}

		parser := &ingest.Parser{NodeName: n.Name}
		sink := &fanOutSink{writer: writer, engine: engine, batcher: batcher}
		ingestor := ingest.NewIngestor(n.Name, src, parser, state, sink)

		go ingestor.Run(ctx)
	}
}

// fanOutSink routes each parsed event to persistence, the live stats
// engine, and the log-entry batcher, so internal/ingest stays unaware of
// any of its three consumers.
type fanOutSink struct {
	writer  *store.Writer
	engine  *stats.Engine
	batcher *broadcast.LogBatcher
}

func (f *fanOutSink) EnqueueTraffic(e model.TrafficEvent) {
	f.writer.EnqueueTraffic(e)
	f.engine.AddEvent(e)
	f.batcher.Add(e)
}

func (f *fanOutSink) EnqueueCompaction(r model.CompactionRecord) {
	f.writer.EnqueueCompaction(r)
}

// buildNotifier wires whichever notification adapters are configured and
// enabled; channels left unconfigured are simply absent from the fan-out.
func buildNotifier(cfg *config.Config, logger *logging.Logger) *notify.Dispatcher {
	var adapters []notify.Adapter

	if cfg.EnableEmailNotify {
		if a := notify.NewEmailAdapter(notify.EmailConfig{
			Host: cfg.SMTPHost, Port: cfg.SMTPPort, User: cfg.SMTPUser,
			Password: cfg.SMTPPassword, From: cfg.SMTPFrom, To: cfg.SMTPTo, UseTLS: cfg.SMTPUseTLS,
		}, logger); a != nil {
			adapters = append(adapters, a)
		}
	}
	if cfg.EnableWebhookNotify {
		if a := notify.NewDiscordAdapter(cfg.DiscordWebhookURL, logger); a != nil {
			adapters = append(adapters, a)
		}
		if a := notify.NewSlackAdapter(cfg.SlackWebhookURL, logger); a != nil {
			adapters = append(adapters, a)
		}
		if a := notify.NewGenericWebhookAdapter(cfg.GenericWebhookURL, logger); a != nil {
			adapters = append(adapters, a)
		}
	}

	return notify.NewDispatcher(logger, adapters...)
}
