package store

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodewatch/storj-node-monitor/infrastructure/errors"
	"github.com/nodewatch/storj-node-monitor/infrastructure/logging"
	"github.com/nodewatch/storj-node-monitor/infrastructure/metrics"
	"github.com/nodewatch/storj-node-monitor/infrastructure/resilience"
	"github.com/nodewatch/storj-node-monitor/internal/model"
)

// WriterConfig parameterizes the batch/retry policy; zero values fall back
// to package defaults.
type WriterConfig struct {
	BatchSize     int
	BatchInterval time.Duration
	QueueMaxSize  int
	MaxRetries    int
	RetryBase     time.Duration
	RetryMax      time.Duration
}

func (c WriterConfig) withDefaults() WriterConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = 10 * time.Second
	}
	if c.QueueMaxSize <= 0 {
		c.QueueMaxSize = 30000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 5 * time.Second
	}
	return c
}

// Writer is the sole goroutine that mutates the database. It drains a
// bounded event queue (TrafficEvents, batched) and a control queue
// (upserts, each applied in its own transaction as it arrives).
type Writer struct {
	store *Store
	cfg   WriterConfig
	log   *logging.Logger

	events  chan model.TrafficEvent
	control chan controlOp

	dropped atomic.Int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWriter creates (but does not start) a writer bound to store.
func NewWriter(store *Store, cfg WriterConfig, log *logging.Logger) *Writer {
	cfg = cfg.withDefaults()
	return &Writer{
		store:   store,
		cfg:     cfg,
		log:     log,
		events:  make(chan model.TrafficEvent, cfg.QueueMaxSize),
		control: make(chan controlOp, cfg.QueueMaxSize),
	}
}

// EnqueueTraffic offers an event to the bulk queue. When the queue is full
// the new event is dropped and counted rather than blocking the ingestion
// goroutine.
func (w *Writer) EnqueueTraffic(e model.TrafficEvent) {
	select {
	case w.events <- e:
	default:
		w.dropped.Add(1)
		if m := metrics.Global(); m != nil {
			m.RecordError("store", "queue_full", "enqueue_traffic")
		}
	}
}

// EnqueueCompaction queues an upsert of a completed compaction record.
func (w *Writer) EnqueueCompaction(r model.CompactionRecord) {
	w.enqueueControl(upsertCompactionOp{rec: r})
}

// EnqueueReputation queues an upsert of a reputation sample.
func (w *Writer) EnqueueReputation(s model.ReputationSample) { w.enqueueControl(upsertReputationOp{sample: s}) }

// EnqueueStorageSnapshot queues an insert of a storage snapshot.
func (w *Writer) EnqueueStorageSnapshot(s model.StorageSnapshot) {
	w.enqueueControl(insertStorageSnapshotOp{snap: s})
}

// EnqueueEarnings queues an upsert of an earnings estimate.
func (w *Writer) EnqueueEarnings(e model.EarningsEstimate) { w.enqueueControl(upsertEarningsOp{est: e}) }

// EnqueueInsight queues an insert of an insight.
func (w *Writer) EnqueueInsight(i model.Insight) { w.enqueueControl(insertInsightOp{insight: i}) }

// EnqueueBaseline queues an upsert of a computed baseline.
func (w *Writer) EnqueueBaseline(b model.Baseline) { w.enqueueControl(upsertBaselineOp{b: b}) }

// EnqueueAcknowledgeAlert queues an acknowledge transition for alertID.
func (w *Writer) EnqueueAcknowledgeAlert(alertID int64, at time.Time) {
	w.enqueueControl(acknowledgeAlertOp{alertID: alertID, at: at})
}

// EnqueueResolveAlert queues a resolve transition for alertID.
func (w *Writer) EnqueueResolveAlert(alertID int64, at time.Time) {
	w.enqueueControl(resolveAlertOp{alertID: alertID, at: at})
}

// InsertAlertSync inserts an alert and blocks until it is persisted,
// returning its row ID. The Alert Manager needs the ID before it can cache
// and broadcast — the alert manager must observe persistence failure synchronously.
func (w *Writer) InsertAlertSync(ctx context.Context, a model.Alert) (int64, error) {
	var id int64
	op := insertAlertOp{alert: a, result: &id}
	err := w.runWithRetry(ctx, func(tx *sql.Tx) error { return op.apply(tx) })
	return id, err
}

func (w *Writer) enqueueControl(op controlOp) {
	select {
	case w.control <- op:
	default:
		w.dropped.Add(1)
	}
}

// Dropped reports how many enqueue attempts were discarded because a queue
// was full.
func (w *Writer) Dropped() int64 { return w.dropped.Load() }

// Start launches the writer's batching loop. Cancel ctx (or call Stop) to
// shut it down; pending queued items are flushed once before exit.
func (w *Writer) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.run(runCtx)
}

// Stop requests shutdown and waits for the writer goroutine to flush and exit.
func (w *Writer) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.BatchInterval)
	defer ticker.Stop()

	batch := make([]model.TrafficEvent, 0, w.cfg.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.flushEvents(ctx, batch); err != nil {
			w.log.WithError(err).Error("event batch flush failed")
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			w.drainControlOnce(context.Background())
			return

		case e := <-w.events:
			batch = append(batch, e)
			if len(batch) >= w.cfg.BatchSize {
				flush()
			}

		case op := <-w.control:
			if err := w.runWithRetry(ctx, func(tx *sql.Tx) error { return op.apply(tx) }); err != nil {
				w.log.WithError(err).Warn("control operation failed")
			}

		case <-ticker.C:
			flush()
		}
	}
}

// drainControlOnce applies whatever control ops are already queued, without
// blocking for more — used during final shutdown flush.
func (w *Writer) drainControlOnce(ctx context.Context) {
	for {
		select {
		case op := <-w.control:
			if err := w.runWithRetry(ctx, func(tx *sql.Tx) error { return op.apply(tx) }); err != nil {
				w.log.WithError(err).Warn("control operation failed during shutdown drain")
			}
		default:
			return
		}
	}
}

func (w *Writer) flushEvents(ctx context.Context, batch []model.TrafficEvent) error {
	start := time.Now()
	err := w.runWithRetry(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO events
				(timestamp, action, status, size, piece_id, satellite_id, remote_ip,
				 country, latitude, longitude, error_reason, node_name, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range batch {
			if _, err := stmt.Exec(
				e.Timestamp.UTC().Format(time.RFC3339Nano), e.Action, e.Status, e.Size,
				e.PieceID, e.SatelliteID, e.RemoteIP, nullString(e.Location.Country),
				e.Location.Latitude, e.Location.Longitude, nullString(e.ErrorReason),
				e.NodeName, int64Ptr(e.DurationMs),
			); err != nil {
				return err
			}
		}
		return nil
	})

	if m := metrics.Global(); m != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.RecordDBBatch(status, len(batch))
		m.RecordDBQuery("insert_events", status, time.Since(start))
	}
	return err
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// runWithRetry applies fn inside a transaction, retrying only on DBBusy with
// a capped-exponential-backoff policy. DBFatal and other operational errors
// propagate to the caller on first occurrence.
func (w *Writer) runWithRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	retryCfg := resilience.RetryConfig{
		MaxAttempts:  w.cfg.MaxRetries,
		InitialDelay: w.cfg.RetryBase,
		MaxDelay:     w.cfg.RetryMax,
		Multiplier:   2.0,
	}

	var final error
	err := resilience.Retry(ctx, retryCfg, func() error {
		tx, txErr := w.store.db.BeginTx(ctx, nil)
		if txErr != nil {
			classified := classifyErr("begin tx", txErr)
			if !isBusy(classified) {
				final = classified
				return nil
			}
			return classified
		}

		if execErr := fn(tx); execErr != nil {
			tx.Rollback()
			classified := classifyErr("exec", execErr)
			if svcErr := errors.GetServiceError(classified); svcErr != nil && svcErr.Code == errors.ErrCodeDBFatal {
				w.log.WithError(execErr).Error("fatal database error, writer will not retry")
			}
			if !isBusy(classified) {
				final = classified
				return nil
			}
			return classified
		}

		if commitErr := tx.Commit(); commitErr != nil {
			classified := classifyErr("commit", commitErr)
			if !isBusy(classified) {
				final = classified
				return nil
			}
			return classified
		}
		return nil
	})

	if final != nil {
		return final
	}
	return err
}

// runWithRetrySQL is a convenience wrapper around runWithRetry for a single
// parameterized statement, used by pruning and aggregation.
func (w *Writer) runWithRetrySQL(ctx context.Context, query string, args ...interface{}) error {
	return w.runWithRetry(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(query, args...)
		return err
	})
}

func isBusy(err error) bool {
	svcErr := errors.GetServiceError(err)
	return svcErr != nil && svcErr.Code == errors.ErrCodeDBBusy
}
