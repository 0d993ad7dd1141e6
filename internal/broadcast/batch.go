package broadcast

import (
	"sync"
	"time"

	"github.com/nodewatch/storj-node-monitor/internal/model"
)

// logBatchEntry is one coalesced line wrapped with its arrival offset.
type logBatchEntry struct {
	Event           model.TrafficEvent `json:"event"`
	ArrivalOffsetMs int64              `json:"arrival_offset_ms"`
}

// LogBatcher coalesces per-line TrafficEvents into log_entry_batch frames,
// flushing on a fixed interval or once a size cap is reached, whichever
// comes first.
type LogBatcher struct {
	hub      *Hub
	interval time.Duration
	size     int

	mu       sync.Mutex
	pending  []model.TrafficEvent
	arrived  []time.Time
	first    time.Time

	stop chan struct{}
	done chan struct{}
}

// NewLogBatcher wires a batcher over hub with the given flush interval and
// per-batch cap. Call Start to begin the background flusher and Stop to
// drain it at shutdown.
func NewLogBatcher(hub *Hub, interval time.Duration, size int) *LogBatcher {
	if interval <= 0 {
		interval = 25 * time.Millisecond
	}
	if size <= 0 {
		size = 10
	}
	return &LogBatcher{hub: hub, interval: interval, size: size, stop: make(chan struct{}), done: make(chan struct{})}
}

// Add enqueues one event. The first event since the last flush establishes
// the batch's arrival baseline.
func (b *LogBatcher) Add(e model.TrafficEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if len(b.pending) == 0 {
		b.first = now
	}
	b.pending = append(b.pending, e)
	b.arrived = append(b.arrived, now)
	if len(b.pending) >= b.size {
		b.flushLocked()
	}
}

// flushLocked sends the pending batch and clears it. Caller holds b.mu.
func (b *LogBatcher) flushLocked() {
	if len(b.pending) == 0 {
		return
	}
	entries := make([]logBatchEntry, len(b.pending))
	for i, e := range b.pending {
		entries[i] = logBatchEntry{Event: e, ArrivalOffsetMs: b.arrived[i].Sub(b.first).Milliseconds()}
	}
	b.pending = nil
	b.arrived = nil
	_ = b.hub.Broadcast("log_entry_batch", map[string]interface{}{"events": entries}, "")
}

// Start runs the periodic flusher until Stop is called.
func (b *LogBatcher) Start() {
	go func() {
		defer close(b.done)
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.mu.Lock()
				b.flushLocked()
				b.mu.Unlock()
			case <-b.stop:
				b.mu.Lock()
				b.flushLocked()
				b.mu.Unlock()
				return
			}
		}
	}()
}

// Stop halts the flusher, flushing any remaining pending entries first.
func (b *LogBatcher) Stop() {
	close(b.stop)
	<-b.done
}
