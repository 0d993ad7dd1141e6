package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/nodewatch/storj-node-monitor/infrastructure/metrics"
	"github.com/nodewatch/storj-node-monitor/internal/model"
	"github.com/nodewatch/storj-node-monitor/internal/nodestate"
)

// EventSink receives fully parsed domain events. internal/store implements
// this to queue batched writes; tests use a fake.
type EventSink interface {
	EnqueueTraffic(model.TrafficEvent)
	EnqueueCompaction(model.CompactionRecord)
}

// Ingestor drains one Source for one node, updating its live nodestate.State
// and forwarding persisted-shape records to an EventSink.
type Ingestor struct {
	NodeName string
	Source   Source
	Parser   *Parser
	State    *nodestate.State
	Sink     EventSink

	mu            sync.Mutex
	linesRead     int64
	eventsParsed  int64
}

// NewIngestor wires a node's source, parser, and live state together.
func NewIngestor(nodeName string, src Source, parser *Parser, state *nodestate.State, sink EventSink) *Ingestor {
	return &Ingestor{NodeName: nodeName, Source: src, Parser: parser, State: state, Sink: sink}
}

// Run drains lines from the source until ctx is canceled, parsing each and
// routing it to live state and the DB sink. Malformed lines are dropped and
// counted on the Parser; Run itself never returns an error.
func (ig *Ingestor) Run(ctx context.Context) {
	for line := range ig.Source.Lines(ctx) {
		ig.mu.Lock()
		ig.linesRead++
		ig.mu.Unlock()

		parsed, err := ig.Parser.Parse(line)
		if err != nil {
			if m := metrics.Global(); m != nil {
				m.RecordParseError(ig.NodeName)
			}
			continue
		}

		ig.mu.Lock()
		ig.eventsParsed++
		ig.mu.Unlock()

		if m := metrics.Global(); m != nil {
			m.RecordLineParsed(ig.NodeName)
		}

		switch parsed.Kind {
		case KindTraffic:
			ig.State.AddEvent(parsed.Traffic)
			if ig.Sink != nil {
				ig.Sink.EnqueueTraffic(parsed.Traffic)
			}
			if m := metrics.Global(); m != nil {
				m.RecordEventIngested(ig.NodeName, "traffic", "ok")
			}
		case KindCompactionBegin:
			ig.State.BeginCompaction(parsed.CompactionBegin.Key, parsed.CompactionBegin.Ts)
			if m := metrics.Global(); m != nil {
				m.RecordEventIngested(ig.NodeName, "compaction_begin", "ok")
			}
		case KindCompactionEnd:
			dur, ok := ig.State.EndCompaction(parsed.CompactionEnd.Key, parsed.CompactionEnd.Ts)
			if !ok {
				dur = parsed.CompactionEnd.DeclaredDuration
			}
			if ig.Sink != nil {
				ig.Sink.EnqueueCompaction(model.CompactionRecord{
					NodeName:           parsed.CompactionEnd.Key.NodeName,
					Satellite:          parsed.CompactionEnd.Key.Satellite,
					Store:              parsed.CompactionEnd.Key.Store,
					LastRunISO:         parsed.CompactionEnd.Ts.UTC().Format(time.RFC3339Nano),
					Duration:           dur,
					DataReclaimedBytes: parsed.CompactionEnd.Reclaimed,
					DataRewrittenBytes: parsed.CompactionEnd.Rewritten,
					TableLoad:          parsed.CompactionEnd.TableLoad,
					TrashPercent:       parsed.CompactionEnd.TrashPercent,
				})
			}
			if m := metrics.Global(); m != nil {
				status := "ok"
				if !ok {
					status = "unmatched_begin"
				}
				m.RecordEventIngested(ig.NodeName, "compaction_end", status)
			}
		}
	}
}

// Counts returns (lines read, events parsed) since startup, for the
// management API's per-node ingestion status.
func (ig *Ingestor) Counts() (int64, int64) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	return ig.linesRead, ig.eventsParsed
}
