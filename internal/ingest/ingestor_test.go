package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewatch/storj-node-monitor/internal/model"
	"github.com/nodewatch/storj-node-monitor/internal/nodestate"
)

type fakeSource struct {
	lines []string
}

func (f fakeSource) Lines(ctx context.Context) <-chan string {
	out := make(chan string, len(f.lines))
	for _, l := range f.lines {
		out <- l
	}
	close(out)
	return out
}

type fakeSink struct {
	mu          sync.Mutex
	traffic     []model.TrafficEvent
	compactions []model.CompactionRecord
}

func (f *fakeSink) EnqueueTraffic(e model.TrafficEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traffic = append(f.traffic, e)
}

func (f *fakeSink) EnqueueCompaction(r model.CompactionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compactions = append(f.compactions, r)
}

func TestIngestorRoutesTrafficAndCompaction(t *testing.T) {
	src := fakeSource{lines: []string{
		"2026-07-31T10:00:00.000Z\tpiecestore\tdownload\tdownloaded\t" +
			`{"Action":"GET","Size":2048,"Satellite ID":"sat1"}`,
		"2026-07-31T10:00:01.000Z\thashstore\thashstore\tbeginning compaction\t" +
			`{"Satellite":"sat1","Store":"s0"}`,
		"2026-07-31T10:00:05.000Z\thashstore\thashstore\tcompaction finished\t" +
			`{"Satellite":"sat1","Store":"s0","Data Reclaimed Bytes":500}`,
		"garbage line",
	}}

	state := nodestate.New("node-a", time.Hour, 100)
	sink := &fakeSink{}
	ig := NewIngestor("node-a", src, &Parser{NodeName: "node-a"}, state, sink)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ig.Run(ctx)

	snap := state.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(2048), snap[0].Size)

	require.Len(t, sink.traffic, 1)
	require.Len(t, sink.compactions, 1)
	assert.Equal(t, int64(500), sink.compactions[0].DataReclaimedBytes)

	lines, events := ig.Counts()
	assert.Equal(t, int64(4), lines)
	assert.Equal(t, int64(3), events)
}
