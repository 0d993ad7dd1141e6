package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewatch/storj-node-monitor/internal/model"
	"github.com/nodewatch/storj-node-monitor/internal/stats"
)

func TestLogBatcherFlushesOnSizeCap(t *testing.T) {
	hub := NewHub(nil)
	conn := dialClient(t, hub, stats.NewView(nil))
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, time.Millisecond)

	b := NewLogBatcher(hub, time.Hour, 3) // interval long enough that only the size cap can trigger this
	b.Add(model.TrafficEvent{NodeName: "node-a", Action: "GET"})
	b.Add(model.TrafficEvent{NodeName: "node-a", Action: "GET"})
	b.Add(model.TrafficEvent{NodeName: "node-a", Action: "GET"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "log_entry_batch")
}

func TestLogBatcherFlushesOnInterval(t *testing.T) {
	hub := NewHub(nil)
	conn := dialClient(t, hub, stats.NewView(nil))
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, time.Millisecond)

	b := NewLogBatcher(hub, 20*time.Millisecond, 10)
	b.Start()
	defer b.Stop()

	b.Add(model.TrafficEvent{NodeName: "node-a", Action: "GET"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "log_entry_batch")
}

func TestLogBatcherArrivalOffsetsAreMonotonic(t *testing.T) {
	hub := NewHub(nil)
	b := NewLogBatcher(hub, time.Hour, 3)

	b.Add(model.TrafficEvent{NodeName: "node-a"})
	time.Sleep(5 * time.Millisecond)
	b.Add(model.TrafficEvent{NodeName: "node-a"})
	time.Sleep(5 * time.Millisecond)

	b.mu.Lock()
	require.Len(t, b.arrived, 2)
	assert.Equal(t, int64(0), b.arrived[0].Sub(b.first).Milliseconds())
	assert.True(t, b.arrived[1].After(b.arrived[0]))
	b.mu.Unlock()
}

func TestLogBatcherStopFlushesPending(t *testing.T) {
	hub := NewHub(nil)
	conn := dialClient(t, hub, stats.NewView(nil))
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, time.Millisecond)

	b := NewLogBatcher(hub, time.Hour, 10)
	b.Start()
	b.Add(model.TrafficEvent{NodeName: "node-a"})
	b.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "log_entry_batch")
}
