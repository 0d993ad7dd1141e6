package wsapi

import (
	"encoding/json"
	"time"

	"github.com/nodewatch/storj-node-monitor/internal/broadcast"
	"github.com/nodewatch/storj-node-monitor/internal/stats"
)

// clientFrame is the generic envelope every client->server message arrives
// in. Payload is decoded per-type by the individual handlers below.
type clientFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

const pongWait = 60 * time.Second

// readPump owns the connection's read side for its lifetime. A malformed
// frame or an unrecognized type is logged and skipped, never a reason to
// disconnect.
func (s *Server) readPump(c *broadcast.Client) {
	defer s.hub.Unregister(c)

	conn := c.Conn()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var f clientFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			if s.log != nil {
				s.log.Warn(nil, "malformed client frame", map[string]interface{}{"error": err.Error()})
			}
			continue
		}

		s.dispatch(c, f)
	}
}

// send wraps SendTo for readability at call sites below.
func (s *Server) send(c *broadcast.Client, frameType string, payload interface{}) {
	_ = s.hub.SendTo(c, frameType, payload)
}

func (s *Server) dispatch(c *broadcast.Client, f clientFrame) {
	switch f.Type {
	case "set_view":
		s.handleSetView(c, f.Payload)
	case "get_historical_performance":
		s.handleHistoricalPerformance(c, f.Payload)
	case "get_aggregated_performance":
		s.handleAggregatedPerformance(c, f.Payload)
	case "get_reputation_data":
		s.handleReputationData(c, f.Payload)
	case "get_storage_data":
		s.handleStorageData(c, f.Payload)
	case "get_storage_history":
		s.handleStorageHistory(c, f.Payload)
	case "get_active_alerts":
		s.handleActiveAlerts(c, f.Payload)
	case "acknowledge_alert":
		s.handleAcknowledgeAlert(c, f.Payload)
	case "get_earnings_data":
		s.handleEarningsData(c, f.Payload)
	case "get_insights":
		s.handleInsights(c, f.Payload)
	case "get_alert_summary":
		s.handleAlertSummary(c, f.Payload)
	case "get_comparison_data":
		s.handleComparisonData(c, f.Payload)
	case "get_latency_stats":
		s.handleLatencyStats(c, f.Payload)
	case "get_latency_histogram":
		s.handleLatencyHistogram(c, f.Payload)
	case "get_hashstore_stats":
		s.handleHashstoreStats(c, f.Payload)
	case "get_earnings_history":
		s.handleEarningsHistory(c, f.Payload)
	default:
		if s.log != nil {
			s.log.Warn(nil, "unknown client frame type", map[string]interface{}{"type": f.Type})
		}
	}
}

func (s *Server) handleSetView(c *broadcast.Client, payload json.RawMessage) {
	var req struct {
		Nodes []string `json:"nodes"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	v := stats.NewView(req.Nodes)
	c.SetView(v)
	s.engine.Subscribe(v)
	s.send(c, "stats_update", s.renderView(v))
}

func (s *Server) renderView(v stats.View) interface{} {
	vs, ok := s.engine.Get(v.Key())
	if !ok {
		return map[string]interface{}{}
	}
	return vs.ToPayload(time.Now(), s.statsWindowMinutes)
}
