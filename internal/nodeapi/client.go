// Package nodeapi is a thin client for a storage daemon's own local
// dashboard API (the operator-facing HTTP API most storage node software
// exposes on its API port), used to supplement log-derived state with the
// authoritative reputation, capacity, and satellite data the daemon itself
// reports.
package nodeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nodewatch/storj-node-monitor/infrastructure/errors"
	"github.com/nodewatch/storj-node-monitor/infrastructure/ratelimit"
)

// httpDoer is satisfied by both *http.Client and
// *ratelimit.RateLimitedClient, so the outbound rate limit can wrap the
// transport without the rest of the client knowing about it.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client polls one node's dashboard API over HTTP.
type Client struct {
	baseURL    string
	httpClient httpDoer
}

// NewClient wraps apiBase (e.g. "http://localhost:14002"). A zero-value
// client (apiBase == "") is valid and every call returns an error — callers
// skip nodes with no configured API base rather than special-casing nil.
// Outbound requests are rate limited so a misbehaving node daemon (or a
// large fleet polled on a tight interval) cannot flood any one host.
func NewClient(apiBase string) *Client {
	rlCfg := ratelimit.DefaultConfig()
	rlCfg.RequestsPerSecond = 5
	rlCfg.Burst = 10
	return &Client{
		baseURL:    strings.TrimRight(apiBase, "/"),
		httpClient: ratelimit.NewRateLimitedClient(&http.Client{Timeout: 10 * time.Second}, rlCfg),
	}
}

// Satellite is one entry from the dashboard's per-satellite reputation and
// audit summary.
type Satellite struct {
	ID              string  `json:"id"`
	Disqualified    *string `json:"disqualified"`
	Suspended       *string `json:"suspended"`
	AuditScore      float64 `json:"auditScore"`
	SuspensionScore float64 `json:"suspensionScore"`
	OnlineScore     float64 `json:"onlineScore"`
	AuditCount      int64   `json:"auditCount"`
	AuditSuccessCount int64 `json:"auditSuccessCount"`
}

// Dashboard is the daemon's top-level capacity and identity summary.
type Dashboard struct {
	NodeID    string `json:"nodeID"`
	DiskSpace struct {
		Used      int64 `json:"used"`
		Available int64 `json:"available"`
		Trash     int64 `json:"trash"`
	} `json:"diskSpace"`
	StartedAt time.Time `json:"startedAt"`
}

// get issues a GET request and classifies any failure as transient (network
// error, timeout, 5xx, 429 — worth retrying/backing off) or permanent (any
// other 4xx — the endpoint is missing or disabled on this daemon build and
// retrying won't help) so callers can drive a circuit breaker off the result.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	if c.baseURL == "" {
		return errors.APIPermanentError("nodeapi", fmt.Errorf("no API base configured"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.APIPermanentError("nodeapi", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.APITransientError("nodeapi", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		apiErr := fmt.Errorf("nodeapi: %s returned %d: %s", path, resp.StatusCode, string(body))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return errors.APITransientError("nodeapi", apiErr)
		}
		return errors.APIPermanentError("nodeapi", apiErr)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetDashboard fetches /api/sno/ — the daemon's capacity and identity
// summary.
func (c *Client) GetDashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	if err := c.get(ctx, "/api/sno/", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetSatellites fetches /api/sno/satellites — per-satellite reputation.
func (c *Client) GetSatellites(ctx context.Context) ([]Satellite, error) {
	var body struct {
		Satellites []Satellite `json:"satellites"`
	}
	if err := c.get(ctx, "/api/sno/satellites", &body); err != nil {
		return nil, err
	}
	return body.Satellites, nil
}
