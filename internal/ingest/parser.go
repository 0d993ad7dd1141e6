// Package ingest tails per-node log sources and parses their lines into
// typed events.
package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nodewatch/storj-node-monitor/internal/model"
)

// LineKind discriminates the variants a parsed line can produce.
type LineKind int

const (
	KindTraffic LineKind = iota
	KindCompactionBegin
	KindCompactionEnd
	KindStorageHint
)

// ParsedLine is the tagged union the Parser emits. Exactly one of the
// Traffic/CompactionBegin/CompactionEnd/StorageHint fields is populated,
// selected by Kind.
type ParsedLine struct {
	Kind LineKind

	Traffic model.TrafficEvent

	CompactionBegin struct {
		Key model.CompactionKey
		Ts  time.Time
	}

	CompactionEnd struct {
		Key              model.CompactionKey
		Ts               time.Time
		Reclaimed        int64
		Rewritten        int64
		TableLoad        float64
		TrashPercent     float64
		DeclaredDuration time.Duration
	}

	StorageHint struct {
		NodeName       string
		AvailableBytes int64
	}
}

type logPayload struct {
	Action        string          `json:"Action"`
	PieceID       string          `json:"Piece ID"`
	SatelliteID   string          `json:"Satellite ID"`
	Size          int64           `json:"Size"`
	RemoteAddress string          `json:"Remote Address"`
	Error         string          `json:"error"`
	DurationMs    *int64          `json:"duration_ms"`
	Available     *int64          `json:"Available Space"`

	// Hashstore compaction fields, present only when Source identifies a
	// compaction event.
	Satellite          string   `json:"Satellite"`
	Store              string   `json:"Store"`
	DataReclaimedBytes *int64   `json:"Data Reclaimed Bytes"`
	DataRewrittenBytes *int64   `json:"Data Rewritten Bytes"`
	TableLoad          *float64 `json:"Table Load"`
	TrashPercent       *float64 `json:"Trash Percent"`
	DurationDeclared   *float64 `json:"Duration"`
}

// LocationResolver enriches a remote IP with a best-effort location without
// blocking the caller.
type LocationResolver interface {
	Resolve(remoteIP string) model.Location
}

// Parser converts raw log lines into ParsedLine values, one per call,
// dropping (and counting) anything malformed.
type Parser struct {
	NodeName string
	GeoIP    LocationResolver

	// ParseErrors counts lines rejected for structural or JSON reasons.
	// Accessed only from the single ingestion goroutine that owns this Parser.
	ParseErrors int64
}

// compactionBeginStatuses and compactionEndStatuses identify the status
// values that, on a hashstore source, carry compaction-begin/compaction-end
// semantics rather than plain traffic.
var compactionBeginStatuses = map[string]bool{"beginning compaction": true, "compaction started": true}
var compactionEndStatuses = map[string]bool{"compaction finished": true, "compacted": true}

// Parse turns one tab-separated log line into a ParsedLine, or returns an
// error if the line is structurally invalid. Errors are never fatal to the
// stream: the caller counts and drops them.
func (p *Parser) Parse(line string) (ParsedLine, error) {
	fields := strings.SplitN(line, "\t", 5)
	if len(fields) < 5 {
		p.ParseErrors++
		return ParsedLine{}, fmt.Errorf("expected 5 tab-separated fields, got %d", len(fields))
	}

	tsRaw, _, source, status, payloadRaw := fields[0], fields[1], fields[2], fields[3], fields[4]

	ts, err := parseTimestamp(tsRaw)
	if err != nil {
		p.ParseErrors++
		return ParsedLine{}, fmt.Errorf("invalid timestamp %q: %w", tsRaw, err)
	}

	var payload logPayload
	if err := json.Unmarshal([]byte(payloadRaw), &payload); err != nil {
		p.ParseErrors++
		return ParsedLine{}, fmt.Errorf("invalid JSON payload: %w", err)
	}

	if strings.Contains(source, "hashstore") {
		lowerStatus := strings.ToLower(status)
		if compactionBeginStatuses[lowerStatus] {
			return p.parseCompactionBegin(ts, payload), nil
		}
		if compactionEndStatuses[lowerStatus] {
			return p.parseCompactionEnd(ts, payload), nil
		}
	}

	return p.parseTraffic(ts, status, payload), nil
}

func (p *Parser) parseTraffic(ts time.Time, status string, payload logPayload) ParsedLine {
	ev := model.TrafficEvent{
		Timestamp:   ts,
		Action:      payload.Action,
		Status:      normalizeStatus(status),
		Size:        payload.Size,
		PieceID:     payload.PieceID,
		SatelliteID: payload.SatelliteID,
		RemoteIP:    payload.RemoteAddress,
		ErrorReason: payload.Error,
		NodeName:    p.NodeName,
		Category:    model.CategoryForAction(payload.Action),
	}
	if payload.DurationMs != nil {
		ev.DurationMs = payload.DurationMs
	}
	if payload.RemoteAddress != "" && p.GeoIP != nil {
		ev.Location = p.GeoIP.Resolve(payload.RemoteAddress)
	}

	return ParsedLine{Kind: KindTraffic, Traffic: ev}
}

func (p *Parser) parseCompactionBegin(ts time.Time, payload logPayload) ParsedLine {
	var out ParsedLine
	out.Kind = KindCompactionBegin
	out.CompactionBegin.Key = model.CompactionKey{
		NodeName:  p.NodeName,
		Satellite: payload.Satellite,
		Store:     payload.Store,
	}
	out.CompactionBegin.Ts = ts
	return out
}

func (p *Parser) parseCompactionEnd(ts time.Time, payload logPayload) ParsedLine {
	var out ParsedLine
	out.Kind = KindCompactionEnd
	out.CompactionEnd.Key = model.CompactionKey{
		NodeName:  p.NodeName,
		Satellite: payload.Satellite,
		Store:     payload.Store,
	}
	out.CompactionEnd.Ts = ts
	if payload.DataReclaimedBytes != nil {
		out.CompactionEnd.Reclaimed = *payload.DataReclaimedBytes
	}
	if payload.DataRewrittenBytes != nil {
		out.CompactionEnd.Rewritten = *payload.DataRewrittenBytes
	}
	if payload.TableLoad != nil {
		out.CompactionEnd.TableLoad = *payload.TableLoad
	}
	if payload.TrashPercent != nil {
		out.CompactionEnd.TrashPercent = *payload.TrashPercent
	}
	if payload.DurationDeclared != nil {
		out.CompactionEnd.DeclaredDuration = time.Duration(*payload.DurationDeclared * float64(time.Second))
	}
	return out
}

func normalizeStatus(raw string) model.Status {
	switch strings.ToLower(raw) {
	case "downloaded", "uploaded", "success", "succeeded":
		return model.StatusSuccess
	case "failed", "download failed", "upload failed", "error":
		return model.StatusFailed
	case "canceled", "cancelled":
		return model.StatusCanceled
	default:
		return model.StatusFailed
	}
}

// parseTimestamp normalizes a log timestamp to UTC with microsecond
// precision.
func parseTimestamp(raw string) (time.Time, error) {
	layouts := []string{
		"2006-01-02T15:04:05.000Z",
		time.RFC3339Nano,
		time.RFC3339,
	}
	var firstErr error
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC().Round(time.Microsecond), nil
		} else if firstErr == nil {
			firstErr = err
		}
	}
	// Fall back to a bare Unix-seconds timestamp, seen in some forwarders.
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Unix(0, int64(secs*float64(time.Second))).UTC().Round(time.Microsecond), nil
	}
	return time.Time{}, firstErr
}
