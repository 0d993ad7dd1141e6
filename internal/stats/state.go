package stats

import (
	"sync"
	"time"

	"github.com/nodewatch/storj-node-monitor/internal/model"
)

// directionOf classifies a traffic event's action into the download/upload
// axis the byte-size histograms and per-direction scalars use. GET_AUDIT is
// tracked separately as an audit scalar rather than folded into download.
type direction int

const (
	directionDownload direction = iota
	directionUpload
	directionAudit
	directionOther
)

func directionOf(action string) direction {
	switch model.Action(action) {
	case model.ActionGet, model.ActionGetRepair:
		return directionDownload
	case model.ActionPut, model.ActionPutRepair:
		return directionUpload
	case model.ActionGetAudit:
		return directionAudit
	default:
		return directionOther
	}
}

// satelliteCounters is the running per-satellite tally.
type satelliteCounters struct {
	Downloads, Uploads, Audits int64
	Successes                 int64
	DownloadBytes, UploadBytes int64
}

// ViewState is the running summary for one view (a node-name subset or
// Aggregate). All mutation happens through AddEvent; ToPayload is a
// stateless readout.
type ViewState struct {
	mu sync.Mutex

	dlSuccess, dlFail     int64
	ulSuccess, ulFail     int64
	auditSuccess, auditFail int64

	downloadBytes, uploadBytes int64

	lastMinuteEvents []model.TrafficEvent // trimmed lazily in UpdateLiveStats

	perSatellite map[string]*satelliteCounters
	perCountryDownloadBytes map[string]int64
	perCountryUploadBytes   map[string]int64

	downloadHist directionHistogram
	uploadHist   directionHistogram

	templates   map[string]*ErrorTemplateStats
	templateCache *errorTemplateCache

	pieces map[string]*pieceStat
}

// NewViewState creates an empty running summary.
func NewViewState() *ViewState {
	return &ViewState{
		perSatellite:            make(map[string]*satelliteCounters),
		perCountryDownloadBytes: make(map[string]int64),
		perCountryUploadBytes:   make(map[string]int64),
		templates:               make(map[string]*ErrorTemplateStats),
		templateCache:           newErrorTemplateCache(),
		pieces:                  make(map[string]*pieceStat),
	}
}

// AddEvent folds one TrafficEvent into the running summary. O(1) average;
// O(k) in the length of the error reason when status is failed.
func (v *ViewState) AddEvent(e model.TrafficEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()

	dir := directionOf(e.Action)
	success := e.Status == model.StatusSuccess

	switch dir {
	case directionDownload:
		if success {
			v.dlSuccess++
			v.downloadBytes += e.Size
		} else {
			v.dlFail++
		}
		v.downloadHist.observe(e.Size, success)
	case directionUpload:
		if success {
			v.ulSuccess++
			v.uploadBytes += e.Size
		} else {
			v.ulFail++
		}
		v.uploadHist.observe(e.Size, success)
	case directionAudit:
		if success {
			v.auditSuccess++
		} else {
			v.auditFail++
		}
	}

	if e.SatelliteID != "" {
		sc := v.perSatellite[e.SatelliteID]
		if sc == nil {
			sc = &satelliteCounters{}
			v.perSatellite[e.SatelliteID] = sc
		}
		switch dir {
		case directionDownload:
			sc.Downloads++
			if success {
				sc.DownloadBytes += e.Size
			}
		case directionUpload:
			sc.Uploads++
			if success {
				sc.UploadBytes += e.Size
			}
		case directionAudit:
			sc.Audits++
		}
		if success {
			sc.Successes++
		}
	}

	if e.Location.Country != "" {
		if dir == directionDownload && success {
			v.perCountryDownloadBytes[e.Location.Country] += e.Size
		}
		if dir == directionUpload && success {
			v.perCountryUploadBytes[e.Location.Country] += e.Size
		}
	}

	if !success && e.ErrorReason != "" {
		v.observeErrorReason(e.ErrorReason)
	}

	if e.PieceID != "" {
		p := v.pieces[e.PieceID]
		if p == nil {
			p = &pieceStat{PieceID: e.PieceID}
			v.pieces[e.PieceID] = p
		}
		p.Count++
		p.Bytes += e.Size
	}

	v.lastMinuteEvents = append(v.lastMinuteEvents, e)
}

func (v *ViewState) observeErrorReason(reason string) {
	tok := v.templateCache.tokenize(reason)

	ts := v.templates[tok.template]
	if ts == nil {
		ts = &ErrorTemplateStats{Template: tok.template}
		ts.Placeholders = make([]*PlaceholderStats, len(tok.placeholders))
		for i, kind := range tok.placeholders {
			ts.Placeholders[i] = newPlaceholderStats(kind)
		}
		v.templates[tok.template] = ts
	}
	ts.Count++
	for i, original := range tok.originals {
		if i < len(ts.Placeholders) {
			ts.Placeholders[i].observe(original)
		}
	}
}

// UpdateLiveStats prunes tracked recent-event state to the last 60s and
// returns the events still in that window, for throughput/concurrency
// computations that must only look at very recent activity.
func (v *ViewState) UpdateLiveStats(now time.Time) []model.TrafficEvent {
	v.mu.Lock()
	defer v.mu.Unlock()

	cutoff := now.Add(-60 * time.Second)
	start := 0
	for start < len(v.lastMinuteEvents) && v.lastMinuteEvents[start].Timestamp.Before(cutoff) {
		start++
	}
	if start > 0 {
		v.lastMinuteEvents = append(v.lastMinuteEvents[:0], v.lastMinuteEvents[start:]...)
	}

	out := make([]model.TrafficEvent, len(v.lastMinuteEvents))
	copy(out, v.lastMinuteEvents)
	return out
}

// HotPieces returns the k pieces with the most events.
func (v *ViewState) HotPieces(k int) []pieceStat {
	v.mu.Lock()
	defer v.mu.Unlock()
	return topKHotPieces(v.pieces, k)
}

// Payload is the stateless snapshot rendered on demand.
type Payload struct {
	WindowStart time.Time
	WindowEnd   time.Time

	DownloadSuccess, DownloadFail int64
	UploadSuccess, UploadFail     int64
	AuditSuccess, AuditFail       int64

	DownloadBytes, UploadBytes int64

	PerSatellite map[string]SatelliteSummary
	CountryDownloadBytes map[string]int64
	CountryUploadBytes   map[string]int64

	DownloadHistogram directionHistogram
	UploadHistogram   directionHistogram

	ErrorTemplates []ErrorTemplateStats

	TopPieces []pieceStat
}

// SatelliteSummary is the read-only per-satellite view of the payload.
type SatelliteSummary struct {
	Downloads, Uploads, Audits int64
	Successes                 int64
	DownloadBytes, UploadBytes int64
}

// ToPayload renders a stateless snapshot. windowMinutes defines the
// declared wall-clock window carried in the payload; it does not filter the
// already-accumulated scalars (those are lifetime-since-process-start sums
// fed by NodeState's own window-bounded ring).
func (v *ViewState) ToPayload(now time.Time, windowMinutes int) Payload {
	v.mu.Lock()
	defer v.mu.Unlock()

	p := Payload{
		WindowStart:          now.Add(-time.Duration(windowMinutes) * time.Minute),
		WindowEnd:            now,
		DownloadSuccess:      v.dlSuccess,
		DownloadFail:         v.dlFail,
		UploadSuccess:        v.ulSuccess,
		UploadFail:           v.ulFail,
		AuditSuccess:         v.auditSuccess,
		AuditFail:            v.auditFail,
		DownloadBytes:        v.downloadBytes,
		UploadBytes:          v.uploadBytes,
		PerSatellite:         make(map[string]SatelliteSummary, len(v.perSatellite)),
		CountryDownloadBytes: make(map[string]int64, len(v.perCountryDownloadBytes)),
		CountryUploadBytes:   make(map[string]int64, len(v.perCountryUploadBytes)),
		DownloadHistogram:    v.downloadHist,
		UploadHistogram:      v.uploadHist,
		TopPieces:            topKHotPieces(v.pieces, 10),
	}

	for sat, c := range v.perSatellite {
		p.PerSatellite[sat] = SatelliteSummary{
			Downloads: c.Downloads, Uploads: c.Uploads, Audits: c.Audits,
			Successes: c.Successes, DownloadBytes: c.DownloadBytes, UploadBytes: c.UploadBytes,
		}
	}
	for country, b := range v.perCountryDownloadBytes {
		p.CountryDownloadBytes[country] = b
	}
	for country, b := range v.perCountryUploadBytes {
		p.CountryUploadBytes[country] = b
	}
	for _, t := range v.templates {
		p.ErrorTemplates = append(p.ErrorTemplates, *t)
	}

	return p
}
