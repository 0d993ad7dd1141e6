// Package model defines the persisted and in-memory entities of the monitor,
// as tagged Go structs rather than loose dictionaries.
package model

import "time"

// Action is the enumerated storage-node operation type.
type Action string

const (
	ActionGet        Action = "GET"
	ActionPut        Action = "PUT"
	ActionGetAudit   Action = "GET_AUDIT"
	ActionGetRepair  Action = "GET_REPAIR"
	ActionPutRepair  Action = "PUT_REPAIR"
)

// Status is the enumerated outcome of a traffic operation.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Category buckets an Action for aggregation.
type Category string

const (
	CategoryGet        Category = "get"
	CategoryPut        Category = "put"
	CategoryAudit      Category = "audit"
	CategoryGetRepair  Category = "get_repair"
	CategoryPutRepair  Category = "put_repair"
	CategoryOther      Category = "other"
)

// CategoryForAction derives the aggregation category for a raw action string.
func CategoryForAction(action string) Category {
	switch Action(action) {
	case ActionGet:
		return CategoryGet
	case ActionPut:
		return CategoryPut
	case ActionGetAudit:
		return CategoryAudit
	case ActionGetRepair:
		return CategoryGetRepair
	case ActionPutRepair:
		return CategoryPutRepair
	default:
		return CategoryOther
	}
}

// Location is a best-effort GeoIP resolution of a remote address. Any field
// may be the zero value when the lookup was partial or missed the cache.
type Location struct {
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"lat,omitempty"`
	Longitude float64 `json:"lon,omitempty"`
}

// TrafficEvent is one immutable piece-level operation record.
type TrafficEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"`
	Status      Status    `json:"status"`
	Size        int64     `json:"size"`
	PieceID     string    `json:"piece_id,omitempty"`
	SatelliteID string    `json:"satellite_id"`
	RemoteIP    string    `json:"remote_ip,omitempty"`
	Location    Location  `json:"location"`
	ErrorReason string    `json:"error_reason,omitempty"`
	NodeName    string    `json:"node_name"`
	DurationMs  *int64    `json:"duration_ms,omitempty"`
	Category    Category  `json:"category"`
}

// CompactionKey identifies a paired hashstore compaction begin/end.
type CompactionKey struct {
	NodeName  string
	Satellite string
	Store     string
}

// CompactionRecord is the persisted result of a completed compaction.
type CompactionRecord struct {
	NodeName           string
	Satellite          string
	Store              string
	LastRunISO         string
	Duration            time.Duration
	DataReclaimedBytes int64
	DataRewrittenBytes int64
	TableLoad          float64
	TrashPercent       float64
}

// ReputationSample is a per-(node, satellite, timestamp) reputation reading.
// Scores are stored as percentages (already scaled ×100 from the API's 0..1 form).
type ReputationSample struct {
	Timestamp         time.Time
	NodeName          string
	Satellite         string
	AuditScore        float64
	SuspensionScore   float64
	OnlineScore       float64
	AuditSuccessCount int64
	AuditTotalCount   int64
	IsDisqualified    bool
	IsSuspended       bool
}

// StorageSnapshot is a per-(node, timestamp) disk usage reading. Partial
// snapshots (log-derived) may only populate AvailableBytes.
type StorageSnapshot struct {
	Timestamp        time.Time
	NodeName         string
	TotalBytes       int64
	UsedBytes        *int64
	AvailableBytes   *int64
	TrashBytes       *int64
	UsedPercent      *float64
	TrashPercent     *float64
	AvailablePercent *float64
}

// EarningsEstimate is deduplicated on (NodeName, Satellite, Period); the
// newest row for a key is authoritative.
type EarningsEstimate struct {
	NodeName          string
	Satellite         string
	Period            string // YYYY-MM
	EgressGross        float64
	EgressNet          float64
	StorageGross       float64
	StorageNet         float64
	RepairGross        float64
	RepairNet          float64
	AuditGross         float64
	AuditNet           float64
	TotalEarningsGross float64
	TotalEarningsNet   float64
	HeldAmount         float64
	NodeAgeMonths      int
	HeldPercentage     float64
	IsFinalized        bool
	Timestamp          time.Time
}

// Severity is the enumerated urgency of an Alert or Insight.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a persisted threshold/anomaly finding, mutated only by
// acknowledge/resolve transitions.
type Alert struct {
	ID             int64
	Timestamp      time.Time
	NodeName       string
	AlertType      string
	Severity       Severity
	Title          string
	Message        string
	Metadata       map[string]interface{}
	Acknowledged   bool
	AcknowledgedAt *time.Time
	Resolved       bool
	ResolvedAt     *time.Time
}

// Insight is a lower-urgency observation distinct from an Alert (trend
// changes, capacity outlook, anomaly summaries).
type Insight struct {
	ID           int64
	Timestamp    time.Time
	NodeName     string
	InsightType  string
	Severity     Severity
	Title        string
	Description  string
	Category     string
	Confidence   float64
	Acknowledged bool
	Metadata     map[string]interface{}
}

// Baseline is a per-(node, metric, windowHours) running statistic, unique on
// the triple and upserted.
type Baseline struct {
	NodeName     string
	MetricName   string
	WindowHours  int
	Mean         float64
	StdDev       float64
	Min          float64
	Max          float64
	SampleCount  int
	LastUpdated  time.Time
}

// HourlyStat is the per-(hour bucket, node) aggregate, upserted.
type HourlyStat struct {
	HourTimestamp     time.Time
	NodeName          string
	DlSuccess         int64
	DlFail            int64
	UlSuccess         int64
	UlFail            int64
	AuditSuccess      int64
	AuditFail         int64
	TotalDownloadSize int64
	TotalUploadSize   int64
}

// Node is the static, operator-configured description of a monitored
// storage daemon. Created at startup; never mutated or destroyed at runtime.
type Node struct {
	Name    string `yaml:"name"`
	LogPath string `yaml:"log_path,omitempty"`
	Forward string `yaml:"forward_addr,omitempty"`
	APIBase string `yaml:"api_base,omitempty"`
}
