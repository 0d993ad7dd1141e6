// Package config loads the monitor's static fleet definition (nodes.yaml)
// and its runtime tunables (environment variables).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	cfgutil "github.com/nodewatch/storj-node-monitor/infrastructure/config"
	"github.com/nodewatch/storj-node-monitor/internal/model"
)

// Config holds every tunable named in the service's configuration
// table, loaded once at startup.
type Config struct {
	DatabaseFile string
	ServerHost   string
	ServerPort   int

	StatsWindowMinutes         int
	StatsIntervalSeconds       int
	PerformanceIntervalSeconds int

	WebSocketBatchInterval time.Duration
	WebSocketBatchSize     int

	DBWriteBatchInterval time.Duration
	DBQueueMaxSize       int
	DBMaxRetries         int
	DBRetryBaseDelay     time.Duration
	DBRetryMaxDelay      time.Duration

	RetentionEvents      time.Duration
	RetentionCompaction  time.Duration
	RetentionAlerts      time.Duration
	RetentionBaselines   time.Duration
	RetentionEarnings    time.Duration

	NodeAPIPollInterval time.Duration
	AlertCooldown        time.Duration

	PricingEgressPerTB  float64
	PricingStoragePerTB float64
	PricingRepairPerTB  float64
	PricingAuditPerTB   float64
	OperatorShare       float64

	EnableAnomalyDetection bool
	EnableFinancialTracker bool
	EnableEmailNotify      bool
	EnableWebhookNotify    bool

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPUseTLS   bool
	SMTPFrom     string
	SMTPTo       []string

	DiscordWebhookURL string
	SlackWebhookURL   string
	GenericWebhookURL string

	CORSAllowedOrigins  []string
	RequestTimeout      time.Duration
	MaxRequestBodyBytes int64
	RateLimitEnabled    bool
	RateLimitPerSecond  int
	RateLimitBurst      int

	Nodes []model.Node
}

// Load builds a Config from environment variables plus the node fleet file
// at nodesPath.
func Load(nodesPath string) (*Config, error) {
	cfg := &Config{
		DatabaseFile: cfgutil.GetEnv("DATABASE_FILE", "storj-monitor.db"),
		ServerHost:   cfgutil.GetEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:   cfgutil.GetEnvInt("SERVER_PORT", 9000),

		StatsWindowMinutes:         cfgutil.GetEnvInt("STATS_WINDOW_MINUTES", 60),
		StatsIntervalSeconds:       cfgutil.GetEnvInt("STATS_INTERVAL_SECONDS", 5),
		PerformanceIntervalSeconds: cfgutil.GetEnvInt("PERFORMANCE_INTERVAL_SECONDS", 2),

		WebSocketBatchInterval: time.Duration(cfgutil.GetEnvInt("WEBSOCKET_BATCH_INTERVAL_MS", 25)) * time.Millisecond,
		WebSocketBatchSize:     cfgutil.GetEnvInt("WEBSOCKET_BATCH_SIZE", 10),

		DBWriteBatchInterval: cfgutil.GetEnvSecondsDuration("DB_WRITE_BATCH_INTERVAL_SECONDS", 10*time.Second),
		DBQueueMaxSize:       cfgutil.GetEnvInt("DB_QUEUE_MAX_SIZE", 30000),
		DBMaxRetries:         cfgutil.GetEnvInt("DB_MAX_RETRIES", 3),
		DBRetryBaseDelay:     cfgutil.GetEnvSecondsDuration("DB_RETRY_BASE_DELAY", 500*time.Millisecond),
		DBRetryMaxDelay:      cfgutil.GetEnvSecondsDuration("DB_RETRY_MAX_DELAY", 5*time.Second),

		RetentionEvents:     time.Duration(cfgutil.GetEnvInt("DB_EVENTS_RETENTION_DAYS", 2)) * 24 * time.Hour,
		RetentionCompaction: time.Duration(cfgutil.GetEnvInt("DB_COMPACTION_RETENTION_DAYS", 180)) * 24 * time.Hour,
		RetentionAlerts:     time.Duration(cfgutil.GetEnvInt("DB_ALERTS_RETENTION_DAYS", 90)) * 24 * time.Hour,
		RetentionBaselines:  time.Duration(cfgutil.GetEnvInt("DB_BASELINES_RETENTION_DAYS", 180)) * 24 * time.Hour,
		RetentionEarnings:   time.Duration(cfgutil.GetEnvInt("DB_EARNINGS_RETENTION_DAYS", 365)) * 24 * time.Hour,

		NodeAPIPollInterval: cfgutil.GetEnvSecondsDuration("NODE_API_POLL_INTERVAL", 300*time.Second),
		AlertCooldown:       time.Duration(cfgutil.GetEnvInt("ALERT_COOLDOWN_MINUTES", 15)) * time.Minute,

		PricingEgressPerTB:  cfgutil.GetEnvFloat("PRICING_EGRESS_PER_TB", 7.0),
		PricingStoragePerTB: cfgutil.GetEnvFloat("PRICING_STORAGE_PER_TB_MONTH", 1.5),
		PricingRepairPerTB:  cfgutil.GetEnvFloat("PRICING_REPAIR_PER_TB", 10.0),
		PricingAuditPerTB:   cfgutil.GetEnvFloat("PRICING_AUDIT_PER_TB", 10.0),
		OperatorShare:       cfgutil.GetEnvFloat("OPERATOR_SHARE", 1.0),

		EnableAnomalyDetection: cfgutil.GetEnvBool("ENABLE_ANOMALY_DETECTION", true),
		EnableFinancialTracker: cfgutil.GetEnvBool("ENABLE_FINANCIAL_TRACKER", true),
		EnableEmailNotify:      cfgutil.GetEnvBool("ENABLE_EMAIL_NOTIFICATIONS", false),
		EnableWebhookNotify:    cfgutil.GetEnvBool("ENABLE_WEBHOOK_NOTIFICATIONS", false),

		SMTPHost:     cfgutil.GetEnv("SMTP_HOST", ""),
		SMTPPort:     cfgutil.GetEnvInt("SMTP_PORT", 587),
		SMTPUser:     cfgutil.GetEnv("SMTP_USER", ""),
		SMTPPassword: cfgutil.GetEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:   cfgutil.GetEnvBool("SMTP_USE_TLS", true),
		SMTPFrom:     cfgutil.GetEnv("SMTP_FROM", ""),
		SMTPTo:       cfgutil.SplitAndTrimCSV(cfgutil.GetEnv("SMTP_TO", "")),

		DiscordWebhookURL: cfgutil.GetEnv("DISCORD_WEBHOOK_URL", ""),
		SlackWebhookURL:   cfgutil.GetEnv("SLACK_WEBHOOK_URL", ""),
		GenericWebhookURL: cfgutil.GetEnv("GENERIC_WEBHOOK_URL", ""),

		CORSAllowedOrigins:  cfgutil.SplitAndTrimCSV(cfgutil.GetEnv("CORS_ALLOWED_ORIGINS", "")),
		RequestTimeout:      cfgutil.GetEnvSecondsDuration("REQUEST_TIMEOUT_SECONDS", 30*time.Second),
		MaxRequestBodyBytes: int64(cfgutil.GetEnvInt("MAX_REQUEST_BODY_BYTES", 8<<20)),
		RateLimitEnabled:    cfgutil.GetEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitPerSecond:  cfgutil.GetEnvInt("RATE_LIMIT_REQUESTS_PER_SECOND", 50),
		RateLimitBurst:      cfgutil.GetEnvInt("RATE_LIMIT_BURST", 100),
	}

	nodes, err := loadNodes(nodesPath)
	if err != nil {
		return nil, fmt.Errorf("loading node fleet: %w", err)
	}
	cfg.Nodes = nodes

	return cfg, nil
}

func loadNodes(path string) ([]model.Node, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Nodes []model.Node `yaml:"nodes"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	for i, n := range doc.Nodes {
		if n.Name == "" {
			return nil, fmt.Errorf("node at index %d missing name", i)
		}
		if n.LogPath == "" && n.Forward == "" {
			return nil, fmt.Errorf("node %q needs log_path or forward_addr", n.Name)
		}
	}

	return doc.Nodes, nil
}
