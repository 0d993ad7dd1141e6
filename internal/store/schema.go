package store

// schemaStatements is applied, in order, every time Open opens the
// database. Every statement uses IF NOT EXISTS, so reapplying it never
// loses rows.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		action TEXT NOT NULL,
		status TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		piece_id TEXT,
		satellite_id TEXT,
		remote_ip TEXT,
		country TEXT,
		latitude REAL,
		longitude REAL,
		error_reason TEXT,
		node_name TEXT NOT NULL,
		duration_ms INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_events_node_name ON events(node_name)`,
	`CREATE INDEX IF NOT EXISTS idx_events_node_timestamp ON events(node_name, timestamp)`,

	`CREATE TABLE IF NOT EXISTS hourly_stats (
		hour_timestamp TEXT NOT NULL,
		node_name TEXT NOT NULL,
		dl_success INTEGER NOT NULL DEFAULT 0,
		dl_fail INTEGER NOT NULL DEFAULT 0,
		ul_success INTEGER NOT NULL DEFAULT 0,
		ul_fail INTEGER NOT NULL DEFAULT 0,
		audit_success INTEGER NOT NULL DEFAULT 0,
		audit_fail INTEGER NOT NULL DEFAULT 0,
		total_download_size INTEGER NOT NULL DEFAULT 0,
		total_upload_size INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (hour_timestamp, node_name)
	)`,

	`CREATE TABLE IF NOT EXISTS hashstore_compaction_history (
		node_name TEXT NOT NULL,
		satellite TEXT NOT NULL,
		store TEXT NOT NULL,
		last_run_iso TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		data_reclaimed_bytes INTEGER NOT NULL DEFAULT 0,
		data_rewritten_bytes INTEGER NOT NULL DEFAULT 0,
		table_load REAL NOT NULL DEFAULT 0,
		trash_percent REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (node_name, satellite, store, last_run_iso)
	)`,

	`CREATE TABLE IF NOT EXISTS reputation_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		node_name TEXT NOT NULL,
		satellite TEXT NOT NULL,
		audit_score REAL NOT NULL,
		suspension_score REAL NOT NULL,
		online_score REAL NOT NULL,
		audit_success_count INTEGER NOT NULL DEFAULT 0,
		audit_total_count INTEGER NOT NULL DEFAULT 0,
		is_disqualified INTEGER NOT NULL DEFAULT 0,
		is_suspended INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reputation_node_ts ON reputation_history(node_name, timestamp)`,

	`CREATE TABLE IF NOT EXISTS storage_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		node_name TEXT NOT NULL,
		total_bytes INTEGER,
		used_bytes INTEGER,
		available_bytes INTEGER,
		trash_bytes INTEGER,
		used_percent REAL,
		trash_percent REAL,
		available_percent REAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_storage_node_ts ON storage_snapshots(node_name, timestamp)`,

	`CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		node_name TEXT NOT NULL,
		alert_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		acknowledged INTEGER NOT NULL DEFAULT 0,
		acknowledged_at TEXT,
		resolved INTEGER NOT NULL DEFAULT 0,
		resolved_at TEXT,
		metadata_json TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_node_ts ON alerts(node_name, timestamp)`,

	`CREATE TABLE IF NOT EXISTS insights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		node_name TEXT NOT NULL,
		insight_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		acknowledged INTEGER NOT NULL DEFAULT 0,
		metadata_json TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_insights_node_ts ON insights(node_name, timestamp)`,

	`CREATE TABLE IF NOT EXISTS analytics_baselines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		node_name TEXT NOT NULL,
		metric_name TEXT NOT NULL,
		window_hours INTEGER NOT NULL,
		mean_value REAL NOT NULL,
		std_dev REAL NOT NULL,
		min_value REAL NOT NULL,
		max_value REAL NOT NULL,
		sample_count INTEGER NOT NULL,
		last_updated TEXT NOT NULL,
		UNIQUE (node_name, metric_name, window_hours)
	)`,

	`CREATE TABLE IF NOT EXISTS earnings_estimates (
		node_name TEXT NOT NULL,
		satellite TEXT NOT NULL,
		period TEXT NOT NULL,
		egress_gross REAL NOT NULL DEFAULT 0,
		egress_net REAL NOT NULL DEFAULT 0,
		storage_gross REAL NOT NULL DEFAULT 0,
		storage_net REAL NOT NULL DEFAULT 0,
		repair_gross REAL NOT NULL DEFAULT 0,
		repair_net REAL NOT NULL DEFAULT 0,
		audit_gross REAL NOT NULL DEFAULT 0,
		audit_net REAL NOT NULL DEFAULT 0,
		total_earnings_gross REAL NOT NULL DEFAULT 0,
		total_earnings_net REAL NOT NULL DEFAULT 0,
		held_amount REAL NOT NULL DEFAULT 0,
		node_age_months INTEGER NOT NULL DEFAULT 0,
		held_percentage REAL NOT NULL DEFAULT 0,
		is_finalized INTEGER NOT NULL DEFAULT 0,
		timestamp TEXT NOT NULL,
		PRIMARY KEY (node_name, satellite, period)
	)`,
}

const pragmaStatements = `
PRAGMA journal_mode=WAL;
PRAGMA synchronous=NORMAL;
PRAGMA temp_store=MEMORY;
PRAGMA mmap_size=33554432;
PRAGMA foreign_keys=ON;
`
