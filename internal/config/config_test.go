package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeNodesFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "nodes.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsWhenEnvUnset(t *testing.T) {
	path := writeNodesFile(t, "nodes:\n  - name: node-a\n    log_path: /var/log/a.log\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DatabaseFile != "storj-monitor.db" {
		t.Errorf("DatabaseFile = %q, want default", cfg.DatabaseFile)
	}
	if cfg.ServerPort != 9000 {
		t.Errorf("ServerPort = %d, want 9000", cfg.ServerPort)
	}
	if cfg.StatsWindowMinutes != 60 {
		t.Errorf("StatsWindowMinutes = %d, want 60", cfg.StatsWindowMinutes)
	}
	if cfg.DBWriteBatchInterval != 10*time.Second {
		t.Errorf("DBWriteBatchInterval = %v, want 10s", cfg.DBWriteBatchInterval)
	}
	if cfg.RetentionEvents != 2*24*time.Hour {
		t.Errorf("RetentionEvents = %v, want 48h", cfg.RetentionEvents)
	}
	if cfg.OperatorShare != 1.0 {
		t.Errorf("OperatorShare = %v, want 1.0", cfg.OperatorShare)
	}
	if len(cfg.Nodes) != 1 || cfg.Nodes[0].Name != "node-a" {
		t.Fatalf("expected one node named node-a, got %+v", cfg.Nodes)
	}
}

func TestLoadHonorsEnvOverrides(t *testing.T) {
	path := writeNodesFile(t, "nodes:\n  - name: node-a\n    log_path: /var/log/a.log\n")

	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("ALERT_COOLDOWN_MINUTES", "30")
	t.Setenv("ENABLE_EMAIL_NOTIFICATIONS", "true")
	t.Setenv("SMTP_TO", "a@example.com, b@example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want 8080", cfg.ServerPort)
	}
	if cfg.AlertCooldown != 30*time.Minute {
		t.Errorf("AlertCooldown = %v, want 30m", cfg.AlertCooldown)
	}
	if !cfg.EnableEmailNotify {
		t.Error("expected EnableEmailNotify to be true")
	}
	if len(cfg.SMTPTo) != 2 || cfg.SMTPTo[0] != "a@example.com" || cfg.SMTPTo[1] != "b@example.com" {
		t.Errorf("SMTPTo = %v, want two trimmed addresses", cfg.SMTPTo)
	}
}

func TestLoadRejectsMissingNodesFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing nodes file")
	}
}

func TestLoadNodesRejectsNodeWithoutName(t *testing.T) {
	path := writeNodesFile(t, "nodes:\n  - log_path: /var/log/a.log\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for node missing a name")
	}
}

func TestLoadNodesRejectsNodeWithoutSourceOrForward(t *testing.T) {
	path := writeNodesFile(t, "nodes:\n  - name: node-a\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for node missing log_path and forward_addr")
	}
}

func TestLoadNodesAcceptsForwardOnlyNode(t *testing.T) {
	path := writeNodesFile(t, "nodes:\n  - name: node-b\n    forward_addr: 0.0.0.0:9090\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Nodes[0].Forward != "0.0.0.0:9090" {
		t.Errorf("Forward = %q, want 0.0.0.0:9090", cfg.Nodes[0].Forward)
	}
}
