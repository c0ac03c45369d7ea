package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "threads: 0\n"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Threads != 5 {
		t.Fatalf("threads = %d, want default 5", cfg.Threads)
	}
	if cfg.API.BaseURL != "https://api.getgrass.io" {
		t.Fatalf("baseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.WSURL != "wss://proxy2.wynd.network:4650" {
		t.Fatalf("wsURL = %q", cfg.API.WSURL)
	}
	if cfg.Storage.SQLitePath != "data/grass_auto.db" {
		t.Fatalf("sqlitePath = %q", cfg.Storage.SQLitePath)
	}
	if cfg.Captcha.SiteKey == "" || cfg.Captcha.PageURL == "" {
		t.Fatal("captcha site key and page url should default")
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
threads: 12
api:
  baseURL: https://api.example.com
  timeoutMs: 5000
mining:
  pointsIntervalMs: 60000
  siteDownCooldownMin: 5
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Threads != 12 {
		t.Fatalf("threads = %d", cfg.Threads)
	}
	if cfg.API.BaseURL != "https://api.example.com" {
		t.Fatalf("baseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout() != 5*time.Second {
		t.Fatalf("timeout = %v", cfg.API.Timeout())
	}
	if cfg.Mining.PointsInterval() != time.Minute {
		t.Fatalf("points interval = %v", cfg.Mining.PointsInterval())
	}
	if cfg.Mining.SiteDownCooldown() != 5*time.Minute {
		t.Fatalf("cooldown = %v", cfg.Mining.SiteDownCooldown())
	}
}

func TestLoadRejectsBadSingleAccount(t *testing.T) {
	_, err := Load(writeConfig(t, `
imap:
  singleAccount: missing-colon
`))
	if err == nil {
		t.Fatal("expected error for single account without password")
	}
}

func TestLoadRejectsIncompleteNotify(t *testing.T) {
	_, err := Load(writeConfig(t, `
notify:
  enabled: true
  smtpHost: smtp.example.com
`))
	if err == nil {
		t.Fatal("expected error for notify without from/to")
	}
}

func TestDurationAccessorFallbacks(t *testing.T) {
	var m ModeConfig
	if m.RegisterDelayMin() != 3*time.Second {
		t.Fatalf("min = %v", m.RegisterDelayMin())
	}
	if m.RegisterDelayMax() != 7*time.Second {
		t.Fatalf("max = %v", m.RegisterDelayMax())
	}

	m.RegisterDelayMinMs = 10000
	m.RegisterDelayMaxMs = 5000
	if m.RegisterDelayMax() < m.RegisterDelayMin() {
		t.Fatal("max must never drop below min")
	}

	var mining MiningConfig
	if mining.PointsInterval() != 10*time.Minute {
		t.Fatalf("points interval default = %v", mining.PointsInterval())
	}
	if mining.SiteDownCooldown() != 20*time.Minute {
		t.Fatalf("cooldown default = %v", mining.SiteDownCooldown())
	}
}
