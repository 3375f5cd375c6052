package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ingestgate/ingestgate/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
collector:
  url: http://localhost:8000
app:
  url: http://localhost:3000
`

func TestLoadMinimal(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Collector.URL != "http://localhost:8000" {
		t.Errorf("collector URL = %q", cfg.Collector.URL)
	}
	if cfg.App.URL != "http://localhost:3000" {
		t.Errorf("app URL = %q", cfg.App.URL)
	}

	// Defaults
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Ingest.Store != "memory" {
		t.Errorf("store = %q, want memory", cfg.Ingest.Store)
	}
	if cfg.Ingest.Limit != 100 {
		t.Errorf("limit = %d, want 100", cfg.Ingest.Limit)
	}
	if cfg.Ingest.WindowSecs != 60 {
		t.Errorf("window_secs = %d, want 60", cfg.Ingest.WindowSecs)
	}
	if cfg.Ingest.CleanupInterval != 5*time.Minute {
		t.Errorf("cleanup_interval = %v, want 5m", cfg.Ingest.CleanupInterval)
	}
	if cfg.Ingest.Window() != time.Minute {
		t.Errorf("Window() = %v, want 1m", cfg.Ingest.Window())
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadFull(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
collector:
  url: http://collector:8000
  timeout: 10s
app:
  url: http://app:3000
ingest:
  store: redis
  limit: 500
  window_secs: 30
  cleanup_interval: 1m
  extra_patterns:
    - "^/ingest/custom$"
redis:
  addr: redis:6379
  db: 2
audit:
  enabled: true
  batch_size: 50
logging:
  level: debug
  format: console
metrics:
  enabled: true
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Collector.Timeout != 10*time.Second {
		t.Errorf("collector timeout = %v", cfg.Collector.Timeout)
	}
	if cfg.Ingest.Store != "redis" || cfg.Ingest.Limit != 500 || cfg.Ingest.WindowSecs != 30 {
		t.Errorf("ingest = %+v", cfg.Ingest)
	}
	if len(cfg.Ingest.ExtraPatterns) != 1 {
		t.Errorf("extra patterns = %v", cfg.Ingest.ExtraPatterns)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if !cfg.Audit.Enabled || cfg.Audit.BatchSize != 50 {
		t.Errorf("audit = %+v", cfg.Audit)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing collector url",
			yaml:    "app:\n  url: http://localhost:3000\n",
			wantErr: "collector.url",
		},
		{
			name:    "missing app url",
			yaml:    "collector:\n  url: http://localhost:8000\n",
			wantErr: "app.url",
		},
		{
			name:    "bad store",
			yaml:    minimalConfig + "ingest:\n  store: etcd\n",
			wantErr: "ingest.store",
		},
		{
			name:    "redis store without addr",
			yaml:    minimalConfig + "ingest:\n  store: redis\n",
			wantErr: "redis.addr",
		},
		{
			name:    "negative limit",
			yaml:    minimalConfig + "ingest:\n  limit: -1\n",
			wantErr: "ingest.limit",
		},
		{
			name:    "bad driver",
			yaml:    minimalConfig + "database:\n  driver: postgres\n",
			wantErr: "database.driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INGESTGATE_SERVER_PORT", "9999")
	t.Setenv("INGESTGATE_INGEST_LIMIT", "250")
	t.Setenv("INGESTGATE_INGEST_WINDOW", "120")
	t.Setenv("INGESTGATE_LOG_LEVEL", "warn")

	cfg, err := config.Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Ingest.Limit != 250 {
		t.Errorf("limit = %d, want 250", cfg.Ingest.Limit)
	}
	if cfg.Ingest.WindowSecs != 120 {
		t.Errorf("window_secs = %d, want 120", cfg.Ingest.WindowSecs)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q, want warn", cfg.Logging.Level)
	}
}

func TestExpandEnvInFile(t *testing.T) {
	t.Setenv("COLLECTOR_HOST", "collector.internal")

	cfg, err := config.Load(writeConfig(t, `
collector:
  url: http://${COLLECTOR_HOST}:8000
app:
  url: http://localhost:3000
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Collector.URL != "http://collector.internal:8000" {
		t.Errorf("collector URL = %q", cfg.Collector.URL)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("INGESTGATE_COLLECTOR_URL", "http://collector:8000")
	t.Setenv("INGESTGATE_APP_URL", "http://app:3000")

	if !config.HasEnvConfig() {
		t.Fatal("HasEnvConfig should be true")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Collector.URL != "http://collector:8000" {
		t.Errorf("collector URL = %q", cfg.Collector.URL)
	}
	if cfg.Ingest.Limit != 100 {
		t.Errorf("limit = %d, want default 100", cfg.Ingest.Limit)
	}
}

func TestLoadWithFallback(t *testing.T) {
	// File present: file wins.
	path := writeConfig(t, minimalConfig)
	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback: %v", err)
	}
	if cfg.Collector.URL != "http://localhost:8000" {
		t.Errorf("collector URL = %q", cfg.Collector.URL)
	}

	// No file, no env: error.
	if _, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error with no file and no env")
	}

	// No file, env set: env wins.
	t.Setenv("INGESTGATE_COLLECTOR_URL", "http://collector:8000")
	t.Setenv("INGESTGATE_APP_URL", "http://app:3000")
	cfg, err = config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFallback from env: %v", err)
	}
	if cfg.Collector.URL != "http://collector:8000" {
		t.Errorf("collector URL = %q", cfg.Collector.URL)
	}
}
