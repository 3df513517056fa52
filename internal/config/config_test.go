package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/saveenergy/cbsreport/internal/config"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Interval != time.Second {
		t.Fatalf("default interval = %v, want 1s", cfg.Interval)
	}
	if cfg.FrameSizeBytes != 1500 {
		t.Fatalf("default frame size = %d, want 1500", cfg.FrameSizeBytes)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{name: "zero interval", mutate: func(c *config.Config) { c.Interval = 0 }},
		{name: "no ports", mutate: func(c *config.Config) { c.Ports = nil }},
		{name: "duplicate port", mutate: func(c *config.Config) { c.Ports = []int{1, 1} }},
		{name: "negative port", mutate: func(c *config.Config) { c.Ports = []int{-1} }},
		{name: "too many ports", mutate: func(c *config.Config) { c.Ports = []int{0, 1, 2, 3, 4, 5, 6, 7, 8} }},
		{name: "zero frame size", mutate: func(c *config.Config) { c.FrameSizeBytes = 0 }},
		{name: "zero parallel", mutate: func(c *config.Config) { c.Parallel = 0 }},
		{name: "zero capacity", mutate: func(c *config.Config) { c.LinkCapacityMbps = 0 }},
		{name: "bad log level", mutate: func(c *config.Config) { c.LogLevel = "chatty" }},
		{name: "history without limit", mutate: func(c *config.Config) {
			c.HistoryDB = "runs.db"
			c.MaxStoredRuns = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("CBS_INTERVAL", "500ms")
	t.Setenv("CBS_PORTS", "2, 1")
	t.Setenv("CBS_PARALLEL", "3")
	t.Setenv("CBS_HISTORY_DB", "/tmp/runs.db")
	t.Setenv("CBS_LOG_LEVEL", "debug")

	cfg := config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Interval != 500*time.Millisecond {
		t.Fatalf("interval = %v", cfg.Interval)
	}
	if !reflect.DeepEqual(cfg.Ports, []int{1, 2}) {
		t.Fatalf("ports = %v", cfg.Ports)
	}
	if cfg.Parallel != 3 {
		t.Fatalf("parallel = %d", cfg.Parallel)
	}
	if cfg.HistoryDB != "/tmp/runs.db" || cfg.LogLevel != "debug" {
		t.Fatalf("history=%q level=%q", cfg.HistoryDB, cfg.LogLevel)
	}
}

func TestConfigLoadFromEnvInvalid(t *testing.T) {
	tests := map[string]string{
		"CBS_INTERVAL":           "soon",
		"CBS_PORTS":              "a,b",
		"CBS_FRAME_SIZE":         "-1",
		"CBS_PARALLEL":           "zero",
		"CBS_LINK_CAPACITY_MBPS": "0",
		"CBS_MAX_RUNS":           "x",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			cfg := config.DefaultConfig()
			if err := cfg.LoadFromEnv(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestConfigLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cbsreport.yaml")
	content := `interval: 2s
ports: [1, 2]
port_labels:
  1: "Camera A"
frame_size_bytes: 1522
charts: false
top_findings: 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := config.DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Interval != 2*time.Second {
		t.Fatalf("interval = %v", cfg.Interval)
	}
	if !reflect.DeepEqual(cfg.Ports, []int{1, 2}) {
		t.Fatalf("ports = %v", cfg.Ports)
	}
	if cfg.PortLabels[1] != "Camera A" {
		t.Fatalf("label(1) = %q", cfg.PortLabels[1])
	}
	if cfg.PortLabels[2] != "Video Stream 2" {
		t.Fatalf("label(2) = %q, default should survive", cfg.PortLabels[2])
	}
	if _, ok := cfg.PortLabels[7]; ok {
		t.Fatalf("unexpected label for port 7: %q", cfg.PortLabels[7])
	}
	if cfg.FrameSizeBytes != 1522 || cfg.Charts || cfg.TopFindings != 5 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestConfigLoadFileInvalidInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cbsreport.yaml")
	if err := os.WriteFile(path, []byte("interval: fast\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := config.DefaultConfig()
	if err := cfg.LoadFile(path); err == nil {
		t.Fatal("expected error for invalid interval")
	}
}

func TestConfigIngressPort(t *testing.T) {
	t.Setenv("CBS_INGRESS_PORT", "-1")
	cfg := config.DefaultConfig()
	if cfg.IngressPort != 0 {
		t.Fatalf("default ingress port = %d, want 0", cfg.IngressPort)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IngressPort != -1 {
		t.Fatalf("ingress port = %d, want -1", cfg.IngressPort)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	t.Setenv("CBS_INGRESS_PORT", "-2")
	if err := config.DefaultConfig().LoadFromEnv(); err == nil {
		t.Fatal("expected error for ingress port -2")
	}
}

func TestConfigLoadLayersFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cbsreport.yaml")
	if err := os.WriteFile(path, []byte("parallel: 2\nframe_size_bytes: 1000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CBS_PARALLEL", "4")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Parallel != 4 {
		t.Fatalf("parallel = %d, env should win over file", cfg.Parallel)
	}
	if cfg.FrameSizeBytes != 1000 {
		t.Fatalf("frame size = %d, want 1000 from file", cfg.FrameSizeBytes)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
