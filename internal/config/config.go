package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/saveenergy/cbsreport/internal/logging"
)

const (
	DefaultFrameSizeBytes = 1500
	maxPorts              = 8
)

type Config struct {
	OutputDir    string
	ScenarioFile string

	Interval       time.Duration
	Ports          []int
	PortLabels     map[int]string
	FrameSizeBytes int
	// IngressPort carries the sum of the egress streams and is left out of
	// bandwidth allocation. -1 means every port is egress.
	IngressPort int

	Parallel         int
	LinkCapacityMbps float64
	TopFindings      int
	Charts           bool

	HistoryDB     string
	MaxStoredRuns int

	LogLevel string
	// LogFile, when set, also writes logs to a rotated file.
	LogFile string
}

func DefaultConfig() *Config {
	return &Config{
		OutputDir:      "", // empty means the results directory
		ScenarioFile:   "",
		Interval:       1 * time.Second,
		Ports:          []int{0, 1, 2, 3},
		FrameSizeBytes: DefaultFrameSizeBytes,
		PortLabels: map[int]string{
			0: "Ingress",
			1: "Video Stream 1",
			2: "Video Stream 2",
			3: "BE Traffic",
		},
		IngressPort:      0,
		Parallel:         1,
		LinkCapacityMbps: 1000,
		TopFindings:      3,
		Charts:           true,
		HistoryDB:        "",
		MaxStoredRuns:    1000,
		LogLevel:         "info",
	}
}

// Load layers defaults, the YAML file at path (if any) and CBS_* variables.
// The result is not validated so callers can apply flags first.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fileConfig mirrors Config for YAML. Zero values leave the current setting
// untouched.
type fileConfig struct {
	OutputDir        string         `yaml:"output_dir,omitempty"`
	ScenarioFile     string         `yaml:"scenario_file,omitempty"`
	Interval         string         `yaml:"interval,omitempty"`
	Ports            []int          `yaml:"ports,omitempty"`
	PortLabels       map[int]string `yaml:"port_labels,omitempty"`
	FrameSizeBytes   int            `yaml:"frame_size_bytes,omitempty"`
	IngressPort      *int           `yaml:"ingress_port,omitempty"`
	Parallel         int            `yaml:"parallel,omitempty"`
	LinkCapacityMbps float64        `yaml:"link_capacity_mbps,omitempty"`
	TopFindings      int            `yaml:"top_findings,omitempty"`
	Charts           *bool          `yaml:"charts,omitempty"`
	HistoryDB        string         `yaml:"history_db,omitempty"`
	MaxStoredRuns    int            `yaml:"max_stored_runs,omitempty"`
	LogLevel         string         `yaml:"log_level,omitempty"`
	LogFile          string         `yaml:"log_file,omitempty"`
}

func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.OutputDir != "" {
		c.OutputDir = fc.OutputDir
	}
	if fc.ScenarioFile != "" {
		c.ScenarioFile = fc.ScenarioFile
	}
	if fc.Interval != "" {
		d, err := time.ParseDuration(fc.Interval)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid interval %q: must be a positive duration (e.g. 1s)", fc.Interval)
		}
		c.Interval = d
	}
	if len(fc.Ports) > 0 {
		c.Ports = fc.Ports
	}
	for port, label := range fc.PortLabels {
		if c.PortLabels == nil {
			c.PortLabels = make(map[int]string)
		}
		c.PortLabels[port] = label
	}
	if fc.FrameSizeBytes != 0 {
		c.FrameSizeBytes = fc.FrameSizeBytes
	}
	if fc.IngressPort != nil {
		c.IngressPort = *fc.IngressPort
	}
	if fc.Parallel != 0 {
		c.Parallel = fc.Parallel
	}
	if fc.LinkCapacityMbps != 0 {
		c.LinkCapacityMbps = fc.LinkCapacityMbps
	}
	if fc.TopFindings != 0 {
		c.TopFindings = fc.TopFindings
	}
	if fc.Charts != nil {
		c.Charts = *fc.Charts
	}
	if fc.HistoryDB != "" {
		c.HistoryDB = fc.HistoryDB
	}
	if fc.MaxStoredRuns != 0 {
		c.MaxStoredRuns = fc.MaxStoredRuns
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.LogFile != "" {
		c.LogFile = fc.LogFile
	}
	return nil
}

func (c *Config) LoadFromEnv() error {
	if dir := os.Getenv("CBS_OUTPUT_DIR"); dir != "" {
		c.OutputDir = dir
	}
	if file := os.Getenv("CBS_SCENARIO_FILE"); file != "" {
		c.ScenarioFile = file
	}
	if interval := os.Getenv("CBS_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid CBS_INTERVAL %q: must be a positive duration (e.g. 1s)", interval)
		}
		c.Interval = d
	}
	if ports := os.Getenv("CBS_PORTS"); ports != "" {
		parsed, err := ParsePorts(ports)
		if err != nil {
			return fmt.Errorf("invalid CBS_PORTS %q: %w", ports, err)
		}
		c.Ports = parsed
	}
	if size := os.Getenv("CBS_FRAME_SIZE"); size != "" {
		s, err := strconv.Atoi(size)
		if err != nil || s <= 0 {
			return fmt.Errorf("invalid CBS_FRAME_SIZE %q: must be a positive integer", size)
		}
		c.FrameSizeBytes = s
	}
	if ingress := os.Getenv("CBS_INGRESS_PORT"); ingress != "" {
		p, err := strconv.Atoi(ingress)
		if err != nil || p < -1 {
			return fmt.Errorf("invalid CBS_INGRESS_PORT %q: must be a port index or -1", ingress)
		}
		c.IngressPort = p
	}
	if parallel := os.Getenv("CBS_PARALLEL"); parallel != "" {
		p, err := strconv.Atoi(parallel)
		if err != nil || p <= 0 {
			return fmt.Errorf("invalid CBS_PARALLEL %q: must be a positive integer", parallel)
		}
		c.Parallel = p
	}
	if capacity := os.Getenv("CBS_LINK_CAPACITY_MBPS"); capacity != "" {
		v, err := strconv.ParseFloat(capacity, 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid CBS_LINK_CAPACITY_MBPS %q: must be a positive number", capacity)
		}
		c.LinkCapacityMbps = v
	}
	if db := os.Getenv("CBS_HISTORY_DB"); db != "" {
		c.HistoryDB = db
	}
	if max := os.Getenv("CBS_MAX_RUNS"); max != "" {
		m, err := strconv.Atoi(max)
		if err != nil || m <= 0 {
			return fmt.Errorf("invalid CBS_MAX_RUNS %q: must be a positive integer", max)
		}
		c.MaxStoredRuns = m
	}
	if level := os.Getenv("CBS_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if file := os.Getenv("CBS_LOG_FILE"); file != "" {
		c.LogFile = file
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	if len(c.Ports) == 0 {
		return fmt.Errorf("at least one port is required")
	}
	if len(c.Ports) > maxPorts {
		return fmt.Errorf("at most %d ports are supported", maxPorts)
	}
	seen := make(map[int]bool, len(c.Ports))
	for _, p := range c.Ports {
		if p < 0 {
			return fmt.Errorf("invalid port index %d", p)
		}
		if seen[p] {
			return fmt.Errorf("duplicate port index %d", p)
		}
		seen[p] = true
	}
	if c.IngressPort < -1 {
		return fmt.Errorf("invalid ingress port %d", c.IngressPort)
	}
	if c.FrameSizeBytes <= 0 {
		return fmt.Errorf("frame size must be > 0")
	}
	if c.Parallel <= 0 {
		return fmt.Errorf("parallel must be > 0")
	}
	if c.LinkCapacityMbps <= 0 {
		return fmt.Errorf("link capacity must be > 0")
	}
	if c.TopFindings < 0 {
		return fmt.Errorf("top findings cannot be negative")
	}
	if c.HistoryDB != "" && c.MaxStoredRuns <= 0 {
		return fmt.Errorf("max stored runs must be > 0")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParsePorts parses a comma separated list of port indexes.
func ParsePorts(s string) ([]int, error) {
	entries := strings.Split(s, ",")
	ports := make([]int, 0, len(entries))
	for _, entry := range entries {
		value := strings.TrimSpace(entry)
		if value == "" {
			continue
		}
		p, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("port %q is not a number", value)
		}
		ports = append(ports, p)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no ports given")
	}
	sort.Ints(ports)
	return ports, nil
}
