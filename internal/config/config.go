// Package config loads and validates orchestrator configuration, merged in
// priority order: defaults < config file < environment variables < CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LauncherBackend selects how workers are spawned.
type LauncherBackend string

const (
	BackendAuto      LauncherBackend = "auto"
	BackendProcess   LauncherBackend = "process"
	BackendContainer LauncherBackend = "container"
)

// GateDefinition describes one entry in the quality-gate pipeline. Gates
// run in slice order, so cheap/fast gates should be listed before
// expensive ones (§4.10).
type GateDefinition struct {
	Name           string `yaml:"name"`
	Command        string `yaml:"command"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Required       bool   `yaml:"required"`
}

// SchedulerConfig controls dispatch concurrency.
type SchedulerConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

// HeartbeatConfig controls stall detection (§4.5).
type HeartbeatConfig struct {
	IntervalSeconds     int `yaml:"interval_seconds"`
	StallTimeoutSeconds int `yaml:"stall_timeout_seconds"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// RetryConfig controls the backoff/escalation policy of §4.7.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts"`
	BaseBackoffMS  int     `yaml:"base_backoff_ms"`
	MaxBackoffMS   int     `yaml:"max_backoff_ms"`
	JitterFraction float64 `yaml:"jitter_fraction"`
}

// WorktreeConfig controls isolation substrate naming and cleanup (§4.3).
type WorktreeConfig struct {
	Root         string `yaml:"root"`
	BranchPrefix string `yaml:"branch_prefix"`
	KeepBranches bool   `yaml:"keep_branches"`
}

// LauncherConfig controls worker spawning (§4.4).
type LauncherConfig struct {
	Backend          LauncherBackend `yaml:"backend"`
	WorkerBinary     string          `yaml:"worker_binary"`
	TerminateGraceMS int             `yaml:"terminate_grace_ms"`
	ContainerImage   string          `yaml:"container_image"`
	ContainerdSocket string          `yaml:"containerd_socket"`
	PortRangeStart   int             `yaml:"port_range_start"`
	PortRangeEnd     int             `yaml:"port_range_end"`
	UsePTY           bool            `yaml:"use_pty"`
}

// GateCacheConfig controls the fingerprint-keyed gate result cache (§4.10).
type GateCacheConfig struct {
	FreshnessWindowMinutes int `yaml:"freshness_window_minutes"`
}

// Config is the complete merged orchestrator configuration.
type Config struct {
	Feature  string `yaml:"feature"`
	BaseDir  string `yaml:"base_dir"`
	StateDir string `yaml:"state_dir"`
	LogDir   string `yaml:"log_dir"`

	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Heartbeat HeartbeatConfig  `yaml:"heartbeat"`
	Retry     RetryConfig      `yaml:"retry"`
	Worktree  WorktreeConfig   `yaml:"worktree"`
	Launcher  LauncherConfig   `yaml:"launcher"`
	GateCache GateCacheConfig  `yaml:"gate_cache"`
	Gates     []GateDefinition `yaml:"gates"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns a Config populated with the reference defaults from §4
// and §5 of the specification.
func Default() *Config {
	return &Config{
		BaseDir:  ".",
		StateDir: ".mahabharatha/state",
		LogDir:   ".mahabharatha/logs",
		Scheduler: SchedulerConfig{
			MaxConcurrency: 4,
		},
		Heartbeat: HeartbeatConfig{
			IntervalSeconds:     15,
			StallTimeoutSeconds: 120,
			PollIntervalSeconds: 1,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BaseBackoffMS:  1000,
			MaxBackoffMS:   30000,
			JitterFraction: 0.2,
		},
		Worktree: WorktreeConfig{
			Root:         ".mahabharatha/worktrees",
			BranchPrefix: "mahabharatha",
			KeepBranches: false,
		},
		Launcher: LauncherConfig{
			Backend:          BackendAuto,
			WorkerBinary:     "mahabharatha-worker",
			TerminateGraceMS: 10000,
			PortRangeStart:   9000,
			PortRangeEnd:     9999,
		},
		GateCache: GateCacheConfig{
			FreshnessWindowMinutes: 30,
		},
		LogLevel: "info",
	}
}

// Load merges defaults, an optional YAML config file, and environment
// variables (MAHABHARATHA_*) into a single Config. path may be empty, in
// which case only defaults and environment are applied. The returned
// Config has already passed Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MAHABHARATHA_FEATURE"); v != "" {
		cfg.Feature = v
	}
	if v := os.Getenv("MAHABHARATHA_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v := os.Getenv("MAHABHARATHA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MAHABHARATHA_LAUNCHER_BACKEND"); v != "" {
		cfg.Launcher.Backend = LauncherBackend(v)
	}
	if v := os.Getenv("MAHABHARATHA_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.MaxConcurrency = n
		}
	}
	if v := os.Getenv("MAHABHARATHA_STALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Heartbeat.StallTimeoutSeconds = int(d.Seconds())
		}
	}
	if v := os.Getenv("MAHABHARATHA_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

// Validate rejects non-positive concurrency, heartbeat timings and retry
// attempts, an unknown launcher backend, an inverted port range, and gates
// missing a name or command.
func (c *Config) Validate() error {
	if c.Scheduler.MaxConcurrency <= 0 {
		return fmt.Errorf("config: scheduler.max_concurrency must be positive")
	}
	if c.Heartbeat.StallTimeoutSeconds <= 0 {
		return fmt.Errorf("config: heartbeat.stall_timeout_seconds must be positive")
	}
	if c.Heartbeat.IntervalSeconds <= 0 {
		return fmt.Errorf("config: heartbeat.interval_seconds must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("config: retry.max_attempts must be positive")
	}
	switch c.Launcher.Backend {
	case BackendAuto, BackendProcess, BackendContainer:
	default:
		return fmt.Errorf("config: launcher.backend %q is not one of auto|process|container", c.Launcher.Backend)
	}
	if c.Launcher.PortRangeStart > 0 && c.Launcher.PortRangeEnd > 0 && c.Launcher.PortRangeStart > c.Launcher.PortRangeEnd {
		return fmt.Errorf("config: launcher.port_range_start must be <= port_range_end")
	}
	for _, g := range c.Gates {
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("config: gate definition missing name")
		}
		if strings.TrimSpace(g.Command) == "" {
			return fmt.Errorf("config: gate %s missing command", g.Name)
		}
	}
	return nil
}

// StatePath returns the path to the FeatureState document for feature.
func (c *Config) StatePath(feature string) string {
	return filepath.Join(c.BaseDir, c.StateDir, feature+".json")
}

// HeartbeatPath returns the path to a worker's heartbeat document.
func (c *Config) HeartbeatPath(workerID int) string {
	return filepath.Join(c.BaseDir, c.StateDir, fmt.Sprintf("heartbeat-%d.json", workerID))
}

// EscalationsPath returns the path to the append-only escalations file.
func (c *Config) EscalationsPath(feature string) string {
	return filepath.Join(c.BaseDir, c.StateDir, feature+".escalations.json")
}

// WorkerLogPath returns the path to a worker's structured JSONL log.
func (c *Config) WorkerLogPath(workerID int) string {
	return filepath.Join(c.BaseDir, c.LogDir, "workers", fmt.Sprintf("worker-%d.jsonl", workerID))
}

// StallTimeout returns the configured stall timeout as a Duration.
func (h HeartbeatConfig) StallTimeout() time.Duration {
	return time.Duration(h.StallTimeoutSeconds) * time.Second
}

// Interval returns the configured heartbeat interval as a Duration.
func (h HeartbeatConfig) Interval() time.Duration {
	return time.Duration(h.IntervalSeconds) * time.Second
}

// PollInterval returns the configured poll interval as a Duration.
func (h HeartbeatConfig) PollInterval() time.Duration {
	if h.PollIntervalSeconds <= 0 {
		return time.Second
	}
	return time.Duration(h.PollIntervalSeconds) * time.Second
}

// FreshnessWindow returns the gate cache freshness window as a Duration.
func (g GateCacheConfig) FreshnessWindow() time.Duration {
	return time.Duration(g.FreshnessWindowMinutes) * time.Minute
}

// TerminateGrace returns the launcher's graceful-termination wait.
func (l LauncherConfig) TerminateGrace() time.Duration {
	return time.Duration(l.TerminateGraceMS) * time.Millisecond
}
