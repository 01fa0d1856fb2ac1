package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RetryConfig controls exponential backoff for hot-store reconnects.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
	Factor       float64       `yaml:"factor"`
}

// RedisConfig describes how to reach the hot store.
type RedisConfig struct {
	URL            string        `yaml:"url"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

// LeaseConfig tunes the file-lease manager (F).
type LeaseConfig struct {
	DefaultTTL         time.Duration `yaml:"defaultTTL"`
	HeartbeatInterval  time.Duration `yaml:"heartbeatInterval"`
	GracePeriod        time.Duration `yaml:"gracePeriod"`
	TrackSets          bool          `yaml:"trackSets"`
	MaxFilesPerRequest int           `yaml:"maxFilesPerRequest"`
}

// PairedPattern is one source/test path-transform rule for the paired-file
// expander (E). Treated as configuration, not code, per the design notes.
type PairedPattern struct {
	SourceDir string `yaml:"sourceDir"`
	TestDir   string `yaml:"testDir"`
	Suffix    string `yaml:"suffix"`
	Extension string `yaml:"extension"`
	Colocated bool   `yaml:"colocated"`
}

// PairedLockingConfig configures the paired-file expander.
type PairedLockingConfig struct {
	Enabled      bool            `yaml:"enabled"`
	Patterns     []PairedPattern `yaml:"patterns"`
	CheckExists  bool            `yaml:"checkExists"`
	RequireTests bool            `yaml:"requireTests"`
}

// HeartbeatConfig tunes the agent registry's liveness window.
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ShutdownConfig tunes supervisor teardown.
type ShutdownConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Graceful bool          `yaml:"graceful"`
}

// SchedulerConfig tunes the MIS scheduler (I).
type SchedulerConfig struct {
	MaxSchedulingTime time.Duration `yaml:"maxSchedulingTime"`
	EnableCaching     bool          `yaml:"enableCaching"`
	CacheTTL          time.Duration `yaml:"cacheTTL"`
	UsePriority       bool          `yaml:"usePriority"`
	UseComplexity     bool          `yaml:"useComplexity"`
	MaxParallelPRs    int           `yaml:"maxParallelPRs"`
	Algorithm         string        `yaml:"algorithm"` // "greedy" or "maximal-degree"
}

// AssignmentConfig tunes the assignment manager (J).
type AssignmentConfig struct {
	Strategy               string        `yaml:"strategy"`
	UseSpecialization       bool          `yaml:"useSpecialization"`
	MaxAssignmentsPerAgent int           `yaml:"maxAssignmentsPerAgent"`
	MinAssignmentInterval  time.Duration `yaml:"minAssignmentInterval"`
}

// CoordinationConfig tunes the coordination-mode manager (K).
type CoordinationConfig struct {
	ModeCheckInterval          time.Duration `yaml:"modeCheckInterval"`
	TransitionCooldown         time.Duration `yaml:"transitionCooldown"`
	IsolatedStateDir           string        `yaml:"isolatedStateDir"`
	AutoReconcile              bool          `yaml:"autoReconcile"`
	HealthDegradationThreshold int           `yaml:"healthDegradationThreshold"`
}

// HealthConfig tunes the hot-store health monitor (B).
type HealthConfig struct {
	Interval                 time.Duration `yaml:"interval"`
	Timeout                  time.Duration `yaml:"timeout"`
	FailureThreshold         int           `yaml:"failureThreshold"`
	DegradedLatencyThreshold time.Duration `yaml:"degradedLatencyThreshold"`
	AutoReconnect            bool          `yaml:"autoReconnect"`
	ReconnectDelay           time.Duration `yaml:"reconnectDelay"`
}

// SyncConfig tunes the sync coordinator (O).
type SyncConfig struct {
	DisplaySyncInterval time.Duration `yaml:"displaySyncInterval"`
}

// ColdStoreConfig locates the canonical document and its git repository.
type ColdStoreConfig struct {
	TaskListPath string `yaml:"taskListPath"`
	RepoPath     string `yaml:"repoPath"`
	AuthorName   string `yaml:"authorName"`
	AuthorEmail  string `yaml:"authorEmail"`
}

// LogConfig matches the flags exposed by the CLI (§6).
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the complete set of knobs the engine recognizes (§6).
type Config struct {
	Redis         RedisConfig         `yaml:"redis"`
	Lease         LeaseConfig         `yaml:"lease"`
	PairedLocking PairedLockingConfig `yaml:"pairedLocking"`
	Heartbeat     HeartbeatConfig     `yaml:"heartbeat"`
	Shutdown      ShutdownConfig      `yaml:"shutdown"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Assignment    AssignmentConfig    `yaml:"assignment"`
	Coordination  CoordinationConfig  `yaml:"coordination"`
	Health        HealthConfig        `yaml:"health"`
	Sync          SyncConfig          `yaml:"sync"`
	ColdStore     ColdStoreConfig     `yaml:"coldStore"`
	Log           LogConfig           `yaml:"log"`
}

// Default returns the engine's built-in defaults.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{
			URL:            "redis://127.0.0.1:6379/0",
			ConnectTimeout: 5 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:  5,
				InitialDelay: 100 * time.Millisecond,
				MaxDelay:     10 * time.Second,
				Factor:       2.0,
			},
		},
		Lease: LeaseConfig{
			DefaultTTL:         5 * time.Minute,
			HeartbeatInterval:  30 * time.Second,
			GracePeriod:        10 * time.Second,
			TrackSets:          true,
			MaxFilesPerRequest: 50,
		},
		PairedLocking: PairedLockingConfig{
			Enabled: true,
			Patterns: []PairedPattern{
				{SourceDir: "src", TestDir: "test", Suffix: ".test", Extension: ".ts"},
				{SourceDir: "src", TestDir: "__tests__", Suffix: ".test", Extension: ".ts"},
				{SourceDir: "", TestDir: "", Suffix: "_test", Extension: ".go", Colocated: true},
			},
			CheckExists:  true,
			RequireTests: false,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 15 * time.Second,
			Timeout:  5 * time.Minute,
		},
		Shutdown: ShutdownConfig{
			Timeout:  30 * time.Second,
			Graceful: true,
		},
		Scheduler: SchedulerConfig{
			MaxSchedulingTime: 100 * time.Millisecond,
			EnableCaching:     true,
			CacheTTL:          5 * time.Second,
			UsePriority:       true,
			UseComplexity:     true,
			MaxParallelPRs:    5,
			Algorithm:         "greedy",
		},
		Assignment: AssignmentConfig{
			Strategy:               "CAPABILITY_MATCHED",
			UseSpecialization:       true,
			MaxAssignmentsPerAgent: 1,
			MinAssignmentInterval:  2 * time.Second,
		},
		Coordination: CoordinationConfig{
			ModeCheckInterval:          10 * time.Second,
			TransitionCooldown:         30 * time.Second,
			IsolatedStateDir:           ".orchestrator/isolated",
			AutoReconcile:              true,
			HealthDegradationThreshold: 3,
		},
		Health: HealthConfig{
			Interval:                 5 * time.Second,
			Timeout:                  2 * time.Second,
			FailureThreshold:         3,
			DegradedLatencyThreshold: 200 * time.Millisecond,
			AutoReconnect:            true,
			ReconnectDelay:           1 * time.Second,
		},
		Sync: SyncConfig{
			DisplaySyncInterval: 30 * time.Second,
		},
		ColdStore: ColdStoreConfig{
			TaskListPath: "docs/task-list.md",
			RepoPath:     ".",
			AuthorName:   "orchestrator",
			AuthorEmail:  "orchestrator@local",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Load reads a YAML config file and merges it over the defaults. A missing
// file is not an error: the caller gets pure defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}
