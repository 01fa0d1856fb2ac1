// Package config loads the engine's YAML configuration, mirroring the knob
// tree the orchestration engine recognizes: hot-store connection and retry,
// lease timing, paired-file patterns, scheduler and assignment tuning,
// coordination thresholds, health-check cadence, and sync intervals.
//
// Load merges a file over Default(), so every field has a sane value even
// when no config file is present.
package config
