package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesDocumentedKnobs(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "redis://127.0.0.1:6379/0", cfg.Redis.URL)
	assert.Equal(t, 5*time.Minute, cfg.Lease.DefaultTTL)
	assert.Equal(t, 5, cfg.Scheduler.MaxParallelPRs)
	assert.Equal(t, "CAPABILITY_MATCHED", cfg.Assignment.Strategy)
	assert.Equal(t, "docs/task-list.md", cfg.ColdStore.TaskListPath)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	contents := `
redis:
  url: "redis://cache.internal:6379/2"
scheduler:
  maxParallelPRs: 10
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis://cache.internal:6379/2", cfg.Redis.URL)
	assert.Equal(t, 10, cfg.Scheduler.MaxParallelPRs)

	// Everything untouched by the file keeps its default value.
	assert.Equal(t, Default().Lease.DefaultTTL, cfg.Lease.DefaultTTL)
	assert.Equal(t, Default().Assignment.Strategy, cfg.Assignment.Strategy)
}

func TestLoad_InvalidYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
