package pairedfiles

import (
	"testing"

	"github.com/cuemby/orchestrator/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func goPattern() config.PairedPattern {
	return config.PairedPattern{Suffix: "_test", Extension: ".go", Colocated: true}
}

func tsPattern() config.PairedPattern {
	return config.PairedPattern{SourceDir: "src", TestDir: "test", Suffix: ".test", Extension: ".ts"}
}

func TestExpand_Disabled_NoOp(t *testing.T) {
	e := New(config.PairedLockingConfig{Enabled: false, Patterns: []config.PairedPattern{goPattern()}})
	result := e.Expand([]string{"pkg/foo.go"}, Options{})
	assert.Equal(t, []string{"pkg/foo.go"}, result.Requested)
	assert.Equal(t, []string{"pkg/foo.go"}, result.All)
	assert.Empty(t, result.TestFiles)
}

func TestExpand_ColocatedGoSourceDiscoversTest(t *testing.T) {
	e := New(config.PairedLockingConfig{
		Enabled:     true,
		Patterns:    []config.PairedPattern{goPattern()},
		CheckExists: false,
	})
	result := e.Expand([]string{"pkg/foo.go"}, Options{})
	require.Contains(t, result.All, "pkg/foo.go")
	require.Contains(t, result.All, "pkg/foo_test.go")
	assert.Equal(t, []string{"pkg/foo_test.go"}, result.TestFiles)
}

func TestExpand_ColocatedGoTestDiscoversSource(t *testing.T) {
	e := New(config.PairedLockingConfig{
		Enabled:     true,
		Patterns:    []config.PairedPattern{goPattern()},
		CheckExists: false,
	})
	result := e.Expand([]string{"pkg/foo_test.go"}, Options{})
	require.Contains(t, result.All, "pkg/foo.go")
	assert.Equal(t, []string{"pkg/foo.go"}, result.SourceFiles)
}

func TestExpand_TypescriptSourceToTestDir(t *testing.T) {
	e := New(config.PairedLockingConfig{
		Enabled:     true,
		Patterns:    []config.PairedPattern{tsPattern()},
		CheckExists: false,
	})
	result := e.Expand([]string{"src/widgets/button.ts"}, Options{})
	assert.Contains(t, result.All, "test/widgets/button.test.ts")
}

func TestExpand_CheckExistsFiltersMissingCandidates(t *testing.T) {
	e := New(config.PairedLockingConfig{
		Enabled:     true,
		Patterns:    []config.PairedPattern{goPattern()},
		CheckExists: true,
	})
	e.fileExists = func(string) bool { return false }

	result := e.Expand([]string{"pkg/foo.go"}, Options{})
	assert.Equal(t, []string{"pkg/foo.go"}, result.All)
	assert.Empty(t, result.TestFiles)
}

func TestExpand_CheckExistsOverridePerCall(t *testing.T) {
	e := New(config.PairedLockingConfig{
		Enabled:     true,
		Patterns:    []config.PairedPattern{goPattern()},
		CheckExists: true,
	})
	e.fileExists = func(string) bool { return false }

	noCheck := false
	result := e.Expand([]string{"pkg/foo.go"}, Options{CheckExists: &noCheck})
	assert.Contains(t, result.All, "pkg/foo_test.go")
}

func TestExpand_DeduplicatesRequested(t *testing.T) {
	e := New(config.PairedLockingConfig{Enabled: true})
	result := e.Expand([]string{"a.go", "a.go", "a.go"}, Options{})
	assert.Equal(t, []string{"a.go"}, result.Requested)
}

func TestExpand_NormalizesBackslashes(t *testing.T) {
	e := New(config.PairedLockingConfig{Enabled: true})
	result := e.Expand([]string{`src\foo.go`}, Options{})
	assert.Equal(t, []string{"src/foo.go"}, result.Requested)
}
