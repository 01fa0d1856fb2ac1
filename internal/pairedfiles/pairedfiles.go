package pairedfiles

import (
	"os"
	"path"
	"strings"

	"github.com/cuemby/orchestrator/internal/config"
)

// Result is the output of Expand: the originally requested files plus any
// discovered companion files (§4.5).
type Result struct {
	Requested  []string
	TestFiles  []string
	SourceFiles []string
	All         []string
}

// Expander computes companion test/source files for a given file set using
// a configured, language-agnostic pattern list. The pattern list is
// configuration, not code (§9 "Paired-locking pattern list").
type Expander struct {
	enabled     bool
	patterns    []config.PairedPattern
	checkExists bool
	fileExists  func(string) bool
}

// New creates an expander from the paired-locking configuration. When
// cfg.Enabled is false, Expand is a no-op that returns exactly the
// requested files (§4.5, §6 "pairedLocking.enabled").
func New(cfg config.PairedLockingConfig) *Expander {
	return &Expander{
		enabled:     cfg.Enabled,
		patterns:    cfg.Patterns,
		checkExists: cfg.CheckExists,
		fileExists:  defaultExists,
	}
}

func defaultExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Options controls a single Expand call.
type Options struct {
	// CheckExists overrides the expander's configured default for this call.
	CheckExists *bool
}

// Expand returns requested ∪ discoveredPeers for the given files (§4.5).
func (e *Expander) Expand(files []string, opts Options) Result {
	checkExists := e.checkExists
	if opts.CheckExists != nil {
		checkExists = *opts.CheckExists
	}

	seen := make(map[string]bool, len(files))
	requested := make([]string, 0, len(files))
	for _, f := range files {
		norm := normalize(f)
		if !seen[norm] {
			seen[norm] = true
			requested = append(requested, norm)
		}
	}

	if !e.enabled {
		return Result{Requested: requested, All: requested}
	}

	var testFiles, sourceFiles []string
	allSeen := make(map[string]bool, len(requested))
	all := make([]string, 0, len(requested))
	for _, f := range requested {
		if !allSeen[f] {
			allSeen[f] = true
			all = append(all, f)
		}
	}

	for _, f := range requested {
		if isTestFile(f) {
			for _, candidate := range e.sourceCandidates(f) {
				if checkExists && !e.fileExists(candidate) {
					continue
				}
				if !allSeen[candidate] {
					allSeen[candidate] = true
					all = append(all, candidate)
					sourceFiles = append(sourceFiles, candidate)
				}
			}
			continue
		}

		for _, candidate := range e.testCandidates(f) {
			if checkExists && !e.fileExists(candidate) {
				continue
			}
			if !allSeen[candidate] {
				allSeen[candidate] = true
				all = append(all, candidate)
				testFiles = append(testFiles, candidate)
			}
		}
	}

	return Result{
		Requested:   requested,
		TestFiles:   testFiles,
		SourceFiles: sourceFiles,
		All:         all,
	}
}

var testDirFragments = []string{"/test/", "/tests/", "/__tests__/", "/spec/"}

func isTestFile(p string) bool {
	lower := "/" + strings.ToLower(p) + "/"
	for _, frag := range testDirFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	base := path.Base(p)
	lowerBase := strings.ToLower(base)
	return strings.HasPrefix(lowerBase, "test_") ||
		strings.Contains(lowerBase, ".test.") ||
		strings.Contains(lowerBase, "_test.") ||
		strings.HasSuffix(strings.TrimSuffix(lowerBase, path.Ext(lowerBase)), ".spec")
}

// testCandidates produces candidate test paths for a source file from
// every pattern whose source directory and extension match.
func (e *Expander) testCandidates(src string) []string {
	dir, base := path.Split(src)
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)

	var out []string
	for _, pat := range e.patterns {
		if pat.Extension != "" && pat.Extension != ext {
			continue
		}
		if pat.SourceDir != "" && !strings.Contains(dir, pat.SourceDir+"/") {
			continue
		}

		if pat.Colocated {
			out = append(out, path.Join(dir, name+pat.Suffix+ext))
			continue
		}

		testDir := dir
		if pat.SourceDir != "" && pat.TestDir != "" {
			testDir = strings.Replace(dir, pat.SourceDir+"/", pat.TestDir+"/", 1)
		}
		out = append(out, path.Join(testDir, name+pat.Suffix+ext))

		if strings.HasPrefix(name, "test_") {
			continue
		}
		out = append(out, path.Join(testDir, "test_"+name+ext))
	}
	return out
}

// sourceCandidates inverts testCandidates for a test file.
func (e *Expander) sourceCandidates(test string) []string {
	dir, base := path.Split(test)
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)
	name = strings.TrimPrefix(name, "test_")

	var out []string
	for _, pat := range e.patterns {
		if pat.Extension != "" && pat.Extension != ext {
			continue
		}

		if pat.Suffix != "" && strings.HasSuffix(name, pat.Suffix) {
			name = strings.TrimSuffix(name, pat.Suffix)
		}

		if pat.Colocated {
			out = append(out, path.Join(dir, name+ext))
			continue
		}

		srcDir := dir
		if pat.SourceDir != "" && pat.TestDir != "" {
			srcDir = strings.Replace(dir, pat.TestDir+"/", pat.SourceDir+"/", 1)
		}
		out = append(out, path.Join(srcDir, name+ext))
	}
	return out
}

func normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimSuffix(p, "/")
}
