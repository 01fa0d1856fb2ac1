package coldstore

import (
	"fmt"
	"strings"

	"github.com/cuemby/orchestrator/internal/types"
	"gopkg.in/yaml.v3"
)

const (
	hotDisplayStart = "<!-- HOT STATE DISPLAY -->"
	hotDisplayEnd   = "<!-- END HOT STATE DISPLAY -->"
	fence           = "---"
)

// complexityDoc mirrors types.Complexity for YAML frontmatter.
type complexityDoc struct {
	Score            int    `yaml:"score"`
	EstimatedMinutes int    `yaml:"estimated_minutes"`
	SuggestedModel   string `yaml:"suggested_model"`
	Rationale        string `yaml:"rationale"`
}

type fileChangeDoc struct {
	Path        string `yaml:"path"`
	Action      string `yaml:"action"`
	Description string `yaml:"description"`
}

// prBlock is the per-PR YAML frontmatter shape (§6 "Cold store document").
type prBlock struct {
	PRID           string          `yaml:"pr_id"`
	Title          string          `yaml:"title"`
	ColdState      string          `yaml:"cold_state"`
	Priority       string          `yaml:"priority"`
	Complexity     complexityDoc   `yaml:"complexity"`
	Dependencies   []string        `yaml:"dependencies"`
	EstimatedFiles []fileChangeDoc `yaml:"estimated_files,omitempty"`
	ActualFiles    []fileChangeDoc `yaml:"actual_files,omitempty"`
}

// Document is the fully parsed canonical task-list document.
type Document struct {
	Header      string
	PRs         []prBlock
	HotDisplay  string
	hasHotBlock bool
}

// ParseDocument parses the canonical document text into header, per-PR
// frontmatter blocks, and the hot-state display block (§6).
func ParseDocument(text string) (*Document, error) {
	doc := &Document{}

	body := text
	if idx := strings.Index(body, hotDisplayStart); idx >= 0 {
		end := strings.Index(body, hotDisplayEnd)
		if end < 0 {
			return nil, fmt.Errorf("coldstore: unterminated hot state display block")
		}
		doc.HotDisplay = strings.TrimSpace(body[idx+len(hotDisplayStart) : end])
		doc.hasHotBlock = true
		body = body[:idx] + body[end+len(hotDisplayEnd):]
	}

	segments := strings.Split(body, fence)
	// segments alternate: [header, frontmatter, between-text, frontmatter, ...]
	if len(segments) == 0 {
		return doc, nil
	}
	doc.Header = strings.TrimRight(segments[0], "\n")

	for i := 1; i < len(segments); i += 2 {
		if i >= len(segments) {
			break
		}
		raw := strings.TrimSpace(segments[i])
		if raw == "" {
			continue
		}
		var block prBlock
		if err := yaml.Unmarshal([]byte(raw), &block); err != nil {
			return nil, fmt.Errorf("coldstore: failed to parse PR block %d: %w", (i-1)/2, err)
		}
		if block.PRID == "" {
			continue
		}
		doc.PRs = append(doc.PRs, block)
	}

	return doc, nil
}

// Render reconstructs the document text from its parsed form: the header,
// every PR block, then the hot-state display block when the source had one
// or HotDisplay is set. The display block is always written after the PR
// blocks, not at its original position, and text that sat between or after
// blocks in the source is not reproduced.
func (d *Document) Render() (string, error) {
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(d.Header, "\n"))
	sb.WriteString("\n")

	for _, pr := range d.PRs {
		data, err := yaml.Marshal(pr)
		if err != nil {
			return "", fmt.Errorf("coldstore: failed to render PR %s: %w", pr.PRID, err)
		}
		sb.WriteString("\n---\n")
		sb.Write(data)
		sb.WriteString("---\n")
	}

	if d.hasHotBlock || d.HotDisplay != "" {
		sb.WriteString("\n")
		sb.WriteString(hotDisplayStart)
		sb.WriteString("\n")
		sb.WriteString(d.HotDisplay)
		sb.WriteString("\n")
		sb.WriteString(hotDisplayEnd)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

// FindPR returns the block for prID, or nil.
func (d *Document) FindPR(prID string) *prBlock {
	for i := range d.PRs {
		if d.PRs[i].PRID == prID {
			return &d.PRs[i]
		}
	}
	return nil
}

// SetColdState updates (or no-ops if absent) the cold_state field for prID.
func (d *Document) SetColdState(prID string, state types.ColdState) bool {
	block := d.FindPR(prID)
	if block == nil {
		return false
	}
	block.ColdState = string(state)
	return true
}

// SetHotDisplay replaces the hot-state display block content.
func (d *Document) SetHotDisplay(content string) {
	d.HotDisplay = content
	d.hasHotBlock = true
}

// ReconstructState returns only the cold fields of every PR, with empty
// lease/hot fields, as the engine's §4.12 reconstructState contract.
func (d *Document) ReconstructState() map[string]types.PR {
	out := make(map[string]types.PR, len(d.PRs))
	for _, b := range d.PRs {
		out[b.PRID] = types.PR{
			ID:        b.PRID,
			Title:     b.Title,
			ColdState: types.ColdState(b.ColdState),
			Priority:  types.Priority(b.Priority),
			Complexity: types.Complexity{
				Score:            b.Complexity.Score,
				EstimatedMinutes: b.Complexity.EstimatedMinutes,
				SuggestedModel:   b.Complexity.SuggestedModel,
				Rationale:        b.Complexity.Rationale,
			},
			Dependencies:   append([]string(nil), b.Dependencies...),
			EstimatedFiles: toFileChanges(b.EstimatedFiles),
			ActualFiles:    toFileChanges(b.ActualFiles),
		}
	}
	return out
}

func toFileChanges(docs []fileChangeDoc) []types.FileChange {
	if len(docs) == 0 {
		return nil
	}
	out := make([]types.FileChange, len(docs))
	for i, d := range docs {
		out[i] = types.FileChange{Path: d.Path, Action: types.FileAction(d.Action), Description: d.Description}
	}
	return out
}
