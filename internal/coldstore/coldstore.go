package coldstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/orchestrator/internal/config"
	"github.com/cuemby/orchestrator/internal/log"
	"github.com/cuemby/orchestrator/internal/metrics"
	"github.com/cuemby/orchestrator/internal/statemachine"
	"github.com/cuemby/orchestrator/internal/types"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog"
)

// Store is the git-committed canonical task-list document (component L). It
// implements statemachine.Committer: milestone transitions call Commit
// directly, while the sync coordinator periodically calls
// CommitDisplaySync to flush the hot-state display block.
type Store struct {
	cfg    config.ColdStoreConfig
	logger zerolog.Logger
	repo   *git.Repository

	mu             sync.Mutex
	lastCommitTime time.Time
}

// New opens (or initializes) the git repository backing the task-list
// document at cfg.RepoPath.
func New(cfg config.ColdStoreConfig) (*Store, error) {
	repo, err := git.PlainOpen(cfg.RepoPath)
	if err != nil {
		if err != git.ErrRepositoryNotExists {
			return nil, fmt.Errorf("coldstore: open repo failed: %w", err)
		}
		repo, err = git.PlainInit(cfg.RepoPath, false)
		if err != nil {
			return nil, fmt.Errorf("coldstore: init repo failed: %w", err)
		}
	}

	return &Store{cfg: cfg, logger: log.WithComponent("coldstore"), repo: repo}, nil
}

func (s *Store) path() string {
	return filepath.Join(s.cfg.RepoPath, s.cfg.TaskListPath)
}

// LoadTaskList reads and parses the canonical document from disk.
func (s *Store) LoadTaskList() (*Document, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		return nil, fmt.Errorf("coldstore: read task list failed: %w", err)
	}
	doc, err := ParseDocument(string(data))
	if err != nil {
		return nil, fmt.Errorf("coldstore: parse task list failed: %w", err)
	}
	return doc, nil
}

// ReconstructState loads the document and returns its cold-only PR view,
// the source of truth the engine rebuilds hot state against after a crash
// (§4.12).
func (s *Store) ReconstructState() (map[string]types.PR, error) {
	doc, err := s.LoadTaskList()
	if err != nil {
		return nil, err
	}
	return doc.ReconstructState(), nil
}

// Commit implements statemachine.Committer: it updates the PR's cold_state
// in the document, writes the file, and commits it with the milestone
// message produced by the state machine. A commit failure here propagates
// back to the state machine, which reverts the in-memory transition
// (§4.4, §4.12).
func (s *Store) Commit(message string, meta statemachine.CommitMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.LoadTaskList()
	if err != nil {
		return err
	}

	if types.IsCold(meta.To) {
		doc.SetColdState(meta.PRID, types.ColdState(meta.To))
	}

	if err := s.writeAndCommit(doc, message); err != nil {
		return err
	}

	s.lastCommitTime = time.Now()
	metrics.CommitsTotal.WithLabelValues("milestone", "written").Inc()
	return nil
}

// CommitDisplaySync periodically flushes the hot-state display block. It
// is guarded by a 5s recent-commit window so a milestone commit always
// wins a race with a periodic flush (§4.12).
func (s *Store) CommitDisplaySync(renderDisplay func(doc *Document) string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasRecentCommit(5 * time.Second) {
		return false, nil
	}

	doc, err := s.LoadTaskList()
	if err != nil {
		return false, err
	}

	doc.SetHotDisplay(renderDisplay(doc))

	message := fmt.Sprintf("chore: sync hot state display (%s)", time.Now().UTC().Format(time.RFC3339))
	if err := s.writeAndCommit(doc, message); err != nil {
		metrics.CommitsTotal.WithLabelValues("display_sync", "failed").Inc()
		return false, err
	}

	s.lastCommitTime = time.Now()
	metrics.CommitsTotal.WithLabelValues("display_sync", "success").Inc()
	return true, nil
}

func (s *Store) hasRecentCommit(window time.Duration) bool {
	return time.Since(s.lastCommitTime) < window
}

func (s *Store) writeAndCommit(doc *Document, message string) error {
	rendered, err := doc.Render()
	if err != nil {
		return err
	}

	if err := os.WriteFile(s.path(), []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("coldstore: write task list failed: %w", err)
	}

	wt, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("coldstore: worktree failed: %w", err)
	}

	if _, err := wt.Add(s.cfg.TaskListPath); err != nil {
		return fmt.Errorf("coldstore: git add failed: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("coldstore: git status failed: %w", err)
	}
	if status.IsClean() {
		s.logger.Debug().Msg("no changes to commit")
		return nil
	}

	authorName := s.cfg.AuthorName
	if authorName == "" {
		authorName = "orchestrator"
	}
	authorEmail := s.cfg.AuthorEmail
	if authorEmail == "" {
		authorEmail = "orchestrator@localhost"
	}

	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("coldstore: git commit failed: %w", err)
	}

	s.logger.Info().Str("message", message).Msg("cold store commit")
	return nil
}
