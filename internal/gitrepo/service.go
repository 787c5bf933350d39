// Package gitrepo keeps the content directory in step with a git remote.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("content repository is not configured")

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type SyncResult struct {
	Before  CommitInfo `json:"before"`
	After   CommitInfo `json:"after"`
	Updated bool       `json:"updated"`
	Cloned  bool       `json:"cloned"`
}

// Syncer clones the remote into dir on first use and fast-forwards it
// afterwards. Calls are serialized.
type Syncer struct {
	dir    string
	remote string
	branch string
	logger *zap.Logger
	mu     sync.Mutex
}

func NewSyncer(dir, remote, branch string, logger *zap.Logger) *Syncer {
	if branch == "" {
		branch = "main"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{dir: dir, remote: remote, branch: branch, logger: logger}
}

func (s *Syncer) Configured() bool {
	return s.remote != ""
}

func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	if !s.Configured() {
		return SyncResult{}, ErrNotConfigured
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return s.clone(ctx)
	}
	if err != nil {
		return SyncResult{}, fmt.Errorf("open repo: %w", err)
	}

	before, err := headCommit(repo)
	if err != nil {
		return SyncResult{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return SyncResult{}, fmt.Errorf("open worktree: %w", err)
	}
	err = worktree.PullContext(ctx, &git.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(s.branch),
		SingleBranch:  true,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return SyncResult{Before: before, After: before}, nil
	}
	if err != nil {
		return SyncResult{}, fmt.Errorf("pull %s: %w", s.branch, err)
	}

	after, err := headCommit(repo)
	if err != nil {
		return SyncResult{}, err
	}
	s.logger.Info("content pulled", zap.String("from", before.Hash), zap.String("to", after.Hash))
	return SyncResult{Before: before, After: after, Updated: before.Hash != after.Hash}, nil
}

func (s *Syncer) clone(ctx context.Context) (SyncResult, error) {
	if entries, err := os.ReadDir(s.dir); err == nil && len(entries) > 0 {
		return SyncResult{}, fmt.Errorf("content dir %s exists and is not a git repository", s.dir)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return SyncResult{}, fmt.Errorf("create content dir: %w", err)
	}

	repo, err := git.PlainCloneContext(ctx, s.dir, false, &git.CloneOptions{
		URL:           s.remote,
		ReferenceName: plumbing.NewBranchReferenceName(s.branch),
		SingleBranch:  true,
	})
	if err != nil {
		return SyncResult{}, fmt.Errorf("clone %s: %w", s.remote, err)
	}
	after, err := headCommit(repo)
	if err != nil {
		return SyncResult{}, err
	}
	s.logger.Info("content cloned", zap.String("remote", s.remote), zap.String("head", after.Hash))
	return SyncResult{After: after, Updated: true, Cloned: true}, nil
}

// Head returns the checked out commit.
func (s *Syncer) Head() (CommitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}
	return headCommit(repo)
}

// History lists the commits touching path (relative to the content dir),
// newest first. An empty path lists every commit.
func (s *Syncer) History(path string, limit int) ([]CommitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	opts := &git.LogOptions{From: head.Hash()}
	if path != "" {
		rel := filepath.ToSlash(filepath.Clean(path))
		opts.FileName = &rel
	}
	iter, err := repo.Log(opts)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// RelPath converts an absolute article path into a repository path.
func (s *Syncer) RelPath(path string) (string, error) {
	return filepath.Rel(s.dir, path)
}

func headCommit(repo *git.Repository) (CommitInfo, error) {
	ref, err := repo.Head()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("resolve head: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return CommitInfo{}, fmt.Errorf("load commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}
