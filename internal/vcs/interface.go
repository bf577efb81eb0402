// Package vcs provides the git access the mining pipeline needs.
package vcs

import (
	"context"

	"github.com/panbanda/defectmine/pkg/models"
)

// File is a blob read from a commit's tree.
type File struct {
	Path    string
	Content string
}

// Repository is the read side of a mined repository. Implementations must be
// safe for concurrent use.
type Repository interface {
	// Path returns the root of the working tree.
	Path() string
	// Commits returns every commit reachable from any local or remote branch.
	Commits(ctx context.Context) ([]*models.Commit, error)
	// Files returns the blobs in the commit's tree whose path passes keep.
	Files(ctx context.Context, hash string, keep func(path string) bool) ([]File, error)
	// FileAt returns the content of path as of the commit.
	FileAt(ctx context.Context, hash, path string) (string, error)
	// Changes returns per-file line counts of the commit's diff against its
	// first parent.
	Changes(ctx context.Context, hash string) ([]models.FileChange, error)
}

// Worktree is the write side used when an external tool needs the files of
// a revision on disk.
type Worktree interface {
	// CurrentRef returns the branch name, or the commit hash when detached.
	CurrentRef() (string, error)
	// Checkout forces the working tree to the given commit.
	Checkout(ctx context.Context, hash string) error
	// Restore returns the working tree to a ref obtained from CurrentRef.
	Restore(ref string) error
}

var (
	_ Repository = (*Repo)(nil)
	_ Worktree   = (*Repo)(nil)
)
