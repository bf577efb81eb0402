// Package testutil builds git fixtures for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitRepo is a throwaway repository built commit by commit in a test.
type GitRepo struct {
	Path string
	Repo *git.Repository
}

// NewGitRepo initializes an empty repository in a temp dir.
func NewGitRepo(t *testing.T) *GitRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit error: %v", err)
	}
	return &GitRepo{Path: dir, Repo: repo}
}

// Author identifies who makes a fixture commit and when.
type Author struct {
	Name string
	When time.Time
}

// Commit writes files (path -> content; empty content deletes the file),
// stages everything and commits it. It returns the commit hash.
func (g *GitRepo) Commit(t *testing.T, who Author, msg string, files map[string]string) string {
	t.Helper()
	wt, err := g.Repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree error: %v", err)
	}

	for name, content := range files {
		full := filepath.Join(g.Path, name)
		if content == "" {
			if err := os.Remove(full); err != nil {
				t.Fatalf("Remove(%s) error: %v", name, err)
			}
			if _, err := wt.Remove(name); err != nil {
				t.Fatalf("git rm %s error: %v", name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll(%s) error: %v", name, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile(%s) error: %v", name, err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("git add %s error: %v", name, err)
		}
	}

	if who.Name == "" {
		who.Name = "dev"
	}
	if who.When.IsZero() {
		who.When = time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	sig := &object.Signature{Name: who.Name, Email: who.Name + "@example.com", When: who.When}

	hash, err := wt.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	return hash.String()
}
