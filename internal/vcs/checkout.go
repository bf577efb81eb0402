package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Files git leaves behind after an interrupted merge. Removing them (and the
// index) lets a forced checkout succeed on a wedged working tree.
var mergeState = []string{"MERGE_HEAD", "MERGE_MSG", "MERGE_MODE", "index"}

var worktreeMu sync.Map // path -> *sync.Mutex

func (r *Repo) lockWorktree() func() {
	mu, _ := worktreeMu.LoadOrStore(r.path, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Dirty reports whether tracked files have uncommitted changes.
// Untracked files are not considered dirty.
func (r *Repo) Dirty() (bool, error) {
	wt, err := r.primary.Worktree()
	if err != nil {
		return false, err
	}
	status, err := wt.Status()
	if err != nil {
		return false, err
	}
	for _, s := range status {
		if s.Staging == git.Untracked && s.Worktree == git.Untracked {
			continue
		}
		if s.Staging != git.Unmodified || s.Worktree != git.Unmodified {
			return true, nil
		}
	}
	return false, nil
}

// CurrentRef returns the current branch name or, for a detached HEAD, the
// commit hash.
func (r *Repo) CurrentRef() (string, error) {
	head, err := r.primary.Head()
	if err != nil {
		return "", err
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	return head.Hash().String(), nil
}

// Checkout force-checks-out the commit. If the first attempt fails the merge
// state is cleared, the tree hard-reset and cleaned, and the checkout is
// retried once.
func (r *Repo) Checkout(ctx context.Context, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := r.lockWorktree()
	defer unlock()

	wt, err := r.primary.Worktree()
	if err != nil {
		return err
	}
	opts := &git.CheckoutOptions{Hash: plumbing.NewHash(hash), Force: true}

	first := wt.Checkout(opts)
	if first == nil {
		return nil
	}
	r.logger.WithError(first).WithField("commit", hash).Warn("checkout failed, cleaning worktree and retrying")

	if err := r.unwedge(wt); err != nil {
		return fmt.Errorf("checkout %s: %w", hash, errors.Join(first, err))
	}
	if err := wt.Checkout(opts); err != nil {
		return fmt.Errorf("checkout %s after cleanup: %w", hash, err)
	}
	return nil
}

func (r *Repo) unwedge(wt *git.Worktree) error {
	gitDir := filepath.Join(r.path, git.GitDirName)
	for _, name := range mergeState {
		if err := os.Remove(filepath.Join(gitDir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return fmt.Errorf("hard reset: %w", err)
	}
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("clean: %w", err)
	}
	return nil
}

// Restore checks out ref, trying it as a branch name first and then as a
// revision.
func (r *Repo) Restore(ref string) error {
	unlock := r.lockWorktree()
	defer unlock()

	wt, err := r.primary.Worktree()
	if err != nil {
		return err
	}

	branch := plumbing.NewBranchReferenceName(ref)
	if _, err := r.primary.Reference(branch, true); err == nil {
		return wt.Checkout(&git.CheckoutOptions{Branch: branch, Force: true})
	}

	hash, err := r.primary.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return fmt.Errorf("restore %s: %w", ref, err)
	}
	return wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true})
}
