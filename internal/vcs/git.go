package vcs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/sirupsen/logrus"

	"github.com/panbanda/defectmine/internal/logging"
	"github.com/panbanda/defectmine/pkg/models"
)

// ErrNoParent is returned by Changes for root commits.
var ErrNoParent = errors.New("commit has no parent")

// DefaultHandles is the number of idle repository handles kept for reuse.
const DefaultHandles = 8

// Repo wraps a go-git repository. go-git objects are not shared across
// goroutines: each read borrows its own handle opened on the same path.
type Repo struct {
	path    string
	primary *git.Repository
	handles chan *git.Repository
	logger  logrus.FieldLogger
}

// Option configures a Repo.
type Option func(*Repo)

// WithLogger sets the logger used for recoverable failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Repo) {
		r.logger = logging.OrDiscard(l)
	}
}

// WithHandles sets how many idle handles are kept.
func WithHandles(n int) Option {
	return func(r *Repo) {
		if n > 0 {
			r.handles = make(chan *git.Repository, n)
		}
	}
}

func newRepo(path string, repo *git.Repository, opts ...Option) *Repo {
	r := &Repo{
		path:    path,
		primary: repo,
		handles: make(chan *git.Repository, DefaultHandles),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open opens an existing repository.
func Open(path string, opts ...Option) (*Repo, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return newRepo(path, repo, opts...), nil
}

// Clone clones url into dir.
func Clone(ctx context.Context, url, dir string, opts ...Option) (*Repo, error) {
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: url})
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", url, err)
	}
	return newRepo(dir, repo, opts...), nil
}

// OpenOrClone reuses a previous clone in dir when one exists.
func OpenOrClone(ctx context.Context, url, dir string, opts ...Option) (*Repo, error) {
	if repo, err := git.PlainOpen(dir); err == nil {
		return newRepo(dir, repo, opts...), nil
	}
	return Clone(ctx, url, dir, opts...)
}

// Path returns the root of the working tree.
func (r *Repo) Path() string {
	return r.path
}

func (r *Repo) acquire() (*git.Repository, error) {
	select {
	case h := <-r.handles:
		return h, nil
	default:
		return git.PlainOpen(r.path)
	}
}

func (r *Repo) release(h *git.Repository) {
	select {
	case r.handles <- h:
	default:
	}
}

func (r *Repo) commit(h *git.Repository, hash string) (*object.Commit, error) {
	c, err := h.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", hash, err)
	}
	return c, nil
}

// Commits returns every commit reachable from any local or remote branch,
// deduplicated and sorted by committer time.
func (r *Repo) Commits(ctx context.Context) ([]*models.Commit, error) {
	h, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer r.release(h)

	refs, err := h.References()
	if err != nil {
		return nil, err
	}
	var heads []plumbing.Hash
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() == plumbing.HashReference && (ref.Name().IsBranch() || ref.Name().IsRemote()) {
			heads = append(heads, ref.Hash())
		}
		return nil
	})
	refs.Close()
	if err != nil {
		return nil, err
	}

	seen := make(map[plumbing.Hash]bool)
	var commits []*models.Commit
	for _, head := range heads {
		if seen[head] {
			continue
		}
		start, err := h.CommitObject(head)
		if err != nil {
			r.logger.WithError(err).WithField("ref", head.String()).Warn("skipping unreadable branch head")
			continue
		}
		iter := object.NewCommitPreorderIter(start, seen, nil)
		err = iter.ForEach(func(c *object.Commit) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if seen[c.Hash] {
				return nil
			}
			seen[c.Hash] = true
			commits = append(commits, toModel(c))
			return nil
		})
		iter.Close()
		if err != nil && !errors.Is(err, storer.ErrStop) {
			return nil, err
		}
	}

	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].When.Before(commits[j].When)
	})
	return commits, nil
}

func toModel(c *object.Commit) *models.Commit {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return &models.Commit{
		Hash:    c.Hash.String(),
		Author:  c.Author.Name,
		Email:   c.Author.Email,
		When:    c.Committer.When,
		Message: c.Message,
		Parents: parents,
	}
}

// Files returns the non-binary blobs of the commit's tree that pass keep, in
// path order.
func (r *Repo) Files(ctx context.Context, hash string, keep func(path string) bool) ([]File, error) {
	h, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer r.release(h)

	c, err := r.commit(h, hash)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}

	var files []File
	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if keep != nil && !keep(f.Name) {
			return nil
		}
		if bin, _ := f.IsBinary(); bin {
			return nil
		}
		content, err := f.Contents()
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		files = append(files, File{Path: f.Name, Content: content})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// FileAt returns the content of path as of the commit.
func (r *Repo) FileAt(ctx context.Context, hash, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h, err := r.acquire()
	if err != nil {
		return "", err
	}
	defer r.release(h)

	c, err := r.commit(h, hash)
	if err != nil {
		return "", err
	}
	f, err := c.File(path)
	if err != nil {
		return "", fmt.Errorf("%s at %s: %w", path, hash, err)
	}
	return f.Contents()
}

// Changes returns the files touched by the commit relative to its first
// parent with their added and removed line counts.
func (r *Repo) Changes(ctx context.Context, hash string) ([]models.FileChange, error) {
	h, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer r.release(h)

	c, err := r.commit(h, hash)
	if err != nil {
		return nil, err
	}
	if c.NumParents() == 0 {
		return nil, ErrNoParent
	}
	parent, err := c.Parent(0)
	if err != nil {
		return nil, err
	}

	from, err := parent.Tree()
	if err != nil {
		return nil, err
	}
	to, err := c.Tree()
	if err != nil {
		return nil, err
	}
	patch, err := from.PatchContext(ctx, to)
	if err != nil {
		return nil, err
	}

	var changes []models.FileChange
	for _, fp := range patch.FilePatches() {
		before, after := fp.Files()
		change := models.FileChange{}
		switch {
		case after != nil:
			change.Path = after.Path()
		case before != nil:
			change.Path = before.Path()
			change.Deleted = true
		default:
			continue
		}
		if !fp.IsBinary() {
			change.Added, change.Removed = countChunks(fp.Chunks())
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func countChunks(chunks []diff.Chunk) (added, removed int) {
	for _, chunk := range chunks {
		n := lineCount(chunk.Content())
		switch chunk.Type() {
		case diff.Add:
			added += n
		case diff.Delete:
			removed += n
		}
	}
	return added, removed
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
