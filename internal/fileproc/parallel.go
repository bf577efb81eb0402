// Package fileproc provides concurrent source processing utilities.
package fileproc

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/panbanda/defectmine/pkg/parser"
	"github.com/sourcegraph/conc/pool"
)

// ProcessingError represents an error that occurred while processing a file.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e ProcessingError) Unwrap() error {
	return e.Err
}

// ProcessingErrors collects multiple file processing errors.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Len returns the number of collected errors.
func (e *ProcessingErrors) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors)
}

// Error implements the error interface.
func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed to process (first: %v)", len(e.Errors), e.Errors[0])
}

// DefaultWorkerMultiplier is the multiplier applied to NumCPU for worker count.
// 2x suits the mix of CGO parsing and in-memory work done per file.
const DefaultWorkerMultiplier = 2

// Source is a file path with its content.
type Source struct {
	Path    string
	Content []byte
}

// ErrorFunc is called when processing a source fails.
type ErrorFunc func(path string, err error)

// MapSources processes sources in parallel, calling fn with a parser owned by
// the calling goroutine. Failed sources are reported to onError (if set) and
// left out of the result. Results come back ordered by source path.
// If maxWorkers is <= 0, defaults to 2x NumCPU.
func MapSources[T any](
	ctx context.Context,
	sources []Source,
	maxWorkers int,
	fn func(*parser.Parser, Source) (T, error),
	onError ErrorFunc,
) []T {
	if len(sources) == 0 {
		return nil
	}

	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU() * DefaultWorkerMultiplier
	}

	type indexed struct {
		path   string
		result T
	}
	results := make([]indexed, 0, len(sources))
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(maxWorkers)
	for _, src := range sources {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}

			psr := parser.New()
			defer psr.Close()

			result, err := fn(psr, src)
			if err != nil {
				if onError != nil {
					onError(src.Path, err)
				}
				return
			}

			mu.Lock()
			results = append(results, indexed{path: src.Path, result: result})
			mu.Unlock()
		})
	}
	p.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })

	out := make([]T, len(results))
	for i, r := range results {
		out[i] = r.result
	}
	return out
}

// MapSourcesCollectErrors is MapSources with failures gathered into a
// ProcessingErrors value, which is nil when nothing failed.
func MapSourcesCollectErrors[T any](
	ctx context.Context,
	sources []Source,
	maxWorkers int,
	fn func(*parser.Parser, Source) (T, error),
) ([]T, *ProcessingErrors) {
	errs := &ProcessingErrors{}
	results := MapSources(ctx, sources, maxWorkers, fn, errs.Add)
	if !errs.HasErrors() {
		return results, nil
	}
	return results, errs
}
