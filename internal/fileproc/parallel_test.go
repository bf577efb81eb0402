package fileproc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/panbanda/defectmine/pkg/parser"
)

func javaSources(n int) []Source {
	sources := make([]Source, 0, n)
	for i := range n {
		sources = append(sources, Source{
			Path:    fmt.Sprintf("src/C%02d.java", i),
			Content: []byte(fmt.Sprintf("class C%02d { void m() {} }", i)),
		})
	}
	return sources
}

func TestMapSources(t *testing.T) {
	sources := javaSources(12)

	results := MapSources(context.Background(), sources, 3, func(p *parser.Parser, src Source) (string, error) {
		result, err := p.Parse(src.Content, src.Path)
		if err != nil {
			return "", err
		}
		return parser.Extract(result).PrimaryType(), nil
	}, nil)

	if len(results) != len(sources) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(sources))
	}
	for i, name := range results {
		if want := fmt.Sprintf("C%02d", i); name != want {
			t.Errorf("results[%d] = %q, want %q (ordered by path)", i, name, want)
		}
	}
}

func TestMapSources_Empty(t *testing.T) {
	results := MapSources(context.Background(), nil, 0, func(*parser.Parser, Source) (int, error) {
		return 1, nil
	}, nil)
	if results != nil {
		t.Errorf("MapSources(nil) = %v, want nil", results)
	}
}

func TestMapSources_ErrorsReported(t *testing.T) {
	sources := javaSources(4)
	sources = append(sources, Source{Path: "src/Broken.java", Content: []byte("class {")})

	var failures atomic.Int32
	results := MapSources(context.Background(), sources, 0, func(p *parser.Parser, src Source) (string, error) {
		if _, err := p.Parse(src.Content, src.Path); err != nil {
			return "", err
		}
		return src.Path, nil
	}, func(path string, err error) {
		if path != "src/Broken.java" {
			t.Errorf("unexpected failure for %s: %v", path, err)
		}
		failures.Add(1)
	})

	if len(results) != 4 {
		t.Errorf("len(results) = %d, want 4", len(results))
	}
	if failures.Load() != 1 {
		t.Errorf("failures = %d, want 1", failures.Load())
	}
}

func TestMapSourcesCollectErrors(t *testing.T) {
	boom := errors.New("boom")
	sources := javaSources(3)

	results, errs := MapSourcesCollectErrors(context.Background(), sources, 2, func(_ *parser.Parser, src Source) (string, error) {
		if src.Path == "src/C01.java" {
			return "", boom
		}
		return src.Path, nil
	})

	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
	if errs == nil || errs.Len() != 1 {
		t.Fatalf("errs = %v, want one error", errs)
	}
	if !errors.Is(errs.Errors[0], boom) {
		t.Errorf("errs.Errors[0] = %v, want wrapped boom", errs.Errors[0])
	}
}

func TestMapSources_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := MapSources(ctx, javaSources(5), 1, func(*parser.Parser, Source) (int, error) {
		return 1, nil
	}, nil)
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0 after cancel", len(results))
	}
}

func TestProcessingErrors(t *testing.T) {
	errs := &ProcessingErrors{}
	if errs.HasErrors() {
		t.Error("empty collection should have no errors")
	}
	if errs.Error() != "no errors" {
		t.Errorf("Error() = %q", errs.Error())
	}

	errs.Add("a.java", errors.New("x"))
	if errs.Error() != "a.java: x" {
		t.Errorf("Error() = %q", errs.Error())
	}

	errs.Add("b.java", errors.New("y"))
	if errs.Len() != 2 {
		t.Errorf("Len() = %d, want 2", errs.Len())
	}
}
