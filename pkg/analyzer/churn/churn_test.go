package churn

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/defectmine/pkg/models"
	"github.com/panbanda/defectmine/pkg/parser"
)

type fakeHistory struct {
	files   map[string]string // hash + ":" + path
	changes map[string][]models.FileChange
	calls   map[string]int
}

func (f *fakeHistory) FileAt(_ context.Context, hash, path string) (string, error) {
	content, ok := f.files[hash+":"+path]
	if !ok {
		return "", errors.New("not found")
	}
	return content, nil
}

func (f *fakeHistory) Changes(_ context.Context, hash string) ([]models.FileChange, error) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[hash]++
	return f.changes[hash], nil
}

const path = "src/main/java/org/example/Foo.java"

func classFrom(t *testing.T, src string, commits ...*models.Commit) *models.Class {
	t.Helper()
	p := parser.New()
	defer p.Close()

	result, err := p.Parse([]byte(src), path)
	require.NoError(t, err)
	cu := parser.Extract(result)

	cls := &models.Class{
		Path:    path,
		Source:  src,
		Methods: make(map[string]*models.Method),
		Commits: commits,
	}
	for _, m := range cu.Methods {
		cls.Methods[m.Signature] = &models.Method{Signature: m.Signature, Name: m.Name, Body: m.Body}
	}
	return cls
}

func TestLineSetChurn(t *testing.T) {
	tests := []struct {
		name        string
		old, new    string
		wantAdded   int
		wantRemoved int
	}{
		{"identical", "{\n a();\n}", "{\n a();\n}", 0, 0},
		{"added line", "{\n a();\n}", "{\n a();\n b();\n}", 1, 0},
		{"removed line", "{\n a();\n b();\n}", "{\n a();\n}", 0, 1},
		{"replaced line", "{\n a();\n}", "{\n c();\n}", 1, 1},
		{"reordered lines", "{\n a();\n b();\n}", "{\n b();\n a();\n}", 0, 0},
		{"duplicate new lines", "{\n}", "{\n x();\n x();\n}", 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, removed := LineSetChurn(tt.old, tt.new)
			assert.Equal(t, tt.wantAdded, added, "added")
			assert.Equal(t, tt.wantRemoved, removed, "removed")
		})
	}
}

func TestMethodHistory(t *testing.T) {
	v1 := "class Foo {\n  void a() {\n    x();\n  }\n  void b() {\n    y();\n  }\n}\n"
	v2 := "class Foo {\n  void a() {\n    x();\n    z();\n  }\n  void b() {\n    y();\n  }\n}\n"
	v3 := "class Foo {\n  void a() {\n    w();\n    z();\n  }\n  void b() {\n    y();\n  }\n}\n"

	c1 := &models.Commit{Hash: "c1", Author: "alice"}
	c2 := &models.Commit{Hash: "c2", Author: "bob"}
	c3 := &models.Commit{Hash: "c3", Author: "carol"}

	h := &fakeHistory{files: map[string]string{
		"c1:" + path: v1,
		"c2:" + path: v2,
	}}
	cls := classFrom(t, v3, c1, c2, c3)

	a := New(h)
	a.MethodHistory(context.Background(), cls)

	ma := cls.Methods["void a()"].Metrics
	assert.Equal(t, 2, ma.Changes)
	// c1->c2 adds z(); c2->c3 replaces x() with w()
	assert.Equal(t, 2, ma.Added)
	assert.Equal(t, 1, ma.Removed)
	assert.Equal(t, 2, ma.MaxChurn)
	assert.Equal(t, []string{"bob", "carol"}, ma.Authors.Sorted())

	mb := cls.Methods["void b()"].Metrics
	assert.Zero(t, mb.Changes, "unchanged body must not count as a change")
	assert.Zero(t, mb.Added)
	assert.Zero(t, mb.Removed)
	assert.Zero(t, mb.Authors.Len())

	// running again on the same snapshot yields identical metrics
	a.MethodHistory(context.Background(), cls)
	assert.Equal(t, ma, cls.Methods["void a()"].Metrics)
}

func TestMethodHistory_SingleCommit(t *testing.T) {
	src := "class Foo {\n  void a() {\n    x();\n  }\n}\n"
	cls := classFrom(t, src, &models.Commit{Hash: "c1"})
	cls.Methods["void a()"].Metrics.Changes = 9

	New(&fakeHistory{}).MethodHistories(context.Background(), []*models.Class{cls})

	assert.Zero(t, cls.Methods["void a()"].Metrics.Changes)
}

func TestMethodHistory_UnreadableRevisionSkipped(t *testing.T) {
	v2 := "class Foo {\n  void a() {\n    x();\n  }\n}\n"
	v3 := "class Foo {\n  void a() {\n    y();\n  }\n}\n"
	h := &fakeHistory{files: map[string]string{"c2:" + path: v2}}
	cls := classFrom(t, v3,
		&models.Commit{Hash: "c1", Author: "alice"},
		&models.Commit{Hash: "c2", Author: "bob"},
		&models.Commit{Hash: "c3", Author: "carol"},
	)

	New(h).MethodHistories(context.Background(), []*models.Class{cls})

	m := cls.Methods["void a()"].Metrics
	assert.Equal(t, 1, m.Changes)
	assert.Equal(t, []string{"carol"}, m.Authors.Sorted())
}

func TestAggregate(t *testing.T) {
	cls := &models.Class{
		Source: "a\nb\nc\n",
		Commits: []*models.Commit{
			{Hash: "c1", Author: "alice"},
			{Hash: "c2", Author: "bob"},
			{Hash: "c3", Author: "alice"},
		},
		LOCAdded:   []int{10, 2, 0},
		LOCRemoved: []int{4, 6, 1},
	}

	Aggregate(cls, map[string]bool{"c2": true})
	m := cls.Metrics

	assert.Equal(t, 3, m.Size)
	assert.Equal(t, 3, m.Revisions)
	assert.Equal(t, 1, m.DefectFixes)
	assert.Equal(t, 2, m.Authors)

	assert.Equal(t, models.Aggregate{Val: 12, Max: 10, Avg: 4}, m.LOCAdded)
	assert.Equal(t, models.Aggregate{Val: 11, Max: 6, Avg: 11.0 / 3}, m.LOCRemoved)
	// |10-4| + |2-6| + |0-1|
	assert.Equal(t, models.Aggregate{Val: 11, Max: 6, Avg: 11.0 / 3}, m.Churn)
	assert.Equal(t, models.Aggregate{Val: 23, Max: 14, Avg: 23.0 / 3}, m.LOCTouched)
}

func TestAggregate_NoHistory(t *testing.T) {
	cls := &models.Class{Source: ""}
	Aggregate(cls, nil)
	assert.Equal(t, models.ClassMetrics{Size: 1}, cls.Metrics)
}

func TestClassAggregates(t *testing.T) {
	h := &fakeHistory{changes: map[string][]models.FileChange{
		"c2": {{Path: path, Added: 5, Removed: 2}, {Path: "other.java", Added: 1}},
	}}
	root := &models.Commit{Hash: "c1", Author: "alice"}
	child := &models.Commit{Hash: "c2", Author: "bob", Parents: []string{"c1"}}

	a := &models.Class{Path: path, Source: "x", Commits: []*models.Commit{root, child}}
	b := &models.Class{Path: path, Source: "y", Commits: []*models.Commit{child}}

	err := New(h, WithWorkers(2)).ClassAggregates(context.Background(), []*models.Class{a, b}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{5}, a.LOCAdded, "root commit has no diff")
	assert.Equal(t, 5, a.Metrics.LOCAdded.Val)
	assert.Equal(t, 2.5, a.Metrics.LOCAdded.Avg)
	assert.Equal(t, 5, b.Metrics.LOCAdded.Val)
	assert.Equal(t, 1, h.calls["c2"], "diffs are cached per commit")
}
