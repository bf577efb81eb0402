package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/defectmine/internal/logging"
	"github.com/panbanda/defectmine/pkg/ml"
	"github.com/panbanda/defectmine/pkg/models"
)

func releases(n int) []*models.Release {
	out := make([]*models.Release, n)
	for i := range out {
		out[i] = &models.Release{ID: i + 1, Name: "v" + string(rune('1'+i))}
	}
	return out
}

func ids(rs []*models.Release) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestCut(t *testing.T) {
	tests := []struct {
		name string
		n    int
		pct  float64
		want []int
	}{
		{"half of ten", 10, 0.5, []int{1, 2, 3, 4, 5}},
		{"floor", 5, 0.5, []int{1, 2}},
		{"all", 3, 1, []int{1, 2, 3}},
		{"zero falls back", 4, 0, []int{1, 2}},
		{"above one falls back", 4, 1.5, []int{1, 2}},
		{"tiny", 3, 0.1, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cut(releases(tt.n), tt.pct, logging.Discard())
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func class(rel int, path string, buggy bool, size int) *models.Class {
	return &models.Class{
		Path:    path,
		Buggy:   buggy,
		Release: &models.Release{ID: rel},
		Metrics: models.ClassMetrics{
			Size:       size,
			LOCAdded:   models.Aggregate{Val: 4, Max: 3, Avg: 2},
			LOCTouched: models.Aggregate{Val: 5, Max: 3, Avg: 2.5},
			Revisions:  2,
			Authors:    1,
		},
	}
}

func byRelease() map[int][]*models.Class {
	return map[int][]*models.Class{
		1: {class(1, "B.java", false, 10), class(1, "A.java", true, 20)},
		2: {class(2, "A.java", false, 21)},
		3: {class(3, "A.java", false, 22), class(3, "C.java", true, 5)},
		4: {class(4, "A.java", false, 23)},
	}
}

func TestRows_Ordered(t *testing.T) {
	rows := Rows(byRelease(), 2, 1)
	require.Len(t, rows, 3)
	assert.Equal(t, 1, rows[0].Release)
	assert.Equal(t, "A.java", rows[0].Path)
	assert.Equal(t, "B.java", rows[1].Path)
	assert.Equal(t, 2, rows[2].Release)
}

func TestClassRow_Features(t *testing.T) {
	row := Rows(byRelease(), 1)[0]
	f := row.Features()
	require.Len(t, f, len(ClassFeatures))
	assert.Equal(t, 20.0, f[0])
	assert.Equal(t, []float64{4, 2, 3}, f[1:4])
	assert.Equal(t, []float64{5, 2.5, 3}, f[7:10])
	assert.Equal(t, []float64{2, 0, 1}, f[13:])
}

func TestWalkForward(t *testing.T) {
	classes := byRelease()
	var horizons []int
	relabel := func(_ context.Context, horizon int) error {
		horizons = append(horizons, horizon)
		// Everything becomes buggy once the horizon reaches 2.
		for _, cs := range classes {
			for _, c := range cs {
				c.Buggy = horizon >= 2
			}
		}
		return nil
	}

	steps, err := WalkForward(context.Background(), releases(4), classes, relabel)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, []int{1, 2}, horizons)

	first := steps[0]
	assert.Equal(t, 1, first.Iteration)
	assert.Len(t, first.Training, 2)
	require.Len(t, first.Testing, 1)
	assert.Equal(t, 2, first.Testing[0].Release)
	for _, r := range first.Training {
		assert.False(t, r.Buggy, "first step keeps the labels it was captured with")
	}

	second := steps[1]
	assert.Len(t, second.Training, 3)
	assert.Len(t, second.Testing, 2)
	assert.True(t, second.Training[0].Buggy)
}

func TestWalkForward_SingleRelease(t *testing.T) {
	steps, err := WalkForward(context.Background(), releases(1), byRelease(), nil)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestWalkForward_RelabelError(t *testing.T) {
	boom := errors.New("boom")
	_, err := WalkForward(context.Background(), releases(4), byRelease(), func(context.Context, int) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestWalkForward_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WalkForward(ctx, releases(4), byRelease(), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestIterations(t *testing.T) {
	steps, err := WalkForward(context.Background(), releases(4), byRelease(), nil)
	require.NoError(t, err)

	its := Iterations("PROJ", steps)
	require.Len(t, its, 2)
	assert.Equal(t, "PROJ_1_training", its[0].Train.Name)
	assert.Equal(t, 2, its[0].Train.Len())
	buggy, clean := its[0].Train.Counts()
	assert.Equal(t, 1, buggy)
	assert.Equal(t, 1, clean)
	assert.Equal(t, ClassFeatures, its[1].Test.Features)
}

func methodClasses() map[int][]*models.Class {
	a := class(1, "A.java", false, 10)
	a.Methods = map[string]*models.Method{
		"void b()": {Signature: "void b()", Begin: 9, Metrics: models.MethodMetrics{LOC: 2, Buggy: true}},
		"public int a(int x)": {Signature: "public int a(int x)", Begin: 3, Metrics: models.MethodMetrics{
			LOC: 4, Statements: 2, Cyclomatic: 2, Parameters: 1, Accessor: models.AccessPublic,
			Authors: models.AuthorSet{"ann": {}, "bob": {}}, HalsteadEffort: 12.5, CommentDensity: 0.25,
		}},
	}
	b := class(2, "A.java", false, 10)
	b.Methods = map[string]*models.Method{"void c()": {Signature: "void c()", Begin: 1, Metrics: models.MethodMetrics{LOC: 1}}}
	return map[int][]*models.Class{2: {b}, 1: {a}}
}

func TestMethodRecords(t *testing.T) {
	recs := MethodRecords(methodClasses())
	require.Len(t, recs, 3)
	assert.Equal(t, "public int a(int x)", recs[0].Signature)
	assert.Equal(t, int32(2), recs[0].Authors)
	assert.Equal(t, "void b()", recs[1].Signature)
	assert.Equal(t, models.AccessPackagePrivate, recs[1].Accessor)
	assert.Equal(t, int32(2), recs[2].Release)
}

func TestWriteMethodCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMethodCSV(&buf, MethodRecords(methodClasses())))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, MethodHeader, rows[0])
	assert.Equal(t, []string{
		"1", "A.java", "public int a(int x)", "public",
		"4", "2", "2", "0", "0", "1",
		"0", "2", "0", "0", "0", "0",
		"0", "0", "12.5", "0.25", "0", "NO",
	}, rows[1])
	assert.Equal(t, "YES", rows[2][len(MethodHeader)-1])
}

func TestWriteClassCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteClassCSV(&buf, Rows(byRelease(), 1)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "RELEASE_ID,FILE_NAME,SIZE,LOC_ADDED,LOC_ADDED_AVG,LOC_ADDED_MAX,"+
		"LOC_REMOVED,LOC_REMOVED_AVG,LOC_REMOVED_MAX,LOC_TOUCHED,LOC_TOUCHED_AVG,LOC_TOUCHED_MAX,"+
		"CHURN,CHURN_AVG,CHURN_MAX,NUMBER_OF_REVISIONS,NUMBER_OF_DEFECT_FIXES,NUMBER_OF_AUTHORS,IS_BUGGY", lines[0])
	assert.Equal(t, "1,A.java,20,4,2,3,0,0,0,5,2.5,3,0,0,0,2,0,1,YES", lines[1])
}

func TestWriteARFF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteARFF(&buf, "PROJ_1_training", Rows(byRelease(), 1)))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "@relation PROJ_1_training\n\n@attribute SIZE numeric\n"))
	assert.Contains(t, out, "@attribute NUMBER_OF_AUTHORS numeric\n@attribute IS_BUGGY {'YES', 'NO'}\n\n@data\n")
	assert.Contains(t, out, "\n20,4,2,3,0,0,0,5,2.5,3,0,0,0,2,0,1,YES\n")
	assert.Equal(t, len(ClassFeatures)+1, strings.Count(out, "@attribute"))
}

func TestWriteResults(t *testing.T) {
	res := ml.Result{
		Dataset:         "PROJ",
		Iteration:       1,
		TrainingPercent: 50,
		Combo:           ml.Combo{Classifier: ml.NaiveBayes, Costs: ml.DefaultCostMatrix},
		Metrics:         ml.Metrics{TP: 1, FP: 1, TN: 1, FN: 1, Precision: 0.5, Recall: 0.5, AUC: 0.5, Kappa: 0},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, []ml.Result{res}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ResultHeader, rows[0])
	assert.Equal(t, res.Fields(), rows[1])
}

func TestLayout(t *testing.T) {
	l := Layout{Root: "out", Project: "PROJ"}
	assert.Equal(t, filepath.Join("out", "datasets", "method", "PROJ.csv"), l.MethodCSV())
	assert.Equal(t, filepath.Join("out", "datasets", "classes", "PROJ", "arff", "testing", "PROJ_3.arff"),
		l.ClassSet(Testing, "arff", 3))
	assert.Equal(t, filepath.Join("out", "results", "PROJ", "PROJ_report.csv"), l.Results())
	assert.Equal(t, filepath.Join("out", "summaries", "PROJ", "tickets.json"), l.Summary("tickets"))
}

func TestLayout_WriteStep(t *testing.T) {
	l := Layout{Root: t.TempDir(), Project: "PROJ"}
	steps, err := WalkForward(context.Background(), releases(4), byRelease(), nil)
	require.NoError(t, err)
	require.NoError(t, l.WriteStep(steps[0]))

	for _, kind := range []string{Training, Testing} {
		for _, ext := range []string{"csv", "arff"} {
			assert.FileExists(t, l.ClassSet(kind, ext, 1))
		}
	}
	data, err := os.ReadFile(l.ClassSet(Testing, "arff", 1))
	require.NoError(t, err)
	assert.Contains(t, string(data), "@relation PROJ_1_testing")
}

func TestWriteMethodsParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "methods.parquet")
	recs := MethodRecords(methodClasses())
	require.NoError(t, WriteMethodsParquet(recs, path))

	got, err := parquet.ReadFile[MethodRecord](path)
	require.NoError(t, err)
	assert.Equal(t, recs, got)
}

func TestMethodRecordSchema(t *testing.T) {
	schema := parquet.SchemaOf(new(MethodRecord))
	for _, col := range []string{"release", "class", "signature", "halstead_effort", "buggy"} {
		_, ok := schema.Lookup(col)
		assert.True(t, ok, "column %s", col)
	}
}

func TestReadClassCSV_RoundTrip(t *testing.T) {
	rows := Rows(byRelease(), 1, 3)
	var buf bytes.Buffer
	require.NoError(t, WriteClassCSV(&buf, rows))

	got, err := ReadClassCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestReadClassCSV_Errors(t *testing.T) {
	_, err := ReadClassCSV(strings.NewReader("A,B\n"))
	assert.Error(t, err)

	header := strings.Join(ClassHeader, ",")
	_, err = ReadClassCSV(strings.NewReader(strings.Replace(header, "SIZE", "LOC", 1) + "\n"))
	assert.ErrorIs(t, err, ErrClassHeader)

	_, err = ReadClassCSV(strings.NewReader(header + "\n1,A.java,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,MAYBE\n"))
	assert.ErrorContains(t, err, "line 2")
}

func TestLayout_LoadSteps(t *testing.T) {
	l := Layout{Root: t.TempDir(), Project: "PROJ"}
	steps, err := WalkForward(context.Background(), releases(4), byRelease(), nil)
	require.NoError(t, err)
	for _, s := range steps {
		require.NoError(t, l.WriteStep(s))
	}

	got, err := l.LoadSteps()
	require.NoError(t, err)
	assert.Equal(t, steps, got)
}
