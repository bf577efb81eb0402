package defect

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/defectmine/pkg/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// releaseSet returns releases 1..n dated on the first of consecutive months.
func releaseSet(n int) []*models.Release {
	rs := make([]*models.Release, n)
	for i := range n {
		rs[i] = &models.Release{
			ID:   i + 1,
			Name: string(rune('A' + i)),
			Date: time.Date(2020, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC),
		}
	}
	return rs
}

func ticket(rs []*models.Release, key string, ov, fv int, affected ...int) *models.Ticket {
	t := &models.Ticket{
		Key:      key,
		Opening:  models.ReleaseByID(rs, ov),
		Fixed:    models.ReleaseByID(rs, fv),
		Resolved: models.ReleaseByID(rs, fv).Date,
	}
	for _, id := range affected {
		t.Affected = append(t.Affected, models.ReleaseByID(rs, id))
	}
	if len(t.Affected) > 0 {
		t.Injected = t.Affected[0]
	}
	return t
}

func TestTickets(t *testing.T) {
	rs := []*models.Release{
		{ID: 1, Name: "1.0", Date: day("2020-01-01")},
		{ID: 2, Name: "1.1", Date: day("2020-03-01")},
		{ID: 3, Name: "1.2", Date: day("2020-06-01")},
		{ID: 4, Name: "1.3", Date: day("2020-09-01")},
		{ID: 5, Name: "2.0", Date: day("2021-01-01")},
	}
	issues := []models.Issue{
		{Key: "A", Created: day("2020-07-01"), Resolved: day("2020-10-01"), Versions: []string{"1.2", "1.1"}},
		{Key: "B", Created: day("2019-12-01"), Resolved: day("2020-02-01")},
		{Key: "C", Created: day("2021-02-01"), Resolved: day("2021-03-01")},
		{Key: "D", Created: day("2020-07-01"), Resolved: day("2020-10-01"), Versions: []string{"1.3"}},
		{Key: "E", Created: day("2020-04-01"), Resolved: day("2020-05-01")},
		{Key: "F", Created: day("2020-07-01"), Resolved: day("2020-08-01"), Versions: []string{"9.9"}},
	}

	got := Tickets(issues, rs)
	require.Len(t, got, 3)
	assert.Equal(t, "E", got[0].Key, "ordered by resolution date")
	assert.Equal(t, "F", got[1].Key)
	assert.Equal(t, "A", got[2].Key)

	a := got[2]
	assert.Equal(t, 4, a.OpeningID())
	assert.Equal(t, 5, a.FixedID())
	assert.Equal(t, []int{2, 3}, a.AffectedIDs())
	assert.Equal(t, 2, a.InjectedID())

	assert.False(t, got[0].IsCorrect())
	assert.Nil(t, got[0].Injected)
	assert.False(t, got[1].IsCorrect(), "unknown version names are ignored")
}

func TestTickets_NoReleases(t *testing.T) {
	assert.Nil(t, Tickets([]models.Issue{{Key: "A"}}, nil))
}

func TestOf(t *testing.T) {
	rs := releaseSet(5)
	assert.Equal(t, 3.0, Of(ticket(rs, "x", 4, 5, 2)))
	assert.Equal(t, 2.0, Of(ticket(rs, "y", 3, 3, 1)), "same opening and fixed release divides by one")
	assert.Equal(t, 1.5, Of(ticket(rs, "z", 3, 5, 2)))
}

func TestInjectedID(t *testing.T) {
	tests := []struct {
		name   string
		fv, ov int
		p      float64
		want   int
	}{
		{"regular", 5, 4, 3.0, 2},
		{"same release uses P directly", 5, 5, 1.4, 4},
		{"floored at one", 3, 1, 10, 1},
		{"never after fixed", 2, 1, -3, 2},
		{"rounds to nearest", 5, 3, 0.5, 4},
		{"half rounds away from zero", 5, 4, 2.5, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InjectedID(tt.fv, tt.ov, tt.p)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 1)
			assert.LessOrEqual(t, got, tt.fv)
		})
	}
}

// panel serves five correct tickets per project whose proportions are all
// equal to the configured value. A project without a value gets four.
type panel struct {
	values map[string]float64
	calls  atomic.Int32
	fail   map[string]bool
}

func (p *panel) Tickets(_ context.Context, project string) ([]*models.Ticket, error) {
	p.calls.Add(1)
	if p.fail[project] {
		return nil, errors.New("tracker unavailable")
	}
	rs := releaseSet(10)
	v, ok := p.values[project]
	n := 5
	if !ok {
		n = 4
	}
	// FV=10, OV=9, IV=10-v gives proportion v.
	tickets := make([]*models.Ticket, n)
	for i := range tickets {
		tickets[i] = ticket(rs, project, 9, 10, 10-int(v))
	}
	return tickets, nil
}

func referencePanel() *panel {
	return &panel{values: map[string]float64{
		"AVRO":    2,
		"SYNCOPE": 1,
		"STORM":   4,
		"TAJO":    3,
	}}
}

func TestColdStart_MedianOfQualifiedProjects(t *testing.T) {
	src := referencePanel()
	cs := NewColdStart(src, nil, nil)

	v, err := cs.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.5, v, "ZOOKEEPER has fewer than five tickets; median of 1,2,3,4")

	entries := cs.Panel()
	require.Len(t, entries, 5)
	assert.Equal(t, "ZOOKEEPER", entries[4].Project)
	assert.False(t, entries[4].Used)
}

func TestColdStart_ComputedOnce(t *testing.T) {
	src := referencePanel()
	cs := NewColdStart(src, nil, nil)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cs.Value(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 2.5, v)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), src.calls.Load())

	cs.Reset()
	_, err := cs.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(10), src.calls.Load(), "Reset forces a recomputation")
}

func TestColdStart_FailingProjectSkipped(t *testing.T) {
	src := referencePanel()
	src.fail = map[string]bool{"STORM": true}
	cs := NewColdStart(src, nil, nil)

	v, err := cs.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, v, "median of 1,2,3")
}

func TestColdStart_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &panel{fail: map[string]bool{"AVRO": true, "SYNCOPE": true, "STORM": true, "TAJO": true, "ZOOKEEPER": true}}
	cs := NewColdStart(src, nil, nil)
	_, err := cs.Value(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	src.fail = nil
	src.values = referencePanel().values
	v, err := cs.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.5, v, "a failed computation is not cached")
}

func TestColdStart_Preset(t *testing.T) {
	src := referencePanel()
	cs := NewColdStart(src, nil, nil)
	cs.Preset(1.75)

	v, err := cs.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.75, v)
	assert.Zero(t, src.calls.Load())
}

type noColdStart struct{ t *testing.T }

func (n noColdStart) Value(context.Context) (float64, error) {
	n.t.Fatal("cold start must not be used once the pool is large enough")
	return 0, nil
}

func TestEstimator_ColdStartReused(t *testing.T) {
	rs := releaseSet(6)
	tickets := []*models.Ticket{
		ticket(rs, "t1", 3, 4, 2),
		ticket(rs, "t2", 3, 4, 2),
		ticket(rs, "t3", 3, 4, 2),
		ticket(rs, "t4", 5, 6),
		ticket(rs, "t5", 6, 6),
	}
	tickets[4].Resolved = tickets[4].Resolved.Add(time.Hour)

	src := referencePanel()
	est, err := NewEstimator(rs, NewColdStart(src, nil, nil), nil).Apply(context.Background(), tickets)
	require.NoError(t, err)
	require.Len(t, est, 5)

	assert.Equal(t, int32(5), src.calls.Load(), "the panel is mined once for both tickets")

	assert.True(t, est[3].ColdStart)
	assert.Equal(t, 3, est[3].Pool)
	assert.Equal(t, 2.5, est[3].Proportion)
	assert.Equal(t, 3, tickets[3].InjectedID(), "6 - round(1*2.5)")
	assert.Equal(t, 3, tickets[4].InjectedID(), "6 - round(2.5)")

	assert.Equal(t, []int{2, 3}, tickets[0].AffectedIDs(), "affected rewritten to IV..FV-1")
	assert.Equal(t, []int{3, 4, 5}, tickets[3].AffectedIDs())
	assert.False(t, est[0].Estimated)
}

func TestEstimator_PoolMean(t *testing.T) {
	rs := releaseSet(8)
	var tickets []*models.Ticket
	for range ColdStartThreshold {
		tickets = append(tickets, ticket(rs, "c", 3, 4, 2)) // P = 2
	}
	late := ticket(rs, "late", 6, 8)
	tickets = append(tickets, late)

	est, err := NewEstimator(rs, noColdStart{t}, nil).Apply(context.Background(), tickets)
	require.NoError(t, err)

	last := est[len(est)-1]
	assert.False(t, last.ColdStart)
	assert.Equal(t, 2.0, last.Proportion)
	assert.Equal(t, 4, late.InjectedID(), "8 - round(2*2)")
}

type fakeChanges map[string][]models.FileChange

func (f fakeChanges) Changes(_ context.Context, hash string) ([]models.FileChange, error) {
	return f[hash], nil
}

const path = "src/main/java/org/example/Foo.java"

func classAt(r *models.Release, bodies map[string]string) *models.Class {
	cls := &models.Class{Path: path, Release: r, Methods: make(map[string]*models.Method)}
	for sig, body := range bodies {
		cls.Methods[sig] = &models.Method{Signature: sig, Body: body}
	}
	return cls
}

func labelFixture() ([]*models.Release, map[int][]*models.Class, *models.Ticket) {
	rs := releaseSet(5)
	byRelease := make(map[int][]*models.Class)
	for _, r := range rs[:4] {
		byRelease[r.ID] = []*models.Class{classAt(r, map[string]string{
			"void same()":    "{ a(); }",
			"void changed()": "{ b(); }",
			"void gone()":    "{ c(); }",
		})}
	}
	byRelease[5] = []*models.Class{classAt(rs[4], map[string]string{
		"void same()":    "{ a(); }",
		"void changed()": "{ b2(); }",
	})}

	fix := &models.Commit{Hash: "fix", When: day("2020-05-10"), Parents: []string{"p"}, Release: rs[4]}
	tk := ticket(rs, "PROJ-1", 4, 5, 2, 3)
	tk.Created = day("2020-04-15")
	tk.Resolved = day("2020-05-15")
	tk.Commits = []*models.Commit{fix}
	return rs, byRelease, tk
}

func TestLabel_AffectedScenario(t *testing.T) {
	_, byRelease, tk := labelFixture()
	changes := fakeChanges{"fix": {
		{Path: path, Added: 1, Removed: 1},
		{Path: "src/test/java/org/example/FooTest.java", Added: 3},
	}}

	labels, err := NewLabeler(changes, nil).Label(context.Background(), []*models.Ticket{tk}, byRelease)
	require.NoError(t, err)

	for id, want := range map[int]bool{1: false, 2: true, 3: true, 4: true, 5: false} {
		assert.Equal(t, want, byRelease[id][0].Buggy, "release %d", id)
		assert.Equal(t, want, labels.IsBuggy(path, id), "release %d", id)
	}
	assert.Equal(t, []int{2, 3, 4}, labels.Releases(path))
	assert.Equal(t, []string{path}, labels.Paths())
	assert.Equal(t, map[int]int{2: 1, 3: 1, 4: 1}, labels.PerRelease())

	methods := byRelease[2][0].Methods
	assert.False(t, methods["void same()"].Metrics.Buggy)
	assert.True(t, methods["void changed()"].Metrics.Buggy)
	assert.True(t, methods["void gone()"].Metrics.Buggy, "missing in the fixed release")
}

func TestLabel_ResetsAndIgnoresOutOfWindow(t *testing.T) {
	_, byRelease, tk := labelFixture()
	byRelease[1][0].Buggy = true
	byRelease[1][0].Methods["void same()"].Metrics.Buggy = true

	tk.Commits[0].When = day("2020-06-01")
	changes := fakeChanges{"fix": {{Path: path}}}

	_, err := NewLabeler(changes, nil).Label(context.Background(), []*models.Ticket{tk}, byRelease)
	require.NoError(t, err)
	for id := 1; id <= 5; id++ {
		assert.False(t, byRelease[id][0].Buggy, "release %d", id)
	}
	assert.False(t, byRelease[1][0].Methods["void same()"].Metrics.Buggy)
}

func TestLabel_SkipsRootAndDeleted(t *testing.T) {
	_, byRelease, tk := labelFixture()

	deleted := fakeChanges{"fix": {{Path: path, Deleted: true}}}
	_, err := NewLabeler(deleted, nil).Label(context.Background(), []*models.Ticket{tk}, byRelease)
	require.NoError(t, err)
	assert.False(t, byRelease[2][0].Buggy)

	tk.Commits[0].Parents = nil
	_, err = NewLabeler(fakeChanges{"fix": {{Path: path}}}, nil).Label(context.Background(), []*models.Ticket{tk}, byRelease)
	require.NoError(t, err)
	assert.False(t, byRelease[2][0].Buggy)
}

func TestLabel_NoFixedClassKeepsMethodsClean(t *testing.T) {
	_, byRelease, tk := labelFixture()
	delete(byRelease, 5)

	_, err := NewLabeler(fakeChanges{"fix": {{Path: path}}}, nil).Label(context.Background(), []*models.Ticket{tk}, byRelease)
	require.NoError(t, err)
	assert.True(t, byRelease[2][0].Buggy)
	for _, m := range byRelease[2][0].Methods {
		assert.False(t, m.Metrics.Buggy)
	}
}

func TestHorizon(t *testing.T) {
	rs, byRelease, tk := labelFixture()
	changes := fakeChanges{"fix": {{Path: path}}, "early": {{Path: path}}}
	l := NewLabeler(changes, nil)

	_, err := l.Label(context.Background(), []*models.Ticket{tk}, byRelease)
	require.NoError(t, err)
	require.True(t, byRelease[4][0].Buggy)

	labels, err := l.Horizon(context.Background(), []*models.Ticket{tk}, byRelease, 3)
	require.NoError(t, err)
	assert.Empty(t, labels.Paths(), "the ticket is fixed after the horizon")
	assert.False(t, byRelease[2][0].Buggy)
	assert.False(t, byRelease[3][0].Buggy)
	assert.True(t, byRelease[4][0].Buggy, "releases after the horizon keep their labels")

	early := ticket(rs, "PROJ-2", 2, 3, 1)
	early.Created = day("2020-02-01")
	early.Resolved = day("2020-03-20")
	early.Commits = []*models.Commit{{Hash: "early", When: day("2020-03-01"), Parents: []string{"p"}, Release: rs[2]}}

	labels, err = l.Horizon(context.Background(), []*models.Ticket{tk, early}, byRelease, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, labels.Releases(path))
	assert.True(t, byRelease[1][0].Buggy)
	assert.False(t, byRelease[3][0].Buggy)
}
