package jira

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/defectmine/internal/cache"
	"github.com/panbanda/defectmine/pkg/analyzer/defect"
)

type fakeJira struct {
	versions []map[string]string
	issues   []map[string]any
	pageSize int
	requests atomic.Int32
	lastJQL  atomic.Value
}

func (f *fakeJira) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/rest/api/2/project/PROJ/versions":
		_ = json.NewEncoder(w).Encode(f.versions)
	case "/rest/api/2/search":
		f.lastJQL.Store(r.URL.Query().Get("jql"))
		start, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		end := min(start+f.pageSize, len(f.issues))
		if start > end {
			start = end
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"startAt":    start,
			"maxResults": f.pageSize,
			"total":      len(f.issues),
			"issues":     f.issues[start:end],
		})
	default:
		http.Error(w, "no such endpoint", http.StatusNotFound)
	}
}

func issue(key, created, resolved string, versions ...string) map[string]any {
	vs := make([]map[string]string, 0, len(versions))
	for _, v := range versions {
		vs = append(vs, map[string]string{"name": v})
	}
	return map[string]any{
		"key": key,
		"fields": map[string]any{
			"created":        created,
			"resolutiondate": resolved,
			"versions":       vs,
		},
	}
}

func newFake(t *testing.T) (*fakeJira, *httptest.Server) {
	t.Helper()
	f := &fakeJira{
		pageSize: 2,
		versions: []map[string]string{
			{"name": "1.1", "releaseDate": "2020-06-01"},
			{"name": "unreleased"},
			{"name": "1.0", "releaseDate": "2020-01-01"},
			{"name": "2.0", "releaseDate": "2021-01-01"},
		},
		issues: []map[string]any{
			issue("PROJ-1", "2020-02-03T10:00:00.000+0000", "2020-07-01T10:00:00.000+0000", "1.0"),
			issue("PROJ-2", "2019-12-01T00:00:00.000+0000", "2020-03-05T00:00:00.000+0000"),
			issue("PROJ-3", "2020-04-01T00:00:00.000+0000", ""),
			issue("PROJ-4", "2020-05-01T00:00:00.000+0000", "2020-12-24T23:59:00.000+0000", "1.1", "2.0"),
			issue("PROJ-5", "2020-09-01T00:00:00.000+0000", "2020-10-01T00:00:00.000+0000"),
		},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func TestReleases(t *testing.T) {
	_, srv := newFake(t)
	c := New(srv.URL, WithRateLimit(0))

	releases, err := c.Releases(context.Background(), "PROJ")
	require.NoError(t, err)
	require.Len(t, releases, 3)

	names := []string{releases[0].Name, releases[1].Name, releases[2].Name}
	assert.Equal(t, []string{"1.0", "1.1", "2.0"}, names)
	for i, r := range releases {
		assert.Equal(t, i+1, r.ID)
	}
	assert.Equal(t, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), releases[1].Date)
}

func TestIssues_Paginates(t *testing.T) {
	f, srv := newFake(t)
	c := New(srv.URL, WithRateLimit(0))

	issues, err := c.Issues(context.Background(), "PROJ")
	require.NoError(t, err)

	// PROJ-3 has no resolution date
	keys := make([]string, 0, len(issues))
	for _, is := range issues {
		keys = append(keys, is.Key)
	}
	assert.Equal(t, []string{"PROJ-1", "PROJ-2", "PROJ-4", "PROJ-5"}, keys)
	assert.Equal(t, int32(3), f.requests.Load(), "five issues at two per page")

	assert.Equal(t, []string{"1.1", "2.0"}, issues[2].Versions)
	assert.Equal(t, time.Date(2020, 12, 24, 0, 0, 0, 0, time.UTC), issues[2].Resolved)
	assert.Equal(t, JQL("PROJ"), f.lastJQL.Load())
}

func TestJQL(t *testing.T) {
	want := `project = "AVRO" AND issueType = "Bug" AND (status = "closed" OR status = "resolved") AND resolution = "fixed"`
	assert.Equal(t, want, JQL("AVRO"))
}

func TestCachedResponses(t *testing.T) {
	f, srv := newFake(t)
	ch, err := cache.New(filepath.Join(t.TempDir(), "jira"), time.Hour, true)
	require.NoError(t, err)
	c := New(srv.URL, WithRateLimit(0), WithCache(ch))

	for range 2 {
		_, err := c.Releases(context.Background(), "PROJ")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.requests.Load())
}

func TestStatusError(t *testing.T) {
	_, srv := newFake(t)
	c := New(srv.URL, WithRateLimit(0))

	_, err := c.Releases(context.Background(), "MISSING")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Status)
}

func TestCancelledContext(t *testing.T) {
	_, srv := newFake(t)
	c := New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Issues(ctx, "PROJ")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrackerPanel(t *testing.T) {
	_, srv := newFake(t)
	panel := defect.TrackerPanel{Tracker: New(srv.URL, WithRateLimit(0))}

	tickets, err := panel.Tickets(context.Background(), "PROJ")
	require.NoError(t, err)

	// PROJ-2 opens in the first release; PROJ-4's first affected version
	// is not before its opening release.
	require.Len(t, tickets, 2)
	assert.Equal(t, "PROJ-1", tickets[0].Key)
	assert.Equal(t, "PROJ-5", tickets[1].Key)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2020-01-02", time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), false},
		{"2020-01-02T23:59:59.000+0900", time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), false},
		{"", time.Time{}, true},
		{"2020-13-40", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
