package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/defectmine/pkg/models"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func commit(hash, day string) *models.Commit {
	return &models.Commit{Hash: hash, When: date(day).Add(12 * time.Hour)}
}

func TestBuild_BucketsAndPrunes(t *testing.T) {
	releases := []*models.Release{
		{Name: "1.0", Date: date("2020-01-01")},
		{Name: "1.1", Date: date("2020-06-01")},
		{Name: "2.0", Date: date("2021-01-01")},
	}
	commits := []*models.Commit{
		commit("c", "2020-07-01"),
		commit("a", "2019-12-15"),
		commit("b", "2020-03-01"),
		commit("a", "2019-12-15"),
	}

	got, assigned := Build(releases, commits)
	require.Len(t, got, 3)
	require.Len(t, assigned, 3, "duplicate hashes are collapsed")

	assert.Equal(t, []int{1, 2, 3}, []int{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "a", got[0].Commits[0].Hash)
	assert.Equal(t, "b", got[1].Commits[0].Hash)
	assert.Equal(t, "c", got[2].Commits[0].Hash)
	assert.Equal(t, 2, got[1].Commits[0].ReleaseID())
}

func TestBuild_DropsEmptyAndRenumbers(t *testing.T) {
	releases := []*models.Release{
		{Name: "1.0", Date: date("2020-01-01")},
		{Name: "1.1", Date: date("2020-06-01")},
		{Name: "2.0", Date: date("2021-01-01")},
	}
	commits := []*models.Commit{
		commit("a", "2019-12-15"),
		commit("b", "2020-01-01"),
		commit("c", "2020-07-01"),
		commit("d", "2020-12-01"),
		commit("e", "2021-01-01"),
	}

	got, _ := Build(releases, commits)
	require.Len(t, got, 2)
	assert.Len(t, got[0].Commits, 2)
	assert.Len(t, got[1].Commits, 3)
	assert.Equal(t, "1.0", got[0].Name)
	assert.Equal(t, "2.0", got[1].Name)
	assert.Equal(t, 2, got[1].ID, "ids stay contiguous after pruning")
}

func TestBuild_BoundaryDayIsInclusive(t *testing.T) {
	releases := []*models.Release{
		{Name: "1.0", Date: date("2020-01-01")},
		{Name: "1.1", Date: date("2020-06-01")},
	}
	got, _ := Build(releases, []*models.Commit{commit("x", "2020-01-01")})
	require.Len(t, got, 1)
	assert.Equal(t, "1.0", got[0].Name)
}

func TestBuild_SameDateReleases(t *testing.T) {
	releases := []*models.Release{
		{Name: "1.0", Date: date("2020-01-01")},
		{Name: "1.0.1", Date: date("2020-01-01")},
	}
	got, assigned := Build(releases, []*models.Commit{commit("x", "2019-12-01")})

	require.Len(t, got, 1, "the second release's lower bound equals its own date")
	assert.Equal(t, "1.0", got[0].Name)
	require.Len(t, assigned, 1)

	releases = []*models.Release{
		{Name: "0.9", Date: date("2019-01-01")},
		{Name: "1.0", Date: date("2020-01-01")},
		{Name: "1.0-hotfix", Date: date("2020-01-01")},
	}
	got, assigned = Build(releases, []*models.Commit{commit("y", "2019-06-01"), commit("z", "2020-01-01")})
	require.Len(t, got, 1, "0.9 predates every commit")
	assert.Equal(t, "1.0", got[0].Name)
	assert.Equal(t, 1, got[0].ID)
	assert.Len(t, assigned, 2)
}

func TestBuild_NonIncreasingDatesAssignTwice(t *testing.T) {
	releases := []*models.Release{
		{Name: "a", Date: date("2020-06-01")},
		{Name: "b", Date: date("2020-01-01")},
		{Name: "c", Date: date("2020-06-01")},
	}
	got, assigned := Build(releases, []*models.Commit{commit("x", "2020-03-01")})

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "c", got[1].Name)
	require.Len(t, assigned, 2)
	assert.Equal(t, "x", assigned[0].Hash)
	assert.Equal(t, "x", assigned[1].Hash)
	assert.NotSame(t, assigned[0], assigned[1])
	assert.Equal(t, 1, got[0].Commits[0].ReleaseID())
	assert.Equal(t, 2, got[1].Commits[0].ReleaseID())
}

func TestBuild_CommitsChronological(t *testing.T) {
	releases := []*models.Release{{Name: "1.0", Date: date("2020-12-31")}}
	got, _ := Build(releases, []*models.Commit{
		commit("late", "2020-05-01"),
		commit("early", "2020-02-01"),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "early", got[0].FirstCommit().Hash)
	assert.Equal(t, "late", got[0].LastCommit().Hash)
}

func TestReleaseOf(t *testing.T) {
	releases := []*models.Release{
		{ID: 1, Date: date("2020-01-01")},
		{ID: 2, Date: date("2020-06-01")},
	}
	tests := []struct {
		day  string
		want int
	}{
		{"2019-05-01", 1},
		{"2020-01-01", 1},
		{"2020-01-02", 2},
		{"2020-06-01", 2},
		{"2020-06-02", 0},
	}
	for _, tt := range tests {
		t.Run(tt.day, func(t *testing.T) {
			r := ReleaseOf(releases, date(tt.day).Add(23*time.Hour))
			got := 0
			if r != nil {
				got = r.ID
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpan(t *testing.T) {
	releases := []*models.Release{{ID: 3}, {ID: 1}, {ID: 2}}
	got := Span(releases, 1, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].ID)
	assert.Equal(t, 2, got[1].ID)
}
