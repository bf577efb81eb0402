// Package timeline buckets commits into dated releases.
package timeline

import (
	"sort"
	"time"

	"github.com/panbanda/defectmine/pkg/models"
)

// Build assigns every commit to the releases it belongs to and returns the
// surviving releases renumbered 1..N, plus the flat list of assigned commits
// in chronological order.
//
// Releases are scanned in the order given, which callers keep by date, with
// a lower bound that starts at the Unix epoch and advances to each scanned
// release date. A commit lands in a release when
// lowerBound < day(commit) <= day(release). Every release is tested, so when
// release dates do not increase a commit can land in more than one release;
// each assignment then gets its own Commit value and Commit.Release stays
// single-valued. Releases left without commits are dropped.
func Build(releases []*models.Release, commits []*models.Commit) ([]*models.Release, []*models.Commit) {
	ordered := make([]*models.Release, len(releases))
	copy(ordered, releases)
	for _, r := range ordered {
		r.Commits = nil
	}

	var assigned []*models.Commit
	epoch := models.Day(time.Unix(0, 0))

	for _, c := range dedupe(commits) {
		day := models.Day(c.When)
		lower := epoch
		placed := false
		for _, r := range ordered {
			releaseDay := models.Day(r.Date)
			if day.After(lower) && !day.After(releaseDay) {
				cc := c
				if placed {
					dup := *c
					cc = &dup
				}
				cc.Release = r
				r.Commits = append(r.Commits, cc)
				assigned = append(assigned, cc)
				placed = true
			}
			lower = releaseDay
		}
	}

	kept := ordered[:0]
	for _, r := range ordered {
		if len(r.Commits) > 0 {
			kept = append(kept, r)
		}
	}
	for i, r := range kept {
		r.ID = i + 1
	}

	sort.SliceStable(assigned, func(i, j int) bool {
		return assigned[i].When.Before(assigned[j].When)
	})
	return kept, assigned
}

// dedupe drops repeated hashes and sorts by committer time.
func dedupe(commits []*models.Commit) []*models.Commit {
	seen := make(map[string]bool, len(commits))
	out := make([]*models.Commit, 0, len(commits))
	for _, c := range commits {
		if seen[c.Hash] {
			continue
		}
		seen[c.Hash] = true
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].When.Before(out[j].When)
	})
	return out
}

// ReleaseOf returns the first release, in date order, dated on or after t at
// day granularity. It returns nil when t is after every release.
func ReleaseOf(releases []*models.Release, t time.Time) *models.Release {
	day := models.Day(t)
	var best *models.Release
	for _, r := range releases {
		if models.Day(r.Date).Before(day) {
			continue
		}
		if best == nil || r.Date.Before(best.Date) {
			best = r
		}
	}
	return best
}

// Span returns the releases with ids in [from, to], in id order.
func Span(releases []*models.Release, from, to int) []*models.Release {
	var out []*models.Release
	for _, r := range releases {
		if r.ID >= from && r.ID <= to {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
