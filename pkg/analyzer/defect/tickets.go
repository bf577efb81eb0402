// Package defect estimates when reported bugs were introduced and labels the
// classes and methods that carried them.
package defect

import (
	"sort"

	"github.com/panbanda/defectmine/pkg/models"
	"github.com/panbanda/defectmine/pkg/timeline"
)

// Tickets resolves tracker issues against a release timeline.
//
// The opening and fixed releases are the first releases dated on or after
// the creation and resolution days. Affected versions are matched by name.
// An issue is dropped when either release is unknown, when it was opened in
// the first release, when it was opened after being fixed, or when its
// earliest affected version is not strictly before the opening release.
// Tickets with affected versions get the earliest one as injected release.
// The result is ordered by resolution date.
func Tickets(issues []models.Issue, releases []*models.Release) []*models.Ticket {
	ordered := make([]*models.Release, len(releases))
	copy(ordered, releases)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })
	if len(ordered) == 0 {
		return nil
	}
	first := ordered[0]

	byName := make(map[string]*models.Release, len(ordered))
	for _, r := range ordered {
		if _, ok := byName[r.Name]; !ok {
			byName[r.Name] = r
		}
	}

	var tickets []*models.Ticket
	for _, is := range issues {
		opening := timeline.ReleaseOf(ordered, is.Created)
		fixed := timeline.ReleaseOf(ordered, is.Resolved)
		if opening == nil || fixed == nil || opening == first {
			continue
		}
		if opening.Date.After(fixed.Date) {
			continue
		}

		affected := affectedReleases(is.Versions, byName)
		if len(affected) > 0 && !models.Day(affected[0].Date).Before(models.Day(opening.Date)) {
			continue
		}

		t := &models.Ticket{
			Key:      is.Key,
			Created:  is.Created,
			Resolved: is.Resolved,
			Opening:  opening,
			Fixed:    fixed,
			Affected: affected,
		}
		if len(affected) > 0 {
			t.Injected = affected[0]
		}
		tickets = append(tickets, t)
	}

	SortByResolution(tickets)
	return tickets
}

func affectedReleases(names []string, byName map[string]*models.Release) []*models.Release {
	seen := make(map[*models.Release]bool, len(names))
	var out []*models.Release
	for _, n := range names {
		r, ok := byName[n]
		if !ok || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// SortByResolution orders tickets by resolution date, oldest first.
func SortByResolution(tickets []*models.Ticket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].Resolved.Before(tickets[j].Resolved)
	})
}

// Correct returns the tickets that carry tracker-supplied affected versions.
func Correct(tickets []*models.Ticket) []*models.Ticket {
	var out []*models.Ticket
	for _, t := range tickets {
		if t.IsCorrect() {
			out = append(out, t)
		}
	}
	return out
}
