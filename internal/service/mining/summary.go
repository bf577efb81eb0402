package mining

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/panbanda/defectmine/internal/pmd"
	"github.com/panbanda/defectmine/pkg/analyzer/defect"
	"github.com/panbanda/defectmine/pkg/dataset"
	"github.com/panbanda/defectmine/pkg/models"
)

// Summary counts what a mining run produced.
type Summary struct {
	Releases           int         `json:"releases" toon:"releases"`
	KeptReleases       int         `json:"kept_releases" toon:"kept_releases"`
	Commits            int         `json:"commits" toon:"commits"`
	CommitsWithTickets int         `json:"commits_with_tickets" toon:"commits_with_tickets"`
	Tickets            int         `json:"tickets" toon:"tickets"`
	EstimatedTickets   int         `json:"estimated_tickets" toon:"estimated_tickets"`
	Classes            int         `json:"classes" toon:"classes"`
	BuggyClasses       int         `json:"buggy_classes" toon:"buggy_classes"`
	Methods            int         `json:"methods" toon:"methods"`
	BuggyMethods       int         `json:"buggy_methods" toon:"buggy_methods"`
	BuggyPerRelease    map[int]int `json:"buggy_per_release" toon:"buggy_per_release"`
	ParseFailures      int         `json:"parse_failures" toon:"parse_failures"`
	SmellReports       int         `json:"smell_reports" toon:"smell_reports"`
	Iterations         int         `json:"iterations" toon:"iterations"`
	Evaluations        int         `json:"evaluations" toon:"evaluations"`
}

type releaseRecord struct {
	ID      int       `json:"id"`
	Name    string    `json:"name"`
	Date    time.Time `json:"date"`
	Commits int       `json:"commits"`
	First   string    `json:"first_commit,omitempty"`
	Last    string    `json:"last_commit,omitempty"`
}

type ticketRecord struct {
	Key       string    `json:"key"`
	Created   time.Time `json:"created"`
	Resolved  time.Time `json:"resolved"`
	Opening   int       `json:"opening"`
	Fixed     int       `json:"fixed"`
	Injected  int       `json:"injected"`
	Affected  []int     `json:"affected"`
	Commits   []string  `json:"commits"`
	Estimated bool      `json:"estimated"`
}

type commitRecord struct {
	Hash    string    `json:"hash"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
	Release int       `json:"release"`
	Tickets []string  `json:"tickets,omitempty"`
}

func releaseRecords(releases []*models.Release) []releaseRecord {
	out := make([]releaseRecord, len(releases))
	for i, r := range releases {
		out[i] = releaseRecord{ID: r.ID, Name: r.Name, Date: r.Date, Commits: len(r.Commits)}
		if c := r.FirstCommit(); c != nil {
			out[i].First = c.Hash
		}
		if c := r.LastCommit(); c != nil {
			out[i].Last = c.Hash
		}
	}
	return out
}

func ticketRecords(tickets []*models.Ticket, estimates []defect.Estimate) []ticketRecord {
	estimated := make(map[string]bool, len(estimates))
	for _, e := range estimates {
		estimated[e.Key] = e.Estimated
	}

	out := make([]ticketRecord, len(tickets))
	for i, t := range tickets {
		hashes := make([]string, len(t.Commits))
		for j, c := range t.Commits {
			hashes[j] = c.Hash
		}
		out[i] = ticketRecord{
			Key:       t.Key,
			Created:   t.Created,
			Resolved:  t.Resolved,
			Opening:   t.OpeningID(),
			Fixed:     t.FixedID(),
			Injected:  t.InjectedID(),
			Affected:  t.AffectedIDs(),
			Commits:   hashes,
			Estimated: estimated[t.Key],
		}
	}
	return out
}

func commitRecords(commits []*models.Commit) []commitRecord {
	out := make([]commitRecord, len(commits))
	for i, c := range commits {
		keys := make([]string, len(c.Tickets))
		for j, t := range c.Tickets {
			keys[j] = t.Key
		}
		out[i] = commitRecord{Hash: c.Hash, Author: c.Author, When: c.When, Release: c.ReleaseID(), Tickets: keys}
	}
	return out
}

func writeJSON(path string, v any) error {
	return dataset.WriteFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func (r *run) writeSummaries(_ context.Context) error {
	s := &r.res.Summary
	s.Releases = len(r.res.Releases)
	s.Commits = len(r.res.Commits)
	s.Tickets = len(r.res.Tickets)
	for _, e := range r.res.Estimates {
		if e.Estimated {
			s.EstimatedTickets++
		}
	}
	for _, t := range r.res.Smells {
		if t.State() == pmd.Completed {
			s.SmellReports++
		}
	}
	s.Evaluations = len(r.res.Evaluated)
	r.res.Duration = time.Since(r.start)

	files := []struct {
		name string
		v    any
	}{
		{"releases", releaseRecords(r.res.Releases)},
		{"tickets", ticketRecords(r.res.Tickets, r.res.Estimates)},
		{"commits", commitRecords(r.res.Commits)},
		{"summary", r.res},
	}
	for _, f := range files {
		if err := writeJSON(r.layout.Summary(f.name), f.v); err != nil {
			return err
		}
	}
	return nil
}
