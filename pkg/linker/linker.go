// Package linker connects tracker tickets to the commits that mention them.
package linker

import (
	"regexp"

	"github.com/panbanda/defectmine/pkg/models"
)

// Result is the outcome of a linking pass.
type Result struct {
	// Tickets that matched at least one commit, in input order.
	Tickets []*models.Ticket
	// WithIssues holds the hashes of commits that mention at least one ticket.
	WithIssues map[string]bool
}

// Pattern returns the whole-word matcher for a ticket key, so that PROJ-1
// does not match PROJ-12 or XPROJ-1.
func Pattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(key) + `\b`)
}

// Link matches every ticket key against every commit's full message. Links
// are many-to-many and are recorded on both sides. Any links from a
// previous pass are cleared first. Tickets without a commit are discarded.
func Link(tickets []*models.Ticket, commits []*models.Commit) Result {
	for _, c := range commits {
		c.Tickets = nil
	}

	res := Result{WithIssues: make(map[string]bool)}
	for _, t := range tickets {
		t.Commits = nil
		re := Pattern(t.Key)
		for _, c := range commits {
			if !re.MatchString(c.Message) {
				continue
			}
			t.Commits = append(t.Commits, c)
			c.Tickets = append(c.Tickets, t)
			res.WithIssues[c.Hash] = true
		}
		if len(t.Commits) > 0 {
			res.Tickets = append(res.Tickets, t)
		}
	}
	return res
}
