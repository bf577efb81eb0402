package models

import "time"

// Release is a dated project version together with the commits bucketed into it.
type Release struct {
	ID      int       `json:"id"` // 1..N, chronological after pruning
	Name    string    `json:"name"`
	Date    time.Time `json:"date"`
	Commits []*Commit `json:"-"`
}

// FirstCommit returns the chronologically first commit of the release, or nil.
func (r *Release) FirstCommit() *Commit {
	if r == nil || len(r.Commits) == 0 {
		return nil
	}
	return r.Commits[0]
}

// LastCommit returns the chronologically last commit of the release, or nil.
func (r *Release) LastCommit() *Commit {
	if r == nil || len(r.Commits) == 0 {
		return nil
	}
	return r.Commits[len(r.Commits)-1]
}

// ReleaseByID returns the release with the given id, or nil.
func ReleaseByID(releases []*Release, id int) *Release {
	for _, r := range releases {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Commit is a single VCS revision.
type Commit struct {
	Hash    string    `json:"hash"`
	Author  string    `json:"author"`
	Email   string    `json:"email"`
	When    time.Time `json:"when"` // committer time
	Message string    `json:"message"`
	Parents []string  `json:"parents,omitempty"`

	Release *Release  `json:"-"`
	Tickets []*Ticket `json:"-"`
}

// ReleaseID returns the id of the owning release, or 0 when unassigned.
func (c *Commit) ReleaseID() int {
	if c.Release == nil {
		return 0
	}
	return c.Release.ID
}

// HasParent reports whether the commit has at least one parent.
func (c *Commit) HasParent() bool {
	return len(c.Parents) > 0
}

// Day truncates t to its calendar day in UTC. Release bucketing and ticket
// windows compare dates at day granularity.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
