package models

import "time"

// Ticket is a resolved bug report from the issue tracker.
type Ticket struct {
	Key      string    `json:"key"`
	Created  time.Time `json:"created"`
	Resolved time.Time `json:"resolved"`

	Opening  *Release   `json:"-"`
	Fixed    *Release   `json:"-"`
	Injected *Release   `json:"-"`
	Affected []*Release `json:"-"` // empty for tickets that need estimation
	Commits  []*Commit  `json:"-"`
}

// IsCorrect reports whether the tracker supplied affected versions.
func (t *Ticket) IsCorrect() bool {
	return len(t.Affected) > 0
}

// OpeningID returns the opening release id, or 0.
func (t *Ticket) OpeningID() int { return idOf(t.Opening) }

// FixedID returns the fixed release id, or 0.
func (t *Ticket) FixedID() int { return idOf(t.Fixed) }

// InjectedID returns the injected release id, or 0.
func (t *Ticket) InjectedID() int { return idOf(t.Injected) }

// AffectedIDs returns the ids of the affected releases in order.
func (t *Ticket) AffectedIDs() []int {
	ids := make([]int, 0, len(t.Affected))
	for _, r := range t.Affected {
		ids = append(ids, r.ID)
	}
	return ids
}

func idOf(r *Release) int {
	if r == nil {
		return 0
	}
	return r.ID
}

// Issue is a bug report as returned by the tracker, before it is resolved
// against the release timeline.
type Issue struct {
	Key      string    `json:"key"`
	Created  time.Time `json:"created"`
	Resolved time.Time `json:"resolved"`
	Versions []string  `json:"versions"` // affected version names
}
