// Package age tracks the release in which each method signature first
// appears and derives method age from it.
package age

import (
	"sort"

	"github.com/panbanda/defectmine/pkg/models"
)

// Tracker maps a method signature to the id of the first release containing
// it. Build it once per pipeline run over every release.
type Tracker struct {
	first map[string]int
}

// NewTracker scans classes grouped by release in ascending release id and
// records the first release each signature is seen in.
func NewTracker(byRelease map[int][]*models.Class) *Tracker {
	ids := make([]int, 0, len(byRelease))
	for id := range byRelease {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	t := &Tracker{first: make(map[string]int)}
	for _, id := range ids {
		for _, cls := range byRelease[id] {
			for sig := range cls.Methods {
				t.observe(sig, id)
			}
		}
	}
	return t
}

// observe keeps the earliest id recorded for sig.
func (t *Tracker) observe(sig string, releaseID int) {
	if _, ok := t.first[sig]; !ok {
		t.first[sig] = releaseID
	}
}

// FirstAppearance returns the first release id for sig.
func (t *Tracker) FirstAppearance(sig string) (int, bool) {
	id, ok := t.first[sig]
	return id, ok
}

// Age returns releaseID minus the first appearance of sig, or 0 when sig was
// never observed.
func (t *Tracker) Age(sig string, releaseID int) int {
	first, ok := t.first[sig]
	if !ok {
		return 0
	}
	return releaseID - first
}

// Apply sets Age on every method of the given classes.
func (t *Tracker) Apply(classes []*models.Class) {
	for _, cls := range classes {
		for sig, m := range cls.Methods {
			m.Metrics.Age = t.Age(sig, cls.ReleaseID())
		}
	}
}
