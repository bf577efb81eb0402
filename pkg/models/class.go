package models

// Class is one parsed Java source file as it exists in a release snapshot.
// A Class is never shared between releases.
type Class struct {
	Path    string   `json:"path"` // repository-relative file path
	Package string   `json:"package"`
	Name    string   `json:"name"` // simple name of the first declared type
	Source  string   `json:"-"`
	Release *Release `json:"-"`

	// Methods is keyed by the textual declaration signature. The signature is a
	// best-effort identity: renames and overload changes break it.
	Methods map[string]*Method `json:"-"`

	Commits    []*Commit `json:"-"` // commits in this release touching Path
	LOCAdded   []int     `json:"-"` // per touching commit, parallel to Commits where a diff exists
	LOCRemoved []int     `json:"-"`

	Buggy   bool         `json:"buggy"`
	Metrics ClassMetrics `json:"metrics"`
}

// QualifiedName returns package + "." + simple name.
func (c *Class) QualifiedName() string {
	return c.Package + "." + c.Name
}

// ReleaseID returns the owning release id.
func (c *Class) ReleaseID() int {
	if c.Release == nil {
		return 0
	}
	return c.Release.ID
}

// HasCommit reports whether hash is already recorded as touching the class.
func (c *Class) HasCommit(hash string) bool {
	for _, cm := range c.Commits {
		if cm.Hash == hash {
			return true
		}
	}
	return false
}

// Aggregate holds a value with its per-revision maximum and average.
type Aggregate struct {
	Val int     `json:"val"`
	Max int     `json:"max"`
	Avg float64 `json:"avg"`
}

// ClassMetrics are the per-class features of the class dataset.
type ClassMetrics struct {
	Size        int       `json:"size"` // lines in the file
	LOCAdded    Aggregate `json:"loc_added"`
	LOCRemoved  Aggregate `json:"loc_removed"`
	LOCTouched  Aggregate `json:"loc_touched"`
	Churn       Aggregate `json:"churn"`
	Revisions   int       `json:"revisions"`
	DefectFixes int       `json:"defect_fixes"`
	Authors     int       `json:"authors"`
}
