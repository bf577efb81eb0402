package models

import (
	"encoding/json"
	"sort"
)

// Accessor values as reported for method declarations.
const (
	AccessPublic         = "public"
	AccessProtected      = "protected"
	AccessPrivate        = "private"
	AccessPackagePrivate = "package-private"
)

// Call is a method invocation site inside a method body.
type Call struct {
	Name  string `json:"name"`
	Arity int    `json:"arity"`
}

// Method is a method declaration inside a Class snapshot.
type Method struct {
	Signature string `json:"signature"`
	Name      string `json:"name"`
	Body      string `json:"-"` // "{}" for bodiless declarations
	Begin     int    `json:"begin"`
	End       int    `json:"end"`
	Params    int    `json:"params"`
	Calls     []Call `json:"-"`

	Metrics MethodMetrics `json:"metrics"`
}

// MethodMetrics are the per-method features of the method dataset.
type MethodMetrics struct {
	LOC            int       `json:"loc"` // never below 1
	Statements     int       `json:"statements"`
	Cyclomatic     int       `json:"cyclomatic"`
	Cognitive      int       `json:"cognitive"`
	NestingDepth   int       `json:"nesting_depth"`
	Parameters     int       `json:"parameters"`
	Accessor       string    `json:"accessor"`
	Added          int       `json:"added"`
	Removed        int       `json:"removed"`
	MaxChurn       int       `json:"max_churn"`
	Changes        int       `json:"changes"`
	Authors        AuthorSet `json:"authors"`
	Age            int       `json:"age"`
	FanIn          int       `json:"fan_in"`
	FanOut         int       `json:"fan_out"`
	HalsteadEffort float64   `json:"halstead_effort"`
	CommentDensity float64   `json:"comment_density"`
	Smells         int       `json:"smells"`
	Buggy          bool      `json:"buggy"`
}

// ResetHistory clears everything derived from revision history so a pass
// can be recomputed from scratch.
func (m *MethodMetrics) ResetHistory() {
	m.Added = 0
	m.Removed = 0
	m.MaxChurn = 0
	m.Changes = 0
	m.Authors = nil
}

// AuthorSet is a set of author names.
type AuthorSet map[string]struct{}

// Add records name in the set, allocating it on first use.
func (s *AuthorSet) Add(name string) {
	if *s == nil {
		*s = make(AuthorSet)
	}
	(*s)[name] = struct{}{}
}

// Len returns the number of distinct authors.
func (s AuthorSet) Len() int { return len(s) }

// Sorted returns the author names in lexical order.
func (s AuthorSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON encodes the set as a sorted list of names.
func (s AuthorSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}
