package age

import (
	"testing"

	"github.com/panbanda/defectmine/pkg/models"
)

func classIn(release *models.Release, sigs ...string) *models.Class {
	cls := &models.Class{Release: release, Methods: make(map[string]*models.Method)}
	for _, s := range sigs {
		cls.Methods[s] = &models.Method{Signature: s}
	}
	return cls
}

func TestTracker(t *testing.T) {
	r1, r2, r3 := &models.Release{ID: 1}, &models.Release{ID: 2}, &models.Release{ID: 3}

	byRelease := map[int][]*models.Class{
		3: {classIn(r3, "void a()", "void b()", "void c()")},
		1: {classIn(r1, "void a()")},
		2: {classIn(r2, "void a()", "void b()")},
	}
	tr := NewTracker(byRelease)

	tests := []struct {
		sig     string
		release int
		first   int
		age     int
	}{
		{"void a()", 3, 1, 2},
		{"void b()", 3, 2, 1},
		{"void c()", 3, 3, 0},
		{"void a()", 1, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.sig, func(t *testing.T) {
			first, ok := tr.FirstAppearance(tt.sig)
			if !ok || first != tt.first {
				t.Errorf("FirstAppearance(%q) = %d,%v want %d", tt.sig, first, ok, tt.first)
			}
			if got := tr.Age(tt.sig, tt.release); got != tt.age {
				t.Errorf("Age(%q, %d) = %d, want %d", tt.sig, tt.release, got, tt.age)
			}
		})
	}

	if got := tr.Age("void unknown()", 3); got != 0 {
		t.Errorf("Age(unknown) = %d, want 0", got)
	}
}

func TestTracker_Apply(t *testing.T) {
	r1, r4 := &models.Release{ID: 1}, &models.Release{ID: 4}
	old := classIn(r1, "int size()")
	cur := classIn(r4, "int size()")

	tr := NewTracker(map[int][]*models.Class{1: {old}, 4: {cur}})
	tr.Apply([]*models.Class{old, cur})

	if got := cur.Methods["int size()"].Metrics.Age; got != 3 {
		t.Errorf("Age = %d, want 3", got)
	}
	if got := old.Methods["int size()"].Metrics.Age; got != 0 {
		t.Errorf("Age = %d, want 0", got)
	}
}
