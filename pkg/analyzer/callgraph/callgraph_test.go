package callgraph

import (
	"testing"

	"github.com/panbanda/defectmine/pkg/models"
)

func method(name string, params int, calls ...models.Call) *models.Method {
	return &models.Method{Signature: name, Name: name, Params: params, Calls: calls}
}

func TestFanOut(t *testing.T) {
	calls := []models.Call{{Name: "log", Arity: 1}, {Name: "log", Arity: 2}, {Name: "save", Arity: 0}}
	if got := FanOut(calls); got != 2 {
		t.Errorf("FanOut() = %d, want 2", got)
	}
	if got := FanOut(nil); got != 0 {
		t.Errorf("FanOut(nil) = %d, want 0", got)
	}
}

func TestCompute(t *testing.T) {
	save1 := method("save", 1)
	save2 := method("save", 2)
	otherSave := method("save", 1)
	caller := method("run", 0,
		models.Call{Name: "save", Arity: 1},
		models.Call{Name: "save", Arity: 1},
		models.Call{Name: "print", Arity: 1},
	)

	a := &models.Class{Methods: map[string]*models.Method{"run": caller, "save1": save1, "save2": save2}}
	b := &models.Class{Methods: map[string]*models.Method{"save": otherSave}}

	Compute([]*models.Class{a, b})

	tests := []struct {
		name   string
		m      *models.Method
		fanIn  int
		fanOut int
	}{
		// each call site credits every same-name same-arity method, across classes
		{"save/1 in caller class", save1, 2, 0},
		{"save/1 in other class", otherSave, 2, 0},
		{"save/2 arity mismatch", save2, 0, 0},
		{"caller", caller, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.m.Metrics.FanIn != tt.fanIn {
				t.Errorf("FanIn = %d, want %d", tt.m.Metrics.FanIn, tt.fanIn)
			}
			if tt.m.Metrics.FanOut != tt.fanOut {
				t.Errorf("FanOut = %d, want %d", tt.m.Metrics.FanOut, tt.fanOut)
			}
		})
	}
}

func TestCompute_Idempotent(t *testing.T) {
	target := method("f", 0)
	caller := method("g", 0, models.Call{Name: "f"})
	classes := []*models.Class{{Methods: map[string]*models.Method{"f": target, "g": caller}}}

	Compute(classes)
	Compute(classes)

	if target.Metrics.FanIn != 1 {
		t.Errorf("FanIn after two runs = %d, want 1", target.Metrics.FanIn)
	}
}
