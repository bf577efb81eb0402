// Package callgraph approximates per-method fan-in and fan-out from call
// sites. Calls are matched lexically by simple name and argument count, not
// resolved: overloads with the same arity and inherited methods are all
// credited, and calls into library code credit any same-named method.
package callgraph

import "github.com/panbanda/defectmine/pkg/models"

type key struct {
	name  string
	arity int
}

// Compute sets FanOut and FanIn on every method of the classes of one
// release. Previous values are overwritten.
func Compute(classes []*models.Class) {
	candidates := make(map[key][]*models.Method)

	for _, cls := range classes {
		for _, m := range cls.Methods {
			m.Metrics.FanIn = 0
			m.Metrics.FanOut = FanOut(m.Calls)
			k := key{name: m.Name, arity: m.Params}
			candidates[k] = append(candidates[k], m)
		}
	}

	for _, cls := range classes {
		for _, m := range cls.Methods {
			for _, call := range m.Calls {
				for _, target := range candidates[key{name: call.Name, arity: call.Arity}] {
					target.Metrics.FanIn++
				}
			}
		}
	}
}

// FanOut returns the number of distinct callee names.
func FanOut(calls []models.Call) int {
	names := make(map[string]struct{}, len(calls))
	for _, c := range calls {
		names[c.Name] = struct{}{}
	}
	return len(names)
}
