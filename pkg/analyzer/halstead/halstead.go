// Package halstead computes Halstead effort for Java methods.
package halstead

import (
	"math"

	"github.com/panbanda/defectmine/pkg/parser"
	sitter "github.com/smacker/go-tree-sitter"
)

// callOperator is the operator recorded for every method invocation.
const callOperator = "call"

// Counts are the raw Halstead token counts.
type Counts struct {
	UniqueOperators int `json:"unique_operators"` // n1
	UniqueOperands  int `json:"unique_operands"`  // n2
	TotalOperators  int `json:"total_operators"`  // N1
	TotalOperands   int `json:"total_operands"`   // N2
}

// Effort returns difficulty * volume, or 0 when either vocabulary is empty
// or the result is not finite.
func (c Counts) Effort() float64 {
	n1, n2 := float64(c.UniqueOperators), float64(c.UniqueOperands)
	if n1 == 0 || n2 == 0 {
		return 0
	}
	length := float64(c.TotalOperators + c.TotalOperands)
	if length <= 0 {
		return 0
	}

	volume := length * math.Log2(n1+n2)
	difficulty := (n1 / 2) * (float64(c.TotalOperands) / n2)

	effort := difficulty * volume
	if math.IsNaN(effort) || math.IsInf(effort, 0) {
		return 0
	}
	return effort
}

// Analyzer collects operators and operands from a tree. The zero value is
// not usable; call New.
type Analyzer struct {
	operators map[string]int
	operands  map[string]int
}

// New creates a new Halstead analyzer.
func New() *Analyzer {
	return &Analyzer{
		operators: make(map[string]int),
		operands:  make(map[string]int),
	}
}

// Reset clears the analyzer state for a new analysis.
func (h *Analyzer) Reset() {
	clear(h.operators)
	clear(h.operands)
}

// Analyze counts operators and operands under node.
//
// Operators are binary, unary and update operator tokens plus one "call" per
// method invocation. Operands are invocation names and identifiers used as
// expressions.
func (h *Analyzer) Analyze(node *sitter.Node, source []byte) Counts {
	h.Reset()
	h.walk(node, nil, source)

	var c Counts
	c.UniqueOperators = len(h.operators)
	c.UniqueOperands = len(h.operands)
	for _, n := range h.operators {
		c.TotalOperators += n
	}
	for _, n := range h.operands {
		c.TotalOperands += n
	}
	return c
}

// Effort is a convenience for New().Analyze(node, source).Effort().
func Effort(node *sitter.Node, source []byte) float64 {
	if node == nil {
		return 0
	}
	return New().Analyze(node, source).Effort()
}

func (h *Analyzer) walk(node, parent *sitter.Node, source []byte) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "binary_expression", "unary_expression", "update_expression":
		if op := parser.Operator(node); op != "" {
			h.operators[op]++
		}
	case "method_invocation":
		h.operators[callOperator]++
		if name := parser.GetNodeText(node.ChildByFieldName("name"), source); name != "" {
			h.operands[name]++
		}
	case "identifier":
		if isNameExpression(node, parent) {
			h.operands[parser.GetNodeText(node, source)]++
		}
	}

	for i := range int(node.ChildCount()) {
		h.walk(node.Child(i), node, source)
	}
}

// nonExpressionParents never hold an identifier in expression position.
var nonExpressionParents = map[string]bool{
	"labeled_statement":   true,
	"break_statement":     true,
	"continue_statement":  true,
	"marker_annotation":   true,
	"annotation":          true,
	"method_reference":    true,
	"inferred_parameters": true,
	"scoped_identifier":   true,
}

// isNameExpression reports whether an identifier is a plain name used as an
// expression rather than a declared name, member selector or label.
func isNameExpression(ident, parent *sitter.Node) bool {
	if parent == nil {
		return false
	}
	if nonExpressionParents[parent.Type()] {
		return false
	}
	if parser.SameNode(parent.ChildByFieldName("name"), ident) {
		return false
	}
	switch parent.Type() {
	case "field_access":
		return !parser.SameNode(parent.ChildByFieldName("field"), ident)
	case "lambda_expression":
		return !parser.SameNode(parent.ChildByFieldName("parameters"), ident)
	}
	return true
}
