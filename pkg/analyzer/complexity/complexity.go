// Package complexity computes control-flow complexity of Java methods.
//
// All functions are pure recursive visitors over the tree-sitter tree. Depth
// is carried as an argument so no visitor state is shared.
package complexity

import (
	"github.com/panbanda/defectmine/pkg/parser"
	sitter "github.com/smacker/go-tree-sitter"
)

// Metrics represents the control-flow measurements of a single method.
type Metrics struct {
	Cyclomatic int `json:"cyclomatic"`
	Cognitive  int `json:"cognitive"`
	MaxNesting int `json:"max_nesting"`
}

// decisionTypes are counted once each by cyclomatic complexity. A switch
// contributes one point per case label, default included.
var decisionTypes = makeSet([]string{
	"if_statement",
	"for_statement",
	"enhanced_for_statement",
	"while_statement",
	"do_statement",
	"catch_clause",
	"switch_label",
})

// nestingTypes open a nesting level for cognitive complexity and depth.
var nestingTypes = makeSet([]string{
	"if_statement",
	"for_statement",
	"enhanced_for_statement",
	"while_statement",
	"do_statement",
	"switch_statement",
	"switch_expression",
	"try_statement",
	"try_with_resources_statement",
	"catch_clause",
})

// Analyze computes all metrics for a method declaration. Cognitive complexity
// and nesting are measured over the body only; bodiless methods score 0.
func Analyze(m parser.MethodDecl) Metrics {
	metrics := Metrics{Cyclomatic: Cyclomatic(m.Node)}
	if m.BodyNode != nil {
		metrics.Cognitive = Cognitive(m.BodyNode)
		metrics.MaxNesting = MaxNesting(m.BodyNode)
	}
	return metrics
}

// Cyclomatic returns 1 + decision points + short-circuit boolean operators
// found anywhere under node.
func Cyclomatic(node *sitter.Node) int {
	if node == nil {
		return 1
	}
	complexity := 1
	parser.WalkTyped(node, nil, func(n *sitter.Node, nodeType string, _ []byte) bool {
		if decisionTypes[nodeType] {
			complexity++
		}
		if nodeType == "binary_expression" && isLogical(parser.Operator(n)) {
			complexity++
		}
		return true
	})
	return complexity
}

// Cognitive returns the cognitive complexity of a method body.
func Cognitive(body *sitter.Node) int {
	if body == nil {
		return 0
	}
	return cognitive(body, 0)
}

func cognitive(node *sitter.Node, depth int) int {
	complexity := 0

	for i := range int(node.ChildCount()) {
		child := node.Child(i)
		childType := child.Type()

		switch {
		case nestingTypes[childType]:
			complexity += 1 + depth
			complexity += cognitive(child, depth+1)
		case childType == "binary_expression":
			complexity += logicalOperators(child)
			complexity += cognitive(child, depth)
		default:
			complexity += cognitive(child, depth)
		}
	}

	return complexity
}

// logicalOperators counts && and || in a chain of directly nested binary
// expressions. Parenthesized operands end the chain.
func logicalOperators(expr *sitter.Node) int {
	if !isLogical(parser.Operator(expr)) {
		return 0
	}
	count := 1
	for _, field := range []string{"left", "right"} {
		if side := expr.ChildByFieldName(field); side != nil && side.Type() == "binary_expression" {
			count += logicalOperators(side)
		}
	}
	return count
}

// MaxNesting returns the deepest nesting level reached inside body.
func MaxNesting(body *sitter.Node) int {
	if body == nil {
		return 0
	}
	return maxNesting(body, 0)
}

func maxNesting(node *sitter.Node, currentDepth int) int {
	maxDepth := currentDepth

	for i := range int(node.ChildCount()) {
		child := node.Child(i)

		var childMax int
		if nestingTypes[child.Type()] {
			childMax = maxNesting(child, currentDepth+1)
		} else {
			childMax = maxNesting(child, currentDepth)
		}

		if childMax > maxDepth {
			maxDepth = childMax
		}
	}

	return maxDepth
}

func isLogical(op string) bool {
	return op == "&&" || op == "||"
}

// makeSet converts a slice to a map for O(1) lookups.
func makeSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
