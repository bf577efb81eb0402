package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// Parser wraps tree-sitter configured for Java. A Parser is not safe for
// concurrent use; create one per goroutine.
type Parser struct {
	parser *sitter.Parser
}

// ParseResult contains the parsed AST and metadata.
type ParseResult struct {
	Tree   *sitter.Tree
	Source []byte
	Path   string
}

// SyntaxError reports malformed source. Line and Column are 1-based and point
// at the first error or missing node.
type SyntaxError struct {
	Path   string
	Line   int
	Column int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %s at %d:%d", e.Path, e.Line, e.Column)
}

// New creates a new parser instance.
func New() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(java.GetLanguage())
	return &Parser{parser: p}
}

// Parse parses Java source. Input that tree-sitter can only recover from with
// error nodes is rejected with a *SyntaxError.
func (p *Parser) Parse(source []byte, path string) (*ParseResult, error) {
	tree, err := p.parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}

	root := tree.RootNode()
	if root.HasError() {
		line, col := firstErrorPosition(root)
		return nil, &SyntaxError{Path: path, Line: line, Column: col}
	}

	return &ParseResult{
		Tree:   tree,
		Source: source,
		Path:   path,
	}, nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	p.parser.Close()
}

// IsJavaSource reports whether path is a Java file outside test directories.
func IsJavaSource(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".java") && !strings.Contains(path, "/test/")
}

func firstErrorPosition(root *sitter.Node) (int, int) {
	line, col := int(root.StartPoint().Row)+1, int(root.StartPoint().Column)+1
	found := false
	Walk(root, nil, func(n *sitter.Node, _ []byte) bool {
		if found {
			return false
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			line, col = int(n.StartPoint().Row)+1, int(n.StartPoint().Column)+1
			found = true
			return false
		}
		return n.HasError()
	})
	return line, col
}

// NodeVisitor is a function that visits AST nodes.
type NodeVisitor func(node *sitter.Node, source []byte) bool

// TypedNodeVisitor visits AST nodes with pre-cached node type to avoid CGO overhead.
type TypedNodeVisitor func(node *sitter.Node, nodeType string, source []byte) bool

// Walk traverses the AST calling visitor for each node. Returning false skips
// the node's children.
func Walk(node *sitter.Node, source []byte, visitor NodeVisitor) {
	if node == nil {
		return
	}

	if !visitor(node, source) {
		return
	}

	for i := range int(node.ChildCount()) {
		Walk(node.Child(i), source, visitor)
	}
}

// WalkTyped traverses the AST with cached node types to reduce CGO overhead.
func WalkTyped(node *sitter.Node, source []byte, visitor TypedNodeVisitor) {
	if node == nil {
		return
	}

	nodeType := node.Type()
	if !visitor(node, nodeType, source) {
		return
	}

	for i := range int(node.ChildCount()) {
		WalkTyped(node.Child(i), source, visitor)
	}
}

// FindNodesByType returns all nodes of a specific type.
func FindNodesByType(root *sitter.Node, source []byte, nodeType string) []*sitter.Node {
	var results []*sitter.Node
	WalkTyped(root, source, func(n *sitter.Node, t string, _ []byte) bool {
		if t == nodeType {
			results = append(results, n)
		}
		return true
	})
	return results
}

// GetNodeText extracts the source text for a node.
// Returns empty string if node is nil or byte offsets are out of bounds.
func GetNodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if start > end || end > uint32(len(source)) {
		return ""
	}
	return string(source[start:end])
}

// Operator returns the first anonymous child token of an expression node,
// which for binary, unary and update expressions is the operator.
func Operator(node *sitter.Node) string {
	for i := range int(node.ChildCount()) {
		child := node.Child(i)
		if !child.IsNamed() {
			t := child.Type()
			if t != "(" && t != ")" {
				return t
			}
		}
	}
	return ""
}

// IsComment reports whether a node type is a Java comment.
func IsComment(nodeType string) bool {
	switch nodeType {
	case "line_comment", "block_comment", "comment":
		return true
	}
	return false
}

// SameNode reports whether a and b cover the same byte range.
func SameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}
