package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// EmptyBody stands in for the body of a declaration without one.
const EmptyBody = "{}"

var typeDeclarations = map[string]bool{
	"class_declaration":           true,
	"interface_declaration":       true,
	"enum_declaration":            true,
	"record_declaration":          true,
	"annotation_type_declaration": true,
}

// Keyword modifiers in the order they appear in a rendered signature.
var signatureModifiers = []string{"static", "abstract", "final", "native", "synchronized"}

// CompilationUnit is the declaration inventory of one Java file.
type CompilationUnit struct {
	Package string
	Types   []string // simple names of top-level types, in source order
	Methods []MethodDecl
}

// PrimaryType returns the first top-level type name, or "".
func (cu *CompilationUnit) PrimaryType() string {
	if len(cu.Types) == 0 {
		return ""
	}
	return cu.Types[0]
}

// MethodDecl is one method declaration. Node and BodyNode stay valid for as
// long as the owning ParseResult is reachable.
type MethodDecl struct {
	Name      string
	Signature string
	Body      string
	Begin     int // 1-based, includes annotations and modifiers
	End       int
	Params    int
	Access    string // "public", "protected", "private" or ""
	Node      *sitter.Node
	BodyNode  *sitter.Node // nil for abstract and interface methods
	Calls     []Invocation
	Comments  []LineSpan
}

// Invocation is a method call site.
type Invocation struct {
	Name  string
	Arity int
}

// LineSpan is an inclusive 1-based line range.
type LineSpan struct {
	Begin int
	End   int
}

// Lines returns the number of lines in the span.
func (s LineSpan) Lines() int {
	return s.End - s.Begin + 1
}

// Extract builds the declaration inventory of a parsed Java file. Every
// method_declaration in the file is included, nested and anonymous classes
// too; constructors are not methods here.
func Extract(result *ParseResult) *CompilationUnit {
	root := result.Tree.RootNode()
	src := result.Source
	cu := &CompilationUnit{}

	for i := range int(root.NamedChildCount()) {
		child := root.NamedChild(i)
		switch t := child.Type(); {
		case t == "package_declaration":
			cu.Package = packageName(child, src)
		case typeDeclarations[t]:
			cu.Types = append(cu.Types, GetNodeText(child.ChildByFieldName("name"), src))
		}
	}

	WalkTyped(root, src, func(n *sitter.Node, nodeType string, src []byte) bool {
		if nodeType == "method_declaration" {
			cu.Methods = append(cu.Methods, extractMethod(n, src))
		}
		return true
	})

	return cu
}

func packageName(node *sitter.Node, src []byte) string {
	for i := range int(node.NamedChildCount()) {
		child := node.NamedChild(i)
		switch child.Type() {
		case "scoped_identifier", "identifier":
			return GetNodeText(child, src)
		}
	}
	return ""
}

func extractMethod(node *sitter.Node, src []byte) MethodDecl {
	m := MethodDecl{
		Name:  GetNodeText(node.ChildByFieldName("name"), src),
		Begin: int(node.StartPoint().Row) + 1,
		End:   int(node.EndPoint().Row) + 1,
		Node:  node,
		Body:  EmptyBody,
	}

	keywords := modifierKeywords(node)
	m.Access = accessOf(keywords)

	params := parameterTexts(node.ChildByFieldName("parameters"), src)
	m.Params = len(params)

	if body := node.ChildByFieldName("body"); body != nil {
		m.BodyNode = body
		m.Body = GetNodeText(body, src)
	}

	m.Signature = renderSignature(node, src, keywords, m.Access, params)

	WalkTyped(node, src, func(n *sitter.Node, nodeType string, src []byte) bool {
		switch {
		case nodeType == "method_invocation":
			m.Calls = append(m.Calls, Invocation{
				Name:  GetNodeText(n.ChildByFieldName("name"), src),
				Arity: ArgumentCount(n),
			})
		case IsComment(nodeType):
			m.Comments = append(m.Comments, LineSpan{
				Begin: int(n.StartPoint().Row) + 1,
				End:   int(n.EndPoint().Row) + 1,
			})
		}
		return true
	})

	return m
}

// ArgumentCount returns the number of arguments of a method_invocation.
func ArgumentCount(invocation *sitter.Node) int {
	args := invocation.ChildByFieldName("arguments")
	if args == nil {
		return 0
	}
	count := 0
	for i := range int(args.NamedChildCount()) {
		if !IsComment(args.NamedChild(i).Type()) {
			count++
		}
	}
	return count
}

func modifierKeywords(method *sitter.Node) map[string]bool {
	keywords := make(map[string]bool)
	for i := range int(method.ChildCount()) {
		child := method.Child(i)
		if child.Type() != "modifiers" {
			continue
		}
		for j := range int(child.ChildCount()) {
			mod := child.Child(j)
			if !mod.IsNamed() {
				keywords[mod.Type()] = true
			}
		}
	}
	return keywords
}

func accessOf(keywords map[string]bool) string {
	for _, a := range []string{"public", "protected", "private"} {
		if keywords[a] {
			return a
		}
	}
	return ""
}

func parameterTexts(params *sitter.Node, src []byte) []string {
	if params == nil {
		return nil
	}
	var out []string
	for i := range int(params.NamedChildCount()) {
		p := params.NamedChild(i)
		switch p.Type() {
		case "formal_parameter", "spread_parameter":
			out = append(out, collapseSpace(GetNodeText(p, src)))
		}
	}
	return out
}

// renderSignature produces "<access> <modifiers> <type> <name>(<params>) throws <types>"
// with whitespace collapsed. Type parameters and annotations are left out.
func renderSignature(node *sitter.Node, src []byte, keywords map[string]bool, access string, params []string) string {
	var b strings.Builder
	if access != "" {
		b.WriteString(access)
		b.WriteByte(' ')
	}
	for _, mod := range signatureModifiers {
		if keywords[mod] {
			b.WriteString(mod)
			b.WriteByte(' ')
		}
	}
	b.WriteString(collapseSpace(GetNodeText(node.ChildByFieldName("type"), src)))
	b.WriteByte(' ')
	b.WriteString(GetNodeText(node.ChildByFieldName("name"), src))
	b.WriteByte('(')
	b.WriteString(strings.Join(params, ", "))
	b.WriteByte(')')

	for i := range int(node.NamedChildCount()) {
		child := node.NamedChild(i)
		if child.Type() != "throws" {
			continue
		}
		var thrown []string
		for j := range int(child.NamedChildCount()) {
			thrown = append(thrown, collapseSpace(GetNodeText(child.NamedChild(j), src)))
		}
		if len(thrown) > 0 {
			b.WriteString(" throws ")
			b.WriteString(strings.Join(thrown, ", "))
		}
	}

	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StatementCount returns the number of top-level statements in a block.
func StatementCount(block *sitter.Node) int {
	if block == nil {
		return 0
	}
	count := 0
	for i := range int(block.NamedChildCount()) {
		if !IsComment(block.NamedChild(i).Type()) {
			count++
		}
	}
	return count
}
