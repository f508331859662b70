package rustsyntax

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// File is a parsed source file: its inner attributes followed by its
// top-level items. Everything is kept as source text.
type File struct {
	Attrs []Attr
	Items []Item
	// Trailing holds comments after the last item.
	Trailing string
}

// Attr is an inner attribute (`#![...]`) or inner doc comment, including the
// plain comments leading it.
type Attr struct {
	Text string
	// meta is the attribute's content without whitespace, e.g.
	// `feature(prelude_import)`. Empty for doc comments.
	meta string
}

// Item is a top-level item including its outer attributes and leading
// comments.
type Item struct {
	Text string
	// Kind is the tree-sitter node type of the item proper, such as
	// `function_item` or `use_declaration`.
	Kind string

	attrs []string
	name  string
}

var language = rust.GetLanguage()

// Parse splits src into inner attributes and items. It fails when src is not
// syntactically valid Rust.
func Parse(src string) (*File, error) {
	source := []byte(src)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(language)

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, syntaxError(root, source)
	}

	file := &File{}
	var (
		start    uint32
		grouping bool
		outer    []string
		leading  = true
	)
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if !grouping {
			start, grouping = node.StartByte(), true
		}
		kind := node.Type()

		switch {
		case leading && kind == "inner_attribute_item":
			file.Attrs = append(file.Attrs, Attr{Text: src[start:node.EndByte()], meta: attributeMeta(node, source)})
			grouping = false
			continue
		case leading && isComment(kind) && isInnerDoc(node.Content(source)):
			file.Attrs = append(file.Attrs, Attr{Text: src[start:node.EndByte()]})
			grouping = false
			continue
		case isComment(kind):
			continue
		case kind == "attribute_item":
			outer = append(outer, attributeMeta(node, source))
			continue
		}

		leading = false
		item := Item{Text: src[start:node.EndByte()], Kind: kind, attrs: outer}
		if name := node.ChildByFieldName("name"); name != nil {
			item.name = name.Content(source)
		}
		file.Items = append(file.Items, item)
		grouping, outer = false, nil
	}
	if grouping {
		file.Trailing = strings.TrimSpace(src[start:])
	}

	return file, nil
}

func isComment(kind string) bool {
	return kind == "line_comment" || kind == "block_comment"
}

func isInnerDoc(text string) bool {
	return strings.HasPrefix(text, "//!") || strings.HasPrefix(text, "/*!")
}

// attributeMeta returns the content of the `attribute` child of an attribute
// item with all whitespace removed.
func attributeMeta(node *sitter.Node, source []byte) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "attribute" {
			return strings.Join(strings.Fields(child.Content(source)), "")
		}
	}
	return ""
}

func syntaxError(root *sitter.Node, source []byte) error {
	node := firstError(root)
	if node == nil {
		return &SyntaxError{Message: "invalid syntax"}
	}
	line := int(node.StartPoint().Row)
	if node.IsMissing() {
		return &SyntaxError{Line: line, Message: "missing " + node.Type()}
	}
	text := node.Content(source)
	if first, _, found := strings.Cut(text, "\n"); found {
		text = first + " ..."
	}
	return &SyntaxError{Line: line, Message: fmt.Sprintf("unexpected %q", text)}
}

// firstError returns the first ERROR or MISSING node below n in source order.
func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if !child.HasError() && !child.IsMissing() {
			continue
		}
		if found := firstError(child); found != nil {
			return found
		}
	}
	return nil
}

// IsPreludeFeature reports whether attr is exactly `#![feature(prelude_import)]`.
func IsPreludeFeature(attr Attr) bool {
	return attr.meta == "feature(prelude_import)"
}

// IsPreludeImport reports whether item is a `use` whose first attribute is a
// bare `#[prelude_import]`.
func IsPreludeImport(item Item) bool {
	return item.Kind == "use_declaration" && len(item.attrs) > 0 && item.attrs[0] == "prelude_import"
}

// IsExternStd reports whether item is `extern crate std`, renamed or not.
func IsExternStd(item Item) bool {
	return item.Kind == "extern_crate_declaration" && item.name == "std"
}
