// Package importer converts Markdown into editor documents so outlines
// written elsewhere can be numbered.
package importer

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"chronicle/outline/internal/doctree"
)

// Markdown parses src with goldmark and maps its block structure onto
// ProseMirror nodes. Ordered lists keep their start value; every list item
// keeps all of its blocks, so a Markdown item with nested content surfaces
// later as a numbering diagnostic rather than being silently reshaped.
func Markdown(src []byte) *doctree.Document {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	doc := doctree.NewNode(doctree.TypeDoc, nil)
	doc.Content = blocks(root, src)
	return doctree.New(doc)
}

// Title returns the text of the first heading, or "" when there is none.
func Title(doc *doctree.Document) string {
	title := ""
	doc.Walk(func(node *doctree.Node, _ doctree.Address) bool {
		if title != "" {
			return false
		}
		if node.Type == doctree.TypeHeading {
			title = strings.TrimSpace(node.TextContent())
			return false
		}
		return true
	})
	return title
}

func blocks(parent ast.Node, src []byte) []*doctree.Node {
	var out []*doctree.Node
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if block := convertBlock(n, src); block != nil {
			out = append(out, block)
		}
	}
	return out
}

func convertBlock(n ast.Node, src []byte) *doctree.Node {
	switch node := n.(type) {
	case *ast.Heading:
		return doctree.NewNode(doctree.TypeHeading, map[string]any{"level": node.Level}, inlines(node, src)...)
	case *ast.Paragraph, *ast.TextBlock:
		content := inlines(node, src)
		if len(content) == 0 {
			return nil
		}
		return doctree.NewNode(doctree.TypeParagraph, nil, content...)
	case *ast.List:
		listType := doctree.TypeBulletList
		var attrs map[string]any
		if node.IsOrdered() {
			listType = doctree.TypeOrderedList
			attrs = map[string]any{"start": node.Start}
		}
		list := doctree.NewNode(listType, attrs)
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			list.Content = append(list.Content, doctree.NewNode(doctree.TypeListItem, nil, blocks(item, src)...))
		}
		return list
	case *ast.ThematicBreak:
		return doctree.NewNode(doctree.TypeRule, nil)
	case *ast.Blockquote:
		// Quotes flatten into their paragraphs' text.
		value := strings.TrimSpace(blockText(node, src))
		if value == "" {
			return nil
		}
		return doctree.NewNode(doctree.TypeParagraph, nil, doctree.NewText(value))
	default:
		value := strings.TrimSpace(blockText(n, src))
		if value == "" {
			return nil
		}
		return doctree.NewNode(doctree.TypeParagraph, nil, doctree.NewText(value))
	}
}

// inlines converts the inline children of a block into text nodes, mapping
// emphasis, strong, code spans and links onto ProseMirror marks.
func inlines(parent ast.Node, src []byte) []*doctree.Node {
	var out []*doctree.Node
	var walk func(n ast.Node, marks []doctree.Mark)
	emit := func(value string, marks []doctree.Mark) {
		if value == "" {
			return
		}
		if len(out) > 0 {
			last := out[len(out)-1]
			if sameMarks(last.Marks, marks) {
				last.Text += value
				return
			}
		}
		node := doctree.NewText(value)
		if len(marks) > 0 {
			node.Marks = append([]doctree.Mark(nil), marks...)
		}
		out = append(out, node)
	}
	walk = func(n ast.Node, marks []doctree.Mark) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Text:
				value := string(node.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					value += " "
				}
				emit(value, marks)
			case *ast.String:
				emit(string(node.Value), marks)
			case *ast.Emphasis:
				markType := "italic"
				if node.Level >= 2 {
					markType = "bold"
				}
				walk(node, withMark(marks, doctree.Mark{Type: markType}))
			case *ast.CodeSpan:
				walk(node, withMark(marks, doctree.Mark{Type: "code"}))
			case *ast.Link:
				walk(node, withMark(marks, doctree.Mark{Type: "link", Attrs: map[string]any{"href": string(node.Destination)}}))
			case *ast.AutoLink:
				url := string(node.URL(src))
				emit(string(node.Label(src)), withMark(marks, doctree.Mark{Type: "link", Attrs: map[string]any{"href": url}}))
			default:
				walk(node, marks)
			}
		}
	}
	walk(parent, nil)
	if len(out) > 0 {
		last := out[len(out)-1]
		last.Text = strings.TrimRight(last.Text, " ")
		if last.Text == "" {
			out = out[:len(out)-1]
		}
	}
	return out
}

func withMark(marks []doctree.Mark, mark doctree.Mark) []doctree.Mark {
	next := make([]doctree.Mark, 0, len(marks)+1)
	next = append(next, marks...)
	return append(next, mark)
}

func sameMarks(a, b []doctree.Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type {
			return false
		}
		if a[i].Type == "link" && a[i].Attrs["href"] != b[i].Attrs["href"] {
			return false
		}
	}
	return true
}

// blockText gets the raw text of a block node and its children.
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
			continue
		}
		if buf.Len() > 0 && c.Type() == ast.TypeBlock {
			buf.WriteByte('\n')
		}
		buf.WriteString(blockText(c, src))
	}
	return buf.String()
}
