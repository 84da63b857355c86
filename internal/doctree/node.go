// Package doctree is the editor's document host: a ProseMirror-shaped node
// tree with addressable nodes, atomic attribute transactions, positions and
// change notification.
package doctree

import (
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	TypeDoc         = "doc"
	TypeOrderedList = "orderedList"
	TypeBulletList  = "bulletList"
	TypeListItem    = "listItem"
	TypeHeading     = "heading"
	TypeParagraph   = "paragraph"
	TypeText        = "text"
	TypeHardBreak   = "hardBreak"
	TypeRule        = "horizontalRule"
	TypeImage       = "image"
)

// Leaf node types occupy a single position and never hold content.
var leafTypes = map[string]struct{}{
	TypeHardBreak: {},
	TypeRule:      {},
	TypeImage:     {},
}

// Mark represents inline formatting on a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Node is a single node of the document tree.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// NewNode builds a node with the given attributes and children.
func NewNode(nodeType string, attrs map[string]any, children ...*Node) *Node {
	return &Node{Type: nodeType, Attrs: attrs, Content: children}
}

// NewText builds a text node.
func NewText(text string) *Node {
	return &Node{Type: TypeText, Text: text}
}

// Attr returns the attribute value for key, or nil.
func (n *Node) Attr(key string) any {
	if n == nil || n.Attrs == nil {
		return nil
	}
	return n.Attrs[key]
}

// IsLeaf reports whether the node is an atom without content.
func (n *Node) IsLeaf() bool {
	if n.Type == TypeText {
		return false
	}
	_, ok := leafTypes[n.Type]
	return ok
}

// Size is the number of positions the node occupies, following ProseMirror:
// text counts its characters, leaves count one, everything else counts its
// content plus an opening and closing token.
func (n *Node) Size() int {
	if n.Type == TypeText {
		return utf8.RuneCountInString(n.Text)
	}
	if n.IsLeaf() {
		return 1
	}
	return n.ContentSize() + 2
}

// ContentSize is the summed size of the node's children.
func (n *Node) ContentSize() int {
	total := 0
	for _, child := range n.Content {
		total += child.Size()
	}
	return total
}

// TextContent concatenates the text of all descendant text nodes.
func (n *Node) TextContent() string {
	if n == nil {
		return ""
	}
	if n.Type == TypeText {
		return n.Text
	}
	var builder strings.Builder
	for _, child := range n.Content {
		builder.WriteString(child.TextContent())
	}
	return builder.String()
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cloned := &Node{
		Type: n.Type,
		Text: n.Text,
	}
	if n.Attrs != nil {
		cloned.Attrs = cloneAttrs(n.Attrs)
	}
	if len(n.Marks) > 0 {
		cloned.Marks = make([]Mark, len(n.Marks))
		for i, mark := range n.Marks {
			cloned.Marks[i] = Mark{Type: mark.Type}
			if mark.Attrs != nil {
				cloned.Marks[i].Attrs = cloneAttrs(mark.Attrs)
			}
		}
	}
	if len(n.Content) > 0 {
		cloned.Content = make([]*Node, len(n.Content))
		for i, child := range n.Content {
			cloned.Content[i] = child.Clone()
		}
	}
	return cloned
}

func cloneAttrs(attrs map[string]any) map[string]any {
	cloned := make(map[string]any, len(attrs))
	for key, value := range attrs {
		cloned[key] = cloneValue(value)
	}
	return cloned
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneAttrs(typed)
	case []any:
		items := make([]any, len(typed))
		for i, item := range typed {
			items[i] = cloneValue(item)
		}
		return items
	default:
		return value
	}
}

// IntAttr reads an integer attribute. JSON numbers decode as float64, so
// integral floats and json.Number are accepted as well.
func IntAttr(attrs map[string]any, key string) (int, bool) {
	value, ok := attrs[key]
	if !ok || value == nil {
		return 0, false
	}
	switch typed := value.(type) {
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case float64:
		if typed != math.Trunc(typed) {
			return 0, false
		}
		return int(typed), true
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return int(parsed), true
	default:
		return 0, false
	}
}

// StringAttr reads a non-empty string attribute.
func StringAttr(attrs map[string]any, key string) (string, bool) {
	value, ok := attrs[key].(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// BoolAttr reads a boolean attribute, defaulting to false.
func BoolAttr(attrs map[string]any, key string) bool {
	value, _ := attrs[key].(bool)
	return value
}

// HasAttr reports whether key is present with a non-nil value.
func HasAttr(attrs map[string]any, key string) bool {
	value, ok := attrs[key]
	return ok && value != nil
}
