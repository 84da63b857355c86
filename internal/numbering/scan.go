// Package numbering computes, renders and overrides hierarchical outline
// numbers (1, 1.1, 1.1.2) for ordered-list items whose content is a heading
// or a plain paragraph.
//
// All numbering state lives in list item attributes. Scan is a pure fold
// over the document; Engine writes only the attribute deltas back so the
// host's change notification settles after one extra pass.
package numbering

import (
	"sort"

	"chronicle/outline/internal/doctree"
)

// Attribute keys owned by the engine on list items.
const (
	AttrHeadingLevel     = "headingLevel"
	AttrComputedNumber   = "computedNumber"
	AttrCustomNumber     = "customNumber"
	AttrRestartNumbering = "restartNumbering"
	AttrDiagnostic       = "numberingDiagnostic"

	attrStart = "start"
	attrLevel = "level"
)

type Kind int

const (
	KindHeading Kind = iota + 1
	KindParagraph
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindHeading:
		return "heading"
	case KindParagraph:
		return "paragraph"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

type DiagnosticCode string

const (
	DiagEmptyItem          DiagnosticCode = "empty-item"
	DiagMultipleChildren   DiagnosticCode = "multiple-children"
	DiagUnsupportedContent DiagnosticCode = "unsupported-content"
)

// Diagnostic reports a list item the scanner refused to number.
type Diagnostic struct {
	Address doctree.Address `json:"-"`
	Path    string          `json:"address"`
	Code    DiagnosticCode  `json:"code"`
	Message string          `json:"message"`
}

// Item is the scanner's view of one list item.
type Item struct {
	Address        doctree.Address
	Container      int
	Kind           Kind
	HeadingLevel   int
	Computed       string
	Custom         string
	Restart        bool
	ParagraphIndex int
	Diagnostic     DiagnosticCode
}

// Effective is the number shown to users: the override when present,
// otherwise the computed number.
func (it Item) Effective() string {
	if it.Custom != "" {
		return it.Custom
	}
	return it.Computed
}

// ContentAddress is the address of the item's heading or paragraph.
func (it Item) ContentAddress() doctree.Address {
	return it.Address.Child(0)
}

// Container is one ordered list in document order.
type Container struct {
	Address doctree.Address
	Start   int
	Items   []int
}

// Update is an attribute delta for one item; nil values remove keys.
type Update struct {
	Address doctree.Address
	Attrs   map[string]any
}

// Result is the outcome of one scan.
type Result struct {
	Revision    int64
	Containers  []Container
	Items       []Item
	Diagnostics []Diagnostic
	Updates     []Update
}

// Lookup returns the item at addr.
func (r Result) Lookup(addr doctree.Address) (int, bool) {
	idx := sort.Search(len(r.Items), func(i int) bool {
		return r.Items[i].Address.Compare(addr) >= 0
	})
	if idx < len(r.Items) && r.Items[idx].Address.Equal(addr) {
		return idx, true
	}
	return -1, false
}

// Owning returns the innermost item that is addr or one of its ancestors.
func (r Result) Owning(addr doctree.Address) (int, bool) {
	for probe := addr; ; probe = probe.Parent() {
		if idx, ok := r.Lookup(probe); ok {
			return idx, true
		}
		if len(probe) == 0 {
			return -1, false
		}
	}
}

// Scan walks every ordered list in document order and derives each item's
// number from scratch. It never mutates doc.
func Scan(doc *doctree.Document) Result {
	result := Result{Revision: doc.Revision()}
	var items []Item

	doc.Walk(func(node *doctree.Node, addr doctree.Address) bool {
		if node.Type != doctree.TypeOrderedList {
			return true
		}
		start, ok := doctree.IntAttr(node.Attrs, attrStart)
		if !ok || start < 1 {
			start = 1
		}
		containerIdx := len(result.Containers)
		result.Containers = append(result.Containers, Container{Address: addr, Start: start})

		var state counters
		for i, child := range node.Content {
			if child.Type != doctree.TypeListItem {
				continue
			}
			item := classify(child, addr.Child(i), containerIdx)
			switch item.Kind {
			case KindHeading:
				item.Computed = state.heading(item.HeadingLevel)
			case KindParagraph:
				item.ParagraphIndex = state.paragraph()
				if !state.seenHead {
					item.ParagraphIndex += start - 1
				}
			}
			items = append(items, item)
		}
		return true
	})

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Address.Compare(items[j].Address) < 0
	})

	result.Items = make([]Item, len(items))
	for i, item := range items {
		result.Items[i] = item
		container := &result.Containers[item.Container]
		container.Items = append(container.Items, i)

		node, _ := doc.NodeAt(item.Address)
		if update, changed := delta(node.Attrs, item); changed {
			result.Updates = append(result.Updates, Update{Address: item.Address, Attrs: update})
		}
		if item.Kind == KindMalformed {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Address: item.Address,
				Path:    item.Address.String(),
				Code:    item.Diagnostic,
				Message: diagnosticMessage(item.Diagnostic),
			})
		}
	}
	return result
}

func classify(node *doctree.Node, addr doctree.Address, container int) Item {
	item := Item{Address: addr, Container: container}
	item.Custom, _ = doctree.StringAttr(node.Attrs, AttrCustomNumber)
	item.Restart = doctree.BoolAttr(node.Attrs, AttrRestartNumbering)

	switch {
	case len(node.Content) == 0:
		item.Kind, item.Diagnostic = KindMalformed, DiagEmptyItem
	case len(node.Content) > 1:
		item.Kind, item.Diagnostic = KindMalformed, DiagMultipleChildren
	case node.Content[0].Type == doctree.TypeHeading:
		level, ok := doctree.IntAttr(node.Content[0].Attrs, attrLevel)
		if !ok {
			level = 1
		}
		item.Kind, item.HeadingLevel = KindHeading, clampLevel(level)
	case node.Content[0].Type == doctree.TypeParagraph:
		item.Kind = KindParagraph
		item.Custom, item.Restart = "", false
	default:
		item.Kind, item.Diagnostic = KindMalformed, DiagUnsupportedContent
	}
	return item
}

// delta compares the stored attributes with the scanned item and returns
// only the keys that must change.
func delta(attrs map[string]any, item Item) (map[string]any, bool) {
	want := map[string]any{}
	switch item.Kind {
	case KindHeading:
		want[AttrHeadingLevel] = item.HeadingLevel
		want[AttrComputedNumber] = item.Computed
		want[AttrDiagnostic] = nil
	case KindParagraph:
		want[AttrHeadingLevel] = nil
		want[AttrComputedNumber] = nil
		want[AttrCustomNumber] = nil
		want[AttrRestartNumbering] = nil
		want[AttrDiagnostic] = nil
	case KindMalformed:
		want[AttrHeadingLevel] = nil
		want[AttrComputedNumber] = nil
		want[AttrDiagnostic] = string(item.Diagnostic)
	}

	changes := map[string]any{}
	for key, value := range want {
		if !attrEqual(attrs, key, value) {
			changes[key] = value
		}
	}
	return changes, len(changes) > 0
}

func attrEqual(attrs map[string]any, key string, want any) bool {
	if want == nil {
		return !doctree.HasAttr(attrs, key)
	}
	switch typed := want.(type) {
	case int:
		got, ok := doctree.IntAttr(attrs, key)
		return ok && got == typed
	case string:
		got, ok := attrs[key].(string)
		return ok && got == typed
	default:
		return attrs[key] == want
	}
}

func diagnosticMessage(code DiagnosticCode) string {
	switch code {
	case DiagEmptyItem:
		return "list item has no content"
	case DiagMultipleChildren:
		return "list item holds more than one block"
	case DiagUnsupportedContent:
		return "list item content is neither a heading nor a paragraph"
	default:
		return ""
	}
}
