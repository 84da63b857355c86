package doctree

import (
	"encoding/json"
	"fmt"
)

// Origin tags who produced a change so listeners can tell their own writes
// apart from user and collaborator edits.
type Origin string

const (
	OriginLocal     Origin = "local"
	OriginRemote    Origin = "remote"
	OriginOverride  Origin = "override"
	OriginNumbering Origin = "numbering"
)

// Change describes one committed transaction.
type Change struct {
	Revision int64
	Origin   Origin
	Steps    int
}

// Listener is invoked after every committed transaction.
type Listener func(doc *Document, change Change)

// Document owns a node tree and serializes every mutation through Apply.
// It is not safe for concurrent use; the editor drives it from a single
// goroutine.
type Document struct {
	root      *Node
	revision  int64
	listeners []Listener
}

// New wraps root in a document at revision zero.
func New(root *Node) *Document {
	return Load(root, 0)
}

// Load wraps root in a document at the given revision.
func Load(root *Node, revision int64) *Document {
	if root == nil {
		root = &Node{Type: TypeDoc}
	}
	return &Document{root: root, revision: revision}
}

// Parse decodes ProseMirror JSON into a document.
func Parse(data []byte) (*Document, error) {
	root, err := ParseNode(data)
	if err != nil {
		return nil, err
	}
	return New(root), nil
}

// ParseNode decodes ProseMirror JSON and checks that the root is a doc.
func ParseNode(data []byte) (*Node, error) {
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if root.Type != TypeDoc {
		return nil, ErrNotDocument
	}
	return &root, nil
}

// Root returns the live root node. Callers must treat it as read-only and
// mutate through Apply.
func (d *Document) Root() *Node {
	return d.root
}

func (d *Document) Revision() int64 {
	return d.revision
}

// MarshalJSON encodes the tree in ProseMirror JSON form.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.root)
}

// Clone returns an independent copy without listeners.
func (d *Document) Clone() *Document {
	return Load(d.root.Clone(), d.revision)
}

// OnChange registers a mutation listener.
func (d *Document) OnChange(listener Listener) {
	d.listeners = append(d.listeners, listener)
}

// Walk visits every node in pre-order. Returning false from fn skips the
// node's descendants.
func (d *Document) Walk(fn func(node *Node, addr Address) bool) {
	walk(d.root, Address{}, fn)
}

func walk(node *Node, addr Address, fn func(*Node, Address) bool) {
	if !fn(node, addr) {
		return
	}
	for i, child := range node.Content {
		walk(child, addr.Child(i), fn)
	}
}

// NodeAt resolves an address to its node.
func (d *Document) NodeAt(addr Address) (*Node, bool) {
	node := nodeAt(d.root, addr)
	return node, node != nil
}

func nodeAt(root *Node, addr Address) *Node {
	node := root
	for _, index := range addr {
		if index < 0 || index >= len(node.Content) {
			return nil
		}
		node = node.Content[index]
	}
	return node
}

// Attributes returns a copy of the attribute bag at addr.
func (d *Document) Attributes(addr Address) (map[string]any, bool) {
	node, ok := d.NodeAt(addr)
	if !ok {
		return nil, false
	}
	if node.Attrs == nil {
		return map[string]any{}, true
	}
	return cloneAttrs(node.Attrs), true
}

// Apply commits tx atomically: the steps run against a copy of the tree and
// the copy replaces the live tree only when every step succeeded. Listeners
// are notified once per committed transaction. Empty transactions are
// ignored.
func (d *Document) Apply(tx *Transaction) error {
	if tx == nil || len(tx.steps) == 0 {
		return nil
	}
	next := d.root.Clone()
	for i, step := range tx.steps {
		if err := step.apply(next); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	d.root = next
	d.revision++

	change := Change{Revision: d.revision, Origin: tx.origin, Steps: len(tx.steps)}
	for _, listener := range d.listeners {
		listener(d, change)
	}
	return nil
}
