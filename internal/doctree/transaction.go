package doctree

import "fmt"

type stepKind int

const (
	stepSetAttrs stepKind = iota
	stepInsert
	stepDelete
)

type step struct {
	kind  stepKind
	addr  Address
	index int
	attrs map[string]any
	node  *Node
}

// Transaction batches steps so Document.Apply can commit them as one change.
type Transaction struct {
	origin Origin
	steps  []step
}

func NewTransaction(origin Origin) *Transaction {
	return &Transaction{origin: origin}
}

func (tx *Transaction) Origin() Origin {
	return tx.origin
}

// Len reports the number of queued steps.
func (tx *Transaction) Len() int {
	return len(tx.steps)
}

// SetAttrs merges attrs into the node at addr. A nil value removes the key.
func (tx *Transaction) SetAttrs(addr Address, attrs map[string]any) *Transaction {
	tx.steps = append(tx.steps, step{kind: stepSetAttrs, addr: append(Address(nil), addr...), attrs: cloneAttrs(attrs)})
	return tx
}

// Insert places node as the index-th child of parent.
func (tx *Transaction) Insert(parent Address, index int, node *Node) *Transaction {
	tx.steps = append(tx.steps, step{kind: stepInsert, addr: append(Address(nil), parent...), index: index, node: node.Clone()})
	return tx
}

// Delete removes the node at addr. Later steps see the shifted addresses.
func (tx *Transaction) Delete(addr Address) *Transaction {
	tx.steps = append(tx.steps, step{kind: stepDelete, addr: append(Address(nil), addr...)})
	return tx
}

func (s step) apply(root *Node) error {
	switch s.kind {
	case stepSetAttrs:
		node := nodeAt(root, s.addr)
		if node == nil {
			return fmt.Errorf("%w: %q", ErrNoNode, s.addr.String())
		}
		if node.Attrs == nil {
			node.Attrs = make(map[string]any, len(s.attrs))
		}
		for key, value := range s.attrs {
			if value == nil {
				delete(node.Attrs, key)
				continue
			}
			node.Attrs[key] = value
		}
		if len(node.Attrs) == 0 {
			node.Attrs = nil
		}
		return nil
	case stepInsert:
		parent := nodeAt(root, s.addr)
		if parent == nil {
			return fmt.Errorf("%w: %q", ErrNoNode, s.addr.String())
		}
		if s.index < 0 || s.index > len(parent.Content) {
			return fmt.Errorf("%w: insert index %d under %q", ErrNoNode, s.index, s.addr.String())
		}
		parent.Content = append(parent.Content, nil)
		copy(parent.Content[s.index+1:], parent.Content[s.index:])
		parent.Content[s.index] = s.node.Clone()
		return nil
	case stepDelete:
		if len(s.addr) == 0 {
			return ErrRootEdit
		}
		parent := nodeAt(root, s.addr.Parent())
		index := s.addr[len(s.addr)-1]
		if parent == nil || index >= len(parent.Content) {
			return fmt.Errorf("%w: %q", ErrNoNode, s.addr.String())
		}
		parent.Content = append(parent.Content[:index], parent.Content[index+1:]...)
		return nil
	default:
		return fmt.Errorf("doctree: unknown step kind %d", s.kind)
	}
}
