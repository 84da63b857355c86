package doctree

import "fmt"

// PosOf returns the ProseMirror position directly before the node at addr.
// The root's content starts at position 0, so the root itself has no
// position and reports -1.
func (d *Document) PosOf(addr Address) (int, error) {
	if len(addr) == 0 {
		return -1, nil
	}
	node := d.root
	pos := 0
	for depth, index := range addr {
		if index < 0 || index >= len(node.Content) {
			return 0, fmt.Errorf("%w: %q", ErrNoNode, addr.String())
		}
		for _, sibling := range node.Content[:index] {
			pos += sibling.Size()
		}
		node = node.Content[index]
		if depth < len(addr)-1 {
			pos++
		}
	}
	return pos, nil
}

// ContentStart returns the position where the content of the node at addr
// begins, i.e. immediately before its first child or character.
func (d *Document) ContentStart(addr Address) (int, error) {
	if len(addr) == 0 {
		return 0, nil
	}
	pos, err := d.PosOf(addr)
	if err != nil {
		return 0, err
	}
	return pos + 1, nil
}

// ResolvePos returns the address of the innermost non-text node whose
// content range contains pos.
func (d *Document) ResolvePos(pos int) (Address, error) {
	if pos < 0 || pos > d.root.ContentSize() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPosition, pos)
	}
	addr := Address{}
	node := d.root
	start := 0
	for {
		offset := start
		descended := false
		for i, child := range node.Content {
			size := child.Size()
			if child.Type != TypeText && !child.IsLeaf() && pos > offset && pos < offset+size {
				addr = addr.Child(i)
				node = child
				start = offset + 1
				descended = true
				break
			}
			offset += size
		}
		if !descended {
			return addr, nil
		}
	}
}
