package doctree

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Address locates a node by the child indexes leading to it from the root.
// The root itself has the empty address.
type Address []int

// ParseAddress parses the dotted form produced by Address.String.
func ParseAddress(value string) (Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Address{}, nil
	}
	parts := strings.Split(value, ".")
	addr := make(Address, 0, len(parts))
	for _, part := range parts {
		index, err := strconv.Atoi(part)
		if err != nil || index < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, value)
		}
		addr = append(addr, index)
	}
	return addr, nil
}

func (a Address) String() string {
	if len(a) == 0 {
		return ""
	}
	parts := make([]string, len(a))
	for i, index := range a {
		parts[i] = strconv.Itoa(index)
	}
	return strings.Join(parts, ".")
}

// Child returns a new address for the index-th child of a.
func (a Address) Child(index int) Address {
	child := make(Address, len(a)+1)
	copy(child, a)
	child[len(a)] = index
	return child
}

// Parent returns the address of the enclosing node. The root has no parent
// and returns itself.
func (a Address) Parent() Address {
	if len(a) == 0 {
		return a
	}
	return slices.Clone(a[:len(a)-1])
}

func (a Address) Equal(b Address) bool {
	return slices.Equal(a, b)
}

// Compare orders addresses in document (pre-order) order: ancestors sort
// before their descendants.
func (a Address) Compare(b Address) int {
	return slices.Compare(a, b)
}

// Contains reports whether b is a or one of its descendants.
func (a Address) Contains(b Address) bool {
	if len(b) < len(a) {
		return false
	}
	return slices.Equal(a, b[:len(a)])
}
