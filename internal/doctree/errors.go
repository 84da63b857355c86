package doctree

import "errors"

var (
	// ErrInvalidAddress indicates an address string could not be parsed.
	ErrInvalidAddress = errors.New("doctree: invalid address")

	// ErrNoNode indicates that no node exists at an address.
	ErrNoNode = errors.New("doctree: no node at address")

	// ErrNotDocument indicates the JSON root is not a doc node.
	ErrNotDocument = errors.New("doctree: root is not a doc node")

	// ErrInvalidPosition indicates a position outside the document.
	ErrInvalidPosition = errors.New("doctree: position out of bounds")

	// ErrRootEdit indicates a structural step targeted the root node.
	ErrRootEdit = errors.New("doctree: cannot insert or delete the root")
)
