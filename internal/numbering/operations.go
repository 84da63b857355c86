package numbering

import (
	"strings"

	"chronicle/outline/internal/doctree"
)

// SetValue pins the target's number. A bare integer replaces only the last
// segment of the current number; a dotted value is taken as-is.
func (e *Engine) SetValue(doc *doctree.Document, addr doctree.Address, value string) (CascadeReport, error) {
	value = strings.TrimSpace(value)
	if _, err := ParseNumber(value); err != nil {
		return CascadeReport{Target: addr.String()}, err
	}
	return e.derive(doc, addr, func(result Result, item Item) (*string, bool) {
		if strings.Contains(value, ".") {
			return &value, false
		}
		last, _ := LastSegment(value)
		next := WithLastSegment(item.Effective(), last)
		return &next, false
	})
}

// RestartFromOne resets the target's last segment to 1 at its current depth.
func (e *Engine) RestartFromOne(doc *doctree.Document, addr doctree.Address) (CascadeReport, error) {
	return e.derive(doc, addr, func(result Result, item Item) (*string, bool) {
		next := WithLastSegment(item.Effective(), 1)
		return &next, true
	})
}

// RestartFromCurrent pins the number the target shows right now.
func (e *Engine) RestartFromCurrent(doc *doctree.Document, addr doctree.Address) (CascadeReport, error) {
	return e.derive(doc, addr, func(result Result, item Item) (*string, bool) {
		next := item.Effective()
		return &next, true
	})
}

// ContinueFromPrevious numbers the target one past the last matching item
// of the nearest preceding list. Without a match the override is cleared.
func (e *Engine) ContinueFromPrevious(doc *doctree.Document, addr doctree.Address) (CascadeReport, error) {
	return e.derive(doc, addr, func(result Result, item Item) (*string, bool) {
		previous, ok := result.previousMatch(item)
		if !ok {
			return nil, false
		}
		last, _ := LastSegment(previous.Effective())
		next := WithLastSegment(item.Effective(), last+1)
		return &next, false
	})
}

// ClearOverride drops the target's override and the ripple it caused.
func (e *Engine) ClearOverride(doc *doctree.Document, addr doctree.Address) (CascadeReport, error) {
	return e.derive(doc, addr, func(Result, Item) (*string, bool) {
		return nil, false
	})
}

type valueFunc func(result Result, item Item) (value *string, restart bool)

func (e *Engine) derive(doc *doctree.Document, addr doctree.Address, fn valueFunc) (CascadeReport, error) {
	result := Scan(doc)
	idx, ok := result.Lookup(addr)
	if !ok || result.Items[idx].Kind != KindHeading {
		e.log.Debug("override target is stale", "address", addr.String(), "revision", doc.Revision())
		return CascadeReport{Target: addr.String()}, nil
	}
	value, restart := fn(result, result.Items[idx])
	return e.override(doc, result, idx, value, restart)
}

// previousMatch finds the last heading item of the target's level in the
// nearest list before the target's own list, preferring one whose number
// has the target's depth. Lists enclosing the target are skipped. Only the
// last segment of the match is carried over.
func (r Result) previousMatch(target Item) (Item, bool) {
	own := r.Containers[target.Container].Address
	depth := Depth(target.Effective())
	for c := target.Container - 1; c >= 0; c-- {
		container := r.Containers[c]
		if container.Address.Contains(own) {
			continue
		}
		var fallback Item
		found := false
		for i := len(container.Items) - 1; i >= 0; i-- {
			item := r.Items[container.Items[i]]
			if item.Kind != KindHeading || item.HeadingLevel != target.HeadingLevel || item.Effective() == "" {
				continue
			}
			if Depth(item.Effective()) == depth {
				return item, true
			}
			if !found {
				fallback, found = item, true
			}
		}
		return fallback, found
	}
	return Item{}, false
}
