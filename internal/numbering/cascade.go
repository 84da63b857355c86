package numbering

import (
	"fmt"

	"chronicle/outline/internal/doctree"
)

// CascadeReport describes what an override touched.
type CascadeReport struct {
	Applied   bool              `json:"applied"`
	Target    string            `json:"target"`
	Old       string            `json:"old"`
	New       string            `json:"new"`
	Restart   bool              `json:"restart"`
	Updated   []string          `json:"updated"`
	Visited   int               `json:"visited"`
	Truncated bool              `json:"truncated"`
	Addresses []doctree.Address `json:"-"`
}

// SetOverride pins value as the target item's number (or clears the
// override when value is nil) and ripples the change to descendants and
// same-depth siblings, all in one transaction. An address that no longer
// resolves to a heading item is a no-op.
func (e *Engine) SetOverride(doc *doctree.Document, addr doctree.Address, value *string, restart bool) (CascadeReport, error) {
	if value != nil {
		if _, err := ParseNumber(*value); err != nil {
			return CascadeReport{Target: addr.String()}, err
		}
	}
	result := Scan(doc)
	idx, ok := result.Lookup(addr)
	if !ok || result.Items[idx].Kind != KindHeading {
		e.log.Debug("override target is stale", "address", addr.String(), "revision", doc.Revision())
		return CascadeReport{Target: addr.String()}, nil
	}
	return e.override(doc, result, idx, value, restart)
}

func (e *Engine) override(doc *doctree.Document, result Result, idx int, value *string, restart bool) (CascadeReport, error) {
	tx, report := e.plan(result, idx, value, restart)
	if err := doc.Apply(tx); err != nil {
		return report, fmt.Errorf("apply override: %w", err)
	}
	report.Applied = true
	if report.Truncated {
		e.log.Warn("override ripple truncated",
			"target", report.Target,
			"visited", report.Visited,
			"limit", e.opts.MaxRippleItems,
		)
	}
	e.log.Info("override applied",
		"target", report.Target,
		"old", report.Old,
		"new", report.New,
		"restart", report.Restart,
		"updated", len(report.Updated),
	)
	return report, nil
}

// plan builds the cascade transaction. The walk starts after the target,
// crosses container boundaries, looks only at heading items and stops at
// the first item shallower than the target.
func (e *Engine) plan(result Result, idx int, value *string, restart bool) (*doctree.Transaction, CascadeReport) {
	target := result.Items[idx]
	old := target.Effective()
	depth := Depth(old)
	report := CascadeReport{Target: target.Address.String(), Old: old}
	tx := doctree.NewTransaction(doctree.OriginOverride)

	clearing := value == nil
	var next string
	var shift int
	if clearing {
		tx.SetAttrs(target.Address, map[string]any{
			AttrCustomNumber:     nil,
			AttrRestartNumbering: nil,
		})
	} else {
		next = *value
		report.New = next
		report.Restart = restart
		oldLast, _ := LastSegment(old)
		newLast, _ := LastSegment(next)
		shift = newLast - oldLast
		var restartValue any
		if restart {
			restartValue = true
		}
		tx.SetAttrs(target.Address, map[string]any{
			AttrCustomNumber:     next,
			AttrRestartNumbering: restartValue,
		})
	}

	touch := func(item Item, custom any) {
		tx.SetAttrs(item.Address, map[string]any{AttrCustomNumber: custom})
		report.Updated = append(report.Updated, item.Address.String())
		report.Addresses = append(report.Addresses, item.Address)
	}

	for j := idx + 1; j < len(result.Items); j++ {
		item := result.Items[j]
		if item.Kind != KindHeading {
			continue
		}
		effective := item.Effective()
		itemDepth := Depth(effective)
		if itemDepth == 0 {
			continue
		}
		if itemDepth < depth {
			break
		}
		if report.Visited >= e.opts.MaxRippleItems {
			report.Truncated = true
			break
		}
		report.Visited++
		if itemDepth > depth {
			renamed, descendant := ReplacePrefix(effective, old, next)
			if !descendant {
				continue
			}
			if clearing {
				if item.Custom != "" {
					touch(item, nil)
				}
				continue
			}
			touch(item, renamed)
			continue
		}
		if clearing {
			if item.Custom != "" {
				touch(item, nil)
			}
			continue
		}
		touch(item, ShiftLast(effective, shift))
	}
	return tx, report
}
