package numbering

import (
	"fmt"
	"log/slog"

	"chronicle/outline/internal/doctree"
)

// DefaultMaxRippleItems bounds how many heading items one override may
// visit after its target.
const DefaultMaxRippleItems = 10000

type Options struct {
	MaxRippleItems int
}

// Engine recomputes numbers and applies override cascades. It holds no
// numbering state between calls and may be shared across documents.
type Engine struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options, log *slog.Logger) *Engine {
	if opts.MaxRippleItems <= 0 {
		opts.MaxRippleItems = DefaultMaxRippleItems
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{opts: opts, log: log}
}

// Recompute scans doc and writes the attribute deltas in one transaction.
// A document that is already up to date is left untouched.
func (e *Engine) Recompute(doc *doctree.Document) (Result, error) {
	result := Scan(doc)
	if len(result.Updates) == 0 {
		return result, nil
	}
	tx := doctree.NewTransaction(doctree.OriginNumbering)
	for _, update := range result.Updates {
		tx.SetAttrs(update.Address, update.Attrs)
	}
	if err := doc.Apply(tx); err != nil {
		return result, fmt.Errorf("apply numbering updates: %w", err)
	}
	e.log.Debug("numbering pass applied",
		"revision", doc.Revision(),
		"updates", len(result.Updates),
		"diagnostics", len(result.Diagnostics),
	)
	return result, nil
}

// OnDocumentChanged is the host's mutation hook. Failures are logged, never
// returned: the hook runs inside the host's notification handler.
func (e *Engine) OnDocumentChanged(doc *doctree.Document) {
	if _, err := e.Recompute(doc); err != nil {
		e.log.Warn("numbering pass failed", "revision", doc.Revision(), "error", err)
	}
}

// Attach registers the engine as a change listener on doc. The engine's
// own numbering writes are skipped, so each external change costs at most
// one extra transaction.
func (e *Engine) Attach(doc *doctree.Document) {
	inPass := false
	doc.OnChange(func(d *doctree.Document, change doctree.Change) {
		if inPass || change.Origin == doctree.OriginNumbering {
			return
		}
		inPass = true
		defer func() { inPass = false }()
		e.OnDocumentChanged(d)
	})
}
