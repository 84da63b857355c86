// Package interaction maps user gestures on outline markers to numbering
// engine calls. It owns no UI; hosts plug in through small capability
// interfaces.
package interaction

import (
	"errors"
	"fmt"
	"strings"

	"chronicle/outline/internal/doctree"
	"chronicle/outline/internal/numbering"
)

type Action string

const (
	ActionSetValue           Action = "set-value"
	ActionRestartFromOne     Action = "restart-from-one"
	ActionRestartFromCurrent Action = "restart-from-current"
	ActionContinue           Action = "continue"
	ActionClear              Action = "clear"
)

var allActions = []Action{
	ActionSetValue,
	ActionRestartFromOne,
	ActionRestartFromCurrent,
	ActionContinue,
	ActionClear,
}

// ErrInvalidRequest is wrapped by every ValidationError.
var ErrInvalidRequest = errors.New("interaction: invalid request")

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

func ParseAction(value string) (Action, error) {
	action := Action(strings.TrimSpace(strings.ToLower(value)))
	for _, known := range allActions {
		if action == known {
			return action, nil
		}
	}
	return "", &ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", value)}
}

// ScreenResolver turns a screen point into a document position. Hosts
// without a layout (tests, the CLI) can use PositionResolver.
type ScreenResolver interface {
	ResolvePosition(x, y float64) (int, bool)
}

// PositionResolver adapts a plain function to ScreenResolver.
type PositionResolver func(x, y float64) (int, bool)

func (f PositionResolver) ResolvePosition(x, y float64) (int, bool) {
	return f(x, y)
}

// Overrider is the slice of the numbering engine the adapter drives.
type Overrider interface {
	SetValue(doc *doctree.Document, addr doctree.Address, value string) (numbering.CascadeReport, error)
	RestartFromOne(doc *doctree.Document, addr doctree.Address) (numbering.CascadeReport, error)
	RestartFromCurrent(doc *doctree.Document, addr doctree.Address) (numbering.CascadeReport, error)
	ContinueFromPrevious(doc *doctree.Document, addr doctree.Address) (numbering.CascadeReport, error)
	ClearOverride(doc *doctree.Document, addr doctree.Address) (numbering.CascadeReport, error)
}

// MenuPresenter opens the override menu in the host UI.
type MenuPresenter interface {
	Present(menu Menu)
}

// Menu is what the host shows after a click on a numbered heading.
type Menu struct {
	Address    string   `json:"address"`
	Current    string   `json:"current"`
	Computed   string   `json:"computed"`
	Level      int      `json:"level"`
	Overridden bool     `json:"overridden"`
	Restarted  bool     `json:"restarted"`
	Actions    []Action `json:"actions"`
}

// Request is a submitted menu choice.
type Request struct {
	Address string `json:"address"`
	Action  Action `json:"action"`
	Value   string `json:"value,omitempty"`
}

type Adapter struct {
	engine    Overrider
	screen    ScreenResolver
	presenter MenuPresenter
}

func NewAdapter(engine Overrider, screen ScreenResolver, presenter MenuPresenter) *Adapter {
	return &Adapter{engine: engine, screen: screen, presenter: presenter}
}

// ItemAt resolves a screen point to the heading item that owns it.
func (a *Adapter) ItemAt(doc *doctree.Document, x, y float64) (doctree.Address, bool) {
	if a.screen == nil {
		return nil, false
	}
	pos, ok := a.screen.ResolvePosition(x, y)
	if !ok {
		return nil, false
	}
	addr, err := doc.ResolvePos(pos)
	if err != nil {
		return nil, false
	}
	result := numbering.Scan(doc)
	idx, ok := result.Owning(addr)
	if !ok || result.Items[idx].Kind != numbering.KindHeading {
		return nil, false
	}
	return result.Items[idx].Address, true
}

// OpenAt resolves the point and presents the menu for the item under it.
func (a *Adapter) OpenAt(doc *doctree.Document, x, y float64) (Menu, bool) {
	addr, ok := a.ItemAt(doc, x, y)
	if !ok {
		return Menu{}, false
	}
	menu, ok := a.MenuFor(doc, addr)
	if !ok {
		return Menu{}, false
	}
	if a.presenter != nil {
		a.presenter.Present(menu)
	}
	return menu, true
}

// MenuFor describes the override state of the heading item at addr.
func (a *Adapter) MenuFor(doc *doctree.Document, addr doctree.Address) (Menu, bool) {
	result := numbering.Scan(doc)
	idx, ok := result.Lookup(addr)
	if !ok || result.Items[idx].Kind != numbering.KindHeading {
		return Menu{}, false
	}
	item := result.Items[idx]
	menu := Menu{
		Address:    item.Address.String(),
		Current:    item.Effective(),
		Computed:   item.Computed,
		Level:      item.HeadingLevel,
		Overridden: item.Custom != "",
		Restarted:  item.Restart,
	}
	for _, action := range allActions {
		if action == ActionClear && !menu.Overridden {
			continue
		}
		menu.Actions = append(menu.Actions, action)
	}
	return menu, true
}

// Validate checks a request without touching the document.
func Validate(req Request) (doctree.Address, Action, error) {
	addr, err := doctree.ParseAddress(req.Address)
	if err != nil || len(addr) == 0 {
		return nil, "", &ValidationError{Field: "address", Message: fmt.Sprintf("invalid address %q", req.Address)}
	}
	action, err := ParseAction(string(req.Action))
	if err != nil {
		return nil, "", err
	}
	if action == ActionSetValue {
		if _, err := numbering.ParseNumber(req.Value); err != nil {
			return nil, "", &ValidationError{Field: "value", Message: "must be a positive integer or a dotted number like 2.3"}
		}
	}
	return addr, action, nil
}

// Submit validates req and runs the matching engine operation. A stale
// address yields a report with Applied false and no error.
func (a *Adapter) Submit(doc *doctree.Document, req Request) (numbering.CascadeReport, error) {
	addr, action, err := Validate(req)
	if err != nil {
		return numbering.CascadeReport{Target: req.Address}, err
	}
	switch action {
	case ActionSetValue:
		return a.engine.SetValue(doc, addr, req.Value)
	case ActionRestartFromOne:
		return a.engine.RestartFromOne(doc, addr)
	case ActionRestartFromCurrent:
		return a.engine.RestartFromCurrent(doc, addr)
	case ActionContinue:
		return a.engine.ContinueFromPrevious(doc, addr)
	default:
		return a.engine.ClearOverride(doc, addr)
	}
}
