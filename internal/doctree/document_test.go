package doctree

import (
	"errors"
	"testing"
)

func sampleDoc() *Document {
	return New(NewNode(TypeDoc, nil,
		NewNode(TypeParagraph, nil, NewText("Intro")),
		NewNode(TypeOrderedList, map[string]any{"start": 1.0},
			NewNode(TypeListItem, nil,
				NewNode(TypeHeading, map[string]any{"level": 1.0}, NewText("Scope")),
			),
			NewNode(TypeListItem, nil,
				NewNode(TypeParagraph, nil, NewText("Body")),
			),
		),
	))
}

func TestParseRejectsNonDoc(t *testing.T) {
	_, err := Parse([]byte(`{"type":"paragraph"}`))
	if !errors.Is(err, ErrNotDocument) {
		t.Fatalf("Parse() error = %v, want ErrNotDocument", err)
	}
}

func TestParseAndMarshalRoundTrip(t *testing.T) {
	raw := `{"type":"doc","content":[{"type":"orderedList","attrs":{"start":1},"content":[{"type":"listItem","content":[{"type":"heading","attrs":{"level":2},"content":[{"type":"text","text":"A"}]}]}]}]}`
	doc, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	heading, ok := doc.NodeAt(Address{0, 0, 0})
	if !ok || heading.Type != TypeHeading {
		t.Fatalf("unexpected node at 0.0.0: %+v", heading)
	}
	level, ok := IntAttr(heading.Attrs, "level")
	if !ok || level != 2 {
		t.Fatalf("IntAttr(level) = %d, %v", level, ok)
	}
	encoded, err := doc.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(encoded) != raw {
		t.Fatalf("round trip mismatch:\n got %s\nwant %s", encoded, raw)
	}
}

func TestWalkIsPreOrder(t *testing.T) {
	doc := sampleDoc()
	var seen []string
	doc.Walk(func(node *Node, addr Address) bool {
		seen = append(seen, node.Type+"@"+addr.String())
		return node.Type != TypeHeading
	})
	want := []string{
		"doc@",
		"paragraph@0",
		"text@0.0",
		"orderedList@1",
		"listItem@1.0",
		"heading@1.0.0",
		"listItem@1.1",
		"paragraph@1.1.0",
		"text@1.1.0.0",
	}
	if len(seen) != len(want) {
		t.Fatalf("walk visited %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("walk[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestApplyIsAtomicAndNotifiesOnce(t *testing.T) {
	doc := sampleDoc()
	var changes []Change
	doc.OnChange(func(_ *Document, change Change) {
		changes = append(changes, change)
	})

	bad := NewTransaction(OriginLocal).
		SetAttrs(Address{1, 0}, map[string]any{"customNumber": "5"}).
		SetAttrs(Address{9}, map[string]any{"x": 1})
	if err := doc.Apply(bad); !errors.Is(err, ErrNoNode) {
		t.Fatalf("Apply() error = %v, want ErrNoNode", err)
	}
	attrs, _ := doc.Attributes(Address{1, 0})
	if HasAttr(attrs, "customNumber") {
		t.Fatal("failed transaction leaked a partial write")
	}
	if doc.Revision() != 0 || len(changes) != 0 {
		t.Fatalf("failed transaction bumped revision %d or notified %d", doc.Revision(), len(changes))
	}

	good := NewTransaction(OriginOverride).
		SetAttrs(Address{1, 0}, map[string]any{"customNumber": "5", "restartNumbering": true}).
		SetAttrs(Address{1, 1}, map[string]any{"customNumber": nil})
	if err := doc.Apply(good); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if doc.Revision() != 1 || len(changes) != 1 {
		t.Fatalf("revision = %d, notifications = %d", doc.Revision(), len(changes))
	}
	if changes[0].Origin != OriginOverride || changes[0].Steps != 2 {
		t.Fatalf("unexpected change: %+v", changes[0])
	}
	attrs, _ = doc.Attributes(Address{1, 0})
	if value, _ := StringAttr(attrs, "customNumber"); value != "5" || !BoolAttr(attrs, "restartNumbering") {
		t.Fatalf("unexpected attrs: %+v", attrs)
	}

	if err := doc.Apply(NewTransaction(OriginLocal)); err != nil || len(changes) != 1 {
		t.Fatalf("empty transaction should be ignored, err=%v notifications=%d", err, len(changes))
	}
}

func TestInsertAndDeleteSteps(t *testing.T) {
	doc := sampleDoc()
	tx := NewTransaction(OriginRemote).
		Insert(Address{1}, 0, NewNode(TypeListItem, nil, NewNode(TypeParagraph, nil))).
		Delete(Address{1, 2})
	if err := doc.Apply(tx); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	list, _ := doc.NodeAt(Address{1})
	if len(list.Content) != 2 {
		t.Fatalf("list has %d items, want 2", len(list.Content))
	}
	if list.Content[1].Content[0].Type != TypeHeading {
		t.Fatalf("heading item should have shifted to index 1")
	}
	if err := doc.Apply(NewTransaction(OriginLocal).Delete(Address{})); !errors.Is(err, ErrRootEdit) {
		t.Fatalf("deleting root error = %v", err)
	}
}

func TestPositions(t *testing.T) {
	doc := sampleDoc()
	// paragraph "Intro" occupies 0..7, the list starts at 7.
	cases := []struct {
		addr Address
		pos  int
	}{
		{Address{0}, 0},
		{Address{1}, 7},
		{Address{1, 0}, 8},
		{Address{1, 0, 0}, 9},
		{Address{1, 1}, 17},
		{Address{1, 1, 0}, 18},
	}
	for _, tc := range cases {
		pos, err := doc.PosOf(tc.addr)
		if err != nil {
			t.Fatalf("PosOf(%s) error = %v", tc.addr, err)
		}
		if pos != tc.pos {
			t.Fatalf("PosOf(%s) = %d, want %d", tc.addr, pos, tc.pos)
		}
	}

	start, _ := doc.ContentStart(Address{1, 0, 0})
	addr, err := doc.ResolvePos(start + 2)
	if err != nil {
		t.Fatalf("ResolvePos() error = %v", err)
	}
	if !addr.Equal(Address{1, 0, 0}) {
		t.Fatalf("ResolvePos(%d) = %s, want 1.0.0", start+2, addr)
	}
	if _, err := doc.ResolvePos(1000); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("ResolvePos(1000) error = %v", err)
	}
}

func TestAddressOrdering(t *testing.T) {
	a, err := ParseAddress("1.0")
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	if a.Compare(Address{1}) <= 0 {
		t.Fatal("descendant must sort after its ancestor")
	}
	if a.Compare(Address{1, 1}) >= 0 {
		t.Fatal("earlier sibling must sort first")
	}
	if !(Address{1}).Contains(a) || a.Contains(Address{1}) {
		t.Fatal("Contains mismatch")
	}
	if _, err := ParseAddress("1.x"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("ParseAddress(1.x) error = %v", err)
	}
}
