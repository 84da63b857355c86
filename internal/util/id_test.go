package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	a, b := NewID("doc"), NewID("doc")
	if a == b {
		t.Fatal("NewID returned the same id twice")
	}
	if !strings.HasPrefix(a, "doc_") || len(a) != len("doc_")+32 {
		t.Fatalf("unexpected id %q", a)
	}
	if strings.Contains(NewID(""), "_") {
		t.Fatal("empty prefix should not add a separator")
	}
}

func TestStableID(t *testing.T) {
	if StableID("usr", "Avery") != StableID("usr", "  avery ") {
		t.Fatal("StableID is sensitive to case or spacing")
	}
	if StableID("usr", "Avery") == StableID("usr", "Blake") {
		t.Fatal("different values share an id")
	}
	if got := StableID("usr", "Avery"); !strings.HasPrefix(got, "usr_") || len(got) != len("usr_")+20 {
		t.Fatalf("unexpected id %q", got)
	}
}
