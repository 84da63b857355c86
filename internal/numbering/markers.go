package numbering

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/zeebo/blake3"

	"chronicle/outline/internal/doctree"
)

// StyleHint tells a renderer how large a marker should be drawn.
type StyleHint struct {
	Level int     `json:"level"`
	Scale float64 `json:"scale"`
	Class string  `json:"class"`
}

// Handle makes a marker clickable; it names the item an override targets.
type Handle struct {
	Address string `json:"address"`
}

// Marker is one visual number anchored at the start of an item's content.
// Text is the bare number; renderers add their own punctuation.
type Marker struct {
	Anchor     int       `json:"anchor"`
	Text       string    `json:"text"`
	Style      StyleHint `json:"style"`
	Handle     *Handle   `json:"handle,omitempty"`
	Overridden bool      `json:"overridden,omitempty"`
}

// MarkerSet is the renderable view of a document revision. Fingerprint
// covers marker content only, so two revisions that render identically
// share one.
type MarkerSet struct {
	Revision    int64        `json:"revision"`
	Fingerprint string       `json:"fingerprint"`
	Markers     []Marker     `json:"markers"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

var headingScale = [maxLevel + 1]float64{0, 1.6, 1.4, 1.25, 1.1, 1.0, 0.9}

// Markers derives the display numbers for every numbered item in doc.
// Malformed items get no marker.
func Markers(doc *doctree.Document) (MarkerSet, error) {
	result := Scan(doc)
	set := MarkerSet{
		Revision:    result.Revision,
		Markers:     make([]Marker, 0, len(result.Items)),
		Diagnostics: result.Diagnostics,
	}
	if set.Diagnostics == nil {
		set.Diagnostics = []Diagnostic{}
	}
	for _, item := range result.Items {
		marker, ok, err := markerFor(doc, item)
		if err != nil {
			return MarkerSet{}, err
		}
		if ok {
			set.Markers = append(set.Markers, marker)
		}
	}
	set.Fingerprint = fingerprint(set.Markers)
	return set, nil
}

func markerFor(doc *doctree.Document, item Item) (Marker, bool, error) {
	var marker Marker
	switch item.Kind {
	case KindHeading:
		text := item.Effective()
		if text == "" {
			return marker, false, nil
		}
		marker.Text = text
		marker.Style = StyleHint{
			Level: item.HeadingLevel,
			Scale: headingScale[item.HeadingLevel],
			Class: "outline-number-h" + strconv.Itoa(item.HeadingLevel),
		}
		marker.Handle = &Handle{Address: item.Address.String()}
		marker.Overridden = item.Custom != ""
	case KindParagraph:
		marker.Text = strconv.Itoa(item.ParagraphIndex)
		marker.Style = StyleHint{Scale: 1.0, Class: "outline-number-p"}
	default:
		return marker, false, nil
	}
	anchor, err := doc.ContentStart(item.ContentAddress())
	if err != nil {
		return marker, false, fmt.Errorf("anchor for %s: %w", item.Address, err)
	}
	marker.Anchor = anchor
	return marker, true, nil
}

func fingerprint(markers []Marker) string {
	hasher := blake3.New()
	for _, m := range markers {
		address := ""
		if m.Handle != nil {
			address = m.Handle.Address
		}
		fmt.Fprintf(hasher, "%d|%s|%d|%s\n", m.Anchor, m.Text, m.Style.Level, address)
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Entry is one numbered heading in reading order.
type Entry struct {
	Address    string `json:"address"`
	Number     string `json:"number"`
	Level      int    `json:"level"`
	Title      string `json:"title"`
	Overridden bool   `json:"overridden,omitempty"`
}

// Entries lists the numbered headings of doc, the table of contents used by
// search indexing and export.
func Entries(doc *doctree.Document) []Entry {
	result := Scan(doc)
	entries := make([]Entry, 0, len(result.Items))
	for _, item := range result.Items {
		if item.Kind != KindHeading {
			continue
		}
		title := ""
		if node, ok := doc.NodeAt(item.ContentAddress()); ok {
			title = node.TextContent()
		}
		entries = append(entries, Entry{
			Address:    item.Address.String(),
			Number:     item.Effective(),
			Level:      item.HeadingLevel,
			Title:      title,
			Overridden: item.Custom != "",
		})
	}
	return entries
}
