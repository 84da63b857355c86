package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"chronicle/outline/internal/numbering"
)

// levelColors follow heading size: larger headings get stronger colors.
var levelColors = []lipgloss.Color{"", "12", "14", "10", "11", "13", "8"}

type palette struct {
	level      []lipgloss.Style
	paragraph  lipgloss.Style
	overridden lipgloss.Style
	dim        lipgloss.Style
	warn       lipgloss.Style
}

// newPalette builds styles bound to w, so output to a file or pipe stays
// free of escape codes.
func newPalette(w io.Writer) palette {
	renderer := lipgloss.NewRenderer(w)
	p := palette{
		paragraph:  renderer.NewStyle().Faint(true),
		overridden: renderer.NewStyle().Underline(true),
		dim:        renderer.NewStyle().Faint(true),
		warn:       renderer.NewStyle().Foreground(lipgloss.Color("9")),
	}
	for _, color := range levelColors {
		style := renderer.NewStyle()
		if color != "" {
			style = style.Foreground(color).Bold(true)
		}
		p.level = append(p.level, style)
	}
	return p
}

// marker typesets a marker's number with a trailing period.
func (p palette) marker(marker numbering.Marker) string {
	text := marker.Text + "."
	if marker.Style.Level == 0 {
		return p.paragraph.Render(text)
	}
	style := p.level[min(marker.Style.Level, len(p.level)-1)]
	if marker.Overridden {
		style = style.Inherit(p.overridden)
	}
	return style.Render(text)
}

func renderMarkers(w io.Writer, set numbering.MarkerSet, entries []numbering.Entry) {
	p := newPalette(w)
	titles := make(map[string]string, len(entries))
	for _, entry := range entries {
		titles[entry.Address] = entry.Title
	}
	for _, marker := range set.Markers {
		address := ""
		if marker.Handle != nil {
			address = marker.Handle.Address
		}
		indent := strings.Repeat("  ", max(marker.Style.Level-1, 0))
		line := fmt.Sprintf("%s%s %s", indent, p.marker(marker), titles[address])
		if address != "" {
			line += " " + p.dim.Render("@"+address)
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	for _, diag := range set.Diagnostics {
		fmt.Fprintln(w, p.warn.Render(fmt.Sprintf("! %s %s: %s", diag.Path, diag.Code, diag.Message)))
	}
	fmt.Fprintln(w, p.dim.Render(fmt.Sprintf("revision %d  fingerprint %s", set.Revision, shortFingerprint(set.Fingerprint))))
}

func renderEntries(w io.Writer, entries []numbering.Entry) {
	p := newPalette(w)
	for _, entry := range entries {
		marker := numbering.Marker{
			Text:       entry.Number,
			Style:      numbering.StyleHint{Level: entry.Level},
			Overridden: entry.Overridden,
		}
		fmt.Fprintf(w, "%s%s %s\n", strings.Repeat("  ", max(entry.Level-1, 0)), p.marker(marker), entry.Title)
	}
}

func renderReport(w io.Writer, report numbering.CascadeReport) {
	p := newPalette(w)
	if !report.Applied {
		fmt.Fprintln(w, p.warn.Render(fmt.Sprintf("no numbered heading at %s, document unchanged", report.Target)))
		return
	}
	summary := fmt.Sprintf("%s: %s -> %s, %d items renumbered", report.Target, orDash(report.Old), orDash(report.New), len(report.Updated))
	if report.Truncated {
		summary += p.warn.Render(" (ripple truncated)")
	}
	fmt.Fprintln(w, summary)
}

func shortFingerprint(value string) string {
	if len(value) > 12 {
		return value[:12]
	}
	return value
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
