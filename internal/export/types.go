// Package export renders numbered documents to HTML, PDF and DOCX and
// archives the results in object storage.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"chronicle/outline/internal/doctree"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

func ParseFormat(value string) (Format, error) {
	switch format := Format(strings.ToLower(strings.TrimSpace(value))); format {
	case FormatHTML, FormatPDF, FormatDOCX:
		return format, nil
	case "":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
	}
}

// Document is a numbered document ready for rendering.
type Document struct {
	ID        string
	Title     string
	Author    string
	UpdatedAt time.Time
	Doc       *doctree.Document
}

// Result contains the export output
type Result struct {
	Data      []byte
	Filename  string
	MimeType  string
	Format    Format
	Revision  int64
	ObjectKey string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
