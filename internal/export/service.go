package export

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"

	"chronicle/outline/internal/numbering"
)

type converter func(ctx context.Context, html string) ([]byte, error)

var mimeTypes = map[Format]string{
	FormatHTML: "text/html; charset=utf-8",
	FormatPDF:  "application/pdf",
	FormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Service renders numbered exports and archives them when an archive is
// configured.
type Service struct {
	archive    Archive
	log        *slog.Logger
	converters map[Format]converter
}

// NewService creates a new export service. archive may be nil.
func NewService(archive Archive, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		archive: archive,
		log:     log,
		converters: map[Format]converter{
			FormatPDF:  renderPDF,
			FormatDOCX: renderDOCX,
		},
	}
}

// HTML renders the standalone numbered HTML page for doc.
func HTML(doc Document) (string, error) {
	return RenderDocumentHTML(TemplateData{
		Title:       doc.Title,
		Author:      doc.Author,
		Revision:    doc.Doc.Revision(),
		UpdatedAt:   doc.UpdatedAt,
		Outline:     numbering.Entries(doc.Doc),
		ContentHTML: template.HTML(OutlineToHTML(doc.Doc)),
	})
}

// Export renders doc in format. When exportID is set and an archive is
// configured, the output is also stored and Result.ObjectKey is filled in.
func (s *Service) Export(ctx context.Context, doc Document, format Format, exportID string) (*Result, error) {
	page, err := HTML(doc)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	data := []byte(page)
	if format != FormatHTML {
		convert, ok := s.converters[format]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
		}
		if data, err = convert(ctx, page); err != nil {
			return nil, err
		}
	}

	result := &Result{
		Data:     data,
		Filename: sanitizeFilename(doc.Title) + "." + string(format),
		MimeType: mimeTypes[format],
		Format:   format,
		Revision: doc.Doc.Revision(),
	}
	if s.archive != nil && exportID != "" {
		key := ObjectKey(doc.ID, result.Revision, exportID, format)
		if err := s.archive.Put(ctx, key, data, result.MimeType); err != nil {
			s.log.Warn("export archive failed", "document_id", doc.ID, "key", key, "error", err)
		} else {
			result.ObjectKey = key
		}
	}
	return result, nil
}
