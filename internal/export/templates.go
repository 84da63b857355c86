package export

import (
	"bytes"
	"html/template"
	"time"

	"chronicle/outline/internal/numbering"
)

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"indent": func(level int) int { return (level - 1) * 16 },
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("Jan 2, 2006")
	},
}).Parse(documentLayout))

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title       string
	Author      string
	Revision    int64
	UpdatedAt   time.Time
	Outline     []numbering.Entry
	ContentHTML template.HTML
}

// RenderDocumentHTML renders the document template with provided data
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentLayout = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1.title { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .toc { border-left: 3px solid #ccc; padding-left: 1rem; margin-bottom: 2rem; }
    .toc div { margin: 0.15rem 0; }
    ol.outline { list-style: none; padding-left: 0; }
    ol.outline > li > h1, ol.outline > li > h2, ol.outline > li > h3,
    ol.outline > li > h4, ol.outline > li > h5, ol.outline > li > h6,
    ol.outline > li > p { display: inline; }
    .outline-number { font-weight: bold; margin-right: 0.4rem; }
    .outline-number-h1 { font-size: 1.6em; }
    .outline-number-h2 { font-size: 1.4em; }
    .outline-number-h3 { font-size: 1.25em; }
    .outline-number-h4 { font-size: 1.1em; }
    .outline-number-h6 { font-size: 0.9em; }
  </style>
</head>
<body>
  <h1 class="title">{{.Title}}</h1>
  <div class="meta">Revision {{.Revision}}{{if .Author}} | {{.Author}}{{end}}{{with formatDate .UpdatedAt}} | {{.}}{{end}}</div>
  {{if .Outline}}
  <nav class="toc">
    {{range .Outline}}<div style="margin-left: {{indent .Level}}px">{{.Number}}. {{.Title}}</div>
    {{end}}
  </nav>
  {{end}}
  <main>{{.ContentHTML}}</main>
</body>
</html>`
