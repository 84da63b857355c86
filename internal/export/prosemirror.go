package export

import (
	"fmt"
	"html"
	"strings"

	"chronicle/outline/internal/doctree"
	"chronicle/outline/internal/numbering"
)

type label struct {
	text  string
	class string
}

// labels maps each numbered list item address to the number printed before
// its content. Malformed items get none.
func labels(doc *doctree.Document) map[string]label {
	result := numbering.Scan(doc)
	out := make(map[string]label, len(result.Items))
	for _, item := range result.Items {
		switch item.Kind {
		case numbering.KindHeading:
			if number := item.Effective(); number != "" {
				out[item.Address.String()] = label{text: number + ".", class: fmt.Sprintf("outline-number-h%d", item.HeadingLevel)}
			}
		case numbering.KindParagraph:
			out[item.Address.String()] = label{text: fmt.Sprintf("%d.", item.ParagraphIndex), class: "outline-number-p"}
		}
	}
	return out
}

// OutlineToHTML renders doc as HTML with the outline numbers written out,
// so the export does not depend on the browser's list counters.
func OutlineToHTML(doc *doctree.Document) string {
	r := renderer{labels: labels(doc)}
	var b strings.Builder
	r.content(&b, doc.Root(), doctree.Address{})
	return b.String()
}

type renderer struct {
	labels map[string]label
}

func (r renderer) content(b *strings.Builder, node *doctree.Node, addr doctree.Address) {
	for i, child := range node.Content {
		r.node(b, child, addr.Child(i))
	}
}

func (r renderer) node(b *strings.Builder, node *doctree.Node, addr doctree.Address) {
	switch node.Type {
	case doctree.TypeParagraph:
		b.WriteString("<p>")
		r.content(b, node, addr)
		b.WriteString("</p>\n")
	case doctree.TypeHeading:
		level, ok := doctree.IntAttr(node.Attrs, "level")
		if !ok || level < 1 || level > 6 {
			level = 1
		}
		fmt.Fprintf(b, "<h%d>", level)
		r.content(b, node, addr)
		fmt.Fprintf(b, "</h%d>\n", level)
	case doctree.TypeBulletList:
		b.WriteString("<ul>\n")
		r.content(b, node, addr)
		b.WriteString("</ul>\n")
	case doctree.TypeOrderedList:
		b.WriteString("<ol class=\"outline\">\n")
		r.content(b, node, addr)
		b.WriteString("</ol>\n")
	case doctree.TypeListItem:
		b.WriteString("<li>")
		if l, ok := r.labels[addr.String()]; ok {
			fmt.Fprintf(b, `<span class="outline-number %s">%s</span> `, l.class, html.EscapeString(l.text))
		}
		r.content(b, node, addr)
		b.WriteString("</li>\n")
	case "blockquote":
		b.WriteString("<blockquote>\n")
		r.content(b, node, addr)
		b.WriteString("</blockquote>\n")
	case "codeBlock":
		b.WriteString("<pre><code>")
		b.WriteString(html.EscapeString(node.TextContent()))
		b.WriteString("</code></pre>\n")
	case doctree.TypeText:
		b.WriteString(textWithMarks(node.Text, node.Marks))
	case doctree.TypeHardBreak:
		b.WriteString("<br>")
	case doctree.TypeRule:
		b.WriteString("<hr>\n")
	default:
		r.content(b, node, addr)
	}
}

// textWithMarks renders text with formatting marks, outermost mark first.
func textWithMarks(text string, marks []doctree.Mark) string {
	if text == "" {
		return ""
	}
	out := html.EscapeString(text)
	for i := len(marks) - 1; i >= 0; i-- {
		switch marks[i].Type {
		case "bold":
			out = "<strong>" + out + "</strong>"
		case "italic":
			out = "<em>" + out + "</em>"
		case "code":
			out = "<code>" + out + "</code>"
		case "strike":
			out = "<s>" + out + "</s>"
		case "underline":
			out = "<u>" + out + "</u>"
		case "link":
			href, _ := doctree.StringAttr(marks[i].Attrs, "href")
			out = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), out)
		}
	}
	return out
}
