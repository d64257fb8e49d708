package share

import (
	"bytes"
	"html/template"
	"strings"
	"unicode/utf8"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

const descriptionLength = 160

var pageTemplate = template.Must(template.New("shared").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta name="robots" content="noindex">
    <title>{{.Title}}</title>
    <meta name="description" content="{{.Description}}">
    <link rel="canonical" href="{{.CanonicalURL}}">
    <meta property="og:title" content="{{.Title}}">
    <meta property="og:description" content="{{.Description}}">
    <meta property="og:type" content="article">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; max-width: 800px; margin: 0 auto; padding: 2rem 1rem; }
        pre { background: #f5f5f5; padding: 1rem; border-radius: 6px; overflow-x: auto; }
        .note-text { white-space: pre-wrap; }
        .tags span { font-size: 0.85em; margin-right: 0.5em; opacity: 0.7; }
        @media (prefers-color-scheme: dark) { body { background: #1a1a1a; color: #e0e0e0; } pre { background: #2d2d2d; } }
    </style>
</head>
<body>
    <article>
        <h1>{{.Title}}</h1>
        {{if .Tags}}<p class="tags">{{range .Tags}}<span>#{{.}}</span>{{end}}</p>{{end}}
        {{.Body}}
    </article>
</body>
</html>`))

type pageData struct {
	Title        string
	Description  string
	CanonicalURL string
	Tags         []string
	Body         template.HTML
}

// RenderHTML renders a shared note as a standalone page. Markdown is
// rendered and sanitized, code goes in a pre block, plain text is escaped.
func RenderHTML(n *PublicNote, canonicalURL string) ([]byte, error) {
	var body template.HTML
	switch n.Type {
	case "markdown":
		body = RenderMarkdown(n.Content)
	case "code":
		class := ""
		if n.Language != "" {
			class = ` class="language-` + template.HTMLEscapeString(n.Language) + `"`
		}
		body = template.HTML("<pre><code" + class + ">" + template.HTMLEscapeString(n.Content) + "</code></pre>")
	default:
		body = template.HTML(`<div class="note-text">` + template.HTMLEscapeString(n.Content) + `</div>`)
	}

	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, pageData{
		Title:        n.Title,
		Description:  describe(n.Content),
		CanonicalURL: canonicalURL,
		Tags:         n.Tags,
		Body:         body,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderMarkdown converts markdown to HTML safe to embed in a page.
func RenderMarkdown(s string) template.HTML {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(s))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	rendered := markdown.Render(doc, renderer)

	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("code", "pre")
	return template.HTML(policy.SanitizeBytes(rendered))
}

func describe(content string) string {
	d := strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(d) <= descriptionLength {
		return d
	}
	r := []rune(d)
	return string(r[:descriptionLength]) + "…"
}
