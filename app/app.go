package app

import (
	"fmt"
	"net/http"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

var Template = `
<html>
  <head>
    <title>%s | Sweep</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <meta name="description" content="%s">
    <meta name="referrer" content="no-referrer"/>
    <style>
      body { font-family: sans-serif; margin: 0; }
      #head { display: flex; gap: 16px; padding: 12px 20px; border-bottom: 1px solid #eee; }
      #container { padding: 20px; }
      .card { border: 1px solid #eee; border-radius: 8px; padding: 12px; margin: 8px 0; }
      .text-muted { color: #777; }
      .empty { color: #999; font-style: italic; }
    </style>
  </head>
  <body>
    <div id="head">
      <div id="brand">
        <a href="/">Sweep</a>
      </div>
      <div id="nav">
        <a href="/places">Places</a>
        <a href="/status">Status</a>
      </div>
    </div>
    <div id="container">
      <div id="content">%s</div>
    </div>
  </body>
</html>
`

// Render a markdown document as html
func Render(md []byte) []byte {
	// create markdown parser with extensions
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse(md)

	// create HTML renderer with extensions
	htmlFlags := html.CommonFlags | html.HrefTargetBlank
	opts := html.RendererOptions{Flags: htmlFlags}
	renderer := html.NewRenderer(opts)

	return markdown.Render(doc, renderer)
}

// RenderHTML renders the given html in a template
func RenderHTML(title, desc, html string) string {
	return fmt.Sprintf(Template, title, desc, html)
}

// RenderString renders a markdown string as html
func RenderString(v string) string {
	return string(Render([]byte(v)))
}

func ServeHTML(html string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html))
	})
}
