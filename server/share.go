package main

import (
	"html/template"
	"net/http"
)

// Static share card with Open Graph / Twitter metadata, served to HTML
// clients and link unfurlers.
const shareHTML = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta property="og:title" content="{{.Title}}" />
    <meta property="og:description" content="{{.Description}}" />
    <meta property="og:type" content="website" />
    <meta property="twitter:card" content="summary" />
    <meta property="twitter:title" content="{{.Title}}" />
    <meta property="twitter:description" content="{{.Description}}" />
    <title>{{.Title}}</title>
  </head>
  <body>
    <p>Shared list: {{.Title}}</p>
  </body>
</html>`

var shareTmpl = template.Must(template.New("share").Parse(shareHTML))

type sharePage struct {
	Title       string
	Description string
}

func renderShare(w http.ResponseWriter, b Board) {
	page := sharePage{Title: b.Title + " · " + b.Owner, Description: b.Description}
	if page.Description == "" {
		page.Description = "Giftboard wishlist"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = shareTmpl.Execute(w, page)
}
