// Package templates holds the embedded HTML pages.
package templates

import (
	"embed"
	"html/template"
)

//go:embed *.html
var files embed.FS

// Funcs are the helpers available to every page
var Funcs = template.FuncMap{
	"pluralize": func(n int64) string {
		if n == 1 {
			return ""
		}
		return "s"
	},
}

// Load parses all pages. Pages are looked up by file name, e.g. "index.html".
func Load() (*template.Template, error) {
	return template.New("").Funcs(Funcs).ParseFS(files, "*.html")
}
