// Package web holds the portal's HTML templates.
package web

import (
	"embed"
	"html/template"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

//go:embed templates/*.tmpl
var files embed.FS

var funcs = template.FuncMap{
	"statusFilters": func() []model.StatusFilter { return model.StatusFilters },
}

// Templates parses the embedded templates. Each page template is addressed by
// its file name, e.g. "appointments.tmpl".
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(files, "templates/*.tmpl")
}

// MustTemplates panics when the embedded templates do not parse.
func MustTemplates() *template.Template {
	return template.Must(Templates())
}
