package widget

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type pageData struct {
	Symbol     string
	Interval   string
	Theme      string
	Locale     string
	Background string
	Config     template.JS
}

// PageHTML renders the full widget page for the given options.
func PageHTML(o Options) (string, error) {
	o = o.Normalize()

	background := "#131722"
	if o.Theme == "light" {
		background = "#ffffff"
	}
	data := pageData{
		Symbol:     o.Symbol,
		Interval:   o.Interval,
		Theme:      o.Theme,
		Locale:     o.Locale,
		Background: background,
	}

	name := "vendor.html"
	if o.Source == SourceBuiltin {
		name = "builtin.html"
	} else {
		cfg, err := ConfigJSON(o)
		if err != nil {
			return "", err
		}
		data.Config = template.JS(cfg)
	}

	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("widget: render page: %w", err)
	}
	return buf.String(), nil
}
