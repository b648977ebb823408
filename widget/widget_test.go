package widget

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNormalizeFillsDefaults(t *testing.T) {
	o := Options{}.Normalize()
	if o.Symbol != "NASDAQ:AAPL" {
		t.Fatalf("Symbol = %q, want NASDAQ:AAPL", o.Symbol)
	}
	if o.Interval != "D" || o.Theme != "dark" || o.Locale != "en" || o.Source != SourceVendor {
		t.Fatalf("Normalize() = %+v, want default interval/theme/locale/source", o)
	}
}

func TestNormalizeSanitizesSymbol(t *testing.T) {
	o := Options{Symbol: ` binance:btcusdt `, Theme: "LIGHT", Interval: "60"}.Normalize()
	if o.Symbol != "BINANCE:BTCUSDT" {
		t.Fatalf("Symbol = %q, want BINANCE:BTCUSDT", o.Symbol)
	}
	if o.Theme != "light" {
		t.Fatalf("Theme = %q, want light", o.Theme)
	}
	if o.Interval != "60" {
		t.Fatalf("Interval = %q, want 60", o.Interval)
	}

	hostile := Options{Symbol: `EVIL"><script>alert(1)</script>`}.Normalize()
	if strings.ContainsAny(hostile.Symbol, `<>"'&/`) {
		t.Fatalf("sanitized symbol still contains markup characters: %q", hostile.Symbol)
	}
}

func TestConfigJSONCarriesOptions(t *testing.T) {
	js, err := ConfigJSON(Options{Symbol: "NYSE:GME", Interval: "W", Theme: "light", Locale: "de"})
	if err != nil {
		t.Fatalf("ConfigJSON() error = %v", err)
	}

	var cfg map[string]any
	if err := json.Unmarshal([]byte(js), &cfg); err != nil {
		t.Fatalf("config is not valid JSON: %v\n%s", err, js)
	}
	if cfg["symbol"] != "NYSE:GME" {
		t.Fatalf("symbol = %v, want NYSE:GME", cfg["symbol"])
	}
	if cfg["interval"] != "W" {
		t.Fatalf("interval = %v, want W", cfg["interval"])
	}
	if cfg["theme"] != "light" {
		t.Fatalf("theme = %v, want light", cfg["theme"])
	}
	if cfg["locale"] != "de" {
		t.Fatalf("locale = %v, want de", cfg["locale"])
	}
	if cfg["autosize"] != true {
		t.Fatalf("autosize = %v, want true", cfg["autosize"])
	}
}

func TestPageHTMLVendorEmbedsConfig(t *testing.T) {
	html, err := PageHTML(Options{Symbol: "NASDAQ:TSLA", Source: SourceVendor})
	if err != nil {
		t.Fatalf("PageHTML() error = %v", err)
	}
	if !strings.Contains(html, "embed-widget-advanced-chart.js") {
		t.Fatalf("vendor page should reference the embed script:\n%s", html)
	}
	if !strings.Contains(html, `"symbol":"NASDAQ:TSLA"`) {
		t.Fatalf("vendor page should carry the symbol in its config:\n%s", html)
	}
}

func TestPageHTMLBuiltinSignalsReady(t *testing.T) {
	html, err := PageHTML(Options{Symbol: "NASDAQ:AAPL", Source: SourceBuiltin})
	if err != nil {
		t.Fatalf("PageHTML() error = %v", err)
	}
	if !strings.Contains(html, "<canvas") {
		t.Fatalf("builtin page should draw on a canvas")
	}
	if !strings.Contains(html, "__chartReady") {
		t.Fatalf("builtin page should raise the ready flag")
	}
	if strings.Contains(html, "embed-widget-advanced-chart.js") {
		t.Fatalf("builtin page should not load the vendor script")
	}
}

func TestPageHTMLNeverEmitsHostileMarkup(t *testing.T) {
	for _, source := range []string{SourceVendor, SourceBuiltin} {
		html, err := PageHTML(Options{Symbol: `X"><script>alert(1)</script>`, Source: source})
		if err != nil {
			t.Fatalf("PageHTML(%s) error = %v", source, err)
		}
		if strings.Contains(html, "alert(1)") {
			t.Fatalf("%s page leaked hostile symbol markup:\n%s", source, html)
		}
	}
}
