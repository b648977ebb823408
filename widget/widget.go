// Package widget renders the chart widget page. The vendor source
// wraps the hosted TradingView embed; the builtin source draws a
// self-contained canvas chart used by tests and offline setups.
package widget

import (
	"fmt"
	"strings"

	"github.com/tidwall/sjson"
)

// Widget page sources.
const (
	SourceVendor  = "vendor"
	SourceBuiltin = "builtin"
)

// Options select what the widget page shows.
type Options struct {
	Symbol   string
	Interval string
	Theme    string // dark or light
	Locale   string
	Source   string // vendor or builtin
}

// Normalize fills defaults and sanitizes fields for embedding.
func (o Options) Normalize() Options {
	o.Symbol = sanitizeSymbol(o.Symbol)
	if o.Symbol == "" {
		o.Symbol = "NASDAQ:AAPL"
	}

	o.Interval = strings.ToUpper(strings.TrimSpace(o.Interval))
	if o.Interval == "" {
		o.Interval = "D"
	}

	o.Theme = strings.ToLower(strings.TrimSpace(o.Theme))
	if o.Theme != "light" {
		o.Theme = "dark"
	}

	o.Locale = strings.TrimSpace(o.Locale)
	if o.Locale == "" {
		o.Locale = "en"
	}

	if o.Source != SourceBuiltin {
		o.Source = SourceVendor
	}
	return o
}

// ConfigJSON builds the embed configuration consumed by the vendor
// widget script.
func ConfigJSON(o Options) (string, error) {
	o = o.Normalize()

	js := "{}"
	var err error
	for _, field := range []struct {
		path  string
		value any
	}{
		{"symbol", o.Symbol},
		{"interval", o.Interval},
		{"timezone", "Etc/UTC"},
		{"theme", o.Theme},
		{"style", "1"},
		{"locale", o.Locale},
		{"autosize", true},
		{"allow_symbol_change", true},
		{"hide_side_toolbar", true},
		{"support_host", "https://www.tradingview.com"},
	} {
		js, err = sjson.Set(js, field.path, field.value)
		if err != nil {
			return "", fmt.Errorf("widget: build config: %w", err)
		}
	}
	return js, nil
}

// sanitizeSymbol keeps exchange-prefixed ticker characters only, so a
// symbol can never smuggle markup into the page.
func sanitizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	var b strings.Builder
	for _, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == ':', r == '.', r == '_', r == '-', r == '^', r == '!':
			b.WriteRune(r)
		}
	}
	return b.String()
}
