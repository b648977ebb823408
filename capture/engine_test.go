package capture

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/tradeberg/tradeberg/widget"
)

func requireBrowser(t *testing.T) {
	t.Helper()
	if _, has := launcher.LookPath(); !has {
		t.Skip("no Chrome or Chromium binary available")
	}
}

func newTestEngine(t *testing.T, timeout time.Duration) *Engine {
	t.Helper()
	requireBrowser(t)
	e := NewEngine(EngineConfig{
		Headless:       true,
		NoSandbox:      true,
		ViewportWidth:  800,
		ViewportHeight: 600,
		Timeout:        timeout,
		Settle:         100 * time.Millisecond,
	})
	t.Cleanup(e.Shutdown)
	return e
}

func serveHTML(t *testing.T, html string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEngineSnapshotsBuiltinChart(t *testing.T) {
	html, err := widget.PageHTML(widget.Options{
		Symbol:   "NASDAQ:AAPL",
		Interval: "D",
		Theme:    "dark",
		Source:   widget.SourceBuiltin,
	})
	if err != nil {
		t.Fatalf("PageHTML() error = %v", err)
	}
	srv := serveHTML(t, html)
	e := newTestEngine(t, 30*time.Second)

	res, err := e.Snapshot(context.Background(), Target{URL: srv.URL, Symbol: "NASDAQ:AAPL"})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if res.MIME != "image/png" {
		t.Fatalf("MIME = %q, want image/png", res.MIME)
	}
	if res.Width <= 0 || res.Height <= 0 {
		t.Fatalf("dimensions = %dx%d, want positive", res.Width, res.Height)
	}

	img, err := decodePNG(res.Data)
	if err != nil {
		t.Fatalf("snapshot is not a decodable PNG: %v", err)
	}
	if isBlank(img) {
		t.Fatalf("snapshot of a drawn chart should not be blank")
	}
}

func TestEngineTimesOutWhenChartNeverPaints(t *testing.T) {
	srv := serveHTML(t, "<!DOCTYPE html><html><body><p>loading forever</p></body></html>")
	e := newTestEngine(t, 3*time.Second)

	start := time.Now()
	_, err := e.Snapshot(context.Background(), Target{URL: srv.URL, Symbol: "NASDAQ:AAPL"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Snapshot() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 15*time.Second {
		t.Fatalf("timeout took %v, deadline not enforced", elapsed)
	}
}

func TestEngineRejectsBlankFrame(t *testing.T) {
	// Page reports ready but never draws anything.
	srv := serveHTML(t, "<!DOCTYPE html><html><body><script>window.__chartReady = true;</script></body></html>")
	e := newTestEngine(t, 15*time.Second)

	_, err := e.Snapshot(context.Background(), Target{URL: srv.URL, Symbol: "NASDAQ:AAPL"})
	if !errors.Is(err, ErrBlankFrame) {
		t.Fatalf("Snapshot() error = %v, want ErrBlankFrame", err)
	}
}

func TestEngineUnsupportedWithoutUsableBrowser(t *testing.T) {
	e := NewEngine(EngineConfig{
		BrowserBin: "/nonexistent/definitely-not-chrome",
		Headless:   true,
		Timeout:    5 * time.Second,
	})
	t.Cleanup(e.Shutdown)

	_, err := e.Snapshot(context.Background(), Target{URL: "http://127.0.0.1:1/widget", Symbol: "NASDAQ:AAPL"})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Snapshot() error = %v, want ErrUnsupported", err)
	}
}
