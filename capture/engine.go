package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/tradeberg/tradeberg/logger"
)

// EngineConfig describes how the snapshot browser is run.
type EngineConfig struct {
	// BrowserBin is an explicit Chrome/Chromium binary. When empty
	// the engine searches well-known install locations.
	BrowserBin string

	// DebuggerURL attaches to an already running browser instead of
	// launching one.
	DebuggerURL string

	Headless  bool
	NoSandbox bool

	ViewportWidth  int
	ViewportHeight int
	ScaleFactor    float64

	// Timeout bounds a whole capture, from navigation to screenshot.
	Timeout time.Duration

	// Settle is the extra wait after the chart reports ready, giving
	// the embed time to finish its entry animation.
	Settle time.Duration
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 720
	}
	if c.ScaleFactor <= 0 {
		c.ScaleFactor = 1.0
	}
	if c.Timeout <= 0 {
		c.Timeout = 8 * time.Second
	}
	if c.Settle < 0 {
		c.Settle = 0
	}
	return c
}

// Engine renders widget pages in a headless browser and screenshots
// them over the DevTools protocol. One browser serves all captures;
// each capture gets its own page. Safe for concurrent use.
type Engine struct {
	cfg EngineConfig

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	managed  bool // browser launched by us, not attached
}

// NewEngine creates an engine. The browser starts lazily on the first
// snapshot, or eagerly via Start.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Start connects to the browser, launching one if no debugger URL is
// configured. Returns ErrUnsupported when no browser can be had.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLocked()
}

func (e *Engine) startLocked() error {
	if e.browser != nil {
		if _, err := e.browser.Version(); err == nil {
			return nil
		}
		logger.Warn("capture browser connection stale, reconnecting")
		e.browser = nil
	}

	controlURL := e.cfg.DebuggerURL
	managed := false
	var l *launcher.Launcher

	if controlURL == "" {
		bin := e.cfg.BrowserBin
		if bin == "" {
			found, has := launcher.LookPath()
			if !has {
				return fmt.Errorf("%w: no Chrome or Chromium binary found", ErrUnsupported)
			}
			bin = found
		}

		l = launcher.New().Bin(bin).Headless(e.cfg.Headless)
		if e.cfg.NoSandbox {
			l = l.NoSandbox(true)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("%w: launch browser: %v", ErrUnsupported, err)
		}
		controlURL = u
		managed = true
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return fmt.Errorf("%w: connect browser: %v", ErrUnsupported, err)
	}

	e.browser = browser
	e.launcher = l
	e.managed = managed
	logger.Info("capture engine started", "managed", managed, "headless", e.cfg.Headless)
	return nil
}

// Connected reports whether a live browser connection exists.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser == nil {
		return false
	}
	_, err := e.browser.Version()
	return err == nil
}

// Shutdown closes the browser if the engine launched it. Attached
// browsers are left running.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil && e.managed {
		if err := e.browser.Close(); err != nil {
			logger.Warn("capture browser close", "error", err)
		}
	}
	if e.launcher != nil {
		e.launcher.Cleanup()
	}
	e.browser = nil
	e.launcher = nil
	logger.Info("capture engine stopped")
}

// Snapshot renders the target and returns its pixels. The whole
// operation is bounded by the configured timeout.
func (e *Engine) Snapshot(ctx context.Context, target Target) (*Result, error) {
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	e.mu.Lock()
	err := e.startLocked()
	browser := e.browser
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, classifyRender(err, "open page")
	}
	page = page.Context(ctx)
	defer page.Close()

	width, height := target.Width, target.Height
	if width <= 0 {
		width = e.cfg.ViewportWidth
	}
	if height <= 0 {
		height = e.cfg.ViewportHeight
	}
	viewport := proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: e.cfg.ScaleFactor,
		Mobile:            false,
	}
	if err := viewport.Call(page); err != nil {
		return nil, classifyRender(err, "set viewport")
	}

	if err := page.Navigate(target.URL); err != nil {
		return nil, classifyRender(err, "navigate")
	}
	if err := page.WaitLoad(); err != nil {
		return nil, classifyRender(err, "wait load")
	}
	if err := e.waitChartReady(ctx, page); err != nil {
		return nil, err
	}
	if e.cfg.Settle > 0 {
		select {
		case <-time.After(e.cfg.Settle):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: settle interrupted", ErrTimeout)
		}
	}

	data, err := page.Screenshot(false, nil)
	if err != nil {
		return nil, classifyRender(err, "screenshot")
	}

	img, err := decodePNG(data)
	if err != nil {
		return nil, err
	}
	if isBlank(img) {
		return nil, fmt.Errorf("%w: %s rendered a uniform %dx%d frame", ErrBlankFrame, target.Symbol, width, height)
	}

	bounds := img.Bounds()
	res := &Result{
		Data:       data,
		MIME:       "image/png",
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Symbol:     target.Symbol,
		Duration:   time.Since(started),
		CapturedAt: time.Now(),
	}
	logger.Debug("snapshot captured",
		"symbol", target.Symbol,
		"width", res.Width,
		"height", res.Height,
		"bytes", len(res.Data),
		"latencyMs", res.Duration.Milliseconds())
	return res, nil
}

// chartReadyJS reports whether the widget has painted. Pages served by
// this service raise __chartReady once their canvas is drawn; for the
// vendor embed the inner iframe appearing with layout is the signal,
// with the settle delay covering its first paint.
const chartReadyJS = `() => {
	if (window.__chartReady === true) return true;
	const frame = document.querySelector('iframe');
	return !!(frame && frame.clientWidth > 0 && frame.clientHeight > 0);
}`

func (e *Engine) waitChartReady(ctx context.Context, page *rod.Page) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		res, err := page.Evaluate(&rod.EvalOptions{JS: chartReadyJS, ByValue: true})
		if err == nil && res.Value.Bool() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: chart did not paint in time", ErrTimeout)
		case <-ticker.C:
		}
	}
}

func classifyRender(err error, stage string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, stage)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("capture: %s: %w", stage, err)
}
