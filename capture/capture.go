// Package capture produces image snapshots of the chart widget.
//
// The widget is vendor-hosted inside a cross-origin iframe, so its
// pixels are unreachable from page JavaScript: same-origin policy
// blocks DOM readback and taints any canvas the frame is drawn into.
// The engine sidesteps the page entirely. It renders an equivalent
// widget page in a headless browser it controls and screenshots it
// over the DevTools protocol, where the compositor hands back final
// pixels regardless of frame origin.
package capture

import (
	"context"
	"time"

	"github.com/tradeberg/tradeberg/chat"
)

// Target describes the chart to render.
type Target struct {
	// URL of the widget page to load. The page hosts the embed
	// configured with the same symbol, interval and theme the user
	// is looking at.
	URL string

	Symbol   string
	Interval string
	Theme    string

	// Viewport override. Engine defaults apply when zero.
	Width  int
	Height int
}

// Result is a finished snapshot.
type Result struct {
	Data       []byte // encoded PNG
	MIME       string
	Width      int
	Height     int
	Symbol     string
	Duration   time.Duration
	CapturedAt time.Time
}

// DataURL returns the snapshot as a base64 data URL.
func (r *Result) DataURL() string {
	return chat.EncodeDataURL(r.MIME, r.Data)
}

// Snapshotter renders a chart target into a still image.
type Snapshotter interface {
	Snapshot(ctx context.Context, target Target) (*Result, error)
}
