package capture

import (
	"context"
	"errors"
)

var (
	// ErrUnsupported means no usable browser is available, so
	// snapshots cannot be produced in this environment.
	ErrUnsupported = errors.New("capture: not supported in this environment")

	// ErrTimeout means the chart did not finish painting within the
	// capture deadline.
	ErrTimeout = errors.New("capture: render deadline exceeded")

	// ErrBlankFrame means the screenshot decoded to a visually
	// uniform image, which a rendered chart never is.
	ErrBlankFrame = errors.New("capture: frame is blank")

	// ErrBusy means a capture is already in flight on this trigger.
	// Requests are rejected, not queued.
	ErrBusy = errors.New("capture: capture already in flight")
)

// FailureKind buckets an error for status mapping and event payloads.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrBlankFrame):
		return "blank"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "internal"
	}
}
