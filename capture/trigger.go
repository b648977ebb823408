package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tradeberg/tradeberg/chat"
)

// Sink receives a finished snapshot as a chat attachment. It returns
// an error to refuse the attachment, in which case the snapshot is
// discarded.
type Sink func(ctx context.Context, att chat.Attachment) error

// Trigger serializes captures for one conversation. A request that
// arrives while another is in flight is rejected with ErrBusy, never
// queued. On success exactly one image attachment reaches the sink;
// on any failure the sink is not called.
type Trigger struct {
	snap Snapshotter
	sink Sink

	mu   sync.Mutex
	busy bool
}

// NewTrigger wires a snapshotter to an attachment sink.
func NewTrigger(snap Snapshotter, sink Sink) *Trigger {
	return &Trigger{snap: snap, sink: sink}
}

// Busy reports whether a capture is currently in flight.
func (t *Trigger) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy
}

// Capture runs one snapshot and delivers it to the sink.
func (t *Trigger) Capture(ctx context.Context, target Target) (*chat.Attachment, error) {
	t.mu.Lock()
	if t.busy {
		t.mu.Unlock()
		return nil, ErrBusy
	}
	t.busy = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.busy = false
		t.mu.Unlock()
	}()

	res, err := t.snap.Snapshot(ctx, target)
	if err != nil {
		return nil, err
	}
	// The conversation may have been torn down while rendering.
	// A cancelled context means nobody is waiting: drop the result.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	att, err := chat.NewImageAttachment(snapshotName(target, res.CapturedAt), res.DataURL())
	if err != nil {
		return nil, fmt.Errorf("capture: wrap snapshot: %w", err)
	}
	if err := t.sink(ctx, att); err != nil {
		return nil, err
	}
	return &att, nil
}

func snapshotName(target Target, at time.Time) string {
	sym := strings.NewReplacer(":", "-", "/", "-").Replace(target.Symbol)
	if sym == "" {
		sym = "chart"
	}
	return fmt.Sprintf("%s-%s.png", sym, at.Format("20060102-150405"))
}
