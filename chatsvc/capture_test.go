package chatsvc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tradeberg/tradeberg/bus"
	"github.com/tradeberg/tradeberg/capture"
	"github.com/tradeberg/tradeberg/chat"
	"github.com/tradeberg/tradeberg/widget"
)

type fakeSnapshotter struct {
	mu      sync.Mutex
	targets []capture.Target
	started chan struct{}
	release chan struct{}
	err     error
	data    []byte
}

func (f *fakeSnapshotter) Snapshot(ctx context.Context, target capture.Target) (*capture.Result, error) {
	f.mu.Lock()
	f.targets = append(f.targets, target)
	err := f.err
	data := f.data
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &capture.Result{
		Data:       data,
		MIME:       "image/png",
		Symbol:     target.Symbol,
		CapturedAt: time.Now(),
	}, nil
}

func (f *fakeSnapshotter) lastTarget(t *testing.T) capture.Target {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.targets) == 0 {
		t.Fatal("snapshotter never called")
	}
	return f.targets[len(f.targets)-1]
}

func TestCaptureStagesAttachmentAndReplySeesIt(t *testing.T) {
	snap := &fakeSnapshotter{data: chartPNG(t)}
	svc, events := newTestService(t, nil, snap)

	conv, err := svc.CreateConversation(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	att, err := svc.Capture(context.Background(), conv.ID, widget.Options{Symbol: "NASDAQ:TSLA", Interval: "60"})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if att.Kind != chat.AttachmentImage {
		t.Fatalf("attachment kind = %q, want image", att.Kind)
	}
	if !strings.HasPrefix(att.Name, "NASDAQ-TSLA-") {
		t.Errorf("attachment name = %q, want symbol-stamped name", att.Name)
	}

	succeeded := events.waitFor(t, bus.EventCaptureSucceeded)
	var capData bus.CaptureEventData
	if err := succeeded.ParseData(&capData); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if capData.AttachmentID != att.ID {
		t.Errorf("capture.succeeded attachmentId = %q, want %q", capData.AttachmentID, att.ID)
	}
	events.waitFor(t, bus.EventCaptureStarted)
	events.waitFor(t, bus.EventAttachmentAdded)

	pending, err := svc.PendingAttachments(conv.ID)
	if err != nil {
		t.Fatalf("PendingAttachments() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != att.ID {
		t.Fatalf("pending = %+v, want the snapshot", pending)
	}

	target := snap.lastTarget(t)
	if target.Symbol != "NASDAQ:TSLA" {
		t.Errorf("target symbol = %q, want NASDAQ:TSLA", target.Symbol)
	}
	if !strings.Contains(target.URL, "symbol=NASDAQ%3ATSLA") || !strings.Contains(target.URL, "/widget?") {
		t.Errorf("target URL = %q, want widget page with symbol query", target.URL)
	}

	// The next message carries the snapshot, and the reply refers to it.
	if _, err := svc.SendMessage(context.Background(), conv.ID, "what does this chart say?"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	done := events.waitFor(t, bus.EventReplyDone)
	var reply bus.ReplyEventData
	if err := done.ParseData(&reply); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if !strings.Contains(reply.Content, "chart you attached") {
		t.Errorf("reply = %q, want reference to the attached chart", reply.Content)
	}

	history, _ := svc.History(conv.ID)
	userMsg := history[0]
	if len(userMsg.Attachments) != 1 || userMsg.Attachments[0].ID != att.ID {
		t.Fatalf("user message attachments = %+v, want the staged snapshot", userMsg.Attachments)
	}
	pending, _ = svc.PendingAttachments(conv.ID)
	if len(pending) != 0 {
		t.Fatalf("pending after send = %+v, want drained", pending)
	}
}

func TestCaptureUsesConfiguredDefaults(t *testing.T) {
	snap := &fakeSnapshotter{data: chartPNG(t)}
	svc, _ := newTestService(t, nil, snap)

	conv, err := svc.CreateConversation(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if _, err := svc.Capture(context.Background(), conv.ID, widget.Options{}); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	target := snap.lastTarget(t)
	if target.Symbol != "NASDAQ:AAPL" {
		t.Errorf("default symbol = %q, want NASDAQ:AAPL", target.Symbol)
	}
	if target.Interval != "D" || target.Theme != "dark" {
		t.Errorf("default target = %+v, want daily dark chart", target)
	}
}

func TestCaptureBusyDoesNotQueue(t *testing.T) {
	snap := &fakeSnapshotter{
		data:    chartPNG(t),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc, events := newTestService(t, nil, snap)

	conv, err := svc.CreateConversation(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Capture(context.Background(), conv.ID, widget.Options{})
		firstDone <- err
	}()

	select {
	case <-snap.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first capture never reached the snapshotter")
	}
	if !svc.CaptureBusy(conv.ID) {
		t.Error("CaptureBusy() = false while rendering")
	}

	if _, err := svc.Capture(context.Background(), conv.ID, widget.Options{}); !errors.Is(err, capture.ErrBusy) {
		t.Fatalf("second Capture() error = %v, want ErrBusy", err)
	}

	close(snap.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first Capture() error = %v", err)
	}
	events.waitFor(t, bus.EventCaptureSucceeded)

	pending, err := svc.PendingAttachments(conv.ID)
	if err != nil {
		t.Fatalf("PendingAttachments() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d attachments, want exactly the first capture", len(pending))
	}

	failed := events.all(bus.EventCaptureFailed)
	if len(failed) != 1 {
		t.Fatalf("capture.failed events = %d, want one for the busy rejection", len(failed))
	}
	var data bus.CaptureEventData
	if err := failed[0].ParseData(&data); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if data.Failure != "busy" {
		t.Errorf("failure = %q, want busy", data.Failure)
	}
}

func TestCaptureFailurePublishesKindAndStagesNothing(t *testing.T) {
	snap := &fakeSnapshotter{err: capture.ErrTimeout}
	svc, events := newTestService(t, nil, snap)

	conv, err := svc.CreateConversation(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if _, err := svc.Capture(context.Background(), conv.ID, widget.Options{}); !errors.Is(err, capture.ErrTimeout) {
		t.Fatalf("Capture() error = %v, want ErrTimeout", err)
	}

	failed := events.waitFor(t, bus.EventCaptureFailed)
	var data bus.CaptureEventData
	if err := failed.ParseData(&data); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if data.Failure != "timeout" {
		t.Errorf("failure = %q, want timeout", data.Failure)
	}

	pending, _ := svc.PendingAttachments(conv.ID)
	if len(pending) != 0 {
		t.Fatalf("pending = %+v, want nothing staged after failure", pending)
	}
	if len(events.all(bus.EventAttachmentAdded)) != 0 {
		t.Error("attachment.added published for a failed capture")
	}

	// The trigger re-arms: a later capture succeeds.
	snap.mu.Lock()
	snap.err = nil
	snap.data = chartPNG(t)
	snap.mu.Unlock()
	if _, err := svc.Capture(context.Background(), conv.ID, widget.Options{}); err != nil {
		t.Fatalf("Capture() after failure error = %v", err)
	}
}

func TestCaptureUnknownConversation(t *testing.T) {
	snap := &fakeSnapshotter{data: chartPNG(t)}
	svc, _ := newTestService(t, nil, snap)

	if _, err := svc.Capture(context.Background(), "missing", widget.Options{}); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("Capture() error = %v, want ErrConversationNotFound", err)
	}
}

func TestCaptureWithoutEngine(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)

	conv, err := svc.CreateConversation(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if _, err := svc.Capture(context.Background(), conv.ID, widget.Options{}); !errors.Is(err, capture.ErrUnsupported) {
		t.Fatalf("Capture() error = %v, want ErrUnsupported", err)
	}
}
