package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tradeberg/tradeberg/bus"
	"github.com/tradeberg/tradeberg/capture"
	"github.com/tradeberg/tradeberg/chat"
	"github.com/tradeberg/tradeberg/chatsvc"
	"github.com/tradeberg/tradeberg/internal/health"
	"github.com/tradeberg/tradeberg/provider"
)

type stubSnapshotter struct {
	mu   sync.Mutex
	err  error
	data []byte
}

func (s *stubSnapshotter) Snapshot(ctx context.Context, target capture.Target) (*capture.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &capture.Result{
		Data:       s.data,
		MIME:       "image/png",
		Symbol:     target.Symbol,
		CapturedAt: time.Now(),
	}, nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 20), G: uint8(y * 20), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func startWeb(t *testing.T, prov provider.Provider, snap capture.Snapshotter, cfg WebConfig) (*WebChannel, string) {
	t.Helper()
	store, err := chat.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	eventBus := bus.NewBus(64)
	t.Cleanup(eventBus.Close)
	if prov == nil {
		prov = provider.NewMock(provider.MockConfig{})
	}
	svc := chatsvc.New(store, prov, eventBus, snap, nil, chatsvc.Config{PublicURL: "http://127.0.0.1:0"})
	t.Cleanup(svc.Close)

	cfg.Addr = "127.0.0.1:0"
	ch := NewWebChannel(svc, eventBus, cfg)
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { ch.Stop() })
	return ch, "http://" + ch.Addr()
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func TestWebConversationStreamsOverWebsocket(t *testing.T) {
	_, base := startWeb(t, nil, nil, WebConfig{})

	resp, body := doJSON(t, http.MethodPost, base+"/api/conversations", map[string]string{})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create conversation status = %d, want 201", resp.StatusCode)
	}
	var conv chat.Conversation
	if err := json.Unmarshal(body, &conv); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws://"+strings.TrimPrefix(base, "http://")+"/ws?conversation="+conv.ID, nil)
	if err != nil {
		t.Fatalf("websocket.Dial() error = %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	resp, _ = doJSON(t, http.MethodPost, base+"/api/conversations/"+conv.ID+"/messages",
		map[string]string{"content": "how is NASDAQ:AAPL looking?"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("send message status = %d, want 202", resp.StatusCode)
	}

	var streamed strings.Builder
	var done bus.ReplyEventData
	for {
		var event bus.Event
		if err := wsjson.Read(ctx, ws, &event); err != nil {
			t.Fatalf("websocket read error = %v (streamed %q so far)", err, streamed.String())
		}
		if event.ConversationID != conv.ID {
			t.Fatalf("event for conversation %q leaked into stream for %q", event.ConversationID, conv.ID)
		}
		if event.Type == bus.EventReplyChunk {
			var data bus.ReplyEventData
			if err := event.ParseData(&data); err != nil {
				t.Fatalf("ParseData() error = %v", err)
			}
			streamed.WriteString(data.Delta)
			continue
		}
		if event.Type == bus.EventReplyDone {
			if err := event.ParseData(&done); err != nil {
				t.Fatalf("ParseData() error = %v", err)
			}
			break
		}
	}
	if done.Content == "" || streamed.String() != done.Content {
		t.Errorf("streamed = %q, done content = %q, want matching non-empty reply", streamed.String(), done.Content)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/api/conversations/"+conv.ID+"/history", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d, want 200", resp.StatusCode)
	}
	var hist struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := json.Unmarshal(body, &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Messages) != 2 || hist.Messages[1].Content != done.Content {
		t.Errorf("history = %d messages, want user + assistant with streamed content", len(hist.Messages))
	}
}

func TestWebCaptureEndpoint(t *testing.T) {
	snap := &stubSnapshotter{data: testPNG(t)}
	_, base := startWeb(t, nil, snap, WebConfig{})

	resp, body := doJSON(t, http.MethodPost, base+"/api/conversations", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create conversation status = %d, want 201", resp.StatusCode)
	}
	var conv chat.Conversation
	json.Unmarshal(body, &conv)

	resp, body = doJSON(t, http.MethodPost, base+"/api/conversations/"+conv.ID+"/capture",
		map[string]string{"symbol": "NASDAQ:TSLA", "interval": "60"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("capture status = %d, want 201 (body %s)", resp.StatusCode, body)
	}
	var att chat.Attachment
	if err := json.Unmarshal(body, &att); err != nil {
		t.Fatalf("decode attachment: %v", err)
	}
	if att.Kind != chat.AttachmentImage || !strings.HasPrefix(att.Name, "NASDAQ-TSLA-") {
		t.Errorf("attachment = %+v, want symbol-stamped image", att)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/api/conversations/"+conv.ID+"/attachments", nil)
	var pending struct {
		Attachments []chat.Attachment `json:"attachments"`
	}
	json.Unmarshal(body, &pending)
	if len(pending.Attachments) != 1 {
		t.Fatalf("pending = %d attachments, want 1", len(pending.Attachments))
	}

	resp, _ = doJSON(t, http.MethodDelete, base+"/api/conversations/"+conv.ID+"/attachments/"+att.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove attachment status = %d, want 204", resp.StatusCode)
	}
}

func TestWebErrorStatusMapping(t *testing.T) {
	snap := &stubSnapshotter{err: capture.ErrTimeout}
	slow := provider.NewMock(provider.MockConfig{TypingInterval: 20 * time.Millisecond})
	_, base := startWeb(t, slow, snap, WebConfig{})

	resp, _ := doJSON(t, http.MethodGet, base+"/api/conversations/nope/history", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing conversation status = %d, want 404", resp.StatusCode)
	}

	_, body := doJSON(t, http.MethodPost, base+"/api/conversations", nil)
	var conv chat.Conversation
	json.Unmarshal(body, &conv)

	resp, _ = doJSON(t, http.MethodPost, base+"/api/conversations/"+conv.ID+"/messages",
		map[string]string{"content": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank message status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/api/conversations/"+conv.ID+"/capture", nil)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("capture timeout status = %d, want 504", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/api/conversations/"+conv.ID+"/cancel", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("cancel without reply status = %d, want 409", resp.StatusCode)
	}

	doJSON(t, http.MethodPost, base+"/api/conversations/"+conv.ID+"/messages",
		map[string]string{"content": "first"})
	resp, _ = doJSON(t, http.MethodPost, base+"/api/conversations/"+conv.ID+"/messages",
		map[string]string{"content": "second"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("concurrent message status = %d, want 409", resp.StatusCode)
	}
}

func TestWebCaptureUnsupportedWithoutEngine(t *testing.T) {
	_, base := startWeb(t, nil, nil, WebConfig{})

	_, body := doJSON(t, http.MethodPost, base+"/api/conversations", nil)
	var conv chat.Conversation
	json.Unmarshal(body, &conv)

	resp, _ := doJSON(t, http.MethodPost, base+"/api/conversations/"+conv.ID+"/capture", nil)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("capture without engine status = %d, want 501", resp.StatusCode)
	}
}

func TestWebWidgetPage(t *testing.T) {
	_, base := startWeb(t, nil, nil, WebConfig{})

	resp, body := doJSON(t, http.MethodGet, base+"/widget?symbol=NASDAQ:TSLA&source=builtin&theme=dark", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("widget status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("widget content type = %q, want text/html", ct)
	}
	page := string(body)
	if !strings.Contains(page, "<canvas") || !strings.Contains(page, "NASDAQ:TSLA") {
		t.Errorf("builtin widget page missing canvas or symbol")
	}

	resp, body = doJSON(t, http.MethodGet, base+"/widget", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("default widget status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "embed-widget-advanced-chart") {
		t.Errorf("default widget page is not the vendor embed")
	}
}

func TestWebHealth(t *testing.T) {
	probed := false
	_, base := startWeb(t, nil, nil, WebConfig{
		HealthProbe: func(opts health.Options) health.Options {
			probed = true
			opts.CaptureEnabled = true
			opts.ScheduledJobs = 4
			return opts
		},
	})

	resp, body := doJSON(t, http.MethodGet, base+"/api/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
	var snap health.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if snap.Status != "healthy" || !probed {
		t.Errorf("snapshot = %+v (probed %v), want healthy with probe applied", snap, probed)
	}
	if snap.Capture == nil || !snap.Capture.Enabled || snap.ScheduledJobs != 4 {
		t.Errorf("probe gauges not applied: %+v", snap)
	}
}

func TestWebServesFrontend(t *testing.T) {
	_, base := startWeb(t, nil, nil, WebConfig{})

	resp, body := doJSON(t, http.MethodGet, base+"/", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("index status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "TradeBerg") {
		t.Error("index page missing app markup")
	}
}

func TestWebListConversations(t *testing.T) {
	_, base := startWeb(t, nil, nil, WebConfig{})

	for i := 0; i < 3; i++ {
		resp, _ := doJSON(t, http.MethodPost, base+"/api/conversations",
			map[string]string{"message": fmt.Sprintf("question %d", i)})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create %d status = %d, want 201", i, resp.StatusCode)
		}
	}

	resp, body := doJSON(t, http.MethodGet, base+"/api/conversations", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}
	var list struct {
		Conversations []chat.Summary `json:"conversations"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Conversations) != 3 {
		t.Fatalf("conversations = %d, want 3", len(list.Conversations))
	}
	for _, summary := range list.Conversations {
		if summary.Title == "" {
			t.Errorf("summary %s has no title", summary.ID)
		}
	}
}
