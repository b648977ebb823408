// Package chatsvc orchestrates conversations: transcript persistence,
// streamed replies, staged attachments, and chart capture.
package chatsvc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradeberg/tradeberg/bus"
	"github.com/tradeberg/tradeberg/capture"
	"github.com/tradeberg/tradeberg/chat"
	"github.com/tradeberg/tradeberg/logger"
	"github.com/tradeberg/tradeberg/provider"
	"github.com/tradeberg/tradeberg/unfurl"
	"github.com/tradeberg/tradeberg/webmd"
	"github.com/tradeberg/tradeberg/widget"
)

const eventSource = "chatsvc"

var (
	// ErrReplyInFlight means a reply is already streaming for the
	// conversation. Messages are not queued behind it.
	ErrReplyInFlight = errors.New("chatsvc: reply already streaming")

	// ErrNoActiveReply means there was nothing to cancel.
	ErrNoActiveReply = errors.New("chatsvc: no reply in flight")

	// ErrEmptyMessage rejects blank user messages.
	ErrEmptyMessage = errors.New("chatsvc: empty message")
)

const defaultSystemPrompt = `You are TradeBerg, a market analysis assistant embedded next to a trading chart. The user is looking at a live chart and can attach snapshots of it, which show up as [attached: ...] markers in their messages. Ground your commentary in the price action under discussion, be specific about levels and timeframes, and never present a read as financial advice.`

// Config tunes the service.
type Config struct {
	// SystemPrompt replaces the built-in analyst prompt when set.
	SystemPrompt string

	// HistoryWindow caps how many transcript messages are sent to the
	// provider per reply. Defaults to 40.
	HistoryWindow int

	// PublicURL is the base URL the capture engine loads widget pages
	// from, normally this server's own address.
	PublicURL string

	// Widget holds the chart defaults used when a capture request
	// leaves fields blank.
	Widget widget.Options
}

// Service owns conversation state transitions. All push traffic to
// clients flows out through the event bus.
type Service struct {
	store    *chat.Store
	prov     provider.Provider
	bus      *bus.Bus
	snap     capture.Snapshotter
	unfurler *unfurl.Client
	cfg      Config

	mu       sync.Mutex
	replies  map[string]*replyState
	triggers map[string]*capture.Trigger
	wg       sync.WaitGroup
}

type replyState struct {
	messageID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates the service. snap may be nil, which disables capture,
// and unfurler may be nil, which disables link previews.
func New(store *chat.Store, prov provider.Provider, eventBus *bus.Bus, snap capture.Snapshotter, unfurler *unfurl.Client, cfg Config) *Service {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 40
	}
	cfg.Widget = cfg.Widget.Normalize()
	return &Service{
		store:    store,
		prov:     prov,
		bus:      eventBus,
		snap:     snap,
		unfurler: unfurler,
		cfg:      cfg,
		replies:  make(map[string]*replyState),
		triggers: make(map[string]*capture.Trigger),
	}
}

// CreateConversation starts a new conversation. When firstMessage is
// not blank the first reply starts streaming immediately.
func (s *Service) CreateConversation(ctx context.Context, firstMessage string) (*chat.Conversation, error) {
	conv, err := s.store.Create("")
	if err != nil {
		return nil, err
	}
	s.publish(bus.EventConversationCreated, conv.ID, nil)
	logger.Info("conversation created", "conversation", conv.ID)

	if strings.TrimSpace(firstMessage) != "" {
		if _, err := s.SendMessage(ctx, conv.ID, firstMessage); err != nil {
			return nil, err
		}
		return s.store.Get(conv.ID)
	}
	return conv, nil
}

// SendMessage appends a user message, moving any staged attachments
// onto it, and starts streaming the reply. One reply streams per
// conversation at a time; a second send while one is in flight fails
// with ErrReplyInFlight instead of queueing.
func (s *Service) SendMessage(ctx context.Context, conversationID, content string) (*chat.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	replyCtx, cancel := context.WithCancel(context.Background())
	state := &replyState{
		messageID: uuid.NewString(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	if _, busy := s.replies[conversationID]; busy {
		s.mu.Unlock()
		cancel()
		return nil, ErrReplyInFlight
	}
	s.replies[conversationID] = state
	s.mu.Unlock()

	rollback := func() {
		cancel()
		s.mu.Lock()
		delete(s.replies, conversationID)
		s.mu.Unlock()
		close(state.done)
	}

	staged, err := s.store.TakePending(conversationID)
	if err != nil {
		rollback()
		return nil, err
	}
	msg := chat.NewUserMessage(content, staged)
	if err := s.store.AppendMessage(conversationID, msg); err != nil {
		rollback()
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.streamReply(replyCtx, conversationID, state.messageID)
		cancel()
		s.mu.Lock()
		delete(s.replies, conversationID)
		s.mu.Unlock()
		close(state.done)
	}()

	return &msg, nil
}

// CancelReply stops the in-flight reply and waits for it to settle.
// Text streamed before the cancel stays in the transcript, marked
// partial.
func (s *Service) CancelReply(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	state, ok := s.replies[conversationID]
	s.mu.Unlock()
	if !ok {
		return ErrNoActiveReply
	}

	state.cancel()
	select {
	case <-state.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Replying reports whether a reply is streaming for the conversation.
func (s *Service) Replying(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.replies[conversationID]
	return ok
}

// Conversations lists conversation summaries, newest first.
func (s *Service) Conversations() ([]chat.Summary, error) {
	return s.store.List()
}

// Conversation returns the full conversation.
func (s *Service) Conversation(conversationID string) (*chat.Conversation, error) {
	return s.store.Get(conversationID)
}

// History returns the transcript.
func (s *Service) History(conversationID string) ([]chat.Message, error) {
	return s.store.History(conversationID)
}

// DeleteConversation cancels any in-flight reply, then removes the
// conversation.
func (s *Service) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.CancelReply(ctx, conversationID); err != nil && !errors.Is(err, ErrNoActiveReply) {
		return err
	}
	s.mu.Lock()
	delete(s.triggers, conversationID)
	s.mu.Unlock()
	return s.store.Delete(conversationID)
}

// Close cancels in-flight replies and waits for them to settle.
func (s *Service) Close() {
	s.mu.Lock()
	for _, state := range s.replies {
		state.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) streamReply(ctx context.Context, conversationID, messageID string) {
	start := time.Now()

	req, err := s.buildRequest(conversationID)
	if err != nil {
		logger.Error("build reply request failed", "conversation", conversationID, "error", err)
		s.publish(bus.EventReplyFailed, conversationID, bus.ReplyEventData{MessageID: messageID, Error: err.Error()})
		return
	}

	emit := func(ctx context.Context, delta string) error {
		s.publish(bus.EventReplyChunk, conversationID, bus.ReplyEventData{MessageID: messageID, Delta: delta})
		return nil
	}

	resp, err := s.prov.StreamChat(ctx, req, emit)
	content := ""
	if resp != nil {
		content = resp.Content
	}

	switch {
	case err == nil:
		msg := chat.NewAssistantMessage(content)
		msg.ID = messageID
		if err := s.store.AppendMessage(conversationID, msg); err != nil {
			logger.Error("persist reply failed", "conversation", conversationID, "error", err)
			s.publish(bus.EventReplyFailed, conversationID, bus.ReplyEventData{MessageID: messageID, Content: content, Error: err.Error()})
			return
		}
		s.publish(bus.EventReplyDone, conversationID, bus.ReplyEventData{
			MessageID: messageID,
			Content:   content,
			HTML:      renderHTML(content),
		})
		logger.Info("reply finished",
			"conversation", conversationID,
			"chars", len(content),
			"latencyMs", time.Since(start).Milliseconds())

	case errors.Is(err, context.Canceled):
		s.keepPartial(conversationID, messageID, content)
		s.publish(bus.EventReplyCancelled, conversationID, bus.ReplyEventData{
			MessageID: messageID,
			Content:   content,
			HTML:      renderHTML(content),
		})
		logger.Info("reply cancelled", "conversation", conversationID, "partialChars", len(content))

	default:
		s.keepPartial(conversationID, messageID, content)
		s.publish(bus.EventReplyFailed, conversationID, bus.ReplyEventData{
			MessageID: messageID,
			Content:   content,
			Error:     err.Error(),
		})
		logger.Error("reply failed", "conversation", conversationID, "error", err)
	}
}

// keepPartial stores whatever streamed before the reply was cut off,
// so the transcript matches what the user saw.
func (s *Service) keepPartial(conversationID, messageID, content string) {
	if content == "" {
		return
	}
	msg := chat.NewAssistantMessage(content)
	msg.ID = messageID
	msg.Partial = true
	if err := s.store.AppendMessage(conversationID, msg); err != nil {
		logger.Warn("keep partial reply failed", "conversation", conversationID, "error", err)
	}
}

func (s *Service) buildRequest(conversationID string) (*provider.Request, error) {
	history, err := s.store.History(conversationID)
	if err != nil {
		return nil, err
	}
	if len(history) > s.cfg.HistoryWindow {
		history = history[len(history)-s.cfg.HistoryWindow:]
	}

	messages := make([]provider.Message, 0, len(history)+1)
	messages = append(messages, provider.SystemMessage(s.systemPrompt()))
	for _, msg := range history {
		content := msg.Content
		for _, att := range msg.Attachments {
			content += "\n[attached: " + attachmentLine(att) + "]"
		}
		switch msg.Role {
		case chat.RoleAssistant:
			messages = append(messages, provider.AssistantMessage(content))
		default:
			messages = append(messages, provider.UserMessage(content))
		}
	}
	return &provider.Request{Messages: messages}, nil
}

func (s *Service) systemPrompt() string {
	if s.cfg.SystemPrompt != "" {
		return s.cfg.SystemPrompt
	}
	return defaultSystemPrompt
}

func attachmentLine(att chat.Attachment) string {
	if att.Kind == chat.AttachmentURL {
		if att.Preview != nil && att.Preview.Title != "" {
			return att.Payload + " (" + att.Preview.Title + ")"
		}
		return att.Payload
	}
	return att.Name
}

func renderHTML(markdown string) string {
	if markdown == "" {
		return ""
	}
	html, err := webmd.Render(markdown)
	if err != nil {
		logger.Warn("render reply html failed", "error", err)
		return ""
	}
	return html
}

func (s *Service) publish(eventType bus.EventType, conversationID string, data any) {
	event, err := bus.NewEvent(eventType, conversationID, eventSource, data)
	if err != nil {
		logger.Warn("publish event failed", "type", string(eventType), "error", err)
		return
	}
	s.bus.Publish(event)
}
