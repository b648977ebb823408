// Package bus provides the event bus connecting the chat service to
// push surfaces.
package bus

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	EventConversationCreated EventType = "conversation.created"

	// Reply streaming events, one chunk event per emitted delta.
	EventReplyChunk     EventType = "reply.chunk"
	EventReplyDone      EventType = "reply.done"
	EventReplyCancelled EventType = "reply.cancelled"
	EventReplyFailed    EventType = "reply.failed"

	// Capture lifecycle events.
	EventCaptureStarted   EventType = "capture.started"
	EventCaptureSucceeded EventType = "capture.succeeded"
	EventCaptureFailed    EventType = "capture.failed"

	EventAttachmentAdded   EventType = "attachment.added"
	EventAttachmentRemoved EventType = "attachment.removed"
)

// Event represents a bus event.
type Event struct {
	ID             string          `json:"id"`
	Type           EventType       `json:"type"`
	ConversationID string          `json:"conversationId,omitempty"`
	Source         string          `json:"source"`
	Timestamp      time.Time       `json:"timestamp"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// NewEvent creates a new event scoped to a conversation.
func NewEvent(eventType EventType, conversationID, source string, data any) (*Event, error) {
	var dataBytes json.RawMessage
	if data != nil {
		var err error
		dataBytes, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}

	return &Event{
		ID:             generateEventID(),
		Type:           eventType,
		ConversationID: conversationID,
		Source:         source,
		Timestamp:      time.Now(),
		Data:           dataBytes,
	}, nil
}

// ParseData unmarshals the event data into the given struct.
func (e *Event) ParseData(v any) error {
	if e.Data == nil {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// ReplyEventData carries streaming reply payloads.
type ReplyEventData struct {
	MessageID string `json:"messageId,omitempty"`
	Delta     string `json:"delta,omitempty"`
	Content   string `json:"content,omitempty"`
	HTML      string `json:"html,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CaptureEventData carries capture lifecycle payloads.
type CaptureEventData struct {
	Symbol       string `json:"symbol,omitempty"`
	Interval     string `json:"interval,omitempty"`
	AttachmentID string `json:"attachmentId,omitempty"`
	Failure      string `json:"failure,omitempty"` // unsupported, timeout, blank, busy, internal
	Error        string `json:"error,omitempty"`
	ElapsedMs    int64  `json:"elapsedMs,omitempty"`
}

// AttachmentEventData carries attachment list changes.
type AttachmentEventData struct {
	AttachmentID string `json:"attachmentId"`
	Kind         string `json:"kind,omitempty"`
	Name         string `json:"name,omitempty"`
}

var eventCounter atomic.Int64

func generateEventID() string {
	n := eventCounter.Add(1)
	return fmt.Sprintf("evt-%d-%d", time.Now().UnixMilli(), n)
}
