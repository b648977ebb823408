// Package chat defines conversation state and its on-disk store.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AttachmentKind identifies what an attachment payload holds.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image" // payload is a data URL
	AttachmentURL   AttachmentKind = "url"   // payload is an absolute URL
	AttachmentFile  AttachmentKind = "file"  // payload is a data URL
)

// Preview holds unfurled metadata for a URL attachment.
type Preview struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// Attachment is a piece of context pinned to a message.
type Attachment struct {
	ID        string         `json:"id"`
	Kind      AttachmentKind `json:"kind"`
	Payload   string         `json:"payload"`
	Name      string         `json:"name,omitempty"`
	MIME      string         `json:"mime,omitempty"`
	Size      int64          `json:"size,omitempty"` // decoded payload bytes
	Preview   *Preview       `json:"preview,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Message is a single transcript entry.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Partial     bool         `json:"partial,omitempty"` // reply cut short by cancellation or stream failure
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Conversation is a transcript plus attachments staged for the next
// user message.
type Conversation struct {
	ID        string       `json:"id"`
	Title     string       `json:"title,omitempty"`
	Messages  []Message    `json:"messages"`
	Pending   []Attachment `json:"pending,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Summary is a lightweight conversation listing entry.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	MessageCount int       `json:"messageCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewUserMessage creates a user message carrying the given attachments.
func NewUserMessage(content string, attachments []Attachment) Message {
	return Message{
		ID:          uuid.NewString(),
		Role:        RoleUser,
		Content:     content,
		Attachments: attachments,
		CreatedAt:   time.Now(),
	}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}
}
