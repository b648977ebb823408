package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrConversationNotFound is returned for unknown or deleted
	// conversations. Late capture and stream results hitting this
	// error are discarded by their callers.
	ErrConversationNotFound = errors.New("chat: conversation not found")

	// ErrAttachmentNotFound is returned when removing an attachment
	// that is not staged.
	ErrAttachmentNotFound = errors.New("chat: attachment not found")
)

const conversationFileName = "conversation.json"

// Store persists conversations under <workspace>/conversations, one
// directory per conversation. Loaded conversations are cached.
type Store struct {
	root string

	mu    sync.Mutex
	cache map[string]*Conversation
}

// NewStore creates the conversations directory and returns a store.
func NewStore(workspace string) (*Store, error) {
	root := filepath.Join(workspace, "conversations")
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("chat: create store dir: %w", err)
	}
	return &Store{
		root:  root,
		cache: make(map[string]*Conversation),
	}, nil
}

// Create starts a new conversation and persists it.
func (s *Store) Create(title string) (*Conversation, error) {
	now := time.Now()
	conv := &Conversation{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[conv.ID] = conv
	if err := s.saveLocked(conv); err != nil {
		delete(s.cache, conv.ID)
		return nil, err
	}
	return copyConversation(conv), nil
}

// Get returns a snapshot of a conversation.
func (s *Store) Get(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	return copyConversation(conv), nil
}

// History returns a copy of the conversation transcript.
func (s *Store) History(id string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, len(conv.Messages))
	copy(msgs, conv.Messages)
	return msgs, nil
}

// AppendMessage adds a message to the transcript and persists.
func (s *Store) AppendMessage(id string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.getLocked(id)
	if err != nil {
		return err
	}
	conv.Messages = append(conv.Messages, msg)
	if conv.Title == "" && msg.Role == RoleUser {
		conv.Title = deriveTitle(msg.Content)
	}
	conv.UpdatedAt = time.Now()
	return s.saveLocked(conv)
}

// AddPending stages an attachment for the next user message.
func (s *Store) AddPending(id string, att Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.getLocked(id)
	if err != nil {
		return err
	}
	conv.Pending = append(conv.Pending, att)
	conv.UpdatedAt = time.Now()
	return s.saveLocked(conv)
}

// RemovePending removes a staged attachment by id.
func (s *Store) RemovePending(id, attachmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.getLocked(id)
	if err != nil {
		return err
	}
	for i, att := range conv.Pending {
		if att.ID == attachmentID {
			conv.Pending = append(conv.Pending[:i], conv.Pending[i+1:]...)
			conv.UpdatedAt = time.Now()
			return s.saveLocked(conv)
		}
	}
	return ErrAttachmentNotFound
}

// Pending returns a copy of the staged attachments.
func (s *Store) Pending(id string) ([]Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	atts := make([]Attachment, len(conv.Pending))
	copy(atts, conv.Pending)
	return atts, nil
}

// TakePending drains the staged attachments, returning them.
func (s *Store) TakePending(id string) ([]Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	atts := conv.Pending
	conv.Pending = nil
	if len(atts) > 0 {
		conv.UpdatedAt = time.Now()
		if err := s.saveLocked(conv); err != nil {
			return nil, err
		}
	}
	return atts, nil
}

// List returns summaries of all stored conversations, newest first.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("chat: read store dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Summary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		conv, err := s.getLocked(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, Summary{
			ID:           conv.ID,
			Title:        conv.Title,
			MessageCount: len(conv.Messages),
			UpdatedAt:    conv.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Delete removes a conversation from cache and disk. Pending work
// keyed on the id fails with ErrConversationNotFound afterwards.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getLocked(id); err != nil {
		return err
	}
	delete(s.cache, id)
	if err := os.RemoveAll(filepath.Dir(s.pathFor(id))); err != nil {
		return fmt.Errorf("chat: delete conversation: %w", err)
	}
	return nil
}

// PathFor returns the storage path for a conversation id.
func (s *Store) PathFor(id string) string {
	return s.pathFor(id)
}

func (s *Store) getLocked(id string) (*Conversation, error) {
	id = sanitizeID(id)
	if id == "" {
		return nil, ErrConversationNotFound
	}
	if conv, ok := s.cache[id]; ok {
		return conv, nil
	}

	conv, err := s.loadLocked(id)
	if err != nil {
		return nil, err
	}
	s.cache[id] = conv
	return conv, nil
}

func (s *Store) loadLocked(id string) (*Conversation, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chat: read conversation %s: %w", id, err)
	}

	conv := &Conversation{}
	if err := json.Unmarshal(data, conv); err != nil {
		return nil, fmt.Errorf("chat: parse conversation %s: %w", id, err)
	}
	if conv.ID == "" {
		conv.ID = id
	}
	return conv, nil
}

func (s *Store) saveLocked(conv *Conversation) error {
	path := s.pathFor(conv.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("chat: create conversation dir: %w", err)
	}
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("chat: marshal conversation %s: %w", conv.ID, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("chat: write conversation %s: %w", conv.ID, err)
	}
	return nil
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.root, sanitizeID(id), conversationFileName)
}

// sanitizeID keeps ids safe to use as directory names.
func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func deriveTitle(content string) string {
	title := strings.TrimSpace(content)
	if idx := strings.IndexAny(title, "\r\n"); idx >= 0 {
		title = title[:idx]
	}
	runes := []rune(title)
	if len(runes) > 60 {
		title = string(runes[:60])
	}
	return title
}

func copyConversation(conv *Conversation) *Conversation {
	out := *conv
	out.Messages = make([]Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	out.Pending = make([]Attachment, len(conv.Pending))
	copy(out.Pending, conv.Pending)
	return &out
}
