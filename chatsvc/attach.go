package chatsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/tradeberg/tradeberg/bus"
	"github.com/tradeberg/tradeberg/chat"
	"github.com/tradeberg/tradeberg/logger"
)

const unfurlTimeout = 5 * time.Second

// AddAttachment validates and stages an attachment for the next user
// message. URL attachments get a best-effort link preview; a failed
// unfurl never fails the attach.
func (s *Service) AddAttachment(ctx context.Context, conversationID string, kind chat.AttachmentKind, name, payload string) (*chat.Attachment, error) {
	var (
		att chat.Attachment
		err error
	)
	switch kind {
	case chat.AttachmentImage:
		att, err = chat.NewImageAttachment(name, payload)
	case chat.AttachmentURL:
		att, err = chat.NewURLAttachment(payload)
		if err == nil {
			att.Preview = s.preview(ctx, att.Payload)
		}
	case chat.AttachmentFile:
		att, err = chat.NewFileAttachment(name, payload)
	default:
		err = fmt.Errorf("%w: unknown kind %q", chat.ErrInvalidAttachment, kind)
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.AddPending(conversationID, att); err != nil {
		return nil, err
	}
	s.publish(bus.EventAttachmentAdded, conversationID, bus.AttachmentEventData{
		AttachmentID: att.ID,
		Kind:         string(att.Kind),
		Name:         att.Name,
	})
	logger.Debug("attachment staged", "conversation", conversationID, "attachment", att.ID, "kind", string(att.Kind))
	return &att, nil
}

// RemoveAttachment unstages a pending attachment.
func (s *Service) RemoveAttachment(ctx context.Context, conversationID, attachmentID string) error {
	if err := s.store.RemovePending(conversationID, attachmentID); err != nil {
		return err
	}
	s.publish(bus.EventAttachmentRemoved, conversationID, bus.AttachmentEventData{AttachmentID: attachmentID})
	return nil
}

// PendingAttachments lists what is staged for the next message.
func (s *Service) PendingAttachments(conversationID string) ([]chat.Attachment, error) {
	return s.store.Pending(conversationID)
}

func (s *Service) preview(ctx context.Context, pageURL string) *chat.Preview {
	if s.unfurler == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, unfurlTimeout)
	defer cancel()
	p, err := s.unfurler.Preview(ctx, pageURL)
	if err != nil {
		logger.Debug("unfurl skipped", "url", pageURL, "error", err)
		return nil
	}
	return p
}
