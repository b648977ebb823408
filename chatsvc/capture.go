package chatsvc

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/tradeberg/tradeberg/bus"
	"github.com/tradeberg/tradeberg/capture"
	"github.com/tradeberg/tradeberg/chat"
	"github.com/tradeberg/tradeberg/logger"
	"github.com/tradeberg/tradeberg/widget"
)

// Capture renders the chart the conversation is looking at and stages
// the snapshot as an image attachment. One capture runs per
// conversation at a time; a request while one is rendering fails with
// capture.ErrBusy instead of queueing.
func (s *Service) Capture(ctx context.Context, conversationID string, opts widget.Options) (*chat.Attachment, error) {
	if s.snap == nil {
		return nil, capture.ErrUnsupported
	}
	if _, err := s.store.Get(conversationID); err != nil {
		return nil, err
	}

	opts = s.mergeWidget(opts)
	target := capture.Target{
		URL:      s.widgetURL(opts),
		Symbol:   opts.Symbol,
		Interval: opts.Interval,
		Theme:    opts.Theme,
	}

	start := time.Now()
	s.publish(bus.EventCaptureStarted, conversationID, bus.CaptureEventData{
		Symbol:   opts.Symbol,
		Interval: opts.Interval,
	})

	att, err := s.triggerFor(conversationID).Capture(ctx, target)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		s.publish(bus.EventCaptureFailed, conversationID, bus.CaptureEventData{
			Symbol:    opts.Symbol,
			Interval:  opts.Interval,
			Failure:   capture.FailureKind(err),
			Error:     err.Error(),
			ElapsedMs: elapsed,
		})
		logger.Warn("capture failed",
			"conversation", conversationID,
			"symbol", opts.Symbol,
			"failure", capture.FailureKind(err),
			"error", err,
			"latencyMs", elapsed)
		return nil, err
	}

	s.publish(bus.EventCaptureSucceeded, conversationID, bus.CaptureEventData{
		Symbol:       opts.Symbol,
		Interval:     opts.Interval,
		AttachmentID: att.ID,
		ElapsedMs:    elapsed,
	})
	logger.Info("capture succeeded",
		"conversation", conversationID,
		"symbol", opts.Symbol,
		"attachment", att.ID,
		"latencyMs", elapsed)
	return att, nil
}

// CaptureBusy reports whether a capture is rendering for the
// conversation.
func (s *Service) CaptureBusy(conversationID string) bool {
	s.mu.Lock()
	t, ok := s.triggers[conversationID]
	s.mu.Unlock()
	return ok && t.Busy()
}

// triggerFor returns the conversation's capture trigger, creating it
// on first use. The sink stages the snapshot on the conversation; a
// conversation deleted mid-render refuses the attachment, which drops
// the result.
func (s *Service) triggerFor(conversationID string) *capture.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.triggers[conversationID]; ok {
		return t
	}
	t := capture.NewTrigger(s.snap, func(ctx context.Context, att chat.Attachment) error {
		if err := s.store.AddPending(conversationID, att); err != nil {
			return err
		}
		s.publish(bus.EventAttachmentAdded, conversationID, bus.AttachmentEventData{
			AttachmentID: att.ID,
			Kind:         string(att.Kind),
			Name:         att.Name,
		})
		return nil
	})
	s.triggers[conversationID] = t
	return t
}

func (s *Service) mergeWidget(opts widget.Options) widget.Options {
	if opts.Symbol == "" {
		opts.Symbol = s.cfg.Widget.Symbol
	}
	if opts.Interval == "" {
		opts.Interval = s.cfg.Widget.Interval
	}
	if opts.Theme == "" {
		opts.Theme = s.cfg.Widget.Theme
	}
	if opts.Locale == "" {
		opts.Locale = s.cfg.Widget.Locale
	}
	if opts.Source == "" {
		opts.Source = s.cfg.Widget.Source
	}
	return opts.Normalize()
}

// widgetURL builds the widget page URL for the capture engine. The
// engine renders this server's own /widget page, which hosts the same
// embed the client shows.
func (s *Service) widgetURL(opts widget.Options) string {
	q := url.Values{}
	q.Set("symbol", opts.Symbol)
	q.Set("interval", opts.Interval)
	q.Set("theme", opts.Theme)
	q.Set("locale", opts.Locale)
	q.Set("source", opts.Source)
	return strings.TrimRight(s.cfg.PublicURL, "/") + "/widget?" + q.Encode()
}
