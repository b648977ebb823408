package channel

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tradeberg/tradeberg/bus"
	"github.com/tradeberg/tradeberg/capture"
	"github.com/tradeberg/tradeberg/chat"
	"github.com/tradeberg/tradeberg/chatsvc"
	"github.com/tradeberg/tradeberg/internal/health"
	"github.com/tradeberg/tradeberg/logger"
	"github.com/tradeberg/tradeberg/widget"
)

//go:embed static
var staticFS embed.FS

const (
	defaultWebAddr  = "127.0.0.1:8421"
	maxBodyBytes    = 16 << 20 // attachment payloads are inline data URLs
	apiTimeout      = 60 * time.Second
	shutdownTimeout = 5 * time.Second
)

// WebConfig tunes the web channel.
type WebConfig struct {
	Addr string

	// AllowedOrigins extends the websocket same-origin check, e.g.
	// when a dev frontend runs on another port.
	AllowedOrigins []string

	// HealthProbe supplements the health snapshot with gauges owned
	// by other components (capture engine, scheduler).
	HealthProbe func(health.Options) health.Options
}

// WebChannel serves the chat app: REST API, event websocket, the
// widget page the capture engine renders, and the embedded frontend.
type WebChannel struct {
	svc       *chatsvc.Service
	bus       *bus.Bus
	cfg       WebConfig
	hub       *wsHub
	server    *http.Server
	ln        net.Listener
	subID     string
	startedAt time.Time
	stopOnce  sync.Once
}

// NewWebChannel creates the web channel.
func NewWebChannel(svc *chatsvc.Service, eventBus *bus.Bus, cfg WebConfig) *WebChannel {
	if cfg.Addr == "" {
		cfg.Addr = defaultWebAddr
	}
	return &WebChannel{
		svc: svc,
		bus: eventBus,
		cfg: cfg,
		hub: newWSHub(),
	}
}

func (c *WebChannel) Name() string {
	return "web"
}

// Addr returns the bound listen address once started.
func (c *WebChannel) Addr() string {
	if c.ln != nil {
		return c.ln.Addr().String()
	}
	return c.cfg.Addr
}

func (c *WebChannel) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("channel: web listen on %s: %w", c.cfg.Addr, err)
	}
	c.ln = ln
	c.startedAt = time.Now()
	c.subID = c.bus.Subscribe(bus.EventAny, func(ctx context.Context, event *bus.Event) {
		c.hub.broadcast(event)
	})

	c.server = &http.Server{
		Handler:           c.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("web server failed", "error", err)
		}
	}()

	logger.Info("web channel started", "addr", ln.Addr().String())
	return nil
}

func (c *WebChannel) Stop() error {
	c.stopOnce.Do(func() {
		if c.subID != "" {
			c.bus.Unsubscribe(c.subID)
		}
		c.hub.closeAll()
		if c.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := c.server.Shutdown(ctx); err != nil {
				logger.Warn("web server shutdown", "error", err)
			}
		}
		logger.Info("web channel stopped")
	})
	return nil
}

func (c *WebChannel) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout))
		r.Get("/health", c.handleHealth)
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", c.handleCreateConversation)
			r.Get("/", c.handleListConversations)
			r.Route("/{conversationID}", func(r chi.Router) {
				r.Get("/", c.handleGetConversation)
				r.Delete("/", c.handleDeleteConversation)
				r.Get("/history", c.handleHistory)
				r.Post("/messages", c.handleSendMessage)
				r.Post("/cancel", c.handleCancelReply)
				r.Get("/attachments", c.handleListAttachments)
				r.Post("/attachments", c.handleAddAttachment)
				r.Delete("/attachments/{attachmentID}", c.handleRemoveAttachment)
				r.Post("/capture", c.handleCapture)
			})
		})
	})

	// The websocket stays outside the timeout middleware.
	r.Get("/ws", c.handleWS)
	r.Get("/widget", c.handleWidget)
	r.Handle("/*", c.staticHandler())
	return r
}

type createConversationRequest struct {
	Message string `json:"message,omitempty"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type addAttachmentRequest struct {
	Kind    string `json:"kind"`
	Name    string `json:"name,omitempty"`
	Payload string `json:"payload"`
}

type captureRequest struct {
	Symbol   string `json:"symbol,omitempty"`
	Interval string `json:"interval,omitempty"`
	Theme    string `json:"theme,omitempty"`
	Source   string `json:"source,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *WebChannel) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}
	conv, err := c.svc.CreateConversation(r.Context(), req.Message)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, conv)
}

func (c *WebChannel) handleListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := c.svc.Conversations()
	if err != nil {
		respondError(w, err)
		return
	}
	if summaries == nil {
		summaries = []chat.Summary{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (c *WebChannel) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := c.svc.Conversation(chi.URLParam(r, "conversationID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (c *WebChannel) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := c.svc.DeleteConversation(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *WebChannel) handleHistory(w http.ResponseWriter, r *http.Request) {
	messages, err := c.svc.History(chi.URLParam(r, "conversationID"))
	if err != nil {
		respondError(w, err)
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// handleSendMessage accepts the user message and returns immediately;
// the reply streams over the websocket.
func (c *WebChannel) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	msg, err := c.svc.SendMessage(r.Context(), chi.URLParam(r, "conversationID"), req.Content)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, msg)
}

func (c *WebChannel) handleCancelReply(w http.ResponseWriter, r *http.Request) {
	if err := c.svc.CancelReply(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *WebChannel) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	atts, err := c.svc.PendingAttachments(chi.URLParam(r, "conversationID"))
	if err != nil {
		respondError(w, err)
		return
	}
	if atts == nil {
		atts = []chat.Attachment{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"attachments": atts})
}

func (c *WebChannel) handleAddAttachment(w http.ResponseWriter, r *http.Request) {
	var req addAttachmentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	att, err := c.svc.AddAttachment(r.Context(), chi.URLParam(r, "conversationID"), chat.AttachmentKind(req.Kind), req.Name, req.Payload)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, att)
}

func (c *WebChannel) handleRemoveAttachment(w http.ResponseWriter, r *http.Request) {
	err := c.svc.RemoveAttachment(r.Context(), chi.URLParam(r, "conversationID"), chi.URLParam(r, "attachmentID"))
	if err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCapture renders the conversation's chart and stages the
// snapshot. Blocks until the render finishes or fails.
func (c *WebChannel) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}
	att, err := c.svc.Capture(r.Context(), chi.URLParam(r, "conversationID"), widget.Options{
		Symbol:   req.Symbol,
		Interval: req.Interval,
		Theme:    req.Theme,
		Source:   req.Source,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, att)
}

func (c *WebChannel) handleHealth(w http.ResponseWriter, r *http.Request) {
	opts := health.Options{StartedAt: c.startedAt}
	if summaries, err := c.svc.Conversations(); err == nil {
		opts.Conversations = len(summaries)
	}
	if c.cfg.HealthProbe != nil {
		opts = c.cfg.HealthProbe(opts)
	}
	respondJSON(w, http.StatusOK, health.Collect(opts))
}

// handleWidget serves the chart page. The browser shows it in the
// app, and the capture engine loads the same page when snapshotting.
func (c *WebChannel) handleWidget(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := widget.PageHTML(widget.Options{
		Symbol:   q.Get("symbol"),
		Interval: q.Get("interval"),
		Theme:    q.Get("theme"),
		Locale:   q.Get("locale"),
		Source:   q.Get("source"),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

func (c *WebChannel) staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	return http.FileServer(http.FS(sub))
}

func decodeJSON(r *http.Request, v any) error {
	defer io.Copy(io.Discard, r.Body)
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("write response failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrConversationNotFound), errors.Is(err, chat.ErrAttachmentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chat.ErrInvalidAttachment), errors.Is(err, chatsvc.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, chatsvc.ErrReplyInFlight), errors.Is(err, chatsvc.ErrNoActiveReply), errors.Is(err, capture.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, capture.ErrUnsupported):
		status = http.StatusNotImplemented
	case errors.Is(err, capture.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	respondJSON(w, status, errorResponse{Error: err.Error()})
}
