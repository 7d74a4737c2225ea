package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chatsvc "github.com/zhouzirui/medrag-chat/internal/service/chat"
	"github.com/zhouzirui/medrag-chat/pkg/utils"
)

const (
	defaultHeartbeat    = 15 * time.Second
	defaultPingInterval = 54 * time.Second
	defaultReadTimeout  = 60 * time.Second
)

// Controller is the part of the chat controller the live feeds drive.
type Controller interface {
	Snapshot() chatsvc.View
	Send(text string) bool
	NewSession()
	LoadSession(id string) bool
	DeleteSession(id string)
	ToggleReferences(messageID string) (bool, bool)
}

// Handler serves the controller's event feed over SSE and websocket.
type Handler struct {
	broker       *Broker
	ctrl         Controller
	logger       *zap.Logger
	heartbeat    time.Duration
	pingInterval time.Duration
	readTimeout  time.Duration
	upgrader     websocket.Upgrader
}

// Option customises a Handler.
type Option func(*Handler)

// WithHeartbeat sets the SSE keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) { h.heartbeat = d }
}

// WithPingInterval sets the websocket ping interval and read timeout.
func WithPingInterval(ping, readTimeout time.Duration) Option {
	return func(h *Handler) {
		h.pingInterval = ping
		h.readTimeout = readTimeout
	}
}

// New creates a stream handler.
func New(broker *Broker, ctrl Controller, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		broker:       broker,
		ctrl:         ctrl,
		logger:       logger.Named("stream"),
		heartbeat:    defaultHeartbeat,
		pingInterval: defaultPingInterval,
		readTimeout:  defaultReadTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes 注册事件流路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleEvents)
	r.Get("/ws", h.handleWebSocket)
}

// handleEvents streams a snapshot followed by every controller event.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := h.broker.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := utils.SendSSEEvent(w, flusher, "snapshot", h.ctrl.Snapshot()); err != nil {
		h.logger.Debug("sse client gone", zap.Error(err))
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	h.logger.Debug("sse stream opened", zap.String("remote", r.RemoteAddr))
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("sse stream closed", zap.String("remote", r.RemoteAddr))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Kind), ev); err != nil {
				h.logger.Debug("sse client gone", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
