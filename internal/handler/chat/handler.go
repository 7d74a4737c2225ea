package chat

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/medrag-chat/internal/model/chat"
	chatService "github.com/zhouzirui/medrag-chat/internal/service/chat"
	"github.com/zhouzirui/medrag-chat/pkg/utils"
)

// Controller 是处理器驱动的聊天控制器。
type Controller interface {
	Snapshot() chatService.View
	History() []chat.HistoryEntry
	Send(text string) bool
	NewSession()
	LoadSession(id string) bool
	DeleteSession(id string)
	ToggleReferences(messageID string) (bool, bool)
}

// Handler 聊天窗口的HTTP处理器
type Handler struct {
	ctrl Controller
}

// New 创建聊天处理器
func New(ctrl Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.handleState)
	r.Get("/history", h.handleHistory)
	r.Post("/messages", h.handleSend)
	r.Post("/messages/{messageID}/references", h.handleToggleReferences)
	r.Post("/sessions", h.handleNewSession)
	r.Post("/sessions/{sessionID}/load", h.handleLoadSession)
	r.Delete("/sessions/{sessionID}", h.handleDeleteSession)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := h.ctrl.History()
	if history == nil {
		history = []chat.HistoryEntry{}
	}
	utils.RespondJSON(w, http.StatusOK, history)
}

// handleSend 提交问题
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	if !h.ctrl.Send(payload.Text) {
		utils.RespondError(w, http.StatusConflict, "input is disabled while a reply is pending")
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) handleNewSession(w http.ResponseWriter, r *http.Request) {
	h.ctrl.NewSession()
	utils.RespondJSON(w, http.StatusCreated, h.ctrl.Snapshot())
}

func (h *Handler) handleLoadSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !h.ctrl.LoadSession(sessionID) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	h.ctrl.DeleteSession(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleToggleReferences(w http.ResponseWriter, r *http.Request) {
	expanded, ok := h.ctrl.ToggleReferences(chi.URLParam(r, "messageID"))
	if !ok {
		utils.RespondError(w, http.StatusConflict, "references are not available for this message")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"expanded": expanded})
}
