package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/medrag-chat/internal/handler/chat"
	"github.com/zhouzirui/medrag-chat/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/medrag-chat/internal/middleware"
	chatService "github.com/zhouzirui/medrag-chat/internal/service/chat"
	"github.com/zhouzirui/medrag-chat/pkg/utils"
)

// NewRouter wires HTTP routes to the chat controller and its event feeds.
func NewRouter(ctrl *chatService.Controller, broker *stream.Broker, logger *zap.Logger, streamOpts ...stream.Option) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(ctrl)
	streamHandler := stream.New(broker, ctrl, logger, streamOpts...)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	return r
}
