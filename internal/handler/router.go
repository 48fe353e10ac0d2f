package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hooma-ai/chatbot-backend/internal/config"
	"github.com/hooma-ai/chatbot-backend/internal/handler/admin"
	chatHandler "github.com/hooma-ai/chatbot-backend/internal/handler/chat"
	"github.com/hooma-ai/chatbot-backend/internal/handler/health"
	chatService "github.com/hooma-ai/chatbot-backend/internal/service/chat"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg *config.Config, chatSvc *chatService.Service, store *chatService.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthH := health.New(cfg.AI)
	chatH := chatHandler.New(chatSvc)

	r.Get("/health", healthH.Liveness)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", healthH.Detail)
		chatH.RegisterRoutes(api)
	})

	if cfg.Admin.Enabled() {
		admin.New(store, cfg.Admin).RegisterRoutes(r)
	}

	return r
}
