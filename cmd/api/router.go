package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/recruit-chat/internal/config"
	"github.com/capitalize-ai/recruit-chat/internal/handler"
	"github.com/capitalize-ai/recruit-chat/internal/middleware"
	"github.com/capitalize-ai/recruit-chat/internal/service"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
)

func newRouter(cfg *config.Config, svc *service.ChatService, checks map[string]handler.Pinger, log *logger.Logger) http.Handler {
	healthHandler := handler.NewHealthHandler(checks)
	chatHandler := handler.NewChatHandler(svc, cfg.SSEHeartbeat, log.Named("chat_handler"))
	adminHandler := handler.NewAdminHandler(svc, cfg.SSEHeartbeat, log.Named("admin_handler"))
	quickReplyHandler := handler.NewQuickReplyHandler(svc, cfg.SSEHeartbeat, log.Named("quick_reply_handler"))

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, cfg.AdminScope))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/chat", func(r chi.Router) {
			r.Post("/room", chatHandler.Room)
			r.Get("/stream", chatHandler.Stream)
			r.Post("/messages", chatHandler.Send)
			r.Delete("/messages/{messageID}", chatHandler.Delete)
			r.Post("/typing", chatHandler.Typing)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireScope(cfg.AdminScope))

			r.Get("/rooms/stream", adminHandler.Inbox)
			r.Route("/rooms/{roomID}", func(r chi.Router) {
				r.Use(adminHandler.RoomCtx)
				r.Get("/stream", adminHandler.RoomStream)
				r.Post("/messages", adminHandler.Send)
				r.Delete("/messages/{messageID}", adminHandler.Delete)
				r.Post("/typing", adminHandler.Typing)
				r.Post("/quick-replies/{id}/select", adminHandler.SelectQuickReply)
				r.Post("/draft", adminHandler.Draft)
				r.Get("/counts", adminHandler.Counts)
				r.Get("/events", adminHandler.Events)
			})

			r.Route("/quick-replies", func(r chi.Router) {
				r.Get("/", quickReplyHandler.List)
				r.Post("/", quickReplyHandler.Create)
				r.Get("/stream", quickReplyHandler.Stream)
				r.Put("/{id}", quickReplyHandler.Update)
				r.Delete("/{id}", quickReplyHandler.Delete)
			})
		})
	})

	return r
}
