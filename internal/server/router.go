package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/calliopehq/persona-backend/internal/handlers"
	"github.com/calliopehq/persona-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware    *middleware.AuthMiddleware
	PersonaHandler    *handlers.PersonaHandler
	ChatHandler       *handlers.ChatHandler
	VersionHandler    *handlers.VersionHandler
	ChatConfigHandler *handlers.ChatConfigHandler
	MediaDir          string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.Static("/media", cfg.MediaDir)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/api")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Personas
	protected.GET("/personas/:id", cfg.PersonaHandler.Get)
	protected.PUT("/personas/:id", cfg.PersonaHandler.Update)
	protected.POST("/personas/:id/image", cfg.PersonaHandler.GenerateImage)
	// Chat
	protected.POST("/personas/:id/chat/start", cfg.ChatHandler.StartSession)
	protected.POST("/personas/:id/chat", cfg.ChatHandler.StreamTurn)
	protected.GET("/personas/:id/chat/sessions", cfg.ChatHandler.ListSessions)
	protected.GET("/chat/sessions/:id/messages", cfg.ChatHandler.ListMessages)
	// Versions
	protected.GET("/versions/:type/:id", cfg.VersionHandler.List)
	protected.POST("/versions/:type/:id/restore", cfg.VersionHandler.Restore)
	// Chat config
	protected.GET("/chat-config", cfg.ChatConfigHandler.Get)
	protected.PUT("/chat-config", cfg.ChatConfigHandler.Put)

	return router
}
