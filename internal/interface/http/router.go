package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/smart-notes/internal/domain/auth"
	"github.com/yanqian/smart-notes/internal/infra/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
// authSvc may be nil, in which case the API is unauthenticated.
func NewRouter(cfg *config.Config, handler *Handler, authSvc auth.Service) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(handler.logger),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
		errorHandlingMiddleware(handler.logger),
		rateLimitMiddleware(cfg.HTTP.RateLimit, handler.logger),
	)

	router.GET("/healthz", handler.Health)

	api := router.Group("/api/v1")
	if authSvc != nil {
		api.Use(authMiddleware(authSvc))
	}
	{
		api.POST("/chat", handler.Chat)
		api.POST("/chat/stream", handler.ChatStream)
		api.POST("/tts", handler.Speak)
		api.POST("/image", handler.Image)

		api.POST("/notes/generate", handler.GenerateNote)
		api.POST("/notes/generate-batch", handler.GenerateBatch)
		api.GET("/notes/:id/history", handler.NoteHistory)

		api.GET("/settings", handler.GetSettings)
		api.PATCH("/settings", handler.PatchSettings)
		api.PUT("/settings/prompts", handler.PutPrompt)
		api.DELETE("/settings/prompts", handler.DeletePrompt)

		api.GET("/models", handler.Models)
		api.GET("/ollama/models", handler.OllamaModels)
		api.GET("/media/*key", handler.Media)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        withRetry(router, cfg.HTTP.Retry, handler.logger),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		attrs := []any{"method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "latency_ms", latency.Milliseconds()}
		if subject := subjectOf(c); subject != "" {
			attrs = append(attrs, "subject", subject)
		}
		logger.Info("http request", attrs...)
	}
}
