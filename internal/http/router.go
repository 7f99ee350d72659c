package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(logger *zap.Logger, chatH *ChatHandler) *gin.Engine {
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	sessions := r.Group("/sessions")
	sessions.POST("", chatH.CreateSession)
	sessions.GET("", chatH.ListSessions)
	sessions.DELETE("", chatH.ClearSessions)
	sessions.GET("/:id", chatH.GetSession)
	sessions.DELETE("/:id", chatH.DeleteSession)
	sessions.PUT("/:id/name", chatH.RenameSession)
	sessions.GET("/:id/messages", chatH.GetMessages)
	sessions.POST("/:id/messages", chatH.PostMessage)

	r.GET("/models", chatH.ListModels)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
