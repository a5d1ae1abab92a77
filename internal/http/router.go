package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dama-exam/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	auth *service.AuthService,
	examH *ExamHandler,
	adminH *AdminHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	exam := r.Group("/exam")
	exam.POST("/message", examH.PostMessage)

	admin := r.Group("/admin")
	admin.POST("/login", adminH.Login)
	admin.POST("/refresh", adminH.Refresh)

	settings := admin.Group("/settings", JWTAuthMiddleware(auth))
	settings.GET("", adminH.GetSettings)
	settings.PUT("/model", adminH.SelectModel)
	settings.PUT("/temperature", adminH.UpdateTemperature)
	settings.PUT("/prompt", adminH.UpdatePrompt)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

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

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
