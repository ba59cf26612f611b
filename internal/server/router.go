package server

import (
	"github.com/gin-gonic/gin"

	"github.com/GOGOSCHNO/assistantai1/internal/http/handlers"
)

type RouterConfig struct {
	HealthHandler  *handlers.HealthHandler
	WebhookHandler *handlers.WebhookHandler
	Middleware     []gin.HandlerFunc
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	for _, mw := range cfg.Middleware {
		router.Use(mw)
	}

	router.GET("/", cfg.HealthHandler.HealthCheck)
	router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)

	router.GET("/whatsapp", cfg.WebhookHandler.Verify)
	router.POST("/whatsapp", cfg.WebhookHandler.Receive)

	return router
}
