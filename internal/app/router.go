package app

import (
	"github.com/gin-gonic/gin"

	"github.com/GOGOSCHNO/assistantai1/internal/server"
)

func wireRouter(handlers Handlers, middleware []gin.HandlerFunc) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		HealthHandler:  handlers.Health,
		WebhookHandler: handlers.Webhook,
		Middleware:     middleware,
	})
}
