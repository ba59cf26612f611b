package app

import (
	"github.com/gin-gonic/gin"

	httpMW "github.com/GOGOSCHNO/assistantai1/internal/http/middleware"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

func wireMiddleware(log *logger.Logger) []gin.HandlerFunc {
	log.Info("Wiring middleware...")
	return []gin.HandlerFunc{
		httpMW.RequestLogger(log),
		httpMW.CORS(),
	}
}
