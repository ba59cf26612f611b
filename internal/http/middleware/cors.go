package middleware

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/GOGOSCHNO/assistantai1/internal/pkg/envutil"
)

func CORS() gin.HandlerFunc {
	origins := strings.Split(envutil.String("ALLOWED_ORIGINS", "https://www.puravivecoach.com"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	})
}
