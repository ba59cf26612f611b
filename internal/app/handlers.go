package app

import (
	httpH "github.com/GOGOSCHNO/assistantai1/internal/http/handlers"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

type Handlers struct {
	Health  *httpH.HealthHandler
	Webhook *httpH.WebhookHandler
}

func wireHandlers(log *logger.Logger, cfg Config, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:  httpH.NewHealthHandler(),
		Webhook: httpH.NewWebhookHandler(log, services.Orchestrator, cfg.VerifyToken, cfg.TurnTimeout),
	}
}
