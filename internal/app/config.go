package app

import (
	"time"

	"github.com/GOGOSCHNO/assistantai1/internal/pkg/envutil"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
	"github.com/GOGOSCHNO/assistantai1/internal/services"
)

type Config struct {
	Port              string
	VerifyToken       string
	MessagingProvider string
	MerchantNumber    string
	TurnTimeout       time.Duration
	Poller            services.PollerConfig
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:              envutil.String("PORT", "3000"),
		VerifyToken:       envutil.String("WEBHOOK_VERIFY_TOKEN", ""),
		MessagingProvider: envutil.String("MESSAGING_PROVIDER", "whatsapp"),
		MerchantNumber:    envutil.String("MERCHANT_WHATSAPP_NUMBER", ""),
		TurnTimeout:       envutil.Seconds("TURN_TIMEOUT_SECONDS", 5*time.Minute),
		Poller:            services.PollerConfigFromEnv(),
	}
	if cfg.VerifyToken == "" {
		log.Warn("WEBHOOK_VERIFY_TOKEN not set; webhook verification will reject all requests")
	}
	return cfg
}
