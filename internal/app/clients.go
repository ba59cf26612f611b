package app

import (
	"fmt"
	"strings"

	"github.com/GOGOSCHNO/assistantai1/internal/clients/openai"
	"github.com/GOGOSCHNO/assistantai1/internal/clients/redis"
	"github.com/GOGOSCHNO/assistantai1/internal/clients/twilio"
	"github.com/GOGOSCHNO/assistantai1/internal/clients/whatsapp"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
	"github.com/GOGOSCHNO/assistantai1/internal/services"
)

type Clients struct {
	Ledger    redis.Ledger
	Openai    openai.Client
	Transport services.Transport
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	ledger, err := redis.NewLedger(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init dedup ledger: %w", err)
	}

	openaiClient, err := openai.NewClient(log)
	if err != nil {
		_ = ledger.Close()
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	var transport services.Transport
	switch strings.ToLower(cfg.MessagingProvider) {
	case "twilio":
		tw, err := twilio.NewFromEnv(log)
		if err != nil {
			_ = ledger.Close()
			return Clients{}, fmt.Errorf("init twilio client: %w", err)
		}
		transport = services.NewTwilioTransport(tw)
	default:
		wa, err := whatsapp.NewFromEnv(log)
		if err != nil {
			_ = ledger.Close()
			return Clients{}, fmt.Errorf("init whatsapp client: %w", err)
		}
		transport = services.NewWhatsAppTransport(wa)
	}

	return Clients{
		Ledger:    ledger,
		Openai:    openaiClient,
		Transport: transport,
	}, nil
}
