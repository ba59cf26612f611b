package app

import (
	"context"
	"os"
	"strings"

	"gorm.io/gorm"

	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
	"github.com/GOGOSCHNO/assistantai1/internal/services"
)

type Services struct {
	Queue        *services.ConversationQueue
	Registry     *services.SideEffectRegistry
	Backend      services.RunBackend
	Poller       *services.RunPoller
	Orchestrator *services.Orchestrator
	Calendar     services.CalendarService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, repos Repos) (Services, error) {
	log.Info("Wiring services...")

	queue := services.NewConversationQueue(log)
	backend := services.NewAssistantBackend(log, clients.Openai)
	registry := services.NewSideEffectRegistry(log)

	// The calendar client is optional: without it the book_appointment
	// side effect is simply not registered.
	var cal services.CalendarService
	if strings.TrimSpace(os.Getenv("GOOGLE_CALENDAR_ID")) != "" {
		c, err := services.NewGoogleCalendar(context.Background(), log)
		if err != nil {
			return Services{}, err
		}
		cal = c
	} else {
		log.Warn("GOOGLE_CALENDAR_ID not set; book_appointment side effect disabled")
	}

	handlers := services.NewSideEffectHandlers(
		log,
		repos.Images,
		repos.Bookings,
		cal,
		clients.Transport,
		cfg.MerchantNumber,
	)
	handlers.RegisterAll(registry)

	poller := services.NewRunPoller(log, backend, registry, cfg.Poller)

	orchestrator := services.NewOrchestrator(
		log,
		db,
		queue,
		clients.Ledger,
		backend,
		poller,
		clients.Transport,
		repos.Threads,
		repos.Turns,
	)

	return Services{
		Queue:        queue,
		Registry:     registry,
		Backend:      backend,
		Poller:       poller,
		Orchestrator: orchestrator,
		Calendar:     cal,
	}, nil
}
