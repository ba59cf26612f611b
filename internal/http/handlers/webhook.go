package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GOGOSCHNO/assistantai1/internal/http/response"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
	"github.com/GOGOSCHNO/assistantai1/internal/services"
)

// WebhookHandler receives Meta WhatsApp webhook deliveries and hands admitted
// events to the orchestrator.
type WebhookHandler struct {
	log          *logger.Logger
	orchestrator *services.Orchestrator
	verifyToken  string
	turnTimeout  time.Duration
}

func NewWebhookHandler(log *logger.Logger, orchestrator *services.Orchestrator, verifyToken string, turnTimeout time.Duration) *WebhookHandler {
	if turnTimeout <= 0 {
		turnTimeout = 5 * time.Minute
	}
	return &WebhookHandler{
		log:          log.With("handler", "WebhookHandler"),
		orchestrator: orchestrator,
		verifyToken:  strings.TrimSpace(verifyToken),
		turnTimeout:  turnTimeout,
	}
}

type webhookPayload struct {
	Entry []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string       `json:"field"`
	Value webhookValue `json:"value"`
}

type webhookValue struct {
	Metadata struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`
	Messages []inboundMessage `json:"messages"`
}

type inboundMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
}

// extractInboundEvent pulls the first message out of a delivery. ok is false
// for payloads that are not inbound messages (status updates etc.).
func extractInboundEvent(p webhookPayload) (services.InboundEvent, bool) {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return services.InboundEvent{}, false
	}
	change := p.Entry[0].Changes[0]
	if change.Field != "messages" || len(change.Value.Messages) == 0 {
		return services.InboundEvent{}, false
	}
	msg := change.Value.Messages[0]
	return services.InboundEvent{
		EventID:        msg.ID,
		ConversationID: msg.From,
		Text:           messageContent(msg),
	}, true
}

// messageContent reduces non-text message types to placeholder text, the way
// the assistant expects them.
func messageContent(msg inboundMessage) string {
	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return ""
		}
		return strings.TrimSpace(msg.Text.Body)
	case "image":
		return "Cliente envió una imagen."
	case "audio":
		return "Cliente envió un audio."
	default:
		return "Cliente envió un tipo de mensaje no soportado."
	}
}

// Receive always acks 200 on drop paths so the provider stops retrying.
// Admitted events are processed asynchronously; the provider redelivers on
// slow acks, and the dedup ledger already owns the event id by then.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.log.Warn("Webhook payload unreadable", "error", err.Error())
		c.String(http.StatusOK, "ignored")
		return
	}

	ev, ok := extractInboundEvent(payload)
	if !ok {
		c.String(http.StatusOK, "not an inbound message")
		return
	}
	if strings.TrimSpace(ev.Text) == "" {
		c.String(http.StatusOK, "empty message")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.turnTimeout)
		defer cancel()

		err := h.orchestrator.HandleInbound(ctx, ev)
		switch {
		case err == nil:
		case errors.Is(err, services.ErrDuplicateEvent):
			h.log.Debug("Duplicate delivery ignored", "event_id", ev.EventID)
		case errors.Is(err, services.ErrEmptyContent):
			h.log.Debug("Empty content dropped", "event_id", ev.EventID)
		default:
			h.log.Error("Inbound event processing failed",
				"event_id", ev.EventID,
				"conversation_id", ev.ConversationID,
				"error", err.Error(),
			)
		}
	}()

	c.String(http.StatusOK, "accepted")
}

// Verify answers Meta's webhook subscription challenge.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	response.RespondError(c, http.StatusForbidden, "verification_failed", errors.New("webhook verification rejected"))
}
