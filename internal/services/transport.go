package services

import (
	"context"

	"github.com/GOGOSCHNO/assistantai1/internal/clients/twilio"
	"github.com/GOGOSCHNO/assistantai1/internal/clients/whatsapp"
)

type whatsappTransport struct {
	client whatsapp.Client
}

// NewWhatsAppTransport delivers replies through the Meta Cloud API.
func NewWhatsAppTransport(client whatsapp.Client) Transport {
	return &whatsappTransport{client: client}
}

func (t *whatsappTransport) SendText(ctx context.Context, conversationID string, text string) error {
	return t.client.SendText(ctx, conversationID, text)
}

func (t *whatsappTransport) SendImage(ctx context.Context, conversationID string, url string) error {
	return t.client.SendImage(ctx, conversationID, url)
}

type twilioTransport struct {
	client twilio.Client
}

// NewTwilioTransport delivers replies through Twilio's WhatsApp channel.
func NewTwilioTransport(client twilio.Client) Transport {
	return &twilioTransport{client: client}
}

func (t *twilioTransport) SendText(ctx context.Context, conversationID string, text string) error {
	_, err := t.client.SendWhatsAppText(ctx, conversationID, text)
	return err
}

func (t *twilioTransport) SendImage(ctx context.Context, conversationID string, url string) error {
	_, err := t.client.SendWhatsAppMedia(ctx, conversationID, url)
	return err
}
