package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/GOGOSCHNO/assistantai1/internal/data/repos/conversation"
	"github.com/GOGOSCHNO/assistantai1/internal/domain"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/dbctx"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

// SideEffectHandlers groups the relay's built-in side-effect functions.
type SideEffectHandlers struct {
	log            *logger.Logger
	images         conversation.ImageAssetRepo
	bookings       conversation.BookingRepo
	calendar       CalendarService
	transport      Transport
	merchantNumber string
}

func NewSideEffectHandlers(
	log *logger.Logger,
	images conversation.ImageAssetRepo,
	bookings conversation.BookingRepo,
	cal CalendarService,
	transport Transport,
	merchantNumber string,
) *SideEffectHandlers {
	return &SideEffectHandlers{
		log:            log.With("service", "SideEffectHandlers"),
		images:         images,
		bookings:       bookings,
		calendar:       cal,
		transport:      transport,
		merchantNumber: strings.TrimSpace(merchantNumber),
	}
}

// RegisterAll binds every handler whose collaborators are configured.
func (h *SideEffectHandlers) RegisterAll(reg *SideEffectRegistry) {
	if h.images != nil {
		reg.Register("get_image_url", h.GetImageURL)
	}
	if h.calendar != nil {
		reg.Register("book_appointment", h.BookAppointment)
	}
	if h.transport != nil && h.merchantNumber != "" {
		reg.Register("notify_merchant", h.NotifyMerchant)
	}
}

type getImageURLParams struct {
	ImageCode string `json:"imageCode"`
}

func (h *SideEffectHandlers) GetImageURL(ctx context.Context, params json.RawMessage) (any, error) {
	var p getImageURLParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("parse get_image_url params: %w", err)
	}
	url, err := h.images.GetURL(dbctx.Context{Ctx: ctx}, p.ImageCode)
	if err != nil {
		return nil, err
	}
	if url == "" {
		h.log.Warn("Image code not found", "image_code", p.ImageCode)
	}
	return map[string]any{"imageUrl": url}, nil
}

type bookAppointmentParams struct {
	Summary        string `json:"summary"`
	CustomerNumber string `json:"customerNumber"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	Notes          string `json:"notes"`
}

func (h *SideEffectHandlers) BookAppointment(ctx context.Context, params json.RawMessage) (any, error) {
	var p bookAppointmentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("parse book_appointment params: %w", err)
	}
	if strings.TrimSpace(p.Summary) == "" {
		return nil, fmt.Errorf("book_appointment: summary required")
	}

	start, err := time.Parse(time.RFC3339, strings.TrimSpace(p.StartTime))
	if err != nil {
		return nil, fmt.Errorf("book_appointment: invalid startTime: %w", err)
	}
	end := start.Add(time.Hour)
	if strings.TrimSpace(p.EndTime) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(p.EndTime))
		if err != nil {
			return nil, fmt.Errorf("book_appointment: invalid endTime: %w", err)
		}
		end = parsed
	}

	eventID, err := h.calendar.CreateEvent(ctx, CalendarEventRequest{
		Summary:     p.Summary,
		Description: p.Notes,
		Start:       start,
		End:         end,
	})
	if err != nil {
		return nil, err
	}

	if h.bookings != nil {
		details, _ := json.Marshal(p)
		row := &domain.Booking{
			ConversationID:  strings.TrimSpace(p.CustomerNumber),
			Summary:         p.Summary,
			StartsAt:        start,
			EndsAt:          end,
			CalendarEventID: eventID,
			Details:         details,
		}
		if row.ConversationID == "" {
			row.ConversationID = "unknown"
		}
		if err := h.bookings.Create(dbctx.Context{Ctx: ctx}, row); err != nil {
			// The calendar event exists; a failed local record should not
			// make the assistant re-book.
			h.log.Error("Booking record insert failed", "event_id", eventID, "error", err.Error())
		}
	}

	return map[string]any{"status": "confirmed", "eventId": eventID}, nil
}

type notifyMerchantParams struct {
	Message string `json:"message"`
}

func (h *SideEffectHandlers) NotifyMerchant(ctx context.Context, params json.RawMessage) (any, error) {
	var p notifyMerchantParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("parse notify_merchant params: %w", err)
	}
	if strings.TrimSpace(p.Message) == "" {
		return nil, fmt.Errorf("notify_merchant: message required")
	}
	if err := h.transport.SendText(ctx, h.merchantNumber, p.Message); err != nil {
		return nil, err
	}
	return map[string]any{"status": "sent"}, nil
}
