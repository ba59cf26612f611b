package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/GOGOSCHNO/assistantai1/internal/pkg/envutil"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

// CalendarService creates appointments on the merchant's calendar. It is
// built once at startup with explicit readiness, not lazily on first use.
type CalendarService interface {
	CreateEvent(ctx context.Context, req CalendarEventRequest) (string, error)
}

type CalendarEventRequest struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

type googleCalendar struct {
	log        *logger.Logger
	svc        *calendar.Service
	calendarID string
	timezone   string
}

func NewGoogleCalendar(ctx context.Context, log *logger.Logger) (CalendarService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	calendarID := strings.TrimSpace(os.Getenv("GOOGLE_CALENDAR_ID"))
	if calendarID == "" {
		return nil, fmt.Errorf("missing GOOGLE_CALENDAR_ID")
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_JSON")); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init calendar service: %w", err)
	}

	return &googleCalendar{
		log:        log.With("service", "GoogleCalendar"),
		svc:        svc,
		calendarID: calendarID,
		timezone:   envutil.String("CALENDAR_TIMEZONE", "America/Bogota"),
	}, nil
}

func (c *googleCalendar) CreateEvent(ctx context.Context, req CalendarEventRequest) (string, error) {
	if strings.TrimSpace(req.Summary) == "" {
		return "", fmt.Errorf("calendar: summary required")
	}
	if req.Start.IsZero() {
		return "", fmt.Errorf("calendar: start time required")
	}
	if !req.End.After(req.Start) {
		req.End = req.Start.Add(time.Hour)
	}

	event := &calendar.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Start: &calendar.EventDateTime{
			DateTime: req.Start.Format(time.RFC3339),
			TimeZone: c.timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: req.End.Format(time.RFC3339),
			TimeZone: c.timezone,
		},
	}

	created, err := c.svc.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}

	c.log.Info("Calendar event created",
		"event_id", created.Id,
		"summary", req.Summary,
		"starts_at", req.Start.Format(time.RFC3339),
	)
	return created.Id, nil
}
