package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/GOGOSCHNO/assistantai1/internal/pkg/ctxutil"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/envutil"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/httpx"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

// Client sends messages through the Meta WhatsApp Cloud API.
type Client interface {
	SendText(ctx context.Context, to string, body string) error
	SendImage(ctx context.Context, to string, link string) error
}

type Config struct {
	Token         string
	PhoneNumberID string
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int
}

func ConfigFromEnv() Config {
	return Config{
		Token:         strings.TrimSpace(os.Getenv("WHATSAPP_CLOUD_API_TOKEN")),
		PhoneNumberID: strings.TrimSpace(os.Getenv("WHATSAPP_PHONE_NUMBER_ID")),
		BaseURL:       strings.TrimSpace(os.Getenv("WHATSAPP_BASE_URL")),
		Timeout:       time.Duration(envutil.Int("WHATSAPP_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxRetries:    envutil.Int("WHATSAPP_MAX_RETRIES", 4),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("missing WHATSAPP_CLOUD_API_TOKEN")
	}
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("missing WHATSAPP_PHONE_NUMBER_ID")
	}

	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://graph.facebook.com/v16.0"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}

	return &client{
		log:        log.With("client", "WhatsAppClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

type textPayload struct {
	Body string `json:"body"`
}

type imagePayload struct {
	Link string `json:"link"`
}

type sendMessageRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type,omitempty"`
	Text             *textPayload  `json:"text,omitempty"`
	Image            *imagePayload `json:"image,omitempty"`
}

func (c *client) SendText(ctx context.Context, to string, body string) error {
	to = strings.TrimSpace(to)
	body = strings.TrimSpace(body)
	if to == "" {
		return fmt.Errorf("whatsapp: To required")
	}
	if body == "" {
		return fmt.Errorf("whatsapp: Body required")
	}
	return c.send(ctx, sendMessageRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Text:             &textPayload{Body: body},
	})
}

func (c *client) SendImage(ctx context.Context, to string, link string) error {
	to = strings.TrimSpace(to)
	link = strings.TrimSpace(link)
	if to == "" {
		return fmt.Errorf("whatsapp: To required")
	}
	if link == "" {
		return fmt.Errorf("whatsapp: image link required")
	}
	return c.send(ctx, sendMessageRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "image",
		Image:            &imagePayload{Link: link},
	})
}

// ---------- HTTP / retry helpers ----------

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type HTTPError struct {
	StatusCode int
	Body       string
	APIError   *apiError
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "whatsapp: <nil error>"
	}
	if e.APIError != nil && strings.TrimSpace(e.APIError.Error.Message) != "" {
		return fmt.Sprintf("whatsapp http %d: %s (code=%d)", e.StatusCode, e.APIError.Error.Message, e.APIError.Error.Code)
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 4000 {
		msg = msg[:4000] + "..."
	}
	return fmt.Sprintf("whatsapp http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) send(ctx context.Context, req sendMessageRequest) error {
	backoff := 1 * time.Second
	endpoint := fmt.Sprintf("%s/%s/messages", c.cfg.BaseURL, c.cfg.PhoneNumberID)

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, err := c.sendOnce(ctx, endpoint, req)
		if err == nil {
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("WhatsApp request retrying",
			"to", req.To,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (c *client) sendOnce(ctx context.Context, endpoint string, body sendMessageRequest) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), "POST", endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return resp, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && strings.TrimSpace(ae.Error.Message) != "" {
			return resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw), APIError: &ae}
		}
		return resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, nil
}
