package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/GOGOSCHNO/assistantai1/internal/pkg/ctxutil"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/envutil"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/httpx"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

// Client sends WhatsApp messages through the Twilio Messages API. It is the
// alternative to the Meta Cloud API transport, for deployments that already
// route their WhatsApp number through Twilio.
type Client interface {
	SendWhatsAppText(ctx context.Context, to string, body string) (*Message, error)
	SendWhatsAppMedia(ctx context.Context, to string, mediaURL string) (*Message, error)
}

type Config struct {
	AccountSID   string
	AuthToken    string
	APIKey       string
	APIKeySecret string
	BaseURL      string
	From         string
	Timeout      time.Duration
	MaxRetries   int
}

func ConfigFromEnv() Config {
	return Config{
		AccountSID:   strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID")),
		AuthToken:    strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
		APIKey:       strings.TrimSpace(os.Getenv("TWILIO_API_KEY")),
		APIKeySecret: strings.TrimSpace(os.Getenv("TWILIO_API_KEY_SECRET")),
		BaseURL:      strings.TrimSpace(os.Getenv("TWILIO_BASE_URL")),
		From:         strings.TrimSpace(os.Getenv("TWILIO_WHATSAPP_FROM")),
		Timeout:      time.Duration(envutil.Int("TWILIO_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxRetries:   envutil.Int("TWILIO_MAX_RETRIES", 4),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	if cfg.AccountSID == "" {
		return nil, fmt.Errorf("missing TWILIO_ACCOUNT_SID")
	}
	if cfg.APIKey != "" {
		if cfg.APIKeySecret == "" {
			return nil, fmt.Errorf("missing TWILIO_API_KEY_SECRET (required when TWILIO_API_KEY is set)")
		}
	} else if cfg.AuthToken == "" {
		return nil, fmt.Errorf("missing TWILIO_AUTH_TOKEN (or provide TWILIO_API_KEY + TWILIO_API_KEY_SECRET)")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("missing TWILIO_WHATSAPP_FROM")
	}

	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.twilio.com/2010-04-01"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}

	return &client{
		log:        log.With("client", "TwilioClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

type Message struct {
	SID          string  `json:"sid,omitempty"`
	To           string  `json:"to,omitempty"`
	From         string  `json:"from,omitempty"`
	Body         string  `json:"body,omitempty"`
	Status       string  `json:"status,omitempty"`
	ErrorCode    *int    `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// whatsappAddr prefixes a bare number with the whatsapp: channel scheme.
func whatsappAddr(number string) string {
	number = strings.TrimSpace(number)
	if number == "" {
		return ""
	}
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	return "whatsapp:" + number
}

func (c *client) SendWhatsAppText(ctx context.Context, to string, body string) (*Message, error) {
	to = whatsappAddr(to)
	body = strings.TrimSpace(body)
	if to == "" {
		return nil, fmt.Errorf("twilio: To required")
	}
	if body == "" {
		return nil, fmt.Errorf("twilio: Body required")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", whatsappAddr(c.cfg.From))
	form.Set("Body", body)
	return c.postMessage(ctx, form)
}

func (c *client) SendWhatsAppMedia(ctx context.Context, to string, mediaURL string) (*Message, error) {
	to = whatsappAddr(to)
	mediaURL = strings.TrimSpace(mediaURL)
	if to == "" {
		return nil, fmt.Errorf("twilio: To required")
	}
	if mediaURL == "" {
		return nil, fmt.Errorf("twilio: MediaUrl required")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", whatsappAddr(c.cfg.From))
	form.Add("MediaUrl", mediaURL)
	return c.postMessage(ctx, form)
}

// ---------- HTTP / retry helpers ----------

type apiError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

type HTTPError struct {
	StatusCode int
	Body       string
	APIError   *apiError
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "twilio: <nil error>"
	}
	if e.APIError != nil && strings.TrimSpace(e.APIError.Message) != "" {
		if e.APIError.Code != 0 {
			return fmt.Sprintf("twilio http %d: %s (code=%d)", e.StatusCode, e.APIError.Message, e.APIError.Code)
		}
		return fmt.Sprintf("twilio http %d: %s", e.StatusCode, e.APIError.Message)
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 4000 {
		msg = msg[:4000] + "..."
	}
	return fmt.Sprintf("twilio http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) basicAuth() (user, pass string) {
	if c.cfg.APIKey != "" {
		return c.cfg.APIKey, c.cfg.APIKeySecret
	}
	return c.cfg.AccountSID, c.cfg.AuthToken
}

func (c *client) postMessage(ctx context.Context, form url.Values) (*Message, error) {
	backoff := 1 * time.Second
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.cfg.BaseURL, c.cfg.AccountSID)

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		out, resp, err := c.postOnce(ctx, endpoint, form)
		if err == nil {
			return out, nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return nil, err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("Twilio request retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return nil, fmt.Errorf("unreachable retry loop")
}

func (c *client) postOnce(ctx context.Context, endpoint string, form url.Values) (*Message, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	u, p := c.basicAuth()
	req.SetBasicAuth(u, p)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resp, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && strings.TrimSpace(ae.Message) != "" {
			return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw), APIError: &ae}
		}
		return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out Message
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, resp, fmt.Errorf("twilio decode error: %w; raw=%s", err, string(raw))
		}
	}
	return &out, resp, nil
}
