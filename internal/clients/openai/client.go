package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/GOGOSCHNO/assistantai1/internal/pkg/httpx"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

// Client wraps the OpenAI Assistants API (threads, runs, tool outputs).
type Client interface {
	CreateThread(ctx context.Context) (string, error)
	AddUserMessage(ctx context.Context, threadID string, content string) error
	CreateRun(ctx context.Context, threadID string) (string, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (*Run, error)
	SubmitToolOutputs(ctx context.Context, threadID string, runID string, outputs []ToolOutput) error
	CancelRun(ctx context.Context, threadID string, runID string) error
	ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error)
}

// Run statuses as reported by the Assistants API.
const (
	RunStatusQueued         = "queued"
	RunStatusInProgress     = "in_progress"
	RunStatusRequiresAction = "requires_action"
	RunStatusCompleted      = "completed"
	RunStatusFailed         = "failed"
	RunStatusCancelled      = "cancelled"
	RunStatusCancelling     = "cancelling"
	RunStatusExpired        = "expired"
)

type Run struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	RequiredAction *RequiredAction `json:"required_action,omitempty"`
	LastError      *RunError       `json:"last_error,omitempty"`
}

type RunError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type RequiredAction struct {
	Type              string             `json:"type"`
	SubmitToolOutputs *SubmitToolOutputs `json:"submit_tool_outputs,omitempty"`
}

type SubmitToolOutputs struct {
	ToolCalls []ToolCall `json:"tool_calls"`
}

type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

type ThreadMessage struct {
	ID      string           `json:"id"`
	Role    string           `json:"role"`
	Content []MessageContent `json:"content"`
}

type MessageContent struct {
	Type string       `json:"type"`
	Text *MessageText `json:"text,omitempty"`
}

type MessageText struct {
	Value string `json:"value"`
}

type client struct {
	log         *logger.Logger
	baseURL     string
	apiKey      string
	assistantID string
	httpClient  *http.Client
	maxRetries  int
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	assistantID := strings.TrimSpace(os.Getenv("OPENAI_ASSISTANT_ID"))
	if assistantID == "" {
		return nil, fmt.Errorf("missing OPENAI_ASSISTANT_ID")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeoutSec := 60
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 4
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	return &client{
		log:         log.With("client", "OpenAIClient"),
		baseURL:     baseURL,
		apiKey:      apiKey,
		assistantID: assistantID,
		httpClient:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries:  maxRetries,
	}, nil
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

type threadResponse struct {
	ID string `json:"id"`
}

func (c *client) CreateThread(ctx context.Context) (string, error) {
	var resp threadResponse
	if err := c.do(ctx, "POST", "/v1/threads", map[string]any{}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return "", fmt.Errorf("openai: thread response missing id")
	}
	return resp.ID, nil
}

type createMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *client) AddUserMessage(ctx context.Context, threadID string, content string) error {
	if strings.TrimSpace(threadID) == "" {
		return fmt.Errorf("openai: thread id required")
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("openai: message content required")
	}
	req := createMessageRequest{Role: "user", Content: content}
	return c.do(ctx, "POST", "/v1/threads/"+threadID+"/messages", req, nil)
}

type createRunRequest struct {
	AssistantID string `json:"assistant_id"`
}

func (c *client) CreateRun(ctx context.Context, threadID string) (string, error) {
	if strings.TrimSpace(threadID) == "" {
		return "", fmt.Errorf("openai: thread id required")
	}
	var resp Run
	req := createRunRequest{AssistantID: c.assistantID}
	if err := c.do(ctx, "POST", "/v1/threads/"+threadID+"/runs", req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return "", fmt.Errorf("openai: run response missing id")
	}
	return resp.ID, nil
}

func (c *client) RetrieveRun(ctx context.Context, threadID string, runID string) (*Run, error) {
	var resp Run
	if err := c.do(ctx, "GET", "/v1/threads/"+threadID+"/runs/"+runID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type submitToolOutputsRequest struct {
	ToolOutputs []ToolOutput `json:"tool_outputs"`
}

func (c *client) SubmitToolOutputs(ctx context.Context, threadID string, runID string, outputs []ToolOutput) error {
	if len(outputs) == 0 {
		return nil
	}
	req := submitToolOutputsRequest{ToolOutputs: outputs}
	return c.do(ctx, "POST", "/v1/threads/"+threadID+"/runs/"+runID+"/submit_tool_outputs", req, nil)
}

func (c *client) CancelRun(ctx context.Context, threadID string, runID string) error {
	return c.do(ctx, "POST", "/v1/threads/"+threadID+"/runs/"+runID+"/cancel", map[string]any{}, nil)
}

type listMessagesResponse struct {
	Data []ThreadMessage `json:"data"`
}

func (c *client) ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	var resp listMessagesResponse
	if err := c.do(ctx, "GET", "/v1/threads/"+threadID+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
