package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

func testLogger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("init logger: %v", err)
	}
	return log
}

func messagePayload(tb testing.TB, raw string) webhookPayload {
	tb.Helper()
	var p webhookPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		tb.Fatalf("unmarshal payload: %v", err)
	}
	return p
}

func TestExtractInboundEvent(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		wantOK   bool
		wantText string
	}{
		{
			name: "text message",
			raw: `{"entry":[{"changes":[{"field":"messages","value":{
				"metadata":{"phone_number_id":"123"},
				"messages":[{"id":"wamid.A1","from":"573001112233","type":"text","text":{"body":" Hola "}}]
			}}]}]}`,
			wantOK:   true,
			wantText: "Hola",
		},
		{
			name: "image message",
			raw: `{"entry":[{"changes":[{"field":"messages","value":{
				"messages":[{"id":"wamid.A2","from":"573001112233","type":"image"}]
			}}]}]}`,
			wantOK:   true,
			wantText: "Cliente envió una imagen.",
		},
		{
			name: "audio message",
			raw: `{"entry":[{"changes":[{"field":"messages","value":{
				"messages":[{"id":"wamid.A3","from":"573001112233","type":"audio"}]
			}}]}]}`,
			wantOK:   true,
			wantText: "Cliente envió un audio.",
		},
		{
			name: "sticker message",
			raw: `{"entry":[{"changes":[{"field":"messages","value":{
				"messages":[{"id":"wamid.A4","from":"573001112233","type":"sticker"}]
			}}]}]}`,
			wantOK:   true,
			wantText: "Cliente envió un tipo de mensaje no soportado.",
		},
		{
			name:   "status update",
			raw:    `{"entry":[{"changes":[{"field":"messages","value":{"statuses":[{"id":"x"}]}}]}]}`,
			wantOK: false,
		},
		{
			name:   "wrong field",
			raw:    `{"entry":[{"changes":[{"field":"account_update","value":{}}]}]}`,
			wantOK: false,
		},
		{
			name:   "empty payload",
			raw:    `{}`,
			wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok := extractInboundEvent(messagePayload(t, tc.raw))
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if ev.Text != tc.wantText {
				t.Fatalf("text = %q, want %q", ev.Text, tc.wantText)
			}
			if ev.ConversationID != "573001112233" {
				t.Fatalf("conversation id = %q", ev.ConversationID)
			}
			if ev.EventID == "" {
				t.Fatalf("event id is empty")
			}
		})
	}
}

func verifyRouter(h *WebhookHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whatsapp", h.Verify)
	r.POST("/whatsapp", h.Receive)
	return r
}

func TestVerify(t *testing.T) {
	h := NewWebhookHandler(testLogger(t), nil, "secreto", time.Minute)
	r := verifyRouter(h)

	cases := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "valid subscription",
			query:      "hub.mode=subscribe&hub.verify_token=secreto&hub.challenge=12345",
			wantStatus: http.StatusOK,
			wantBody:   "12345",
		},
		{
			name:       "wrong token",
			query:      "hub.mode=subscribe&hub.verify_token=otro&hub.challenge=12345",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "wrong mode",
			query:      "hub.mode=unsubscribe&hub.verify_token=secreto&hub.challenge=12345",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "missing token",
			query:      "hub.mode=subscribe&hub.challenge=12345",
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/whatsapp?"+tc.query, nil)
			r.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if tc.wantBody != "" && w.Body.String() != tc.wantBody {
				t.Fatalf("body = %q, want %q", w.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestReceiveAcksDropPaths(t *testing.T) {
	h := NewWebhookHandler(testLogger(t), nil, "secreto", time.Minute)
	r := verifyRouter(h)

	cases := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"entry":`},
		{name: "status update", body: `{"entry":[{"changes":[{"field":"messages","value":{"statuses":[{"id":"x"}]}}]}]}`},
		{name: "empty text", body: `{"entry":[{"changes":[{"field":"messages","value":{
			"messages":[{"id":"wamid.B1","from":"573001112233","type":"text","text":{"body":"  "}}]
		}}]}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 ack", w.Code)
			}
		})
	}
}
