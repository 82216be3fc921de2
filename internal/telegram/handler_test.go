package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	leadservice "github.com/DmitryZaika/granite-webhooks/internal/leads/service"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
)

type fakeClaimer struct {
	customerID int64
	userID     int64
	result     *leadservice.ClaimResult
	err        error
}

func (f *fakeClaimer) Claim(_ context.Context, customerID, userID int64) (*leadservice.ClaimResult, error) {
	f.customerID = customerID
	f.userID = userID
	return f.result, f.err
}

func newWebhookRig(t *testing.T, claimer *fakeClaimer) (*gin.Engine, *[]recordedCall, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	calls := &[]recordedCall{}
	server := newRecordingServer(t, calls)

	log := logger.New("development")
	client := NewClient(testTelegramConfig{baseURL: server.URL}, log)
	module := NewModule(client, claimer, log)

	engine := gin.New()
	engine.POST("/telegram/webhook", module.handler.HandleWebhook)
	return engine, calls, server.Close
}

func TestWebhookAssignCallback(t *testing.T) {
	chatID := int64(1007)
	claimer := &fakeClaimer{result: &leadservice.ClaimResult{
		CustomerID:     42,
		DealID:         9,
		UserName:       "Worker Seven",
		LeadURL:        "https://granite-manager.com/employee/deals/edit/9/project",
		TelegramChatID: &chatID,
	}}
	engine, calls, closeServer := newWebhookRig(t, claimer)
	defer closeServer()

	update := `{
		"update_id": 1,
		"callback_query": {
			"id": "cb-1",
			"from": {"id": 555, "first_name": "Boss"},
			"message": {"message_id": 77, "chat": {"id": 1001}},
			"data": "assign:42:7"
		}
	}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(update))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if claimer.customerID != 42 || claimer.userID != 7 {
		t.Errorf("claimed customer %d user %d, want 42 and 7", claimer.customerID, claimer.userID)
	}

	var answered, edited, confirmed bool
	for _, call := range *calls {
		switch {
		case strings.HasSuffix(call.path, "/answerCallbackQuery"):
			answered = true
			if call.body["callback_query_id"] != "cb-1" {
				t.Errorf("callback_query_id = %v", call.body["callback_query_id"])
			}
		case strings.HasSuffix(call.path, "/editMessageText"):
			edited = true
			if call.body["text"] != "Assigned to Worker Seven" {
				t.Errorf("edit text = %v", call.body["text"])
			}
		case strings.HasSuffix(call.path, "/sendMessage"):
			confirmed = true
			text, _ := call.body["text"].(string)
			if !strings.Contains(text, "/employee/deals/edit/9/project") {
				t.Errorf("confirmation = %q", text)
			}
		}
	}
	if !answered || !edited || !confirmed {
		t.Errorf("answered=%v edited=%v confirmed=%v, want all", answered, edited, confirmed)
	}
}

func TestWebhookIgnoresNonCallbackUpdates(t *testing.T) {
	claimer := &fakeClaimer{}
	engine, calls, closeServer := newWebhookRig(t, claimer)
	defer closeServer()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(`{"update_id": 2}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if claimer.customerID != 0 {
		t.Error("claimer invoked for a non-callback update")
	}
	if len(*calls) != 0 {
		t.Errorf("made %d API calls, want 0", len(*calls))
	}
}

func TestParseAssignCallback(t *testing.T) {
	customerID, userID, err := parseAssignCallback("assign:42:7")
	if err != nil {
		t.Fatalf("parseAssignCallback: %v", err)
	}
	if customerID != 42 || userID != 7 {
		t.Errorf("parsed %d/%d", customerID, userID)
	}

	for _, data := range []string{"", "assign:42", "other:1:2", "assign:x:7"} {
		if _, _, err := parseAssignCallback(data); err == nil {
			t.Errorf("parseAssignCallback(%q) succeeded", data)
		}
	}
}
