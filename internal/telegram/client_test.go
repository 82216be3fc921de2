package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DmitryZaika/granite-webhooks/internal/leads/ports"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
)

type testTelegramConfig struct {
	baseURL string
}

func (c testTelegramConfig) GetTelegramAPIBaseURL() string  { return c.baseURL }
func (c testTelegramConfig) GetTelegramBotToken() string    { return "test-token" }
func (c testTelegramConfig) GetTelegramWebhookSecret() string { return "" }

type recordedCall struct {
	path string
	body map[string]any
}

func newRecordingServer(t *testing.T, calls *[]recordedCall) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		var body map[string]any
		if err := json.Unmarshal(data, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		*calls = append(*calls, recordedCall{path: r.URL.Path, body: body})
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":5,"chat":{"id":1001}}}`))
	}))
}

func TestSendMessage(t *testing.T) {
	var calls []recordedCall
	server := newRecordingServer(t, &calls)
	defer server.Close()

	client := NewClient(testTelegramConfig{baseURL: server.URL}, logger.New("development"))
	ref, err := client.SendMessage(context.Background(), 1001, "hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if ref.ChatID != 1001 || ref.MessageID != 5 {
		t.Errorf("ref = %+v", ref)
	}
	if len(calls) != 1 {
		t.Fatalf("made %d calls, want 1", len(calls))
	}
	if calls[0].path != "/bottest-token/sendMessage" {
		t.Errorf("path = %q", calls[0].path)
	}
	if calls[0].body["text"] != "hello" {
		t.Errorf("text = %v", calls[0].body["text"])
	}
}

func TestSendKeyboardMessageEncodesInlineKeyboard(t *testing.T) {
	var calls []recordedCall
	server := newRecordingServer(t, &calls)
	defer server.Close()

	client := NewClient(testTelegramConfig{baseURL: server.URL}, logger.New("development"))
	keyboard := [][]ports.Button{
		{
			{Text: "Worker Seven: 3", CallbackData: "assign:42:7"},
			{Text: "Worker Eight: 1", CallbackData: "assign:42:8"},
		},
	}
	if _, err := client.SendKeyboardMessage(context.Background(), 1001, "pick one", keyboard); err != nil {
		t.Fatalf("SendKeyboardMessage: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("made %d calls, want 1", len(calls))
	}
	markup, ok := calls[0].body["reply_markup"].(map[string]any)
	if !ok {
		t.Fatalf("reply_markup missing: %v", calls[0].body)
	}
	rows, ok := markup["inline_keyboard"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("inline_keyboard = %v", markup["inline_keyboard"])
	}
	row, ok := rows[0].([]any)
	if !ok || len(row) != 2 {
		t.Fatalf("keyboard row = %v", rows[0])
	}
	button := row[0].(map[string]any)
	if button["callback_data"] != "assign:42:7" {
		t.Errorf("callback_data = %v", button["callback_data"])
	}
}

func TestCallReportsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	client := NewClient(testTelegramConfig{baseURL: server.URL}, logger.New("development"))
	_, err := client.SendMessage(context.Background(), 1, "hello")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("error = %v", err)
	}
}
