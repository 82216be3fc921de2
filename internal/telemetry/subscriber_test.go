package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DmitryZaika/granite-webhooks/internal/events"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
)

func TestSubscriberCapturesHTTPFailures(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &captured); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	defer bus.Close()
	Subscribe(bus, NewClient(testTelemetryConfig{endpoint: server.URL}, log))

	err := bus.PublishSync(context.Background(), events.HTTPRequestFailed{
		BaseEvent: events.NewBaseEvent(),
		Method:    http.MethodPost,
		Path:      "/wordpress-contact-form/1",
		Status:    http.StatusInternalServerError,
		Message:   "database_failed",
	})
	if err != nil {
		t.Fatalf("PublishSync: %v", err)
	}

	if captured["event"] != "$exception" {
		t.Fatalf("event = %v, want $exception", captured["event"])
	}
	properties, ok := captured["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties missing: %v", captured)
	}
	if properties["status"] != float64(http.StatusInternalServerError) {
		t.Errorf("status = %v, want 500", properties["status"])
	}
	if properties["path"] != "/wordpress-contact-form/1" {
		t.Errorf("path = %v", properties["path"])
	}
	list, ok := properties["$exception_list"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("$exception_list = %v, want one entry", properties["$exception_list"])
	}
	item := list[0].(map[string]any)
	if item["type"] != "HTTPError" {
		t.Errorf("exception type = %v, want HTTPError", item["type"])
	}
}

func TestSubscriberIsSafeWithNilClient(t *testing.T) {
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	defer bus.Close()

	Subscribe(bus, nil)

	if err := bus.PublishSync(context.Background(), events.HTTPRequestFailed{
		BaseEvent: events.NewBaseEvent(),
		Status:    http.StatusBadGateway,
	}); err != nil {
		t.Fatalf("PublishSync: %v", err)
	}
}
