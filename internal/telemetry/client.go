package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DmitryZaika/granite-webhooks/platform/config"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
)

const requestTimeout = 30 * time.Second

// Client posts capture events to the PostHog ingestion endpoint. A nil
// client is valid and drops everything, which is how telemetry stays out of
// the way when it is not configured.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	log      *logger.Logger
}

// NewClient creates a PostHog client, or nil when telemetry is disabled.
func NewClient(cfg config.TelemetryConfig, log *logger.Logger) *Client {
	if !cfg.IsTelemetryEnabled() {
		return nil
	}
	return &Client{
		endpoint: cfg.GetPostHogEndpoint(),
		apiKey:   cfg.GetPostHogAPIKey(),
		http:     &http.Client{Timeout: requestTimeout},
		log:      log,
	}
}

// CaptureHTTPException reports a failed HTTP request.
func (c *Client) CaptureHTTPException(ctx context.Context, value string, status int, path string) {
	if c == nil {
		return
	}
	c.capture(ctx, NewHTTPException(c.apiKey, value, status, path))
}

// CaptureGeneralException reports a non-HTTP failure.
func (c *Client) CaptureGeneralException(ctx context.Context, value, title string) {
	if c == nil {
		return
	}
	c.capture(ctx, NewGeneralException(c.apiKey, value, title))
}

// capture sends one event. Failures are logged and swallowed.
func (c *Client) capture(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		c.log.Warn("telemetry_marshal_failed", "error", err.Error())
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
	if err != nil {
		c.log.Warn("telemetry_request_failed", "error", err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("telemetry_request_failed", "error", err.Error())
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		c.log.Warn("telemetry_rejected", "status", resp.StatusCode,
			"body", fmt.Sprintf("%.200s", string(data)))
	}
}
