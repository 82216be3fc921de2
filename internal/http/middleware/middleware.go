// Package middleware provides gin middleware shared by the HTTP-facing
// modules: webhook authentication and failure event publication.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DmitryZaika/granite-webhooks/internal/events"
)

const (
	// MarketingKeyHeader carries the shared key for the lead intake endpoints.
	MarketingKeyHeader = "X-Api-Key"
	// TelegramSecretHeader is set by the Bot API on every webhook delivery
	// when the webhook was registered with a secret token.
	TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// APIKeyAuth validates the marketing integration key header using a
// constant-time comparison.
func APIKeyAuth(expectedKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(MarketingKeyHeader)
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expectedKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		c.Next()
	}
}

// FailureEvents publishes an HTTPRequestFailed event for every response that
// leaves with an error status. The event carries the handler's recorded error
// when one exists, the status text otherwise.
func FailureEvents(bus events.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}

		message := http.StatusText(status)
		if last := c.Errors.Last(); last != nil {
			message = last.Error()
		}

		bus.Publish(c.Request.Context(), events.HTTPRequestFailed{
			BaseEvent: events.NewBaseEvent(),
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			Status:    status,
			Message:   message,
		})
	}
}

// TelegramSecretAuth validates the Bot API secret token header. When no
// secret is configured the webhook is left open, matching a bot registered
// without one.
func TelegramSecretAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(TelegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret token"})
			return
		}

		c.Next()
	}
}
