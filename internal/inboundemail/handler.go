package inboundemail

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DmitryZaika/granite-webhooks/platform/apperr"
	"github.com/DmitryZaika/granite-webhooks/platform/httpkit"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
)

// SesEvent is the subset of an SES engagement event the read-receipt webhook
// consumes.
type SesEvent struct {
	Detail SesDetail `json:"detail" binding:"required"`
}

// SesDetail carries the mail identity and the open metadata.
type SesDetail struct {
	Mail SesMail `json:"mail"`
	Open SesOpen `json:"open"`
}

// SesMail identifies the tracked outbound message.
type SesMail struct {
	MessageID string `json:"messageId"`
}

// SesOpen describes who opened the message.
type SesOpen struct {
	UserAgent string `json:"userAgent"`
	IPAddress string `json:"ipAddress"`
}

// S3Event is the subset of an S3 object-created event the receive webhook
// consumes.
type S3Event struct {
	Detail S3Detail `json:"detail" binding:"required"`
}

// S3Detail locates the stored raw message.
type S3Detail struct {
	Bucket S3Bucket `json:"bucket"`
	Object S3Object `json:"object"`
}

// S3Bucket names the bucket the message landed in.
type S3Bucket struct {
	Name string `json:"name"`
}

// S3Object names the stored message object.
type S3Object struct {
	Key string `json:"key"`
}

// Handler handles SES webhook HTTP requests.
type Handler struct {
	service *Service
	log     *logger.Logger
}

// NewHandler creates a new SES webhook handler.
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// HandleReadReceipt records an email open event.
// POST /ses/read-receipt
func (h *Handler) HandleReadReceipt(c *gin.Context) {
	var event SesEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid event").WithDetails(err.Error()))
		return
	}

	err := h.service.RecordReadReceipt(c.Request.Context(),
		event.Detail.Mail.MessageID, event.Detail.Open.UserAgent, event.Detail.Open.IPAddress)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	c.String(http.StatusOK, "ok")
}

// HandleReceived processes a delivery notification for an inbound reply.
// Messages without a reply header are acknowledged with 202 so the pipeline
// does not retry them.
// POST /ses/received
func (h *Handler) HandleReceived(c *gin.Context) {
	var event S3Event
	if err := c.ShouldBindJSON(&event); err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid event").WithDetails(err.Error()))
		return
	}

	err := h.service.ProcessReceivedEvent(c.Request.Context(),
		event.Detail.Bucket.Name, event.Detail.Object.Key)
	if errors.Is(err, ErrNoReplyHeader) {
		c.String(http.StatusAccepted, "accepted")
		return
	}
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	c.String(http.StatusOK, "ok")
}
