// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"github.com/DmitryZaika/granite-webhooks/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadReceived is published whenever an intake endpoint accepts a lead
// submission, before any dedup decision is made.
type LeadReceived struct {
	BaseEvent
	CompanyID int64  `json:"companyId"`
	Source    string `json:"source"` // "wordpress", "facebook", "internal"
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

func (e LeadReceived) EventName() string { return "leads.lead.received" }

// LeadProcessed is published after the orchestrator finishes routing a lead.
type LeadProcessed struct {
	BaseEvent
	CompanyID  int64  `json:"companyId"`
	CustomerID int64  `json:"customerId"`
	DealID     int64  `json:"dealId"`
	Flow       string `json:"flow"` // "new_lead", "repeat_no_deal", "repeat_with_deal"
	Source     string `json:"source"`
}

func (e LeadProcessed) EventName() string { return "leads.lead.processed" }

// LeadClaimed is published when a salesperson claims an unassigned deal via
// the Telegram inline keyboard.
type LeadClaimed struct {
	BaseEvent
	DealID     int64  `json:"dealId"`
	UserID     int64  `json:"userId"`
	ClaimedBy  string `json:"claimedBy"`
	TelegramID int64  `json:"telegramId"`
}

func (e LeadClaimed) EventName() string { return "leads.lead.claimed" }

// NotificationFailed is published when a notification delivery attempt fails
// during lead fan-out. Telemetry subscribes to this for failure tracking.
type NotificationFailed struct {
	BaseEvent
	Channel   string `json:"channel"` // "telegram" or "email"
	Recipient string `json:"recipient"`
	DealID    int64  `json:"dealId,omitempty"`
	Reason    string `json:"reason"`
}

func (e NotificationFailed) EventName() string { return "leads.notification.failed" }

// =============================================================================
// HTTP Events
// =============================================================================

// HTTPRequestFailed is published for every response that left the server with
// an error status. Telemetry subscribes to this for exception capture.
type HTTPRequestFailed struct {
	BaseEvent
	Method  string `json:"method"`
	Path    string `json:"path"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e HTTPRequestFailed) EventName() string { return "http.request.failed" }

// =============================================================================
// Inbound Email Domain Events
// =============================================================================

// InboundEmailReceived is published when an SES delivery notification is
// correlated and stored.
type InboundEmailReceived struct {
	BaseEvent
	EmailID   int64  `json:"emailId"`
	From      string `json:"from"`
	Subject   string `json:"subject"`
	MessageID string `json:"messageId"`
	InReplyTo string `json:"inReplyTo,omitempty"`
}

func (e InboundEmailReceived) EventName() string { return "email.inbound.received" }

// EmailOpened is published when an SES read receipt (open event) arrives for
// a tracked outbound email.
type EmailOpened struct {
	BaseEvent
	EmailID   int64  `json:"emailId"`
	Recipient string `json:"recipient"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

func (e EmailOpened) EventName() string { return "email.outbound.opened" }
