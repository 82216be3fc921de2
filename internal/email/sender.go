// Package email delivers transactional mail over SMTP.
package email

import (
	"context"

	"github.com/DmitryZaika/granite-webhooks/platform/logger"
)

// Attachment is a file attached to an outbound email.
type Attachment struct {
	FileName string
	Content  []byte
}

// Sender delivers the transactional emails the lead flows need.
type Sender interface {
	// SendRegistrationInviteEmail asks a sales rep without a linked chat
	// account to register so they can receive lead notifications.
	SendRegistrationInviteEmail(ctx context.Context, toEmail string) error
}

// NopSender is used when outbound email is disabled. It logs what it would
// have sent and succeeds.
type NopSender struct {
	log *logger.Logger
}

// NewNopSender creates a sender that drops all mail.
func NewNopSender(log *logger.Logger) *NopSender {
	return &NopSender{log: log}
}

func (s *NopSender) SendRegistrationInviteEmail(_ context.Context, toEmail string) error {
	s.log.Info("email disabled, dropping registration invite", "to", toEmail)
	return nil
}
