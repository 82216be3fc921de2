// Package ports defines the interfaces the leads context needs from other
// modules. Implementations live elsewhere (telegram, email); tests substitute
// recording fakes.
package ports

import "context"

// Button is one inline keyboard button with an opaque callback payload.
type Button struct {
	Text         string
	CallbackData string
}

// MessageRef identifies a sent chat message so it can be edited later, e.g.
// to append who claimed the lead.
type MessageRef struct {
	ChatID    int64
	MessageID int64
}

// Messenger is the outbound chat channel used for claim prompts, duplicate
// advisories, and rep notifications.
type Messenger interface {
	// SendMessage sends a plain text message to a chat.
	SendMessage(ctx context.Context, chatID int64, text string) (MessageRef, error)
	// SendKeyboardMessage sends a text message with an inline keyboard
	// attached. Each inner slice is one keyboard row.
	SendKeyboardMessage(ctx context.Context, chatID int64, text string, keyboard [][]Button) (MessageRef, error)
	// EditMessageText replaces the text of a previously sent message.
	EditMessageText(ctx context.Context, ref MessageRef, text string) error
}

// EmailSender delivers the registration-invite fallback for sales reps who
// have no linked chat identity yet.
type EmailSender interface {
	SendRegistrationInviteEmail(ctx context.Context, toEmail string) error
}
