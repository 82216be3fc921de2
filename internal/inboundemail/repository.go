package inboundemail

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PriorEmail is the thread anchor an inbound reply correlates to.
type PriorEmail struct {
	ThreadID       *string
	ReceiverUserID *int64
}

// Repository provides data access for stored emails and read receipts.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new inbound email repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateEmailRead records one open event for a tracked outbound email.
func (r *Repository) CreateEmailRead(ctx context.Context, messageID, userAgent, ipAddress string) error {
	query := `INSERT INTO email_reads (message_id, user_agent, ip_address) VALUES ($1, $2, $3)`
	if _, err := r.db.Exec(ctx, query, messageID, userAgent, ipAddress); err != nil {
		return fmt.Errorf("create email read: %w", err)
	}
	return nil
}

// GetPriorEmail looks up the stored email an inbound reply refers to, or nil
// when the thread is unknown.
func (r *Repository) GetPriorEmail(ctx context.Context, messageID string) (*PriorEmail, error) {
	query := `SELECT thread_id, receiver_user_id FROM emails WHERE message_id = $1`

	var prior PriorEmail
	err := r.db.QueryRow(ctx, query, messageID).Scan(&prior.ThreadID, &prior.ReceiverUserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prior email: %w", err)
	}
	return &prior, nil
}

// CreateEmailWithAttachments stores the reply in its thread together with its
// archived attachments, atomically.
func (r *Repository) CreateEmailWithAttachments(ctx context.Context, email *ParsedEmail, prior *PriorEmail, attachments []UploadedAttachment) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	insertEmail := `
		INSERT INTO emails (subject, body, thread_id, receiver_user_id, sender_email, receiver_email, message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var emailID int64
	err = tx.QueryRow(ctx, insertEmail,
		email.Subject, email.Body, prior.ThreadID, prior.ReceiverUserID,
		email.SenderEmail, email.ReceiverEmail, email.MessageID,
	).Scan(&emailID)
	if err != nil {
		return 0, fmt.Errorf("create email: %w", err)
	}

	insertAttachment := `
		INSERT INTO email_attachments (email_id, content_type, content_subtype, filename, url)
		VALUES ($1, $2, $3, $4, $5)`
	for _, attachment := range attachments {
		_, err := tx.Exec(ctx, insertAttachment,
			emailID, attachment.ContentType, attachment.ContentSubtype, attachment.Filename, attachment.URL)
		if err != nil {
			return 0, fmt.Errorf("create email attachment: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return emailID, nil
}
