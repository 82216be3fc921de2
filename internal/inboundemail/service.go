package inboundemail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/DmitryZaika/granite-webhooks/internal/adapters/storage"
	"github.com/DmitryZaika/granite-webhooks/internal/events"
	"github.com/DmitryZaika/granite-webhooks/platform/apperr"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
)

// ErrNoReplyHeader marks an inbound message without an In-Reply-To header.
// Such messages are acknowledged and dropped, not stored.
var ErrNoReplyHeader = errors.New("message has no reply header")

const maxConcurrentUploads = 4

// EmailStore is the persistence surface the inbound pipeline depends on.
type EmailStore interface {
	CreateEmailRead(ctx context.Context, messageID, userAgent, ipAddress string) error
	GetPriorEmail(ctx context.Context, messageID string) (*PriorEmail, error)
	CreateEmailWithAttachments(ctx context.Context, email *ParsedEmail, prior *PriorEmail, attachments []UploadedAttachment) (int64, error)
}

// Service correlates inbound replies to stored threads and records read
// receipts.
type Service struct {
	store             EmailStore
	objects           storage.ObjectStore
	attachmentsBucket string
	bus               events.Bus
	log               *logger.Logger
}

// NewService creates the inbound email service.
func NewService(store EmailStore, objects storage.ObjectStore, attachmentsBucket string, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:             store,
		objects:           objects,
		attachmentsBucket: attachmentsBucket,
		bus:               bus,
		log:               log,
	}
}

// RecordReadReceipt stores one open event for a tracked outbound email.
func (s *Service) RecordReadReceipt(ctx context.Context, messageID, userAgent, ipAddress string) error {
	if err := s.store.CreateEmailRead(ctx, messageID, userAgent, ipAddress); err != nil {
		s.log.DatabaseError("create_email_read", err)
		return apperr.Wrap(apperr.KindBadRequest, "failed to record read receipt", err)
	}

	s.bus.Publish(ctx, events.EmailOpened{
		BaseEvent: events.NewBaseEvent(),
		Recipient: messageID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	return nil
}

// ProcessReceivedEvent handles one delivery notification: fetch the raw
// message from object storage, parse it, correlate it to its thread, archive
// attachments, and store the reply.
func (s *Service) ProcessReceivedEvent(ctx context.Context, bucket, key string) error {
	obj, err := s.objects.DownloadFile(ctx, bucket, key)
	if err != nil {
		s.log.Error("inbound_email_read_failed", "bucket", bucket, "key", key, "error", err.Error())
		return apperr.Wrap(apperr.KindInternal, "Unable to read email content from S3", err)
	}
	defer func() {
		_ = obj.Close()
	}()

	raw, err := io.ReadAll(obj)
	if err != nil {
		s.log.Error("inbound_email_read_failed", "bucket", bucket, "key", key, "error", err.Error())
		return apperr.Wrap(apperr.KindInternal, "Unable to read email content from S3", err)
	}

	parsed, attachments, err := ParseEmail(raw)
	if err != nil {
		s.log.Error("inbound_email_parse_failed", "bucket", bucket, "key", key, "error", err.Error())
		return apperr.Wrap(apperr.KindInternal, "Unable to parse email content from S3", err)
	}

	replyID := parsed.ReplyMessageID()
	if replyID == "" {
		s.log.Warn("inbound_email_without_reply_header", "bucket", bucket, "key", key)
		return ErrNoReplyHeader
	}

	prior, err := s.store.GetPriorEmail(ctx, replyID)
	if err != nil {
		s.log.DatabaseError("get_prior_email", err)
		return apperr.Wrap(apperr.KindInternal, "Unable to retrieve prior email", err)
	}
	if prior == nil {
		s.log.Warn("inbound_email_without_prior", "reply_message_id", replyID)
		return apperr.BadRequest("No prior email found")
	}

	uploaded, err := s.uploadAttachments(ctx, attachments)
	if err != nil {
		s.log.Error("attachment_upload_failed", "bucket", bucket, "key", key, "error", err.Error())
		return apperr.Wrap(apperr.KindInternal, "Failed to upload attachments", err)
	}

	emailID, err := s.store.CreateEmailWithAttachments(ctx, parsed, prior, uploaded)
	if err != nil {
		s.log.DatabaseError("create_email_with_attachments", err)
		return apperr.Wrap(apperr.KindInternal, "Failed to insert email into the database", err)
	}

	s.bus.Publish(ctx, events.InboundEmailReceived{
		BaseEvent: events.NewBaseEvent(),
		EmailID:   emailID,
		From:      parsed.SenderEmail,
		Subject:   derefOrEmpty(parsed.Subject),
		MessageID: parsed.MessageID,
		InReplyTo: parsed.InReplyTo,
	})
	return nil
}

// uploadAttachments archives every attachment to object storage concurrently
// and returns their stored locators in input order.
func (s *Service) uploadAttachments(ctx context.Context, attachments []Attachment) ([]UploadedAttachment, error) {
	uploaded := make([]UploadedAttachment, len(attachments))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentUploads)
	for i, attachment := range attachments {
		i, attachment := i, attachment
		group.Go(func() error {
			contentType := attachment.ContentType
			if attachment.ContentSubtype != nil {
				contentType = fmt.Sprintf("%s/%s", attachment.ContentType, *attachment.ContentSubtype)
			}
			fileKey, err := s.objects.UploadFile(groupCtx, s.attachmentsBucket, "",
				attachment.Filename, contentType,
				bytes.NewReader(attachment.Data), int64(len(attachment.Data)))
			if err != nil {
				return err
			}
			uploaded[i] = UploadedAttachment{
				ContentType:    attachment.ContentType,
				ContentSubtype: attachment.ContentSubtype,
				Filename:       attachment.Filename,
				URL:            storage.ObjectURL(s.attachmentsBucket, fileKey),
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return uploaded, nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
