package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/DmitryZaika/granite-webhooks/internal/events"
	"github.com/DmitryZaika/granite-webhooks/platform/apperr"
)

const maxConcurrentSends = 8

// notificationOutcome is the per-recipient result of one fan-out unit. The
// claim edit later on works off the callback query's own message reference,
// so only the recipient and the delivery error are kept here.
type notificationOutcome struct {
	recipientID int64
	err         error
}

// sendManagerClaimPrompt fans out a claim prompt with the candidate keyboard
// to every manager chat in the company. The roster lookup and an empty
// manager list fail the request. Individual delivery failures are logged and
// reported on the bus; the request only fails when not a single prompt went
// out.
func (s *Service) sendManagerClaimPrompt(ctx context.Context, companyID, customerID int64, message string) error {
	users, err := s.store.ListSalesUsers(ctx, companyID)
	if err != nil {
		s.log.DatabaseError("list_sales_users", err)
		return apperr.Storage("list_sales_users", err)
	}

	r := splitRoster(users)
	if len(r.managerChatIDs) == 0 {
		s.log.Error("no_sales_manager_found", "company_id", companyID)
		return apperr.Internal(apperr.TokenDatabaseFailed)
	}

	fullMessage := message + ". Choose a salesperson."
	keyboard := claimKeyboard(customerID, r.candidates)

	outcomes := make([]notificationOutcome, len(r.managerChatIDs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentSends)
	for i, chatID := range r.managerChatIDs {
		i, chatID := i, chatID
		group.Go(func() error {
			_, err := s.messenger.SendKeyboardMessage(groupCtx, chatID, fullMessage, keyboard)
			outcomes[i] = notificationOutcome{recipientID: chatID, err: err}
			return nil
		})
	}
	_ = group.Wait()

	delivered := 0
	for _, outcome := range outcomes {
		if outcome.err != nil {
			s.reportSendFailure(ctx, outcome.recipientID, outcome.err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return apperr.Internal(apperr.TokenTelegramSendFailed)
	}

	return nil
}

// notifyManagersOfDuplicate sends the plain duplicate advisory to every
// manager chat. This dispatch is best effort throughout: any failure is
// logged and swallowed.
func (s *Service) notifyManagersOfDuplicate(ctx context.Context, companyID int64, leadName string, assignedUserID int64, leadBody string) {
	users, err := s.store.ListSalesUsers(ctx, companyID)
	if err != nil {
		s.log.DatabaseError("list_sales_users", err)
		return
	}

	r := splitRoster(users)
	if len(r.managerChatIDs) == 0 {
		s.log.Error("no_sales_manager_found", "company_id", companyID)
		return
	}

	message := fmt.Sprintf("Repeat lead %s with for sales rep %s\n\n%s",
		leadName, assignedUserName(users, assignedUserID), leadBody)
	fullMessage := message + ". Choose a salesperson."

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentSends)
	for _, chatID := range r.managerChatIDs {
		chatID := chatID
		group.Go(func() error {
			if _, err := s.messenger.SendMessage(groupCtx, chatID, fullMessage); err != nil {
				s.reportSendFailure(ctx, chatID, err)
			}
			return nil
		})
	}
	_ = group.Wait()
}

func (s *Service) reportSendFailure(ctx context.Context, chatID int64, err error) {
	s.log.NotifyError("telegram", chatID, err)
	s.bus.Publish(ctx, events.NotificationFailed{
		BaseEvent: events.NewBaseEvent(),
		Channel:   "telegram",
		Recipient: fmt.Sprintf("%d", chatID),
		Reason:    err.Error(),
	})
}
