// Package service implements the lead routing orchestrator: dedup against
// existing customers, deal lookup, and notification dispatch.
package service

import (
	"context"
	"fmt"

	"github.com/DmitryZaika/granite-webhooks/internal/events"
	"github.com/DmitryZaika/granite-webhooks/internal/leads/ports"
	"github.com/DmitryZaika/granite-webhooks/internal/leads/repository"
	"github.com/DmitryZaika/granite-webhooks/internal/leads/transport"
	"github.com/DmitryZaika/granite-webhooks/platform/apperr"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
)

// Store is the persistence surface the orchestrator depends on.
type Store interface {
	transport.CustomerStore
	FindCustomerByEmailOrPhone(ctx context.Context, companyID int64, email, phone string) (*repository.Customer, error)
	FindOpenDeal(ctx context.Context, customerID int64) (*repository.Deal, error)
	CreateDeal(ctx context.Context, customerID int64, userID *int64) (int64, error)
	AssignDeal(ctx context.Context, dealID, userID int64) error
	AssignCustomerRep(ctx context.Context, customerID, userID int64) error
	ListSalesUsers(ctx context.Context, companyID int64) ([]repository.SalesUser, error)
	GetUserContact(ctx context.Context, userID int64) (*repository.UserContact, error)
}

// Processing flow labels carried on LeadProcessed events.
const (
	FlowNewLead        = "new_lead"
	FlowRepeatNoDeal   = "repeat_no_deal"
	FlowRepeatWithDeal = "repeat_with_deal"
)

const unknownName = "Unknown"

// Service orchestrates lead intake end to end.
type Service struct {
	store      Store
	messenger  ports.Messenger
	email      ports.EmailSender
	bus        events.Bus
	log        *logger.Logger
	appBaseURL string
}

// NewService creates the lead orchestrator.
func NewService(store Store, messenger ports.Messenger, email ports.EmailSender, bus events.Bus, log *logger.Logger, appBaseURL string) *Service {
	return &Service{
		store:      store,
		messenger:  messenger,
		email:      email,
		bus:        bus,
		log:        log,
		appBaseURL: appBaseURL,
	}
}

// ProcessLead routes one accepted submission. It dedups the contact against
// existing customers and either records a brand-new lead or escalates the
// repeat to the assigned rep and the managers. The returned error, if any, is
// an *apperr.Error ready for HTTP mapping.
func (s *Service) ProcessLead(ctx context.Context, companyID int64, form transport.LeadForm, source string) error {
	s.bus.Publish(ctx, events.LeadReceived{
		BaseEvent: events.NewBaseEvent(),
		CompanyID: companyID,
		Source:    source,
		Email:     form.ContactEmail(),
		Phone:     form.ContactPhone(),
	})

	existing, err := s.store.FindCustomerByEmailOrPhone(ctx, companyID, form.ContactEmail(), form.ContactPhone())
	if err != nil {
		s.log.DatabaseError("find_existing_customer", err)
		return apperr.Storage("find_existing_customer", err)
	}
	if existing == nil {
		return s.newLead(ctx, companyID, form, source)
	}

	deal, err := s.store.FindOpenDeal(ctx, existing.ID)
	if err != nil {
		s.log.DatabaseError("find_open_deal", err)
		return apperr.Storage("find_open_deal", err)
	}
	if deal != nil {
		return s.handleRepeatLead(ctx, companyID, existing, *deal, form, source)
	}

	if existing.SalesRep != nil {
		dealID, err := s.store.CreateDeal(ctx, existing.ID, existing.SalesRep)
		if err != nil {
			s.log.DatabaseError("create_deal", err)
			return apperr.Storage("create_deal", err)
		}
		return s.handleRepeatLead(ctx, companyID, existing, repository.Deal{ID: dealID, UserID: existing.SalesRep}, form, source)
	}

	// Repeated contact with no deal and no rep: refresh the record and ask
	// the managers to pick someone.
	if err := form.Update(ctx, s.store, companyID, existing.ID); err != nil {
		s.log.Error("lead_update_failed", "company_id", companyID, "customer_id", existing.ID, "error", err.Error())
	}
	message := fmt.Sprintf("You received a REPEATED lead with no sales rep \n%s", form.Render())
	if err := s.sendManagerClaimPrompt(ctx, companyID, existing.ID, message); err != nil {
		return err
	}

	s.bus.Publish(ctx, events.LeadProcessed{
		BaseEvent:  events.NewBaseEvent(),
		CompanyID:  companyID,
		CustomerID: existing.ID,
		Flow:       FlowRepeatNoDeal,
		Source:     source,
	})
	return nil
}

func (s *Service) newLead(ctx context.Context, companyID int64, form transport.LeadForm, source string) error {
	customerID, err := form.Insert(ctx, s.store, companyID)
	if err != nil {
		s.log.DatabaseError("create_customer", err)
		return apperr.Storage("create_customer", err)
	}

	// The deal starts unowned; the claim callback assigns it.
	dealID, err := s.store.CreateDeal(ctx, customerID, nil)
	if err != nil {
		s.log.DatabaseError("create_deal", err)
		return apperr.Storage("create_deal", err)
	}

	if err := s.sendManagerClaimPrompt(ctx, companyID, customerID, form.Render()); err != nil {
		return err
	}

	s.bus.Publish(ctx, events.LeadProcessed{
		BaseEvent:  events.NewBaseEvent(),
		CompanyID:  companyID,
		CustomerID: customerID,
		DealID:     dealID,
		Flow:       FlowNewLead,
		Source:     source,
	})
	return nil
}

// handleRepeatLead handles a repeat submission for a customer with a live
// deal. The assigned rep gets a direct heads-up; when the rep cannot be
// reached over chat the flow falls back to email or a manager claim prompt.
func (s *Service) handleRepeatLead(ctx context.Context, companyID int64, existing *repository.Customer, deal repository.Deal, form transport.LeadForm, source string) error {
	if err := form.Update(ctx, s.store, companyID, existing.ID); err != nil {
		s.log.Error("lead_update_failed", "company_id", companyID, "customer_id", existing.ID, "error", err.Error())
	}

	if deal.UserID == nil {
		return s.promptManagersForRepeat(ctx, companyID, existing, deal, source)
	}

	contact, err := s.store.GetUserContact(ctx, *deal.UserID)
	if err != nil {
		s.log.DatabaseError("get_user_contact", err)
		return apperr.Storage("get_user_contact", err)
	}
	if contact == nil {
		return s.promptManagersForRepeat(ctx, companyID, existing, deal, source)
	}

	if contact.TelegramChatID == nil {
		if err := s.email.SendRegistrationInviteEmail(ctx, contact.Email); err != nil {
			s.log.Error("register_invite_failed", "company_id", companyID, "email", contact.Email, "error", err.Error())
			s.bus.Publish(ctx, events.NotificationFailed{
				BaseEvent: events.NewBaseEvent(),
				Channel:   "email",
				Recipient: contact.Email,
				DealID:    deal.ID,
				Reason:    err.Error(),
			})
			return apperr.Internal(apperr.TokenSendEmailFailed)
		}
		return nil
	}

	message := fmt.Sprintf("You received a REPEATED lead %s, click here: %s",
		nameOr(existing.Name), s.leadURL(deal.ID))
	if _, err := s.messenger.SendMessage(ctx, *contact.TelegramChatID, message); err != nil {
		s.log.NotifyError("telegram", *contact.TelegramChatID, err)
		s.bus.Publish(ctx, events.NotificationFailed{
			BaseEvent: events.NewBaseEvent(),
			Channel:   "telegram",
			Recipient: fmt.Sprintf("%d", *contact.TelegramChatID),
			DealID:    deal.ID,
			Reason:    err.Error(),
		})
		return apperr.Internal(apperr.TokenTelegramSendFailed)
	}

	// Managers get a duplicate advisory as well; failures here never fail
	// the request.
	s.notifyManagersOfDuplicate(ctx, companyID, nameOr(existing.Name), *deal.UserID, form.Render())

	s.bus.Publish(ctx, events.LeadProcessed{
		BaseEvent:  events.NewBaseEvent(),
		CompanyID:  companyID,
		CustomerID: existing.ID,
		DealID:     deal.ID,
		Flow:       FlowRepeatWithDeal,
		Source:     source,
	})
	return nil
}

// promptManagersForRepeat is the fallback when the deal has no reachable
// owner on record: managers are asked to pick a salesperson.
func (s *Service) promptManagersForRepeat(ctx context.Context, companyID int64, existing *repository.Customer, deal repository.Deal, source string) error {
	message := fmt.Sprintf("You received a REPEATED lead %s, click here: %s",
		nameOr(existing.Name), s.leadURL(deal.ID))
	if err := s.sendManagerClaimPrompt(ctx, companyID, existing.ID, message); err != nil {
		return err
	}

	s.bus.Publish(ctx, events.LeadProcessed{
		BaseEvent:  events.NewBaseEvent(),
		CompanyID:  companyID,
		CustomerID: existing.ID,
		DealID:     deal.ID,
		Flow:       FlowRepeatWithDeal,
		Source:     source,
	})
	return nil
}

// ClaimResult describes a completed claim for the chat layer to report back.
type ClaimResult struct {
	CustomerID     int64
	DealID         int64
	UserName       string
	LeadURL        string
	TelegramChatID *int64
}

// Claim assigns the customer and its deal to the claiming salesperson. It is
// invoked from the chat callback when a manager or worker presses an inline
// keyboard button. A deal is created on the spot when none is live yet.
func (s *Service) Claim(ctx context.Context, customerID, userID int64) (*ClaimResult, error) {
	if err := s.store.AssignCustomerRep(ctx, customerID, userID); err != nil {
		s.log.DatabaseError("assign_customer_rep", err)
		return nil, apperr.Storage("assign_customer_rep", err)
	}

	deal, err := s.store.FindOpenDeal(ctx, customerID)
	if err != nil {
		s.log.DatabaseError("find_open_deal", err)
		return nil, apperr.Storage("find_open_deal", err)
	}

	var dealID int64
	if deal != nil {
		if err := s.store.AssignDeal(ctx, deal.ID, userID); err != nil {
			s.log.DatabaseError("assign_deal", err)
			return nil, apperr.Storage("assign_deal", err)
		}
		dealID = deal.ID
	} else {
		dealID, err = s.store.CreateDeal(ctx, customerID, &userID)
		if err != nil {
			s.log.DatabaseError("create_deal", err)
			return nil, apperr.Storage("create_deal", err)
		}
	}

	userName := unknownName
	var chatID *int64
	if contact, err := s.store.GetUserContact(ctx, userID); err != nil {
		s.log.DatabaseError("get_user_contact", err)
	} else if contact != nil {
		userName = nameOr(contact.Name)
		chatID = contact.TelegramChatID
	}

	var telegramID int64
	if chatID != nil {
		telegramID = *chatID
	}
	s.bus.Publish(ctx, events.LeadClaimed{
		BaseEvent:  events.NewBaseEvent(),
		DealID:     dealID,
		UserID:     userID,
		ClaimedBy:  userName,
		TelegramID: telegramID,
	})

	return &ClaimResult{
		CustomerID:     customerID,
		DealID:         dealID,
		UserName:       userName,
		LeadURL:        s.leadURL(dealID),
		TelegramChatID: chatID,
	}, nil
}

func (s *Service) leadURL(dealID int64) string {
	return fmt.Sprintf("%s/employee/deals/edit/%d/project", s.appBaseURL, dealID)
}

func nameOr(name *string) string {
	if name == nil || *name == "" {
		return unknownName
	}
	return *name
}
