package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/DmitryZaika/granite-webhooks/internal/events"
	"github.com/DmitryZaika/granite-webhooks/internal/leads/ports"
	"github.com/DmitryZaika/granite-webhooks/internal/leads/repository"
	"github.com/DmitryZaika/granite-webhooks/internal/leads/transport"
	"github.com/DmitryZaika/granite-webhooks/platform/apperr"
	"github.com/DmitryZaika/granite-webhooks/platform/logger"
)

const testBaseURL = "https://granite-manager.com"

func strPtr(s string) *string { return &s }
func intPtr(i int64) *int64   { return &i }

type fakeStore struct {
	existing  *repository.Customer
	openDeal  *repository.Deal
	roster    []repository.SalesUser
	contacts  map[int64]*repository.UserContact
	listErr   error
	createErr error

	mu              sync.Mutex
	createdFields   []transport.CustomerFields
	updatedFields   []transport.CustomerFields
	createdDeals    []repository.Deal
	assignedDeals   map[int64]int64
	assignedReps    map[int64]int64
	nextCustomerID  int64
	nextDealID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contacts:       map[int64]*repository.UserContact{},
		assignedDeals:  map[int64]int64{},
		assignedReps:   map[int64]int64{},
		nextCustomerID: 100,
		nextDealID:     500,
	}
}

func (f *fakeStore) FindCustomerByEmailOrPhone(_ context.Context, _ int64, email, phone string) (*repository.Customer, error) {
	if email == "" && phone == "" {
		return nil, nil
	}
	return f.existing, nil
}

func (f *fakeStore) CreateCustomer(_ context.Context, _ int64, fields transport.CustomerFields) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdFields = append(f.createdFields, fields)
	f.nextCustomerID++
	return f.nextCustomerID, nil
}

func (f *fakeStore) UpdateCustomer(_ context.Context, _, _ int64, fields transport.CustomerFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedFields = append(f.updatedFields, fields)
	return nil
}

func (f *fakeStore) FindOpenDeal(_ context.Context, _ int64) (*repository.Deal, error) {
	return f.openDeal, nil
}

func (f *fakeStore) CreateDeal(_ context.Context, customerID int64, userID *int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextDealID++
	f.createdDeals = append(f.createdDeals, repository.Deal{ID: f.nextDealID, UserID: userID})
	return f.nextDealID, nil
}

func (f *fakeStore) AssignDeal(_ context.Context, dealID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignedDeals[dealID] = userID
	return nil
}

func (f *fakeStore) AssignCustomerRep(_ context.Context, customerID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignedReps[customerID] = userID
	return nil
}

func (f *fakeStore) ListSalesUsers(_ context.Context, _ int64) ([]repository.SalesUser, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.roster, nil
}

func (f *fakeStore) GetUserContact(_ context.Context, userID int64) (*repository.UserContact, error) {
	return f.contacts[userID], nil
}

type sentMessage struct {
	chatID   int64
	text     string
	keyboard [][]ports.Button
}

type fakeMessenger struct {
	mu           sync.Mutex
	sent         []sentMessage
	plainErr     error
	keyboardErrs map[int64]error
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string) (ports.MessageRef, error) {
	if f.plainErr != nil {
		return ports.MessageRef{}, f.plainErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return ports.MessageRef{ChatID: chatID, MessageID: int64(len(f.sent))}, nil
}

func (f *fakeMessenger) SendKeyboardMessage(_ context.Context, chatID int64, text string, keyboard [][]ports.Button) (ports.MessageRef, error) {
	if err := f.keyboardErrs[chatID]; err != nil {
		return ports.MessageRef{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, keyboard: keyboard})
	return ports.MessageRef{ChatID: chatID, MessageID: int64(len(f.sent))}, nil
}

func (f *fakeMessenger) EditMessageText(_ context.Context, _ ports.MessageRef, _ string) error {
	return nil
}

func (f *fakeMessenger) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeEmailSender struct {
	mu      sync.Mutex
	invites []string
	err     error
}

func (f *fakeEmailSender) SendRegistrationInviteEmail(_ context.Context, toEmail string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites = append(f.invites, toEmail)
	return nil
}

func newTestService(store *fakeStore, messenger *fakeMessenger, email *fakeEmailSender) (*Service, *events.InMemoryBus) {
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	return NewService(store, messenger, email, bus, log, testBaseURL), bus
}

func defaultRoster() []repository.SalesUser {
	return []repository.SalesUser{
		{ID: 1, Name: strPtr("Manager One"), TelegramChatID: intPtr(1001), Role: repository.RoleManager},
		{ID: 2, Name: strPtr("Manager Two"), TelegramChatID: intPtr(1002), Role: repository.RoleManager},
		{ID: 7, Name: strPtr("Worker Seven"), TelegramChatID: intPtr(1007), Role: repository.RoleWorker, MTDLeadCount: 3},
		{ID: 8, Name: strPtr("Worker Eight"), TelegramChatID: intPtr(1008), Role: repository.RoleWorker, MTDLeadCount: 1},
		{ID: 9, Name: strPtr("Worker Nine"), TelegramChatID: intPtr(1009), Role: repository.RoleWorker},
	}
}

func wordpressForm() *transport.WordpressContactForm {
	return &transport.WordpressContactForm{
		Name:  "Test Lead",
		Email: strPtr("lead@example.com"),
		Phone: "+13179995973",
	}
}

func TestNewLeadPromptsEveryManager(t *testing.T) {
	store := newFakeStore()
	store.roster = defaultRoster()
	messenger := &fakeMessenger{}
	svc, bus := newTestService(store, messenger, &fakeEmailSender{})
	defer bus.Close()

	if err := svc.ProcessLead(context.Background(), 1, wordpressForm(), "wordpress"); err != nil {
		t.Fatalf("ProcessLead: %v", err)
	}

	if got := len(store.createdFields); got != 1 {
		t.Fatalf("created %d customers, want 1", got)
	}
	if got := len(store.createdDeals); got != 1 {
		t.Fatalf("created %d deals, want 1", got)
	}
	if owner := store.createdDeals[0].UserID; owner != nil {
		t.Errorf("new deal owner = %d, want unowned until claimed", *owner)
	}

	sent := messenger.messages()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want one per manager", len(sent))
	}
	for _, msg := range sent {
		if !strings.HasSuffix(msg.text, "Choose a salesperson.") {
			t.Errorf("message %q does not end with the claim suffix", msg.text)
		}
		if msg.keyboard == nil {
			t.Errorf("claim prompt to chat %d has no keyboard", msg.chatID)
		}
	}
}

func TestClaimKeyboardLayout(t *testing.T) {
	store := newFakeStore()
	store.roster = defaultRoster()
	messenger := &fakeMessenger{}
	svc, bus := newTestService(store, messenger, &fakeEmailSender{})
	defer bus.Close()

	if err := svc.ProcessLead(context.Background(), 1, wordpressForm(), "wordpress"); err != nil {
		t.Fatalf("ProcessLead: %v", err)
	}

	sent := messenger.messages()
	if len(sent) == 0 {
		t.Fatal("no messages sent")
	}
	keyboard := sent[0].keyboard
	if len(keyboard) != 2 {
		t.Fatalf("keyboard has %d rows, want 2 for 3 candidates", len(keyboard))
	}
	if len(keyboard[0]) != 2 || len(keyboard[1]) != 1 {
		t.Fatalf("keyboard rows sized %d/%d, want 2/1", len(keyboard[0]), len(keyboard[1]))
	}

	first := keyboard[0][0]
	if first.Text != "Worker Seven: 3" {
		t.Errorf("button text = %q, want name with month-to-date count", first.Text)
	}
	customerID := store.nextCustomerID
	want := fmt.Sprintf("assign:%d:7", customerID)
	if first.CallbackData != want {
		t.Errorf("callback = %q, want %q", first.CallbackData, want)
	}
}

func TestRepeatLeadWithDealNotifiesRepAndManagers(t *testing.T) {
	store := newFakeStore()
	store.roster = defaultRoster()
	store.existing = &repository.Customer{ID: 42, Name: strPtr("Jane Doe"), SalesRep: intPtr(7)}
	store.openDeal = &repository.Deal{ID: 9, UserID: intPtr(7)}
	store.contacts[7] = &repository.UserContact{ID: 7, Name: strPtr("Worker Seven"), Email: "w7@example.com", TelegramChatID: intPtr(1007)}
	messenger := &fakeMessenger{}
	svc, bus := newTestService(store, messenger, &fakeEmailSender{})
	defer bus.Close()

	if err := svc.ProcessLead(context.Background(), 1, wordpressForm(), "wordpress"); err != nil {
		t.Fatalf("ProcessLead: %v", err)
	}

	if got := len(store.createdFields); got != 0 {
		t.Fatalf("created %d customers for a repeat lead, want 0", got)
	}
	if got := len(store.updatedFields); got != 1 {
		t.Fatalf("updated %d customers, want 1", got)
	}

	sent := messenger.messages()
	var repMsgs, advisories int
	for _, msg := range sent {
		switch {
		case msg.chatID == 1007:
			repMsgs++
			if !strings.HasPrefix(msg.text, "You received a REPEATED lead ") {
				t.Errorf("rep message = %q", msg.text)
			}
			if !strings.Contains(msg.text, testBaseURL+"/employee/deals/edit/9/project") {
				t.Errorf("rep message %q missing deal link", msg.text)
			}
		default:
			advisories++
			if !strings.HasPrefix(msg.text, "Repeat lead ") {
				t.Errorf("manager advisory = %q", msg.text)
			}
			if !strings.Contains(msg.text, "Worker Seven") {
				t.Errorf("advisory %q missing assigned rep name", msg.text)
			}
			if !strings.HasSuffix(msg.text, "Choose a salesperson.") {
				t.Errorf("advisory %q missing claim suffix", msg.text)
			}
		}
	}
	if repMsgs != 1 {
		t.Errorf("rep received %d messages, want 1", repMsgs)
	}
	if advisories != 2 {
		t.Errorf("managers received %d advisories, want one each", advisories)
	}
}

func TestRepeatLeadNoDealWithRepCreatesDeal(t *testing.T) {
	store := newFakeStore()
	store.roster = defaultRoster()
	store.existing = &repository.Customer{ID: 42, Name: strPtr("Jane Doe"), SalesRep: intPtr(7)}
	store.contacts[7] = &repository.UserContact{ID: 7, Name: strPtr("Worker Seven"), Email: "w7@example.com", TelegramChatID: intPtr(1007)}
	messenger := &fakeMessenger{}
	svc, bus := newTestService(store, messenger, &fakeEmailSender{})
	defer bus.Close()

	if err := svc.ProcessLead(context.Background(), 1, wordpressForm(), "wordpress"); err != nil {
		t.Fatalf("ProcessLead: %v", err)
	}

	if got := len(store.createdDeals); got != 1 {
		t.Fatalf("created %d deals, want 1", got)
	}
	deal := store.createdDeals[0]
	if deal.UserID == nil || *deal.UserID != 7 {
		t.Errorf("new deal owner = %v, want the existing rep", deal.UserID)
	}

	var repMsgs int
	for _, msg := range messenger.messages() {
		if msg.chatID == 1007 {
			repMsgs++
		}
	}
	if repMsgs != 1 {
		t.Errorf("rep received %d messages, want 1", repMsgs)
	}
}

func TestRepeatLeadNoDealNoRepPromptsManagers(t *testing.T) {
	store := newFakeStore()
	store.roster = defaultRoster()
	store.existing = &repository.Customer{ID: 42, Name: strPtr("Jane Doe")}
	messenger := &fakeMessenger{}
	svc, bus := newTestService(store, messenger, &fakeEmailSender{})
	defer bus.Close()

	if err := svc.ProcessLead(context.Background(), 1, wordpressForm(), "wordpress"); err != nil {
		t.Fatalf("ProcessLead: %v", err)
	}

	if got := len(store.createdFields); got != 0 {
		t.Fatalf("created %d customers, want 0", got)
	}
	if got := len(store.createdDeals); got != 0 {
		t.Fatalf("created %d deals, want 0", got)
	}
	if got := len(store.updatedFields); got != 1 {
		t.Fatalf("updated %d customers, want 1", got)
	}

	sent := messenger.messages()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want one per manager", len(sent))
	}
	for _, msg := range sent {
		if !strings.HasPrefix(msg.text, "You received a REPEATED lead with no sales rep") {
			t.Errorf("prompt = %q", msg.text)
		}
		if msg.keyboard == nil {
			t.Errorf("prompt to chat %d has no keyboard", msg.chatID)
		}
	}
}

func TestRepeatLeadRepWithoutTelegramSendsInvite(t *testing.T) {
	store := newFakeStore()
	store.roster = defaultRoster()
	store.existing = &repository.Customer{ID: 42, Name: strPtr("Jane Doe"), SalesRep: intPtr(7)}
	store.openDeal = &repository.Deal{ID: 9, UserID: intPtr(7)}
	store.contacts[7] = &repository.UserContact{ID: 7, Name: strPtr("Worker Seven"), Email: "w7@example.com"}
	messenger := &fakeMessenger{}
	email := &fakeEmailSender{}
	svc, bus := newTestService(store, messenger, email)
	defer bus.Close()

	if err := svc.ProcessLead(context.Background(), 1, wordpressForm(), "wordpress"); err != nil {
		t.Fatalf("ProcessLead: %v", err)
	}

	if len(email.invites) != 1 || email.invites[0] != "w7@example.com" {
		t.Fatalf("invites = %v, want one to the rep", email.invites)
	}
	if got := len(messenger.messages()); got != 0 {
		t.Errorf("sent %d chat messages, want 0 when falling back to email", got)
	}
}

func TestRepeatLeadInviteFailureReturnsEmailToken(t *testing.T) {
	store := newFakeStore()
	store.roster = defaultRoster()
	store.existing = &repository.Customer{ID: 42, SalesRep: intPtr(7)}
	store.openDeal = &repository.Deal{ID: 9, UserID: intPtr(7)}
	store.contacts[7] = &repository.UserContact{ID: 7, Email: "w7@example.com"}
	email := &fakeEmailSender{err: errors.New("smtp down")}
	svc, bus := newTestService(store, &fakeMessenger{}, email)
	defer bus.Close()

	err := svc.ProcessLead(context.Background(), 1, wordpressForm(), "wordpress")
	assertToken(t, err, apperr.TokenSendEmailFailed)
}

func TestRepeatLeadRepSendFailureReturnsTelegramToken(t *testing.T) {
	store := newFakeStore()
	store.roster = defaultRoster()
	store.existing = &repository.Customer{ID: 42, SalesRep: intPtr(7)}
	store.openDeal = &repository.Deal{ID: 9, UserID: intPtr(7)}
	store.contacts[7] = &repository.UserContact{ID: 7, Email: "w7@example.com", TelegramChatID: intPtr(1007)}
	messenger := &fakeMessenger{plainErr: errors.New("chat not found")}
	svc, bus := newTestService(store, messenger, &fakeEmailSender{})
	defer bus.Close()

	err := svc.ProcessLead(context.Background(), 1, wordpressForm(), "wordpress")
	assertToken(t, err, apperr.TokenTelegramSendFailed)
}

func TestNewLeadWithoutManagersFails(t *testing.T) {
	store := newFakeStore()
	store.roster = []repository.SalesUser{
		{ID: 7, Name: strPtr("Worker Seven"), TelegramChatID: intPtr(1007), Role: repository.RoleWorker},
	}
	svc, bus := newTestService(store, &fakeMessenger{}, &fakeEmailSender{})
	defer bus.Close()

	err := svc.ProcessLead(context.Background(), 1, wordpressForm(), "wordpress")
	assertToken(t, err, apperr.TokenDatabaseFailed)
	if got := len(store.createdFields); got != 1 {
		t.Errorf("created %d customers, want the insert to land before the failure", got)
	}
}

func TestNewLeadPartialFanoutFailureStillSucceeds(t *testing.T) {
	store := newFakeStore()
	store.roster = defaultRoster()
	messenger := &fakeMessenger{keyboardErrs: map[int64]error{1001: errors.New("chat not found")}}
	svc, bus := newTestService(store, messenger, &fakeEmailSender{})
	defer bus.Close()

	if err := svc.ProcessLead(context.Background(), 1, wordpressForm(), "wordpress"); err != nil {
		t.Fatalf("ProcessLead: %v", err)
	}
	if got := len(messenger.messages()); got != 1 {
		t.Errorf("delivered %d prompts, want the remaining manager reached", got)
	}
}

func TestNewLeadTotalFanoutFailureReturnsTelegramToken(t *testing.T) {
	store := newFakeStore()
	store.roster = defaultRoster()
	messenger := &fakeMessenger{keyboardErrs: map[int64]error{
		1001: errors.New("chat not found"),
		1002: errors.New("chat not found"),
	}}
	svc, bus := newTestService(store, messenger, &fakeEmailSender{})
	defer bus.Close()

	err := svc.ProcessLead(context.Background(), 1, wordpressForm(), "wordpress")
	assertToken(t, err, apperr.TokenTelegramSendFailed)
}

func TestClaimAssignsCustomerAndCreatesDeal(t *testing.T) {
	store := newFakeStore()
	store.contacts[7] = &repository.UserContact{ID: 7, Name: strPtr("Worker Seven"), Email: "w7@example.com", TelegramChatID: intPtr(1007)}
	svc, bus := newTestService(store, &fakeMessenger{}, &fakeEmailSender{})
	defer bus.Close()

	result, err := svc.Claim(context.Background(), 42, 7)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if store.assignedReps[42] != 7 {
		t.Errorf("customer rep = %d, want 7", store.assignedReps[42])
	}
	if len(store.createdDeals) != 1 {
		t.Fatalf("created %d deals, want 1", len(store.createdDeals))
	}
	if result.UserName != "Worker Seven" {
		t.Errorf("UserName = %q", result.UserName)
	}
	want := fmt.Sprintf("%s/employee/deals/edit/%d/project", testBaseURL, result.DealID)
	if result.LeadURL != want {
		t.Errorf("LeadURL = %q, want %q", result.LeadURL, want)
	}
}

func TestClaimReassignsExistingDeal(t *testing.T) {
	store := newFakeStore()
	store.openDeal = &repository.Deal{ID: 9}
	store.contacts[7] = &repository.UserContact{ID: 7, Name: strPtr("Worker Seven"), Email: "w7@example.com"}
	svc, bus := newTestService(store, &fakeMessenger{}, &fakeEmailSender{})
	defer bus.Close()

	result, err := svc.Claim(context.Background(), 42, 7)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(store.createdDeals) != 0 {
		t.Fatalf("created %d deals, want the live deal reused", len(store.createdDeals))
	}
	if store.assignedDeals[9] != 7 {
		t.Errorf("deal 9 assigned to %d, want 7", store.assignedDeals[9])
	}
	if result.DealID != 9 {
		t.Errorf("DealID = %d, want 9", result.DealID)
	}
}

func assertToken(t *testing.T, err error, token string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	var domainErr *apperr.Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("error %v is not an *apperr.Error", err)
	}
	if domainErr.Message != token {
		t.Errorf("error token = %q, want %q", domainErr.Message, token)
	}
}
