// Package transport defines the inbound lead form payloads. Each marketing
// integration posts its own field set; the forms share one interface so the
// orchestrator is written once against LeadForm, never against the shapes.
package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/DmitryZaika/granite-webhooks/platform/phone"
)

// CustomerFields is the normalized column set a form maps onto the customers
// table. Nil pointers are persisted as NULL.
type CustomerFields struct {
	Name             string
	Email            *string
	Phone            *string
	PostalCode       *string
	Address          *string
	City             *string
	Details          *string
	RemodelType      *string
	ProjectSize      *string
	ContactTime      *string
	WhenStart        *string
	RemoveAndDispose *string
	ImproveOffer     *string
	Sink             *string
	Backsplash       *string
	KitchenStove     *string
	YourMessage      *string
	AttachedFile     *string
	CampaignName     *string
	AdsetName        *string
	AdName           *string
	ReferralSource   string
	Source           string
}

// CustomerStore is the narrow persistence surface the forms write through.
type CustomerStore interface {
	CreateCustomer(ctx context.Context, companyID int64, fields CustomerFields) (int64, error)
	UpdateCustomer(ctx context.Context, companyID, customerID int64, fields CustomerFields) error
}

// LeadForm is the tagged union over the three intake shapes.
type LeadForm interface {
	// ContactEmail returns the submitted email, or "" when absent.
	ContactEmail() string
	// ContactPhone returns the submitted phone normalized for matching,
	// or "" when absent.
	ContactPhone() string
	// Insert persists the form as a brand-new customer and returns its id.
	Insert(ctx context.Context, store CustomerStore, companyID int64) (int64, error)
	// Update writes the form's descriptive fields onto an existing
	// customer. It never touches the customer's id or assigned rep.
	Update(ctx context.Context, store CustomerStore, companyID, customerID int64) error
	// Render produces the human-readable notification body.
	Render() string
}

const sourceLeads = "leads"

// WordpressContactForm is the marketing-site contact form. The field names
// mirror the form builder's generated input ids.
type WordpressContactForm struct {
	Name             string  `json:"7. Your Name" validate:"required"`
	Email            *string `json:"7. Your Email" validate:"omitempty,email"`
	Phone            string  `json:"7. mask-277" validate:"required"`
	PostalCode       *string `json:"7. your-zip"`
	Address          *string `json:"7. your-address"`
	RemodelType      *string `json:"7. menu-185"`
	ProjectSize      *string `json:"7. number-629"`
	ContactTime      *string `json:"7. contacttime"`
	RemoveAndDispose *string `json:"7. menu-186"`
	ImproveOffer     *string `json:"7. menu-395"`
	Sink             *string `json:"7. menu-189"`
	Backsplash       *string `json:"7. menu-177"`
	KitchenStove     *string `json:"7. menu-175"`
	YourMessage      *string `json:"7. your-message"`
	AttachedFile     *string `json:"7. file-507"`
}

func (f *WordpressContactForm) ContactEmail() string { return deref(f.Email) }
func (f *WordpressContactForm) ContactPhone() string { return phone.NormalizeDashed(f.Phone) }

func (f *WordpressContactForm) fields() CustomerFields {
	return CustomerFields{
		Name:             f.Name,
		Email:            f.Email,
		Phone:            normalizedPtr(f.Phone),
		PostalCode:       f.PostalCode,
		Address:          f.Address,
		RemodelType:      f.RemodelType,
		ProjectSize:      f.ProjectSize,
		ContactTime:      f.ContactTime,
		RemoveAndDispose: f.RemoveAndDispose,
		ImproveOffer:     f.ImproveOffer,
		Sink:             f.Sink,
		Backsplash:       f.Backsplash,
		KitchenStove:     f.KitchenStove,
		YourMessage:      f.YourMessage,
		AttachedFile:     f.AttachedFile,
		ReferralSource:   "wordpress-form",
		Source:           sourceLeads,
	}
}

func (f *WordpressContactForm) Insert(ctx context.Context, store CustomerStore, companyID int64) (int64, error) {
	return store.CreateCustomer(ctx, companyID, f.fields())
}

func (f *WordpressContactForm) Update(ctx context.Context, store CustomerStore, companyID, customerID int64) error {
	return store.UpdateCustomer(ctx, companyID, customerID, f.fields())
}

func (f *WordpressContactForm) Render() string {
	return renderLines([]renderedField{
		{"Name", f.Name},
		{"Phone", f.ContactPhone()},
		{"Email", deref(f.Email)},
		{"Zip", deref(f.PostalCode)},
		{"Address", deref(f.Address)},
		{"Remodel type", deref(f.RemodelType)},
		{"Project size", deref(f.ProjectSize)},
		{"Contact time", deref(f.ContactTime)},
		{"Remove and dispose", deref(f.RemoveAndDispose)},
		{"Improve offer", deref(f.ImproveOffer)},
		{"Sink", deref(f.Sink)},
		{"Backsplash", deref(f.Backsplash)},
		{"Kitchen stove", deref(f.KitchenStove)},
		{"Message", deref(f.YourMessage)},
	})
}

// FacebookContactForm is the ad-platform lead form. Field names mirror the
// ad automation's flattened payload keys.
type FacebookContactForm struct {
	Name             string  `json:"1.data.full_name" validate:"required"`
	Phone            string  `json:"1.data.phone_number" validate:"required"`
	RemoveAndDispose *string `json:"1.data.would_you_like_us_to_remove_and_dispose_of_your_old_countertops?"`
	Email            *string `json:"1.data.email" validate:"omitempty,email"`
	City             *string `json:"1.data.city"`
	PostalCode       *string `json:"1.data.zip_code"`
	Details          *string `json:"1.data.what_other_information_you'd_like_to_share?_(e.g_sqft,_state_etc.)"`
	CampaignName     *string `json:"1.campaignName"`
	AdsetName        *string `json:"1.adsetName"`
	AdName           *string `json:"1.adName"`
}

func (f *FacebookContactForm) ContactEmail() string { return deref(f.Email) }
func (f *FacebookContactForm) ContactPhone() string { return phone.NormalizeDashed(f.Phone) }

func (f *FacebookContactForm) fields() CustomerFields {
	return CustomerFields{
		Name:             f.Name,
		Email:            f.Email,
		Phone:            normalizedPtr(f.Phone),
		PostalCode:       f.PostalCode,
		City:             f.City,
		Details:          f.Details,
		RemoveAndDispose: f.RemoveAndDispose,
		CampaignName:     f.CampaignName,
		AdsetName:        f.AdsetName,
		AdName:           f.AdName,
		ReferralSource:   "facebook-form",
		Source:           sourceLeads,
	}
}

func (f *FacebookContactForm) Insert(ctx context.Context, store CustomerStore, companyID int64) (int64, error) {
	return store.CreateCustomer(ctx, companyID, f.fields())
}

func (f *FacebookContactForm) Update(ctx context.Context, store CustomerStore, companyID, customerID int64) error {
	return store.UpdateCustomer(ctx, companyID, customerID, f.fields())
}

func (f *FacebookContactForm) Render() string {
	return renderLines([]renderedField{
		{"Name", f.Name},
		{"Phone", f.ContactPhone()},
		{"Email", deref(f.Email)},
		{"City", deref(f.City)},
		{"Zip", deref(f.PostalCode)},
		{"Details", deref(f.Details)},
		{"Remove and dispose", deref(f.RemoveAndDispose)},
		{"Campaign", deref(f.CampaignName)},
		{"Adset", deref(f.AdsetName)},
		{"Ad", deref(f.AdName)},
	})
}

// NewLeadForm is the generic intake shape used by the in-house funnel.
type NewLeadForm struct {
	Name             string  `json:"name" validate:"required"`
	Email            *string `json:"email" validate:"omitempty,email"`
	Phone            string  `json:"phone"`
	PostalCode       *string `json:"zip"`
	City             *string `json:"city"`
	Details          *string `json:"share"`
	RemoveAndDispose *string `json:"remove"`
	CampaignName     *string `json:"campaign"`
	AdsetName        *string `json:"adsetname"`
	AdName           *string `json:"adname"`
	RemodelType      *string `json:"remodal_type"`
	ProjectSize      *string `json:"project_size"`
	ContactTime      *string `json:"contact_time"`
	WhenStart        *string `json:"when_start"`
	ImproveOffer     *string `json:"improve_offer"`
	Sink             *string `json:"sink"`
	KitchenStove     *string `json:"kitchen_stove"`
	Backsplash       *string `json:"backsplash"`
	YourMessage      *string `json:"your_message"`
	AttachedFile     *string `json:"attached_file"`
	Source           *string `json:"source"`
}

func (f *NewLeadForm) ContactEmail() string { return deref(f.Email) }
func (f *NewLeadForm) ContactPhone() string { return phone.NormalizeDashed(f.Phone) }

func (f *NewLeadForm) fields() CustomerFields {
	source := sourceLeads
	if f.Source != nil && *f.Source != "" {
		source = *f.Source
	}
	return CustomerFields{
		Name:             f.Name,
		Email:            f.Email,
		Phone:            normalizedPtr(f.Phone),
		PostalCode:       f.PostalCode,
		City:             f.City,
		Details:          f.Details,
		RemoveAndDispose: f.RemoveAndDispose,
		CampaignName:     f.CampaignName,
		AdsetName:        f.AdsetName,
		AdName:           f.AdName,
		RemodelType:      f.RemodelType,
		ProjectSize:      f.ProjectSize,
		ContactTime:      f.ContactTime,
		WhenStart:        f.WhenStart,
		ImproveOffer:     f.ImproveOffer,
		Sink:             f.Sink,
		KitchenStove:     f.KitchenStove,
		Backsplash:       f.Backsplash,
		YourMessage:      f.YourMessage,
		AttachedFile:     f.AttachedFile,
		ReferralSource:   "new-lead-form",
		Source:           source,
	}
}

func (f *NewLeadForm) Insert(ctx context.Context, store CustomerStore, companyID int64) (int64, error) {
	return store.CreateCustomer(ctx, companyID, f.fields())
}

func (f *NewLeadForm) Update(ctx context.Context, store CustomerStore, companyID, customerID int64) error {
	return store.UpdateCustomer(ctx, companyID, customerID, f.fields())
}

func (f *NewLeadForm) Render() string {
	return renderLines([]renderedField{
		{"Name", f.Name},
		{"Phone", f.ContactPhone()},
		{"Email", deref(f.Email)},
		{"City", deref(f.City)},
		{"Zip", deref(f.PostalCode)},
		{"Details", deref(f.Details)},
		{"When start", deref(f.WhenStart)},
		{"Remove and dispose", deref(f.RemoveAndDispose)},
		{"Campaign", deref(f.CampaignName)},
		{"Adset", deref(f.AdsetName)},
		{"Ad", deref(f.AdName)},
		{"Message", deref(f.YourMessage)},
	})
}

type renderedField struct {
	label string
	value string
}

func renderLines(fields []renderedField) string {
	var b strings.Builder
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", field.label, field.value)
	}
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func normalizedPtr(raw string) *string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	normalized := phone.NormalizeDashed(raw)
	return &normalized
}

// Compile-time checks that every form satisfies the union.
var (
	_ LeadForm = (*WordpressContactForm)(nil)
	_ LeadForm = (*FacebookContactForm)(nil)
	_ LeadForm = (*NewLeadForm)(nil)
)
