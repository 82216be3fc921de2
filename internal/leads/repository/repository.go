// Package repository implements lead persistence on PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DmitryZaika/granite-webhooks/internal/leads/transport"
)

// Repository provides data access for customers, deals, and the sales roster.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new leads repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// FindCustomerByEmailOrPhone returns the most recent customer in the company
// matching the given email or phone. Empty values never match; when both are
// empty the lookup short-circuits to no match.
func (r *Repository) FindCustomerByEmailOrPhone(ctx context.Context, companyID int64, email, phone string) (*Customer, error) {
	if email == "" && phone == "" {
		return nil, nil
	}

	query := `
		SELECT id, name, sales_rep
		FROM customers
		WHERE company_id = $1
		  AND (email = NULLIF($2, '') OR phone = NULLIF($3, ''))
		ORDER BY id DESC
		LIMIT 1`

	var customer Customer
	err := r.db.QueryRow(ctx, query, companyID, email, phone).
		Scan(&customer.ID, &customer.Name, &customer.SalesRep)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find customer by email or phone: %w", err)
	}
	return &customer, nil
}

// CreateCustomer inserts a new customer row and returns its id.
func (r *Repository) CreateCustomer(ctx context.Context, companyID int64, fields transport.CustomerFields) (int64, error) {
	query := `
		INSERT INTO customers (
			company_id, name, email, phone, postal_code, address, city,
			details, remodal_type, project_size, contact_time, when_start,
			remove_and_dispose, improve_offer, sink, backsplash,
			kitchen_stove, your_message, attached_file, compaign_name,
			adset_name, ad_name, referral_source, source
		)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20,
			$21, $22, $23, $24
		)
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		companyID, fields.Name, fields.Email, fields.Phone, fields.PostalCode, fields.Address, fields.City,
		fields.Details, fields.RemodelType, fields.ProjectSize, fields.ContactTime, fields.WhenStart,
		fields.RemoveAndDispose, fields.ImproveOffer, fields.Sink, fields.Backsplash,
		fields.KitchenStove, fields.YourMessage, fields.AttachedFile, fields.CampaignName,
		fields.AdsetName, fields.AdName, fields.ReferralSource, fields.Source,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create customer: %w", err)
	}
	return id, nil
}

// UpdateCustomer refreshes the descriptive fields of an existing customer from
// a newer submission. It deliberately leaves sales_rep and assigned_date alone.
func (r *Repository) UpdateCustomer(ctx context.Context, companyID, customerID int64, fields transport.CustomerFields) error {
	query := `
		UPDATE customers SET
			name = $3, email = COALESCE($4, email), phone = COALESCE($5, phone),
			postal_code = COALESCE($6, postal_code), address = COALESCE($7, address),
			city = COALESCE($8, city), details = COALESCE($9, details),
			remodal_type = COALESCE($10, remodal_type), project_size = COALESCE($11, project_size),
			contact_time = COALESCE($12, contact_time), when_start = COALESCE($13, when_start),
			remove_and_dispose = COALESCE($14, remove_and_dispose),
			improve_offer = COALESCE($15, improve_offer), sink = COALESCE($16, sink),
			backsplash = COALESCE($17, backsplash), kitchen_stove = COALESCE($18, kitchen_stove),
			your_message = COALESCE($19, your_message), attached_file = COALESCE($20, attached_file),
			compaign_name = COALESCE($21, compaign_name), adset_name = COALESCE($22, adset_name),
			ad_name = COALESCE($23, ad_name), referral_source = $24
		WHERE id = $1 AND company_id = $2`

	_, err := r.db.Exec(ctx, query,
		customerID, companyID, fields.Name, fields.Email, fields.Phone,
		fields.PostalCode, fields.Address, fields.City, fields.Details,
		fields.RemodelType, fields.ProjectSize, fields.ContactTime, fields.WhenStart,
		fields.RemoveAndDispose, fields.ImproveOffer, fields.Sink,
		fields.Backsplash, fields.KitchenStove, fields.YourMessage, fields.AttachedFile,
		fields.CampaignName, fields.AdsetName, fields.AdName, fields.ReferralSource,
	)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	return nil
}

// FindOpenDeal returns the newest live deal for the customer, or nil when the
// customer has no deal that is still in play.
func (r *Repository) FindOpenDeal(ctx context.Context, customerID int64) (*Deal, error) {
	query := `
		SELECT id, user_id
		FROM deals
		WHERE customer_id = $1
		  AND deleted_at IS NULL
		  AND status <> 'lost'
		ORDER BY id DESC
		LIMIT 1`

	var deal Deal
	err := r.db.QueryRow(ctx, query, customerID).Scan(&deal.ID, &deal.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open deal: %w", err)
	}
	return &deal, nil
}

// CreateDeal inserts a fresh deal in the default intake list. The deal starts
// in status "new" and takes the next position in its list. userID may be nil
// for deals awaiting a claim.
func (r *Repository) CreateDeal(ctx context.Context, customerID int64, userID *int64) (int64, error) {
	query := `
		INSERT INTO deals (customer_id, status, list_id, position, user_id)
		VALUES (
			$1, 'new', 1,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM deals WHERE list_id = 1),
			$2
		)
		RETURNING id`

	var id int64
	if err := r.db.QueryRow(ctx, query, customerID, userID).Scan(&id); err != nil {
		return 0, fmt.Errorf("create deal: %w", err)
	}
	return id, nil
}

// AssignDeal sets the owning user of a deal.
func (r *Repository) AssignDeal(ctx context.Context, dealID, userID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE deals SET user_id = $2 WHERE id = $1`, dealID, userID)
	if err != nil {
		return fmt.Errorf("assign deal: %w", err)
	}
	return nil
}

// AssignCustomerRep records the sales rep on the customer and stamps the
// assignment time, which feeds the month-to-date lead counts.
func (r *Repository) AssignCustomerRep(ctx context.Context, customerID, userID int64) error {
	query := `UPDATE customers SET sales_rep = $2, assigned_date = NOW() WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, customerID, userID); err != nil {
		return fmt.Errorf("assign customer rep: %w", err)
	}
	return nil
}

// ListSalesUsers returns every worker and manager in the company together with
// their month-to-date assigned lead count. A user holding both roles yields
// one row per role.
func (r *Repository) ListSalesUsers(ctx context.Context, companyID int64) ([]SalesUser, error) {
	query := `
		SELECT u.id, u.name, u.telegram_chat_id, r.role, COUNT(c.id) AS mtd_lead_count
		FROM users u
		JOIN user_roles r ON r.user_id = u.id AND r.role IN ('worker', 'manager')
		LEFT JOIN customers c
			ON c.sales_rep = u.id
			AND c.source = 'leads'
			AND c.assigned_date >= date_trunc('month', now())
			AND c.company_id = $1
		WHERE u.company_id = $1
		GROUP BY u.id, u.name, u.telegram_chat_id, r.role
		ORDER BY u.id, r.role`

	rows, err := r.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("list sales users: %w", err)
	}
	defer rows.Close()

	var users []SalesUser
	for rows.Next() {
		var user SalesUser
		if err := rows.Scan(&user.ID, &user.Name, &user.TelegramChatID, &user.Role, &user.MTDLeadCount); err != nil {
			return nil, fmt.Errorf("scan sales user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sales users: %w", err)
	}
	return users, nil
}

// GetUserContact returns the delivery coordinates for a user, or nil when the
// user no longer exists.
func (r *Repository) GetUserContact(ctx context.Context, userID int64) (*UserContact, error) {
	query := `SELECT id, name, email, telegram_chat_id FROM users WHERE id = $1`

	var contact UserContact
	err := r.db.QueryRow(ctx, query, userID).
		Scan(&contact.ID, &contact.Name, &contact.Email, &contact.TelegramChatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user contact: %w", err)
	}
	return &contact, nil
}
