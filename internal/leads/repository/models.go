package repository

// Customer is the slice of the customers row the dedup flow needs.
type Customer struct {
	ID       int64
	Name     *string
	SalesRep *int64
}

// Deal is the slice of the deals row the routing flow needs.
type Deal struct {
	ID     int64
	UserID *int64
}

// Sales role names as stored in user_roles.
const (
	RoleWorker  = "worker"
	RoleManager = "manager"
)

// SalesUser is one row of the monthly sales roster. A user holding both roles
// appears once per role.
type SalesUser struct {
	ID             int64
	Name           *string
	TelegramChatID *int64
	Role           string
	MTDLeadCount   int64
}

// UserContact carries the delivery coordinates for a single user.
type UserContact struct {
	ID             int64
	Name           *string
	Email          string
	TelegramChatID *int64
}
