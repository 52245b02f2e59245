package types

import "time"

// User roles.
const (
	RoleAdmin    = "admin"
	RoleOwner    = "restaurant_owner"
	RoleCustomer = "customer"
	RoleDriver   = "driver"
)

// User is a console or customer account.
type User struct {
	ID        string    `json:"id,omitempty"`
	Email     string    `json:"email" validate:"required,email"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role" validate:"required,oneof=admin restaurant_owner customer driver"`
	IsActive  bool      `json:"is_active"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordID implements Record.
func (u User) RecordID() string { return u.ID }
