package model

import "time"

// User represents an authenticated user's profile. Anonymous callers have no
// profile row; their account id is derived from the tracking cookie.
type User struct {
	UserID           string    `db:"user_id" json:"user_id"`
	Name             string    `db:"name" json:"name"`
	Email            string    `db:"email" json:"email"`
	Role             string    `db:"role" json:"role"`
	StripeCustomerID *string   `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// RoleAdmin marks operators allowed through the admin adjustment gate.
const RoleAdmin = "admin"
