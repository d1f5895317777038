// Package model holds the entities shared by the store and the services.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Company is a tenant.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Deleted   bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is something a company sells; its price is fingerprinted on daily submissions.
type Product struct {
	ID        int64           `json:"id"`
	CompanyID *int64          `json:"company_id,omitempty"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Deleted   bool            `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
}

// User is a member of a company. PasswordHash never leaves the process; use Public.
type User struct {
	ID           int64     `json:"id"`
	CompanyID    *int64    `json:"company_id,omitempty"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Deleted      bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserView is the whitelisted public shape of a User.
type UserView struct {
	ID        int64  `json:"id"`
	CompanyID *int64 `json:"company_id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

// Public returns the fields of u that may be shown to other users.
func (u *User) Public() UserView {
	return UserView{
		ID:        u.ID,
		CompanyID: u.CompanyID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
	}
}
