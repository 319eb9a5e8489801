package entity

import "time"

// Role decides which protected views an account can reach.
type Role string

const (
	RoleUser  Role = "user"
	RoleRider Role = "rider"
	// RoleAdmin is never stored as a role; it is derived from Account.IsAdmin.
	RoleAdmin Role = "admin"
)

// ParseRole maps a self-selectable role string to a Role. Empty means user.
// Admin is not self-selectable.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case "", RoleUser:
		return RoleUser, true
	case RoleRider:
		return RoleRider, true
	default:
		return "", false
	}
}

// Account represents a row/document in the accounts store.
// PasswordHash is always a bcrypt hash, never plaintext.
type Account struct {
	ID           string    `db:"id" bson:"_id"`
	Email        string    `db:"email" bson:"email"`
	PasswordHash string    `db:"password_hash" bson:"password_hash"`
	Name         string    `db:"name" bson:"name"`
	Address      string    `db:"address" bson:"address"`
	Phone        string    `db:"phone" bson:"phone"`
	Role         Role      `db:"role" bson:"role"`
	IsAdmin      bool      `db:"is_admin" bson:"is_admin"`
	CreatedAt    time.Time `db:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" bson:"updated_at"`
}

// EffectiveRole is the role carried in tokens and checked by guards.
func (a *Account) EffectiveRole() Role {
	if a.IsAdmin {
		return RoleAdmin
	}
	if a.Role == "" {
		return RoleUser
	}
	return a.Role
}

// PublicProfile is the client-safe projection of an Account.
type PublicProfile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Role    Role   `json:"role"`
}

func (a *Account) Public() PublicProfile {
	return PublicProfile{
		ID:      a.ID,
		Name:    a.Name,
		Email:   a.Email,
		Address: a.Address,
		Phone:   a.Phone,
		Role:    a.EffectiveRole(),
	}
}
