package repo

import (
	"context"
	"errors"

	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/account/entity"
)

var (
	// ErrDuplicate is returned by Create when the email is already taken.
	// Every store enforces this at write time, so racing inserts resolve here.
	ErrDuplicate = errors.New("account already exists")
	ErrNotFound  = errors.New("account not found")
)

// Repository is the persistence port for accounts.
type Repository interface {
	Create(ctx context.Context, a *entity.Account) error
	GetByEmail(ctx context.Context, email string) (*entity.Account, error)
	GetByID(ctx context.Context, id string) (*entity.Account, error)
}
