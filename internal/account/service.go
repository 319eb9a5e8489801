package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/token"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/pkg/utilities"
)

// DefaultBcryptCost is the fixed work factor for stored hashes.
const DefaultBcryptCost = 10

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation. bcrypt salts every hash on its own.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

var (
	ErrDuplicateAccount   = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)

// ValidationError is returned for malformed input; the message is safe to show.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// RegisterInput is the registration payload after decoding.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Address  string
	Phone    string
	Role     string
}

// AuthResult is returned by successful Register and Login.
type AuthResult struct {
	Token string               `json:"token"`
	User  entity.PublicProfile `json:"user"`
}

// Service orchestrates registration, authentication and token checks.
type Service struct {
	repo   repo.Repository
	hasher PasswordHasher
	tokens *token.Service
	logger *zap.SugaredLogger
	now    func() time.Time

	// dummyHash is compared against when the email is unknown so both
	// failure paths spend a bcrypt comparison.
	dummyHash string
}

func NewService(r repo.Repository, hasher PasswordHasher, tokens *token.Service, logger *zap.SugaredLogger) (*Service, error) {
	if hasher == nil {
		hasher = BcryptHasher{Cost: DefaultBcryptCost}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	dummy, err := hasher.Hash(utilities.NewKSUID())
	if err != nil {
		return nil, fmt.Errorf("init dummy hash: %w", err)
	}
	return &Service{repo: r, hasher: hasher, tokens: tokens, logger: logger, now: time.Now, dummyHash: dummy}, nil
}

// Register creates an account and returns a fresh token for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, &ValidationError{Msg: "email and password are required"}
	}
	role, ok := entity.ParseRole(in.Role)
	if !ok {
		return nil, &ValidationError{Msg: "role must be user or rider"}
	}

	// fast path only; the store's unique constraint is the authority
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateAccount
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, &ValidationError{Msg: "password must be at most 72 bytes"}
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	a := &entity.Account{
		ID:           utilities.NewSnowflakeID(),
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Address:      strings.TrimSpace(in.Address),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.logger.Infow("account registered", "account_id", a.ID, "role", a.Role)
	return s.issue(a)
}

// Login authenticates by email and password. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	a, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.issue(a)
}

// RiderLogin is Login restricted to rider accounts.
func (s *Service) RiderLogin(ctx context.Context, email, password string) (*AuthResult, error) {
	a, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	// the admin flag outranks the stored role, so an admin-flagged rider is
	// refused here rather than issued a token the rider routes reject
	if a.EffectiveRole() != entity.RoleRider {
		return nil, ErrInvalidCredentials
	}
	return s.issue(a)
}

// VerifyToken returns the account id carried by a valid token.
func (s *Service) VerifyToken(ctx context.Context, raw string) (string, error) {
	claims, err := s.tokens.Verify(ctx, raw)
	if err != nil {
		if errors.Is(err, token.ErrMissingToken) || errors.Is(err, token.ErrInvalidToken) {
			return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return "", err
	}
	return claims.AccountID(), nil
}

// Profile returns the public projection of an account.
func (s *Service) Profile(ctx context.Context, id string) (*entity.PublicProfile, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	p := a.Public()
	return &p, nil
}

// Logout revokes the presented token until its natural expiry.
func (s *Service) Logout(ctx context.Context, raw string) error {
	if err := s.tokens.Revoke(ctx, raw); err != nil {
		if errors.Is(err, token.ErrMissingToken) || errors.Is(err, token.ErrInvalidToken) {
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return err
	}
	return nil
}

func (s *Service) authenticate(ctx context.Context, email, password string) (*entity.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.hasher.Verify(s.dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if !s.hasher.Verify(a.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return a, nil
}

func (s *Service) issue(a *entity.Account) (*AuthResult, error) {
	tok, _, err := s.tokens.Issue(a.ID, string(a.EffectiveRole()))
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: tok, User: a.Public()}, nil
}
