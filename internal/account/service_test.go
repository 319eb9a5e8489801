package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/token"
)

type fixture struct {
	svc    *Service
	repo   *repo.MemoryRepo
	tokens *token.Service
	store  *token.MemoryRevocationStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := token.NewMemoryRevocationStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	tokens, err := token.NewService(token.Config{Secret: []byte("test-secret"), TTL: 24 * time.Hour, Issuer: "test"}, store)
	require.NoError(t, err)

	r := repo.NewMemoryRepo()
	svc, err := NewService(r, BcryptHasher{Cost: bcrypt.MinCost}, tokens, zap.NewNop().Sugar())
	require.NoError(t, err)
	return &fixture{svc: svc, repo: r, tokens: tokens, store: store}
}

func TestRegister_ThenLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw123", Name: "Alice"})
	require.NoError(t, err)
	require.NotEmpty(t, reg.Token)
	assert.Equal(t, "a@x.com", reg.User.Email)
	assert.Equal(t, "Alice", reg.User.Name)
	assert.Equal(t, entity.RoleUser, reg.User.Role)

	login, err := f.svc.Login(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	assert.NotEqual(t, reg.Token, login.Token)
	assert.Equal(t, reg.User, login.User)

	id, err := f.svc.VerifyToken(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, id)
}

func TestRegister_Duplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw1", Name: "A"})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw2", Name: "B"})
	assert.ErrorIs(t, err, ErrDuplicateAccount)

	// first registration wins
	stored, err := f.repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "A", stored.Name)
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 20
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Register(ctx, RegisterInput{Email: "race@x.com", Password: "pw", Name: fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateAccount)
	}
	assert.Equal(t, 1, ok)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []RegisterInput{
		{Email: "", Password: "pw"},
		{Email: "   ", Password: "pw"},
		{Email: "a@x.com", Password: ""},
		{Email: "a@x.com", Password: "pw", Role: "admin"},
		{Email: "a@x.com", Password: strings.Repeat("p", 73)},
	}
	for _, in := range cases {
		_, err := f.svc.Register(ctx, in)
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "input %+v: got %v", in, err)
	}
}

func TestRegister_StoresSaltedHashOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "same-pw"})
	require.NoError(t, err)
	b, err := f.svc.Register(ctx, RegisterInput{Email: "b@x.com", Password: "same-pw"})
	require.NoError(t, err)

	sa, err := f.repo.GetByID(ctx, a.User.ID)
	require.NoError(t, err)
	sb, err := f.repo.GetByID(ctx, b.User.ID)
	require.NoError(t, err)

	assert.NotEqual(t, "same-pw", sa.PasswordHash)
	assert.NotEqual(t, sa.PasswordHash, sb.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(sa.PasswordHash), []byte("same-pw")))
}

func TestDefaultHasherCost(t *testing.T) {
	h, err := BcryptHasher{}.Hash("pw")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(h))
	require.NoError(t, err)
	assert.Equal(t, DefaultBcryptCost, cost)
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw123"})
	require.NoError(t, err)

	cases := map[string][2]string{
		"unknown email":  {"unknown@x.com", "anything"},
		"wrong password": {"a@x.com", "pw124"},
		"case differs":   {"A@x.com", "pw123"},
		"empty password": {"a@x.com", ""},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := f.svc.Login(ctx, c[0], c[1])
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestRiderLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Email: "rider@x.com", Password: "pw", Role: "rider"})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, RegisterInput{Email: "user@x.com", Password: "pw"})
	require.NoError(t, err)

	res, err := f.svc.RiderLogin(ctx, "rider@x.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleRider, res.User.Role)

	_, err = f.svc.RiderLogin(ctx, "user@x.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRiderLogin_AdminFlaggedRiderIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, RegisterInput{Email: "rider@x.com", Password: "pw", Role: "rider"})
	require.NoError(t, err)
	require.NoError(t, f.repo.SetAdmin(reg.User.ID, true))

	_, err = f.svc.RiderLogin(ctx, "rider@x.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := f.svc.Login(ctx, "rider@x.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAdmin, res.User.Role)
}

func TestAdminFlagIsCarriedInToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, RegisterInput{Email: "boss@x.com", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, f.repo.SetAdmin(reg.User.ID, true))

	res, err := f.svc.Login(ctx, "boss@x.com", "pw")
	require.NoError(t, err)
	claims, err := f.tokens.Verify(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, entity.RoleAdmin, res.User.Role)
}

func TestVerifyToken_Unauthorized(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.svc.VerifyToken(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogout_RevokesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, reg.Token))
	_, err = f.svc.VerifyToken(ctx, reg.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.ErrorIs(t, f.svc.Logout(ctx, "garbage"), ErrUnauthorized)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw", Address: " 1 Main St ", Phone: "555"})
	require.NoError(t, err)

	p, err := f.svc.Profile(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", p.Address)
	assert.Equal(t, "555", p.Phone)

	_, err = f.svc.Profile(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

type brokenRepo struct{ repo.Repository }

func (brokenRepo) GetByEmail(context.Context, string) (*entity.Account, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailuresAreNotMaskedAsCredentialErrors(t *testing.T) {
	f := newFixture(t)
	svc, err := NewService(brokenRepo{}, BcryptHasher{Cost: bcrypt.MinCost}, f.tokens, nil)
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "a@x.com", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "pw"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateAccount)
}
