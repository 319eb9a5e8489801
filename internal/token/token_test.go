package token

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, store RevocationStore) *Service {
	t.Helper()
	s, err := NewService(Config{Secret: []byte("super-secret"), TTL: time.Hour, Issuer: "test"}, store)
	require.NoError(t, err)
	return s
}

func TestNewService_RequiresSecret(t *testing.T) {
	_, err := NewService(Config{}, nil)
	assert.Error(t, err)
}

func TestIssueAndVerify_Success(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	tok, issued, err := s.Issue("user-123", "rider")
	require.NoError(t, err)

	claims, err := s.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.AccountID())
	assert.Equal(t, "rider", claims.Role)
	assert.Equal(t, issued.ID, claims.ID)
	assert.Equal(t, "test", claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 2*time.Second)
}

func TestIssue_TokensAreDistinct(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	a, _, err := s.Issue("u1", "user")
	require.NoError(t, err)
	b, _, err := s.Issue("u1", "user")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	tok, _, err := s.Issue("u1", "user")
	require.NoError(t, err)

	// signature stays valid; only the clock moves past exp
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Verify(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)
	other, err := NewService(Config{Secret: []byte("other-secret"), TTL: time.Hour}, nil)
	require.NoError(t, err)

	tok, _, err := other.Issue("u2", "user")
	require.NoError(t, err)

	_, err = s.Verify(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	_, err := s.Verify(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Missing(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	_, err := s.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        "x",
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("super-secret"))
	require.NoError(t, err)

	_, err = s.Verify(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RequiresExpiry(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{ID: "x", Subject: "u1"}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("super-secret"))
	require.NoError(t, err)

	_, err = s.Verify(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevoke(t *testing.T) {
	store := NewMemoryRevocationStore(time.Minute)
	defer store.Close()
	s := newTestService(t, store)
	ctx := context.Background()

	tok, _, err := s.Issue("u1", "user")
	require.NoError(t, err)
	require.NoError(t, s.Revoke(ctx, tok))

	_, err = s.Verify(ctx, tok)
	assert.ErrorIs(t, err, ErrRevoked)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// other tokens for the same account are unaffected
	other, _, err := s.Issue("u1", "user")
	require.NoError(t, err)
	_, err = s.Verify(ctx, other)
	assert.NoError(t, err)
}

func TestRevoke_InvalidToken(t *testing.T) {
	store := NewMemoryRevocationStore(time.Minute)
	defer store.Close()
	s := newTestService(t, store)

	assert.ErrorIs(t, s.Revoke(context.Background(), "garbage"), ErrInvalidToken)
	assert.Equal(t, 0, store.Len())
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":    "abc",
		"bearer abc":    "abc",
		"BEARER  abc  ": "abc",
		"abc":           "",
		"Basic abc":     "",
		"":              "",
		"Bearer":        "",
	}
	for in, want := range cases {
		assert.Equal(t, want, BearerToken(in), "header %q", in)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("TOKEN_ISSUER", "")

	cfg := ConfigFromEnv()
	assert.Equal(t, []byte("s"), cfg.Secret)
	assert.Equal(t, 90*time.Minute, cfg.TTL)
	assert.Equal(t, "ewaste-auth", cfg.Issuer)

	t.Setenv("TOKEN_TTL", "nonsense")
	assert.Equal(t, DefaultTTL, ConfigFromEnv().TTL)
}
