package account

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/token"
)

func newTestMux(t *testing.T) (*http.ServeMux, *fixture) {
	t.Helper()
	f := newFixture(t)
	logger := zap.NewNop().Sugar()
	h := NewHandler(f.svc, logger)
	auth := token.Authenticate(f.tokens, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.Handle("POST /api/auth/logout", auth(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /api/protected", auth(http.HandlerFunc(h.Protected)))
	mux.Handle("GET /api/auth/me", auth(http.HandlerFunc(h.Me)))
	mux.HandleFunc("POST /api/riders/signup", h.RiderSignup)
	mux.HandleFunc("POST /api/riders/login", h.RiderLogin)
	return mux, f
}

func do(t *testing.T, h http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHandler_RegisterLoginProtected(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/api/auth/register",
		`{"email":"a@x.com","password":"pw123","name":"Alice"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decodeBody[AuthResult](t, rec)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "a@x.com", reg.User.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = do(t, mux, http.MethodPost, "/api/auth/login", `{"email":"a@x.com","password":"pw123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	login := decodeBody[AuthResult](t, rec)
	assert.NotEqual(t, reg.Token, login.Token)

	rec = do(t, mux, http.MethodGet, "/api/protected", "", login.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "This is a protected route", body["message"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, reg.User.ID, user["sub"])
	assert.Equal(t, "user", user["role"])

	rec = do(t, mux, http.MethodGet, "/api/auth/me", "", login.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "Alice", me["name"])
}

func TestHandler_PaddedEmail(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/api/auth/register",
		`{"email":"  a@x.com ","password":"pw123","name":" Alice "}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decodeBody[AuthResult](t, rec)
	assert.Equal(t, "a@x.com", reg.User.Email)

	rec = do(t, mux, http.MethodPost, "/api/auth/login", `{"email":" a@x.com","password":"pw123"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, mux, http.MethodPost, "/api/auth/register", `{"email":"   ","password":"pw123"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_DuplicateRegister(t *testing.T) {
	mux, _ := newTestMux(t)

	body := `{"email":"a@x.com","password":"pw1"}`
	require.Equal(t, http.StatusCreated, do(t, mux, http.MethodPost, "/api/auth/register", body, "").Code)

	rec := do(t, mux, http.MethodPost, "/api/auth/register", `{"email":"a@x.com","password":"pw2"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "account already exists", decodeBody[map[string]string](t, rec)["message"])
}

func TestHandler_LoginFailuresLookAlike(t *testing.T) {
	mux, _ := newTestMux(t)
	require.Equal(t, http.StatusCreated,
		do(t, mux, http.MethodPost, "/api/auth/register", `{"email":"a@x.com","password":"pw123"}`, "").Code)

	unknown := do(t, mux, http.MethodPost, "/api/auth/login", `{"email":"nobody@x.com","password":"pw123"}`, "")
	wrong := do(t, mux, http.MethodPost, "/api/auth/login", `{"email":"a@x.com","password":"nope"}`, "")

	assert.Equal(t, http.StatusBadRequest, unknown.Code)
	assert.Equal(t, unknown.Code, wrong.Code)
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
	assert.Equal(t, "invalid credentials", decodeBody[map[string]string](t, wrong)["message"])
}

func TestHandler_BadPayloads(t *testing.T) {
	mux, _ := newTestMux(t)

	cases := map[string]struct {
		path string
		body string
		msg  string
	}{
		"not json":        {"/api/auth/register", `{`, "invalid payload"},
		"missing email":   {"/api/auth/register", `{"password":"pw"}`, "email is required"},
		"bad email":       {"/api/auth/register", `{"email":"nope","password":"pw"}`, "email must be a valid email address"},
		"admin role":      {"/api/auth/register", `{"email":"a@x.com","password":"pw","role":"admin"}`, "role must be one of: user rider"},
		"long password":   {"/api/auth/register", `{"email":"a@x.com","password":"` + strings.Repeat("p", 80) + `"}`, "password must be at most 72 characters"},
		"login no pw":     {"/api/auth/login", `{"email":"a@x.com"}`, "password is required"},
		"rider login bad": {"/api/riders/login", `[]`, "invalid payload"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, mux, http.MethodPost, c.path, c.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, c.msg, decodeBody[map[string]string](t, rec)["message"])
		})
	}
}

func TestHandler_ProtectedWithoutOrWithBadToken(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(t, mux, http.MethodGet, "/api/protected", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, mux, http.MethodGet, "/api/protected", "", "not-a-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_RiderFlow(t *testing.T) {
	mux, _ := newTestMux(t)

	// role in the body is ignored on the rider endpoint
	rec := do(t, mux, http.MethodPost, "/api/riders/signup", `{"email":"r@x.com","password":"pw","role":"user"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "rider", decodeBody[map[string]any](t, rec)["user"].(map[string]any)["role"])

	rec = do(t, mux, http.MethodPost, "/api/riders/login", `{"email":"r@x.com","password":"pw"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusCreated,
		do(t, mux, http.MethodPost, "/api/auth/register", `{"email":"u@x.com","password":"pw"}`, "").Code)
	rec = do(t, mux, http.MethodPost, "/api/riders/login", `{"email":"u@x.com","password":"pw"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Logout(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/api/auth/register", `{"email":"a@x.com","password":"pw"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	tok := decodeBody[AuthResult](t, rec).Token

	rec = do(t, mux, http.MethodPost, "/api/auth/logout", "", tok)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, mux, http.MethodGet, "/api/protected", "", tok)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, mux, http.MethodPost, "/api/auth/logout", "", tok)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
