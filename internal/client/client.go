package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/session"
)

const DefaultBaseURL = "http://localhost:3000"

// ErrReauthRequired means the stored token was rejected (or absent) and the
// session has been cleared. Callers must sign in again.
var ErrReauthRequired = errors.New("re-authentication required")

// APIError is a non-2xx response from the credential service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// RegisterRequest mirrors the register payload.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role,omitempty"`
}

// AuthResponse is the body of successful register and login calls.
type AuthResponse struct {
	Token string       `json:"token"`
	User  session.User `json:"user"`
}

// ProtectedResponse is the body of GET /api/protected.
type ProtectedResponse struct {
	Message string         `json:"message"`
	User    map[string]any `json:"user"`
}

// Client talks to the credential service and keeps the session context in
// sync with what the server says.
type Client struct {
	base   string
	http   *http.Client
	sess   *session.Context
	logger *zap.SugaredLogger
}

func New(baseURL string, sess *session.Context, httpClient *http.Client, logger *zap.SugaredLogger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: httpClient, sess: sess, logger: logger}
}

func (c *Client) Session() *session.Context { return c.sess }

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/register", req)
}

// RegisterRider signs up through the rider portal.
func (c *Client) RegisterRider(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	req.Role = ""
	return c.authenticate(ctx, "/api/riders/signup", req)
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/login", map[string]string{"email": email, "password": password})
}

func (c *Client) RiderLogin(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.authenticate(ctx, "/api/riders/login", map[string]string{"email": email, "password": password})
}

// Logout revokes the token server-side and always clears the local session.
// A token the server already rejects counts as logged out.
func (c *Client) Logout(ctx context.Context) error {
	st := c.sess.Get()
	if st.Empty() {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", st.Token, nil, nil)
	if cerr := c.sess.Clear(); cerr != nil {
		c.logger.Warnw("clear session failed", "err", cerr)
	}
	if err != nil && !errors.Is(err, ErrReauthRequired) {
		return err
	}
	return nil
}

func (c *Client) Protected(ctx context.Context) (*ProtectedResponse, error) {
	var out ProtectedResponse
	if err := c.authorized(ctx, http.MethodGet, "/api/protected", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me fetches the caller's profile and refreshes the cached copy.
func (c *Client) Me(ctx context.Context) (*session.User, error) {
	var u session.User
	if err := c.authorized(ctx, http.MethodGet, "/api/auth/me", &u); err != nil {
		return nil, err
	}
	st := c.sess.Get()
	st.User = &u
	if err := c.sess.Set(st); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, path, "", body, &out); err != nil {
		return nil, err
	}
	user := out.User
	if err := c.sess.Set(session.State{Token: out.Token, Role: out.User.Role, User: &user}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) authorized(ctx context.Context, method, path string, out any) error {
	st := c.sess.Get()
	if st.Empty() {
		return ErrReauthRequired
	}
	err := c.do(ctx, method, path, st.Token, nil, out)
	if errors.Is(err, ErrReauthRequired) {
		if cerr := c.sess.Clear(); cerr != nil {
			c.logger.Warnw("clear session failed", "err", cerr)
		}
	}
	return err
}

// do sends one request. When bearer is set, 401 and 403 are reported as
// ErrReauthRequired wrapping the APIError.
func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debugw("api call", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		if bearer != "" && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: %w", ErrReauthRequired, apiErr)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) *APIError {
	var payload struct {
		Message string `json:"message"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(b, &payload); err != nil || payload.Message == "" {
		payload.Message = strings.TrimSpace(string(b))
	}
	if payload.Message == "" {
		payload.Message = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: payload.Message}
}
