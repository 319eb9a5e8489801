package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/token"
)

const maxBodyBytes = 1 << 20

// Handler exposes HTTP endpoints for account operations.
type Handler struct {
	svc      *Service
	logger   *zap.SugaredLogger
	validate *validator.Validate
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	v := validator.New()
	// report json field names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Handler{svc: svc, logger: logger, validate: v}
}

// RegisterRequest request body for the register endpoints.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
	Name     string `json:"name" validate:"max=100"`
	Address  string `json:"address" validate:"max=255"`
	Phone    string `json:"phone" validate:"max=32"`
	Role     string `json:"role" validate:"omitempty,oneof=user rider"`
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (r *RegisterRequest) trim() {
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.Address = strings.TrimSpace(r.Address)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Role = strings.TrimSpace(r.Role)
}

func (r *LoginRequest) trim() {
	r.Email = strings.TrimSpace(r.Email)
}

// ProtectedResponse is the body of GET /api/protected.
type ProtectedResponse struct {
	Message string        `json:"message"`
	User    *token.Claims `json:"user"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, "")
}

// RiderSignup registers an account with the rider role regardless of the body.
func (h *Handler) RiderSignup(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, entity.RoleRider)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request, forceRole entity.Role) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	if forceRole != "" {
		req.Role = string(forceRole)
	}
	res, err := h.svc.Register(r.Context(), RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Address:  req.Address,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		h.writeError(w, "register", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, "login", err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) RiderLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.RiderLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, "rider login", err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Logout expects token.Authenticate in front of it.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	raw := token.BearerToken(r.Header.Get("Authorization"))
	if err := h.svc.Logout(r.Context(), raw); err != nil {
		h.writeError(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Protected echoes the verified claims.
func (h *Handler) Protected(w http.ResponseWriter, r *http.Request) {
	claims, ok := token.ClaimsFrom(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "missing token"})
		return
	}
	h.writeJSON(w, http.StatusOK, ProtectedResponse{Message: "This is a protected route", User: claims})
}

// Me returns the caller's public profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := token.ClaimsFrom(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "missing token"})
		return
	}
	p, err := h.svc.Profile(r.Context(), claims.AccountID())
	if err != nil {
		h.writeError(w, "profile", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid payload"})
		return false
	}
	// validation sees the same values the service stores
	if t, ok := dst.(interface{ trim() }); ok {
		t.trim()
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"message": validationMessage(err)})
		return false
	}
	return true
}

// writeError maps service errors to status codes; anything unknown is a 500
// and the detail stays in the log.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"message": verr.Msg})
	case errors.Is(err, ErrDuplicateAccount):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"message": "account already exists"})
	case errors.Is(err, ErrInvalidCredentials):
		h.logger.Debugw(op+" failed", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid credentials"})
	case errors.Is(err, ErrUnauthorized):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
	default:
		h.logger.Errorw(op+" failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "server error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "invalid payload"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
