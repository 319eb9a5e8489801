package router

import (
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/account"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/token"
)

// DefaultCORSOrigin is the dev server of the web client.
const DefaultCORSOrigin = "http://localhost:5173"

// Config holds the HTTP surface settings.
type Config struct {
	CORSOrigin string
}

// ConfigFromEnv reads CORS_ORIGIN.
func ConfigFromEnv() Config {
	origin := strings.TrimSpace(os.Getenv("CORS_ORIGIN"))
	if origin == "" {
		origin = DefaultCORSOrigin
	}
	return Config{CORSOrigin: origin}
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	if lrw.status == 0 {
		lrw.status = code
	}
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter { return lrw.ResponseWriter }

// LoggingMiddleware logs every request at debug level; 5xx responses are
// logged at warn.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			log := logger.Debugw
			if status >= http.StatusInternalServerError {
				log = logger.Warnw
			}
			log("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers. The API only
// serves JSON, so the CSP is locked down completely.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			if h.Get("Content-Security-Policy") == "" {
				h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware allows the web client's origin and answers preflight
// requests before they reach the mux.
func CORSMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqOrigin := r.Header.Get("Origin")
			if reqOrigin != "" && (origin == "*" || reqOrigin == origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", reqOrigin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
				if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
					h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
					h.Set("Access-Control-Max-Age", "600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRoutes mounts the auth API on a standard library http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, cfg Config, accounts *account.Handler, tokens *token.Service) http.Handler {
	mux := http.NewServeMux()
	auth := token.Authenticate(tokens, logger)
	riderOnly := token.RequireRoles("rider")

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/auth/register", accounts.Register)
	mux.HandleFunc("POST /api/auth/login", accounts.Login)
	mux.Handle("POST /api/auth/logout", auth(http.HandlerFunc(accounts.Logout)))
	mux.Handle("GET /api/auth/me", auth(http.HandlerFunc(accounts.Me)))
	mux.Handle("GET /api/protected", auth(http.HandlerFunc(accounts.Protected)))

	// rider portal
	mux.HandleFunc("POST /api/riders/signup", accounts.RiderSignup)
	mux.HandleFunc("POST /api/riders/login", accounts.RiderLogin)
	mux.Handle("GET /api/riders/me", auth(riderOnly(http.HandlerFunc(accounts.Me))))

	return LoggingMiddleware(logger)(SecurityHeadersMiddleware()(CORSMiddleware(cfg.CORSOrigin)(mux)))
}
