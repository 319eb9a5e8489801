package guard

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"
)

// Route binds a view pattern to the roles allowed to see it. Segments that
// start with ':' match any single non-empty segment.
type Route struct {
	Pattern string
	Roles   []Role
}

// Routes is the protected view table. Views not listed are public.
var Routes = []Route{
	{Pattern: "/services/pickup", Roles: []Role{RoleUser, RoleAdmin}},
	{Pattern: "/waste", Roles: []Role{RoleUser, RoleAdmin}},
	{Pattern: "/waste/recycle/:id", Roles: []Role{RoleUser, RoleAdmin}},
	{Pattern: "/waste/buy/:id", Roles: []Role{RoleUser, RoleAdmin}},
	{Pattern: "/seminars", Roles: []Role{RoleUser, RoleAdmin}},
	{Pattern: "/seminars/new", Roles: []Role{RoleAdmin}},
	{Pattern: "/dashboard", Roles: []Role{RoleUser, RoleAdmin}},
	{Pattern: "/rider/dashboard", Roles: []Role{RoleRider}},
}

// Lookup returns the roles required for p and whether the path is protected.
// Matching is case-insensitive and runs on the unescaped, cleaned path. A path
// that does not unescape is protected with no allowed roles.
func Lookup(routes []Route, p string) ([]Role, bool) {
	clean, err := normalize(p)
	if err != nil {
		return nil, true
	}
	segs := split(clean)
	for _, rt := range routes {
		if match(split(rt.Pattern), segs) {
			return rt.Roles, true
		}
	}
	return nil, false
}

// Check evaluates a navigation to target against the route table. Public
// views always render.
func Check(routes []Route, snap Snapshot, target string) Decision {
	p := target
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	roles, ok := Lookup(routes, p)
	if !ok {
		return Decision{Outcome: Render, Location: target}
	}
	return Evaluate(roles, snap, target)
}

func normalize(p string) (string, error) {
	u, err := url.PathUnescape(p)
	if err != nil {
		return "", err
	}
	return path.Clean("/" + u), nil
}

func split(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func match(pattern, segs []string) bool {
	if len(pattern) != len(segs) {
		return false
	}
	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			if segs[i] == "" {
				return false
			}
			continue
		}
		if !strings.EqualFold(p, segs[i]) {
			return false
		}
	}
	return true
}

// SnapshotReader extracts the stored credential state from a request.
type SnapshotReader func(r *http.Request) Snapshot

// CookieSnapshot reads the `token` and `role` cookies.
func CookieSnapshot(r *http.Request) Snapshot {
	var s Snapshot
	if c, err := r.Cookie("token"); err == nil {
		s.Token = c.Value
	}
	if c, err := r.Cookie("role"); err == nil {
		s.Role = Role(c.Value)
	}
	return s
}

// Middleware gates next behind Evaluate. Redirects use 303 so the follow-up
// request is always a GET.
func Middleware(required []Role, read SnapshotReader, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	if read == nil {
		read = CookieSnapshot
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := Evaluate(required, read(r), r.URL.RequestURI())
			if d.Outcome == Render {
				next.ServeHTTP(w, r)
				return
			}
			logger.Debugw("navigation blocked", "path", r.URL.Path, "outcome", d.Outcome.String())
			http.Redirect(w, r, d.Location, http.StatusSeeOther)
		})
	}
}
