package guard

import "net/url"

// Role is the role claim as the client stores it.
type Role string

const (
	RoleUser  Role = "user"
	RoleRider Role = "rider"
	RoleAdmin Role = "admin"
)

const (
	SignInPath    = "/signin"
	ForbiddenPath = "/forbidden"
)

// Snapshot is the locally stored credential state consulted on navigation.
type Snapshot struct {
	Token string
	Role  Role
}

// Outcome of a navigation check.
type Outcome int

const (
	RedirectToSignIn Outcome = iota
	RedirectToUnauthorized
	Render
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case RedirectToSignIn:
		return "redirect-signin"
	case RedirectToUnauthorized:
		return "redirect-forbidden"
	default:
		return "unknown"
	}
}

// Decision is what Evaluate returns. Location is the target for Render and
// the redirect URL otherwise.
type Decision struct {
	Outcome  Outcome
	Location string
}

// Evaluate decides whether target may be rendered for snap. It never fails:
// any missing state degrades to a redirect. The zero Outcome is
// RedirectToSignIn so an unset Decision never renders.
func Evaluate(required []Role, snap Snapshot, target string) Decision {
	if snap.Token == "" || snap.Role == "" {
		return Decision{Outcome: RedirectToSignIn, Location: SignInLocation(target)}
	}
	for _, r := range required {
		if r == snap.Role {
			return Decision{Outcome: Render, Location: target}
		}
	}
	return Decision{Outcome: RedirectToUnauthorized, Location: ForbiddenPath}
}

// SignInLocation builds the sign-in URL that returns to target afterwards.
func SignInLocation(target string) string {
	if target == "" {
		return SignInPath
	}
	return SignInPath + "?next=" + url.QueryEscape(target)
}
