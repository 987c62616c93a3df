package rbac

import (
	"strings"

	"github.com/storedash/storedash/internal/shared"
)

// Decision is the routing outcome for one request.
type Decision int

const (
	Unchecked Decision = iota
	Allow
	RedirectLogin
	RedirectNoAccess
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectNoAccess:
		return "redirect_no_access"
	default:
		return "unchecked"
	}
}

// Outcome carries a decision together with what the gate learned on the way.
// Err is set when a cookie was present but could not be decoded.
type Outcome struct {
	Decision Decision
	Claim    shared.Claim
	HasClaim bool
	Err      error
}

// Gate decides whether a request under the protected prefix may proceed.
// It holds configuration only and is safe for concurrent use.
type Gate struct {
	prefix       string
	loginPath    string
	noAccessPath string
	public       map[string]struct{}
}

// NewGate builds a gate protecting prefix. Login, logout and no-access pages
// under the prefix stay reachable without a claim.
func NewGate(prefix string) *Gate {
	prefix = strings.TrimRight(prefix, "/")
	g := &Gate{
		prefix:       prefix,
		loginPath:    prefix + "/login",
		noAccessPath: prefix + "/no-access",
	}
	g.public = map[string]struct{}{
		g.loginPath:        {},
		g.noAccessPath:     {},
		prefix + "/logout": {},
	}
	return g
}

// Prefix returns the protected path prefix.
func (g *Gate) Prefix() string { return g.prefix }

// LoginPath returns the redirect target for unauthenticated requests.
func (g *Gate) LoginPath() string { return g.loginPath }

// NoAccessPath returns the redirect target for unauthorised requests.
func (g *Gate) NoAccessPath() string { return g.noAccessPath }

// SectionPath returns the URL path of a section.
func (g *Gate) SectionPath(s Section) string { return g.prefix + "/" + string(s) }

// Decide returns the routing decision for path given an optional cookie value.
func (g *Gate) Decide(path string, cookie *string) Decision {
	return g.Evaluate(path, cookie).Decision
}

// Evaluate runs the gate and reports the decoded claim or decode error.
func (g *Gate) Evaluate(path string, cookie *string) Outcome {
	if !strings.HasPrefix(path, g.prefix) {
		return Outcome{Decision: Allow}
	}
	if g.isPublic(path) {
		return Outcome{Decision: Allow}
	}
	if cookie == nil || *cookie == "" {
		return Outcome{Decision: RedirectLogin}
	}
	claim, err := shared.DecodeClaim(*cookie)
	if err != nil {
		return Outcome{Decision: RedirectLogin, Err: err}
	}
	out := Outcome{Claim: claim, HasClaim: true, Decision: RedirectNoAccess}
	if g.permits(Role(claim.Role), path) {
		out.Decision = Allow
	}
	return out
}

func (g *Gate) permits(role Role, path string) bool {
	if HasFullAccess(role) {
		return true
	}
	for _, section := range permissions[role].sections {
		if strings.HasPrefix(path, g.SectionPath(section)) {
			return true
		}
	}
	return false
}

func (g *Gate) isPublic(path string) bool {
	trimmed := path
	if len(trimmed) > 1 {
		trimmed = strings.TrimRight(trimmed, "/")
	}
	_, ok := g.public[trimmed]
	return ok
}
