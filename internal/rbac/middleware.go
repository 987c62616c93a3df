package rbac

import (
	"log/slog"
	"net/http"

	"github.com/storedash/storedash/internal/platform/httpx"
	"github.com/storedash/storedash/internal/shared"
)

// DecisionRecorder receives every gate decision, typically for metrics.
type DecisionRecorder interface {
	RecordGateDecision(decision string)
}

// Middleware wires the access gate and API guards into HTTP handlers.
type Middleware struct {
	Gate     *Gate
	Sessions *shared.SessionManager
	Logger   *slog.Logger
	Recorder DecisionRecorder
}

// Protect runs the gate before every request. Requests outside the protected
// prefix pass through untouched.
func (m Middleware) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := m.Gate.Evaluate(r.URL.Path, m.Sessions.Value(r))
		if m.Recorder != nil {
			m.Recorder.RecordGateDecision(out.Decision.String())
		}
		if out.Err != nil && m.Logger != nil {
			m.Logger.Warn("invalid session cookie", slog.String("path", r.URL.Path), slog.Any("error", out.Err))
		}
		switch out.Decision {
		case Allow:
			if out.HasClaim {
				r = r.WithContext(shared.ContextWithClaim(r.Context(), out.Claim))
			}
			next.ServeHTTP(w, r)
		case RedirectNoAccess:
			http.Redirect(w, r, m.Gate.NoAccessPath(), http.StatusSeeOther)
		default:
			http.Redirect(w, r, m.Gate.LoginPath(), http.StatusSeeOther)
		}
	})
}

// RequireClaim rejects API calls without a decodable session claim.
func (m Middleware) RequireClaim(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claim, err := m.Sessions.Load(r)
		if err != nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithClaim(r.Context(), claim)))
	})
}

// RequireRoles rejects API calls whose claim role is not listed.
func (m Middleware) RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	set := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		set[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return m.RequireClaim(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claim, _ := shared.ClaimFromContext(r.Context())
			if _, ok := set[Role(claim.Role)]; !ok {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// RequireSection rejects API calls whose claim role may not open section.
func (m Middleware) RequireSection(section Section) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.RequireClaim(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claim, _ := shared.ClaimFromContext(r.Context())
			if !Allowed(Role(claim.Role), section) {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
