package rbac

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storedash/storedash/internal/shared"
)

type countingRecorder map[string]int

func (c countingRecorder) RecordGateDecision(decision string) { c[decision]++ }

func newMiddleware(rec DecisionRecorder) Middleware {
	return Middleware{
		Gate:     NewGate("/admin"),
		Sessions: shared.NewSessionManager("session", false),
		Logger:   slog.New(slog.DiscardHandler),
		Recorder: rec,
	}
}

func requestAs(method, path, role string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: shared.EncodeClaim(shared.Claim{UserID: "u-9", Role: role})})
	}
	return req
}

func TestProtectRedirectsAndForwards(t *testing.T) {
	rec := countingRecorder{}
	m := newMiddleware(rec)
	var seen shared.Claim
	h := m.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.ClaimFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	res := httptest.NewRecorder()
	h.ServeHTTP(res, requestAs(http.MethodGet, "/admin/dashboard", ""))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/admin/login", res.Header().Get("Location"))

	res = httptest.NewRecorder()
	h.ServeHTTP(res, requestAs(http.MethodGet, "/admin/orders", "editor"))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/admin/no-access", res.Header().Get("Location"))

	res = httptest.NewRecorder()
	h.ServeHTTP(res, requestAs(http.MethodGet, "/admin/products/new", "editor"))
	assert.Equal(t, http.StatusTeapot, res.Code)
	assert.Equal(t, "editor", seen.Role)

	res = httptest.NewRecorder()
	h.ServeHTTP(res, requestAs(http.MethodGet, "/healthz", ""))
	assert.Equal(t, http.StatusTeapot, res.Code)
	assert.Empty(t, res.Result().Cookies())

	assert.Equal(t, countingRecorder{"redirect_login": 1, "redirect_no_access": 1, "allow": 2}, rec)
}

func TestRequireSection(t *testing.T) {
	m := newMiddleware(nil)
	h := m.RequireSection(SectionRevenue)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := map[string]int{"": http.StatusUnauthorized, "editor": http.StatusForbidden, "accountant": http.StatusNoContent, "admin": http.StatusNoContent}
	for role, want := range cases {
		res := httptest.NewRecorder()
		h.ServeHTTP(res, requestAs(http.MethodGet, "/api/revenue", role))
		require.Equal(t, want, res.Code, role)
	}
}

func TestRequireRoles(t *testing.T) {
	m := newMiddleware(nil)
	h := m.RequireRoles(RoleAdmin, RoleManager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for role, want := range map[string]int{"": http.StatusUnauthorized, "orderer": http.StatusForbidden, "manager": http.StatusNoContent} {
		res := httptest.NewRecorder()
		h.ServeHTTP(res, requestAs(http.MethodPost, "/api/auth/register", role))
		assert.Equal(t, want, res.Code, role)
	}
}
