package auth_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storedash/storedash/internal/auth"
	"github.com/storedash/storedash/internal/rbac"
	"github.com/storedash/storedash/internal/shared"
	"github.com/storedash/storedash/internal/view"
)

type fixture struct {
	repo    *auth.MemoryRepository
	service *auth.Service
	router  chi.Router
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := auth.NewMemoryRepository()
	service := auth.NewService(repo)
	engine, err := view.NewEngine("/admin")
	require.NoError(t, err)
	sessions := shared.NewSessionManager("session", false)
	guard := rbac.Middleware{Gate: rbac.NewGate("/admin"), Sessions: sessions}
	handler := auth.NewHandler(slog.New(slog.DiscardHandler), service, engine, sessions, guard)

	r := chi.NewRouter()
	r.Route("/api/auth", handler.MountAPI)
	r.Route("/admin", handler.MountPages)
	return fixture{repo: repo, service: service, router: r}
}

func (f fixture) do(req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func (f fixture) register(t *testing.T, reg auth.Registration) *auth.User {
	t.Helper()
	user, err := f.service.Register(context.Background(), reg)
	require.NoError(t, err)
	return user
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func withClaim(req *http.Request, role string) *http.Request {
	req.AddCookie(&http.Cookie{Name: "session", Value: shared.EncodeClaim(shared.Claim{UserID: "u-1", Role: role})})
	return req
}

func sessionCookie(res *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range res.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}

func TestAPILoginIssuesClaimCookie(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, auth.Registration{Email: "ed@example.com", Password: "password1"})

	res := f.do(jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"ed@example.com","password":"password1"}`))
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"message":"Login successful","role":"editor"}`, res.Body.String())

	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	claim, err := shared.DecodeClaim(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, shared.Claim{UserID: user.ID, Role: "editor"}, claim)
}

func TestAPILoginFailures(t *testing.T) {
	f := newFixture(t)
	f.register(t, auth.Registration{Email: "ed@example.com", Password: "password1"})

	cases := map[string]struct {
		body   string
		status int
		want   string
	}{
		"missing password": {`{"email":"ed@example.com"}`, http.StatusBadRequest, `{"error":"Missing email or password"}`},
		"wrong password":   {`{"email":"ed@example.com","password":"nope-nope"}`, http.StatusUnauthorized, `{"error":"Invalid credentials"}`},
		"unknown user":     {`{"email":"who@example.com","password":"password1"}`, http.StatusUnauthorized, `{"error":"Invalid credentials"}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := f.do(jsonRequest(http.MethodPost, "/api/auth/login", tc.body))
			assert.Equal(t, tc.status, res.Code)
			assert.JSONEq(t, tc.want, res.Body.String())
			assert.Nil(t, sessionCookie(res))
		})
	}
}

func TestAPILoginTwoFactor(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, auth.Registration{Email: "acc@example.com", Password: "password1", Role: "accountant", TwoFactor: true})
	require.NotEmpty(t, user.ProvisioningURL)
	stored, err := f.repo.FindByEmail(context.Background(), "acc@example.com")
	require.NoError(t, err)
	require.True(t, stored.TwoFactorEnabled)

	res := f.do(jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"acc@example.com","password":"password1"}`))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.JSONEq(t, `{"error":"2FA code required","twoFactorRequired":true}`, res.Body.String())

	res = f.do(jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"acc@example.com","password":"password1","twoFactorToken":"12345"}`))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.JSONEq(t, `{"error":"Invalid 2FA code"}`, res.Body.String())

	code, err := totp.GenerateCode(stored.TwoFactorSecret, time.Now().UTC())
	require.NoError(t, err)
	res = f.do(jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"acc@example.com","password":"password1","twoFactorToken":"`+code+`"}`))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.NotNil(t, sessionCookie(res))
}

func TestAPIRegisterRequiresManagingRole(t *testing.T) {
	f := newFixture(t)
	body := `{"email":"new@example.com","password":"password1","role":"orderer"}`

	res := f.do(jsonRequest(http.MethodPost, "/api/auth/register", body))
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.do(withClaim(jsonRequest(http.MethodPost, "/api/auth/register", body), "editor"))
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(withClaim(jsonRequest(http.MethodPost, "/api/auth/register", body), "manager"))
	require.Equal(t, http.StatusOK, res.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	assert.Equal(t, "User registered", payload["message"])
	assert.NotEmpty(t, payload["userId"])
	assert.NotContains(t, payload, "otpauthUrl")

	res = f.do(withClaim(jsonRequest(http.MethodPost, "/api/auth/register", body), "admin"))
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.JSONEq(t, `{"error":"User already exists"}`, res.Body.String())

	res = f.do(withClaim(jsonRequest(http.MethodPost, "/api/auth/register", `{"email":"x@example.com"}`), "admin"))
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.JSONEq(t, `{"error":"Missing fields"}`, res.Body.String())

	res = f.do(withClaim(jsonRequest(http.MethodPost, "/api/auth/register", `{"email":"y@example.com","password":"password1","role":"owner"}`), "admin"))
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestAPILogoutExpiresCookie(t *testing.T) {
	f := newFixture(t)
	res := f.do(httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"message":"Logged out"}`, res.Body.String())
	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	assert.Less(t, cookie.MaxAge, 0)
}

func TestLoginPage(t *testing.T) {
	f := newFixture(t)
	res := f.do(httptest.NewRequest(http.MethodGet, "/admin/login", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "<form")
	assert.NotContains(t, res.Body.String(), "twoFactorToken")
}

func TestLoginFormFlow(t *testing.T) {
	f := newFixture(t)
	f.register(t, auth.Registration{Email: "ord@example.com", Password: "password1", Role: "orderer"})

	res := f.do(formRequest("/admin/login", url.Values{"email": {"ord@example.com"}, "password": {"wrong-pass"}}))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Body.String(), "Invalid email or password")
	assert.Nil(t, sessionCookie(res))

	res = f.do(formRequest("/admin/login", url.Values{"email": {"ord@example.com"}, "password": {"password1"}}))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/admin/dashboard", res.Header().Get("Location"))
	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	claim, err := shared.DecodeClaim(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "orderer", claim.Role)
}

func TestLoginFormAsksForCode(t *testing.T) {
	f := newFixture(t)
	f.register(t, auth.Registration{Email: "two@example.com", Password: "password1", TwoFactor: true})

	res := f.do(formRequest("/admin/login", url.Values{"email": {"two@example.com"}, "password": {"password1"}}))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Body.String(), `name="twoFactorToken"`)
}

func TestLogoutPage(t *testing.T) {
	f := newFixture(t)
	res := f.do(withClaim(httptest.NewRequest(http.MethodPost, "/admin/logout", nil), "admin"))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/admin/login", res.Header().Get("Location"))
	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	assert.Less(t, cookie.MaxAge, 0)
}

func TestRegisterPage(t *testing.T) {
	f := newFixture(t)
	res := f.do(withClaim(httptest.NewRequest(http.MethodGet, "/admin/register", nil), "admin"))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `name="role"`)

	form := url.Values{"email": {"sam@example.com"}, "password": {"password1"}, "role": {"accountant"}, "twoFactor": {"on"}}
	res = f.do(withClaim(formRequest("/admin/register", form), "admin"))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "User sam@example.com registered")
	assert.Contains(t, res.Body.String(), "otpauth://")

	user, err := f.repo.FindByEmail(context.Background(), "sam@example.com")
	require.NoError(t, err)
	assert.Equal(t, "accountant", user.Role)
	assert.True(t, user.TwoFactorEnabled)

	res = f.do(withClaim(formRequest("/admin/register", form), "admin"))
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Contains(t, res.Body.String(), "User already exists")
}

func TestNoAccessPage(t *testing.T) {
	f := newFixture(t)
	res := f.do(withClaim(httptest.NewRequest(http.MethodGet, "/admin/no-access", nil), "editor"))
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), "does not have access")
	assert.Contains(t, res.Body.String(), "/admin/products")
}
