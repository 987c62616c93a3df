package rbac

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storedash/storedash/internal/shared"
)

func cookieFor(role string) *string {
	v := shared.EncodeClaim(shared.Claim{UserID: "u-1", Role: role})
	return &v
}

func rawCookie(s string) *string {
	v := base64.StdEncoding.EncodeToString([]byte(s))
	return &v
}

func TestGateScenarios(t *testing.T) {
	g := NewGate("/admin")

	assert.Equal(t, RedirectLogin, g.Decide("/admin/dashboard", nil))
	assert.Equal(t, RedirectNoAccess, g.Decide("/admin/orders", cookieFor("editor")))
	assert.Equal(t, Allow, g.Decide("/admin/products/new", cookieFor("editor")))
	assert.Equal(t, Allow, g.Decide("/admin/revenue", cookieFor("admin")))
}

func TestGateIgnoresPathsOutsidePrefix(t *testing.T) {
	g := NewGate("/admin")
	cookies := []*string{nil, cookieFor("editor"), cookieFor("nobody"), rawCookie("garbage")}
	for _, path := range []string{"/", "/api/products", "/static/css/app.css", "/healthz"} {
		for _, c := range cookies {
			assert.Equal(t, Allow, g.Decide(path, c), path)
		}
	}
}

func TestGateMalformedCookieIsAnonymous(t *testing.T) {
	g := NewGate("/admin")
	junk := "!!!"
	empty := ""
	for name, c := range map[string]*string{
		"not base64":   &junk,
		"empty":        &empty,
		"not json":     rawCookie("admin"),
		"role missing": rawCookie(`{"userId":"u-1"}`),
		"array":        rawCookie(`[{"role":"admin"}]`),
	} {
		t.Run(name, func(t *testing.T) {
			out := g.Evaluate("/admin/products", c)
			assert.Equal(t, RedirectLogin, out.Decision)
			assert.False(t, out.HasClaim)
		})
	}
}

func TestGateRoleTable(t *testing.T) {
	g := NewGate("/admin")
	cases := []struct {
		role string
		path string
		want Decision
	}{
		{"admin", "/admin/orders/abc", Allow},
		{"admin", "/admin/register", Allow},
		{"manager", "/admin/revenue", Allow},
		{"manager", "/admin", Allow},
		{"editor", "/admin/dashboard", Allow},
		{"editor", "/admin/products", Allow},
		{"editor", "/admin/revenue", RedirectNoAccess},
		{"editor", "/admin/register", RedirectNoAccess},
		{"editor", "/admin", RedirectNoAccess},
		{"orderer", "/admin/orders/abc", Allow},
		{"orderer", "/admin/products", RedirectNoAccess},
		{"accountant", "/admin/revenue", Allow},
		{"accountant", "/admin/orders", RedirectNoAccess},
		{"intern", "/admin/dashboard", RedirectNoAccess},
		{"", "/admin/dashboard", RedirectNoAccess},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, g.Decide(tc.path, cookieFor(tc.role)), "%s %s", tc.role, tc.path)
	}
}

func TestGatePublicPages(t *testing.T) {
	g := NewGate("/admin/")
	for _, path := range []string{"/admin/login", "/admin/login/", "/admin/no-access", "/admin/logout"} {
		assert.Equal(t, Allow, g.Decide(path, nil), path)
	}
	assert.Equal(t, RedirectLogin, g.Decide("/admin/register", nil))
	assert.Equal(t, "/admin/login", g.LoginPath())
	assert.Equal(t, "/admin/no-access", g.NoAccessPath())
}

func TestGateIsDeterministic(t *testing.T) {
	g := NewGate("/admin")
	c := cookieFor("orderer")
	first := g.Evaluate("/admin/orders", c)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, g.Evaluate("/admin/orders", c))
	}
	assert.Equal(t, shared.EncodeClaim(shared.Claim{UserID: "u-1", Role: "orderer"}), *c)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "redirect_login", RedirectLogin.String())
	assert.Equal(t, "redirect_no_access", RedirectNoAccess.String())
	assert.Equal(t, "unchecked", Unchecked.String())
}

func TestSectionsAndRoles(t *testing.T) {
	assert.Equal(t, AllSections, Sections(RoleAdmin))
	assert.Equal(t, []Section{SectionDashboard, SectionRevenue}, Sections(RoleAccountant))
	assert.Empty(t, Sections(Role("intern")))
	assert.True(t, IsValidRole("orderer"))
	assert.False(t, IsValidRole("intern"))
}
