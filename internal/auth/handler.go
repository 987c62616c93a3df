package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storedash/storedash/internal/platform/httpx"
	"github.com/storedash/storedash/internal/rbac"
	"github.com/storedash/storedash/internal/shared"
	"github.com/storedash/storedash/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	sessions  *shared.SessionManager
	guard     rbac.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, guard rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		sessions:  sessions,
		guard:     guard,
	}
}

// MountAPI registers the JSON endpoints, normally under /api/auth.
func (h *Handler) MountAPI(r chi.Router) {
	r.Post("/login", h.apiLogin)
	r.Get("/logout", h.apiLogout)
	r.Post("/logout", h.apiLogout)
	r.With(h.guard.RequireRoles(rbac.RoleAdmin, rbac.RoleManager)).Post("/register", h.apiRegister)
}

// MountPages registers the HTML pages under the admin prefix. Access to the
// register page is decided by the gate.
func (h *Handler) MountPages(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
	r.Get("/no-access", h.showNoAccess)
}

type twoFactorChallenge struct {
	Error             string `json:"error"`
	TwoFactorRequired bool   `json:"twoFactorRequired"`
}

func (h *Handler) apiLogin(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := httpx.DecodeJSON(r, &creds); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		httpx.Error(w, http.StatusBadRequest, "Missing email or password")
		return
	}
	user, err := h.service.Authenticate(r.Context(), creds)
	switch {
	case err == nil:
	case errors.Is(err, ErrTwoFactorRequired):
		httpx.JSON(w, http.StatusUnauthorized, twoFactorChallenge{Error: err.Error(), TwoFactorRequired: true})
		return
	case errors.Is(err, ErrInvalidTwoFactor):
		httpx.Error(w, http.StatusUnauthorized, "Invalid 2FA code")
		return
	case errors.Is(err, shared.ErrInvalidCredentials):
		httpx.Error(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, err)
		return
	default:
		h.logger.Error("login", slog.Any("error", err))
		httpx.RespondErrorWith(w, err, "Internal Server Error")
		return
	}
	h.sessions.Issue(w, Claim(user))
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Login successful", "role": user.Role})
}

func (h *Handler) apiLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(w)
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

type registerResponse struct {
	Message    string `json:"message"`
	UserID     string `json:"userId"`
	OTPAuthURL string `json:"otpauthUrl,omitempty"`
}

func (h *Handler) apiRegister(w http.ResponseWriter, r *http.Request) {
	var reg Registration
	if err := httpx.DecodeJSON(r, &reg); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if strings.TrimSpace(reg.Email) == "" || reg.Password == "" {
		httpx.Error(w, http.StatusBadRequest, "Missing fields")
		return
	}
	user, err := h.service.Register(r.Context(), reg)
	if err != nil {
		if errors.Is(err, httpx.ErrDuplicate) {
			httpx.Error(w, http.StatusConflict, "User already exists")
			return
		}
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("register", slog.Any("error", err))
		}
		httpx.RespondErrorWith(w, err, "Internal Server Error")
		return
	}
	h.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("role", user.Role))
	httpx.JSON(w, http.StatusOK, registerResponse{Message: "User registered", UserID: user.ID, OTPAuthURL: user.ProvisioningURL})
}

type loginPage struct {
	Email    string
	Error    string
	NeedCode bool
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/login.html", "Sign in", loginPage{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	creds := Credentials{
		Email:          r.PostFormValue("email"),
		Password:       r.PostFormValue("password"),
		TwoFactorToken: r.PostFormValue("twoFactorToken"),
	}
	page := loginPage{Email: creds.Email}
	user, err := h.service.Authenticate(r.Context(), creds)
	if err != nil {
		status := http.StatusUnauthorized
		switch {
		case errors.Is(err, ErrTwoFactorRequired):
			page.NeedCode = true
			page.Error = "Enter the code from your authenticator app"
		case errors.Is(err, ErrInvalidTwoFactor):
			page.NeedCode = true
			page.Error = "Invalid 2FA code"
		case errors.Is(err, shared.ErrInvalidCredentials):
			page.Error = "Invalid email or password"
		case errors.Is(err, httpx.ErrValidation):
			status = http.StatusBadRequest
			page.Error = "Email and password are required"
		default:
			h.logger.Error("login", slog.Any("error", err))
			status = http.StatusInternalServerError
			page.Error = "Sign in is unavailable, try again later"
		}
		h.render(w, r, status, "pages/login.html", "Sign in", page)
		return
	}
	h.sessions.Issue(w, Claim(user))
	http.Redirect(w, r, h.guard.Gate.SectionPath(rbac.SectionDashboard), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(w)
	http.Redirect(w, r, h.guard.Gate.LoginPath(), http.StatusSeeOther)
}

type registerPage struct {
	Email           string
	Username        string
	Role            string
	Roles           []string
	Error           string
	Success         string
	ProvisioningURL string
}

func assignableRoles() []string {
	return []string{
		string(rbac.RoleEditor),
		string(rbac.RoleOrderer),
		string(rbac.RoleAccountant),
		string(rbac.RoleManager),
		string(rbac.RoleAdmin),
	}
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/register.html", "Register user", registerPage{Role: DefaultRole, Roles: assignableRoles()})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	reg := Registration{
		Email:     r.PostFormValue("email"),
		Password:  r.PostFormValue("password"),
		Username:  r.PostFormValue("username"),
		Role:      r.PostFormValue("role"),
		TwoFactor: r.PostFormValue("twoFactor") == "on",
	}
	page := registerPage{Email: reg.Email, Username: reg.Username, Role: reg.Role, Roles: assignableRoles()}
	user, err := h.service.Register(r.Context(), reg)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, httpx.ErrDuplicate):
			status = http.StatusConflict
			page.Error = "User already exists"
		case errors.Is(err, httpx.ErrValidation):
			page.Error = strings.TrimPrefix(err.Error(), httpx.ErrValidation.Error()+": ")
		default:
			h.logger.Error("register", slog.Any("error", err))
			status = http.StatusInternalServerError
			page.Error = "Registration failed"
		}
		h.render(w, r, status, "pages/register.html", "Register user", page)
		return
	}
	h.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("role", user.Role))
	h.render(w, r, http.StatusOK, "pages/register.html", "Register user", registerPage{
		Role:            DefaultRole,
		Roles:           assignableRoles(),
		Success:         "User " + user.Email + " registered",
		ProvisioningURL: user.ProvisioningURL,
	})
}

func (h *Handler) showNoAccess(w http.ResponseWriter, r *http.Request) {
	if claim, err := h.sessions.Load(r); err == nil {
		r = r.WithContext(shared.ContextWithClaim(r.Context(), claim))
	}
	h.render(w, r, http.StatusForbidden, "pages/no_access.html", "No access", nil)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	if err := h.templates.RenderStatus(w, status, name, h.templates.Page(r, title, data)); err != nil {
		h.logger.Error("render", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
