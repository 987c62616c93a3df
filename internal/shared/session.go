package shared

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Claim is the identity carried by the session cookie. It is neither signed nor
// encrypted: the value is base64 encoded JSON.
type Claim struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// SessionManager reads and writes the claim cookie. It keeps no server side state.
type SessionManager struct {
	cookieName string
	secure     bool
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(cookieName string, secure bool) *SessionManager {
	return &SessionManager{cookieName: cookieName, secure: secure}
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Value returns the raw cookie value, or nil when the request carries no cookie.
func (sm *SessionManager) Value(r *http.Request) *string {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		return nil
	}
	value := cookie.Value
	return &value
}

// Load decodes the claim carried by the request.
func (sm *SessionManager) Load(r *http.Request) (Claim, error) {
	value := sm.Value(r)
	if value == nil {
		return Claim{}, ErrNoSession
	}
	return DecodeClaim(*value)
}

// Issue writes the claim cookie.
func (sm *SessionManager) Issue(w http.ResponseWriter, claim Claim) {
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    EncodeClaim(claim),
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Destroy expires the claim cookie.
func (sm *SessionManager) Destroy(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// EncodeClaim serialises the claim as standard base64 of its JSON form.
func EncodeClaim(c Claim) string {
	data, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeClaim parses a cookie value. The value must be base64 of a JSON object
// holding a "role" key; anything else yields ErrInvalidClaim. A role that is not
// a JSON string keeps its raw JSON text and therefore matches no known role.
func DecodeClaim(value string) (Claim, error) {
	raw, err := decodeBase64(strings.TrimSpace(value))
	if err != nil {
		return Claim{}, fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Claim{}, fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
	role, ok := fields["role"]
	if !ok {
		return Claim{}, fmt.Errorf("%w: role missing", ErrInvalidClaim)
	}
	return Claim{UserID: rawString(fields["userId"]), Role: rawString(role)}, nil
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty value")
	}
	var lastErr error
	for _, enc := range base64Encodings {
		data, err := enc.DecodeString(value)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
