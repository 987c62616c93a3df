package app

import (
	"bytes"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storedash/storedash/internal/rbac"
	"github.com/storedash/storedash/internal/shared"
)

func TestRequestLogCoversGateRedirects(t *testing.T) {
	var buf bytes.Buffer
	previous := middleware.DefaultLogger
	middleware.DefaultLogger = middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log.New(&buf, "", 0), NoColor: true})
	t.Cleanup(func() { middleware.DefaultLogger = previous })

	logger := slog.New(slog.DiscardHandler)
	guard := rbac.Middleware{Gate: rbac.NewGate("/admin"), Sessions: shared.NewSessionManager("session", false), Logger: logger}
	r := chi.NewRouter()
	r.Use(MiddlewareStack(MiddlewareConfig{Logger: logger, Guard: guard, RequestLog: true})...)
	r.Get("/admin/dashboard", func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("gate should redirect before the page runs")
	})

	res := httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Contains(t, buf.String(), "/admin/dashboard")
	assert.Contains(t, buf.String(), "303")
}

func TestRequestLogDisabled(t *testing.T) {
	with := MiddlewareStack(MiddlewareConfig{Logger: slog.New(slog.DiscardHandler), RequestLog: true})
	without := MiddlewareStack(MiddlewareConfig{Logger: slog.New(slog.DiscardHandler)})
	assert.Len(t, with, len(without)+1)
}
