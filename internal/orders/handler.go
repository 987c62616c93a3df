package orders

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storedash/storedash/internal/platform/httpx"
)

// Handler serves the order JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers order routes. Status updates use PUT on the
// collection with the order ID in the body.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Put("/", h.updateStatus)
	r.Get("/{id}", h.show)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondErrorWith(w, err, "Error fetching orders")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondErrorWith(w, err, "Error fetching order")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var change StatusChange
	if err := httpx.DecodeJSON(r, &change); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.UpdateStatus(r.Context(), change)
	if err != nil {
		h.logger.Warn("update order status", slog.String("order", change.ID), slog.Any("error", err))
		httpx.RespondErrorWith(w, err, "Error updating order")
		return
	}
	h.logger.Info("order status updated", slog.String("order", order.ID), slog.String("status", order.Status))
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order})
}
