package revenue

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storedash/storedash/internal/platform/httpx"
)

// Handler serves the revenue JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers revenue routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.summary)
}

type summaryResponse struct {
	Revenue  json.Number            `json:"revenue"`
	Orders   int                    `json:"orders"`
	ByStatus map[string]json.Number `json:"byStatus"`
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Summary(r.Context())
	if err != nil {
		h.logger.Error("revenue summary", slog.Any("error", err))
		httpx.RespondErrorWith(w, err, "Error fetching revenue")
		return
	}
	resp := summaryResponse{
		Revenue:  json.Number(sum.Total.StringFixed(2)),
		Orders:   sum.Orders,
		ByStatus: make(map[string]json.Number, len(sum.ByStatus)),
	}
	for status, total := range sum.ByStatus {
		resp.ByStatus[status] = json.Number(total.StringFixed(2))
	}
	httpx.JSON(w, http.StatusOK, resp)
}
