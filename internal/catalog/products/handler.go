package products

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storedash/storedash/internal/platform/httpx"
)

// maxBulkBody bounds the size of a bulk import request.
const maxBulkBody = 8 << 20

// ImportRecorder observes bulk import outcomes.
type ImportRecorder interface {
	RecordBulkImport(outcome string, items int)
}

// Bulk import outcomes reported to the ImportRecorder.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Handler serves the product JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	recorder ImportRecorder
}

// NewHandler constructs a Handler. recorder may be nil.
func NewHandler(logger *slog.Logger, service *Service, recorder ImportRecorder) *Handler {
	return &Handler{logger: logger, service: service, recorder: recorder}
}

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/bulk", h.bulk)
	r.Get("/{slug}", h.show)
	r.Put("/{slug}", h.update)
	r.Delete("/{slug}", h.remove)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.RespondErrorWith(w, err, "Error fetching products")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": list})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if !errors.Is(err, httpx.ErrNotFound) {
			h.logger.Error("get product", slog.Any("error", err))
		}
		httpx.RespondErrorWith(w, err, "Error fetching product")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product": product})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Warn("create product", slog.Any("error", err))
		httpx.RespondErrorWith(w, err, "Error creating product")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product": product})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var u Update
	if err := httpx.DecodeJSON(r, &u); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.Update(r.Context(), chi.URLParam(r, "slug"), u)
	if err != nil {
		h.logger.Warn("update product", slog.Any("error", err))
		httpx.RespondErrorWith(w, err, "Error updating product")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product": product})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "slug")); err != nil {
		h.logger.Warn("delete product", slog.Any("error", err))
		httpx.RespondErrorWith(w, err, "Error deleting product")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

// bulkResponse is the success payload of a bulk import.
type bulkResponse struct {
	Message string `json:"message"`
	Result  any    `json:"result"`
}

func (h *Handler) bulk(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBulkBody))
	if err != nil {
		h.record(OutcomeRejected, 0)
		httpx.Error(w, http.StatusBadRequest, "could not read request body")
		return
	}
	result, err := h.service.BulkImport(r.Context(), raw)
	if err != nil {
		if errors.Is(err, httpx.ErrValidation) {
			h.record(OutcomeRejected, 0)
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.record(OutcomeFailed, 0)
		h.logger.Error("bulk upload", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Bulk upload failed")
		return
	}
	h.record(OutcomeSuccess, len(result.Results))
	h.logger.Info("bulk upload", slog.String("transaction", result.TransactionID), slog.Int("items", len(result.Results)))
	httpx.JSON(w, http.StatusOK, bulkResponse{Message: "Bulk upload success", Result: result})
}

func (h *Handler) record(outcome string, items int) {
	if h.recorder != nil {
		h.recorder.RecordBulkImport(outcome, items)
	}
}
