// Package dashboard serves the HTML admin pages behind the access gate.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/storedash/storedash/internal/catalog/categories"
	"github.com/storedash/storedash/internal/catalog/products"
	"github.com/storedash/storedash/internal/docstore"
	"github.com/storedash/storedash/internal/orders"
	"github.com/storedash/storedash/internal/platform/httpx"
	"github.com/storedash/storedash/internal/rbac"
	"github.com/storedash/storedash/internal/revenue"
	"github.com/storedash/storedash/internal/shared"
	"github.com/storedash/storedash/internal/view"
)

const requestTimeout = 5 * time.Second

// ProductService is the catalog contract used by the pages.
type ProductService interface {
	List(ctx context.Context) ([]products.Product, error)
	Count(ctx context.Context) (int, error)
	GetBySlug(ctx context.Context, slug string) (products.Product, error)
	Create(ctx context.Context, in products.Input) (products.Product, error)
	Update(ctx context.Context, slug string, u products.Update) (products.Product, error)
	Delete(ctx context.Context, slug string) error
	BulkImport(ctx context.Context, raw json.RawMessage) (docstore.TransactionResult, error)
}

// CategoryService feeds the category picker.
type CategoryService interface {
	List(ctx context.Context) ([]categories.Category, error)
}

// OrderService is the order contract used by the pages.
type OrderService interface {
	List(ctx context.Context) ([]orders.Order, error)
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context, id string) (orders.Order, error)
	UpdateStatus(ctx context.Context, change orders.StatusChange) (orders.Order, error)
}

// RevenueService is the revenue contract used by the pages.
type RevenueService interface {
	Summary(ctx context.Context) (revenue.Summary, error)
	Total(ctx context.Context) (decimal.Decimal, error)
}

// Handler renders the admin pages.
type Handler struct {
	logger     *slog.Logger
	templates  *view.Engine
	gate       *rbac.Gate
	products   ProductService
	categories CategoryService
	orders     OrderService
	revenue    RevenueService
	recorder   products.ImportRecorder
}

// NewHandler constructs the page handler.
func NewHandler(logger *slog.Logger, templates *view.Engine, gate *rbac.Gate, p ProductService, c CategoryService, o OrderService, rev RevenueService, recorder products.ImportRecorder) *Handler {
	return &Handler{
		logger:     logger,
		templates:  templates,
		gate:       gate,
		products:   p,
		categories: c,
		orders:     o,
		revenue:    rev,
		recorder:   recorder,
	}
}

// MountRoutes registers the pages relative to the admin prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/", h.redirectHome)
	r.Get("/dashboard", h.showDashboard)

	r.Get("/products", h.listProducts)
	r.Get("/products/new", h.showNewProduct)
	r.Post("/products/new", h.createProduct)
	r.Get("/products/bulk", h.showBulk)
	r.With(limiter).Post("/products/bulk", h.handleBulk)
	r.Get("/products/{slug}", h.showProduct)
	r.Post("/products/{slug}", h.updateProduct)
	r.Post("/products/{slug}/delete", h.deleteProduct)

	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.showOrder)
	r.Post("/orders/{id}/status", h.updateOrderStatus)

	r.Get("/revenue", h.showRevenue)
}

func rateLimitKey(r *http.Request) (string, error) {
	if claim, ok := shared.ClaimFromContext(r.Context()); ok && claim.UserID != "" {
		return "user:" + claim.UserID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.gate.SectionPath(rbac.SectionDashboard), http.StatusSeeOther)
}

type dashboardPage struct {
	ShowProducts bool
	ShowOrders   bool
	ShowRevenue  bool
	Products     int
	Orders       int
	Revenue      decimal.Decimal
}

func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request) {
	claim, _ := shared.ClaimFromContext(r.Context())
	role := rbac.Role(claim.Role)
	page := dashboardPage{
		ShowProducts: rbac.Allowed(role, rbac.SectionProducts),
		ShowOrders:   rbac.Allowed(role, rbac.SectionOrders),
		ShowRevenue:  rbac.Allowed(role, rbac.SectionRevenue),
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	if page.ShowProducts {
		g.Go(func() error {
			n, err := h.products.Count(ctx)
			page.Products = n
			return err
		})
	}
	if page.ShowOrders {
		g.Go(func() error {
			n, err := h.orders.Count(ctx)
			page.Orders = n
			return err
		})
	}
	if page.ShowRevenue {
		g.Go(func() error {
			total, err := h.revenue.Total(ctx)
			page.Revenue = total
			return err
		})
	}
	if err := g.Wait(); err != nil {
		h.fail(w, "load dashboard", err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/dashboard.html", "Dashboard", page)
}

type productsPage struct {
	Products []products.Product
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.products.List(r.Context())
	if err != nil {
		h.fail(w, "list products", err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/products.html", "Products", productsPage{Products: list})
}

type newProductPage struct {
	Input      products.Input
	Categories []categories.Category
	Error      string
}

func (h *Handler) showNewProduct(w http.ResponseWriter, r *http.Request) {
	h.renderNewProduct(w, r, http.StatusOK, newProductPage{})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in, err := productInputFromForm(r)
	if err == nil {
		_, err = h.products.Create(r.Context(), in)
	}
	switch {
	case err == nil:
		http.Redirect(w, r, h.gate.SectionPath(rbac.SectionProducts), http.StatusSeeOther)
	case errors.Is(err, httpx.ErrValidation):
		h.renderNewProduct(w, r, http.StatusBadRequest, newProductPage{Input: in, Error: validationMessage(err)})
	case errors.Is(err, httpx.ErrDuplicate):
		h.renderNewProduct(w, r, http.StatusConflict, newProductPage{Input: in, Error: fmt.Sprintf("Slug %q is already in use", in.Slug)})
	default:
		h.fail(w, "create product", err)
	}
}

func (h *Handler) renderNewProduct(w http.ResponseWriter, r *http.Request, status int, page newProductPage) {
	list, err := h.categories.List(r.Context())
	if err != nil {
		h.fail(w, "list categories", err)
		return
	}
	page.Categories = list
	h.render(w, r, status, "pages/products_new.html", "New product", page)
}

func productInputFromForm(r *http.Request) (products.Input, error) {
	in := products.Input{
		Name:              strings.TrimSpace(r.PostFormValue("name")),
		Slug:              strings.TrimSpace(r.PostFormValue("slug")),
		Description:       r.PostFormValue("description"),
		ImagePath:         strings.TrimSpace(r.PostFormValue("imagePath")),
		CategoryID:        r.PostFormValue("categoryId"),
		IsFeaturedProduct: r.PostFormValue("isFeaturedProduct") == "on",
	}
	price, err := formFloat(r, "price")
	if err != nil {
		return in, err
	}
	if price != nil {
		in.Price = *price
	}
	discount, err := formFloat(r, "discountPercentage")
	if err != nil {
		return in, err
	}
	if discount != nil {
		in.DiscountPercentage = *discount
	}
	if v := strings.TrimSpace(r.PostFormValue("stockLevel")); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return in, fieldError("stockLevel")
		}
		in.StockLevel = n
	}
	return in, nil
}

type productPage struct {
	Product products.Product
	Saved   bool
	Error   string
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, "get product", err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/product_detail.html", p.Name, productPage{Product: p, Saved: r.URL.Query().Get("saved") == "1"})
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	slug := chi.URLParam(r, "slug")
	update, err := productUpdateFromForm(r)
	if err == nil {
		_, err = h.products.Update(r.Context(), slug, update)
	}
	if err != nil {
		if !errors.Is(err, httpx.ErrValidation) {
			h.fail(w, "update product", err)
			return
		}
		p, getErr := h.products.GetBySlug(r.Context(), slug)
		if getErr != nil {
			h.fail(w, "get product", getErr)
			return
		}
		h.render(w, r, http.StatusBadRequest, "pages/product_detail.html", p.Name, productPage{Product: p, Error: validationMessage(err)})
		return
	}
	http.Redirect(w, r, h.gate.SectionPath(rbac.SectionProducts)+"/"+slug+"?saved=1", http.StatusSeeOther)
}

func productUpdateFromForm(r *http.Request) (products.Update, error) {
	var u products.Update
	name := strings.TrimSpace(r.PostFormValue("name"))
	u.Name = &name
	description := r.PostFormValue("description")
	u.Description = &description
	image := strings.TrimSpace(r.PostFormValue("imagePath"))
	u.ImagePath = &image
	featured := r.PostFormValue("isFeaturedProduct") == "on"
	u.IsFeaturedProduct = &featured

	var err error
	if u.Price, err = formFloat(r, "price"); err != nil {
		return u, err
	}
	if u.DiscountPercentage, err = formFloat(r, "discountPercentage"); err != nil {
		return u, err
	}
	if v := strings.TrimSpace(r.PostFormValue("stockLevel")); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return u, fieldError("stockLevel")
		}
		u.StockLevel = &n
	}
	return u, nil
}

func formFloat(r *http.Request, field string) (*float64, error) {
	v := strings.TrimSpace(r.PostFormValue(field))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fieldError(field)
	}
	return &f, nil
}

func fieldError(field string) error {
	return fmt.Errorf("%w: %s must be a number", httpx.ErrValidation, field)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "slug")); err != nil {
		h.fail(w, "delete product", err)
		return
	}
	http.Redirect(w, r, h.gate.SectionPath(rbac.SectionProducts), http.StatusSeeOther)
}

type bulkPage struct {
	Payload string
	Error   string
	Result  *docstore.TransactionResult
}

func (h *Handler) showBulk(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/products_bulk.html", "Bulk import", bulkPage{})
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	payload := r.PostFormValue("payload")
	result, err := h.products.BulkImport(r.Context(), json.RawMessage(payload))
	if err != nil {
		page := bulkPage{Payload: payload}
		status := http.StatusBadRequest
		if errors.Is(err, httpx.ErrValidation) {
			h.record(products.OutcomeRejected, 0)
			page.Error = validationMessage(err)
		} else {
			h.record(products.OutcomeFailed, 0)
			h.logger.Error("bulk upload", slog.Any("error", err))
			status = http.StatusInternalServerError
			page.Error = "Bulk upload failed"
		}
		h.render(w, r, status, "pages/products_bulk.html", "Bulk import", page)
		return
	}
	h.record(products.OutcomeSuccess, len(result.Results))
	h.logger.Info("bulk upload", slog.String("transaction", result.TransactionID), slog.Int("items", len(result.Results)))
	h.render(w, r, http.StatusOK, "pages/products_bulk.html", "Bulk import", bulkPage{Result: &result})
}

func (h *Handler) record(outcome string, items int) {
	if h.recorder != nil {
		h.recorder.RecordBulkImport(outcome, items)
	}
}

type ordersPage struct {
	Orders []orders.Order
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.List(r.Context())
	if err != nil {
		h.fail(w, "list orders", err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/orders.html", "Orders", ordersPage{Orders: list})
}

type orderPage struct {
	Order    orders.Order
	Statuses []string
	Saved    bool
	Error    string
}

func (h *Handler) showOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get order", err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/order_detail.html", "Order "+o.ID, orderPage{Order: o, Statuses: orders.Statuses, Saved: r.URL.Query().Get("saved") == "1"})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	_, err := h.orders.UpdateStatus(r.Context(), orders.StatusChange{ID: id, Status: r.PostFormValue("status")})
	if err != nil {
		if !errors.Is(err, httpx.ErrValidation) {
			h.fail(w, "update order status", err)
			return
		}
		o, getErr := h.orders.Get(r.Context(), id)
		if getErr != nil {
			h.fail(w, "get order", getErr)
			return
		}
		h.render(w, r, http.StatusBadRequest, "pages/order_detail.html", "Order "+o.ID, orderPage{Order: o, Statuses: orders.Statuses, Error: validationMessage(err)})
		return
	}
	http.Redirect(w, r, h.gate.SectionPath(rbac.SectionOrders)+"/"+id+"?saved=1", http.StatusSeeOther)
}

type revenuePage struct {
	Summary revenue.Summary
}

func (h *Handler) showRevenue(w http.ResponseWriter, r *http.Request) {
	summary, err := h.revenue.Summary(r.Context())
	if err != nil {
		h.fail(w, "revenue summary", err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/revenue.html", "Revenue", revenuePage{Summary: summary})
}

func validationMessage(err error) string {
	return httpx.ValidationDetail(err)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, httpx.ErrNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, httpx.ErrValidation):
		http.Error(w, validationMessage(err), http.StatusBadRequest)
	default:
		h.logger.Error(op, slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	if err := h.templates.RenderStatus(w, status, name, h.templates.Page(r, title, data)); err != nil {
		h.logger.Error("render", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
