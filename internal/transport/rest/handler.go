// Package rest provides HTTP handlers for the catalog listing page and product maintenance.
package rest

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	catalogerrors "github.com/ceramica/storefront/internal/errors"
	"github.com/ceramica/storefront/internal/service"
	"github.com/ceramica/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// ReadinessChecker reports whether the service can answer listing requests.
type ReadinessChecker interface {
	Ready() bool
}

type Handler struct {
	service   service.CatalogService
	readiness ReadinessChecker
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewHandler creates a new instance of the catalog HTTP handler.
func NewHandler(service service.CatalogService, readiness ReadinessChecker, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		readiness: readiness,
		validate:  validator.New(),
		logger:    logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes for the catalog service.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/catalog", func(r chi.Router) {
		r.Get("/", h.Browse)
		r.Get("/categories", h.Categories)
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Post("/", h.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.FindByID)
			r.Delete("/", h.DeleteByID)
			r.Put("/", h.Update)
			r.Put("/stock", h.UpdateStock)
		})
	})

	r.Get("/healthz", h.HealthCheck)
	r.Get("/readyz", h.ReadinessCheck)
}

// Browse renders one listing page from the query string.
// Unknown categories and sort keys are not errors; malformed numbers are.
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	minPrice, ok := web.ParseOptionalGte(r, w, h.logger, "minPrice", 0)
	if !ok {
		return
	}
	maxPrice, ok := web.ParseOptionalGte(r, w, h.logger, "maxPrice", 0)
	if !ok {
		return
	}
	page, ok := web.ParseOptionalGte(r, w, h.logger, "page", 1)
	if !ok {
		return
	}
	params := r.URL.Query()
	query := service.BrowseQuery{
		Category: params.Get("category"),
		Search:   params.Get("q"),
		Sort:     params.Get("sort"),
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		Page:     int(page),
		View:     params.Get("view"),
	}
	if err := h.validate.Struct(query); err != nil {
		web.RespondValidationError(w, r, h.logger, err)
		return
	}

	h.logger.DebugContext(r.Context(), "Received request to browse catalog", "query", query)
	result, err := h.service.Browse(r.Context(), query)
	if err != nil {
		h.respondCatalogError(w, r, err)
		return
	}
	h.logger.DebugContext(r.Context(), "Successfully rendered catalog page",
		"items", result.TotalItems, "page", result.CurrentPage, "pages", result.TotalPages)
	web.RespondJSON(w, h.logger, http.StatusOK, result)
}

// Categories returns the category list of the catalog.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.Categories(r.Context())
	if err != nil {
		h.respondCatalogError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, categories)
}

func (h *Handler) respondCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, catalogerrors.ErrSnapshotUnavailable) {
		h.logger.WarnContext(r.Context(), "Catalog unavailable", "error", err)
		web.RespondError(w, h.logger, http.StatusServiceUnavailable, "Catalog is temporarily unavailable")
		return
	}
	h.logger.ErrorContext(r.Context(), "Error rendering catalog", "error", err)
	web.RespondError(w, h.logger, http.StatusInternalServerError, "Failed to load catalog")
}

// FindByID retrieves a product by its ID.
func (h *Handler) FindByID(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}

	h.logger.DebugContext(r.Context(), "Received request to find product by ID", "ID", id)
	found, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalogerrors.ErrProductNotFound) {
			h.logger.WarnContext(r.Context(), "Product not found", "ID", id)
			web.RespondError(w, h.logger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
			return
		}
		h.logger.ErrorContext(r.Context(), "Error retrieving product", "ID", id, "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve product with ID %s", id))
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, found)
}

// Create handles the creation of a new product.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var productCreateDto service.ProductCreateDto
	if !web.DecodeJSON(w, r, h.logger, h.validate, &productCreateDto) {
		return
	}

	newProduct, err := h.service.Create(r.Context(), productCreateDto)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Error creating product", "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, "Failed to create product")
		return
	}
	h.logger.InfoContext(r.Context(), "Product created successfully", "ID", newProduct.ID, "Name", newProduct.Name)
	web.RespondJSON(w, h.logger, http.StatusCreated, newProduct)
}

// Update replaces a product's details.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}
	var productDTO service.ProductDto
	if !web.DecodeJSON(w, r, h.logger, h.validate, &productDTO) {
		return
	}
	productDTO.ID = id.String()

	updated, err := h.service.Update(r.Context(), productDTO)
	if err != nil {
		if errors.Is(err, catalogerrors.ErrProductNotFound) {
			h.logger.WarnContext(r.Context(), "Product not found for update", "ID", id)
			web.RespondError(w, h.logger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
			return
		}
		h.logger.ErrorContext(r.Context(), "Error updating product", "ID", id, "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, fmt.Sprintf("Failed to update product with ID %s", id))
		return
	}
	h.logger.InfoContext(r.Context(), "Product updated successfully", "ID", updated.ID, "Name", updated.Name)
	web.RespondJSON(w, h.logger, http.StatusOK, updated)
}

// UpdateStock sets a product's stock quantity.
func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}
	var stockUpdateDTO service.StockUpdateDto
	if !web.DecodeJSON(w, r, h.logger, h.validate, &stockUpdateDTO) {
		return
	}

	updated, err := h.service.UpdateStock(r.Context(), id, stockUpdateDTO.Stock, stockUpdateDTO.Version)
	if err != nil {
		if errors.Is(err, catalogerrors.ErrProductNotFound) {
			h.logger.WarnContext(r.Context(), "Product not found for stock update", "ID", id)
			web.RespondError(w, h.logger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
			return
		}
		h.logger.ErrorContext(r.Context(), "Error updating stock for product", "ID", id, "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, fmt.Sprintf("Failed to update stock for product with ID %s", id))
		return
	}
	h.logger.InfoContext(r.Context(), "Stock updated successfully for product", "ID", updated.ID, "NewStock", updated.Stock)
	web.RespondJSON(w, h.logger, http.StatusOK, updated)
}

// DeleteByID deletes a product by its ID.
func (h *Handler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}
	version, ok := web.ParseValidateGte(r, w, h.logger, "version", 1)
	if !ok {
		return
	}
	if err := h.service.DeleteByID(r.Context(), id, version); err != nil {
		if errors.Is(err, catalogerrors.ErrProductNotFound) {
			h.logger.WarnContext(r.Context(), "Product not found for deletion", "ID", id)
			web.RespondError(w, h.logger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
			return
		}
		h.logger.ErrorContext(r.Context(), "Error deleting product", "ID", id, "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, fmt.Sprintf("Failed to delete product with ID %s", id))
		return
	}
	h.logger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck is a simple liveness endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ReadinessCheck answers 200 once the catalog snapshot has been loaded.
func (h *Handler) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if !h.readiness.Ready() {
		web.RespondError(w, h.logger, http.StatusServiceUnavailable, "catalog not loaded")
		return
	}
	w.WriteHeader(http.StatusOK)
}
