package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hyperterse/hypercluster/core/domain"
	"github.com/hyperterse/hypercluster/core/domain/interfaces"
	"github.com/hyperterse/hypercluster/core/infrastructure/transport/http/dto"
	"github.com/hyperterse/hypercluster/core/shared/errors"
)

// Product events emitted to the products room after a successful mutation.
const (
	ProductsRoom          = "productos"
	EventProductCreated   = "product:created"
	EventProductUpdated   = "product:updated"
	EventProductDeleted   = "product:deleted"
	maxProductRequestBody = 1 << 20
)

// EventNotifier pushes an event to every real-time client in room, on this
// worker and on the others.
type EventNotifier interface {
	Broadcast(room, event string, data any)
}

// ProductHandler serves /api/productos.
//
// Create and Update reject a body without a title or with a negative price
// before it reaches the store, so no half-filled product is ever saved or
// broadcast. The rejection is answered like any other failed write: 500 with
// the operation's fixed message, since the API has no 400 response.
type ProductHandler struct {
	*BaseHandler
	store    interfaces.ProductStore
	notifier EventNotifier
	validate *validator.Validate
}

// NewProductHandler creates a product handler. notifier may be nil.
func NewProductHandler(store interfaces.ProductStore, notifier EventNotifier) *ProductHandler {
	return &ProductHandler{
		BaseHandler: NewBaseHandler("products"),
		store:       store,
		notifier:    notifier,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// List handles GET /api/productos
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.GetAll(r.Context())
	if err != nil {
		h.WriteError(w, errors.NewAppError(errors.ErrCodeReadFailed, err))
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	h.WriteSuccess(w, products)
}

// Create handles POST /api/productos
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, err := h.decodeInput(w, r)
	if err != nil {
		h.WriteError(w, errors.NewAppError(errors.ErrCodeCreateFailed, err))
		return
	}

	product, err := h.store.Save(r.Context(), in)
	if err != nil {
		h.WriteError(w, errors.NewAppError(errors.ErrCodeCreateFailed, err))
		return
	}

	h.logger.Infof("Product created: %s", product.ID)
	h.notify(EventProductCreated, product)
	h.WriteSuccess(w, dto.CreateProductResponse{Result: dto.ResultOK, NewProduct: product})
}

// Get handles GET /api/productos/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	product, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.WriteError(w, storeError(errors.ErrCodeReadFailed, id, err))
		return
	}
	h.WriteSuccess(w, product)
}

// Update handles PUT /api/productos/{id}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	in, err := h.decodeInput(w, r)
	if err != nil {
		h.WriteError(w, errors.NewAppError(errors.ErrCodeUpdateFailed, err))
		return
	}

	product, err := h.store.UpdateByID(r.Context(), id, in)
	if err != nil {
		h.WriteError(w, storeError(errors.ErrCodeUpdateFailed, id, err))
		return
	}

	h.logger.Infof("Product updated: %s", product.ID)
	h.notify(EventProductUpdated, product)
	h.WriteSuccess(w, dto.UpdateProductResponse{Result: dto.ResultOK, UpdateProduct: product})
}

// Delete handles DELETE /api/productos/{id}
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteByID(r.Context(), id); err != nil {
		h.WriteError(w, storeError(errors.ErrCodeDeleteFailed, id, err))
		return
	}

	h.logger.Infof("Product deleted: %s", id)
	h.notify(EventProductDeleted, map[string]string{"id": id})
	h.WriteSuccess(w, dto.DeleteProductResponse{Result: dto.ResultOK, DeletedID: id})
}

func (h *ProductHandler) decodeInput(w http.ResponseWriter, r *http.Request) (domain.ProductInput, error) {
	var in domain.ProductInput

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxProductRequestBody))
	if err := dec.Decode(&in); err != nil {
		return in, fmt.Errorf("decode product: %w", err)
	}
	if err := h.validate.Struct(in); err != nil {
		return in, fmt.Errorf("validate product: %w", err)
	}
	return in, nil
}

func (h *ProductHandler) notify(event string, data any) {
	if h.notifier == nil {
		return
	}
	h.notifier.Broadcast(ProductsRoom, event, data)
}

// storeError maps a store failure for id to its response: a missing product
// is reported as not found, anything else with the operation's code.
func storeError(code errors.ErrorCode, id string, err error) *errors.AppError {
	if stderrors.Is(err, domain.ErrProductNotFound) {
		return errors.NewAppError(errors.ErrCodeNotFound, fmt.Errorf("product %q: %w", id, err))
	}
	return errors.NewAppError(code, fmt.Errorf("product %q: %w", id, err))
}
