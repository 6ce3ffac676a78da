package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	kafkax "github.com/ariefcatur/go-product-ordering.git/internal/kafka"
	"github.com/ariefcatur/go-product-ordering.git/internal/orders"
	"github.com/ariefcatur/go-product-ordering.git/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type ProductReq struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

type RestockReq struct {
	Qty int `json:"qty"`
}

type ProductsHandler struct {
	Store orders.ProductStore
	Redis *redis.Client
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Post("/products", h.createProduct)
	r.Put("/products/{id}", h.updateProduct)
	r.Delete("/products/{id}", h.deleteProduct)
	r.Post("/products/{id}/restock", h.restock)
}

func (req *ProductReq) validate() string {
	if req.Name == "" {
		return "name is required"
	}
	if !req.Price.IsPositive() {
		return "price must be greater than 0"
	}
	if req.Stock < 0 {
		return "stock cannot be negative"
	}
	return ""
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if s, err := h.Redis.Get(ctx, redisx.KeyProductList).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	ps, err := h.Store.List(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	_ = h.Redis.Set(ctx, redisx.KeyProductList, kafkax.MustMarshal(ps), redisx.TTLProductCache).Err()
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p := &orders.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
	}
	if err := h.Store.Create(ctx, p); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.dropListCache(ctx)
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p := &orders.Product{
		ID:          chi.URLParam(r, "id"),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
	}
	if err := h.Store.Update(ctx, p); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.dropListCache(ctx)
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Store.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.dropListCache(ctx)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req RestockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Qty < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "qty must be at least 1"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := h.Store.IncreaseStock(ctx, id, req.Qty); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.dropListCache(ctx)
	p, err := h.Store.Get(ctx, id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) writeStoreError(w http.ResponseWriter, err error) {
	var nf *orders.NotFoundError
	if errors.As(err, &nf) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": nf.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (h *ProductsHandler) dropListCache(ctx context.Context) {
	_ = h.Redis.Del(ctx, redisx.KeyProductList).Err()
}
