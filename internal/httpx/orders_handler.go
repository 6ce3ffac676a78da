package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	kafkax "github.com/ariefcatur/go-product-ordering.git/internal/kafka"
	"github.com/ariefcatur/go-product-ordering.git/internal/orders"
	"github.com/ariefcatur/go-product-ordering.git/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

type PlaceOrderReq struct {
	Items []orders.ItemInput `json:"items"`
}

type OrdersHandler struct {
	Placer            *orders.Placer
	Store             orders.OrderStore
	Redis             *redis.Client
	ProducerCompleted *kafkax.Producer
	ProducerRejected  *kafkax.Producer
	Service           string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order must contain at least one item"})
		return
	}
	for _, it := range req.Items {
		if it.ProductID == "" || it.Qty < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "each item needs a product_id and a qty of at least 1"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Placer.PlaceOrder(ctx, req.Items)
	if err != nil {
		h.writePlacementError(w, err)
		return
	}

	// Cache the order body so the follow-up GET skips the DB.
	key := fmt.Sprintf(redisx.KeyOrder, order.ID)
	_ = h.Redis.Set(ctx, key, kafkax.MustMarshal(order), redisx.TTLOrderCache).Err()

	h.publishCompleted(order)
	writeJSON(w, http.StatusCreated, order)
}

func (h *OrdersHandler) writePlacementError(w http.ResponseWriter, err error) {
	var stock *orders.InsufficientStockError
	if errors.As(err, &stock) {
		h.publishRejected(stock)
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":              "insufficient stock",
			"message":            stock.Error(),
			"product_id":         stock.ProductID,
			"product_name":       stock.ProductName,
			"available_stock":    stock.Available,
			"requested_quantity": stock.Requested,
		})
		return
	}
	var nf *orders.NotFoundError
	if errors.As(err, &nf) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":      "product not found",
			"message":    nf.Error(),
			"product_id": nf.ProductID,
		})
		return
	}
	var inv *orders.InvalidStateError
	if errors.Is(err, orders.ErrEmptyOrder) || errors.As(err, &inv) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var store *orders.StoreError
	if errors.As(err, &store) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrder, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	order, err := h.Store.Get(ctx, orderID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	_ = h.Redis.Set(ctx, key, kafkax.MustMarshal(order), redisx.TTLOrderCache).Err()
	writeJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Store.List(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) publishCompleted(order *orders.Order) {
	items := make([]orders.CompletedItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, orders.CompletedItem{
			ProductID: it.ProductID,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal,
		})
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCompleted,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		CorrelationID: order.ID,
		Payload: kafkax.MustMarshal(orders.OrderCompletedPayload{
			OrderID: order.ID,
			Total:   order.Total,
			Items:   items,
		}),
	}
	h.ProducerCompleted.Publish(orders.PartitionKey(order.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCompleted)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) publishRejected(stock *orders.InsufficientStockError) {
	ev := orders.Envelope{
		EventID:      uuid.NewString(),
		EventType:    orders.EventOrderRejected,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     h.Service,
		Payload: kafkax.MustMarshal(orders.OrderRejectedPayload{
			Reason:    "OUT_OF_STOCK",
			ProductID: stock.ProductID,
			Required:  stock.Requested,
			Available: stock.Available,
		}),
	}
	h.ProducerRejected.Publish(orders.PartitionKey(stock.ProductID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderRejected)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
