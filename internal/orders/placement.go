package orders

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

// Placer runs one order placement as an all-or-nothing unit: every line item
// is reserved against live stock, or none is. There are no in-process locks;
// atomicity rests entirely on the store's compare-and-decrement, so racing
// placements coordinate only through the store and the engine scales across
// replicas.
type Placer struct {
	Products ProductStore
	Orders   OrderStore
}

// reservation records one successful TryReserve so rollback can release
// exactly what was taken. The product is the pre-check snapshot: its price is
// what the order item will carry, regardless of later price changes.
type reservation struct {
	product Product
	qty     int
}

// PlaceOrder validates the requested quantities, reserves stock per line item
// in input order, and returns a Completed order only when every reservation
// succeeded and the order was persisted. Any failure after a partial
// reservation releases the reserved stock before the error propagates.
func (p *Placer) PlaceOrder(ctx context.Context, items []ItemInput) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, it := range items {
		if it.Qty < 1 {
			return nil, &InvalidStateError{Op: "place", Reason: "quantity must be at least 1 for product " + it.ProductID}
		}
	}

	// Pre-check pass: snapshot every product before touching the ledger.
	// Fails fast on unknown products and obviously short stock, but the
	// snapshot cannot win the race by itself; only TryReserve decides.
	snapshots := make([]Product, 0, len(items))
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prod, err := p.Products.Get(ctx, it.ProductID)
		if err != nil {
			var nf *NotFoundError
			if errors.As(err, &nf) {
				return nil, err
			}
			return nil, &StoreError{Op: "get product", Err: err}
		}
		if !prod.HasStock(it.Qty) {
			return nil, &InsufficientStockError{
				ProductID:   prod.ID,
				ProductName: prod.Name,
				Available:   prod.Stock,
				Requested:   it.Qty,
			}
		}
		snapshots = append(snapshots, *prod)
	}

	// Reserve pass: fixed input order, one atomic decrement per item.
	reserved := make([]reservation, 0, len(items))
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			p.releaseAll(ctx, reserved)
			return nil, err
		}
		ok, err := p.Products.TryReserve(ctx, it.ProductID, it.Qty)
		if err != nil {
			p.releaseAll(ctx, reserved)
			return nil, &StoreError{Op: "reserve stock", Err: err}
		}
		if !ok {
			// Lost the race since the pre-check. Report the stock as it
			// is now, not as the snapshot saw it.
			p.releaseAll(ctx, reserved)
			return nil, p.insufficientNow(ctx, snapshots[i], it.Qty)
		}
		reserved = append(reserved, reservation{product: snapshots[i], qty: it.Qty})
	}

	order := assemble(reserved)
	if err := order.Complete(); err != nil {
		p.releaseAll(ctx, reserved)
		return nil, err
	}

	if err := p.Orders.Create(ctx, order); err != nil {
		p.releaseAll(ctx, reserved)
		return nil, &StoreError{Op: "create order", Err: err}
	}
	return order, nil
}

// assemble builds the immutable order aggregate from the reserved items.
// Unit prices come from the pre-check snapshots, so a concurrent price change
// cannot retroactively alter an in-flight order.
func assemble(reserved []reservation) *Order {
	order := &Order{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	for _, r := range reserved {
		item := OrderItem{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			ProductID:   r.product.ID,
			ProductName: r.product.Name,
			UnitPrice:   r.product.Price,
			Qty:         r.qty,
			LineTotal:   lineTotal(r.product.Price, r.qty),
		}
		order.Items = append(order.Items, item)
	}
	order.CalculateTotal()
	return order
}

// releaseAll undoes a partial reservation in reverse order. It runs on a
// context detached from the request: a cancelled placement must still give
// its stock back.
func (p *Placer) releaseAll(ctx context.Context, reserved []reservation) {
	ctx = context.WithoutCancel(ctx)
	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if err := p.Products.Release(ctx, r.product.ID, r.qty); err != nil {
			// Stock stays under-credited until an operator reconciles;
			// loud is the only safe option here.
			log.Printf("release %d x product %s failed: %v", r.qty, r.product.ID, err)
		}
	}
}

// insufficientNow builds the conflict error for a lost reservation race,
// re-reading current stock. Falls back to the snapshot if the re-read fails.
func (p *Placer) insufficientNow(ctx context.Context, snap Product, qty int) error {
	available := snap.Stock
	if cur, err := p.Products.Get(context.WithoutCancel(ctx), snap.ID); err == nil {
		available = cur.Stock
	}
	return &InsufficientStockError{
		ProductID:   snap.ID,
		ProductName: snap.Name,
		Available:   available,
		Requested:   qty,
	}
}
