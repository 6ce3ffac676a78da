package orders

import "context"

// ProductStore is the stock ledger plus the product catalog behind it. The
// only concurrency primitive the placement engine relies on is TryReserve:
// a single atomic compare-and-decrement in the backing store.
type ProductStore interface {
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error

	// TryReserve decrements stock by qty only if current stock >= qty and
	// reports whether the decrement happened. It must be indivisible with
	// respect to other reservations on the same product.
	TryReserve(ctx context.Context, id string, qty int) (bool, error)

	// Release credits back a quantity previously taken by TryReserve. Used
	// to undo a partial multi-item reservation.
	Release(ctx context.Context, id string, qty int) error

	// IncreaseStock adds supply (admin restock).
	IncreaseStock(ctx context.Context, id string, qty int) error
}

type OrderStore interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// List returns orders newest-first.
	List(ctx context.Context) ([]Order, error)
}
