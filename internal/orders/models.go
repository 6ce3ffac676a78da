package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// HasStock is the advisory snapshot check used by the pre-check pass.
// It does not reserve anything; only TryReserve decides the race.
func (p *Product) HasStock(qty int) bool { return p.Stock >= qty }

type Order struct {
	ID        string          `json:"id"`
	Status    Status          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	Items     []OrderItem     `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"` // snapshot at purchase time
	UnitPrice   decimal.Decimal `json:"unit_price"`   // snapshot at purchase time
	Qty         int             `json:"qty"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// ItemInput is one requested line of a placement: which product, how many.
type ItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// CalculateTotal recomputes the order total from its line totals.
func (o *Order) CalculateTotal() {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.LineTotal)
	}
	o.Total = total
}

// Complete transitions Pending -> Completed. An order with no items can
// never be completed.
func (o *Order) Complete() error {
	if len(o.Items) == 0 {
		return &InvalidStateError{Op: "complete", Reason: "order has no items"}
	}
	if !CanTransition(o.Status, StatusCompleted) {
		return &InvalidStateError{Op: "complete", Reason: "order is " + string(o.Status)}
	}
	o.Status = StatusCompleted
	return nil
}

// Fail transitions Pending -> Failed.
func (o *Order) Fail() error {
	if !CanTransition(o.Status, StatusFailed) {
		return &InvalidStateError{Op: "fail", Reason: "order is " + string(o.Status)}
	}
	o.Status = StatusFailed
	return nil
}

func lineTotal(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(qty)))
}
