package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderRepo implements OrderStore on Postgres. An order and its items are
// written in one transaction; readers never see a partial order.
type OrderRepo struct{ DB *pgxpool.Pool }

func (r *OrderRepo) Create(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, status, total, created_at)
		VALUES ($1, $2, $3, $4)`,
		o.ID, string(o.Status), o.Total, o.CreatedAt)
	if err != nil {
		return err
	}
	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, product_name, unit_price, qty, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			it.ID, it.OrderID, it.ProductID, it.ProductName, it.UnitPrice, it.Qty, it.LineTotal)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *OrderRepo) Get(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, status, total, created_at FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.Status, &o.Total, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Items, err = r.itemsFor(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) List(ctx context.Context) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, status, total, created_at FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Status, &o.Total, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Items, err = r.itemsFor(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *OrderRepo) itemsFor(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_name, unit_price, qty, line_total
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.UnitPrice, &it.Qty, &it.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
