package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProductRepo implements ProductStore on Postgres. TryReserve is the
// concurrency linchpin: a single conditional UPDATE guarded by
// `stock >= qty`, judged by the affected-row count. Never read-then-write.
type ProductRepo struct{ DB *pgxpool.Pool }

const productCols = `id, name, description, price, stock, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) Get(ctx context.Context, id string) (*Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx,
		`SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{ProductID: id}
	}
	return p, err
}

func (r *ProductRepo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT `+productCols+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *ProductRepo) Create(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(id, name, description, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *ProductRepo) Update(ctx context.Context, p *Product) error {
	p.UpdatedAt = time.Now().UTC()
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET name=$2, description=$3, price=$4, stock=$5, updated_at=$6
		WHERE id=$1`,
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return &NotFoundError{ProductID: p.ID}
	}
	return nil
}

func (r *ProductRepo) Delete(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return &NotFoundError{ProductID: id}
	}
	return nil
}

// TryReserve: decrement stock by qty only if current stock covers it. The
// WHERE clause and the decrement execute as one statement, so two racing
// placements can never both win the same units.
func (r *ProductRepo) TryReserve(ctx context.Context, id string, qty int) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, id, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// Release credits back a reserved quantity (compensating action on rollback).
func (r *ProductRepo) Release(ctx context.Context, id string, qty int) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`, id, qty)
	return err
}

func (r *ProductRepo) IncreaseStock(ctx context.Context, id string, qty int) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return &NotFoundError{ProductID: id}
	}
	return nil
}
