package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory ProductStore + OrderStore. TryReserve performs the
// compare-and-decrement under one lock, mirroring the single-statement UPDATE
// the pgx repo issues.
type memStore struct {
	mu       sync.Mutex
	products map[string]*Product
	orders   map[string]*Order

	failReserve  map[string]bool            // force a lost race for a product
	reserveErr   error                      // force TryReserve to error
	createErr    error                      // force order persistence to fail
	afterReserve func(productID string)     // called after each successful reserve
}

func newMemStore(products ...*Product) *memStore {
	s := &memStore{
		products:    map[string]*Product{},
		orders:      map[string]*Order{},
		failReserve: map[string]bool{},
	}
	for _, p := range products {
		cp := *p
		s.products[p.ID] = &cp
	}
	return s
}

func (s *memStore) Get(ctx context.Context, id string) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, &NotFoundError{ProductID: id}
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) List(ctx context.Context) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	return out, nil
}

func (s *memStore) Create(ctx context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *memStore) Update(ctx context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; !ok {
		return &NotFoundError{ProductID: p.ID}
	}
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return &NotFoundError{ProductID: id}
	}
	delete(s.products, id)
	return nil
}

func (s *memStore) TryReserve(ctx context.Context, id string, qty int) (bool, error) {
	if s.reserveErr != nil {
		return false, s.reserveErr
	}
	s.mu.Lock()
	p, ok := s.products[id]
	if !ok {
		s.mu.Unlock()
		return false, &NotFoundError{ProductID: id}
	}
	if s.failReserve[id] || p.Stock < qty {
		s.mu.Unlock()
		return false, nil
	}
	p.Stock -= qty
	p.UpdatedAt = time.Now()
	s.mu.Unlock()
	if s.afterReserve != nil {
		s.afterReserve(id)
	}
	return true, nil
}

func (s *memStore) Release(ctx context.Context, id string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return &NotFoundError{ProductID: id}
	}
	p.Stock += qty
	p.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) IncreaseStock(ctx context.Context, id string, qty int) error {
	return s.Release(ctx, id, qty)
}

func (s *memStore) create(o *Order) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *memStore) stock(t *testing.T, id string) int {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	require.True(t, ok, "product %s missing", id)
	return p.Stock
}

func (s *memStore) setPrice(id string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id].Price = price
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// orderStore adapts memStore to the OrderStore interface without clashing
// with the ProductStore Create method.
type orderStore struct{ s *memStore }

func (a orderStore) Create(ctx context.Context, o *Order) error { return a.s.create(o) }

func (a orderStore) Get(ctx context.Context, id string) (*Order, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	o, ok := a.s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (a orderStore) List(ctx context.Context) ([]Order, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	out := make([]Order, 0, len(a.s.orders))
	for _, o := range a.s.orders {
		out = append(out, *o)
	}
	return out, nil
}

func newPlacer(s *memStore) *Placer {
	return &Placer{Products: s, Orders: orderStore{s: s}}
}

func product(id, name string, price string, stock int) *Product {
	return &Product{
		ID:        id,
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestPlaceOrderSucceeds(t *testing.T) {
	store := newMemStore(
		product("p1", "Keyboard", "50.00", 10),
		product("p2", "Mouse", "25.00", 4),
	)
	placer := newPlacer(store)

	order, err := placer.PlaceOrder(context.Background(), []ItemInput{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p2", Qty: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, order.Status)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Keyboard", order.Items[0].ProductName)
	assert.True(t, order.Items[0].LineTotal.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, order.Items[1].LineTotal.Equal(decimal.RequireFromString("75.00")))
	assert.True(t, order.Total.Equal(decimal.RequireFromString("175.00")))

	assert.Equal(t, 8, store.stock(t, "p1"))
	assert.Equal(t, 1, store.stock(t, "p2"))
	assert.Equal(t, 1, store.orderCount())
}

func TestPlaceOrderRejectsEmptyAndBadQty(t *testing.T) {
	placer := newPlacer(newMemStore(product("p1", "Keyboard", "50.00", 10)))

	_, err := placer.PlaceOrder(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = placer.PlaceOrder(context.Background(), []ItemInput{{ProductID: "p1", Qty: 0}})
	var inv *InvalidStateError
	assert.ErrorAs(t, err, &inv)
}

func TestPlaceOrderUnknownProductReservesNothing(t *testing.T) {
	store := newMemStore(product("p1", "Keyboard", "50.00", 10))
	placer := newPlacer(store)

	_, err := placer.PlaceOrder(context.Background(), []ItemInput{
		{ProductID: "p1", Qty: 2},
		{ProductID: "ghost", Qty: 1},
	})

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.ProductID)
	// Pre-check aborts before any reservation is attempted.
	assert.Equal(t, 10, store.stock(t, "p1"))
	assert.Equal(t, 0, store.orderCount())
}

func TestPlaceOrderInsufficientStockPreCheck(t *testing.T) {
	store := newMemStore(
		product("p1", "Keyboard", "50.00", 10),
		product("p2", "Mouse", "25.00", 2),
	)
	placer := newPlacer(store)

	items := []ItemInput{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p2", Qty: 5},
	}
	_, err := placer.PlaceOrder(context.Background(), items)

	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, "p2", stock.ProductID)
	assert.Equal(t, "Mouse", stock.ProductName)
	assert.Equal(t, 2, stock.Available)
	assert.Equal(t, 5, stock.Requested)

	// No partial reservation survives a failed placement.
	assert.Equal(t, 10, store.stock(t, "p1"))
	assert.Equal(t, 2, store.stock(t, "p2"))

	// Same inputs, no state change: identical failure details.
	_, err2 := placer.PlaceOrder(context.Background(), items)
	var stock2 *InsufficientStockError
	require.ErrorAs(t, err2, &stock2)
	assert.Equal(t, stock, stock2)
}

func TestPlaceOrderLostRaceRollsBack(t *testing.T) {
	store := newMemStore(
		product("p1", "Keyboard", "50.00", 10),
		product("p2", "Mouse", "25.00", 5),
	)
	// p2 passes the advisory pre-check but loses the reserve race.
	store.failReserve["p2"] = true
	placer := newPlacer(store)

	_, err := placer.PlaceOrder(context.Background(), []ItemInput{
		{ProductID: "p1", Qty: 4},
		{ProductID: "p2", Qty: 3},
	})

	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, "p2", stock.ProductID)
	assert.Equal(t, 5, stock.Available) // current stock at failure time
	assert.Equal(t, 3, stock.Requested)

	// p1's reservation was released in the rollback.
	assert.Equal(t, 10, store.stock(t, "p1"))
	assert.Equal(t, 5, store.stock(t, "p2"))
	assert.Equal(t, 0, store.orderCount())
}

func TestPlaceOrderPersistFailureReleases(t *testing.T) {
	store := newMemStore(product("p1", "Keyboard", "50.00", 10))
	store.createErr = errors.New("connection reset")
	placer := newPlacer(store)

	_, err := placer.PlaceOrder(context.Background(), []ItemInput{{ProductID: "p1", Qty: 4}})

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 10, store.stock(t, "p1"))
}

func TestPlaceOrderCancellationReleases(t *testing.T) {
	store := newMemStore(
		product("p1", "Keyboard", "50.00", 10),
		product("p2", "Mouse", "25.00", 5),
	)
	ctx, cancel := context.WithCancel(context.Background())
	store.afterReserve = func(id string) {
		if id == "p1" {
			cancel() // client goes away mid-placement
		}
	}
	placer := newPlacer(store)

	_, err := placer.PlaceOrder(ctx, []ItemInput{
		{ProductID: "p1", Qty: 4},
		{ProductID: "p2", Qty: 2},
	})

	require.ErrorIs(t, err, context.Canceled)
	// A cancelled request must never leak reserved stock.
	assert.Equal(t, 10, store.stock(t, "p1"))
	assert.Equal(t, 5, store.stock(t, "p2"))
	assert.Equal(t, 0, store.orderCount())
}

func TestPlaceOrderPriceSnapshot(t *testing.T) {
	store := newMemStore(product("p1", "Keyboard", "50.00", 10))
	store.afterReserve = func(id string) {
		// Price changes while the placement is in flight.
		store.setPrice("p1", decimal.RequireFromString("99.99"))
	}
	placer := newPlacer(store)

	order, err := placer.PlaceOrder(context.Background(), []ItemInput{{ProductID: "p1", Qty: 2}})
	require.NoError(t, err)

	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("50.00")))
	assert.True(t, order.Total.Equal(decimal.RequireFromString("100.00")))
}

func TestConcurrentPlacementsConserveStock(t *testing.T) {
	const initial = 100
	const workers = 50
	const qty = 3

	store := newMemStore(product("p1", "Keyboard", "50.00", initial))
	placer := newPlacer(store)

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := placer.PlaceOrder(context.Background(), []ItemInput{{ProductID: "p1", Qty: qty}})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var stock *InsufficientStockError
		require.ErrorAs(t, err, &stock)
	}

	// Conservation: completed quantities never exceed supply, and the final
	// stock accounts for exactly the completed orders.
	assert.LessOrEqual(t, succeeded*qty, initial)
	assert.Equal(t, initial-succeeded*qty, store.stock(t, "p1"))
	assert.GreaterOrEqual(t, store.stock(t, "p1"), 0)
	assert.Equal(t, succeeded, store.orderCount())
}

func TestConcurrentPlacementsSingleWinner(t *testing.T) {
	// Product with stock 5; two racing placements of qty 3: exactly one can
	// win, and stock must end at 2, never negative.
	store := newMemStore(product("p1", "Keyboard", "50.00", 5))
	placer := newPlacer(store)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = placer.PlaceOrder(context.Background(), []ItemInput{{ProductID: "p1", Qty: 3}})
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			var stock *InsufficientStockError
			require.ErrorAs(t, err, &stock)
			assert.Equal(t, 3, stock.Requested)
		}
	}
	require.Equal(t, 1, failures)
	assert.Equal(t, 2, store.stock(t, "p1"))
}
