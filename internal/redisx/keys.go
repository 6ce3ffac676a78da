package redisx

import "time"

const (
	// Cache of a completed order body: order:{order_id} -> full order JSON
	KeyOrder = "order:%s"

	// Cache of the product listing: products:all -> JSON array
	KeyProductList = "products:all"
)

var (
	TTLOrderCache   = 5 * time.Minute
	TTLProductCache = 30 * time.Second
)
