package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCompleted = "OrderCompleted"
	EventOrderRejected  = "OrderRejected"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "ordering-api"
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id when known
	Payload       json.RawMessage `json:"payload"`
}

// ---- payload types per event ----

type CompletedItem struct {
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type OrderCompletedPayload struct {
	OrderID string          `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
	Items   []CompletedItem `json:"items"`
}

type OrderRejectedPayload struct {
	Reason    string `json:"reason"` // e.g., OUT_OF_STOCK
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}
