package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ariefcatur/go-product-ordering.git/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapPayload(t *testing.T) {
	payload := orders.OrderCompletedPayload{
		OrderID: uuid.NewString(),
		Total:   decimal.RequireFromString("175.00"),
		Items: []orders.CompletedItem{
			{ProductID: "p1", Qty: 2, UnitPrice: decimal.RequireFromString("50.00"), LineTotal: decimal.RequireFromString("100.00")},
		},
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCompleted,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      "ordering-api",
		CorrelationID: payload.OrderID,
		Payload:       MustMarshal(payload),
	}

	var decoded orders.Envelope
	require.NoError(t, json.Unmarshal(MustMarshal(ev), &decoded))
	assert.Equal(t, orders.EventOrderCompleted, decoded.EventType)

	got, err := UnwrapPayload[orders.OrderCompletedPayload](decoded.Payload)
	require.NoError(t, err)
	assert.Equal(t, payload.OrderID, got.OrderID)
	assert.True(t, got.Total.Equal(payload.Total))
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Qty)
}

func TestUnwrapPayloadBadJSON(t *testing.T) {
	_, err := UnwrapPayload[orders.OrderRejectedPayload]([]byte(`{`))
	assert.Error(t, err)
}
