package events

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeOrderOpened        = "OrderOpened"
	TypeOrderClosed        = "OrderClosed"
	TypeQuickSaleCompleted = "QuickSaleCompleted"
)

// Envelope wraps every published event with routing and tracing metadata.
// Payload stays raw so consumers decode only the types they care about.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // the order id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload type per event ----

type OrderOpened struct {
	OrderID    int64  `json:"order_id"`
	ClientName string `json:"client_name"`
}

type OrderClosed struct {
	OrderID       int64           `json:"order_id"`
	ClientName    string          `json:"client_name"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
}

type QuickSaleCompleted struct {
	OrderID       int64           `json:"order_id"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
}

// UnwrapPayload decodes an envelope payload into a concrete event type.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	err := json.Unmarshal(payload, &t)
	return t, err
}
