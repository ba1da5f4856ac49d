package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses. An order is created OPEN and closing is terminal.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Payment methods accepted at close.
const (
	PaymentCash = "CASH"
	PaymentCard = "CARD"
)

// QuickSaleClient is the client name recorded on one-shot sales.
const QuickSaleClient = "Venta Rápida"

// Order is a customer's running tab. Total always equals the sum of its
// lines' subtotals; payment fields are set only when the order is closed.
type Order struct {
	ID            int64            `json:"id"`
	ClientName    string           `json:"client_name"`
	OpenedAt      time.Time        `json:"opened_at"`
	Status        string           `json:"status"`
	PaymentMethod *string          `json:"payment_method,omitempty"`
	Total         decimal.Decimal  `json:"total"`
	AmountPaid    *decimal.Decimal `json:"amount_paid,omitempty"`
	Change        *decimal.Decimal `json:"change,omitempty"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
	Lines         []OrderLine      `json:"lines"`
}

// LineKind distinguishes the two shapes an order line can take. Price
// resolution switches on it exhaustively instead of testing a nullable
// variant reference at every call site.
type LineKind int

const (
	// LineBareProduct sells a whole unit of the product directly.
	LineBareProduct LineKind = iota
	// LineVariant sells through a presentation (shot, glass, bottle) that
	// carries its own price and, for liquors, a serving volume.
	LineVariant
)

// OrderLine is one product or variant entry on an order. UnitPrice is a
// snapshot taken when the line is added and never changes afterwards.
type OrderLine struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	VariantID   *int64          `json:"variant_id,omitempty"`
	ProductName string          `json:"product_name"` // joined from products
	VariantName string          `json:"variant_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Kind reports whether the line sells a bare product or a variant.
func (l *OrderLine) Kind() LineKind {
	if l.VariantID != nil {
		return LineVariant
	}
	return LineBareProduct
}

// Subtotal is derived, never stored independently.
func (l *OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineInput is one requested item in a batch add or quick sale.
// A nil VariantID means the product is sold directly as a bare unit.
type LineInput struct {
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}
