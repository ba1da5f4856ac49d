package app

import (
	"github.com/shopspring/decimal"
)

// OpenOrderRequest is the input for opening a new order.
type OpenOrderRequest struct {
	ClientName string
}

// LineItemInput is a single item within an AddLines or QuickSale batch.
// VariantID is nil when the product is sold whole, without a serving variant.
type LineItemInput struct {
	ProductID int64
	VariantID *int64
	Quantity  int
}

// CloseOrderRequest is the input for closing an order with payment.
type CloseOrderRequest struct {
	OrderID       int64
	PaymentMethod string // core.PaymentCash or core.PaymentCard
	AmountPaid    decimal.Decimal
	Change        decimal.Decimal
}

// QuickSaleRequest is the input for a one-step walk-up sale.
// For card payments AmountPaid is ignored and settles at the exact total.
type QuickSaleRequest struct {
	Items         []LineItemInput
	PaymentMethod string
	AmountPaid    decimal.Decimal
}

// ClosedOrdersQuery filters the closed-orders listing. Empty fields match everything.
type ClosedOrdersQuery struct {
	ClientFilter string
	MethodFilter string
	DateFilter   string // YYYY-MM-DD
}
