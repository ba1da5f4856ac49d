package app

import (
	"context"
)

// ApplicationService is the single interface all adapters (Web, CLI) call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println, no ANSI codes, and no display logic of any kind.
type ApplicationService interface {
	// OpenOrder creates a new OPEN order for the named client.
	OpenOrder(ctx context.Context, req OpenOrderRequest) (*OrderResult, error)

	// AddLines adds a batch of items to an open order. The batch applies
	// atomically: one bad item rejects the whole batch with per-item errors.
	AddLines(ctx context.Context, orderID int64, items []LineItemInput) (*OrderResult, error)

	// UpdateLineQuantity changes a line's quantity, reconciling stock by the delta.
	UpdateLineQuantity(ctx context.Context, orderID, lineID int64, quantity int) (*OrderResult, error)

	// RemoveLine deletes a line and returns its stock.
	RemoveLine(ctx context.Context, orderID, lineID int64) (*OrderResult, error)

	// CloseOrder captures payment and transitions the order to CLOSED.
	CloseOrder(ctx context.Context, req CloseOrderRequest) (*OrderResult, error)

	// QuickSale creates and closes a walk-up sale in one step.
	QuickSale(ctx context.Context, req QuickSaleRequest) (*OrderResult, error)

	// GetOrder returns one order with its lines.
	GetOrder(ctx context.Context, orderID int64) (*OrderResult, error)

	// ListOpenOrders returns OPEN orders, optionally filtered by client name.
	ListOpenOrders(ctx context.Context, clientFilter string) (*OrderListResult, error)

	// ListClosedOrders returns CLOSED orders with optional client, payment
	// method, and date (YYYY-MM-DD) filters.
	ListClosedOrders(ctx context.Context, q ClosedOrdersQuery) (*OrderListResult, error)

	// ListCategories returns the product categories.
	ListCategories(ctx context.Context) (*CategoryListResult, error)

	// ListProductsByCategory returns the products of one category.
	ListProductsByCategory(ctx context.Context, categoryID int64) (*ProductListResult, error)

	// ListVariants returns the sale variants of one product.
	ListVariants(ctx context.Context, productID int64) (*VariantListResult, error)

	// GetStockLevels returns the current stock view across all products.
	GetStockLevels(ctx context.Context) (*StockResult, error)

	// GetStockMovements returns the audit trail for one product.
	GetStockMovements(ctx context.Context, productID int64) (*MovementListResult, error)

	// GetReceipt renders the ticket for an order as printer-ready text.
	GetReceipt(ctx context.Context, orderID int64) (*ReceiptResult, error)
}
