package app

import (
	"context"

	"barpos/internal/core"
	"barpos/internal/events"
	"barpos/internal/receipt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type appService struct {
	pool     *pgxpool.Pool
	catalog  core.CatalogService
	orders   core.OrderService
	stock    core.StockService
	producer *events.Producer // nil when event publishing is disabled
	layout   receipt.Layout
}

// NewAppService constructs an appService that satisfies ApplicationService.
// producer may be nil; events are then skipped.
func NewAppService(
	pool *pgxpool.Pool,
	catalog core.CatalogService,
	orders core.OrderService,
	stock core.StockService,
	producer *events.Producer,
	layout receipt.Layout,
) ApplicationService {
	return &appService{
		pool:     pool,
		catalog:  catalog,
		orders:   orders,
		stock:    stock,
		producer: producer,
		layout:   layout,
	}
}

// OpenOrder creates a new OPEN order for the named client.
func (s *appService) OpenOrder(ctx context.Context, req OpenOrderRequest) (*OrderResult, error) {
	order, err := s.orders.OpenOrder(ctx, req.ClientName)
	if err != nil {
		return nil, err
	}
	s.producer.Publish(events.TypeOrderOpened, events.OrderOpened{
		OrderID:    order.ID,
		ClientName: order.ClientName,
	})
	return &OrderResult{Order: order}, nil
}

// AddLines adds a batch of items to an open order.
func (s *appService) AddLines(ctx context.Context, orderID int64, items []LineItemInput) (*OrderResult, error) {
	order, err := s.orders.AddLines(ctx, orderID, toLineInputs(items))
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

// UpdateLineQuantity changes a line's quantity, reconciling stock by the delta.
func (s *appService) UpdateLineQuantity(ctx context.Context, orderID, lineID int64, quantity int) (*OrderResult, error) {
	order, err := s.orders.UpdateLineQuantity(ctx, orderID, lineID, quantity)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

// RemoveLine deletes a line and returns its stock.
func (s *appService) RemoveLine(ctx context.Context, orderID, lineID int64) (*OrderResult, error) {
	order, err := s.orders.RemoveLine(ctx, orderID, lineID)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

// CloseOrder captures payment and transitions the order to CLOSED.
func (s *appService) CloseOrder(ctx context.Context, req CloseOrderRequest) (*OrderResult, error) {
	order, err := s.orders.CloseOrder(ctx, req.OrderID, req.PaymentMethod, req.AmountPaid, req.Change)
	if err != nil {
		return nil, err
	}
	s.producer.Publish(events.TypeOrderClosed, events.OrderClosed{
		OrderID:       order.ID,
		ClientName:    order.ClientName,
		Total:         order.Total,
		PaymentMethod: req.PaymentMethod,
	})
	return &OrderResult{Order: order}, nil
}

// QuickSale creates and closes a walk-up sale in one step.
func (s *appService) QuickSale(ctx context.Context, req QuickSaleRequest) (*OrderResult, error) {
	order, err := s.orders.QuickSale(ctx, toLineInputs(req.Items), req.PaymentMethod, req.AmountPaid)
	if err != nil {
		return nil, err
	}
	s.producer.Publish(events.TypeQuickSaleCompleted, events.QuickSaleCompleted{
		OrderID:       order.ID,
		Total:         order.Total,
		PaymentMethod: req.PaymentMethod,
	})
	return &OrderResult{Order: order}, nil
}

// GetOrder returns one order with its lines.
func (s *appService) GetOrder(ctx context.Context, orderID int64) (*OrderResult, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

// ListOpenOrders returns OPEN orders, optionally filtered by client name.
func (s *appService) ListOpenOrders(ctx context.Context, clientFilter string) (*OrderListResult, error) {
	orders, err := s.orders.GetOpenOrders(ctx, clientFilter)
	if err != nil {
		return nil, err
	}
	return &OrderListResult{Orders: orders}, nil
}

// ListClosedOrders returns CLOSED orders with optional filters.
func (s *appService) ListClosedOrders(ctx context.Context, q ClosedOrdersQuery) (*OrderListResult, error) {
	orders, err := s.orders.GetClosedOrders(ctx, q.ClientFilter, q.MethodFilter, q.DateFilter)
	if err != nil {
		return nil, err
	}
	return &OrderListResult{Orders: orders}, nil
}

// ListCategories returns the product categories.
func (s *appService) ListCategories(ctx context.Context) (*CategoryListResult, error) {
	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return &CategoryListResult{Categories: categories}, nil
}

// ListProductsByCategory returns the products of one category.
func (s *appService) ListProductsByCategory(ctx context.Context, categoryID int64) (*ProductListResult, error) {
	products, err := s.catalog.ListProductsByCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	return &ProductListResult{Products: products}, nil
}

// ListVariants returns the sale variants of one product.
func (s *appService) ListVariants(ctx context.Context, productID int64) (*VariantListResult, error) {
	variants, err := s.catalog.ListVariantsByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &VariantListResult{Variants: variants}, nil
}

// GetStockLevels returns the current stock view across all products.
func (s *appService) GetStockLevels(ctx context.Context) (*StockResult, error) {
	levels, err := s.stock.GetStockLevels(ctx)
	if err != nil {
		return nil, err
	}
	return &StockResult{Levels: levels}, nil
}

// GetStockMovements returns the audit trail for one product.
func (s *appService) GetStockMovements(ctx context.Context, productID int64) (*MovementListResult, error) {
	movements, err := s.stock.GetMovements(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &MovementListResult{Movements: movements}, nil
}

// GetReceipt renders the ticket for an order as printer-ready text.
func (s *appService) GetReceipt(ctx context.Context, orderID int64) (*ReceiptResult, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &ReceiptResult{
		OrderID: orderID,
		Text:    receipt.Render(order, s.layout),
	}, nil
}

func toLineInputs(items []LineItemInput) []core.LineInput {
	inputs := make([]core.LineInput, len(items))
	for i, it := range items {
		inputs[i] = core.LineInput{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
		}
	}
	return inputs
}
