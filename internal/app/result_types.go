package app

import "barpos/internal/core"

// OrderResult is returned by order lifecycle operations.
type OrderResult struct {
	Order *core.Order
}

// OrderListResult is returned by the order listings.
type OrderListResult struct {
	Orders []core.Order
}

// CategoryListResult is returned by ListCategories.
type CategoryListResult struct {
	Categories []core.Category
}

// ProductListResult is returned by ListProductsByCategory.
type ProductListResult struct {
	Products []core.Product
}

// VariantListResult is returned by ListVariants.
type VariantListResult struct {
	Variants []core.Variant
}

// StockResult is returned by GetStockLevels.
type StockResult struct {
	Levels []core.StockLevel
}

// MovementListResult is returned by GetStockMovements.
type MovementListResult struct {
	Movements []core.StockMovement
}

// ReceiptResult is returned by GetReceipt. Text is printer-ready: fixed-width
// lines terminated with the cut sequence.
type ReceiptResult struct {
	OrderID int64
	Text    []byte
}
