package core_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"barpos/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// setupTestDB truncates and seeds the test database:
//   - product 1: Tequila Reposado, volume-metered, 750ml bottles, 2 in stock,
//     variants 1 (Shot 50ml @ 50.00) and 2 (Copa 100ml @ 90.00)
//   - product 2: Cerveza Clara, discrete, 24 units @ 35.00
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live bar database.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE stock_movements, order_lines, orders, variants, products, categories RESTART IDENTITY CASCADE;

		INSERT INTO categories (id, name) VALUES (1, 'Licores'), (2, 'Cervezas');

		INSERT INTO products (id, name, category_id, purchase_price, stock_units, is_volume_metered, volume_per_container, open_container_remainder) VALUES
		(1, 'Tequila Reposado', 1, 600.00, 2, true, 750, 0),
		(2, 'Cerveza Clara',    2,  35.00, 24, false, NULL, 0);

		INSERT INTO variants (id, product_id, name, sale_price, serving_volume) VALUES
		(1, 1, 'Shot', 50.00, 50),
		(2, 1, 'Copa', 90.00, 100);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

func newServices(pool *pgxpool.Pool) (core.OrderService, core.StockService) {
	stock := core.NewStockService(pool)
	return core.NewOrderService(pool, stock), stock
}

func productStock(t *testing.T, pool *pgxpool.Pool, productID int64) (int, int) {
	t.Helper()
	var units, remainder int
	err := pool.QueryRow(context.Background(),
		"SELECT stock_units, open_container_remainder FROM products WHERE id = $1", productID,
	).Scan(&units, &remainder)
	if err != nil {
		t.Fatalf("Failed to read stock for product %d: %v", productID, err)
	}
	return units, remainder
}

func variantID(id int64) *int64 { return &id }

func TestOrderService_FullTabCycle(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	orders, _ := newServices(pool)
	ctx := context.Background()

	order, err := orders.OpenOrder(ctx, "Mesa 4")
	if err != nil {
		t.Fatalf("OpenOrder failed: %v", err)
	}
	if order.Status != core.StatusOpen {
		t.Errorf("Expected OPEN, got %s", order.Status)
	}
	if !order.Total.IsZero() {
		t.Errorf("Expected total 0, got %s", order.Total)
	}

	// 2 shots of tequila + 3 beers = 100 + 105 = 205.00
	order, err = orders.AddLines(ctx, order.ID, []core.LineInput{
		{ProductID: 1, VariantID: variantID(1), Quantity: 2},
		{ProductID: 2, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("AddLines failed: %v", err)
	}
	if len(order.Lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(order.Lines))
	}
	if !order.Total.Equal(decimal.NewFromInt(205)) {
		t.Errorf("Expected total 205.00, got %s", order.Total)
	}

	// A bottle was opened for the shots and beer stock dropped.
	units, remainder := productStock(t, pool, 1)
	if units != 1 || remainder != 650 {
		t.Errorf("Expected tequila 1 bottle / 650 ml, got %d / %d", units, remainder)
	}
	if units, _ := productStock(t, pool, 2); units != 21 {
		t.Errorf("Expected 21 beers, got %d", units)
	}

	order, err = orders.CloseOrder(ctx, order.ID, core.PaymentCash,
		decimal.NewFromInt(250), decimal.NewFromInt(45))
	if err != nil {
		t.Fatalf("CloseOrder failed: %v", err)
	}
	if order.Status != core.StatusClosed {
		t.Errorf("Expected CLOSED, got %s", order.Status)
	}
	if order.ClosedAt == nil {
		t.Error("Closed order must have closed_at")
	}
	if order.PaymentMethod == nil || *order.PaymentMethod != core.PaymentCash {
		t.Errorf("Expected CASH payment, got %v", order.PaymentMethod)
	}
}

func TestOrderService_MergesMatchingLines(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	orders, _ := newServices(pool)
	ctx := context.Background()

	order, err := orders.OpenOrder(ctx, "Barra")
	if err != nil {
		t.Fatalf("OpenOrder failed: %v", err)
	}

	if _, err = orders.AddLines(ctx, order.ID, []core.LineInput{
		{ProductID: 2, Quantity: 2},
	}); err != nil {
		t.Fatalf("First AddLines failed: %v", err)
	}
	order, err = orders.AddLines(ctx, order.ID, []core.LineInput{
		{ProductID: 2, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("Second AddLines failed: %v", err)
	}

	if len(order.Lines) != 1 {
		t.Fatalf("Expected merged single line, got %d lines", len(order.Lines))
	}
	if order.Lines[0].Quantity != 5 {
		t.Errorf("Expected quantity 5, got %d", order.Lines[0].Quantity)
	}
	if !order.Total.Equal(decimal.NewFromInt(175)) {
		t.Errorf("Expected total 175.00, got %s", order.Total)
	}

	// Same product through a variant must NOT merge with the bare line.
	order, err = orders.AddLines(ctx, order.ID, []core.LineInput{
		{ProductID: 1, VariantID: variantID(1), Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Variant AddLines failed: %v", err)
	}
	if len(order.Lines) != 2 {
		t.Errorf("Expected 2 distinct lines, got %d", len(order.Lines))
	}
}

func TestOrderService_MergeKeepsSnapshotPrice(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	orders, _ := newServices(pool)
	ctx := context.Background()

	order, err := orders.OpenOrder(ctx, "Mesa 8")
	if err != nil {
		t.Fatalf("OpenOrder failed: %v", err)
	}
	if _, err = orders.AddLines(ctx, order.ID, []core.LineInput{
		{ProductID: 1, VariantID: variantID(1), Quantity: 1}, // Shot @ 50.00
	}); err != nil {
		t.Fatalf("First AddLines failed: %v", err)
	}

	// Catalog price changes after the snapshot was taken.
	if _, err := pool.Exec(ctx, "UPDATE variants SET sale_price = 60.00 WHERE id = 1"); err != nil {
		t.Fatalf("Failed to reprice variant: %v", err)
	}

	order, err = orders.AddLines(ctx, order.ID, []core.LineInput{
		{ProductID: 1, VariantID: variantID(1), Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Merging AddLines failed: %v", err)
	}

	// The merged quantity sells at the line's snapshot price: 2 × 50, not 50 + 60.
	if len(order.Lines) != 1 || order.Lines[0].Quantity != 2 {
		t.Fatalf("Expected one merged line of quantity 2, got %+v", order.Lines)
	}
	if !order.Lines[0].UnitPrice.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Snapshot price changed: %s", order.Lines[0].UnitPrice)
	}
	if !order.Total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected total 100.00, got %s", order.Total)
	}
	if !order.Total.Equal(order.Lines[0].Subtotal()) {
		t.Errorf("Total %s drifted from line subtotal %s", order.Total, order.Lines[0].Subtotal())
	}
}

func TestOrderService_BatchRejectedAtomically(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	orders, _ := newServices(pool)
	ctx := context.Background()

	order, err := orders.OpenOrder(ctx, "Mesa 1")
	if err != nil {
		t.Fatalf("OpenOrder failed: %v", err)
	}

	// Second item asks for more beer than exists; first item alone would succeed.
	_, err = orders.AddLines(ctx, order.ID, []core.LineInput{
		{ProductID: 1, VariantID: variantID(1), Quantity: 1},
		{ProductID: 2, Quantity: 100},
	})
	if err == nil {
		t.Fatal("Expected batch rejection")
	}

	var batch *core.BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("Expected *BatchError, got %T: %v", err, err)
	}
	if len(batch.Items) != 1 {
		t.Fatalf("Expected 1 failing item, got %d", len(batch.Items))
	}
	if batch.Items[0].Index != 1 {
		t.Errorf("Expected failing index 1, got %d", batch.Items[0].Index)
	}
	if !errors.Is(err, core.ErrInsufficientStock) {
		t.Errorf("Expected ErrInsufficientStock through the batch, got %v", err)
	}

	// Nothing from the batch may persist: no tequila consumed, no lines, total 0.
	if units, remainder := productStock(t, pool, 1); units != 2 || remainder != 0 {
		t.Errorf("Tequila stock changed: %d / %d", units, remainder)
	}
	order, err = orders.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if len(order.Lines) != 0 || !order.Total.IsZero() {
		t.Errorf("Order mutated by rejected batch: %d lines, total %s", len(order.Lines), order.Total)
	}
}

func TestOrderService_UpdateLineQuantityReconciles(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	orders, _ := newServices(pool)
	ctx := context.Background()

	order, _ := orders.OpenOrder(ctx, "Mesa 2")
	order, err := orders.AddLines(ctx, order.ID, []core.LineInput{
		{ProductID: 1, VariantID: variantID(1), Quantity: 4},
	})
	if err != nil {
		t.Fatalf("AddLines failed: %v", err)
	}
	lineID := order.Lines[0].ID

	// 4 → 2 shots returns 100ml to the bottle.
	order, err = orders.UpdateLineQuantity(ctx, order.ID, lineID, 2)
	if err != nil {
		t.Fatalf("UpdateLineQuantity failed: %v", err)
	}
	if order.Lines[0].Quantity != 2 {
		t.Errorf("Expected quantity 2, got %d", order.Lines[0].Quantity)
	}
	if !order.Total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected total 100.00, got %s", order.Total)
	}
	if units, remainder := productStock(t, pool, 1); units != 1 || remainder != 650 {
		t.Errorf("Expected 1 bottle / 650 ml after shrink, got %d / %d", units, remainder)
	}

	// Growing past available volume must fail without touching anything.
	if _, err = orders.UpdateLineQuantity(ctx, order.ID, lineID, 100); !errors.Is(err, core.ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}
	if units, remainder := productStock(t, pool, 1); units != 1 || remainder != 650 {
		t.Errorf("Failed grow leaked stock: %d / %d", units, remainder)
	}
}

func TestOrderService_RemoveLineRestoresStock(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	orders, _ := newServices(pool)
	ctx := context.Background()

	order, _ := orders.OpenOrder(ctx, "Mesa 3")
	order, err := orders.AddLines(ctx, order.ID, []core.LineInput{
		{ProductID: 2, Quantity: 6},
	})
	if err != nil {
		t.Fatalf("AddLines failed: %v", err)
	}

	order, err = orders.RemoveLine(ctx, order.ID, order.Lines[0].ID)
	if err != nil {
		t.Fatalf("RemoveLine failed: %v", err)
	}
	if len(order.Lines) != 0 {
		t.Errorf("Expected no lines, got %d", len(order.Lines))
	}
	if !order.Total.IsZero() {
		t.Errorf("Expected total 0, got %s", order.Total)
	}
	if units, _ := productStock(t, pool, 2); units != 24 {
		t.Errorf("Expected beer stock restored to 24, got %d", units)
	}
}

func TestOrderService_CloseOrderPaymentTolerance(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	orders, _ := newServices(pool)
	ctx := context.Background()

	order, _ := orders.OpenOrder(ctx, "Mesa 5")
	order, err := orders.AddLines(ctx, order.ID, []core.LineInput{
		{ProductID: 2, Quantity: 1}, // total 35.00
	})
	if err != nil {
		t.Fatalf("AddLines failed: %v", err)
	}

	// One cent short is a real shortfall.
	_, err = orders.CloseOrder(ctx, order.ID, core.PaymentCash,
		decimal.NewFromFloat(34.99), decimal.Zero)
	if !errors.Is(err, core.ErrPaymentInsufficient) {
		t.Fatalf("Expected ErrPaymentInsufficient, got %v", err)
	}

	// Sub-cent rounding noise is tolerated.
	if _, err = orders.CloseOrder(ctx, order.ID, core.PaymentCash,
		decimal.NewFromFloat(34.9999), decimal.Zero); err != nil {
		t.Fatalf("Expected tolerance to accept 34.9999, got %v", err)
	}
}

func TestOrderService_ClosedOrderIsImmutable(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	orders, _ := newServices(pool)
	ctx := context.Background()

	order, _ := orders.OpenOrder(ctx, "Mesa 6")
	order, err := orders.AddLines(ctx, order.ID, []core.LineInput{
		{ProductID: 2, Quantity: 2},
	})
	if err != nil {
		t.Fatalf("AddLines failed: %v", err)
	}
	lineID := order.Lines[0].ID

	if _, err = orders.CloseOrder(ctx, order.ID, core.PaymentCard, order.Total, decimal.Zero); err != nil {
		t.Fatalf("CloseOrder failed: %v", err)
	}

	if _, err = orders.AddLines(ctx, order.ID, []core.LineInput{{ProductID: 2, Quantity: 1}}); !errors.Is(err, core.ErrOrderClosed) {
		t.Errorf("AddLines on closed order: expected ErrOrderClosed, got %v", err)
	}
	if _, err = orders.UpdateLineQuantity(ctx, order.ID, lineID, 5); !errors.Is(err, core.ErrOrderClosed) {
		t.Errorf("UpdateLineQuantity on closed order: expected ErrOrderClosed, got %v", err)
	}
	if _, err = orders.RemoveLine(ctx, order.ID, lineID); !errors.Is(err, core.ErrOrderClosed) {
		t.Errorf("RemoveLine on closed order: expected ErrOrderClosed, got %v", err)
	}
	if _, err = orders.CloseOrder(ctx, order.ID, core.PaymentCash, decimal.NewFromInt(100), decimal.Zero); !errors.Is(err, core.ErrAlreadyClosed) {
		t.Errorf("Double close: expected ErrAlreadyClosed, got %v", err)
	}
}

func TestOrderService_QuickSaleCash(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	orders, _ := newServices(pool)
	ctx := context.Background()

	order, err := orders.QuickSale(ctx, []core.LineInput{
		{ProductID: 2, Quantity: 2}, // 70.00
	}, core.PaymentCash, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("QuickSale failed: %v", err)
	}

	if order.ClientName != core.QuickSaleClient {
		t.Errorf("Expected client %q, got %q", core.QuickSaleClient, order.ClientName)
	}
	if order.Status != core.StatusClosed {
		t.Errorf("Expected CLOSED, got %s", order.Status)
	}
	if order.Change == nil || !order.Change.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Expected change 30.00, got %v", order.Change)
	}
	if units, _ := productStock(t, pool, 2); units != 22 {
		t.Errorf("Expected 22 beers, got %d", units)
	}
}

func TestOrderService_QuickSaleCardSettlesExactly(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	orders, _ := newServices(pool)
	ctx := context.Background()

	// The submitted amount is ignored for card payments.
	order, err := orders.QuickSale(ctx, []core.LineInput{
		{ProductID: 1, VariantID: variantID(2), Quantity: 1}, // 90.00
	}, core.PaymentCard, decimal.Zero)
	if err != nil {
		t.Fatalf("QuickSale failed: %v", err)
	}
	if order.AmountPaid == nil || !order.AmountPaid.Equal(decimal.NewFromInt(90)) {
		t.Errorf("Expected paid 90.00, got %v", order.AmountPaid)
	}
	if order.Change == nil || !order.Change.IsZero() {
		t.Errorf("Expected change 0, got %v", order.Change)
	}
}

func TestOrderService_QuickSaleFailureLeavesNothing(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	orders, _ := newServices(pool)
	ctx := context.Background()

	_, err := orders.QuickSale(ctx, []core.LineInput{
		{ProductID: 2, Quantity: 2},
	}, core.PaymentCash, decimal.NewFromInt(10))
	if !errors.Is(err, core.ErrPaymentInsufficient) {
		t.Fatalf("Expected ErrPaymentInsufficient, got %v", err)
	}

	var orderCount int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders").Scan(&orderCount); err != nil {
		t.Fatalf("Failed to count orders: %v", err)
	}
	if orderCount != 0 {
		t.Errorf("Expected no order rows after failed quick sale, got %d", orderCount)
	}
	if units, _ := productStock(t, pool, 2); units != 24 {
		t.Errorf("Expected beer stock untouched at 24, got %d", units)
	}
}

func TestOrderService_Listings(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	orders, _ := newServices(pool)
	ctx := context.Background()

	a, _ := orders.OpenOrder(ctx, "Ana")
	if _, err := orders.OpenOrder(ctx, "Bruno"); err != nil {
		t.Fatalf("OpenOrder failed: %v", err)
	}
	a, err := orders.AddLines(ctx, a.ID, []core.LineInput{{ProductID: 2, Quantity: 1}})
	if err != nil {
		t.Fatalf("AddLines failed: %v", err)
	}
	if _, err := orders.CloseOrder(ctx, a.ID, core.PaymentCard, a.Total, decimal.Zero); err != nil {
		t.Fatalf("CloseOrder failed: %v", err)
	}

	open, err := orders.GetOpenOrders(ctx, "")
	if err != nil {
		t.Fatalf("GetOpenOrders failed: %v", err)
	}
	if len(open) != 1 || open[0].ClientName != "Bruno" {
		t.Errorf("Expected only Bruno open, got %+v", open)
	}

	open, err = orders.GetOpenOrders(ctx, "bru")
	if err != nil {
		t.Fatalf("GetOpenOrders with filter failed: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("Expected case-insensitive client match, got %d orders", len(open))
	}

	closed, err := orders.GetClosedOrders(ctx, "", core.PaymentCard, "")
	if err != nil {
		t.Fatalf("GetClosedOrders failed: %v", err)
	}
	if len(closed) != 1 || closed[0].ClientName != "Ana" {
		t.Errorf("Expected Ana's card order, got %+v", closed)
	}

	closed, err = orders.GetClosedOrders(ctx, "", core.PaymentCash, "")
	if err != nil {
		t.Fatalf("GetClosedOrders failed: %v", err)
	}
	if len(closed) != 0 {
		t.Errorf("Expected no cash orders, got %d", len(closed))
	}
}
