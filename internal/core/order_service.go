package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// paymentEpsilon tolerates floating rounding on amounts entered at the till
// without permitting genuine shortfalls: a payment one cent short still fails.
var paymentEpsilon = decimal.NewFromFloat(0.001)

// OrderService owns the order ledger and lifecycle: the line collection of
// each order, the total invariant (total == Σ line subtotals), and the
// OPEN → CLOSED transition.
//
// Every mutating method runs in a single transaction and locks the order row
// FOR UPDATE first, so two operations on the same order serialize at the
// database instead of losing updates to total or stock.
type OrderService interface {
	// OpenOrder creates a new OPEN order with total 0 for the given client.
	OpenOrder(ctx context.Context, clientName string) (*Order, error)

	// AddLines adds a batch of items to an order. The whole batch applies or
	// none of it does: every item is validated and a failure anywhere returns
	// a *BatchError listing each failing item, with no line, stock, or total
	// change persisted. Items matching an existing (product, variant) line
	// merge into it by incrementing its quantity.
	AddLines(ctx context.Context, orderID int64, items []LineInput) (*Order, error)

	// UpdateLineQuantity sets a line's quantity, consuming or reverting the
	// stock delta and adjusting the order total.
	UpdateLineQuantity(ctx context.Context, orderID, lineID int64, newQuantity int) (*Order, error)

	// RemoveLine deletes a line, returning its full quantity to inventory.
	RemoveLine(ctx context.Context, orderID, lineID int64) (*Order, error)

	// CloseOrder captures payment and transitions the order to CLOSED.
	// The total is recomputed from the current lines before the payment check.
	CloseOrder(ctx context.Context, orderID int64, paymentMethod string, amountPaid, change decimal.Decimal) (*Order, error)

	// QuickSale creates an order already closed in one step: stock validation
	// and consumption as in AddLines, then the close-order payment check, all
	// in one transaction. Any failure leaves no order, line, or stock change.
	QuickSale(ctx context.Context, items []LineInput, paymentMethod string, amountPaid decimal.Decimal) (*Order, error)

	// Queries.
	GetOrder(ctx context.Context, orderID int64) (*Order, error)
	GetOpenOrders(ctx context.Context, clientFilter string) ([]Order, error)
	GetClosedOrders(ctx context.Context, clientFilter, methodFilter, dateFilter string) ([]Order, error)
}

type orderService struct {
	pool  *pgxpool.Pool
	stock StockService
}

func NewOrderService(pool *pgxpool.Pool, stock StockService) OrderService {
	return &orderService{pool: pool, stock: stock}
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

func (s *orderService) OpenOrder(ctx context.Context, clientName string) (*Order, error) {
	if clientName == "" {
		return nil, fmt.Errorf("%w: client name is required", ErrInvalidInput)
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO orders (client_name, status, total)
		VALUES ($1, $2, 0)
		RETURNING id
	`, clientName, StatusOpen).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to open order: %w", err)
	}
	return s.GetOrder(ctx, id)
}

func (s *orderService) CloseOrder(ctx context.Context, orderID int64, paymentMethod string, amountPaid, change decimal.Decimal) (*Order, error) {
	if paymentMethod != PaymentCash && paymentMethod != PaymentCard {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, paymentMethod)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	status, _, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if status == StatusClosed {
		return nil, fmt.Errorf("%w: order %d", ErrAlreadyClosed, orderID)
	}

	// Recompute the total from the current lines as a defense against drift.
	total, err := sumLineSubtotals(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if amountPaid.Round(2).Add(paymentEpsilon).LessThan(total.Round(2)) {
		return nil, fmt.Errorf("%w: paid %s, total %s", ErrPaymentInsufficient,
			amountPaid.StringFixed(2), total.StringFixed(2))
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, payment_method = $2, amount_paid = $3, change = $4, total = $5, closed_at = NOW()
		WHERE id = $6
	`, StatusClosed, paymentMethod, amountPaid, change, total, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to close order %d: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit close order: %w", err)
	}
	return s.GetOrder(ctx, orderID)
}

func (s *orderService) QuickSale(ctx context.Context, items []LineInput, paymentMethod string, amountPaid decimal.Decimal) (*Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: quick sale needs at least one item", ErrInvalidInput)
	}
	if paymentMethod != PaymentCash && paymentMethod != PaymentCard {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, paymentMethod)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (client_name, status, total)
		VALUES ($1, $2, 0)
		RETURNING id
	`, QuickSaleClient, StatusOpen).Scan(&orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to create quick sale order: %w", err)
	}

	total, err := s.addLinesTx(ctx, tx, orderID, items)
	if err != nil {
		return nil, err
	}

	// Card payments settle exactly; cash keeps the difference as change.
	if paymentMethod == PaymentCard {
		amountPaid = total
	}
	change := decimal.Max(decimal.Zero, amountPaid.Sub(total))

	if amountPaid.Round(2).Add(paymentEpsilon).LessThan(total.Round(2)) {
		return nil, fmt.Errorf("%w: paid %s, total %s", ErrPaymentInsufficient,
			amountPaid.StringFixed(2), total.StringFixed(2))
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, payment_method = $2, amount_paid = $3, change = $4, total = $5, closed_at = NOW()
		WHERE id = $6
	`, StatusClosed, paymentMethod, amountPaid, change, total, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize quick sale: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quick sale: %w", err)
	}
	return s.GetOrder(ctx, orderID)
}

// ── Line mutations ────────────────────────────────────────────────────────────

func (s *orderService) AddLines(ctx context.Context, orderID int64, items []LineInput) (*Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items to add", ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	status, total, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if status == StatusClosed {
		return nil, fmt.Errorf("%w: order %d", ErrOrderClosed, orderID)
	}

	added, err := s.addLinesTx(ctx, tx, orderID, items)
	if err != nil {
		return nil, err
	}

	if err := updateTotal(ctx, tx, orderID, total.Add(added)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit add lines: %w", err)
	}
	return s.GetOrder(ctx, orderID)
}

// addLinesTx validates and applies a batch of items within the caller's TX.
// Every item is checked; if any fails the collected *BatchError is returned
// and the caller's rollback discards all mutations, including partial
// reconciliation state. Returns the sum of the added subtotals.
func (s *orderService) addLinesTx(ctx context.Context, tx pgx.Tx, orderID int64, items []LineInput) (decimal.Decimal, error) {
	var itemErrs []ItemError
	total := decimal.Zero

	for i, item := range items {
		subtotal, err := s.applyItemTx(ctx, tx, orderID, item)
		if err != nil {
			itemErrs = append(itemErrs, toItemError(i, item, err))
			continue
		}
		total = total.Add(subtotal)
	}

	if len(itemErrs) > 0 {
		return decimal.Zero, &BatchError{Items: itemErrs}
	}
	return total, nil
}

// applyItemTx resolves, consumes, and inserts (or merges) one batch item,
// returning the subtotal it added.
func (s *orderService) applyItemTx(ctx context.Context, tx pgx.Tx, orderID int64, item LineInput) (decimal.Decimal, error) {
	if item.Quantity < 1 {
		return decimal.Zero, fmt.Errorf("%w: quantity must be at least 1, got %d", ErrInvalidInput, item.Quantity)
	}

	unitPrice, err := resolveUnitPrice(ctx, tx, item)
	if err != nil {
		return decimal.Zero, err
	}

	if _, err := s.stock.ConsumeTx(ctx, tx, &orderID, item.ProductID, item.VariantID, item.Quantity); err != nil {
		return decimal.Zero, err
	}

	// Merge with an existing line for the same (product, variant) pair. The
	// merged line keeps its snapshot unit_price, so the quantity added to it
	// contributes at that snapshot price, not at today's catalog price —
	// otherwise the total would drift from the sum of line subtotals.
	var lineID int64
	var existingQty int
	var snapshotPrice decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT id, quantity, unit_price FROM order_lines
		WHERE order_id = $1 AND product_id = $2 AND variant_id IS NOT DISTINCT FROM $3
	`, orderID, item.ProductID, item.VariantID).Scan(&lineID, &existingQty, &snapshotPrice)

	switch {
	case err == nil:
		_, err = tx.Exec(ctx, "UPDATE order_lines SET quantity = quantity + $1 WHERE id = $2",
			item.Quantity, lineID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to merge line %d: %w", lineID, err)
		}
		return snapshotPrice.Mul(decimal.NewFromInt(int64(item.Quantity))), nil
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `
			INSERT INTO order_lines (order_id, product_id, variant_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
		`, orderID, item.ProductID, item.VariantID, item.Quantity, unitPrice)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to insert line: %w", err)
		}
		return unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))), nil
	default:
		return decimal.Zero, fmt.Errorf("failed to look up existing line: %w", err)
	}
}

func (s *orderService) UpdateLineQuantity(ctx context.Context, orderID, lineID int64, newQuantity int) (*Order, error) {
	if newQuantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1, got %d", ErrInvalidInput, newQuantity)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	status, total, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if status == StatusClosed {
		return nil, fmt.Errorf("%w: order %d", ErrOrderClosed, orderID)
	}

	line, err := fetchLineForUpdate(ctx, tx, orderID, lineID)
	if err != nil {
		return nil, err
	}

	delta := newQuantity - line.Quantity
	switch {
	case delta > 0:
		if _, err := s.stock.ConsumeTx(ctx, tx, &orderID, line.ProductID, line.VariantID, delta); err != nil {
			return nil, err
		}
	case delta < 0:
		if _, err := s.stock.RevertTx(ctx, tx, &orderID, line.ProductID, line.VariantID, -delta); err != nil {
			return nil, err
		}
	default:
		return s.GetOrder(ctx, orderID)
	}

	_, err = tx.Exec(ctx, "UPDATE order_lines SET quantity = $1 WHERE id = $2", newQuantity, lineID)
	if err != nil {
		return nil, fmt.Errorf("failed to update line %d: %w", lineID, err)
	}

	oldSubtotal := line.Subtotal()
	newSubtotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(newQuantity)))
	if err := updateTotal(ctx, tx, orderID, total.Sub(oldSubtotal).Add(newSubtotal)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit line update: %w", err)
	}
	return s.GetOrder(ctx, orderID)
}

func (s *orderService) RemoveLine(ctx context.Context, orderID, lineID int64) (*Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	status, total, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if status == StatusClosed {
		return nil, fmt.Errorf("%w: order %d", ErrOrderClosed, orderID)
	}

	line, err := fetchLineForUpdate(ctx, tx, orderID, lineID)
	if err != nil {
		return nil, err
	}

	if _, err := s.stock.RevertTx(ctx, tx, &orderID, line.ProductID, line.VariantID, line.Quantity); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM order_lines WHERE id = $1", lineID); err != nil {
		return nil, fmt.Errorf("failed to delete line %d: %w", lineID, err)
	}

	if err := updateTotal(ctx, tx, orderID, total.Sub(line.Subtotal())); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit line removal: %w", err)
	}
	return s.GetOrder(ctx, orderID)
}

// ── Resolution helpers ────────────────────────────────────────────────────────

// resolveUnitPrice snapshots the sale price for one item. The switch on the
// line kind is exhaustive: a variant line sells at the variant's price, a
// bare product line sells at the product's price.
func resolveUnitPrice(ctx context.Context, tx pgx.Tx, item LineInput) (decimal.Decimal, error) {
	kind := LineBareProduct
	if item.VariantID != nil {
		kind = LineVariant
	}

	switch kind {
	case LineVariant:
		var ownerID int64
		var price decimal.Decimal
		err := tx.QueryRow(ctx,
			"SELECT product_id, sale_price FROM variants WHERE id = $1", *item.VariantID,
		).Scan(&ownerID, &price)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return decimal.Zero, fmt.Errorf("%w: variant %d", ErrNotFound, *item.VariantID)
			}
			return decimal.Zero, fmt.Errorf("failed to resolve variant %d: %w", *item.VariantID, err)
		}
		if ownerID != item.ProductID {
			return decimal.Zero, fmt.Errorf("%w: variant %d belongs to product %d, not %d",
				ErrInvalidVariant, *item.VariantID, ownerID, item.ProductID)
		}
		return price, nil

	case LineBareProduct:
		var price decimal.Decimal
		err := tx.QueryRow(ctx,
			"SELECT purchase_price FROM products WHERE id = $1", item.ProductID,
		).Scan(&price)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return decimal.Zero, fmt.Errorf("%w: product %d", ErrNotFound, item.ProductID)
			}
			return decimal.Zero, fmt.Errorf("failed to resolve product %d: %w", item.ProductID, err)
		}
		return price, nil
	}

	return decimal.Zero, fmt.Errorf("%w: unknown line kind", ErrInconsistentState)
}

// toItemError wraps an item failure, preserving an existing ItemError.
func toItemError(index int, item LineInput, err error) ItemError {
	var ie ItemError
	if errors.As(err, &ie) {
		return ie
	}
	return itemErr(index, item.ProductID, unwrapKind(err), "%v", err)
}

// unwrapKind maps an error to the sentinel kind it wraps, defaulting to
// ErrInvalidInput for anything unclassified.
func unwrapKind(err error) error {
	for _, kind := range []error{
		ErrNotFound, ErrInvalidVariant, ErrInsufficientStock,
		ErrInconsistentState, ErrInvalidInput,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInvalidInput
}

// lockOrder reads and locks the order row, serializing operations per order.
func lockOrder(ctx context.Context, tx pgx.Tx, orderID int64) (status string, total decimal.Decimal, err error) {
	err = tx.QueryRow(ctx,
		"SELECT status, total FROM orders WHERE id = $1 FOR UPDATE", orderID,
	).Scan(&status, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", decimal.Zero, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return "", decimal.Zero, fmt.Errorf("failed to lock order %d: %w", orderID, err)
	}
	return status, total, nil
}

func fetchLineForUpdate(ctx context.Context, tx pgx.Tx, orderID, lineID int64) (*OrderLine, error) {
	var l OrderLine
	err := tx.QueryRow(ctx, `
		SELECT id, order_id, product_id, variant_id, quantity, unit_price
		FROM order_lines
		WHERE id = $1 AND order_id = $2
		FOR UPDATE
	`, lineID, orderID).Scan(&l.ID, &l.OrderID, &l.ProductID, &l.VariantID, &l.Quantity, &l.UnitPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: line %d on order %d", ErrNotFound, lineID, orderID)
		}
		return nil, fmt.Errorf("failed to fetch line %d: %w", lineID, err)
	}
	return &l, nil
}

func sumLineSubtotals(ctx context.Context, tx pgx.Tx, orderID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.QueryRow(ctx,
		"SELECT COALESCE(SUM(quantity * unit_price), 0) FROM order_lines WHERE order_id = $1",
		orderID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum line subtotals for order %d: %w", orderID, err)
	}
	return total, nil
}

func updateTotal(ctx context.Context, tx pgx.Tx, orderID int64, total decimal.Decimal) error {
	_, err := tx.Exec(ctx, "UPDATE orders SET total = $1 WHERE id = $2", total, orderID)
	if err != nil {
		return fmt.Errorf("failed to update total for order %d: %w", orderID, err)
	}
	return nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *orderService) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	var o Order
	err := s.pool.QueryRow(ctx, `
		SELECT id, client_name, opened_at, status, payment_method, total, amount_paid, change, closed_at
		FROM orders
		WHERE id = $1
	`, orderID).Scan(&o.ID, &o.ClientName, &o.OpenedAt, &o.Status, &o.PaymentMethod,
		&o.Total, &o.AmountPaid, &o.Change, &o.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to fetch order %d: %w", orderID, err)
	}

	lines, err := s.fetchLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return &o, nil
}

func (s *orderService) GetOpenOrders(ctx context.Context, clientFilter string) ([]Order, error) {
	query := `
		SELECT id, client_name, opened_at, status, payment_method, total, amount_paid, change, closed_at
		FROM orders
		WHERE status = $1
	`
	args := []any{StatusOpen}
	if clientFilter != "" {
		query += " AND client_name ILIKE '%' || $2 || '%'"
		args = append(args, clientFilter)
	}
	query += " ORDER BY opened_at DESC"
	return s.queryOrders(ctx, query, args...)
}

func (s *orderService) GetClosedOrders(ctx context.Context, clientFilter, methodFilter, dateFilter string) ([]Order, error) {
	query := `
		SELECT id, client_name, opened_at, status, payment_method, total, amount_paid, change, closed_at
		FROM orders
		WHERE status = $1
	`
	args := []any{StatusClosed}
	if clientFilter != "" {
		args = append(args, clientFilter)
		query += fmt.Sprintf(" AND client_name ILIKE '%%' || $%d || '%%'", len(args))
	}
	if methodFilter != "" {
		args = append(args, methodFilter)
		query += fmt.Sprintf(" AND payment_method = $%d", len(args))
	}
	if dateFilter != "" {
		args = append(args, dateFilter)
		query += fmt.Sprintf(" AND opened_at::date = $%d::date", len(args))
	}
	query += " ORDER BY opened_at DESC"
	return s.queryOrders(ctx, query, args...)
}

func (s *orderService) queryOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.ClientName, &o.OpenedAt, &o.Status, &o.PaymentMethod,
			&o.Total, &o.AmountPaid, &o.Change, &o.ClosedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	for i := range orders {
		lines, err := s.fetchLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

func (s *orderService) fetchLines(ctx context.Context, orderID int64) ([]OrderLine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ol.id, ol.order_id, ol.product_id, ol.variant_id,
		       p.name, COALESCE(v.name, ''),
		       ol.quantity, ol.unit_price
		FROM order_lines ol
		JOIN products p ON p.id = ol.product_id
		LEFT JOIN variants v ON v.id = ol.variant_id
		WHERE ol.order_id = $1
		ORDER BY ol.id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.VariantID,
			&l.ProductName, &l.VariantName, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
