package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StockService is the inventory reconciliation engine. It translates a
// serving-count request into container-level stock changes and reverses that
// translation when lines shrink or disappear.
//
// The TX-scoped methods work within a caller-provided transaction so stock
// changes commit atomically with the order mutation that caused them. Each
// call locks the product row FOR UPDATE, which also serializes concurrent
// operations touching the same product.
type StockService interface {
	// ConsumeTx deducts qty units of the product (or qty servings of the
	// variant for volume-metered products) inside the caller's TX.
	// orderID, if non-nil, links the audit movement to an order.
	ConsumeTx(ctx context.Context, tx pgx.Tx, orderID *int64, productID int64, variantID *int64, qty int) (*PourResult, error)

	// RevertTx is the inverse of ConsumeTx, used when a line's quantity is
	// reduced or the line is removed.
	RevertTx(ctx context.Context, tx pgx.Tx, orderID *int64, productID int64, variantID *int64, qty int) (*PourResult, error)

	// Standalone read views (manage their own connections).
	GetStockLevels(ctx context.Context) ([]StockLevel, error)
	GetMovements(ctx context.Context, productID int64) ([]StockMovement, error)
}

type stockService struct {
	pool *pgxpool.Pool
}

func NewStockService(pool *pgxpool.Pool) StockService {
	return &stockService{pool: pool}
}

// lockedProduct is the slice of a product row the engine mutates, read under
// FOR UPDATE so no concurrent operation can interleave.
type lockedProduct struct {
	id                 int64
	name               string
	stockUnits         int
	isVolumeMetered    bool
	volumePerContainer *int
	openRemainder      int
}

func lockProduct(ctx context.Context, tx pgx.Tx, productID int64) (*lockedProduct, error) {
	var p lockedProduct
	err := tx.QueryRow(ctx, `
		SELECT id, name, stock_units, is_volume_metered, volume_per_container, open_container_remainder
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&p.id, &p.name, &p.stockUnits, &p.isVolumeMetered, &p.volumePerContainer, &p.openRemainder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %d", ErrNotFound, productID)
		}
		return nil, fmt.Errorf("failed to lock product %d: %w", productID, err)
	}
	return &p, nil
}

// minServingVolume returns the smallest serving volume defined across all
// variants of a product, or 0 when no variant defines one. It bounds the
// near-empty threshold of the pour math.
func minServingVolume(ctx context.Context, tx pgx.Tx, productID int64) (int, error) {
	var minServing *int
	err := tx.QueryRow(ctx,
		"SELECT MIN(serving_volume) FROM variants WHERE product_id = $1 AND serving_volume IS NOT NULL",
		productID,
	).Scan(&minServing)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve minimum serving volume for product %d: %w", productID, err)
	}
	if minServing == nil {
		return 0, nil
	}
	return *minServing, nil
}

// servingVolumeTx resolves the variant's serving volume inside the TX and
// validates it belongs to the product. A volume-metered product sold through
// a variant must have a positive serving volume on that variant.
func servingVolumeTx(ctx context.Context, tx pgx.Tx, productID, variantID int64) (int, error) {
	var owner int64
	var serving *int
	err := tx.QueryRow(ctx,
		"SELECT product_id, serving_volume FROM variants WHERE id = $1", variantID,
	).Scan(&owner, &serving)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: variant %d", ErrNotFound, variantID)
		}
		return 0, fmt.Errorf("failed to fetch variant %d: %w", variantID, err)
	}
	if owner != productID {
		return 0, fmt.Errorf("%w: variant %d belongs to product %d, not %d", ErrInvalidVariant, variantID, owner, productID)
	}
	if serving == nil || *serving <= 0 {
		return 0, fmt.Errorf("%w: variant %d has no serving volume", ErrInvalidVariant, variantID)
	}
	return *serving, nil
}

func (s *stockService) ConsumeTx(ctx context.Context, tx pgx.Tx, orderID *int64, productID int64, variantID *int64, qty int) (*PourResult, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidInput, qty)
	}

	p, err := lockProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	// A metered product sold without a variant sells whole unopened
	// containers and follows the discrete path.
	if !p.isVolumeMetered || variantID == nil {
		if p.stockUnits < qty {
			return nil, fmt.Errorf("%w: %s has %d units, need %d", ErrInsufficientStock, p.name, p.stockUnits, qty)
		}
		newUnits := p.stockUnits - qty
		if err := s.writeCounters(ctx, tx, productID, newUnits, p.openRemainder); err != nil {
			return nil, err
		}
		res := &PourResult{ContainersDelta: qty, Remainder: p.openRemainder}
		return res, s.recordMovement(ctx, tx, productID, orderID, "CONSUME", -qty, 0,
			fmt.Sprintf("%d units of %s", qty, p.name))
	}

	if p.volumePerContainer == nil {
		return nil, fmt.Errorf("%w: product %s is volume-metered but has no container volume", ErrInconsistentState, p.name)
	}

	serving, err := servingVolumeTx(ctx, tx, productID, *variantID)
	if err != nil {
		return nil, err
	}
	minServing, err := minServingVolume(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	st := bottleState{StockUnits: p.stockUnits, OpenRemainder: p.openRemainder}
	st, res, err := consumePour(st, *p.volumePerContainer, qty*serving, minServing)
	if err != nil {
		return nil, fmt.Errorf("consume %d × %d ml of %s: %w", qty, serving, p.name, err)
	}

	if err := s.writeCounters(ctx, tx, productID, st.StockUnits, st.OpenRemainder); err != nil {
		return nil, err
	}
	return &res, s.recordMovement(ctx, tx, productID, orderID, "CONSUME", -(res.ContainersDelta), -res.MlDelta,
		fmt.Sprintf("%d × %d ml of %s, remainder %d ml", qty, serving, p.name, res.Remainder))
}

func (s *stockService) RevertTx(ctx context.Context, tx pgx.Tx, orderID *int64, productID int64, variantID *int64, qty int) (*PourResult, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidInput, qty)
	}

	p, err := lockProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	if !p.isVolumeMetered || variantID == nil {
		newUnits := p.stockUnits + qty
		if err := s.writeCounters(ctx, tx, productID, newUnits, p.openRemainder); err != nil {
			return nil, err
		}
		res := &PourResult{ContainersDelta: qty, Remainder: p.openRemainder}
		return res, s.recordMovement(ctx, tx, productID, orderID, "REVERT", qty, 0,
			fmt.Sprintf("%d units of %s returned", qty, p.name))
	}

	if p.volumePerContainer == nil {
		return nil, fmt.Errorf("%w: product %s is volume-metered but has no container volume", ErrInconsistentState, p.name)
	}

	serving, err := servingVolumeTx(ctx, tx, productID, *variantID)
	if err != nil {
		return nil, err
	}
	minServing, err := minServingVolume(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	st := bottleState{StockUnits: p.stockUnits, OpenRemainder: p.openRemainder}
	st, res, err := revertPour(st, *p.volumePerContainer, qty*serving, minServing)
	if err != nil {
		return nil, fmt.Errorf("revert %d × %d ml of %s: %w", qty, serving, p.name, err)
	}

	if err := s.writeCounters(ctx, tx, productID, st.StockUnits, st.OpenRemainder); err != nil {
		return nil, err
	}
	return &res, s.recordMovement(ctx, tx, productID, orderID, "REVERT", res.ContainersDelta, -res.MlDelta,
		fmt.Sprintf("%d × %d ml of %s returned, remainder %d ml", qty, serving, p.name, res.Remainder))
}

func (s *stockService) writeCounters(ctx context.Context, tx pgx.Tx, productID int64, stockUnits, openRemainder int) error {
	if stockUnits < 0 || openRemainder < 0 {
		return fmt.Errorf("%w: refusing to write negative counters for product %d", ErrInconsistentState, productID)
	}
	_, err := tx.Exec(ctx,
		"UPDATE products SET stock_units = $1, open_container_remainder = $2 WHERE id = $3",
		stockUnits, openRemainder, productID)
	if err != nil {
		return fmt.Errorf("failed to update stock for product %d: %w", productID, err)
	}
	return nil
}

func (s *stockService) recordMovement(ctx context.Context, tx pgx.Tx, productID int64, orderID *int64, movementType string, unitsDelta, mlDelta int, notes string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_movements (product_id, order_id, movement_type, units_delta, ml_delta, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, productID, orderID, movementType, unitsDelta, mlDelta, notes)
	if err != nil {
		return fmt.Errorf("failed to insert stock movement for product %d: %w", productID, err)
	}
	return nil
}

// ── Read views ────────────────────────────────────────────────────────────────

func (s *stockService) GetStockLevels(ctx context.Context) ([]StockLevel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, stock_units, is_volume_metered, volume_per_container, open_container_remainder
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		var sl StockLevel
		if err := rows.Scan(&sl.ProductID, &sl.ProductName, &sl.StockUnits,
			&sl.IsVolumeMetered, &sl.VolumePerContainer, &sl.OpenRemainder); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		levels = append(levels, sl)
	}
	return levels, rows.Err()
}

func (s *stockService) GetMovements(ctx context.Context, productID int64) ([]StockMovement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, product_id, order_id, movement_type, units_delta, ml_delta, COALESCE(notes, ''), moved_at
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY moved_at DESC, id DESC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock movements for product %d: %w", productID, err)
	}
	defer rows.Close()

	var movements []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.OrderID, &m.MovementType,
			&m.UnitsDelta, &m.MlDelta, &m.Notes, &m.MovedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
