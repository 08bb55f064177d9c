package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// systemActor is recorded as performed_by on movements written by the
// engines rather than by an explicit caller.
const systemActor = "system"

// StockService manages inventory batches: goods receipt, quality status
// changes, and read views over stock.
type StockService interface {
	// ReceiveStock creates a new batch. An empty quality status defaults to
	// APPROVED; only APPROVED batches participate in availability.
	ReceiveStock(ctx context.Context, productCode, warehouseCode, batchNumber string,
		qty, unitCost decimal.Decimal, entryDate time.Time, quality QualityStatus, performedBy string) (*InventoryBatch, error)
	// SetBatchQualityStatus moves a batch between quality states and
	// redistributes reservations for the affected pair, since a batch
	// leaving APPROVED no longer backs any reservation.
	SetBatchQualityStatus(ctx context.Context, batchID int, quality QualityStatus, performedBy string) error

	GetStockLevels(ctx context.Context) ([]StockLevel, error)
	GetBatches(ctx context.Context, productCode string) ([]InventoryBatch, error)
	GetMovementsForOrder(ctx context.Context, orderID int) ([]StockMovement, error)
}

type stockService struct {
	pool *pgxpool.Pool
}

func NewStockService(pool *pgxpool.Pool) StockService {
	return &stockService{pool: pool}
}

func (s *stockService) ReceiveStock(ctx context.Context, productCode, warehouseCode, batchNumber string,
	qty, unitCost decimal.Decimal, entryDate time.Time, quality QualityStatus, performedBy string) (*InventoryBatch, error) {

	if qty.IsNegative() || qty.IsZero() {
		return nil, fmt.Errorf("receive quantity must be positive, got %s", qty)
	}
	if unitCost.IsNegative() {
		return nil, fmt.Errorf("unit cost cannot be negative, got %s", unitCost)
	}
	if quality == "" {
		quality = QualityApproved
	}
	if performedBy == "" {
		performedBy = systemActor
	}
	if entryDate.IsZero() {
		entryDate = time.Now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var productID int
	if err := tx.QueryRow(ctx,
		"SELECT id FROM products WHERE code = $1 AND is_active = true",
		productCode,
	).Scan(&productID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "product", Key: productCode}
		}
		return nil, fmt.Errorf("failed to resolve product %s: %w", productCode, err)
	}

	var warehouseID int
	if err := tx.QueryRow(ctx,
		"SELECT id FROM warehouses WHERE code = $1 AND is_active = true",
		warehouseCode,
	).Scan(&warehouseID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "warehouse", Key: warehouseCode}
		}
		return nil, fmt.Errorf("failed to resolve warehouse %s: %w", warehouseCode, err)
	}

	var b InventoryBatch
	err = tx.QueryRow(ctx, `
		INSERT INTO inventory_batches (product_id, warehouse_id, batch_number, entry_date, quantity_in_stock, reserved_quantity, unit_cost, quality_status)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		RETURNING id, product_id, warehouse_id, batch_number, entry_date, quantity_in_stock, reserved_quantity, unit_cost, quality_status, created_at, updated_at
	`, productID, warehouseID, batchNumber, entryDate, qty, unitCost, quality).Scan(
		&b.ID, &b.ProductID, &b.WarehouseID, &b.BatchNumber, &b.EntryDate,
		&b.QuantityInStock, &b.ReservedQty, &b.UnitCost, &b.QualityStatus, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert inventory batch: %w", err)
	}

	correlation := uuid.New()
	if err := insertMovementTx(ctx, tx, StockMovement{
		BatchID:       &b.ID,
		ProductID:     productID,
		WarehouseID:   warehouseID,
		MovementType:  MovementReceipt,
		Quantity:      qty,
		UnitCost:      unitCost,
		CorrelationID: &correlation,
		PerformedBy:   performedBy,
		Notes:         fmt.Sprintf("Goods receipt: batch %s, %s units @ %s", batchNumber, qty, unitCost),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit goods receipt: %w", err)
	}

	slog.Info("stock received",
		"product", productCode, "warehouse", warehouseCode,
		"batch", batchNumber, "quantity", qty.String())
	return &b, nil
}

func (s *stockService) SetBatchQualityStatus(ctx context.Context, batchID int, quality QualityStatus, performedBy string) error {
	if performedBy == "" {
		performedBy = systemActor
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var productID, warehouseID int
	var current QualityStatus
	var qty decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT product_id, warehouse_id, quality_status, quantity_in_stock
		FROM inventory_batches WHERE id = $1 FOR UPDATE
	`, batchID).Scan(&productID, &warehouseID, &current, &qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Entity: "inventory batch", Key: batchID}
		}
		return fmt.Errorf("failed to lock batch %d: %w", batchID, err)
	}
	if current == quality {
		return nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE inventory_batches SET quality_status = $1, updated_at = NOW()
		WHERE id = $2
	`, quality, batchID)
	if err != nil {
		return fmt.Errorf("failed to update quality status of batch %d: %w", batchID, err)
	}

	correlation := uuid.New()
	if err := insertMovementTx(ctx, tx, StockMovement{
		BatchID:       &batchID,
		ProductID:     productID,
		WarehouseID:   warehouseID,
		MovementType:  MovementAdjustment,
		Quantity:      decimal.Zero,
		UnitCost:      decimal.Zero,
		CorrelationID: &correlation,
		PerformedBy:   performedBy,
		Notes:         fmt.Sprintf("Quality status change %s -> %s for batch %d", current, quality, batchID),
	}); err != nil {
		return err
	}

	// A batch entering or leaving APPROVED changes which stock can back the
	// pair's reservations.
	if current == QualityApproved || quality == QualityApproved {
		if _, err := syncReservationPairTx(ctx, tx, productID, warehouseID); err != nil {
			return fmt.Errorf("failed to resync reservations after quality change: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *stockService) GetStockLevels(ctx context.Context) ([]StockLevel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.code, p.name, w.code, w.name,
		       COALESCE(SUM(b.quantity_in_stock), 0),
		       COALESCE(SUM(b.reserved_quantity), 0),
		       COALESCE(SUM(b.quantity_in_stock - b.reserved_quantity), 0)
		FROM inventory_batches b
		JOIN products p   ON p.id = b.product_id
		JOIN warehouses w ON w.id = b.warehouse_id
		WHERE b.quality_status = 'APPROVED'
		GROUP BY p.code, p.name, w.code, w.name
		ORDER BY p.code, w.code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		var sl StockLevel
		if err := rows.Scan(
			&sl.ProductCode, &sl.ProductName,
			&sl.WarehouseCode, &sl.WarehouseName,
			&sl.OnHand, &sl.Reserved, &sl.Available,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		levels = append(levels, sl)
	}
	return levels, nil
}

func (s *stockService) GetBatches(ctx context.Context, productCode string) ([]InventoryBatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.id, b.product_id, b.warehouse_id, b.batch_number, b.entry_date,
		       b.quantity_in_stock, b.reserved_quantity, b.unit_cost, b.quality_status,
		       b.created_at, b.updated_at
		FROM inventory_batches b
		JOIN products p ON p.id = b.product_id
		WHERE p.code = $1
		ORDER BY b.entry_date, b.id
	`, productCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches for product %s: %w", productCode, err)
	}
	defer rows.Close()

	var batches []InventoryBatch
	for rows.Next() {
		var b InventoryBatch
		if err := rows.Scan(&b.ID, &b.ProductID, &b.WarehouseID, &b.BatchNumber, &b.EntryDate,
			&b.QuantityInStock, &b.ReservedQty, &b.UnitCost, &b.QualityStatus,
			&b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (s *stockService) GetMovementsForOrder(ctx context.Context, orderID int) ([]StockMovement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, batch_id, product_id, warehouse_id, movement_type, quantity, unit_cost,
		       production_order_id, correlation_id, performed_by, notes, created_at
		FROM stock_movements
		WHERE production_order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var movements []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.BatchID, &m.ProductID, &m.WarehouseID, &m.MovementType,
			&m.Quantity, &m.UnitCost, &m.ProductionOrderID, &m.CorrelationID,
			&m.PerformedBy, &m.Notes, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, nil
}

// insertMovementTx appends one audit row within the caller's transaction.
func insertMovementTx(ctx context.Context, tx pgx.Tx, m StockMovement) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_movements (batch_id, product_id, warehouse_id, movement_type, quantity, unit_cost, production_order_id, correlation_id, performed_by, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.BatchID, m.ProductID, m.WarehouseID, m.MovementType, m.Quantity, m.UnitCost,
		m.ProductionOrderID, m.CorrelationID, m.PerformedBy, m.Notes)
	if err != nil {
		return fmt.Errorf("failed to insert %s movement: %w", m.MovementType, err)
	}
	return nil
}
