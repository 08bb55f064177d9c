package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ConsumptionService turns an order's active reservations into actual stock
// deductions and books the finished goods batch on completion.
type ConsumptionService interface {
	// Standalone operations (manage their own transactions).
	ConsumeStockForProduction(ctx context.Context, orderID int) (*ConsumptionResult, error)
	CreateFinishedGoodsInventory(ctx context.Context, orderID int) (*FinishedGoodsResult, error)

	// TX-scoped operations used by ProductionService on order completion.
	ConsumeForOrderTx(ctx context.Context, tx pgx.Tx, orderID int) (*ConsumptionResult, error)
	CreateFinishedGoodsTx(ctx context.Context, tx pgx.Tx, orderID int, completedQty decimal.Decimal) (*FinishedGoodsResult, error)
}

type consumptionService struct {
	pool *pgxpool.Pool
}

func NewConsumptionService(pool *pgxpool.Pool) ConsumptionService {
	return &consumptionService{pool: pool}
}

func (s *consumptionService) ConsumeStockForProduction(ctx context.Context, orderID int) (*ConsumptionResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := s.ConsumeForOrderTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit consumption: %w", err)
	}
	return result, nil
}

func (s *consumptionService) CreateFinishedGoodsInventory(ctx context.Context, orderID int) (*FinishedGoodsResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var completed decimal.Decimal
	err = tx.QueryRow(ctx,
		"SELECT completed_quantity FROM production_orders WHERE id = $1",
		orderID,
	).Scan(&completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "production order", Key: orderID}
		}
		return nil, fmt.Errorf("failed to fetch order %d: %w", orderID, err)
	}

	result, err := s.CreateFinishedGoodsTx(ctx, tx, orderID, completed)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit finished goods receipt: %w", err)
	}
	return result, nil
}

// ConsumeForOrderTx deducts physical stock batch by batch, FIFO, for every
// active reservation of the order. Reserved batch stock must fully back the
// reservations; a gap means the invariant was broken elsewhere and surfaces
// as SynchronizationGapError.
func (s *consumptionService) ConsumeForOrderTx(ctx context.Context, tx pgx.Tx, orderID int) (*ConsumptionResult, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, product_id, warehouse_id, reserved_quantity
		FROM stock_reservations
		WHERE target_type = 'PRODUCTION_ORDER' AND target_id = $1 AND status = 'ACTIVE'
		ORDER BY id
		FOR UPDATE
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reservations for order %d: %w", orderID, err)
	}

	type resRow struct {
		id          int
		productID   int
		warehouseID int
		qty         decimal.Decimal
	}
	var reservations []resRow
	for rows.Next() {
		var r resRow
		if err := rows.Scan(&r.id, &r.productID, &r.warehouseID, &r.qty); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reservations: %w", err)
	}

	correlation := uuid.New()
	result := &ConsumptionResult{OrderID: orderID}
	pairs := map[[2]int]bool{}

	for _, r := range reservations {
		lines, err := consumeReservationTx(ctx, tx, orderID, r.id, r.productID, r.warehouseID, r.qty, correlation)
		if err != nil {
			return nil, err
		}
		for _, l := range lines {
			result.Lines = append(result.Lines, l)
			result.TotalCost = result.TotalCost.Add(l.Quantity.Mul(l.UnitCost))
		}

		if _, err := tx.Exec(ctx,
			"UPDATE stock_reservations SET status = 'CONSUMED' WHERE id = $1",
			r.id,
		); err != nil {
			return nil, fmt.Errorf("failed to mark reservation %d consumed: %w", r.id, err)
		}
		pairs[[2]int{r.productID, r.warehouseID}] = true
	}

	// Remaining active reservations of other orders redistribute over
	// whatever stock is left.
	for pair := range pairs {
		if _, err := syncReservationPairTx(ctx, tx, pair[0], pair[1]); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE production_order_components
		SET consumed_quantity = allocated_quantity, allocation_status = 'CONSUMED'
		WHERE production_order_id = $1 AND allocated_quantity > 0
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark components consumed for order %d: %w", orderID, err)
	}

	slog.Info("stock consumed for production",
		"order_id", orderID, "batches", len(result.Lines), "material_cost", result.TotalCost.String())
	return result, nil
}

// consumeReservationTx draws one reservation's quantity from the pair's
// reserved batch stock, oldest batch first.
func consumeReservationTx(ctx context.Context, tx pgx.Tx, orderID, reservationID, productID, warehouseID int,
	qty decimal.Decimal, correlation uuid.UUID) ([]ConsumptionLine, error) {

	rows, err := tx.Query(ctx, `
		SELECT id, batch_number, reserved_quantity, unit_cost
		FROM inventory_batches
		WHERE product_id = $1 AND warehouse_id = $2
		  AND quality_status = 'APPROVED'
		  AND reserved_quantity > 0
		ORDER BY entry_date, id
		FOR UPDATE
	`, productID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock reserved batches for product %d in warehouse %d: %w", productID, warehouseID, err)
	}

	type batchRow struct {
		id          int
		batchNumber string
		reserved    decimal.Decimal
		unitCost    decimal.Decimal
	}
	var batches []batchRow
	for rows.Next() {
		var b batchRow
		if err := rows.Scan(&b.id, &b.batchNumber, &b.reserved, &b.unitCost); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}

	var lines []ConsumptionLine
	remaining := qty
	for _, b := range batches {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, b.reserved)

		_, err = tx.Exec(ctx, `
			UPDATE inventory_batches
			SET quantity_in_stock = quantity_in_stock - $1,
			    reserved_quantity = reserved_quantity - $1,
			    updated_at = NOW()
			WHERE id = $2
		`, take, b.id)
		if err != nil {
			return nil, fmt.Errorf("failed to deduct batch %d: %w", b.id, err)
		}

		batchID := b.id
		if err := insertMovementTx(ctx, tx, StockMovement{
			BatchID:           &batchID,
			ProductID:         productID,
			WarehouseID:       warehouseID,
			MovementType:      MovementConsumption,
			Quantity:          take.Neg(),
			UnitCost:          b.unitCost,
			ProductionOrderID: &orderID,
			CorrelationID:     &correlation,
			PerformedBy:       systemActor,
			Notes:             fmt.Sprintf("Consumed for order %d from batch %s", orderID, b.batchNumber),
		}); err != nil {
			return nil, err
		}

		lines = append(lines, ConsumptionLine{
			BatchID:     b.id,
			BatchNumber: b.batchNumber,
			ProductID:   productID,
			WarehouseID: warehouseID,
			Quantity:    take,
			UnitCost:    b.unitCost,
		})
		remaining = remaining.Sub(take)
	}

	if remaining.IsPositive() {
		return nil, &SynchronizationGapError{
			ReservationID: reservationID,
			ProductID:     productID,
			WarehouseID:   warehouseID,
			Missing:       remaining,
		}
	}
	return lines, nil
}

// CreateFinishedGoodsTx books the output batch into the product's canonical
// warehouse. Unit cost is the consumed material cost spread over the
// completed quantity.
func (s *consumptionService) CreateFinishedGoodsTx(ctx context.Context, tx pgx.Tx, orderID int, completedQty decimal.Decimal) (*FinishedGoodsResult, error) {
	if completedQty.IsZero() || completedQty.IsNegative() {
		return nil, fmt.Errorf("completed quantity must be positive, got %s", completedQty)
	}

	var productID int
	var orderNumber string
	err := tx.QueryRow(ctx,
		"SELECT product_id, order_number FROM production_orders WHERE id = $1",
		orderID,
	).Scan(&productID, &orderNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "production order", Key: orderID}
		}
		return nil, fmt.Errorf("failed to fetch order %d: %w", orderID, err)
	}

	var category ProductCategory
	if err := tx.QueryRow(ctx,
		"SELECT category FROM products WHERE id = $1", productID,
	).Scan(&category); err != nil {
		return nil, fmt.Errorf("failed to fetch product %d: %w", productID, err)
	}

	warehouse, err := resolveSourceWarehouseQ(ctx, tx, category)
	if err != nil {
		return nil, err
	}

	var materialCost decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(ABS(quantity) * unit_cost), 0)
		FROM stock_movements
		WHERE production_order_id = $1 AND movement_type = 'CONSUMPTION'
	`, orderID).Scan(&materialCost)
	if err != nil {
		return nil, fmt.Errorf("failed to total consumption cost for order %d: %w", orderID, err)
	}
	unitCost := materialCost.Div(completedQty)

	correlation := uuid.New()
	batchNumber := fmt.Sprintf("%s-FG-%s", orderNumber, correlation.String()[:8])

	result := &FinishedGoodsResult{
		BatchNumber: batchNumber,
		WarehouseID: warehouse.ID,
		Quantity:    completedQty,
		UnitCost:    unitCost,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO inventory_batches (product_id, warehouse_id, batch_number, entry_date, quantity_in_stock, reserved_quantity, unit_cost, quality_status)
		VALUES ($1, $2, $3, NOW(), $4, 0, $5, 'APPROVED')
		RETURNING id
	`, productID, warehouse.ID, batchNumber, completedQty, unitCost).Scan(&result.BatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert finished goods batch: %w", err)
	}

	if err := insertMovementTx(ctx, tx, StockMovement{
		BatchID:           &result.BatchID,
		ProductID:         productID,
		WarehouseID:       warehouse.ID,
		MovementType:      MovementProductionOutput,
		Quantity:          completedQty,
		UnitCost:          unitCost,
		ProductionOrderID: &orderID,
		CorrelationID:     &correlation,
		PerformedBy:       systemActor,
		Notes:             fmt.Sprintf("Production output of order %s", orderNumber),
	}); err != nil {
		return nil, err
	}

	slog.Info("finished goods booked",
		"order_id", orderID, "batch", batchNumber,
		"quantity", completedQty.String(), "unit_cost", unitCost.String())
	return result, nil
}
