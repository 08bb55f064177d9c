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

// ReservationService allocates batch stock to production orders FIFO and
// keeps reservation rows and batch reserved quantities in sync. The global
// invariant it maintains: for every (product, warehouse) pair, the sum of
// batch reserved quantities equals the sum of ACTIVE reservation quantities.
type ReservationService interface {
	// Standalone operations (manage their own transactions).
	ReserveStockForProduction(ctx context.Context, orderID int) (*ReservationResult, error)
	ReleaseStockReservations(ctx context.Context, orderID int) error
	// AdjustReservationsForQuantityChange re-explodes the order's BOM at the
	// new quantity and grows or shrinks reservations to match.
	AdjustReservationsForQuantityChange(ctx context.Context, orderID int, newQuantity decimal.Decimal) (*ReservationResult, error)
	// ValidateAndFixReservationSync sweeps every pair touched by an active
	// reservation or a nonzero batch reservation and redistributes.
	ValidateAndFixReservationSync(ctx context.Context) (*SyncReport, error)

	// TX-scoped operations used by ProductionService to keep allocation
	// atomic with order state transitions.
	ReserveForOrderTx(ctx context.Context, tx pgx.Tx, orderID int) (*ReservationResult, error)
	ReleaseForOrderTx(ctx context.Context, tx pgx.Tx, orderID int) error
}

type reservationService struct {
	pool *pgxpool.Pool
}

func NewReservationService(pool *pgxpool.Pool) ReservationService {
	return &reservationService{pool: pool}
}

// ── Standalone operations ─────────────────────────────────────────────────────

func (s *reservationService) ReserveStockForProduction(ctx context.Context, orderID int) (*ReservationResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := s.ReserveForOrderTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}
	return result, nil
}

func (s *reservationService) ReleaseStockReservations(ctx context.Context, orderID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.ReleaseForOrderTx(ctx, tx, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

type orderComponentRow struct {
	id        int
	productID int
	required  decimal.Decimal
	allocated decimal.Decimal
}

func (s *reservationService) ReserveForOrderTx(ctx context.Context, tx pgx.Tx, orderID int) (*ReservationResult, error) {
	var orderWarehouseID int
	err := tx.QueryRow(ctx,
		"SELECT warehouse_id FROM production_orders WHERE id = $1 FOR UPDATE",
		orderID,
	).Scan(&orderWarehouseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "production order", Key: orderID}
		}
		return nil, fmt.Errorf("failed to lock order %d: %w", orderID, err)
	}

	components, err := fetchOrderComponentsTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	correlation := uuid.New()
	result := &ReservationResult{OrderID: orderID, FullyReserved: true}
	reservedAnything := false

	for _, comp := range components {
		cr, err := s.reserveComponentTx(ctx, tx, orderID, orderWarehouseID, comp, correlation)
		if err != nil {
			return nil, err
		}
		if cr.ReservedQuantity.IsPositive() {
			reservedAnything = true
		}
		if cr.Shortfall.IsPositive() {
			result.FullyReserved = false
			result.Shortfalls = append(result.Shortfalls, ComponentShortfall{
				ProductID:   cr.ProductID,
				ProductCode: cr.ProductCode,
				Required:    cr.RequiredQuantity,
				Available:   cr.RequiredQuantity.Sub(cr.Shortfall),
				Shortfall:   cr.Shortfall,
			})
		}
		result.Components = append(result.Components, *cr)
	}

	// All-or-nothing only in the degenerate case: when not a single unit
	// could be allocated, fail the whole transaction. Partial coverage
	// commits and reports the gaps.
	if !reservedAnything && len(result.Shortfalls) > 0 {
		return nil, &InsufficientStockError{OrderID: orderID, Shortfalls: result.Shortfalls}
	}
	if len(result.Shortfalls) > 0 {
		slog.Warn("partial stock reservation",
			"order_id", orderID, "short_components", len(result.Shortfalls))
	}
	return result, nil
}

// reserveComponentTx covers one component's outstanding requirement, walking
// warehouses in preference order (canonical source first, then the order's
// warehouse, then any other active warehouse) and batches FIFO within each.
func (s *reservationService) reserveComponentTx(ctx context.Context, tx pgx.Tx, orderID, orderWarehouseID int,
	comp orderComponentRow, correlation uuid.UUID) (*ComponentReservation, error) {

	var productCode string
	var category ProductCategory
	err := tx.QueryRow(ctx,
		"SELECT code, category FROM products WHERE id = $1",
		comp.productID,
	).Scan(&productCode, &category)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product %d: %w", comp.productID, err)
	}

	cr := &ComponentReservation{
		ProductID:        comp.productID,
		ProductCode:      productCode,
		RequiredQuantity: comp.required,
	}

	remaining := comp.required.Sub(comp.allocated)
	if !remaining.IsPositive() {
		cr.ReservedQuantity = decimal.Zero
		return cr, nil
	}

	warehouseIDs, err := s.warehouseSearchOrderTx(ctx, tx, category, orderWarehouseID)
	if err != nil {
		return nil, err
	}

	totalReserved := decimal.Zero
	for _, warehouseID := range warehouseIDs {
		if !remaining.IsPositive() {
			break
		}

		allocations, taken, err := allocateFromWarehouseTx(ctx, tx, comp.productID, warehouseID, remaining)
		if err != nil {
			return nil, err
		}
		if !taken.IsPositive() {
			continue
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO stock_reservations (product_id, warehouse_id, reserved_quantity, target_type, target_id, status)
			VALUES ($1, $2, $3, 'PRODUCTION_ORDER', $4, 'ACTIVE')
		`, comp.productID, warehouseID, taken, orderID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert reservation for product %s: %w", productCode, err)
		}

		// The synchronizer is the single writer of batch reserved
		// quantities; it redistributes the new total FIFO over the same
		// locked batches.
		if _, err := syncReservationPairTx(ctx, tx, comp.productID, warehouseID); err != nil {
			return nil, err
		}

		for _, a := range allocations {
			batchID := a.BatchID
			if err := insertMovementTx(ctx, tx, StockMovement{
				BatchID:           &batchID,
				ProductID:         comp.productID,
				WarehouseID:       warehouseID,
				MovementType:      MovementReservation,
				Quantity:          a.Quantity,
				UnitCost:          a.UnitCost,
				ProductionOrderID: &orderID,
				CorrelationID:     &correlation,
				PerformedBy:       systemActor,
				Notes:             fmt.Sprintf("Reserved for order %d from batch %s", orderID, a.BatchNumber),
			}); err != nil {
				return nil, err
			}
		}

		cr.Allocations = append(cr.Allocations, allocations...)
		totalReserved = totalReserved.Add(taken)
		remaining = remaining.Sub(taken)
	}

	cr.ReservedQuantity = totalReserved
	cr.Shortfall = remaining

	newAllocated := comp.allocated.Add(totalReserved)
	_, err = tx.Exec(ctx, `
		UPDATE production_order_components
		SET allocated_quantity = $1, allocation_status = $2
		WHERE id = $3
	`, newAllocated, DeriveAllocationStatus(newAllocated, comp.required), comp.id)
	if err != nil {
		return nil, fmt.Errorf("failed to update component allocation for product %s: %w", productCode, err)
	}
	return cr, nil
}

// warehouseSearchOrderTx returns warehouse ids in allocation preference
// order without duplicates.
func (s *reservationService) warehouseSearchOrderTx(ctx context.Context, tx pgx.Tx, category ProductCategory, orderWarehouseID int) ([]int, error) {
	var ids []int
	seen := map[int]bool{}

	canonical, err := resolveSourceWarehouseQ(ctx, tx, category)
	if err != nil {
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	} else {
		ids = append(ids, canonical.ID)
		seen[canonical.ID] = true
	}

	if orderWarehouseID > 0 && !seen[orderWarehouseID] {
		ids = append(ids, orderWarehouseID)
		seen[orderWarehouseID] = true
	}

	rows, err := tx.Query(ctx, "SELECT id FROM warehouses WHERE is_active = true ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query warehouses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan warehouse id: %w", err)
		}
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	return ids, rows.Err()
}

// allocateFromWarehouseTx locks the warehouse's APPROVED batches with free
// stock and computes FIFO takes up to the requested quantity. It does not
// mutate the batches; the pair synchronizer does that afterwards.
func allocateFromWarehouseTx(ctx context.Context, tx pgx.Tx, productID, warehouseID int,
	wanted decimal.Decimal) ([]BatchAllocation, decimal.Decimal, error) {

	rows, err := tx.Query(ctx, `
		SELECT id, batch_number, quantity_in_stock, reserved_quantity, unit_cost
		FROM inventory_batches
		WHERE product_id = $1 AND warehouse_id = $2
		  AND quality_status = 'APPROVED'
		  AND quantity_in_stock > reserved_quantity
		ORDER BY entry_date, id
		FOR UPDATE
	`, productID, warehouseID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to lock batches for product %d in warehouse %d: %w", productID, warehouseID, err)
	}

	type batchRow struct {
		id          int
		batchNumber string
		available   decimal.Decimal
		unitCost    decimal.Decimal
	}
	var batches []batchRow
	for rows.Next() {
		var b batchRow
		var stock, reserved decimal.Decimal
		if err := rows.Scan(&b.id, &b.batchNumber, &stock, &reserved, &b.unitCost); err != nil {
			rows.Close()
			return nil, decimal.Zero, fmt.Errorf("failed to scan batch: %w", err)
		}
		b.available = stock.Sub(reserved)
		batches = append(batches, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, decimal.Zero, fmt.Errorf("error iterating batches: %w", err)
	}

	var allocations []BatchAllocation
	remaining := wanted
	taken := decimal.Zero
	for _, b := range batches {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, b.available)
		allocations = append(allocations, BatchAllocation{
			BatchID:     b.id,
			BatchNumber: b.batchNumber,
			WarehouseID: warehouseID,
			Quantity:    take,
			UnitCost:    b.unitCost,
		})
		taken = taken.Add(take)
		remaining = remaining.Sub(take)
	}
	return allocations, taken, nil
}

func (s *reservationService) ReleaseForOrderTx(ctx context.Context, tx pgx.Tx, orderID int) error {
	rows, err := tx.Query(ctx, `
		SELECT id, product_id, warehouse_id, reserved_quantity
		FROM stock_reservations
		WHERE target_type = 'PRODUCTION_ORDER' AND target_id = $1 AND status = 'ACTIVE'
		ORDER BY id
		FOR UPDATE
	`, orderID)
	if err != nil {
		return fmt.Errorf("failed to fetch reservations for order %d: %w", orderID, err)
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
			return fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating reservations: %w", err)
	}

	correlation := uuid.New()
	pairs := map[[2]int]bool{}
	for _, r := range reservations {
		if _, err := tx.Exec(ctx,
			"UPDATE stock_reservations SET status = 'RELEASED' WHERE id = $1",
			r.id,
		); err != nil {
			return fmt.Errorf("failed to release reservation %d: %w", r.id, err)
		}
		pairs[[2]int{r.productID, r.warehouseID}] = true

		if err := insertMovementTx(ctx, tx, StockMovement{
			ProductID:         r.productID,
			WarehouseID:       r.warehouseID,
			MovementType:      MovementRelease,
			Quantity:          r.qty.Neg(),
			UnitCost:          decimal.Zero,
			ProductionOrderID: &orderID,
			CorrelationID:     &correlation,
			PerformedBy:       systemActor,
			Notes:             fmt.Sprintf("Reservation released for order %d", orderID),
		}); err != nil {
			return err
		}
	}

	for pair := range pairs {
		if _, err := syncReservationPairTx(ctx, tx, pair[0], pair[1]); err != nil {
			return err
		}
	}

	// Consumed components keep their history; everything else resets.
	_, err = tx.Exec(ctx, `
		UPDATE production_order_components
		SET allocated_quantity = 0, allocation_status = 'NOT_ALLOCATED'
		WHERE production_order_id = $1 AND allocation_status <> 'CONSUMED'
	`, orderID)
	if err != nil {
		return fmt.Errorf("failed to reset component allocations for order %d: %w", orderID, err)
	}
	return nil
}

// ── Quantity adjustment ───────────────────────────────────────────────────────

func (s *reservationService) AdjustReservationsForQuantityChange(ctx context.Context, orderID int, newQuantity decimal.Decimal) (*ReservationResult, error) {
	if newQuantity.IsZero() || newQuantity.IsNegative() {
		return nil, fmt.Errorf("new quantity must be positive, got %s", newQuantity)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status OrderStatus
	var bomID, orderWarehouseID int
	var oldQuantity decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT status, bom_id, warehouse_id, planned_quantity
		FROM production_orders WHERE id = $1 FOR UPDATE
	`, orderID).Scan(&status, &bomID, &orderWarehouseID, &oldQuantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "production order", Key: orderID}
		}
		return nil, fmt.Errorf("failed to lock order %d: %w", orderID, err)
	}
	if status != OrderPlanned && status != OrderReleased {
		return nil, fmt.Errorf("order %d quantity cannot change: status is %s (must be PLANNED or RELEASED)", orderID, status)
	}

	// New requirements come from re-exploding the same BOM at the new
	// quantity, not from scaling the old rows, so scrap rounding stays
	// exact.
	exploded, err := explodeFlatQ(ctx, tx, bomID, newQuantity)
	if err != nil {
		return nil, err
	}
	requiredByProduct := make(map[int]decimal.Decimal, len(exploded))
	for _, e := range exploded {
		requiredByProduct[e.ComponentProductID] = e.RequiredQuantity
	}

	components, err := fetchOrderComponentsTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	correlation := uuid.New()
	result := &ReservationResult{OrderID: orderID, FullyReserved: true}

	for _, comp := range components {
		newRequired, ok := requiredByProduct[comp.productID]
		if !ok {
			newRequired = decimal.Zero
		}

		if comp.allocated.GreaterThan(newRequired) {
			excess := comp.allocated.Sub(newRequired)
			if err := s.shrinkComponentTx(ctx, tx, orderID, comp.productID, excess, correlation); err != nil {
				return nil, err
			}
			comp.allocated = newRequired
		}

		_, err = tx.Exec(ctx, `
			UPDATE production_order_components
			SET required_quantity = $1, allocated_quantity = $2, allocation_status = $3
			WHERE id = $4
		`, newRequired, comp.allocated, DeriveAllocationStatus(comp.allocated, newRequired), comp.id)
		if err != nil {
			return nil, fmt.Errorf("failed to update component %d requirement: %w", comp.id, err)
		}

		// Grow path: reserve the delta only when the order is already out
		// on the floor; PLANNED orders reserve at release.
		if status == OrderReleased && comp.allocated.LessThan(newRequired) {
			comp.required = newRequired
			cr, err := s.reserveComponentTx(ctx, tx, orderID, orderWarehouseID, comp, correlation)
			if err != nil {
				return nil, err
			}
			if cr.Shortfall.IsPositive() {
				result.FullyReserved = false
				result.Shortfalls = append(result.Shortfalls, ComponentShortfall{
					ProductID:   cr.ProductID,
					ProductCode: cr.ProductCode,
					Required:    cr.RequiredQuantity,
					Available:   cr.RequiredQuantity.Sub(cr.Shortfall),
					Shortfall:   cr.Shortfall,
				})
			}
			result.Components = append(result.Components, *cr)
		}
	}

	_, err = tx.Exec(ctx,
		"UPDATE production_orders SET planned_quantity = $1 WHERE id = $2",
		newQuantity, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update planned quantity of order %d: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quantity adjustment: %w", err)
	}

	slog.Info("order quantity adjusted",
		"order_id", orderID, "old_quantity", oldQuantity.String(), "new_quantity", newQuantity.String())
	return result, nil
}

// shrinkComponentTx trims the order's active reservations for one product by
// the given excess, newest reservation first, and resyncs touched pairs.
func (s *reservationService) shrinkComponentTx(ctx context.Context, tx pgx.Tx, orderID, productID int,
	excess decimal.Decimal, correlation uuid.UUID) error {

	rows, err := tx.Query(ctx, `
		SELECT id, warehouse_id, reserved_quantity
		FROM stock_reservations
		WHERE product_id = $1 AND target_type = 'PRODUCTION_ORDER' AND target_id = $2 AND status = 'ACTIVE'
		ORDER BY id DESC
		FOR UPDATE
	`, productID, orderID)
	if err != nil {
		return fmt.Errorf("failed to fetch reservations to shrink for product %d: %w", productID, err)
	}

	type resRow struct {
		id          int
		warehouseID int
		qty         decimal.Decimal
	}
	var reservations []resRow
	for rows.Next() {
		var r resRow
		if err := rows.Scan(&r.id, &r.warehouseID, &r.qty); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating reservations: %w", err)
	}

	pairs := map[[2]int]bool{}
	remaining := excess
	for _, r := range reservations {
		if !remaining.IsPositive() {
			break
		}
		cut := decimal.Min(remaining, r.qty)
		if cut.Equal(r.qty) {
			_, err = tx.Exec(ctx, "UPDATE stock_reservations SET status = 'RELEASED' WHERE id = $1", r.id)
		} else {
			_, err = tx.Exec(ctx,
				"UPDATE stock_reservations SET reserved_quantity = reserved_quantity - $1 WHERE id = $2",
				cut, r.id,
			)
		}
		if err != nil {
			return fmt.Errorf("failed to shrink reservation %d: %w", r.id, err)
		}
		pairs[[2]int{productID, r.warehouseID}] = true

		if err := insertMovementTx(ctx, tx, StockMovement{
			ProductID:         productID,
			WarehouseID:       r.warehouseID,
			MovementType:      MovementRelease,
			Quantity:          cut.Neg(),
			UnitCost:          decimal.Zero,
			ProductionOrderID: &orderID,
			CorrelationID:     &correlation,
			PerformedBy:       systemActor,
			Notes:             fmt.Sprintf("Reservation reduced for quantity change on order %d", orderID),
		}); err != nil {
			return err
		}
		remaining = remaining.Sub(cut)
	}

	for pair := range pairs {
		if _, err := syncReservationPairTx(ctx, tx, pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

// ── Synchronizer ──────────────────────────────────────────────────────────────

func (s *reservationService) ValidateAndFixReservationSync(ctx context.Context) (*SyncReport, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT product_id, warehouse_id FROM stock_reservations WHERE status = 'ACTIVE'
		UNION
		SELECT product_id, warehouse_id FROM inventory_batches WHERE reserved_quantity > 0
		ORDER BY 1, 2
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservation pairs: %w", err)
	}

	var pairs [][2]int
	for rows.Next() {
		var p [2]int
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pairs: %w", err)
	}

	report := &SyncReport{}
	for _, p := range pairs {
		outcome, err := syncReservationPairTx(ctx, tx, p[0], p[1])
		if err != nil {
			return nil, err
		}
		report.PairsChecked++
		if outcome.Changed {
			report.PairsFixed++
			report.Outcomes = append(report.Outcomes, *outcome)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit sync pass: %w", err)
	}

	if report.PairsFixed > 0 {
		slog.Warn("reservation sync repaired pairs",
			"checked", report.PairsChecked, "fixed", report.PairsFixed)
	}
	return report, nil
}

// syncReservationPairTx redistributes the pair's ACTIVE reservation total
// over its batches FIFO. APPROVED batches fill oldest-first up to their
// physical stock; all other batches drop to zero. Idempotent: a second run
// changes nothing. A target that exceeds reservable stock is logged and
// reported, never an error, so release and consumption paths can still
// proceed.
func syncReservationPairTx(ctx context.Context, tx pgx.Tx, productID, warehouseID int) (*SyncOutcome, error) {
	outcome := &SyncOutcome{ProductID: productID, WarehouseID: warehouseID}

	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(reserved_quantity), 0)
		FROM stock_reservations
		WHERE product_id = $1 AND warehouse_id = $2 AND status = 'ACTIVE'
	`, productID, warehouseID).Scan(&outcome.TargetQuantity)
	if err != nil {
		return nil, fmt.Errorf("failed to sum reservations for product %d in warehouse %d: %w", productID, warehouseID, err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id, quantity_in_stock, reserved_quantity, quality_status
		FROM inventory_batches
		WHERE product_id = $1 AND warehouse_id = $2
		ORDER BY entry_date, id
		FOR UPDATE
	`, productID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock batches for product %d in warehouse %d: %w", productID, warehouseID, err)
	}

	type batchRow struct {
		id       int
		stock    decimal.Decimal
		reserved decimal.Decimal
		quality  QualityStatus
	}
	var batches []batchRow
	for rows.Next() {
		var b batchRow
		if err := rows.Scan(&b.id, &b.stock, &b.reserved, &b.quality); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}

	remaining := outcome.TargetQuantity
	for _, b := range batches {
		want := decimal.Zero
		if b.quality == QualityApproved {
			want = decimal.Min(remaining, b.stock)
		}
		if !want.Equal(b.reserved) {
			if _, err := tx.Exec(ctx, `
				UPDATE inventory_batches SET reserved_quantity = $1, updated_at = NOW()
				WHERE id = $2
			`, want, b.id); err != nil {
				return nil, fmt.Errorf("failed to set reserved quantity on batch %d: %w", b.id, err)
			}
			outcome.Changed = true
		}
		remaining = remaining.Sub(want)
		outcome.AppliedQuantity = outcome.AppliedQuantity.Add(want)
	}

	if remaining.IsPositive() {
		outcome.Shortfall = remaining
		slog.Warn("reservation target exceeds reservable stock",
			"product_id", productID, "warehouse_id", warehouseID,
			"target", outcome.TargetQuantity.String(), "shortfall", remaining.String())
	}
	return outcome, nil
}

// fetchOrderComponentsTx loads the order's component rows in creation order.
func fetchOrderComponentsTx(ctx context.Context, tx pgx.Tx, orderID int) ([]orderComponentRow, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, product_id, required_quantity, allocated_quantity
		FROM production_order_components
		WHERE production_order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query components of order %d: %w", orderID, err)
	}
	defer rows.Close()

	var components []orderComponentRow
	for rows.Next() {
		var c orderComponentRow
		if err := rows.Scan(&c.id, &c.productID, &c.required, &c.allocated); err != nil {
			return nil, fmt.Errorf("failed to scan order component: %w", err)
		}
		components = append(components, c)
	}
	return components, rows.Err()
}
