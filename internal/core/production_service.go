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

// defaultOrderPriority is assigned to root orders; nested child orders get
// progressively higher priorities so they are worked first.
const defaultOrderPriority = 5

// ProductionService manages the production order lifecycle and builds
// nested production plans for multi-level BOMs.
type ProductionService interface {
	// CreateProductionOrder plans an order against the product's active BOM.
	// An empty warehouse code resolves the canonical warehouse for the
	// product's category.
	CreateProductionOrder(ctx context.Context, productCode string, quantity decimal.Decimal,
		warehouseCode string, priority int, notes string) (*ProductionOrder, error)

	// Lifecycle transitions. ReleaseOrder reserves component stock
	// atomically with the status change; CompleteOrder consumes it and
	// books the output batch.
	ReleaseOrder(ctx context.Context, orderID int, res ReservationService) (*ProductionOrder, error)
	StartOrder(ctx context.Context, orderID int) (*ProductionOrder, error)
	HoldOrder(ctx context.Context, orderID int) (*ProductionOrder, error)
	ResumeOrder(ctx context.Context, orderID int) (*ProductionOrder, error)
	CompleteOrder(ctx context.Context, orderID int, completedQty, scrappedQty decimal.Decimal,
		cons ConsumptionService) (*ProductionOrder, error)
	CancelOrder(ctx context.Context, orderID int, res ReservationService) (*ProductionOrder, error)

	// Nested planning.
	PlanNestedProduction(ctx context.Context, productID int, quantity decimal.Decimal) (*NestedPlan, error)
	CreateNestedProductionPlan(ctx context.Context, productID int, quantity decimal.Decimal) (*MaterializedPlan, error)

	// Queries.
	GetOrder(ctx context.Context, orderID int) (*ProductionOrder, error)
	GetOrders(ctx context.Context, status *OrderStatus) ([]ProductionOrder, error)
}

type productionService struct {
	pool *pgxpool.Pool
}

func NewProductionService(pool *pgxpool.Pool) ProductionService {
	return &productionService{pool: pool}
}

// ── Order creation ────────────────────────────────────────────────────────────

func (s *productionService) CreateProductionOrder(ctx context.Context, productCode string, quantity decimal.Decimal,
	warehouseCode string, priority int, notes string) (*ProductionOrder, error) {

	if quantity.IsZero() || quantity.IsNegative() {
		return nil, fmt.Errorf("planned quantity must be positive, got %s", quantity)
	}
	if priority == 0 {
		priority = defaultOrderPriority
	}
	if priority < 1 || priority > 10 {
		return nil, fmt.Errorf("priority must be between 1 and 10, got %d", priority)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var productID int
	var category ProductCategory
	err = tx.QueryRow(ctx,
		"SELECT id, category FROM products WHERE code = $1 AND is_active = true",
		productCode,
	).Scan(&productID, &category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "product", Key: productCode}
		}
		return nil, fmt.Errorf("failed to resolve product %s: %w", productCode, err)
	}
	if category != CategoryFinishedProduct && category != CategorySemiFinished {
		return nil, fmt.Errorf("product %s is %s and cannot be produced", productCode, category)
	}

	bomID, err := activeBOMIDQ(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	var warehouseID int
	if warehouseCode != "" {
		err = tx.QueryRow(ctx,
			"SELECT id FROM warehouses WHERE code = $1 AND is_active = true",
			warehouseCode,
		).Scan(&warehouseID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &NotFoundError{Entity: "warehouse", Key: warehouseCode}
			}
			return nil, fmt.Errorf("failed to resolve warehouse %s: %w", warehouseCode, err)
		}
	} else {
		warehouse, err := resolveSourceWarehouseQ(ctx, tx, category)
		if err != nil {
			return nil, err
		}
		warehouseID = warehouse.ID
	}

	orderID, err := createOrderTx(ctx, tx, productID, bomID, warehouseID, quantity, priority, notes)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order creation: %w", err)
	}

	slog.Info("production order created",
		"order_id", orderID, "product", productCode, "quantity", quantity.String())
	return s.GetOrder(ctx, orderID)
}

// createOrderTx inserts the order header and its exploded component rows.
// The order number is derived from the generated id after insert.
func createOrderTx(ctx context.Context, tx pgx.Tx, productID, bomID, warehouseID int,
	quantity decimal.Decimal, priority int, notes string) (int, error) {

	exploded, err := explodeFlatQ(ctx, tx, bomID, quantity)
	if err != nil {
		return 0, err
	}
	if len(exploded) == 0 {
		return 0, fmt.Errorf("BOM %d has no components; cannot create a production order", bomID)
	}

	var orderID int
	placeholder := "TMP-" + uuid.New().String()
	err = tx.QueryRow(ctx, `
		INSERT INTO production_orders (order_number, product_id, bom_id, warehouse_id, status, priority, planned_quantity, notes)
		VALUES ($1, $2, $3, $4, 'PLANNED', $5, $6, $7)
		RETURNING id
	`, placeholder, productID, bomID, warehouseID, priority, quantity, notes).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert production order: %w", err)
	}

	orderNumber := fmt.Sprintf("PO-%06d", orderID)
	if _, err := tx.Exec(ctx,
		"UPDATE production_orders SET order_number = $1 WHERE id = $2",
		orderNumber, orderID,
	); err != nil {
		return 0, fmt.Errorf("failed to assign order number: %w", err)
	}

	for _, e := range exploded {
		_, err = tx.Exec(ctx, `
			INSERT INTO production_order_components (production_order_id, product_id, required_quantity, allocated_quantity, consumed_quantity, allocation_status)
			VALUES ($1, $2, $3, 0, 0, 'NOT_ALLOCATED')
		`, orderID, e.ComponentProductID, e.RequiredQuantity)
		if err != nil {
			return 0, fmt.Errorf("failed to insert component %s for order %d: %w", e.ProductCode, orderID, err)
		}
	}
	return orderID, nil
}

// ── Lifecycle transitions ─────────────────────────────────────────────────────

// lockAndGateTx locks the order row and validates the requested transition
// against the transition table.
func lockAndGateTx(ctx context.Context, tx pgx.Tx, orderID int, to OrderStatus) (OrderStatus, error) {
	var status OrderStatus
	err := tx.QueryRow(ctx,
		"SELECT status FROM production_orders WHERE id = $1 FOR UPDATE",
		orderID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", &NotFoundError{Entity: "production order", Key: orderID}
		}
		return "", fmt.Errorf("failed to lock order %d: %w", orderID, err)
	}
	if !CanTransition(status, to) {
		return "", &InvalidStatusTransitionError{OrderID: orderID, From: status, To: to}
	}
	return status, nil
}

func (s *productionService) ReleaseOrder(ctx context.Context, orderID int, res ReservationService) (*ProductionOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := lockAndGateTx(ctx, tx, orderID, OrderReleased); err != nil {
		return nil, err
	}

	if res != nil {
		if _, err := res.ReserveForOrderTx(ctx, tx, orderID); err != nil {
			return nil, fmt.Errorf("stock reservation failed: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		"UPDATE production_orders SET status = 'RELEASED', released_at = NOW() WHERE id = $1",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to release order %d: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order release: %w", err)
	}

	slog.Info("production order released", "order_id", orderID)
	return s.GetOrder(ctx, orderID)
}

func (s *productionService) StartOrder(ctx context.Context, orderID int) (*ProductionOrder, error) {
	return s.simpleTransition(ctx, orderID, OrderInProgress,
		"UPDATE production_orders SET status = 'IN_PROGRESS', started_at = NOW() WHERE id = $1")
}

func (s *productionService) HoldOrder(ctx context.Context, orderID int) (*ProductionOrder, error) {
	return s.simpleTransition(ctx, orderID, OrderOnHold,
		"UPDATE production_orders SET status = 'ON_HOLD' WHERE id = $1")
}

// ResumeOrder returns a held order to RELEASED; its reservations were never
// released, so no re-allocation is needed.
func (s *productionService) ResumeOrder(ctx context.Context, orderID int) (*ProductionOrder, error) {
	return s.simpleTransition(ctx, orderID, OrderReleased,
		"UPDATE production_orders SET status = 'RELEASED' WHERE id = $1")
}

func (s *productionService) simpleTransition(ctx context.Context, orderID int, to OrderStatus, update string) (*ProductionOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := lockAndGateTx(ctx, tx, orderID, to); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, update, orderID); err != nil {
		return nil, fmt.Errorf("failed to transition order %d to %s: %w", orderID, to, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transition to %s: %w", to, err)
	}
	return s.GetOrder(ctx, orderID)
}

func (s *productionService) CompleteOrder(ctx context.Context, orderID int, completedQty, scrappedQty decimal.Decimal,
	cons ConsumptionService) (*ProductionOrder, error) {

	if completedQty.IsNegative() || scrappedQty.IsNegative() {
		return nil, fmt.Errorf("completed and scrapped quantities cannot be negative")
	}
	if completedQty.Add(scrappedQty).IsZero() {
		return nil, fmt.Errorf("completion requires a nonzero completed or scrapped quantity")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := lockAndGateTx(ctx, tx, orderID, OrderCompleted); err != nil {
		return nil, err
	}

	var planned decimal.Decimal
	if err := tx.QueryRow(ctx,
		"SELECT planned_quantity FROM production_orders WHERE id = $1", orderID,
	).Scan(&planned); err != nil {
		return nil, fmt.Errorf("failed to fetch planned quantity of order %d: %w", orderID, err)
	}
	if completedQty.Add(scrappedQty).GreaterThan(planned) {
		return nil, fmt.Errorf("completed %s + scrapped %s exceeds planned quantity %s",
			completedQty, scrappedQty, planned)
	}

	if cons != nil {
		if _, err := cons.ConsumeForOrderTx(ctx, tx, orderID); err != nil {
			return nil, fmt.Errorf("stock consumption failed: %w", err)
		}
		if completedQty.IsPositive() {
			if _, err := cons.CreateFinishedGoodsTx(ctx, tx, orderID, completedQty); err != nil {
				return nil, fmt.Errorf("finished goods receipt failed: %w", err)
			}
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE production_orders
		SET status = 'COMPLETED', completed_quantity = $1, scrapped_quantity = $2, completed_at = NOW()
		WHERE id = $3
	`, completedQty, scrappedQty, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete order %d: %w", orderID, err)
	}

	// Parent orders waiting on this one may now proceed.
	_, err = tx.Exec(ctx,
		"UPDATE production_dependencies SET status = 'SATISFIED' WHERE dependent_order_id = $1 AND status = 'PENDING'",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to satisfy dependencies of order %d: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order completion: %w", err)
	}

	slog.Info("production order completed",
		"order_id", orderID, "completed", completedQty.String(), "scrapped", scrappedQty.String())
	return s.GetOrder(ctx, orderID)
}

func (s *productionService) CancelOrder(ctx context.Context, orderID int, res ReservationService) (*ProductionOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := lockAndGateTx(ctx, tx, orderID, OrderCancelled); err != nil {
		return nil, err
	}

	if res != nil {
		if err := res.ReleaseForOrderTx(ctx, tx, orderID); err != nil {
			return nil, fmt.Errorf("failed to release stock reservations: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		"UPDATE production_orders SET status = 'CANCELLED', cancelled_at = NOW() WHERE id = $1",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order %d: %w", orderID, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE production_dependencies SET status = 'CANCELLED'
		WHERE (dependent_order_id = $1 OR parent_order_id = $1) AND status = 'PENDING'
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel dependencies of order %d: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order cancellation: %w", err)
	}

	slog.Info("production order cancelled", "order_id", orderID)
	return s.GetOrder(ctx, orderID)
}

// ── Nested planning ───────────────────────────────────────────────────────────

func (s *productionService) PlanNestedProduction(ctx context.Context, productID int, quantity decimal.Decimal) (*NestedPlan, error) {
	if quantity.IsZero() || quantity.IsNegative() {
		return nil, fmt.Errorf("plan quantity must be positive, got %s", quantity)
	}

	root, err := s.buildPlanNode(ctx, productID, quantity, defaultOrderPriority, map[int]bool{productID: true})
	if err != nil {
		return nil, err
	}

	plan := &NestedPlan{Root: root}
	var walk func(n *PlanNode)
	walk = func(n *PlanNode) {
		plan.TotalOrders++
		plan.TotalEstimatedCost = plan.TotalEstimatedCost.Add(n.EstimatedCost)
		for _, dep := range n.Dependencies {
			walk(dep)
		}
	}
	walk(root)
	return plan, nil
}

// buildPlanNode plans an order for one product and recurses into
// semi-finished shortages that can be produced. Child orders inherit a
// bumped priority, capped at 10.
func (s *productionService) buildPlanNode(ctx context.Context, productID int, quantity decimal.Decimal,
	priority int, visited map[int]bool) (*PlanNode, error) {

	var productCode, productName string
	var category ProductCategory
	err := s.pool.QueryRow(ctx,
		"SELECT code, name, category FROM products WHERE id = $1",
		productID,
	).Scan(&productCode, &productName, &category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "product", Key: productID}
		}
		return nil, fmt.Errorf("failed to fetch product %d: %w", productID, err)
	}

	bomID, err := activeBOMIDQ(ctx, s.pool, productID)
	if err != nil {
		return nil, err
	}

	warehouse, err := resolveSourceWarehouseQ(ctx, s.pool, category)
	if err != nil {
		return nil, err
	}

	analysis, err := analyzeQ(ctx, s.pool, productID, bomID, quantity, 0, visited)
	if err != nil {
		return nil, err
	}

	node := &PlanNode{
		ProductID:        productID,
		ProductCode:      productCode,
		ProductName:      productName,
		BOMID:            bomID,
		WarehouseID:      warehouse.ID,
		RequiredQuantity: quantity,
		EstimatedCost:    analysis.EstimatedTotalCost,
		Priority:         priority,
	}

	childPriority := priority + 1
	if childPriority > 10 {
		childPriority = 10
	}
	for _, comp := range analysis.Components {
		if comp.Sufficient || !comp.Resolvable {
			continue
		}
		if visited[comp.ProductID] {
			return nil, &CircularBOMError{BOMID: bomID, ProductID: comp.ProductID}
		}
		branch := make(map[int]bool, len(visited)+1)
		for id := range visited {
			branch[id] = true
		}
		branch[comp.ProductID] = true

		child, err := s.buildPlanNode(ctx, comp.ProductID, comp.ShortfallQuantity, childPriority, branch)
		if err != nil {
			return nil, err
		}
		node.Dependencies = append(node.Dependencies, child)
	}
	return node, nil
}

func (s *productionService) CreateNestedProductionPlan(ctx context.Context, productID int, quantity decimal.Decimal) (*MaterializedPlan, error) {
	plan, err := s.PlanNestedProduction(ctx, productID, quantity)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result := &MaterializedPlan{}
	var materialize func(n *PlanNode) (int, error)
	materialize = func(n *PlanNode) (int, error) {
		orderID, err := createOrderTx(ctx, tx, n.ProductID, n.BOMID, n.WarehouseID, n.RequiredQuantity, n.Priority,
			fmt.Sprintf("Nested production plan for %s", plan.Root.ProductCode))
		if err != nil {
			return 0, err
		}
		result.OrderIDs = append(result.OrderIDs, orderID)

		for _, dep := range n.Dependencies {
			childID, err := materialize(dep)
			if err != nil {
				return 0, err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO production_dependencies (parent_order_id, dependent_order_id, quantity, status)
				VALUES ($1, $2, $3, 'PENDING')
			`, orderID, childID, dep.RequiredQuantity); err != nil {
				return 0, fmt.Errorf("failed to link dependency %d -> %d: %w", orderID, childID, err)
			}
		}
		return orderID, nil
	}

	rootID, err := materialize(plan.Root)
	if err != nil {
		return nil, err
	}
	result.RootOrderID = rootID

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit nested plan: %w", err)
	}

	slog.Info("nested production plan created",
		"root_order_id", rootID, "orders", len(result.OrderIDs))
	return result, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *productionService) GetOrder(ctx context.Context, orderID int) (*ProductionOrder, error) {
	var o ProductionOrder
	err := s.pool.QueryRow(ctx, `
		SELECT id, order_number, product_id, bom_id, warehouse_id, status, priority,
		       planned_quantity, completed_quantity, scrapped_quantity,
		       planned_start_date, planned_end_date,
		       released_at, started_at, completed_at, cancelled_at,
		       notes, created_at
		FROM production_orders
		WHERE id = $1
	`, orderID).Scan(
		&o.ID, &o.OrderNumber, &o.ProductID, &o.BOMID, &o.WarehouseID, &o.Status, &o.Priority,
		&o.PlannedQuantity, &o.CompletedQuantity, &o.ScrappedQuantity,
		&o.PlannedStartDate, &o.PlannedEndDate,
		&o.ReleasedAt, &o.StartedAt, &o.CompletedAt, &o.CancelledAt,
		&o.Notes, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "production order", Key: orderID}
		}
		return nil, fmt.Errorf("failed to fetch order %d: %w", orderID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, production_order_id, product_id, required_quantity, allocated_quantity, consumed_quantity, allocation_status
		FROM production_order_components
		WHERE production_order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query components of order %d: %w", orderID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var c ProductionOrderComponent
		if err := rows.Scan(&c.ID, &c.ProductionOrderID, &c.ProductID,
			&c.RequiredQuantity, &c.AllocatedQuantity, &c.ConsumedQuantity, &c.AllocationStatus); err != nil {
			return nil, fmt.Errorf("failed to scan order component: %w", err)
		}
		o.Components = append(o.Components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating components of order %d: %w", orderID, err)
	}
	return &o, nil
}

func (s *productionService) GetOrders(ctx context.Context, status *OrderStatus) ([]ProductionOrder, error) {
	query := `
		SELECT id, order_number, product_id, bom_id, warehouse_id, status, priority,
		       planned_quantity, completed_quantity, scrapped_quantity,
		       planned_start_date, planned_end_date,
		       released_at, started_at, completed_at, cancelled_at,
		       notes, created_at
		FROM production_orders
	`
	var args []any
	if status != nil {
		query += " WHERE status = $1"
		args = append(args, *status)
	}
	query += " ORDER BY priority DESC, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []ProductionOrder
	for rows.Next() {
		var o ProductionOrder
		if err := rows.Scan(
			&o.ID, &o.OrderNumber, &o.ProductID, &o.BOMID, &o.WarehouseID, &o.Status, &o.Priority,
			&o.PlannedQuantity, &o.CompletedQuantity, &o.ScrappedQuantity,
			&o.PlannedStartDate, &o.PlannedEndDate,
			&o.ReleasedAt, &o.StartedAt, &o.CompletedAt, &o.CancelledAt,
			&o.Notes, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}
