package core_test

import (
	"errors"
	"strings"
	"testing"

	"mrp-engine/internal/core"

	"github.com/shopspring/decimal"
)

func TestProductionOrder_CreateDefaults(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)

	order, err := production.CreateProductionOrder(ctx, "FG-Z", decimal.NewFromInt(10), "", 0, "first run")
	if err != nil {
		t.Fatalf("CreateProductionOrder failed: %v", err)
	}

	if order.Status != core.OrderPlanned {
		t.Errorf("Expected PLANNED, got %s", order.Status)
	}
	if !strings.HasPrefix(order.OrderNumber, "PO-") {
		t.Errorf("Expected PO- order number, got %q", order.OrderNumber)
	}
	if order.Priority != 5 {
		t.Errorf("Expected default priority 5, got %d", order.Priority)
	}
	// Finished products default to the finished goods warehouse.
	if order.WarehouseID != 3 {
		t.Errorf("Expected warehouse 3, got %d", order.WarehouseID)
	}

	if len(order.Components) != 2 {
		t.Fatalf("Expected 2 components, got %d", len(order.Components))
	}
	for _, comp := range order.Components {
		if comp.AllocationStatus != core.AllocationNone {
			t.Errorf("Component %d: expected NOT_ALLOCATED, got %s", comp.ProductID, comp.AllocationStatus)
		}
		switch comp.ProductID {
		case 3: // SF-X: 2 per unit
			if !comp.RequiredQuantity.Equal(decimal.NewFromInt(20)) {
				t.Errorf("SF-X: expected required=20, got %s", comp.RequiredQuantity)
			}
		case 1: // RM-A: 3 per unit
			if !comp.RequiredQuantity.Equal(decimal.NewFromInt(30)) {
				t.Errorf("RM-A: expected required=30, got %s", comp.RequiredQuantity)
			}
		}
	}
}

func TestProductionOrder_RejectsRawMaterial(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)

	_, err := production.CreateProductionOrder(ctx, "RM-A", decimal.NewFromInt(10), "", 0, "")
	if err == nil {
		t.Fatal("Expected error creating an order for a raw material, got nil")
	}
	t.Logf("Got expected error: %v", err)
}

func TestProductionOrder_InvalidTransition(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)

	order, err := production.CreateProductionOrder(ctx, "FG-Z", decimal.NewFromInt(10), "", 0, "")
	if err != nil {
		t.Fatalf("CreateProductionOrder failed: %v", err)
	}

	// PLANNED orders must be released before work starts.
	_, err = production.StartOrder(ctx, order.ID)
	var invalid *core.InvalidStatusTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected InvalidStatusTransitionError, got %v", err)
	}
	if invalid.From != core.OrderPlanned || invalid.To != core.OrderInProgress {
		t.Errorf("Expected PLANNED -> IN_PROGRESS in error, got %s -> %s", invalid.From, invalid.To)
	}
}

func TestProductionOrder_FullLifecycle(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)
	reservations := core.NewReservationService(pool)
	consumption := core.NewConsumptionService(pool)

	// FG-Z × 30 needs 60 SF-X and 90 RM-A.
	seedBatch(t, ctx, pool, 3, 2, "SF-1", "2026-01-10", decimal.NewFromInt(60), decimal.NewFromInt(8))
	seedBatch(t, ctx, pool, 1, 1, "RM-1", "2026-01-05", decimal.NewFromInt(90), decimal.NewFromInt(10))

	order, err := production.CreateProductionOrder(ctx, "FG-Z", decimal.NewFromInt(30), "", 0, "")
	if err != nil {
		t.Fatalf("CreateProductionOrder failed: %v", err)
	}

	order, err = production.ReleaseOrder(ctx, order.ID, reservations)
	if err != nil {
		t.Fatalf("ReleaseOrder failed: %v", err)
	}
	order, err = production.StartOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("StartOrder failed: %v", err)
	}
	if order.Status != core.OrderInProgress || order.StartedAt == nil {
		t.Errorf("Expected IN_PROGRESS with started_at set, got %s", order.Status)
	}

	order, err = production.CompleteOrder(ctx, order.ID, decimal.NewFromInt(28), decimal.NewFromInt(2), consumption)
	if err != nil {
		t.Fatalf("CompleteOrder failed: %v", err)
	}
	if order.Status != core.OrderCompleted || order.CompletedAt == nil {
		t.Errorf("Expected COMPLETED with completed_at set, got %s", order.Status)
	}
	if !order.CompletionPercentage().Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected 100%% completion, got %s", order.CompletionPercentage())
	}

	// Inputs fully consumed.
	for _, batch := range []string{"SF-1", "RM-1"} {
		var stock, reserved decimal.Decimal
		if err := pool.QueryRow(ctx,
			"SELECT quantity_in_stock, reserved_quantity FROM inventory_batches WHERE batch_number = $1",
			batch,
		).Scan(&stock, &reserved); err != nil {
			t.Fatalf("Failed to fetch batch %s: %v", batch, err)
		}
		if !stock.IsZero() || !reserved.IsZero() {
			t.Errorf("Batch %s: expected empty after consumption, got stock=%s reserved=%s", batch, stock, reserved)
		}
	}
	assertPairInvariant(t, ctx, pool, 1, 1)
	assertPairInvariant(t, ctx, pool, 3, 2)

	// Output batch in the finished goods warehouse, costed from consumed
	// materials: (60 × 8 + 90 × 10) / 28 = 1380 / 28.
	var fgQty, fgCost decimal.Decimal
	var fgWarehouse int
	err = pool.QueryRow(ctx, `
		SELECT quantity_in_stock, unit_cost, warehouse_id
		FROM inventory_batches
		WHERE product_id = 4
	`).Scan(&fgQty, &fgCost, &fgWarehouse)
	if err != nil {
		t.Fatalf("Failed to fetch finished goods batch: %v", err)
	}
	if !fgQty.Equal(decimal.NewFromInt(28)) {
		t.Errorf("Expected output quantity 28, got %s", fgQty)
	}
	expectedCost := decimal.NewFromInt(1380).Div(decimal.NewFromInt(28))
	if !fgCost.Equal(expectedCost) {
		t.Errorf("Expected output unit cost %s, got %s", expectedCost, fgCost)
	}
	if fgWarehouse != 3 {
		t.Errorf("Expected output in warehouse 3, got %d", fgWarehouse)
	}

	// Components recorded as consumed.
	for _, comp := range order.Components {
		if comp.AllocationStatus != core.AllocationConsumed {
			t.Errorf("Component %d: expected CONSUMED, got %s", comp.ProductID, comp.AllocationStatus)
		}
		if !comp.ConsumedQuantity.Equal(comp.RequiredQuantity) {
			t.Errorf("Component %d: expected consumed=%s, got %s", comp.ProductID, comp.RequiredQuantity, comp.ConsumedQuantity)
		}
	}
}

func TestProductionOrder_CancelReleasesStock(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)
	reservations := core.NewReservationService(pool)

	seedBatch(t, ctx, pool, 3, 2, "SF-1", "2026-01-10", decimal.NewFromInt(100), decimal.NewFromInt(8))
	seedBatch(t, ctx, pool, 1, 1, "RM-1", "2026-01-05", decimal.NewFromInt(150), decimal.NewFromInt(10))

	order, err := production.CreateProductionOrder(ctx, "FG-Z", decimal.NewFromInt(30), "", 0, "")
	if err != nil {
		t.Fatalf("CreateProductionOrder failed: %v", err)
	}
	if _, err := production.ReleaseOrder(ctx, order.ID, reservations); err != nil {
		t.Fatalf("ReleaseOrder failed: %v", err)
	}

	order, err = production.CancelOrder(ctx, order.ID, reservations)
	if err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	if order.Status != core.OrderCancelled || order.CancelledAt == nil {
		t.Errorf("Expected CANCELLED with cancelled_at set, got %s", order.Status)
	}

	for _, batch := range []string{"SF-1", "RM-1"} {
		if got := batchReserved(t, ctx, pool, batch); !got.IsZero() {
			t.Errorf("Batch %s: expected reserved=0 after cancel, got %s", batch, got)
		}
	}
	for _, comp := range order.Components {
		if comp.AllocationStatus != core.AllocationNone || !comp.AllocatedQuantity.IsZero() {
			t.Errorf("Component %d: expected allocation reset, got %s / %s",
				comp.ProductID, comp.AllocationStatus, comp.AllocatedQuantity)
		}
	}
	assertPairInvariant(t, ctx, pool, 1, 1)
	assertPairInvariant(t, ctx, pool, 3, 2)
}

func TestProductionOrder_HoldAndResume(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)
	reservations := core.NewReservationService(pool)

	seedBatch(t, ctx, pool, 3, 2, "SF-1", "2026-01-10", decimal.NewFromInt(100), decimal.NewFromInt(8))
	seedBatch(t, ctx, pool, 1, 1, "RM-1", "2026-01-05", decimal.NewFromInt(150), decimal.NewFromInt(10))

	order, err := production.CreateProductionOrder(ctx, "FG-Z", decimal.NewFromInt(10), "", 0, "")
	if err != nil {
		t.Fatalf("CreateProductionOrder failed: %v", err)
	}
	if _, err := production.ReleaseOrder(ctx, order.ID, reservations); err != nil {
		t.Fatalf("ReleaseOrder failed: %v", err)
	}

	order, err = production.HoldOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("HoldOrder failed: %v", err)
	}
	if order.Status != core.OrderOnHold {
		t.Errorf("Expected ON_HOLD, got %s", order.Status)
	}

	// Reservations survive the hold.
	if got := batchReserved(t, ctx, pool, "SF-1"); !got.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected SF-1 reserved=20 while on hold, got %s", got)
	}

	order, err = production.ResumeOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("ResumeOrder failed: %v", err)
	}
	if order.Status != core.OrderReleased {
		t.Errorf("Expected RELEASED after resume, got %s", order.Status)
	}
}

// ── Quantity adjustment ───────────────────────────────────────────────────────

func TestAdjustQuantity_Decrease(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)
	reservations := core.NewReservationService(pool)

	seedBatch(t, ctx, pool, 3, 2, "SF-1", "2026-01-10", decimal.NewFromInt(200), decimal.NewFromInt(8))
	seedBatch(t, ctx, pool, 1, 1, "RM-1", "2026-01-05", decimal.NewFromInt(300), decimal.NewFromInt(10))

	order, err := production.CreateProductionOrder(ctx, "FG-Z", decimal.NewFromInt(100), "", 0, "")
	if err != nil {
		t.Fatalf("CreateProductionOrder failed: %v", err)
	}
	if _, err := production.ReleaseOrder(ctx, order.ID, reservations); err != nil {
		t.Fatalf("ReleaseOrder failed: %v", err)
	}

	result, err := reservations.AdjustReservationsForQuantityChange(ctx, order.ID, decimal.NewFromInt(60))
	if err != nil {
		t.Fatalf("AdjustReservationsForQuantityChange failed: %v", err)
	}
	if !result.FullyReserved {
		t.Errorf("Expected fully reserved after decrease, got shortfalls %+v", result.Shortfalls)
	}

	order, err = production.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if !order.PlannedQuantity.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Expected planned quantity 60, got %s", order.PlannedQuantity)
	}
	for _, comp := range order.Components {
		var expected int64
		switch comp.ProductID {
		case 3:
			expected = 120
		case 1:
			expected = 180
		}
		if !comp.RequiredQuantity.Equal(decimal.NewFromInt(expected)) {
			t.Errorf("Component %d: expected required=%d, got %s", comp.ProductID, expected, comp.RequiredQuantity)
		}
		if !comp.AllocatedQuantity.Equal(decimal.NewFromInt(expected)) {
			t.Errorf("Component %d: expected allocated=%d, got %s", comp.ProductID, expected, comp.AllocatedQuantity)
		}
	}

	if got := batchReserved(t, ctx, pool, "SF-1"); !got.Equal(decimal.NewFromInt(120)) {
		t.Errorf("Expected SF-1 reserved=120 after decrease, got %s", got)
	}
	if got := batchReserved(t, ctx, pool, "RM-1"); !got.Equal(decimal.NewFromInt(180)) {
		t.Errorf("Expected RM-1 reserved=180 after decrease, got %s", got)
	}
	assertPairInvariant(t, ctx, pool, 1, 1)
	assertPairInvariant(t, ctx, pool, 3, 2)
}

func TestAdjustQuantity_Increase(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)
	reservations := core.NewReservationService(pool)

	// Stock covers 80 units: 160 SF-X, 240 RM-A.
	seedBatch(t, ctx, pool, 3, 2, "SF-1", "2026-01-10", decimal.NewFromInt(160), decimal.NewFromInt(8))
	seedBatch(t, ctx, pool, 1, 1, "RM-1", "2026-01-05", decimal.NewFromInt(240), decimal.NewFromInt(10))

	order, err := production.CreateProductionOrder(ctx, "FG-Z", decimal.NewFromInt(50), "", 0, "")
	if err != nil {
		t.Fatalf("CreateProductionOrder failed: %v", err)
	}
	if _, err := production.ReleaseOrder(ctx, order.ID, reservations); err != nil {
		t.Fatalf("ReleaseOrder failed: %v", err)
	}

	result, err := reservations.AdjustReservationsForQuantityChange(ctx, order.ID, decimal.NewFromInt(80))
	if err != nil {
		t.Fatalf("AdjustReservationsForQuantityChange failed: %v", err)
	}
	if !result.FullyReserved {
		t.Errorf("Expected fully reserved after increase, got shortfalls %+v", result.Shortfalls)
	}

	if got := batchReserved(t, ctx, pool, "SF-1"); !got.Equal(decimal.NewFromInt(160)) {
		t.Errorf("Expected SF-1 reserved=160 after increase, got %s", got)
	}
	if got := batchReserved(t, ctx, pool, "RM-1"); !got.Equal(decimal.NewFromInt(240)) {
		t.Errorf("Expected RM-1 reserved=240 after increase, got %s", got)
	}
	assertPairInvariant(t, ctx, pool, 1, 1)
	assertPairInvariant(t, ctx, pool, 3, 2)
}

// ── Nested planning ───────────────────────────────────────────────────────────

func TestNestedPlan_BuildsDependencyTree(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)

	// FG-Z × 100 needs 200 SF-X; 50 on hand leaves 150 to produce. RM-B
	// covers the nested run (needs 600), RM-A covers the root (needs 300).
	seedBatch(t, ctx, pool, 3, 2, "SF-1", "2026-01-10", decimal.NewFromInt(50), decimal.NewFromInt(8))
	seedBatch(t, ctx, pool, 1, 1, "RM-1", "2026-01-05", decimal.NewFromInt(300), decimal.NewFromInt(10))
	seedBatch(t, ctx, pool, 2, 1, "RMB-1", "2026-01-05", decimal.NewFromInt(1000), decimal.NewFromInt(4))

	plan, err := production.PlanNestedProduction(ctx, 4, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("PlanNestedProduction failed: %v", err)
	}
	if plan.TotalOrders != 2 {
		t.Fatalf("Expected 2 planned orders, got %d", plan.TotalOrders)
	}
	if plan.Root.ProductCode != "FG-Z" || plan.Root.Priority != 5 {
		t.Errorf("Root: expected FG-Z priority 5, got %s priority %d", plan.Root.ProductCode, plan.Root.Priority)
	}
	if len(plan.Root.Dependencies) != 1 {
		t.Fatalf("Expected 1 dependency, got %d", len(plan.Root.Dependencies))
	}

	child := plan.Root.Dependencies[0]
	if child.ProductCode != "SF-X" {
		t.Errorf("Expected SF-X child, got %s", child.ProductCode)
	}
	if !child.RequiredQuantity.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected child quantity 150 (shortfall only), got %s", child.RequiredQuantity)
	}
	if child.Priority != 6 {
		t.Errorf("Expected child priority 6, got %d", child.Priority)
	}
	if child.WarehouseID != 2 {
		t.Errorf("Expected child warehouse 2, got %d", child.WarehouseID)
	}
}

func TestNestedPlan_SkipsUnresolvableShortage(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)

	// FG-Z × 100 leaves 150 SF-X to produce, but the nested run would need
	// 600 RM-B against 100 on hand. A child order could never reserve its
	// materials, so none may be planned.
	seedBatch(t, ctx, pool, 3, 2, "SF-1", "2026-01-10", decimal.NewFromInt(50), decimal.NewFromInt(8))
	seedBatch(t, ctx, pool, 1, 1, "RM-1", "2026-01-05", decimal.NewFromInt(300), decimal.NewFromInt(10))
	seedBatch(t, ctx, pool, 2, 1, "RMB-1", "2026-01-05", decimal.NewFromInt(100), decimal.NewFromInt(4))

	plan, err := production.PlanNestedProduction(ctx, 4, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("PlanNestedProduction failed: %v", err)
	}
	if plan.TotalOrders != 1 {
		t.Fatalf("Expected only the root order, got %d", plan.TotalOrders)
	}
	if len(plan.Root.Dependencies) != 0 {
		t.Errorf("Expected no dependencies for an unresolvable shortage, got %d", len(plan.Root.Dependencies))
	}
}

func TestNestedPlan_Materializes(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)

	seedBatch(t, ctx, pool, 3, 2, "SF-1", "2026-01-10", decimal.NewFromInt(50), decimal.NewFromInt(8))
	seedBatch(t, ctx, pool, 2, 1, "RMB-1", "2026-01-05", decimal.NewFromInt(1000), decimal.NewFromInt(4))

	plan, err := production.CreateNestedProductionPlan(ctx, 4, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("CreateNestedProductionPlan failed: %v", err)
	}
	if len(plan.OrderIDs) != 2 {
		t.Fatalf("Expected 2 orders created, got %d", len(plan.OrderIDs))
	}

	root, err := production.GetOrder(ctx, plan.RootOrderID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if root.ProductID != 4 || root.Status != core.OrderPlanned {
		t.Errorf("Root order: expected product 4 PLANNED, got product %d %s", root.ProductID, root.Status)
	}

	var childID int
	var depStatus core.DependencyStatus
	err = pool.QueryRow(ctx, `
		SELECT dependent_order_id, status FROM production_dependencies WHERE parent_order_id = $1
	`, plan.RootOrderID).Scan(&childID, &depStatus)
	if err != nil {
		t.Fatalf("Failed to fetch dependency: %v", err)
	}
	if depStatus != core.DependencyPending {
		t.Errorf("Expected PENDING dependency, got %s", depStatus)
	}

	child, err := production.GetOrder(ctx, childID)
	if err != nil {
		t.Fatalf("GetOrder child failed: %v", err)
	}
	if child.ProductID != 3 || !child.PlannedQuantity.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Child order: expected SF-X × 150, got product %d × %s", child.ProductID, child.PlannedQuantity)
	}
	if child.Priority != 6 {
		t.Errorf("Child order: expected priority 6, got %d", child.Priority)
	}
}
