package core_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"mrp-engine/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// setupTestDB truncates the test database and seeds the master data shared
// by all integration tests: one warehouse per type, two raw materials, one
// semi-finished product with an active BOM, and one finished product whose
// active BOM uses both.
//
//	FG-Z (bom 1): 2 × SF-X + 3 × RM-A
//	SF-X (bom 2): 4 × RM-B
func setupTestDB(t *testing.T) (*pgxpool.Pool, context.Context) {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE stock_movements, production_dependencies, production_order_components,
			production_orders, stock_reservations, inventory_batches, bom_components, boms,
			products, warehouses
		RESTART IDENTITY CASCADE;

		INSERT INTO warehouses (id, code, name, type) VALUES
		(1, 'WH-RM', 'Raw Materials',     'RAW_MATERIALS'),
		(2, 'WH-SF', 'Semi Finished',     'SEMI_FINISHED'),
		(3, 'WH-FG', 'Finished Products', 'FINISHED_PRODUCTS'),
		(4, 'WH-PK', 'Packaging',         'PACKAGING');

		INSERT INTO products (id, code, name, category, unit, min_stock_level, critical_stock_level, standard_cost) VALUES
		(1, 'RM-A', 'Base Resin',     'RAW_MATERIAL',     'kg',  100, 50, 10),
		(2, 'RM-B', 'Hardener',       'RAW_MATERIAL',     'kg',  200, 80, 4),
		(3, 'SF-X', 'Compound X',     'SEMI_FINISHED',    'kg',  50,  20, 30),
		(4, 'FG-Z', 'Panel Z',        'FINISHED_PRODUCT', 'pcs', 20,  10, 120);

		SELECT setval(pg_get_serial_sequence('warehouses', 'id'), 4);
		SELECT setval(pg_get_serial_sequence('products', 'id'), 4);

		INSERT INTO boms (id, product_id, version, status, effective_date, base_quantity, yield_percentage, labor_cost_per_unit, overhead_cost_per_unit) VALUES
		(1, 4, 'v1', 'ACTIVE', CURRENT_DATE, 1, 100, 5, 3),
		(2, 3, 'v1', 'ACTIVE', CURRENT_DATE, 1, 100, 2, 1);

		SELECT setval(pg_get_serial_sequence('boms', 'id'), 2);

		INSERT INTO bom_components (bom_id, component_product_id, sequence_number, quantity_required, scrap_percentage) VALUES
		(1, 3, 1, 2, 0),
		(1, 1, 2, 3, 0),
		(2, 2, 1, 4, 0);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool, ctx
}

// seedBatch inserts an APPROVED batch directly.
func seedBatch(t *testing.T, ctx context.Context, pool *pgxpool.Pool,
	productID, warehouseID int, batchNumber, entryDate string, qty, unitCost decimal.Decimal) {
	t.Helper()
	_, err := pool.Exec(ctx, `
		INSERT INTO inventory_batches (product_id, warehouse_id, batch_number, entry_date, quantity_in_stock, reserved_quantity, unit_cost, quality_status)
		VALUES ($1, $2, $3, $4, $5, 0, $6, 'APPROVED')
	`, productID, warehouseID, batchNumber, entryDate, qty, unitCost)
	if err != nil {
		t.Fatalf("Failed to seed batch %s: %v", batchNumber, err)
	}
}

// assertPairInvariant verifies the reservation invariant for one pair: the
// sum of batch reserved quantities must equal the sum of ACTIVE reservation
// quantities.
func assertPairInvariant(t *testing.T, ctx context.Context, pool *pgxpool.Pool, productID, warehouseID int) {
	t.Helper()
	var batchReserved, activeReserved decimal.Decimal
	err := pool.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT SUM(reserved_quantity) FROM inventory_batches
			          WHERE product_id = $1 AND warehouse_id = $2), 0),
			COALESCE((SELECT SUM(reserved_quantity) FROM stock_reservations
			          WHERE product_id = $1 AND warehouse_id = $2 AND status = 'ACTIVE'), 0)
	`, productID, warehouseID).Scan(&batchReserved, &activeReserved)
	if err != nil {
		t.Fatalf("Invariant query failed: %v", err)
	}
	if !batchReserved.Equal(activeReserved) {
		t.Errorf("Reservation invariant broken for product %d warehouse %d: batches=%s reservations=%s",
			productID, warehouseID, batchReserved, activeReserved)
	}
}

func batchReserved(t *testing.T, ctx context.Context, pool *pgxpool.Pool, batchNumber string) decimal.Decimal {
	t.Helper()
	var reserved decimal.Decimal
	err := pool.QueryRow(ctx,
		"SELECT reserved_quantity FROM inventory_batches WHERE batch_number = $1",
		batchNumber,
	).Scan(&reserved)
	if err != nil {
		t.Fatalf("Failed to fetch batch %s: %v", batchNumber, err)
	}
	return reserved
}

// ── Availability analysis ─────────────────────────────────────────────────────

func TestAvailability_SufficientStock(t *testing.T) {
	pool, ctx := setupTestDB(t)
	avail := core.NewAvailabilityService(pool)

	// FG-Z × 100 needs 200 SF-X and 300 RM-A.
	seedBatch(t, ctx, pool, 3, 2, "SF-001", "2026-01-10", decimal.NewFromInt(200), decimal.NewFromInt(28))
	seedBatch(t, ctx, pool, 1, 1, "RM-001", "2026-01-05", decimal.NewFromInt(300), decimal.NewFromInt(10))

	result, err := avail.AnalyzeStockAvailability(ctx, core.AvailabilityRequest{
		ProductID: 4,
		Quantity:  decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("AnalyzeStockAvailability failed: %v", err)
	}
	if !result.CanProduce || result.ShortageExists {
		t.Errorf("Expected can_produce=true, shortage=false; got %v, %v", result.CanProduce, result.ShortageExists)
	}
	if len(result.Components) != 2 {
		t.Fatalf("Expected 2 components, got %d", len(result.Components))
	}

	// Material: 200 × 28 + 300 × 10 = 8600; conversion (5+3) × 100 = 800.
	if !result.EstimatedMaterialCost.Equal(decimal.NewFromInt(8600)) {
		t.Errorf("Expected material cost 8600, got %s", result.EstimatedMaterialCost)
	}
	if !result.EstimatedTotalCost.Equal(decimal.NewFromInt(9400)) {
		t.Errorf("Expected total cost 9400, got %s", result.EstimatedTotalCost)
	}
}

func TestAvailability_WeightedFIFOCost(t *testing.T) {
	pool, ctx := setupTestDB(t)
	avail := core.NewAvailabilityService(pool)

	// FG-Z × 60 needs 180 RM-A. FIFO covers 100 @ 10 from the old batch and
	// 80 @ 12 from the new one: weighted cost (1000 + 960) / 180.
	seedBatch(t, ctx, pool, 1, 1, "RM-OLD", "2026-01-01", decimal.NewFromInt(100), decimal.NewFromInt(10))
	seedBatch(t, ctx, pool, 1, 1, "RM-NEW", "2026-02-01", decimal.NewFromInt(200), decimal.NewFromInt(12))

	result, err := avail.AnalyzeStockAvailability(ctx, core.AvailabilityRequest{
		ProductID: 4,
		Quantity:  decimal.NewFromInt(60),
	})
	if err != nil {
		t.Fatalf("AnalyzeStockAvailability failed: %v", err)
	}

	var rmA *core.ComponentAvailability
	for i := range result.Components {
		if result.Components[i].ProductCode == "RM-A" {
			rmA = &result.Components[i]
		}
	}
	if rmA == nil {
		t.Fatal("RM-A not found in analysis components")
	}

	expected := decimal.NewFromInt(1960).Div(decimal.NewFromInt(180))
	if !rmA.UnitCost.Equal(expected) {
		t.Errorf("Expected weighted unit cost %s, got %s", expected, rmA.UnitCost)
	}
	if !rmA.Sufficient {
		t.Error("Expected RM-A to be sufficient (300 available, 180 required)")
	}
}

func TestAvailability_ShortageClassification(t *testing.T) {
	pool, ctx := setupTestDB(t)
	avail := core.NewAvailabilityService(pool)

	// No SF-X on hand, and only 60 RM-B where nested production of 20 SF-X
	// would need 80. RM-A is missing entirely.
	seedBatch(t, ctx, pool, 2, 1, "RMB-001", "2026-01-05", decimal.NewFromInt(60), decimal.NewFromInt(4))

	result, err := avail.AnalyzeStockAvailability(ctx, core.AvailabilityRequest{
		ProductID: 4,
		Quantity:  decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("AnalyzeStockAvailability failed: %v", err)
	}
	if result.CanProduce || !result.ShortageExists {
		t.Fatalf("Expected shortage; got can_produce=%v", result.CanProduce)
	}

	for _, comp := range result.Components {
		switch comp.ProductCode {
		case "SF-X":
			// 20 short with an active BOM, but the nested run is itself
			// 20 kg of RM-B short (needs 80, has 60): the raw gap
			// reclassifies SF-X as unresolvable and surfaces underneath.
			if comp.Sufficient || comp.Resolvable {
				t.Errorf("SF-X: expected unresolvable shortage; got sufficient=%v resolvable=%v", comp.Sufficient, comp.Resolvable)
			}
			if len(comp.NestedShortages) != 1 || comp.NestedShortages[0].ProductCode != "RM-B" {
				t.Fatalf("SF-X: expected one nested RM-B shortage, got %+v", comp.NestedShortages)
			}
			if !comp.NestedShortages[0].ShortfallQuantity.Equal(decimal.NewFromInt(20)) {
				t.Errorf("RM-B nested shortfall: expected 20, got %s", comp.NestedShortages[0].ShortfallQuantity)
			}
		case "RM-A":
			// Raw material with no stock and no BOM: not resolvable.
			if comp.Sufficient || comp.Resolvable {
				t.Errorf("RM-A: expected unresolvable shortage; got sufficient=%v resolvable=%v", comp.Sufficient, comp.Resolvable)
			}
			if !comp.ShortfallQuantity.Equal(decimal.NewFromInt(30)) {
				t.Errorf("RM-A shortfall: expected 30, got %s", comp.ShortfallQuantity)
			}
		}
	}
}

func TestAvailability_ResolvableShortageKeepsCanProduce(t *testing.T) {
	pool, ctx := setupTestDB(t)
	avail := core.NewAvailabilityService(pool)

	// No SF-X on hand, but RM-B fully covers the nested run (needs 80) and
	// RM-A covers the root requirement of 30.
	seedBatch(t, ctx, pool, 1, 1, "RMA-001", "2026-01-05", decimal.NewFromInt(300), decimal.NewFromInt(10))
	seedBatch(t, ctx, pool, 2, 1, "RMB-001", "2026-01-05", decimal.NewFromInt(100), decimal.NewFromInt(4))

	result, err := avail.AnalyzeStockAvailability(ctx, core.AvailabilityRequest{
		ProductID: 4,
		Quantity:  decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("AnalyzeStockAvailability failed: %v", err)
	}

	// The only shortage is a semi-finished item a nested run can cover.
	if !result.CanProduce || !result.ShortageExists {
		t.Fatalf("Expected can_produce with a resolvable shortage; got can_produce=%v shortage_exists=%v",
			result.CanProduce, result.ShortageExists)
	}

	for _, comp := range result.Components {
		switch comp.ProductCode {
		case "SF-X":
			if comp.Sufficient || !comp.Resolvable {
				t.Errorf("SF-X: expected resolvable shortage; got sufficient=%v resolvable=%v", comp.Sufficient, comp.Resolvable)
			}
			if len(comp.NestedShortages) != 0 {
				t.Errorf("SF-X: expected clean nested explosion, got shortages %+v", comp.NestedShortages)
			}
			if !comp.ShortfallQuantity.Equal(decimal.NewFromInt(20)) {
				t.Errorf("SF-X shortfall: expected 20, got %s", comp.ShortfallQuantity)
			}
		case "RM-A":
			if !comp.Sufficient {
				t.Errorf("RM-A: expected sufficient (300 available, 30 required)")
			}
		}
	}
}

func TestExplodeBOM_CircularReference(t *testing.T) {
	pool, ctx := setupTestDB(t)
	boms := core.NewBOMService(pool)

	// Make SF-X and a second semi-finished product reference each other.
	_, err := pool.Exec(ctx, `
		INSERT INTO products (id, code, name, category, unit, min_stock_level, critical_stock_level, standard_cost)
		VALUES (5, 'SF-Y', 'Compound Y', 'SEMI_FINISHED', 'kg', 0, 0, 15);
		SELECT setval(pg_get_serial_sequence('products', 'id'), 5);

		INSERT INTO boms (id, product_id, version, status, effective_date, base_quantity, yield_percentage, labor_cost_per_unit, overhead_cost_per_unit)
		VALUES (3, 5, 'v1', 'ACTIVE', CURRENT_DATE, 1, 100, 0, 0);
		SELECT setval(pg_get_serial_sequence('boms', 'id'), 3);

		INSERT INTO bom_components (bom_id, component_product_id, sequence_number, quantity_required, scrap_percentage)
		VALUES (2, 5, 2, 1, 0), (3, 3, 1, 1, 0);
	`)
	if err != nil {
		t.Fatalf("Failed to seed circular BOMs: %v", err)
	}

	_, err = boms.ExplodeBOMRecursive(ctx, 2, decimal.NewFromInt(10))
	var cycle *core.CircularBOMError
	if !errors.As(err, &cycle) {
		t.Fatalf("Expected CircularBOMError, got %v", err)
	}
	t.Logf("Got expected error: %v", err)
}

func TestExplodeBOM_RecursiveLevels(t *testing.T) {
	pool, ctx := setupTestDB(t)
	boms := core.NewBOMService(pool)

	// FG-Z × 10: level 0 holds SF-X (20) and RM-A (30); level 1 holds RM-B
	// (80) from the nested SF-X explosion.
	components, err := boms.ExplodeBOMRecursive(ctx, 1, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("ExplodeBOMRecursive failed: %v", err)
	}
	if len(components) != 3 {
		t.Fatalf("Expected 3 exploded components, got %d", len(components))
	}

	byCode := map[string]core.ExplodedComponent{}
	for _, c := range components {
		byCode[c.ProductCode] = c
	}
	if c := byCode["SF-X"]; c.Level != 0 || !c.RequiredQuantity.Equal(decimal.NewFromInt(20)) {
		t.Errorf("SF-X: expected level 0 qty 20, got level %d qty %s", c.Level, c.RequiredQuantity)
	}
	if c := byCode["RM-A"]; c.Level != 0 || !c.RequiredQuantity.Equal(decimal.NewFromInt(30)) {
		t.Errorf("RM-A: expected level 0 qty 30, got level %d qty %s", c.Level, c.RequiredQuantity)
	}
	if c := byCode["RM-B"]; c.Level != 1 || !c.RequiredQuantity.Equal(decimal.NewFromInt(80)) {
		t.Errorf("RM-B: expected level 1 qty 80, got level %d qty %s", c.Level, c.RequiredQuantity)
	}
}

// ── Reservation engine ────────────────────────────────────────────────────────

func TestReserve_FIFOAllocation(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)
	reservations := core.NewReservationService(pool)

	// FG-Z × 150 needs 450 RM-A and 300 SF-X. Three RM-A batches fill FIFO:
	// 100, 200, then 150 of the newest 300.
	seedBatch(t, ctx, pool, 1, 1, "RM-1", "2026-01-01", decimal.NewFromInt(100), decimal.NewFromInt(10))
	seedBatch(t, ctx, pool, 1, 1, "RM-2", "2026-01-15", decimal.NewFromInt(200), decimal.NewFromInt(11))
	seedBatch(t, ctx, pool, 1, 1, "RM-3", "2026-02-01", decimal.NewFromInt(300), decimal.NewFromInt(12))
	seedBatch(t, ctx, pool, 3, 2, "SF-1", "2026-01-10", decimal.NewFromInt(300), decimal.NewFromInt(28))

	order, err := production.CreateProductionOrder(ctx, "FG-Z", decimal.NewFromInt(150), "", 0, "")
	if err != nil {
		t.Fatalf("CreateProductionOrder failed: %v", err)
	}

	order, err = production.ReleaseOrder(ctx, order.ID, reservations)
	if err != nil {
		t.Fatalf("ReleaseOrder failed: %v", err)
	}
	if order.Status != core.OrderReleased {
		t.Errorf("Expected RELEASED, got %s", order.Status)
	}

	for batch, expected := range map[string]int64{"RM-1": 100, "RM-2": 200, "RM-3": 150, "SF-1": 300} {
		if got := batchReserved(t, ctx, pool, batch); !got.Equal(decimal.NewFromInt(expected)) {
			t.Errorf("Batch %s: expected reserved=%d, got %s", batch, expected, got)
		}
	}
	assertPairInvariant(t, ctx, pool, 1, 1)
	assertPairInvariant(t, ctx, pool, 3, 2)

	for _, comp := range order.Components {
		if comp.AllocationStatus != core.AllocationFull {
			t.Errorf("Component %d: expected FULLY_ALLOCATED, got %s", comp.ProductID, comp.AllocationStatus)
		}
	}
}

func TestReserve_PartialCoverageCommits(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)
	reservations := core.NewReservationService(pool)

	// Enough SF-X but only 100 of the 450 RM-A needed.
	seedBatch(t, ctx, pool, 1, 1, "RM-1", "2026-01-01", decimal.NewFromInt(100), decimal.NewFromInt(10))
	seedBatch(t, ctx, pool, 3, 2, "SF-1", "2026-01-10", decimal.NewFromInt(300), decimal.NewFromInt(28))

	order, err := production.CreateProductionOrder(ctx, "FG-Z", decimal.NewFromInt(150), "", 0, "")
	if err != nil {
		t.Fatalf("CreateProductionOrder failed: %v", err)
	}

	result, err := reservations.ReserveStockForProduction(ctx, order.ID)
	if err != nil {
		t.Fatalf("ReserveStockForProduction failed: %v", err)
	}
	if result.FullyReserved {
		t.Error("Expected partial reservation, got fully reserved")
	}
	if len(result.Shortfalls) != 1 || result.Shortfalls[0].ProductCode != "RM-A" {
		t.Fatalf("Expected one RM-A shortfall, got %+v", result.Shortfalls)
	}
	if !result.Shortfalls[0].Shortfall.Equal(decimal.NewFromInt(350)) {
		t.Errorf("Expected RM-A shortfall 350, got %s", result.Shortfalls[0].Shortfall)
	}

	// The partial take still landed and the invariant holds.
	if got := batchReserved(t, ctx, pool, "RM-1"); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected RM-1 reserved=100, got %s", got)
	}
	assertPairInvariant(t, ctx, pool, 1, 1)

	var status core.AllocationStatus
	if err := pool.QueryRow(ctx, `
		SELECT allocation_status FROM production_order_components
		WHERE production_order_id = $1 AND product_id = 1
	`, order.ID).Scan(&status); err != nil {
		t.Fatalf("Failed to fetch component status: %v", err)
	}
	if status != core.AllocationPartial {
		t.Errorf("Expected PARTIALLY_ALLOCATED, got %s", status)
	}
}

func TestReserve_NothingAvailableFails(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)
	reservations := core.NewReservationService(pool)

	order, err := production.CreateProductionOrder(ctx, "FG-Z", decimal.NewFromInt(10), "", 0, "")
	if err != nil {
		t.Fatalf("CreateProductionOrder failed: %v", err)
	}

	_, err = reservations.ReserveStockForProduction(ctx, order.ID)
	var insufficient *core.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}
	if len(insufficient.Shortfalls) != 2 {
		t.Errorf("Expected 2 shortfalls, got %d", len(insufficient.Shortfalls))
	}

	// Failed run leaves nothing behind.
	var count int
	if err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM stock_reservations WHERE target_id = $1", order.ID,
	).Scan(&count); err != nil {
		t.Fatalf("Failed to count reservations: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no reservation rows after failed run, got %d", count)
	}
}

func TestReserveRelease_RoundTrip(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)
	reservations := core.NewReservationService(pool)

	seedBatch(t, ctx, pool, 1, 1, "RM-1", "2026-01-01", decimal.NewFromInt(500), decimal.NewFromInt(10))
	seedBatch(t, ctx, pool, 3, 2, "SF-1", "2026-01-10", decimal.NewFromInt(300), decimal.NewFromInt(28))

	order, err := production.CreateProductionOrder(ctx, "FG-Z", decimal.NewFromInt(100), "", 0, "")
	if err != nil {
		t.Fatalf("CreateProductionOrder failed: %v", err)
	}
	if _, err := reservations.ReserveStockForProduction(ctx, order.ID); err != nil {
		t.Fatalf("ReserveStockForProduction failed: %v", err)
	}

	if got := batchReserved(t, ctx, pool, "RM-1"); !got.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("Expected RM-1 reserved=300 after reserve, got %s", got)
	}

	if err := reservations.ReleaseStockReservations(ctx, order.ID); err != nil {
		t.Fatalf("ReleaseStockReservations failed: %v", err)
	}

	// Stock level fully restored, nothing reserved anywhere.
	for _, batch := range []string{"RM-1", "SF-1"} {
		if got := batchReserved(t, ctx, pool, batch); !got.IsZero() {
			t.Errorf("Batch %s: expected reserved=0 after release, got %s", batch, got)
		}
	}
	assertPairInvariant(t, ctx, pool, 1, 1)
	assertPairInvariant(t, ctx, pool, 3, 2)

	var active int
	if err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM stock_reservations WHERE target_id = $1 AND status = 'ACTIVE'", order.ID,
	).Scan(&active); err != nil {
		t.Fatalf("Failed to count active reservations: %v", err)
	}
	if active != 0 {
		t.Errorf("Expected 0 active reservations after release, got %d", active)
	}
}

// ── Synchronizer ──────────────────────────────────────────────────────────────

func TestSync_IdempotentAndRepairs(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)
	reservations := core.NewReservationService(pool)

	seedBatch(t, ctx, pool, 1, 1, "RM-1", "2026-01-01", decimal.NewFromInt(500), decimal.NewFromInt(10))
	seedBatch(t, ctx, pool, 3, 2, "SF-1", "2026-01-10", decimal.NewFromInt(300), decimal.NewFromInt(28))

	order, err := production.CreateProductionOrder(ctx, "FG-Z", decimal.NewFromInt(100), "", 0, "")
	if err != nil {
		t.Fatalf("CreateProductionOrder failed: %v", err)
	}
	if _, err := reservations.ReserveStockForProduction(ctx, order.ID); err != nil {
		t.Fatalf("ReserveStockForProduction failed: %v", err)
	}

	// Consistent state: a sweep fixes nothing.
	report, err := reservations.ValidateAndFixReservationSync(ctx)
	if err != nil {
		t.Fatalf("ValidateAndFixReservationSync failed: %v", err)
	}
	if report.PairsFixed != 0 {
		t.Errorf("Expected 0 fixed pairs on consistent state, got %d", report.PairsFixed)
	}

	// Corrupt a batch reservation out from under the engine.
	if _, err := pool.Exec(ctx,
		"UPDATE inventory_batches SET reserved_quantity = 0 WHERE batch_number = 'RM-1'",
	); err != nil {
		t.Fatalf("Failed to corrupt batch: %v", err)
	}

	report, err = reservations.ValidateAndFixReservationSync(ctx)
	if err != nil {
		t.Fatalf("ValidateAndFixReservationSync failed: %v", err)
	}
	if report.PairsFixed != 1 {
		t.Errorf("Expected 1 fixed pair after corruption, got %d", report.PairsFixed)
	}
	if got := batchReserved(t, ctx, pool, "RM-1"); !got.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected RM-1 reserved=300 after repair, got %s", got)
	}
	assertPairInvariant(t, ctx, pool, 1, 1)

	// Second sweep is a no-op.
	report, err = reservations.ValidateAndFixReservationSync(ctx)
	if err != nil {
		t.Fatalf("ValidateAndFixReservationSync failed: %v", err)
	}
	if report.PairsFixed != 0 {
		t.Errorf("Expected idempotent second sweep, got %d fixed pairs", report.PairsFixed)
	}
}

func TestQualityChange_ResyncsPair(t *testing.T) {
	pool, ctx := setupTestDB(t)
	production := core.NewProductionService(pool)
	reservations := core.NewReservationService(pool)
	stock := core.NewStockService(pool)

	seedBatch(t, ctx, pool, 1, 1, "RM-1", "2026-01-01", decimal.NewFromInt(200), decimal.NewFromInt(10))
	seedBatch(t, ctx, pool, 1, 1, "RM-2", "2026-02-01", decimal.NewFromInt(400), decimal.NewFromInt(12))
	seedBatch(t, ctx, pool, 3, 2, "SF-1", "2026-01-10", decimal.NewFromInt(300), decimal.NewFromInt(28))

	order, err := production.CreateProductionOrder(ctx, "FG-Z", decimal.NewFromInt(100), "", 0, "")
	if err != nil {
		t.Fatalf("CreateProductionOrder failed: %v", err)
	}
	if _, err := reservations.ReserveStockForProduction(ctx, order.ID); err != nil {
		t.Fatalf("ReserveStockForProduction failed: %v", err)
	}

	// 300 RM-A reserved FIFO: 200 on RM-1, 100 on RM-2. Quarantining RM-1
	// shifts its share onto RM-2.
	var batchID int
	if err := pool.QueryRow(ctx,
		"SELECT id FROM inventory_batches WHERE batch_number = 'RM-1'",
	).Scan(&batchID); err != nil {
		t.Fatalf("Failed to resolve batch: %v", err)
	}
	if err := stock.SetBatchQualityStatus(ctx, batchID, core.QualityQuarantine, "qa"); err != nil {
		t.Fatalf("SetBatchQualityStatus failed: %v", err)
	}

	if got := batchReserved(t, ctx, pool, "RM-1"); !got.IsZero() {
		t.Errorf("Expected quarantined batch reserved=0, got %s", got)
	}
	if got := batchReserved(t, ctx, pool, "RM-2"); !got.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected RM-2 reserved=300 after resync, got %s", got)
	}
	assertPairInvariant(t, ctx, pool, 1, 1)
}
