package app

import (
	"context"

	"mrp-engine/internal/core"

	"github.com/shopspring/decimal"
)

// ApplicationService is the single interface all adapters (Web, CLI) call.
// It decouples presentation from the allocation engine. Implementations must
// contain no display logic of any kind.
type ApplicationService interface {
	// ── Catalog ──────────────────────────────────────────────────────────────

	// CreateProduct creates a new product. Category is immutable afterwards.
	CreateProduct(ctx context.Context, req CreateProductRequest) (*core.Product, error)

	// ListProducts returns all active products.
	ListProducts(ctx context.Context) (*ProductListResult, error)

	// GetProduct returns a single product by code.
	GetProduct(ctx context.Context, code string) (*core.Product, error)

	// CreateWarehouse creates a new warehouse.
	CreateWarehouse(ctx context.Context, req CreateWarehouseRequest) (*core.Warehouse, error)

	// ListWarehouses returns all active warehouses.
	ListWarehouses(ctx context.Context) (*WarehouseListResult, error)

	// CreateBOM creates a DRAFT BOM version with its components.
	CreateBOM(ctx context.Context, req CreateBOMRequest) (*core.BOM, error)

	// ActivateBOM promotes a BOM version to ACTIVE, demoting any previously
	// active version of the same product.
	ActivateBOM(ctx context.Context, bomID int) (*core.BOM, error)

	// GetBOM returns a BOM with its component lines.
	GetBOM(ctx context.Context, bomID int) (*core.BOM, error)

	// ExplodeBOM scales a BOM's components to the given quantity. Recursive
	// mode descends into active BOMs of semi-finished components.
	ExplodeBOM(ctx context.Context, bomID int, quantity decimal.Decimal, recursive bool) (*ExplosionResult, error)

	// ── Stock ────────────────────────────────────────────────────────────────

	// ReceiveStock records a goods receipt as a new inventory batch.
	ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*core.InventoryBatch, error)

	// SetBatchQuality moves a batch between quality states, redistributing
	// reservations for the affected product/warehouse pair.
	SetBatchQuality(ctx context.Context, batchID int, quality, performedBy string) error

	// GetStockLevels returns aggregated stock per product and warehouse.
	GetStockLevels(ctx context.Context) (*StockResult, error)

	// GetBatches returns a product's batches in FIFO order.
	GetBatches(ctx context.Context, productCode string) (*BatchListResult, error)

	// ── Availability and planning ────────────────────────────────────────────

	// AnalyzeStockAvailability reports whether the requested quantity can be
	// produced from stock on hand, with per-component shortfalls and costs.
	AnalyzeStockAvailability(ctx context.Context, req core.AvailabilityRequest) (*core.AvailabilityResult, error)

	// PlanNestedProduction builds a dependency tree of production order
	// proposals covering resolvable shortages, without creating anything.
	PlanNestedProduction(ctx context.Context, productCode string, quantity decimal.Decimal) (*core.NestedPlan, error)

	// CreateNestedProductionPlan materializes a nested plan into linked
	// production orders in a single transaction.
	CreateNestedProductionPlan(ctx context.Context, productCode string, quantity decimal.Decimal) (*core.MaterializedPlan, error)

	// ── Production orders ────────────────────────────────────────────────────

	// CreateProductionOrder plans an order against the product's active BOM.
	CreateProductionOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error)

	// GetOrder returns a single order by numeric ID or order number string.
	GetOrder(ctx context.Context, ref string) (*OrderResult, error)

	// ListOrders returns production orders, optionally filtered by status.
	ListOrders(ctx context.Context, status *string) (*OrderListResult, error)

	// ReleaseOrder transitions PLANNED to RELEASED, reserving component stock
	// atomically with the status change. ref may be a numeric ID or order number.
	ReleaseOrder(ctx context.Context, ref string) (*OrderResult, error)

	// StartOrder transitions RELEASED to IN_PROGRESS.
	StartOrder(ctx context.Context, ref string) (*OrderResult, error)

	// HoldOrder transitions RELEASED or IN_PROGRESS to ON_HOLD. Reservations
	// are kept.
	HoldOrder(ctx context.Context, ref string) (*OrderResult, error)

	// ResumeOrder transitions ON_HOLD back to RELEASED.
	ResumeOrder(ctx context.Context, ref string) (*OrderResult, error)

	// CompleteOrder transitions IN_PROGRESS to COMPLETED, consuming reserved
	// stock and booking the finished goods batch.
	CompleteOrder(ctx context.Context, ref string, req CompleteOrderRequest) (*OrderResult, error)

	// CancelOrder cancels an order and releases its reservations.
	CancelOrder(ctx context.Context, ref string) (*OrderResult, error)

	// AdjustOrderQuantity changes the planned quantity of a PLANNED or
	// RELEASED order, shrinking or growing its reservations to match.
	AdjustOrderQuantity(ctx context.Context, ref string, newQuantity decimal.Decimal) (*core.ReservationResult, error)

	// ReserveStock reserves component stock for an order without a status
	// transition. Partial coverage commits and reports shortfalls.
	ReserveStock(ctx context.Context, ref string) (*core.ReservationResult, error)

	// ReleaseStockReservations releases all active reservations of an order.
	ReleaseStockReservations(ctx context.Context, ref string) error

	// ConsumeStock consumes an order's reserved stock, deducting batches FIFO.
	ConsumeStock(ctx context.Context, ref string) (*core.ConsumptionResult, error)

	// CreateFinishedGoods books the order's completed quantity as a new batch
	// in the finished goods warehouse, costed from consumed materials.
	CreateFinishedGoods(ctx context.Context, ref string) (*core.FinishedGoodsResult, error)

	// GetOrderMovements returns the audit trail of stock movements for an order.
	GetOrderMovements(ctx context.Context, ref string) (*MovementListResult, error)

	// ── Maintenance ──────────────────────────────────────────────────────────

	// ValidateAndFixReservationSync checks every product/warehouse pair with
	// active reservations or reserved batches and repairs any drift.
	ValidateAndFixReservationSync(ctx context.Context) (*core.SyncReport, error)

	// ── AI ───────────────────────────────────────────────────────────────────

	// InterpretPlanningRequest sends a natural language production request to
	// the planning assistant and returns either a structured proposal or a
	// clarification request. Proposals go through CreateProductionOrder and
	// its full validation; the assistant never writes anything itself.
	InterpretPlanningRequest(ctx context.Context, text string) (*AIResult, error)
}
