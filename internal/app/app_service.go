package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mrp-engine/internal/ai"
	"mrp-engine/internal/core"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type appService struct {
	pool               *pgxpool.Pool
	warehouseService   core.WarehouseService
	productService     core.ProductService
	bomService         core.BOMService
	stockService       core.StockService
	availability       core.AvailabilityService
	reservationService core.ReservationService
	consumptionService core.ConsumptionService
	productionService  core.ProductionService
	agent              *ai.Agent
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	pool *pgxpool.Pool,
	warehouseService core.WarehouseService,
	productService core.ProductService,
	bomService core.BOMService,
	stockService core.StockService,
	availability core.AvailabilityService,
	reservationService core.ReservationService,
	consumptionService core.ConsumptionService,
	productionService core.ProductionService,
	agent *ai.Agent,
) ApplicationService {
	return &appService{
		pool:               pool,
		warehouseService:   warehouseService,
		productService:     productService,
		bomService:         bomService,
		stockService:       stockService,
		availability:       availability,
		reservationService: reservationService,
		consumptionService: consumptionService,
		productionService:  productionService,
		agent:              agent,
	}
}

// ── Catalog ───────────────────────────────────────────────────────────────────

// CreateProduct creates a new product.
func (s *appService) CreateProduct(ctx context.Context, req CreateProductRequest) (*core.Product, error) {
	return s.productService.CreateProduct(ctx, req.Code, req.Name, core.ProductCategory(req.Category),
		req.Unit, req.MinStockLevel, req.CriticalStockLevel, req.StandardCost)
}

// ListProducts returns all active products.
func (s *appService) ListProducts(ctx context.Context) (*ProductListResult, error) {
	products, err := s.productService.GetProducts(ctx)
	if err != nil {
		return nil, err
	}
	return &ProductListResult{Products: products}, nil
}

// GetProduct returns a single product by code.
func (s *appService) GetProduct(ctx context.Context, code string) (*core.Product, error) {
	return s.productService.GetProductByCode(ctx, code)
}

// CreateWarehouse creates a new warehouse.
func (s *appService) CreateWarehouse(ctx context.Context, req CreateWarehouseRequest) (*core.Warehouse, error) {
	return s.warehouseService.CreateWarehouse(ctx, req.Code, req.Name, core.WarehouseType(req.Type))
}

// ListWarehouses returns all active warehouses.
func (s *appService) ListWarehouses(ctx context.Context) (*WarehouseListResult, error) {
	warehouses, err := s.warehouseService.GetWarehouses(ctx)
	if err != nil {
		return nil, err
	}
	return &WarehouseListResult{Warehouses: warehouses}, nil
}

// CreateBOM creates a DRAFT BOM version with its components.
func (s *appService) CreateBOM(ctx context.Context, req CreateBOMRequest) (*core.BOM, error) {
	components := make([]core.BOMComponentInput, len(req.Components))
	for i, c := range req.Components {
		components[i] = core.BOMComponentInput{
			ComponentProductCode: c.ComponentProductCode,
			QuantityRequired:     c.QuantityRequired,
			ScrapPercentage:      c.ScrapPercentage,
		}
	}

	yieldPct := req.YieldPercentage
	if yieldPct.IsZero() {
		yieldPct = decimal.NewFromInt(100)
	}

	return s.productService.CreateBOM(ctx, req.ProductCode, req.Version, req.BaseQuantity,
		yieldPct, req.LaborCostPerUnit, req.OverheadCostPerUnit, components)
}

// ActivateBOM promotes a BOM version to ACTIVE and returns the updated BOM.
func (s *appService) ActivateBOM(ctx context.Context, bomID int) (*core.BOM, error) {
	if err := s.productService.ActivateBOM(ctx, bomID); err != nil {
		return nil, err
	}
	return s.productService.GetBOM(ctx, bomID)
}

// GetBOM returns a BOM with its component lines.
func (s *appService) GetBOM(ctx context.Context, bomID int) (*core.BOM, error) {
	return s.productService.GetBOM(ctx, bomID)
}

// ExplodeBOM scales a BOM's components to the given quantity.
func (s *appService) ExplodeBOM(ctx context.Context, bomID int, quantity decimal.Decimal, recursive bool) (*ExplosionResult, error) {
	var (
		components []core.ExplodedComponent
		err        error
	)
	if recursive {
		components, err = s.bomService.ExplodeBOMRecursive(ctx, bomID, quantity)
	} else {
		components, err = s.bomService.ExplodeBOM(ctx, bomID, quantity)
	}
	if err != nil {
		return nil, err
	}
	return &ExplosionResult{BOMID: bomID, Recursive: recursive, Components: components}, nil
}

// ── Stock ─────────────────────────────────────────────────────────────────────

// ReceiveStock records a goods receipt as a new inventory batch.
func (s *appService) ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*core.InventoryBatch, error) {
	batchNumber := req.BatchNumber
	if batchNumber == "" {
		batchNumber = fmt.Sprintf("%s-%s", req.ProductCode, uuid.NewString()[:8])
	}

	entryDate := time.Now()
	if req.EntryDate != "" {
		parsed, err := time.Parse("2006-01-02", req.EntryDate)
		if err != nil {
			return nil, fmt.Errorf("invalid entry date %q: %w", req.EntryDate, err)
		}
		entryDate = parsed
	}

	return s.stockService.ReceiveStock(ctx, req.ProductCode, req.WarehouseCode, batchNumber,
		req.Qty, req.UnitCost, entryDate, core.QualityStatus(req.Quality), req.PerformedBy)
}

// SetBatchQuality moves a batch between quality states.
func (s *appService) SetBatchQuality(ctx context.Context, batchID int, quality, performedBy string) error {
	return s.stockService.SetBatchQualityStatus(ctx, batchID, core.QualityStatus(quality), performedBy)
}

// GetStockLevels returns aggregated stock per product and warehouse.
func (s *appService) GetStockLevels(ctx context.Context) (*StockResult, error) {
	levels, err := s.stockService.GetStockLevels(ctx)
	if err != nil {
		return nil, err
	}
	return &StockResult{Levels: levels}, nil
}

// GetBatches returns a product's batches in FIFO order.
func (s *appService) GetBatches(ctx context.Context, productCode string) (*BatchListResult, error) {
	batches, err := s.stockService.GetBatches(ctx, productCode)
	if err != nil {
		return nil, err
	}
	return &BatchListResult{ProductCode: productCode, Batches: batches}, nil
}

// ── Availability and planning ─────────────────────────────────────────────────

// AnalyzeStockAvailability reports whether the requested quantity can be
// produced from stock on hand.
func (s *appService) AnalyzeStockAvailability(ctx context.Context, req core.AvailabilityRequest) (*core.AvailabilityResult, error) {
	return s.availability.AnalyzeStockAvailability(ctx, req)
}

// PlanNestedProduction builds a dependency tree of production order proposals.
func (s *appService) PlanNestedProduction(ctx context.Context, productCode string, quantity decimal.Decimal) (*core.NestedPlan, error) {
	product, err := s.productService.GetProductByCode(ctx, productCode)
	if err != nil {
		return nil, err
	}
	return s.productionService.PlanNestedProduction(ctx, product.ID, quantity)
}

// CreateNestedProductionPlan materializes a nested plan into linked orders.
func (s *appService) CreateNestedProductionPlan(ctx context.Context, productCode string, quantity decimal.Decimal) (*core.MaterializedPlan, error) {
	product, err := s.productService.GetProductByCode(ctx, productCode)
	if err != nil {
		return nil, err
	}
	return s.productionService.CreateNestedProductionPlan(ctx, product.ID, quantity)
}

// ── Production orders ─────────────────────────────────────────────────────────

// CreateProductionOrder plans an order against the product's active BOM.
func (s *appService) CreateProductionOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	order, err := s.productionService.CreateProductionOrder(ctx, req.ProductCode, req.Quantity,
		req.WarehouseCode, req.Priority, req.Notes)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

// GetOrder returns a single order by numeric ID or order number string.
func (s *appService) GetOrder(ctx context.Context, ref string) (*OrderResult, error) {
	orderID, err := s.resolveOrderID(ctx, ref)
	if err != nil {
		return nil, err
	}
	order, err := s.productionService.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

// ListOrders returns production orders, optionally filtered by status.
func (s *appService) ListOrders(ctx context.Context, status *string) (*OrderListResult, error) {
	var statusPtr *core.OrderStatus
	if status != nil {
		st := core.OrderStatus(*status)
		statusPtr = &st
	}
	orders, err := s.productionService.GetOrders(ctx, statusPtr)
	if err != nil {
		return nil, err
	}
	return &OrderListResult{Orders: orders}, nil
}

// ReleaseOrder transitions PLANNED to RELEASED, reserving component stock.
func (s *appService) ReleaseOrder(ctx context.Context, ref string) (*OrderResult, error) {
	orderID, err := s.resolveOrderID(ctx, ref)
	if err != nil {
		return nil, err
	}
	order, err := s.productionService.ReleaseOrder(ctx, orderID, s.reservationService)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

// StartOrder transitions RELEASED to IN_PROGRESS.
func (s *appService) StartOrder(ctx context.Context, ref string) (*OrderResult, error) {
	return s.transition(ctx, ref, s.productionService.StartOrder)
}

// HoldOrder transitions RELEASED or IN_PROGRESS to ON_HOLD.
func (s *appService) HoldOrder(ctx context.Context, ref string) (*OrderResult, error) {
	return s.transition(ctx, ref, s.productionService.HoldOrder)
}

// ResumeOrder transitions ON_HOLD back to RELEASED.
func (s *appService) ResumeOrder(ctx context.Context, ref string) (*OrderResult, error) {
	return s.transition(ctx, ref, s.productionService.ResumeOrder)
}

// CompleteOrder transitions IN_PROGRESS to COMPLETED, consuming reserved
// stock and booking the finished goods batch.
func (s *appService) CompleteOrder(ctx context.Context, ref string, req CompleteOrderRequest) (*OrderResult, error) {
	orderID, err := s.resolveOrderID(ctx, ref)
	if err != nil {
		return nil, err
	}
	order, err := s.productionService.CompleteOrder(ctx, orderID, req.CompletedQty, req.ScrappedQty, s.consumptionService)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

// CancelOrder cancels an order and releases its reservations.
func (s *appService) CancelOrder(ctx context.Context, ref string) (*OrderResult, error) {
	orderID, err := s.resolveOrderID(ctx, ref)
	if err != nil {
		return nil, err
	}
	order, err := s.productionService.CancelOrder(ctx, orderID, s.reservationService)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

// AdjustOrderQuantity changes the planned quantity of a PLANNED or RELEASED order.
func (s *appService) AdjustOrderQuantity(ctx context.Context, ref string, newQuantity decimal.Decimal) (*core.ReservationResult, error) {
	orderID, err := s.resolveOrderID(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.reservationService.AdjustReservationsForQuantityChange(ctx, orderID, newQuantity)
}

// ReserveStock reserves component stock for an order.
func (s *appService) ReserveStock(ctx context.Context, ref string) (*core.ReservationResult, error) {
	orderID, err := s.resolveOrderID(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.reservationService.ReserveStockForProduction(ctx, orderID)
}

// ReleaseStockReservations releases all active reservations of an order.
func (s *appService) ReleaseStockReservations(ctx context.Context, ref string) error {
	orderID, err := s.resolveOrderID(ctx, ref)
	if err != nil {
		return err
	}
	return s.reservationService.ReleaseStockReservations(ctx, orderID)
}

// ConsumeStock consumes an order's reserved stock, deducting batches FIFO.
func (s *appService) ConsumeStock(ctx context.Context, ref string) (*core.ConsumptionResult, error) {
	orderID, err := s.resolveOrderID(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.consumptionService.ConsumeStockForProduction(ctx, orderID)
}

// CreateFinishedGoods books the order's completed quantity as a new batch.
func (s *appService) CreateFinishedGoods(ctx context.Context, ref string) (*core.FinishedGoodsResult, error) {
	orderID, err := s.resolveOrderID(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.consumptionService.CreateFinishedGoodsInventory(ctx, orderID)
}

// GetOrderMovements returns the audit trail of stock movements for an order.
func (s *appService) GetOrderMovements(ctx context.Context, ref string) (*MovementListResult, error) {
	orderID, err := s.resolveOrderID(ctx, ref)
	if err != nil {
		return nil, err
	}
	movements, err := s.stockService.GetMovementsForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &MovementListResult{OrderID: orderID, Movements: movements}, nil
}

// ── Maintenance ───────────────────────────────────────────────────────────────

// ValidateAndFixReservationSync repairs reservation drift across all pairs.
func (s *appService) ValidateAndFixReservationSync(ctx context.Context) (*core.SyncReport, error) {
	return s.reservationService.ValidateAndFixReservationSync(ctx)
}

// ── AI ────────────────────────────────────────────────────────────────────────

// InterpretPlanningRequest sends a natural language production request to the
// planning assistant.
func (s *appService) InterpretPlanningRequest(ctx context.Context, text string) (*AIResult, error) {
	catalog, err := s.fetchProductCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product catalog: %w", err)
	}

	warehouses, err := s.fetchWarehouseList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch warehouses: %w", err)
	}

	response, err := s.agent.InterpretPlanningRequest(ctx, text, catalog, warehouses)
	if err != nil {
		return nil, err
	}

	if response.IsClarificationRequest {
		return &AIResult{
			IsClarification:      true,
			ClarificationMessage: response.ClarificationMessage,
		}, nil
	}

	proposal := response.Proposal
	return &AIResult{Proposal: &proposal}, nil
}

// ── private helpers ───────────────────────────────────────────────────────────

// transition runs a simple status transition after resolving the order ref.
func (s *appService) transition(ctx context.Context, ref string,
	fn func(context.Context, int) (*core.ProductionOrder, error)) (*OrderResult, error) {
	orderID, err := s.resolveOrderID(ctx, ref)
	if err != nil {
		return nil, err
	}
	order, err := fn(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

// resolveOrderID looks up a production order by numeric ID or order number string.
func (s *appService) resolveOrderID(ctx context.Context, ref string) (int, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return id, nil
	}
	var id int
	err := s.pool.QueryRow(ctx,
		"SELECT id FROM production_orders WHERE order_number = $1", ref,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &core.NotFoundError{Entity: "production order", Key: ref}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve order %q: %w", ref, err)
	}
	return id, nil
}

// fetchProductCatalog returns active products as a formatted string for the AI prompt.
func (s *appService) fetchProductCatalog(ctx context.Context) (string, error) {
	products, err := s.productService.GetProducts(ctx)
	if err != nil {
		return "", err
	}
	var lines []string
	for _, p := range products {
		lines = append(lines, fmt.Sprintf("- %s %s (%s, %s)", p.Code, p.Name, p.Category, p.Unit))
	}
	return strings.Join(lines, "\n"), nil
}

// fetchWarehouseList returns active warehouses as a formatted string for the AI prompt.
func (s *appService) fetchWarehouseList(ctx context.Context) (string, error) {
	warehouses, err := s.warehouseService.GetWarehouses(ctx)
	if err != nil {
		return "", err
	}
	var lines []string
	for _, w := range warehouses {
		lines = append(lines, fmt.Sprintf("- %s %s (%s)", w.Code, w.Name, w.Type))
	}
	return strings.Join(lines, "\n"), nil
}
