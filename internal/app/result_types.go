package app

import (
	"mrp-engine/internal/ai"
	"mrp-engine/internal/core"
)

// ProductListResult is returned by ListProducts.
type ProductListResult struct {
	Products []core.Product
}

// WarehouseListResult is returned by ListWarehouses.
type WarehouseListResult struct {
	Warehouses []core.Warehouse
}

// ExplosionResult is returned by ExplodeBOM.
type ExplosionResult struct {
	BOMID      int
	Recursive  bool
	Components []core.ExplodedComponent
}

// StockResult is returned by GetStockLevels.
type StockResult struct {
	Levels []core.StockLevel
}

// BatchListResult is returned by GetBatches.
type BatchListResult struct {
	ProductCode string
	Batches     []core.InventoryBatch
}

// MovementListResult is returned by GetOrderMovements.
type MovementListResult struct {
	OrderID   int
	Movements []core.StockMovement
}

// OrderResult is returned by order lifecycle operations.
type OrderResult struct {
	Order *core.ProductionOrder
}

// OrderListResult is returned by ListOrders.
type OrderListResult struct {
	Orders []core.ProductionOrder
}

// AIResult is returned by InterpretPlanningRequest.
type AIResult struct {
	Proposal             *ai.ProductionProposal
	ClarificationMessage string
	IsClarification      bool
}
