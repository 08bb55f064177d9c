package app

import (
	"github.com/shopspring/decimal"
)

// CreateProductRequest is the input for creating a new product.
type CreateProductRequest struct {
	Code               string
	Name               string
	Category           string
	Unit               string
	MinStockLevel      decimal.Decimal
	CriticalStockLevel decimal.Decimal
	StandardCost       decimal.Decimal
}

// CreateWarehouseRequest is the input for creating a new warehouse.
type CreateWarehouseRequest struct {
	Code string
	Name string
	Type string
}

// CreateBOMRequest is the input for creating a DRAFT BOM version.
type CreateBOMRequest struct {
	ProductCode         string
	Version             string
	BaseQuantity        decimal.Decimal
	YieldPercentage     decimal.Decimal // zero means 100
	LaborCostPerUnit    decimal.Decimal
	OverheadCostPerUnit decimal.Decimal
	Components          []BOMComponentInput
}

// BOMComponentInput is a single line within a CreateBOMRequest.
type BOMComponentInput struct {
	ComponentProductCode string
	QuantityRequired     decimal.Decimal
	ScrapPercentage      decimal.Decimal
}

// ReceiveStockRequest is the input for recording a goods receipt into a warehouse.
type ReceiveStockRequest struct {
	ProductCode   string
	WarehouseCode string // optional; defaults to the canonical warehouse for the product's category
	BatchNumber   string // optional; a unique number is generated when empty
	EntryDate     string // YYYY-MM-DD, optional; defaults to now
	Quality       string // optional; defaults to APPROVED
	PerformedBy   string
	Qty           decimal.Decimal
	UnitCost      decimal.Decimal
}

// CreateOrderRequest is the input for planning a new production order.
type CreateOrderRequest struct {
	ProductCode   string
	WarehouseCode string // optional; defaults to the canonical warehouse for the product's category
	Priority      int    // 1-10, zero means default
	Notes         string
	Quantity      decimal.Decimal
}

// CompleteOrderRequest is the input for completing a production order.
type CompleteOrderRequest struct {
	CompletedQty decimal.Decimal
	ScrappedQty  decimal.Decimal
}
