package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductCategory drives warehouse routing: each category sources from
// exactly one warehouse type.
type ProductCategory string

const (
	CategoryRawMaterial     ProductCategory = "RAW_MATERIAL"
	CategorySemiFinished    ProductCategory = "SEMI_FINISHED"
	CategoryFinishedProduct ProductCategory = "FINISHED_PRODUCT"
	CategoryPackaging       ProductCategory = "PACKAGING"
)

type WarehouseType string

const (
	WarehouseRawMaterials     WarehouseType = "RAW_MATERIALS"
	WarehouseSemiFinished     WarehouseType = "SEMI_FINISHED"
	WarehouseFinishedProducts WarehouseType = "FINISHED_PRODUCTS"
	WarehousePackaging        WarehouseType = "PACKAGING"
)

// warehouseTypeForCategory is the single routing table used by the sourcing
// resolver.
var warehouseTypeForCategory = map[ProductCategory]WarehouseType{
	CategoryRawMaterial:     WarehouseRawMaterials,
	CategorySemiFinished:    WarehouseSemiFinished,
	CategoryFinishedProduct: WarehouseFinishedProducts,
	CategoryPackaging:       WarehousePackaging,
}

// WarehouseTypeFor returns the warehouse type a product of the given
// category sources from, and false for an unknown category.
func WarehouseTypeFor(category ProductCategory) (WarehouseType, bool) {
	t, ok := warehouseTypeForCategory[category]
	return t, ok
}

// Product is a manufacturable or purchasable item. Category is immutable
// after creation because it determines warehouse routing.
type Product struct {
	ID                 int             `json:"id"`
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	Category           ProductCategory `json:"category"`
	Unit               string          `json:"unit"`
	MinStockLevel      decimal.Decimal `json:"min_stock_level"`
	CriticalStockLevel decimal.Decimal `json:"critical_stock_level"`
	StandardCost       decimal.Decimal `json:"standard_cost"`
	IsActive           bool            `json:"is_active"`
	CreatedAt          time.Time       `json:"created_at"`
}

type Warehouse struct {
	ID        int           `json:"id"`
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Type      WarehouseType `json:"type"`
	IsActive  bool          `json:"is_active"`
	CreatedAt time.Time     `json:"created_at"`
}
