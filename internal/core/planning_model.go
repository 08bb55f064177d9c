package core

import (
	"github.com/shopspring/decimal"
)

// AvailabilityRequest describes one availability analysis. BOMID zero means
// use the product's active BOM. ExistingOrderID, when set, adds that order's
// own active reservations back to availability so a quantity change can be
// evaluated against the full picture.
type AvailabilityRequest struct {
	ProductID       int             `json:"product_id"`
	BOMID           int             `json:"bom_id,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	ExistingOrderID int             `json:"existing_order_id,omitempty"`
}

// ComponentAvailability is the analysis verdict for one direct component.
type ComponentAvailability struct {
	ProductID         int             `json:"product_id"`
	ProductCode       string          `json:"product_code"`
	ProductName       string          `json:"product_name"`
	Category          ProductCategory `json:"category"`
	Unit              string          `json:"unit"`
	WarehouseID       int             `json:"warehouse_id"`
	RequiredQuantity  decimal.Decimal `json:"required_quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	ShortfallQuantity decimal.Decimal `json:"shortfall_quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	Sufficient        bool            `json:"sufficient"`
	// Resolvable marks a shortfall that nested production of the component
	// can cover: the component has an active BOM and its own explosion hits
	// no raw material gap. Gaps found underneath reclassify the component as
	// unresolvable and are promoted into NestedShortages.
	Resolvable      bool                    `json:"resolvable"`
	NestedShortages []ComponentAvailability `json:"nested_shortages,omitempty"`
}

// AvailabilityResult is the full verdict for producing Quantity units of a
// product. ShortageExists means at least one component is not covered by
// stock on hand. CanProduce stays true as long as every shortage is
// resolvable by nested production; only a raw material gap clears it.
type AvailabilityResult struct {
	ProductID             int                     `json:"product_id"`
	BOMID                 int                     `json:"bom_id"`
	Quantity              decimal.Decimal         `json:"quantity"`
	CanProduce            bool                    `json:"can_produce"`
	ShortageExists        bool                    `json:"shortage_exists"`
	Components            []ComponentAvailability `json:"components"`
	EstimatedMaterialCost decimal.Decimal         `json:"estimated_material_cost"`
	EstimatedTotalCost    decimal.Decimal         `json:"estimated_total_cost"`
}

// PlanNode is one production order proposal in a nested plan. Dependencies
// are child orders that must complete before this one can consume their
// output.
type PlanNode struct {
	ProductID        int             `json:"product_id"`
	ProductCode      string          `json:"product_code"`
	ProductName      string          `json:"product_name"`
	BOMID            int             `json:"bom_id"`
	WarehouseID      int             `json:"warehouse_id"`
	RequiredQuantity decimal.Decimal `json:"required_quantity"`
	EstimatedCost    decimal.Decimal `json:"estimated_cost"`
	Priority         int             `json:"priority"`
	Dependencies     []*PlanNode     `json:"dependencies,omitempty"`
}

// NestedPlan is the tree of orders needed to produce the root product,
// including orders for semi-finished components that are short.
type NestedPlan struct {
	Root               *PlanNode       `json:"root"`
	TotalOrders        int             `json:"total_orders"`
	TotalEstimatedCost decimal.Decimal `json:"total_estimated_cost"`
}

// MaterializedPlan reports the production orders created from a NestedPlan.
type MaterializedPlan struct {
	RootOrderID int   `json:"root_order_id"`
	OrderIDs    []int `json:"order_ids"`
}

// BatchAllocation records how much of a reservation landed on one batch.
type BatchAllocation struct {
	BatchID     int             `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	WarehouseID int             `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// ComponentReservation is the reservation outcome for one order component.
type ComponentReservation struct {
	ProductID        int               `json:"product_id"`
	ProductCode      string            `json:"product_code"`
	RequiredQuantity decimal.Decimal   `json:"required_quantity"`
	ReservedQuantity decimal.Decimal   `json:"reserved_quantity"`
	Shortfall        decimal.Decimal   `json:"shortfall"`
	Allocations      []BatchAllocation `json:"allocations,omitempty"`
}

// ReservationResult reports a reservation run. FullyReserved is true when
// every component reached its required quantity; otherwise Shortfalls lists
// the gaps that remain.
type ReservationResult struct {
	OrderID       int                    `json:"order_id"`
	FullyReserved bool                   `json:"fully_reserved"`
	Components    []ComponentReservation `json:"components"`
	Shortfalls    []ComponentShortfall   `json:"shortfalls,omitempty"`
}

// SyncOutcome is the result of synchronizing one (product, warehouse) pair:
// batch reserved quantities redistributed FIFO to match the sum of active
// reservations.
type SyncOutcome struct {
	ProductID       int             `json:"product_id"`
	WarehouseID     int             `json:"warehouse_id"`
	TargetQuantity  decimal.Decimal `json:"target_quantity"`
	AppliedQuantity decimal.Decimal `json:"applied_quantity"`
	Shortfall       decimal.Decimal `json:"shortfall"`
	Changed         bool            `json:"changed"`
}

// SyncReport summarizes a full validate-and-fix pass.
type SyncReport struct {
	PairsChecked int           `json:"pairs_checked"`
	PairsFixed   int           `json:"pairs_fixed"`
	Outcomes     []SyncOutcome `json:"outcomes,omitempty"`
}

// ConsumptionLine records stock drawn from one batch during consumption.
type ConsumptionLine struct {
	BatchID     int             `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	ProductID   int             `json:"product_id"`
	WarehouseID int             `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// ConsumptionResult reports the batches consumed for an order and the total
// material cost they carried.
type ConsumptionResult struct {
	OrderID   int               `json:"order_id"`
	Lines     []ConsumptionLine `json:"lines"`
	TotalCost decimal.Decimal   `json:"total_cost"`
}

// FinishedGoodsResult describes the output batch created on completion.
type FinishedGoodsResult struct {
	BatchID     int             `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	WarehouseID int             `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}
