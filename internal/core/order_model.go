package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPlanned    OrderStatus = "PLANNED"
	OrderReleased   OrderStatus = "RELEASED"
	OrderInProgress OrderStatus = "IN_PROGRESS"
	OrderOnHold     OrderStatus = "ON_HOLD"
	OrderCompleted  OrderStatus = "COMPLETED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// orderTransitions is the complete transition table for production orders.
// COMPLETED and CANCELLED are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPlanned:    {OrderReleased, OrderCancelled},
	OrderReleased:   {OrderInProgress, OrderOnHold, OrderCancelled},
	OrderInProgress: {OrderCompleted, OrderOnHold, OrderCancelled},
	OrderOnHold:     {OrderReleased, OrderCancelled},
	OrderCompleted:  {},
	OrderCancelled:  {},
}

// CanTransition reports whether a production order may move from one status
// to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type AllocationStatus string

const (
	AllocationNone     AllocationStatus = "NOT_ALLOCATED"
	AllocationPartial  AllocationStatus = "PARTIALLY_ALLOCATED"
	AllocationFull     AllocationStatus = "FULLY_ALLOCATED"
	AllocationConsumed AllocationStatus = "CONSUMED"
)

// DeriveAllocationStatus maps allocated against required quantity to the
// component allocation status. Allocation never exceeds required.
func DeriveAllocationStatus(allocated, required decimal.Decimal) AllocationStatus {
	switch {
	case allocated.IsZero():
		return AllocationNone
	case allocated.LessThan(required):
		return AllocationPartial
	default:
		return AllocationFull
	}
}

type DependencyStatus string

const (
	DependencyPending   DependencyStatus = "PENDING"
	DependencySatisfied DependencyStatus = "SATISFIED"
	DependencyCancelled DependencyStatus = "CANCELLED"
)

// ProductionOrder produces PlannedQuantity units of a FINISHED_PRODUCT or
// SEMI_FINISHED product according to a BOM, drawing components from
// WarehouseID by default. Priority runs 1 to 10, larger is more urgent.
type ProductionOrder struct {
	ID                int             `json:"id"`
	OrderNumber       string          `json:"order_number"`
	ProductID         int             `json:"product_id"`
	BOMID             int             `json:"bom_id"`
	WarehouseID       int             `json:"warehouse_id"`
	Status            OrderStatus     `json:"status"`
	Priority          int             `json:"priority"`
	PlannedQuantity   decimal.Decimal `json:"planned_quantity"`
	CompletedQuantity decimal.Decimal `json:"completed_quantity"`
	ScrappedQuantity  decimal.Decimal `json:"scrapped_quantity"`
	PlannedStartDate  *time.Time      `json:"planned_start_date,omitempty"`
	PlannedEndDate    *time.Time      `json:"planned_end_date,omitempty"`
	ReleasedAt        *time.Time      `json:"released_at,omitempty"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
	Notes             string          `json:"notes"`
	CreatedAt         time.Time       `json:"created_at"`

	Components []ProductionOrderComponent `json:"components,omitempty"`
}

// CompletionPercentage is completed plus scrapped over planned, as a
// percentage. Zero planned quantity yields zero.
func (o ProductionOrder) CompletionPercentage() decimal.Decimal {
	if o.PlannedQuantity.IsZero() {
		return decimal.Zero
	}
	done := o.CompletedQuantity.Add(o.ScrappedQuantity)
	return done.Div(o.PlannedQuantity).Mul(oneHundred)
}

// ProductionOrderComponent is one material requirement of an order, tracking
// how much has been reserved (allocated) and consumed against it.
type ProductionOrderComponent struct {
	ID                int              `json:"id"`
	ProductionOrderID int              `json:"production_order_id"`
	ProductID         int              `json:"product_id"`
	RequiredQuantity  decimal.Decimal  `json:"required_quantity"`
	AllocatedQuantity decimal.Decimal  `json:"allocated_quantity"`
	ConsumedQuantity  decimal.Decimal  `json:"consumed_quantity"`
	AllocationStatus  AllocationStatus `json:"allocation_status"`
}

// ProductionDependency links a parent order to a child order that must
// complete first, as produced by the nested planner. Quantity is the amount
// of the child's output the parent expects to consume.
type ProductionDependency struct {
	ID               int              `json:"id"`
	ParentOrderID    int              `json:"parent_order_id"`
	DependentOrderID int              `json:"dependent_order_id"`
	Quantity         decimal.Decimal  `json:"quantity"`
	Status           DependencyStatus `json:"status"`
}
