package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NotFoundError reports a missing entity by name and lookup key.
type NotFoundError struct {
	Entity string
	Key    any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.Key)
}

// CircularBOMError is returned when a recursive explosion revisits a product
// already on the current branch.
type CircularBOMError struct {
	BOMID     int
	ProductID int
}

func (e *CircularBOMError) Error() string {
	return fmt.Sprintf("circular reference in BOM %d: product %d appears in its own component tree", e.BOMID, e.ProductID)
}

// ComponentShortfall describes one component that could not be fully covered
// by available stock.
type ComponentShortfall struct {
	ProductID   int             `json:"product_id"`
	ProductCode string          `json:"product_code"`
	Required    decimal.Decimal `json:"required"`
	Available   decimal.Decimal `json:"available"`
	Shortfall   decimal.Decimal `json:"shortfall"`
}

// InsufficientStockError aggregates the shortfalls of a reservation attempt
// in which no component could be allocated anything.
type InsufficientStockError struct {
	OrderID    int
	Shortfalls []ComponentShortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = fmt.Sprintf("%s short %s (required %s, available %s)",
			s.ProductCode, s.Shortfall, s.Required, s.Available)
	}
	return fmt.Sprintf("insufficient stock for order %d: %s", e.OrderID, strings.Join(parts, "; "))
}

// InvalidStatusTransitionError reports a production order status change not
// permitted by the transition table.
type InvalidStatusTransitionError struct {
	OrderID int
	From    OrderStatus
	To      OrderStatus
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("order %d: invalid status transition %s -> %s", e.OrderID, e.From, e.To)
}

// SynchronizationGapError is returned when consumption finds less reserved
// batch stock than the active reservations claim.
type SynchronizationGapError struct {
	ReservationID int
	ProductID     int
	WarehouseID   int
	Missing       decimal.Decimal
}

func (e *SynchronizationGapError) Error() string {
	return fmt.Sprintf("reservation %d (product %d, warehouse %d): %s reserved quantity missing from batches",
		e.ReservationID, e.ProductID, e.WarehouseID, e.Missing)
}
