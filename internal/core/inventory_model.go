package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type QualityStatus string

const (
	QualityPending    QualityStatus = "PENDING"
	QualityApproved   QualityStatus = "APPROVED"
	QualityRejected   QualityStatus = "REJECTED"
	QualityQuarantine QualityStatus = "QUARANTINE"
)

// InventoryBatch is a dated, costed quantity of a product in one warehouse.
// EntryDate is the FIFO ordering key; only APPROVED batches participate in
// availability and reservation.
type InventoryBatch struct {
	ID              int             `json:"id"`
	ProductID       int             `json:"product_id"`
	WarehouseID     int             `json:"warehouse_id"`
	BatchNumber     string          `json:"batch_number"`
	EntryDate       time.Time       `json:"entry_date"`
	QuantityInStock decimal.Decimal `json:"quantity_in_stock"`
	ReservedQty     decimal.Decimal `json:"reserved_quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	QualityStatus   QualityStatus   `json:"quality_status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// AvailableQuantity is stock minus reservations; never negative.
func (b InventoryBatch) AvailableQuantity() decimal.Decimal {
	avail := b.QuantityInStock.Sub(b.ReservedQty)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

type ReservationTargetType string

const (
	TargetProductionOrder ReservationTargetType = "PRODUCTION_ORDER"
	TargetPlanning        ReservationTargetType = "PLANNING"
	TargetForecast        ReservationTargetType = "FORECAST"
)

type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationConsumed ReservationStatus = "CONSUMED"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationExpired  ReservationStatus = "EXPIRED"
)

// StockReservation is a claim against a (product, warehouse) pair on behalf
// of a target, usually a production order. The sum of ACTIVE reservation
// quantities per pair must always equal the sum of batch reserved
// quantities for that pair; the synchronizer maintains this.
type StockReservation struct {
	ID              int                   `json:"id"`
	ProductID       int                   `json:"product_id"`
	WarehouseID     int                   `json:"warehouse_id"`
	ReservedQty     decimal.Decimal       `json:"reserved_quantity"`
	TargetType      ReservationTargetType `json:"target_type"`
	TargetID        int                   `json:"target_id"`
	Status          ReservationStatus     `json:"status"`
	ReservationDate time.Time             `json:"reservation_date"`
	ExpiryDate      *time.Time            `json:"expiry_date,omitempty"`
}

type MovementType string

const (
	MovementReceipt          MovementType = "RECEIPT"
	MovementReservation      MovementType = "RESERVATION"
	MovementRelease          MovementType = "RELEASE"
	MovementConsumption      MovementType = "CONSUMPTION"
	MovementProductionOutput MovementType = "PRODUCTION_OUTPUT"
	MovementAdjustment       MovementType = "ADJUSTMENT"
)

// StockMovement is the audit trail row written for every batch mutation.
// Positive quantities are inbound, negative outbound.
type StockMovement struct {
	ID                int             `json:"id"`
	BatchID           *int            `json:"batch_id,omitempty"`
	ProductID         int             `json:"product_id"`
	WarehouseID       int             `json:"warehouse_id"`
	MovementType      MovementType    `json:"movement_type"`
	Quantity          decimal.Decimal `json:"quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	ProductionOrderID *int            `json:"production_order_id,omitempty"`
	CorrelationID     *uuid.UUID      `json:"correlation_id,omitempty"`
	PerformedBy       string          `json:"performed_by"`
	Notes             string          `json:"notes"`
	CreatedAt         time.Time       `json:"created_at"`
}

// StockLevel is a read view of batch stock aggregated per product and
// warehouse.
type StockLevel struct {
	ProductCode   string          `json:"product_code"`
	ProductName   string          `json:"product_name"`
	WarehouseCode string          `json:"warehouse_code"`
	WarehouseName string          `json:"warehouse_name"`
	OnHand        decimal.Decimal `json:"on_hand"`
	Reserved      decimal.Decimal `json:"reserved"`
	Available     decimal.Decimal `json:"available"` // = OnHand - Reserved
}
