package core_test

import (
	"testing"

	"mrp-engine/internal/core"

	"github.com/shopspring/decimal"
)

func TestBOMComponent_EffectiveQuantity(t *testing.T) {
	tests := []struct {
		name     string
		required string
		scrap    string
		expected string
	}{
		{"No scrap", "10", "0", "10"},
		{"Five percent scrap", "100", "5", "105"},
		{"Fractional requirement", "2.5", "10", "2.75"},
		{"Max scrap", "40", "50", "60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := core.BOMComponent{
				QuantityRequired: decimal.RequireFromString(tt.required),
				ScrapPercentage:  decimal.RequireFromString(tt.scrap),
			}
			got := c.EffectiveQuantity()
			if !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("EffectiveQuantity() = %s, expected %s", got, tt.expected)
			}
		})
	}
}

func TestInventoryBatch_AvailableQuantity(t *testing.T) {
	tests := []struct {
		name     string
		stock    string
		reserved string
		expected string
	}{
		{"Nothing reserved", "100", "0", "100"},
		{"Partially reserved", "100", "30", "70"},
		{"Fully reserved", "50", "50", "0"},
		{"Over-reserved clamps to zero", "50", "60", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := core.InventoryBatch{
				QuantityInStock: decimal.RequireFromString(tt.stock),
				ReservedQty:     decimal.RequireFromString(tt.reserved),
			}
			got := b.AvailableQuantity()
			if !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("AvailableQuantity() = %s, expected %s", got, tt.expected)
			}
		})
	}
}

func TestDeriveAllocationStatus(t *testing.T) {
	tests := []struct {
		name      string
		allocated string
		required  string
		expected  core.AllocationStatus
	}{
		{"Nothing allocated", "0", "100", core.AllocationNone},
		{"Partial", "40", "100", core.AllocationPartial},
		{"Full", "100", "100", core.AllocationFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := core.DeriveAllocationStatus(
				decimal.RequireFromString(tt.allocated),
				decimal.RequireFromString(tt.required),
			)
			if got != tt.expected {
				t.Errorf("DeriveAllocationStatus(%s, %s) = %s, expected %s",
					tt.allocated, tt.required, got, tt.expected)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]core.OrderStatus{
		{core.OrderPlanned, core.OrderReleased},
		{core.OrderPlanned, core.OrderCancelled},
		{core.OrderReleased, core.OrderInProgress},
		{core.OrderReleased, core.OrderOnHold},
		{core.OrderReleased, core.OrderCancelled},
		{core.OrderInProgress, core.OrderCompleted},
		{core.OrderInProgress, core.OrderOnHold},
		{core.OrderInProgress, core.OrderCancelled},
		{core.OrderOnHold, core.OrderReleased},
		{core.OrderOnHold, core.OrderCancelled},
	}
	for _, pair := range allowed {
		if !core.CanTransition(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be allowed", pair[0], pair[1])
		}
	}

	forbidden := [][2]core.OrderStatus{
		{core.OrderPlanned, core.OrderInProgress},
		{core.OrderPlanned, core.OrderCompleted},
		{core.OrderReleased, core.OrderCompleted},
		{core.OrderOnHold, core.OrderInProgress},
		{core.OrderCompleted, core.OrderReleased},
		{core.OrderCompleted, core.OrderCancelled},
		{core.OrderCancelled, core.OrderPlanned},
		{core.OrderCancelled, core.OrderReleased},
	}
	for _, pair := range forbidden {
		if core.CanTransition(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be rejected", pair[0], pair[1])
		}
	}
}

func TestProductionOrder_CompletionPercentage(t *testing.T) {
	tests := []struct {
		name      string
		planned   string
		completed string
		scrapped  string
		expected  string
	}{
		{"Untouched", "100", "0", "0", "0"},
		{"Half done", "100", "50", "0", "50"},
		{"Done with scrap", "100", "90", "10", "100"},
		{"Zero planned", "0", "0", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := core.ProductionOrder{
				PlannedQuantity:   decimal.RequireFromString(tt.planned),
				CompletedQuantity: decimal.RequireFromString(tt.completed),
				ScrappedQuantity:  decimal.RequireFromString(tt.scrapped),
			}
			got := o.CompletionPercentage()
			if !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("CompletionPercentage() = %s, expected %s", got, tt.expected)
			}
		})
	}
}

func TestWarehouseTypeFor(t *testing.T) {
	tests := []struct {
		category core.ProductCategory
		expected core.WarehouseType
	}{
		{core.CategoryRawMaterial, core.WarehouseRawMaterials},
		{core.CategorySemiFinished, core.WarehouseSemiFinished},
		{core.CategoryFinishedProduct, core.WarehouseFinishedProducts},
		{core.CategoryPackaging, core.WarehousePackaging},
	}
	for _, tt := range tests {
		got, ok := core.WarehouseTypeFor(tt.category)
		if !ok || got != tt.expected {
			t.Errorf("WarehouseTypeFor(%s) = %s, %v; expected %s", tt.category, got, ok, tt.expected)
		}
	}

	if _, ok := core.WarehouseTypeFor("CONSUMABLE"); ok {
		t.Error("expected unknown category to report ok=false")
	}
}
