package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type BOMStatus string

const (
	BOMStatusDraft    BOMStatus = "DRAFT"
	BOMStatusActive   BOMStatus = "ACTIVE"
	BOMStatusInactive BOMStatus = "INACTIVE"
	BOMStatusObsolete BOMStatus = "OBSOLETE"
)

// BOM is a versioned recipe for producing BaseQuantity units of the parent
// product. At most one version per product may be ACTIVE at a time
// (enforced by a partial unique index).
type BOM struct {
	ID                  int             `json:"id"`
	ProductID           int             `json:"product_id"`
	Version             string          `json:"version"`
	Status              BOMStatus       `json:"status"`
	EffectiveDate       time.Time       `json:"effective_date"`
	ExpiryDate          *time.Time      `json:"expiry_date,omitempty"`
	BaseQuantity        decimal.Decimal `json:"base_quantity"`
	YieldPercentage     decimal.Decimal `json:"yield_percentage"`
	LaborCostPerUnit    decimal.Decimal `json:"labor_cost_per_unit"`
	OverheadCostPerUnit decimal.Decimal `json:"overhead_cost_per_unit"`
	CreatedAt           time.Time       `json:"created_at"`
	Components          []BOMComponent  `json:"components,omitempty"`
}

// BOMComponent is a single line of a BOM. A SEMI_FINISHED component may
// itself carry an active BOM, forming a multi-level structure.
type BOMComponent struct {
	ID                 int             `json:"id"`
	BOMID              int             `json:"bom_id"`
	ComponentProductID int             `json:"component_product_id"`
	SequenceNumber     int             `json:"sequence_number"`
	QuantityRequired   decimal.Decimal `json:"quantity_required"`
	ScrapPercentage    decimal.Decimal `json:"scrap_percentage"`
}

var oneHundred = decimal.NewFromInt(100)

// EffectiveQuantity is the per-base-quantity requirement inflated by the
// expected scrap: quantity_required × (1 + scrap_percentage/100).
func (c BOMComponent) EffectiveQuantity() decimal.Decimal {
	scrapFactor := decimal.NewFromInt(1).Add(c.ScrapPercentage.Div(oneHundred))
	return c.QuantityRequired.Mul(scrapFactor)
}

// ExplodedComponent is one node of a BOM explosion, scaled to the requested
// parent quantity. Level is 0 for direct components and increases with
// nesting depth in recursive mode.
type ExplodedComponent struct {
	ComponentProductID int             `json:"component_product_id"`
	ProductCode        string          `json:"product_code"`
	ProductName        string          `json:"product_name"`
	Category           ProductCategory `json:"category"`
	Unit               string          `json:"unit"`
	SequenceNumber     int             `json:"sequence_number"`
	RequiredQuantity   decimal.Decimal `json:"required_quantity"`
	Level              int             `json:"level"`
}
