package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// AvailabilityService answers "can we produce N units now" by exploding the
// BOM and walking APPROVED batch stock FIFO per component.
type AvailabilityService interface {
	AnalyzeStockAvailability(ctx context.Context, req AvailabilityRequest) (*AvailabilityResult, error)
}

type availabilityService struct {
	pool *pgxpool.Pool
}

func NewAvailabilityService(pool *pgxpool.Pool) AvailabilityService {
	return &availabilityService{pool: pool}
}

func (s *availabilityService) AnalyzeStockAvailability(ctx context.Context, req AvailabilityRequest) (*AvailabilityResult, error) {
	if req.Quantity.IsZero() || req.Quantity.IsNegative() {
		return nil, fmt.Errorf("analysis quantity must be positive, got %s", req.Quantity)
	}

	bomID := req.BOMID
	if bomID == 0 {
		var err error
		bomID, err = activeBOMIDQ(ctx, s.pool, req.ProductID)
		if err != nil {
			return nil, err
		}
	}

	result, err := analyzeQ(ctx, s.pool, req.ProductID, bomID, req.Quantity, req.ExistingOrderID,
		map[int]bool{req.ProductID: true})
	if err != nil {
		return nil, err
	}

	if result.ShortageExists {
		slog.Info("availability analysis found shortages",
			"product_id", req.ProductID, "bom_id", bomID, "quantity", req.Quantity.String())
	}
	return result, nil
}

// analyzeQ runs one level of the analysis. The visited set carries the
// product ids on the current recursion branch; a semi-finished shortage is
// probed one level deeper with a copy of the set.
func analyzeQ(ctx context.Context, q pgxReader, productID, bomID int, quantity decimal.Decimal,
	existingOrderID int, visited map[int]bool) (*AvailabilityResult, error) {

	var laborCost, overheadCost decimal.Decimal
	err := q.QueryRow(ctx,
		"SELECT labor_cost_per_unit, overhead_cost_per_unit FROM boms WHERE id = $1",
		bomID,
	).Scan(&laborCost, &overheadCost)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch BOM %d costs: %w", bomID, err)
	}

	rows, err := fetchExplosionRows(ctx, q, bomID, quantity)
	if err != nil {
		return nil, err
	}

	result := &AvailabilityResult{
		ProductID:  productID,
		BOMID:      bomID,
		Quantity:   quantity,
		CanProduce: true,
	}

	for _, r := range rows {
		ca, err := analyzeComponentQ(ctx, q, r, existingOrderID)
		if err != nil {
			return nil, err
		}

		if !ca.Sufficient {
			result.ShortageExists = true

			// A semi-finished shortage may be coverable by a nested
			// production run; probe its BOM for the missing quantity. Raw
			// material gaps found underneath reclassify the component as
			// unresolvable and are promoted into NestedShortages.
			if ca.Category == CategorySemiFinished && r.childBOMID != nil {
				if visited[ca.ProductID] {
					return nil, &CircularBOMError{BOMID: bomID, ProductID: ca.ProductID}
				}
				branch := make(map[int]bool, len(visited)+1)
				for id := range visited {
					branch[id] = true
				}
				branch[ca.ProductID] = true

				nested, err := analyzeQ(ctx, q, ca.ProductID, *r.childBOMID, ca.ShortfallQuantity, 0, branch)
				if err != nil {
					var cycle *CircularBOMError
					if errors.As(err, &cycle) {
						return nil, err
					}
					return nil, fmt.Errorf("nested analysis for component %s failed: %w", ca.ProductCode, err)
				}

				ca.Resolvable = nested.CanProduce
				for _, nc := range nested.Components {
					if nc.Sufficient || nc.Resolvable {
						continue
					}
					ca.NestedShortages = append(ca.NestedShortages, nc)
					ca.NestedShortages = append(ca.NestedShortages, nc.NestedShortages...)
				}
			}

			if !ca.Resolvable {
				result.CanProduce = false
			}
		}

		result.Components = append(result.Components, *ca)
		result.EstimatedMaterialCost = result.EstimatedMaterialCost.Add(ca.TotalCost)
	}

	conversion := laborCost.Add(overheadCost).Mul(quantity)
	result.EstimatedTotalCost = result.EstimatedMaterialCost.Add(conversion)
	return result, nil
}

// analyzeComponentQ computes availability and weighted FIFO cost for one
// exploded component across all warehouses, canonical warehouse first.
func analyzeComponentQ(ctx context.Context, q pgxReader, r explodedRow, existingOrderID int) (*ComponentAvailability, error) {
	ca := &ComponentAvailability{
		ProductID:        r.comp.ComponentProductID,
		ProductCode:      r.comp.ProductCode,
		ProductName:      r.comp.ProductName,
		Category:         r.comp.Category,
		Unit:             r.comp.Unit,
		RequiredQuantity: r.comp.RequiredQuantity,
	}

	canonical, err := resolveSourceWarehouseQ(ctx, q, ca.Category)
	if err != nil {
		return nil, err
	}
	ca.WarehouseID = canonical.ID

	// Reservations held by the order under evaluation count as available
	// again, since adjusting that order frees them.
	addBack := map[int]decimal.Decimal{}
	if existingOrderID > 0 {
		abRows, err := q.Query(ctx, `
			SELECT warehouse_id, COALESCE(SUM(reserved_quantity), 0)
			FROM stock_reservations
			WHERE product_id = $1 AND target_type = 'PRODUCTION_ORDER' AND target_id = $2 AND status = 'ACTIVE'
			GROUP BY warehouse_id
		`, ca.ProductID, existingOrderID)
		if err != nil {
			return nil, fmt.Errorf("failed to query own reservations for product %d: %w", ca.ProductID, err)
		}
		for abRows.Next() {
			var warehouseID int
			var qty decimal.Decimal
			if err := abRows.Scan(&warehouseID, &qty); err != nil {
				abRows.Close()
				return nil, fmt.Errorf("failed to scan own reservation: %w", err)
			}
			addBack[warehouseID] = qty
		}
		abRows.Close()
		if err := abRows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating own reservations: %w", err)
		}
	}

	rows, err := q.Query(ctx, `
		SELECT id, warehouse_id, quantity_in_stock, reserved_quantity, unit_cost
		FROM inventory_batches
		WHERE product_id = $1 AND quality_status = 'APPROVED'
		ORDER BY CASE WHEN warehouse_id = $2 THEN 0 ELSE 1 END, entry_date, id
	`, ca.ProductID, canonical.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches for product %s: %w", ca.ProductCode, err)
	}
	defer rows.Close()

	// Weighted cost uses only the FIFO takes that would actually cover the
	// requirement, so one huge cheap batch does not skew the estimate.
	remaining := ca.RequiredQuantity
	var takeSum, costSum decimal.Decimal
	for rows.Next() {
		var batchID, warehouseID int
		var stock, reserved, unitCost decimal.Decimal
		if err := rows.Scan(&batchID, &warehouseID, &stock, &reserved, &unitCost); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}

		available := stock.Sub(reserved)
		if ab := addBack[warehouseID]; ab.IsPositive() {
			extra := decimal.Min(ab, reserved)
			available = available.Add(extra)
			addBack[warehouseID] = ab.Sub(extra)
		}
		if !available.IsPositive() {
			continue
		}

		ca.AvailableQuantity = ca.AvailableQuantity.Add(available)
		if remaining.IsPositive() {
			take := decimal.Min(remaining, available)
			takeSum = takeSum.Add(take)
			costSum = costSum.Add(take.Mul(unitCost))
			remaining = remaining.Sub(take)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}

	if takeSum.IsPositive() {
		ca.UnitCost = costSum.Div(takeSum)
	} else {
		// Nothing on hand; fall back to the product's standard cost.
		if err := q.QueryRow(ctx,
			"SELECT standard_cost FROM products WHERE id = $1", ca.ProductID,
		).Scan(&ca.UnitCost); err != nil {
			return nil, fmt.Errorf("failed to fetch standard cost for product %d: %w", ca.ProductID, err)
		}
	}
	ca.TotalCost = ca.RequiredQuantity.Mul(ca.UnitCost)

	ca.Sufficient = !ca.AvailableQuantity.LessThan(ca.RequiredQuantity)
	if !ca.Sufficient {
		ca.ShortfallQuantity = ca.RequiredQuantity.Sub(ca.AvailableQuantity)
	}
	return ca, nil
}
