package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// BOMService explodes BOMs into component requirements. Flat explosion
// returns direct components only; recursive explosion descends into
// semi-finished components that carry an active BOM, with cycle detection.
type BOMService interface {
	ExplodeBOM(ctx context.Context, bomID int, quantity decimal.Decimal) ([]ExplodedComponent, error)
	ExplodeBOMRecursive(ctx context.Context, bomID int, quantity decimal.Decimal) ([]ExplodedComponent, error)
}

type bomService struct {
	pool *pgxpool.Pool
}

func NewBOMService(pool *pgxpool.Pool) BOMService {
	return &bomService{pool: pool}
}

// pgxReader combines single-row and rowset queries; satisfied by both
// *pgxpool.Pool and pgx.Tx.
type pgxReader interface {
	pgxQuerier
	pgxRowQuerier
}

func (s *bomService) ExplodeBOM(ctx context.Context, bomID int, quantity decimal.Decimal) ([]ExplodedComponent, error) {
	return explodeFlatQ(ctx, s.pool, bomID, quantity)
}

func (s *bomService) ExplodeBOMRecursive(ctx context.Context, bomID int, quantity decimal.Decimal) ([]ExplodedComponent, error) {
	var productID int
	err := s.pool.QueryRow(ctx, "SELECT product_id FROM boms WHERE id = $1", bomID).Scan(&productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "BOM", Key: bomID}
		}
		return nil, fmt.Errorf("failed to fetch BOM %d: %w", bomID, err)
	}
	return explodeRecursiveQ(ctx, s.pool, bomID, quantity, 0, map[int]bool{productID: true})
}

// explodedRow is one component line joined with product data and the
// component's active BOM, if any.
type explodedRow struct {
	comp        ExplodedComponent
	childBOMID  *int
	effectiveQy decimal.Decimal
}

func fetchExplosionRows(ctx context.Context, q pgxReader, bomID int, quantity decimal.Decimal) ([]explodedRow, error) {
	var baseQuantity decimal.Decimal
	err := q.QueryRow(ctx, "SELECT base_quantity FROM boms WHERE id = $1", bomID).Scan(&baseQuantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "BOM", Key: bomID}
		}
		return nil, fmt.Errorf("failed to fetch BOM %d: %w", bomID, err)
	}

	rows, err := q.Query(ctx, `
		SELECT bc.component_product_id, p.code, p.name, p.category, p.unit,
		       bc.sequence_number, bc.quantity_required, bc.scrap_percentage,
		       ab.id
		FROM bom_components bc
		JOIN products p ON p.id = bc.component_product_id
		LEFT JOIN boms ab ON ab.product_id = p.id AND ab.status = 'ACTIVE'
		WHERE bc.bom_id = $1
		ORDER BY bc.sequence_number, bc.id
	`, bomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query components of BOM %d: %w", bomID, err)
	}
	defer rows.Close()

	// Scale every line from the BOM's base quantity to the requested
	// quantity, inflating for scrap first.
	var result []explodedRow
	for rows.Next() {
		var r explodedRow
		var bc BOMComponent
		if err := rows.Scan(
			&r.comp.ComponentProductID, &r.comp.ProductCode, &r.comp.ProductName,
			&r.comp.Category, &r.comp.Unit,
			&bc.SequenceNumber, &bc.QuantityRequired, &bc.ScrapPercentage,
			&r.childBOMID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan BOM component: %w", err)
		}
		r.comp.SequenceNumber = bc.SequenceNumber
		r.effectiveQy = bc.EffectiveQuantity()
		r.comp.RequiredQuantity = r.effectiveQy.Mul(quantity).Div(baseQuantity)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating components of BOM %d: %w", bomID, err)
	}
	return result, nil
}

// explodeFlatQ returns the direct component requirements of a BOM scaled to
// the given quantity.
func explodeFlatQ(ctx context.Context, q pgxReader, bomID int, quantity decimal.Decimal) ([]ExplodedComponent, error) {
	rows, err := fetchExplosionRows(ctx, q, bomID, quantity)
	if err != nil {
		return nil, err
	}
	components := make([]ExplodedComponent, 0, len(rows))
	for _, r := range rows {
		components = append(components, r.comp)
	}
	return components, nil
}

// explodeRecursiveQ descends through semi-finished components carrying an
// active BOM. The visited set tracks the product ids on the current branch
// and is copied before each descent, so a product may legitimately appear on
// two sibling branches while a true cycle still fails.
func explodeRecursiveQ(ctx context.Context, q pgxReader, bomID int, quantity decimal.Decimal,
	level int, visited map[int]bool) ([]ExplodedComponent, error) {

	rows, err := fetchExplosionRows(ctx, q, bomID, quantity)
	if err != nil {
		return nil, err
	}

	var components []ExplodedComponent
	for _, r := range rows {
		r.comp.Level = level
		components = append(components, r.comp)

		if r.childBOMID == nil {
			continue
		}
		if visited[r.comp.ComponentProductID] {
			return nil, &CircularBOMError{BOMID: bomID, ProductID: r.comp.ComponentProductID}
		}

		branch := make(map[int]bool, len(visited)+1)
		for id := range visited {
			branch[id] = true
		}
		branch[r.comp.ComponentProductID] = true

		children, err := explodeRecursiveQ(ctx, q, *r.childBOMID, r.comp.RequiredQuantity, level+1, branch)
		if err != nil {
			return nil, err
		}
		components = append(components, children...)
	}
	return components, nil
}
