package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ProductService manages product master data and BOM versions.
type ProductService interface {
	CreateProduct(ctx context.Context, code, name string, category ProductCategory, unit string,
		minStock, criticalStock, standardCost decimal.Decimal) (*Product, error)
	GetProducts(ctx context.Context) ([]Product, error)
	GetProductByCode(ctx context.Context, code string) (*Product, error)

	// CreateBOM creates a DRAFT BOM version with its components.
	CreateBOM(ctx context.Context, productCode, version string, baseQuantity, yieldPct,
		laborCostPerUnit, overheadCostPerUnit decimal.Decimal, components []BOMComponentInput) (*BOM, error)
	// ActivateBOM promotes a BOM to ACTIVE, demoting any previously active
	// version of the same product in the same transaction.
	ActivateBOM(ctx context.Context, bomID int) error
	GetActiveBOM(ctx context.Context, productID int) (*BOM, error)
	GetBOM(ctx context.Context, bomID int) (*BOM, error)
}

// BOMComponentInput is one component line for BOM creation.
type BOMComponentInput struct {
	ComponentProductCode string          `json:"component_product_code"`
	QuantityRequired     decimal.Decimal `json:"quantity_required"`
	ScrapPercentage      decimal.Decimal `json:"scrap_percentage"`
}

type productService struct {
	pool *pgxpool.Pool
}

func NewProductService(pool *pgxpool.Pool) ProductService {
	return &productService{pool: pool}
}

func (s *productService) CreateProduct(ctx context.Context, code, name string, category ProductCategory, unit string,
	minStock, criticalStock, standardCost decimal.Decimal) (*Product, error) {

	if _, ok := WarehouseTypeFor(category); !ok {
		return nil, fmt.Errorf("unknown product category %s", category)
	}
	if criticalStock.GreaterThan(minStock) {
		return nil, fmt.Errorf("critical stock level %s cannot exceed min stock level %s", criticalStock, minStock)
	}

	var p Product
	err := s.pool.QueryRow(ctx, `
		INSERT INTO products (code, name, category, unit, min_stock_level, critical_stock_level, standard_cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, code, name, category, unit, min_stock_level, critical_stock_level, standard_cost, is_active, created_at
	`, code, name, category, unit, minStock, criticalStock, standardCost).Scan(
		&p.ID, &p.Code, &p.Name, &p.Category, &p.Unit,
		&p.MinStockLevel, &p.CriticalStockLevel, &p.StandardCost, &p.IsActive, &p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return &p, nil
}

func (s *productService) GetProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, name, category, unit, min_stock_level, critical_stock_level, standard_cost, is_active, created_at
		FROM products
		WHERE is_active = true
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.Unit,
			&p.MinStockLevel, &p.CriticalStockLevel, &p.StandardCost, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

func (s *productService) GetProductByCode(ctx context.Context, code string) (*Product, error) {
	var p Product
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, name, category, unit, min_stock_level, critical_stock_level, standard_cost, is_active, created_at
		FROM products
		WHERE code = $1
	`, code).Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.Unit,
		&p.MinStockLevel, &p.CriticalStockLevel, &p.StandardCost, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "product", Key: code}
		}
		return nil, fmt.Errorf("failed to fetch product %s: %w", code, err)
	}
	return &p, nil
}

func (s *productService) CreateBOM(ctx context.Context, productCode, version string, baseQuantity, yieldPct,
	laborCostPerUnit, overheadCostPerUnit decimal.Decimal, components []BOMComponentInput) (*BOM, error) {

	if len(components) == 0 {
		return nil, fmt.Errorf("BOM must have at least one component")
	}
	if baseQuantity.IsZero() || baseQuantity.IsNegative() {
		return nil, fmt.Errorf("base quantity must be positive, got %s", baseQuantity)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var productID int
	var category ProductCategory
	err = tx.QueryRow(ctx,
		"SELECT id, category FROM products WHERE code = $1 AND is_active = true",
		productCode,
	).Scan(&productID, &category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "product", Key: productCode}
		}
		return nil, fmt.Errorf("failed to resolve product %s: %w", productCode, err)
	}
	if category == CategoryRawMaterial || category == CategoryPackaging {
		return nil, fmt.Errorf("product %s is %s and cannot carry a BOM", productCode, category)
	}

	var bomID int
	err = tx.QueryRow(ctx, `
		INSERT INTO boms (product_id, version, status, effective_date, base_quantity, yield_percentage, labor_cost_per_unit, overhead_cost_per_unit)
		VALUES ($1, $2, 'DRAFT', CURRENT_DATE, $3, $4, $5, $6)
		RETURNING id
	`, productID, version, baseQuantity, yieldPct, laborCostPerUnit, overheadCostPerUnit).Scan(&bomID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert BOM: %w", err)
	}

	for i, input := range components {
		var componentID int
		err = tx.QueryRow(ctx,
			"SELECT id FROM products WHERE code = $1 AND is_active = true",
			input.ComponentProductCode,
		).Scan(&componentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &NotFoundError{Entity: "component product", Key: input.ComponentProductCode}
			}
			return nil, fmt.Errorf("line %d: failed to resolve component %s: %w", i+1, input.ComponentProductCode, err)
		}
		if componentID == productID {
			return nil, fmt.Errorf("line %d: BOM cannot list its own product %s as a component", i+1, productCode)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO bom_components (bom_id, component_product_id, sequence_number, quantity_required, scrap_percentage)
			VALUES ($1, $2, $3, $4, $5)
		`, bomID, componentID, i+1, input.QuantityRequired, input.ScrapPercentage)
		if err != nil {
			return nil, fmt.Errorf("line %d: failed to insert BOM component: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit BOM creation: %w", err)
	}

	return s.GetBOM(ctx, bomID)
}

func (s *productService) ActivateBOM(ctx context.Context, bomID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var productID int
	var status BOMStatus
	err = tx.QueryRow(ctx,
		"SELECT product_id, status FROM boms WHERE id = $1 FOR UPDATE",
		bomID,
	).Scan(&productID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Entity: "BOM", Key: bomID}
		}
		return fmt.Errorf("failed to fetch BOM %d: %w", bomID, err)
	}
	if status == BOMStatusActive {
		return nil
	}
	if status == BOMStatusObsolete {
		return fmt.Errorf("BOM %d is OBSOLETE and cannot be activated", bomID)
	}

	// Demote the current active version first so the partial unique index
	// on (product_id) WHERE status = 'ACTIVE' is never violated.
	_, err = tx.Exec(ctx, `
		UPDATE boms SET status = 'INACTIVE'
		WHERE product_id = $1 AND status = 'ACTIVE'
	`, productID)
	if err != nil {
		return fmt.Errorf("failed to demote active BOM for product %d: %w", productID, err)
	}

	_, err = tx.Exec(ctx, "UPDATE boms SET status = 'ACTIVE' WHERE id = $1", bomID)
	if err != nil {
		return fmt.Errorf("failed to activate BOM %d: %w", bomID, err)
	}

	return tx.Commit(ctx)
}

func (s *productService) GetActiveBOM(ctx context.Context, productID int) (*BOM, error) {
	bomID, err := activeBOMIDQ(ctx, s.pool, productID)
	if err != nil {
		return nil, err
	}
	return s.GetBOM(ctx, bomID)
}

func (s *productService) GetBOM(ctx context.Context, bomID int) (*BOM, error) {
	var b BOM
	err := s.pool.QueryRow(ctx, `
		SELECT id, product_id, version, status, effective_date, expiry_date,
		       base_quantity, yield_percentage, labor_cost_per_unit, overhead_cost_per_unit, created_at
		FROM boms
		WHERE id = $1
	`, bomID).Scan(
		&b.ID, &b.ProductID, &b.Version, &b.Status, &b.EffectiveDate, &b.ExpiryDate,
		&b.BaseQuantity, &b.YieldPercentage, &b.LaborCostPerUnit, &b.OverheadCostPerUnit, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "BOM", Key: bomID}
		}
		return nil, fmt.Errorf("failed to fetch BOM %d: %w", bomID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, bom_id, component_product_id, sequence_number, quantity_required, scrap_percentage
		FROM bom_components
		WHERE bom_id = $1
		ORDER BY sequence_number, id
	`, bomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query BOM components: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c BOMComponent
		if err := rows.Scan(&c.ID, &c.BOMID, &c.ComponentProductID, &c.SequenceNumber,
			&c.QuantityRequired, &c.ScrapPercentage); err != nil {
			return nil, fmt.Errorf("failed to scan BOM component: %w", err)
		}
		b.Components = append(b.Components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating components of BOM %d: %w", bomID, err)
	}
	return &b, nil
}

// activeBOMIDQ looks up the single ACTIVE BOM of a product.
func activeBOMIDQ(ctx context.Context, q pgxQuerier, productID int) (int, error) {
	var bomID int
	err := q.QueryRow(ctx,
		"SELECT id FROM boms WHERE product_id = $1 AND status = 'ACTIVE'",
		productID,
	).Scan(&bomID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, &NotFoundError{Entity: "active BOM for product", Key: productID}
		}
		return 0, fmt.Errorf("failed to resolve active BOM for product %d: %w", productID, err)
	}
	return bomID, nil
}
