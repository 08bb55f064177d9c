package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WarehouseService manages warehouse master data and resolves the canonical
// source warehouse for a product category.
type WarehouseService interface {
	CreateWarehouse(ctx context.Context, code, name string, whType WarehouseType) (*Warehouse, error)
	GetWarehouses(ctx context.Context) ([]Warehouse, error)
	GetWarehouseByCode(ctx context.Context, code string) (*Warehouse, error)
	// ResolveSourceWarehouse maps a product category to its active warehouse.
	// Each category routes to exactly one warehouse type, and at most one
	// active warehouse per type exists (enforced by a partial unique index).
	ResolveSourceWarehouse(ctx context.Context, category ProductCategory) (*Warehouse, error)
}

type warehouseService struct {
	pool *pgxpool.Pool
}

func NewWarehouseService(pool *pgxpool.Pool) WarehouseService {
	return &warehouseService{pool: pool}
}

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared query helpers.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgxRowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx (for Query).
type pgxRowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *warehouseService) CreateWarehouse(ctx context.Context, code, name string, whType WarehouseType) (*Warehouse, error) {
	var w Warehouse
	err := s.pool.QueryRow(ctx, `
		INSERT INTO warehouses (code, name, type)
		VALUES ($1, $2, $3)
		RETURNING id, code, name, type, is_active, created_at
	`, code, name, whType).Scan(&w.ID, &w.Code, &w.Name, &w.Type, &w.IsActive, &w.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create warehouse: %w", err)
	}
	return &w, nil
}

func (s *warehouseService) GetWarehouses(ctx context.Context) ([]Warehouse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, name, type, is_active, created_at
		FROM warehouses
		WHERE is_active = true
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query warehouses: %w", err)
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.Type, &w.IsActive, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan warehouse: %w", err)
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, nil
}

func (s *warehouseService) GetWarehouseByCode(ctx context.Context, code string) (*Warehouse, error) {
	var w Warehouse
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, name, type, is_active, created_at
		FROM warehouses
		WHERE code = $1
	`, code).Scan(&w.ID, &w.Code, &w.Name, &w.Type, &w.IsActive, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "warehouse", Key: code}
		}
		return nil, fmt.Errorf("failed to fetch warehouse %s: %w", code, err)
	}
	return &w, nil
}

func (s *warehouseService) ResolveSourceWarehouse(ctx context.Context, category ProductCategory) (*Warehouse, error) {
	return resolveSourceWarehouseQ(ctx, s.pool, category)
}

// resolveSourceWarehouseQ is the shared resolver used both standalone and
// inside transactions.
func resolveSourceWarehouseQ(ctx context.Context, q pgxQuerier, category ProductCategory) (*Warehouse, error) {
	whType, ok := WarehouseTypeFor(category)
	if !ok {
		return nil, fmt.Errorf("no warehouse type mapped for product category %s", category)
	}

	var w Warehouse
	err := q.QueryRow(ctx, `
		SELECT id, code, name, type, is_active, created_at
		FROM warehouses
		WHERE type = $1 AND is_active = true
	`, whType).Scan(&w.ID, &w.Code, &w.Name, &w.Type, &w.IsActive, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "active warehouse of type", Key: whType}
		}
		return nil, fmt.Errorf("failed to resolve warehouse for category %s: %w", category, err)
	}
	return &w, nil
}
