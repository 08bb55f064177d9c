package web

import (
	"net/http"

	"mrp-engine/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// ── Products ──────────────────────────────────────────────────────────────────

// listProducts handles GET /api/products.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListProducts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Products)
}

// createProduct handles POST /api/products.
func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code               string          `json:"code"`
		Name               string          `json:"name"`
		Category           string          `json:"category"`
		Unit               string          `json:"unit"`
		MinStockLevel      decimal.Decimal `json:"min_stock_level"`
		CriticalStockLevel decimal.Decimal `json:"critical_stock_level"`
		StandardCost       decimal.Decimal `json:"standard_cost"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	product, err := h.svc.CreateProduct(r.Context(), app.CreateProductRequest{
		Code:               body.Code,
		Name:               body.Name,
		Category:           body.Category,
		Unit:               body.Unit,
		MinStockLevel:      body.MinStockLevel,
		CriticalStockLevel: body.CriticalStockLevel,
		StandardCost:       body.StandardCost,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, product)
}

// getProduct handles GET /api/products/{code}.
func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.svc.GetProduct(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, product)
}

// getBatches handles GET /api/products/{code}/batches.
func (h *Handler) getBatches(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetBatches(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Batches)
}

// ── Warehouses ────────────────────────────────────────────────────────────────

// listWarehouses handles GET /api/warehouses.
func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListWarehouses(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Warehouses)
}

// createWarehouse handles POST /api/warehouses.
func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	warehouse, err := h.svc.CreateWarehouse(r.Context(), app.CreateWarehouseRequest{
		Code: body.Code,
		Name: body.Name,
		Type: body.Type,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, warehouse)
}

// ── BOMs ──────────────────────────────────────────────────────────────────────

// createBOM handles POST /api/boms.
func (h *Handler) createBOM(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductCode         string          `json:"product_code"`
		Version             string          `json:"version"`
		BaseQuantity        decimal.Decimal `json:"base_quantity"`
		YieldPercentage     decimal.Decimal `json:"yield_percentage"`
		LaborCostPerUnit    decimal.Decimal `json:"labor_cost_per_unit"`
		OverheadCostPerUnit decimal.Decimal `json:"overhead_cost_per_unit"`
		Components          []struct {
			ComponentProductCode string          `json:"component_product_code"`
			QuantityRequired     decimal.Decimal `json:"quantity_required"`
			ScrapPercentage      decimal.Decimal `json:"scrap_percentage"`
		} `json:"components"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	req := app.CreateBOMRequest{
		ProductCode:         body.ProductCode,
		Version:             body.Version,
		BaseQuantity:        body.BaseQuantity,
		YieldPercentage:     body.YieldPercentage,
		LaborCostPerUnit:    body.LaborCostPerUnit,
		OverheadCostPerUnit: body.OverheadCostPerUnit,
	}
	for _, c := range body.Components {
		req.Components = append(req.Components, app.BOMComponentInput{
			ComponentProductCode: c.ComponentProductCode,
			QuantityRequired:     c.QuantityRequired,
			ScrapPercentage:      c.ScrapPercentage,
		})
	}

	bom, err := h.svc.CreateBOM(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, bom)
}

// getBOM handles GET /api/boms/{id}.
func (h *Handler) getBOM(w http.ResponseWriter, r *http.Request) {
	bomID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	bom, err := h.svc.GetBOM(r.Context(), bomID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, bom)
}

// activateBOM handles POST /api/boms/{id}/activate.
func (h *Handler) activateBOM(w http.ResponseWriter, r *http.Request) {
	bomID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	bom, err := h.svc.ActivateBOM(r.Context(), bomID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, bom)
}

// explodeBOM handles GET /api/boms/{id}/explosion?quantity=N&recursive=true.
func (h *Handler) explodeBOM(w http.ResponseWriter, r *http.Request) {
	bomID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}

	quantity, err := decimal.NewFromString(r.URL.Query().Get("quantity"))
	if err != nil || !quantity.IsPositive() {
		writeError(w, r, "quantity must be a positive decimal", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	recursive := r.URL.Query().Get("recursive") == "true"

	result, err := h.svc.ExplodeBOM(r.Context(), bomID, quantity, recursive)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// ── Stock ─────────────────────────────────────────────────────────────────────

// stockLevels handles GET /api/stock.
func (h *Handler) stockLevels(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetStockLevels(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Levels)
}

// receiveStock handles POST /api/stock/receive.
func (h *Handler) receiveStock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductCode   string          `json:"product_code"`
		WarehouseCode string          `json:"warehouse_code"`
		BatchNumber   string          `json:"batch_number"`
		EntryDate     string          `json:"entry_date"`
		Quality       string          `json:"quality"`
		PerformedBy   string          `json:"performed_by"`
		Qty           decimal.Decimal `json:"qty"`
		UnitCost      decimal.Decimal `json:"unit_cost"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	batch, err := h.svc.ReceiveStock(r.Context(), app.ReceiveStockRequest{
		ProductCode:   body.ProductCode,
		WarehouseCode: body.WarehouseCode,
		BatchNumber:   body.BatchNumber,
		EntryDate:     body.EntryDate,
		Quality:       body.Quality,
		PerformedBy:   body.PerformedBy,
		Qty:           body.Qty,
		UnitCost:      body.UnitCost,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, batch)
}

// setBatchQuality handles POST /api/batches/{id}/quality.
func (h *Handler) setBatchQuality(w http.ResponseWriter, r *http.Request) {
	batchID, ok := urlInt(w, r, "id")
	if !ok {
		return
	}

	var body struct {
		Quality     string `json:"quality"`
		PerformedBy string `json:"performed_by"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.svc.SetBatchQuality(r.Context(), batchID, body.Quality, body.PerformedBy); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}
