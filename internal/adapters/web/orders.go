package web

import (
	"net/http"

	"mrp-engine/internal/app"
	"mrp-engine/internal/core"

	"github.com/shopspring/decimal"
)

// ── Availability and planning ─────────────────────────────────────────────────

// analyzeAvailability handles POST /api/availability/analyze.
func (h *Handler) analyzeAvailability(w http.ResponseWriter, r *http.Request) {
	var req core.AvailabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.AnalyzeStockAvailability(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

type nestedPlanBody struct {
	ProductCode string          `json:"product_code"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// planNested handles POST /api/planning/nested. It previews the dependency
// tree without creating any orders.
func (h *Handler) planNested(w http.ResponseWriter, r *http.Request) {
	var body nestedPlanBody
	if !decodeJSON(w, r, &body) {
		return
	}

	plan, err := h.svc.PlanNestedProduction(r.Context(), body.ProductCode, body.Quantity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, plan)
}

// materializeNested handles POST /api/planning/nested/materialize.
func (h *Handler) materializeNested(w http.ResponseWriter, r *http.Request) {
	var body nestedPlanBody
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := h.svc.CreateNestedProductionPlan(r.Context(), body.ProductCode, body.Quantity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// ── Production orders ─────────────────────────────────────────────────────────

// listOrders handles GET /api/orders?status=RELEASED.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	var statusPtr *string
	if status := r.URL.Query().Get("status"); status != "" {
		statusPtr = &status
	}

	result, err := h.svc.ListOrders(r.Context(), statusPtr)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Orders)
}

// createOrder handles POST /api/orders.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductCode   string          `json:"product_code"`
		WarehouseCode string          `json:"warehouse_code"`
		Priority      int             `json:"priority"`
		Notes         string          `json:"notes"`
		Quantity      decimal.Decimal `json:"quantity"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := h.svc.CreateProductionOrder(r.Context(), app.CreateOrderRequest{
		ProductCode:   body.ProductCode,
		WarehouseCode: body.WarehouseCode,
		Priority:      body.Priority,
		Notes:         body.Notes,
		Quantity:      body.Quantity,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// getOrder handles GET /api/orders/{ref}.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetOrder(r.Context(), orderRef(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// orderMovements handles GET /api/orders/{ref}/movements.
func (h *Handler) orderMovements(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetOrderMovements(r.Context(), orderRef(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Movements)
}

// releaseOrder handles POST /api/orders/{ref}/release.
func (h *Handler) releaseOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ReleaseOrder(r.Context(), orderRef(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// startOrder handles POST /api/orders/{ref}/start.
func (h *Handler) startOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.StartOrder(r.Context(), orderRef(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// holdOrder handles POST /api/orders/{ref}/hold.
func (h *Handler) holdOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.HoldOrder(r.Context(), orderRef(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// resumeOrder handles POST /api/orders/{ref}/resume.
func (h *Handler) resumeOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ResumeOrder(r.Context(), orderRef(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// completeOrder handles POST /api/orders/{ref}/complete.
func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CompletedQty decimal.Decimal `json:"completed_qty"`
		ScrappedQty  decimal.Decimal `json:"scrapped_qty"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := h.svc.CompleteOrder(r.Context(), orderRef(r), app.CompleteOrderRequest{
		CompletedQty: body.CompletedQty,
		ScrappedQty:  body.ScrappedQty,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// cancelOrder handles POST /api/orders/{ref}/cancel.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.CancelOrder(r.Context(), orderRef(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// reserveStock handles POST /api/orders/{ref}/reserve.
func (h *Handler) reserveStock(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ReserveStock(r.Context(), orderRef(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// releaseStock handles POST /api/orders/{ref}/release-stock.
func (h *Handler) releaseStock(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ReleaseStockReservations(r.Context(), orderRef(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// consumeStock handles POST /api/orders/{ref}/consume.
func (h *Handler) consumeStock(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ConsumeStock(r.Context(), orderRef(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// createFinishedGoods handles POST /api/orders/{ref}/finished-goods.
func (h *Handler) createFinishedGoods(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.CreateFinishedGoods(r.Context(), orderRef(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// adjustQuantity handles POST /api/orders/{ref}/quantity.
func (h *Handler) adjustQuantity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NewQuantity decimal.Decimal `json:"new_quantity"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := h.svc.AdjustOrderQuantity(r.Context(), orderRef(r), body.NewQuantity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// ── Maintenance ───────────────────────────────────────────────────────────────

// syncReservations handles POST /api/reservations/sync.
func (h *Handler) syncReservations(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.ValidateAndFixReservationSync(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}
