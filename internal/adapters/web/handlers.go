package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"mrp-engine/internal/app"

	"github.com/go-chi/chi/v5"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc    app.ApplicationService
	router chi.Router
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins string) http.Handler {
	h := &Handler{svc: svc}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))

	// ── Health ────────────────────────────────────────────────────────────────
	r.Get("/api/health", h.health)

	// All JSON endpoints: 1 MB body limit to prevent unbounded request abuse.
	r.Group(func(r chi.Router) {
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		// ── Catalog ───────────────────────────────────────────────────────────
		r.Get("/api/products", h.listProducts)
		r.Post("/api/products", h.createProduct)
		r.Get("/api/products/{code}", h.getProduct)
		r.Get("/api/products/{code}/batches", h.getBatches)
		r.Get("/api/warehouses", h.listWarehouses)
		r.Post("/api/warehouses", h.createWarehouse)
		r.Post("/api/boms", h.createBOM)
		r.Get("/api/boms/{id}", h.getBOM)
		r.Post("/api/boms/{id}/activate", h.activateBOM)
		r.Get("/api/boms/{id}/explosion", h.explodeBOM)

		// ── Stock ─────────────────────────────────────────────────────────────
		r.Get("/api/stock", h.stockLevels)
		r.Post("/api/stock/receive", h.receiveStock)
		r.Post("/api/batches/{id}/quality", h.setBatchQuality)

		// ── Availability and planning ─────────────────────────────────────────
		r.Post("/api/availability/analyze", h.analyzeAvailability)
		r.Post("/api/planning/nested", h.planNested)
		r.Post("/api/planning/nested/materialize", h.materializeNested)

		// ── Production orders ─────────────────────────────────────────────────
		r.Get("/api/orders", h.listOrders)
		r.Post("/api/orders", h.createOrder)
		r.Get("/api/orders/{ref}", h.getOrder)
		r.Get("/api/orders/{ref}/movements", h.orderMovements)
		r.Post("/api/orders/{ref}/release", h.releaseOrder)
		r.Post("/api/orders/{ref}/start", h.startOrder)
		r.Post("/api/orders/{ref}/hold", h.holdOrder)
		r.Post("/api/orders/{ref}/resume", h.resumeOrder)
		r.Post("/api/orders/{ref}/complete", h.completeOrder)
		r.Post("/api/orders/{ref}/cancel", h.cancelOrder)
		r.Post("/api/orders/{ref}/reserve", h.reserveStock)
		r.Post("/api/orders/{ref}/release-stock", h.releaseStock)
		r.Post("/api/orders/{ref}/consume", h.consumeStock)
		r.Post("/api/orders/{ref}/finished-goods", h.createFinishedGoods)
		r.Post("/api/orders/{ref}/quantity", h.adjustQuantity)

		// ── Maintenance ───────────────────────────────────────────────────────
		r.Post("/api/reservations/sync", h.syncReservations)

		// ── AI ────────────────────────────────────────────────────────────────
		r.Post("/api/ai/plan", h.interpretPlanningRequest)
	})

	h.router = r
	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// orderRef extracts the {ref} URL parameter (numeric ID or order number).
func orderRef(r *http.Request) string {
	return chi.URLParam(r, "ref")
}

// urlInt extracts a numeric URL parameter, writing a 400 on failure.
func urlInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, "invalid "+name+" parameter", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

// decodeJSON decodes the request body into v and returns false + writes an
// appropriate error response on failure. Returns HTTP 413 when the body
// exceeds the size limit set by RequestBodyLimit middleware; HTTP 400 for all
// other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
