package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"barpos/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc    app.ApplicationService
	rdb    *redis.Client // nil disables idempotency and status caching
	router chi.Router
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, rdb *redis.Client, allowedOrigins string) http.Handler {
	h := &Handler{svc: svc, rdb: rdb}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))
	r.Use(RequestBodyLimit(1 << 20)) // 1 MB

	// ── Health ────────────────────────────────────────────────────────────────
	r.Get("/api/health", h.health)

	// ── Orders ────────────────────────────────────────────────────────────────
	r.Post("/api/orders", h.openOrder)
	r.Get("/api/orders/open", h.listOpenOrders)
	r.Get("/api/orders/closed", h.listClosedOrders)
	r.Get("/api/orders/{id}", h.getOrder)
	r.Post("/api/orders/{id}/lines", h.addLines)
	r.Put("/api/orders/{id}/lines/{lineID}", h.updateLineQuantity)
	r.Delete("/api/orders/{id}/lines/{lineID}", h.removeLine)
	r.Post("/api/orders/{id}/close", h.closeOrder)
	r.Get("/api/orders/{id}/receipt", h.getReceipt)
	r.Post("/api/quick-sale", h.quickSale)

	// ── Catalog ───────────────────────────────────────────────────────────────
	r.Get("/api/categories", h.listCategories)
	r.Get("/api/categories/{id}/products", h.listProductsByCategory)
	r.Get("/api/products/{id}/variants", h.listVariants)

	// ── Stock ─────────────────────────────────────────────────────────────────
	r.Get("/api/stock", h.stockLevels)
	r.Get("/api/products/{id}/movements", h.stockMovements)

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

// idParam parses a numeric URL parameter, writing HTTP 400 on failure.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, r, "invalid "+name+" parameter", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// decodeJSON decodes the request body into v, writing an error response and
// returning false on failure. Oversized bodies get HTTP 413.
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
