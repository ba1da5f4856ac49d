package web

import (
	"log"
	"net/http"

	"barpos/internal/app"
	"barpos/internal/core"
	"barpos/internal/redisx"

	"github.com/shopspring/decimal"
)

type lineItemRequest struct {
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func toItemInputs(items []lineItemRequest) []app.LineItemInput {
	inputs := make([]app.LineItemInput, len(items))
	for i, it := range items {
		inputs[i] = app.LineItemInput{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
		}
	}
	return inputs
}

// openOrder handles POST /api/orders.
func (h *Handler) openOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientName string `json:"client_name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.OpenOrder(r.Context(), app.OpenOrderRequest{ClientName: req.ClientName})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	redisx.CacheOrderStatus(r.Context(), h.rdb, result.Order.ID, result.Order.Status)
	writeJSONStatus(w, http.StatusCreated, result.Order)
}

// getOrder handles GET /api/orders/{id}.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// listOpenOrders handles GET /api/orders/open?client=.
func (h *Handler) listOpenOrders(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListOpenOrders(r.Context(), r.URL.Query().Get("client"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Orders)
}

// listClosedOrders handles GET /api/orders/closed?client=&method=&date=.
func (h *Handler) listClosedOrders(w http.ResponseWriter, r *http.Request) {
	q := app.ClosedOrdersQuery{
		ClientFilter: r.URL.Query().Get("client"),
		MethodFilter: r.URL.Query().Get("method"),
		DateFilter:   r.URL.Query().Get("date"),
	}
	result, err := h.svc.ListClosedOrders(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Orders)
}

// addLines handles POST /api/orders/{id}/lines.
func (h *Handler) addLines(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Items []lineItemRequest `json:"items"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.AddLines(r.Context(), id, toItemInputs(req.Items))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// updateLineQuantity handles PUT /api/orders/{id}/lines/{lineID}.
func (h *Handler) updateLineQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := idParam(w, r, "lineID")
	if !ok {
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.UpdateLineQuantity(r.Context(), id, lineID, req.Quantity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// removeLine handles DELETE /api/orders/{id}/lines/{lineID}.
func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := idParam(w, r, "lineID")
	if !ok {
		return
	}

	result, err := h.svc.RemoveLine(r.Context(), id, lineID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// closeOrder handles POST /api/orders/{id}/close.
func (h *Handler) closeOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		PaymentMethod string          `json:"payment_method"`
		AmountPaid    decimal.Decimal `json:"amount_paid"`
		Change        decimal.Decimal `json:"change"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.CloseOrder(r.Context(), app.CloseOrderRequest{
		OrderID:       id,
		PaymentMethod: req.PaymentMethod,
		AmountPaid:    req.AmountPaid,
		Change:        req.Change,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	redisx.CacheOrderStatus(r.Context(), h.rdb, id, core.StatusClosed)
	writeJSON(w, result.Order)
}

// quickSale handles POST /api/quick-sale. A client-supplied request_id makes
// the call idempotent: a retry with the same id returns the original sale
// instead of charging twice.
func (h *Handler) quickSale(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestID     string            `json:"request_id"`
		Items         []lineItemRequest `json:"items"`
		PaymentMethod string            `json:"payment_method"`
		AmountPaid    decimal.Decimal   `json:"amount_paid"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.RequestID != "" {
		orderID, won, err := redisx.ClaimQuickSale(r.Context(), h.rdb, req.RequestID)
		if err != nil {
			// Idempotency is best-effort: a Redis outage must not block sales.
			log.Printf("[REDIS] quick sale claim failed: %v", err)
		} else if !won {
			// A zero stored id means the winning request claimed the key but
			// has not recorded its order yet; that claim must not resolve as
			// an order lookup.
			if orderID == 0 {
				writeError(w, r, "a sale with this request id is still in progress, retry shortly",
					"SALE_IN_FLIGHT", http.StatusConflict)
				return
			}
			result, err := h.svc.GetOrder(r.Context(), orderID)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, result.Order)
			return
		}
	}

	result, err := h.svc.QuickSale(r.Context(), app.QuickSaleRequest{
		Items:         toItemInputs(req.Items),
		PaymentMethod: req.PaymentMethod,
		AmountPaid:    req.AmountPaid,
	})
	if err != nil {
		if req.RequestID != "" {
			redisx.ReleaseQuickSale(r.Context(), h.rdb, req.RequestID)
		}
		writeServiceError(w, r, err)
		return
	}

	if req.RequestID != "" {
		if err := redisx.RecordQuickSale(r.Context(), h.rdb, req.RequestID, result.Order.ID); err != nil {
			log.Printf("[REDIS] quick sale record failed: %v", err)
		}
	}
	redisx.CacheOrderStatus(r.Context(), h.rdb, result.Order.ID, core.StatusClosed)
	writeJSONStatus(w, http.StatusCreated, result.Order)
}

// getReceipt handles GET /api/orders/{id}/receipt, returning the printer-ready
// ticket as plain text.
func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.GetReceipt(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(result.Text)
}
