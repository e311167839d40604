package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// RetryOrder is the operator endpoint for reprocessing an order's failed
// items. It is mounted under /internal and expected to sit behind the
// deployment's network boundary.
func (h *Handlers) RetryOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	if err := h.fulfillment.RetryFailedItems(ctx, orderID); err != nil {
		logger.Error("order retry failed", "order_id", orderID, "error", err)
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":   "retried",
		"order_id": orderID.String(),
	}); err != nil {
		logger.Error("failed to encode retry response", "error", err)
	}
}
