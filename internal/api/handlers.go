package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/database"
)

const defaultListLimit = 50

// Handler holds dependencies for the read-only status endpoints
type Handler struct {
	db     *database.DB
	symbol string
}

// NewHandler creates a new Handler for one traded symbol
func NewHandler(db *database.DB, symbol string) *Handler {
	return &Handler{
		db:     db,
		symbol: symbol,
	}
}

// GetPosition handles GET /api/v1/position
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	position, err := h.db.GetPositionBySymbol(h.symbol)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if position == nil {
		http.Error(w, "no position yet", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, position)
}

// GetOrders handles GET /api/v1/orders?limit=N
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	orders, err := h.db.GetOrdersBySymbol(h.symbol, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, orders)
}

// GetCycles handles GET /api/v1/cycles
func (h *Handler) GetCycles(w http.ResponseWriter, r *http.Request) {
	histories, err := h.db.GetCycleHistories(h.symbol, defaultListLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, histories)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
