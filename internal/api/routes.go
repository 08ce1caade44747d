package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures the read-only status API
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// Status routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/position", handler.GetPosition).Methods("GET")
	api.HandleFunc("/orders", handler.GetOrders).Methods("GET")
	api.HandleFunc("/cycles", handler.GetCycles).Methods("GET")

	return r
}
