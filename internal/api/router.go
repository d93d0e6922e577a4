package api

import (
	"github.com/gorilla/mux"

	"github.com/priceline/replacement-pricer/server/internal/api/items"
	"github.com/priceline/replacement-pricer/server/internal/api/jobs"
	"github.com/priceline/replacement-pricer/server/internal/api/recovery"
)

// NewRouter assembles the HTTP surface (spec §6). Handlers are constructed
// by the composition root and passed in, wired the way the teacher's
// cmd/memory-service/run.go wires its handlers into api.NewRouter.
func NewRouter(healthHandler *HealthHandler, jobsHandler *jobs.Handler, itemsHandler *items.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware)

	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")

	router.HandleFunc("/api/jobs", jobsHandler.CreateJob).Methods("POST")
	router.HandleFunc("/api/jobs/{jobId}", jobsHandler.GetJob).Methods("GET")
	router.HandleFunc("/api/jobs/{jobId}/transition", jobsHandler.Transition).Methods("POST")
	router.HandleFunc("/api/jobs/{jobId}/kickoff", jobsHandler.Kickoff).Methods("POST")

	router.HandleFunc("/api/items/pending", itemsHandler.ListPending).Methods("GET")
	router.HandleFunc("/api/jobs/{jobId}/items", itemsHandler.List).Methods("GET")
	router.HandleFunc("/api/jobs/{jobId}/reprocess", itemsHandler.Reprocess).Methods("POST")
	router.HandleFunc("/api/jobs/{jobId}/export", itemsHandler.Export).Methods("GET")

	return router
}
