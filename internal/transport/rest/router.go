package rest

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"letsee/internal/cache"
	"letsee/internal/config"
	"letsee/internal/registry"
	"letsee/internal/repository"
	"letsee/internal/service"
	"letsee/internal/transport/rest/handler"
	"letsee/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	Config    *config.Config
	Registry  *registry.Registry
	Evaluator *service.EvaluatorService
	Cache     cache.SnapshotCache
	Archive   repository.ArchiveRepo
	WSHandler *ws.Handler
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	sessionHandler := handler.NewSessionHandler(c.Registry, c.Evaluator, c.Cache, c.Archive, nil)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.Config.CORSOrigins))

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/sessions/invite", sessionHandler.CreateInvite).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/invite/{code}/join", sessionHandler.JoinInvite).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/random", sessionHandler.JoinRandom).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{sessionId}", sessionHandler.Get).Methods("GET", "OPTIONS")
	v1.HandleFunc("/sessions/{sessionId}/topics", sessionHandler.GenerateTopics).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{sessionId}/topic", sessionHandler.SelectTopic).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{sessionId}/finish", sessionHandler.Finish).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{sessionId}/export", sessionHandler.Export).Methods("GET", "OPTIONS")

	// WebSocket route
	v1.Handle("/ws", c.WSHandler).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}

func corsMiddleware(origins []string) mux.MiddlewareFunc {
	allowed := strings.Join(origins, ", ")
	if allowed == "" {
		allowed = "*"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
