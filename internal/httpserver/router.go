// v0
// internal/httpserver/router.go
package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// APIPrefix is the alias under which every route is also served.
const APIPrefix = "/api"

type route struct {
	path    string
	method  string
	handler http.HandlerFunc
}

func (h *Handlers) routes() []route {
	return []route{
		{path: "/analysis/compare", method: http.MethodGet, handler: h.compare},
		{path: "/analysis/stats", method: http.MethodGet, handler: h.stats},
		{path: "/analysis/self", method: http.MethodGet, handler: h.selfCompare},
		{path: "/risk", method: http.MethodGet, handler: h.riskFromJournal},
		{path: "/risk", method: http.MethodPost, handler: h.riskFromBody},
		{path: "/risk/profiles", method: http.MethodGet, handler: h.profiles},
		{path: "/symptoms", method: http.MethodGet, handler: h.listSymptoms},
		{path: "/symptoms", method: http.MethodPost, handler: h.addSymptom},
		{path: "/foods", method: http.MethodGet, handler: h.listFoods},
		{path: "/foods", method: http.MethodPost, handler: h.addFood},
		{path: "/foods/{id}", method: http.MethodDelete, handler: h.deleteFood},
	}
}

// NewRouter wires every route at the root and again under APIPrefix.
func NewRouter(h *Handlers, health *HealthState) *mux.Router {
	root := mux.NewRouter()
	api := root.PathPrefix(APIPrefix).Subrouter()
	for _, r := range []*mux.Router{api, root} {
		r.NotFoundHandler = http.HandlerFunc(notFound)
		r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
		for _, rt := range h.routes() {
			r.Handle(rt.path, h.Metrics.WrapHandler(rt.path, rt.handler)).Methods(rt.method)
		}
		r.Handle("/health", healthHandler(h, health)).Methods(http.MethodGet)
		r.Handle("/health/live", healthLiveHandler()).Methods(http.MethodGet)
		r.Handle("/health/ready", healthReadyHandler(health)).Methods(http.MethodGet)
	}
	root.Handle("/metrics", h.Metrics.Handler()).Methods(http.MethodGet)
	return root
}

// NewHandler returns the router wrapped with access logging, CORS,
// compression and panic recovery.
func NewHandler(h *Handlers, health *HealthState, logger *slog.Logger, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Auth-Token"},
		MaxAge:         600,
	})
	var handler http.Handler = NewRouter(h, health)
	handler = c.Handler(handler)
	handler = handlers.CompressHandler(handler)
	handler = WrapWithLogging(logger, handler)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: logger}),
		handlers.PrintRecoveryStack(true),
	)(handler)
}

type healthBody struct {
	Status      string `json:"status"`
	Ready       bool   `json:"ready"`
	StatsLoaded bool   `json:"statsLoaded"`
}

func healthHandler(h *Handlers, health *HealthState) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthBody{Status: "ok", Ready: health.Ready(), StatsLoaded: h.Comparator.Available()})
	})
}

func healthLiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func healthReadyHandler(health *HealthState) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !health.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Route not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
