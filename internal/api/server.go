// ABOUTME: HTTP/JSON transport over the till datastore
// ABOUTME: Routes table CRUD, change feeds and pruning; optional JWT auth and idempotent creates

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/2389/till/internal/auth"
	"github.com/2389/till/internal/dedupe"
	"github.com/2389/till/internal/store"
)

// maxBodyBytes bounds request bodies; records are small.
const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	// Verifier enables bearer auth on /api routes when non-nil.
	Verifier auth.TokenVerifier

	IdempotencyTTL     time.Duration
	IdempotencyMaxKeys int

	Logger *slog.Logger
}

// Server serves the datastore over HTTP.
type Server struct {
	store   *store.Store
	logger  *slog.Logger
	replays *dedupe.Cache[replay]
	router  *mux.Router
}

// replay is a stored create response for an Idempotency-Key.
type replay struct {
	status int
	body   []byte
}

// New builds the router. Call Close to stop the idempotency cache sweeper.
func New(st *store.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")

	sweep := opts.IdempotencyTTL
	if sweep > time.Minute {
		sweep = time.Minute
	}

	s := &Server{
		store:   st,
		logger:  logger,
		replays: dedupe.New[replay](opts.IdempotencyTTL, opts.IdempotencyMaxKeys, sweep),
	}

	r := mux.NewRouter()
	r.Use(accessLog(logger))
	r.Methods(http.MethodGet).Path("/health").HandlerFunc(s.handleHealth)

	api := r.PathPrefix("/api").Subrouter()
	if opts.Verifier != nil {
		api.Use(auth.Middleware(opts.Verifier, logger))
	}

	api.Methods(http.MethodGet).Path("/changes").HandlerFunc(s.handleChanges)
	api.Methods(http.MethodPost).Path("/changes/prune").HandlerFunc(s.handlePrune)

	// The shop singleton is addressed without an id
	api.Methods(http.MethodPatch).Path("/tables/shop").HandlerFunc(s.handleUpdate)
	api.Methods(http.MethodDelete).Path("/tables/shop").HandlerFunc(s.handleDelete)

	api.Methods(http.MethodGet).Path("/tables/{table}").HandlerFunc(s.handleGet)
	api.Methods(http.MethodPost).Path("/tables/{table}").HandlerFunc(s.handleCreate)
	api.Methods(http.MethodPatch).Path("/tables/{table}/{id}").HandlerFunc(s.handleUpdate)
	api.Methods(http.MethodDelete).Path("/tables/{table}/{id}").HandlerFunc(s.handleDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sendJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases background resources. The store is owned by the caller.
func (s *Server) Close() {
	s.replays.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sendJSON encodes v as the response body.
func sendJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		sendJSONError(w, http.StatusInternalServerError, "encoding response failed")
		return
	}
	writeBody(w, status, body)
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
