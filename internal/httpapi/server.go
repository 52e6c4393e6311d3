// Package httpapi implements the HTTP surface contract of spec §6.1: the
// screener run endpoint, alert subscription CRUD, and a market-data
// lookup, all behind gorilla/mux the way the teacher's own web server
// (hedge-fund-investor-source/web/server.go) routes its API subrouter.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"screenforge/internal/catalog"
	"screenforge/internal/compiler"
	"screenforge/internal/screenql"
	"screenforge/internal/store"
	"screenforge/internal/translator"
	"screenforge/internal/validator"
)

// DataStore is the subset of internal/datastore.DataStore the HTTP surface
// needs.
type DataStore interface {
	RunScreen(ctx context.Context, sqlText string, args []any) ([]map[string]any, error)
	CreateAlert(ctx context.Context, a store.AlertSubscription) (string, error)
	GetAlert(ctx context.Context, id string) (*store.AlertSubscription, error)
	ListAlerts(ctx context.Context, userID string) ([]store.AlertSubscription, error)
	UpdateAlertActive(ctx context.Context, id string, active bool) error
	DeleteAlert(ctx context.Context, id string) error
	Quote(ctx context.Context, ticker string) (*store.Quote, error)
	DistinctTickers(ctx context.Context) ([]string, error)
}

// Server wires the Translator/Validator/Compiler pipeline and a DataStore
// to an HTTP router.
type Server struct {
	router *mux.Router
	cat    *catalog.Catalog
	trans  *translator.Translator
	val    *validator.Validator
	comp   *compiler.Compiler
	store  DataStore
}

// New builds a Server and registers every route (spec §6.1).
func New(cat *catalog.Catalog, trans *translator.Translator, val *validator.Validator, comp *compiler.Compiler, ds DataStore) *Server {
	s := &Server{
		router: mux.NewRouter(),
		cat:    cat,
		trans:  trans,
		val:    val,
		comp:   comp,
		store:  ds,
	}
	s.setupRoutes()
	return s
}

// Router exposes the underlying mux.Router, e.g. for http.Server.Handler.
func (s *Server) Router() http.Handler { return s.requestIDMiddleware(s.router) }

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	api.HandleFunc("/screen", s.handleScreen).Methods("POST")

	api.HandleFunc("/alerts", s.handleListAlerts).Methods("GET")
	api.HandleFunc("/alerts", s.handleCreateAlert).Methods("POST")
	api.HandleFunc("/alerts/{id}", s.handleGetAlert).Methods("GET")
	api.HandleFunc("/alerts/{id}", s.handleUpdateAlert).Methods("PATCH")
	api.HandleFunc("/alerts/{id}", s.handleDeleteAlert).Methods("DELETE")

	api.HandleFunc("/market/quote/{ticker}", s.handleQuote).Methods("GET")
	api.HandleFunc("/market/tickers", s.handleTickers).Methods("GET")
}

// requestIDMiddleware propagates X-Request-ID/X-Session-ID per spec §6.1,
// minting a request ID when the client did not supply one. Every response
// carries it in the X-Request-ID header; the screener's result and
// validation-failure bodies also echo it in their metadata.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		sessionID := r.Header.Get("X-Session-ID")

		w.Header().Set("X-Request-ID", reqID)
		if sessionID != "" {
			w.Header().Set("X-Session-ID", sessionID)
		}

		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		ctx = context.WithValue(ctx, ctxKeySessionID, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeySessionID
)

func requestMetadata(ctx context.Context) map[string]any {
	meta := map[string]any{}
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok && v != "" {
		meta["requestId"] = v
	}
	if v, ok := ctx.Value(ctxKeySessionID).(string); ok && v != "" {
		meta["sessionId"] = v
	}
	return meta
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// screenRequest accepts either a free-form query or a pre-built DSL tree,
// per spec §6.1's "Screener run" row.
type screenRequest struct {
	Query string          `json:"query,omitempty"`
	DSL   json.RawMessage `json:"dsl,omitempty"`
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	var req screenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, "UNPARSEABLE", "request body is not valid JSON", http.StatusBadRequest)
		return
	}

	var rule *screenql.Rule
	var err error
	switch {
	case len(req.DSL) > 0:
		rule, err = screenql.ParseRule(req.DSL)
		if err != nil {
			s.respondError(w, "UNPARSEABLE", err.Error(), http.StatusBadRequest)
			return
		}
	case req.Query != "":
		rule, err = s.trans.Translate(r.Context(), req.Query)
		if err != nil {
			s.respondError(w, "UNPARSEABLE", err.Error(), http.StatusBadRequest)
			return
		}
	default:
		s.respondError(w, "UNPARSEABLE", "request must supply either query or dsl", http.StatusBadRequest)
		return
	}

	result := s.val.Validate(rule)
	if !result.OK() {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success":  false,
			"error":    "VALIDATION",
			"errors":   result.Errors,
			"warnings": result.Warnings,
			"metadata": requestMetadata(r.Context()),
		})
		return
	}

	compiled, err := s.comp.Compile(rule)
	if err != nil {
		s.respondError(w, "VALIDATION", err.Error(), http.StatusBadRequest)
		return
	}

	started := time.Now()
	rows, err := s.store.RunScreen(r.Context(), compiled.SQL, compiled.Args)
	if err != nil {
		log.Error().Err(err).Msg("httpapi: screen execution failed")
		// Never surface the store/driver error to the client: it can carry
		// SQL text, schema names, or column existence hints (spec §7
		// ExecutionError: "never leak SQL or schema to clients").
		s.respondError(w, "EXECUTION", "screen execution failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"results": rows,
		"count":   len(rows),
		"execution": map[string]any{
			"time": time.Since(started).String(),
		},
		"query": map[string]any{
			"original": req.Query,
			"dsl":      rule,
		},
		"metadata": requestMetadata(r.Context()),
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.respondError(w, "BAD_REQUEST", "user_id query parameter is required", http.StatusBadRequest)
		return
	}
	alerts, err := s.store.ListAlerts(r.Context(), userID)
	if err != nil {
		s.respondError(w, "EXECUTION", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": alerts})
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var a store.AlertSubscription
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		s.respondError(w, "BAD_REQUEST", "invalid alert subscription body", http.StatusBadRequest)
		return
	}
	a.Active = true
	id, err := s.store.CreateAlert(r.Context(), a)
	if err != nil {
		s.respondError(w, "EXECUTION", err.Error(), http.StatusInternalServerError)
		return
	}
	a.ID = id
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": a})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := s.store.GetAlert(r.Context(), id)
	if err != nil {
		s.respondError(w, "NOT_FOUND", err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": a})
}

type updateAlertRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req updateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		s.respondError(w, "BAD_REQUEST", "body must set active", http.StatusBadRequest)
		return
	}
	if err := s.store.UpdateAlertActive(r.Context(), id, *req.Active); err != nil {
		s.respondError(w, "NOT_FOUND", err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": id, "active": *req.Active}})
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.DeleteAlert(r.Context(), id); err != nil {
		s.respondError(w, "NOT_FOUND", err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": id}})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	q, err := s.store.Quote(r.Context(), ticker)
	if err != nil {
		s.respondError(w, "NOT_FOUND", err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": q})
}

func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := s.store.DistinctTickers(r.Context())
	if err != nil {
		s.respondError(w, "EXECUTION", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": tickers})
}

func (s *Server) respondError(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   code,
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("httpapi: failed to encode response")
	}
}
