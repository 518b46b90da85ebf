// Package httpapi exposes the memory engine over a small JSON API.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dialogkit/convmem/core"
	"github.com/dialogkit/convmem/history"
	"github.com/dialogkit/convmem/memory"
	"github.com/dialogkit/convmem/metrics"
)

// Server serves the memory API. Request counters and latency come from the
// engine itself; the server only exposes the scrape endpoint.
type Server struct {
	engine *memory.Engine
}

// New creates a server over the given engine.
func New(engine *memory.Engine) *Server {
	return &Server{engine: engine}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metrics.Handler().ServeHTTP(w, req)
	})

	r.Post("/v1/turns", s.handleStoreTurn)
	r.Get("/v1/search", s.handleSearch)
	r.Get("/v1/clients/{id}/memory", s.handleClientMemory)
	r.Get("/v1/clients/{id}/history", s.handleClientHistory)
	r.Get("/v1/clients/{id}/profile", s.handleClientProfile)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type storeTurnRequest struct {
	ClientID  string            `json:"client_id"`
	UserText  string            `json:"user_text"`
	BotText   string            `json:"bot_text"`
	Intent    string            `json:"intent"`
	Extracted map[string]string `json:"extracted,omitempty"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
}

type storeTurnResponse struct {
	Stored bool `json:"stored"`
}

func (s *Server) handleStoreTurn(w http.ResponseWriter, r *http.Request) {
	var req storeTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserText) == "" && strings.TrimSpace(req.BotText) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user_text or bot_text is required")
		return
	}

	turn := core.ConversationTurn{
		ClientID:  req.ClientID,
		UserText:  req.UserText,
		BotText:   req.BotText,
		Intent:    req.Intent,
		Extracted: extractedOf(req.Extracted),
	}
	if req.Timestamp != nil {
		turn.Timestamp = *req.Timestamp
	}

	stored := s.engine.StoreTurn(r.Context(), turn)
	respondJSON(w, http.StatusOK, storeTurnResponse{Stored: stored})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query parameter q is required")
		return
	}

	filters := core.SearchFilters{
		Intent: strings.TrimSpace(q.Get("intent")),
		Device: strings.TrimSpace(q.Get("device")),
	}
	var err error
	if filters.DateFrom, err = parseDate(q.Get("from")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "from must be RFC 3339")
		return
	}
	if filters.DateTo, err = parseDate(q.Get("to")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "to must be RFC 3339")
		return
	}

	resp := s.engine.Search(r.Context(), query, strings.TrimSpace(q.Get("client_id")), filters)
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClientMemory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_client_id", "missing client id")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), 0, 200)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.engine.GetClientMemory(r.Context(), id, limit))
}

func (s *Server) handleClientHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_client_id", "missing client id")
		return
	}
	opts := history.Options{Query: strings.TrimSpace(r.URL.Query().Get("q"))}
	limit, err := parseLimit(r.URL.Query().Get("limit"), 0, 500)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	opts.Limit = limit

	report, err := s.engine.SearchClientHistory(r.Context(), id, opts)
	if err != nil {
		respondError(w, http.StatusBadGateway, "history_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleClientProfile(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_client_id", "missing client id")
		return
	}
	profile, err := s.engine.GetClientProfile(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusBadGateway, "profile_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func extractedOf(m map[string]string) core.Extracted {
	return core.Extracted{
		Device:   m["device"],
		Service:  m["service"],
		Price:    m["price"],
		UserName: m["user_name"],
	}
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseLimit(raw string, def, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
