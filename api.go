package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oszuidwest/zwfm-ducker/internal/events"
	"github.com/oszuidwest/zwfm-ducker/internal/server"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseJSON reads and parses JSON from request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	return v, true
}

// handleAPIHealth returns a liveness response with the engine state.
// GET /api/health
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"state":   s.engine.State(),
		"version": Version,
	})
}

// handleAPIStatus returns the full engine status.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

// handleAPIEvents returns a page from the event journal, newest first.
// GET /api/events?limit=50&offset=0&filter=ducking
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	journalPath := s.config.EventsPath()
	if journalPath == "" {
		s.writeError(w, http.StatusServiceUnavailable, "Event journal not configured")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	filter := events.TypeFilter(r.URL.Query().Get("filter"))

	switch filter {
	case events.FilterAll, events.FilterActivity, events.FilterDucking,
		events.FilterStreams, events.FilterSession:
	default:
		s.writeError(w, http.StatusBadRequest, "Unknown filter: "+string(filter))
		return
	}

	page, hasMore, err := events.ReadLast(journalPath, limit, offset, filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to read events: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"events":   page,
		"has_more": hasMore,
	})
}

// handleAPITestS3 verifies S3 credentials by uploading and deleting a test object.
// POST /api/events/test-s3
func (s *Server) handleAPITestS3(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[server.S3TestRequest](s, w, r)
	if !ok {
		return
	}
	if err := server.ValidateStruct(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := events.S3Config{
		Endpoint:        req.Endpoint,
		Bucket:          req.Bucket,
		AccessKeyID:     req.AccessKey,
		SecretAccessKey: req.SecretKey,
	}
	if err := events.TestS3Connection(&cfg); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// queryInt returns a query parameter as int, falling back to def when
// absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
