package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/partforge/partforge/pkg/agent"
	"github.com/partforge/partforge/pkg/apperr"
	"github.com/partforge/partforge/pkg/history"
	"github.com/partforge/partforge/pkg/onshape"
)

type createPartRequest struct {
	Description string `json:"description"`
}

type statusResponse struct {
	SessionState agent.Snapshot `json:"sessionState"`
	Busy         bool           `json:"busy"`
}

type toolsResponse struct {
	Tools []agent.ToolSummary `json:"tools"`
}

type documentsResponse struct {
	Documents []onshape.Document `json:"documents"`
}

type historyResponse struct {
	Runs []history.Run `json:"runs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleCreatePart runs the agent against the caller's description.
func (s *Server) handleCreatePart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	release, ok := s.track(w)
	if !ok {
		return
	}
	defer release()

	var req createPartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	startTime := time.Now()
	result, err := s.config.Service.CreatePart(r.Context(), req.Description)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("ip", s.clientIP(r)).
			Dur("duration", duration).
			Msg("Part creation request failed")
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	s.logger.Info().
		Str("ip", s.clientIP(r)).
		Str("runId", result.RunID).
		Bool("success", result.Success).
		Dur("duration", duration).
		Msg("Part creation request completed")

	s.writeJSON(w, http.StatusOK, result)
}

// handleStatus reports the session snapshot and whether a run is active.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	release, ok := s.track(w)
	if !ok {
		return
	}
	defer release()

	s.writeJSON(w, http.StatusOK, statusResponse{
		SessionState: s.config.Service.Status(),
		Busy:         s.config.Service.Busy(),
	})
}

// handleReset clears the session.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	release, ok := s.track(w)
	if !ok {
		return
	}
	defer release()

	s.config.Service.Reset()
	s.logger.Info().Str("ip", s.clientIP(r)).Msg("Session reset requested")

	s.writeJSON(w, http.StatusOK, statusResponse{
		SessionState: s.config.Service.Status(),
		Busy:         s.config.Service.Busy(),
	})
}

// handleTools lists the tool catalog.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	release, ok := s.track(w)
	if !ok {
		return
	}
	defer release()

	s.writeJSON(w, http.StatusOK, toolsResponse{Tools: s.config.Service.Tools()})
}

// handleDocuments lists recent platform documents.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	release, ok := s.track(w)
	if !ok {
		return
	}
	defer release()

	if s.config.CAD == nil {
		s.writeError(w, http.StatusServiceUnavailable, "document listing is not configured")
		return
	}

	docs, err := s.config.CAD.ListDocuments(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list documents")
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, documentsResponse{Documents: docs})
}

// handleHistory lists recent runs from the history store.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	release, ok := s.track(w)
	if !ok {
		return
	}
	defer release()

	if s.config.History == nil {
		s.writeJSON(w, http.StatusOK, historyResponse{Runs: []history.Run{}})
		return
	}

	runs, err := s.config.History.RecentRuns(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list run history")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}

	s.writeJSON(w, http.StatusOK, historyResponse{Runs: runs})
}

// handleEvents upgrades to the websocket run event stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	s.stream.HandleUpgrade(w, r)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps service errors to HTTP status codes. A busy session is
// a conflict, bad input is the caller's fault, upstream failures are a
// bad gateway.
func statusFor(err error) int {
	if errors.Is(err, agent.ErrRunInProgress) {
		return http.StatusConflict
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindTransport, apperr.KindPlatform, apperr.KindModelProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// clientIP extracts the caller address, preferring proxy headers.
func (s *Server) clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
