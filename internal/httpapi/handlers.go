package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aarel/market-watch/internal/config"
	"github.com/aarel/market-watch/internal/universe"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleStatus returns the composite account/positions/bot/agent snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	coord := s.appState.Coordinator()
	writeJSON(w, http.StatusOK, coord.Status(r.Context()))
}

// handleLogs returns the most recent human-readable alert entries.
// GET /api/logs?count=50
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	count := 50
	if raw := r.URL.Query().Get("count"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			count = n
		}
	}
	coord := s.appState.Coordinator()
	writeJSON(w, http.StatusOK, map[string]any{"logs": coord.GetLogs(count)})
}

// handleGetConfig returns the active universe's current runtime config.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	coord := s.appState.Coordinator()
	writeJSON(w, http.StatusOK, coord.RuntimeConfig())
}

// handlePutConfig replaces the active universe's runtime config wholesale.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg config.RuntimeConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid config body: "+err.Error())
		return
	}
	coord := s.appState.Coordinator()
	if err := coord.UpdateConfig(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, coord.RuntimeConfig())
}

// manualTradeRequest mirrors the operator-initiated trade contract: either
// Amount (notional) or Qty must be set, never both.
type manualTradeRequest struct {
	Symbol string   `json:"symbol"`
	Action string   `json:"action"` // "buy" or "sell"
	Amount *float64 `json:"amount"`
	Qty    *float64 `json:"qty"`
}

// handleManualTrade submits an operator-initiated trade outside the
// signal/risk pipeline.
func (s *Server) handleManualTrade(w http.ResponseWriter, r *http.Request) {
	var req manualTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade body: "+err.Error())
		return
	}
	if req.Symbol == "" || (req.Action != "buy" && req.Action != "sell") {
		writeError(w, http.StatusBadRequest, "symbol and action (buy|sell) are required")
		return
	}

	coord := s.appState.Coordinator()
	result, err := coord.ManualTrade(r.Context(), req.Symbol, req.Action, req.Amount, req.Qty)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleResetCircuitBreaker clears RiskAgent's circuit breaker for the
// active universe.
func (s *Server) handleResetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	coord := s.appState.Coordinator()
	writeJSON(w, http.StatusOK, coord.ResetCircuitBreaker())
}

// universeTransitionRequest describes a requested destructive universe
// transition.
type universeTransitionRequest struct {
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// handleUniverseTransition tears down and rebuilds every universe-bound
// component against a new universe. This is the one endpoint that can
// change which Coordinator subsequent requests are routed to.
func (s *Server) handleUniverseTransition(w http.ResponseWriter, r *http.Request) {
	var req universeTransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid transition body: "+err.Error())
		return
	}
	to, err := universe.ParseUniverse(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to.RequiresExplicitConfirmation() && req.Reason == "" {
		writeError(w, http.StatusBadRequest, "a reason is required to transition into a real-capital universe")
		return
	}

	cfg := s.appState.Coordinator().RuntimeConfig()
	if err := s.appState.Transition(to, req.Reason, cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"universe": string(to)})
}
