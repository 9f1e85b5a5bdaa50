// Package api provides the HTTP API for observing the cell simulation.
// GET endpoints are public (read-only observation).
// POST endpoints that change the engine require a bearer token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/burzen-core/internal/archetype"
	"github.com/talgya/burzen-core/internal/cells"
	"github.com/talgya/burzen-core/internal/codex"
	"github.com/talgya/burzen-core/internal/engine"
	"github.com/talgya/burzen-core/internal/persistence"
)

// Server serves simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // Optional; token history is unavailable without it
	Hub      *Hub            // Optional; streaming is disabled without it
	RunID    string
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	started time.Time
	limiter *RateLimiter
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}

	// Decoding is cheap but unauthenticated; keep it bounded per client.
	if s.limiter == nil {
		s.limiter = NewRateLimiter(120, time.Minute)
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/eigenstate", s.handleEigenstate)
	mux.HandleFunc("/api/v1/delta", s.handleDelta)
	mux.HandleFunc("/api/v1/cells", s.handleCells)
	mux.HandleFunc("/api/v1/tokens", s.handleTokens)
	mux.HandleFunc("/api/v1/verify", RateLimitMiddleware(s.limiter, s.handleVerify))

	// Websocket token feed.
	if s.Hub != nil {
		mux.Handle("/api/v1/stream", s.Hub)
	}

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	handler := s.Handler()
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "stream", s.Hub != nil)

	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no BURZEN_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Status()
	status := map[string]any{
		"name":       "burzen",
		"run_id":     s.RunID,
		"tick":       st.Tick,
		"cells":      st.Cells,
		"dt":         st.DT,
		"speed":      s.Eng.Speed(),
		"running":    s.Eng.Running(),
		"steps":      humanize.Comma(int64(s.Sim.Steps())),
		"started":    humanize.Time(s.started),
		"token_tick": st.TokenTick,
		"unstable":   st.Instability.Unstable,
	}
	if s.Hub != nil {
		status["stream_clients"] = s.Hub.Clients()
	}
	writeJSON(w, status)
}

func (s *Server) handleEigenstate(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Status()
	writeJSON(w, map[string]any{
		"tick":       st.TokenTick,
		"eigenstate": st.Eigenstate,
		"token":      st.Token,
	})
}

func (s *Server) handleDelta(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Status()
	writeJSON(w, map[string]any{
		"tick":        st.Tick,
		"delta":       st.Delta,
		"instability": st.Instability,
	})
}

func (s *Server) handleCells(w http.ResponseWriter, r *http.Request) {
	type cellEntry struct {
		cells.Cell
		ArchetypeName string `json:"archetype_name"`
		Band          string `json:"band"`
	}

	all := s.Sim.Cells()
	result := make([]cellEntry, 0, len(all))
	for _, c := range all {
		theta := archetype.Lookup(c.Archetype).Theta
		result = append(result, cellEntry{
			Cell:          c,
			ArchetypeName: c.Archetype.String(),
			Band:          cells.ThermalBand(c.Heat, theta).String(),
		})
	}
	writeJSON(w, result)
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "token journal not available", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	records, err := s.DB.RecentTokens(limit)
	if err != nil {
		slog.Error("token query failed", "error", err)
		http.Error(w, "token query failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []persistence.TokenRecord{}
	}
	writeJSON(w, records)
}

// handleVerify decodes a token supplied as {"token": "..."} or as a raw body.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	token := strings.TrimSpace(string(body))
	if strings.HasPrefix(token, "{") {
		var req struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		token = req.Token
	}

	eigen, err := codex.Decode(token)
	if err != nil {
		var rej *codex.RejectionError
		if !errors.As(err, &rej) {
			slog.Error("token decode failed", "error", err)
			http.Error(w, "decode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"valid":     false,
			"rejection": rej.Kind,
			"reason":    rej.Reason,
		})
		return
	}

	writeJSON(w, map[string]any{
		"valid":      true,
		"eigenstate": eigen,
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
