package api

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/burzen-core/internal/cells"
	"github.com/talgya/burzen-core/internal/engine"
	"github.com/talgya/burzen-core/internal/persistence"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sim := engine.NewSimulation(cells.New(4), engine.Config{DT: 0.1, Monitor: engine.DefaultMonitorConfig()})
	eng := engine.NewEngine()
	eng.SnapshotEvery = 5
	eng.OnTick = sim.TickStep
	eng.OnSnapshot = func(tick uint64) { sim.Capture(tick) }

	s := &Server{
		Sim:      sim,
		Eng:      eng,
		DB:       db,
		Hub:      NewHub(2),
		RunID:    persistence.NewRunID(),
		AdminKey: "secret",
	}
	sim.OnToken = func(tick uint64, token string) {
		if err := db.AppendToken(s.RunID, tick, token); err != nil {
			t.Errorf("AppendToken: %v", err)
		}
		s.Hub.Broadcast(tick, token)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusAndEigenstate(t *testing.T) {
	s := newTestServer(t)
	s.Eng.RunTicks(10)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status["tick"].(float64) != 10 || status["cells"].(float64) != 4 || status["token_tick"].(float64) != 10 {
		t.Fatalf("status = %v", status)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/eigenstate", "", nil)
	var eig struct {
		Tick  uint64 `json:"tick"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &eig); err != nil {
		t.Fatal(err)
	}
	if eig.Tick != 10 || eig.Token != s.Sim.Status().Token || !strings.HasPrefix(eig.Token, "XDX1.") {
		t.Fatalf("eigenstate = %+v", eig)
	}
}

func TestDeltaEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.Eng.RunTicks(3)

	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/delta", "", nil)
	var got struct {
		Tick        uint64             `json:"tick"`
		Delta       cells.Delta        `json:"delta"`
		Instability engine.Instability `json:"instability"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Tick != 3 || got.Delta.MeanEnergy <= 0 || got.Instability.Unstable != 0 {
		t.Fatalf("delta = %+v", got)
	}
	if n := got.Instability.Low + got.Instability.Medium + got.Instability.High; n != 4 {
		t.Fatalf("band histogram covers %d cells", n)
	}
}

func TestCellsEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/cells", "", nil)

	var got []struct {
		Index         int    `json:"index"`
		ArchetypeName string `json:"archetype_name"`
		Band          string `json:"band"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[0].ArchetypeName != "kinetic" || got[0].Band != "low" {
		t.Fatalf("cells = %+v", got)
	}
}

func TestTokensEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.Eng.RunTicks(20)

	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/tokens?limit=2", "", nil)
	var got []persistence.TokenRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Tick != 20 || got[1].Tick != 15 {
		t.Fatalf("tokens = %+v", got)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.Eng.RunTicks(5)
	token := s.Sim.Status().Token
	h := s.Handler()

	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		t.Fatal(err)
	}
	rec := do(t, h, http.MethodPost, "/api/v1/verify", string(body), nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"valid": true`) {
		t.Fatalf("verify json = %d %s", rec.Code, rec.Body.String())
	}
	var verified struct {
		Valid      bool             `json:"valid"`
		Eigenstate cells.Eigenstate `json:"eigenstate"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &verified); err != nil {
		t.Fatal(err)
	}
	want := s.Sim.Status().Eigenstate
	if !verified.Valid || math.Abs(float64(verified.Eigenstate.EnergySetpoint-want.EnergySetpoint)) > 1e-5 {
		t.Fatalf("verified = %+v, want %+v", verified, want)
	}

	// Unescaped token inside a JSON string breaks the document.
	rec = do(t, h, http.MethodPost, "/api/v1/verify", `{"token":"`+token+`"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed json = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/v1/verify", `{"token": 7}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-string token = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/v1/verify", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify raw = %d %s", rec.Code, rec.Body.String())
	}

	tampered := strings.Replace(token, "XDX1.", "XDX2.", 1)
	rec = do(t, h, http.MethodPost, "/api/v1/verify", tampered, nil)
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), "VERSION") {
		t.Fatalf("verify tampered = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/v1/verify", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("verify GET = %d", rec.Code)
	}
}

func TestSpeedRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":4}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated = %d", rec.Code)
	}

	auth := map[string]string{"Authorization": "Bearer secret"}
	rec = do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":4}`, auth)
	if rec.Code != http.StatusOK || s.Eng.Speed() != 4 {
		t.Fatalf("authenticated = %d, speed %v", rec.Code, s.Eng.Speed())
	}

	rec = do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":-1}`, auth)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative speed = %d", rec.Code)
	}

	s.AdminKey = ""
	rec = do(t, s.Handler(), http.MethodPost, "/api/v1/speed", `{"speed":2}`, auth)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("no admin key = %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodOptions, "/api/v1/status", "", map[string]string{"Origin": "http://localhost:5173"})
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("preflight = %d %v", rec.Code, rec.Header())
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatal("other clients have their own bucket")
	}
	if ra := rl.RetryAfter("1.2.3.4"); ra < 1 || ra > 61 {
		t.Fatalf("RetryAfter = %d", ra)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if ip := clientIP(req); ip != "10.0.0.1" {
		t.Fatalf("clientIP = %q", ip)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if ip := clientIP(req); ip != "203.0.113.9" {
		t.Fatalf("clientIP forwarded = %q", ip)
	}
}

func TestStreamDeliversTokens(t *testing.T) {
	s := newTestServer(t)
	s.Eng.RunTicks(5)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// Catch-up message carries the latest token.
	var msg TokenMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON catch-up: %v", err)
	}
	if msg.Type != "TOKEN" || msg.Tick != 5 || msg.Token != s.Sim.Status().Token {
		t.Fatalf("catch-up = %+v", msg)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Hub.Clients() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	s.Eng.RunTicks(5)
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON live: %v", err)
	}
	if msg.Tick != 10 {
		t.Fatalf("live message = %+v", msg)
	}
}
