// Package gardener implements an external steward for a running simulation.
// It observes state via the API, triages token health locally, and throttles
// the engine via the admin speed endpoint when the population runs unstable.
package gardener

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/talgya/burzen-core/internal/cells"
)

// Snapshot holds all data collected during an observation cycle.
type Snapshot struct {
	Status     SimStatus     `json:"status"`
	Eigenstate EigenstateDoc `json:"eigenstate"`
	Tokens     []TokenRow    `json:"tokens"`
}

// SimStatus mirrors GET /api/v1/status.
type SimStatus struct {
	Name      string  `json:"name"`
	RunID     string  `json:"run_id"`
	Tick      uint64  `json:"tick"`
	Cells     int     `json:"cells"`
	Speed     float64 `json:"speed"`
	Running   bool    `json:"running"`
	TokenTick uint64  `json:"token_tick"`
	Unstable  int     `json:"unstable"`
}

// EigenstateDoc mirrors GET /api/v1/eigenstate.
type EigenstateDoc struct {
	Tick       uint64           `json:"tick"`
	Eigenstate cells.Eigenstate `json:"eigenstate"`
	Token      string           `json:"token"`
}

// TokenRow mirrors items from GET /api/v1/tokens (newest first).
type TokenRow struct {
	RunID string `json:"run_id"`
	Tick  uint64 `json:"tick"`
	Token string `json:"token"`
}

// Observer fetches simulation state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
	TokenLimit int
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL:    baseURL,
		TokenLimit: 20,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches the three endpoints and returns a Snapshot.
func (o *Observer) Observe() (*Snapshot, error) {
	snap := &Snapshot{}

	if err := o.fetchJSON("/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON("/api/v1/eigenstate", &snap.Eigenstate); err != nil {
		return nil, fmt.Errorf("fetch eigenstate: %w", err)
	}
	if err := o.fetchJSON(fmt.Sprintf("/api/v1/tokens?limit=%d", o.TokenLimit), &snap.Tokens); err != nil {
		return nil, fmt.Errorf("fetch tokens: %w", err)
	}

	return snap, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(path string, target any) error {
	resp, err := o.HTTPClient.Get(o.BaseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
