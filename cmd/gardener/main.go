// Command gardener runs the external steward for a burzensim process.
// It audits journaled tokens and throttles the engine via the admin API
// when the population runs unstable.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/burzen-core/internal/gardener"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	apiURL := envOrDefault("BURZEN_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("BURZEN_ADMIN_KEY")
	intervalSec := envIntOrDefault("GARDENER_INTERVAL", 30)
	targetSpeed := envFloatOrDefault("GARDENER_TARGET_SPEED", 1)
	memoryPath := envOrDefault("GARDENER_MEMORY", "gardener_memory.json")

	interval := cycleInterval(intervalSec)
	if interval != time.Duration(intervalSec)*time.Second {
		slog.Warn("GARDENER_INTERVAL must be positive, using minimum", "got", intervalSec, "interval", interval)
	}

	slog.Info("BURZEN gardener starting",
		"api_url", apiURL,
		"interval", interval,
		"target_speed", targetSpeed,
	)

	steward := &gardener.Steward{
		Observer:    gardener.NewObserver(apiURL),
		Memory:      gardener.LoadMemory(memoryPath),
		TargetSpeed: targetSpeed,
	}
	if adminKey != "" {
		steward.Actor = gardener.NewActor(apiURL, adminKey)
	} else {
		slog.Warn("BURZEN_ADMIN_KEY not set; running observe-only")
	}

	// Wait for the API to be ready before first cycle.
	slog.Info("waiting for burzensim API...")
	waitForAPI(apiURL)

	runCycle(steward)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runCycle(steward)
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			fmt.Println("Gardener stopped.")
			return
		}
	}
}

func runCycle(s *gardener.Steward) {
	rec, err := s.RunCycle()
	if err != nil {
		slog.Error("gardener cycle failed", "error", err)
		return
	}
	slog.Info("gardener cycle complete", "level", rec.Level, "action", rec.Action)
}

// cycleInterval converts GARDENER_INTERVAL seconds to a ticker period.
// time.NewTicker panics on non-positive durations, so the floor is 1s.
func cycleInterval(sec int) time.Duration {
	if sec < 1 {
		return minInterval
	}
	return time.Duration(sec) * time.Second
}

const minInterval = time.Second

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloatOrDefault(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff
// until it responds. Exits after 5 minutes if the API never becomes ready.
func waitForAPI(apiURL string) {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		resp, err := http.Get(apiURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				slog.Info("burzensim API is ready")
				return
			}
		}
		if time.Now().After(deadline) {
			slog.Error("burzensim API did not become ready within 5 minutes")
			os.Exit(1)
		}
		slog.Info("burzensim not ready, retrying...", "backoff", backoff)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
