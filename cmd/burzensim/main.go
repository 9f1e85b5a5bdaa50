// Command burzensim runs the BURZEN cell population and journals its eigenstate tokens.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/talgya/burzen-core/internal/api"
	"github.com/talgya/burzen-core/internal/cells"
	"github.com/talgya/burzen-core/internal/config"
	"github.com/talgya/burzen-core/internal/engine"
	"github.com/talgya/burzen-core/internal/entropy"
	"github.com/talgya/burzen-core/internal/layout"
	"github.com/talgya/burzen-core/internal/persistence"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("BURZEN cell core")

	// ── Config ────────────────────────────────────────────────────────
	cfgPath := os.Getenv("BURZEN_CONFIG")
	if cfgPath == "" {
		cfgPath = "burzen.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"path", cfgPath,
		"cells", cfg.Cells,
		"dt", cfg.DT,
		"interval", cfg.Interval(),
		"seed", cfg.Seed,
	)

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	runID := persistence.NewRunID()
	if _, err := db.StartRun(runID); err != nil {
		slog.Error("failed to record run", "error", err)
		os.Exit(1)
	}

	// ── Cells (always regenerated; deterministic from seed) ───────────
	if cfg.Seed == 0 {
		cfg.Seed = entropy.NewClient(os.Getenv("RANDOM_ORG_API_KEY")).Seed()
		slog.Info("layout seed drawn", "seed", cfg.Seed)
	}
	if err := db.SaveMeta("seed:"+runID, strconv.FormatInt(cfg.Seed, 10)); err != nil {
		slog.Error("failed to record seed", "error", err)
	}

	store := cells.New(cfg.Cells)
	layout.Apply(store, cfg.LayoutParams())

	counts := make(map[string]int)
	for i := 0; i < store.Len(); i++ {
		counts[store.Archetype(i).String()]++
	}
	for name, c := range counts {
		slog.Info("archetype", "type", name, "count", c)
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(store, cfg.EngineParams())

	var hub *api.Hub
	if cfg.APIPort > 0 {
		hub = api.NewHub(32)
	}

	sim.OnToken = func(tick uint64, token string) {
		if err := db.AppendToken(runID, tick, token); err != nil {
			slog.Error("journal append failed", "tick", tick, "error", err)
		}
		if hub != nil {
			hub.Broadcast(tick, token)
		}
	}

	eng := engine.NewEngine()
	eng.Interval = cfg.Interval()
	eng.SnapshotEvery = cfg.SnapshotEvery
	eng.ReportEvery = cfg.ReportEvery
	eng.SetSpeed(cfg.Speed)

	// Wire tick callbacks.
	eng.OnTick = sim.TickStep
	eng.OnSnapshot = func(tick uint64) { sim.Capture(tick) }
	eng.OnReport = sim.Report

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.APIPort > 0 {
		if cfg.AdminKey == "" {
			slog.Warn("BURZEN_ADMIN_KEY not set; admin POST endpoints will be disabled")
		}
		apiServer := &api.Server{
			Sim:      sim,
			Eng:      eng,
			DB:       db,
			Hub:      hub,
			RunID:    runID,
			Port:     cfg.APIPort,
			AdminKey: cfg.AdminKey,
		}
		apiServer.Start()
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\nBURZEN is running: %d cells, run %s.\n", store.Len(), runID)
	if cfg.APIPort > 0 {
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)
	}

	if cfg.MaxTicks > 0 {
		fmt.Printf("Running %s ticks...\n", humanize.Comma(int64(cfg.MaxTicks)))
		eng.RunTicks(cfg.MaxTicks)
	} else {
		fmt.Println("Starting simulation... (Ctrl+C to stop)")
		eng.Run()
	}

	// Final token so the journal ends on the last state.
	if eng.SnapshotEvery == 0 || eng.Tick%eng.SnapshotEvery != 0 {
		sim.Capture(eng.Tick)
	}

	if cfg.ArchivePath != "" {
		n, err := db.ExportJournalFile(cfg.ArchivePath, runID)
		if err != nil {
			slog.Error("archive export failed", "path", cfg.ArchivePath, "error", err)
		} else {
			slog.Info("journal archived", "path", cfg.ArchivePath, "tokens", n)
		}
	}

	if err := sim.Close(); err != nil {
		slog.Error("close failed", "error", err)
	}

	fmt.Printf("Simulation stopped after %s ticks.\n", humanize.Comma(int64(eng.Tick)))
}
