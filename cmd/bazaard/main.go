// Command bazaard runs the autonomous marketplace: the ware registry, its
// background workers, and the HTTP front end.
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/talgya/bazaar/internal/account"
	"github.com/talgya/bazaar/internal/api"
	"github.com/talgya/bazaar/internal/config"
	"github.com/talgya/bazaar/internal/engine"
	"github.com/talgya/bazaar/internal/entropy"
	"github.com/talgya/bazaar/internal/events"
	"github.com/talgya/bazaar/internal/market"
	"github.com/talgya/bazaar/internal/persistence"
	"github.com/talgya/bazaar/internal/trader"
	"github.com/talgya/bazaar/internal/wares"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	configPath := flag.String("config", "data/config.yaml", "path to the marketplace config")
	seed := flag.Int64("seed", 42, "volatility curve seed")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Ware catalog ──────────────────────────────────────────────────
	reg := market.New(cfg)
	catalog, err := wares.LoadFile(cfg.WaresPath, cfg)
	if err != nil {
		slog.Error("failed to load ware catalog", "path", cfg.WaresPath, "error", err)
		os.Exit(1)
	}
	reg.LoadCatalog(catalog)

	ledger := account.NewLedger()
	var startTick uint64

	if db.HasMarketState() {
		slog.Info("found saved market state, restoring...")
		states, err := db.LoadWareState()
		if err != nil {
			slog.Error("failed to load ware state", "error", err)
			os.Exit(1)
		}
		reg.RestoreState(states)

		accounts, err := db.LoadAccounts()
		if err != nil {
			slog.Error("failed to load accounts", "error", err)
			os.Exit(1)
		}
		ledger.Restore(accounts)

		if tickStr, err := db.GetMeta("last_tick"); err == nil {
			if t, err := strconv.ParseUint(tickStr, 10, 64); err == nil {
				startTick = t
			}
		}
		slog.Info("market state restored", "accounts", len(accounts), "tick", startTick)
	}

	// ── Workers ───────────────────────────────────────────────────────
	var traders *trader.Engine
	if profiles, err := trader.LoadProfiles(cfg.ProfilesPath); err != nil {
		slog.Warn("trading agents disabled", "error", err)
	} else {
		traders = trader.New(reg, cfg, profiles)
		slog.Info("trading agents loaded", "profiles", len(profiles))
	}

	src := entropy.NewSource(os.Getenv("RANDOM_ORG_KEY"))
	var eventEngine *events.Engine
	if scenarios, err := events.Load(cfg.ScenariosPath, reg); err != nil {
		slog.Warn("random events disabled", "error", err)
	} else {
		eventEngine = events.New(reg, cfg, src, *seed, scenarios)
	}

	mkt := engine.NewMarketplace(reg, traders, eventEngine, cfg)

	eng := engine.New(cfg.RebalanceTicks, cfg.EventTicks, cfg.AITicks, cfg.AutosaveTicks)
	eng.SetTick(startTick)
	eng.OnRebalance = mkt.TickRebalance
	eng.OnEvent = mkt.TickEvents
	eng.OnAI = mkt.TickAI
	eng.OnAutosave = func(tick uint64) {
		mkt.Report(tick)
		if err := db.SaveAll(reg, ledger, mkt.DrainEvents(), tick); err != nil {
			slog.Error("autosave failed", "error", err)
		}
	}

	// ── API ───────────────────────────────────────────────────────────
	server := &api.Server{
		Market:   mkt,
		Eng:      eng,
		Ledger:   ledger,
		DB:       db,
		Cfg:      cfg,
		Port:     cfg.APIPort,
		AdminKey: cfg.AdminKey,
	}
	server.Start()

	// ── Run until signalled ───────────────────────────────────────────
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		slog.Info("shutting down", "signal", sig)
		eng.Stop()
	}()

	eng.Run()

	if err := db.SaveAll(reg, ledger, mkt.DrainEvents(), eng.Tick()); err != nil {
		slog.Error("final save failed", "error", err)
		os.Exit(1)
	}
	slog.Info("market state saved", "tick", eng.Tick())
}
