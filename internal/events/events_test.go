package events

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/talgya/bazaar/internal/config"
	"github.com/talgya/bazaar/internal/market"
	"github.com/talgya/bazaar/internal/wares"
)

func newTestMarket(t *testing.T, cfg *config.Config) *market.Registry {
	t.Helper()
	reg := market.New(cfg)
	reg.LoadCatalog(&wares.LoadResult{Wares: []*wares.Ware{
		{ID: "grain", Alias: "wheat", Kind: wares.Material, Level: 2, BasePrice: 4.0, Quantity: 64, Yield: 1},
		{ID: "wool", Kind: wares.Material, Level: 2, BasePrice: 4.0, Quantity: 64, Yield: 1},
	}})
	return reg
}

func writeScenarios(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenarios(t *testing.T) {
	reg := newTestMarket(t, config.Default())
	path := writeScenarios(t, `scenarios:
  - description: good harvest
    wares: [wheat, wool]
    magnitudes: [large+, small-]
  - description: length mismatch
    wares: [grain]
    magnitudes: [small+, small+]
  - description: unknown ware
    wares: [dragons]
    magnitudes: [small+]
  - description: unknown magnitude
    wares: [grain]
    magnitudes: [huge+]
`)

	scenarios, err := Load(path, reg)
	if err != nil {
		t.Fatal(err)
	}
	if len(scenarios) != 1 {
		t.Fatalf("loaded %d scenarios, want 1", len(scenarios))
	}
	sc := scenarios[0]
	if sc.Description != "good harvest" {
		t.Fatalf("kept the wrong scenario: %q", sc.Description)
	}
	// Aliases must have resolved to canonical IDs at load time.
	if sc.WareIDs[0] != "grain" || sc.Magnitudes[0] != 3 {
		t.Fatalf("scenario = %+v", sc)
	}
}

func TestFireAppliesShocks(t *testing.T) {
	cfg := config.Default()
	reg := newTestMarket(t, cfg)
	eng := New(reg, cfg, nil, 1, nil)

	fired := eng.Fire(Scenario{
		Description: "good harvest",
		WareIDs:     []string{"grain", "wool", "ghost"},
		Magnitudes:  []Magnitude{3, -1, 1},
	})
	if fired.Applied != 2 {
		t.Fatalf("applied %d shocks, want 2 (ghost skipped)", fired.Applied)
	}

	// large+ adds 25% of equilibrium 64 = 16; small- removes 5% = 3.
	snap, _ := reg.SnapshotWare("grain")
	if snap.Quantity != 80 {
		t.Fatalf("grain stock = %d, want 80", snap.Quantity)
	}
	snap, _ = reg.SnapshotWare("wool")
	if snap.Quantity != 61 {
		t.Fatalf("wool stock = %d, want 61", snap.Quantity)
	}
}

func TestFireHonorsFloorGuard(t *testing.T) {
	cfg := config.Default()
	cfg.NoGarbageDisposing = true
	reg := newTestMarket(t, cfg)
	if err := reg.SetStockNumeric("grain", 183); err != nil { // level-2 floor bound
		t.Fatal(err)
	}
	eng := New(reg, cfg, nil, 1, nil)

	eng.Fire(Scenario{
		Description: "glut",
		WareIDs:     []string{"grain"},
		Magnitudes:  []Magnitude{3},
	})
	snap, _ := reg.SnapshotWare("grain")
	if snap.Quantity != 183 {
		t.Fatalf("grain stock = %d, want 183 (pinned at the floor bound)", snap.Quantity)
	}
}

func TestVolatilityStaysInRange(t *testing.T) {
	cfg := config.Default()
	reg := newTestMarket(t, cfg)
	eng := New(reg, cfg, nil, 42, nil)

	for tick := uint64(0); tick < 5000; tick += 7 {
		v := eng.Volatility(tick)
		if v < 0 || v > 1 {
			t.Fatalf("volatility at tick %d = %v, out of [0, 1]", tick, v)
		}
	}
}

func TestMaybeFireWithoutScenarios(t *testing.T) {
	cfg := config.Default()
	reg := newTestMarket(t, cfg)
	eng := New(reg, cfg, nil, 1, nil)

	if fired := eng.MaybeFire(10); fired != nil {
		t.Fatalf("fired %+v with no scenarios loaded", fired)
	}
}

func TestParseMagnitude(t *testing.T) {
	for name, want := range map[string]Magnitude{
		"large-": -3, "none": 0, "small+": 1, "large+": 3,
	} {
		got, ok := ParseMagnitude(name)
		if !ok || got != want {
			t.Errorf("ParseMagnitude(%q) = %d/%v, want %d", name, got, ok, want)
		}
	}
	if _, ok := ParseMagnitude("huge+"); ok {
		t.Error("unknown magnitude accepted")
	}
}
