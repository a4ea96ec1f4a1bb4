package trader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/talgya/bazaar/internal/config"
	"github.com/talgya/bazaar/internal/market"
	"github.com/talgya/bazaar/internal/wares"
)

func newTestMarket(t *testing.T) (*market.Registry, *config.Config) {
	t.Helper()
	cfg := config.Default()
	reg := market.New(cfg)
	reg.LoadCatalog(&wares.LoadResult{Wares: []*wares.Ware{
		{ID: "grain", Kind: wares.Material, Level: 2, BasePrice: 4.0, Quantity: 64, Yield: 1},
		{ID: "wool", Kind: wares.Material, Level: 2, BasePrice: 4.0, Quantity: 64, Yield: 1},
		{ID: "salt", Kind: wares.Material, Level: 2, BasePrice: 4.0, Quantity: 64, Yield: 1},
	}})
	return reg, cfg
}

func stock(t *testing.T, reg *market.Registry, id string) int64 {
	t.Helper()
	snap, ok := reg.SnapshotWare(id)
	if !ok {
		t.Fatalf("no snapshot for %s", id)
	}
	return snap.Quantity
}

func TestTickPrefersBuyOnEqualScore(t *testing.T) {
	reg, cfg := newTestMarket(t)
	// Both candidates sit at equilibrium: buy and sell both score zero,
	// and the tie must break toward the purchase.
	eng := New(reg, cfg, []*Profile{{
		Name:         "balanced",
		Purchasables: []string{"grain"},
		Sellables:    []string{"wool"},
		Decisions:    1,
	}})

	if committed := eng.Tick(); committed != 1 {
		t.Fatalf("committed %d trades, want 1", committed)
	}
	if got := stock(t, reg, "grain"); got != 61 { // 5% of eq 64 = 3 units bought
		t.Fatalf("grain stock = %d, want 61", got)
	}
	if got := stock(t, reg, "wool"); got != 64 {
		t.Fatalf("wool stock = %d, want 64 (untouched)", got)
	}
}

func TestTickPreferenceOutweighsSmallPriceEdge(t *testing.T) {
	reg, cfg := newTestMarket(t)
	// grain is the slightly better raw deal (10% under base vs ~9%), but
	// the doubled preference for wool dominates the score.
	if err := reg.SetStockNumeric("grain", 76); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetStockNumeric("wool", 75); err != nil {
		t.Fatal(err)
	}
	eng := New(reg, cfg, []*Profile{{
		Name:         "picky",
		Purchasables: []string{"grain", "wool"},
		Preferences:  map[string]float64{"wool": 2.0},
		Decisions:    1,
	}})

	if committed := eng.Tick(); committed != 1 {
		t.Fatalf("committed %d trades, want 1", committed)
	}
	if got := stock(t, reg, "wool"); got != 72 {
		t.Fatalf("wool stock = %d, want 72 (preferred buy)", got)
	}
	if got := stock(t, reg, "grain"); got != 76 {
		t.Fatalf("grain stock = %d, want 76 (untouched)", got)
	}
}

func TestTickHonorsDecisionBudget(t *testing.T) {
	reg, cfg := newTestMarket(t)
	eng := New(reg, cfg, []*Profile{{
		Name:         "busy",
		Purchasables: []string{"grain", "wool", "salt"},
		Decisions:    2,
	}})

	if committed := eng.Tick(); committed != 2 {
		t.Fatalf("committed %d trades, want 2", committed)
	}
}

func TestTickBatchesAcrossProfiles(t *testing.T) {
	reg, cfg := newTestMarket(t)
	profiles := []*Profile{
		{Name: "a", Purchasables: []string{"grain"}, Decisions: 1},
		{Name: "b", Purchasables: []string{"grain"}, Decisions: 1},
	}
	eng := New(reg, cfg, profiles)

	if committed := eng.Tick(); committed != 2 {
		t.Fatalf("committed %d trades, want 2", committed)
	}
	// Both agents scored against the same pre-tick snapshot and both
	// adjustments landed in the finalization pass.
	if got := stock(t, reg, "grain"); got != 58 {
		t.Fatalf("grain stock = %d, want 58", got)
	}
}

func TestTickDropsUnknownWares(t *testing.T) {
	reg, cfg := newTestMarket(t)
	eng := New(reg, cfg, []*Profile{{
		Name:         "confused",
		Purchasables: []string{"unobtainium"},
		Decisions:    1,
	}})

	if committed := eng.Tick(); committed != 0 {
		t.Fatalf("committed %d trades, want 0", committed)
	}
}

func TestLoadProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	body := `profiles:
  - name: merchant
    purchasables: [grain]
    sellables: [wool]
    preferences:
      grain: 1.5
    decisions_per_tick: 3
  - name: idle
    decisions_per_tick: 2
  - name: defaulted
    sellables: [salt]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	profiles, err := LoadProfiles(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 {
		t.Fatalf("loaded %d profiles, want 2 (idle dropped)", len(profiles))
	}
	if profiles[0].Name != "merchant" || profiles[0].Decisions != 3 {
		t.Fatalf("first profile = %+v", profiles[0])
	}
	if profiles[1].Decisions != 1 {
		t.Fatalf("defaulted decisions = %d, want 1", profiles[1].Decisions)
	}

	if _, err := LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file should error")
	}
}
