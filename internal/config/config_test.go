package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTablesAreOrdered(t *testing.T) {
	cfg := Default()
	for lvl := 0; lvl < Levels; lvl++ {
		if cfg.QuanDeficient[lvl] > cfg.QuanEquilibrium[lvl] ||
			cfg.QuanEquilibrium[lvl] > cfg.QuanExcessive[lvl] {
			t.Errorf("level %d thresholds out of order: %d/%d/%d",
				lvl, cfg.QuanDeficient[lvl], cfg.QuanEquilibrium[lvl], cfg.QuanExcessive[lvl])
		}
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIPort != Default().APIPort {
		t.Fatalf("missing file changed defaults: port %d", cfg.APIPort)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
api_port: 9000
price_buy_upcharge: 1.25
negative_prices: true
quan_equilibrium: [300, 150, 70, 35, 18, 9]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIPort != 9000 || cfg.PriceBuyUpcharge != 1.25 || !cfg.NegativePrices {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.QuanEquilibrium[2] != 70 {
		t.Fatalf("equilibrium table = %v", cfg.QuanEquilibrium)
	}
	// Untouched keys keep their defaults.
	if cfg.RebalancePercent != 0.10 {
		t.Fatalf("rebalance percent = %v, want default 0.10", cfg.RebalancePercent)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"inverted thresholds": "quan_deficient: [999, 16, 8, 4, 2, 1]",
		"floor above base":    "price_floor: 1.5",
		"upcharge below one":  "price_buy_upcharge: 0.5",
		"adjusted floor high": "price_floor_adjusted: 0.5",
		"bad yaml":            "api_port: [not a port",
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: invalid config accepted", name)
		}
	}
}

func TestLevelClamps(t *testing.T) {
	for in, want := range map[int]int{-5: 0, 0: 0, 3: 3, 5: 5, 99: Levels - 1} {
		if got := Level(in); got != want {
			t.Errorf("Level(%d) = %d, want %d", in, got, want)
		}
	}
}
