// Package config holds the marketplace tunables: per-level stock threshold
// tables, price curve parameters, feature toggles, and worker cadences.
// Values load from a YAML file over compiled-in defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Levels is the number of ware hierarchy levels (0 = raw material).
const Levels = 6

// PriceTruncDigits is how many fractional digits survive price truncation.
// Prices are truncated, not rounded, so repeated trades cannot accumulate
// floating-point drift upward.
const PriceTruncDigits = 2

// Config is the full set of marketplace tunables.
type Config struct {
	// Per-hierarchy-level stock thresholds. Index is the ware's level.
	QuanDeficient   [Levels]int64 `yaml:"quan_deficient"`
	QuanEquilibrium [Levels]int64 `yaml:"quan_equilibrium"`
	QuanExcessive   [Levels]int64 `yaml:"quan_excessive"`
	// QuanStartBase is the default starting stock for materials whose
	// catalog entry carries no explicit quantity.
	QuanStartBase [Levels]int64 `yaml:"quan_start_base"`

	// Price curve parameters. Floor/ceiling values are multipliers of a
	// ware's base price; the adjusted variants cap the curve beyond the
	// excessive/deficient thresholds.
	PriceFloor           float64 `yaml:"price_floor"`
	PriceFloorAdjusted   float64 `yaml:"price_floor_adjusted"`
	PriceCeiling         float64 `yaml:"price_ceiling"`
	PriceCeilingAdjusted float64 `yaml:"price_ceiling_adjusted"`
	// PriceSpread scales how hard prices react to scarcity/surplus for
	// wares cheaper or pricier than the market average. 1.0 is neutral.
	PriceSpread float64 `yaml:"price_spread"`
	// PriceBuyUpcharge multiplies purchase quotes only. 1.0 disables
	// the buy/sell spread.
	PriceBuyUpcharge float64 `yaml:"price_buy_upcharge"`
	// LinkedPriceWeight damps how strongly component price drift passes
	// through to a manufactured ware's quote (1.0 = full pass-through).
	LinkedPriceWeight float64 `yaml:"linked_price_weight"`
	// ManufacturingPremium multiplies ceiling quotes for units synthesized
	// by an out-of-stock manufacturing contract.
	ManufacturingPremium float64 `yaml:"manufacturing_premium"`

	// Feature toggles.
	NegativePrices        bool `yaml:"negative_prices"`
	NoGarbageDisposing    bool `yaml:"no_garbage_disposing"`
	OutOfStockManufacture bool `yaml:"out_of_stock_manufacture"`
	LinkedPrices          bool `yaml:"linked_prices"`
	PlannedEconomy        bool `yaml:"planned_economy"`
	AllowNegativeStock    bool `yaml:"allow_negative_stock"`

	// Worker tunables.
	RebalancePercent float64 `yaml:"rebalance_percent"`
	// AITradeQuantityPercent sizes one AI trade decision as a fraction of
	// the ware's equilibrium stock.
	AITradeQuantityPercent float64 `yaml:"ai_trade_quantity_percent"`
	// EventMagnitudePercents maps magnitude category (small, medium,
	// large) to a fraction of equilibrium stock.
	EventMagnitudePercents [3]float64 `yaml:"event_magnitude_percents"`
	// EventBaseChance is the per-check probability that a scenario fires,
	// before the volatility curve modulates it.
	EventBaseChance float64 `yaml:"event_base_chance"`

	// Worker cadences, in engine ticks.
	RebalanceTicks int `yaml:"rebalance_ticks"`
	EventTicks     int `yaml:"event_ticks"`
	AITicks        int `yaml:"ai_ticks"`
	AutosaveTicks  int `yaml:"autosave_ticks"`

	// File paths.
	WaresPath     string `yaml:"wares_path"`
	ScenariosPath string `yaml:"scenarios_path"`
	ProfilesPath  string `yaml:"profiles_path"`
	DBPath        string `yaml:"db_path"`

	// API settings.
	APIPort  int    `yaml:"api_port"`
	AdminKey string `yaml:"admin_key"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		QuanDeficient:   [Levels]int64{32, 16, 8, 4, 2, 1},
		QuanEquilibrium: [Levels]int64{256, 128, 64, 32, 16, 8},
		QuanExcessive:   [Levels]int64{512, 256, 128, 64, 32, 16},
		QuanStartBase:   [Levels]int64{256, 128, 64, 32, 16, 8},

		PriceFloor:           0.0,
		PriceFloorAdjusted:   -0.5,
		PriceCeiling:         2.0,
		PriceCeilingAdjusted: 3.0,
		PriceSpread:          1.0,
		PriceBuyUpcharge:     1.0,
		LinkedPriceWeight:    0.75,
		ManufacturingPremium: 1.1,

		NegativePrices:        false,
		NoGarbageDisposing:    false,
		OutOfStockManufacture: false,
		LinkedPrices:          false,
		PlannedEconomy:        false,
		AllowNegativeStock:    false,

		RebalancePercent:       0.10,
		AITradeQuantityPercent: 0.05,
		EventMagnitudePercents: [3]float64{0.05, 0.10, 0.25},
		EventBaseChance:        0.15,

		RebalanceTicks: 300,
		EventTicks:     60,
		AITicks:        30,
		AutosaveTicks:  1440,

		WaresPath:     "data/wares.jsonl",
		ScenariosPath: "data/scenarios.yaml",
		ProfilesPath:  "data/profiles.yaml",
		DBPath:        "data/bazaar.db",

		APIPort: 8310,
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for lvl := 0; lvl < Levels; lvl++ {
		if !(c.QuanDeficient[lvl] <= c.QuanEquilibrium[lvl] && c.QuanEquilibrium[lvl] <= c.QuanExcessive[lvl]) {
			return fmt.Errorf("level %d: need deficient <= equilibrium <= excessive, got %d/%d/%d",
				lvl, c.QuanDeficient[lvl], c.QuanEquilibrium[lvl], c.QuanExcessive[lvl])
		}
	}
	if c.PriceFloor > 1 || c.PriceCeiling < 1 {
		return fmt.Errorf("price floor %.2f / ceiling %.2f do not bracket the base price", c.PriceFloor, c.PriceCeiling)
	}
	if c.PriceFloorAdjusted > c.PriceFloor {
		return fmt.Errorf("adjusted floor %.2f above floor %.2f", c.PriceFloorAdjusted, c.PriceFloor)
	}
	if c.PriceCeilingAdjusted < c.PriceCeiling {
		return fmt.Errorf("adjusted ceiling %.2f below ceiling %.2f", c.PriceCeilingAdjusted, c.PriceCeiling)
	}
	if c.PriceBuyUpcharge < 1 {
		return fmt.Errorf("buy upcharge %.2f below 1.0", c.PriceBuyUpcharge)
	}
	return nil
}

// Level clamps a ware hierarchy level into the configured table range.
func Level(lvl int) int {
	if lvl < 0 {
		return 0
	}
	if lvl >= Levels {
		return Levels - 1
	}
	return lvl
}
