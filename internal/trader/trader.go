// Package trader is the autonomous trading engine: profile-driven agents
// that scan current prices each tick and commit a bounded number of trades
// through the registry.
package trader

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/talgya/bazaar/internal/config"
	"github.com/talgya/bazaar/internal/market"
)

// Profile configures one trading agent: what it may buy and sell, how much
// it favors individual wares, and how many trade decisions it commits per
// tick. The budget is reset by the scheduler before every tick.
type Profile struct {
	Name         string             `yaml:"name"`
	Purchasables []string           `yaml:"purchasables"`
	Sellables    []string           `yaml:"sellables"`
	Preferences  map[string]float64 `yaml:"preferences"`
	Decisions    int                `yaml:"decisions_per_tick"`

	// budget is the remaining decisions for the current tick.
	budget int
}

// ResetBudget restores the profile's per-tick decision allowance.
func (p *Profile) ResetBudget() { p.budget = p.Decisions }

// AddDecisions grants extra decisions for the current tick (scheduler hook).
func (p *Profile) AddDecisions(n int) { p.budget += n }

type profileFile struct {
	Profiles []*Profile `yaml:"profiles"`
}

// LoadProfiles reads agent profiles from a YAML file. Profiles with no
// tradeable ware lists are dropped with a warning.
func LoadProfiles(path string) ([]*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var pf profileFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}

	out := pf.Profiles[:0]
	for _, p := range pf.Profiles {
		if len(p.Purchasables) == 0 && len(p.Sellables) == 0 {
			slog.Warn("trader profile has no tradeable wares, dropped", "profile", p.Name)
			continue
		}
		if p.Decisions <= 0 {
			p.Decisions = 1
		}
		out = append(out, p)
	}
	return out, nil
}

// Engine runs the trading agents against a registry.
type Engine struct {
	reg      *market.Registry
	cfg      *config.Config
	profiles []*Profile
}

// New creates a trading engine.
func New(reg *market.Registry, cfg *config.Config, profiles []*Profile) *Engine {
	return &Engine{reg: reg, cfg: cfg, profiles: profiles}
}

// decision is one pending trade in a tick batch.
type decision struct {
	wareID string
	buy    bool
	score  float64
	pref   float64
	delta  int64
}

// Tick runs every profile against the current prices and returns how many
// trades were committed. All decisions are scored against the pre-tick
// snapshot and applied in a single finalization pass, so one agent's
// earlier decisions never distort its later ones within the same tick.
func (e *Engine) Tick() int {
	var batch []decision
	for _, p := range e.profiles {
		p.ResetBudget()
		batch = append(batch, e.decide(p)...)
	}

	// Finalization: the batch hits the registry only now.
	committed := 0
	for _, d := range batch {
		if err := e.reg.AdjustStock(d.wareID, d.delta); err != nil {
			slog.Warn("trader adjustment dropped", "ware", d.wareID, "error", err)
			continue
		}
		committed++
	}
	return committed
}

// decide scores a profile's candidates and picks up to its budget.
// Scarcity favors selling, surplus favors buying; both are scaled by the
// agent's preference weight, so a strongly preferred ware wins even at a
// modestly worse raw price. Equal scores break toward buying.
func (e *Engine) decide(p *Profile) []decision {
	var cands []decision

	for _, id := range p.Purchasables {
		snap, ok := e.reg.SnapshotWare(id)
		if !ok || snap.BasePrice <= 0 || math.IsNaN(snap.BuyPrice) {
			continue
		}
		pref := p.preference(id)
		cands = append(cands, decision{
			wareID: snap.ID,
			buy:    true,
			score:  pref * (1 - snap.BuyPrice/snap.BasePrice),
			pref:   pref,
			delta:  -e.tradeQuantity(snap),
		})
	}
	for _, id := range p.Sellables {
		snap, ok := e.reg.SnapshotWare(id)
		if !ok || snap.BasePrice <= 0 || math.IsNaN(snap.SellPrice) {
			continue
		}
		pref := p.preference(id)
		cands = append(cands, decision{
			wareID: snap.ID,
			buy:    false,
			score:  pref * (snap.SellPrice/snap.BasePrice - 1),
			pref:   pref,
			delta:  e.tradeQuantity(snap),
		})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.buy != b.buy {
			return a.buy
		}
		if a.pref != b.pref {
			return a.pref > b.pref
		}
		return a.wareID < b.wareID
	})

	picked := cands
	if len(picked) > p.budget {
		picked = picked[:p.budget]
	}
	p.budget -= len(picked)
	return picked
}

func (p *Profile) preference(wareID string) float64 {
	if v, ok := p.Preferences[wareID]; ok && v > 0 {
		return v
	}
	return 1.0
}

// tradeQuantity sizes one decision as a fraction of the ware's equilibrium
// stock, capped by current stock for purchases.
func (e *Engine) tradeQuantity(snap market.Snapshot) int64 {
	eq := e.cfg.QuanEquilibrium[config.Level(snap.Level)]
	q := int64(e.cfg.AITradeQuantityPercent * float64(eq))
	if q < 1 {
		q = 1
	}
	return q
}
