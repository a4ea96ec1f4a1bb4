// Package events is the scripted random-event engine: loaded scenarios
// apply signed stock shocks to named wares on a randomized cadence.
package events

import (
	"fmt"
	"log/slog"
	"os"

	opensimplex "github.com/ojrac/opensimplex-go"
	"gopkg.in/yaml.v3"

	"github.com/talgya/bazaar/internal/config"
	"github.com/talgya/bazaar/internal/entropy"
	"github.com/talgya/bazaar/internal/market"
)

// Magnitude is a signed change category: -3 (large-) .. +3 (large+),
// 0 for no change. Positive magnitudes add stock (prices fall), negative
// ones remove it (prices climb).
type Magnitude int8

var magnitudeNames = map[string]Magnitude{
	"large-":  -3,
	"medium-": -2,
	"small-":  -1,
	"none":    0,
	"small+":  1,
	"medium+": 2,
	"large+":  3,
}

// ParseMagnitude maps a scenario-file category to its magnitude.
func ParseMagnitude(s string) (Magnitude, bool) {
	m, ok := magnitudeNames[s]
	return m, ok
}

// Scenario is one scripted event: a description plus parallel lists of
// affected wares and change categories.
type Scenario struct {
	Description string
	WareIDs     []string
	Magnitudes  []Magnitude
}

type scenarioFile struct {
	Scenarios []struct {
		Description string   `yaml:"description"`
		Wares       []string `yaml:"wares"`
		Magnitudes  []string `yaml:"magnitudes"`
	} `yaml:"scenarios"`
}

// Load reads scenario definitions from a YAML file. A scenario with
// mismatched list lengths, an unknown magnitude, or an unresolvable ware ID
// is dropped with a report; the rest of the file still loads.
func Load(path string, reg *market.Registry) ([]Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	var sf scenarioFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("parse scenarios %s: %w", path, err)
	}

	var out []Scenario
	for i, def := range sf.Scenarios {
		if len(def.Wares) == 0 || len(def.Wares) != len(def.Magnitudes) {
			slog.Warn("scenario rejected: ware/magnitude length mismatch",
				"index", i, "description", def.Description,
				"wares", len(def.Wares), "magnitudes", len(def.Magnitudes))
			continue
		}

		sc := Scenario{Description: def.Description}
		ok := true
		for j, name := range def.Wares {
			id := reg.TranslateWareID(name)
			if id == "" {
				slog.Warn("scenario dropped: unknown ware",
					"description", def.Description, "ware", name)
				ok = false
				break
			}
			mag, valid := ParseMagnitude(def.Magnitudes[j])
			if !valid {
				slog.Warn("scenario dropped: unknown magnitude",
					"description", def.Description, "magnitude", def.Magnitudes[j])
				ok = false
				break
			}
			sc.WareIDs = append(sc.WareIDs, id)
			sc.Magnitudes = append(sc.Magnitudes, mag)
		}
		if ok {
			out = append(out, sc)
		}
	}

	slog.Info("scenarios loaded", "accepted", len(out), "rejected", len(sf.Scenarios)-len(out))
	return out, nil
}

// Engine fires scenarios against the registry.
type Engine struct {
	reg       *market.Registry
	cfg       *config.Config
	src       *entropy.Source
	noise     opensimplex.Noise
	scenarios []Scenario
}

// noiseScale stretches the volatility curve so turbulent and calm stretches
// last many event checks rather than flipping every tick.
const noiseScale = 1.0 / 512

// New creates an event engine. src may be nil (crypto/rand fallback).
func New(reg *market.Registry, cfg *config.Config, src *entropy.Source, seed int64, scenarios []Scenario) *Engine {
	return &Engine{
		reg:       reg,
		cfg:       cfg,
		src:       src,
		noise:     opensimplex.New(seed),
		scenarios: scenarios,
	}
}

// Fired describes one applied scenario for the event log.
type Fired struct {
	Description string
	Applied     int
}

// Volatility returns the smooth market-turbulence factor in [0, 1] for a
// tick. Event probability scales with it, clustering shocks into stormy
// stretches separated by calm ones.
func (e *Engine) Volatility(tick uint64) float64 {
	return (e.noise.Eval2(float64(tick)*noiseScale, 0) + 1) / 2
}

// MaybeFire rolls the event chance for this tick and, on success, applies
// one randomly chosen scenario. A ware that fails to adjust never blocks
// the scenario's remaining wares.
func (e *Engine) MaybeFire(tick uint64) *Fired {
	if len(e.scenarios) == 0 {
		return nil
	}
	chance := e.cfg.EventBaseChance * (0.5 + e.Volatility(tick))
	if !e.src.Chance(chance) {
		return nil
	}

	sc := e.scenarios[e.src.IntN(len(e.scenarios))]
	return e.Fire(sc)
}

// Fire applies one scenario's stock shocks.
func (e *Engine) Fire(sc Scenario) *Fired {
	fired := &Fired{Description: sc.Description}
	for i, id := range sc.WareIDs {
		delta := e.delta(id, sc.Magnitudes[i])
		if delta == 0 {
			continue
		}
		if err := e.reg.AdjustStock(id, delta); err != nil {
			slog.Warn("event adjustment failed", "ware", id, "error", err)
			continue
		}
		fired.Applied++
	}
	slog.Info("market event", "description", sc.Description, "wares_hit", fired.Applied)
	return fired
}

// delta converts a magnitude category into a signed stock change sized as a
// fraction of the ware's equilibrium stock.
func (e *Engine) delta(wareID string, mag Magnitude) int64 {
	if mag == 0 {
		return 0
	}
	snap, ok := e.reg.SnapshotWare(wareID)
	if !ok {
		return 0
	}
	idx := int(mag)
	sign := int64(1)
	if idx < 0 {
		idx = -idx
		sign = -1
	}
	eq := e.cfg.QuanEquilibrium[config.Level(snap.Level)]
	amt := int64(e.cfg.EventMagnitudePercents[idx-1] * float64(eq))
	if amt < 1 {
		amt = 1
	}
	return sign * amt
}
