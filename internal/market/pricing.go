// The quantity -> price function. A ware's unit price is a piecewise-linear
// function of its stock relative to the per-level thresholds, split into four
// quadrants by the equilibrium point and the deficient/excessive bounds:
//
//	q < deficient:              scarce beyond the band; capped at the
//	                            adjusted ceiling
//	deficient <= q < eq:        linear climb toward the price ceiling
//	eq <= q <= excessive:       linear fall toward the price floor
//	q > excessive:              oversupplied beyond the band; capped at the
//	                            adjusted (possibly negative) floor
//
// The identity point is quantity == equilibrium, where the unit sell price
// equals the ware's base price exactly.
package market

import (
	"math"

	"github.com/talgya/bazaar/internal/config"
	"github.com/talgya/bazaar/internal/wares"
)

// PriceType selects which quote a price query computes.
type PriceType int

const (
	// CurrentBuy quotes a purchase at the ware's actual stock.
	CurrentBuy PriceType = iota
	// CurrentSell quotes a sale at the ware's actual stock.
	CurrentSell
	// CeilingBuy quotes a purchase with the curve pinned at the price
	// ceiling, used for out-of-stock manufacturing contracts.
	CeilingBuy
	// CeilingSell is the sell-side ceiling quote.
	CeilingSell
)

func (pt PriceType) buying() bool  { return pt == CurrentBuy || pt == CeilingBuy }
func (pt PriceType) ceiling() bool { return pt == CeilingBuy || pt == CeilingSell }

// maxPriceDepth bounds recursion through linked/manufactured component
// chains when quoting prices, so a cyclic catalog cannot hang a trade.
const maxPriceDepth = 8

// truncPrice truncates a price to the configured number of fractional
// digits. Truncation, not rounding: repeated trades must never drift a
// price upward past what the curve allows.
func truncPrice(p float64) float64 {
	if math.IsNaN(p) {
		return p
	}
	shift := math.Pow(10, config.PriceTruncDigits)
	return math.Trunc(p*shift) / shift
}

// spreadMult returns the per-ware multiplier scaling how far quotes deviate
// from base price. Wares pricier than the market average are spread harder
// when the configured spread exceeds 1, and vice versa.
func (r *Registry) spreadMult(w *wares.Ware) float64 {
	if r.cfg.PriceSpread == 1.0 {
		return 1.0
	}
	avg := r.stats.AverageBasePrice
	if avg <= 0 || w.BasePrice <= 0 || math.IsNaN(w.BasePrice) {
		return 1.0
	}
	return math.Pow(w.BasePrice/avg, r.cfg.PriceSpread-1)
}

// unitPrice computes one ware's unit sell-basis price at the given stock
// level. Buy upcharge and quantity integration live in priceLocked.
func (r *Registry) unitPrice(w *wares.Ware, at int64, pinCeiling bool, depth int) float64 {
	if w == nil || depth > maxPriceDepth {
		return math.NaN()
	}

	switch w.Kind {
	case wares.Untradeable:
		return math.NaN()
	case wares.Linked:
		// No stored price: sum the backing components' prices. A walk
		// offset from the live stock translates into component-stock
		// offsets through the ratios, so multi-unit quotes follow the
		// component curves.
		if len(w.Components) == 0 || len(w.Components) != len(w.ComponentRatios) {
			return math.NaN()
		}
		yield := int64(w.Yield)
		if yield <= 0 {
			yield = 1
		}
		off := at - w.Stock()
		sum := 0.0
		for i, c := range w.Components {
			ratio := int64(w.ComponentRatios[i])
			if ratio <= 0 {
				ratio = 1
			}
			cAt := c.Stock() + off*ratio/yield
			sum += float64(ratio) * r.unitPrice(c, cAt, pinCeiling, depth+1)
		}
		return sum / float64(yield)
	}

	base := w.BasePrice
	if math.IsNaN(base) {
		return math.NaN()
	}
	if r.cfg.PlannedEconomy {
		return base
	}

	mult := r.spreadMult(w)
	if pinCeiling {
		p := base + base*(r.cfg.PriceCeiling-1)*mult
		return p * r.linkedMult(w, depth)
	}

	lvl := config.Level(w.Level)
	def := r.cfg.QuanDeficient[lvl]
	eq := r.cfg.QuanEquilibrium[lvl]
	exc := r.cfg.QuanExcessive[lvl]
	span := float64(exc - def)
	if span <= 0 {
		span = 1
	}

	var raw float64
	if at >= eq {
		raw = base - base*(1-r.cfg.PriceFloor)*float64(at-eq)/span
	} else {
		raw = base + base*(r.cfg.PriceCeiling-1)*float64(eq-at)/span
	}
	p := base + (raw-base)*mult

	// Quadrant caps: inside the band the floor/ceiling bound the price;
	// beyond the band the adjusted variants take over.
	lo := base + base*(r.cfg.PriceFloor-1)*mult
	hi := base + base*(r.cfg.PriceCeiling-1)*mult
	if at > exc && r.cfg.NegativePrices {
		lo = base + base*(r.cfg.PriceFloorAdjusted-1)*mult
	}
	if at < def {
		hi = base + base*(r.cfg.PriceCeilingAdjusted-1)*mult
	}
	if p < lo {
		p = lo
	}
	if p > hi {
		p = hi
	}

	return p * r.linkedMult(w, depth)
}

// linkedMult is the manufactured-goods cost pass-through: when enabled, a
// Processed/Crafted quote scales with how far its components' current total
// price has drifted from their design-time base total, damped by the
// configured weight. Free or unpriceable components fall back to their base
// price so no NaN or infinity can reach the parent quote.
func (r *Registry) linkedMult(w *wares.Ware, depth int) float64 {
	if !r.cfg.LinkedPrices || !w.Manufactured() || len(w.Components) == 0 {
		return 1.0
	}
	if depth >= maxPriceDepth {
		return 1.0
	}

	baseCost, curCost := 0.0, 0.0
	for _, c := range w.Components {
		cb := c.BasePrice
		if math.IsNaN(cb) {
			continue
		}
		baseCost += cb
		cur := r.unitPrice(c, c.Stock(), false, depth+1)
		if math.IsNaN(cur) || math.IsInf(cur, 0) || cur <= 0 {
			cur = cb
		}
		curCost += cur
	}
	if baseCost <= 0 {
		return 1.0
	}
	m := 1 + r.cfg.LinkedPriceWeight*(curCost-baseCost)/baseCost
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return 1.0
	}
	if m < 0 {
		m = 0
	}
	return m
}

// priceLocked computes the total price for a quantity of a ware. Quantities
// above one are priced unit by unit along the curve: buying walks the stock
// downward, selling walks it upward, so each unit pays its own point rather
// than the whole lot paying the current-quantity price. Quantity zero
// returns the unit price. Callers hold the registry lock.
func (r *Registry) priceLocked(w *wares.Ware, quantity int64, pt PriceType) float64 {
	if w == nil || !w.Tradeable() {
		return math.NaN()
	}

	upcharge := 1.0
	if pt.buying() {
		upcharge = r.cfg.PriceBuyUpcharge
	}

	at := w.Stock()
	if quantity <= 0 {
		return truncPrice(r.unitPrice(w, at, pt.ceiling(), 0) * upcharge)
	}

	total := 0.0
	for i := int64(0); i < quantity; i++ {
		var q int64
		if pt.buying() {
			q = at - i
		} else {
			q = at + i
		}
		total += r.unitPrice(w, q, pt.ceiling(), 0)
	}
	return truncPrice(total * upcharge)
}

// floorBoundStock returns the highest stock level at which the ware's unit
// price still sits strictly above the price floor. The no-garbage-disposing
// guard refuses to push stock past this bound.
func (r *Registry) floorBoundStock(w *wares.Ware) int64 {
	lvl := config.Level(w.Level)
	eq := r.cfg.QuanEquilibrium[lvl]
	span := r.cfg.QuanExcessive[lvl] - r.cfg.QuanDeficient[lvl]
	if span <= 0 {
		span = 1
	}
	// The sell curve hits the floor exactly at eq + span; the spread
	// multiplier scales price deviation and floor identically, so the
	// crossing point does not move.
	return eq + span - 1
}
