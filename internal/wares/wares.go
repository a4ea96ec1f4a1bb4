// Package wares defines the tradeable entity model: ware variants, stock
// storage, and quantity propagation through component chains.
package wares

import (
	"math"
)

// Kind discriminates the closed set of ware variants.
type Kind uint8

const (
	// Material has independently stored stock and base price.
	Material Kind = iota
	// Processed has stored stock; its base price derives from components.
	Processed
	// Crafted is like Processed but one production tier up.
	Crafted
	// Untradeable never sells on the market. It may still declare
	// components, in which case it is purely a manufacturing input.
	Untradeable
	// Linked stores neither price nor quantity; both are computed live
	// from its backing components.
	Linked
)

var kindNames = map[Kind]string{
	Material:    "material",
	Processed:   "processed",
	Crafted:     "crafted",
	Untradeable: "untradeable",
	Linked:      "linked",
}

// String returns the catalog-file discriminator for the kind.
func (k Kind) String() string { return kindNames[k] }

// KindFromString parses a catalog-file type discriminator.
func KindFromString(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return Material, false
}

// QuantityInfinite is the sentinel stock of Untradeable wares. They never
// expose real stock and never run out as manufacturing inputs.
const QuantityInfinite int64 = math.MaxInt64

// Ware is the central marketplace entity. The registry exclusively owns
// every Ware; other components hold only IDs.
type Ware struct {
	ID    string
	Alias string
	Kind  Kind
	Level int

	// BasePrice is the reference price at equilibrium stock. NaN until
	// derivation for manufactured kinds, and permanently NaN for a Linked
	// ware with an invalid ratio set.
	BasePrice float64

	// Quantity is the stored stock. Meaningless for Linked (computed
	// live) and Untradeable (infinite sentinel) wares.
	Quantity int64

	// Yield is how many output units one set of components produces.
	// Always >= 1 after resolution.
	Yield int

	ComponentIDs []string
	// ComponentRatios is Linked-only: units of each component backing one
	// yield-set of this ware. Parallel to ComponentIDs.
	ComponentRatios []int

	// Components holds the resolved references, populated by Resolve.
	Components []*Ware
}

// Tradeable reports whether the ware can be bought or sold directly.
func (w *Ware) Tradeable() bool {
	return w != nil && w.Kind != Untradeable
}

// Manufactured reports whether the ware's base price derives from components.
func (w *Ware) Manufactured() bool {
	return w != nil && (w.Kind == Processed || w.Kind == Crafted)
}

// HasComponents reports whether the ware declares component inputs.
func (w *Ware) HasComponents() bool {
	return w != nil && len(w.ComponentIDs) > 0
}

// linkedUsable reports whether a Linked ware's definition resolved cleanly.
func (w *Ware) linkedUsable() bool {
	return len(w.Components) > 0 &&
		len(w.Components) == len(w.ComponentRatios)
}

// Stock returns the ware's live quantity. Linked wares recompute from their
// components: the bottleneck component bounds the derivable amount.
func (w *Ware) Stock() int64 {
	if w == nil {
		return 0
	}
	switch w.Kind {
	case Untradeable:
		return QuantityInfinite
	case Linked:
		if !w.linkedUsable() {
			return 0
		}
		sets := int64(math.MaxInt64)
		for i, c := range w.Components {
			ratio := int64(w.ComponentRatios[i])
			if ratio <= 0 {
				ratio = 1
			}
			avail := c.Stock() / ratio
			if avail < sets {
				sets = avail
			}
		}
		return sets * int64(w.Yield)
	default:
		return w.Quantity
	}
}

// SetStock sets the ware's quantity. Linked wares translate the target into
// per-component targets and recurse; negative targets clamp to zero unless
// allowNegative is set.
func (w *Ware) SetStock(q int64, allowNegative bool) {
	if w == nil || w.Kind == Untradeable {
		return
	}
	if q < 0 && !allowNegative {
		q = 0
	}
	if w.Kind == Linked {
		if !w.linkedUsable() {
			return
		}
		for i, c := range w.Components {
			ratio := int64(w.ComponentRatios[i])
			if ratio <= 0 {
				ratio = 1
			}
			c.SetStock(ceilDiv(q*ratio, int64(w.Yield)), allowNegative)
		}
		return
	}
	w.Quantity = q
}

// AddStock adjusts the ware's quantity by delta (negative to subtract).
// Linked wares convert the delta into component deltas, rounding away from
// zero so the linked ware never under-delivers the requested change.
func (w *Ware) AddStock(delta int64, allowNegative bool) {
	if w == nil || w.Kind == Untradeable || delta == 0 {
		return
	}
	if w.Kind == Linked {
		if !w.linkedUsable() {
			return
		}
		for i, c := range w.Components {
			ratio := int64(w.ComponentRatios[i])
			if ratio <= 0 {
				ratio = 1
			}
			if delta > 0 {
				c.AddStock(ceilDiv(delta*ratio, int64(w.Yield)), allowNegative)
			} else {
				c.AddStock(-ceilDiv(-delta*ratio, int64(w.Yield)), allowNegative)
			}
		}
		return
	}
	q := w.Quantity + delta
	if q < 0 && !allowNegative {
		q = 0
	}
	w.Quantity = q
}

// ceilDiv divides non-negative a by positive b, rounding up.
func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
