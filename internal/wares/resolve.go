// Component reference resolution and manufactured base price derivation.
// Runs after every bulk load and after admin ware creation; references are
// stored by ID in the catalog, never embedded.
package wares

import (
	"fmt"
	"log/slog"
	"math"
)

// Resolve wires component references for every ware in the set, clamps
// invalid yields, and derives manufactured and linked base prices. Wares
// whose references cannot be resolved are reported in the returned error
// list and left with NaN base price; the rest of the set still resolves.
func Resolve(all map[string]*Ware) []error {
	var errs []error

	for _, w := range all {
		if w.Yield < 1 {
			slog.Warn("invalid yield clamped to 1", "ware", w.ID, "yield", w.Yield)
			w.Yield = 1
		}

		w.Components = w.Components[:0]
		broken := false
		for _, id := range w.ComponentIDs {
			c, ok := all[id]
			if !ok {
				errs = append(errs, fmt.Errorf("ware %s: component %q does not exist", w.ID, id))
				broken = true
				continue
			}
			w.Components = append(w.Components, c)
		}
		if broken {
			w.Components = nil
			if w.Kind != Material {
				w.BasePrice = math.NaN()
			}
			continue
		}

		if w.Kind == Linked && len(w.ComponentRatios) != len(w.ComponentIDs) {
			slog.Warn("linked ware has mismatched component ratios",
				"ware", w.ID,
				"components", len(w.ComponentIDs),
				"ratios", len(w.ComponentRatios))
			w.BasePrice = math.NaN()
		}
	}

	// Base price derivation walks component chains, so it runs after all
	// references are wired.
	for _, w := range all {
		deriveBasePrice(w, make(map[string]bool))
	}

	return errs
}

// deriveBasePrice computes a manufactured or linked ware's base price from
// its components, recursing through manufactured components first. The
// visited set guards against cyclic definitions.
func deriveBasePrice(w *Ware, visited map[string]bool) float64 {
	if w == nil {
		return math.NaN()
	}
	if visited[w.ID] {
		slog.Warn("component cycle detected", "ware", w.ID)
		return math.NaN()
	}

	switch w.Kind {
	case Material, Untradeable:
		return w.BasePrice
	case Processed, Crafted:
		if len(w.Components) == 0 || len(w.Components) != len(w.ComponentIDs) {
			w.BasePrice = math.NaN()
			return w.BasePrice
		}
		visited[w.ID] = true
		sum := 0.0
		for _, c := range w.Components {
			sum += deriveBasePrice(c, visited)
		}
		delete(visited, w.ID)
		w.BasePrice = sum / float64(w.Yield)
		return w.BasePrice
	case Linked:
		if !w.linkedUsable() {
			w.BasePrice = math.NaN()
			return w.BasePrice
		}
		visited[w.ID] = true
		sum := 0.0
		for i, c := range w.Components {
			ratio := float64(w.ComponentRatios[i])
			if ratio <= 0 {
				ratio = 1
			}
			sum += ratio * deriveBasePrice(c, visited)
		}
		delete(visited, w.ID)
		w.BasePrice = sum / float64(w.Yield)
		return w.BasePrice
	default:
		return math.NaN()
	}
}
