// Package market owns the marketplace registry: the ware map, alias
// resolution, aggregate statistics, and every operation that reads or
// mutates stock. All trade and worker access funnels through the registry
// so a single ware's compute-then-apply sequence stays atomic.
package market

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/talgya/bazaar/internal/config"
	"github.com/talgya/bazaar/internal/wares"
)

// Stats aggregates the tradeable, non-linked ware population. The spread
// term of the price curve consumes the average base price.
type Stats struct {
	WareCount           int
	AverageBasePrice    float64
	MedianBasePrice     float64
	MedianStartQuantity int64
}

// Registry is the process-wide marketplace state.
type Registry struct {
	mu      sync.Mutex
	cfg     *config.Config
	wares   map[string]*wares.Ware
	aliases map[string]string
	stats   Stats
}

// New creates an empty registry.
func New(cfg *config.Config) *Registry {
	return &Registry{
		cfg:     cfg,
		wares:   make(map[string]*wares.Ware),
		aliases: make(map[string]string),
	}
}

// LoadCatalog replaces the registry contents with a parsed catalog. Indices
// and statistics are rebuilt in full; entries with unresolvable references
// are dropped with a report rather than aborting the load.
func (r *Registry) LoadCatalog(res *wares.LoadResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wares = make(map[string]*wares.Ware, len(res.Wares))
	r.aliases = make(map[string]string)

	for _, w := range res.Wares {
		if _, dup := r.wares[w.ID]; dup {
			slog.Warn("duplicate ware ID dropped", "ware", w.ID)
			continue
		}
		r.wares[w.ID] = w
	}

	for _, w := range res.Wares {
		if w.Alias == "" {
			continue
		}
		if _, isID := r.wares[w.Alias]; isID {
			slog.Warn("alias collides with a ware ID, dropped", "ware", w.ID, "alias", w.Alias)
			w.Alias = ""
			continue
		}
		if other, taken := r.aliases[w.Alias]; taken {
			slog.Warn("duplicate alias dropped", "ware", w.ID, "alias", w.Alias, "held_by", other)
			w.Alias = ""
			continue
		}
		r.aliases[w.Alias] = w.ID
	}
	for name, id := range res.AltAliases {
		if _, ok := r.wares[id]; !ok {
			slog.Warn("alternate alias points at unknown ware", "alias", name, "ware", id)
			continue
		}
		if _, isID := r.wares[name]; isID {
			continue
		}
		r.aliases[name] = id
	}

	for _, err := range wares.Resolve(r.wares) {
		slog.Warn("catalog resolution", "error", err)
	}
	r.rebuildStats()

	slog.Info("catalog loaded",
		"wares", len(r.wares),
		"aliases", len(r.aliases),
		"skipped", res.Skipped,
	)
}

// UpsertWare adds or replaces a single ware, re-resolving references and
// statistics incrementally (admin create/edit path).
func (r *Registry) UpsertWare(w *wares.Ware) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w.ID == "" {
		return fmt.Errorf("ware ID is required")
	}
	if w.Alias != "" {
		if _, isID := r.wares[w.Alias]; isID && w.Alias != w.ID {
			return fmt.Errorf("alias %q collides with a ware ID", w.Alias)
		}
		if held, taken := r.aliases[w.Alias]; taken && held != w.ID {
			return fmt.Errorf("alias %q already held by %s", w.Alias, held)
		}
	}

	if old, ok := r.wares[w.ID]; ok && old.Alias != "" {
		delete(r.aliases, old.Alias)
	}
	r.wares[w.ID] = w
	if w.Alias != "" {
		r.aliases[w.Alias] = w.ID
	}

	errs := wares.Resolve(r.wares)
	for _, err := range errs {
		slog.Warn("catalog resolution", "error", err)
	}
	r.rebuildStats()
	if math.IsNaN(w.BasePrice) && w.Kind != wares.Untradeable && w.Kind != wares.Linked {
		return fmt.Errorf("ware %s has no usable base price after resolution", w.ID)
	}
	return nil
}

// RemoveWare deletes a ware from the registry.
func (r *Registry) RemoveWare(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wares[id]
	if !ok {
		return fmt.Errorf("ware %q does not exist", id)
	}
	delete(r.wares, id)
	if w.Alias != "" {
		delete(r.aliases, w.Alias)
	}
	for name, target := range r.aliases {
		if target == id {
			delete(r.aliases, name)
		}
	}
	for _, err := range wares.Resolve(r.wares) {
		slog.Warn("catalog resolution", "error", err)
	}
	r.rebuildStats()
	return nil
}

// rebuildStats recomputes aggregates over tradeable, non-linked wares.
// Callers hold the lock.
func (r *Registry) rebuildStats() {
	var prices []float64
	var quantities []int64

	for _, w := range r.wares {
		if !w.Tradeable() || w.Kind == wares.Linked {
			continue
		}
		if math.IsNaN(w.BasePrice) {
			continue
		}
		prices = append(prices, w.BasePrice)
		quantities = append(quantities, r.cfg.QuanStartBase[config.Level(w.Level)])
	}

	r.stats = Stats{WareCount: len(prices)}
	if len(prices) == 0 {
		return
	}

	sum := 0.0
	for _, p := range prices {
		sum += p
	}
	sort.Float64s(prices)
	sort.Slice(quantities, func(i, j int) bool { return quantities[i] < quantities[j] })

	r.stats.AverageBasePrice = sum / float64(len(prices))
	r.stats.MedianBasePrice = medianFloat(prices)
	r.stats.MedianStartQuantity = medianInt(quantities)
}

// medianFloat and medianInt take sorted inputs and average the two middle
// elements for even-length populations.
func medianFloat(sorted []float64) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func medianInt(sorted []int64) int64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Statistics returns a copy of the current aggregates.
func (r *Registry) Statistics() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// TranslateWareID resolves a raw ware ID, an alias, an alternate alias or
// external tag name, or a "base&N" variant suffix to a canonical ware ID.
// Unknown variants fall back to the bare base ID. Returns "" on total
// failure; this call never errors.
func (r *Registry) TranslateWareID(input string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.translateLocked(input)
}

func (r *Registry) translateLocked(input string) string {
	if input == "" {
		return ""
	}
	if _, ok := r.wares[input]; ok {
		return input
	}
	if id, ok := r.aliases[input]; ok {
		return id
	}
	if idx := strings.LastIndex(input, "&"); idx > 0 {
		return r.translateLocked(input[:idx])
	}
	return ""
}

// Suggest returns the closest known ware ID or alias to the input, for
// "did you mean" diagnostics. Empty when nothing is plausibly close.
func (r *Registry) Suggest(input string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	best, bestDist := "", suggestLimit(len(input))+1
	consider := func(cand string) {
		d := levenshtein.ComputeDistance(input, cand)
		if d < bestDist {
			best, bestDist = cand, d
		}
	}
	for id := range r.wares {
		consider(id)
	}
	for name := range r.aliases {
		consider(name)
	}
	return best
}

// suggestLimit scales the acceptable edit distance with the input length.
func suggestLimit(n int) int {
	switch {
	case n <= 4:
		return 1
	case n <= 8:
		return 2
	default:
		return 3
	}
}

// Rebalance moves every tradeable ware's stock toward its equilibrium by at
// most percent x equilibrium, never overshooting. Untradeable wares are
// skipped; linked wares rebalance through their backing components.
func (r *Registry) Rebalance(percent float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	moved := 0
	for _, w := range r.wares {
		if !w.Tradeable() || w.Kind == wares.Linked {
			continue
		}
		eq := r.cfg.QuanEquilibrium[config.Level(w.Level)]
		q := w.Stock()
		if q == eq {
			continue
		}
		step := int64(percent * float64(eq))
		dist := eq - q
		if dist < 0 {
			if step > -dist {
				step = -dist
			}
			w.AddStock(-step, r.cfg.AllowNegativeStock)
		} else {
			if step > dist {
				step = dist
			}
			w.AddStock(step, r.cfg.AllowNegativeStock)
		}
		if step != 0 {
			moved++
		}
	}
	return moved
}

// Equilibrium returns the equilibrium stock for a ware's level.
func (r *Registry) Equilibrium(w *wares.Ware) int64 {
	return r.cfg.QuanEquilibrium[config.Level(w.Level)]
}

// Snapshot is a read-only view of one ware for front ends and persistence.
type Snapshot struct {
	ID        string  `json:"wareID"`
	Alias     string  `json:"alias,omitempty"`
	Kind      string  `json:"type"`
	Level     int     `json:"level"`
	BasePrice float64 `json:"priceBase"`
	Quantity  int64   `json:"quantity"`
	BuyPrice  float64 `json:"buyPrice"`
	SellPrice float64 `json:"sellPrice"`
}

// SnapshotAll returns a view of every ware, sorted by ID.
func (r *Registry) SnapshotAll() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.wares))
	for _, w := range r.wares {
		out = append(out, r.snapshotLocked(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SnapshotWare returns a view of one ware resolved through TranslateWareID.
func (r *Registry) SnapshotWare(input string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.translateLocked(input)
	w, ok := r.wares[id]
	if !ok {
		return Snapshot{}, false
	}
	return r.snapshotLocked(w), true
}

func (r *Registry) snapshotLocked(w *wares.Ware) Snapshot {
	return Snapshot{
		ID:        w.ID,
		Alias:     w.Alias,
		Kind:      w.Kind.String(),
		Level:     w.Level,
		BasePrice: w.BasePrice,
		Quantity:  w.Stock(),
		BuyPrice:  r.priceLocked(w, 0, CurrentBuy),
		SellPrice: r.priceLocked(w, 0, CurrentSell),
	}
}

// SetStockNumeric sets a ware's stock to an explicit value (admin path).
func (r *Registry) SetStockNumeric(input string, quantity int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wares[r.translateLocked(input)]
	if !ok {
		return fmt.Errorf("ware %q does not exist", input)
	}
	if !w.Tradeable() {
		return fmt.Errorf("ware %s is not tradeable", w.ID)
	}
	w.SetStock(quantity, r.cfg.AllowNegativeStock)
	return nil
}

// SetStockNamed sets a ware's stock to one of the named threshold levels:
// equilibrium, overstocked, or understocked.
func (r *Registry) SetStockNamed(input, level string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wares[r.translateLocked(input)]
	if !ok {
		return fmt.Errorf("ware %q does not exist", input)
	}
	if !w.Tradeable() {
		return fmt.Errorf("ware %s is not tradeable", w.ID)
	}

	lvl := config.Level(w.Level)
	var q int64
	switch level {
	case "equilibrium":
		q = r.cfg.QuanEquilibrium[lvl]
	case "overstocked":
		q = r.cfg.QuanExcessive[lvl]
	case "understocked":
		q = r.cfg.QuanDeficient[lvl]
	default:
		return fmt.Errorf("unknown stock level %q (want equilibrium, overstocked, or understocked)", level)
	}
	w.SetStock(q, r.cfg.AllowNegativeStock)
	return nil
}

// AdjustStock applies a signed stock delta to a ware, honoring the
// no-garbage-disposing floor bound on supply-adding deltas. Used by the
// random event engine and the AI finalization pass.
func (r *Registry) AdjustStock(id string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adjustStockLocked(id, delta)
}

func (r *Registry) adjustStockLocked(id string, delta int64) error {
	w, ok := r.wares[r.translateLocked(id)]
	if !ok {
		return fmt.Errorf("ware %q does not exist", id)
	}
	if !w.Tradeable() {
		return fmt.Errorf("ware %s is not tradeable", w.ID)
	}
	if delta > 0 && r.cfg.NoGarbageDisposing {
		bound := r.floorBoundStock(w)
		q := w.Stock()
		if q >= bound {
			return nil
		}
		if q+delta > bound {
			delta = bound - q
		}
	}
	w.AddStock(delta, r.cfg.AllowNegativeStock)
	return nil
}

// Price quotes a ware by ID, alias, or variant name.
func (r *Registry) Price(input string, quantity int64, pt PriceType) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wares[r.translateLocked(input)]
	if !ok {
		return math.NaN()
	}
	return r.priceLocked(w, quantity, pt)
}

// WareState is the persisted live state of one ware: everything else comes
// back from the catalog on reload.
type WareState struct {
	ID       string `db:"id"`
	Quantity int64  `db:"quantity"`
}

// ExportState captures the live quantities of every stored-stock ware.
// Linked and untradeable wares carry no stock of their own.
func (r *Registry) ExportState() []WareState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]WareState, 0, len(r.wares))
	for _, w := range r.wares {
		if w.Kind == wares.Linked || w.Kind == wares.Untradeable {
			continue
		}
		out = append(out, WareState{ID: w.ID, Quantity: w.Quantity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RestoreState applies persisted quantities over the loaded catalog. State
// rows for wares no longer in the catalog are skipped with a report.
func (r *Registry) RestoreState(states []WareState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	restored := 0
	for _, st := range states {
		w, ok := r.wares[st.ID]
		if !ok {
			slog.Warn("saved state for unknown ware skipped", "ware", st.ID)
			continue
		}
		if w.Kind == wares.Linked || w.Kind == wares.Untradeable {
			continue
		}
		w.Quantity = st.Quantity
		restored++
	}
	slog.Info("ware state restored", "wares", restored)
}
