package wares

import (
	"math"
	"strings"
	"testing"

	"github.com/talgya/bazaar/internal/config"
)

const sampleCatalog = `
# minerals
{"type": "material", "wareID": "iron_ore", "alias": "ore", "priceBase": 4.0, "level": 2}
{"type": "material", "wareID": "coal", "priceBase": 2.0, "level": 2, "quantity": 100}
alt,mod:ore,iron_ore

{"type": "processed", "wareID": "iron_ingot", "level": 3, "componentsIDs": ["iron_ore", "coal"], "yield": 2}
{"type": "untradeable", "wareID": "essence", "level": 1}
{"type": "linked", "wareID": "nine_coal", "level": 2, "componentsIDs": ["coal"], "ratios": [9]}
`

func parseSample(t *testing.T) *LoadResult {
	t.Helper()
	res, err := Parse(strings.NewReader(sampleCatalog), config.Default())
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func wareMap(res *LoadResult) map[string]*Ware {
	m := make(map[string]*Ware, len(res.Wares))
	for _, w := range res.Wares {
		m[w.ID] = w
	}
	return m
}

func TestParseCatalog(t *testing.T) {
	res := parseSample(t)

	if len(res.Wares) != 5 {
		t.Fatalf("parsed %d wares, want 5", len(res.Wares))
	}
	if res.Skipped != 0 {
		t.Fatalf("skipped %d entries, want 0", res.Skipped)
	}
	if res.AltAliases["mod:ore"] != "iron_ore" {
		t.Fatalf("alt aliases = %v", res.AltAliases)
	}

	m := wareMap(res)
	if m["iron_ore"].Quantity != 64 { // level-2 start quantity default
		t.Fatalf("defaulted quantity = %d, want 64", m["iron_ore"].Quantity)
	}
	if m["coal"].Quantity != 100 { // explicit quantity wins
		t.Fatalf("explicit quantity = %d, want 100", m["coal"].Quantity)
	}
	if !math.IsNaN(m["iron_ingot"].BasePrice) {
		t.Fatal("manufactured base price should stay unset until resolution")
	}
	if m["essence"].Quantity != QuantityInfinite {
		t.Fatal("untradeable quantity should be the infinite sentinel")
	}
}

func TestParseRejectsBadEntries(t *testing.T) {
	bad := `
{"type": "material", "wareID": "ok", "priceBase": 1.0, "level": 0}
{"type": "material", "wareID": "ok", "priceBase": 1.0, "level": 0}
{"type": "material", "wareID": "no_price", "level": 0}
{"type": "material", "wareID": "deep", "priceBase": 1.0, "level": 9}
{"type": "material", "wareID": "extra", "priceBase": 1.0, "sparkles": true}
{"type": "dream", "wareID": "x"}
{"type": "processed", "wareID": "hollow", "level": 1}
not json at all
alt,broken
`
	res, err := Parse(strings.NewReader(bad), config.Default())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Wares) != 1 || res.Wares[0].ID != "ok" {
		t.Fatalf("wares = %v, want just the first valid entry", res.Wares)
	}
	if res.Skipped != 8 {
		t.Fatalf("skipped %d entries, want 8", res.Skipped)
	}
}

func TestResolveDerivesManufacturedPrices(t *testing.T) {
	res := parseSample(t)
	m := wareMap(res)
	if errs := Resolve(m); len(errs) != 0 {
		t.Fatalf("resolve errors: %v", errs)
	}

	// Two components at 4.0 + 2.0, yield 2: 3.0 per output unit.
	if got := m["iron_ingot"].BasePrice; got != 3.0 {
		t.Fatalf("derived base price = %v, want 3.0", got)
	}

	// Re-parsing and re-resolving the identical catalog must land on the
	// identical prices (no order- or state-dependence).
	res2 := parseSample(t)
	m2 := wareMap(res2)
	Resolve(m2)
	if m2["iron_ingot"].BasePrice != m["iron_ingot"].BasePrice {
		t.Fatalf("reload drifted the derived price: %v vs %v",
			m2["iron_ingot"].BasePrice, m["iron_ingot"].BasePrice)
	}
}

func TestResolveUnresolvedComponent(t *testing.T) {
	m := map[string]*Ware{
		"widget": {ID: "widget", Kind: Processed, Level: 1, Yield: 1,
			ComponentIDs: []string{"phantom"}},
	}
	errs := Resolve(m)
	if len(errs) == 0 {
		t.Fatal("missing component went unreported")
	}
	if !math.IsNaN(m["widget"].BasePrice) {
		t.Fatalf("base price = %v, want NaN for unresolvable ware", m["widget"].BasePrice)
	}
}

func TestResolveCyclicComponents(t *testing.T) {
	m := map[string]*Ware{
		"a": {ID: "a", Kind: Processed, Level: 1, Yield: 1, ComponentIDs: []string{"b"}},
		"b": {ID: "b", Kind: Processed, Level: 1, Yield: 1, ComponentIDs: []string{"a"}},
	}
	Resolve(m) // must terminate
	if !math.IsNaN(m["a"].BasePrice) || !math.IsNaN(m["b"].BasePrice) {
		t.Fatal("cyclic wares should resolve to NaN prices")
	}
}

func TestLinkedStockRoundTrip(t *testing.T) {
	res := parseSample(t)
	m := wareMap(res)
	Resolve(m)

	coal, linked := m["coal"], m["nine_coal"]
	coal.Quantity = 90
	if got := linked.Stock(); got != 10 {
		t.Fatalf("linked stock over 90 coal at ratio 9 = %d, want 10", got)
	}

	linked.SetStock(2, false)
	if coal.Quantity != 18 {
		t.Fatalf("component stock after linked set = %d, want 18", coal.Quantity)
	}
	if got := linked.Stock(); got != 2 {
		t.Fatalf("linked stock after set = %d, want 2", got)
	}

	// Deltas round components away from zero so the linked change is
	// never under-delivered.
	linked.AddStock(1, false)
	if coal.Quantity != 27 {
		t.Fatalf("component stock after linked add = %d, want 27", coal.Quantity)
	}
}

func TestAddStockClampsAtZero(t *testing.T) {
	w := &Ware{ID: "x", Kind: Material, Quantity: 3, Yield: 1}

	w.AddStock(-10, false)
	if w.Quantity != 0 {
		t.Fatalf("clamped quantity = %d, want 0", w.Quantity)
	}

	w.Quantity = 3
	w.AddStock(-10, true)
	if w.Quantity != -7 {
		t.Fatalf("negative-allowed quantity = %d, want -7", w.Quantity)
	}
}

func TestUntradeableStockIsInert(t *testing.T) {
	w := &Ware{ID: "essence", Kind: Untradeable, Quantity: QuantityInfinite, Yield: 1}

	w.SetStock(5, false)
	w.AddStock(-5, false)
	if w.Stock() != QuantityInfinite {
		t.Fatal("untradeable stock must stay infinite")
	}
}
