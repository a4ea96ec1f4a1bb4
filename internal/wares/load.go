// Catalog loading. The ware catalog is a line-oriented file: one JSON object
// per ware, plus bare metadata lines for alternate aliases and comments.
// Every JSON line is schema-checked before decoding; a bad entry is reported
// and skipped, never aborting the load.
package wares

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/talgya/bazaar/internal/config"
)

const recordSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["type", "wareID"],
	"properties": {
		"type": {"enum": ["material", "processed", "crafted", "untradeable", "linked"]},
		"wareID": {"type": "string", "minLength": 1},
		"alias": {"type": "string"},
		"priceBase": {"type": "number"},
		"level": {"type": "integer", "minimum": 0, "maximum": 5},
		"quantity": {"type": "integer"},
		"yield": {"type": "integer"},
		"componentsIDs": {"type": "array", "items": {"type": "string", "minLength": 1}},
		"ratios": {"type": "array", "items": {"type": "integer"}}
	},
	"additionalProperties": false
}`

var compiledSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("ware.schema.json", strings.NewReader(recordSchema)); err != nil {
		panic(err)
	}
	return c.MustCompile("ware.schema.json")
}()

// record mirrors one persisted catalog line.
type record struct {
	Type          string   `json:"type"`
	WareID        string   `json:"wareID"`
	Alias         string   `json:"alias,omitempty"`
	PriceBase     float64  `json:"priceBase,omitempty"`
	Level         int      `json:"level,omitempty"`
	Quantity      *int64   `json:"quantity,omitempty"`
	Yield         int      `json:"yield,omitempty"`
	ComponentsIDs []string `json:"componentsIDs,omitempty"`
	Ratios        []int    `json:"ratios,omitempty"`
}

// LoadResult is the outcome of parsing a catalog source.
type LoadResult struct {
	Wares []*Ware
	// AltAliases maps alternate alias / external tag name to ware ID, from
	// the bare "alt,<name>,<wareID>" metadata lines.
	AltAliases map[string]string
	// Skipped counts entries rejected during parsing.
	Skipped int
}

// LoadFile parses the catalog file at path.
func LoadFile(path string, cfg *config.Config) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f, cfg)
}

// Parse reads a line-oriented catalog from r. Component references are not
// resolved here; callers run Resolve once the full set is assembled.
func Parse(r io.Reader, cfg *config.Config) (*LoadResult, error) {
	res := &LoadResult{AltAliases: make(map[string]string)}
	seen := make(map[string]bool)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "alt,"):
			parts := strings.SplitN(line, ",", 3)
			if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
				slog.Warn("malformed alias line skipped", "line", lineNo)
				res.Skipped++
				continue
			}
			res.AltAliases[parts[1]] = parts[2]
			continue
		}

		w, err := parseRecord([]byte(line), cfg)
		if err != nil {
			slog.Warn("catalog entry skipped", "line", lineNo, "error", err)
			res.Skipped++
			continue
		}
		if seen[w.ID] {
			slog.Warn("duplicate ware ID skipped", "line", lineNo, "ware", w.ID)
			res.Skipped++
			continue
		}
		seen[w.ID] = true
		res.Wares = append(res.Wares, w)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return res, nil
}

func parseRecord(line []byte, cfg *config.Config) (*Ware, error) {
	var generic any
	if err := json.Unmarshal(line, &generic); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, err
	}

	kind, ok := KindFromString(rec.Type)
	if !ok {
		return nil, fmt.Errorf("unknown ware type %q", rec.Type)
	}

	w := &Ware{
		ID:              rec.WareID,
		Alias:           rec.Alias,
		Kind:            kind,
		Level:           config.Level(rec.Level),
		BasePrice:       rec.PriceBase,
		Yield:           rec.Yield,
		ComponentIDs:    rec.ComponentsIDs,
		ComponentRatios: rec.Ratios,
	}
	if w.Yield < 1 {
		if rec.Yield != 0 {
			slog.Warn("invalid yield clamped to 1", "ware", w.ID, "yield", rec.Yield)
		}
		w.Yield = 1
	}

	switch kind {
	case Material:
		if rec.Quantity != nil {
			w.Quantity = *rec.Quantity
		} else {
			w.Quantity = cfg.QuanStartBase[w.Level]
		}
		if w.BasePrice <= 0 {
			return nil, fmt.Errorf("material %s needs a positive priceBase", w.ID)
		}
	case Processed, Crafted:
		if len(rec.ComponentsIDs) == 0 {
			return nil, fmt.Errorf("%s ware %s has no components", rec.Type, w.ID)
		}
		if rec.Quantity != nil {
			w.Quantity = *rec.Quantity
		} else {
			w.Quantity = cfg.QuanStartBase[w.Level]
		}
		w.BasePrice = math.NaN() // derived from components after resolution
	case Untradeable:
		w.Quantity = QuantityInfinite
		w.BasePrice = math.NaN()
		if rec.PriceBase > 0 {
			// Untradeable wares may carry a reference price used only
			// for manufactured base price derivation.
			w.BasePrice = rec.PriceBase
		}
	case Linked:
		if len(rec.ComponentsIDs) == 0 {
			return nil, fmt.Errorf("linked ware %s has no components", w.ID)
		}
		w.Quantity = 0
		w.BasePrice = math.NaN()
	}

	return w, nil
}
