// Marketplace ties the registry and its workers together and keeps the
// in-memory event log the API and autosave drain.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/bazaar/internal/config"
	"github.com/talgya/bazaar/internal/events"
	"github.com/talgya/bazaar/internal/market"
	"github.com/talgya/bazaar/internal/persistence"
	"github.com/talgya/bazaar/internal/trader"
)

// maxBufferedEvents bounds the in-memory log between autosaves.
const maxBufferedEvents = 1000

// Marketplace is the running marketplace: registry plus workers plus the
// event buffer.
type Marketplace struct {
	Reg     *market.Registry
	Traders *trader.Engine
	Events  *events.Engine
	cfg     *config.Config

	mu       sync.Mutex
	log      []persistence.Event
	lastTick uint64
}

// NewMarketplace wires a coordinator. Traders and Events may be nil when
// the corresponding worker is disabled.
func NewMarketplace(reg *market.Registry, traders *trader.Engine, ev *events.Engine, cfg *config.Config) *Marketplace {
	return &Marketplace{Reg: reg, Traders: traders, Events: ev, cfg: cfg}
}

// CurrentTick returns the most recently processed tick.
func (m *Marketplace) CurrentTick() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTick
}

// Emit records an event in the buffered log.
func (m *Marketplace) Emit(tick uint64, category, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTick = tick
	m.log = append(m.log, persistence.Event{Tick: tick, Description: description, Category: category})
	if len(m.log) > maxBufferedEvents {
		m.log = m.log[len(m.log)-maxBufferedEvents:]
	}
}

// DrainEvents returns the buffered events and clears the buffer (autosave
// path).
func (m *Marketplace) DrainEvents() []persistence.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.log
	m.log = nil
	return out
}

// RecentEvents returns up to n buffered events, newest last.
func (m *Marketplace) RecentEvents(n int) []persistence.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.log) {
		n = len(m.log)
	}
	out := make([]persistence.Event, n)
	copy(out, m.log[len(m.log)-n:])
	return out
}

// TickRebalance nudges every ware toward equilibrium.
func (m *Marketplace) TickRebalance(tick uint64) {
	moved := m.Reg.Rebalance(m.cfg.RebalancePercent)
	if moved > 0 {
		m.Emit(tick, "rebalance", fmt.Sprintf("rebalancer moved %d wares toward equilibrium", moved))
	}
	slog.Debug("rebalance tick", "tick", tick, "wares_moved", moved)
}

// TickEvents rolls the random-event chance.
func (m *Marketplace) TickEvents(tick uint64) {
	if m.Events == nil {
		return
	}
	if fired := m.Events.MaybeFire(tick); fired != nil {
		m.Emit(tick, "event", fired.Description)
	} else {
		m.mu.Lock()
		m.lastTick = tick
		m.mu.Unlock()
	}
}

// TickAI runs the trading agents.
func (m *Marketplace) TickAI(tick uint64) {
	if m.Traders == nil {
		return
	}
	if committed := m.Traders.Tick(); committed > 0 {
		m.Emit(tick, "trade", fmt.Sprintf("trading agents committed %d trades", committed))
	}
}

// Report logs a market summary at the autosave cadence.
func (m *Marketplace) Report(tick uint64) {
	stats := m.Reg.Statistics()
	slog.Info("market report",
		"tick", tick,
		"wares", stats.WareCount,
		"avg_base_price", humanize.CommafWithDigits(stats.AverageBasePrice, 2),
		"median_base_price", humanize.CommafWithDigits(stats.MedianBasePrice, 2),
		"median_start_quantity", humanize.Comma(stats.MedianStartQuantity),
	)
}
