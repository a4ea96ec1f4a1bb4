// Package engine drives the marketplace's periodic workers from a single
// tick loop: the rebalancer, the random-event check, the AI trading tick,
// and the autosave each run on their own cadence.
package engine

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Engine advances a monotonic tick counter and fires worker callbacks on
// their configured cadences. No worker holds state across ticks; each one
// takes the registry lock for the duration of a single tick only. The tick
// counter, speed, and running flag are read by the status endpoint while
// the loop runs, so they live behind atomics.
type Engine struct {
	tick    atomic.Uint64 // current tick counter (monotonic, never resets)
	speed   atomic.Uint64 // float64 bits; 1.0 = real-time, 0 = paused
	running atomic.Bool

	Interval time.Duration // base tick interval

	// Worker cadences, in ticks. Zero disables a worker.
	RebalanceTicks int
	EventTicks     int
	AITicks        int
	AutosaveTicks  int

	// Worker callbacks, populated during setup.
	OnRebalance func(tick uint64)
	OnEvent     func(tick uint64)
	OnAI        func(tick uint64)
	OnAutosave  func(tick uint64)
}

// New creates an engine with the given cadences and a one-second base tick.
func New(rebalance, event, ai, autosave int) *Engine {
	e := &Engine{
		Interval:       time.Second,
		RebalanceTicks: rebalance,
		EventTicks:     event,
		AITicks:        ai,
		AutosaveTicks:  autosave,
	}
	e.SetSpeed(1.0)
	return e
}

// Tick returns the current tick counter.
func (e *Engine) Tick() uint64 { return e.tick.Load() }

// SetTick seeds the tick counter, for restoring persisted state at startup.
func (e *Engine) SetTick(t uint64) { e.tick.Store(t) }

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 { return math.Float64frombits(e.speed.Load()) }

// SetSpeed changes the speed multiplier. Zero or below pauses the loop.
func (e *Engine) SetSpeed(v float64) { e.speed.Store(math.Float64bits(v)) }

// Running reports whether the tick loop is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Run starts the tick loop. Blocks until Stop is called.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("market engine started", "tick", e.Tick(), "speed", e.Speed())

	for e.running.Load() {
		speed := e.Speed()
		if speed <= 0 {
			// Paused.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		e.step()

		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("market engine stopped", "tick", e.Tick())
}

// Stop halts the tick loop after the current tick.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// step advances one tick and fires due workers. A panicking worker is
// recovered and logged; one bad tick must never take the engine down.
func (e *Engine) step() {
	tick := e.tick.Add(1)

	e.fire(tick, e.AITicks, e.OnAI, "ai")
	e.fire(tick, e.EventTicks, e.OnEvent, "events")
	e.fire(tick, e.RebalanceTicks, e.OnRebalance, "rebalance")
	e.fire(tick, e.AutosaveTicks, e.OnAutosave, "autosave")
}

func (e *Engine) fire(tick uint64, every int, fn func(uint64), name string) {
	if every <= 0 || fn == nil || tick%uint64(every) != 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker tick panicked", "worker", name, "tick", tick, "panic", r)
		}
	}()
	fn(tick)
}
