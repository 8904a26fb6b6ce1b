// Package ai wires the construction scheduler, economy forecaster and the
// power and stockpile controllers behind the lifecycle hooks the game calls.
package ai

import (
	"errors"
	"log/slog"
	"math/rand/v2"

	"github.com/nstehr/vimy/vimy-builder/catalog"
	"github.com/nstehr/vimy/vimy-builder/economy"
	"github.com/nstehr/vimy/vimy-builder/metrics"
	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/power"
	"github.com/nstehr/vimy/vimy-builder/queue"
	"github.com/nstehr/vimy/vimy-builder/scheduler"
	"github.com/nstehr/vimy/vimy-builder/stockpile"
	"github.com/nstehr/vimy/vimy-builder/units"
	"github.com/nstehr/vimy/vimy-builder/world"
)

// spotRadius is how far from a resource spot an extractor or enemy
// building may stand and still count as sitting on it.
const spotRadius = 48

type Config struct {
	Scheduler scheduler.Config
	Queue     queue.Config
	Economy   economy.Config
	Power     power.Config
	Stockpile stockpile.Config

	ForecastInterval int // frames
	PowerInterval    int // frames
	Seed             uint64
}

func DefaultConfig() Config {
	return Config{
		Scheduler:        scheduler.DefaultConfig(),
		Queue:            queue.DefaultConfig(),
		Economy:          economy.DefaultConfig(),
		Power:            power.DefaultConfig(),
		Stockpile:        stockpile.DefaultConfig(),
		ForecastInterval: 30,
		PowerInterval:    15,
		Seed:             1,
	}
}

// Game is everything the controller needs from the engine.
type Game interface {
	world.Query
	world.Placement
	world.Dispatcher
}

// Controller owns one player's construction AI. It is not safe for
// concurrent use; drive it from the goroutine that reads game events.
type Controller struct {
	cfg   Config
	game  Game
	out   world.Dispatcher
	cat   *catalog.Catalog
	units *units.Registry
	queue *queue.Queue
	econ  *economy.Forecaster
	sched *scheduler.Scheduler
	power *power.Controller
	stock *stockpile.Controller

	lastForecast int
	lastPower    int
}

// New builds a controller for one game. spots come from the map analysis in
// the hello handshake; sink may be nil.
func New(cfg Config, game Game, cat *catalog.Catalog, spots []model.SpotInfo, sink OrderSink) *Controller {
	seed := cfg.Seed
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := metricsDispatcher{next: game}

	c := &Controller{
		cfg:          cfg,
		game:         game,
		out:          out,
		cat:          cat,
		units:        units.NewRegistry(),
		lastForecast: -1,
		lastPower:    -1,
	}
	c.queue = queue.New(cfg.Queue, queue.NewSpotIndex(spots), game)
	c.queue.SetObserver(&orderObserver{queue: c.queue, sink: sink, now: game.Frame})
	c.econ = economy.New(cfg.Economy, cat, c.queue, game)
	c.sched = scheduler.New(scheduler.Context{
		World:   game,
		Place:   game,
		Out:     out,
		Units:   c.units,
		Catalog: cat,
		Queue:   c.queue,
		Econ:    c.econ,
		Rand:    rng,
	}, cfg.Scheduler)
	c.power = power.New(cfg.Power, game, out)
	c.stock = stockpile.New(cfg.Stockpile, game, out, rng)
	return c
}

func (c *Controller) Queue() *queue.Queue              { return c.queue }
func (c *Controller) Units() *units.Registry           { return c.units }
func (c *Controller) Forecaster() *economy.Forecaster  { return c.econ }
func (c *Controller) Scheduler() *scheduler.Scheduler  { return c.sched }
func (c *Controller) Power() *power.Controller         { return c.power }
func (c *Controller) Stockpile() *stockpile.Controller { return c.stock }

// UnitCreated records a new unit, finished or not, and matches constructions
// to the order that started them.
func (c *Controller) UnitCreated(id int, typ string, builder int) {
	def, ok := c.cat.Def(typ)
	if !ok {
		slog.Debug("created unit of unknown type", "unit", id, "type", typ)
		return
	}
	c.units.Created(id, def)
	pos, _ := c.game.UnitPos(id)
	if h, ok := c.queue.Identify(id, def, pos, builder); ok {
		slog.Debug("construction started", "unit", id, "type", typ, "order", h, "builder", builder)
	}
}

// UnitFinished completes the owning order and starts tracking the unit for
// power and stockpile management.
func (c *Controller) UnitFinished(id int, typ string) {
	def, ok := c.cat.Def(typ)
	if !ok {
		slog.Warn("finished unit of unknown type", "unit", id, "type", typ)
		return
	}
	pos, visible := c.game.UnitPos(id)
	inWater := visible && c.game.InWater(pos)
	c.units.Finished(id, def, inWater)
	if o, ok := c.queue.Finished(id); ok {
		slog.Info("order completed", "type", typ, "list", o.List, "retries", o.Retries)
	}
	if def.IsExtractor() && visible {
		if spot, ok := c.queue.Spots().Occupy(pos, spotRadius, id); ok {
			slog.Debug("resource spot occupied", "spot", spot, "unit", id)
		}
	}
	c.power.Add(id, def)

	if def.IsBuilder() && !c.cat.Supplies(def) {
		c.units.Disable(id)
		slog.Info("builder has nothing to build", "unit", id, "type", typ)
	}
	if def.Rate(model.Metal) > 0 || def.Rate(model.Energy) > 0 {
		if c.econ.Observe(c.units.Counts()) {
			c.recompute()
		}
	}
}

func (c *Controller) UnitDestroyed(id int) {
	c.queue.Destroyed(id)
	c.queue.Spots().Vacate(id)
	if _, ok := c.units.Destroyed(id); ok {
		c.power.Remove(id)
		c.stock.Remove(id)
	}
}

// UnitIdle hands the unit exactly one command. Errors are logged and
// counted, never returned.
func (c *Controller) UnitIdle(id int) {
	u, ok := c.units.Get(id)
	if !ok || u.Disabled || !u.Finished {
		return
	}

	var err error
	switch {
	case u.Def.Stockpile != nil:
		_, err = c.stock.Idle(id, u.Def)
	case schedulable(u.Def):
		_, err = c.sched.Idle(id)
	default:
		return
	}
	if err == nil {
		return
	}

	kind := idleErrorKind(err)
	metrics.RecordIdleError(kind)
	if errors.Is(err, scheduler.ErrUnknownUnitType) {
		c.units.Disable(id)
		slog.Warn("disabling unit", "unit", id, "type", u.Def.Name, "error", err)
		return
	}
	slog.Warn("idle unit not handled", "unit", id, "type", u.Def.Name, "error", err)
}

// SyncUnit copies engine-reported state the controllers track themselves.
func (c *Controller) SyncUnit(u model.Unit) {
	c.power.Sync(u.ID, u.Active, u.Cloaked)
	if def, ok := c.units.Get(u.ID); ok && def.Def.Stockpile != nil {
		c.stock.SetStock(u.ID, u.Stockpile)
	}
}

// Frame runs the periodic work: resource spot upkeep and cost limits every
// ForecastInterval frames, power switching every PowerInterval frames.
func (c *Controller) Frame(frame int) {
	if c.lastForecast < 0 || frame-c.lastForecast >= c.cfg.ForecastInterval {
		c.lastForecast = frame
		c.refreshSpots(frame)
		c.econ.Observe(c.units.Counts())
		c.recompute()
	}
	if c.lastPower < 0 || frame-c.lastPower >= c.cfg.PowerInterval {
		c.lastPower = frame
		for _, t := range c.power.Update() {
			metrics.RecordPowerToggle(t.Role.String(), t.On)
		}
	}
}

// refreshSpots returns spots whose placement block ran out and marks spots
// with an enemy building on them.
func (c *Controller) refreshSpots(frame int) {
	spots := c.queue.Spots()
	if n := spots.ExpireBlocks(frame); n > 0 {
		slog.Debug("resource spots unblocked", "count", n)
	}
	spots.Each(func(sp queue.Spot) {
		owned := false
		for _, e := range c.game.EnemiesNear(sp.Pos, spotRadius) {
			if !e.Mobile {
				owned = true
				break
			}
		}
		if owned != sp.EnemyOwned {
			spots.SetEnemyOwned(sp.ID, owned)
		}
	})
}

func (c *Controller) recompute() {
	if removed := c.econ.Recompute(c.units.BuildableTypes()); removed > 0 {
		slog.Info("dropped unaffordable orders", "count", removed,
			"metal_limit", c.econ.MetalLimit, "energy_limit", c.econ.EnergyLimit)
	}
	metrics.RecordCostLimits(c.econ.MetalLimit, c.econ.EnergyLimit)
	metrics.RecordQueueLength(c.queue.Len())
}

func schedulable(d *model.UnitDef) bool {
	return d.IsBuilder() || d.CanRepair || d.CanReclaim || d.CanResurrect || d.CanCapture || d.CanAssist
}

func idleErrorKind(err error) string {
	switch {
	case errors.Is(err, scheduler.ErrUnknownUnitType):
		return "unknown_unit_type"
	case errors.Is(err, stockpile.ErrNoStockpile):
		return "no_stockpile"
	case errors.Is(err, world.ErrDispatch):
		return "dispatch"
	}
	return "other"
}
