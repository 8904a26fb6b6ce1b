// Package power switches economy converters, energy consumers and cloaks on
// and off so the economy does not stall.
package power

import (
	"log/slog"

	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/world"
)

type Config struct {
	// Cloaks come back on once the surplus covers this many times their draw.
	CloakSurplusFactor float64

	// Makers stop when the produced resource is this full, and resume below
	// ResumeFill.
	FullFill   float64
	ResumeFill float64

	ShortHorizon float64 // seconds
	LongHorizon  float64 // seconds

	// Fractions of storage.
	LowReserve     float64
	ComfortReserve float64
	ConsumerMargin float64
}

func DefaultConfig() Config {
	return Config{
		CloakSurplusFactor: 4,
		FullFill:           0.95,
		ResumeFill:         0.9,
		ShortHorizon:       5,
		LongHorizon:        15,
		LowReserve:         0.2,
		ComfortReserve:     0.5,
		ConsumerMargin:     0.1,
	}
}

type Unit struct {
	ID      int
	Def     *model.UnitDef
	Role    model.PowerRole
	Active  bool
	Cloaked bool
}

// Toggle is one switch the controller made.
type Toggle struct {
	Unit int
	Role model.PowerRole
	On   bool
}

type Controller struct {
	cfg   Config
	world world.Query
	out   world.Dispatcher

	units map[int]*Unit
	order []int
}

func New(cfg Config, q world.Query, out world.Dispatcher) *Controller {
	return &Controller{
		cfg:   cfg,
		world: q,
		out:   out,
		units: make(map[int]*Unit),
	}
}

// Add registers a finished unit if its type has something to toggle. On/off
// units start active and cloaks start off, matching a fresh unit.
func (c *Controller) Add(id int, def *model.UnitDef) bool {
	role := def.PowerRole()
	if role == model.PowerNone {
		return false
	}
	if _, ok := c.units[id]; ok {
		return true
	}
	c.units[id] = &Unit{ID: id, Def: def, Role: role, Active: role != model.PowerCloak}
	c.order = append(c.order, id)
	return true
}

func (c *Controller) Remove(id int) {
	if _, ok := c.units[id]; !ok {
		return
	}
	delete(c.units, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Sync overwrites the tracked state with what the engine reports.
func (c *Controller) Sync(id int, active, cloaked bool) {
	if u, ok := c.units[id]; ok {
		u.Active, u.Cloaked = active, cloaked
	}
}

func (c *Controller) Get(id int) (Unit, bool) {
	u, ok := c.units[id]
	if !ok {
		return Unit{}, false
	}
	return *u, true
}

func (c *Controller) Len() int { return len(c.units) }

// Update walks every tracked unit once. Each switch is applied to a local
// copy of the economy so later units see its effect.
func (c *Controller) Update() []Toggle {
	econ := model.Economy{
		Metal:  c.world.Resource(model.Metal),
		Energy: c.world.Resource(model.Energy),
	}

	var toggles []Toggle
	for _, id := range c.order {
		u := c.units[id]
		if c.world.UnderManualControl(id) {
			continue
		}
		on, changed := c.decide(u, &econ)
		if !changed {
			continue
		}
		cmd := world.OnOff(id, on)
		if u.Role == model.PowerCloak {
			cmd = world.Cloak(id, on)
		}
		if err := c.out.Dispatch(cmd); err != nil {
			slog.Warn("power toggle failed", "unit", id, "role", u.Role, "error", err)
			continue
		}
		if u.Role == model.PowerCloak {
			u.Cloaked = on
		} else {
			u.Active = on
		}
		toggles = append(toggles, Toggle{Unit: id, Role: u.Role, On: on})
	}
	if len(toggles) > 0 {
		slog.Debug("power update", "toggles", len(toggles), "tracked", len(c.units))
	}
	return toggles
}

// decide returns the wanted state and whether it differs from the current
// one, adjusting econ for the switch.
func (c *Controller) decide(u *Unit, econ *model.Economy) (bool, bool) {
	d := u.Def
	switch u.Role {
	case model.PowerCloak:
		draw := d.CloakCost
		without := econ.Energy.Net()
		if u.Cloaked {
			without += draw
		}
		switch {
		case u.Cloaked && draw > without:
			econ.Energy.Usage -= draw
			return false, true
		case !u.Cloaked && without >= c.cfg.CloakSurplusFactor*draw:
			econ.Energy.Usage += draw
			return true, true
		}

	case model.PowerMetalMaker:
		return c.maker(u, &econ.Metal, &econ.Energy, d.MetalMake, d.EnergyUpkeep)

	case model.PowerEnergyMaker:
		return c.maker(u, &econ.Energy, &econ.Metal, d.EnergyMake, d.MetalUpkeep)

	case model.PowerConsumer:
		e := &econ.Energy
		upkeep := d.EnergyUpkeep
		switch {
		case u.Active && e.Project(c.cfg.ShortHorizon) < 0:
			e.Usage -= upkeep
			return false, true
		case !u.Active && e.Project(c.cfg.ShortHorizon)-upkeep*c.cfg.ShortHorizon >= c.cfg.ConsumerMargin*e.Storage:
			e.Usage += upkeep
			return true, true
		}
	}
	return u.Active, false
}

// maker handles a converter that burns fuel to produce out.
func (c *Controller) maker(u *Unit, out, fuel *model.ResourceState, rate, upkeep float64) (bool, bool) {
	switch {
	case u.Active && (out.Fill() >= c.cfg.FullFill || fuel.Project(c.cfg.ShortHorizon) < c.cfg.LowReserve*fuel.Storage):
		fuel.Usage -= upkeep
		out.Income -= rate
		return false, true
	case !u.Active && out.Fill() < c.cfg.ResumeFill &&
		fuel.Project(c.cfg.LongHorizon)-upkeep*c.cfg.LongHorizon >= c.cfg.ComfortReserve*fuel.Storage:
		fuel.Usage += upkeep
		out.Income += rate
		return true, true
	}
	return u.Active, false
}
