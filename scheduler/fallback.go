package scheduler

import (
	"log/slog"
	"math"

	"github.com/nstehr/vimy/vimy-builder/catalog"
	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/queue"
	"github.com/nstehr/vimy/vimy-builder/units"
	"github.com/nstehr/vimy/vimy-builder/world"
)

// repair finishes constructions left behind by removed orders, then patches
// up damaged units nearby.
func (s *Scheduler) repair(u *units.Unit, pos model.Point) (world.Command, bool) {
	if !u.Def.CanRepair {
		return world.Command{}, false
	}
	r2 := s.cfg.RepairRadius * s.cfg.RepairRadius

	target, best := 0, math.Inf(1)
	for _, id := range s.ctx.Queue.Orphans() {
		p, ok := s.ctx.World.UnitPos(id)
		if !ok {
			s.ctx.Queue.DropOrphan(id)
			continue
		}
		if d := pos.DistSq(p); d <= r2 && d < best {
			target, best = id, d
		}
	}
	if target != 0 {
		return world.Repair(u.ID, target), true
	}

	s.ctx.Units.Each(func(other *units.Unit) bool {
		if other.ID == u.ID || !other.Finished {
			return true
		}
		hp, maxHP, ok := s.ctx.World.UnitHealth(other.ID)
		if !ok || maxHP <= 0 || hp/maxHP >= s.cfg.DamagedHealth {
			return true
		}
		p, _ := s.ctx.World.UnitPos(other.ID)
		if d := pos.DistSq(p); d <= r2 && d < best {
			target, best = other.ID, d
		}
		return true
	})
	if target != 0 {
		return world.Repair(u.ID, target), true
	}
	return world.Command{}, false
}

func (s *Scheduler) resurrect(u *units.Unit, pos model.Point) (world.Command, bool) {
	if !u.Def.CanResurrect {
		return world.Command{}, false
	}
	for _, id := range s.ctx.World.FeaturesNear(pos, s.cfg.ResurrectRadius) {
		if f, ok := s.ctx.World.Feature(id); ok && f.ResurrectAs != "" {
			return world.Resurrect(u.ID, f.Pos(), s.cfg.ResurrectArea), true
		}
	}
	return world.Command{}, false
}

func (s *Scheduler) capture(u *units.Unit, pos model.Point) (world.Command, bool) {
	if !u.Def.CanCapture {
		return world.Command{}, false
	}
	target, best := 0, math.Inf(1)
	for _, e := range s.ctx.World.EnemiesNear(pos, s.cfg.CaptureRadius) {
		if d := pos.DistSq(e.Pos()); e.Capturable && d < best {
			target, best = e.ID, d
		}
	}
	if target == 0 {
		return world.Command{}, false
	}
	return world.Capture(u.ID, target), true
}

// reclaim forages the most valuable nearby feature, discounted by distance,
// but only while the economy is lagging.
func (s *Scheduler) reclaim(u *units.Unit, pos model.Point) (world.Command, bool) {
	if !u.Def.CanReclaim || !s.ctx.Econ.Lagging() {
		return world.Command{}, false
	}
	epm := s.ctx.Catalog.EnergyPerMetal
	target, best := 0, 0.0
	for _, id := range s.ctx.World.FeaturesNear(pos, s.cfg.ReclaimRadius) {
		f, ok := s.ctx.World.Feature(id)
		if !ok || !f.Reclaimable {
			continue
		}
		value := f.Metal + f.Energy/epm
		if v := value / (1 + pos.Dist(f.Pos())); v > best {
			target, best = id, v
		}
	}
	if target == 0 {
		return world.Command{}, false
	}
	return world.Reclaim(u.ID, target), true
}

// military spends a comfortable surplus on something from the military
// lists this builder can make.
func (s *Scheduler) military(u *units.Unit, pos model.Point) (world.Command, bool) {
	if !u.Def.IsBuilder() || !s.ctx.Econ.Comfortable() {
		return world.Command{}, false
	}
	env := s.env()
	for _, l := range s.ctx.Catalog.Lists() {
		if l.Role != catalog.RoleMilitary {
			continue
		}
		var options []*catalog.Entry
		for _, e := range l.Entries {
			d := e.Def
			if !u.Def.CanBuild(d.Name) || s.ctx.Catalog.CostDisabled(d.Name) || !e.Allowed(env) {
				continue
			}
			if d.Requires != "" && s.ctx.Units.Count(d.Requires) == 0 {
				continue
			}
			options = append(options, e)
		}
		if len(options) == 0 {
			continue
		}
		e := s.pickEntry(options)
		h, err := s.enqueue(e.Def, l.Name, queue.KindGeneric)
		if err != nil {
			slog.Debug("military request refused", "type", e.Def.Name, "error", err)
			return world.Command{}, false
		}
		return s.take(u, pos, h, s.ctx.World.Frame())
	}
	return world.Command{}, false
}

// assist guards the nearest builder that has something under construction.
func (s *Scheduler) assist(u *units.Unit, pos model.Point) (world.Command, bool) {
	if !u.Def.CanAssist {
		return world.Command{}, false
	}
	r2 := s.cfg.AssistRadius * s.cfg.AssistRadius
	target, best := 0, math.Inf(1)
	for _, b := range s.ctx.Units.Builders() {
		if b.ID == u.ID {
			continue
		}
		h, ok := s.ctx.Queue.ByBuilder(b.ID)
		if !ok {
			continue
		}
		if o, ok := s.ctx.Queue.Get(h); !ok || !o.InProgress() {
			continue
		}
		p, ok := s.ctx.World.UnitPos(b.ID)
		if !ok {
			continue
		}
		if d := pos.DistSq(p); d <= r2 && d < best {
			target, best = b.ID, d
		}
	}
	if target == 0 {
		return world.Command{}, false
	}
	return world.Guard(u.ID, target), true
}
