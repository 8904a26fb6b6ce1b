package scheduler

import (
	"log/slog"
	"sort"

	"github.com/nstehr/vimy/vimy-builder/catalog"
	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/queue"
	"github.com/nstehr/vimy/vimy-builder/units"
)

// prune drops unbound stale orders, forgets dead constructions and removes
// abandoned constructions that have been rotting near zero health past the
// grace period.
func (s *Scheduler) prune(now int) {
	q := s.ctx.Queue
	for _, h := range q.Handles() {
		o, ok := q.Get(h)
		if !ok {
			continue
		}
		for _, id := range o.Units {
			if _, alive := s.ctx.World.UnitBuildProgress(id); !alive {
				q.Destroyed(id)
			}
		}
		if o, ok = q.Get(h); !ok {
			continue
		}
		if o.Builder == 0 {
			if reason, stale := q.Stale(o, now); stale {
				_, _ = q.Remove(h, reason)
				continue
			}
		}
		if o.Abandoned() && now-o.Created > s.cfg.GraceFrames && s.decayed(o) {
			slog.Info("dropping decayed construction", "order", h, "type", o.Def.Name)
			_, _ = q.Remove(h, queue.ReasonDecayed)
		}
	}
}

func (s *Scheduler) decayed(o queue.Order) bool {
	for _, id := range o.Units {
		hp, maxHP, ok := s.ctx.World.UnitHealth(id)
		if ok && maxHP > 0 && hp/maxHP >= s.cfg.NearZeroHealth {
			return false
		}
	}
	return true
}

type ranked struct {
	h        queue.Handle
	demand   float64
	holder   bool
	progress float64
	dist     float64
}

// pick ranks the unbound orders this builder can work on: highest resource
// demand first, then the prerequisite holder, then abandoned constructions
// furthest along, then the nearest.
func (s *Scheduler) pick(u *units.Unit, pos model.Point) (queue.Handle, bool) {
	q := s.ctx.Queue
	s.refreshHolder()

	var cands []ranked
	for _, h := range q.Handles() {
		o, ok := q.Get(h)
		if !ok || o.Builder != 0 || !u.Def.CanBuild(o.Def.Name) {
			continue
		}
		if req := o.Def.Requires; req != "" && s.ctx.Units.Count(req) == 0 {
			continue
		}
		if !o.InProgress() && s.ctx.Catalog.CostDisabled(o.Def.Name) {
			continue
		}
		if o.Def.IsExtractor() && o.Spot == 0 && !o.InProgress() {
			if _, ok := s.closestSpot(o.Def, pos); !ok {
				continue
			}
		}

		r := ranked{h: h, holder: h == s.prereqHolder}
		r.demand = s.deficit(roleOf(o.Kind), o.Def, u.Def.BuildSpeed)
		target := pos
		for _, id := range o.Units {
			if p, ok := s.ctx.World.UnitBuildProgress(id); ok && p > r.progress {
				r.progress = p
			}
			if p, ok := s.ctx.World.UnitPos(id); ok {
				target = p
			}
		}
		if !o.InProgress() && o.HasPos {
			target = o.Pos
		}
		r.dist = pos.DistSq(target)
		cands = append(cands, r)
	}
	if len(cands) == 0 {
		return queue.Handle{}, false
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.demand != b.demand {
			return a.demand > b.demand
		}
		if a.holder != b.holder {
			return a.holder
		}
		if a.progress != b.progress {
			return a.progress > b.progress
		}
		return a.dist < b.dist
	})
	return cands[0].h, true
}

// roleOf maps a queue kind back to the list role whose deficit ranks it.
func roleOf(k queue.Kind) catalog.Role {
	switch k {
	case queue.KindEnergy:
		return catalog.RoleEnergy
	case queue.KindMetal:
		return catalog.RoleMetal
	case queue.KindBuilder:
		return catalog.RoleBuilder
	case queue.KindEnergyStorage, queue.KindMetalStorage:
		return catalog.RoleStorage
	}
	return catalog.RoleGeneric
}
