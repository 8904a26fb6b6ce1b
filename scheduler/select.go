package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/nstehr/vimy/vimy-builder/catalog"
	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/queue"
)

// candidate is one build chosen from the lists, not yet queued.
type candidate struct {
	def  *model.UnitDef
	list *catalog.List
	kind queue.Kind
}

// replenish tops the queue up from the build-lists while there is room and
// the unbuilt part of the queue stays within the metal limit.
func (s *Scheduler) replenish(pos model.Point) {
	q := s.ctx.Queue
	for range q.Capacity() {
		if q.Len() >= q.Capacity() {
			return
		}
		if metal, _ := q.PendingCost(); metal > s.ctx.Econ.MetalLimit {
			return
		}
		c, err := s.choose(pos)
		if err != nil {
			if errors.Is(err, ErrNoEligibleCandidate) {
				s.noCandidateLog.Do(func() {
					slog.Warn("no eligible build candidate", "queued", q.Len(), "frame", s.ctx.World.Frame())
				})
			}
			return
		}
		if _, err := s.enqueue(c.def, c.list.Name, c.kind); err != nil {
			slog.Debug("enqueue refused", "type", c.def.Name, "list", c.list.Name, "error", err)
			return
		}
	}
}

// choose runs one selection pass: exclude what cannot be built right now,
// score the lists, draw an entry by weight, then let a pressing resource
// deficit override the draw.
func (s *Scheduler) choose(pos model.Point) (candidate, error) {
	cat := s.ctx.Catalog
	cat.ResetPass()

	env := s.env()
	buildable := s.ctx.Units.BuildableTypes()
	sites, site := s.extractorSites(pos)
	spotBudget := s.spotBudget()

	for _, l := range cat.Lists() {
		for _, e := range l.Entries {
			if reason := s.exclusion(l, e, env, buildable, sites, site, spotBudget); reason != "" {
				e.Exclude()
			}
		}
	}

	l := s.pickList(env)
	if l == nil {
		return candidate{}, ErrNoEligibleCandidate
	}
	e := s.pickEntry(l.Eligible())
	c := candidate{def: e.Def, list: l, kind: kindFor(l.Role, e.Def)}
	return s.override(c), nil
}

func (s *Scheduler) env() catalog.Env {
	counts := s.ctx.Units.Counts()
	return catalog.Env{
		Econ: model.Economy{
			Metal:  s.ctx.World.Resource(model.Metal),
			Energy: s.ctx.World.Resource(model.Energy),
		},
		Counts: counts,
		Tick:   s.ctx.World.Frame(),
	}
}

// extractorSites finds, per extractor type in the lists, the closest spot
// it could stand on, and the id of the nearest of those. Extractors are only
// drawn for that single spot.
func (s *Scheduler) extractorSites(pos model.Point) (map[string]int, int) {
	sites := make(map[string]int)
	site, best := 0, math.Inf(1)
	for _, l := range s.ctx.Catalog.Lists() {
		for _, e := range l.Entries {
			d := e.Def
			if !d.IsExtractor() {
				continue
			}
			if _, done := sites[d.Name]; done {
				continue
			}
			sp, ok := s.closestSpot(d, pos)
			if !ok {
				sites[d.Name] = 0
				continue
			}
			sites[d.Name] = sp.ID
			if dist := sp.Pos.DistSq(pos); dist < best {
				site, best = sp.ID, dist
			}
		}
	}
	return sites, site
}

// spotBudget is how many more extractor orders the free spots can take.
func (s *Scheduler) spotBudget() int {
	q := s.ctx.Queue
	budget := q.Spots().Free()
	for _, h := range q.Handles() {
		if o, ok := q.Get(h); ok && o.Def.IsExtractor() && o.Spot == 0 && !o.InProgress() {
			budget--
		}
	}
	return budget
}

// exclusion names why an entry cannot be drawn this pass, or returns "".
func (s *Scheduler) exclusion(l *catalog.List, e *catalog.Entry, env catalog.Env, buildable map[string]bool,
	sites map[string]int, site int, spotBudget int) string {
	d := e.Def
	switch {
	case !buildable[d.Name]:
		return "no builder"
	case s.ctx.Catalog.CostDisabled(d.Name):
		return "cost"
	case !e.Allowed(env):
		return "condition"
	case d.Requires != "" && s.ctx.Units.Count(d.Requires) == 0 && s.ctx.Queue.TypeCount(d.Requires) == 0:
		return "prerequisite"
	case s.ctx.Queue.CanAdd(kindFor(l.Role, d)) != nil:
		return "kind cap"
	case d.WaterOnly() && !s.ctx.Units.HasWaterPresence():
		return "water"
	case d.IsExtractor() && (site == 0 || spotBudget <= 0 || sites[d.Name] != site):
		return "spot"
	}
	return ""
}

// listCount is how many of a list's types we own or have queued.
func (s *Scheduler) listCount(l *catalog.List) int {
	n := 0
	for _, e := range l.Entries {
		n += s.ctx.Units.Count(e.Type) + s.ctx.Queue.TypeCount(e.Type)
	}
	return n
}

// score ranks a list; lower goes first. Lists below their minimum score in
// [0,1); above it, (1+count)/priority. A list with no priority is done once
// its minimum is met.
func score(l *catalog.List, count int) (float64, bool) {
	if l.MinUnits > 0 && count < l.MinUnits {
		return float64(count) / float64(l.MinUnits), true
	}
	if l.Priority <= 0 {
		return 0, false
	}
	return float64(1+count) / l.Priority, true
}

func (s *Scheduler) pickList(env catalog.Env) *catalog.List {
	var ties []*catalog.List
	best := math.Inf(1)
	for _, l := range s.ctx.Catalog.Lists() {
		if len(l.Eligible()) == 0 {
			continue
		}
		sc, ok := score(l, s.listCount(l))
		if !ok {
			continue
		}
		switch {
		case sc < best:
			best, ties = sc, []*catalog.List{l}
		case sc == best:
			ties = append(ties, l)
		}
	}
	if len(ties) == 0 {
		return nil
	}
	// Lists without a minimum win ties; the rest is a coin toss.
	var open []*catalog.List
	for _, l := range ties {
		if l.MinUnits == 0 {
			open = append(open, l)
		}
	}
	if len(open) > 0 {
		ties = open
	}
	return ties[s.ctx.Rand.IntN(len(ties))]
}

func (s *Scheduler) pickEntry(entries []*catalog.Entry) *catalog.Entry {
	total := 0.0
	for _, e := range entries {
		total += e.Weight
	}
	r := s.ctx.Rand.Float64() * total
	for _, e := range entries {
		r -= e.Weight
		if r < 0 {
			return e
		}
	}
	return entries[len(entries)-1]
}

// heaviest returns the highest-weight eligible entry of the first list with
// the given role.
func (s *Scheduler) heaviest(role catalog.Role) (*catalog.List, *catalog.Entry) {
	for _, l := range s.ctx.Catalog.Lists() {
		if l.Role != role {
			continue
		}
		var best *catalog.Entry
		for _, e := range l.Eligible() {
			if best == nil || e.Weight > best.Weight {
				best = e
			}
		}
		if best != nil {
			return l, best
		}
	}
	return nil, nil
}

var demandRoles = []catalog.Role{catalog.RoleEnergy, catalog.RoleMetal, catalog.RoleBuilder, catalog.RoleStorage}

// override swaps the drawn candidate for a resource-producing one when that
// resource's projected deficit beats the threshold.
func (s *Scheduler) override(c candidate) candidate {
	speed := s.ctx.Units.BuildSpeed()
	best := s.cfg.DemandThreshold
	out := c
	for _, role := range demandRoles {
		if role == c.list.Role {
			continue
		}
		l, e := s.heaviest(role)
		if e == nil {
			continue
		}
		if d := s.deficit(role, e.Def, speed); d > best {
			best = d
			out = candidate{def: e.Def, list: l, kind: kindFor(role, e.Def)}
		}
	}
	if out.def != c.def {
		slog.Debug("demand override", "drawn", c.def.Name, "chosen", out.def.Name, "deficit", best)
	}
	return out
}

// deficit is the storage-normalised shortfall the role addresses if def were
// started now.
func (s *Scheduler) deficit(role catalog.Role, def *model.UnitDef, speed float64) float64 {
	q := s.ctx.Queue
	secs := def.BuildSeconds(speed)
	pendM, pendE := q.PendingCost()
	switch role {
	case catalog.RoleEnergy:
		st := s.ctx.World.Resource(model.Energy)
		return s.ctx.Econ.Demand(model.Energy, pendE+def.EnergyCost, secs) / storageOf(st)
	case catalog.RoleMetal:
		st := s.ctx.World.Resource(model.Metal)
		return s.ctx.Econ.Demand(model.Metal, pendM+def.MetalCost, secs) / storageOf(st)
	case catalog.RoleBuilder:
		waiting := 0
		for _, h := range q.Handles() {
			if o, ok := q.Get(h); ok && o.Builder == 0 {
				waiting++
			}
		}
		return float64(waiting-len(s.ctx.Units.Builders())) / float64(max(q.Capacity(), 1))
	case catalog.RoleStorage:
		worst := math.Inf(-1)
		for _, r := range []model.Resource{model.Metal, model.Energy} {
			st := s.ctx.World.Resource(r)
			over := (st.Project(secs) - st.Storage - q.Projection().Storage(r)) / storageOf(st)
			worst = max(worst, over)
		}
		return worst
	}
	return 0
}

func storageOf(st model.ResourceState) float64 {
	if st.Storage <= 0 {
		return 1
	}
	return st.Storage
}

// kindFor maps a list role onto the queue kind its orders count against.
func kindFor(role catalog.Role, def *model.UnitDef) queue.Kind {
	switch role {
	case catalog.RoleEnergy:
		return queue.KindEnergy
	case catalog.RoleMetal:
		return queue.KindMetal
	case catalog.RoleBuilder:
		return queue.KindBuilder
	case catalog.RoleStorage:
		if def.MetalStorage > def.EnergyStorage {
			return queue.KindMetalStorage
		}
		return queue.KindEnergyStorage
	}
	return queue.KindGeneric
}

// enqueue adds def, or its prerequisite when the prerequisite is neither
// owned nor already queued.
func (s *Scheduler) enqueue(def *model.UnitDef, list string, kind queue.Kind) (queue.Handle, error) {
	q := s.ctx.Queue
	req := def.Requires
	if req == "" || s.ctx.Units.Count(req) > 0 || q.TypeCount(req) > 0 {
		return q.Add(def, list, kind)
	}

	if q.KindCount(queue.KindPrerequisite) >= s.cfg.MaxPrerequisiteOrders {
		return queue.Handle{}, fmt.Errorf("%s needs %s: %w", def.Name, req, queue.ErrKindCapReached)
	}
	rdef, ok := s.ctx.Catalog.Def(req)
	if !ok {
		return queue.Handle{}, fmt.Errorf("%s needs %s: %w", def.Name, req, ErrUnknownUnitType)
	}
	h, err := q.Add(rdef, list, queue.KindPrerequisite)
	if err != nil {
		return h, err
	}
	slog.Info("queued prerequisite", "for", def.Name, "type", req, "order", h)
	s.refreshHolder()
	if !s.prereqHolder.Valid() {
		s.prereqHolder = h
	}
	return h, nil
}

// refreshHolder forgets a holder whose order is gone and promotes the
// oldest remaining prerequisite order.
func (s *Scheduler) refreshHolder() {
	q := s.ctx.Queue
	if _, ok := q.Get(s.prereqHolder); ok {
		return
	}
	s.prereqHolder = queue.Handle{}
	oldest := math.MaxInt
	for _, h := range q.Handles() {
		if o, ok := q.Get(h); ok && o.Kind == queue.KindPrerequisite && o.Created < oldest {
			oldest = o.Created
			s.prereqHolder = h
		}
	}
}
