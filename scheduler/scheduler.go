// Package scheduler gives every idle builder exactly one order: continue
// its construction, pick up queued work, start something new, help out, or
// wait.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/nstehr/vimy/vimy-builder/catalog"
	"github.com/nstehr/vimy/vimy-builder/economy"
	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/queue"
	"github.com/nstehr/vimy/vimy-builder/units"
	"github.com/nstehr/vimy/vimy-builder/world"
)

var (
	ErrNoEligibleCandidate = errors.New("no eligible build candidate")
	ErrPlacementRejected   = errors.New("placement rejected")
	ErrUnreachableSpot     = errors.New("no reachable resource spot")
	ErrUnknownUnitType     = errors.New("unknown unit type")
)

// Context bundles the collaborators every scheduling step works against.
type Context struct {
	World   world.Query
	Place   world.Placement
	Out     world.Dispatcher
	Units   *units.Registry
	Catalog *catalog.Catalog
	Queue   *queue.Queue
	Econ    *economy.Forecaster
	Rand    *rand.Rand
}

type Config struct {
	WaitFrames            int
	MaxPrerequisiteOrders int
	GraceFrames           int
	NearZeroHealth        float64
	DamagedHealth         float64
	RepairRadius          float64
	ReclaimRadius         float64
	ResurrectRadius       float64
	ResurrectArea         float64
	CaptureRadius         float64
	AssistRadius          float64
	DemandThreshold       float64

	// SpotBlockFrames keeps a resource spot that refused placement out of
	// rotation for that long.
	SpotBlockFrames int
}

func DefaultConfig() Config {
	return Config{
		WaitFrames:            90,
		MaxPrerequisiteOrders: 2,
		GraceFrames:           30 * 120,
		NearZeroHealth:        0.05,
		DamagedHealth:         0.75,
		RepairRadius:          1200,
		ReclaimRadius:         1000,
		ResurrectRadius:       800,
		ResurrectArea:         96,
		CaptureRadius:         600,
		AssistRadius:          1500,
		DemandThreshold:       0,
		SpotBlockFrames:       30 * 30,
	}
}

type Scheduler struct {
	ctx Context
	cfg Config

	// prereqHolder is the prerequisite order that wins ranking ties until it
	// resolves.
	prereqHolder queue.Handle

	noCandidateLog rate.Sometimes
}

func New(ctx Context, cfg Config) *Scheduler {
	if ctx.Rand == nil {
		ctx.Rand = rand.New(rand.NewPCG(1, 2))
	}
	return &Scheduler{
		ctx:            ctx,
		cfg:            cfg,
		noCandidateLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Idle decides and dispatches one command for an idle unit.
func (s *Scheduler) Idle(id int) (world.Command, error) {
	u, ok := s.ctx.Units.Get(id)
	if !ok || u.Disabled {
		return world.Command{}, fmt.Errorf("%w: unit %d", ErrUnknownUnitType, id)
	}
	pos, ok := s.ctx.World.UnitPos(id)
	if !ok {
		return world.Command{}, fmt.Errorf("unit %d not visible", id)
	}

	cmd := s.decide(u, pos)
	if err := s.ctx.Out.Dispatch(cmd); err != nil {
		return cmd, fmt.Errorf("dispatch %s: %w", cmd, err)
	}
	slog.Debug("builder order", "unit", id, "type", u.Def.Name, "cmd", cmd.String())
	return cmd, nil
}

func (s *Scheduler) decide(u *units.Unit, pos model.Point) world.Command {
	now := s.ctx.World.Frame()

	if h, ok := s.ctx.Queue.ByBuilder(u.ID); ok {
		if cmd, ok := s.continueOrder(u, pos, h, now); ok {
			return cmd
		}
	}

	if u.Def.IsBuilder() {
		s.prune(now)
		s.replenish(pos)
		if h, ok := s.pick(u, pos); ok {
			if cmd, ok := s.take(u, pos, h, now); ok {
				return cmd
			}
		}
	}

	fallbacks := []func(*units.Unit, model.Point) (world.Command, bool){
		s.repair,
		s.resurrect,
		s.capture,
		s.reclaim,
		s.military,
		s.assist,
	}
	for _, try := range fallbacks {
		if cmd, ok := try(u, pos); ok {
			return cmd
		}
	}
	return world.Wait(u.ID, s.cfg.WaitFrames)
}

// take binds the builder to h and issues its first command.
func (s *Scheduler) take(u *units.Unit, pos model.Point, h queue.Handle, now int) (world.Command, bool) {
	if err := s.ctx.Queue.Assign(h, u.ID, u.Def.BuildSpeed); err != nil {
		slog.Warn("assign builder", "unit", u.ID, "order", h, "error", err)
		return world.Command{}, false
	}
	return s.continueOrder(u, pos, h, now)
}

// continueOrder emits the command for a builder's current order, dropping
// the order when it went stale and unbinding the builder when placement
// fails.
func (s *Scheduler) continueOrder(u *units.Unit, pos model.Point, h queue.Handle, now int) (world.Command, bool) {
	q := s.ctx.Queue
	o, ok := q.Get(h)
	if !ok {
		return world.Command{}, false
	}
	for _, id := range o.Units {
		if _, alive := s.ctx.World.UnitBuildProgress(id); !alive {
			q.Destroyed(id)
		}
	}
	o, _ = q.Get(h)

	if reason, stale := q.Stale(o, now); stale {
		slog.Info("dropping stale order", "order", h, "type", o.Def.Name, "reason", reason, "retries", o.Retries)
		_, _ = q.Remove(h, reason)
		return world.Command{}, false
	}

	if len(o.Units) > 0 {
		return world.Repair(u.ID, o.Units[0]), true
	}

	if req := o.Def.Requires; req != "" && s.ctx.Units.Count(req) == 0 {
		_ = q.Assign(h, 0, 0)
		return world.Command{}, false
	}

	p, err := s.place(u, pos, h, now)
	if err != nil {
		_, _ = q.NoteFailure(h)
		slog.Debug("placement failed", "unit", u.ID, "type", o.Def.Name, "error", err)
		if errors.Is(err, ErrUnreachableSpot) {
			_, _ = q.Remove(h, queue.ReasonNoSpot)
		} else {
			_ = q.Assign(h, 0, 0)
		}
		return world.Command{}, false
	}
	// Counts re-polls of a bound order only; the assignment frame is free.
	_, _ = q.NoteRetry(h)
	return world.Build(u.ID, o.Def.Name, p, 0), true
}

// place resolves where the order's unit goes. Extractors go on their locked
// spot, claiming the closest valid one first if needed.
func (s *Scheduler) place(u *units.Unit, pos model.Point, h queue.Handle, now int) (model.Point, error) {
	q := s.ctx.Queue
	o, _ := q.Get(h)

	if o.Def.IsExtractor() {
		if o.Spot == 0 {
			near := pos
			if o.HasPos {
				near = o.Pos
			}
			sp, ok := s.closestSpot(o.Def, near)
			if !ok {
				return model.Point{}, ErrUnreachableSpot
			}
			if err := q.LockSpot(h, sp.ID); err != nil {
				return model.Point{}, err
			}
			o, _ = q.Get(h)
		}
		if !s.ctx.Place.CanBuildAt(o.Def, o.Pos) {
			// Something sits on the spot; rest it for a while.
			q.Spots().Block(o.Spot, now+max(s.cfg.SpotBlockFrames, 1))
			return model.Point{}, fmt.Errorf("%w: spot %d", ErrPlacementRejected, o.Spot)
		}
		return o.Pos, nil
	}

	if o.HasPos && s.ctx.Place.CanBuildAt(o.Def, o.Pos) {
		return o.Pos, nil
	}
	p, ok := s.ctx.Place.FindBuildPosition(o.Def, pos)
	if !ok {
		return model.Point{}, fmt.Errorf("%w: %s near %.0f,%.0f", ErrPlacementRejected, o.Def.Name, pos.X, pos.Y)
	}
	_ = q.SetPosition(h, p)
	return p, nil
}

// closestSpot finds the nearest free spot the extractor type can stand on.
func (s *Scheduler) closestSpot(def *model.UnitDef, near model.Point) (queue.Spot, bool) {
	return s.ctx.Queue.Spots().Closest(near, func(sp queue.Spot) bool {
		return s.spotFits(def, sp)
	})
}

func (s *Scheduler) spotFits(def *model.UnitDef, sp queue.Spot) bool {
	wet := s.ctx.World.InWater(sp.Pos)
	if wet && !def.WaterCapable() || !wet && !def.LandCapable() {
		return false
	}
	return s.ctx.Place.CanBuildAt(def, sp.Pos)
}

// Request queues an ad hoc build outside the build-lists, substituting an
// unmet prerequisite the same way list builds do.
func (s *Scheduler) Request(def *model.UnitDef, kind queue.Kind) (queue.Handle, error) {
	return s.enqueue(def, "", kind)
}

// PrerequisiteHolder is the prerequisite order currently favoured in
// ranking, if any.
func (s *Scheduler) PrerequisiteHolder() queue.Handle {
	s.refreshHolder()
	return s.prereqHolder
}
