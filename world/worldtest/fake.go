// Package worldtest provides an in-memory world for scheduler tests.
package worldtest

import (
	"sort"

	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/world"
)

// Fake implements world.Query, world.Placement and world.Dispatcher over
// plain maps. Every dispatched command is appended to Sent.
type Fake struct {
	FrameNum int
	Econ     model.Economy
	Units    map[int]*model.Unit
	Features map[int]model.Feature
	Enemies  []model.Enemy
	Manual   map[int]bool
	Terrain  *model.TerrainGrid

	// Blocked types are rejected by the placement solver.
	Blocked map[string]bool

	Sent []world.Command
}

func New() *Fake {
	return &Fake{
		Units:    make(map[int]*model.Unit),
		Features: make(map[int]model.Feature),
		Manual:   make(map[int]bool),
		Blocked:  make(map[string]bool),
		Econ: model.Economy{
			Metal:  model.ResourceState{Income: 10, Usage: 5, Storage: 1000, Current: 500},
			Energy: model.ResourceState{Income: 100, Usage: 50, Storage: 1000, Current: 500},
		},
	}
}

// AddUnit registers a finished unit at full health.
func (f *Fake) AddUnit(id int, typ string, x, y float64) *model.Unit {
	u := &model.Unit{ID: id, Type: typ, X: x, Y: y, HP: 100, MaxHP: 100, BuildProgress: 1, Active: true}
	f.Units[id] = u
	return u
}

// AddConstruction registers a partly built unit.
func (f *Fake) AddConstruction(id int, typ string, x, y, progress float64) *model.Unit {
	u := f.AddUnit(id, typ, x, y)
	u.BuildProgress = progress
	u.HP = 100 * progress
	return u
}

func (f *Fake) Kill(id int) { delete(f.Units, id) }

// Last returns the most recent command, or a zero Command.
func (f *Fake) Last() world.Command {
	if len(f.Sent) == 0 {
		return world.Command{}
	}
	return f.Sent[len(f.Sent)-1]
}

func (f *Fake) Frame() int { return f.FrameNum }

func (f *Fake) Resource(r model.Resource) model.ResourceState { return f.Econ.Get(r) }

func (f *Fake) UnitPos(id int) (model.Point, bool) {
	u, ok := f.Units[id]
	if !ok {
		return model.Point{}, false
	}
	return u.Pos(), true
}

func (f *Fake) UnitHealth(id int) (float64, float64, bool) {
	u, ok := f.Units[id]
	if !ok {
		return 0, 0, false
	}
	return u.HP, u.MaxHP, true
}

func (f *Fake) UnitBuildProgress(id int) (float64, bool) {
	u, ok := f.Units[id]
	if !ok {
		return 0, false
	}
	return u.BuildProgress, true
}

func (f *Fake) UnderManualControl(id int) bool { return f.Manual[id] }

func (f *Fake) FeaturesNear(p model.Point, radius float64) []int {
	var ids []int
	for id, ft := range f.Features {
		if ft.Pos().DistSq(p) <= radius*radius {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

func (f *Fake) Feature(id int) (model.Feature, bool) {
	ft, ok := f.Features[id]
	return ft, ok
}

func (f *Fake) EnemiesNear(p model.Point, radius float64) []model.Enemy {
	var out []model.Enemy
	for _, e := range f.Enemies {
		if e.Pos().DistSq(p) <= radius*radius {
			out = append(out, e)
		}
	}
	return out
}

func (f *Fake) InWater(p model.Point) bool { return f.Terrain.IsWater(p) }

func (f *Fake) CanBuildAt(def *model.UnitDef, p model.Point) bool {
	if f.Blocked[def.Name] {
		return false
	}
	if f.Terrain != nil && def.WaterOnly() {
		return f.Terrain.IsWater(p)
	}
	return true
}

// FindBuildPosition offsets the requested point so tests can tell placement
// happened.
func (f *Fake) FindBuildPosition(def *model.UnitDef, near model.Point) (model.Point, bool) {
	if f.Blocked[def.Name] {
		return model.Point{}, false
	}
	return model.Point{X: near.X + 32, Y: near.Y}, true
}

func (f *Fake) Dispatch(cmd world.Command) error {
	f.Sent = append(f.Sent, cmd)
	return nil
}
