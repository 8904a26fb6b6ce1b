package agent

import (
	"math"
	"sort"

	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/world"
)

const (
	// Clearance kept between a new structure and existing ones.
	footprint = 64.0
	// Placement search rings around the requested point.
	searchStep   = 32.0
	searchRadius = 768.0
)

// DefLookup resolves a unit type name.
type DefLookup func(name string) (*model.UnitDef, bool)

// View answers world queries from the latest frame snapshot and buffers the
// commands decided for that frame.
type View struct {
	defs    DefLookup
	terrain *model.TerrainGrid

	frame    int
	econ     model.Economy
	mapW     float64
	mapH     float64
	units    map[int]model.Unit
	features map[int]model.Feature
	enemies  []model.Enemy

	pending []world.Command
}

func NewView(terrain *model.TerrainGrid, defs DefLookup) *View {
	return &View{
		defs:     defs,
		terrain:  terrain,
		units:    make(map[int]model.Unit),
		features: make(map[int]model.Feature),
	}
}

// Update replaces the snapshot.
func (v *View) Update(gs model.GameState) {
	v.frame = gs.Frame
	v.econ = gs.Economy
	v.mapW, v.mapH = float64(gs.MapWidth), float64(gs.MapHeight)
	clear(v.units)
	for _, u := range gs.Units {
		v.units[u.ID] = u
	}
	clear(v.features)
	for _, f := range gs.Features {
		v.features[f.ID] = f
	}
	v.enemies = gs.Enemies
}

func (v *View) Frame() int { return v.frame }

func (v *View) Resource(r model.Resource) model.ResourceState { return v.econ.Get(r) }

func (v *View) UnitPos(id int) (model.Point, bool) {
	u, ok := v.units[id]
	return u.Pos(), ok
}

func (v *View) UnitHealth(id int) (float64, float64, bool) {
	u, ok := v.units[id]
	return u.HP, u.MaxHP, ok
}

func (v *View) UnitBuildProgress(id int) (float64, bool) {
	u, ok := v.units[id]
	return u.BuildProgress, ok
}

func (v *View) UnderManualControl(id int) bool { return v.units[id].Manual }

// FeaturesNear returns feature ids by distance.
func (v *View) FeaturesNear(p model.Point, radius float64) []int {
	type hit struct {
		id int
		d  float64
	}
	var hits []hit
	r2 := radius * radius
	for id, f := range v.features {
		if d := f.Pos().DistSq(p); d <= r2 {
			hits = append(hits, hit{id, d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].d != hits[j].d {
			return hits[i].d < hits[j].d
		}
		return hits[i].id < hits[j].id
	})
	ids := make([]int, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids
}

func (v *View) Feature(id int) (model.Feature, bool) {
	f, ok := v.features[id]
	return f, ok
}

// EnemiesNear returns a fresh slice the caller may reorder.
func (v *View) EnemiesNear(p model.Point, radius float64) []model.Enemy {
	var out []model.Enemy
	r2 := radius * radius
	for _, e := range v.enemies {
		if e.Pos().DistSq(p) <= r2 {
			out = append(out, e)
		}
	}
	return out
}

func (v *View) InWater(p model.Point) bool { return v.terrain.IsWater(p) }

// CanBuildAt checks map bounds, terrain and clearance from our own
// structures and from builds already ordered this frame.
func (v *View) CanBuildAt(def *model.UnitDef, p model.Point) bool {
	if p.X < 0 || p.Y < 0 || (v.mapW > 0 && p.X > v.mapW) || (v.mapH > 0 && p.Y > v.mapH) {
		return false
	}
	switch v.terrain.AtPoint(p) {
	case model.Cliff:
		return false
	case model.Water:
		if !def.WaterCapable() {
			return false
		}
	default:
		if !def.LandCapable() {
			return false
		}
	}

	clear2 := footprint * footprint
	for _, u := range v.units {
		if v.mobile(u.Type) {
			continue
		}
		if u.Pos().DistSq(p) < clear2 {
			return false
		}
	}
	for _, cmd := range v.pending {
		if cmd.Kind == world.CmdBuild && cmd.Pos.DistSq(p) < clear2 {
			return false
		}
	}
	return true
}

// FindBuildPosition walks square rings outwards from near.
func (v *View) FindBuildPosition(def *model.UnitDef, near model.Point) (model.Point, bool) {
	if v.CanBuildAt(def, near) {
		return near, true
	}
	for r := searchStep; r <= searchRadius; r += searchStep {
		n := int(math.Round(r / searchStep))
		for i := -n; i <= n; i++ {
			for _, p := range []model.Point{
				{X: near.X + float64(i)*searchStep, Y: near.Y - r},
				{X: near.X + float64(i)*searchStep, Y: near.Y + r},
				{X: near.X - r, Y: near.Y + float64(i)*searchStep},
				{X: near.X + r, Y: near.Y + float64(i)*searchStep},
			} {
				if v.CanBuildAt(def, p) {
					return p, true
				}
			}
		}
	}
	return model.Point{}, false
}

func (v *View) mobile(typ string) bool {
	if v.defs == nil {
		return false
	}
	def, ok := v.defs(typ)
	return ok && def.Mobile
}

func (v *View) Dispatch(cmd world.Command) error {
	v.pending = append(v.pending, cmd)
	return nil
}

// Drain returns and clears the buffered commands.
func (v *View) Drain() []world.Command {
	out := v.pending
	v.pending = nil
	return out
}
