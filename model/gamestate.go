package model

import "math"

// GameState is one frame snapshot pushed by the game mod.
type GameState struct {
	Frame     int       `json:"frame"`
	Player    string    `json:"player"`
	Economy   Economy   `json:"economy"`
	Units     []Unit    `json:"units"`
	Features  []Feature `json:"features"`
	Enemies   []Enemy   `json:"enemies"`
	MapWidth  int       `json:"mapWidth"`
	MapHeight int       `json:"mapHeight"`
}

// Point is a ground position in map units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) DistSq(q Point) float64 {
	dx, dy := p.X-q.X, p.Y-q.Y
	return dx*dx + dy*dy
}

func (p Point) Dist(q Point) float64 { return math.Sqrt(p.DistSq(q)) }

// Resource selects one of the two economy currencies.
type Resource int

const (
	Metal Resource = iota
	Energy
)

func (r Resource) String() string {
	if r == Energy {
		return "energy"
	}
	return "metal"
}

// ResourceState mirrors the engine readout for one resource. Income and
// Usage are per second.
type ResourceState struct {
	Income  float64 `json:"income"`
	Usage   float64 `json:"usage"`
	Storage float64 `json:"storage"`
	Current float64 `json:"current"`
}

// Net is the signed per-second balance.
func (r ResourceState) Net() float64 { return r.Income - r.Usage }

// Fill is the stored fraction of capacity (0 when there is no storage).
func (r ResourceState) Fill() float64 {
	if r.Storage <= 0 {
		return 0
	}
	return r.Current / r.Storage
}

// Project estimates the stored amount after the given seconds at the current
// balance, ignoring the storage cap.
func (r ResourceState) Project(seconds float64) float64 {
	return r.Current + seconds*r.Net()
}

type Economy struct {
	Metal  ResourceState `json:"metal"`
	Energy ResourceState `json:"energy"`
}

func (e Economy) Get(r Resource) ResourceState {
	if r == Energy {
		return e.Energy
	}
	return e.Metal
}

// Unit is one of our own units as seen this frame. BuildProgress below 1
// means the unit is still a construction site.
type Unit struct {
	ID            int     `json:"id"`
	Type          string  `json:"type"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	HP            float64 `json:"hp"`
	MaxHP         float64 `json:"maxHp"`
	BuildProgress float64 `json:"buildProgress"`
	Idle          bool    `json:"idle"`
	Active        bool    `json:"active"`
	Cloaked       bool    `json:"cloaked"`
	Manual        bool    `json:"manual"`
	Stockpile     int     `json:"stockpile,omitempty"`
	BuiltBy       int     `json:"builtBy,omitempty"`
}

func (u Unit) TypeName() string { return u.Type }
func (u Unit) Pos() Point       { return Point{X: u.X, Y: u.Y} }
func (u Unit) Finished() bool   { return u.BuildProgress >= 1 }

// Feature is map debris or a wreck. Metal and Energy are the reclaim values.
type Feature struct {
	ID          int     `json:"id"`
	Type        string  `json:"type"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Metal       float64 `json:"metal"`
	Energy      float64 `json:"energy"`
	Reclaimable bool    `json:"reclaimable"`
	ResurrectAs string  `json:"resurrectAs,omitempty"`
}

func (f Feature) Pos() Point { return Point{X: f.X, Y: f.Y} }

type Enemy struct {
	ID         int     `json:"id"`
	Type       string  `json:"type"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	HP         float64 `json:"hp"`
	MaxHP      float64 `json:"maxHp"`
	Mobile     bool    `json:"mobile"`
	InLOS      bool    `json:"inLos"`
	Capturable bool    `json:"capturable"`
}

func (e Enemy) TypeName() string { return e.Type }
func (e Enemy) Pos() Point       { return Point{X: e.X, Y: e.Y} }

// SpotInfo is a metal spot found by the mod's map analysis.
type SpotInfo struct {
	ID    int     `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Metal float64 `json:"metal"`
}

func (s SpotInfo) Pos() Point { return Point{X: s.X, Y: s.Y} }
