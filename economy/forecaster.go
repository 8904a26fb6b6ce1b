// Package economy decides which unit types are affordable and how badly
// each resource is needed.
package economy

import (
	"log/slog"
	"math"
	"sort"

	"github.com/nstehr/vimy/vimy-builder/catalog"
	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/queue"
)

type Config struct {
	HorizonSeconds   float64
	MetalMargin      float64
	DisableFactor    float64
	BaselineMultiple float64
	StrainMin        float64
	StrainMax        float64

	LossCorrection     bool
	LossHalfLifeFrames int
	LossWindowSeconds  float64

	ComfortFill float64
	LowFill     float64
}

func DefaultConfig() Config {
	return Config{
		HorizonSeconds:     20,
		MetalMargin:        1,
		DisableFactor:      1.5,
		BaselineMultiple:   4,
		StrainMin:          0.25,
		StrainMax:          4,
		LossCorrection:     true,
		LossHalfLifeFrames: 45,
		LossWindowSeconds:  1,
		ComfortFill:        0.5,
		LowFill:            0.25,
	}
}

// Source is the economy readout.
type Source interface {
	Frame() int
	Resource(r model.Resource) model.ResourceState
}

type Forecaster struct {
	cfg Config
	cat *catalog.Catalog
	q   *queue.Queue
	src Source

	MetalLimit  float64
	EnergyLimit float64
	Loss        *LossCorrection

	producers [2]int
	forced    []string
}

func New(cfg Config, cat *catalog.Catalog, q *queue.Queue, src Source) *Forecaster {
	f := &Forecaster{
		cfg:         cfg,
		cat:         cat,
		q:           q,
		src:         src,
		MetalLimit:  math.Inf(1),
		EnergyLimit: math.Inf(1),
		producers:   [2]int{-1, -1},
	}
	if cfg.LossCorrection {
		f.Loss = NewLossCorrection(src, cfg.LossHalfLifeFrames, cfg.LossWindowSeconds)
		q.SetDrainNoter(f.Loss)
	}
	return f
}

// Observe records how many finished producers of each resource we own and
// reports whether either count changed since the last call.
func (f *Forecaster) Observe(counts map[string]int) bool {
	var now [2]int
	for name, n := range counts {
		def, ok := f.cat.Def(name)
		if !ok || n <= 0 {
			continue
		}
		if def.Rate(model.Metal) > 0 {
			now[model.Metal] += n
		}
		if def.Rate(model.Energy) > 0 {
			now[model.Energy] += n
		}
	}
	changed := now != f.producers
	f.producers = now
	return changed
}

// Recompute derives fresh cost limits from the economy readout and applies
// them. buildable restricts the force-enable candidates; nil means all.
func (f *Forecaster) Recompute(buildable map[string]bool) int {
	proj := f.q.Projection()
	m := f.src.Resource(model.Metal)
	e := f.src.Resource(model.Energy)

	metal := (m.Income + proj.MetalRate + f.cfg.MetalMargin) * f.cfg.HorizonSeconds
	energy := (e.Income + proj.EnergyRate) * f.cfg.HorizonSeconds

	if len(f.cat.Lists()) == 0 {
		metal, energy = math.Inf(1), math.Inf(1)
	} else if base := f.cat.MaxCost() * f.cfg.BaselineMultiple; base > 0 {
		if metal >= base {
			metal = math.Inf(1)
		}
		if energy >= base*f.cat.EnergyPerMetal {
			energy = math.Inf(1)
		}
	}
	return f.ApplyLimits(max(metal, 0), max(energy, 0), buildable)
}

// ApplyLimits sets the cost limits, updates the disabled-by-cost flags with
// hysteresis, force-enables the cheapest options and drops every order whose
// target became unaffordable. Constructions of dropped orders become orphans
// for builders to finish by repair. Returns the number of orders removed.
func (f *Forecaster) ApplyLimits(metal, energy float64, buildable map[string]bool) int {
	f.MetalLimit, f.EnergyLimit = metal, energy

	seen := make(map[string]bool)
	for _, l := range f.cat.Lists() {
		for _, entry := range l.Entries {
			def := entry.Def
			if seen[def.Name] {
				continue
			}
			seen[def.Name] = true
			f.cat.SetCostDisabled(def.Name, f.disabled(def))
		}
	}

	f.forced = f.forced[:0]
	land, water := f.cheapest(buildable)
	for _, def := range []*model.UnitDef{land, water} {
		if def != nil && f.cat.CostDisabled(def.Name) {
			f.cat.SetCostDisabled(def.Name, false)
			f.forced = append(f.forced, def.Name)
		}
	}

	removed := 0
	for _, h := range f.q.Handles() {
		o, ok := f.q.Get(h)
		if !ok || !f.cat.CostDisabled(o.Def.Name) {
			continue
		}
		if _, err := f.q.Remove(h, queue.ReasonUnaffordable); err == nil {
			removed++
		}
	}

	slog.Debug("cost limits applied",
		"metalLimit", f.MetalLimit,
		"energyLimit", f.EnergyLimit,
		"forced", f.forced,
		"removed", removed,
	)
	return removed
}

// disabled applies the hysteresis band: a type turns off at DisableFactor
// times the limit and only turns back on strictly under the limit.
func (f *Forecaster) disabled(def *model.UnitDef) bool {
	over := func(cost, limit, factor float64) bool {
		return cost > 0 && cost >= factor*limit
	}
	// A resource the type does not cost never holds it back.
	under := func(cost, limit float64) bool {
		return cost == 0 || cost < limit
	}
	if f.cat.CostDisabled(def.Name) {
		return !(under(def.MetalCost, f.MetalLimit) && under(def.EnergyCost, f.EnergyLimit))
	}
	return over(def.MetalCost, f.MetalLimit, f.cfg.DisableFactor) ||
		over(def.EnergyCost, f.EnergyLimit, f.cfg.DisableFactor)
}

// cheapest finds the cheapest land-capable and water-capable list members,
// preferring types that can themselves build builders.
func (f *Forecaster) cheapest(buildable map[string]bool) (land, water *model.UnitDef) {
	var candidates []*model.UnitDef
	seen := make(map[string]bool)
	for _, l := range f.cat.Lists() {
		for _, entry := range l.Entries {
			if seen[entry.Type] || (buildable != nil && !buildable[entry.Type]) {
				continue
			}
			seen[entry.Type] = true
			candidates = append(candidates, entry.Def)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		bi, bj := f.buildsBuilders(candidates[i]), f.buildsBuilders(candidates[j])
		if bi != bj {
			return bi
		}
		return f.cat.Cost(candidates[i]) < f.cat.Cost(candidates[j])
	})
	for _, def := range candidates {
		if land == nil && def.LandCapable() {
			land = def
		}
		if water == nil && def.WaterCapable() {
			water = def
		}
	}
	return land, water
}

func (f *Forecaster) buildsBuilders(def *model.UnitDef) bool {
	for _, name := range def.BuildOptions {
		if d, ok := f.cat.Def(name); ok && d.IsBuilder() {
			return true
		}
	}
	return false
}

// Forced lists the types force-enabled by the last ApplyLimits.
func (f *Forecaster) Forced() []string { return f.forced }

// Demand projects the shortfall of r if a build of the given cost starts
// now and takes the given seconds. Positive means the resource is needed.
func (f *Forecaster) Demand(r model.Resource, cost, seconds float64) float64 {
	st := f.src.Resource(r)
	delta := f.q.Projection().Rate(r)
	var loss float64
	if f.Loss != nil {
		loss = f.Loss.Value(r)
	}
	d := -(seconds*(st.Net()+delta) + st.Current - loss - cost)
	return d * f.strain(st)
}

func (f *Forecaster) strain(st model.ResourceState) float64 {
	if st.Income <= 0 {
		return f.cfg.StrainMax
	}
	return min(max(st.Usage/st.Income, f.cfg.StrainMin), f.cfg.StrainMax)
}

// Comfortable means both resources are half full and not draining.
func (f *Forecaster) Comfortable() bool {
	m := f.src.Resource(model.Metal)
	e := f.src.Resource(model.Energy)
	return m.Fill() >= f.cfg.ComfortFill && e.Fill() >= f.cfg.ComfortFill && m.Net() >= 0 && e.Net() >= 0
}

// Lagging means foraging is worth the travel: storage is low or a resource
// is draining.
func (f *Forecaster) Lagging() bool {
	m := f.src.Resource(model.Metal)
	e := f.src.Resource(model.Energy)
	return m.Fill() < f.cfg.LowFill || e.Fill() < f.cfg.LowFill || m.Net() < 0 || e.Net() < 0
}

func (f *Forecaster) Affordable(def *model.UnitDef) bool { return !f.cat.CostDisabled(def.Name) }
