// Package units tracks our own units from the lifecycle hooks.
package units

import (
	"github.com/nstehr/vimy/vimy-builder/model"
)

type Unit struct {
	ID       int
	Def      *model.UnitDef
	Finished bool
	InWater  bool

	// Disabled units are skipped by every scheduler. Set when a builder has
	// nothing in the catalog it could ever build.
	Disabled bool
}

// Registry holds every unit we own. Iteration follows creation order so
// scheduling passes are deterministic within a run.
type Registry struct {
	units  map[int]*Unit
	order  []int
	counts map[string]int // finished units per type
	water  int            // finished units standing in water
}

func NewRegistry() *Registry {
	return &Registry{
		units:  make(map[int]*Unit),
		counts: make(map[string]int),
	}
}

// Created records a unit the moment it appears, finished or not.
func (r *Registry) Created(id int, def *model.UnitDef) *Unit {
	if u, ok := r.units[id]; ok {
		return u
	}
	u := &Unit{ID: id, Def: def}
	r.units[id] = u
	r.order = append(r.order, id)
	return u
}

// Finished marks a unit complete. Units that were never seen being created
// (e.g. starting units) are registered on the spot.
func (r *Registry) Finished(id int, def *model.UnitDef, inWater bool) *Unit {
	u := r.Created(id, def)
	if u.Finished {
		return u
	}
	u.Finished = true
	u.InWater = inWater
	r.counts[def.Name]++
	if inWater {
		r.water++
	}
	return u
}

// Destroyed forgets a unit and returns what was known about it.
func (r *Registry) Destroyed(id int) (*Unit, bool) {
	u, ok := r.units[id]
	if !ok {
		return nil, false
	}
	delete(r.units, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if u.Finished {
		r.counts[u.Def.Name]--
		if u.InWater {
			r.water--
		}
	}
	return u, true
}

func (r *Registry) Get(id int) (*Unit, bool) {
	u, ok := r.units[id]
	return u, ok
}

func (r *Registry) Disable(id int) {
	if u, ok := r.units[id]; ok {
		u.Disabled = true
	}
}

// Count returns the number of finished units of a type.
func (r *Registry) Count(typ string) int { return r.counts[typ] }

// Counts returns a copy of the finished-per-type table.
func (r *Registry) Counts() map[string]int {
	out := make(map[string]int, len(r.counts))
	for k, v := range r.counts {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }

// HasWaterPresence reports whether any finished unit of ours is in water.
func (r *Registry) HasWaterPresence() bool { return r.water > 0 }

// Each walks units in creation order. Returning false stops the walk.
func (r *Registry) Each(fn func(u *Unit) bool) {
	for _, id := range r.order {
		if !fn(r.units[id]) {
			return
		}
	}
}

// Builders returns finished, enabled builders in creation order.
func (r *Registry) Builders() []*Unit {
	var out []*Unit
	r.Each(func(u *Unit) bool {
		if u.Finished && !u.Disabled && u.Def.IsBuilder() {
			out = append(out, u)
		}
		return true
	})
	return out
}

// BuildableTypes is the union of build options over all finished builders.
func (r *Registry) BuildableTypes() map[string]bool {
	out := make(map[string]bool)
	for _, b := range r.Builders() {
		for _, name := range b.Def.BuildOptions {
			out[name] = true
		}
	}
	return out
}

// BuildSpeed sums the build speed of every finished builder.
func (r *Registry) BuildSpeed() float64 {
	var total float64
	for _, b := range r.Builders() {
		total += b.Def.BuildSpeed
	}
	return total
}
