package catalog

import "github.com/nstehr/vimy/vimy-builder/model"

// Env exposes economy and unit counts to build-list conditions, e.g.
//
//	when: MetalIncome() > 15 && Count("armfus") == 0
type Env struct {
	Econ   model.Economy
	Counts map[string]int
	Tick   int
}

func (e Env) MetalIncome() float64  { return e.Econ.Metal.Income }
func (e Env) EnergyIncome() float64 { return e.Econ.Energy.Income }
func (e Env) MetalStored() float64  { return e.Econ.Metal.Current }
func (e Env) EnergyStored() float64 { return e.Econ.Energy.Current }
func (e Env) MetalFill() float64    { return e.Econ.Metal.Fill() }
func (e Env) EnergyFill() float64   { return e.Econ.Energy.Fill() }

// Count includes finished units and queued orders of the type.
func (e Env) Count(t string) int { return e.Counts[t] }

func (e Env) Frame() int { return e.Tick }

// Minutes is game time assuming 30 frames per second.
func (e Env) Minutes() float64 { return float64(e.Tick) / (30 * 60) }
