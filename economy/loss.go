package economy

import (
	"math"

	"github.com/nstehr/vimy/vimy-builder/model"
)

// Clock is anything that knows the current frame.
type Clock interface {
	Frame() int
}

// LossCorrection estimates resources about to be spent by builders that were
// just given work but whose drain does not show in the income readout yet.
// Each note adds rate*window to the estimate, which then halves every
// halfLife frames.
type LossCorrection struct {
	clock    Clock
	halfLife float64
	window   float64

	metal  float64
	energy float64
	at     int
}

func NewLossCorrection(clock Clock, halfLifeFrames int, windowSeconds float64) *LossCorrection {
	if halfLifeFrames <= 0 {
		halfLifeFrames = 1
	}
	return &LossCorrection{
		clock:    clock,
		halfLife: float64(halfLifeFrames),
		window:   windowSeconds,
		at:       clock.Frame(),
	}
}

func (l *LossCorrection) NoteDrain(metal, energy float64) {
	l.decay()
	l.metal += metal * l.window
	l.energy += energy * l.window
}

func (l *LossCorrection) Value(r model.Resource) float64 {
	l.decay()
	if r == model.Energy {
		return l.energy
	}
	return l.metal
}

func (l *LossCorrection) decay() {
	now := l.clock.Frame()
	dt := now - l.at
	if dt <= 0 {
		return
	}
	k := math.Exp2(-float64(dt) / l.halfLife)
	l.metal *= k
	l.energy *= k
	l.at = now
}
