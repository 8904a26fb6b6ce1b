package config

import (
	"fmt"

	"github.com/nstehr/vimy/vimy-builder/economy"
	"github.com/nstehr/vimy/vimy-builder/power"
	"github.com/nstehr/vimy/vimy-builder/queue"
	"github.com/nstehr/vimy/vimy-builder/scheduler"
	"github.com/nstehr/vimy/vimy-builder/stockpile"
)

func (c SchedulerConfig) Build() scheduler.Config {
	return scheduler.Config{
		WaitFrames:            c.WaitFrames,
		MaxPrerequisiteOrders: c.MaxPrerequisiteOrders,
		GraceFrames:           c.GraceFrames,
		NearZeroHealth:        c.NearZeroHealth,
		DamagedHealth:         c.DamagedHealth,
		RepairRadius:          c.RepairRadius,
		ReclaimRadius:         c.ReclaimRadius,
		ResurrectRadius:       c.ResurrectRadius,
		ResurrectArea:         c.ResurrectArea,
		CaptureRadius:         c.CaptureRadius,
		AssistRadius:          c.AssistRadius,
		DemandThreshold:       c.DemandThreshold,
		SpotBlockFrames:       c.SpotBlockFrames,
	}
}

// Build converts the kind names into queue kinds.
func (c QueueConfig) Build() (queue.Config, error) {
	out := queue.Config{
		Capacity:      c.Capacity,
		KindCaps:      make(map[queue.Kind]int, len(c.KindCaps)),
		KindFractions: make(map[queue.Kind]float64, len(c.KindFractions)),
		ExpiryFrames:  c.ExpiryFrames,
		MaxRetries:    c.MaxRetries,
	}
	for name, n := range c.KindCaps {
		k, err := queue.ParseKind(name)
		if err != nil {
			return queue.Config{}, fmt.Errorf("queue.kind_caps: %w", err)
		}
		out.KindCaps[k] = n
	}
	for name, f := range c.KindFractions {
		k, err := queue.ParseKind(name)
		if err != nil {
			return queue.Config{}, fmt.Errorf("queue.kind_fractions: %w", err)
		}
		out.KindFractions[k] = f
	}
	return out, nil
}

func (c EconomyConfig) Build() economy.Config {
	return economy.Config{
		HorizonSeconds:     c.HorizonSeconds,
		MetalMargin:        c.MetalMargin,
		DisableFactor:      c.DisableFactor,
		BaselineMultiple:   c.BaselineMultiple,
		StrainMin:          c.StrainMin,
		StrainMax:          c.StrainMax,
		LossCorrection:     c.LossCorrection,
		LossHalfLifeFrames: c.LossHalfLifeFrames,
		LossWindowSeconds:  c.LossWindowSeconds,
		ComfortFill:        c.ComfortFill,
		LowFill:            c.LowFill,
	}
}

func (c PowerConfig) Build() power.Config {
	return power.Config{
		CloakSurplusFactor: c.CloakSurplusFactor,
		FullFill:           c.FullFill,
		ResumeFill:         c.ResumeFill,
		ShortHorizon:       c.ShortHorizon,
		LongHorizon:        c.LongHorizon,
		LowReserve:         c.LowReserve,
		ComfortReserve:     c.ComfortReserve,
		ConsumerMargin:     c.ConsumerMargin,
	}
}

func (c StockpileConfig) Build() stockpile.Config {
	return stockpile.Config{Cap: c.Cap, WaitFrames: c.WaitFrames}
}
