package config

import (
	"github.com/nstehr/vimy/vimy-builder/economy"
	"github.com/nstehr/vimy/vimy-builder/power"
	"github.com/nstehr/vimy/vimy-builder/queue"
	"github.com/nstehr/vimy/vimy-builder/scheduler"
	"github.com/nstehr/vimy/vimy-builder/stockpile"
)

// SetDefaults fills every zero field with its default, taken from the
// package that owns the setting.
func SetDefaults(cfg *Config) {
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = "configs/catalog.yaml"
	}

	sd := scheduler.DefaultConfig()
	s := &cfg.Scheduler
	setInt(&s.WaitFrames, sd.WaitFrames)
	setInt(&s.MaxPrerequisiteOrders, sd.MaxPrerequisiteOrders)
	setInt(&s.GraceFrames, sd.GraceFrames)
	setFloat(&s.NearZeroHealth, sd.NearZeroHealth)
	setFloat(&s.DamagedHealth, sd.DamagedHealth)
	setFloat(&s.RepairRadius, sd.RepairRadius)
	setFloat(&s.ReclaimRadius, sd.ReclaimRadius)
	setFloat(&s.ResurrectRadius, sd.ResurrectRadius)
	setFloat(&s.ResurrectArea, sd.ResurrectArea)
	setFloat(&s.CaptureRadius, sd.CaptureRadius)
	setFloat(&s.AssistRadius, sd.AssistRadius)
	setInt(&s.SpotBlockFrames, sd.SpotBlockFrames)
	setInt(&s.ForecastInterval, 30)
	setInt(&s.PowerInterval, 15)

	qd := queue.DefaultConfig()
	q := &cfg.Queue
	setInt(&q.Capacity, qd.Capacity)
	setInt(&q.ExpiryFrames, qd.ExpiryFrames)
	setInt(&q.MaxRetries, qd.MaxRetries)
	if q.KindCaps == nil {
		q.KindCaps = make(map[string]int, len(qd.KindCaps))
		for k, n := range qd.KindCaps {
			q.KindCaps[k.String()] = n
		}
	}
	if q.KindFractions == nil {
		q.KindFractions = make(map[string]float64, len(qd.KindFractions))
		for k, f := range qd.KindFractions {
			q.KindFractions[k.String()] = f
		}
	}

	ed := economy.DefaultConfig()
	e := &cfg.Economy
	setFloat(&e.HorizonSeconds, ed.HorizonSeconds)
	setFloat(&e.MetalMargin, ed.MetalMargin)
	setFloat(&e.DisableFactor, ed.DisableFactor)
	setFloat(&e.BaselineMultiple, ed.BaselineMultiple)
	setFloat(&e.StrainMin, ed.StrainMin)
	setFloat(&e.StrainMax, ed.StrainMax)
	setInt(&e.LossHalfLifeFrames, ed.LossHalfLifeFrames)
	setFloat(&e.LossWindowSeconds, ed.LossWindowSeconds)
	setFloat(&e.ComfortFill, ed.ComfortFill)
	setFloat(&e.LowFill, ed.LowFill)

	pd := power.DefaultConfig()
	p := &cfg.Power
	setFloat(&p.CloakSurplusFactor, pd.CloakSurplusFactor)
	setFloat(&p.FullFill, pd.FullFill)
	setFloat(&p.ResumeFill, pd.ResumeFill)
	setFloat(&p.ShortHorizon, pd.ShortHorizon)
	setFloat(&p.LongHorizon, pd.LongHorizon)
	setFloat(&p.LowReserve, pd.LowReserve)
	setFloat(&p.ComfortReserve, pd.ComfortReserve)
	setFloat(&p.ConsumerMargin, pd.ConsumerMargin)

	std := stockpile.DefaultConfig()
	setInt(&cfg.Stockpile.Cap, std.Cap)
	setInt(&cfg.Stockpile.WaitFrames, std.WaitFrames)

	if cfg.IPC.Socket == "" {
		cfg.IPC.Socket = "/tmp/vimy.sock"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = "localhost"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9464
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Journal.Type == "" {
		cfg.Journal.Type = "sqlite"
	}
	if cfg.Journal.Type == "sqlite" && cfg.Journal.Path == "" {
		cfg.Journal.Path = "vimy-journal.db"
	}
	if cfg.Journal.Buffer == 0 {
		cfg.Journal.Buffer = 4096
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}
