// Package stockpile runs units whose weapon has to be charged before it
// fires: fire at something worth hitting, build another charge, or wait.
package stockpile

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/world"
)

var ErrNoStockpile = errors.New("unit has no stockpile weapon")

type Config struct {
	Cap        int
	WaitFrames int
}

func DefaultConfig() Config {
	return Config{Cap: 2, WaitFrames: 150}
}

type Controller struct {
	cfg   Config
	world world.Query
	out   world.Dispatcher
	rand  *rand.Rand

	stock map[int]int
}

func New(cfg Config, q world.Query, out world.Dispatcher, rng *rand.Rand) *Controller {
	if rng == nil {
		rng = rand.New(rand.NewPCG(3, 4))
	}
	return &Controller{cfg: cfg, world: q, out: out, rand: rng, stock: make(map[int]int)}
}

// SetStock records the charges a unit holds.
func (c *Controller) SetStock(id, n int) { c.stock[id] = n }

func (c *Controller) Stock(id int) int { return c.stock[id] }

func (c *Controller) Remove(id int) { delete(c.stock, id) }

// Idle decides and dispatches one command for an idle stockpile unit.
func (c *Controller) Idle(id int, def *model.UnitDef) (world.Command, error) {
	cmd, err := c.decide(id, def)
	if err != nil {
		return cmd, err
	}
	if err := c.out.Dispatch(cmd); err != nil {
		return cmd, fmt.Errorf("dispatch %s: %w", cmd, err)
	}
	// Firing spends a charge now; the next sync corrects any drift.
	if cmd.Kind == world.CmdAttack && c.stock[id] > 0 {
		c.stock[id]--
	}
	return cmd, nil
}

func (c *Controller) decide(id int, def *model.UnitDef) (world.Command, error) {
	w := def.Stockpile
	if w == nil {
		return world.Command{}, fmt.Errorf("%w: %s", ErrNoStockpile, def.Name)
	}
	pos, ok := c.world.UnitPos(id)
	if !ok {
		return world.Command{}, fmt.Errorf("unit %d not visible", id)
	}

	stock := c.stock[id]
	if stock > 0 && w.ManualFire {
		if target, ok := c.target(pos, w.Range); ok {
			return world.Attack(id, target.ID), nil
		}
	}
	if stock < c.cfg.Cap && c.affordable(w) {
		return world.Stockpile(id), nil
	}
	return world.Wait(id, c.cfg.WaitFrames), nil
}

// target prefers buildings over mobile units and visible over radar-only
// contacts; ties are broken at random.
func (c *Controller) target(pos model.Point, radius float64) (model.Enemy, bool) {
	enemies := c.world.EnemiesNear(pos, radius)
	if len(enemies) == 0 {
		return model.Enemy{}, false
	}
	c.rand.Shuffle(len(enemies), func(i, j int) { enemies[i], enemies[j] = enemies[j], enemies[i] })
	sort.SliceStable(enemies, func(i, j int) bool {
		a, b := enemies[i], enemies[j]
		if a.Mobile != b.Mobile {
			return !a.Mobile
		}
		return a.InLOS && !b.InLOS
	})
	return enemies[0], true
}

// affordable checks that both resources stay positive over one charge time
// after paying for the charge.
func (c *Controller) affordable(w *model.StockpileWeapon) bool {
	m := c.world.Resource(model.Metal)
	e := c.world.Resource(model.Energy)
	return m.Project(w.Time)-w.MetalCost > 0 && e.Project(w.Time)-w.EnergyCost > 0
}
