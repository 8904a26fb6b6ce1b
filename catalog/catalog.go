// Package catalog holds the static unit definitions and the weighted
// build-lists the scheduler draws from, plus the cost flags the economy
// forecaster maintains on them.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"github.com/nstehr/vimy/vimy-builder/model"
)

// DefaultEnergyPerMetal converts energy costs into metal-equivalent units.
const DefaultEnergyPerMetal = 60

var ErrUnknownUnitType = errors.New("unknown unit type")

// Role is the economic purpose of a build-list.
type Role string

const (
	RoleEnergy   Role = "energy"
	RoleMetal    Role = "metal"
	RoleBuilder  Role = "builder"
	RoleStorage  Role = "storage"
	RoleMilitary Role = "military"
	RoleGeneric  Role = "generic"
)

// Entry is one weighted member of a build-list. When holds an optional expr
// condition evaluated against Env; an empty condition always passes.
type Entry struct {
	Type   string  `yaml:"type"`
	Weight float64 `yaml:"weight"`
	When   string  `yaml:"when"`

	Def *model.UnitDef `yaml:"-"`

	program  *vm.Program
	excluded bool
}

// Exclude hides the entry for the current scheduling pass only.
func (e *Entry) Exclude()        { e.excluded = true }
func (e *Entry) Excluded() bool { return e.excluded }

// Allowed runs the entry condition. Evaluation errors count as false.
func (e *Entry) Allowed(env Env) bool {
	if e.program == nil {
		return true
	}
	result, err := vm.Run(e.program, env)
	if err != nil {
		slog.Warn("build-list condition error", "type", e.Type, "error", err)
		return false
	}
	ok, _ := result.(bool)
	return ok
}

type List struct {
	Name     string   `yaml:"name"`
	Role     Role     `yaml:"role"`
	MinUnits int      `yaml:"min_units"`
	Priority float64  `yaml:"priority"`
	Entries  []*Entry `yaml:"entries"`
}

// Eligible returns the entries not excluded in the current pass.
func (l *List) Eligible() []*Entry {
	var out []*Entry
	for _, e := range l.Entries {
		if !e.excluded {
			out = append(out, e)
		}
	}
	return out
}

func (l *List) Has(typ string) bool {
	for _, e := range l.Entries {
		if e.Type == typ {
			return true
		}
	}
	return false
}

// File is the on-disk catalog layout.
type File struct {
	EnergyPerMetal float64          `yaml:"energy_per_metal"`
	Units          []*model.UnitDef `yaml:"units"`
	Lists          []*List          `yaml:"build_lists"`
}

type Catalog struct {
	EnergyPerMetal float64

	defs         map[string]*model.UnitDef
	lists        []*List
	costDisabled map[string]bool
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(raw []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(f)
}

// New resolves list entries against the unit table and compiles every
// entry condition into expr bytecode.
func New(f File) (*Catalog, error) {
	c := &Catalog{
		EnergyPerMetal: f.EnergyPerMetal,
		defs:           make(map[string]*model.UnitDef, len(f.Units)),
		lists:          f.Lists,
		costDisabled:   make(map[string]bool),
	}
	if c.EnergyPerMetal <= 0 {
		c.EnergyPerMetal = DefaultEnergyPerMetal
	}
	for _, d := range f.Units {
		if d.Name == "" {
			return nil, fmt.Errorf("unit definition without name")
		}
		c.defs[d.Name] = d
	}
	for _, l := range c.lists {
		if l.Role == "" {
			l.Role = RoleGeneric
		}
		for _, e := range l.Entries {
			def, ok := c.defs[e.Type]
			if !ok {
				return nil, fmt.Errorf("list %q: %w: %s", l.Name, ErrUnknownUnitType, e.Type)
			}
			e.Def = def
			if e.Weight <= 0 {
				e.Weight = 1
			}
			if e.When == "" {
				continue
			}
			prog, err := expr.Compile(e.When, expr.Env(Env{}), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("compile condition for %q in list %q: %w", e.Type, l.Name, err)
			}
			e.program = prog
		}
	}
	for _, d := range c.defs {
		if d.Requires != "" {
			if _, ok := c.defs[d.Requires]; !ok {
				return nil, fmt.Errorf("%s requires %s: %w", d.Name, d.Requires, ErrUnknownUnitType)
			}
		}
	}
	return c, nil
}

func (c *Catalog) Def(name string) (*model.UnitDef, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// Defs returns every definition sorted by name.
func (c *Catalog) Defs() []*model.UnitDef {
	out := make([]*model.UnitDef, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Catalog) Lists() []*List { return c.lists }

func (c *Catalog) Cost(d *model.UnitDef) float64 { return d.Cost(c.EnergyPerMetal) }

// MaxCost is the most expensive build-list member, the baseline against
// which generous cost limits are clamped.
func (c *Catalog) MaxCost() float64 {
	var best float64
	for _, l := range c.lists {
		for _, e := range l.Entries {
			best = max(best, c.Cost(e.Def))
		}
	}
	return best
}

// Supplies reports whether a builder has at least one build option that
// appears in some build-list.
func (c *Catalog) Supplies(builder *model.UnitDef) bool {
	for _, name := range builder.BuildOptions {
		for _, l := range c.lists {
			if l.Has(name) {
				return true
			}
		}
	}
	return false
}

func (c *Catalog) SetCostDisabled(name string, disabled bool) {
	if disabled {
		c.costDisabled[name] = true
		return
	}
	delete(c.costDisabled, name)
}

func (c *Catalog) CostDisabled(name string) bool { return c.costDisabled[name] }

// ResetPass clears every per-pass exclusion.
func (c *Catalog) ResetPass() {
	for _, l := range c.lists {
		for _, e := range l.Entries {
			e.excluded = false
		}
	}
}
