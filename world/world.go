// Package world holds the boundary between the scheduler core and the game:
// read-only queries, placement, and the command sink.
package world

import (
	"errors"
	"fmt"

	"github.com/nstehr/vimy/vimy-builder/model"
)

// Query is the per-frame read view of the game. Lookups of entities that no
// longer exist return ok == false; callers prune their tracking instead of
// failing.
type Query interface {
	Frame() int
	Resource(r model.Resource) model.ResourceState
	UnitPos(id int) (model.Point, bool)
	UnitHealth(id int) (hp, maxHP float64, ok bool)
	UnitBuildProgress(id int) (float64, bool)
	UnderManualControl(id int) bool
	FeaturesNear(p model.Point, radius float64) []int
	Feature(id int) (model.Feature, bool)
	EnemiesNear(p model.Point, radius float64) []model.Enemy
	InWater(p model.Point) bool
}

// Placement is the engine's terrain/placement solver.
type Placement interface {
	CanBuildAt(def *model.UnitDef, p model.Point) bool
	FindBuildPosition(def *model.UnitDef, near model.Point) (model.Point, bool)
}

// ErrDispatch marks a command the game side could not accept.
var ErrDispatch = errors.New("dispatch failed")

// Dispatcher forwards commands to the game. Delivery is fire-and-forget.
type Dispatcher interface {
	Dispatch(cmd Command) error
}

// CommandKind values must stay in sync with the mod's order executor.
type CommandKind string

const (
	CmdMove      CommandKind = "move"
	CmdWait      CommandKind = "wait"
	CmdRepair    CommandKind = "repair"
	CmdReclaim   CommandKind = "reclaim"
	CmdResurrect CommandKind = "resurrect"
	CmdCapture   CommandKind = "capture"
	CmdGuard     CommandKind = "guard"
	CmdOnOff     CommandKind = "on_off"
	CmdCloak     CommandKind = "cloak"
	CmdStockpile CommandKind = "stockpile"
	CmdAttack    CommandKind = "attack"
	CmdBuild     CommandKind = "build"
)

// Command is one order for one unit. Which fields matter depends on Kind:
// TargetID for repair/reclaim/capture/guard/attack, Pos+Radius for area
// reclaim/resurrect and ground attack, BuildType+Pos+Facing for build, On for
// on_off/cloak and Timeout (frames) for wait.
type Command struct {
	Kind      CommandKind `json:"kind"`
	UnitID    int         `json:"unitId"`
	TargetID  int         `json:"targetId,omitempty"`
	Pos       model.Point `json:"pos"`
	Radius    float64     `json:"radius,omitempty"`
	BuildType string      `json:"buildType,omitempty"`
	Facing    int         `json:"facing,omitempty"`
	On        bool        `json:"on"`
	Timeout   int         `json:"timeout,omitempty"`
}

func (c Command) String() string {
	switch c.Kind {
	case CmdBuild:
		return fmt.Sprintf("%s(%d: %s @ %.0f,%.0f)", c.Kind, c.UnitID, c.BuildType, c.Pos.X, c.Pos.Y)
	case CmdWait:
		return fmt.Sprintf("%s(%d: %d frames)", c.Kind, c.UnitID, c.Timeout)
	case CmdOnOff, CmdCloak:
		return fmt.Sprintf("%s(%d: %t)", c.Kind, c.UnitID, c.On)
	case CmdResurrect, CmdMove:
		return fmt.Sprintf("%s(%d: %.0f,%.0f r%.0f)", c.Kind, c.UnitID, c.Pos.X, c.Pos.Y, c.Radius)
	}
	return fmt.Sprintf("%s(%d -> %d)", c.Kind, c.UnitID, c.TargetID)
}

func Build(unit int, buildType string, p model.Point, facing int) Command {
	return Command{Kind: CmdBuild, UnitID: unit, BuildType: buildType, Pos: p, Facing: facing}
}

func Wait(unit, frames int) Command {
	return Command{Kind: CmdWait, UnitID: unit, Timeout: frames}
}

func Repair(unit, target int) Command {
	return Command{Kind: CmdRepair, UnitID: unit, TargetID: target}
}

func Reclaim(unit, feature int) Command {
	return Command{Kind: CmdReclaim, UnitID: unit, TargetID: feature}
}

func ReclaimArea(unit int, p model.Point, radius float64) Command {
	return Command{Kind: CmdReclaim, UnitID: unit, Pos: p, Radius: radius}
}

func Resurrect(unit int, p model.Point, radius float64) Command {
	return Command{Kind: CmdResurrect, UnitID: unit, Pos: p, Radius: radius}
}

func Capture(unit, target int) Command {
	return Command{Kind: CmdCapture, UnitID: unit, TargetID: target}
}

func Guard(unit, target int) Command {
	return Command{Kind: CmdGuard, UnitID: unit, TargetID: target}
}

func Move(unit int, p model.Point) Command {
	return Command{Kind: CmdMove, UnitID: unit, Pos: p}
}

func OnOff(unit int, on bool) Command {
	return Command{Kind: CmdOnOff, UnitID: unit, On: on}
}

func Cloak(unit int, on bool) Command {
	return Command{Kind: CmdCloak, UnitID: unit, On: on}
}

func Stockpile(unit int) Command {
	return Command{Kind: CmdStockpile, UnitID: unit}
}

func Attack(unit, target int) Command {
	return Command{Kind: CmdAttack, UnitID: unit, TargetID: target}
}
