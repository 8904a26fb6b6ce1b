package queue

import (
	"fmt"

	"github.com/nstehr/vimy/vimy-builder/model"
)

// Kind is the economic role an order was queued for. Caps are kept per kind.
type Kind int

const (
	KindGeneric Kind = iota
	KindEnergy
	KindMetal
	KindBuilder
	KindEnergyStorage
	KindMetalStorage
	KindPrerequisite
	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindEnergy:
		return "energy"
	case KindMetal:
		return "metal"
	case KindBuilder:
		return "builder"
	case KindEnergyStorage:
		return "energy_storage"
	case KindMetalStorage:
		return "metal_storage"
	case KindPrerequisite:
		return "prerequisite"
	}
	return "generic"
}

// ParseKind maps config keys onto kinds.
func ParseKind(s string) (Kind, error) {
	for k := KindGeneric; k < numKinds; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return KindGeneric, fmt.Errorf("unknown order kind %q", s)
}

// Status is derived from the builder and construction bindings:
//
//	Queued      no builder, nothing under construction
//	Assigned    builder bound, nothing under construction yet
//	InProgress  builder bound, construction exists
//	Abandoned   construction exists but its builder is gone
//	Removed     slot recycled
type Status int

const (
	StatusQueued Status = iota
	StatusAssigned
	StatusInProgress
	StatusAbandoned
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusAssigned:
		return "assigned"
	case StatusInProgress:
		return "in_progress"
	case StatusAbandoned:
		return "abandoned"
	case StatusRemoved:
		return "removed"
	}
	return "queued"
}

var transitions = map[Status][]Status{
	StatusQueued:     {StatusAssigned, StatusRemoved},
	StatusAssigned:   {StatusQueued, StatusInProgress, StatusRemoved},
	StatusInProgress: {StatusAssigned, StatusAbandoned, StatusRemoved},
	StatusAbandoned:  {StatusQueued, StatusInProgress, StatusRemoved},
}

func (s Status) canMoveTo(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Handle addresses an order slot. A handle goes stale once its order is
// removed; the zero Handle never resolves.
type Handle struct {
	index uint32
	gen   uint32
}

func (h Handle) Valid() bool { return h.gen != 0 }

func (h Handle) String() string {
	if !h.Valid() {
		return "none"
	}
	return fmt.Sprintf("%d.%d", h.index, h.gen)
}

// Order is one scheduled construction. Values handed out by the queue are
// copies; mutate through Queue methods.
type Order struct {
	Handle  Handle
	Def     *model.UnitDef
	List    string // source build-list, empty for ad hoc requests
	Kind    Kind
	Builder int // 0 when unbound
	Spot    int // 0 when no resource spot is locked
	Units   []int
	Retries int
	Expiry  int // frame after which an unbound order with no construction is stale
	Status  Status
	Created int

	Pos    model.Point
	HasPos bool

	lastTry  int
	lastFail int
}

// Abandoned reports an order whose builder died mid-construction.
func (o Order) Abandoned() bool { return o.Status == StatusAbandoned }

func (o Order) InProgress() bool { return len(o.Units) > 0 }

func (o *Order) derive() Status {
	switch {
	case o.Builder != 0 && len(o.Units) > 0:
		return StatusInProgress
	case o.Builder != 0:
		return StatusAssigned
	case len(o.Units) > 0:
		return StatusAbandoned
	}
	return StatusQueued
}
