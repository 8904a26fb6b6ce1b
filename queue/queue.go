// Package queue is the bounded set of pending and active construction
// orders, with exclusive builder and resource-spot bindings.
package queue

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/nstehr/vimy/vimy-builder/model"
)

// Reason records why an order left the queue.
type Reason string

const (
	ReasonCompleted    Reason = "completed"
	ReasonStale        Reason = "stale"
	ReasonRetries      Reason = "retries"
	ReasonBuilderLost  Reason = "builder_lost"
	ReasonUnaffordable Reason = "unaffordable"
	ReasonDecayed      Reason = "decayed"
	ReasonNoSpot       Reason = "no_spot"
)

type Config struct {
	Capacity      int
	KindCaps      map[Kind]int
	KindFractions map[Kind]float64
	ExpiryFrames  int
	MaxRetries    int
}

func DefaultConfig() Config {
	return Config{
		Capacity: 30,
		KindCaps: map[Kind]int{
			KindEnergy:        5,
			KindBuilder:       2,
			KindPrerequisite:  2,
			KindEnergyStorage: 1,
			KindMetalStorage:  1,
		},
		KindFractions: map[Kind]float64{
			KindMetal:   0.5,
			KindGeneric: 1.0,
		},
		ExpiryFrames: 30 * 60,
		MaxRetries:   8,
	}
}

// Probe is the slice of the world the queue needs: the clock and whether a
// construction still exists.
type Probe interface {
	Frame() int
	UnitBuildProgress(id int) (float64, bool)
}

// DrainNoter receives the per-second drain of a freshly bound order so the
// forecaster can cover for lag in the income readout.
type DrainNoter interface {
	NoteDrain(metal, energy float64)
}

type Observer interface {
	OrderAdded(o Order)
	OrderRemoved(o Order, reason Reason)
}

// Projection is the expected change in income and storage once every
// queued order is finished.
type Projection struct {
	MetalRate     float64
	EnergyRate    float64
	MetalStorage  float64
	EnergyStorage float64
}

func (p Projection) Rate(r model.Resource) float64 {
	if r == model.Energy {
		return p.EnergyRate
	}
	return p.MetalRate
}

func (p Projection) Storage(r model.Resource) float64 {
	if r == model.Energy {
		return p.EnergyStorage
	}
	return p.MetalStorage
}

type slot struct {
	order Order
	gen   uint32
	live  bool
	dense int
}

type Queue struct {
	cfg      Config
	probe    Probe
	spots    *SpotIndex
	drain    DrainNoter
	observer Observer

	slots  []slot
	active []uint32 // dense list of live slot indices
	free   []uint32

	byBuilder map[int]Handle
	byUnit    map[int]Handle
	orphans   map[int]*model.UnitDef // constructions left behind by removed orders

	kindCount [numKinds]int
	typeCount map[string]int
	proj      Projection
}

func New(cfg Config, spots *SpotIndex, probe Probe) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if spots == nil {
		spots = NewSpotIndex(nil)
	}
	return &Queue{
		cfg:       cfg,
		probe:     probe,
		spots:     spots,
		byBuilder: make(map[int]Handle),
		byUnit:    make(map[int]Handle),
		orphans:   make(map[int]*model.UnitDef),
		typeCount: make(map[string]int),
	}
}

func (q *Queue) SetDrainNoter(d DrainNoter) { q.drain = d }
func (q *Queue) SetObserver(o Observer)     { q.observer = o }

func (q *Queue) Spots() *SpotIndex { return q.spots }
func (q *Queue) Capacity() int     { return q.cfg.Capacity }
func (q *Queue) MaxRetries() int   { return q.cfg.MaxRetries }
func (q *Queue) Len() int          { return len(q.active) }

func (q *Queue) KindCount(k Kind) int       { return q.kindCount[k] }
func (q *Queue) TypeCount(name string) int  { return q.typeCount[name] }
func (q *Queue) Projection() Projection     { return q.proj }

// Cap is the effective soft cap for a kind: the smaller of its absolute cap
// and its fraction of capacity.
func (q *Queue) Cap(k Kind) int {
	limit := q.cfg.Capacity
	if n, ok := q.cfg.KindCaps[k]; ok && n < limit {
		limit = n
	}
	if f, ok := q.cfg.KindFractions[k]; ok {
		if n := int(math.Floor(f * float64(q.cfg.Capacity))); n < limit {
			limit = n
		}
	}
	return limit
}

// CanAdd reports whether an order of kind k would be accepted right now.
func (q *Queue) CanAdd(k Kind) error {
	if len(q.active) >= q.cfg.Capacity {
		return ErrQueueFull
	}
	if q.kindCount[k] >= q.Cap(k) {
		return fmt.Errorf("%w: %s at %d", ErrKindCapReached, k, q.Cap(k))
	}
	return nil
}

// Add queues a new unbound order.
func (q *Queue) Add(def *model.UnitDef, list string, kind Kind) (Handle, error) {
	if err := q.CanAdd(kind); err != nil {
		return Handle{}, err
	}

	var idx uint32
	if n := len(q.free); n > 0 {
		idx = q.free[n-1]
		q.free = q.free[:n-1]
	} else {
		idx = uint32(len(q.slots))
		q.slots = append(q.slots, slot{gen: 1})
	}
	s := &q.slots[idx]
	s.live = true
	s.dense = len(q.active)
	q.active = append(q.active, idx)

	now := q.probe.Frame()
	h := Handle{index: idx, gen: s.gen}
	s.order = Order{
		Handle:   h,
		Def:      def,
		List:     list,
		Kind:     kind,
		Expiry:   now + q.cfg.ExpiryFrames,
		Created:  now,
		Status:   StatusQueued,
		lastTry:  -1,
		lastFail: -1,
	}

	q.kindCount[kind]++
	q.typeCount[def.Name]++
	q.project(def, 1)

	slog.Debug("order queued", "order", h, "type", def.Name, "kind", kind, "list", list, "len", len(q.active))
	if q.observer != nil {
		q.observer.OrderAdded(s.order)
	}
	return h, nil
}

func (q *Queue) project(def *model.UnitDef, sign float64) {
	q.proj.MetalRate += sign * def.Rate(model.Metal)
	q.proj.EnergyRate += sign * def.Rate(model.Energy)
	q.proj.MetalStorage += sign * def.MetalStorage
	q.proj.EnergyStorage += sign * def.EnergyStorage
}

func (q *Queue) get(h Handle) *Order {
	if !h.Valid() || int(h.index) >= len(q.slots) {
		return nil
	}
	s := &q.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil
	}
	return &s.order
}

func (q *Queue) Get(h Handle) (Order, bool) {
	o := q.get(h)
	if o == nil {
		return Order{}, false
	}
	return *o, true
}

// Handles returns a snapshot of live handles in queue order, safe to use
// while removing.
func (q *Queue) Handles() []Handle {
	out := make([]Handle, len(q.active))
	for i, idx := range q.active {
		out[i] = Handle{index: idx, gen: q.slots[idx].gen}
	}
	return out
}

func (q *Queue) ByBuilder(builder int) (Handle, bool) {
	h, ok := q.byBuilder[builder]
	return h, ok
}

func (q *Queue) ByUnit(unit int) (Handle, bool) {
	h, ok := q.byUnit[unit]
	return h, ok
}

// PendingCost sums the costs of orders with nothing under construction yet.
func (q *Queue) PendingCost() (metal, energy float64) {
	for _, idx := range q.active {
		o := &q.slots[idx].order
		if len(o.Units) == 0 {
			metal += o.Def.MetalCost
			energy += o.Def.EnergyCost
		}
	}
	return metal, energy
}

// Stale reports whether an order should be dropped at the top of a pass.
func (q *Queue) Stale(o Order, now int) (Reason, bool) {
	if q.cfg.MaxRetries > 0 && o.Retries > q.cfg.MaxRetries {
		return ReasonRetries, true
	}
	if len(o.Units) == 0 && now > o.Expiry {
		return ReasonStale, true
	}
	return "", false
}

func (q *Queue) transition(o *Order) error {
	next := o.derive()
	if !o.Status.canMoveTo(next) {
		return fmt.Errorf("%w: order %s %s -> %s", ErrBadTransition, o.Handle, o.Status, next)
	}
	o.Status = next
	return nil
}

// unbind clears the builder and spot of o. The caller fixes status.
func (q *Queue) unbind(o *Order) {
	if o.Builder != 0 {
		delete(q.byBuilder, o.Builder)
		o.Builder = 0
	}
	if o.Spot != 0 {
		q.spots.unlock(o.Spot)
		o.Spot = 0
	}
}

// Assign binds builder to h, or unbinds with builder == 0. The previous
// builder of h and the previous order of builder both lose their bindings
// (and spot claims) before the new binding is made. speed is the builder's
// build speed, used for the drain estimate.
func (q *Queue) Assign(h Handle, builder int, speed float64) error {
	o := q.get(h)
	if o == nil {
		return ErrStaleHandle
	}
	if o.Builder == builder {
		return nil
	}
	if o.Builder != 0 {
		q.unbind(o)
		if err := q.transition(o); err != nil {
			return err
		}
	}
	if builder == 0 {
		return nil
	}
	if prev, ok := q.byBuilder[builder]; ok {
		if po := q.get(prev); po != nil {
			q.unbind(po)
			if err := q.transition(po); err != nil {
				return err
			}
		}
	}

	o.Builder = builder
	q.byBuilder[builder] = h
	o.Expiry = q.probe.Frame() + q.cfg.ExpiryFrames
	// The assignment itself is this frame's attempt.
	o.lastTry = q.probe.Frame()
	if err := q.transition(o); err != nil {
		return err
	}

	if q.drain != nil && speed > 0 {
		secs := o.Def.BuildSeconds(speed)
		if secs > 0 {
			q.drain.NoteDrain(o.Def.MetalCost/secs, o.Def.EnergyCost/secs)
		}
	}
	return nil
}

// LockSpot gives h exclusive use of a resource spot. The order must have a
// builder; a spot held by another order is refused.
func (q *Queue) LockSpot(h Handle, spot int) error {
	o := q.get(h)
	if o == nil {
		return ErrStaleHandle
	}
	if o.Builder == 0 {
		return &BindingError{Order: h, Spot: spot, Err: ErrNoBuilder}
	}
	sp, ok := q.spots.Get(spot)
	if !ok {
		return &BindingError{Order: h, Builder: o.Builder, Spot: spot, Err: ErrUnknownSpot}
	}
	if sp.Locked() && sp.Order != h {
		return &BindingError{Order: h, Builder: o.Builder, Spot: spot, Err: ErrSpotLocked}
	}
	if o.Spot != 0 && o.Spot != spot {
		q.spots.unlock(o.Spot)
	}
	if err := q.spots.lock(spot, o.Builder, h); err != nil {
		return &BindingError{Order: h, Builder: o.Builder, Spot: spot, Err: err}
	}
	o.Spot = spot
	o.Pos = sp.Pos
	o.HasPos = true
	return nil
}

func (q *Queue) SetPosition(h Handle, p model.Point) error {
	o := q.get(h)
	if o == nil {
		return ErrStaleHandle
	}
	o.Pos = p
	o.HasPos = true
	return nil
}

// NoteRetry counts one attempt that had nothing under construction. A
// second call within the same frame is not counted, so polling a builder
// twice in one frame leaves the queue untouched.
func (q *Queue) NoteRetry(h Handle) (int, error) {
	o := q.get(h)
	if o == nil {
		return 0, ErrStaleHandle
	}
	now := q.probe.Frame()
	if o.lastTry != now {
		o.lastTry = now
		o.Retries++
	}
	return o.Retries, nil
}

// NoteFailure counts a failed attempt, even in the frame of assignment,
// at most once per frame.
func (q *Queue) NoteFailure(h Handle) (int, error) {
	o := q.get(h)
	if o == nil {
		return 0, ErrStaleHandle
	}
	now := q.probe.Frame()
	if o.lastFail != now {
		o.lastFail = now
		o.lastTry = now
		o.Retries++
	}
	return o.Retries, nil
}

// Started attaches a construction to h.
func (q *Queue) Started(h Handle, unit int) error {
	o := q.get(h)
	if o == nil {
		return ErrStaleHandle
	}
	if prev, ok := q.byUnit[unit]; ok && prev == h {
		return nil
	}
	o.Units = append(o.Units, unit)
	q.byUnit[unit] = h
	delete(q.orphans, unit)
	return q.transition(o)
}

// Identify matches a newly created unit to the order that spawned it: the
// builder's own order when known, else the nearest bound order of that type.
func (q *Queue) Identify(unit int, def *model.UnitDef, pos model.Point, builder int) (Handle, bool) {
	if h, ok := q.byUnit[unit]; ok {
		return h, true
	}
	if h, ok := q.byBuilder[builder]; ok {
		if o := q.get(h); o != nil && o.Def.Name == def.Name {
			return h, q.Started(h, unit) == nil
		}
	}

	var best Handle
	bestDist := math.Inf(1)
	bestBusy := true
	for _, idx := range q.active {
		o := &q.slots[idx].order
		if o.Def.Name != def.Name || o.Builder == 0 {
			continue
		}
		d := math.Inf(1)
		if o.HasPos {
			d = o.Pos.DistSq(pos)
		}
		busy := len(o.Units) > 0
		// Orders without a construction win over ones that already have one.
		if (bestBusy && !busy) || (busy == bestBusy && d < bestDist) || !best.Valid() {
			best, bestDist, bestBusy = o.Handle, d, busy
		}
	}
	if !best.Valid() {
		return Handle{}, false
	}
	return best, q.Started(best, unit) == nil
}

// Finished completes the order owning unit, if any.
func (q *Queue) Finished(unit int) (Order, bool) {
	delete(q.orphans, unit)
	h, ok := q.byUnit[unit]
	if !ok {
		return Order{}, false
	}
	o, err := q.Remove(h, ReasonCompleted)
	if err != nil {
		delete(q.byUnit, unit)
		return Order{}, false
	}
	return o, true
}

// Destroyed handles the death of a builder or of a construction.
//
// A dead builder with a live construction leaves its order Abandoned and
// unbound; with nothing under construction the order is removed. A dead
// construction is dropped from its order and counts as a retry.
func (q *Queue) Destroyed(unit int) {
	delete(q.orphans, unit)

	if h, ok := q.byBuilder[unit]; ok {
		if o := q.get(h); o != nil {
			if len(o.Units) == 0 {
				_, _ = q.Remove(h, ReasonBuilderLost)
			} else {
				q.unbind(o)
				if err := q.transition(o); err != nil {
					slog.Warn("order state", "error", err)
				}
			}
		}
	}

	if h, ok := q.byUnit[unit]; ok {
		delete(q.byUnit, unit)
		if o := q.get(h); o != nil {
			for i, id := range o.Units {
				if id == unit {
					o.Units = append(o.Units[:i], o.Units[i+1:]...)
					break
				}
			}
			o.Retries++
			if err := q.transition(o); err != nil {
				slog.Warn("order state", "error", err)
			}
		}
	}
}

// Remove releases the order's builder and spot, reverses its counters and
// recycles its slot. Constructions still in progress become orphans that
// builders can finish by repairing, unless the order decayed.
func (q *Queue) Remove(h Handle, reason Reason) (Order, error) {
	o := q.get(h)
	if o == nil {
		return Order{}, ErrStaleHandle
	}
	q.unbind(o)

	for _, u := range o.Units {
		delete(q.byUnit, u)
		if reason == ReasonDecayed {
			continue
		}
		if p, ok := q.probe.UnitBuildProgress(u); ok && p < 1 {
			q.orphans[u] = o.Def
		}
	}

	q.kindCount[o.Kind]--
	q.typeCount[o.Def.Name]--
	if q.typeCount[o.Def.Name] <= 0 {
		delete(q.typeCount, o.Def.Name)
	}
	q.project(o.Def, -1)

	removed := *o
	removed.Status = StatusRemoved

	s := &q.slots[h.index]
	pos := s.dense
	last := q.active[len(q.active)-1]
	q.active[pos] = last
	q.slots[last].dense = pos
	q.active = q.active[:len(q.active)-1]

	s.live = false
	s.order = Order{}
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	q.free = append(q.free, h.index)

	slog.Debug("order removed", "order", h, "type", removed.Def.Name, "reason", reason, "retries", removed.Retries)
	if q.observer != nil {
		q.observer.OrderRemoved(removed, reason)
	}
	return removed, nil
}

// Orphans lists constructions whose order is gone, sorted by id.
func (q *Queue) Orphans() []int {
	ids := make([]int, 0, len(q.orphans))
	for id := range q.orphans {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (q *Queue) DropOrphan(unit int) { delete(q.orphans, unit) }

// Check verifies the binding invariants. Used by tests and debug logging.
func (q *Queue) Check() error {
	if len(q.active) > q.cfg.Capacity {
		return fmt.Errorf("queue length %d over capacity %d", len(q.active), q.cfg.Capacity)
	}
	var kinds [numKinds]int
	builders := make(map[int]Handle)
	spots := make(map[int]Handle)
	for _, idx := range q.active {
		o := &q.slots[idx].order
		kinds[o.Kind]++
		if o.Builder != 0 {
			if prev, dup := builders[o.Builder]; dup {
				return fmt.Errorf("builder %d bound to %s and %s", o.Builder, prev, o.Handle)
			}
			builders[o.Builder] = o.Handle
			if q.byBuilder[o.Builder] != o.Handle {
				return fmt.Errorf("builder index out of sync for %d", o.Builder)
			}
		}
		if o.Spot != 0 {
			if prev, dup := spots[o.Spot]; dup {
				return fmt.Errorf("spot %d bound to %s and %s", o.Spot, prev, o.Handle)
			}
			spots[o.Spot] = o.Handle
			if sp, _ := q.spots.Get(o.Spot); sp.Order != o.Handle {
				return fmt.Errorf("spot %d does not point back at %s", o.Spot, o.Handle)
			}
		}
		if o.Status != o.derive() {
			return fmt.Errorf("order %s status %s, bindings say %s", o.Handle, o.Status, o.derive())
		}
	}
	if len(builders) != len(q.byBuilder) {
		return fmt.Errorf("dangling builder bindings: %d indexed, %d bound", len(q.byBuilder), len(builders))
	}
	var err error
	q.spots.Each(func(sp Spot) {
		if sp.Locked() && spots[sp.ID] != sp.Order && err == nil {
			err = fmt.Errorf("spot %d locked by dead order %s", sp.ID, sp.Order)
		}
	})
	if err != nil {
		return err
	}
	if kinds != q.kindCount {
		return fmt.Errorf("kind counters out of sync: %v vs %v", kinds, q.kindCount)
	}
	return nil
}
