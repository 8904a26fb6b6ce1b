package scheduler

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/nstehr/vimy/vimy-builder/catalog"
	"github.com/nstehr/vimy/vimy-builder/economy"
	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/queue"
	"github.com/nstehr/vimy/vimy-builder/units"
	"github.com/nstehr/vimy/vimy-builder/world"
	"github.com/nstehr/vimy/vimy-builder/world/worldtest"
)

var testUnits = []*model.UnitDef{
	{
		Name: "con", MetalCost: 100, BuildTime: 1000, BuildSpeed: 100, Mobile: true,
		BuildOptions: []string{"solar", "mex", "lab", "fusion", "llt"},
		CanRepair:    true, CanReclaim: true,
	},
	{Name: "nano", MetalCost: 100, CanAssist: true, CanRepair: true},
	{Name: "solar", MetalCost: 50, BuildTime: 500, EnergyMake: 20},
	{Name: "mex", MetalCost: 50, BuildTime: 500, ExtractsMetal: 2},
	{Name: "lab", MetalCost: 200, BuildTime: 2000, BuildSpeed: 100, BuildOptions: []string{"con"}},
	{Name: "fusion", MetalCost: 300, BuildTime: 3000, EnergyMake: 500, Requires: "lab"},
	{Name: "llt", MetalCost: 80, BuildTime: 800},
}

type fixture struct {
	w   *worldtest.Fake
	reg *units.Registry
	cat *catalog.Catalog
	q   *queue.Queue
	s   *Scheduler
}

func list(name string, role catalog.Role, minUnits int, priority float64, types ...string) *catalog.List {
	l := &catalog.List{Name: name, Role: role, MinUnits: minUnits, Priority: priority}
	for _, t := range types {
		l.Entries = append(l.Entries, &catalog.Entry{Type: t})
	}
	return l
}

func newFixture(t *testing.T, lists []*catalog.List, spots ...model.SpotInfo) *fixture {
	t.Helper()
	cat, err := catalog.New(catalog.File{EnergyPerMetal: 60, Units: testUnits, Lists: lists})
	if err != nil {
		t.Fatal(err)
	}
	w := worldtest.New()
	reg := units.NewRegistry()
	q := queue.New(queue.DefaultConfig(), queue.NewSpotIndex(spots), w)
	ecfg := economy.DefaultConfig()
	ecfg.LossCorrection = false
	econ := economy.New(ecfg, cat, q, w)

	s := New(Context{
		World:   w,
		Place:   w,
		Out:     w,
		Units:   reg,
		Catalog: cat,
		Queue:   q,
		Econ:    econ,
		Rand:    rand.New(rand.NewPCG(1, 2)),
	}, DefaultConfig())
	return &fixture{w: w, reg: reg, cat: cat, q: q, s: s}
}

// add places a finished unit both in the world and in the registry.
func (f *fixture) add(t *testing.T, id int, typ string, x, y float64) {
	t.Helper()
	def, ok := f.cat.Def(typ)
	if !ok {
		t.Fatalf("no def %q", typ)
	}
	f.w.AddUnit(id, typ, x, y)
	f.reg.Finished(id, def, false)
}

func TestIdleIssuesBuild(t *testing.T) {
	f := newFixture(t, []*catalog.List{list("energy", catalog.RoleEnergy, 2, 1, "solar")})
	f.add(t, 1, "con", 0, 0)

	cmd, err := f.s.Idle(1)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != world.CmdBuild || cmd.BuildType != "solar" {
		t.Fatalf("cmd = %s, want build solar", cmd)
	}
	if cmd.Pos != (model.Point{X: 32, Y: 0}) {
		t.Errorf("pos = %+v", cmd.Pos)
	}
	// Replenishing stops at the energy kind cap.
	if got := f.q.Len(); got != 5 {
		t.Errorf("queue length = %d, want 5", got)
	}
	h, ok := f.q.ByBuilder(1)
	if !ok {
		t.Fatal("builder not bound")
	}
	if o, _ := f.q.Get(h); o.Status != queue.StatusAssigned {
		t.Errorf("status = %s", o.Status)
	}
	if err := f.q.Check(); err != nil {
		t.Error(err)
	}
}

func TestIdleIsIdempotentWithinFrame(t *testing.T) {
	f := newFixture(t, []*catalog.List{list("energy", catalog.RoleEnergy, 2, 1, "solar")})
	f.add(t, 1, "con", 0, 0)

	first, err := f.s.Idle(1)
	if err != nil {
		t.Fatal(err)
	}
	h, _ := f.q.ByBuilder(1)
	before, _ := f.q.Get(h)
	n := f.q.Len()

	second, err := f.s.Idle(1)
	if err != nil {
		t.Fatal(err)
	}
	after, _ := f.q.Get(h)
	if first != second {
		t.Errorf("commands differ: %s vs %s", first, second)
	}
	if f.q.Len() != n || after.Retries != before.Retries || after.Builder != before.Builder {
		t.Errorf("queue changed: len %d->%d retries %d->%d", n, f.q.Len(), before.Retries, after.Retries)
	}
}

func TestUnknownAndDisabledUnits(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.s.Idle(99); !errors.Is(err, ErrUnknownUnitType) {
		t.Errorf("unknown unit: err = %v", err)
	}
	f.add(t, 1, "con", 0, 0)
	f.reg.Disable(1)
	if _, err := f.s.Idle(1); !errors.Is(err, ErrUnknownUnitType) {
		t.Errorf("disabled unit: err = %v", err)
	}
	if len(f.w.Sent) != 0 {
		t.Errorf("dispatched %v", f.w.Sent)
	}
}

func TestStarvingListIsChosen(t *testing.T) {
	f := newFixture(t, []*catalog.List{
		list("energy", catalog.RoleEnergy, 2, 1, "solar"),
		list("defense", catalog.RoleGeneric, 0, 1, "llt"),
	})
	f.add(t, 1, "con", 0, 0)
	for id := 10; id < 15; id++ {
		f.add(t, id, "llt", 100, 100)
	}

	c, err := f.s.choose(model.Point{})
	if err != nil {
		t.Fatal(err)
	}
	if c.def.Name != "solar" || c.kind != queue.KindEnergy {
		t.Errorf("chose %s (%s), want solar", c.def.Name, c.kind)
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		l     *catalog.List
		count int
		want  float64
		ok    bool
	}{
		{"below minimum", list("a", catalog.RoleGeneric, 4, 1), 1, 0.25, true},
		{"at minimum", list("a", catalog.RoleGeneric, 4, 2), 4, 2.5, true},
		{"no minimum", list("a", catalog.RoleGeneric, 0, 0.5), 0, 2, true},
		{"priority zero met", list("a", catalog.RoleGeneric, 1, 0), 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := score(tt.l, tt.count)
			if ok != tt.ok || got != tt.want {
				t.Errorf("score = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPriorityZeroListDoneAtMinimum(t *testing.T) {
	f := newFixture(t, []*catalog.List{list("factories", catalog.RoleGeneric, 1, 0, "lab")})
	f.add(t, 1, "con", 0, 0)
	if _, err := f.s.choose(model.Point{}); err != nil {
		t.Fatalf("first lab should be eligible: %v", err)
	}
	f.add(t, 2, "lab", 50, 50)
	if _, err := f.s.choose(model.Point{}); !errors.Is(err, ErrNoEligibleCandidate) {
		t.Errorf("err = %v, want ErrNoEligibleCandidate", err)
	}
}

func TestKindCapExcludesList(t *testing.T) {
	f := newFixture(t, []*catalog.List{list("energy", catalog.RoleEnergy, 0, 1, "solar")})
	f.add(t, 1, "con", 0, 0)
	solar, _ := f.cat.Def("solar")
	for range 5 {
		if _, err := f.q.Add(solar, "energy", queue.KindEnergy); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.s.choose(model.Point{}); !errors.Is(err, ErrNoEligibleCandidate) {
		t.Errorf("err = %v, want ErrNoEligibleCandidate", err)
	}
}

func TestPrerequisiteSubstitution(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, 1, "con", 0, 0)
	fusion, _ := f.cat.Def("fusion")

	h, err := f.s.Request(fusion, queue.KindEnergy)
	if err != nil {
		t.Fatal(err)
	}
	o, _ := f.q.Get(h)
	if o.Def.Name != "lab" || o.Kind != queue.KindPrerequisite {
		t.Fatalf("got %s (%s), want lab prerequisite", o.Def.Name, o.Kind)
	}
	if f.s.PrerequisiteHolder() != h {
		t.Error("first prerequisite order should hold the tie-break")
	}

	// With the lab queued, fusion itself goes in.
	h2, err := f.s.Request(fusion, queue.KindEnergy)
	if err != nil {
		t.Fatal(err)
	}
	if o, _ := f.q.Get(h2); o.Def.Name != "fusion" {
		t.Errorf("second request queued %s", o.Def.Name)
	}
}

func TestPrerequisiteCap(t *testing.T) {
	f := newFixture(t, nil)
	f.s.cfg.MaxPrerequisiteOrders = 0
	fusion, _ := f.cat.Def("fusion")
	if _, err := f.s.Request(fusion, queue.KindEnergy); !errors.Is(err, queue.ErrKindCapReached) {
		t.Errorf("err = %v, want ErrKindCapReached", err)
	}
}

func TestUnmetPrerequisiteExcluded(t *testing.T) {
	f := newFixture(t, []*catalog.List{list("energy", catalog.RoleEnergy, 1, 1, "fusion")})
	f.add(t, 1, "con", 0, 0)
	if _, err := f.s.choose(model.Point{}); !errors.Is(err, ErrNoEligibleCandidate) {
		t.Errorf("err = %v, want ErrNoEligibleCandidate", err)
	}
}

func TestBuildersGetDistinctSpots(t *testing.T) {
	f := newFixture(t,
		[]*catalog.List{list("metal", catalog.RoleMetal, 3, 1, "mex")},
		model.SpotInfo{X: 100, Y: 0, Metal: 2},
		model.SpotInfo{X: 500, Y: 0, Metal: 2},
	)
	f.add(t, 1, "con", 0, 0)
	f.add(t, 2, "con", 0, 0)

	a, err := f.s.Idle(1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.s.Idle(2)
	if err != nil {
		t.Fatal(err)
	}
	if a.Kind != world.CmdBuild || b.Kind != world.CmdBuild {
		t.Fatalf("commands: %s, %s", a, b)
	}
	if a.Pos != (model.Point{X: 100}) || b.Pos != (model.Point{X: 500}) {
		t.Errorf("positions %+v and %+v", a.Pos, b.Pos)
	}
	ha, _ := f.q.ByBuilder(1)
	hb, _ := f.q.ByBuilder(2)
	if ha == hb {
		t.Error("both builders share an order")
	}
	if f.q.Spots().Free() != 0 {
		t.Errorf("free spots = %d", f.q.Spots().Free())
	}
	if err := f.q.Check(); err != nil {
		t.Error(err)
	}

	// No spot left for a third extractor.
	f.add(t, 3, "con", 0, 0)
	c, err := f.s.Idle(3)
	if err != nil {
		t.Fatal(err)
	}
	if c.Kind == world.CmdBuild {
		t.Errorf("third builder got %s", c)
	}
}

func TestPlacementFailureUnbinds(t *testing.T) {
	f := newFixture(t, []*catalog.List{list("energy", catalog.RoleEnergy, 1, 1, "solar")})
	f.add(t, 1, "con", 0, 0)
	f.w.Blocked["solar"] = true

	cmd, err := f.s.Idle(1)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind == world.CmdBuild {
		t.Fatalf("cmd = %s", cmd)
	}
	if _, ok := f.q.ByBuilder(1); ok {
		t.Error("builder still bound after placement failure")
	}
	h := f.q.Handles()[0]
	if o, _ := f.q.Get(h); o.Retries != 1 {
		t.Errorf("retries = %d, want 1", o.Retries)
	}
}

func TestWaitWhenNothingToDo(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, 1, "con", 0, 0)
	cmd, err := f.s.Idle(1)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != world.CmdWait || cmd.Timeout != DefaultConfig().WaitFrames {
		t.Errorf("cmd = %s, want wait", cmd)
	}
}

func TestRepairsOrphanedConstruction(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, 1, "con", 0, 0)
	solar, _ := f.cat.Def("solar")
	h, _ := f.q.Add(solar, "", queue.KindGeneric)
	_ = f.q.Assign(h, 1, 100)
	f.w.AddConstruction(50, "solar", 40, 0, 0.3)
	_ = f.q.Started(h, 50)
	if _, err := f.q.Remove(h, queue.ReasonStale); err != nil {
		t.Fatal(err)
	}

	cmd, err := f.s.Idle(1)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != world.CmdRepair || cmd.TargetID != 50 {
		t.Errorf("cmd = %s, want repair 50", cmd)
	}
}

func TestReclaimWhenLagging(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, 1, "con", 0, 0)
	f.w.Features[7] = model.Feature{ID: 7, X: 200, Metal: 50, Reclaimable: true}
	f.w.Features[8] = model.Feature{ID: 8, X: 100, Metal: 1, Reclaimable: true}

	// Comfortable economy: nothing worth the trip.
	cmd, _ := f.s.Idle(1)
	if cmd.Kind == world.CmdReclaim {
		t.Fatalf("reclaimed while comfortable: %s", cmd)
	}

	f.w.Econ.Metal.Current = 50
	cmd, _ = f.s.Idle(1)
	if cmd.Kind != world.CmdReclaim || cmd.TargetID != 7 {
		t.Errorf("cmd = %s, want reclaim 7", cmd)
	}
}

func TestMilitaryWhenComfortable(t *testing.T) {
	f := newFixture(t, []*catalog.List{list("defense", catalog.RoleMilitary, 0, 0, "llt")})
	f.add(t, 1, "con", 0, 0)

	cmd, err := f.s.Idle(1)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != world.CmdBuild || cmd.BuildType != "llt" {
		t.Fatalf("cmd = %s, want build llt", cmd)
	}
	h, _ := f.q.ByBuilder(1)
	if o, _ := f.q.Get(h); o.List != "defense" || o.Kind != queue.KindGeneric {
		t.Errorf("order list %q kind %s", o.List, o.Kind)
	}
}

func TestAssistBusyBuilder(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, 1, "con", 0, 0)
	f.add(t, 2, "nano", 100, 0)
	solar, _ := f.cat.Def("solar")
	h, _ := f.q.Add(solar, "", queue.KindGeneric)
	_ = f.q.Assign(h, 1, 100)
	f.w.AddConstruction(50, "solar", 40, 0, 0.5)
	_ = f.q.Started(h, 50)

	cmd, err := f.s.Idle(2)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != world.CmdGuard || cmd.TargetID != 1 {
		t.Errorf("cmd = %s, want guard 1", cmd)
	}
}

func TestDemandOverride(t *testing.T) {
	f := newFixture(t, []*catalog.List{
		list("defense", catalog.RoleGeneric, 1, 1, "llt"),
		list("energy", catalog.RoleEnergy, 0, 0.1, "solar"),
	})
	f.add(t, 1, "con", 0, 0)

	c, err := f.s.choose(model.Point{})
	if err != nil {
		t.Fatal(err)
	}
	if c.def.Name != "llt" {
		t.Fatalf("healthy economy chose %s, want llt", c.def.Name)
	}

	f.w.Econ.Energy = model.ResourceState{Income: 1, Usage: 20, Storage: 1000, Current: 0}
	c, err = f.s.choose(model.Point{})
	if err != nil {
		t.Fatal(err)
	}
	if c.def.Name != "solar" || c.kind != queue.KindEnergy {
		t.Errorf("starved economy chose %s (%s), want solar", c.def.Name, c.kind)
	}
}

func TestKindFor(t *testing.T) {
	mstor := &model.UnitDef{MetalStorage: 1000, EnergyStorage: 50}
	estor := &model.UnitDef{EnergyStorage: 3000}
	if k := kindFor(catalog.RoleStorage, mstor); k != queue.KindMetalStorage {
		t.Errorf("metal storage kind = %s", k)
	}
	if k := kindFor(catalog.RoleStorage, estor); k != queue.KindEnergyStorage {
		t.Errorf("energy storage kind = %s", k)
	}
	if k := kindFor(catalog.RoleMilitary, mstor); k != queue.KindGeneric {
		t.Errorf("military kind = %s", k)
	}
}

// occupiedPlacement refuses sites within radius of any standing non-builder
// unit, the way the engine refuses a spot under an existing building.
type occupiedPlacement struct {
	*worldtest.Fake
	radius float64
}

func (p occupiedPlacement) CanBuildAt(def *model.UnitDef, at model.Point) bool {
	for _, u := range p.Units {
		if u.Type != "con" && u.Pos().DistSq(at) <= p.radius*p.radius {
			return false
		}
	}
	return p.Fake.CanBuildAt(def, at)
}

func TestExtractorSkipsOccupiedSpot(t *testing.T) {
	f := newFixture(t,
		[]*catalog.List{list("metal", catalog.RoleMetal, 4, 1, "mex")},
		model.SpotInfo{X: 1000, Y: 1000, Metal: 2},
		model.SpotInfo{X: 1500, Y: 1000, Metal: 2},
	)
	f.s.ctx.Place = occupiedPlacement{Fake: f.w, radius: 48}
	f.add(t, 2, "mex", 1000, 1000)
	f.add(t, 1, "con", 1010, 1000)

	cmd, err := f.s.Idle(1)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != world.CmdBuild || cmd.BuildType != "mex" {
		t.Fatalf("cmd = %s, want build mex", cmd)
	}
	if cmd.Pos != (model.Point{X: 1500, Y: 1000}) {
		t.Errorf("pos = %+v, want the free spot", cmd.Pos)
	}
}

func TestRejectedSpotRestsThenReturns(t *testing.T) {
	f := newFixture(t,
		[]*catalog.List{list("metal", catalog.RoleMetal, 3, 1, "mex")},
		model.SpotInfo{X: 100, Y: 0, Metal: 2},
	)
	f.add(t, 1, "con", 0, 0)
	if cmd, _ := f.s.Idle(1); cmd.Kind != world.CmdBuild {
		t.Fatalf("cmd = %s", cmd)
	}

	// Something parks on the spot before construction starts.
	f.w.FrameNum = 10
	f.w.Blocked["mex"] = true
	if cmd, _ := f.s.Idle(1); cmd.Kind == world.CmdBuild {
		t.Fatalf("cmd = %s on a refused spot", cmd)
	}
	sp, _ := f.q.Spots().Get(1)
	if sp.EnemyOwned {
		t.Error("refused spot marked enemy-owned")
	}
	if want := 10 + DefaultConfig().SpotBlockFrames; sp.BlockedUntil != want {
		t.Errorf("BlockedUntil = %d, want %d", sp.BlockedUntil, want)
	}
	if f.q.Spots().Free() != 0 {
		t.Error("refused spot still offered")
	}
	if err := f.q.Check(); err != nil {
		t.Error(err)
	}

	f.q.Spots().ExpireBlocks(sp.BlockedUntil)
	if f.q.Spots().Free() != 1 {
		t.Error("spot not returned after its block")
	}
}

func TestFreshOrderHasNoRetries(t *testing.T) {
	f := newFixture(t, []*catalog.List{list("energy", catalog.RoleEnergy, 2, 1, "solar")})
	f.add(t, 1, "con", 0, 0)
	f.w.FrameNum = 5

	if _, err := f.s.Idle(1); err != nil {
		t.Fatal(err)
	}
	h, _ := f.q.ByBuilder(1)
	if o, _ := f.q.Get(h); o.Retries != 0 {
		t.Errorf("retries = %d after assignment, want 0", o.Retries)
	}

	f.w.FrameNum = 6
	if _, err := f.s.Idle(1); err != nil {
		t.Fatal(err)
	}
	if o, _ := f.q.Get(h); o.Retries != 1 {
		t.Errorf("retries = %d after a re-poll, want 1", o.Retries)
	}
}
