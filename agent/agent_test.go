package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nstehr/vimy/vimy-builder/ai"
	"github.com/nstehr/vimy/vimy-builder/catalog"
	"github.com/nstehr/vimy/vimy-builder/ipc"
	"github.com/nstehr/vimy/vimy-builder/journal"
	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/world"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(catalog.File{
		EnergyPerMetal: 60,
		Units: []*model.UnitDef{
			{Name: "armcom", MetalCost: 2500, BuildTime: 75000, BuildSpeed: 300, Mobile: true, Amphibious: true,
				BuildOptions: []string{"armsolar", "armmex"}, CanRepair: true, CanReclaim: true},
			{Name: "armsolar", MetalCost: 150, BuildTime: 2600, EnergyMake: 20},
			{Name: "armmex", MetalCost: 50, BuildTime: 1800, ExtractsMetal: 2},
		},
		Lists: []*catalog.List{
			{Name: "energy", Role: catalog.RoleEnergy, MinUnits: 4, Priority: 1, Entries: []*catalog.Entry{{Type: "armsolar"}}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func testOptions(t *testing.T) Options {
	cfg := ai.DefaultConfig()
	cfg.Economy.LossCorrection = false
	return Options{Config: cfg, Catalog: testCatalog(t)}
}

func hello(t *testing.T, a *Agent, msg ipc.HelloMessage) ipc.AckMessage {
	t.Helper()
	env, _ := ipc.NewEnvelope(ipc.TypeHello, msg)
	resp, err := a.HandleHello(env)
	if err != nil {
		t.Fatal(err)
	}
	var ack ipc.AckMessage
	if err := resp.Decode(&ack); err != nil {
		t.Fatal(err)
	}
	return ack
}

func frame(n int, units ...model.Unit) model.GameState {
	return model.GameState{
		Frame:     n,
		MapWidth:  4096,
		MapHeight: 4096,
		Economy: model.Economy{
			Metal:  model.ResourceState{Income: 5, Usage: 1, Storage: 1000, Current: 500},
			Energy: model.ResourceState{Income: 50, Usage: 10, Storage: 1000, Current: 500},
		},
		Units: units,
	}
}

func TestStepBeforeHello(t *testing.T) {
	a := New(nil, testOptions(t))
	if _, err := a.Step(frame(1)); !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v", err)
	}
}

func TestIdleCommanderBuilds(t *testing.T) {
	a := New(nil, testOptions(t))
	hello(t, a, ipc.HelloMessage{Player: 1, MapName: "Tabula"})

	com := model.Unit{ID: 1, Type: "armcom", X: 1000, Y: 1000, HP: 3000, MaxHP: 3000, BuildProgress: 1, Idle: true}
	cmds, err := a.Step(frame(30, com))
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 1 || cmds[0].Kind != world.CmdBuild || cmds[0].BuildType != "armsolar" {
		t.Fatalf("cmds = %v", cmds)
	}
	if d := cmds[0].Pos.Dist(com.Pos()); d > searchRadius {
		t.Errorf("placed %v away from the builder", d)
	}

	site := model.Unit{ID: 7, Type: "armsolar", X: cmds[0].Pos.X, Y: cmds[0].Pos.Y, HP: 10, MaxHP: 500, BuildProgress: 0.05, BuiltBy: 1}
	com.Idle = false
	if _, err := a.Step(frame(31, com, site)); err != nil {
		t.Fatal(err)
	}
	q := a.Controller().Queue()
	h, ok := q.ByUnit(7)
	if !ok {
		t.Fatal("construction not matched to its order")
	}
	if b, _ := q.ByBuilder(1); b != h {
		t.Error("construction bound to a different order than its builder's")
	}
}

func TestHandleGameStateReplies(t *testing.T) {
	a := New(nil, testOptions(t))
	hello(t, a, ipc.HelloMessage{Player: 0})
	env, _ := ipc.NewEnvelope(ipc.TypeGameState, frame(1))
	resp, err := a.HandleGameState(env)
	if err != nil {
		t.Fatal(err)
	}
	var msg ipc.CommandsMessage
	if err := resp.Decode(&msg); err != nil {
		t.Fatal(err)
	}
	if resp.Type != ipc.TypeCommands || msg.Frame != 1 || len(msg.Commands) != 0 {
		t.Errorf("got %s %+v", resp.Type, msg)
	}
}

func TestJournalAndTrace(t *testing.T) {
	db, err := journal.NewTestConnection()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = journal.Close(db) })
	store := journal.NewStore(db)

	opts := testOptions(t)
	opts.Store = store
	opts.TraceDir = t.TempDir()
	a := New(nil, opts)
	ack := hello(t, a, ipc.HelloMessage{Player: 2, MapName: "Delta"})
	if ack.Session == "" {
		t.Fatal("no journal session")
	}

	com := model.Unit{ID: 1, Type: "armcom", X: 500, Y: 500, HP: 3000, MaxHP: 3000, BuildProgress: 1, Idle: true}
	cmds, err := a.Step(frame(10, com))
	if err != nil || len(cmds) != 1 {
		t.Fatalf("cmds = %v, err = %v", cmds, err)
	}
	p := cmds[0].Pos
	com.Idle = false
	if _, err := a.Step(frame(11, com, model.Unit{ID: 9, Type: "armsolar", X: p.X, Y: p.Y, HP: 10, MaxHP: 500, BuildProgress: 0.1, BuiltBy: 1})); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Step(frame(12, com, model.Unit{ID: 9, Type: "armsolar", X: p.X, Y: p.Y, HP: 500, MaxHP: 500, BuildProgress: 1})); err != nil {
		t.Fatal(err)
	}

	over, _ := ipc.NewEnvelope(ipc.TypeGameOver, ipc.GameOverMessage{Frame: 12, Winner: true})
	if _, err := a.HandleGameOver(over); err != nil {
		t.Fatal(err)
	}

	out, err := store.Outcomes(context.Background(), ack.Session)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, o := range out {
		if o.UnitType == "armsolar" && o.Reason == "completed" && o.Count == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("outcomes = %+v", out)
	}

	files, _ := filepath.Glob(filepath.Join(opts.TraceDir, ack.Session+"-*.jsonl.zst"))
	if len(files) != 1 {
		t.Fatalf("trace files = %v", files)
	}
	entries, err := journal.ReadTrace(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 || entries[0].Command.BuildType != "armsolar" || entries[0].Frame != 10 {
		t.Errorf("trace = %+v", entries)
	}
	if _, err := os.Stat(files[0]); err != nil {
		t.Error(err)
	}
}

func TestSecondExtractorGoesToFreeSpot(t *testing.T) {
	cat, err := catalog.New(catalog.File{
		EnergyPerMetal: 60,
		Units:          testCatalog(t).Defs(),
		Lists: []*catalog.List{
			{Name: "metal", Role: catalog.RoleMetal, MinUnits: 4, Priority: 1, Entries: []*catalog.Entry{{Type: "armmex"}}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	opts := testOptions(t)
	opts.Catalog = cat
	a := New(nil, opts)
	hello(t, a, ipc.HelloMessage{Player: 1, MapName: "Tabula", Spots: []model.SpotInfo{
		{ID: 1, X: 1000, Y: 1000, Metal: 2},
		{ID: 2, X: 1500, Y: 1000, Metal: 2},
	}})

	mex := model.Unit{ID: 2, Type: "armmex", X: 1000, Y: 1000, HP: 500, MaxHP: 500, BuildProgress: 1}
	com := model.Unit{ID: 1, Type: "armcom", X: 1010, Y: 1000, HP: 3000, MaxHP: 3000, BuildProgress: 1, Idle: true}
	cmds, err := a.Step(frame(30, mex, com))
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 1 || cmds[0].Kind != world.CmdBuild || cmds[0].BuildType != "armmex" {
		t.Fatalf("cmds = %v", cmds)
	}
	if cmds[0].Pos != (model.Point{X: 1500, Y: 1000}) {
		t.Errorf("extractor placed at %+v, want the free spot", cmds[0].Pos)
	}
	if sp, _ := a.Controller().Queue().Spots().Get(1); sp.Extractor != 2 {
		t.Errorf("spot 1 extractor = %d, want 2", sp.Extractor)
	}
}
