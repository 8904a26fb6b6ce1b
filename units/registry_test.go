package units

import (
	"testing"

	"github.com/nstehr/vimy/vimy-builder/model"
)

var (
	commander = &model.UnitDef{Name: "armcom", BuildSpeed: 300, BuildOptions: []string{"armsolar", "armmex"}}
	conBot    = &model.UnitDef{Name: "armck", BuildSpeed: 90, BuildOptions: []string{"armsolar", "armllt"}}
	solar     = &model.UnitDef{Name: "armsolar"}
)

func TestRegistryCounts(t *testing.T) {
	r := NewRegistry()
	r.Finished(1, commander, false)
	r.Created(2, solar)
	if got := r.Count("armsolar"); got != 0 {
		t.Errorf("unfinished solar counted: %d", got)
	}
	r.Finished(2, solar, false)
	r.Finished(2, solar, false)
	if got := r.Count("armsolar"); got != 1 {
		t.Errorf("Count(armsolar) = %d, want 1", got)
	}
	r.Destroyed(2)
	if got := r.Count("armsolar"); got != 0 {
		t.Errorf("Count after destroy = %d, want 0", got)
	}
	if _, ok := r.Destroyed(2); ok {
		t.Error("second destroy reported a unit")
	}
}

func TestRegistryBuildersInCreationOrder(t *testing.T) {
	r := NewRegistry()
	r.Finished(7, conBot, false)
	r.Finished(3, commander, false)
	r.Finished(5, solar, false)
	r.Created(9, conBot)

	builders := r.Builders()
	if len(builders) != 2 || builders[0].ID != 7 || builders[1].ID != 3 {
		t.Fatalf("unexpected builders: %+v", builders)
	}

	r.Disable(7)
	if got := len(r.Builders()); got != 1 {
		t.Errorf("disabled builder still listed, got %d builders", got)
	}

	types := r.BuildableTypes()
	if !types["armmex"] || types["armllt"] {
		t.Errorf("BuildableTypes = %v", types)
	}
	if got := r.BuildSpeed(); got != 300 {
		t.Errorf("BuildSpeed = %f, want 300", got)
	}
}

func TestRegistryWaterPresence(t *testing.T) {
	r := NewRegistry()
	r.Finished(1, commander, false)
	if r.HasWaterPresence() {
		t.Fatal("dry registry reports water")
	}
	r.Finished(2, conBot, true)
	if !r.HasWaterPresence() {
		t.Fatal("expected water presence")
	}
	r.Destroyed(2)
	if r.HasWaterPresence() {
		t.Error("water presence survived unit death")
	}
}
