package ai

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/nstehr/vimy/vimy-builder/catalog"
	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/queue"
	"github.com/nstehr/vimy/vimy-builder/world"
	"github.com/nstehr/vimy/vimy-builder/world/worldtest"
)

func TestSchedulingFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeSchedulingScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run scheduling features")
	}
}

type schedulingContext struct {
	cfg   Config
	lists []string
	spots []model.SpotInfo
	game  *worldtest.Fake
	cat   *catalog.Catalog
	ctl   *Controller
}

func (s *schedulingContext) reset() {
	s.cfg = testConfig()
	s.lists = nil
	s.spots = nil
	s.game = worldtest.New()
	s.cat = nil
	s.ctl = nil
}

// controller builds the controller on first use so Given steps can still
// change its configuration.
func (s *schedulingContext) controller() (*Controller, error) {
	if s.ctl != nil {
		return s.ctl, nil
	}
	cat, err := testCatalog(s.lists...)
	if err != nil {
		return nil, err
	}
	s.cat = cat
	s.ctl = New(s.cfg, s.game, cat, s.spots, nil)
	return s.ctl, nil
}

func (s *schedulingContext) theBuildLists(names string) error {
	for _, n := range strings.Split(names, ",") {
		s.lists = append(s.lists, strings.TrimSpace(n))
	}
	return nil
}

func (s *schedulingContext) aMetalSpotAt(x, y int) error {
	s.spots = append(s.spots, model.SpotInfo{X: float64(x), Y: float64(y), Metal: 2})
	return nil
}

func (s *schedulingContext) aQueueCapacityOf(n int) error {
	s.cfg.Queue.Capacity = n
	return nil
}

func (s *schedulingContext) aBuilderAt(id, x, y int) error {
	ctl, err := s.controller()
	if err != nil {
		return err
	}
	s.game.AddUnit(id, "con", float64(x), float64(y))
	ctl.UnitFinished(id, "con")
	return nil
}

func (s *schedulingContext) builderGoesIdle(id int) error {
	ctl, err := s.controller()
	if err != nil {
		return err
	}
	before := len(s.game.Sent)
	ctl.UnitIdle(id)
	if len(s.game.Sent) != before+1 {
		return fmt.Errorf("builder %d got %d commands, want 1", id, len(s.game.Sent)-before)
	}
	return nil
}

func (s *schedulingContext) exactlyBuildersOrderedToBuild(n int, typ string) error {
	got := 0
	for _, cmd := range s.game.Sent {
		if cmd.Kind == world.CmdBuild && cmd.BuildType == typ {
			got++
		}
	}
	if got != n {
		return fmt.Errorf("%d build %s commands, want %d (sent %v)", got, typ, n, s.game.Sent)
	}
	return nil
}

func (s *schedulingContext) resourceSpotsAreFree(n int) error {
	if free := s.ctl.Queue().Spots().Free(); free != n {
		return fmt.Errorf("free spots = %d, want %d", free, n)
	}
	return nil
}

func (s *schedulingContext) queueBindingsAreConsistent() error {
	return s.ctl.Queue().Check()
}

func (s *schedulingContext) queueHoldsAtMost(n int) error {
	if l := s.ctl.Queue().Len(); l > n {
		return fmt.Errorf("queue length = %d, want at most %d", l, n)
	}
	return nil
}

func (s *schedulingContext) lastCommandsAreIdentical(n int) error {
	sent := s.game.Sent
	if len(sent) < n {
		return fmt.Errorf("only %d commands sent", len(sent))
	}
	tail := sent[len(sent)-n:]
	for _, cmd := range tail[1:] {
		if cmd != tail[0] {
			return fmt.Errorf("commands differ: %s vs %s", tail[0], cmd)
		}
	}
	return nil
}

func (s *schedulingContext) theMetalLimitBecomes(limit int) error {
	ctl, err := s.controller()
	if err != nil {
		return err
	}
	ctl.Forecaster().ApplyLimits(float64(limit), math.Inf(1), nil)
	return nil
}

func (s *schedulingContext) isDisabledByCost(typ string) error {
	if !s.cat.CostDisabled(typ) {
		return fmt.Errorf("%s is enabled", typ)
	}
	return nil
}

func (s *schedulingContext) isEnabled(typ string) error {
	if s.cat.CostDisabled(typ) {
		return fmt.Errorf("%s is disabled", typ)
	}
	return nil
}

func (s *schedulingContext) ordersAreAlreadyQueuedAs(n int, typ, kind string) error {
	ctl, err := s.controller()
	if err != nil {
		return err
	}
	k, err := queue.ParseKind(kind)
	if err != nil {
		return err
	}
	def, _ := s.cat.Def(typ)
	for i := 0; i < n; i++ {
		if _, err := ctl.Queue().Add(def, "energy", k); err != nil {
			return err
		}
	}
	return nil
}

func (s *schedulingContext) queueHoldsKindOrders(n int, kind string) error {
	k, err := queue.ParseKind(kind)
	if err != nil {
		return err
	}
	if got := s.ctl.Queue().KindCount(k); got != n {
		return fmt.Errorf("%s orders = %d, want %d", kind, got, n)
	}
	return nil
}

func (s *schedulingContext) queueHoldsOrderFromList(list string) error {
	for _, o := range s.orders() {
		if o.List == list {
			return nil
		}
	}
	return fmt.Errorf("no order from list %q", list)
}

func (s *schedulingContext) isRequestedAs(typ, kind string) error {
	ctl, err := s.controller()
	if err != nil {
		return err
	}
	k, err := queue.ParseKind(kind)
	if err != nil {
		return err
	}
	def, _ := s.cat.Def(typ)
	_, err = ctl.Scheduler().Request(def, k)
	return err
}

func (s *schedulingContext) queueHoldsOrderOfKind(typ, kind string) error {
	for _, o := range s.orders() {
		if o.Def.Name == typ && o.Kind.String() == kind {
			return nil
		}
	}
	return fmt.Errorf("no %s order of kind %s", typ, kind)
}

func (s *schedulingContext) noOrderIsQueued(typ string) error {
	if n := s.ctl.Queue().TypeCount(typ); n != 0 {
		return fmt.Errorf("%d %s orders queued", n, typ)
	}
	return nil
}

func (s *schedulingContext) constructionStartedBy(id int, typ string, builder int) error {
	cmd := s.game.Last()
	if cmd.Kind != world.CmdBuild || cmd.UnitID != builder {
		return fmt.Errorf("builder %d was not building: %s", builder, cmd)
	}
	s.game.AddConstruction(id, typ, cmd.Pos.X, cmd.Pos.Y, 0.1)
	s.ctl.UnitCreated(id, typ, builder)
	return nil
}

func (s *schedulingContext) unitIsDestroyed(id int) error {
	s.game.Kill(id)
	s.ctl.UnitDestroyed(id)
	return nil
}

func (s *schedulingContext) orderBuildingIsAbandoned(unit int) error {
	h, ok := s.ctl.Queue().ByUnit(unit)
	if !ok {
		return fmt.Errorf("no order owns unit %d", unit)
	}
	o, _ := s.ctl.Queue().Get(h)
	if !o.Abandoned() || o.Builder != 0 {
		return fmt.Errorf("order %s: status %s, builder %d", h, o.Status, o.Builder)
	}
	return nil
}

func (s *schedulingContext) orderOfBuilderHasNoConstructions(builder, retries int) error {
	h, ok := s.ctl.Queue().ByBuilder(builder)
	if !ok {
		return fmt.Errorf("builder %d has no order", builder)
	}
	o, _ := s.ctl.Queue().Get(h)
	if len(o.Units) != 0 || o.Retries != retries {
		return fmt.Errorf("order %s: units %v, retries %d", h, o.Units, o.Retries)
	}
	return nil
}

func (s *schedulingContext) orders() []queue.Order {
	q := s.ctl.Queue()
	var out []queue.Order
	for _, h := range q.Handles() {
		if o, ok := q.Get(h); ok {
			out = append(out, o)
		}
	}
	return out
}

func initializeSchedulingScenario(sc *godog.ScenarioContext) {
	s := &schedulingContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		s.reset()
		return ctx, nil
	})

	sc.Step(`^the build-lists "([^"]*)"$`, s.theBuildLists)
	sc.Step(`^a metal spot at (\d+),(\d+)$`, s.aMetalSpotAt)
	sc.Step(`^a queue capacity of (\d+)$`, s.aQueueCapacityOf)
	sc.Step(`^a builder (\d+) at (\d+),(\d+)$`, s.aBuilderAt)
	sc.Step(`^builder (\d+) goes idle$`, s.builderGoesIdle)
	sc.Step(`^exactly (\d+) builders? (?:is|are) ordered to build "([^"]*)"$`, s.exactlyBuildersOrderedToBuild)
	sc.Step(`^(\d+) resource spots are free$`, s.resourceSpotsAreFree)
	sc.Step(`^the queue bindings are consistent$`, s.queueBindingsAreConsistent)
	sc.Step(`^the queue holds at most (\d+) orders$`, s.queueHoldsAtMost)
	sc.Step(`^the last (\d+) commands are identical$`, s.lastCommandsAreIdentical)
	sc.Step(`^the metal limit becomes (\d+)$`, s.theMetalLimitBecomes)
	sc.Step(`^"([^"]*)" is disabled by cost$`, s.isDisabledByCost)
	sc.Step(`^"([^"]*)" is enabled$`, s.isEnabled)
	sc.Step(`^(\d+) "([^"]*)" orders are already queued as (\w+)$`, s.ordersAreAlreadyQueuedAs)
	sc.Step(`^the queue holds (\d+) "([^"]*)" orders$`, s.queueHoldsKindOrders)
	sc.Step(`^the queue holds an order from list "([^"]*)"$`, s.queueHoldsOrderFromList)
	sc.Step(`^"([^"]*)" is requested as (\w+)$`, s.isRequestedAs)
	sc.Step(`^the queue holds a "([^"]*)" order of kind "([^"]*)"$`, s.queueHoldsOrderOfKind)
	sc.Step(`^no "([^"]*)" order is queued$`, s.noOrderIsQueued)
	sc.Step(`^construction (\d+) of "([^"]*)" is started by builder (\d+)$`, s.constructionStartedBy)
	sc.Step(`^unit (\d+) is destroyed$`, s.unitIsDestroyed)
	sc.Step(`^the order building (\d+) is abandoned with no builder$`, s.orderBuildingIsAbandoned)
	sc.Step(`^the order of builder (\d+) has no constructions and (\d+) retry$`, s.orderOfBuilderHasNoConstructions)
}
