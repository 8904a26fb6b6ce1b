// Package agent runs one AI player over a sidecar connection: it keeps the
// latest frame snapshot, turns snapshot changes into lifecycle events for
// the construction AI, and replies with the commands decided each frame.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nstehr/vimy/vimy-builder/ai"
	"github.com/nstehr/vimy/vimy-builder/catalog"
	"github.com/nstehr/vimy/vimy-builder/ipc"
	"github.com/nstehr/vimy/vimy-builder/journal"
	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/world"
)

var ErrNoSession = errors.New("game state before hello")

// summaryFrames spaces out the info-level frame summaries (30s of game time).
const summaryFrames = 900

type Options struct {
	Config  ai.Config
	Catalog *catalog.Catalog

	// Store enables the order journal; TraceDir enables the command trace.
	Store       *journal.Store
	TraceDir    string
	JournalSize int

	IdleRepeatFrames int
}

// Agent owns the decision-making for a single player session.
type Agent struct {
	Conn    *ipc.Connection
	Player  int
	MapName string
	Session string

	opts   Options
	view   *View
	events *tracker
	ctl    *ai.Controller

	writer *journal.Writer
	trace  *journal.Trace
}

func New(conn *ipc.Connection, opts Options) *Agent {
	return &Agent{Conn: conn, opts: opts}
}

// game is the view with an optional tracing dispatcher in front of it.
type game struct {
	*View
	out world.Dispatcher
}

func (g game) Dispatch(cmd world.Command) error { return g.out.Dispatch(cmd) }

// HandleHello starts a new game: fresh view, controller and journal session.
func (a *Agent) HandleHello(env ipc.Envelope) (*ipc.Envelope, error) {
	var hello ipc.HelloMessage
	if err := env.Decode(&hello); err != nil {
		return nil, err
	}
	a.Close()

	a.Session = ""
	a.Player = hello.Player
	a.MapName = hello.MapName
	if a.Conn != nil {
		a.Conn.Player = hello.Player
	}

	a.view = NewView(hello.Terrain.ToGrid(), a.opts.Catalog.Def)
	a.events = newTracker(a.opts.IdleRepeatFrames)

	var sink ai.OrderSink
	if a.opts.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		session, err := a.opts.Store.StartSession(ctx, hello.Player, hello.MapName)
		cancel()
		if err != nil {
			slog.Warn("journal disabled for this game", "error", err)
		} else {
			a.Session = session
			a.writer = journal.NewWriter(a.opts.Store, session, a.opts.JournalSize)
			sink = a.writer
		}
	}

	g := game{View: a.view, out: a.view}
	if a.opts.TraceDir != "" {
		name := a.Session
		if name == "" {
			name = fmt.Sprintf("player%d-%d", hello.Player, time.Now().Unix())
		}
		a.trace = journal.NewTrace(a.opts.TraceDir, name)
		g.out = journal.NewTracingDispatcher(a.view, a.view, a.trace)
	}

	a.ctl = ai.New(a.opts.Config, g, a.opts.Catalog, hello.Spots, sink)
	slog.Info("player identified",
		"player", hello.Player,
		"map", hello.MapName,
		"spots", len(hello.Spots),
		"water", a.view.terrain.HasWater(),
		"session", a.Session,
	)

	ack, err := ipc.NewEnvelope(ipc.TypeAck, ipc.AckMessage{Status: "ok", Session: a.Session})
	if err != nil {
		return nil, err
	}
	return &ack, nil
}

// HandleGameState feeds one frame to the controller and replies with every
// command it produced.
func (a *Agent) HandleGameState(env ipc.Envelope) (*ipc.Envelope, error) {
	var gs model.GameState
	if err := env.Decode(&gs); err != nil {
		return nil, err
	}
	cmds, err := a.Step(gs)
	if err != nil {
		return nil, err
	}
	resp, err := ipc.NewEnvelope(ipc.TypeCommands, ipc.CommandsMessage{Frame: gs.Frame, Commands: cmds})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Step applies one snapshot and returns the commands decided for it.
func (a *Agent) Step(gs model.GameState) ([]world.Command, error) {
	if a.ctl == nil {
		return nil, ErrNoSession
	}
	a.view.Update(gs)
	ev := a.events.diff(gs)

	for _, u := range ev.Created {
		a.ctl.UnitCreated(u.ID, u.Type, u.BuiltBy)
	}
	for _, u := range ev.Finished {
		a.ctl.UnitFinished(u.ID, u.Type)
	}
	for _, id := range ev.Destroyed {
		a.ctl.UnitDestroyed(id)
	}
	for _, u := range gs.Units {
		a.ctl.SyncUnit(u)
	}
	a.ctl.Frame(gs.Frame)
	for _, id := range ev.Idle {
		a.ctl.UnitIdle(id)
	}

	cmds := a.view.Drain()
	if !ev.Empty() {
		slog.Debug("frame events",
			"frame", gs.Frame,
			"created", len(ev.Created),
			"finished", len(ev.Finished),
			"destroyed", len(ev.Destroyed),
			"idle", len(ev.Idle),
			"commands", len(cmds),
		)
	}
	if gs.Frame%summaryFrames == 0 {
		econ := a.ctl.Forecaster()
		slog.Info("game state received",
			"player", a.Player,
			"frame", gs.Frame,
			"metal", fmt.Sprintf("%.0f/%.0f (%+.1f)", gs.Economy.Metal.Current, gs.Economy.Metal.Storage, gs.Economy.Metal.Net()),
			"energy", fmt.Sprintf("%.0f/%.0f (%+.1f)", gs.Economy.Energy.Current, gs.Economy.Energy.Storage, gs.Economy.Energy.Net()),
			"units", len(gs.Units),
			"queued", a.ctl.Queue().Len(),
			"metal_limit", econ.MetalLimit,
			"energy_limit", econ.EnergyLimit,
		)
	}
	return cmds, nil
}

// HandleGameOver flushes the journal and trace.
func (a *Agent) HandleGameOver(env ipc.Envelope) (*ipc.Envelope, error) {
	var over ipc.GameOverMessage
	if err := env.Decode(&over); err != nil {
		return nil, err
	}
	slog.Info("game over", "player", a.Player, "frame", over.Frame, "winner", over.Winner, "reason", over.Reason)
	a.Close()

	ack, err := ipc.NewEnvelope(ipc.TypeAck, ipc.AckMessage{Status: "ok", Session: a.Session})
	if err != nil {
		return nil, err
	}
	return &ack, nil
}

// Controller exposes the running game's controller, nil before hello.
func (a *Agent) Controller() *ai.Controller { return a.ctl }

// Close flushes the journal writer and trace of the current game.
func (a *Agent) Close() {
	if a.writer != nil {
		a.writer.Close()
		if n := a.writer.Dropped(); n > 0 {
			slog.Warn("journal records dropped", "count", n, "session", a.Session)
		}
		a.writer = nil
	}
	if a.trace != nil {
		if err := a.trace.Close(); err != nil {
			slog.Warn("closing command trace", "error", err)
		}
		a.trace = nil
	}
	a.ctl = nil
}
