package agent

import (
	"sort"

	"github.com/nstehr/vimy/vimy-builder/model"
)

// Events are the lifecycle changes between two consecutive snapshots.
type Events struct {
	Created   []model.Unit // new constructions
	Finished  []model.Unit // completed this frame, or first seen complete
	Destroyed []int
	Idle      []int
}

func (e Events) Empty() bool {
	return len(e.Created) == 0 && len(e.Finished) == 0 && len(e.Destroyed) == 0 && len(e.Idle) == 0
}

// tracker diffs snapshots. A unit that stays idle is reported again every
// repeat frames so a lost command cannot strand it.
type tracker struct {
	prev     map[int]model.Unit
	lastIdle map[int]int
	repeat   int
}

func newTracker(repeat int) *tracker {
	if repeat <= 0 {
		repeat = 90
	}
	return &tracker{
		prev:     make(map[int]model.Unit),
		lastIdle: make(map[int]int),
		repeat:   repeat,
	}
}

func (t *tracker) diff(gs model.GameState) Events {
	var ev Events
	cur := make(map[int]model.Unit, len(gs.Units))

	for _, u := range gs.Units {
		cur[u.ID] = u
		old, seen := t.prev[u.ID]
		switch {
		case !seen && !u.Finished():
			ev.Created = append(ev.Created, u)
		case !seen, !old.Finished() && u.Finished():
			ev.Finished = append(ev.Finished, u)
		}

		if !u.Finished() || !u.Idle {
			delete(t.lastIdle, u.ID)
			continue
		}
		last, wasIdle := t.lastIdle[u.ID]
		if !wasIdle || gs.Frame-last >= t.repeat {
			ev.Idle = append(ev.Idle, u.ID)
			t.lastIdle[u.ID] = gs.Frame
		}
	}

	for id := range t.prev {
		if _, ok := cur[id]; !ok {
			ev.Destroyed = append(ev.Destroyed, id)
			delete(t.lastIdle, id)
		}
	}
	t.prev = cur

	byID := func(us []model.Unit) {
		sort.Slice(us, func(i, j int) bool { return us[i].ID < us[j].ID })
	}
	byID(ev.Created)
	byID(ev.Finished)
	sort.Ints(ev.Destroyed)
	sort.Ints(ev.Idle)
	return ev
}
