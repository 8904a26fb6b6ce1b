package ipc

import (
	"github.com/nstehr/vimy/vimy-builder/model"
	"github.com/nstehr/vimy/vimy-builder/world"
)

// These constants must stay in sync with the mod's message type table.
const (
	TypeHello     = "hello"
	TypeAck       = "ack"
	TypeGameState = "game_state"
	TypeCommands  = "commands"
	TypeGameOver  = "game_over"
)

// HelloMessage opens a session: who we play and what the map looks like.
type HelloMessage struct {
	Player  int              `json:"player"`
	MapName string           `json:"mapName"`
	Terrain *TerrainData     `json:"terrain,omitempty"`
	Spots   []model.SpotInfo `json:"spots"`
}

// TerrainData carries the coarse terrain grid from the mod.
// Optional: without it every position is treated as land.
type TerrainData struct {
	Cols  int   `json:"cols"`
	Rows  int   `json:"rows"`
	CellW int   `json:"cellW"`
	CellH int   `json:"cellH"`
	Grid  []int `json:"grid"`
}

// ToGrid converts the wire form into the model grid.
func (t *TerrainData) ToGrid() *model.TerrainGrid {
	if t == nil {
		return nil
	}
	g := &model.TerrainGrid{Cols: t.Cols, Rows: t.Rows, CellW: t.CellW, CellH: t.CellH}
	g.Grid = make([]model.TerrainType, len(t.Grid))
	for i, v := range t.Grid {
		g.Grid[i] = model.TerrainType(v)
	}
	return g
}

type AckMessage struct {
	Status  string `json:"status"`
	Session string `json:"session,omitempty"`
}

// CommandsMessage answers a game_state with everything decided for that frame.
type CommandsMessage struct {
	Frame    int             `json:"frame"`
	Commands []world.Command `json:"commands"`
}

type GameOverMessage struct {
	Frame  int    `json:"frame"`
	Winner bool   `json:"winner"`
	Reason string `json:"reason,omitempty"`
}
