package model

// TerrainType classifies one cell of the coarse grid sent at handshake.
type TerrainType byte

const (
	Land   TerrainType = 0
	Water  TerrainType = 1
	Cliff  TerrainType = 2 // not placeable
	Bridge TerrainType = 3
)

// TerrainGrid is a coarse row-major classification of the map. Each cell
// covers CellW x CellH map units.
type TerrainGrid struct {
	Cols  int
	Rows  int
	CellW int
	CellH int
	Grid  []TerrainType
}

// At returns the cell type, treating anything off-grid as Land.
func (g *TerrainGrid) At(col, row int) TerrainType {
	if g == nil || col < 0 || col >= g.Cols || row < 0 || row >= g.Rows {
		return Land
	}
	i := row*g.Cols + col
	if i >= len(g.Grid) {
		return Land
	}
	return g.Grid[i]
}

// AtPoint maps a ground position onto the grid.
func (g *TerrainGrid) AtPoint(p Point) TerrainType {
	if g == nil || g.CellW <= 0 || g.CellH <= 0 || p.X < 0 || p.Y < 0 {
		return Land
	}
	return g.At(int(p.X)/g.CellW, int(p.Y)/g.CellH)
}

func (g *TerrainGrid) IsWater(p Point) bool { return g.AtPoint(p) == Water }

// HasWater reports whether any cell is water; dry maps skip water checks
// entirely.
func (g *TerrainGrid) HasWater() bool {
	if g == nil {
		return false
	}
	for _, t := range g.Grid {
		if t == Water {
			return true
		}
	}
	return false
}

// CellCenter returns the map position at the middle of a cell.
func (g *TerrainGrid) CellCenter(col, row int) Point {
	return Point{
		X: float64(col*g.CellW) + float64(g.CellW)/2,
		Y: float64(row*g.CellH) + float64(g.CellH)/2,
	}
}
