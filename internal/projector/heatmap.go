package projector

import (
	"fmt"
	"sort"

	"github.com/alanyoungcy/lobwatch/internal/domain"
)

// HeatmapLevels is the book depth shown per side.
const HeatmapLevels = 10

// HeatmapCell is one populated (row, column) position.
type HeatmapCell struct {
	Column int     `json:"column"`
	Volume float64 `json:"volume"`
}

// HeatmapRow is a single price-level row. Cells are sparse and ordered by
// column; a column with no cell had no volume at that level.
type HeatmapRow struct {
	Label string        `json:"label"`
	Side  domain.Side   `json:"side"`
	Level int           `json:"level"` // 1 = best
	Cells []HeatmapCell `json:"cells"`
}

// HeatmapGrid is a sparse-by-column depth grid. Rows 0..L-1 are ask levels
// L..1 (deepest first), rows L..2L-1 are bid levels 1..L (best first).
// Columns are the buffer timestamps in arrival order.
type HeatmapGrid struct {
	Columns []domain.Timestamp `json:"columns"`
	Rows    []HeatmapRow       `json:"rows"`
}

// At returns the volume at (row, col), if that cell is populated.
func (g HeatmapGrid) At(row, col int) (float64, bool) {
	if row < 0 || row >= len(g.Rows) {
		return 0, false
	}
	cells := g.Rows[row].Cells
	i := sort.Search(len(cells), func(i int) bool { return cells[i].Column >= col })
	if i < len(cells) && cells[i].Column == col {
		return cells[i].Volume, true
	}
	return 0, false
}

// Heatmap builds the depth grid for the whole buffer. The row count is always
// 2*HeatmapLevels. A snapshot missing a level leaves that row empty for its
// column; a snapshot without any book data leaves the whole column empty.
func Heatmap(snaps []domain.Snapshot) HeatmapGrid {
	const L = HeatmapLevels

	rows := make([]HeatmapRow, 2*L)
	for i := 0; i < L; i++ {
		rows[i] = HeatmapRow{
			Label: fmt.Sprintf("Ask %d", L-i),
			Side:  domain.SideAsk,
			Level: L - i,
			Cells: []HeatmapCell{},
		}
		rows[L+i] = HeatmapRow{
			Label: fmt.Sprintf("Bid %d", i+1),
			Side:  domain.SideBid,
			Level: i + 1,
			Cells: []HeatmapCell{},
		}
	}

	columns := make([]domain.Timestamp, len(snaps))
	for col, s := range snaps {
		columns[col] = s.Timestamp
		if !s.HasBook() {
			continue
		}
		for i := 0; i < L; i++ {
			if level := L - i; level <= len(s.Asks) {
				rows[i].Cells = append(rows[i].Cells, HeatmapCell{Column: col, Volume: s.Asks[level-1].Volume})
			}
			if i < len(s.Bids) {
				rows[L+i].Cells = append(rows[L+i].Cells, HeatmapCell{Column: col, Volume: s.Bids[i].Volume})
			}
		}
	}

	return HeatmapGrid{Columns: columns, Rows: rows}
}
