package mot

import (
	"sort"

	"github.com/pkg/errors"
)

// CostEntry is a feasible pairing of row and column
type CostEntry struct {
	Row  int
	Col  int
	Cost float64
}

// CostMatrix is a sparse rectangular cost matrix. Absent entries are infeasible pairings.
type CostMatrix struct {
	Rows    int
	Cols    int
	entries []CostEntry
	sorted  bool
}

// NewCostMatrix creates empty rows x cols matrix
func NewCostMatrix(rows, cols int) *CostMatrix {
	return &CostMatrix{
		Rows:    rows,
		Cols:    cols,
		entries: make([]CostEntry, 0),
		sorted:  true,
	}
}

// Set marks (row, col) as feasible with given cost
func (m *CostMatrix) Set(row, col int, cost float64) {
	m.entries = append(m.entries, CostEntry{Row: row, Col: col, Cost: cost})
	m.sorted = false
}

// Len returns number of feasible entries
func (m *CostMatrix) Len() int {
	return len(m.entries)
}

// Entries returns feasible entries ordered by row, then column
func (m *CostMatrix) Entries() []CostEntry {
	if !m.sorted {
		sort.SliceStable(m.entries, func(i, j int) bool {
			if m.entries[i].Row != m.entries[j].Row {
				return m.entries[i].Row < m.entries[j].Row
			}
			return m.entries[i].Col < m.entries[j].Col
		})
		m.sorted = true
	}
	return m.entries
}

func (m *CostMatrix) validate() error {
	for _, e := range m.entries {
		if e.Row < 0 || e.Row >= m.Rows || e.Col < 0 || e.Col >= m.Cols {
			return errors.Wrapf(ErrSolver, "entry (%d, %d) is outside of %dx%d matrix", e.Row, e.Col, m.Rows, m.Cols)
		}
		if !isFinite(e.Cost) || e.Cost < 0 {
			return errors.Wrapf(ErrSolver, "entry (%d, %d) has invalid cost %v", e.Row, e.Col, e.Cost)
		}
	}
	return nil
}

// costRange returns min and max feasible costs
func (m *CostMatrix) costRange() (float64, float64) {
	if len(m.entries) == 0 {
		return 0, 0
	}
	lo, hi := m.entries[0].Cost, m.entries[0].Cost
	for _, e := range m.entries[1:] {
		lo = minFloat64(lo, e.Cost)
		hi = maxFloat64(hi, e.Cost)
	}
	return lo, hi
}

// blockMatrix is the dense form of a sparse LAP with birth and death alternatives:
//
//	| linking costs (n x m) | death diagonal (n x n)       |
//	| birth diagonal (m x m) | transposed feasibility (m x n) |
//
// Only rows and columns with at least one feasible entry take part, in their original order.
type blockMatrix struct {
	cost     [][]float64
	rowIndex []int
	colIndex []int
	feasible map[[2]int]float64
}

func newBlockMatrix(m *CostMatrix, alternativeFactor, blocked float64) *blockMatrix {
	entries := m.Entries()
	rowPos := make(map[int]int)
	colPos := make(map[int]int)
	rowIndex := make([]int, 0)
	colIndex := make([]int, 0)
	for _, e := range entries {
		if _, ok := rowPos[e.Row]; !ok {
			rowPos[e.Row] = -1
			rowIndex = append(rowIndex, e.Row)
		}
		if _, ok := colPos[e.Col]; !ok {
			colPos[e.Col] = -1
			colIndex = append(colIndex, e.Col)
		}
	}
	sort.Ints(colIndex)
	for i, r := range rowIndex {
		rowPos[r] = i
	}
	for j, c := range colIndex {
		colPos[c] = j
	}

	lo, hi := m.costRange()
	alternative := alternativeFactor * hi
	if alternative <= 0 {
		// All feasible costs are zero: any positive alternative keeps them preferred
		alternative = 1.0
	}
	n, k := len(rowIndex), len(colIndex)
	dim := n + k
	cost := make([][]float64, dim)
	for i := range cost {
		cost[i] = make([]float64, dim)
		for j := range cost[i] {
			cost[i][j] = blocked
		}
	}
	feasible := make(map[[2]int]float64, len(entries))
	for _, e := range entries {
		i, j := rowPos[e.Row], colPos[e.Col]
		cost[i][j] = e.Cost
		// Auxiliary block keeps the problem square when a link is taken
		cost[n+j][k+i] = lo
		feasible[[2]int{i, j}] = e.Cost
	}
	for i := 0; i < n; i++ {
		cost[i][k+i] = alternative
	}
	for j := 0; j < k; j++ {
		cost[n+j][j] = alternative
	}
	return &blockMatrix{
		cost:     cost,
		rowIndex: rowIndex,
		colIndex: colIndex,
		feasible: feasible,
	}
}

// links converts a row-to-column solution of the dense block matrix to assignments of the sparse one
func (b *blockMatrix) links(rowAssign []int) []Assignment {
	ans := make([]Assignment, 0)
	for i := range b.rowIndex {
		if i >= len(rowAssign) {
			break
		}
		j := rowAssign[i]
		if j < 0 || j >= len(b.colIndex) {
			continue
		}
		cost, ok := b.feasible[[2]int{i, j}]
		if !ok {
			continue
		}
		ans = append(ans, Assignment{Row: b.rowIndex[i], Col: b.colIndex[j], Cost: cost})
	}
	sortAssignments(ans)
	return ans
}

// total sums the dense costs of a row-to-column solution
func (b *blockMatrix) total(rowAssign []int) float64 {
	sum := 0.0
	for i, j := range rowAssign {
		sum += b.cost[i][j]
	}
	return sum
}

func sortAssignments(assignments []Assignment) {
	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].Row != assignments[j].Row {
			return assignments[i].Row < assignments[j].Row
		}
		return assignments[i].Col < assignments[j].Col
	})
}
