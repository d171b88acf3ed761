package mot

import (
	"math"
	"sort"

	"github.com/arthurkushman/go-hungarian"
	"github.com/pkg/errors"
)

// SolverKind is for algorithm type for solving linear assignment problems
type SolverKind uint16

const (
	// SolverJV uses Jonker-Volgenant shortest augmenting paths on the block matrix. Optimal and deterministic.
	SolverJV SolverKind = iota
	// SolverMunkres tries go-hungarian's reduction heuristic on the block matrix and falls back to the JV optimum
	SolverMunkres
	// SolverGreedy accepts cheapest feasible pairs first. Faster but potentially suboptimal.
	SolverGreedy
)

// DefaultAlternativeCostFactor scales the maximal feasible cost into the birth/death cost
const DefaultAlternativeCostFactor = 1.05

// blockedCost stands in for infinity in dense matrices
const blockedCost = 1e18

func (kind SolverKind) String() string {
	switch kind {
	case SolverJV:
		return "jv"
	case SolverMunkres:
		return "munkres"
	case SolverGreedy:
		return "greedy"
	}
	return "unknown"
}

// ParseSolverKind converts configuration name to SolverKind
func ParseSolverKind(name string) (SolverKind, error) {
	switch name {
	case "jv", "":
		return SolverJV, nil
	case "munkres", "hungarian":
		return SolverMunkres, nil
	case "greedy":
		return SolverGreedy, nil
	}
	return SolverJV, errors.Wrapf(ErrInvalidSettings, "unknown solver %q", name)
}

// Assignment is an accepted pairing of row and column
type Assignment struct {
	Row  int
	Col  int
	Cost float64
}

// Solver solves sparse rectangular assignment problems where rows and columns may stay unassigned
type Solver interface {
	Solve(costs *CostMatrix) ([]Assignment, error)
}

// NewSolver creates solver of given kind
func NewSolver(kind SolverKind, alternativeCostFactor float64) (Solver, error) {
	if alternativeCostFactor < 1 || !isFinite(alternativeCostFactor) {
		return nil, errors.Wrapf(ErrInvalidSettings, "alternative cost factor must be >= 1, got %v", alternativeCostFactor)
	}
	switch kind {
	case SolverJV:
		return &JVSolver{AlternativeCostFactor: alternativeCostFactor}, nil
	case SolverMunkres:
		return &MunkresSolver{AlternativeCostFactor: alternativeCostFactor}, nil
	case SolverGreedy:
		return &GreedySolver{}, nil
	}
	return nil, errors.Wrapf(ErrInvalidSettings, "unknown solver kind %d", kind)
}

// JVSolver minimizes total cost. Rows are augmented in ascending order and the first minimal column wins ties,
// so for identical input the solution is always the same.
type JVSolver struct {
	AlternativeCostFactor float64
}

// Solve implements Solver
func (solver *JVSolver) Solve(costs *CostMatrix) ([]Assignment, error) {
	if err := costs.validate(); err != nil {
		return nil, err
	}
	if costs.Len() == 0 {
		return []Assignment{}, nil
	}
	block := newBlockMatrix(costs, solver.AlternativeCostFactor, blockedCost)
	rowAssign, err := solveDenseJV(block.cost)
	if err != nil {
		return nil, err
	}
	return block.links(rowAssign), nil
}

// solveDenseJV solves the square assignment problem with row/column potentials.
// Uses 1-indexed arrays internally for cleaner index arithmetic.
func solveDenseJV(c [][]float64) ([]int, error) {
	dim := len(c)
	const inf = math.MaxFloat64 / 2

	u := make([]float64, dim+1) // Row potentials
	v := make([]float64, dim+1) // Column potentials
	p := make([]int, dim+1)     // p[j] = row assigned to column j
	way := make([]int, dim+1)   // way[j] = previous column in augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				return nil, errors.Wrapf(ErrSolver, "no augmenting path for row %d", i-1)
			}
			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		// Augment along the path
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	rowAssign := make([]int, dim)
	for i := range rowAssign {
		rowAssign[i] = -1
	}
	for j := 1; j <= dim; j++ {
		if p[j] > 0 {
			rowAssign[p[j]-1] = j - 1
		}
	}
	return rowAssign, nil
}

// MunkresSolver runs go-hungarian's zero-reduction heuristic on the block matrix. Its matching is kept only
// when it covers every row and column once and costs strictly less than the JV optimum; otherwise the JV
// matching is returned, so results are optimal and identical for identical input.
type MunkresSolver struct {
	AlternativeCostFactor float64
}

// costTolerance absorbs float rounding when totals of two matchings are compared
const costTolerance = 1e-9

// Solve implements Solver
func (solver *MunkresSolver) Solve(costs *CostMatrix) ([]Assignment, error) {
	if err := costs.validate(); err != nil {
		return nil, err
	}
	if costs.Len() == 0 {
		return []Assignment{}, nil
	}
	block := newBlockMatrix(costs, solver.AlternativeCostFactor, blockedCost)
	optimal, err := solveDenseJV(block.cost)
	if err != nil {
		return nil, err
	}
	_, hi := costs.costRange()
	// Finite sentinel: the library does arithmetic on every entry
	reduced := newBlockMatrix(costs, solver.AlternativeCostFactor, (hi+1)*1e6)
	candidate, ok := hungarianRowAssign(hungarian.SolveMin(reduced.cost), len(block.cost))
	if ok && block.total(candidate) < block.total(optimal)-costTolerance {
		return block.links(candidate), nil
	}
	return block.links(optimal), nil
}

// hungarianRowAssign converts go-hungarian's map[int]map[int]float64 to row -> column.
// Columns of a row are taken in ascending order. Reports false unless the result is a perfect matching.
func hungarianRowAssign(assignmentsMap map[int]map[int]float64, dim int) ([]int, bool) {
	rowAssign := make([]int, dim)
	for i := range rowAssign {
		rowAssign[i] = -1
	}
	usedCols := make([]bool, dim)
	for rowIndex := 0; rowIndex < dim; rowIndex++ {
		rowMap := assignmentsMap[rowIndex]
		cols := make([]int, 0, len(rowMap))
		for colIndex := range rowMap {
			cols = append(cols, colIndex)
		}
		sort.Ints(cols)
		for _, colIndex := range cols {
			if colIndex < 0 || colIndex >= dim || usedCols[colIndex] {
				continue
			}
			rowAssign[rowIndex] = colIndex
			usedCols[colIndex] = true
			break
		}
		if rowAssign[rowIndex] < 0 {
			return nil, false
		}
	}
	return rowAssign, true
}

// GreedySolver accepts feasible pairs from cheapest to most expensive while both ends are free
type GreedySolver struct{}

// Solve implements Solver
func (solver *GreedySolver) Solve(costs *CostMatrix) ([]Assignment, error) {
	if err := costs.validate(); err != nil {
		return nil, err
	}
	priorityQueue := make(candidateHeap, 0, costs.Len())
	for _, e := range costs.Entries() {
		priorityQueue.Push(&candidate{row: e.Row, col: e.Col, cost: e.Cost})
	}
	// We need to prevent double assignment of rows and columns
	reservedRows := make(map[int]struct{})
	reservedCols := make(map[int]struct{})
	ans := make([]Assignment, 0)
	for priorityQueue.Len() > 0 {
		item := priorityQueue.Pop()
		if _, ok := reservedRows[item.row]; ok {
			continue
		}
		if _, ok := reservedCols[item.col]; ok {
			continue
		}
		reservedRows[item.row] = struct{}{}
		reservedCols[item.col] = struct{}{}
		ans = append(ans, Assignment{Row: item.row, Col: item.col, Cost: item.cost})
	}
	sortAssignments(ans)
	return ans, nil
}
