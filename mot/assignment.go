package mot

import (
	"container/heap"
	"math"
	"sort"

	"github.com/arthurkushman/go-hungarian"
	"github.com/pkg/errors"
)

// MatchingAlgorithm selects how Tracker assigns detections to tracks
type MatchingAlgorithm string

const (
	// MatchingAlgorithmGreedy repeatedly takes the globally cheapest track/detection pair (default)
	MatchingAlgorithmGreedy MatchingAlgorithm = "greedy"
	// MatchingAlgorithmHungarian uses the Hungarian algorithm (Kuhn-Munkres) for optimal assignment
	MatchingAlgorithmHungarian MatchingAlgorithm = "hungarian"
)

// ErrUnknownMatchingAlgorithm is returned by ParseMatchingAlgorithm for unsupported values
var ErrUnknownMatchingAlgorithm = errors.New("unknown matching algorithm")

// ParseMatchingAlgorithm converts string to MatchingAlgorithm. Empty string means greedy
func ParseMatchingAlgorithm(s string) (MatchingAlgorithm, error) {
	switch MatchingAlgorithm(s) {
	case "", MatchingAlgorithmGreedy:
		return MatchingAlgorithmGreedy, nil
	case MatchingAlgorithmHungarian:
		return MatchingAlgorithmHungarian, nil
	default:
		return "", errors.Wrapf(ErrUnknownMatchingAlgorithm, "'%s'", s)
	}
}

// assignmentCandidate is a single cell of the cost matrix
type assignmentCandidate struct {
	cost  float64
	row   int
	col   int
	index int
}

// costHeap implements heap.Interface for min-heap by cost.
// Equal costs are ordered by row, then by column.
type costHeap []*assignmentCandidate

func (h costHeap) Len() int { return len(h) }

func (h costHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	if h[i].row != h[j].row {
		return h[i].row < h[j].row
	}
	return h[i].col < h[j].col
}

func (h costHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *costHeap) Push(x any) {
	n := len(*h)
	item := x.(*assignmentCandidate)
	item.index = n
	*h = append(*h, item)
}

func (h *costHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// iouCostMatrix builds matrix where rows are tracks, columns are detections and cell is 1 - IoU
func iouCostMatrix(trackBBoxes []Rectangle, detectionBBoxes []Rectangle) [][]float64 {
	costMatrix := make([][]float64, len(trackBBoxes))
	for i, trkBox := range trackBBoxes {
		row := make([]float64, len(detectionBBoxes))
		for j, detBox := range detectionBBoxes {
			row[j] = 1 - IoU(trkBox, detBox)
		}
		costMatrix[i] = row
	}
	return costMatrix
}

// assignGreedy repeatedly picks the cheapest remaining pair while its cost does not exceed maxCost.
// Returns a slice of {row, col} pairs in acceptance order.
func assignGreedy(costMatrix [][]float64, maxCost float64) [][2]int {
	matches := make([][2]int, 0)
	if len(costMatrix) == 0 || len(costMatrix[0]) == 0 {
		return matches
	}

	pq := make(costHeap, 0, len(costMatrix)*len(costMatrix[0]))
	heap.Init(&pq)
	for i, row := range costMatrix {
		for j, cost := range row {
			heap.Push(&pq, &assignmentCandidate{cost: cost, row: i, col: j})
		}
	}

	// Prevent double assignment of rows and columns
	reservedRows := make(map[int]struct{}, len(costMatrix))
	reservedCols := make(map[int]struct{}, len(costMatrix[0]))
	for pq.Len() > 0 {
		item := heap.Pop(&pq).(*assignmentCandidate)
		if _, ok := reservedRows[item.row]; ok {
			continue
		}
		if _, ok := reservedCols[item.col]; ok {
			continue
		}
		// Everything left is more expensive
		if item.cost > maxCost {
			break
		}
		matches = append(matches, [2]int{item.row, item.col})
		reservedRows[item.row] = struct{}{}
		reservedCols[item.col] = struct{}{}
	}
	return matches
}

// assignHungarian finds assignment maximizing total IoU and drops pairs whose cost exceeds maxCost.
// Returns a slice of {row, col} pairs sorted by row.
func assignHungarian(costMatrix [][]float64, maxCost float64) [][2]int {
	matches := make([][2]int, 0)
	numTracks := len(costMatrix)
	if numTracks == 0 || len(costMatrix[0]) == 0 {
		return matches
	}
	numDetections := len(costMatrix[0])

	// Solver expects square matrix. Padding is done with 0.0 values (lowest IoU)
	paddedSize := maxInt(numTracks, numDetections)
	paddedMatrix := make([][]float64, paddedSize)
	for i := 0; i < paddedSize; i++ {
		paddedMatrix[i] = make([]float64, paddedSize)
	}
	for i := 0; i < numTracks; i++ {
		for j := 0; j < numDetections; j++ {
			paddedMatrix[i][j] = 1 - costMatrix[i][j]
		}
	}

	rowToCol, ok := permutationFromSolution(hungarian.SolveMax(paddedMatrix), paddedSize)
	if !ok {
		// Solver may leave rows unassigned; solve the padded problem exactly instead
		rowToCol = solveMinCostPermutation(negate(paddedMatrix))
	}
	for trackIndex, detectionIndex := range rowToCol {
		// Skip dummy rows/columns
		if trackIndex >= numTracks || detectionIndex >= numDetections {
			continue
		}
		if costMatrix[trackIndex][detectionIndex] > maxCost {
			continue
		}
		matches = append(matches, [2]int{trackIndex, detectionIndex})
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i][0] < matches[j][0]
	})
	return matches
}

// permutationFromSolution converts solver output into row -> column slice.
// Returns false unless every row and every column of the size x size matrix is used exactly once.
func permutationFromSolution(solution map[int]map[int]float64, size int) ([]int, bool) {
	rowToCol := make([]int, size)
	for i := range rowToCol {
		rowToCol[i] = -1
	}
	usedCols := make([]bool, size)
	for row, cols := range solution {
		if row < 0 || row >= size || len(cols) != 1 {
			return nil, false
		}
		for col := range cols {
			if col < 0 || col >= size || usedCols[col] || rowToCol[row] != -1 {
				return nil, false
			}
			rowToCol[row] = col
			usedCols[col] = true
		}
	}
	for _, col := range rowToCol {
		if col == -1 {
			return nil, false
		}
	}
	return rowToCol, true
}

func negate(matrix [][]float64) [][]float64 {
	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = -v
		}
	}
	return out
}

// solveMinCostPermutation is the O(n^3) Kuhn-Munkres with row/column potentials for a square matrix.
// Returns column assigned to every row.
func solveMinCostPermutation(cost [][]float64) []int {
	n := len(cost)
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	// p[j] is 1-based row matched to 1-based column j
	p := make([]int, n+1)
	way := make([]int, n+1)
	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
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
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}
	rowToCol := make([]int, n)
	for j := 1; j <= n; j++ {
		rowToCol[p[j]-1] = j - 1
	}
	return rowToCol
}
