package tracker

import (
	"errors"
)

// largeCost bounds the dual variables during column reduction
const largeCost = 1000000.0

var errNoPath = errors.New("lapjv: no augmenting path")

// jvSolver holds the state of a Jonker-Volgenant solve of a square dense
// cost matrix.  x[i] is the column assigned to row i and y[j] the row
// assigned to column j, -1 when unassigned.  v are the column duals.
type jvSolver struct {
	n    int
	cost [][]float64
	x    []int
	y    []int
	v    []float64
	// free lists the rows still unassigned
	free []int
}

func newJVSolver(cost [][]float64, x, y []int) *jvSolver {
	n := len(cost)
	return &jvSolver{
		n:    n,
		cost: cost,
		x:    x,
		y:    y,
		v:    make([]float64, n),
		free: make([]int, 0, n),
	}
}

// solve assigns every row and returns the number of rows left unassigned,
// which is zero unless an error is returned
func (s *jvSolver) solve() (int, error) {

	s.reduceColumns()

	// two rounds of augmenting row reduction usually leave few free rows
	for round := 0; round < 2 && len(s.free) > 0; round++ {
		s.reduceRows()
	}

	if len(s.free) == 0 {
		return 0, nil
	}

	if err := s.augment(); err != nil {
		return len(s.free), err
	}

	return 0, nil
}

// reducedCost of assigning row i to column j
func (s *jvSolver) reducedCost(i, j int) float64 {
	return s.cost[i][j] - s.v[j]
}

// reduceColumns assigns each column to its cheapest row, rows claimed by
// more than one column keep the last, and transfers the reduction of rows
// holding a single column to that column's dual
func (s *jvSolver) reduceColumns() {

	for i := range s.x {
		s.x[i] = -1
		s.v[i] = largeCost
		s.y[i] = 0
	}

	for i, row := range s.cost {
		for j, c := range row {
			if c < s.v[j] {
				s.v[j] = c
				s.y[j] = i
			}
		}
	}

	single := make([]bool, s.n)
	for i := range single {
		single[i] = true
	}

	for j := s.n - 1; j >= 0; j-- {
		i := s.y[j]
		if s.x[i] < 0 {
			s.x[i] = j
		} else {
			single[i] = false
			s.y[j] = -1
		}
	}

	s.free = s.free[:0]

	for i := 0; i < s.n; i++ {

		if s.x[i] < 0 {
			s.free = append(s.free, i)
			continue
		}

		if !single[i] {
			continue
		}

		j := s.x[i]
		minVal := largeCost

		for j2 := 0; j2 < s.n; j2++ {
			if j2 != j {
				minVal = min(minVal, s.reducedCost(i, j2))
			}
		}

		s.v[j] -= minVal
	}
}

// twoBest returns the columns with the lowest and second lowest reduced cost
// for row i
func (s *jvSolver) twoBest(i int) (j1 int, u1 float64, j2 int, u2 float64) {

	j1, u1 = 0, s.reducedCost(i, 0)
	j2, u2 = -1, largeCost

	for j := 1; j < s.n; j++ {
		c := s.reducedCost(i, j)

		if c >= u2 {
			continue
		}

		if c >= u1 {
			j2, u2 = j, c
		} else {
			j2, u2 = j1, u1
			j1, u1 = j, c
		}
	}

	return j1, u1, j2, u2
}

// reduceRows performs one round of augmenting row reduction over the free
// rows, rows displaced from their column are either retried immediately
// or kept free for the next round
func (s *jvSolver) reduceRows() {

	queue := s.free
	next := make([]int, 0, len(queue))

	current := 0
	steps := 0

	for current < len(queue) {

		steps++
		freeI := queue[current]
		current++

		j1, u1, j2, u2 := s.twoBest(freeI)

		i0 := s.y[j1]
		lowered := s.v[j1] - (u2 - u1)
		lowers := lowered < s.v[j1]

		if steps < current*s.n {
			if lowers {
				s.v[j1] = lowered
			} else if i0 >= 0 && j2 >= 0 {
				j1 = j2
				i0 = s.y[j2]
			}

			if i0 >= 0 {
				if lowers {
					// retry the displaced row straight away
					current--
					queue[current] = i0
				} else {
					next = append(next, i0)
				}
			}
		} else if i0 >= 0 {
			next = append(next, i0)
		}

		s.x[freeI] = j1
		s.y[j1] = freeI
	}

	s.free = next
}

// augment assigns each remaining free row along a shortest augmenting path
func (s *jvSolver) augment() error {

	pred := make([]int, s.n)

	for len(s.free) > 0 {

		freeI := s.free[0]

		j := s.shortestPath(freeI, pred)

		if j < 0 || j >= s.n {
			return errNoPath
		}

		// flip the assignments along the path back to freeI
		for steps, i := 0, -1; i != freeI; steps++ {

			if steps >= s.n {
				return errNoPath
			}

			i = pred[j]
			s.y[j] = i
			j, s.x[i] = s.x[i], j
		}

		s.free = s.free[1:]
	}

	return nil
}

// pathSearch is the state of a single shortest path search.  cols is
// partitioned into READY [0,lo), SCAN [lo,hi) and TODO [hi,n).
type pathSearch struct {
	*jvSolver
	cols []int
	d    []float64
	pred []int
	lo   int
	hi   int
}

// shortestPath runs a Dijkstra search from row start over the reduced
// costs, updates the duals of the columns reached and returns the free
// column the path ends at
func (s *jvSolver) shortestPath(start int, pred []int) int {

	ps := &pathSearch{
		jvSolver: s,
		cols:     make([]int, s.n),
		d:        make([]float64, s.n),
		pred:     pred,
	}

	for j := 0; j < s.n; j++ {
		ps.cols[j] = j
		ps.pred[j] = start
		ps.d[j] = s.reducedCost(start, j)
	}

	end := -1
	ready := 0

	for end == -1 {

		if ps.lo == ps.hi {
			ready = ps.lo
			ps.hi = ps.collectMinimum()

			for _, j := range ps.cols[ps.lo:ps.hi] {
				if s.y[j] < 0 {
					end = j
				}
			}
		}

		if end == -1 {
			end = ps.scan()
		}
	}

	mind := ps.d[ps.cols[ps.lo]]

	for _, j := range ps.cols[:ready] {
		s.v[j] += ps.d[j] - mind
	}

	return end
}

// collectMinimum moves the TODO columns with the minimum distance onto the
// SCAN list and returns its new end
func (ps *pathSearch) collectMinimum() int {

	hi := ps.lo + 1
	mind := ps.d[ps.cols[ps.lo]]

	for k := hi; k < ps.n; k++ {

		j := ps.cols[k]

		if ps.d[j] > mind {
			continue
		}

		if ps.d[j] < mind {
			hi = ps.lo
			mind = ps.d[j]
		}

		ps.cols[k], ps.cols[hi] = ps.cols[hi], j
		hi++
	}

	return hi
}

// scan relaxes the TODO columns through each SCAN column and returns a free
// column reached at the minimum distance, or -1
func (ps *pathSearch) scan() int {

	for ps.lo != ps.hi {

		j := ps.cols[ps.lo]
		ps.lo++

		i := ps.y[j]
		mind := ps.d[j]
		h := ps.reducedCost(i, j) - mind

		for k := ps.hi; k < ps.n; k++ {
			j = ps.cols[k]
			reduced := ps.reducedCost(i, j) - h

			if reduced >= ps.d[j] {
				continue
			}

			ps.d[j] = reduced
			ps.pred[j] = i

			if reduced == mind {
				if ps.y[j] < 0 {
					return j
				}

				ps.cols[k], ps.cols[ps.hi] = ps.cols[ps.hi], j
				ps.hi++
			}
		}
	}

	return -1
}
