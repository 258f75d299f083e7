package tracker

import (
	"errors"
	"fmt"
	"math"
)

// Assignment is the result of solving a linear assignment problem
type Assignment struct {
	// Matches are (row, column) index pairs
	Matches [][2]int
	// UnmatchedRows are row indices with no column assigned
	UnmatchedRows []int
	// UnmatchedCols are column indices with no row assigned
	UnmatchedCols []int
}

// LinearAssignment solves the rectangular assignment problem for the given
// cost matrix with the LAPJV algorithm.  Pairs whose cost exceeds costLimit
// are left unmatched.  Pass math.Inf(1) to disable the limit.
func LinearAssignment(cost [][]float64, costLimit float64) (Assignment, error) {

	var res Assignment

	nRows := len(cost)
	nCols := 0
	if nRows > 0 {
		nCols = len(cost[0])
	}

	if nRows == 0 || nCols == 0 {
		for i := 0; i < nRows; i++ {
			res.UnmatchedRows = append(res.UnmatchedRows, i)
		}
		for i := 0; i < nCols; i++ {
			res.UnmatchedCols = append(res.UnmatchedCols, i)
		}
		return res, nil
	}

	rowsol, colsol, err := execLapjv(cost, costLimit)
	if err != nil {
		return res, err
	}

	for i, sol := range rowsol {
		if sol >= 0 && cost[i][sol] <= costLimit {
			res.Matches = append(res.Matches, [2]int{i, sol})
		} else {
			res.UnmatchedRows = append(res.UnmatchedRows, i)
		}
	}

	for j, sol := range colsol {
		if sol < 0 || cost[sol][j] > costLimit {
			res.UnmatchedCols = append(res.UnmatchedCols, j)
		}
	}

	return res, nil
}

// execLapjv extends the cost matrix to a square (nRows+nCols) problem so
// every row may stay unassigned at cost costLimit/2, then runs LAPJV
func execLapjv(cost [][]float64, costLimit float64) (rowsol []int, colsol []int, err error) {

	nRows := len(cost)
	nCols := len(cost[0])
	n := nRows + nCols

	filler := costLimit / 2
	if math.IsInf(costLimit, 1) {
		costMax := -1.0
		for i := range cost {
			if len(cost[i]) != nCols {
				return nil, nil, errors.New("cost matrix is not rectangular")
			}
			for _, c := range cost[i] {
				costMax = math.Max(costMax, c)
			}
		}
		filler = costMax + 1
	}

	ext := make([][]float64, n)
	for i := range ext {
		ext[i] = make([]float64, n)
		for j := range ext[i] {
			switch {
			case i < nRows && j < nCols:
				if len(cost[i]) != nCols {
					return nil, nil, errors.New("cost matrix is not rectangular")
				}
				ext[i][j] = cost[i][j]
			case i >= nRows && j >= nCols:
				ext[i][j] = 0
			default:
				ext[i][j] = filler
			}
		}
	}

	x := make([]int, n)
	y := make([]int, n)

	ret, err := newJVSolver(ext, x, y).solve()
	if err != nil {
		return nil, nil, fmt.Errorf("lapjv failed to find a solution: %w", err)
	}
	if ret != 0 {
		return nil, nil, fmt.Errorf("lapjv left %d rows unassigned", ret)
	}

	rowsol = make([]int, nRows)
	colsol = make([]int, nCols)

	for i := 0; i < nRows; i++ {
		rowsol[i] = x[i]
		if x[i] >= nCols {
			rowsol[i] = -1
		}
	}

	for j := 0; j < nCols; j++ {
		colsol[j] = y[j]
		if y[j] >= nRows {
			colsol[j] = -1
		}
	}

	return rowsol, colsol, nil
}
