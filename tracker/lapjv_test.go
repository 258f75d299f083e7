package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJVSolver(t *testing.T) {

	tests := []struct {
		name      string
		cost      [][]float64
		expectedX []int
		expectedY []int
	}{
		{
			name: "unique optimum",
			cost: [][]float64{
				{4, 1, 3, 2},
				{2, 0, 5, 3},
				{3, 2, 2, 3},
				{2, 3, 3, 2},
			},
			expectedX: []int{3, 1, 2, 0},
			expectedY: []int{3, 1, 2, 0},
		},
		{
			name: "column reduction transfer",
			cost: [][]float64{
				{10, 19, 8, 15},
				{10, 18, 7, 17},
				{13, 16, 9, 14},
				{12, 19, 8, 18},
			},
			expectedX: []int{3, 0, 1, 2},
			expectedY: []int{1, 2, 3, 0},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := len(tc.cost)
			x := make([]int, n)
			y := make([]int, n)

			ret, err := newJVSolver(tc.cost, x, y).solve()
			require.NoError(t, err)
			assert.Zero(t, ret)
			assert.Equal(t, tc.expectedX, x)
			assert.Equal(t, tc.expectedY, y)
		})
	}
}

func TestJVSolverAugmentsContestedColumns(t *testing.T) {

	// every row prefers column 0 so the shortest path stage is needed
	cost := [][]float64{
		{1, 5, 9},
		{1, 6, 7},
		{1, 8, 4},
	}

	x := make([]int, 3)
	y := make([]int, 3)

	ret, err := newJVSolver(cost, x, y).solve()
	require.NoError(t, err)
	assert.Zero(t, ret)

	total := 0.0
	for i, j := range x {
		total += cost[i][j]
		assert.Equal(t, i, y[j])
	}

	// optimum is 5 + 1 + 4
	assert.Equal(t, 10.0, total)
}
