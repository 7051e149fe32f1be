package planner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name          string
		cardinalities []int
		bound         int
		want          []int
	}{
		{
			name:          "single dimension fits",
			cardinalities: []int{1},
			bound:         3,
			want:          []int{},
		},
		{
			name:          "two dimensions fit",
			cardinalities: []int{1, 2},
			bound:         3,
			want:          []int{},
		},
		{
			name:          "pin cheapest single dimension",
			cardinalities: []int{1, 2, 3},
			bound:         3,
			want:          []int{1},
		},
		{
			name:          "pin mid dimension with smallest product",
			cardinalities: []int{1, 10, 5, 6},
			bound:         60,
			want:          []int{2},
		},
		{
			name:          "pin pair when no single dimension suffices",
			cardinalities: []int{2, 9, 5, 7},
			bound:         60,
			want:          []int{0, 3},
		},
		{
			name:          "pair of cheap dims beats one expensive dim",
			cardinalities: []int{100, 2, 3},
			bound:         100,
			want:          []int{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Plan(tt.cardinalities, tt.bound)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPlanInfeasible(t *testing.T) {
	_, err := Plan([]int{4, 5}, 0)
	require.ErrorIs(t, err, ErrInfeasible)
}

func TestPlanRemainderWithinBound(t *testing.T) {
	// For any valid plan the wildcard cross-product must fit the bound.
	cases := [][]int{
		{4, 5},
		{12, 7, 31},
		{2, 2, 2, 2, 2, 2},
		{365, 24, 60},
	}
	for _, cardinalities := range cases {
		for _, bound := range []int{1, 10, 100, 10000} {
			pinned, err := Plan(cardinalities, bound)
			require.NoError(t, err)

			remainder := 1
			isPinned := make(map[int]bool, len(pinned))
			for _, i := range pinned {
				isPinned[i] = true
			}
			for i, c := range cardinalities {
				if !isPinned[i] {
					remainder *= c
				}
			}
			require.LessOrEqual(t, remainder, bound,
				"cardinalities=%v bound=%d pinned=%v", cardinalities, bound, pinned)
		}
	}
}

func TestPlanEmptyIffFits(t *testing.T) {
	got, err := Plan([]int{4, 5}, 20)
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = Plan([]int{4, 5}, 19)
	require.NoError(t, err)
	require.NotEmpty(t, got)
}

func TestSubRequests(t *testing.T) {
	require.Equal(t, 1, SubRequests([]int{4, 5}, nil))
	require.Equal(t, 4, SubRequests([]int{4, 5}, []int{0}))
	require.Equal(t, 20, SubRequests([]int{4, 5}, []int{0, 1}))
}
