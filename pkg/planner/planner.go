// Package planner decides which table dimensions to pin so that every
// sub-request of a partitioned table download stays under the API's
// per-request cell cap.
//
// Pinning a dimension means requesting it one value at a time instead of
// with a wildcard. The planner picks the pinned set with the smallest
// product of cardinalities, which is exactly the number of sub-requests
// the download will need.
package planner

import (
	"errors"
)

// ErrInfeasible is returned when no pinned set can bring the wildcard
// cross-product under the bound, i.e. the content dimension alone exceeds
// the cell cap. This is a configuration problem and must not be retried.
var ErrInfeasible = errors.New("cell cap cannot be satisfied even with every dimension pinned")

// Plan returns the indices of the dimensions to pin, given the
// cardinalities of all key dimensions and the maximum allowed
// cross-product of the remaining wildcard dimensions.
//
// The empty plan is returned when the whole table already fits one
// request. Otherwise the result is the valid subset with the smallest
// product of pinned cardinalities; ties go to the subset enumerated first
// by increasing size and, within a size, in index-lexicographic order.
// The search is exponential in len(cardinalities), which stays in the low
// teens for real statistical tables.
func Plan(cardinalities []int, bound int) ([]int, error) {
	if bound < 1 {
		return nil, ErrInfeasible
	}

	total := 1
	for _, c := range cardinalities {
		total *= c
	}
	if total <= bound {
		return []int{}, nil
	}

	n := len(cardinalities)
	var best []int
	bestProduct := 0

	// A subset of a larger size class can still beat a smaller one (two
	// cheap dimensions vs one expensive), so every size class is searched.
	// Strict less-than keeps the first-enumerated subset on ties.
	for size := 1; size <= n; size++ {
		subsetsOfSize(n, size, func(subset []int) {
			p := 1
			for _, i := range subset {
				p *= cardinalities[i]
			}
			// Valid when the wildcard remainder fits the bound.
			if bound*p < total {
				return
			}
			if best == nil || p < bestProduct {
				best = append([]int(nil), subset...)
				bestProduct = p
			}
		})
	}

	if best == nil {
		return nil, ErrInfeasible
	}
	return best, nil
}

// SubRequests returns how many sub-requests a plan produces.
func SubRequests(cardinalities []int, pinned []int) int {
	p := 1
	for _, i := range pinned {
		p *= cardinalities[i]
	}
	return p
}

// subsetsOfSize visits all k-subsets of [0,n) in lexicographic order.
func subsetsOfSize(n, k int, visit func([]int)) {
	if k > n || k == 0 {
		return
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		visit(idx)
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
