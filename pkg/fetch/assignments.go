package fetch

// assignments lazily enumerates the cartesian product of the pinned
// dimensions' values, one pin assignment per combination, in index order.
// The sequence is finite and traversed exactly once.
type assignments struct {
	codes  []string
	values [][]string
	idx    []int
	done   bool
}

func newAssignments(codes []string, values [][]string) *assignments {
	a := &assignments{
		codes:  codes,
		values: values,
		idx:    make([]int, len(codes)),
	}
	for _, vs := range values {
		if len(vs) == 0 {
			a.done = true
		}
	}
	return a
}

// next returns the following assignment, or false when exhausted. With no
// pinned dimensions it yields a single empty assignment: one request
// covers the whole table.
func (a *assignments) next() (map[string]string, bool) {
	if a.done {
		return nil, false
	}

	pin := make(map[string]string, len(a.codes))
	for i, code := range a.codes {
		pin[code] = a.values[i][a.idx[i]]
	}

	// Odometer increment, rightmost dimension fastest.
	i := len(a.idx) - 1
	for ; i >= 0; i-- {
		a.idx[i]++
		if a.idx[i] < len(a.values[i]) {
			break
		}
		a.idx[i] = 0
	}
	if i < 0 {
		a.done = true
	}

	return pin, true
}
