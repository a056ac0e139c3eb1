package slots

// PickAfter chooses the next slot from a snapshot of Empty slot numbers.
// empties must be sorted ascending. It returns the first number strictly
// greater than cursor, or the lowest number when none is greater. ok is
// false when empties is empty.
func PickAfter(empties []int, cursor int) (slot int, ok bool) {
	if len(empties) == 0 {
		return 0, false
	}
	for _, n := range empties {
		if n > cursor {
			return n, true
		}
	}
	return empties[0], true
}

// without returns empties minus every number in excluded.
func without(empties []int, excluded map[int]struct{}) []int {
	if len(excluded) == 0 {
		return empties
	}
	out := make([]int, 0, len(empties))
	for _, n := range empties {
		if _, skip := excluded[n]; !skip {
			out = append(out, n)
		}
	}
	return out
}
