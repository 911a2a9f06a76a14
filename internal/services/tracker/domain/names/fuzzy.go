package names

// fuzzyAllowance scales the permitted edit distance with name length: short
// names tolerate a single edit, longer ones two.
func fuzzyAllowance(normalized string) int {
	if len([]rune(normalized)) <= 5 {
		return 1
	}
	return 2
}

// editDistanceWithin computes the Levenshtein distance between a and b,
// giving up early when it exceeds max. Rune-based, two-row dynamic program.
func editDistanceWithin(a, b string, max int) (int, bool) {
	if a == b {
		return 0, true
	}
	if max <= 0 {
		return 0, false
	}
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		longer := len(ra) + len(rb)
		if longer > max {
			return 0, false
		}
		return longer, true
	}
	diff := len(ra) - len(rb)
	if diff < 0 {
		diff = -diff
	}
	if diff > max {
		return 0, false
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(rb); j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > max {
			return 0, false
		}
		prev, curr = curr, prev
	}

	dist := prev[len(rb)]
	if dist > max {
		return 0, false
	}
	return dist, true
}
