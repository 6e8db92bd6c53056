package scoring

// ContestCredit returns the points to add for a submission that passed
// `passed` of `total` cases when the best earlier attempt passed `bestPassed`.
// It never returns a negative amount.
func ContestCredit(points, passed, total, bestPassed int, partial, alreadySolved bool) int {
	if total <= 0 {
		return 0
	}
	if !partial {
		if passed == total && !alreadySolved {
			return points
		}
		return 0
	}
	if passed <= bestPassed {
		return 0
	}
	gain := proportion(points, passed, total) - proportion(points, bestPassed, total)
	return max(0, gain)
}

func proportion(points, passed, total int) int {
	return round(float64(passed) / float64(total) * float64(points))
}
