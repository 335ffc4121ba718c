package risk

import "sort"

// PercentRank returns the average-rank percentile of every value: ranks are
// 1-based, ties share the mean of their ranks, and results are divided by n.
func PercentRank(values []float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j+2) / 2 / float64(n)
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

// RiskCategory bins a severity score.
func RiskCategory(score float64) string {
	switch {
	case score <= 0:
		return "No Risk"
	case score <= 25:
		return "Low"
	case score <= 50:
		return "Medium"
	case score <= 75:
		return "High"
	default:
		return "Critical"
	}
}

// GovernanceLevel bins a composite governance score.
func GovernanceLevel(score float64) string {
	switch {
	case score <= 20:
		return "Safe"
	case score <= 40:
		return "Low"
	case score <= 60:
		return "Medium"
	case score <= 80:
		return "High"
	default:
		return "Critical"
	}
}
