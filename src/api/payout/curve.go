package payout

import "math"

// PercentileRank places score among its peers on a 0-100 scale. Peers
// exclude the subject; ties count half so equal scores land mid-rank. An
// event with no peers sits at the median.
func PercentileRank(score float64, peers []float64) float64 {
	if len(peers) == 0 {
		return 50
	}
	below, equal := 0, 0
	for _, p := range peers {
		switch {
		case p < score:
			below++
		case p == score:
			equal++
		}
	}
	return 100 * (float64(below) + 0.5*float64(equal)) / float64(len(peers))
}

// Rate maps a percentile through the convex power curve
// low + (high-low)*(p/100)^gamma. Convexity concentrates growth in the top
// percentiles. Inputs are clamped, never extrapolated.
func Rate(p, low, high, gamma float64) float64 {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	r := low + (high-low)*math.Pow(p/100, gamma)
	if r < low {
		r = low
	}
	if r > high {
		r = high
	}
	return r
}
