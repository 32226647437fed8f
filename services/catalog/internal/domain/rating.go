package domain

// RoundRating returns the mean of count ratings summing to sum, rounded
// half-up to one decimal. Integer arithmetic keeps 6.65 from drifting to 6.6.
func RoundRating(sum, count int64) float64 {
	if count <= 0 {
		return 0
	}
	tenths := (sum*20 + count) / (2 * count)
	return float64(tenths) / 10
}
