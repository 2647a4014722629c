package billing

// AverageMargin is the margin percentage of revenue over cost. A non-positive
// revenue yields 0 instead of dividing by zero.
func AverageMargin(revenue, cost float64) float64 {
	revenue = nonNegative(revenue)
	if revenue <= 0 {
		return 0
	}
	return (revenue - nonNegative(cost)) / revenue * 100
}
