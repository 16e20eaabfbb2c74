package model

import "math"

// annuity spreads capex over n years at interest rate ir.
func annuity(capex float64, n int, ir float64) float64 {
	if n <= 0 {
		return 0
	}
	if ir == 0 {
		return capex / float64(n)
	}
	q := math.Pow(1+ir, float64(n))
	return capex * ir * q / (q - 1)
}

// pvf is the present value factor of a unit payment over n years.
func pvf(n int, ir float64) float64 {
	if n <= 0 {
		return 0
	}
	if ir == 0 {
		return float64(n)
	}
	return 1 / annuity(1, n, ir)
}
