// Package normal provides the standard normal distribution function used to map
// latent copula variables onto uniform draws.
package normal

import "math"

// Abramowitz-Stegun 7.1.26 coefficients. Changing any of them changes every
// simulated default time for a given seed.
const (
	a1 = 0.254829592
	a2 = -0.284496736
	a3 = 1.421413741
	a4 = -1.453152027
	a5 = 1.061405429
	p  = 0.3275911
)

// MaxAbsError is the documented absolute error bound of Erf.
const MaxAbsError = 1.5e-7

// Erf approximates the error function with the Abramowitz-Stegun rational
// approximation. The result is odd in x; at zero it is 1e-9 rather than 0.
func Erf(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return sign * y
}

// CDF returns the standard normal cumulative distribution at x,
// computed as 0.5 * (1 + Erf(x / sqrt(2))).
func CDF(x float64) float64 {
	return 0.5 * (1.0 + Erf(x/math.Sqrt2))
}
