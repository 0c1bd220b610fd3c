// Package pricing values at-the-money option structures with the
// Black-Scholes closed form (zero rates, no carry).
package pricing

import "math"

// NormCDF is the standard normal cumulative distribution function,
// computed through the error function identity.
func NormCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// d1d2 returns the two risk-neutral decision boundaries. Callers must ensure
// t > 0 and sigma > 0.
func d1d2(spot, strike, t, sigma float64) (float64, float64) {
	volSqrtT := sigma * math.Sqrt(t)
	d1 := (math.Log(spot/strike) + 0.5*sigma*sigma*t) / volSqrtT
	return d1, d1 - volSqrtT
}

// CallValue is the European call value. Degenerate inputs return intrinsic.
func CallValue(spot, strike, t, sigma float64) float64 {
	if t <= 0 || sigma <= 0 {
		return math.Max(spot-strike, 0)
	}
	d1, d2 := d1d2(spot, strike, t, sigma)
	return math.Max(spot*NormCDF(d1)-strike*NormCDF(d2), 0)
}

// PutValue is the European put value. Degenerate inputs return intrinsic.
func PutValue(spot, strike, t, sigma float64) float64 {
	if t <= 0 || sigma <= 0 {
		return math.Max(strike-spot, 0)
	}
	d1, d2 := d1d2(spot, strike, t, sigma)
	return math.Max(strike*NormCDF(-d2)-spot*NormCDF(-d1), 0)
}

// StraddleFairValue returns call + put for the same strike, t in years and
// sigma as a decimal (0.45 = 45%). When t <= 0 or sigma <= 0 it returns
// 2·|spot−strike|.
func StraddleFairValue(spot, strike, t, sigma float64) float64 {
	if t <= 0 || sigma <= 0 {
		return 2 * math.Abs(spot-strike)
	}
	if spot <= 0 || strike <= 0 {
		return 0
	}
	d1, d2 := d1d2(spot, strike, t, sigma)
	call := spot*NormCDF(d1) - strike*NormCDF(d2)
	put := strike*NormCDF(-d2) - spot*NormCDF(-d1)
	return math.Max(call+put, 0)
}
