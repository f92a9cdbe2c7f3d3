package sim

import "math"

// Curve is a scalar function of one variable, used for rule curves and
// depreciation shapes.
type Curve func(x float64) float64

// Linear returns the curve f(x) = slope*x + intercept.
func Linear(slope, intercept float64) Curve {
	return func(x float64) float64 {
		return slope*x + intercept
	}
}

// Exponential returns the curve f(x) = base * (1+rate)^x.
// A negative rate gives decay, a positive rate growth.
func Exponential(base, rate float64) Curve {
	return func(x float64) float64 {
		return base * math.Pow(1+rate, x)
	}
}

// UnitSigmoid returns an S-shaped curve mapping [0,1] onto [0,1] with
// steepness k. Inputs at or below 0 map to 0, at or above 1 map to 1.
func UnitSigmoid(k float64) Curve {
	return func(x float64) float64 {
		if x <= 0 {
			return 0
		}
		if x >= 1 {
			return 1
		}
		return 1 / (1 + math.Pow(1/x-1, k))
	}
}

// RiemannMethod selects the rule used by RiemannSum.
type RiemannMethod int

const (
	RiemannLeft RiemannMethod = iota
	RiemannRight
	RiemannMidpoint
	RiemannTrapezoid
)

// RiemannSum approximates the integral of fx over [a,b] using n
// subintervals. The interval must satisfy a < b and n must be positive.
func RiemannSum(fx Curve, a, b float64, method RiemannMethod, n int) (float64, error) {
	if a >= b {
		return 0, &ConfigurationError{Field: "interval", Reason: "lower bound must be below upper bound"}
	}
	if n < 1 {
		return 0, &ConfigurationError{Field: "subintervals", Reason: "must be positive"}
	}

	dx := (b - a) / float64(n)
	var sum float64
	switch method {
	case RiemannLeft:
		for i := 0; i < n; i++ {
			sum += fx(a + float64(i)*dx)
		}
		return sum * dx, nil
	case RiemannRight:
		for i := 0; i < n; i++ {
			sum += fx(a + float64(i+1)*dx)
		}
		return sum * dx, nil
	case RiemannMidpoint:
		for i := 0; i < n; i++ {
			sum += fx(a + (float64(i)+0.5)*dx)
		}
		return sum * dx, nil
	case RiemannTrapezoid:
		for i := 0; i < n; i++ {
			sum += fx(a+float64(i)*dx) + fx(a+float64(i+1)*dx)
		}
		return sum * dx / 2, nil
	default:
		return 0, &ConfigurationError{Field: "method", Reason: "unknown riemann method"}
	}
}

// ExpectedValue returns the weighted mean of a series where information
// depreciates at a constant rate: the newest value carries weight 1 and
// each older value is discounted by (1-decay) per step back.
// An empty series yields 0.
func ExpectedValue(series []float64, decay float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var num, den float64
	for i, v := range series {
		w := math.Pow(1-decay, float64(len(series)-1-i))
		num += v * w
		den += w
	}
	return num / den
}
