package sim

// OperatingPolicy supplies the release target for an actively managed
// reservoir. Target is consulted once per step, before releases are
// computed; the reservoir clips the result to what is physically
// available. Policies may keep state across steps.
type OperatingPolicy interface {
	Target(step int, stored, inflow, capacity float64) float64
}

// TargetFunc adapts a plain function to an OperatingPolicy.
type TargetFunc func(step int, stored, inflow, capacity float64) float64

func (f TargetFunc) Target(step int, stored, inflow, capacity float64) float64 {
	return f(step, stored, inflow, capacity)
}

// ConstantTarget requests the same release volume every step.
type ConstantTarget float64

func (c ConstantTarget) Target(int, float64, float64, float64) float64 {
	return float64(c)
}

// ScheduleTarget follows a per-step release schedule. Steps past the
// end of the schedule hold its final value.
type ScheduleTarget []float64

func (s ScheduleTarget) Target(step int, _, _, _ float64) float64 {
	if len(s) == 0 {
		return 0
	}
	if step >= len(s) {
		return s[len(s)-1]
	}
	return s[step]
}

// CurvePolicy reads the release target off a rule curve expressed as a
// function of fill fraction (volume/capacity). The target is the curve
// averaged over the fill interval the step traverses, so a large
// inflow is not priced solely at its endpoint.
type CurvePolicy struct {
	Curve  Curve
	Method RiemannMethod
	Steps  int
}

// NewCurvePolicy builds a curve policy with trapezoid averaging over
// 100 subintervals.
func NewCurvePolicy(curve Curve) *CurvePolicy {
	return &CurvePolicy{Curve: curve, Method: RiemannTrapezoid, Steps: 100}
}

func (p *CurvePolicy) Target(step int, stored, inflow, capacity float64) float64 {
	if p.Curve == nil || capacity <= 0 {
		return 0
	}
	a := stored / capacity
	b := (stored + inflow) / capacity
	if b-a < 1e-12 {
		return p.Curve(a)
	}
	n := p.Steps
	if n < 1 {
		n = 100
	}
	integral, err := RiemannSum(p.Curve, a, b, p.Method, n)
	if err != nil {
		return p.Curve(b)
	}
	return integral / (b - a)
}

// ForecastTarget releases the inflow it expects next step, estimated by
// discounting recently observed inflows. Older observations lose weight
// at the decay rate per step; only the last Window observations are
// kept.
type ForecastTarget struct {
	Decay  float64
	Window int

	recent []float64
}

// NewForecastTarget builds a forecast policy. A window below 1
// defaults to 10 observations.
func NewForecastTarget(decay float64, window int) *ForecastTarget {
	if window < 1 {
		window = 10
	}
	return &ForecastTarget{Decay: decay, Window: window}
}

func (f *ForecastTarget) Target(step int, stored, inflow, capacity float64) float64 {
	f.recent = append(f.recent, inflow)
	if f.Window > 0 && len(f.recent) > f.Window {
		f.recent = f.recent[len(f.recent)-f.Window:]
	}
	return ExpectedValue(f.recent, f.Decay)
}
