package sim

import (
	"math"
	"math/rand"
)

// Asset models a depreciating piece of gate machinery. Value declines
// along a shaped schedule each period; funding maintenance below the
// requirement accelerates the decline, funding above it buys value back.
type Asset struct {
	// InitialValue is the as-new or replacement value.
	InitialValue float64
	// SalvageValue is the value at the end of the schedule.
	SalvageValue float64
	// SchedulePeriods is the length of the depreciation schedule.
	SchedulePeriods float64
	// MaintenanceRequirement is the funding needed per period to stay
	// on schedule.
	MaintenanceRequirement float64
	// ShapeParameter controls the schedule shape. 0 is constant,
	// 1 is linear, above 1 concave, below 1 convex.
	ShapeParameter float64
	// AccelerationFactor scales how much faster value declines when
	// maintenance goes unfunded.
	AccelerationFactor float64
}

// DefaultAsset returns a linear 100-period schedule from 100 to 0 with
// a maintenance requirement of 1 per period.
func DefaultAsset() *Asset {
	return &Asset{
		InitialValue:           100,
		SalvageValue:           0,
		SchedulePeriods:        100,
		MaintenanceRequirement: 1,
		ShapeParameter:         1,
		AccelerationFactor:     1,
	}
}

func (a *Asset) validate() error {
	if a.InitialValue <= a.SalvageValue {
		return &ConfigurationError{Field: "asset value", Reason: "initial value must exceed salvage value"}
	}
	if a.SchedulePeriods <= 0 {
		return &ConfigurationError{Field: "asset schedule", Reason: "periods must be positive"}
	}
	if a.ShapeParameter <= 0 {
		return &ConfigurationError{Field: "asset shape", Reason: "shape parameter must be positive"}
	}
	if a.MaintenanceRequirement <= 0 {
		return &ConfigurationError{Field: "asset maintenance", Reason: "requirement must be positive"}
	}
	return nil
}

// fractionAt returns the portion of depreciable value remaining at
// schedule time t. Past the end of the schedule nothing remains.
func (a *Asset) fractionAt(t float64) float64 {
	if t >= a.SchedulePeriods {
		return 0
	}
	return math.Pow(1-t/a.SchedulePeriods, a.ShapeParameter)
}

// scheduleTime inverts fractionAt: the schedule time at which the given
// portion of depreciable value remains.
func (a *Asset) scheduleTime(portion float64) (float64, error) {
	if portion < 0 || portion > 1 {
		return 0, &ConfigurationError{Field: "asset portion", Reason: "must be between 0 and 1"}
	}
	return a.SchedulePeriods * (1 - math.Pow(portion, 1/a.ShapeParameter)), nil
}

// elapsedPeriods returns how many schedule periods one real period
// advances, given the maintenance funded. Full funding advances the
// schedule by exactly one period.
func (a *Asset) elapsedPeriods(maintenance float64) float64 {
	return 1 + (a.MaintenanceRequirement-maintenance)/a.MaintenanceRequirement*a.AccelerationFactor
}

// Depreciate advances the asset one period and returns the new value.
// Maintenance beyond the requirement is applied as recapitalization,
// directly buying value back up to InitialValue.
func (a *Asset) Depreciate(value, maintenance float64) (float64, error) {
	if err := a.validate(); err != nil {
		return 0, err
	}
	if maintenance < 0 {
		return 0, &ConfigurationError{Field: "maintenance", Reason: "must not be negative"}
	}

	funded := math.Min(maintenance, a.MaintenanceRequirement)
	recap := math.Max(0, maintenance-a.MaintenanceRequirement)
	depreciable := a.InitialValue - a.SalvageValue

	t, err := a.scheduleTime(value / depreciable)
	if err != nil {
		return 0, err
	}
	t += a.elapsedPeriods(funded)

	next := depreciable*a.fractionAt(t) + recap
	return math.Max(math.Min(a.InitialValue, next), a.SalvageValue), nil
}

// PortionRemaining returns the portion of depreciable value left in an
// asset worth the given value.
func (a *Asset) PortionRemaining(value float64) (float64, error) {
	if err := a.validate(); err != nil {
		return 0, err
	}
	if value < a.SalvageValue || value > a.InitialValue {
		return 0, &ConfigurationError{Field: "asset value", Reason: "outside salvage and initial bounds"}
	}
	return math.Max(0, (value-a.SalvageValue)/(a.InitialValue-a.SalvageValue)), nil
}

// ShadowValue models an owner's imperfect estimate of asset value.
// Underfunded maintenance widens the estimate error by a random draw;
// recapitalization spends directly toward closing the gap between the
// estimate and the actual value.
func (a *Asset) ShadowValue(rng *rand.Rand, lastEstimate, actual, maintenance, maxPortionError float64) (float64, error) {
	if err := a.validate(); err != nil {
		return 0, err
	}
	if maxPortionError < 0 || maxPortionError > 1 {
		return 0, &ConfigurationError{Field: "max portion error", Reason: "must be between 0 and 1"}
	}

	var estimate float64
	if maintenance <= a.MaintenanceRequirement {
		errPortion := (1 - maintenance/a.MaintenanceRequirement) * maxPortionError
		draw := -errPortion + rng.Float64()*2*errPortion
		estimate = lastEstimate + draw*(a.InitialValue-a.SalvageValue)
	} else {
		gap := actual - lastEstimate
		recap := maintenance - a.MaintenanceRequirement
		if recap < math.Abs(gap) {
			if lastEstimate < actual {
				estimate = lastEstimate + recap
			} else {
				estimate = lastEstimate - recap
			}
		} else {
			estimate = actual
		}
	}
	return math.Min(math.Max(a.SalvageValue, estimate), a.InitialValue), nil
}
