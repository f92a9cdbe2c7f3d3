package sim

import (
	"fmt"
	"math"
)

// Mode selects how a reservoir computes releases.
type Mode string

const (
	// Passive releases water purely on volume against gate heights.
	Passive Mode = "passive"
	// Active additionally chases an operating policy's release target.
	Active Mode = "active"
)

// Balance is the outcome of one water-balance step. For every step,
// Inflow == Outflow + Spilled + (Stored - previous volume).
type Balance struct {
	Inflow   float64
	Releases []float64 // per gate, ascending height order
	Outflow  float64   // sum of releases
	Spilled  float64
	Stored   float64 // end-of-step volume
}

// ReservoirConfig configures a reservoir.
type ReservoirConfig struct {
	Name     string
	Capacity float64
	// Gates lists the release paths. nil gets a single unlimited
	// spillway gate at the capacity line; an explicit empty slice
	// means no gates at all, so the reservoir fills and then spills.
	Gates []Gate
	// Mode defaults to Passive when empty.
	Mode Mode
	// Policy supplies release targets and is required in Active mode.
	Policy        OperatingPolicy
	InitialVolume float64
}

// Reservoir models storage behind a dam: finite capacity, gated
// release paths evaluated in ascending height order, and an operating
// mode. A Reservoir belongs to exactly one Storage node.
type Reservoir struct {
	name     string
	capacity float64
	gates    []*Gate
	mode     Mode
	policy   OperatingPolicy
	volume   float64
}

// DefaultReservoir returns the minimal single-reservoir setup:
// capacity 1, one unlimited gate at the capacity line, passive
// operation, starting empty.
func DefaultReservoir() *Reservoir {
	r, err := NewReservoir(ReservoirConfig{Capacity: 1})
	if err != nil {
		panic(err)
	}
	return r
}

// NewReservoir validates the configuration and builds a reservoir.
// Capacity zero is allowed and degenerates to a pure pass-through.
func NewReservoir(cfg ReservoirConfig) (*Reservoir, error) {
	if cfg.Capacity < 0 {
		return nil, &ConfigurationError{Field: "capacity", Reason: "must not be negative"}
	}

	mode := cfg.Mode
	if mode == "" {
		mode = Passive
	}
	if mode != Passive && mode != Active {
		return nil, &ConfigurationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", cfg.Mode)}
	}
	if mode == Active && cfg.Policy == nil {
		return nil, &ConfigurationError{Field: "policy", Reason: "active operation requires a policy"}
	}
	if cfg.InitialVolume < 0 || cfg.InitialVolume > cfg.Capacity {
		return nil, &ConfigurationError{Field: "initial volume", Reason: "outside reservoir capacity"}
	}

	var gates []*Gate
	if cfg.Gates == nil {
		gates = []*Gate{{Height: cfg.Capacity, Range: UnlimitedRelease()}}
	} else {
		gates = make([]*Gate, len(cfg.Gates))
		for i := range cfg.Gates {
			g := cfg.Gates[i]
			if g.Range == (ReleaseRange{}) {
				g.Range = UnlimitedRelease()
			}
			if g.Height < 0 || g.Height > cfg.Capacity {
				return nil, &ConfigurationError{Field: "gate height", Reason: fmt.Sprintf("gate %d sits outside [0, capacity]", i)}
			}
			if g.Range.Min < 0 {
				return nil, &ConfigurationError{Field: "gate release", Reason: fmt.Sprintf("gate %d minimum release is negative", i)}
			}
			if g.Range.Max < g.Range.Min {
				return nil, &ConfigurationError{Field: "gate release", Reason: fmt.Sprintf("gate %d maximum release is below its minimum", i)}
			}
			gates[i] = &g
		}
	}

	return &Reservoir{
		name:     cfg.Name,
		capacity: cfg.Capacity,
		gates:    labelGates(gates),
		mode:     mode,
		policy:   cfg.Policy,
		volume:   cfg.InitialVolume,
	}, nil
}

// Update advances the reservoir one step: fill with the aggregate
// inflow, release through the gates in ascending height order with
// each gate seeing what the gates below it left behind, then spill
// whatever still sits above capacity.
func (r *Reservoir) Update(step int, inflow float64) (Balance, error) {
	if inflow < 0 {
		return Balance{}, &ConfigurationError{Field: "inflow", Reason: "must not be negative"}
	}

	provisional := r.volume + inflow

	var desired float64
	if r.mode == Active {
		desired = r.policy.Target(step, r.volume, inflow, r.capacity)
		desired = math.Min(math.Max(desired, 0), provisional)
	}

	avail := provisional
	releases := make([]float64, len(r.gates))
	var outflow float64
	for i, g := range r.gates {
		rr := g.releaseRange(avail)
		rel := rr.Max
		if r.mode == Active {
			// Forced minimums release regardless of the target; the
			// remaining target is filled bottom gate first.
			rel = math.Max(rr.Min, math.Min(rr.Max, desired))
			desired = math.Max(0, desired-rel)
		}
		releases[i] = rel
		avail -= rel
		outflow += rel
	}

	stored := math.Min(avail, r.capacity)
	spilled := avail - stored
	r.volume = stored

	return Balance{
		Inflow:   inflow,
		Releases: releases,
		Outflow:  outflow,
		Spilled:  spilled,
		Stored:   stored,
	}, nil
}

// Name returns the reservoir's configured name.
func (r *Reservoir) Name() string { return r.name }

// Capacity returns the storage bound.
func (r *Reservoir) Capacity() float64 { return r.capacity }

// Volume returns the current storage volume.
func (r *Reservoir) Volume() float64 { return r.volume }

// Mode returns the operating mode.
func (r *Reservoir) Mode() Mode { return r.mode }

// Policy returns the operating policy, nil for passive reservoirs.
func (r *Reservoir) Policy() OperatingPolicy { return r.policy }

// SetPolicy swaps the operating policy between steps, wrapping or
// replacing the configured one. A nil policy is ignored; active
// operation always has one.
func (r *Reservoir) SetPolicy(p OperatingPolicy) {
	if p != nil {
		r.policy = p
	}
}

// Gates returns the gates in ascending height order. The slice is
// live: failing a gate through it affects subsequent steps.
func (r *Reservoir) Gates() []*Gate { return r.gates }

// GateLabels returns the gate display labels in release order.
func (r *Reservoir) GateLabels() []string {
	labels := make([]string, len(r.gates))
	for i, g := range r.gates {
		labels[i] = g.Label()
	}
	return labels
}
