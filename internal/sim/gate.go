package sim

import (
	"fmt"
	"math"
	"sort"

	"github.com/mthorley/hydronet/internal/events"
)

// ReleaseRange bounds the release through a gate in one step.
// The zero value is treated as unlimited when a reservoir is built.
type ReleaseRange struct {
	Min float64
	Max float64
}

// UnlimitedRelease returns a range with no forced minimum and no cap.
func UnlimitedRelease() ReleaseRange {
	return ReleaseRange{Min: 0, Max: math.Inf(1)}
}

// FailureState describes whether and how a gate has failed.
type FailureState int

const (
	// FailureNone means the gate operates normally.
	FailureNone FailureState = iota
	// FailureOpen means the gate is jammed open and releases at its
	// maximum regardless of operations.
	FailureOpen
	// FailureClosed means the gate is jammed shut and releases nothing.
	FailureClosed
)

func (s FailureState) String() string {
	switch s {
	case FailureOpen:
		return "open"
	case FailureClosed:
		return "closed"
	default:
		return "none"
	}
}

// Gate is one release path out of a reservoir: a sill height, the
// release range the works allow, and an optional wear model.
type Gate struct {
	// Name is the display base name. Empty defaults to "outlet".
	Name string
	// Height is the sill height. Water below it cannot be released
	// through this gate. Same units as reservoir volume.
	Height float64
	// Range bounds the release per step in the non-failed state.
	Range ReleaseRange
	// Wear models the gate machinery's value, when present.
	Wear *Asset
	// State is the gate's current failure state.
	State FailureState

	label string
}

// Label returns the display label assigned when the owning reservoir
// was built, e.g. "outlet@1" or "sluice2@0".
func (g *Gate) Label() string {
	return g.label
}

// releaseRange returns the feasible release given the water available
// to this gate, adjusted for failure state. Water below the sill cannot
// be released regardless of state.
func (g *Gate) releaseRange(avail float64) ReleaseRange {
	var rr ReleaseRange
	if over := avail - g.Height; over > 0 {
		rr = ReleaseRange{
			Min: math.Min(g.Range.Min, over),
			Max: math.Min(over, g.Range.Max),
		}
	}
	switch g.State {
	case FailureOpen:
		return ReleaseRange{Min: rr.Max, Max: rr.Max}
	case FailureClosed:
		return ReleaseRange{}
	default:
		return rr
	}
}

// Fail puts the gate into the given failure state and reports the
// transition. Passing FailureNone clears the state silently.
func (g *Gate) Fail(state FailureState) {
	g.State = state
	if state == FailureNone {
		return
	}
	events.Emit("warning", "gate.failed", "", map[string]interface{}{
		"gate":  g.label,
		"state": state.String(),
	})
}

// conditionAt returns the failure state the gate would hold at the
// given wear value and water level, without modifying the gate.
func (g *Gate) conditionAt(value, volume float64) (FailureState, error) {
	portion, err := g.Wear.PortionRemaining(value)
	if err != nil {
		return g.State, err
	}
	if portion > 0 || g.State != FailureNone {
		return g.State, nil
	}
	// Value exhausted: assume the gate breaks where it sits. Dry at the
	// sill means it was shut, so it fails closed.
	if volume <= g.Height {
		return FailureClosed, nil
	}
	return FailureOpen, nil
}

// UpdateCondition transitions the gate's failure state from its wear
// value and the current water level. Gates without a wear model and
// gates with depreciable value remaining are left alone.
func (g *Gate) UpdateCondition(value, volume float64) (FailureState, error) {
	if g.Wear == nil {
		return g.State, nil
	}
	next, err := g.conditionAt(value, volume)
	if err != nil {
		return g.State, err
	}
	if next != g.State {
		g.Fail(next)
	}
	return g.State, nil
}

// StateAssessment pairs a candidate failure state with the probability
// of observing it.
type StateAssessment struct {
	State       FailureState
	Probability float64
}

// AssessCondition estimates the failure states this gate could be in
// given an estimated wear value, weighting equally across the candidate
// water levels. The gate itself is not modified.
func (g *Gate) AssessCondition(estimatedValue float64, volumes []float64) ([]StateAssessment, error) {
	if len(volumes) == 0 {
		return nil, &ConfigurationError{Field: "volumes", Reason: "at least one candidate level required"}
	}
	if g.Wear == nil {
		return []StateAssessment{{State: g.State, Probability: 1}}, nil
	}

	dp := 1 / float64(len(volumes))
	probs := make(map[FailureState]float64)
	var order []FailureState
	for _, v := range volumes {
		state, err := g.conditionAt(estimatedValue, v)
		if err != nil {
			return nil, err
		}
		if _, seen := probs[state]; !seen {
			order = append(order, state)
		}
		probs[state] += dp
	}

	out := make([]StateAssessment, 0, len(order))
	for _, s := range order {
		out = append(out, StateAssessment{State: s, Probability: probs[s]})
	}
	return out, nil
}

// labelGates assigns display labels and sorts the gates by ascending
// height. Labels follow <name><i>@<floor(height)> with the base name
// defaulting to "outlet"; the index is dropped from the first gate of
// each name so a lone gate reads "outlet@1".
func labelGates(gates []*Gate) []*Gate {
	type entry struct {
		gate  *Gate
		base  string
		floor int
		index int
	}

	seen := make(map[string]struct{})
	entries := make([]*entry, 0, len(gates))
	for _, g := range gates {
		base := g.Name
		if base == "" {
			base = "outlet"
		}
		floor := int(math.Floor(g.Height))
		i := 1
		label := fmt.Sprintf("%s%d@%d", base, i, floor)
		for {
			if _, dup := seen[label]; !dup {
				break
			}
			i++
			label = fmt.Sprintf("%s%d@%d", base, i, floor)
		}
		seen[label] = struct{}{}
		g.label = label
		entries = append(entries, &entry{gate: g, base: base, floor: floor, index: i})
	}

	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].gate.Height != entries[b].gate.Height {
			return entries[a].gate.Height < entries[b].gate.Height
		}
		return entries[a].gate.label < entries[b].gate.label
	})

	out := make([]*Gate, len(entries))
	for i, e := range entries {
		if e.index == 1 {
			e.gate.label = fmt.Sprintf("%s@%d", e.base, e.floor)
		}
		out[i] = e.gate
	}
	return out
}
