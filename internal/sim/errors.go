package sim

import (
	"fmt"
	"strings"
)

// CycleError indicates the senders relation is not acyclic.
// Nodes lists the members of the stuck set in construction order.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return "cycle in senders relation: " + strings.Join(e.Nodes, ", ")
}

// UnknownSenderError indicates a node references a sender that is not
// part of the system.
type UnknownSenderError struct {
	Node   string
	Sender string
}

func (e *UnknownSenderError) Error() string {
	return fmt.Sprintf("node %q references unknown sender %q", e.Node, e.Sender)
}

// OutOfDataError indicates an inflow series has been exhausted.
type OutOfDataError struct {
	Node string
	Step int
}

func (e *OutOfDataError) Error() string {
	return fmt.Sprintf("inflow %q has no data for step %d", e.Node, e.Step)
}

// ConfigurationError indicates invalid construction parameters.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StepFailure wraps the error that halted a run, with the failing node
// and cumulative step index attached. Logs written before the failing
// step remain valid.
type StepFailure struct {
	Node string
	Step int
	Err  error
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %d failed at node %q: %v", e.Step, e.Node, e.Err)
}

func (e *StepFailure) Unwrap() error {
	return e.Err
}
