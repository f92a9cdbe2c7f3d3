package sim

import (
	"fmt"

	"github.com/mthorley/hydronet/internal/events"
)

// State is the lifecycle state of a System.
type State string

const (
	// StateOrdered means the evaluation order is computed and no
	// steps have run yet.
	StateOrdered State = "ordered"
	// StateRunning means a Simulate call is in progress.
	StateRunning State = "running"
	// StateComplete means the last Simulate call finished cleanly.
	StateComplete State = "complete"
	// StateFailed means a step failed. Logs written before the
	// failing step remain valid.
	StateFailed State = "failed"
)

// StepRecorder receives every record as it is appended to a log.
// Implementations stream records to external sinks; their errors are
// reported as sink.error events and never interrupt the run.
type StepRecorder interface {
	Record(step int, node string, headers []string, values []float64) error
}

// System owns the node arena, the evaluation order derived from the
// senders relation, and the per-node logs.
type System struct {
	nodes     []Node
	index     map[string]int
	order     []int
	logs      []*Log    // parallel to nodes
	outputs   []float64 // current-step output per node
	results   *Results
	steps     int
	state     State
	recorders []StepRecorder
}

// New validates the node set, derives the evaluation order, and builds
// an empty log per node. The list order is the tie-break between
// unrelated nodes, so a given list always orders the same way.
func New(nodes []Node) (*System, error) {
	if len(nodes) == 0 {
		return nil, &ConfigurationError{Field: "nodes", Reason: "at least one node required"}
	}

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := index[n.Name()]; dup {
			return nil, &ConfigurationError{Field: "node name", Reason: fmt.Sprintf("%q is used twice", n.Name())}
		}
		index[n.Name()] = i
	}

	ord, err := order(nodes, index)
	if err != nil {
		return nil, err
	}

	s := &System{
		nodes:   nodes,
		index:   index,
		order:   ord,
		logs:    make([]*Log, len(nodes)),
		outputs: make([]float64, len(nodes)),
		results: newResults(),
		state:   StateOrdered,
	}
	for i, n := range nodes {
		s.logs[i] = newLog(n.Headers())
		s.results.add(n.Name(), s.logs[i])
	}
	return s, nil
}

// AddRecorder attaches a sink that receives every appended record.
func (s *System) AddRecorder(r StepRecorder) {
	s.recorders = append(s.recorders, r)
}

// Simulate advances every node stepCount further steps. Step indices
// are cumulative across calls: Simulate(5) twice walks the same steps
// as a single Simulate(10). The run halts at the first failing node
// with a StepFailure; records appended before the failure are kept.
func (s *System) Simulate(stepCount int) error {
	if stepCount < 1 {
		return &ConfigurationError{Field: "step count", Reason: "must be positive"}
	}

	s.state = StateRunning
	events.Emit("info", "run.started", "", map[string]interface{}{
		"from_step": s.steps,
		"steps":     stepCount,
	})

	for n := 0; n < stepCount; n++ {
		t := s.steps
		for _, i := range s.order {
			node := s.nodes[i]
			out, record, err := node.step(t, s.gather(node))
			if err != nil {
				s.state = StateFailed
				fail := &StepFailure{Node: node.Name(), Step: t, Err: err}
				events.Emit("error", "node.failed", "", map[string]interface{}{
					"node":  node.Name(),
					"step":  t,
					"error": err.Error(),
				})
				events.Emit("error", "run.failed", fail.Error(), map[string]interface{}{
					"node": node.Name(),
					"step": t,
				})
				return fail
			}
			s.outputs[i] = out
			s.logs[i].append(record)
			s.record(t, node.Name(), s.logs[i].headers, record)
		}
		s.steps++
		events.Emit("info", "step.completed", "", map[string]interface{}{"step": t})
	}

	s.state = StateComplete
	events.Emit("info", "run.completed", "", map[string]interface{}{"steps": s.steps})
	return nil
}

// gather sums the current-step outputs of a node's senders. Sender
// names were resolved at construction, so lookups cannot miss.
func (s *System) gather(node Node) float64 {
	var sum float64
	for _, name := range node.Senders() {
		sum += s.outputs[s.index[name]]
	}
	return sum
}

func (s *System) record(step int, name string, headers []string, values []float64) {
	for _, r := range s.recorders {
		if err := r.Record(step, name, headers, values); err != nil {
			events.Emit("error", "sink.error", "", map[string]interface{}{
				"node":  name,
				"step":  step,
				"error": err.Error(),
			})
		}
	}
}

// Steps returns the cumulative number of completed steps.
func (s *System) Steps() int { return s.steps }

// State returns the lifecycle state.
func (s *System) State() State { return s.state }

// Results returns the per-node logs keyed by node name.
func (s *System) Results() *Results { return s.results }

// Node returns the named node, or nil if it is not in the system.
func (s *System) Node(name string) Node {
	if i, ok := s.index[name]; ok {
		return s.nodes[i]
	}
	return nil
}

// HasNode reports whether the system contains a node with this name.
func (s *System) HasNode(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Order returns the node names in evaluation order.
func (s *System) Order() []string {
	out := make([]string, len(s.order))
	for i, idx := range s.order {
		out[i] = s.nodes[idx].Name()
	}
	return out
}
