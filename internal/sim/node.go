package sim

import "fmt"

// Tag identifies a node's role in the network.
type Tag string

const (
	// TagInflow marks an upstream-most node sourcing new water.
	TagInflow Tag = "inflow"
	// TagStorage marks a node that stores water behind a reservoir.
	TagStorage Tag = "storage"
	// TagOutlet marks a downstream-most node relaying delivered flow.
	TagOutlet Tag = "outlet"
)

// Node is a participant in the water-routing graph. Senders reference
// upstream nodes by name; the System resolves the names once and feeds
// each node the summed current-step output of its senders.
type Node interface {
	Name() string
	Tag() Tag
	Senders() []string
	// Headers describes the fields of the node's per-step record.
	Headers() []string
	// step advances the node one cumulative step given the summed
	// upstream output, returning the downstream output and the record
	// to log.
	step(t int, upstream float64) (out float64, record []float64, err error)
}

// Inflow sources water from a fixed data series, one value per step.
type Inflow struct {
	name  string
	data  []float64
	start int
}

// NewInflow builds an inflow node reading its series from the start.
// An empty name defaults to "inflow".
func NewInflow(name string, data []float64) (*Inflow, error) {
	return NewInflowAt(name, data, 0)
}

// NewInflowAt builds an inflow node whose first simulated step reads
// data[start].
func NewInflowAt(name string, data []float64, start int) (*Inflow, error) {
	if name == "" {
		name = string(TagInflow)
	}
	if start < 0 {
		return nil, &ConfigurationError{Field: "starting position", Reason: "must not be negative"}
	}
	for i, v := range data {
		if v < 0 {
			return nil, &ConfigurationError{Field: "inflow data", Reason: fmt.Sprintf("value at index %d is negative", i)}
		}
	}
	return &Inflow{name: name, data: data, start: start}, nil
}

func (n *Inflow) Name() string      { return n.name }
func (n *Inflow) Tag() Tag          { return TagInflow }
func (n *Inflow) Senders() []string { return nil }
func (n *Inflow) Headers() []string { return []string{"inflow"} }

func (n *Inflow) step(t int, _ float64) (float64, []float64, error) {
	i := n.start + t
	if i >= len(n.data) {
		return 0, nil, &OutOfDataError{Node: n.name, Step: t}
	}
	v := n.data[i]
	return v, []float64{v}, nil
}

// Storage holds a reservoir and sends its gate releases downstream.
// Spill leaves the network: it is recorded but never delivered.
type Storage struct {
	name      string
	senders   []string
	reservoir *Reservoir
}

// NewStorage builds a storage node around a reservoir. A nil reservoir
// gets the default single-gate setup; an empty name defaults to
// "storage". A storage node with no senders is a valid isolated
// reservoir receiving zero inflow each step.
func NewStorage(name string, senders []string, r *Reservoir) *Storage {
	if name == "" {
		name = string(TagStorage)
	}
	if r == nil {
		r = DefaultReservoir()
	}
	return &Storage{name: name, senders: senders, reservoir: r}
}

func (n *Storage) Name() string      { return n.name }
func (n *Storage) Tag() Tag          { return TagStorage }
func (n *Storage) Senders() []string { return n.senders }

// Reservoir returns the node's owned reservoir.
func (n *Storage) Reservoir() *Reservoir { return n.reservoir }

func (n *Storage) Headers() []string {
	h := make([]string, 0, len(n.reservoir.Gates())+3)
	h = append(h, "inflow")
	h = append(h, n.reservoir.GateLabels()...)
	return append(h, "spilled", "storage")
}

func (n *Storage) step(t int, upstream float64) (float64, []float64, error) {
	b, err := n.reservoir.Update(t, upstream)
	if err != nil {
		return 0, nil, err
	}
	record := make([]float64, 0, len(b.Releases)+3)
	record = append(record, b.Inflow)
	record = append(record, b.Releases...)
	record = append(record, b.Spilled, b.Stored)
	return b.Outflow, record, nil
}

// Outlet is the terminal role: it relays the sum of its senders'
// current-step outputs as the network's delivered flow.
type Outlet struct {
	name    string
	senders []string
}

// NewOutlet builds an outlet node. An empty name defaults to "outlet".
func NewOutlet(name string, senders []string) *Outlet {
	if name == "" {
		name = string(TagOutlet)
	}
	return &Outlet{name: name, senders: senders}
}

func (n *Outlet) Name() string      { return n.name }
func (n *Outlet) Tag() Tag          { return TagOutlet }
func (n *Outlet) Senders() []string { return n.senders }
func (n *Outlet) Headers() []string { return []string{"outlet"} }

func (n *Outlet) step(t int, upstream float64) (float64, []float64, error) {
	return upstream, []float64{upstream}, nil
}
