package sim

import "fmt"

// Log is the append-only per-step record series for one node. Headers
// are fixed at creation and one row is appended per completed step, so
// Len always equals the number of steps the node has run.
type Log struct {
	headers []string
	rows    [][]float64
}

func newLog(headers []string) *Log {
	return &Log{headers: append([]string(nil), headers...)}
}

func (l *Log) append(row []float64) {
	l.rows = append(l.rows, row)
}

// Headers returns a copy of the record field names.
func (l *Log) Headers() []string {
	return append([]string(nil), l.headers...)
}

// Len returns the number of steps recorded.
func (l *Log) Len() int { return len(l.rows) }

// Row returns a copy of the record for one step.
func (l *Log) Row(step int) []float64 {
	return append([]float64(nil), l.rows[step]...)
}

// Rows returns a copy of all records in step order.
func (l *Log) Rows() [][]float64 {
	out := make([][]float64, len(l.rows))
	for i, r := range l.rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}

// Column returns the series for one named field across all steps.
func (l *Log) Column(header string) ([]float64, error) {
	idx := -1
	for i, h := range l.headers {
		if h == header {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, &ConfigurationError{Field: "header", Reason: fmt.Sprintf("log has no field %q", header)}
	}
	out := make([]float64, len(l.rows))
	for i, r := range l.rows {
		out[i] = r[idx]
	}
	return out, nil
}

// Results maps node names to their logs. The System owns it and hands
// it to reporting and export code after a run; there is no process
// global to inspect.
type Results struct {
	logs  map[string]*Log
	order []string
}

func newResults() *Results {
	return &Results{logs: make(map[string]*Log)}
}

func (r *Results) add(name string, log *Log) {
	r.logs[name] = log
	r.order = append(r.order, name)
}

// Log returns the log for a node name, or nil if the node is unknown.
func (r *Results) Log(name string) *Log {
	return r.logs[name]
}

// Names returns the node names in system construction order.
func (r *Results) Names() []string {
	return append([]string(nil), r.order...)
}
