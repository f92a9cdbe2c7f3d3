package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Publisher is the outbound broker surface the record publisher needs.
// *Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// RecordPublisher streams step records to the broker as the simulation
// produces them, one topic per node under the run. It plugs into the
// simulation as a step recorder, so a broker outage surfaces as a
// sink.error without halting the run.
type RecordPublisher struct {
	pub    Publisher
	prefix string
	runID  string
}

// NewRecordPublisher builds a record publisher for one run.
func NewRecordPublisher(pub Publisher, prefix, runID string) *RecordPublisher {
	return &RecordPublisher{pub: pub, prefix: prefix, runID: runID}
}

// Record publishes one node's step record to
// <prefix>/runs/<run>/nodes/<node>.
func (p *RecordPublisher) Record(step int, node string, headers []string, values []float64) error {
	if !p.pub.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	record := make(map[string]float64, len(values))
	for i, v := range values {
		if i < len(headers) {
			record[headers[i]] = v
		}
	}

	payload, err := json.Marshal(map[string]interface{}{
		"run":    p.runID,
		"node":   node,
		"step":   step,
		"record": record,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	topic := fmt.Sprintf("%s/runs/%s/nodes/%s", p.prefix, p.runID, node)
	return p.pub.Publish(topic, payload)
}

// PublishStatus announces a run state change on
// <prefix>/runs/<run>/status.
func (p *RecordPublisher) PublishStatus(state string, steps int) error {
	if !p.pub.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"run":   p.runID,
		"state": state,
		"steps": steps,
		"ts":    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	return p.pub.Publish(fmt.Sprintf("%s/runs/%s/status", p.prefix, p.runID), payload)
}
