package mqtt

import (
	"encoding/json"
	"testing"
)

type fakePublisher struct {
	connected bool
	topics    []string
	payloads  [][]byte
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func TestRecordPublisherTopicAndPayload(t *testing.T) {
	fake := &fakePublisher{connected: true}
	p := NewRecordPublisher(fake, "hydronet", "run-1")

	err := p.Record(3, "dam", []string{"inflow", "outlet@1", "spilled", "storage"}, []float64{2, 1, 0, 1})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if len(fake.topics) != 1 || fake.topics[0] != "hydronet/runs/run-1/nodes/dam" {
		t.Fatalf("unexpected topics: %v", fake.topics)
	}

	var msg struct {
		Run    string             `json:"run"`
		Node   string             `json:"node"`
		Step   int                `json:"step"`
		Record map[string]float64 `json:"record"`
	}
	if err := json.Unmarshal(fake.payloads[0], &msg); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if msg.Run != "run-1" || msg.Node != "dam" || msg.Step != 3 {
		t.Errorf("unexpected envelope: %+v", msg)
	}
	if msg.Record["inflow"] != 2 || msg.Record["storage"] != 1 {
		t.Errorf("unexpected record: %v", msg.Record)
	}
}

func TestRecordPublisherRequiresConnection(t *testing.T) {
	fake := &fakePublisher{connected: false}
	p := NewRecordPublisher(fake, "hydronet", "run-1")

	if err := p.Record(0, "dam", []string{"inflow"}, []float64{1}); err == nil {
		t.Error("expected error when not connected")
	}
	if len(fake.topics) != 0 {
		t.Error("nothing should be published while disconnected")
	}
}

func TestPublishStatus(t *testing.T) {
	fake := &fakePublisher{connected: true}
	p := NewRecordPublisher(fake, "hydronet", "run-1")

	if err := p.PublishStatus("complete", 10); err != nil {
		t.Fatalf("PublishStatus failed: %v", err)
	}
	if fake.topics[0] != "hydronet/runs/run-1/status" {
		t.Errorf("unexpected status topic: %s", fake.topics[0])
	}

	var msg struct {
		Run   string `json:"run"`
		State string `json:"state"`
		Steps int    `json:"steps"`
	}
	if err := json.Unmarshal(fake.payloads[0], &msg); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if msg.State != "complete" || msg.Steps != 10 {
		t.Errorf("unexpected status: %+v", msg)
	}
}
