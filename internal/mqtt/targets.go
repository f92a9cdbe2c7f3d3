package mqtt

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/mthorley/hydronet/internal/events"
	"github.com/mthorley/hydronet/internal/sim"
)

// Subscriber is the inbound broker surface the target feed needs.
// *Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, handler paho.MessageHandler) error
}

// TargetFeed receives operator release targets over MQTT and exposes
// the latest value per node. An active reservoir wired through Policy
// chases the fed target and falls back to its configured policy until
// the first message arrives.
type TargetFeed struct {
	sub    Subscriber
	prefix string

	mu      sync.RWMutex
	targets map[string]float64
}

// NewTargetFeed creates a target feed. Call Start to subscribe.
func NewTargetFeed(sub Subscriber, prefix string) *TargetFeed {
	return &TargetFeed{
		sub:     sub,
		prefix:  prefix,
		targets: make(map[string]float64),
	}
}

// Start subscribes to <prefix>/targets/+, one topic level per node
// name.
func (f *TargetFeed) Start() error {
	return f.sub.Subscribe(f.prefix+"/targets/+", f.handle)
}

func (f *TargetFeed) handle(_ paho.Client, msg paho.Message) {
	parts := strings.Split(msg.Topic(), "/")
	node := parts[len(parts)-1]

	target, ok := parseTarget(msg.Payload())
	if !ok {
		events.Emit("warning", "target.rejected", "unparseable target payload", map[string]interface{}{
			"node":    node,
			"topic":   msg.Topic(),
			"payload": string(msg.Payload()),
		})
		return
	}

	f.Set(node, target)
}

// Set records a release target for a node. The broker handler and the
// HTTP operator endpoint both land here.
func (f *TargetFeed) Set(node string, target float64) {
	f.mu.Lock()
	f.targets[node] = target
	f.mu.Unlock()

	events.Emit("info", "target.updated", "", map[string]interface{}{
		"node":   node,
		"target": target,
	})
}

// parseTarget accepts {"target": x} objects and bare numbers.
func parseTarget(payload []byte) (float64, bool) {
	var obj struct {
		Target *float64 `json:"target"`
	}
	if err := json.Unmarshal(payload, &obj); err == nil && obj.Target != nil {
		return *obj.Target, true
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Latest returns the most recent target for a node, if one arrived.
func (f *TargetFeed) Latest(node string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.targets[node]
	return v, ok
}

// Nodes returns the nodes a target has arrived for.
func (f *TargetFeed) Nodes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	nodes := make([]string, 0, len(f.targets))
	for node := range f.targets {
		nodes = append(nodes, node)
	}
	return nodes
}

// Clear drops all received targets.
func (f *TargetFeed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = make(map[string]float64)
}

// Attach reroutes every active reservoir in the node set through the
// feed, so targets arriving mid-run steer later steps. Passive
// reservoirs are left alone.
func (f *TargetFeed) Attach(nodes []sim.Node) {
	for _, n := range nodes {
		st, ok := n.(*sim.Storage)
		if !ok {
			continue
		}
		r := st.Reservoir()
		if r.Mode() != sim.Active {
			continue
		}
		r.SetPolicy(f.Policy(st.Name(), r.Policy()))
	}
}

// Policy wraps the feed as an operating policy for one node: the fed
// target when one has arrived, otherwise the fallback. A nil fallback
// targets zero.
func (f *TargetFeed) Policy(node string, fallback sim.OperatingPolicy) sim.OperatingPolicy {
	return sim.TargetFunc(func(step int, stored, inflow, capacity float64) float64 {
		if v, ok := f.Latest(node); ok {
			return v
		}
		if fallback != nil {
			return fallback.Target(step, stored, inflow, capacity)
		}
		return 0
	})
}
