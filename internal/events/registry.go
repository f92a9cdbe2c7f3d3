package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// run
	"run.started":   {},
	"run.completed": {},
	"run.failed":    {},

	// step
	"step.completed": {},

	// node
	"node.failed": {},

	// gate
	"gate.failed": {},

	// target
	"target.updated":  {},
	"target.rejected": {},

	// sink
	"sink.error": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
