package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// project
	"project.started": {},
	"project.stopped": {},

	// trigger
	"trigger.fired":     {},
	"trigger.started":   {},
	"trigger.cancelled": {},
	"trigger.completed": {},
	"trigger.failed":    {},

	// timer
	"timer.reset": {},

	// sound
	"sound.requested": {},
	"sound.started":   {},
	"sound.stopped":   {},
	"sound.ended":     {},
	"sound.failed":    {},

	// input
	"input.key":        {},
	"input.green_flag": {},
	"input.broadcast":  {},

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
