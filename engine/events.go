package engine

import (
	"time"

	records "github.com/medvertical/records"
)

// EventType identifies what an engine event describes.
type EventType string

const (
	// EventValidationCompleted fires after a result has been finalized.
	EventValidationCompleted EventType = "validationCompleted"

	// EventAspectCompleted fires once per aspect that ran, before the
	// completion event for the whole validation.
	EventAspectCompleted EventType = "aspectCompleted"

	// EventValidationError fires when the input could not be validated
	// at all, e.g. malformed JSON.
	EventValidationError EventType = "validationError"
)

// Event is published on the engine's bus as validations progress.
// Subscribers must not mutate the attached Result.
type Event struct {
	Type         EventType
	ResourceType string
	ResourceID   string

	// Aspect is set on aspectCompleted events.
	Aspect records.Aspect

	Result   *records.Result
	Duration time.Duration

	// Err is set on validationError events.
	Err error
}
