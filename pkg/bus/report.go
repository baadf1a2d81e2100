package bus

import (
	"time"

	"github.com/m-mizutani/noctua/pkg/model"
)

// HandlerOutcome records a single handler invocation during notification
// fan-out.
type HandlerOutcome struct {
	ContextID model.ContextID
	Err       error
	Elapsed   time.Duration
}

// DeliveryReport aggregates the outcome of one notification delivery across
// all subscribers.
type DeliveryReport struct {
	MessageID model.MessageID
	Type      model.MessageType
	Delivered int
	Failed    int
	Outcomes  []HandlerOutcome
}

// Succeeded reports whether every handler completed without error
func (r *DeliveryReport) Succeeded() bool {
	return r.Failed == 0
}
