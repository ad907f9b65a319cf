package bus

import "github.com/petal-labs/tooldispatch/tool"

// Observer publishes tool invocation outcomes onto an EventBus.
type Observer struct {
	bus EventBus
}

// NewObserver returns a tool.Observer backed by bus.
func NewObserver(bus EventBus) *Observer {
	return &Observer{bus: bus}
}

// ObserveLoad is a no-op; only invocations are journaled.
func (o *Observer) ObserveLoad(tool.LoadObservation) {}

// ObserveInvoke publishes one invocation event.
func (o *Observer) ObserveInvoke(observation tool.InvokeObservation) {
	if o == nil || o.bus == nil {
		return
	}
	event := NewEvent(observation.ToolName)
	event.RequestID = observation.RequestID
	event.Origin = string(observation.Origin)
	event.Success = observation.Success
	event.ErrorCode = observation.ErrorCode
	event.Error = observation.Error
	event.DurationMS = observation.DurationMS
	o.bus.Publish(event)
}

var _ tool.Observer = (*Observer)(nil)
