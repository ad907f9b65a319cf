package tool

// LoadObservation captures one unit load outcome.
type LoadObservation struct {
	ToolName string
	Path     string
	Origin   Origin
	Success  bool
	Error    string
}

// InvokeObservation captures one handler invocation outcome.
type InvokeObservation struct {
	RequestID  string
	ToolName   string
	Origin     Origin
	DurationMS int64
	Success    bool
	ErrorCode  string
	Error      string
}

// Observer receives tool-level observability events.
type Observer interface {
	ObserveLoad(observation LoadObservation)
	ObserveInvoke(observation InvokeObservation)
}

// NoopObserver discards all observations.
type NoopObserver struct{}

func (NoopObserver) ObserveLoad(LoadObservation)     {}
func (NoopObserver) ObserveInvoke(InvokeObservation) {}

// Observers fans observations out to every non-nil member.
type Observers []Observer

// ObserveLoad forwards to each observer in order.
func (o Observers) ObserveLoad(observation LoadObservation) {
	for _, observer := range o {
		if observer != nil {
			observer.ObserveLoad(observation)
		}
	}
}

// ObserveInvoke forwards to each observer in order.
func (o Observers) ObserveInvoke(observation InvokeObservation) {
	for _, observer := range o {
		if observer != nil {
			observer.ObserveInvoke(observation)
		}
	}
}

var (
	_ Observer = NoopObserver{}
	_ Observer = Observers(nil)
)
