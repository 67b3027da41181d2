package notify

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Lifecycle states. Untyped so they convert to statekit.StateID.
const (
	StateUnseen     = "unseen"
	StateOpen       = "open"
	StateIntegrated = "integrated"
)

const (
	eventObserve   = "observe"
	eventIntegrate = "integrate"
)

// LifecycleContext identifies the pull request a machine tracks.
type LifecycleContext struct {
	PullRequestID string
}

// Lifecycle tracks unseen -> open -> integrated for one pull request.
// Nothing leaves integrated, so the integration notification fires once.
type Lifecycle struct {
	interpreter *statekit.Interpreter[LifecycleContext]
}

// InitialState maps a stored snapshot to the lifecycle state it represents.
func InitialState(stored Snapshot, found bool) string {
	switch {
	case !found:
		return StateUnseen
	case stored.Commit.IsKnown():
		return StateIntegrated
	default:
		return StateOpen
	}
}

// NewLifecycle builds a machine starting in initialState.
func NewLifecycle(initialState string, pullRequestID string) (*Lifecycle, error) {
	builder := statekit.NewMachine[LifecycleContext]("pull-request-lifecycle").
		WithInitial(statekit.StateID(initialState)).
		WithContext(LifecycleContext{PullRequestID: pullRequestID})

	builder.State(StateUnseen).
		On(eventObserve).Target(StateOpen).
		Done()

	builder.State(StateOpen).
		On(eventObserve).Target(StateOpen).
		On(eventIntegrate).Target(StateIntegrated).
		Done()

	builder.State(StateIntegrated).
		On(eventObserve).Target(StateIntegrated).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build lifecycle machine for %s: %w", pullRequestID, err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &Lifecycle{interpreter: interpreter}, nil
}

// Current returns the current state name.
func (l *Lifecycle) Current() string {
	return string(l.interpreter.State().Value)
}

// Observe records that the pull request has been seen. It reports whether
// this moved it out of unseen.
func (l *Lifecycle) Observe() bool {
	return l.send(eventObserve)
}

// Integrate reports whether the pull request just became integrated. It is
// false when the machine was already integrated or has not been observed.
func (l *Lifecycle) Integrate() bool {
	return l.send(eventIntegrate)
}

func (l *Lifecycle) send(event string) bool {
	before := l.Current()
	l.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	return before != l.Current()
}
