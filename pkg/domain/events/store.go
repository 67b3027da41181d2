package events

// EventStore provides persistence for dispatched events.
type EventStore interface {
	// Append adds a new event to the store, chaining it to the previous event.
	Append(event *BaseEvent) error

	// LoadAll returns all events in the order they were appended.
	LoadAll() ([]*BaseEvent, error)

	// LoadByAggregate returns the events of one pull request.
	LoadByAggregate(aggregateID string) ([]*BaseEvent, error)
}
