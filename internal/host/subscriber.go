package host

// Subscriber is a consumer of host events, typically a websocket connection.
type Subscriber struct {
	ID     string
	Events chan *Event
}

// NewSubscriber constructs a subscriber with an initialized event channel.
func NewSubscriber(id string) *Subscriber {
	return &Subscriber{
		ID:     id,
		Events: make(chan *Event, 64),
	}
}
