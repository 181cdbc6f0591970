package eventbus

// Publisher is what services need from a bus.
type Publisher interface {
	Publish(topic string, args ...interface{})
	PublishAsync(topic string, args ...interface{}) bool
}

// Subscriber is what handlers need from a bus.
type Subscriber interface {
	Subscribe(topic string, fn interface{}) error
	Unsubscribe(topic string, handler interface{}) error
}
