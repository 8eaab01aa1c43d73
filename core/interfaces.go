package core

import "context"

// Notifier is an interface to receive database notifications. Notify is called
// after a mutation has been committed, payload is the JSON representation of the
// affected object.
type Notifier interface {
	Notify(ctx context.Context, resource string, operation Operation, payload []byte) error
}

// NotifierFunc adapts a plain function to the Notifier interface
type NotifierFunc func(ctx context.Context, resource string, operation Operation, payload []byte) error

// Notify calls f
func (f NotifierFunc) Notify(ctx context.Context, resource string, operation Operation, payload []byte) error {
	return f(ctx, resource, operation, payload)
}
