// Package notifier defines the notification dispatch port (interface) and
// the dispatcher registry.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotConfigured is returned when a dispatcher is not properly configured.
var ErrNotConfigured = errors.New("notifier: not configured")

// Notification is the payload delivered to a content stakeholder. How the
// recipient ID resolves to an address (mailbox, webhook mention) is the
// dispatcher's business.
type Notification struct {
	RecipientID string `json:"recipient_id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	Level       string `json:"level"`  // "info", "success", "warning", "error"
	Source      string `json:"source"` // e.g. "review.requested", "review.decided"
}

// Dispatcher is the port interface for delivering notifications.
type Dispatcher interface {
	// Name returns the unique identifier for this dispatcher (e.g. "email", "webhook").
	Name() string

	// Send delivers a notification to the recipient.
	Send(ctx context.Context, n Notification) error
}

// Factory is a constructor function that creates a new Dispatcher instance
// from its settings map.
type Factory func(settings map[string]string) (Dispatcher, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a dispatcher factory available by name. It is typically
// called from an init() function in the adapter package and panics on a
// duplicate name.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("notifier: duplicate registration for %q", name))
	}
	factories[name] = factory
}

// New creates a Dispatcher by name using the registered factory.
func New(name string, settings map[string]string) (Dispatcher, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("notifier: unknown dispatcher %q", name)
	}
	return factory(settings)
}

// Available returns the names of all registered dispatchers.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
