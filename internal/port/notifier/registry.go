package notifier

import (
	"fmt"
	"slices"
	"sync"
)

// Factory builds a Notifier from its channel settings (webhook_url,
// smtp_host, ...). Adapters register one from init.
type Factory func(settings map[string]string) (Notifier, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a notifier factory available by name. Registering the
// same name twice panics.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("notifier: duplicate registration for %q", name))
	}
	factories[name] = factory
}

// New creates a Notifier of the named type.
func New(name string, settings map[string]string) (Notifier, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("notifier: unknown type %q (available: %v)", name, Available())
	}
	n, err := factory(settings)
	if err != nil {
		return nil, fmt.Errorf("notifier %s: %w", name, err)
	}
	return n, nil
}

// Available returns the registered notifier types, sorted.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
