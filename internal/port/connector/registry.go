package connector

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownChannel is returned by New for an unregistered name.
var ErrUnknownChannel = errors.New("unknown channel")

// Factory creates a Transformer.
type Factory func(deps Deps) (Transformer, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a channel factory available by name.
// It is typically called from an init() function in the adapter package.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("connector: duplicate registration for %q", name))
	}
	factories[name] = factory
}

// New creates the Transformer registered under name.
func New(name string, deps Deps) (Transformer, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("connector: %w %q", ErrUnknownChannel, name)
	}
	return factory(deps)
}

// Available returns the registered channel names, sorted.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
