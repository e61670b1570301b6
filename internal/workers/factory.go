package workers

import (
	"fmt"
	"sort"
	"sync"
)

/*
Factory builds a worker's actions by name. Constructors are registered during
wiring; Create is called when the worker assembles its pipeline. Registering
the same name twice with a different constructor is a wiring bug and is
reported as an error rather than silently replaced.
*/
type Factory[T any] struct {
	mu           sync.RWMutex
	constructors map[string]func() Action[T]
}

func NewFactory[T any]() *Factory[T] {
	return &Factory[T]{constructors: make(map[string]func() Action[T])}
}

func (f *Factory[T]) Register(name string, ctor func() Action[T]) error {
	if name == "" {
		return fmt.Errorf("action name is empty")
	}
	if ctor == nil {
		return fmt.Errorf("constructor for action %q is nil", name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.constructors[name]; exists {
		return fmt.Errorf("action %q already registered", name)
	}
	f.constructors[name] = ctor
	return nil
}

func (f *Factory[T]) Create(name string) (Action[T], error) {
	f.mu.RLock()
	ctor, ok := f.constructors[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown action %q", name)
	}
	return ctor(), nil
}

func (f *Factory[T]) Has(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.constructors[name]
	return ok
}

func (f *Factory[T]) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates the named actions in order, failing on the first unknown
// name.
func (f *Factory[T]) Build(names ...string) ([]Action[T], error) {
	actions := make([]Action[T], 0, len(names))
	for _, name := range names {
		a, err := f.Create(name)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}
