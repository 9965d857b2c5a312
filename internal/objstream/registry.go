package objstream

import (
	"fmt"
	"sync"
)

// Serializable is implemented by values that can be written as object records.
type Serializable interface {
	StreamClass() (name string, serialVersion int64)
}

// Class binds a class name to the serial version the local code expects and a
// constructor returning a pointer the record body is decoded into.
type Class struct {
	Name          string
	SerialVersion int64
	New           func() any
}

// Registry holds the classes a Decoder is able to construct.
// It is safe for concurrent use by multiple goroutines.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]Class
}

// NewRegistry returns a Registry populated with classes.
func NewRegistry(classes ...Class) (*Registry, error) {
	r := &Registry{classes: make(map[string]Class, len(classes))}
	for _, c := range classes {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds c to the registry. Names must be unique.
func (r *Registry) Register(c Class) error {
	if c.Name == "" {
		return fmt.Errorf("objstream: class name is required")
	}
	if c.New == nil {
		return fmt.Errorf("objstream: class %s has no constructor", c.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classes[c.Name]; ok {
		return fmt.Errorf("objstream: class %s already registered", c.Name)
	}
	r.classes[c.Name] = c
	return nil
}

// Lookup returns the class registered under name.
func (r *Registry) Lookup(name string) (Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c, ok
}
