package component

import (
	"fmt"
	"sync"
)

// Lifetime controls how a container service is instantiated.
type Lifetime int

const (
	// Singleton services are constructed once and shared.
	Singleton Lifetime = iota
	// Transient services are constructed on every resolution.
	Transient
)

// Constructor builds a service instance. The container is passed so a
// service can resolve its own dependencies.
type Constructor func(c *Container) (any, error)

type provider struct {
	lifetime Lifetime
	build    Constructor
}

// Container is a minimal service container with singleton and
// transient lifetimes. Components receive it at creation time and
// resolve the services their factory declared.
type Container struct {
	mu         sync.Mutex
	providers  map[string]provider
	singletons map[string]any
}

// NewContainer returns an empty container.
func NewContainer() *Container {
	return &Container{
		providers:  make(map[string]provider),
		singletons: make(map[string]any),
	}
}

// RegisterSingleton registers a lazily constructed shared service.
func (c *Container) RegisterSingleton(name string, build Constructor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = provider{lifetime: Singleton, build: build}
}

// RegisterTransient registers a per-resolution service.
func (c *Container) RegisterTransient(name string, build Constructor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = provider{lifetime: Transient, build: build}
}

// RegisterValue registers an already constructed singleton.
func (c *Container) RegisterValue(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = provider{lifetime: Singleton}
	c.singletons[name] = value
}

// Resolve returns the named service, constructing it if needed.
func (c *Container) Resolve(name string) (any, error) {
	c.mu.Lock()
	p, ok := c.providers[name]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrServiceNotFound, name)
	}
	if p.lifetime == Singleton {
		if v, built := c.singletons[name]; built {
			c.mu.Unlock()
			return v, nil
		}
	}
	c.mu.Unlock()

	v, err := p.build(c)
	if err != nil {
		return nil, fmt.Errorf("construct service %q: %w", name, err)
	}
	if p.lifetime == Singleton {
		c.mu.Lock()
		// Another caller may have built it concurrently; keep the first.
		if prev, built := c.singletons[name]; built {
			v = prev
		} else {
			c.singletons[name] = v
		}
		c.mu.Unlock()
	}
	return v, nil
}

// ResolveOptional returns the named service or nil when it is not
// registered or fails to construct. Components using optional services
// (the LLM service in particular) degrade gracefully on nil.
func (c *Container) ResolveOptional(name string) any {
	v, err := c.Resolve(name)
	if err != nil {
		return nil
	}
	return v
}

// Has reports whether a service name is registered.
func (c *Container) Has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.providers[name]
	return ok
}
