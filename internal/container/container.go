// Package container implements the dependency-injection container and
// per-session lifecycle manager that scope the voice engine's provider
// instances and background tasks.
//
// Three scopes are supported: singleton (process-wide, built once),
// session (one instance per session id, cached under a composite
// "session_id:name" key), and transient (constructed fresh on every
// Resolve call). Session-scoped entries are torn down together by
// [Container.CleanupSession] when a session ends, mirroring the
// SessionContext+LifecycleManager pairing they back.
package container

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrNotRegistered is returned when resolving a name with no registered
// factory.
type ErrNotRegistered struct {
	Name string
}

func (e *ErrNotRegistered) Error() string {
	return fmt.Sprintf("container: no factory registered for %q", e.Name)
}

// singletonFactory builds a process-wide instance on first resolve.
type singletonFactory func() (any, error)

// sessionFactory builds a session-scoped instance given a session id.
type sessionFactory func(sessionID string) (any, error)

// transientFactory builds a fresh instance on every resolve, given
// caller-supplied arguments.
type transientFactory func(args ...any) (any, error)

// Container is the DI container. The zero value is not usable; use [New].
//
// Container is safe for concurrent use.
type Container struct {
	mu sync.RWMutex

	singletonFactories map[string]singletonFactory
	singletonInstances map[string]any

	sessionFactories map[string]sessionFactory
	sessionInstances map[string]any // key: "session_id:name"

	transientFactories map[string]transientFactory

	// group collapses concurrent first-resolves of the same session-scoped
	// key into a single factory call, so two goroutines racing to resolve
	// e.g. "s1:stt" construct exactly one STT session.
	group singleflight.Group
}

// New creates an empty, ready-to-use Container.
func New() *Container {
	return &Container{
		singletonFactories: make(map[string]singletonFactory),
		singletonInstances: make(map[string]any),
		sessionFactories:   make(map[string]sessionFactory),
		sessionInstances:   make(map[string]any),
		transientFactories: make(map[string]transientFactory),
	}
}

// RegisterSingleton registers a process-wide factory under name. The factory
// runs at most once; subsequent resolves return the cached instance.
func (c *Container) RegisterSingleton(name string, factory func() (any, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.singletonFactories[name] = factory
}

// RegisterSession registers a per-session factory under name. The factory
// runs at most once per session id; subsequent resolves for the same
// session id return the cached instance.
func (c *Container) RegisterSession(name string, factory func(sessionID string) (any, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionFactories[name] = factory
}

// RegisterTransient registers a factory under name that runs fresh on every
// ResolveTransient call.
func (c *Container) RegisterTransient(name string, factory func(args ...any) (any, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transientFactories[name] = factory
}

// ResolveSingleton returns the process-wide instance registered under name,
// constructing it on first use.
func (c *Container) ResolveSingleton(name string) (any, error) {
	c.mu.RLock()
	if inst, ok := c.singletonInstances[name]; ok {
		c.mu.RUnlock()
		return inst, nil
	}
	factory, ok := c.singletonFactories[name]
	c.mu.RUnlock()
	if !ok {
		return nil, &ErrNotRegistered{Name: name}
	}

	v, err, _ := c.group.Do("singleton:"+name, func() (any, error) {
		c.mu.RLock()
		if inst, ok := c.singletonInstances[name]; ok {
			c.mu.RUnlock()
			return inst, nil
		}
		c.mu.RUnlock()
		inst, err := factory()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.singletonInstances[name] = inst
		c.mu.Unlock()
		return inst, nil
	})
	return v, err
}

// ResolveSession returns the session-scoped instance registered under name
// for sessionID, constructing it on first use for that session. Concurrent
// first-resolves for the same (sessionID, name) pair are collapsed into one
// factory call.
func (c *Container) ResolveSession(sessionID, name string) (any, error) {
	key := sessionID + ":" + name

	c.mu.RLock()
	if inst, ok := c.sessionInstances[key]; ok {
		c.mu.RUnlock()
		return inst, nil
	}
	factory, ok := c.sessionFactories[name]
	c.mu.RUnlock()
	if !ok {
		return nil, &ErrNotRegistered{Name: name}
	}

	v, err, _ := c.group.Do("session:"+key, func() (any, error) {
		c.mu.RLock()
		if inst, ok := c.sessionInstances[key]; ok {
			c.mu.RUnlock()
			return inst, nil
		}
		c.mu.RUnlock()
		inst, err := factory(sessionID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.sessionInstances[key] = inst
		c.mu.Unlock()
		return inst, nil
	})
	return v, err
}

// ResolveTransient constructs and returns a fresh instance from the factory
// registered under name, passing args through unchanged.
func (c *Container) ResolveTransient(name string, args ...any) (any, error) {
	c.mu.RLock()
	factory, ok := c.transientFactories[name]
	c.mu.RUnlock()
	if !ok {
		return nil, &ErrNotRegistered{Name: name}
	}
	return factory(args...)
}

// UpdateSessionService atomically replaces the cached session-scoped
// instance for (sessionID, name), supporting mid-session hot-swap (e.g.
// switching a session's ASR provider after a circuit breaker trips). The
// entry is created even if nothing had resolved it yet.
func (c *Container) UpdateSessionService(sessionID, name string, instance any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionInstances[sessionID+":"+name] = instance
}

// CleanupSession removes every cached session-scoped entry keyed by
// sessionID, regardless of name. It does not close or otherwise release the
// removed instances; callers that need teardown semantics should do so via
// the session's [LifecycleManager] before calling CleanupSession.
func (c *Container) CleanupSession(sessionID string) {
	prefix := sessionID + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.sessionInstances {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.sessionInstances, key)
		}
	}
}

// Resolve is a type-safe wrapper around [Container.ResolveSingleton] that
// fails with a descriptive error if the resolved instance does not assert to
// T.
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	v, err := c.ResolveSingleton(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("container: %q resolved to %T, want %T", name, v, zero)
	}
	return t, nil
}

// ResolveSessionT is a type-safe wrapper around [Container.ResolveSession].
func ResolveSessionT[T any](c *Container, sessionID, name string) (T, error) {
	var zero T
	v, err := c.ResolveSession(sessionID, name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("container: %q resolved to %T, want %T", name, v, zero)
	}
	return t, nil
}
