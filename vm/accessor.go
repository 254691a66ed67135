package vm

import "sync"

// AccessorPair holds a property's getter and setter callables out of line
// from the property descriptor. The descriptor only records the pair's
// storage slot, so the pair's identity, and any cached dispatch built
// against it, stays valid across getter/setter reassignment: only the
// pair's contents change.
type AccessorPair struct {
	mu     sync.Mutex
	getter Callable
	setter Callable
}

// NewAccessorPair creates a pair with the given callables. Either may be
// nil.
func NewAccessorPair(getter, setter Callable) *AccessorPair {
	return &AccessorPair{getter: getter, setter: setter}
}

// Getter returns the current getter, or nil.
func (p *AccessorPair) Getter() Callable {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getter
}

// Setter returns the current setter, or nil.
func (p *AccessorPair) Setter() Callable {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setter
}

// SetGetter reassigns the getter. The pair's identity is unchanged, so
// cached dispatches built against the descriptor remain valid.
func (p *AccessorPair) SetGetter(fn Callable) {
	p.mu.Lock()
	p.getter = fn
	p.mu.Unlock()
}

// SetSetter reassigns the setter.
func (p *AccessorPair) SetSetter(fn Callable) {
	p.mu.Lock()
	p.setter = fn
	p.mu.Unlock()
}
