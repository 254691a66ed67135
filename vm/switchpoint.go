package vm

import "sync/atomic"

// ---------------------------------------------------------------------------
// SwitchPoint: one-shot invalidation token
// ---------------------------------------------------------------------------

// SwitchPoint is a one-shot invalidation token. Guarded dispatches hold a
// set of switch points gathered at cache-build time; flipping any of them
// makes every dispatch built on it unusable. A flipped switch point never
// becomes valid again.
type SwitchPoint struct {
	invalidated atomic.Bool
}

// NewSwitchPoint creates a valid switch point.
func NewSwitchPoint() *SwitchPoint { return &SwitchPoint{} }

// Invalidate flips the token. Safe to call more than once.
func (sp *SwitchPoint) Invalidate() { sp.invalidated.Store(true) }

// Invalidated reports whether the token has been flipped.
func (sp *SwitchPoint) Invalidated() bool { return sp.invalidated.Load() }

// ---------------------------------------------------------------------------
// PropertySwitchPoints: per-owner token sets, copy-on-write
// ---------------------------------------------------------------------------

// PropertySwitchPoints maps property keys to the switch points registered
// against them. The structure is immutable: Add returns either the
// receiver (token already present) or a copy-on-write clone with the
// addition. Copying is required because the set may be concurrently read
// while being extended from another owner via prototype inheritance.
type PropertySwitchPoints struct {
	points map[string][]*SwitchPoint
}

// EmptySwitchPoints is the canonical empty set.
var EmptySwitchPoints = &PropertySwitchPoints{}

// Len returns the number of keys with registered tokens.
func (p *PropertySwitchPoints) Len() int {
	if p == nil {
		return 0
	}
	return len(p.points)
}

// Has reports whether the token is registered for the key.
func (p *PropertySwitchPoints) Has(key string, sp *SwitchPoint) bool {
	if p == nil {
		return false
	}
	for _, existing := range p.points[key] {
		if existing == sp {
			return true
		}
	}
	return false
}

// Add returns a set containing the token for the key. The receiver is
// returned unchanged if the token is already present.
func (p *PropertySwitchPoints) Add(key string, sp *SwitchPoint) *PropertySwitchPoints {
	if p == nil {
		p = EmptySwitchPoints
	}
	if p.Has(key, sp) {
		return p
	}

	clone := make(map[string][]*SwitchPoint, len(p.points)+1)
	for k, v := range p.points {
		clone[k] = v
	}
	// Copy the key's slice so the original set's backing array is never
	// visible through the clone.
	existing := clone[key]
	updated := make([]*SwitchPoint, len(existing)+1)
	copy(updated, existing)
	updated[len(existing)] = sp
	clone[key] = updated

	return &PropertySwitchPoints{points: clone}
}

// InvalidateProperty flips every token registered for the key and returns
// a set without the key's entry. Called when the property is created,
// deleted, or redefined on the owner.
func (p *PropertySwitchPoints) InvalidateProperty(key string) *PropertySwitchPoints {
	if p == nil || len(p.points) == 0 {
		return EmptySwitchPoints
	}
	tokens, ok := p.points[key]
	if !ok {
		return p
	}
	for _, sp := range tokens {
		sp.Invalidate()
	}

	if len(p.points) == 1 {
		return EmptySwitchPoints
	}
	clone := make(map[string][]*SwitchPoint, len(p.points)-1)
	for k, v := range p.points {
		if k != key {
			clone[k] = v
		}
	}
	return &PropertySwitchPoints{points: clone}
}

// InvalidateInherited flips the tokens of every key not locally defined
// by the owner (per hasOwn) and returns the empty set. A changed
// prototype chain invalidates every inherited-property assumption;
// clearing the whole set afterward is conservative but sound.
func (p *PropertySwitchPoints) InvalidateInherited(hasOwn func(key string) bool) *PropertySwitchPoints {
	if p == nil || len(p.points) == 0 {
		return EmptySwitchPoints
	}
	for key, tokens := range p.points {
		if hasOwn != nil && hasOwn(key) {
			continue
		}
		for _, sp := range tokens {
			sp.Invalidate()
		}
	}
	return EmptySwitchPoints
}

// TokensFor returns the tokens registered for the key. The returned slice
// must not be modified.
func (p *PropertySwitchPoints) TokensFor(key string) []*SwitchPoint {
	if p == nil {
		return nil
	}
	return p.points[key]
}
