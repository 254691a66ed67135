package vm

// Guarded dispatch for property access.
//
// A dispatch decision is a fast path (holder + storage slot) paired with
// a cheap validity check: an identity check on the receiver's shape plus
// a conjunction of "not yet invalidated" checks over the switch points
// gathered at build time. A dispatch whose guard reports invalid must be
// discarded and relinked from scratch, never silently reused.
//
// Per-site caches progress Empty -> Monomorphic -> Polymorphic ->
// Megamorphic; ~90% of sites see a single shape, so the monomorphic
// check is the path that matters.

// MaxPICEntries is the maximum number of entries in a polymorphic cache.
const MaxPICEntries = 6

// CacheState represents the current state of a dispatch cache.
type CacheState uint8

const (
	CacheEmpty       CacheState = iota // No cached dispatch yet
	CacheMonomorphic                   // Single shape cached
	CachePolymorphic                   // 2-6 shapes cached
	CacheMegamorphic                   // Too many shapes, always full lookup
)

// ---------------------------------------------------------------------------
// GuardedDispatch
// ---------------------------------------------------------------------------

// GuardedDispatch is one cached dispatch decision for a (shape, key)
// pair. When the property is the receiver's own, the slot is read off
// whichever receiver passes the shape check: shape identity encodes the
// property layout, so every matching receiver stores the key in the
// same slot. Prototype holders are pinned by pointer; their in-place
// writes are visible through the captured object.
type GuardedDispatch struct {
	shape  *Shape
	points []*SwitchPoint
	holder *ScriptObject
	prop   Property
	own    bool // holder position is the receiver itself
}

// Valid reports whether the decision may still be used for receiver.
func (g *GuardedDispatch) Valid(receiver *ScriptObject) bool {
	if receiver.Shape() != g.shape {
		return false
	}
	for _, sp := range g.points {
		if sp.Invalidated() {
			return false
		}
	}
	return true
}

// Get runs the fast path. Caller must have checked Valid.
func (g *GuardedDispatch) Get(ctx *Context, receiver *ScriptObject) (Value, error) {
	if g.holder == nil {
		return Undefined, nil
	}
	holder := g.holder
	if g.own {
		holder = receiver
	}
	if g.prop.Accessor {
		holder.mu.Lock()
		pair := holder.pairs[g.prop.Slot]
		holder.mu.Unlock()
		getter := pair.Getter()
		if getter == nil {
			return Undefined, nil
		}
		return getter.Call(ctx, FromObject(receiver), nil)
	}
	holder.mu.Lock()
	v := holder.slots[g.prop.Slot]
	holder.mu.Unlock()
	return v, nil
}

// Set runs the fast path for assignment. Only valid when the decision
// resolved an own data property or an accessor with a setter.
func (g *GuardedDispatch) Set(ctx *Context, receiver *ScriptObject, v Value) error {
	if g.holder == nil {
		return NewTypeError("cannot assign through missing property")
	}
	holder := g.holder
	if g.own {
		holder = receiver
	}
	if g.prop.Accessor {
		holder.mu.Lock()
		pair := holder.pairs[g.prop.Slot]
		holder.mu.Unlock()
		setter := pair.Setter()
		if setter == nil {
			return NewTypeError("property has no setter")
		}
		_, err := setter.Call(ctx, FromObject(receiver), []Value{v})
		return err
	}
	holder.mu.Lock()
	holder.slots[g.prop.Slot] = v
	holder.mu.Unlock()
	return nil
}

// BuildDispatch links a dispatch decision for reading key from receiver.
// A switch point is registered for the key on every object from the
// receiver through the holder (and on every chain element when the
// property is absent), so that creating, deleting, or redefining the key
// anywhere on the observed chain, or swapping a prototype, flips the
// guard.
func BuildDispatch(receiver *ScriptObject, key string) *GuardedDispatch {
	g := &GuardedDispatch{shape: receiver.Shape()}

	for cur := receiver; cur != nil; cur = cur.Proto() {
		sp := NewSwitchPoint()
		cur.AddSwitchPoint(key, sp)
		g.points = append(g.points, sp)

		cur.mu.Lock()
		prop, ok := cur.props[key]
		cur.mu.Unlock()
		if ok {
			g.holder = cur
			g.prop = prop
			g.own = cur == receiver
			// The receiver's own properties are covered by the shape
			// check alone, but the token is cheap and covers deletes
			// that recycle a shape.
			return g
		}
	}
	return g
}

// ---------------------------------------------------------------------------
// DispatchCache: per-site inline cache over shapes
// ---------------------------------------------------------------------------

// DispatchCache is the cache state for a single property-access site.
type DispatchCache struct {
	State   CacheState
	Entries [MaxPICEntries]*GuardedDispatch
	Count   int

	// Statistics for profiling
	Hits    uint64
	Misses  uint64
	Relinks uint64
}

// Lookup returns a valid cached dispatch for the receiver, or nil. An
// entry whose guard reports invalid is discarded on the spot.
func (dc *DispatchCache) Lookup(receiver *ScriptObject) *GuardedDispatch {
	switch dc.State {
	case CacheMonomorphic, CachePolymorphic:
		shape := receiver.Shape()
		for i := 0; i < dc.Count; i++ {
			g := dc.Entries[i]
			if g.shape != shape {
				continue
			}
			if g.Valid(receiver) {
				dc.Hits++
				return g
			}
			dc.evict(i)
			dc.Relinks++
			break
		}

	case CacheMegamorphic, CacheEmpty:
		// Always miss
	}

	dc.Misses++
	return nil
}

// Update records a freshly linked dispatch, potentially upgrading the
// cache state.
func (dc *DispatchCache) Update(g *GuardedDispatch) {
	if g == nil {
		return
	}

	switch dc.State {
	case CacheEmpty:
		dc.State = CacheMonomorphic
		dc.Entries[0] = g
		dc.Count = 1

	case CacheMonomorphic:
		if dc.Entries[0].shape == g.shape {
			dc.Entries[0] = g
			return
		}
		dc.State = CachePolymorphic
		dc.Entries[1] = g
		dc.Count = 2

	case CachePolymorphic:
		for i := 0; i < dc.Count; i++ {
			if dc.Entries[i].shape == g.shape {
				dc.Entries[i] = g
				return
			}
		}
		if dc.Count < MaxPICEntries {
			dc.Entries[dc.Count] = g
			dc.Count++
		} else {
			dc.State = CacheMegamorphic
			for i := range dc.Entries {
				dc.Entries[i] = nil
			}
			dc.Count = 0
		}

	case CacheMegamorphic:
		// Stay megamorphic
	}
}

// evict removes the entry at index i, downgrading state as needed.
func (dc *DispatchCache) evict(i int) {
	copy(dc.Entries[i:], dc.Entries[i+1:dc.Count])
	dc.Count--
	dc.Entries[dc.Count] = nil
	switch {
	case dc.Count == 0:
		dc.State = CacheEmpty
	case dc.Count == 1 && dc.State == CachePolymorphic:
		dc.State = CacheMonomorphic
	}
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (dc *DispatchCache) HitRate() float64 {
	total := dc.Hits + dc.Misses
	if total == 0 {
		return 0
	}
	return float64(dc.Hits) * 100 / float64(total)
}

// ---------------------------------------------------------------------------
// Cached property access
// ---------------------------------------------------------------------------

// GetProp reads receiver[key] through the site's dispatch cache,
// relinking on miss or on a guard that has gone invalid.
func GetProp(ctx *Context, site *DispatchCache, receiver *ScriptObject, key string) (Value, error) {
	if g := site.Lookup(receiver); g != nil {
		return g.Get(ctx, receiver)
	}
	g := BuildDispatch(receiver, key)
	site.Update(g)
	return g.Get(ctx, receiver)
}

// SetProp writes receiver[key] through the site's dispatch cache. Only
// decisions that resolved an own data property or a settable accessor
// are cacheable for assignment; everything else takes the generic path.
func SetProp(ctx *Context, site *DispatchCache, receiver *ScriptObject, key string, v Value) error {
	if g := site.Lookup(receiver); g != nil && g.own {
		return g.Set(ctx, receiver, v)
	}
	if err := receiver.Set(ctx, key, v); err != nil {
		return err
	}
	g := BuildDispatch(receiver, key)
	if g.own {
		site.Update(g)
	}
	return nil
}
