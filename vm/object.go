package vm

import "sync"

// ---------------------------------------------------------------------------
// ScriptObject: a dynamically-shaped object
// ---------------------------------------------------------------------------

// Property describes where a named property's storage lives. For data
// properties Slot indexes the object's slot array; for accessor
// properties Slot indexes the object's out-of-line accessor pairs. The
// descriptor's identity stays valid across getter/setter reassignment;
// only the pair's contents change.
type Property struct {
	Slot     int
	Accessor bool
}

// ScriptObject is a heap-allocated object whose layout is described by an
// immutable Shape. Structural changes (property creation, deletion,
// accessor redefinition) replace the shape pointer and flip the
// invalidation tokens registered against the affected keys.
type ScriptObject struct {
	mu sync.Mutex

	shape *Shape
	slots []Value
	props map[string]Property
	pairs []*AccessorPair
	proto *ScriptObject

	// elems holds array element storage for array-like objects.
	elems *ElementStorage

	// sharedMarker is the synthetic shared-layout marker installed by a
	// promotion in the allocation cache; invalidated when this object
	// (acting as a prototype) replaces its own shape.
	sharedMarker *SharedLayout

	// switchPoints is the owner's invalidation token set. Replaced, never
	// mutated: readers snapshot the pointer under the owner's lock.
	switchPoints *PropertySwitchPoints
}

// NewObject creates an empty object with the canonical root shape.
func NewObject(ctx *Context, proto *ScriptObject) *ScriptObject {
	return &ScriptObject{
		shape:        ctx.Shapes.Root(ctx.SlotMode()),
		props:        make(map[string]Property),
		proto:        proto,
		switchPoints: EmptySwitchPoints,
	}
}

// NewObjectWithShape creates an object using a precomputed layout, as
// handed out by an allocation site. The property map is rebuilt from the
// shape's transition path so the object defines exactly the properties
// its shape describes.
func NewObjectWithShape(shape *Shape, proto *ScriptObject) *ScriptObject {
	keys := shape.Keys()
	props := make(map[string]Property, len(keys))
	for i, k := range keys {
		props[k] = Property{Slot: i}
	}
	return &ScriptObject{
		shape:        shape,
		slots:        make([]Value, shape.SlotCount()),
		props:        props,
		proto:        proto,
		switchPoints: EmptySwitchPoints,
	}
}

// Shape returns the object's current layout descriptor.
func (o *ScriptObject) Shape() *Shape {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shape
}

// Proto returns the object's prototype, or nil.
func (o *ScriptObject) Proto() *ScriptObject {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.proto
}

// HasOwn reports whether the object itself defines the property.
func (o *ScriptObject) HasOwn(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.props[name]
	return ok
}

// replaceShapeLocked installs a new shape and invalidates the shared
// sub-layout marker, if any: a prototype that replaced its own shape no
// longer reflects the layout that was shared. Caller holds o.mu.
func (o *ScriptObject) replaceShapeLocked(s *Shape) {
	o.shape = s
	if o.sharedMarker != nil {
		o.sharedMarker.Invalidate()
		o.sharedMarker = nil
	}
}

// ---------------------------------------------------------------------------
// Property access
// ---------------------------------------------------------------------------

// GetOwn returns a data property's value without walking the prototype
// chain. Accessor properties report found=false here; use Get.
func (o *ScriptObject) GetOwn(name string) (Value, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	prop, ok := o.props[name]
	if !ok || prop.Accessor {
		return Undefined, false
	}
	return o.slots[prop.Slot], true
}

// Get resolves the property along the prototype chain, invoking getters.
func (o *ScriptObject) Get(ctx *Context, name string) (Value, bool, error) {
	for cur := o; cur != nil; cur = cur.Proto() {
		cur.mu.Lock()
		prop, ok := cur.props[name]
		if !ok {
			cur.mu.Unlock()
			continue
		}
		if prop.Accessor {
			pair := cur.pairs[prop.Slot]
			cur.mu.Unlock()
			getter := pair.Getter()
			if getter == nil {
				return Undefined, true, nil
			}
			v, err := getter.Call(ctx, FromObject(o), nil)
			return v, true, err
		}
		v := cur.slots[prop.Slot]
		cur.mu.Unlock()
		return v, true, nil
	}
	return Undefined, false, nil
}

// Set assigns the property. An own data property is written in place (no
// invalidation: the descriptor is unchanged); an own accessor property
// invokes its setter; otherwise the property is created on the object.
func (o *ScriptObject) Set(ctx *Context, name string, v Value) error {
	o.mu.Lock()
	if prop, ok := o.props[name]; ok {
		if prop.Accessor {
			pair := o.pairs[prop.Slot]
			o.mu.Unlock()
			setter := pair.Setter()
			if setter == nil {
				return NewTypeError("property %q has no setter", name)
			}
			_, err := setter.Call(ctx, FromObject(o), []Value{v})
			return err
		}
		o.slots[prop.Slot] = v
		o.mu.Unlock()
		return nil
	}
	o.defineLocked(ctx, name, v)
	o.mu.Unlock()
	return nil
}

// DefineOwn creates or overwrites a data property on the object itself.
func (o *ScriptObject) DefineOwn(ctx *Context, name string, v Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if prop, ok := o.props[name]; ok && !prop.Accessor {
		o.slots[prop.Slot] = v
		return
	}
	o.defineLocked(ctx, name, v)
}

// defineLocked adds a new data property: the object grows a slot, takes
// a new shape, and every token registered for the key flips (the
// property was created). Caller holds o.mu.
func (o *ScriptObject) defineLocked(ctx *Context, name string, v Value) {
	if prop, ok := o.props[name]; ok && prop.Accessor {
		// Redefinition from accessor to data property.
		delete(o.props, name)
	}
	slot := len(o.slots)
	o.slots = append(o.slots, v)
	o.props[name] = Property{Slot: slot}
	o.replaceShapeLocked(ctx.Shapes.Transition(o.shape, name))
	o.switchPoints = o.switchPoints.InvalidateProperty(name)
}

// DefineAccessor creates or redefines an accessor property. The pair is
// stored out of line; redefinition (data → accessor, or replacing the
// pair itself) invalidates the key's tokens and takes a new shape.
// Reassigning the getter or setter of an existing pair does not go
// through here; use the pair's SetGetter/SetSetter, which leave cached
// dispatches valid.
func (o *ScriptObject) DefineAccessor(ctx *Context, name string, getter, setter Callable) *AccessorPair {
	o.mu.Lock()
	defer o.mu.Unlock()

	pair := NewAccessorPair(getter, setter)
	idx := len(o.pairs)
	o.pairs = append(o.pairs, pair)
	o.props[name] = Property{Slot: idx, Accessor: true}
	o.replaceShapeLocked(ctx.Shapes.Private(o.shape))
	o.switchPoints = o.switchPoints.InvalidateProperty(name)
	return pair
}

// AccessorPairFor returns the out-of-line pair of an accessor property.
func (o *ScriptObject) AccessorPairFor(name string) *AccessorPair {
	o.mu.Lock()
	defer o.mu.Unlock()
	prop, ok := o.props[name]
	if !ok || !prop.Accessor {
		return nil
	}
	return o.pairs[prop.Slot]
}

// Delete removes an own property. The slot becomes a hole; the object
// takes a fresh private shape so stale layout assumptions are detectable
// by identity, and the key's tokens flip.
func (o *ScriptObject) Delete(ctx *Context, name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	prop, ok := o.props[name]
	if !ok {
		return false
	}
	if !prop.Accessor {
		o.slots[prop.Slot] = Undefined
	}
	delete(o.props, name)
	o.replaceShapeLocked(ctx.Shapes.Private(o.shape))
	o.switchPoints = o.switchPoints.InvalidateProperty(name)
	return true
}

// SetProto replaces the prototype. Every inherited-property assumption
// registered against this owner is invalidated in bulk: tokens for keys
// not locally defined flip, and the set is cleared.
func (o *ScriptObject) SetProto(ctx *Context, proto *ScriptObject) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.proto = proto
	o.switchPoints = o.switchPoints.InvalidateInherited(func(key string) bool {
		_, ok := o.props[key]
		return ok
	})
}

// ---------------------------------------------------------------------------
// Invalidation token registration
// ---------------------------------------------------------------------------

// AddSwitchPoint registers a token for the key on this owner's set.
func (o *ScriptObject) AddSwitchPoint(name string, sp *SwitchPoint) {
	o.mu.Lock()
	o.switchPoints = o.switchPoints.Add(name, sp)
	o.mu.Unlock()
}

// SwitchPoints returns a snapshot of the owner's token set.
func (o *ScriptObject) SwitchPoints() *PropertySwitchPoints {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.switchPoints
}

// ---------------------------------------------------------------------------
// Shared layout marker plumbing (used by the allocation cache)
// ---------------------------------------------------------------------------

// InstallSharedMarker installs a shared-layout marker on this object in
// its role as a prototype. Any previously installed marker is
// invalidated first.
func (o *ScriptObject) InstallSharedMarker(marker *SharedLayout) {
	o.mu.Lock()
	if o.sharedMarker != nil {
		o.sharedMarker.Invalidate()
	}
	o.sharedMarker = marker
	o.mu.Unlock()
}

// SharedMarker returns the currently installed marker, or nil.
func (o *ScriptObject) SharedMarker() *SharedLayout {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sharedMarker
}

// ---------------------------------------------------------------------------
// Element storage
// ---------------------------------------------------------------------------

// Elements returns the object's array element storage, creating it with
// the narrowest representation on first use.
func (o *ScriptObject) Elements() *ElementStorage {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.elems == nil {
		o.elems = NewElementStorage(0)
	}
	return o.elems
}
