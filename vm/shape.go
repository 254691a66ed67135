package vm

import (
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Shape: immutable descriptor of an object's field layout
// ---------------------------------------------------------------------------

// SlotMode selects how an object's fields are represented.
type SlotMode uint8

const (
	// ModeGeneric stores every field as a boxed Value.
	ModeGeneric SlotMode = iota
	// ModeDual allows primitive fields to live unboxed until widened.
	// Selected when optimistic typing is enabled.
	ModeDual
)

func (m SlotMode) String() string {
	switch m {
	case ModeGeneric:
		return "G"
	case ModeDual:
		return "D"
	default:
		return "?"
	}
}

// Shape describes an object's field layout. Shapes form a transition
// tree: each canonical shape is reached from its parent by adding one
// named data property, so shape identity encodes the full ordered
// property layout, not just the slot count. Two objects share a shape
// only when they defined the same properties in the same order.
//
// Shapes are immutable; structural changes to an object replace its
// shape pointer. A shape handed out by an allocation site may
// additionally carry a shared prototype sub-layout, valid only while no
// participating prototype has replaced its own shape.
type Shape struct {
	name      string
	parent    *Shape // nil for roots and private shapes
	key       string // property this shape adds relative to parent
	slotCount int
	mode      SlotMode
	shared    *SharedLayout // nil unless this is a shared allocation layout

	mu          sync.Mutex
	transitions map[string]*Shape
}

// Name returns the canonical name derived from the transition path.
func (s *Shape) Name() string { return s.name }

// SlotCount returns the number of field slots the shape describes.
func (s *Shape) SlotCount() int { return s.slotCount }

// Mode returns the field representation mode.
func (s *Shape) Mode() SlotMode { return s.mode }

// Shared returns the shared sub-layout marker, or nil.
func (s *Shape) Shared() *SharedLayout { return s.shared }

// Keys returns the property names on the transition path from the root,
// in slot order. Private shapes report no keys.
func (s *Shape) Keys() []string {
	depth := 0
	for cur := s; cur != nil && cur.key != ""; cur = cur.parent {
		depth++
	}
	keys := make([]string, depth)
	for cur := s; cur != nil && cur.key != ""; cur = cur.parent {
		depth--
		keys[depth] = cur.key
	}
	return keys
}

// ---------------------------------------------------------------------------
// SharedLayout: synthetic shared-layout marker installed on a prototype
// ---------------------------------------------------------------------------

// SharedLayout marks a prototype as participating in layout sharing.
// It records the prototype's shape at the moment sharing was established
// and stays valid until the prototype replaces its own shape.
type SharedLayout struct {
	protoShape *Shape
	invalid    atomic.Bool
}

// NewSharedLayout creates a marker for the given prototype shape.
func NewSharedLayout(protoShape *Shape) *SharedLayout {
	return &SharedLayout{protoShape: protoShape}
}

// ProtoShape returns the prototype shape observed at sharing time.
func (sl *SharedLayout) ProtoShape() *Shape { return sl.protoShape }

// Valid reports whether the marker still reflects the real prototype.
func (sl *SharedLayout) Valid() bool { return !sl.invalid.Load() }

// Invalidate flips the marker. A marker never becomes valid again.
func (sl *SharedLayout) Invalidate() { sl.invalid.Store(true) }

// ---------------------------------------------------------------------------
// ShapeTable: canonicalizing registry
// ---------------------------------------------------------------------------

// ShapeTable owns the roots of the shape transition trees, one per slot
// mode. It is safe for concurrent use.
type ShapeTable struct {
	mu    sync.Mutex
	roots map[SlotMode]*Shape
}

// NewShapeTable creates an empty shape table.
func NewShapeTable() *ShapeTable {
	return &ShapeTable{roots: make(map[SlotMode]*Shape)}
}

// Root returns the canonical empty-layout shape for the mode.
func (t *ShapeTable) Root(mode SlotMode) *Shape {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.roots[mode]; ok {
		return s
	}
	s := &Shape{name: "S" + mode.String(), mode: mode}
	t.roots[mode] = s
	return s
}

// Transition returns the canonical child of base that adds the named
// data property, creating it on first request. Children are cached per
// parent, so repeating a definition sequence lands on one Shape.
func (t *ShapeTable) Transition(base *Shape, key string) *Shape {
	base.mu.Lock()
	defer base.mu.Unlock()
	if s, ok := base.transitions[key]; ok {
		return s
	}
	s := &Shape{
		name:      base.name + "." + key,
		parent:    base,
		key:       key,
		slotCount: base.slotCount + 1,
		mode:      base.mode,
	}
	if base.transitions == nil {
		base.transitions = make(map[string]*Shape)
	}
	base.transitions[key] = s
	return s
}

// CanonicalFor returns the canonical shape for the ordered property
// names, folding transitions from the mode's root.
func (t *ShapeTable) CanonicalFor(keys []string, mode SlotMode) *Shape {
	s := t.Root(mode)
	for _, k := range keys {
		s = t.Transition(s, k)
	}
	return s
}

// Private returns a fresh, non-canonical shape with base's slot count
// and mode. Private shapes have distinct identity and drop the
// transition history; they are used after structural changes (deletes,
// accessor redefinition) and when layout sharing becomes unsafe.
func (t *ShapeTable) Private(base *Shape) *Shape {
	return &Shape{name: base.name + "#", slotCount: base.slotCount, mode: base.mode}
}

// WithShared returns a copy of base carrying the given shared sub-layout
// marker. The copy keeps base's transition path so allocated objects can
// reconstruct their property map; it is never canonicalized, shared
// layouts are owned by the allocation site that promoted them.
func (t *ShapeTable) WithShared(base *Shape, marker *SharedLayout) *Shape {
	return &Shape{
		name:      base.name + "+shared",
		parent:    base.parent,
		key:       base.key,
		slotCount: base.slotCount,
		mode:      base.mode,
		shared:    marker,
	}
}
