package vm

import (
	"sync"
	"weak"
)

// ---------------------------------------------------------------------------
// AllocSite: per-constructor allocation strategy
// ---------------------------------------------------------------------------

// AllocatorMap is one cache entry owned by an allocation site. It holds
// weak references to the last-seen prototype and that prototype's shape,
// plus the layout the site handed out. Weak references let the
// originating objects be collected without pinning the cache; when
// either reference is cleared the cache degrades gracefully to a
// recomputation. Entries are replaced, never mutated; the most recent
// one is authoritative.
type AllocatorMap struct {
	proto      weak.Pointer[ScriptObject]
	protoShape weak.Pointer[Shape]
	layout     *Shape
	shared     bool
}

// AllocSite computes and shares structural layouts for the objects one
// constructor creates. Layout requests for the same constructor are
// serialized by a per-site mutex; allocation is not the hot path
// relative to property access.
type AllocSite struct {
	mu     sync.Mutex
	ctx    *Context
	fields []string
	entry  *AllocatorMap
}

// NewAllocSite creates an allocation site for a constructor whose
// instances carry the named fields, in definition order.
func NewAllocSite(ctx *Context, fields []string) *AllocSite {
	return &AllocSite{ctx: ctx, fields: fields}
}

// Layout returns the shape to use for a new instance whose prototype is
// proto. The result is never incorrect sharing; the worst case is a
// cache-miss recomputation.
//
// Cache behavior:
//   - no entry: compute a fresh private layout and cache it against the
//     prototype's identity and current shape.
//   - unshared entry, same prototype identity: reuse verbatim.
//   - unshared entry, prototype identity changed but its shape equals the
//     cached one and is still the one last observed: promote to a shared
//     layout, installing a shared-layout marker on the prototype so
//     later allocations can detect sharing eligibility cheaply.
//   - shared entry: reuse while the prototype's current shape equals the
//     marker's and the marker is still valid; otherwise recompute.
func (site *AllocSite) Layout(proto *ScriptObject) *Shape {
	site.mu.Lock()
	defer site.mu.Unlock()

	if proto == nil {
		return site.freshLayout()
	}

	protoShape := proto.Shape()

	e := site.entry
	if e == nil {
		return site.rememberLocked(proto, protoShape, site.freshLayout(), false)
	}

	cachedProto := e.proto.Value()
	cachedShape := e.protoShape.Value()
	if cachedProto == nil || cachedShape == nil {
		// A weak reference was cleared; recompute.
		return site.rememberLocked(proto, protoShape, site.freshLayout(), false)
	}

	if !e.shared {
		if cachedProto == proto {
			if protoShape == cachedShape {
				return e.layout
			}
			// The prototype mutated since last look; hand out a private
			// layout against its new shape.
			return site.rememberLocked(proto, protoShape, site.freshLayout(), false)
		}
		// Different prototype object. Promote to a shared layout only if
		// the shapes are identical and the previously observed prototype
		// has not mutated since: sharing a layout that no longer reflects
		// the real prototype would be incorrect.
		if protoShape == cachedShape && cachedProto.Shape() == cachedShape {
			marker := NewSharedLayout(protoShape)
			proto.InstallSharedMarker(marker)
			shared := site.ctx.Shapes.WithShared(e.layout, marker)
			return site.rememberLocked(proto, protoShape, shared, true)
		}
		return site.rememberLocked(proto, protoShape, site.freshLayout(), false)
	}

	// Shared entry: the layout stays reusable while the prototype's
	// current shape matches the marker and the marker is still valid.
	marker := e.layout.Shared()
	if marker != nil && marker.Valid() && protoShape == marker.ProtoShape() {
		return e.layout
	}
	return site.rememberLocked(proto, protoShape, site.freshLayout(), false)
}

// freshLayout computes the canonical, unshared layout for the site's
// fields.
func (site *AllocSite) freshLayout() *Shape {
	return site.ctx.Shapes.CanonicalFor(site.fields, site.ctx.SlotMode())
}

// rememberLocked replaces the cache entry. Caller holds site.mu.
func (site *AllocSite) rememberLocked(proto *ScriptObject, protoShape *Shape, layout *Shape, shared bool) *Shape {
	site.entry = &AllocatorMap{
		proto:      weak.Make(proto),
		protoShape: weak.Make(protoShape),
		layout:     layout,
		shared:     shared,
	}
	return layout
}

// Allocate creates a new instance using the layout for proto.
func (site *AllocSite) Allocate(proto *ScriptObject) *ScriptObject {
	return NewObjectWithShape(site.Layout(proto), proto)
}
