package vm

import (
	"testing"
)

func newTestCtx() *Context {
	return NewContext()
}

func TestDispatchCacheEmpty(t *testing.T) {
	ctx := newTestCtx()
	obj := NewObject(ctx, nil)
	obj.DefineOwn(ctx, "x", FromInt(1))

	dc := &DispatchCache{}
	if g := dc.Lookup(obj); g != nil {
		t.Error("Expected nil from empty cache")
	}
	if dc.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", dc.Misses)
	}
}

func TestDispatchCacheMonomorphic(t *testing.T) {
	ctx := newTestCtx()
	obj := NewObject(ctx, nil)
	obj.DefineOwn(ctx, "x", FromInt(42))

	dc := &DispatchCache{}
	v, err := GetProp(ctx, dc, obj, "x")
	if err != nil {
		t.Fatalf("GetProp: %v", err)
	}
	if v.AsInt() != 42 {
		t.Errorf("Expected 42, got %v", v)
	}
	if dc.State != CacheMonomorphic {
		t.Errorf("Expected monomorphic state, got %v", dc.State)
	}

	// Second read hits the cache.
	if _, err := GetProp(ctx, dc, obj, "x"); err != nil {
		t.Fatalf("GetProp: %v", err)
	}
	if dc.Hits != 1 {
		t.Errorf("Expected 1 hit, got %d", dc.Hits)
	}
}

func TestDispatchCacheUpgradeToPolymorphic(t *testing.T) {
	ctx := newTestCtx()

	// Two receivers with different shapes (different slot counts).
	a := NewObject(ctx, nil)
	a.DefineOwn(ctx, "x", FromInt(1))
	b := NewObject(ctx, nil)
	b.DefineOwn(ctx, "x", FromInt(2))
	b.DefineOwn(ctx, "y", FromInt(3))

	dc := &DispatchCache{}
	if _, err := GetProp(ctx, dc, a, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := GetProp(ctx, dc, b, "x"); err != nil {
		t.Fatal(err)
	}
	if dc.State != CachePolymorphic {
		t.Errorf("Expected polymorphic, got %v", dc.State)
	}
	if dc.Count != 2 {
		t.Errorf("Expected count 2, got %d", dc.Count)
	}

	// Both shapes now hit.
	if _, err := GetProp(ctx, dc, a, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := GetProp(ctx, dc, b, "x"); err != nil {
		t.Fatal(err)
	}
	if dc.Hits != 2 {
		t.Errorf("Expected 2 hits, got %d", dc.Hits)
	}
}

func TestDispatchCacheMegamorphicTransition(t *testing.T) {
	ctx := newTestCtx()
	dc := &DispatchCache{}

	// One more distinct shape than the cache can hold.
	for i := 0; i <= MaxPICEntries; i++ {
		obj := NewObject(ctx, nil)
		obj.DefineOwn(ctx, "x", FromInt(int64(i)))
		for j := 0; j < i; j++ {
			obj.DefineOwn(ctx, "pad"+string(rune('a'+j)), Undefined)
		}
		if _, err := GetProp(ctx, dc, obj, "x"); err != nil {
			t.Fatal(err)
		}
	}
	if dc.State != CacheMegamorphic {
		t.Errorf("Expected megamorphic, got %v", dc.State)
	}
	if dc.Count != 0 {
		t.Errorf("Expected entries flushed, count %d", dc.Count)
	}
}

func TestDispatchCacheSharedShapeReadsReceiver(t *testing.T) {
	ctx := newTestCtx()

	// Two objects built the same way share a canonical shape; a cache
	// entry linked on one must read the other's own slot, not the slot
	// of the object it was built against.
	a := NewObject(ctx, nil)
	a.DefineOwn(ctx, "x", FromInt(1))
	b := NewObject(ctx, nil)
	b.DefineOwn(ctx, "x", FromInt(2))
	if a.Shape() != b.Shape() {
		t.Fatal("Equal definition order must share a shape")
	}

	dc := &DispatchCache{}
	v, err := GetProp(ctx, dc, a, "x")
	if err != nil || v.AsInt() != 1 {
		t.Fatalf("a.x = %v (%v), want 1", v, err)
	}
	v, err = GetProp(ctx, dc, b, "x")
	if err != nil {
		t.Fatal(err)
	}
	if v.AsInt() != 2 {
		t.Errorf("b.x through cached dispatch = %v, want 2", v)
	}
	if dc.Hits != 1 {
		t.Errorf("Expected the shared shape to hit, got %d hits", dc.Hits)
	}
}

func TestDispatchCacheDifferentLayoutMisses(t *testing.T) {
	ctx := newTestCtx()

	a := NewObject(ctx, nil)
	a.DefineOwn(ctx, "x", FromInt(1))
	c := NewObject(ctx, nil)
	c.DefineOwn(ctx, "y", FromInt(1))
	if a.Shape() == c.Shape() {
		t.Fatal("Different property names must not share a shape")
	}

	dc := &DispatchCache{}
	if _, err := GetProp(ctx, dc, a, "x"); err != nil {
		t.Fatal(err)
	}
	v, err := GetProp(ctx, dc, c, "x")
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsUndefined() {
		t.Errorf("c.x should be undefined, got %v", v)
	}
}

func TestSetPropSharedShapeWritesReceiver(t *testing.T) {
	ctx := newTestCtx()

	a := NewObject(ctx, nil)
	a.DefineOwn(ctx, "x", FromInt(0))
	b := NewObject(ctx, nil)
	b.DefineOwn(ctx, "x", FromInt(0))

	dc := &DispatchCache{}
	if err := SetProp(ctx, dc, a, "x", FromInt(5)); err != nil {
		t.Fatal(err)
	}
	if err := SetProp(ctx, dc, b, "x", FromInt(9)); err != nil {
		t.Fatal(err)
	}

	if v, _ := a.GetOwn("x"); v.AsInt() != 5 {
		t.Errorf("a.x = %v, want 5", v)
	}
	if v, _ := b.GetOwn("x"); v.AsInt() != 9 {
		t.Errorf("b.x = %v, want 9", v)
	}
}

func TestGuardInvalidatedByRedefinition(t *testing.T) {
	ctx := newTestCtx()
	obj := NewObject(ctx, nil)
	obj.DefineOwn(ctx, "x", FromInt(1))

	g := BuildDispatch(obj, "x")
	if !g.Valid(obj) {
		t.Fatal("Fresh dispatch should be valid")
	}

	// Redefining x as an accessor must flip the guard.
	getter := NativeFunc(func(ctx *Context, this Value, args []Value) (Value, error) {
		return FromInt(99), nil
	})
	obj.DefineAccessor(ctx, "x", getter, nil)

	if g.Valid(obj) {
		t.Error("Dispatch should be invalid after accessor redefinition")
	}
}

func TestGuardInvalidatedByPrototypePropertyCreation(t *testing.T) {
	ctx := newTestCtx()
	proto := NewObject(ctx, nil)
	proto.DefineOwn(ctx, "m", FromInt(10))
	grandproto := NewObject(ctx, nil)
	proto.SetProto(ctx, grandproto)

	obj := NewObject(ctx, proto)

	// Dispatch resolves m on proto; obj gets a token too.
	g := BuildDispatch(obj, "m")
	if !g.Valid(obj) {
		t.Fatal("Fresh dispatch should be valid")
	}
	v, err := g.Get(ctx, obj)
	if err != nil || v.AsInt() != 10 {
		t.Fatalf("Expected 10, got %v (%v)", v, err)
	}

	// Creating m on the receiver itself shadows the holder.
	obj.DefineOwn(ctx, "m", FromInt(20))
	if g.Valid(obj) {
		t.Error("Dispatch should be invalid after shadowing define")
	}
}

func TestGuardInvalidatedByPrototypeSwap(t *testing.T) {
	ctx := newTestCtx()
	proto := NewObject(ctx, nil)
	proto.DefineOwn(ctx, "m", FromInt(1))
	obj := NewObject(ctx, proto)

	g := BuildDispatch(obj, "m")
	if !g.Valid(obj) {
		t.Fatal("Fresh dispatch should be valid")
	}

	// Swapping the receiver's prototype invalidates inherited decisions.
	other := NewObject(ctx, nil)
	other.DefineOwn(ctx, "m", FromInt(2))
	obj.SetProto(ctx, other)

	if g.Valid(obj) {
		t.Error("Dispatch should be invalid after prototype swap")
	}
}

func TestDispatchCacheRelinkAfterInvalidation(t *testing.T) {
	ctx := newTestCtx()
	proto := NewObject(ctx, nil)
	proto.DefineOwn(ctx, "m", FromInt(1))
	obj := NewObject(ctx, proto)

	dc := &DispatchCache{}
	if _, err := GetProp(ctx, dc, obj, "m"); err != nil {
		t.Fatal(err)
	}

	// Delete on the holder flips the token; the stale entry must be
	// discarded and relinked, never silently reused.
	proto.Delete(ctx, "m")
	v, err := GetProp(ctx, dc, obj, "m")
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsUndefined() {
		t.Errorf("Expected undefined after delete, got %v", v)
	}
	if dc.Relinks != 1 {
		t.Errorf("Expected 1 relink, got %d", dc.Relinks)
	}
}

func TestAccessorReassignmentKeepsDispatchValid(t *testing.T) {
	ctx := newTestCtx()
	obj := NewObject(ctx, nil)

	getter1 := NativeFunc(func(ctx *Context, this Value, args []Value) (Value, error) {
		return FromInt(1), nil
	})
	pair := obj.DefineAccessor(ctx, "x", getter1, nil)

	g := BuildDispatch(obj, "x")
	if !g.Valid(obj) {
		t.Fatal("Fresh dispatch should be valid")
	}

	// Reassigning the getter mutates the pair in place; the cached
	// dispatch stays valid and observes the new behavior.
	getter2 := NativeFunc(func(ctx *Context, this Value, args []Value) (Value, error) {
		return FromInt(2), nil
	})
	pair.SetGetter(getter2)

	if !g.Valid(obj) {
		t.Error("Dispatch should stay valid across getter reassignment")
	}
	v, err := g.Get(ctx, obj)
	if err != nil {
		t.Fatal(err)
	}
	if v.AsInt() != 2 {
		t.Errorf("Expected new getter result 2, got %v", v)
	}
}

func TestSetPropOwnDataWrite(t *testing.T) {
	ctx := newTestCtx()
	obj := NewObject(ctx, nil)
	obj.DefineOwn(ctx, "x", FromInt(1))

	dc := &DispatchCache{}
	if err := SetProp(ctx, dc, obj, "x", FromInt(2)); err != nil {
		t.Fatal(err)
	}
	// In-place writes leave decisions valid, so the second write hits.
	if err := SetProp(ctx, dc, obj, "x", FromInt(3)); err != nil {
		t.Fatal(err)
	}
	if dc.Hits != 1 {
		t.Errorf("Expected 1 hit, got %d", dc.Hits)
	}

	v, ok := obj.GetOwn("x")
	if !ok || v.AsInt() != 3 {
		t.Errorf("Expected 3, got %v", v)
	}
}
