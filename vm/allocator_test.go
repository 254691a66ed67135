package vm

import (
	"testing"
)

func TestAllocSiteFreshLayout(t *testing.T) {
	ctx := NewContext()
	proto := NewObject(ctx, nil)
	site := NewAllocSite(ctx, []string{"a", "b"})

	layout := site.Layout(proto)
	if layout.SlotCount() != 2 {
		t.Errorf("Expected 2 slots, got %d", layout.SlotCount())
	}
	if layout.Shared() != nil {
		t.Error("First layout must not be shared")
	}
}

func TestAllocSiteReuseSamePrototype(t *testing.T) {
	ctx := NewContext()
	proto := NewObject(ctx, nil)
	site := NewAllocSite(ctx, []string{"a", "b"})

	a := site.Layout(proto)
	b := site.Layout(proto)
	if a != b {
		t.Error("Same prototype identity must reuse the cached layout")
	}
}

func TestAllocSitePromotionToShared(t *testing.T) {
	ctx := NewContext()
	site := NewAllocSite(ctx, []string{"a", "b"})

	// Two distinct prototype objects with the same (canonical) shape.
	proto1 := NewObject(ctx, nil)
	proto2 := NewObject(ctx, nil)
	if proto1.Shape() != proto2.Shape() {
		t.Fatal("Test prototypes must share a canonical shape")
	}

	site.Layout(proto1)
	shared := site.Layout(proto2)

	marker := shared.Shared()
	if marker == nil {
		t.Fatal("Second prototype with equal shape must promote to a shared layout")
	}
	if proto2.SharedMarker() != marker {
		t.Error("Promotion must install the marker on the new prototype")
	}

	// Further allocations against the same prototype shape reuse it.
	proto3 := NewObject(ctx, nil)
	if site.Layout(proto3) != shared {
		t.Error("Shared layout must be reused while the marker is valid")
	}
}

func TestAllocSitePromotionRefusedAfterStaleness(t *testing.T) {
	ctx := NewContext()
	site := NewAllocSite(ctx, []string{"a", "b"})

	proto1 := NewObject(ctx, nil)
	site.Layout(proto1)

	// proto1 mutates after being observed: its cached shape is stale, so
	// a later same-shape prototype must not promote against it.
	proto2 := NewObject(ctx, nil)
	proto1.DefineOwn(ctx, "x", FromInt(1))

	layout := site.Layout(proto2)
	if layout.Shared() != nil {
		t.Error("Promotion over a stale observation would share incorrectly")
	}
}

func TestAllocSiteSharedLayoutDroppedOnPrototypeMutation(t *testing.T) {
	ctx := NewContext()
	site := NewAllocSite(ctx, []string{"a"})

	proto1 := NewObject(ctx, nil)
	proto2 := NewObject(ctx, nil)
	site.Layout(proto1)
	shared := site.Layout(proto2)
	if shared.Shared() == nil {
		t.Fatal("Expected promotion")
	}

	// The marked prototype mutates; the marker flips and the shared
	// layout must not be handed out again.
	proto2.DefineOwn(ctx, "y", FromInt(2))

	proto3 := NewObject(ctx, nil)
	layout := site.Layout(proto3)
	if layout == shared {
		t.Error("Invalidated shared layout must not be reused")
	}
	if layout.Shared() != nil {
		t.Error("Recomputed layout must be private")
	}
}

func TestAllocSiteAllocate(t *testing.T) {
	ctx := NewContext()
	proto := NewObject(ctx, nil)
	proto.DefineOwn(ctx, "greet", FromInt(7))

	site := NewAllocSite(ctx, []string{"a", "b", "c"})
	obj := site.Allocate(proto)

	if obj.Shape().SlotCount() != 3 {
		t.Errorf("Expected 3 slots, got %d", obj.Shape().SlotCount())
	}
	if !obj.HasOwn("a") || !obj.HasOwn("c") {
		t.Error("Allocated object must define the site's fields")
	}
	if obj.Proto() != proto {
		t.Error("Allocated object must link the prototype")
	}
	v, found, err := obj.Get(ctx, "greet")
	if err != nil || !found || v.AsInt() != 7 {
		t.Errorf("Inherited read failed: %v %v %v", v, found, err)
	}
}

func TestAllocSiteDualModeUnderOptimisticTypes(t *testing.T) {
	ctx := NewContext()
	ctx.OptimisticTypes = true
	proto := NewObject(ctx, nil)

	site := NewAllocSite(ctx, []string{"a", "b"})
	if site.Layout(proto).Mode() != ModeDual {
		t.Error("Optimistic contexts must hand out dual-representation layouts")
	}
}
