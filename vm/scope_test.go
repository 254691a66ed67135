package vm

import (
	"testing"
)

func TestWithScopeExpressionPrecedence(t *testing.T) {
	ctx := NewContext()

	outer := NewMapScope(nil)
	outer.Bind("x", FromInt(1))

	expr := NewObject(ctx, nil)
	expr.DefineOwn(ctx, "x", FromInt(2))

	scope := NewWithScope(expr, outer)
	v, found, err := scope.Lookup(ctx, "x")
	if err != nil || !found {
		t.Fatalf("Lookup failed: %v %v", found, err)
	}
	if v.AsInt() != 2 {
		t.Errorf("Expression object must shadow the enclosing scope, got %v", v)
	}
}

func TestWithScopeDelegatesToParent(t *testing.T) {
	ctx := NewContext()

	outer := NewMapScope(nil)
	outer.Bind("y", FromInt(7))

	scope := NewWithScope(NewObject(ctx, nil), outer)
	v, found, err := scope.Lookup(ctx, "y")
	if err != nil || !found {
		t.Fatalf("Lookup failed: %v %v", found, err)
	}
	if v.AsInt() != 7 {
		t.Errorf("Expected 7 from parent, got %v", v)
	}
}

func TestWithScopeDeleteRestoresOuterBinding(t *testing.T) {
	ctx := NewContext()

	outer := NewMapScope(nil)
	outer.Bind("x", FromInt(1))

	expr := NewObject(ctx, nil)
	expr.DefineOwn(ctx, "x", FromInt(2))
	scope := NewWithScope(expr, outer)

	// Deleting the shadowing property mid-scope re-exposes the outer
	// binding on the next lookup.
	expr.Delete(ctx, "x")
	v, found, err := scope.Lookup(ctx, "x")
	if err != nil || !found {
		t.Fatalf("Lookup failed: %v %v", found, err)
	}
	if v.AsInt() != 1 {
		t.Errorf("Expected outer binding 1 after delete, got %v", v)
	}
}

func TestWithScopePrototypeChainSearched(t *testing.T) {
	ctx := NewContext()

	proto := NewObject(ctx, nil)
	proto.DefineOwn(ctx, "z", FromInt(3))
	expr := NewObject(ctx, proto)

	scope := NewWithScope(expr, nil)
	v, found, err := scope.Lookup(ctx, "z")
	if err != nil || !found {
		t.Fatalf("Lookup failed: %v %v", found, err)
	}
	if v.AsInt() != 3 {
		t.Errorf("Expected 3 via prototype, got %v", v)
	}
}

func TestWithScopeBindsReceiver(t *testing.T) {
	ctx := NewContext()

	expr := NewObject(ctx, nil)
	expr.DefineOwn(ctx, "tag", FromInt(5))
	method := NativeFunc(func(ctx *Context, this Value, args []Value) (Value, error) {
		v, _, err := this.AsObject().Get(ctx, "tag")
		return v, err
	})
	expr.DefineOwn(ctx, "getTag", FromCallable(method))

	scope := NewWithScope(expr, nil)
	v, found, err := scope.Lookup(ctx, "getTag")
	if err != nil || !found {
		t.Fatalf("Lookup failed: %v %v", found, err)
	}

	fn := v.AsCallable()
	if fn == nil {
		t.Fatal("Expected a callable")
	}
	// The receiver is pre-bound: the caller's this is ignored.
	got, err := fn.Call(ctx, Undefined, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.AsInt() != 5 {
		t.Errorf("Expected bound receiver's tag 5, got %v", got)
	}
}

func TestWithScopeMissingPropertyHook(t *testing.T) {
	ctx := NewContext()

	expr := NewObject(ctx, nil)
	hook := NativeFunc(func(ctx *Context, this Value, args []Value) (Value, error) {
		if args[0].AsString() == "answer" {
			return FromInt(42), nil
		}
		return Undefined, nil
	})
	expr.DefineOwn(ctx, NoSuchPropertyHook, FromCallable(hook))

	outer := NewMapScope(nil)
	outer.Bind("other", FromInt(1))
	scope := NewWithScope(expr, outer)

	// The hook intercepts names absent from the expression.
	v, found, err := scope.Lookup(ctx, "answer")
	if err != nil || !found {
		t.Fatalf("Lookup failed: %v %v", found, err)
	}
	if v.AsInt() != 42 {
		t.Errorf("Expected hook result 42, got %v", v)
	}

	// A hook returning undefined falls through to the enclosing scope.
	v, found, err = scope.Lookup(ctx, "other")
	if err != nil || !found {
		t.Fatalf("Lookup failed: %v %v", found, err)
	}
	if v.AsInt() != 1 {
		t.Errorf("Expected outer binding 1, got %v", v)
	}
}

func TestWithScopeMissingMethodHook(t *testing.T) {
	ctx := NewContext()

	expr := NewObject(ctx, nil)
	hook := NativeFunc(func(ctx *Context, this Value, args []Value) (Value, error) {
		// Receives the requested name followed by the call arguments.
		if args[0].AsString() != "double" {
			return Undefined, nil
		}
		return FromInt(args[1].AsInt() * 2), nil
	})
	expr.DefineOwn(ctx, NoSuchMethodHook, FromCallable(hook))

	outer := NewMapScope(nil)
	outer.Bind("double", FromInt(99))
	scope := NewWithScope(expr, outer)

	// The method hook intercepts call resolution ahead of the enclosing
	// scope even when the scope binds the same name.
	v, found, err := scope.LookupCallable(ctx, "double")
	if err != nil || !found {
		t.Fatalf("LookupCallable failed: %v %v", found, err)
	}
	fn := v.AsCallable()
	if fn == nil {
		t.Fatal("Expected a callable from the method hook")
	}
	got, err := fn.Call(ctx, Undefined, []Value{FromInt(21)})
	if err != nil {
		t.Fatal(err)
	}
	if got.AsInt() != 42 {
		t.Errorf("Expected forwarded call result 42, got %v", got)
	}
}

func TestWithScopeLookupCallablePrefersExpression(t *testing.T) {
	ctx := NewContext()

	expr := NewObject(ctx, nil)
	method := NativeFunc(func(ctx *Context, this Value, args []Value) (Value, error) {
		return FromInt(7), nil
	})
	expr.DefineOwn(ctx, "f", FromCallable(method))
	expr.DefineOwn(ctx, NoSuchMethodHook, FromCallable(method))

	scope := NewWithScope(expr, nil)
	v, found, err := scope.LookupCallable(ctx, "f")
	if err != nil || !found {
		t.Fatalf("LookupCallable failed: %v %v", found, err)
	}
	// A name present on the expression resolves directly, bound to it.
	if _, ok := v.AsCallable().(*BoundCallable); !ok {
		t.Errorf("Expected the expression's own method pre-bound, got %T", v.AsCallable())
	}
}
