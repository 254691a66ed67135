package vm

// Scope resolution for the "with" construct.
//
// Property resolution first searches the expression object (and its
// prototype chain), then the enclosing lexical scope. A function value
// found on the expression is pre-bound to the expression object as
// receiver. When the name is missing from the expression, its
// missing-property hook gets a chance before the lookup delegates to the
// scope.

// NoSuchPropertyHook is the interceptor invoked when a name is absent
// from a with-expression object.
const NoSuchPropertyHook = "noSuchProperty"

// NoSuchMethodHook is the interceptor invoked when an absent name is
// resolved for a call on a with-expression object.
const NoSuchMethodHook = "noSuchMethod"

// Scope resolves names for evaluation.
type Scope interface {
	// Lookup resolves name. found is false when the scope does not bind it.
	Lookup(ctx *Context, name string) (v Value, found bool, err error)
}

// MapScope is a plain lexical scope backed by a map.
type MapScope struct {
	parent   Scope
	bindings map[string]Value
}

// NewMapScope creates a scope with the given parent (may be nil).
func NewMapScope(parent Scope) *MapScope {
	return &MapScope{parent: parent, bindings: make(map[string]Value)}
}

// Bind adds or replaces a binding.
func (s *MapScope) Bind(name string, v Value) { s.bindings[name] = v }

// Lookup resolves name in this scope, then the parent chain.
func (s *MapScope) Lookup(ctx *Context, name string) (Value, bool, error) {
	if v, ok := s.bindings[name]; ok {
		return v, true, nil
	}
	if s.parent != nil {
		return s.parent.Lookup(ctx, name)
	}
	return Undefined, false, nil
}

// ---------------------------------------------------------------------------
// WithScope
// ---------------------------------------------------------------------------

// WithScope layers a with-expression object over an enclosing scope.
type WithScope struct {
	expression *ScriptObject
	parent     Scope
}

// NewWithScope creates the combined scope for `with (expression) ...`.
func NewWithScope(expression *ScriptObject, parent Scope) *WithScope {
	return &WithScope{expression: expression, parent: parent}
}

// Expression returns the with-expression object.
func (w *WithScope) Expression() *ScriptObject { return w.expression }

// Lookup resolves name with expression-object precedence. A callable
// found on the expression chain is wrapped so that invoking it uses the
// expression object as receiver. A not-found result consults the
// expression's missing-property hook before delegating to the enclosing
// scope.
func (w *WithScope) Lookup(ctx *Context, name string) (Value, bool, error) {
	v, found, err := w.resolveOnExpression(ctx, name)
	if err != nil || found {
		return v, found, err
	}
	if w.parent != nil {
		return w.parent.Lookup(ctx, name)
	}
	return Undefined, false, nil
}

// LookupCallable resolves name for a call. When the expression chain and
// the missing-property hook both miss, the expression's missing-method
// hook (if any) is returned as a callable that forwards the name and the
// call arguments, still ahead of the enclosing scope.
func (w *WithScope) LookupCallable(ctx *Context, name string) (Value, bool, error) {
	v, found, err := w.resolveOnExpression(ctx, name)
	if err != nil || found {
		return v, found, err
	}

	hook, hookFound, err := w.expression.Get(ctx, NoSuchMethodHook)
	if err != nil {
		return Undefined, false, err
	}
	if hookFound {
		if c := hook.AsCallable(); c != nil {
			fwd := &missingMethodCall{hook: c, receiver: FromObject(w.expression), name: name}
			return FromCallable(fwd), true, nil
		}
	}

	if w.parent != nil {
		return w.parent.Lookup(ctx, name)
	}
	return Undefined, false, nil
}

func (w *WithScope) resolveOnExpression(ctx *Context, name string) (Value, bool, error) {
	v, found, err := w.expression.Get(ctx, name)
	if err != nil {
		return Undefined, false, err
	}
	if found {
		if c := v.AsCallable(); c != nil {
			return FromCallable(&BoundCallable{Fn: c, Receiver: FromObject(w.expression)}), true, nil
		}
		return v, true, nil
	}

	hook, hookFound, err := w.expression.Get(ctx, NoSuchPropertyHook)
	if err != nil {
		return Undefined, false, err
	}
	if hookFound {
		if c := hook.AsCallable(); c != nil {
			v, err := c.Call(ctx, FromObject(w.expression), []Value{FromString(name)})
			if err != nil {
				return Undefined, false, err
			}
			if !v.IsUndefined() {
				return v, true, nil
			}
		}
	}
	return Undefined, false, nil
}

// BoundCallable pre-binds a receiver to a callable retrieved through a
// with-expression.
type BoundCallable struct {
	Fn       Callable
	Receiver Value
}

// Call invokes the wrapped callable with the bound receiver, ignoring
// the caller-supplied this.
func (b *BoundCallable) Call(ctx *Context, _ Value, args []Value) (Value, error) {
	return b.Fn.Call(ctx, b.Receiver, args)
}

// missingMethodCall forwards a call to the missing-method hook, with the
// requested name prepended to the arguments.
type missingMethodCall struct {
	hook     Callable
	receiver Value
	name     string
}

func (m *missingMethodCall) Call(ctx *Context, _ Value, args []Value) (Value, error) {
	fwd := make([]Value, 0, len(args)+1)
	fwd = append(fwd, FromString(m.name))
	fwd = append(fwd, args...)
	return m.hook.Call(ctx, m.receiver, fwd)
}
