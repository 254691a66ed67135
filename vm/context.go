package vm

// Context carries the per-engine state the runtime needs: the shape
// table, diagnostics, and the representation policy. It is threaded
// explicitly through every call; the runtime keeps no ambient global
// state.
type Context struct {
	Shapes  *ShapeTable
	Timings *Timings

	// OptimisticTypes selects dual-representation field layouts and
	// integer-first arithmetic.
	OptimisticTypes bool

	// Origin tags code loaded for this context. Two installation domains
	// are compatible only when they share an engine context and origin.
	origin string
}

// NewContext creates a context with the default origin tag.
func NewContext() *Context {
	return &Context{
		Shapes:  NewShapeTable(),
		Timings: NewTimings(),
		origin:  "script",
	}
}

// NewContextWithOrigin creates a context with an explicit code-origin tag.
func NewContextWithOrigin(origin string) *Context {
	ctx := NewContext()
	ctx.origin = origin
	return ctx
}

// Origin returns the context's code-origin tag.
func (ctx *Context) Origin() string { return ctx.origin }

// SlotMode returns the field mode new shapes should use under the
// context's representation policy.
func (ctx *Context) SlotMode() SlotMode {
	if ctx.OptimisticTypes {
		return ModeDual
	}
	return ModeGeneric
}
