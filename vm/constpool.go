package vm

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Callable
// ---------------------------------------------------------------------------

// Callable is anything the runtime can invoke.
type Callable interface {
	Call(ctx *Context, this Value, args []Value) (Value, error)
}

// NativeFunc adapts a Go function to a Callable.
type NativeFunc func(ctx *Context, this Value, args []Value) (Value, error)

// Call invokes the adapted function.
func (f NativeFunc) Call(ctx *Context, this Value, args []Value) (Value, error) {
	return f(ctx, this, args)
}

// ---------------------------------------------------------------------------
// Constant pool
// ---------------------------------------------------------------------------

// ConstKind tags a constant-pool entry.
type ConstKind uint8

const (
	ConstInt     ConstKind = iota // 64-bit integer
	ConstNumber                   // float64
	ConstString                   // string literal
	ConstFuncRef                  // sub-function placeholder, resolved at install
)

// Constant is one serializable constant-pool entry. Function entries are
// placeholders carrying only a sub-function id; installation re-binds
// them to freshly constructed function objects.
type Constant struct {
	Kind   ConstKind `cbor:"k"`
	Int    int64     `cbor:"i,omitempty"`
	Num    float64   `cbor:"n,omitempty"`
	Str    string    `cbor:"s,omitempty"`
	FuncID int       `cbor:"f,omitempty"`
}

// EntryDescriptor describes one sub-function of a compiled unit: which
// code unit holds its body and how it is invoked.
type EntryDescriptor struct {
	FuncID    int    `cbor:"id"`
	UnitName  string `cbor:"unit"`
	Name      string `cbor:"name,omitempty"`
	NumParams int    `cbor:"params"`
}

// ConstPool resolves constant-pool entries to runtime values. Function
// placeholders stay unresolved until Bind attaches the reconstructed
// function objects.
type ConstPool struct {
	consts []Constant

	mu    sync.RWMutex
	funcs map[int]Callable
}

// NewConstPool creates a pool over the given constants.
func NewConstPool(consts []Constant) *ConstPool {
	return &ConstPool{consts: consts, funcs: make(map[int]Callable)}
}

// Constants returns the pool's serializable entries.
func (p *ConstPool) Constants() []Constant { return p.consts }

// Bind attaches the runtime function for a placeholder id.
func (p *ConstPool) Bind(funcID int, fn Callable) {
	p.mu.Lock()
	p.funcs[funcID] = fn
	p.mu.Unlock()
}

// Value resolves entry idx to a runtime value. An unresolved function
// placeholder is a programming fault in the installation pipeline.
func (p *ConstPool) Value(idx int) (Value, error) {
	if idx < 0 || idx >= len(p.consts) {
		return Undefined, fmt.Errorf("vm: constant index %d out of range", idx)
	}
	c := p.consts[idx]
	switch c.Kind {
	case ConstInt:
		return FromInt(c.Int), nil
	case ConstNumber:
		return FromFloat(c.Num), nil
	case ConstString:
		return FromString(c.Str), nil
	case ConstFuncRef:
		p.mu.RLock()
		fn := p.funcs[c.FuncID]
		p.mu.RUnlock()
		if fn == nil {
			return Undefined, fmt.Errorf("vm: unresolved function placeholder %d", c.FuncID)
		}
		return FromCallable(fn), nil
	default:
		return Undefined, fmt.Errorf("vm: unknown constant kind %d", c.Kind)
	}
}

// ---------------------------------------------------------------------------
// FunctionTemplate
// ---------------------------------------------------------------------------

// FunctionTemplate is an installed, callable function: a bytecode chunk
// bound to the constant pool it was compiled against.
type FunctionTemplate struct {
	Name      string
	NumParams int
	chunk     *Chunk
	pool      *ConstPool
}

// NewFunctionTemplate binds a chunk and pool into a callable.
func NewFunctionTemplate(name string, numParams int, chunk *Chunk, pool *ConstPool) *FunctionTemplate {
	return &FunctionTemplate{Name: name, NumParams: numParams, chunk: chunk, pool: pool}
}

// Chunk returns the template's bytecode.
func (t *FunctionTemplate) Chunk() *Chunk { return t.chunk }

// Call executes the template's bytecode.
func (t *FunctionTemplate) Call(ctx *Context, this Value, args []Value) (Value, error) {
	return execChunk(ctx, t.chunk, t.pool, args)
}
