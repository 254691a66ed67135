package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Bytecode interpreter.
//
// Arithmetic runs optimistically under the narrowest representation the
// operation's program location has needed so far. When a value does not
// fit, the operation raises a speculation failure instead of silently
// losing precision; the loop consumes the failure, widens exactly that
// location, and retries the same operation with the same operands. The
// operands are still at hand, so no observable state is corrupted and
// the same input can never fail twice.

// execChunk executes a chunk against the given parameters and returns
// the value left by OpReturnTop (or undefined if execution falls off the
// end).
func execChunk(ctx *Context, chunk *Chunk, pool *ConstPool, args []Value) (Value, error) {
	var stack []Value
	push := func(v Value) { stack = append(stack, v) }
	pop := func() Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	code := chunk.Code
	pc := 0
	for pc < len(code) {
		op := Opcode(code[pc])
		pc++

		switch op {
		case OpNOP:

		case OpPOP:
			pop()

		case OpPushConst:
			idx := int(binary.LittleEndian.Uint16(code[pc:]))
			pc += 2
			v, err := pool.Value(idx)
			if err != nil {
				return Undefined, err
			}
			push(v)

		case OpPushInt8:
			push(FromInt(int64(int8(code[pc]))))
			pc++

		case OpPushUndefined:
			push(Undefined)

		case OpPushParam:
			i := int(code[pc])
			pc++
			if i < len(args) {
				push(args[i])
			} else {
				push(Undefined)
			}

		case OpAdd, OpSub, OpMul, OpDiv:
			loc := int(binary.LittleEndian.Uint16(code[pc:]))
			pc += 2
			b := pop()
			a := pop()
			v, err := binaryArith(ctx, chunk, loc, op, a, b)
			if err != nil {
				return Undefined, err
			}
			push(v)

		case OpNeg:
			loc := int(binary.LittleEndian.Uint16(code[pc:]))
			pc += 2
			a := pop()
			v, err := negate(ctx, chunk, loc, a)
			if err != nil {
				return Undefined, err
			}
			push(v)

		case OpCall:
			argc := int(code[pc])
			pc++
			callArgs := make([]Value, argc)
			for i := argc - 1; i >= 0; i-- {
				callArgs[i] = pop()
			}
			fnv := pop()
			fn := fnv.AsCallable()
			if fn == nil {
				return Undefined, NewTypeError("%s is not a function", fnv)
			}
			v, err := fn.Call(ctx, Undefined, callArgs)
			if err != nil {
				return Undefined, err
			}
			push(v)

		case OpReturnTop:
			return pop(), nil

		default:
			return Undefined, fmt.Errorf("vm: unknown opcode 0x%02x at pc %d", byte(op), pc-1)
		}
	}
	return Undefined, nil
}

// binaryArith executes one arithmetic operation at a location, widening
// the location's profile and retrying on speculation failure. With
// optimistic typing off, the location profile is ignored and every
// operation runs on the generic path.
func binaryArith(ctx *Context, chunk *Chunk, loc int, op Opcode, a, b Value) (Value, error) {
	if !ctx.OptimisticTypes {
		return genericArith(op, a, b)
	}
	for {
		v, err := arithOnce(chunk.LocationKind(loc), loc, op, a, b)
		var sf *SpeculationFailure
		if errors.As(err, &sf) {
			chunk.WidenLocation(sf.Location, sf.Required)
			continue
		}
		return v, err
	}
}

// arithOnce runs op under the given representation assumption.
func arithOnce(kind Kind, loc int, op Opcode, a, b Value) (Value, error) {
	if kind == KindInt {
		if a.IsSmallInt() && b.IsSmallInt() {
			return intArith(loc, op, a.AsInt(), b.AsInt())
		}
		return Undefined, NewSpeculationFailure(pickNonInt(a, b), loc)
	}
	if kind == KindNumber {
		if a.IsNumber() && b.IsNumber() {
			return floatArith(op, a.AsFloat(), b.AsFloat()), nil
		}
		return Undefined, NewSpeculationFailure(pickNonNumber(a, b), loc)
	}
	return genericArith(op, a, b)
}

// pickNonInt returns the operand that broke the int assumption.
func pickNonInt(a, b Value) Value {
	if !a.IsSmallInt() {
		return a
	}
	return b
}

func pickNonNumber(a, b Value) Value {
	if !a.IsNumber() {
		return a
	}
	return b
}

// intArith performs exact small-integer arithmetic, raising a failure
// requiring the number representation when the result does not fit.
func intArith(loc int, op Opcode, a, b int64) (Value, error) {
	switch op {
	case OpAdd:
		r := a + b
		if r >= MinSmallInt && r <= MaxSmallInt {
			return FromInt(r), nil
		}
		return Undefined, failureFor(FromFloat(float64(a)+float64(b)), loc, KindNumber)

	case OpSub:
		r := a - b
		if r >= MinSmallInt && r <= MaxSmallInt {
			return FromInt(r), nil
		}
		return Undefined, failureFor(FromFloat(float64(a)-float64(b)), loc, KindNumber)

	case OpMul:
		if a != 0 {
			r := a * b
			if r/a != b || r < MinSmallInt || r > MaxSmallInt {
				return Undefined, failureFor(FromFloat(float64(a)*float64(b)), loc, KindNumber)
			}
			return FromInt(r), nil
		}
		return FromInt(0), nil

	case OpDiv:
		if b == 0 || a%b != 0 {
			return Undefined, failureFor(FromFloat(float64(a)/float64(b)), loc, KindNumber)
		}
		return FromInt(a / b), nil

	default:
		return Undefined, fmt.Errorf("vm: not an arithmetic opcode: %s", op.Name())
	}
}

func floatArith(op Opcode, a, b float64) Value {
	switch op {
	case OpAdd:
		return FromFloat(a + b)
	case OpSub:
		return FromFloat(a - b)
	case OpMul:
		return FromFloat(a * b)
	default:
		return FromFloat(a / b)
	}
}

// genericArith is the always-correct path: numeric operands use float
// math, string addition concatenates, anything else is a type error.
func genericArith(op Opcode, a, b Value) (Value, error) {
	if a.IsNumber() && b.IsNumber() {
		return floatArith(op, a.AsFloat(), b.AsFloat()), nil
	}
	if op == OpAdd && (a.IsString() || b.IsString()) {
		return FromString(a.String() + b.String()), nil
	}
	return Undefined, NewTypeError("unsupported operands for %s: %s, %s", op.Name(), a, b)
}

// negate executes unary minus with the same speculation discipline.
func negate(ctx *Context, chunk *Chunk, loc int, a Value) (Value, error) {
	for {
		kind := chunk.LocationKind(loc)
		if !ctx.OptimisticTypes {
			kind = KindObject
		}
		if kind == KindInt {
			if a.IsSmallInt() {
				r := -a.AsInt()
				if r >= MinSmallInt && r <= MaxSmallInt {
					return FromInt(r), nil
				}
				chunk.WidenLocation(loc, KindNumber)
				continue
			}
			chunk.WidenLocation(loc, RequiredKind(a))
			continue
		}
		if a.IsNumber() {
			return FromFloat(-a.AsFloat()), nil
		}
		return Undefined, NewTypeError("unsupported operand for neg: %s", a)
	}
}
