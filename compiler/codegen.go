package compiler

import (
	"fmt"

	"github.com/kestreljs/kestrel/vm"
)

// ---------------------------------------------------------------------------
// Back end: program -> compiled unit
// ---------------------------------------------------------------------------

// MainUnitName is the unit holding the program's top-level body.
const MainUnitName = "main"

// MainFuncID identifies the top-level body in the entry table.
const MainFuncID = 0

// CompiledUnit is the back end's output: one code unit per function,
// entry descriptors for each, and the shared constant pool. Function
// constants are placeholders; the installation pipeline re-binds them to
// runtime function objects.
type CompiledUnit struct {
	MainUnit string
	Code     map[string][]byte
	Entries  map[int]vm.EntryDescriptor
	Pool     []vm.Constant
}

// CompileToUnit runs the back end over a parsed program.
func CompileToUnit(prog *Program) (*CompiledUnit, error) {
	if prog == nil || len(prog.Exprs) == 0 {
		return nil, fmt.Errorf("compiler: empty program")
	}

	cg := &codegen{
		unit: &CompiledUnit{
			MainUnit: MainUnitName,
			Code:     make(map[string][]byte),
			Entries:  make(map[int]vm.EntryDescriptor),
		},
		nextFuncID: MainFuncID + 1,
	}

	b := vm.NewChunkBuilder()
	for i, expr := range prog.Exprs {
		if i > 0 {
			b.Emit(vm.OpPOP)
		}
		if err := cg.emitExpr(b, expr, ""); err != nil {
			return nil, err
		}
	}
	b.Emit(vm.OpReturnTop)

	cg.unit.Code[MainUnitName] = b.Build().EncodeBytes()
	cg.unit.Entries[MainFuncID] = vm.EntryDescriptor{
		FuncID:    MainFuncID,
		UnitName:  MainUnitName,
		Name:      prog.SourceName,
		NumParams: 0,
	}
	return cg.unit, nil
}

type codegen struct {
	unit       *CompiledUnit
	nextFuncID int
}

func (cg *codegen) emitExpr(b *vm.ChunkBuilder, expr Expr, param string) error {
	switch e := expr.(type) {
	case *NumberLit:
		if e.IsIntegral && e.Int >= -128 && e.Int <= 127 {
			b.EmitByte(vm.OpPushInt8, byte(int8(e.Int)))
			return nil
		}
		if e.IsIntegral {
			b.EmitUint16(vm.OpPushConst, cg.addConst(vm.Constant{Kind: vm.ConstInt, Int: e.Int}))
			return nil
		}
		b.EmitUint16(vm.OpPushConst, cg.addConst(vm.Constant{Kind: vm.ConstNumber, Num: e.Value}))
		return nil

	case *StringLit:
		b.EmitUint16(vm.OpPushConst, cg.addConst(vm.Constant{Kind: vm.ConstString, Str: e.Value}))
		return nil

	case *Ident:
		if e.Name != param {
			return fmt.Errorf("compiler: unresolved name %q at line %d", e.Name, e.Line())
		}
		b.EmitByte(vm.OpPushParam, 0)
		return nil

	case *Unary:
		if err := cg.emitExpr(b, e.Operand, param); err != nil {
			return err
		}
		b.EmitArith(vm.OpNeg)
		return nil

	case *Binary:
		if err := cg.emitExpr(b, e.Left, param); err != nil {
			return err
		}
		if err := cg.emitExpr(b, e.Right, param); err != nil {
			return err
		}
		switch e.Op {
		case TokenPlus:
			b.EmitArith(vm.OpAdd)
		case TokenMinus:
			b.EmitArith(vm.OpSub)
		case TokenStar:
			b.EmitArith(vm.OpMul)
		case TokenSlash:
			b.EmitArith(vm.OpDiv)
		default:
			return fmt.Errorf("compiler: unsupported binary operator %s", e.Op)
		}
		return nil

	case *Call:
		if err := cg.emitExpr(b, e.Fn, param); err != nil {
			return err
		}
		if len(e.Args) > 255 {
			return fmt.Errorf("compiler: too many arguments at line %d", e.Line())
		}
		for _, arg := range e.Args {
			if err := cg.emitExpr(b, arg, param); err != nil {
				return err
			}
		}
		b.EmitByte(vm.OpCall, byte(len(e.Args)))
		return nil

	case *FuncLit:
		return cg.emitFuncLit(b, e)

	default:
		return fmt.Errorf("compiler: unknown expression node %T", expr)
	}
}

// emitFuncLit compiles the literal's body into its own code unit and
// pushes a function placeholder constant at the use site.
func (cg *codegen) emitFuncLit(b *vm.ChunkBuilder, e *FuncLit) error {
	funcID := cg.nextFuncID
	cg.nextFuncID++
	unitName := fmt.Sprintf("fn$%d", funcID)

	fb := vm.NewChunkBuilder()
	if err := cg.emitExpr(fb, e.Body, e.Param); err != nil {
		return err
	}
	fb.Emit(vm.OpReturnTop)

	cg.unit.Code[unitName] = fb.Build().EncodeBytes()
	cg.unit.Entries[funcID] = vm.EntryDescriptor{
		FuncID:    funcID,
		UnitName:  unitName,
		Name:      e.Param,
		NumParams: 1,
	}

	b.EmitUint16(vm.OpPushConst, cg.addConst(vm.Constant{Kind: vm.ConstFuncRef, FuncID: funcID}))
	return nil
}

func (cg *codegen) addConst(c vm.Constant) uint16 {
	cg.unit.Pool = append(cg.unit.Pool, c)
	return uint16(len(cg.unit.Pool) - 1)
}
