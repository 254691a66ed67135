package compiler

import (
	"testing"

	"github.com/kestreljs/kestrel/vm"
)

func parseOK(t *testing.T, input string) *Program {
	t.Helper()
	sink := NewErrorSink()
	prog := Parse("test", input, sink)
	if sink.HasErrors() {
		t.Fatalf("Parse(%q): %v", input, sink.First())
	}
	return prog
}

func TestParseNumber(t *testing.T) {
	prog := parseOK(t, "42")
	lit, ok := prog.Exprs[0].(*NumberLit)
	if !ok {
		t.Fatalf("Expected number literal, got %T", prog.Exprs[0])
	}
	if !lit.IsIntegral || lit.Int != 42 {
		t.Errorf("Expected integral 42, got %+v", lit)
	}

	prog = parseOK(t, "1.5")
	lit = prog.Exprs[0].(*NumberLit)
	if lit.IsIntegral || lit.Value != 1.5 {
		t.Errorf("Expected non-integral 1.5, got %+v", lit)
	}

	prog = parseOK(t, "2e3")
	lit = prog.Exprs[0].(*NumberLit)
	if lit.IsIntegral || lit.Value != 2000 {
		t.Errorf("Exponent form must not be integral, got %+v", lit)
	}
}

func TestParseString(t *testing.T) {
	prog := parseOK(t, `"he\"llo"`)
	lit, ok := prog.Exprs[0].(*StringLit)
	if !ok || lit.Value != `he"llo` {
		t.Errorf("Expected escaped string, got %+v", prog.Exprs[0])
	}
}

func TestParsePrecedence(t *testing.T) {
	prog := parseOK(t, "1 + 2 * 3")
	add, ok := prog.Exprs[0].(*Binary)
	if !ok || add.Op != TokenPlus {
		t.Fatalf("Expected top-level +, got %+v", prog.Exprs[0])
	}
	mul, ok := add.Right.(*Binary)
	if !ok || mul.Op != TokenStar {
		t.Errorf("* must bind tighter than +, got %+v", add.Right)
	}
}

func TestParseParensOverridePrecedence(t *testing.T) {
	prog := parseOK(t, "(1 + 2) * 3")
	mul, ok := prog.Exprs[0].(*Binary)
	if !ok || mul.Op != TokenStar {
		t.Fatalf("Expected top-level *, got %+v", prog.Exprs[0])
	}
	if add, ok := mul.Left.(*Binary); !ok || add.Op != TokenPlus {
		t.Errorf("Parenthesized + must be the left operand, got %+v", mul.Left)
	}
}

func TestParseUnaryMinus(t *testing.T) {
	prog := parseOK(t, "-2 * 3")
	mul := prog.Exprs[0].(*Binary)
	if _, ok := mul.Left.(*Unary); !ok {
		t.Errorf("Unary minus must bind tighter than *, got %+v", mul.Left)
	}
}

func TestParseSequencing(t *testing.T) {
	prog := parseOK(t, "1; 2; 3")
	if len(prog.Exprs) != 3 {
		t.Errorf("Expected 3 expressions, got %d", len(prog.Exprs))
	}
	// A trailing semicolon is allowed.
	prog = parseOK(t, "1;")
	if len(prog.Exprs) != 1 {
		t.Errorf("Expected 1 expression, got %d", len(prog.Exprs))
	}
}

func TestParseFuncLit(t *testing.T) {
	prog := parseOK(t, "fun x -> x + 1")
	fn, ok := prog.Exprs[0].(*FuncLit)
	if !ok {
		t.Fatalf("Expected function literal, got %T", prog.Exprs[0])
	}
	if fn.Param != "x" {
		t.Errorf("Expected parameter x, got %q", fn.Param)
	}
	if _, ok := fn.Body.(*Binary); !ok {
		t.Errorf("Expected binary body, got %T", fn.Body)
	}
}

func TestParseCall(t *testing.T) {
	prog := parseOK(t, "(fun x -> x * 2)(21)")
	call, ok := prog.Exprs[0].(*Call)
	if !ok {
		t.Fatalf("Expected call, got %T", prog.Exprs[0])
	}
	if len(call.Args) != 1 {
		t.Errorf("Expected 1 argument, got %d", len(call.Args))
	}
}

func TestParseUndefinedName(t *testing.T) {
	sink := NewErrorSink()
	Parse("test", "y + 1", sink)
	if !sink.HasErrors() {
		t.Fatal("Free identifiers must be reference errors")
	}
	if sink.First().Kind != vm.ReferenceError {
		t.Errorf("Expected ReferenceError, got %v", sink.First().Kind)
	}
}

func TestParseNoClosures(t *testing.T) {
	// An inner literal cannot see the outer parameter.
	sink := NewErrorSink()
	Parse("test", "fun x -> fun y -> x", sink)
	if !sink.HasErrors() {
		t.Error("Outer parameters must not be visible to inner literals")
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	cases := []string{
		"",
		"1 +",
		"(1 + 2",
		"fun -> 1",
		"fun x 1",
		"1 2",
		"@",
	}
	for _, input := range cases {
		sink := NewErrorSink()
		Parse("test", input, sink)
		if !sink.HasErrors() {
			t.Errorf("Parse(%q) must record an error", input)
		}
		if sink.First().Kind != vm.SyntaxError && sink.First().Kind != vm.ReferenceError {
			t.Errorf("Parse(%q): unexpected kind %v", input, sink.First().Kind)
		}
		if sink.First().Source != "test" {
			t.Errorf("Errors must carry the source name, got %q", sink.First().Source)
		}
	}
}

func TestErrorSink(t *testing.T) {
	sink := NewErrorSink()
	if sink.HasErrors() || sink.First() != nil {
		t.Error("Fresh sink must be clean")
	}
	sink.Record(vm.NewSyntaxError("s", 1, "first"))
	sink.Record(vm.NewSyntaxError("s", 2, "second"))
	if len(sink.Errors()) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(sink.Errors()))
	}
	if sink.First().Line != 1 {
		t.Error("First must return the earliest error")
	}
}
