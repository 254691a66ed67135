package compiler

import (
	"strconv"
	"strings"

	"github.com/kestreljs/kestrel/vm"
)

// ---------------------------------------------------------------------------
// ErrorSink
// ---------------------------------------------------------------------------

// ErrorSink accumulates front-end errors. Callers check HasErrors rather
// than relying on a distinguished parse result.
type ErrorSink struct {
	errors []*vm.LangError
}

// NewErrorSink creates an empty sink.
func NewErrorSink() *ErrorSink { return &ErrorSink{} }

// Record appends an error.
func (s *ErrorSink) Record(err *vm.LangError) { s.errors = append(s.errors, err) }

// HasErrors reports whether any error was recorded.
func (s *ErrorSink) HasErrors() bool { return len(s.errors) > 0 }

// Errors returns the recorded errors.
func (s *ErrorSink) Errors() []*vm.LangError { return s.errors }

// First returns the first recorded error, or nil.
func (s *ErrorSink) First() *vm.LangError {
	if len(s.errors) == 0 {
		return nil
	}
	return s.errors[0]
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// Parser builds the intermediate representation from tokens.
type Parser struct {
	lexer      *Lexer
	sink       *ErrorSink
	sourceName string

	curToken  Token
	peekToken Token

	// params tracks the enclosing function-literal parameters so
	// identifier references can be resolved at parse time.
	params []string
}

// Parse runs the front end over source text. Errors are recorded in the
// sink; the returned program is meaningful only when the sink stayed
// clean.
func Parse(sourceName, input string, sink *ErrorSink) *Program {
	p := &Parser{lexer: NewLexer(input), sink: sink, sourceName: sourceName}
	p.nextToken()
	p.nextToken()
	return p.parseProgram()
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.Next()
}

func (p *Parser) errorf(line int, format string, args ...any) {
	p.sink.Record(vm.NewSyntaxError(p.sourceName, line, format, args...))
}

func (p *Parser) expect(t TokenType) bool {
	if p.curToken.Type == t {
		p.nextToken()
		return true
	}
	p.errorf(p.curToken.Line, "expected %s, got %s", t, p.curToken.Type)
	return false
}

func (p *Parser) parseProgram() *Program {
	prog := &Program{SourceName: p.sourceName}
	for p.curToken.Type != TokenEOF {
		expr := p.parseExpr()
		if expr == nil {
			break
		}
		prog.Exprs = append(prog.Exprs, expr)
		if p.curToken.Type == TokenSemicolon {
			p.nextToken()
			continue
		}
		if p.curToken.Type != TokenEOF {
			p.errorf(p.curToken.Line, "expected ; or end of input, got %s", p.curToken.Type)
			break
		}
	}
	if len(prog.Exprs) == 0 && !p.sink.HasErrors() {
		p.errorf(p.curToken.Line, "empty program")
	}
	return prog
}

// parseExpr parses additive expressions.
func (p *Parser) parseExpr() Expr {
	left := p.parseTerm()
	if left == nil {
		return nil
	}
	for p.curToken.Type == TokenPlus || p.curToken.Type == TokenMinus {
		op := p.curToken.Type
		line := p.curToken.Line
		p.nextToken()
		right := p.parseTerm()
		if right == nil {
			return nil
		}
		left = &Binary{node: node{line: line}, Op: op, Left: left, Right: right}
	}
	return left
}

// parseTerm parses multiplicative expressions.
func (p *Parser) parseTerm() Expr {
	left := p.parseUnary()
	if left == nil {
		return nil
	}
	for p.curToken.Type == TokenStar || p.curToken.Type == TokenSlash {
		op := p.curToken.Type
		line := p.curToken.Line
		p.nextToken()
		right := p.parseUnary()
		if right == nil {
			return nil
		}
		left = &Binary{node: node{line: line}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() Expr {
	if p.curToken.Type == TokenMinus {
		line := p.curToken.Line
		p.nextToken()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		return &Unary{node: node{line: line}, Op: TokenMinus, Operand: operand}
	}
	return p.parseCall()
}

// parseCall parses a primary expression followed by call suffixes.
func (p *Parser) parseCall() Expr {
	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}
	for p.curToken.Type == TokenLParen {
		line := p.curToken.Line
		p.nextToken()
		var args []Expr
		if p.curToken.Type != TokenRParen {
			for {
				arg := p.parseExpr()
				if arg == nil {
					return nil
				}
				args = append(args, arg)
				if p.curToken.Type != TokenComma {
					break
				}
				p.nextToken()
			}
		}
		if !p.expect(TokenRParen) {
			return nil
		}
		expr = &Call{node: node{line: line}, Fn: expr, Args: args}
	}
	return expr
}

func (p *Parser) parsePrimary() Expr {
	tok := p.curToken
	switch tok.Type {
	case TokenNumber:
		p.nextToken()
		return p.numberLit(tok)

	case TokenString:
		p.nextToken()
		return &StringLit{node: node{line: tok.Line}, Value: tok.Literal}

	case TokenIdentifier:
		p.nextToken()
		if !p.paramInScope(tok.Literal) {
			p.sink.Record(&vm.LangError{
				Kind:    vm.ReferenceError,
				Message: "undefined name: " + tok.Literal,
				Source:  p.sourceName,
				Line:    tok.Line,
			})
			return nil
		}
		return &Ident{node: node{line: tok.Line}, Name: tok.Literal}

	case TokenLParen:
		p.nextToken()
		expr := p.parseExpr()
		if expr == nil {
			return nil
		}
		if !p.expect(TokenRParen) {
			return nil
		}
		return expr

	case TokenFun:
		return p.parseFuncLit()

	case TokenError:
		p.errorf(tok.Line, "unexpected character %q", tok.Literal)
		p.nextToken()
		return nil

	default:
		p.errorf(tok.Line, "unexpected token %s", tok.Type)
		return nil
	}
}

// parseFuncLit parses `fun x -> expr`.
func (p *Parser) parseFuncLit() Expr {
	line := p.curToken.Line
	p.nextToken() // consume fun

	if p.curToken.Type != TokenIdentifier {
		p.errorf(p.curToken.Line, "expected parameter name after fun, got %s", p.curToken.Type)
		return nil
	}
	param := p.curToken.Literal
	p.nextToken()

	if !p.expect(TokenArrow) {
		return nil
	}

	p.params = append(p.params, param)
	body := p.parseExpr()
	p.params = p.params[:len(p.params)-1]
	if body == nil {
		return nil
	}
	return &FuncLit{node: node{line: line}, Param: param, Body: body}
}

// paramInScope resolves a name against the innermost function literal.
// Captured outer parameters are not supported: function literals close
// over nothing.
func (p *Parser) paramInScope(name string) bool {
	if len(p.params) == 0 {
		return false
	}
	return p.params[len(p.params)-1] == name
}

func (p *Parser) numberLit(tok Token) Expr {
	f, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil {
		p.errorf(tok.Line, "malformed number %q", tok.Literal)
		return nil
	}
	lit := &NumberLit{node: node{line: tok.Line}, Value: f}
	if !strings.ContainsAny(tok.Literal, ".eE") {
		if i, err := strconv.ParseInt(tok.Literal, 10, 64); err == nil {
			lit.IsIntegral = true
			lit.Int = i
		}
	}
	return lit
}
