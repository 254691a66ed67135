// Package compiler holds the narrow front end and back end the code
// cache invokes: Parse turns source text into a program, CompileToUnit
// turns a program into an installable compiled unit. Errors are recorded
// in an ErrorSink; absence of a result is signaled by the sink's error
// flag, not by a distinguished return value.
package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber     // 42, 3.14, 1.5e10
	TokenString     // "hello"
	TokenIdentifier // foo

	// Keywords
	TokenFun // fun

	// Operators and delimiters
	TokenPlus      // +
	TokenMinus     // -
	TokenStar      // *
	TokenSlash     // /
	TokenLParen    // (
	TokenRParen    // )
	TokenSemicolon // ;
	TokenComma     // ,
	TokenArrow     // ->
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNumber:     "NUMBER",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenFun:        "fun",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenSemicolon:  ";",
	TokenComma:      ",",
	TokenArrow:      "->",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is one lexeme with its source position.
type Token struct {
	Type    TokenType
	Literal string
	Line    int // 1-based
}
