package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

// Lexer tokenizes Kestrel source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	if r == '\n' {
		l.line++
	}
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// Next returns the next token.
func (l *Lexer) Next() Token {
	l.skipWhitespace()

	line := l.line
	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Line: line}

	case l.ch == '+':
		l.readChar()
		return Token{Type: TokenPlus, Literal: "+", Line: line}

	case l.ch == '-':
		if l.peekChar() == '>' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenArrow, Literal: "->", Line: line}
		}
		l.readChar()
		return Token{Type: TokenMinus, Literal: "-", Line: line}

	case l.ch == '*':
		l.readChar()
		return Token{Type: TokenStar, Literal: "*", Line: line}

	case l.ch == '/':
		l.readChar()
		return Token{Type: TokenSlash, Literal: "/", Line: line}

	case l.ch == '(':
		l.readChar()
		return Token{Type: TokenLParen, Literal: "(", Line: line}

	case l.ch == ')':
		l.readChar()
		return Token{Type: TokenRParen, Literal: ")", Line: line}

	case l.ch == ';':
		l.readChar()
		return Token{Type: TokenSemicolon, Literal: ";", Line: line}

	case l.ch == ',':
		l.readChar()
		return Token{Type: TokenComma, Literal: ",", Line: line}

	case l.ch == '"':
		return l.readString()

	case unicode.IsDigit(l.ch):
		return l.readNumber()

	case isIdentStart(l.ch):
		return l.readIdentifier()

	default:
		ch := string(l.ch)
		l.readChar()
		return Token{Type: TokenError, Literal: ch, Line: line}
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (l *Lexer) readNumber() Token {
	line := l.line
	start := l.pos
	for unicode.IsDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && unicode.IsDigit(l.peekChar()) {
		l.readChar()
		for unicode.IsDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for unicode.IsDigit(l.ch) {
			l.readChar()
		}
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Line: line}
}

func (l *Lexer) readString() Token {
	line := l.line
	l.readChar() // consume opening quote

	var sb strings.Builder
	for l.ch != '"' && l.ch != 0 {
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '"':
				sb.WriteRune('"')
			case '\\':
				sb.WriteRune('\\')
			default:
				sb.WriteRune(l.ch)
			}
		} else {
			sb.WriteRune(l.ch)
		}
		l.readChar()
	}
	if l.ch == 0 {
		return Token{Type: TokenError, Literal: "unterminated string", Line: line}
	}
	l.readChar() // consume closing quote
	return Token{Type: TokenString, Literal: sb.String(), Line: line}
}

func (l *Lexer) readIdentifier() Token {
	line := l.line
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if lit == "fun" {
		return Token{Type: TokenFun, Literal: lit, Line: line}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Line: line}
}
