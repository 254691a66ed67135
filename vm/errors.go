package vm

import "fmt"

// ErrorKind categorizes a language-level error.
type ErrorKind int

const (
	SyntaxError ErrorKind = iota
	ReferenceError
	TypeError
	RangeError
	URIError
)

func (k ErrorKind) String() string {
	switch k {
	case SyntaxError:
		return "SyntaxError"
	case ReferenceError:
		return "ReferenceError"
	case TypeError:
		return "TypeError"
	case RangeError:
		return "RangeError"
	case URIError:
		return "URIError"
	default:
		return "Error"
	}
}

// LangError is a typed language-level error carrying a category and
// enough source context to be actionable. It is never process-fatal.
type LangError struct {
	Kind    ErrorKind
	Message string
	Source  string // source name, empty if unknown
	Line    int    // 1-based, 0 if unknown
}

func (e *LangError) Error() string {
	if e.Source != "" && e.Line > 0 {
		return fmt.Sprintf("%s: %s (%s:%d)", e.Kind, e.Message, e.Source, e.Line)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewSyntaxError creates a syntax error at a source position.
func NewSyntaxError(source string, line int, format string, args ...any) *LangError {
	return &LangError{Kind: SyntaxError, Message: fmt.Sprintf(format, args...), Source: source, Line: line}
}

// NewReferenceError creates a reference error.
func NewReferenceError(format string, args ...any) *LangError {
	return &LangError{Kind: ReferenceError, Message: fmt.Sprintf(format, args...)}
}

// NewTypeError creates a type error.
func NewTypeError(format string, args ...any) *LangError {
	return &LangError{Kind: TypeError, Message: fmt.Sprintf(format, args...)}
}

// NewRangeError creates a range error.
func NewRangeError(format string, args ...any) *LangError {
	return &LangError{Kind: RangeError, Message: fmt.Sprintf(format, args...)}
}
