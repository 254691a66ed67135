package vm

import "fmt"

// ---------------------------------------------------------------------------
// Representation lattice
// ---------------------------------------------------------------------------

// Kind is a point on the representation lattice {int ≤ number ≤ object}.
// Storage and speculative code move up the lattice only; a representation
// never narrows back implicitly.
type Kind uint8

const (
	KindInt    Kind = iota // 48-bit small integers / int64 element cells
	KindNumber             // float64
	KindObject             // any boxed Value
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindNumber:
		return "number"
	case KindObject:
		return "object"
	default:
		return "?"
	}
}

// Wider reports whether k is strictly wider than other.
func (k Kind) Wider(other Kind) bool { return k > other }

// Widest returns the wider of the two kinds.
func Widest(a, b Kind) Kind {
	if a > b {
		return a
	}
	return b
}

// RequiredKind infers the representation a value needs. Floats that lose
// nothing stay "number"; anything else is a generic object. An integer
// never appears as a required kind: an integer-producing operation that
// fails must by construction require at least "number".
func RequiredKind(v Value) Kind {
	if v.IsNumber() {
		return KindNumber
	}
	return KindObject
}

// KindOf returns the narrowest kind that can hold v.
func KindOf(v Value) Kind {
	switch {
	case v.IsSmallInt():
		return KindInt
	case v.IsFloat():
		return KindNumber
	default:
		return KindObject
	}
}

// ---------------------------------------------------------------------------
// Speculation failure
// ---------------------------------------------------------------------------

// NoLocation marks a failure raised from a guard context that does not
// need re-specialization targeting.
const NoLocation = -1

// SpeculationFailure signals that a value did not fit the narrow
// representation an operation was compiled under. It is a control-flow
// signal, not a user-visible error: the runtime consumes it to widen
// exactly one program location and retry.
type SpeculationFailure struct {
	Value    Value // the actual value observed
	Location int   // opaque program location, NoLocation if untargeted
	Required Kind  // representation needed to hold the value
}

func (f *SpeculationFailure) Error() string {
	return fmt.Sprintf("speculation failure at location %d: value %s requires %s",
		f.Location, f.Value, f.Required)
}

// NewSpeculationFailure builds a failure for the observed value. The
// required representation is inferred by the widening rule and is never
// KindInt.
func NewSpeculationFailure(v Value, location int) *SpeculationFailure {
	return &SpeculationFailure{Value: v, Location: location, Required: RequiredKind(v)}
}

// failureFor raises a failure that explicitly requires the given kind.
// Panics if asked to require the narrowest representation: there is no
// point raising a failure to fall back to the same representation.
func failureFor(v Value, location int, required Kind) *SpeculationFailure {
	if required == KindInt {
		panic("vm: speculation failure may not require the int representation")
	}
	return &SpeculationFailure{Value: v, Location: location, Required: required}
}
