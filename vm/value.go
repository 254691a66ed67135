package vm

import (
	"math"
	"strconv"
	"unsafe"
)

// Value represents a Kestrel value using NaN-boxing.
//
// All values are represented as 64-bit IEEE 754 doubles. Non-float values
// are encoded in the NaN (Not-a-Number) space using the quiet NaN prefix
// and tag bits to distinguish types.
//
// Encoding scheme:
//   - Float: Native IEEE 754 double (if not a NaN, it's a float)
//   - SmallInt: Quiet NaN + tagInt + 48-bit signed payload
//   - Object: Quiet NaN + tagObject + 48-bit pointer (referent pinned)
//   - String: Quiet NaN + tagString + interned string ID
//   - Func: Quiet NaN + tagFunc + callable registry ID
//   - Special: Quiet NaN + tagSpecial + special value ID
type Value uint64

// NaN-boxing constants
const (
	// Quiet NaN prefix: exponent all 1s, quiet bit set, sign bit 0
	nanBits uint64 = 0x7FF8000000000000

	// Tag mask: 3 bits within the NaN mantissa space
	tagMask uint64 = 0x0007000000000000

	// Payload mask: 48 bits for pointer/int/id
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	// Tag values (shifted into position)
	tagObject  uint64 = 0x0001000000000000 // Heap object pointer
	tagInt     uint64 = 0x0002000000000000 // 48-bit signed integer
	tagSpecial uint64 = 0x0003000000000000 // undefined, null, true, false
	tagString  uint64 = 0x0004000000000000 // Interned string ID
	tagFunc    uint64 = 0x0005000000000000 // Callable registry ID

	// Sign bit for 48-bit integer sign extension
	intSignBit uint64 = 0x0000800000000000

	// Mask for sign extension
	intSignExtend uint64 = 0xFFFF000000000000
)

// Special value payloads
const (
	specialUndefined uint64 = 0
	specialNull      uint64 = 1
	specialTrue      uint64 = 2
	specialFalse     uint64 = 3
)

// Pre-defined special values
const (
	Undefined Value = Value(nanBits | tagSpecial | specialUndefined)
	Null      Value = Value(nanBits | tagSpecial | specialNull)
	True      Value = Value(nanBits | tagSpecial | specialTrue)
	False     Value = Value(nanBits | tagSpecial | specialFalse)
)

// SmallInt range (48-bit signed)
const (
	MaxSmallInt int64 = (1 << 47) - 1
	MinSmallInt int64 = -(1 << 47)
)

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsFloat returns true if v represents a float64 value.
// A value is a float if it's not one of our tagged NaN values.
func (v Value) IsFloat() bool {
	bits := uint64(v)

	if (bits & 0x7FF0000000000000) != 0x7FF0000000000000 {
		// Exponent is not all 1s, so it's a regular float
		return true
	}

	// Exponent all 1s: Infinity has mantissa == 0 (ignoring sign bit)
	mantissa := bits & 0x000FFFFFFFFFFFFF
	if mantissa == 0 {
		return true
	}

	if (bits & nanBits) != nanBits {
		// Signaling NaN, treat as float
		return true
	}

	tag := bits & tagMask
	if tag == 0 {
		// A "real" quiet NaN, treat as float
		return true
	}

	return false
}

// IsSmallInt returns true if v represents a small integer.
func (v Value) IsSmallInt() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagInt)
}

// IsNumber returns true if v is a small integer or a float.
func (v Value) IsNumber() bool {
	return v.IsSmallInt() || v.IsFloat()
}

// IsObject returns true if v represents a heap object pointer.
func (v Value) IsObject() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagObject)
}

// IsString returns true if v represents a string.
func (v Value) IsString() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagString)
}

// IsFunc returns true if v represents a callable.
func (v Value) IsFunc() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagFunc)
}

// IsUndefined returns true if v is the undefined value.
func (v Value) IsUndefined() bool { return v == Undefined }

// IsNull returns true if v is the null value.
func (v Value) IsNull() bool { return v == Null }

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool { return v == True || v == False }

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// FromFloat creates a Value from a float64.
func FromFloat(f float64) Value {
	if math.IsNaN(f) {
		// Canonicalize NaN so it can't collide with tagged values
		return Value(nanBits)
	}
	return Value(math.Float64bits(f))
}

// FromInt creates a Value from an int64. Integers outside the 48-bit
// small-int range fall back to the float representation.
func FromInt(i int64) Value {
	if i < MinSmallInt || i > MaxSmallInt {
		return FromFloat(float64(i))
	}
	return Value(nanBits | tagInt | (uint64(i) & payloadMask))
}

// FromBool creates a Value from a bool.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromString creates a Value boxing the given string. Equal strings
// intern to the same ID, so equal string Values compare equal.
func FromString(s string) Value {
	return Value(nanBits | tagString | uint64(boxedStrings.intern(s)))
}

// FromObject creates a Value from a ScriptObject pointer. The object is
// pinned so the raw pointer in the payload stays valid.
func FromObject(obj *ScriptObject) Value {
	pinObject(obj)
	return Value(nanBits | tagObject | (uint64(uintptr(unsafe.Pointer(obj))) & payloadMask))
}

// FromCallable creates a Value boxing the given callable.
func FromCallable(c Callable) Value {
	return Value(nanBits | tagFunc | uint64(boxedFuncs.register(c)))
}

// ---------------------------------------------------------------------------
// Extraction
// ---------------------------------------------------------------------------

// AsFloat extracts the float64 from v. Only valid if IsFloat or IsSmallInt.
func (v Value) AsFloat() float64 {
	if v.IsSmallInt() {
		return float64(v.AsInt())
	}
	return math.Float64frombits(uint64(v))
}

// AsInt extracts the small integer payload with sign extension.
func (v Value) AsInt() int64 {
	payload := uint64(v) & payloadMask
	if payload&intSignBit != 0 {
		return int64(payload | intSignExtend)
	}
	return int64(payload)
}

// AsObject extracts the ScriptObject pointer. Returns nil if not an object.
func (v Value) AsObject() *ScriptObject {
	if !v.IsObject() {
		return nil
	}
	return (*ScriptObject)(unsafe.Pointer(uintptr(uint64(v) & payloadMask)))
}

// AsString extracts the boxed string. Only valid if IsString.
func (v Value) AsString() string {
	return boxedStrings.text(uint32(uint64(v) & payloadMask))
}

// AsCallable extracts the boxed callable. Returns nil if not a func value.
func (v Value) AsCallable() Callable {
	if !v.IsFunc() {
		return nil
	}
	return boxedFuncs.lookup(uint32(uint64(v) & payloadMask))
}

// AsBool extracts a boolean. Only True is true.
func (v Value) AsBool() bool { return v == True }

// ---------------------------------------------------------------------------
// Display
// ---------------------------------------------------------------------------

// String renders v for diagnostics and the CLI.
func (v Value) String() string {
	switch {
	case v == Undefined:
		return "undefined"
	case v == Null:
		return "null"
	case v == True:
		return "true"
	case v == False:
		return "false"
	case v.IsSmallInt():
		return strconv.FormatInt(v.AsInt(), 10)
	case v.IsFloat():
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	case v.IsString():
		return v.AsString()
	case v.IsFunc():
		return "<function>"
	case v.IsObject():
		return "<object>"
	default:
		return "<?>"
	}
}
