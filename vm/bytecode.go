package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack operations
const (
	OpNOP Opcode = 0x00 // no operation
	OpPOP Opcode = 0x01 // discard top of stack
)

// Push operations
const (
	OpPushConst     Opcode = 0x10 // push constant-pool entry (16-bit index)
	OpPushInt8      Opcode = 0x11 // push 8-bit signed integer
	OpPushUndefined Opcode = 0x12 // push undefined
	OpPushParam     Opcode = 0x13 // push parameter (8-bit index)
)

// Arithmetic (each carries a 16-bit program-location id for speculation)
const (
	OpAdd Opcode = 0x20 // +
	OpSub Opcode = 0x21 // -
	OpMul Opcode = 0x22 // *
	OpDiv Opcode = 0x23 // /
	OpNeg Opcode = 0x24 // unary -
)

// Calls and returns
const (
	OpCall      Opcode = 0x30 // call (8-bit argc); stack: fn args... -> result
	OpReturnTop Opcode = 0x40 // return top of stack
)

// operandBytes maps each opcode to its inline operand size.
func (op Opcode) operandBytes() int {
	switch op {
	case OpPushConst, OpAdd, OpSub, OpMul, OpDiv, OpNeg:
		return 2
	case OpPushInt8, OpPushParam, OpCall:
		return 1
	default:
		return 0
	}
}

// Name returns the mnemonic for the opcode.
func (op Opcode) Name() string {
	switch op {
	case OpNOP:
		return "nop"
	case OpPOP:
		return "pop"
	case OpPushConst:
		return "push-const"
	case OpPushInt8:
		return "push-int8"
	case OpPushUndefined:
		return "push-undefined"
	case OpPushParam:
		return "push-param"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpNeg:
		return "neg"
	case OpCall:
		return "call"
	case OpReturnTop:
		return "return-top"
	default:
		return fmt.Sprintf("op-%02x", byte(op))
	}
}

// ---------------------------------------------------------------------------
// Chunk
// ---------------------------------------------------------------------------

// Chunk is one loadable unit of bytecode. Program locations are the
// opaque, monotonically-assigned identifiers speculation failures refer
// to; the chunk keeps a per-location representation profile that only
// widens.
type Chunk struct {
	Code         []byte
	NumLocations int

	profileMu sync.Mutex
	profile   []Kind
}

// NewChunk creates a chunk with a fresh all-int location profile.
func NewChunk(code []byte, numLocations int) *Chunk {
	return &Chunk{
		Code:         code,
		NumLocations: numLocations,
		profile:      make([]Kind, numLocations),
	}
}

// LocationKind returns the current representation assumed at a location.
// Locations outside the chunk (including NoLocation) report KindObject.
func (c *Chunk) LocationKind(loc int) Kind {
	if loc < 0 || loc >= len(c.profile) {
		return KindObject
	}
	c.profileMu.Lock()
	defer c.profileMu.Unlock()
	return c.profile[loc]
}

// WidenLocation re-specializes a single location to at least kind.
// Narrowing requests are ignored: the profile is monotone.
func (c *Chunk) WidenLocation(loc int, kind Kind) {
	if loc < 0 || loc >= len(c.profile) {
		return
	}
	c.profileMu.Lock()
	if kind > c.profile[loc] {
		c.profile[loc] = kind
	}
	c.profileMu.Unlock()
}

// ---------------------------------------------------------------------------
// Chunk wire format
// ---------------------------------------------------------------------------

// Chunk encoding magic and version. The location profile is not
// persisted: a reloaded chunk starts from fresh narrow assumptions.
var chunkMagic = [4]byte{'K', 'C', 'H', '1'}

// ErrCorruptChunk indicates code bytes that do not decode as a chunk.
var ErrCorruptChunk = errors.New("vm: corrupt chunk data")

// EncodeBytes serializes the chunk's code for installation or
// persistence.
func (c *Chunk) EncodeBytes() []byte {
	buf := make([]byte, 0, 12+len(c.Code))
	buf = append(buf, chunkMagic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.NumLocations))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c.Code)))
	buf = append(buf, c.Code...)
	return buf
}

// DecodeChunk deserializes code bytes produced by EncodeBytes.
func DecodeChunk(data []byte) (*Chunk, error) {
	if len(data) < 12 || string(data[:4]) != string(chunkMagic[:]) {
		return nil, ErrCorruptChunk
	}
	numLocations := int(binary.LittleEndian.Uint32(data[4:]))
	codeLen := int(binary.LittleEndian.Uint32(data[8:]))
	if codeLen < 0 || 12+codeLen > len(data) {
		return nil, ErrCorruptChunk
	}
	// Every location belongs to an instruction, so a count beyond the
	// code length cannot come from the encoder.
	if numLocations < 0 || numLocations > codeLen {
		return nil, ErrCorruptChunk
	}
	code := make([]byte, codeLen)
	copy(code, data[12:12+codeLen])
	return NewChunk(code, numLocations), nil
}

// ---------------------------------------------------------------------------
// ChunkBuilder
// ---------------------------------------------------------------------------

// ChunkBuilder assembles bytecode and assigns program locations.
type ChunkBuilder struct {
	code         []byte
	numLocations int
}

// NewChunkBuilder creates an empty builder.
func NewChunkBuilder() *ChunkBuilder { return &ChunkBuilder{} }

// Emit appends an opcode with no operand.
func (b *ChunkBuilder) Emit(op Opcode) { b.code = append(b.code, byte(op)) }

// EmitByte appends an opcode with an 8-bit operand.
func (b *ChunkBuilder) EmitByte(op Opcode, operand byte) {
	b.code = append(b.code, byte(op), operand)
}

// EmitUint16 appends an opcode with a 16-bit operand.
func (b *ChunkBuilder) EmitUint16(op Opcode, operand uint16) {
	b.code = append(b.code, byte(op))
	b.code = binary.LittleEndian.AppendUint16(b.code, operand)
}

// EmitArith appends an arithmetic opcode, assigning it the next program
// location. Returns the location id.
func (b *ChunkBuilder) EmitArith(op Opcode) int {
	loc := b.numLocations
	b.numLocations++
	b.EmitUint16(op, uint16(loc))
	return loc
}

// Build finalizes the chunk.
func (b *ChunkBuilder) Build() *Chunk {
	return NewChunk(b.code, b.numLocations)
}
