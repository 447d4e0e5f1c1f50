package bytecode

import (
	"encoding/binary"
	"fmt"

	"nilox/token"
)

// MaxConstants is the largest number of entries a single Chunk's constant
// pool may hold; constants are addressed by a single byte.
const MaxConstants = 256

// Chunk is an append-only container of instructions, constants, and
// per-instruction source positions the compiler emits and the VM
// executes. Invariants:
//   - len(Instructions) tracks 1:1 with len(positions) (one Position per
//     byte, opcode and operand bytes alike; see PositionAt).
//   - every Constant/*Global operand is a valid index into Constants.
//   - once a jump is patched, its offset lands on a valid instruction
//     boundary.
type Chunk struct {
	Instructions []byte
	Constants    []Value
	positions    []token.Position // index-aligned with Instructions, one entry per byte
}

// NewChunk returns an empty Chunk.
func NewChunk() *Chunk {
	return &Chunk{}
}

// WriteInstruction appends an opcode (and, if op.OperandWidth() > 0, a
// placeholder zero operand) to the chunk, recording pos for every byte of
// the instruction, and returns the index of the opcode byte.
func (c *Chunk) WriteInstruction(op OpCode, pos token.Position) int {
	site := len(c.Instructions)
	c.Instructions = append(c.Instructions, byte(op))
	c.positions = append(c.positions, pos)
	for i := 0; i < op.OperandWidth(); i++ {
		c.Instructions = append(c.Instructions, 0)
		c.positions = append(c.positions, pos)
	}
	return site
}

// WriteByteOperand sets a single-byte operand at site+1 (just after the
// opcode written at site).
func (c *Chunk) WriteByteOperand(site int, operand byte) {
	c.Instructions[site+1] = operand
}

// WriteConst appends val to the constant pool and returns its index. The
// caller must check ConstCount() < MaxConstants before calling; WriteConst
// does not itself enforce the limit so the compiler can attach a proper
// diagnostic with position information instead.
func (c *Chunk) WriteConst(val Value) uint8 {
	c.Constants = append(c.Constants, val)
	return uint8(len(c.Constants) - 1)
}

// ConstCount reports how many constants are currently in the pool.
func (c *Chunk) ConstCount() int {
	return len(c.Constants)
}

// ReadConst returns the constant at idx.
func (c *Chunk) ReadConst(idx uint8) Value {
	return c.Constants[idx]
}

// InstructionCount reports the number of bytes currently in the
// instruction stream -- the offset the next WriteInstruction will use.
func (c *Chunk) InstructionCount() int {
	return len(c.Instructions)
}

// PositionAt returns the source position recorded for the instruction
// starting at byte offset ip.
func (c *Chunk) PositionAt(ip int) token.Position {
	return c.positions[ip]
}

// PatchJump overwrites the 2-byte operand of the jump instruction whose
// opcode byte is at site with offset, in big-endian order. site must be
// the index returned by WriteInstruction for a Jump/JumpIfFalse/Loop
// instruction.
func (c *Chunk) PatchJump(site int, offset uint16) {
	binary.BigEndian.PutUint16(c.Instructions[site+1:site+3], offset)
}

// ReadUint16 reads the 2-byte big-endian operand starting at idx.
func (c *Chunk) ReadUint16(idx int) uint16 {
	return binary.BigEndian.Uint16(c.Instructions[idx : idx+2])
}

// ReadOp returns the opcode at byte offset ip.
func (c *Chunk) ReadOp(ip int) OpCode {
	return OpCode(c.Instructions[ip])
}

// String renders the chunk's instruction stream as a disassembly, one
// instruction per line, used only by tests -- debug pretty-printing is
// out of scope for the compiler's own output per spec.md §1.
func (c *Chunk) String() string {
	out := ""
	ip := 0
	for ip < len(c.Instructions) {
		op := c.ReadOp(ip)
		out += fmt.Sprintf("%04d %s", ip, op)
		switch op.OperandWidth() {
		case 1:
			out += fmt.Sprintf(" %d\n", c.Instructions[ip+1])
		case 2:
			out += fmt.Sprintf(" %d\n", c.ReadUint16(ip+1))
		default:
			out += "\n"
		}
		ip += op.InstructionWidth()
	}
	return out
}
