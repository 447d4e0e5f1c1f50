package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nilox/bytecode"
	"nilox/token"
)

func TestWriteInstructionTracksPositions(t *testing.T) {
	chunk := bytecode.NewChunk()
	pos := token.Position{Line: 3}

	site := chunk.WriteInstruction(bytecode.OpConstant, pos)
	chunk.WriteByteOperand(site, 5)

	require.Equal(t, 2, chunk.InstructionCount())
	assert.Equal(t, bytecode.OpConstant, chunk.ReadOp(site))
	assert.Equal(t, byte(5), chunk.Instructions[site+1])
	assert.Equal(t, pos, chunk.PositionAt(site))
	assert.Equal(t, pos, chunk.PositionAt(site+1))
}

func TestWriteConstAppendsAndIndexes(t *testing.T) {
	chunk := bytecode.NewChunk()
	idx1 := chunk.WriteConst(bytecode.Number(1))
	idx2 := chunk.WriteConst(bytecode.Number(2))

	assert.Equal(t, uint8(0), idx1)
	assert.Equal(t, uint8(1), idx2)
	assert.Equal(t, 2, chunk.ConstCount())
	assert.True(t, chunk.ReadConst(idx1).Equal(bytecode.Number(1)))
}

func TestPatchJumpOverwritesPlaceholder(t *testing.T) {
	chunk := bytecode.NewChunk()
	pos := token.Position{Line: 1}

	site := chunk.WriteInstruction(bytecode.OpJumpIfFalse, pos)
	chunk.WriteInstruction(bytecode.OpPop, pos)
	chunk.WriteInstruction(bytecode.OpNil, pos)

	offset := uint16(chunk.InstructionCount() - (site + 3))
	chunk.PatchJump(site, offset)

	assert.Equal(t, offset, chunk.ReadUint16(site+1))
}

func TestInstructionCountAcrossOperandWidths(t *testing.T) {
	chunk := bytecode.NewChunk()
	chunk.WriteInstruction(bytecode.OpPop, token.Position{})
	chunk.WriteInstruction(bytecode.OpConstant, token.Position{})
	chunk.WriteInstruction(bytecode.OpLoop, token.Position{})

	assert.Equal(t, 1+2+3, chunk.InstructionCount())
}

func TestChunkStringDisassembles(t *testing.T) {
	chunk := bytecode.NewChunk()
	site := chunk.WriteInstruction(bytecode.OpConstant, token.Position{Line: 1})
	chunk.WriteByteOperand(site, 0)
	chunk.WriteInstruction(bytecode.OpReturn, token.Position{Line: 1})

	out := chunk.String()
	assert.Contains(t, out, "OP_CONSTANT")
	assert.Contains(t, out, "OP_RETURN")
}
