package compiler_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nilox/bytecode"
	"nilox/compiler"
	"nilox/intern"
)

func compile(t *testing.T, src string) (*bytecode.Function, string) {
	t.Helper()
	var diag bytes.Buffer
	fn, ok := compiler.Compile(src, intern.New(), compiler.WithDiagnostics(&diag))
	if !ok {
		return nil, diag.String()
	}
	return fn, diag.String()
}

func TestCompilePrintLiteralRoundTrip(t *testing.T) {
	fn, diag := compile(t, "print 42;")
	require.Empty(t, diag)
	require.NotNil(t, fn)

	chunk := fn.Chunk
	require.Equal(t, 1, chunk.ConstCount())
	assert.True(t, chunk.ReadConst(0).Equal(bytecode.Number(42)))

	ops := opsOf(chunk)
	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpConstant, bytecode.OpPrint, bytecode.OpNil, bytecode.OpReturn,
	}, ops)
}

func opsOf(chunk *bytecode.Chunk) []bytecode.OpCode {
	var ops []bytecode.OpCode
	ip := 0
	for ip < chunk.InstructionCount() {
		op := chunk.ReadOp(ip)
		ops = append(ops, op)
		ip += op.InstructionWidth()
	}
	return ops
}

func TestBangEqualAndNotEqualShareSuffix(t *testing.T) {
	fnA, diagA := compile(t, "print a != b;")
	fnB, diagB := compile(t, "print !(a == b);")
	require.Empty(t, diagA)
	require.Empty(t, diagB)

	opsA := opsOf(fnA.Chunk)
	opsB := opsOf(fnB.Chunk)
	assert.Equal(t, opsA, opsB)
	assert.True(t, containsSeq(opsA, bytecode.OpEqual, bytecode.OpNot))
}

// containsSeq reports whether seq appears contiguously within ops.
func containsSeq(ops []bytecode.OpCode, seq ...bytecode.OpCode) bool {
	for i := 0; i+len(seq) <= len(ops); i++ {
		match := true
		for j, op := range seq {
			if ops[i+j] != op {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestLessEqualAndGreaterEqualDesugar(t *testing.T) {
	fn, diag := compile(t, "print a <= b;")
	require.Empty(t, diag)
	ops := opsOf(fn.Chunk)
	assert.Contains(t, ops, bytecode.OpGreater)
	assert.Contains(t, ops, bytecode.OpNot)

	fn2, diag2 := compile(t, "print a >= b;")
	require.Empty(t, diag2)
	ops2 := opsOf(fn2.Chunk)
	assert.Contains(t, ops2, bytecode.OpLess)
	assert.Contains(t, ops2, bytecode.OpNot)
}

func TestEndScopeEmitsOnePopPerLocal(t *testing.T) {
	fn, diag := compile(t, "{ var a = 1; var b = 2; var c = 3; }")
	require.Empty(t, diag)
	ops := opsOf(fn.Chunk)

	popCount := 0
	for _, op := range ops {
		if op == bytecode.OpPop {
			popCount++
		}
	}
	assert.Equal(t, 3, popCount)
}

func TestReadSelfInInitializerIsError(t *testing.T) {
	_, diag := compile(t, "{ var a = a; }")
	assert.Contains(t, diag, "Can't read local variable in its own initializer")
}

func TestDuplicateLocalIsError(t *testing.T) {
	_, diag := compile(t, "{ var a = 1; var a = 2; }")
	assert.Contains(t, diag, "Already a variable with this name in this scope")
}

func TestReturnFromTopLevelIsError(t *testing.T) {
	_, diag := compile(t, "return 1;")
	assert.Contains(t, diag, "Can't return from top-level code")
}

func TestInvalidAssignmentTargetIsError(t *testing.T) {
	_, diag := compile(t, "1 = 2;")
	assert.Contains(t, diag, "Invalid assignment target")
}

func TestUnterminatedGroupingIsError(t *testing.T) {
	_, diag := compile(t, "print (1 + 2;")
	assert.Contains(t, diag, "Expect ')' after expression")
}

func TestCompileFailureYieldsNoFunction(t *testing.T) {
	fn, diag := compile(t, "var;")
	assert.Nil(t, fn)
	assert.NotEmpty(t, diag)
}

func TestPanicModeSuppressesCascadingErrors(t *testing.T) {
	_, diag := compile(t, "var 1 2 3; print 1;")
	// Only the first malformed declaration should be reported; synchronize
	// resumes cleanly at the next statement.
	count := bytes.Count([]byte(diag), []byte("Error at"))
	assert.Equal(t, 1, count)
}

func TestErrorAtEOFFormatting(t *testing.T) {
	_, diag := compile(t, "print 1")
	assert.Contains(t, diag, "Error at end:")
}

func TestJumpOffsetsLandOnInstructionBoundaries(t *testing.T) {
	fn, diag := compile(t, "if (true) { print 1; } else { print 2; }")
	require.Empty(t, diag)
	chunk := fn.Chunk

	boundaries := map[int]bool{chunk.InstructionCount(): true}
	for ip := 0; ip < chunk.InstructionCount(); ip += chunk.ReadOp(ip).InstructionWidth() {
		boundaries[ip] = true
	}

	ip := 0
	for ip < chunk.InstructionCount() {
		op := chunk.ReadOp(ip)
		if op == bytecode.OpJump || op == bytecode.OpJumpIfFalse {
			offset := int(chunk.ReadUint16(ip + 1))
			target := ip + 3 + offset
			assert.LessOrEqual(t, target, chunk.InstructionCount())
			assert.True(t, boundaries[target], "jump at %d lands mid-instruction at %d", ip, target)
		}
		ip += op.InstructionWidth()
	}
}

func TestTooManyConstantsIsDiagnosedNotOverflowed(t *testing.T) {
	var src bytes.Buffer
	for i := 0; i < 300; i++ {
		src.WriteString("print ")
		src.WriteString("\"s")
		src.WriteString(itoa(i))
		src.WriteString("\";")
	}
	_, diag := compile(t, src.String())
	assert.Contains(t, diag, "Too many constants in one chunk")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
