package vm_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nilox/compiler"
	"nilox/intern"
	"nilox/vm"
)

func run(t *testing.T, src string) (string, error) {
	t.Helper()
	interner := intern.New()
	var diag bytes.Buffer
	fn, ok := compiler.Compile(src, interner, compiler.WithDiagnostics(&diag))
	require.True(t, ok, "compile failed: %s", diag.String())

	var out bytes.Buffer
	machine := vm.New(interner, vm.WithStdout(&out))
	err := machine.Run(fn)
	return out.String(), err
}

func TestArithmeticPrecedence(t *testing.T) {
	out, err := run(t, "print 1 + 2 * 3;")
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestStringConcatenation(t *testing.T) {
	out, err := run(t, `var a = "hi"; var b = " there"; print a + b;`)
	require.NoError(t, err)
	assert.Equal(t, "hi there\n", out)
}

func TestForLoopAccumulates(t *testing.T) {
	out, err := run(t, "var x = 0; for (var i = 0; i < 5; i = i + 1) { x = x + i; } print x;")
	require.NoError(t, err)
	assert.Equal(t, "10\n", out)
}

func TestRecursiveFunctionCall(t *testing.T) {
	out, err := run(t, "fun fib(n) { if (n < 2) return n; return fib(n-1) + fib(n-2); } print fib(8);")
	require.NoError(t, err)
	assert.Equal(t, "21\n", out)
}

func TestLexicalScopingShadowsAndRestores(t *testing.T) {
	out, err := run(t, `var a = 1; { var a = 2; { var a = 3; print a; } print a; } print a;`)
	require.NoError(t, err)
	assert.Equal(t, "3\n2\n1\n", out)
}

func TestTruthinessOfAndOr(t *testing.T) {
	out, err := run(t, `print true and 0 or "x";`)
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)
}

func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	_, err := run(t, "print undefined_name;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Undefined variable 'undefined_name'.")
}

func TestArithmeticOnNonNumberIsRuntimeError(t *testing.T) {
	_, err := run(t, `print 1 + "a";`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Operand(s) must be numbers.")
}

func TestCallArityMismatchIsRuntimeError(t *testing.T) {
	_, err := run(t, "fun f(a, b) { return a + b; } print f(1);")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected 2 arguments but got 1.")
}

func TestCallOfNonCallableIsRuntimeError(t *testing.T) {
	_, err := run(t, "var x = 1; print x();")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Can only call functions.")
}

func TestGlobalRedefinitionOverwrites(t *testing.T) {
	out, err := run(t, "var a = 1; var a = 2; print a;")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}
