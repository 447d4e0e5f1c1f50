// Package vm executes the bytecode chunks the compiler package emits: a
// stack-based interpreter with a value stack, a call-frame stack, and a
// globals table keyed by interned name id.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/dolthub/swiss"

	"nilox/bytecode"
	"nilox/intern"
	"nilox/token"
)

// maxFrames bounds call-frame depth the same way clox's FRAMES_MAX does:
// without a bound, unbounded Lox recursion would grow the Go stack (or, in
// the original, the native stack) without ever reporting a Lox-level
// error.
const maxFrames = 64

// frame is one call's activation record: the function being executed, its
// instruction pointer into that function's chunk, and the index into the
// VM's value stack where its local slots begin (slot 0 holds the function
// value itself, matching the compiler's reserved local).
type frame struct {
	fn   *bytecode.Function
	ip   int
	base int
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithStdout routes `print` output to w instead of os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(v *VM) { v.stdout = w }
}

// VM is a single-use bytecode interpreter.
type VM struct {
	stack   Stack
	frames  []frame
	globals *swiss.Map[uint32, bytecode.Value]

	interner *intern.Table
	stdout   io.Writer
}

// New returns a VM that resolves interned strings through interner.
func New(interner *intern.Table, opts ...Option) *VM {
	v := &VM{
		globals:  swiss.NewMap[uint32, bytecode.Value](64),
		interner: interner,
		stdout:   os.Stdout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Run executes script, the top-level Function produced by compiler.Compile,
// to completion.
func (v *VM) Run(script *bytecode.Function) error {
	v.stack.Push(bytecode.Fn(script))
	v.frames = append(v.frames, frame{fn: script, ip: 0, base: 0})
	return v.run()
}

func (v *VM) currentFrame() *frame {
	return &v.frames[len(v.frames)-1]
}

func (v *VM) run() error {
	for {
		f := v.currentFrame()
		chunk := f.fn.Chunk
		pos := chunk.PositionAt(f.ip)
		op := chunk.ReadOp(f.ip)
		f.ip++

		switch op {
		case bytecode.OpPop:
			v.stack.Pop()

		case bytecode.OpNil:
			v.stack.Push(bytecode.Nil)
		case bytecode.OpTrue:
			v.stack.Push(bytecode.Bool(true))
		case bytecode.OpFalse:
			v.stack.Push(bytecode.Bool(false))

		case bytecode.OpConstant:
			idx := chunk.Instructions[f.ip]
			f.ip++
			v.stack.Push(chunk.ReadConst(idx))

		case bytecode.OpDefineGlobal:
			idx := chunk.Instructions[f.ip]
			f.ip++
			name := chunk.ReadConst(idx)
			val, _ := v.stack.Pop()
			v.globals.Put(name.AsStringID(), val)

		case bytecode.OpGetGlobal:
			idx := chunk.Instructions[f.ip]
			f.ip++
			name := chunk.ReadConst(idx)
			val, ok := v.globals.Get(name.AsStringID())
			if !ok {
				return v.runtimeError(pos, "Undefined variable '%s'.", v.resolve(name.AsStringID()))
			}
			v.stack.Push(val)

		case bytecode.OpSetGlobal:
			idx := chunk.Instructions[f.ip]
			f.ip++
			name := chunk.ReadConst(idx)
			val, _ := v.stack.Peek(0)
			if _, ok := v.globals.Get(name.AsStringID()); !ok {
				return v.runtimeError(pos, "Undefined variable '%s'.", v.resolve(name.AsStringID()))
			}
			v.globals.Put(name.AsStringID(), val)

		case bytecode.OpGetLocal:
			slot := chunk.Instructions[f.ip]
			f.ip++
			v.stack.Push(v.stack[f.base+int(slot)])

		case bytecode.OpSetLocal:
			slot := chunk.Instructions[f.ip]
			f.ip++
			val, _ := v.stack.Peek(0)
			v.stack[f.base+int(slot)] = val

		case bytecode.OpNot:
			val, _ := v.stack.Pop()
			v.stack.Push(bytecode.Bool(val.IsFalsey()))

		case bytecode.OpNegate:
			val, _ := v.stack.Peek(0)
			if val.Kind != bytecode.KindNumber {
				return v.runtimeError(pos, "Operand must be a number.")
			}
			v.stack.Pop()
			v.stack.Push(bytecode.Number(-val.AsNumber()))

		case bytecode.OpEqual:
			b, _ := v.stack.Pop()
			a, _ := v.stack.Pop()
			v.stack.Push(bytecode.Bool(a.Equal(b)))

		case bytecode.OpGreater, bytecode.OpLess:
			b, _ := v.stack.Peek(0)
			a, _ := v.stack.Peek(1)
			if a.Kind != bytecode.KindNumber || b.Kind != bytecode.KindNumber {
				return v.runtimeError(pos, "Operand(s) must be numbers.")
			}
			v.stack.Pop()
			v.stack.Pop()
			if op == bytecode.OpGreater {
				v.stack.Push(bytecode.Bool(a.AsNumber() > b.AsNumber()))
			} else {
				v.stack.Push(bytecode.Bool(a.AsNumber() < b.AsNumber()))
			}

		case bytecode.OpAdd:
			b, _ := v.stack.Peek(0)
			a, _ := v.stack.Peek(1)
			switch {
			case a.Kind == bytecode.KindNumber && b.Kind == bytecode.KindNumber:
				v.stack.Pop()
				v.stack.Pop()
				v.stack.Push(bytecode.Number(a.AsNumber() + b.AsNumber()))
			case a.Kind == bytecode.KindString && b.Kind == bytecode.KindString:
				v.stack.Pop()
				v.stack.Pop()
				left, _ := v.interner.Resolve(a.AsStringID())
				right, _ := v.interner.Resolve(b.AsStringID())
				id := v.interner.Intern(left + right)
				v.stack.Push(bytecode.String(id))
			default:
				return v.runtimeError(pos, "Operand(s) must be numbers.")
			}

		case bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide:
			b, _ := v.stack.Peek(0)
			a, _ := v.stack.Peek(1)
			if a.Kind != bytecode.KindNumber || b.Kind != bytecode.KindNumber {
				return v.runtimeError(pos, "Operand(s) must be numbers.")
			}
			v.stack.Pop()
			v.stack.Pop()
			switch op {
			case bytecode.OpSubtract:
				v.stack.Push(bytecode.Number(a.AsNumber() - b.AsNumber()))
			case bytecode.OpMultiply:
				v.stack.Push(bytecode.Number(a.AsNumber() * b.AsNumber()))
			case bytecode.OpDivide:
				v.stack.Push(bytecode.Number(a.AsNumber() / b.AsNumber()))
			}

		case bytecode.OpJump:
			offset := chunk.ReadUint16(f.ip)
			f.ip += 2 + int(offset)

		case bytecode.OpJumpIfFalse:
			offset := chunk.ReadUint16(f.ip)
			top, _ := v.stack.Peek(0)
			f.ip += 2
			if top.IsFalsey() {
				f.ip += int(offset)
			}

		case bytecode.OpLoop:
			offset := chunk.ReadUint16(f.ip)
			f.ip += 2 - int(offset)

		case bytecode.OpCall:
			argCount := int(chunk.Instructions[f.ip])
			f.ip++
			if err := v.call(argCount, pos); err != nil {
				return err
			}

		case bytecode.OpPrint:
			val, _ := v.stack.Pop()
			fmt.Fprintln(v.stdout, val.Format(v.interner))

		case bytecode.OpReturn:
			result, _ := v.stack.Pop()
			finished := v.frames[len(v.frames)-1]
			v.frames = v.frames[:len(v.frames)-1]
			v.stack.Truncate(finished.base)
			v.stack.Push(result)
			if len(v.frames) == 0 {
				return nil
			}

		default:
			panic(developerErrorf("unknown opcode %s at ip %d", op, f.ip-1))
		}
	}
}

// call validates and dispatches a Call instruction: the callee sits
// argCount slots below the top of the stack, with the arguments above it.
func (v *VM) call(argCount int, pos token.Position) error {
	calleeVal, _ := v.stack.Peek(argCount)
	if calleeVal.Kind != bytecode.KindFunction {
		return v.runtimeError(pos, "Can only call functions.")
	}
	fn := calleeVal.AsFunction()
	if argCount != fn.Arity {
		return v.runtimeError(pos, "Expected %d arguments but got %d.", fn.Arity, argCount)
	}
	if len(v.frames) == maxFrames {
		return v.runtimeError(pos, "Stack overflow.")
	}
	v.frames = append(v.frames, frame{
		fn:   fn,
		ip:   0,
		base: len(v.stack) - argCount - 1,
	})
	return nil
}

func (v *VM) resolve(id uint32) string {
	text, _ := v.interner.Resolve(id)
	return text
}

// runtimeError builds a RuntimeError at pos with a trace of every active
// frame, innermost first.
func (v *VM) runtimeError(pos token.Position, format string, args ...any) RuntimeError {
	trace := make([]string, 0, len(v.frames))
	for i := len(v.frames) - 1; i >= 0; i-- {
		fr := v.frames[i]
		if fr.fn.Kind == bytecode.KindScript {
			trace = append(trace, fmt.Sprintf("%s in script", fr.fn.Chunk.PositionAt(fr.ip-1)))
			continue
		}
		trace = append(trace, fmt.Sprintf("%s in %s()", fr.fn.Chunk.PositionAt(fr.ip-1), fr.fn.Name))
	}
	return RuntimeError{Pos: pos, Message: fmt.Sprintf(format, args...), Trace: trace}
}
