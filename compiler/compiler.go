// Package compiler implements a single-pass Pratt compiler for Lox: it
// scans source text and emits bytecode directly, one token at a time, with
// no intermediate syntax tree. Expression parsing climbs a table of
// per-token parse rules (prefix/infix functions plus a binding
// precedence); statements are compiled by straight-line recursive
// descent, interleaving emission with parsing throughout.
package compiler

import (
	"io"
	"os"
	"strconv"

	"nilox/bytecode"
	"nilox/intern"
	"nilox/lexer"
	"nilox/token"
)

// Limits mirroring the width of the operands that address them.
const (
	maxLocals    = 256
	maxParams    = 255
	maxArguments = 255
)

// local tracks one stack slot reserved for a lexically-scoped variable.
// initialized is false for the window between a local's declaration and
// the point its initializer finishes running, so resolveLocal can reject
// `var a = a;` self-reference.
type local struct {
	name        uint32
	depth       int
	initialized bool
}

// nesting holds all compiler state specific to the function currently
// being compiled. Nestings form a stack rather than a parent-pointer tree
// so that finishing an inner function is simply popping it off, with no
// risk of a self-referential structure.
type nesting struct {
	fn         *bytecode.Function
	locals     []local
	scopeDepth int
}

func newNesting(fn *bytecode.Function, interner *intern.Table) *nesting {
	// Slot 0 of every frame is reserved for the function value itself (the
	// VM places the callee there). Its name must be
	// interned through interner rather than hardcoded to the zero id: id 0
	// is whatever identifier or string literal happens to be interned
	// first in the whole process, and comparing against a raw 0 would
	// alias that real name to this reserved slot. Interning "" instead
	// reserves a name no user identifier can ever produce. The slot starts
	// uninitialized and unreachable by user code -- nothing ever looks it
	// up by name.
	return &nesting{
		fn:     fn,
		locals: []local{{name: interner.Intern(""), depth: 0, initialized: false}},
	}
}

// Option configures a Compiler at construction time.
type Option func(*Compiler)

// WithDiagnostics routes diagnosed compile errors to w instead of
// os.Stderr. Test code typically passes a bytes.Buffer.
func WithDiagnostics(w io.Writer) Option {
	return func(c *Compiler) { c.diagW = w }
}

// Compiler turns Lox source into a top-level bytecode.Function. Construct
// one with New and drive it with Compile; a Compiler is single-use.
type Compiler struct {
	lex      *lexer.Lexer
	interner *intern.Table
	diagW    io.Writer

	current, previous token.Token
	hadError          bool
	panicking         bool

	nestings []*nesting
}

// New returns a Compiler ready to compile source, interning identifiers
// and string literals into interner.
func New(source string, interner *intern.Table, opts ...Option) *Compiler {
	c := &Compiler{
		lex:      lexer.New(source),
		interner: interner,
		diagW:    os.Stderr,
	}
	script := bytecode.NewFunction("", bytecode.KindScript)
	c.nestings = []*nesting{newNesting(script, interner)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile is the package's external entry point: it compiles source in
// one pass and returns the top-level script Function, or (nil, false) if
// any diagnostic was raised.
func Compile(source string, interner *intern.Table, opts ...Option) (*bytecode.Function, bool) {
	c := New(source, interner, opts...)
	return c.Run()
}

// Run drives the whole compilation and returns the finished script
// Function, or (nil, false) if compilation failed.
func (c *Compiler) Run() (*bytecode.Function, bool) {
	c.advance()
	for !c.check(token.Eof) {
		c.declaration()
	}
	return c.finish()
}

func (c *Compiler) nest() *nesting {
	return c.nestings[len(c.nestings)-1]
}

func (c *Compiler) chunk() *bytecode.Chunk {
	return c.nest().fn.Chunk
}

// finish seals the current (innermost) function: appends its implicit
// trailing `nil; return`, and pops it off the nesting stack. Returns
// (nil, false) if any diagnostic was raised during compilation.
func (c *Compiler) finish() (*bytecode.Function, bool) {
	c.emitReturn()
	fn := c.nestings[len(c.nestings)-1].fn
	c.nestings = c.nestings[:len(c.nestings)-1]
	if c.hadError {
		return nil, false
	}
	return fn, true
}

// --- emission helpers ---

func (c *Compiler) emit(op bytecode.OpCode) int {
	return c.chunk().WriteInstruction(op, c.previous.Pos)
}

func (c *Compiler) emitByte(op bytecode.OpCode, operand byte) int {
	site := c.chunk().WriteInstruction(op, c.previous.Pos)
	c.chunk().WriteByteOperand(site, operand)
	return site
}

func (c *Compiler) emitReturn() {
	c.emit(bytecode.OpNil)
	c.emit(bytecode.OpReturn)
}

// emitJump writes op with a placeholder 0xFFFF operand and returns the
// site to later pass to patchJump.
func (c *Compiler) emitJump(op bytecode.OpCode) int {
	site := c.chunk().WriteInstruction(op, c.previous.Pos)
	c.chunk().WriteByteOperand(site, 0xFF)
	c.chunk().Instructions[site+2] = 0xFF
	return site
}

// patchJump backfills the jump at site with the distance from the
// instruction following it to the current end of the chunk.
func (c *Compiler) patchJump(site int) {
	offset := c.chunk().InstructionCount() - (site + 3)
	if offset > 0xFFFF {
		c.errorAtCurrent("Too much code to jump over")
		return
	}
	c.chunk().PatchJump(site, uint16(offset))
}

// emitLoop writes a backward OP_LOOP to loopStart.
func (c *Compiler) emitLoop(loopStart int) {
	site := c.chunk().WriteInstruction(bytecode.OpLoop, c.previous.Pos)
	offset := site + 3 - loopStart
	if offset > 0xFFFF {
		c.errorAtPrevious("Loop body too large")
		return
	}
	c.chunk().PatchJump(site, uint16(offset))
}

// makeConst appends val to the current chunk's constant pool, reporting a
// diagnostic instead of overflowing the 256-entry, single-byte-addressed
// pool.
func (c *Compiler) makeConst(val bytecode.Value) uint8 {
	if c.chunk().ConstCount() == bytecode.MaxConstants {
		c.errorAtPrevious("Too many constants in one chunk")
		return 0
	}
	return c.chunk().WriteConst(val)
}

// --- token stream plumbing ---

// advance pulls the next valid token from the scanner into c.current,
// shifting the previous c.current into c.previous. Lex errors are
// diagnosed immediately and skipped: scanning always resumes at the next
// call, so one bad character never halts the whole pass.
func (c *Compiler) advance() {
	c.previous = c.current
	for {
		tok, err := c.lex.Scan()
		if err != nil {
			c.hadError = true
			io.WriteString(c.diagW, err.Error()+"\n")
			continue
		}
		c.current = tok
		return
	}
}

func (c *Compiler) check(kind token.Kind) bool {
	return c.current.Kind == kind
}

func (c *Compiler) match(kind token.Kind) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(kind token.Kind, message string) {
	if c.current.Kind == kind {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

// --- declarations & statements ---

func (c *Compiler) declaration() {
	switch {
	case c.match(token.Fun):
		c.funDeclaration()
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.panicking {
		c.synchronize()
	}
}

func (c *Compiler) funDeclaration() {
	identConst := c.parseVariable("Expect function name")
	c.markInitialized()
	c.function(bytecode.KindFunction)
	c.defineVariable(identConst)
}

func (c *Compiler) function(kind bytecode.Kind) {
	name := c.previous.Lexeme
	c.nestings = append(c.nestings, newNesting(bytecode.NewFunction(name, kind), c.interner))
	c.beginScope()

	c.consume(token.LeftParen, "Expect '(' after function name")
	if !c.check(token.RightParen) {
		for {
			if c.nest().fn.Arity == maxParams {
				c.errorAtCurrent("Can't have more than 255 parameters")
			}
			c.nest().fn.Arity++
			identConst := c.parseVariable("Expect parameter name")
			c.defineVariable(identConst)
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightParen, "Expect ')' after parameters")
	c.consume(token.LeftBrace, "Expect '{' before function body")
	c.block()

	fn, ok := c.finish()
	if !ok {
		return
	}
	constID := c.makeConst(bytecode.Fn(fn))
	c.emitByte(bytecode.OpConstant, constID)
}

func (c *Compiler) varDeclaration() {
	identConst := c.parseVariable("Expect variable name")
	if c.match(token.Equal) {
		c.expression()
	} else {
		c.emit(bytecode.OpNil)
	}
	c.consume(token.Semicolon, "Expect ';' after variable declaration")
	c.defineVariable(identConst)
}

// parseVariable consumes an identifier, declares it as a local if we're
// inside a scope, and returns the constant-pool index holding its
// interned name for globals (an unused placeholder 0 for locals, which
// are never looked up by name).
func (c *Compiler) parseVariable(message string) uint8 {
	c.consume(token.Ident, message)
	c.declareVariable()
	if c.nest().scopeDepth > 0 {
		return 0
	}
	id := c.interner.Intern(c.previous.Lexeme)
	return c.makeConst(bytecode.String(id))
}

func (c *Compiler) declareVariable() {
	n := c.nest()
	if n.scopeDepth == 0 {
		return
	}
	if len(n.locals) == maxLocals {
		c.errorAtPrevious("Too many local variables in function")
	}

	name := c.interner.Intern(c.previous.Lexeme)
	duplicated := false
	for i := len(n.locals) - 1; i >= 0; i-- {
		l := n.locals[i]
		if l.initialized && l.depth < n.scopeDepth {
			break
		}
		if l.name == name {
			duplicated = true
			break
		}
	}
	if duplicated {
		c.errorAtPrevious("Already a variable with this name in this scope")
	}
	n.locals = append(n.locals, local{name: name, depth: n.scopeDepth})
}

func (c *Compiler) defineVariable(identConst uint8) {
	if c.nest().scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitByte(bytecode.OpDefineGlobal, identConst)
}

func (c *Compiler) markInitialized() {
	n := c.nest()
	if n.scopeDepth == 0 {
		return
	}
	n.locals[len(n.locals)-1].initialized = true
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.Print):
		c.printStatement()
	case c.match(token.For):
		c.forStatement()
	case c.match(token.If):
		c.ifStatement()
	case c.match(token.Return):
		c.returnStatement()
	case c.match(token.While):
		c.whileStatement()
	case c.match(token.LeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(token.RightBrace) && !c.check(token.Eof) {
		c.declaration()
	}
	c.consume(token.RightBrace, "Expect '}' after block")
}

func (c *Compiler) beginScope() {
	c.nest().scopeDepth++
}

func (c *Compiler) endScope() {
	n := c.nest()
	n.scopeDepth--
	for len(n.locals) > 0 && n.locals[len(n.locals)-1].depth > n.scopeDepth {
		c.emit(bytecode.OpPop)
		n.locals = n.locals[:len(n.locals)-1]
	}
}

func (c *Compiler) returnStatement() {
	if c.nest().fn.Kind == bytecode.KindScript {
		c.errorAtPrevious("Can't return from top-level code")
	}
	if c.match(token.Semicolon) {
		c.emitReturn()
		return
	}
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after return value")
	c.emit(bytecode.OpReturn)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LeftParen, "Expect '(' after 'if'")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition")

	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emit(bytecode.OpPop)
	c.statement()

	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emit(bytecode.OpPop)

	if c.match(token.Else) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := c.chunk().InstructionCount()
	c.consume(token.LeftParen, "Expect '(' after 'while'")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition")

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emit(bytecode.OpPop)

	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emit(bytecode.OpPop)
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LeftParen, "Expect '(' after 'for'")

	switch {
	case c.match(token.Semicolon):
		// No initializer.
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := c.chunk().InstructionCount()

	exitJump := -1
	if !c.match(token.Semicolon) {
		c.expression()
		c.consume(token.Semicolon, "Expect ';' after loop condition")
		exitJump = c.emitJump(bytecode.OpJumpIfFalse)
		c.emit(bytecode.OpPop)
	}

	if !c.match(token.RightParen) {
		bodyJump := c.emitJump(bytecode.OpJump)
		incrementStart := c.chunk().InstructionCount()
		c.expression()
		c.emit(bytecode.OpPop)
		c.consume(token.RightParen, "Expect ')' after for clauses")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emit(bytecode.OpPop)
	}
	c.endScope()
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after value")
	c.emit(bytecode.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after expression")
	c.emit(bytecode.OpPop)
}

// --- expressions ---

func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

// parsePrecedence is the Pratt engine: it consumes one prefix expression,
// then keeps consuming infix operators as long as their precedence is at
// least the caller's minimum.
func (c *Compiler) parsePrecedence(precedence Precedence) {
	c.advance()
	prefix := ruleFor(c.previous.Kind).prefix
	if prefix == nil {
		c.errorAtPrevious("Expect expression")
		return
	}
	canAssign := precedence <= PrecAssignment
	prefix(c, canAssign)

	for precedence <= ruleFor(c.current.Kind).precedence {
		c.advance()
		infix := ruleFor(c.previous.Kind).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.Equal) {
		c.errorAtPrevious("Invalid assignment target")
	}
}

func (c *Compiler) grouping(_ bool) {
	c.expression()
	c.consume(token.RightParen, "Expect ')' after expression")
}

func (c *Compiler) call(_ bool) {
	argCount := c.argumentList()
	c.emitByte(bytecode.OpCall, argCount)
}

func (c *Compiler) argumentList() byte {
	var argCount int
	if !c.check(token.RightParen) {
		for {
			c.expression()
			if argCount == maxArguments {
				c.errorAtPrevious("Can't have more than 255 arguments")
			} else {
				argCount++
			}
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightParen, "Expect ')' after arguments")
	return byte(argCount)
}

func (c *Compiler) binary(_ bool) {
	opKind := c.previous.Kind
	rule := ruleFor(opKind)
	c.parsePrecedence(rule.precedence + 1)

	switch opKind {
	case token.BangEqual:
		c.emit(bytecode.OpEqual)
		c.emit(bytecode.OpNot)
	case token.EqualEqual:
		c.emit(bytecode.OpEqual)
	case token.Greater:
		c.emit(bytecode.OpGreater)
	case token.GreaterEqual:
		c.emit(bytecode.OpLess)
		c.emit(bytecode.OpNot)
	case token.Less:
		c.emit(bytecode.OpLess)
	case token.LessEqual:
		c.emit(bytecode.OpGreater)
		c.emit(bytecode.OpNot)
	case token.Plus:
		c.emit(bytecode.OpAdd)
	case token.Minus:
		c.emit(bytecode.OpSubtract)
	case token.Star:
		c.emit(bytecode.OpMultiply)
	case token.Slash:
		c.emit(bytecode.OpDivide)
	default:
		panic(developerErrorf("rule table maps %s to binary with no case", opKind))
	}
}

func (c *Compiler) unary(_ bool) {
	opKind := c.previous.Kind
	c.parsePrecedence(PrecUnary)
	switch opKind {
	case token.Bang:
		c.emit(bytecode.OpNot)
	case token.Minus:
		c.emit(bytecode.OpNegate)
	default:
		panic(developerErrorf("rule table maps %s to unary with no case", opKind))
	}
}

// and_ compiles a short-circuiting `and`: if the left operand is falsey,
// it is left on the stack and evaluation jumps over the right operand.
func (c *Compiler) and_(_ bool) {
	endJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emit(bytecode.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

// or_ compiles a short-circuiting `or` out of the same two opcodes used
// for `and`, rather than adding a dedicated jump-if-true instruction: if
// the left operand is falsey we jump over a second jump that would
// otherwise skip straight to the end.
func (c *Compiler) or_(_ bool) {
	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	endJump := c.emitJump(bytecode.OpJump)

	c.patchJump(elseJump)
	c.emit(bytecode.OpPop)

	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func (c *Compiler) variable(canAssign bool) {
	name := c.interner.Intern(c.previous.Lexeme)

	var getOp, setOp bytecode.OpCode
	var operand uint8
	if slot, ok := c.resolveLocal(name); ok {
		getOp, setOp = bytecode.OpGetLocal, bytecode.OpSetLocal
		operand = slot
	} else {
		getOp, setOp = bytecode.OpGetGlobal, bytecode.OpSetGlobal
		operand = c.makeConst(bytecode.String(name))
	}

	if canAssign && c.match(token.Equal) {
		c.expression()
		c.emitByte(setOp, operand)
		return
	}
	c.emitByte(getOp, operand)
}

// resolveLocal searches the current function's locals innermost-first. A
// local found but not yet initialized means its own initializer
// expression is referencing it, e.g. `var a = a;`, which is a diagnosed
// error rather than a read of an outer `a`.
func (c *Compiler) resolveLocal(name uint32) (uint8, bool) {
	locals := c.nest().locals
	for i := len(locals) - 1; i >= 0; i-- {
		if locals[i].name != name {
			continue
		}
		if !locals[i].initialized {
			c.errorAtPrevious("Can't read local variable in its own initializer")
		}
		return uint8(i), true
	}
	return 0, false
}

func (c *Compiler) stringLiteral(_ bool) {
	text := c.previous.Lexeme
	text = text[1 : len(text)-1] // strip the surrounding quotes
	id := c.interner.Intern(text)
	constID := c.makeConst(bytecode.String(id))
	c.emitByte(bytecode.OpConstant, constID)
}

func (c *Compiler) number(_ bool) {
	n, err := strconv.ParseFloat(c.previous.Lexeme, 64)
	if err != nil {
		panic(developerErrorf("scanner admitted a malformed number literal %q", c.previous.Lexeme))
	}
	constID := c.makeConst(bytecode.Number(n))
	c.emitByte(bytecode.OpConstant, constID)
}

func (c *Compiler) literal(_ bool) {
	switch c.previous.Kind {
	case token.False:
		c.emit(bytecode.OpFalse)
	case token.Nil:
		c.emit(bytecode.OpNil)
	case token.True:
		c.emit(bytecode.OpTrue)
	default:
		panic(developerErrorf("rule table maps %s to literal with no case", c.previous.Kind))
	}
}

// synchronize discards tokens until it finds one that plausibly starts a
// new statement, so a single malformed construct doesn't cascade into a
// wall of follow-on diagnostics.
func (c *Compiler) synchronize() {
	c.panicking = false

	for !c.check(token.Eof) {
		if c.previous.Kind == token.Semicolon {
			return
		}
		switch c.current.Kind {
		case token.Class, token.Fun, token.Var, token.For,
			token.If, token.While, token.Print, token.Return:
			return
		}
		c.advance()
	}
}
