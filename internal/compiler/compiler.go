package compiler

import (
	"github.com/xirelogy/go-lox/internal/bytecode"
	"github.com/xirelogy/go-lox/internal/lexer"
	"github.com/xirelogy/go-lox/internal/token"
	"github.com/xirelogy/go-lox/internal/value"
)

type chunk = bytecode.Chunk[value.Value]

// Compile translates a source program into the function for its top-level
// script in a single pass over the token stream. All functions and strings
// are allocated on h. When the source has errors, every diagnostic is
// returned in an *Error and no function is produced.
func Compile(h *value.Heap, src string) (*value.Function, error) {
	c := &compiler{
		lex:  lexer.New(src),
		heap: h,
	}
	h.AddRoots(c)
	defer h.RemoveRoots(c)

	c.fc = newFuncCompiler(nil, h.NewFunction(), kindScript)

	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	fn := c.endFunction()

	if len(c.diagnostics) > 0 {
		return nil, &Error{Diagnostics: c.diagnostics}
	}
	return fn, nil
}

type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

type compiler struct {
	lex      *lexer.Lexer
	heap     *value.Heap
	current  token.Token
	previous token.Token

	fc    *funcCompiler
	class *classCompiler

	panicMode   bool
	diagnostics []Diagnostic
}

// MarkRoots keeps every function still under construction alive.
func (c *compiler) MarkRoots(h *value.Heap) {
	for fc := c.fc; fc != nil; fc = fc.enclosing {
		h.MarkObject(fc.function)
	}
}

func (c *compiler) endFunction() *value.Function {
	c.emitReturn()
	fn := c.fc.function
	fn.Upvalues = c.fc.upvalues
	c.fc = c.fc.enclosing
	return fn
}

// token stream

func (c *compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lex.NextToken()
		if c.current.Type != token.Illegal {
			return
		}
		c.errorAtCurrent(c.current.Literal)
	}
}

func (c *compiler) consume(t token.Type, msg string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *compiler) check(t token.Type) bool {
	return c.current.Type == t
}

func (c *compiler) match(t token.Type) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

// diagnostics

func (c *compiler) error(msg string) {
	c.errorAt(c.previous, msg)
}

func (c *compiler) errorAtCurrent(msg string) {
	c.errorAt(c.current, msg)
}

func (c *compiler) errorAt(tok token.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	d := Diagnostic{Line: tok.Pos.Line, Message: msg}
	switch tok.Type {
	case token.EOF:
		d.Where = " at end"
	case token.Illegal:
	default:
		d.Where = " at '" + lexeme(tok) + "'"
	}
	c.diagnostics = append(c.diagnostics, d)
}

func lexeme(tok token.Token) string {
	if tok.Type == token.String {
		return `"` + tok.Literal + `"`
	}
	return tok.Literal
}

// synchronize skips tokens until a likely statement boundary.
func (c *compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != token.EOF {
		if c.previous.Type == token.Semicolon {
			return
		}
		switch c.current.Type {
		case token.Class, token.Fun, token.Var, token.For, token.If,
			token.While, token.Print, token.Return:
			return
		}
		c.advance()
	}
}

// declarations

func (c *compiler) declaration() {
	switch {
	case c.match(token.Class):
		c.classDeclaration()
	case c.match(token.Fun):
		c.funDeclaration()
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *compiler) parseVariable(msg string) int {
	c.consume(token.Ident, msg)
	c.declareVariable()
	if c.fc.scopeDepth > 0 {
		return 0
	}
	return c.identifierConst(c.previous.Literal)
}

func (c *compiler) defineVariable(global int) {
	if c.fc.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitU16(OP_DEFINE_GLOBAL, global)
}

func (c *compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(token.Assign) {
		c.expression()
	} else {
		c.emitByte(OP_NIL)
	}
	c.consume(token.Semicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(kindFunction)
	c.defineVariable(global)
}

// function compiles a parameter list and body into a new function and
// emits the closure that wraps it.
func (c *compiler) function(kind funcKind) {
	name := c.previous.Literal
	c.fc = newFuncCompiler(c.fc, c.heap.NewFunction(), kind)
	c.fc.function.Name = c.heap.InternString(name)
	c.beginScope()

	c.consume(token.LParen, "Expect '(' after function name.")
	if !c.check(token.RParen) {
		for {
			c.fc.function.Arity++
			if c.fc.function.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			global := c.parseVariable("Expect parameter name.")
			c.defineVariable(global)
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RParen, "Expect ')' after parameters.")
	c.consume(token.LBrace, "Expect '{' before function body.")
	c.block()

	upvalues := c.fc.upvalues
	fn := c.endFunction()
	c.emitU16(OP_CLOSURE, c.makeConst(value.ObjVal(fn)))
	c.emitByte(byte(len(upvalues)))
	for _, uv := range upvalues {
		isLocal := byte(0)
		if uv.IsLocal {
			isLocal = 1
		}
		c.emitBytes(isLocal, uv.Index)
	}
}

func (c *compiler) method() {
	c.consume(token.Ident, "Expect method name.")
	name := c.identifierConst(c.previous.Literal)
	kind := kindMethod
	if c.previous.Literal == "init" {
		kind = kindInitializer
	}
	c.function(kind)
	c.emitU16(OP_METHOD, name)
}

func (c *compiler) classDeclaration() {
	c.consume(token.Ident, "Expect class name.")
	className := c.previous
	nameConst := c.identifierConst(className.Literal)
	c.declareVariable()

	c.emitU16(OP_CLASS, nameConst)
	c.defineVariable(nameConst)

	cc := &classCompiler{enclosing: c.class}
	c.class = cc

	if c.match(token.Less) {
		c.consume(token.Ident, "Expect superclass name.")
		c.variable(false)
		if className.Literal == c.previous.Literal {
			c.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal("super")
		c.defineVariable(0)

		c.namedVariable(className.Literal, false)
		c.emitByte(OP_INHERIT)
		cc.hasSuperclass = true
	}

	c.namedVariable(className.Literal, false)
	c.consume(token.LBrace, "Expect '{' before class body.")
	for !c.check(token.RBrace) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RBrace, "Expect '}' after class body.")
	c.emitByte(OP_POP)

	if cc.hasSuperclass {
		c.endScope()
	}
	c.class = cc.enclosing
}

// statements

func (c *compiler) statement() {
	switch {
	case c.match(token.Print):
		c.printStatement()
	case c.match(token.If):
		c.ifStatement()
	case c.match(token.Return):
		c.returnStatement()
	case c.match(token.While):
		c.whileStatement()
	case c.match(token.For):
		c.forStatement()
	case c.match(token.LBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *compiler) block() {
	for !c.check(token.RBrace) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RBrace, "Expect '}' after block.")
}

func (c *compiler) printStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after value.")
	c.emitByte(OP_PRINT)
}

func (c *compiler) expressionStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after expression.")
	c.emitByte(OP_POP)
}

func (c *compiler) ifStatement() {
	c.consume(token.LParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RParen, "Expect ')' after condition.")

	thenJump := c.emitJump(OP_JUMP_IF_FALSE)
	c.emitByte(OP_POP) // condition
	c.statement()
	elseJump := c.emitJump(OP_JUMP)

	c.patchJump(thenJump)
	c.emitByte(OP_POP) // condition
	if c.match(token.Else) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *compiler) whileStatement() {
	loopStart := c.currentChunk().Len()
	c.consume(token.LParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RParen, "Expect ')' after condition.")

	exitJump := c.emitJump(OP_JUMP_IF_FALSE)
	c.emitByte(OP_POP)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitByte(OP_POP)
}

func (c *compiler) forStatement() {
	c.beginScope()
	c.consume(token.LParen, "Expect '(' after 'for'.")
	switch {
	case c.match(token.Semicolon):
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := c.currentChunk().Len()
	exitJump := -1
	if !c.match(token.Semicolon) {
		c.expression()
		c.consume(token.Semicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(OP_JUMP_IF_FALSE)
		c.emitByte(OP_POP)
	}

	if !c.match(token.RParen) {
		bodyJump := c.emitJump(OP_JUMP)
		incrementStart := c.currentChunk().Len()
		c.expression()
		c.emitByte(OP_POP)
		c.consume(token.RParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitByte(OP_POP)
	}
	c.endScope()
}

func (c *compiler) returnStatement() {
	if c.fc.kind == kindScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(token.Semicolon) {
		c.emitReturn()
		return
	}
	if c.fc.kind == kindInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after return value.")
	c.emitByte(OP_RETURN)
}
