package compiler

import (
	"github.com/xirelogy/go-lox/internal/bytecode"
	"github.com/xirelogy/go-lox/internal/value"
)

const (
	maxLocals   = 256
	maxUpvalues = 256
)

type funcKind int

const (
	kindScript funcKind = iota
	kindFunction
	kindMethod
	kindInitializer
)

// local is a variable living in a stack slot of the function being compiled.
// depth is -1 between declaration and the end of its initializer.
type local struct {
	name     string
	depth    int
	captured bool
}

// funcCompiler tracks locals and upvalues for one function body. Nested
// function bodies get their own funcCompiler linked through enclosing.
type funcCompiler struct {
	enclosing  *funcCompiler
	function   *value.Function
	kind       funcKind
	locals     []local
	upvalues   []bytecode.Upvalue
	scopeDepth int
	consts     map[value.Value]int
}

func newFuncCompiler(enclosing *funcCompiler, fn *value.Function, kind funcKind) *funcCompiler {
	fc := &funcCompiler{
		enclosing: enclosing,
		function:  fn,
		kind:      kind,
		locals:    make([]local, 0, 8),
		consts:    make(map[value.Value]int),
	}
	// Slot 0 holds the callee, or the receiver inside methods.
	slotName := ""
	if kind == kindMethod || kind == kindInitializer {
		slotName = "this"
	}
	fc.locals = append(fc.locals, local{name: slotName})
	return fc
}

func (c *compiler) beginScope() {
	c.fc.scopeDepth++
}

func (c *compiler) endScope() {
	fc := c.fc
	fc.scopeDepth--
	for len(fc.locals) > 0 && fc.locals[len(fc.locals)-1].depth > fc.scopeDepth {
		if fc.locals[len(fc.locals)-1].captured {
			c.emitByte(OP_CLOSE_UPVALUE)
		} else {
			c.emitByte(OP_POP)
		}
		fc.locals = fc.locals[:len(fc.locals)-1]
	}
}

// addLocal reserves a slot for a local variable.
func (c *compiler) addLocal(name string) {
	if len(c.fc.locals) == maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.fc.locals = append(c.fc.locals, local{name: name, depth: -1})
}

func (c *compiler) declareVariable() {
	fc := c.fc
	if fc.scopeDepth == 0 {
		return
	}
	name := c.previous.Literal
	for i := len(fc.locals) - 1; i >= 0; i-- {
		l := fc.locals[i]
		if l.depth != -1 && l.depth < fc.scopeDepth {
			break
		}
		if l.name == name {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *compiler) markInitialized() {
	fc := c.fc
	if fc.scopeDepth == 0 {
		return
	}
	fc.locals[len(fc.locals)-1].depth = fc.scopeDepth
}

// resolveLocal returns the slot of name in fc, or -1.
func (c *compiler) resolveLocal(fc *funcCompiler, name string) int {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			if fc.locals[i].depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue walks enclosing functions to find name, capturing it in
// every function in between. It returns the upvalue index in fc, or -1.
func (c *compiler) resolveUpvalue(fc *funcCompiler, name string) int {
	if fc.enclosing == nil {
		return -1
	}
	if slot := c.resolveLocal(fc.enclosing, name); slot != -1 {
		fc.enclosing.locals[slot].captured = true
		return c.addUpvalue(fc, uint8(slot), true)
	}
	if idx := c.resolveUpvalue(fc.enclosing, name); idx != -1 {
		return c.addUpvalue(fc, uint8(idx), false)
	}
	return -1
}

func (c *compiler) addUpvalue(fc *funcCompiler, index uint8, isLocal bool) int {
	up := bytecode.Upvalue{IsLocal: isLocal, Index: index}
	for i, existing := range fc.upvalues {
		if existing == up {
			return i
		}
	}
	if len(fc.upvalues) == maxUpvalues {
		c.error("Too many closure variables in function.")
		return 0
	}
	fc.upvalues = append(fc.upvalues, up)
	return len(fc.upvalues) - 1
}
