package compiler

import (
	"strconv"

	"github.com/xirelogy/go-lox/internal/value"
)

func (c *compiler) currentChunk() *chunk {
	return &c.fc.function.Chunk
}

func (c *compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.previous.Pos.Line)
}

func (c *compiler) emitBytes(b ...byte) {
	for _, x := range b {
		c.emitByte(x)
	}
}

func (c *compiler) emitU16(op byte, idx int) {
	c.emitBytes(op, byte(idx>>8), byte(idx))
}

func (c *compiler) emitReturn() {
	if c.fc.kind == kindInitializer {
		c.emitBytes(OP_GET_LOCAL, 0)
	} else {
		c.emitByte(OP_NIL)
	}
	c.emitByte(OP_RETURN)
}

// emitJump writes op with a placeholder offset and returns the operand position.
func (c *compiler) emitJump(op byte) int {
	c.emitByte(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.currentChunk().Code) - 2
}

// patchJump points the jump operand at pos to the current end of code.
func (c *compiler) patchJump(pos int) {
	code := c.currentChunk().Code
	jump := len(code) - pos - 2
	if jump > 0xffff {
		c.error("Too much code to jump over.")
	}
	code[pos] = byte(jump >> 8)
	code[pos+1] = byte(jump)
}

func (c *compiler) emitLoop(start int) {
	c.emitByte(OP_LOOP)
	offset := len(c.currentChunk().Code) - start + 2
	if offset > 0xffff {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// makeConst adds v to the constant pool, reusing an existing entry for an
// equal value.
func (c *compiler) makeConst(v value.Value) int {
	if idx, ok := c.fc.consts[v]; ok {
		return idx
	}
	idx, err := c.currentChunk().AddConst(v)
	if err != nil {
		c.error("Too many constants in one chunk.")
		return 0
	}
	c.fc.consts[v] = idx
	return idx
}

func (c *compiler) emitConst(v value.Value) {
	c.emitU16(OP_CONST, c.makeConst(v))
}

func (c *compiler) identifierConst(name string) int {
	return c.makeConst(value.ObjVal(c.heap.InternString(name)))
}

func (c *compiler) numberConst(lit string) {
	n, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		c.error("Invalid number literal.")
		return
	}
	c.emitConst(value.Number(n))
}
