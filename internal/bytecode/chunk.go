package bytecode

import (
	"errors"
	"sort"
)

// MaxConstants is the size of the constant pool addressable by a u16 operand.
const MaxConstants = 1 << 16

// ErrTooManyConstants is returned by AddConst once the pool is full.
var ErrTooManyConstants = errors.New("too many constants in one chunk")

// Chunk is a compiled bytecode sequence with its constant pool.
// V is the runtime value type stored in the pool.
type Chunk[V any] struct {
	Code   []byte
	Consts []V
	Lines  []LineInfo
}

// Upvalue describes a captured variable.
type Upvalue struct {
	IsLocal bool
	Index   uint8
}

// LineInfo maps bytecode offsets to source lines (start-inclusive).
type LineInfo struct {
	Offset int
	Line   int
}

// Write appends one byte produced by the given source line.
func (c *Chunk[V]) Write(b byte, line int) {
	if n := len(c.Lines); n == 0 || c.Lines[n-1].Line != line {
		c.Lines = append(c.Lines, LineInfo{Offset: len(c.Code), Line: line})
	}
	c.Code = append(c.Code, b)
}

// AddConst appends v to the constant pool and returns its index.
func (c *Chunk[V]) AddConst(v V) (int, error) {
	if len(c.Consts) >= MaxConstants {
		return 0, ErrTooManyConstants
	}
	c.Consts = append(c.Consts, v)
	return len(c.Consts) - 1, nil
}

// Len returns the number of code bytes.
func (c *Chunk[V]) Len() int {
	return len(c.Code)
}

// LineAt returns the source line of the instruction byte at offset, or 0.
func (c *Chunk[V]) LineAt(offset int) int {
	return lineForOffset(c.Lines, offset)
}

func lineForOffset(lines []LineInfo, offset int) int {
	idx := sort.Search(len(lines), func(i int) bool {
		return lines[i].Offset > offset
	})
	if idx == 0 {
		return 0
	}
	return lines[idx-1].Line
}
