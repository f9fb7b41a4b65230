package vm

import (
	"fmt"
	"io"
	"strings"

	"github.com/xirelogy/go-lox/internal/bytecode"
	"github.com/xirelogy/go-lox/internal/value"
)

// NewDisassembler returns a disassembler for chunks holding Lox values.
// Function constants are followed into their own sections.
func NewDisassembler(w io.Writer) *bytecode.Disassembler[value.Value] {
	return bytecode.NewDisassembler(w, formatConst, nestedFunction)
}

func formatConst(v value.Value) string {
	if v.IsString() {
		return fmt.Sprintf("%q", v.AsString().Chars)
	}
	if v.IsFunction() {
		return v.AsFunction().String()
	}
	return v.String()
}

func nestedFunction(v value.Value) (string, *bytecode.Chunk[value.Value], bool) {
	if !v.IsFunction() {
		return "", nil, false
	}
	fn := v.AsFunction()
	return fn.DisplayName(), &fn.Chunk, true
}

// DisassembleFunction writes fn and every function nested in it to w.
func DisassembleFunction(w io.Writer, fn *value.Function) error {
	if fn == nil {
		return fmt.Errorf("nil function")
	}
	return NewDisassembler(w).DisassembleChunk(fn.DisplayName(), &fn.Chunk)
}

// Disassemble emits assembly-style output for the most recently run script.
func (vm *VM) Disassemble(w io.Writer) error {
	if vm == nil {
		return fmt.Errorf("nil VM")
	}
	if w == nil {
		return fmt.Errorf("nil writer")
	}
	if vm.script == nil {
		return fmt.Errorf("no script loaded")
	}
	return DisassembleFunction(w, vm.script)
}

// SetTraceWriter prints the value stack and each instruction to w before it
// executes. A nil writer turns tracing off.
func (vm *VM) SetTraceWriter(w io.Writer) {
	vm.traceWriter = w
	vm.disasm = nil
	if w != nil {
		vm.disasm = bytecode.NewDisassembler(w, formatConst, nil)
	}
}

func (vm *VM) traceStack(fr *frame) {
	var b strings.Builder
	b.WriteString("          ")
	for i := 0; i < vm.sp; i++ {
		b.WriteString("[ ")
		b.WriteString(formatConst(vm.stack[i]))
		b.WriteString(" ]")
	}
	b.WriteByte('\n')
	text, _ := vm.disasm.Instruction(&fr.closure.Function.Chunk, fr.lastOp)
	b.WriteString(text)
	b.WriteByte('\n')
	io.WriteString(vm.traceWriter, b.String())
}
