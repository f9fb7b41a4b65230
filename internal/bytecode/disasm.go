package bytecode

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Disassembler formats bytecode as a readable assembly-style dump.
type Disassembler[V any] struct {
	w       io.Writer
	format  func(V) string
	nested  func(V) (string, *Chunk[V], bool)
	visited map[*Chunk[V]]bool
	printed bool
}

// NewDisassembler constructs a disassembler that writes to w. format renders
// constants; nested reports whether a constant owns a chunk of its own (a
// function) and returns its display name and chunk. nested may be nil, in
// which case function constants are not followed.
func NewDisassembler[V any](w io.Writer, format func(V) string, nested func(V) (string, *Chunk[V], bool)) *Disassembler[V] {
	if format == nil {
		format = func(v V) string { return fmt.Sprint(v) }
	}
	return &Disassembler[V]{
		w:       w,
		format:  format,
		nested:  nested,
		visited: make(map[*Chunk[V]]bool),
	}
}

// DisassembleChunk emits a readable dump for a chunk and any nested function chunks.
func (d *Disassembler[V]) DisassembleChunk(name string, chunk *Chunk[V]) error {
	if chunk == nil {
		return fmt.Errorf("nil chunk")
	}
	if d.visited[chunk] {
		return nil
	}
	d.visited[chunk] = true
	d.startSection()
	if name == "" {
		name = "<anon>"
	}
	fmt.Fprintf(d.w, "== %s ==\n", name)
	for ip := 0; ip < len(chunk.Code); {
		text, next, err := d.decode(chunk, ip)
		if err != nil {
			return fmt.Errorf("%s at %04d: %w", name, ip, err)
		}
		fmt.Fprintln(d.w, text)
		ip = next
	}
	if d.nested == nil {
		return nil
	}
	for idx, c := range chunk.Consts {
		childName, child, ok := d.nested(c)
		if !ok {
			continue
		}
		if childName == "" {
			childName = fmt.Sprintf("<closure@const:%d>", idx)
		}
		if err := d.DisassembleChunk(childName, child); err != nil {
			return err
		}
	}
	return nil
}

// Instruction decodes the instruction at offset and returns its listing row
// together with the offset of the following instruction.
func (d *Disassembler[V]) Instruction(chunk *Chunk[V], offset int) (string, int) {
	text, next, err := d.decode(chunk, offset)
	if err != nil {
		return fmt.Sprintf("%04d %4s <%v>", offset, "-", err), len(chunk.Code)
	}
	return text, next
}

func (d *Disassembler[V]) startSection() {
	if d.printed {
		fmt.Fprintln(d.w)
	}
	d.printed = true
}

func (d *Disassembler[V]) decode(chunk *Chunk[V], offset int) (string, int, error) {
	code := chunk.Code
	if offset < 0 || offset >= len(code) {
		return "", offset, fmt.Errorf("offset out of range: %d", offset)
	}
	ip := offset
	op := code[ip]
	ip++

	line := chunk.LineAt(offset)
	lineStr := "-"
	if offset > 0 && line == chunk.LineAt(offset-1) {
		lineStr = "|"
	} else if line > 0 {
		lineStr = strconv.Itoa(line)
	}

	info, ok := opTable[op]
	if !ok {
		return "", ip, fmt.Errorf("unknown opcode 0x%02X", op)
	}
	operands, err := d.decodeOperands(info.operand, chunk, &ip)
	if err != nil {
		return "", ip, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%04d %4s %-16s", offset, lineStr, info.name)
	if operands != "" {
		fmt.Fprintf(&b, " %s", operands)
	}
	return b.String(), ip, nil
}

func (d *Disassembler[V]) decodeOperands(kind operandKind, chunk *Chunk[V], ip *int) (string, error) {
	code := chunk.Code
	switch kind {
	case operandConst:
		idx, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		if int(idx) >= len(chunk.Consts) {
			return "", fmt.Errorf("const index out of range: %d", idx)
		}
		return fmt.Sprintf("%d ; const[%d]=%s", idx, idx, d.format(chunk.Consts[idx])), nil
	case operandName:
		idx, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d ; name=%s", idx, d.constRef(chunk, idx)), nil
	case operandByte:
		slot, err := readU8(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", slot), nil
	case operandJump, operandLoop:
		off, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		target := *ip + int(off)
		if kind == operandLoop {
			target = *ip - int(off)
		}
		return fmt.Sprintf("%d ; -> %04d", off, target), nil
	case operandInvoke:
		idx, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		argc, err := readU8(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d ; name=%s", idx, argc, d.constRef(chunk, idx)), nil
	case operandClosure:
		idx, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		upcount, err := readU8(code, ip)
		if err != nil {
			return "", err
		}
		upvals := make([]string, 0, upcount)
		for i := 0; i < int(upcount); i++ {
			isLocal, err := readU8(code, ip)
			if err != nil {
				return "", err
			}
			slot, err := readU8(code, ip)
			if err != nil {
				return "", err
			}
			if isLocal == 1 {
				upvals = append(upvals, fmt.Sprintf("local %d", slot))
			} else {
				upvals = append(upvals, fmt.Sprintf("upvalue %d", slot))
			}
		}
		operand := fmt.Sprintf("%d %d", idx, upcount)
		if len(upvals) > 0 {
			operand = operand + " [" + strings.Join(upvals, ", ") + "]"
		}
		return operand + " ; " + d.constRef(chunk, idx), nil
	default:
		return "", nil
	}
}

func (d *Disassembler[V]) constRef(chunk *Chunk[V], idx uint16) string {
	if int(idx) >= len(chunk.Consts) {
		return "<invalid>"
	}
	return d.format(chunk.Consts[idx])
}

func readU8(code []byte, ip *int) (byte, error) {
	if *ip >= len(code) {
		return 0, fmt.Errorf("unexpected end of bytecode")
	}
	val := code[*ip]
	*ip = *ip + 1
	return val, nil
}

func readU16(code []byte, ip *int) (uint16, error) {
	if *ip+1 >= len(code) {
		return 0, fmt.Errorf("unexpected end of bytecode")
	}
	hi := code[*ip]
	lo := code[*ip+1]
	*ip += 2
	return uint16(hi)<<8 | uint16(lo), nil
}
