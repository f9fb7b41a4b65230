package bytecode

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ImageFormat tags every encoded image.
const ImageFormat = "loxc"

// ImageVersion is bumped whenever the opcode set or operand layout changes.
const ImageVersion = 1

// ErrBadImage reports a malformed or incompatible compiled image.
var ErrBadImage = errors.New("bad image")

// ConstKind identifies the payload of an image constant.
type ConstKind uint8

const (
	ConstNil ConstKind = iota
	ConstBool
	ConstNumber
	ConstString
	ConstFunction
)

// Constant is the plain-data form of a constant pool entry.
type Constant struct {
	Kind     ConstKind  `cbor:"k"`
	Bool     bool       `cbor:"b,omitempty"`
	Number   float64    `cbor:"n,omitempty"`
	String   string     `cbor:"s,omitempty"`
	Function *Prototype `cbor:"f,omitempty"`
}

// Prototype is the serializable form of a compiled function.
// An empty Name denotes the top-level script.
type Prototype struct {
	Name     string     `cbor:"name"`
	Arity    int        `cbor:"arity"`
	Upvalues []Upvalue  `cbor:"upvalues"`
	Code     []byte     `cbor:"code"`
	Lines    []LineInfo `cbor:"lines"`
	Consts   []Constant `cbor:"consts"`
}

type image struct {
	Format  string     `cbor:"format"`
	Version int        `cbor:"version"`
	Script  *Prototype `cbor:"script"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// EncodeImage validates proto and serializes it to CBOR bytes.
func EncodeImage(proto *Prototype) ([]byte, error) {
	if err := Validate(proto); err != nil {
		return nil, err
	}
	data, err := cborEncMode.Marshal(image{Format: ImageFormat, Version: ImageVersion, Script: proto})
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal image: %w", err)
	}
	return data, nil
}

// DecodeImage deserializes and validates a CBOR image.
func DecodeImage(data []byte) (*Prototype, error) {
	var img image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal image: %w: %v", ErrBadImage, err)
	}
	if img.Format != ImageFormat {
		return nil, fmt.Errorf("%w: unexpected format %q", ErrBadImage, img.Format)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("%w: unsupported version %d (want %d)", ErrBadImage, img.Version, ImageVersion)
	}
	if err := Validate(img.Script); err != nil {
		return nil, err
	}
	return img.Script, nil
}

// Validate checks that every instruction of proto and its nested functions
// decodes cleanly, that operands refer to constants of the right kind, and
// that every reachable path keeps locals, upvalues and the value stack in
// bounds.
func Validate(proto *Prototype) error {
	if proto == nil {
		return fmt.Errorf("%w: missing prototype", ErrBadImage)
	}
	name := proto.Name
	if name == "" {
		name = "script"
	}
	bad := func(offset int, format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s at %04d: %s", ErrBadImage, name, offset, fmt.Sprintf(format, args...))
	}

	if proto.Arity < 0 || proto.Arity > 255 {
		return bad(0, "arity %d out of range", proto.Arity)
	}
	if len(proto.Upvalues) > 256 {
		return bad(0, "too many upvalues (%d)", len(proto.Upvalues))
	}

	code := proto.Code
	constOfKind := func(offset int, idx uint16, kind ConstKind) error {
		if int(idx) >= len(proto.Consts) {
			return bad(offset, "const index out of range: %d", idx)
		}
		if proto.Consts[idx].Kind != kind {
			return bad(offset, "const %d has kind %d, want %d", idx, proto.Consts[idx].Kind, kind)
		}
		return nil
	}

	// next[offset] is the offset following the instruction at offset, or 0
	// when no instruction starts there.
	next := make([]int, len(code))
	for ip := 0; ip < len(code); {
		offset := ip
		op := code[ip]
		ip++
		info, ok := opTable[op]
		if !ok {
			return bad(offset, "unknown opcode 0x%02X", op)
		}
		switch info.operand {
		case operandConst:
			idx, err := readU16(code, &ip)
			if err != nil {
				return bad(offset, "%v", err)
			}
			if int(idx) >= len(proto.Consts) {
				return bad(offset, "const index out of range: %d", idx)
			}
		case operandName:
			idx, err := readU16(code, &ip)
			if err != nil {
				return bad(offset, "%v", err)
			}
			if err := constOfKind(offset, idx, ConstString); err != nil {
				return err
			}
		case operandByte:
			if _, err := readU8(code, &ip); err != nil {
				return bad(offset, "%v", err)
			}
		case operandJump, operandLoop:
			off, err := readU16(code, &ip)
			if err != nil {
				return bad(offset, "%v", err)
			}
			target := ip + int(off)
			if info.operand == operandLoop {
				target = ip - int(off)
			}
			if target < 0 || target > len(code) {
				return bad(offset, "jump target %d outside code", target)
			}
		case operandInvoke:
			idx, err := readU16(code, &ip)
			if err != nil {
				return bad(offset, "%v", err)
			}
			if err := constOfKind(offset, idx, ConstString); err != nil {
				return err
			}
			if _, err := readU8(code, &ip); err != nil {
				return bad(offset, "%v", err)
			}
		case operandClosure:
			idx, err := readU16(code, &ip)
			if err != nil {
				return bad(offset, "%v", err)
			}
			if err := constOfKind(offset, idx, ConstFunction); err != nil {
				return err
			}
			upcount, err := readU8(code, &ip)
			if err != nil {
				return bad(offset, "%v", err)
			}
			child := proto.Consts[idx].Function
			if child == nil {
				return bad(offset, "const %d has no function body", idx)
			}
			if int(upcount) != len(child.Upvalues) {
				return bad(offset, "closure captures %d upvalues, function declares %d", upcount, len(child.Upvalues))
			}
			for i := 0; i < int(upcount); i++ {
				isLocal, err := readU8(code, &ip)
				if err != nil {
					return bad(offset, "%v", err)
				}
				if isLocal > 1 {
					return bad(offset, "invalid capture flag %d", isLocal)
				}
				index, err := readU8(code, &ip)
				if err != nil {
					return bad(offset, "%v", err)
				}
				if want := child.Upvalues[i]; want.IsLocal != (isLocal == 1) || want.Index != index {
					return bad(offset, "capture %d does not match the upvalues of %s", i, child.Name)
				}
			}
		}
		next[offset] = ip
	}

	if err := checkStack(proto, next, bad); err != nil {
		return err
	}

	for _, c := range proto.Consts {
		if c.Kind > ConstFunction {
			return bad(0, "unknown constant kind %d", c.Kind)
		}
		if c.Kind == ConstFunction {
			if err := Validate(c.Function); err != nil {
				return err
			}
		}
	}
	return nil
}
