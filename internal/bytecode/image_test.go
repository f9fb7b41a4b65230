package bytecode

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func sampleImage() *Prototype {
	inner := &Prototype{
		Name:     "add",
		Arity:    2,
		Upvalues: []Upvalue{{IsLocal: true, Index: 0}},
		Code:     []byte{OP_GET_LOCAL, 1, OP_GET_LOCAL, 2, OP_ADD, OP_RETURN},
		Lines:    []LineInfo{{Offset: 0, Line: 2}},
	}
	return &Prototype{
		Code: []byte{
			OP_CLOSURE, 0, 1, 1, 1, 0,
			OP_DEFINE_GLOBAL, 0, 0,
			OP_CONST, 0, 2,
			OP_PRINT,
			OP_NIL,
			OP_RETURN,
		},
		Lines: []LineInfo{{Offset: 0, Line: 1}, {Offset: 9, Line: 4}},
		Consts: []Constant{
			{Kind: ConstString, String: "add"},
			{Kind: ConstFunction, Function: inner},
			{Kind: ConstNumber, Number: 1.5},
		},
	}
}

func TestImageRoundTrip(t *testing.T) {
	proto := sampleImage()
	data, err := EncodeImage(proto)
	require.NoError(t, err)

	decoded, err := DecodeImage(data)
	require.NoError(t, err)
	if diff := cmp.Diff(proto, decoded); diff != "" {
		t.Fatalf("image mismatch (-want +got):\n%s", diff)
	}

	again, err := EncodeImage(decoded)
	require.NoError(t, err)
	require.Equal(t, data, again, "canonical encoding must be deterministic")
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := DecodeImage([]byte("not cbor"))
	require.ErrorIs(t, err, ErrBadImage)
}

func TestDecodeImageRejectsVersion(t *testing.T) {
	data, err := cborEncMode.Marshal(image{Format: ImageFormat, Version: ImageVersion + 1, Script: sampleImage()})
	require.NoError(t, err)
	_, err = DecodeImage(data)
	require.ErrorIs(t, err, ErrBadImage)

	data, err = cborEncMode.Marshal(image{Format: "flux", Version: ImageVersion, Script: sampleImage()})
	require.NoError(t, err)
	_, err = DecodeImage(data)
	require.ErrorIs(t, err, ErrBadImage)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *Prototype)
	}{
		{name: "truncated operand", mutate: func(p *Prototype) { p.Code = []byte{OP_CONST, 0} }},
		{name: "const out of range", mutate: func(p *Prototype) { p.Code = []byte{OP_CONST, 0, 9} }},
		{name: "name not a string", mutate: func(p *Prototype) { p.Code = []byte{OP_GET_GLOBAL, 0, 2} }},
		{name: "closure of a number", mutate: func(p *Prototype) { p.Code = []byte{OP_CLOSURE, 0, 2, 0} }},
		{name: "jump past end", mutate: func(p *Prototype) { p.Code = []byte{OP_JUMP, 0, 9} }},
		{name: "loop before start", mutate: func(p *Prototype) { p.Code = []byte{OP_LOOP, 0, 9} }},
		{name: "unknown opcode", mutate: func(p *Prototype) { p.Code = []byte{0xFF} }},
		{name: "upvalue count mismatch", mutate: func(p *Prototype) { p.Code = []byte{OP_CLOSURE, 0, 1, 0} }},
		{name: "nested function broken", mutate: func(p *Prototype) { p.Consts[1].Function.Code = []byte{OP_GET_LOCAL} }},
		{name: "upvalue out of range", mutate: func(p *Prototype) {
			p.Consts[1].Function.Code = []byte{OP_GET_UPVALUE, 7, OP_RETURN}
		}},
		{name: "set upvalue out of range", mutate: func(p *Prototype) {
			p.Consts[1].Function.Code = []byte{OP_NIL, OP_SET_UPVALUE, 1, OP_RETURN}
		}},
		{name: "pop from empty stack", mutate: func(p *Prototype) { p.Code = []byte{OP_POP, OP_POP, OP_NIL, OP_RETURN} }},
		{name: "binary op underflow", mutate: func(p *Prototype) { p.Code = []byte{OP_ADD, OP_RETURN} }},
		{name: "call without arguments on stack", mutate: func(p *Prototype) { p.Code = []byte{OP_CALL, 3, OP_RETURN} }},
		{name: "local outside frame", mutate: func(p *Prototype) { p.Code = []byte{OP_GET_LOCAL, 1, OP_RETURN} }},
		{name: "nested local outside frame", mutate: func(p *Prototype) {
			p.Consts[1].Function.Code = []byte{OP_GET_LOCAL, 3, OP_RETURN}
		}},
		{name: "captured local outside frame", mutate: func(p *Prototype) {
			p.Consts[1].Function.Upvalues[0].Index = 4
			p.Code[5] = 4
		}},
		{name: "captured upvalue of script", mutate: func(p *Prototype) {
			p.Consts[1].Function.Upvalues[0] = Upvalue{IsLocal: false, Index: 0}
			p.Code[4] = 0
		}},
		{name: "capture disagrees with function", mutate: func(p *Prototype) { p.Code[5] = 0x01 }},
		{name: "jump into operand", mutate: func(p *Prototype) { p.Code = []byte{OP_JUMP, 0, 1, OP_CONST, 0, 2, OP_RETURN} }},
		{name: "unbalanced branches", mutate: func(p *Prototype) {
			p.Code = []byte{
				OP_TRUE,
				OP_JUMP_IF_FALSE, 0, 1,
				OP_NIL,
				OP_RETURN,
			}
		}},
	}

	require.NoError(t, Validate(sampleImage()))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := sampleImage()
			tc.mutate(p)
			require.ErrorIs(t, Validate(p), ErrBadImage)
		})
	}
}

func TestValidateAcceptsBalancedBranches(t *testing.T) {
	p := sampleImage()
	// if (true) print 1.5; else print 1.5;
	p.Code = []byte{
		OP_TRUE,
		OP_JUMP_IF_FALSE, 0, 8,
		OP_POP,
		OP_CONST, 0, 2,
		OP_PRINT,
		OP_JUMP, 0, 5,
		OP_POP,
		OP_CONST, 0, 2,
		OP_PRINT,
		OP_NIL,
		OP_RETURN,
	}
	p.Lines = []LineInfo{{Offset: 0, Line: 1}}
	require.NoError(t, Validate(p))
}

func TestEncodeImageRejectsStackUnderflow(t *testing.T) {
	p := sampleImage()
	p.Code = []byte{OP_POP, OP_POP, OP_NIL, OP_RETURN}
	_, err := EncodeImage(p)
	require.ErrorIs(t, err, ErrBadImage)
	require.Contains(t, err.Error(), "OP_POP needs 1 stack values, has 0")
}
