package value

import (
	"fmt"

	"github.com/xirelogy/go-lox/internal/bytecode"
)

// ToPrototype converts fn and every function nested in its constants into
// the plain-data image form.
func ToPrototype(fn *Function) (*bytecode.Prototype, error) {
	p := &bytecode.Prototype{
		Arity:    fn.Arity,
		Upvalues: append([]bytecode.Upvalue(nil), fn.Upvalues...),
		Code:     append([]byte(nil), fn.Chunk.Code...),
		Lines:    append([]bytecode.LineInfo(nil), fn.Chunk.Lines...),
		Consts:   make([]bytecode.Constant, 0, len(fn.Chunk.Consts)),
	}
	if fn.Name != nil {
		p.Name = fn.Name.Chars
	}
	for i, c := range fn.Chunk.Consts {
		switch {
		case c.IsNil():
			p.Consts = append(p.Consts, bytecode.Constant{Kind: bytecode.ConstNil})
		case c.IsBool():
			p.Consts = append(p.Consts, bytecode.Constant{Kind: bytecode.ConstBool, Bool: c.B})
		case c.IsNumber():
			p.Consts = append(p.Consts, bytecode.Constant{Kind: bytecode.ConstNumber, Number: c.Num})
		case c.IsString():
			p.Consts = append(p.Consts, bytecode.Constant{Kind: bytecode.ConstString, String: c.AsString().Chars})
		case c.IsFunction():
			child, err := ToPrototype(c.AsFunction())
			if err != nil {
				return nil, err
			}
			p.Consts = append(p.Consts, bytecode.Constant{Kind: bytecode.ConstFunction, Function: child})
		default:
			return nil, fmt.Errorf("%s: constant %d: cannot export %s", fn.DisplayName(), i, c.TypeName())
		}
	}
	return p, nil
}

// FromPrototype allocates the function described by p, and its nested
// functions, on h. p should already have passed bytecode.Validate.
func FromPrototype(h *Heap, p *bytecode.Prototype) *Function {
	fn := h.NewFunction()
	h.PushRoot(ObjVal(fn))
	defer h.PopRoot()

	if p.Name != "" {
		fn.Name = h.InternString(p.Name)
	}
	fn.Arity = p.Arity
	fn.Upvalues = append([]bytecode.Upvalue(nil), p.Upvalues...)
	fn.Chunk.Code = append([]byte(nil), p.Code...)
	fn.Chunk.Lines = append([]bytecode.LineInfo(nil), p.Lines...)
	fn.Chunk.Consts = make([]Value, 0, len(p.Consts))
	for _, c := range p.Consts {
		var v Value
		switch c.Kind {
		case bytecode.ConstBool:
			v = Bool(c.Bool)
		case bytecode.ConstNumber:
			v = Number(c.Number)
		case bytecode.ConstString:
			v = ObjVal(h.InternString(c.String))
		case bytecode.ConstFunction:
			v = ObjVal(FromPrototype(h, c.Function))
		default:
			v = Nil()
		}
		fn.Chunk.Consts = append(fn.Chunk.Consts, v)
	}
	return fn
}
