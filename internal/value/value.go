package value

import (
	"strconv"
)

// Kind tags the payload carried by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObj
)

// Value is a Lox runtime value. Primitives are stored inline; everything
// else is a reference to a heap object.
type Value struct {
	Kind Kind
	B    bool
	Num  float64
	Obj  Obj
}

func Nil() Value { return Value{Kind: KindNil} }
func Bool(b bool) Value {
	return Value{Kind: KindBool, B: b}
}
func Number(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}
func ObjVal(o Obj) Value {
	return Value{Kind: KindObj, Obj: o}
}

func (v Value) IsNil() bool    { return v.Kind == KindNil }
func (v Value) IsBool() bool   { return v.Kind == KindBool }
func (v Value) IsNumber() bool { return v.Kind == KindNumber }
func (v Value) IsObj() bool    { return v.Kind == KindObj }

func (v Value) isObjType(t ObjType) bool {
	return v.Kind == KindObj && v.Obj.Type() == t
}

func (v Value) IsString() bool      { return v.isObjType(ObjString) }
func (v Value) IsFunction() bool    { return v.isObjType(ObjFunction) }
func (v Value) IsClosure() bool     { return v.isObjType(ObjClosure) }
func (v Value) IsClass() bool       { return v.isObjType(ObjClass) }
func (v Value) IsInstance() bool    { return v.isObjType(ObjInstance) }
func (v Value) IsBoundMethod() bool { return v.isObjType(ObjBoundMethod) }
func (v Value) IsNative() bool      { return v.isObjType(ObjNative) }

// The As* accessors panic if the value holds a different type; callers
// check with the matching Is* predicate first.
func (v Value) AsString() *String           { return v.Obj.(*String) }
func (v Value) AsFunction() *Function       { return v.Obj.(*Function) }
func (v Value) AsClosure() *Closure         { return v.Obj.(*Closure) }
func (v Value) AsClass() *Class             { return v.Obj.(*Class) }
func (v Value) AsInstance() *Instance       { return v.Obj.(*Instance) }
func (v Value) AsBoundMethod() *BoundMethod { return v.Obj.(*BoundMethod) }
func (v Value) AsNative() *Native           { return v.Obj.(*Native) }

// IsFalsey reports whether v counts as false in a condition:
// nil, false and the number zero.
func (v Value) IsFalsey() bool {
	switch v.Kind {
	case KindNil:
		return true
	case KindBool:
		return !v.B
	case KindNumber:
		return v.Num == 0
	default:
		return false
	}
}

// Equal compares primitives by value and objects by identity.
// Strings are interned, so identity is content equality.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.B == b.B
	case KindNumber:
		return a.Num == b.Num
	default:
		return a.Obj == b.Obj
	}
}

// TypeName reports the dynamic type name for a value.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	}
	switch v.Obj.Type() {
	case ObjString:
		return "string"
	case ObjFunction, ObjClosure, ObjBoundMethod, ObjNative:
		return "function"
	case ObjClass:
		return "class"
	case ObjInstance:
		return "instance"
	default:
		return "object"
	}
}

// String renders v the way print shows it.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.B {
			return "true"
		}
		return "false"
	case KindNumber:
		return FormatNumber(v.Num)
	default:
		return v.Obj.String()
	}
}

// FormatNumber prints n in its shortest plain decimal form.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
