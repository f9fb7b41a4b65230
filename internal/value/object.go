package value

import (
	"github.com/xirelogy/go-lox/internal/bytecode"
)

// ObjType identifies a heap object variant.
type ObjType uint8

const (
	ObjString ObjType = iota
	ObjFunction
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjBoundMethod
	ObjNative
)

var objTypeNames = [...]string{
	ObjString:      "string",
	ObjFunction:    "function",
	ObjClosure:     "closure",
	ObjUpvalue:     "upvalue",
	ObjClass:       "class",
	ObjInstance:    "instance",
	ObjBoundMethod: "bound method",
	ObjNative:      "native",
}

func (t ObjType) String() string {
	if int(t) < len(objTypeNames) {
		return objTypeNames[t]
	}
	return "unknown"
}

// Obj is implemented by every heap-allocated object. Objects are only
// created through a Heap, which links them into its allocation list.
type Obj interface {
	Type() ObjType
	String() string
	header() *objHeader
}

type objHeader struct {
	marked bool
	freed  bool
	size   int
	next   Obj
}

func (h *objHeader) header() *objHeader { return h }

// String is an immutable, interned character sequence.
type String struct {
	objHeader
	Chars string
}

func (s *String) Type() ObjType  { return ObjString }
func (s *String) String() string { return s.Chars }

// Function is a compiled function body. Name is nil for the top-level script.
type Function struct {
	objHeader
	Name     *String
	Arity    int
	Upvalues []bytecode.Upvalue
	Chunk    bytecode.Chunk[Value]
}

func (f *Function) Type() ObjType { return ObjFunction }
func (f *Function) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return "<fn " + f.Name.Chars + ">"
}

// DisplayName is the name used in tracebacks and listings.
func (f *Function) DisplayName() string {
	if f.Name == nil {
		return "script"
	}
	return f.Name.Chars
}

// Closure pairs a function with the variables it captured.
type Closure struct {
	objHeader
	Function *Function
	Upvalues []*Upvalue
}

func (c *Closure) Type() ObjType  { return ObjClosure }
func (c *Closure) String() string { return c.Function.String() }

// Upvalue is a captured variable. While open, Location points at a live
// stack slot; once closed it points at Closed.
type Upvalue struct {
	objHeader
	Location *Value
	Closed   Value
	Slot     int
	Next     *Upvalue
}

func (u *Upvalue) Type() ObjType  { return ObjUpvalue }
func (u *Upvalue) String() string { return "upvalue" }

func (u *Upvalue) Get() Value {
	return *u.Location
}

func (u *Upvalue) Set(v Value) {
	*u.Location = v
}

// Close copies the captured value out of the stack. Closing an already
// closed upvalue has no effect.
func (u *Upvalue) Close() {
	if u.IsClosed() {
		return
	}
	u.Closed = *u.Location
	u.Location = &u.Closed
}

func (u *Upvalue) IsClosed() bool {
	return u.Location == &u.Closed
}

// Class holds a method table and an optional superclass.
type Class struct {
	objHeader
	Name       *String
	Methods    map[*String]*Closure
	Superclass *Class
}

func (c *Class) Type() ObjType  { return ObjClass }
func (c *Class) String() string { return c.Name.Chars }

// Instance is an object created by calling a class.
type Instance struct {
	objHeader
	Class  *Class
	Fields map[*String]Value
}

func (i *Instance) Type() ObjType  { return ObjInstance }
func (i *Instance) String() string { return i.Class.Name.Chars + " instance" }

// BoundMethod is a method closure paired with the receiver it was read from.
type BoundMethod struct {
	objHeader
	Receiver Value
	Method   *Closure
}

func (b *BoundMethod) Type() ObjType  { return ObjBoundMethod }
func (b *BoundMethod) String() string { return b.Method.String() }

// NativeFn is the host implementation of a native function. Natives get
// the heap so they can allocate results; they must not call back into the VM.
type NativeFn func(h *Heap, args []Value) (Value, error)

// Native is a built-in function with a fixed arity.
type Native struct {
	objHeader
	Name  *String
	Arity int
	Fn    NativeFn
}

func (n *Native) Type() ObjType  { return ObjNative }
func (n *Native) String() string { return "<native fn>" }
