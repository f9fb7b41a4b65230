package value

import (
	"github.com/tliron/commonlog"

	"github.com/xirelogy/go-lox/internal/bytecode"
)

var log = commonlog.GetLogger("lox.gc")

// Approximate object footprints used for GC accounting.
const (
	sizeString      = 32
	sizeFunction    = 128
	sizeClosure     = 32
	sizeUpvalue     = 56
	sizeClass       = 64
	sizeInstance    = 48
	sizeBoundMethod = 56
	sizeNative      = 48
	sizePointer     = 8

	// SizeTableEntry approximates one entry of a field or method table.
	SizeTableEntry = 32
)

// GCConfig controls collection scheduling.
type GCConfig struct {
	// InitialThreshold is the allocated-byte count that triggers the first
	// collection. It is also the floor for later thresholds.
	InitialThreshold int
	// GrowthFactor scales the surviving heap size into the next threshold.
	GrowthFactor float64
	// Stress collects before every allocation.
	Stress bool
}

// DefaultGCConfig returns the default collection schedule.
func DefaultGCConfig() GCConfig {
	return GCConfig{
		InitialThreshold: 1024 * 1024,
		GrowthFactor:     2,
	}
}

// RootSource is implemented by anything that holds object references the
// collector cannot discover on its own (the VM, an in-progress compile).
type RootSource interface {
	MarkRoots(h *Heap)
}

// Heap owns every object allocated by a VM and its compiler.
// A Heap is not safe for concurrent use.
type Heap struct {
	cfg GCConfig

	objects        Obj
	objectCount    int
	bytesAllocated int
	nextGC         int

	strings map[string]*String

	roots      []RootSource
	tempRoots  []Value
	gray       []Obj
	collecting bool

	stats GCStats
}

// NewHeap creates an empty heap. Zero or invalid settings in cfg fall back
// to the defaults.
func NewHeap(cfg GCConfig) *Heap {
	def := DefaultGCConfig()
	if cfg.InitialThreshold <= 0 {
		cfg.InitialThreshold = def.InitialThreshold
	}
	if cfg.GrowthFactor <= 1 {
		cfg.GrowthFactor = def.GrowthFactor
	}
	return &Heap{
		cfg:     cfg,
		nextGC:  cfg.InitialThreshold,
		strings: make(map[string]*String),
	}
}

// AddRoots registers a root source. Sources are marked at every collection
// until removed.
func (h *Heap) AddRoots(src RootSource) {
	h.roots = append(h.roots, src)
}

// RemoveRoots unregisters a root source.
func (h *Heap) RemoveRoots(src RootSource) {
	for i, r := range h.roots {
		if r == src {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// PushRoot keeps v alive until the matching PopRoot.
func (h *Heap) PushRoot(v Value) {
	h.tempRoots = append(h.tempRoots, v)
}

// PopRoot releases the most recent temporary root.
func (h *Heap) PopRoot() {
	if len(h.tempRoots) == 0 {
		panic("heap: PopRoot without PushRoot")
	}
	h.tempRoots = h.tempRoots[:len(h.tempRoots)-1]
}

// BytesAllocated returns the accounted size of all live objects.
func (h *Heap) BytesAllocated() int {
	return h.bytesAllocated
}

// ObjectCount returns the number of objects on the allocation list.
func (h *Heap) ObjectCount() int {
	return h.objectCount
}

// NextGC returns the byte count that triggers the next collection.
func (h *Heap) NextGC() int {
	return h.nextGC
}

// IsLive reports whether o has not been reclaimed.
func (h *Heap) IsLive(o Obj) bool {
	return !o.header().freed
}

// Grow accounts for delta extra bytes owned by o, such as a new table entry.
// It may trigger a collection, so o must be reachable.
func (h *Heap) Grow(o Obj, delta int) {
	h.maybeCollect(delta)
	o.header().size += delta
	h.bytesAllocated += delta
}

func (h *Heap) maybeCollect(incoming int) {
	if h.cfg.Stress || h.bytesAllocated+incoming > h.nextGC {
		h.Collect()
	}
}

// link runs the collector if needed, then adds o to the allocation list.
// o itself is not reachable yet, so collection happens before it is linked.
func (h *Heap) link(o Obj, size int) {
	h.maybeCollect(size)
	hdr := o.header()
	hdr.size = size
	hdr.next = h.objects
	h.objects = o
	h.objectCount++
	h.bytesAllocated += size
}

// InternString returns the unique String with the given contents.
func (h *Heap) InternString(s string) *String {
	if str, ok := h.strings[s]; ok {
		return str
	}
	str := &String{Chars: s}
	h.link(str, sizeString+len(s))
	h.strings[s] = str
	return str
}

// LookupString returns the interned String for s without allocating.
func (h *Heap) LookupString(s string) (*String, bool) {
	str, ok := h.strings[s]
	return str, ok
}

// NewFunction allocates an empty function for the compiler to fill in.
func (h *Heap) NewFunction() *Function {
	fn := &Function{}
	h.link(fn, sizeFunction)
	return fn
}

// NewClosure wraps fn with room for its upvalues. fn must be reachable.
func (h *Heap) NewClosure(fn *Function) *Closure {
	c := &Closure{
		Function: fn,
		Upvalues: make([]*Upvalue, len(fn.Upvalues)),
	}
	h.link(c, sizeClosure+sizePointer*len(fn.Upvalues))
	return c
}

// NewUpvalue creates an open upvalue for the stack slot at index.
func (h *Heap) NewUpvalue(slot *Value, index int) *Upvalue {
	uv := &Upvalue{Location: slot, Slot: index}
	h.link(uv, sizeUpvalue)
	return uv
}

// NewClass creates a class with an empty method table. name must be reachable.
func (h *Heap) NewClass(name *String) *Class {
	c := &Class{Name: name, Methods: make(map[*String]*Closure)}
	h.link(c, sizeClass)
	return c
}

// NewInstance creates an instance with no fields. class must be reachable.
func (h *Heap) NewInstance(class *Class) *Instance {
	inst := &Instance{Class: class, Fields: make(map[*String]Value)}
	h.link(inst, sizeInstance)
	return inst
}

// NewBoundMethod pairs receiver with method. Both must be reachable.
func (h *Heap) NewBoundMethod(receiver Value, method *Closure) *BoundMethod {
	b := &BoundMethod{Receiver: receiver, Method: method}
	h.link(b, sizeBoundMethod)
	return b
}

// NewNative wraps a host function. name must be reachable.
func (h *Heap) NewNative(name *String, arity int, fn NativeFn) *Native {
	n := &Native{Name: name, Arity: arity, Fn: fn}
	h.link(n, sizeNative)
	return n
}

// Free releases every object. The heap can be reused afterwards.
func (h *Heap) Free() {
	freed := h.objectCount
	for o := h.objects; o != nil; {
		next := o.header().next
		h.release(o)
		o = next
	}
	h.objects = nil
	h.strings = make(map[string]*String)
	h.roots = nil
	h.tempRoots = nil
	h.gray = nil
	h.nextGC = h.cfg.InitialThreshold
	log.Debugf("heap freed: %d objects", freed)
}

func (h *Heap) release(o Obj) {
	hdr := o.header()
	h.bytesAllocated -= hdr.size
	h.objectCount--
	hdr.freed = true
	hdr.marked = false
	hdr.next = nil

	switch obj := o.(type) {
	case *Function:
		obj.Chunk = bytecode.Chunk[Value]{}
	case *Closure:
		obj.Upvalues = nil
	case *Class:
		obj.Methods = nil
	case *Instance:
		obj.Fields = nil
	case *Upvalue:
		obj.Next = nil
	}
}
