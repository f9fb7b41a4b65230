package vm

import (
	"errors"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/xirelogy/go-lox/internal/bytecode"
	"github.com/xirelogy/go-lox/internal/compiler"
	"github.com/xirelogy/go-lox/internal/runtime"
	"github.com/xirelogy/go-lox/internal/value"
)

var log = commonlog.GetLogger("lox.vm")

const (
	defaultMaxFrames = 64

	// frameHeadroom is the stack space a new frame must have available:
	// a full set of locals plus a full argument list.
	frameHeadroom = 256 + 256
)

// Config sizes a VM and its heap. Zero fields take defaults.
type Config struct {
	MaxFrames        int
	StackSlots       int
	InstructionLimit int
	GC               value.GCConfig
	Stdout           io.Writer
}

type frame struct {
	closure *value.Closure
	ip      int
	base    int
	lastOp  int
}

// VM executes compiled Lox functions. A VM is not safe for concurrent use.
type VM struct {
	heap *value.Heap

	stack  []value.Value
	sp     int
	frames []frame

	globals      map[*value.String]value.Value
	openUpvalues *value.Upvalue
	initString   *value.String
	script       *value.Function

	out         io.Writer
	traceHook   TraceHook
	traceWriter io.Writer
	disasm      *bytecode.Disassembler[value.Value]
	instLimit   int
	instCount   int
}

// New constructs a VM with its own heap and every registered native defined
// as a global.
func New(cfg Config) *VM {
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = defaultMaxFrames
	}
	if cfg.StackSlots <= 0 {
		cfg.StackSlots = cfg.MaxFrames * 256
	}
	if cfg.StackSlots < 2*frameHeadroom {
		cfg.StackSlots = 2 * frameHeadroom
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	vm := &VM{
		heap:    value.NewHeap(cfg.GC),
		stack:   make([]value.Value, cfg.StackSlots),
		frames:  make([]frame, 0, cfg.MaxFrames),
		globals: make(map[*value.String]value.Value),
		out:     cfg.Stdout,
	}
	vm.SetInstructionLimit(cfg.InstructionLimit)
	vm.heap.AddRoots(vm)
	vm.initString = vm.heap.InternString("init")
	for _, spec := range runtime.All() {
		vm.defineNative(spec)
	}
	return vm
}

func (vm *VM) defineNative(spec runtime.Spec) {
	name := vm.heap.InternString(spec.Name)
	vm.heap.PushRoot(value.ObjVal(name))
	native := vm.heap.NewNative(name, spec.Arity, spec.Fn)
	vm.globals[name] = value.ObjVal(native)
	vm.heap.PopRoot()
}

// MarkRoots marks everything the VM can still reach.
func (vm *VM) MarkRoots(h *value.Heap) {
	for i := 0; i < vm.sp; i++ {
		h.MarkValue(vm.stack[i])
	}
	for i := range vm.frames {
		h.MarkObject(vm.frames[i].closure)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.Next {
		h.MarkObject(uv)
	}
	for name, v := range vm.globals {
		h.MarkObject(name)
		h.MarkValue(v)
	}
	if vm.initString != nil {
		h.MarkObject(vm.initString)
	}
	if vm.script != nil {
		h.MarkObject(vm.script)
	}
}

// Heap returns the heap all objects of this VM live on.
func (vm *VM) Heap() *value.Heap {
	return vm.heap
}

// SetTraceHook registers a callback for instruction-level tracing.
func (vm *VM) SetTraceHook(h TraceHook) {
	vm.traceHook = h
}

// SetInstructionLimit caps the number of instructions executed per Run (0 for unlimited).
func (vm *VM) SetInstructionLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	vm.instLimit = limit
}

// ResetState unwinds every frame, closing its captured variables, and
// clears the stack. Globals are kept.
func (vm *VM) ResetState() {
	vm.closeUpvalues(0)
	for i := 0; i < vm.sp; i++ {
		vm.stack[i] = value.Value{}
	}
	vm.sp = 0
	vm.frames = vm.frames[:0]
	vm.openUpvalues = nil
	vm.instCount = 0
}

// Interpret compiles src and runs it. Compile failures are returned as
// *compiler.Error and runtime failures as *RuntimeError.
func (vm *VM) Interpret(src string) error {
	fn, err := compiler.Compile(vm.heap, src)
	if err != nil {
		return err
	}
	return vm.Run(fn)
}

// Run executes fn as a top-level script.
func (vm *VM) Run(fn *value.Function) error {
	if fn == nil {
		return errors.New("vm: nil function")
	}
	vm.ResetState()
	vm.script = fn

	vm.push(value.ObjVal(fn))
	closure := vm.heap.NewClosure(fn)
	vm.pop()
	vm.push(value.ObjVal(closure))
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

// Free releases every object owned by the VM. The VM must not be used afterwards.
func (vm *VM) Free() {
	vm.ResetState()
	vm.heap.RemoveRoots(vm)
	vm.globals = nil
	vm.initString = nil
	vm.script = nil
	vm.heap.Free()
}

func (vm *VM) run() error {
	for {
		fr := &vm.frames[len(vm.frames)-1]
		fn := fr.closure.Function
		code := fn.Chunk.Code
		if fr.ip >= len(code) {
			return vm.errorf("Unexpected end of bytecode.")
		}
		fr.lastOp = fr.ip
		op := code[fr.ip]
		fr.ip++

		// No instruction grows the stack by more than one slot.
		if vm.sp == len(vm.stack) {
			return vm.errorf("Stack overflow.")
		}

		vm.instCount++
		if vm.instLimit > 0 && vm.instCount > vm.instLimit {
			log.Warningf("instruction limit %d exceeded", vm.instLimit)
			return vm.errorf("Instruction limit exceeded.")
		}
		if vm.traceHook != nil || vm.traceWriter != nil {
			vm.trace(fr, op)
		}

		switch op {
		case bytecode.OP_CONST:
			vm.push(fn.Chunk.Consts[vm.readU16(fr)])
		case bytecode.OP_NIL:
			vm.push(value.Nil())
		case bytecode.OP_TRUE:
			vm.push(value.Bool(true))
		case bytecode.OP_FALSE:
			vm.push(value.Bool(false))
		case bytecode.OP_POP:
			vm.pop()

		case bytecode.OP_ADD:
			if err := vm.add(); err != nil {
				return err
			}
		case bytecode.OP_SUB, bytecode.OP_MUL, bytecode.OP_DIV,
			bytecode.OP_LT, bytecode.OP_LTE, bytecode.OP_GT, bytecode.OP_GTE:
			b, a := vm.peek(0), vm.peek(1)
			if !a.IsNumber() || !b.IsNumber() {
				return vm.errorf("Operands must be numbers.")
			}
			vm.pop()
			vm.pop()
			vm.push(numericOp(op, a.Num, b.Num))
		case bytecode.OP_NEG:
			if !vm.peek(0).IsNumber() {
				return vm.errorf("Operand must be a number.")
			}
			vm.push(value.Number(-vm.pop().Num))
		case bytecode.OP_NOT:
			vm.push(value.Bool(vm.pop().IsFalsey()))
		case bytecode.OP_EQ:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case bytecode.OP_NEQ:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool(!value.Equal(a, b)))

		case bytecode.OP_GET_GLOBAL:
			name := vm.readName(fr)
			v, ok := vm.globals[name]
			if !ok {
				return vm.errorf("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case bytecode.OP_SET_GLOBAL:
			name := vm.readName(fr)
			if _, ok := vm.globals[name]; !ok {
				return vm.errorf("Undefined variable '%s'.", name.Chars)
			}
			vm.globals[name] = vm.peek(0)
		case bytecode.OP_DEFINE_GLOBAL:
			name := vm.readName(fr)
			vm.globals[name] = vm.peek(0)
			vm.pop()

		case bytecode.OP_GET_LOCAL:
			slot := int(vm.readU8(fr))
			vm.push(vm.stack[fr.base+slot])
		case bytecode.OP_SET_LOCAL:
			slot := int(vm.readU8(fr))
			vm.stack[fr.base+slot] = vm.peek(0)
		case bytecode.OP_GET_UPVALUE:
			slot := int(vm.readU8(fr))
			vm.push(fr.closure.Upvalues[slot].Get())
		case bytecode.OP_SET_UPVALUE:
			slot := int(vm.readU8(fr))
			fr.closure.Upvalues[slot].Set(vm.peek(0))
		case bytecode.OP_CLOSE_UPVALUE:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case bytecode.OP_GET_PROP:
			if err := vm.getProperty(vm.readName(fr)); err != nil {
				return err
			}
		case bytecode.OP_SET_PROP:
			if err := vm.setProperty(vm.readName(fr)); err != nil {
				return err
			}
		case bytecode.OP_GET_SUPER:
			name := vm.readName(fr)
			superclass := vm.pop().AsClass()
			if err := vm.bindMethod(superclass, name); err != nil {
				return err
			}
		case bytecode.OP_CLASS:
			vm.push(value.ObjVal(vm.heap.NewClass(vm.readName(fr))))
		case bytecode.OP_INHERIT:
			if err := vm.inherit(); err != nil {
				return err
			}
		case bytecode.OP_METHOD:
			vm.defineMethod(vm.readName(fr))

		case bytecode.OP_JUMP:
			off := vm.readU16(fr)
			fr.ip += off
		case bytecode.OP_JUMP_IF_FALSE:
			off := vm.readU16(fr)
			if vm.peek(0).IsFalsey() {
				fr.ip += off
			}
		case bytecode.OP_LOOP:
			off := vm.readU16(fr)
			fr.ip -= off

		case bytecode.OP_CALL:
			argc := int(vm.readU8(fr))
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return err
			}
		case bytecode.OP_INVOKE:
			name := vm.readName(fr)
			argc := int(vm.readU8(fr))
			if err := vm.invoke(name, argc); err != nil {
				return err
			}
		case bytecode.OP_SUPER_INVOKE:
			name := vm.readName(fr)
			argc := int(vm.readU8(fr))
			superclass := vm.pop().AsClass()
			if err := vm.invokeFromClass(superclass, name, argc); err != nil {
				return err
			}
		case bytecode.OP_CLOSURE:
			vm.makeClosure(fr)
		case bytecode.OP_RETURN:
			result := vm.pop()
			vm.closeUpvalues(fr.base)
			vm.frames = vm.frames[:len(vm.frames)-1]
			vm.truncate(fr.base)
			if len(vm.frames) == 0 {
				return nil
			}
			vm.push(result)

		case bytecode.OP_PRINT:
			if _, err := io.WriteString(vm.out, vm.pop().String()+"\n"); err != nil {
				return vm.wrapError(err, true)
			}

		default:
			panic("vm: unknown opcode " + bytecode.OpName(op))
		}
	}
}

func numericOp(op byte, a, b float64) value.Value {
	switch op {
	case bytecode.OP_SUB:
		return value.Number(a - b)
	case bytecode.OP_MUL:
		return value.Number(a * b)
	case bytecode.OP_DIV:
		return value.Number(a / b)
	case bytecode.OP_LT:
		return value.Bool(a < b)
	case bytecode.OP_LTE:
		return value.Bool(a <= b)
	case bytecode.OP_GT:
		return value.Bool(a > b)
	default:
		return value.Bool(a >= b)
	}
}

// add leaves both operands on the stack while a concatenation allocates.
func (vm *VM) add() error {
	b, a := vm.peek(0), vm.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(value.Number(a.Num + b.Num))
	case a.IsString() && b.IsString():
		s := vm.heap.InternString(a.AsString().Chars + b.AsString().Chars)
		vm.pop()
		vm.pop()
		vm.push(value.ObjVal(s))
	default:
		return vm.errorf("Operands must be two numbers or two strings.")
	}
	return nil
}

// stack

func (vm *VM) push(v value.Value) {
	if vm.sp == len(vm.stack) {
		panic("vm: push onto full stack")
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() value.Value {
	if vm.sp == 0 {
		panic("vm: pop from empty stack")
	}
	vm.sp--
	v := vm.stack[vm.sp]
	vm.stack[vm.sp] = value.Value{}
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) truncate(sp int) {
	for i := sp; i < vm.sp; i++ {
		vm.stack[i] = value.Value{}
	}
	vm.sp = sp
}

// operands

func (vm *VM) readU16(fr *frame) int {
	code := fr.closure.Function.Chunk.Code
	hi := code[fr.ip]
	lo := code[fr.ip+1]
	fr.ip += 2
	return int(hi)<<8 | int(lo)
}

func (vm *VM) readU8(fr *frame) byte {
	b := fr.closure.Function.Chunk.Code[fr.ip]
	fr.ip++
	return b
}

func (vm *VM) readName(fr *frame) *value.String {
	return fr.closure.Function.Chunk.Consts[vm.readU16(fr)].AsString()
}

// closures and upvalues

func (vm *VM) makeClosure(fr *frame) {
	fn := fr.closure.Function.Chunk.Consts[vm.readU16(fr)].AsFunction()
	count := int(vm.readU8(fr))
	closure := vm.heap.NewClosure(fn)
	vm.push(value.ObjVal(closure))
	for i := 0; i < count; i++ {
		isLocal := vm.readU8(fr)
		index := int(vm.readU8(fr))
		if isLocal == 1 {
			closure.Upvalues[i] = vm.captureUpvalue(fr.base + index)
		} else {
			closure.Upvalues[i] = fr.closure.Upvalues[index]
		}
	}
}

// captureUpvalue returns the open upvalue for slot, creating it if needed.
// The open list is kept sorted by descending slot.
func (vm *VM) captureUpvalue(slot int) *value.Upvalue {
	var prev *value.Upvalue
	uv := vm.openUpvalues
	for uv != nil && uv.Slot > slot {
		prev = uv
		uv = uv.Next
	}
	if uv != nil && uv.Slot == slot {
		return uv
	}

	created := vm.heap.NewUpvalue(&vm.stack[slot], slot)
	created.Next = uv
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above slot last.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= last {
		uv := vm.openUpvalues
		uv.Close()
		vm.openUpvalues = uv.Next
		uv.Next = nil
	}
}
