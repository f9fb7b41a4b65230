package vm

import (
	"github.com/xirelogy/go-lox/internal/value"
)

// callValue dispatches a call on callee, which sits below argc arguments.
func (vm *VM) callValue(callee value.Value, argc int) error {
	if callee.IsObj() {
		switch obj := callee.Obj.(type) {
		case *value.BoundMethod:
			vm.stack[vm.sp-argc-1] = obj.Receiver
			return vm.call(obj.Method, argc)
		case *value.Class:
			inst := vm.heap.NewInstance(obj)
			vm.stack[vm.sp-argc-1] = value.ObjVal(inst)
			if init, ok := obj.Methods[vm.initString]; ok {
				return vm.call(init, argc)
			}
			if argc != 0 {
				return vm.errorf("Expected 0 arguments but got %d.", argc)
			}
			return nil
		case *value.Closure:
			return vm.call(obj, argc)
		case *value.Native:
			return vm.callNative(obj, argc)
		}
	}
	return vm.errorf("Can only call functions and classes.")
}

func (vm *VM) call(closure *value.Closure, argc int) error {
	if argc != closure.Function.Arity {
		return vm.errorf("Expected %d arguments but got %d.", closure.Function.Arity, argc)
	}
	if len(vm.frames) == cap(vm.frames) || vm.sp+frameHeadroom > len(vm.stack) {
		return vm.errorf("Stack overflow.")
	}
	vm.frames = append(vm.frames, frame{
		closure: closure,
		base:    vm.sp - argc - 1,
		lastOp:  -1,
	})
	return nil
}

// callNative runs a host function with its arguments still on the stack so
// they stay reachable while it allocates.
func (vm *VM) callNative(native *value.Native, argc int) error {
	if argc != native.Arity {
		return vm.errorf("Expected %d arguments but got %d.", native.Arity, argc)
	}
	args := vm.stack[vm.sp-argc : vm.sp]
	result, err := native.Fn(vm.heap, args)
	if err != nil {
		return vm.wrapError(err, true)
	}
	vm.truncate(vm.sp - argc - 1)
	vm.push(result)
	return nil
}

func (vm *VM) invoke(name *value.String, argc int) error {
	receiver := vm.peek(argc)
	if !receiver.IsInstance() {
		return vm.errorf("Only instances have methods.")
	}
	inst := receiver.AsInstance()
	if field, ok := inst.Fields[name]; ok {
		vm.stack[vm.sp-argc-1] = field
		return vm.callValue(field, argc)
	}
	return vm.invokeFromClass(inst.Class, name, argc)
}

func (vm *VM) invokeFromClass(class *value.Class, name *value.String, argc int) error {
	method, ok := class.Methods[name]
	if !ok {
		return vm.errorf("Undefined property '%s'.", name.Chars)
	}
	return vm.call(method, argc)
}

// bindMethod replaces the receiver on top of the stack with a bound method.
func (vm *VM) bindMethod(class *value.Class, name *value.String) error {
	method, ok := class.Methods[name]
	if !ok {
		return vm.errorf("Undefined property '%s'.", name.Chars)
	}
	bound := vm.heap.NewBoundMethod(vm.peek(0), method)
	vm.pop()
	vm.push(value.ObjVal(bound))
	return nil
}

func (vm *VM) getProperty(name *value.String) error {
	if !vm.peek(0).IsInstance() {
		return vm.errorf("Only instances have properties.")
	}
	inst := vm.peek(0).AsInstance()
	if v, ok := inst.Fields[name]; ok {
		vm.pop()
		vm.push(v)
		return nil
	}
	return vm.bindMethod(inst.Class, name)
}

func (vm *VM) setProperty(name *value.String) error {
	if !vm.peek(1).IsInstance() {
		return vm.errorf("Only instances have fields.")
	}
	inst := vm.peek(1).AsInstance()
	if _, exists := inst.Fields[name]; !exists {
		vm.heap.Grow(inst, value.SizeTableEntry)
	}
	inst.Fields[name] = vm.peek(0)
	v := vm.pop()
	vm.pop()
	vm.push(v)
	return nil
}

// inherit copies the superclass methods into the subclass on top of the stack.
func (vm *VM) inherit() error {
	super := vm.peek(1)
	if !super.IsClass() {
		return vm.errorf("Superclass must be a class.")
	}
	superclass := super.AsClass()
	subclass := vm.peek(0).AsClass()
	vm.heap.Grow(subclass, value.SizeTableEntry*len(superclass.Methods))
	for name, method := range superclass.Methods {
		subclass.Methods[name] = method
	}
	subclass.Superclass = superclass
	vm.pop()
	return nil
}

func (vm *VM) defineMethod(name *value.String) {
	method := vm.peek(0).AsClosure()
	class := vm.peek(1).AsClass()
	if _, exists := class.Methods[name]; !exists {
		vm.heap.Grow(class, value.SizeTableEntry)
	}
	class.Methods[name] = method
	vm.pop()
}
