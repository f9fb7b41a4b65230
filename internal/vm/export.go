package vm

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/xirelogy/go-lox/internal/value"
)

// Globals returns a snapshot of the global environment keyed by name.
func (vm *VM) Globals() map[string]value.Value {
	out := make(map[string]value.Value, len(vm.globals))
	for name, v := range vm.globals {
		out[name.Chars] = v
	}
	return out
}

// GlobalNames lists the defined globals in sorted order.
func (vm *VM) GlobalNames() []string {
	names := maps.Keys(vm.Globals())
	slices.Sort(names)
	return names
}

// Global looks up a global by name without allocating.
func (vm *VM) Global(name string) (value.Value, bool) {
	key, ok := vm.heap.LookupString(name)
	if !ok {
		return value.Nil(), false
	}
	v, ok := vm.globals[key]
	return v, ok
}

// DefineGlobal binds v to name. v must already live on this VM's heap.
func (vm *VM) DefineGlobal(name string, v value.Value) {
	vm.heap.PushRoot(v)
	key := vm.heap.InternString(name)
	vm.globals[key] = v
	vm.heap.PopRoot()
}
