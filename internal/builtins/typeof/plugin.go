package typeof

import (
	"github.com/xirelogy/go-lox/internal/runtime"
	"github.com/xirelogy/go-lox/internal/value"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:  "typeof",
		Arity: 1,
		Fn:    runTypeof,
	})
}

func runTypeof(h *value.Heap, args []value.Value) (value.Value, error) {
	return value.ObjVal(h.InternString(args[0].TypeName())), nil
}
