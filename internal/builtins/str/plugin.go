package str

import (
	"github.com/xirelogy/go-lox/internal/runtime"
	"github.com/xirelogy/go-lox/internal/value"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:  "str",
		Arity: 1,
		Fn:    runStr,
	})
}

func runStr(h *value.Heap, args []value.Value) (value.Value, error) {
	if args[0].IsString() {
		return args[0], nil
	}
	return value.ObjVal(h.InternString(args[0].String())), nil
}
