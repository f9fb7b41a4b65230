package length

import (
	"errors"

	"github.com/xirelogy/go-lox/internal/runtime"
	"github.com/xirelogy/go-lox/internal/value"
)

var errNotString = errors.New("Argument to len must be a string.")

func init() {
	runtime.Register(runtime.Spec{
		Name:  "len",
		Arity: 1,
		Fn:    runLen,
	})
}

func runLen(_ *value.Heap, args []value.Value) (value.Value, error) {
	if !args[0].IsString() {
		return value.Nil(), errNotString
	}
	return value.Number(float64(len(args[0].AsString().Chars))), nil
}
