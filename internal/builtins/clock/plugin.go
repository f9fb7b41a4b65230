package clock

import (
	"time"

	"github.com/xirelogy/go-lox/internal/runtime"
	"github.com/xirelogy/go-lox/internal/value"
)

var start = time.Now()

func init() {
	runtime.Register(runtime.Spec{
		Name:  "clock",
		Arity: 0,
		Fn:    runClock,
	})
}

// runClock returns the seconds elapsed since the process started.
func runClock(*value.Heap, []value.Value) (value.Value, error) {
	return value.Number(time.Since(start).Seconds()), nil
}
