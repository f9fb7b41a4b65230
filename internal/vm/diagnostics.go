package vm

import (
	"fmt"
	"strings"
)

// TraceInfo describes a single instruction dispatch for debugging/tracing.
type TraceInfo struct {
	Op       byte
	Function string
	Line     int
	IP       int
	Depth    int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

// FrameInfo captures the call frame at the time of an error or trace event.
type FrameInfo struct {
	Function string
	Script   bool
	Line     int
	IP       int
}

func (f FrameInfo) String() string {
	if f.Script {
		return fmt.Sprintf("[line %d] in script", f.Line)
	}
	return fmt.Sprintf("[line %d] in %s()", f.Line, f.Function)
}

// RuntimeError carries the message and call stack of a failed execution.
// Stack lists frames innermost first.
type RuntimeError struct {
	Message string
	Frame   FrameInfo
	Stack   []FrameInfo
	Cause   error
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, f := range e.Stack {
		b.WriteByte('\n')
		b.WriteString(f.String())
	}
	return b.String()
}

// Unwrap exposes the original error, if any.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// errorf builds a runtime error from the current call stack, logs it and
// resets the stack so the VM can be reused.
func (vm *VM) errorf(format string, args ...interface{}) error {
	return vm.wrapError(fmt.Errorf(format, args...), false)
}

// wrapError converts err into a *RuntimeError. keepCause records err as the
// Cause, used for errors returned by natives.
func (vm *VM) wrapError(err error, keepCause bool) error {
	rerr := &RuntimeError{
		Message: err.Error(),
		Stack:   vm.stackTrace(),
	}
	if keepCause {
		rerr.Cause = err
	}
	if len(rerr.Stack) > 0 {
		rerr.Frame = rerr.Stack[0]
	}
	log.Infof("runtime error: %s", rerr.Message)
	vm.ResetState()
	return rerr
}

func (vm *VM) trace(fr *frame, op byte) {
	if vm.traceWriter != nil {
		vm.traceStack(fr)
	}
	if vm.traceHook == nil {
		return
	}
	info := vm.frameInfo(fr)
	vm.traceHook(TraceInfo{
		Op:       op,
		Function: info.Function,
		Line:     info.Line,
		IP:       info.IP,
		Depth:    len(vm.frames),
	})
}

func (vm *VM) stackTrace() []FrameInfo {
	if len(vm.frames) == 0 {
		return nil
	}
	trace := make([]FrameInfo, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		trace = append(trace, vm.frameInfo(&vm.frames[i]))
	}
	return trace
}

func (vm *VM) frameInfo(fr *frame) FrameInfo {
	if fr == nil || fr.closure == nil {
		return FrameInfo{}
	}
	fn := fr.closure.Function
	return FrameInfo{
		Function: fn.DisplayName(),
		Script:   fn.Name == nil,
		Line:     fn.Chunk.LineAt(fr.lastOp),
		IP:       fr.lastOp,
	}
}
