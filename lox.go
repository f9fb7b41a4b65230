// Package lox embeds the Lox bytecode compiler and virtual machine.
package lox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tliron/commonlog"

	_ "github.com/xirelogy/go-lox/internal/builtins"
	"github.com/xirelogy/go-lox/internal/bytecode"
	"github.com/xirelogy/go-lox/internal/compiler"
	"github.com/xirelogy/go-lox/internal/config"
	"github.com/xirelogy/go-lox/internal/value"
	"github.com/xirelogy/go-lox/internal/vm"
)

var log = commonlog.GetLogger("lox.api")

// ImageExt is the file extension of compiled bytecode images.
const ImageExt = ".loxc"

// Config is the interpreter configuration, normally read from lox.toml.
type Config = config.Config

// DefaultConfig returns the configuration used when no lox.toml is present.
func DefaultConfig() *Config {
	return config.Default()
}

// GCStats summarizes garbage collector activity.
type GCStats = value.GCStats

// FrameTrace describes a single frame in a runtime error or trace.
type FrameTrace struct {
	Function string
	Line     int
	IP       int
}

// RuntimeError is an execution error surfaced from the VM. Stack lists
// frames innermost first.
type RuntimeError struct {
	Message string
	Frame   FrameTrace
	Stack   []FrameTrace
	Cause   error

	text string
}

func (e *RuntimeError) Error() string {
	return e.text
}

// Unwrap exposes the underlying cause (if any) for errors.Is/As.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// CompileError lists every syntax error found in a source, one formatted
// diagnostic per entry.
type CompileError struct {
	Diagnostics []string
}

func (e *CompileError) Error() string {
	return strings.Join(e.Diagnostics, "\n")
}

// TraceInfo captures execution steps for debug hooks.
type TraceInfo struct {
	Op       string
	Function string
	Line     int
	IP       int
	Depth    int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

func convertError(err error) error {
	if err == nil {
		return nil
	}
	var rte *vm.RuntimeError
	if errors.As(err, &rte) {
		out := &RuntimeError{
			Message: rte.Message,
			Frame:   frameTraceFromVM(rte.Frame),
			Cause:   rte.Cause,
			text:    rte.Error(),
		}
		for _, f := range rte.Stack {
			out.Stack = append(out.Stack, frameTraceFromVM(f))
		}
		return out
	}
	var cerr *compiler.Error
	if errors.As(err, &cerr) {
		out := &CompileError{Diagnostics: make([]string, len(cerr.Diagnostics))}
		for i, d := range cerr.Diagnostics {
			out.Diagnostics[i] = d.String()
		}
		return out
	}
	return err
}

func frameTraceFromVM(info vm.FrameInfo) FrameTrace {
	return FrameTrace{
		Function: info.Function,
		Line:     info.Line,
		IP:       info.IP,
	}
}

// Value is a read-only view of a value owned by an Interpreter.
type Value struct {
	v value.Value
}

func (v Value) String() string   { return v.v.String() }
func (v Value) TypeName() string { return v.v.TypeName() }
func (v Value) IsNil() bool      { return v.v.IsNil() }

// Number returns the numeric payload, if v is a number.
func (v Value) Number() (float64, bool) {
	if !v.v.IsNumber() {
		return 0, false
	}
	return v.v.Num, true
}

// Bool returns the boolean payload, if v is a boolean.
func (v Value) Bool() (bool, bool) {
	if !v.v.IsBool() {
		return false, false
	}
	return v.v.B, true
}

// Str returns the characters of v, if v is a string.
func (v Value) Str() (string, bool) {
	if !v.v.IsString() {
		return "", false
	}
	return v.v.AsString().Chars, true
}

// Options configures a new Interpreter.
type Options struct {
	// Config defaults to DefaultConfig().
	Config *Config
	// Stdout receives print output. Defaults to os.Stdout.
	Stdout io.Writer
	// Debug receives disassembly and execution traces when the matching
	// debug settings are on. Defaults to os.Stderr.
	Debug io.Writer
}

// Interpreter compiles and runs Lox programs. Globals persist across runs.
// Only one run may be in progress at a time.
type Interpreter struct {
	core   *vm.VM
	cfg    *Config
	debug  io.Writer
	pinned map[*value.Function]int

	mu   sync.Mutex
	busy bool
}

// New constructs an interpreter from opts.
func New(opts Options) (*Interpreter, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.Debug == nil {
		opts.Debug = os.Stderr
	}

	core := vm.New(vm.Config{
		MaxFrames:        cfg.VM.MaxFrames,
		StackSlots:       cfg.VM.StackSlots,
		InstructionLimit: cfg.VM.InstructionLimit,
		GC: value.GCConfig{
			InitialThreshold: cfg.GC.InitialThreshold,
			GrowthFactor:     cfg.GC.GrowthFactor,
			Stress:           cfg.GC.Stress,
		},
		Stdout: opts.Stdout,
	})
	interp := &Interpreter{
		core:   core,
		cfg:    cfg,
		debug:  opts.Debug,
		pinned: make(map[*value.Function]int),
	}
	core.Heap().AddRoots(interp)
	if cfg.Debug.Trace {
		core.SetTraceWriter(opts.Debug)
	}
	return interp, nil
}

// MarkRoots keeps compiled programs alive until they are released.
func (interp *Interpreter) MarkRoots(h *value.Heap) {
	for fn := range interp.pinned {
		h.MarkObject(fn)
	}
}

// Close releases every object owned by the interpreter.
func (interp *Interpreter) Close() {
	interp.pinned = nil
	interp.core.Free()
}

// Config returns the configuration the interpreter was built with.
func (interp *Interpreter) Config() *Config {
	return interp.cfg
}

// SetInstructionLimit caps the number of instructions a single run may execute (0 for unlimited).
func (interp *Interpreter) SetInstructionLimit(limit int) {
	interp.core.SetInstructionLimit(limit)
}

// SetTraceHook attaches a debug hook that observes instruction dispatch.
func (interp *Interpreter) SetTraceHook(h TraceHook) {
	if h == nil {
		interp.core.SetTraceHook(nil)
		return
	}
	interp.core.SetTraceHook(func(info vm.TraceInfo) {
		h(TraceInfo{
			Op:       bytecode.OpName(info.Op),
			Function: info.Function,
			Line:     info.Line,
			IP:       info.IP,
			Depth:    info.Depth,
		})
	})
}

// SetTraceWriter prints every executed instruction to w (nil turns it off).
func (interp *Interpreter) SetTraceWriter(w io.Writer) {
	interp.core.SetTraceWriter(w)
}

// Program is a compiled script bound to the interpreter that produced it.
type Program struct {
	interp *Interpreter
	fn     *value.Function
}

func (interp *Interpreter) pin(fn *value.Function) *Program {
	interp.pinned[fn]++
	return &Program{interp: interp, fn: fn}
}

// Release lets the collector reclaim the program once nothing else uses it.
func (p *Program) Release() {
	pinned := p.interp.pinned
	if pinned[p.fn] <= 1 {
		delete(pinned, p.fn)
		return
	}
	pinned[p.fn]--
}

// Disassemble writes the bytecode listing of the program and its functions.
func (p *Program) Disassemble(w io.Writer) error {
	return vm.DisassembleFunction(w, p.fn)
}

// Image serializes the program into a portable bytecode image.
func (p *Program) Image() ([]byte, error) {
	proto, err := value.ToPrototype(p.fn)
	if err != nil {
		return nil, err
	}
	return bytecode.EncodeImage(proto)
}

// Compile translates source into a program without running it.
func (interp *Interpreter) Compile(src string) (*Program, error) {
	fn, err := compiler.Compile(interp.core.Heap(), src)
	if err != nil {
		return nil, convertError(err)
	}
	return interp.pin(fn), nil
}

// LoadImage decodes and validates a bytecode image.
func (interp *Interpreter) LoadImage(data []byte) (*Program, error) {
	proto, err := bytecode.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return interp.pin(value.FromPrototype(interp.core.Heap(), proto)), nil
}

// LoadFile reads a source file, or a bytecode image when path ends in ImageExt.
func (interp *Interpreter) LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == ImageExt {
		log.Debugf("loading image %s", path)
		p, err := interp.LoadImage(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return p, nil
	}
	return interp.Compile(string(data))
}

// Run executes a compiled program.
func (interp *Interpreter) Run(p *Program) error {
	if p == nil || p.interp != interp {
		return errors.New("program does not belong to this interpreter")
	}
	if err := interp.acquire(); err != nil {
		return err
	}
	defer interp.release()

	if interp.cfg.Debug.Disassemble {
		if err := p.Disassemble(interp.debug); err != nil {
			return err
		}
	}
	return convertError(interp.core.Run(p.fn))
}

// RunSource compiles and runs src. Compile errors are *CompileError and
// execution errors are *RuntimeError.
func (interp *Interpreter) RunSource(src string) error {
	p, err := interp.Compile(src)
	if err != nil {
		return err
	}
	defer p.Release()
	return interp.Run(p)
}

// RunFuture represents an in-flight run.
type RunFuture struct {
	ch <-chan error
}

// Await waits for completion or context cancellation.
func (f RunFuture) Await(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-f.ch:
		return err
	}
}

// RunAsync compiles and runs src on a separate goroutine. A second run
// started while one is in flight fails immediately.
func (interp *Interpreter) RunAsync(ctx context.Context, src string) RunFuture {
	ch := make(chan error, 1)
	if err := interp.acquire(); err != nil {
		ch <- err
		close(ch)
		return RunFuture{ch: ch}
	}

	go func() {
		defer close(ch)
		defer interp.release()
		select {
		case <-ctx.Done():
			ch <- ctx.Err()
			return
		default:
		}
		fn, err := compiler.Compile(interp.core.Heap(), src)
		if err != nil {
			ch <- convertError(err)
			return
		}
		ch <- convertError(interp.core.Run(fn))
	}()
	return RunFuture{ch: ch}
}

func (interp *Interpreter) acquire() error {
	interp.mu.Lock()
	defer interp.mu.Unlock()
	if interp.busy {
		return errors.New("interpreter is busy; concurrent runs not allowed")
	}
	interp.busy = true
	return nil
}

func (interp *Interpreter) release() {
	interp.mu.Lock()
	interp.busy = false
	interp.mu.Unlock()
}

// Global returns the value bound to a global name.
func (interp *Interpreter) Global(name string) (Value, bool) {
	v, ok := interp.core.Global(name)
	return Value{v: v}, ok
}

// GlobalNames lists every defined global in sorted order, natives included.
func (interp *Interpreter) GlobalNames() []string {
	return interp.core.GlobalNames()
}

// Globals renders every global with its printed form.
func (interp *Interpreter) Globals() map[string]string {
	out := make(map[string]string)
	for name, v := range interp.core.Globals() {
		out[name] = v.String()
	}
	return out
}

// GCStats reports collector activity so far.
func (interp *Interpreter) GCStats() GCStats {
	return interp.core.Heap().Stats()
}
