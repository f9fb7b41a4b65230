package vm_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	_ "github.com/xirelogy/go-lox/internal/builtins"
	"github.com/xirelogy/go-lox/internal/compiler"
	"github.com/xirelogy/go-lox/internal/value"
	"github.com/xirelogy/go-lox/internal/vm"
)

func newMachine(t *testing.T, cfg vm.Config) (*vm.VM, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg.Stdout = &out
	machine := vm.New(cfg)
	t.Cleanup(machine.Free)
	return machine, &out
}

func run(t *testing.T, src string) string {
	t.Helper()
	machine, out := newMachine(t, vm.Config{})
	if err := machine.Interpret(src); err != nil {
		t.Fatalf("interpret error: %v", err)
	}
	return out.String()
}

func runtimeError(t *testing.T, src string) *vm.RuntimeError {
	t.Helper()
	machine, _ := newMachine(t, vm.Config{})
	err := machine.Interpret(src)
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected runtime error, got %v", err)
	}
	return rerr
}

func TestVMArithmetic(t *testing.T) {
	got := run(t, "print 1 + 2 * 3; print (1 + 2) * 3; print -2 - 3; print 10 / 4; print !nil; print 3 >= 3;")
	require.Equal(t, "7\n9\n-5\n2.5\ntrue\ntrue\n", got)
}

func TestVMTruthiness(t *testing.T) {
	got := run(t, `
if (0) print "zero"; else print "zero falsey";
if ("") print "empty truthy";
if (nil or false) print "no"; else print "nil falsey";
print 1 and 2;
print nil or "x";
`)
	require.Equal(t, "zero falsey\nempty truthy\nnil falsey\n2\nx\n", got)
}

func TestVMStringConcatenation(t *testing.T) {
	require.Equal(t, "hello world\n", run(t, `var a = "hello"; print a + " " + "world";`))

	rerr := runtimeError(t, `print "a" + 1;`)
	require.Equal(t, "Operands must be two numbers or two strings.", rerr.Message)
	require.Equal(t, "Operands must be two numbers or two strings.\n[line 1] in script", rerr.Error())
}

func TestVMStringEqualityIsIdentity(t *testing.T) {
	got := run(t, `var a = "ab"; var b = "a" + "b"; print a == b; print a != "ab";`)
	require.Equal(t, "true\nfalse\n", got)
}

func TestVMGlobalsAndLocals(t *testing.T) {
	got := run(t, `
var a = 1;
var a = 2;
{
  var b = a + 1;
  {
    var c = b * 10;
    print c;
  }
  b = 5;
  print b;
}
print a;
`)
	require.Equal(t, "30\n5\n2\n", got)
}

func TestVMUndefinedGlobal(t *testing.T) {
	rerr := runtimeError(t, "print missing;")
	require.Equal(t, "Undefined variable 'missing'.", rerr.Message)

	rerr = runtimeError(t, "missing = 1;")
	require.Equal(t, "Undefined variable 'missing'.", rerr.Message)
}

func TestVMControlFlow(t *testing.T) {
	got := run(t, `
var s = 0;
for (var i = 1; i <= 4; i = i + 1) {
  if (i == 3) print "three";
  s = s + i;
}
print s;
var n = 3;
while (n > 0) n = n - 1;
print n;
`)
	require.Equal(t, "three\n10\n0\n", got)
}

func TestVMFunctionsAndRecursion(t *testing.T) {
	got := run(t, `
fun fib(n) {
  if (n < 2) return n;
  return fib(n - 2) + fib(n - 1);
}
print fib(15);
fun noReturn() {}
print noReturn();
print fib;
print clock;
`)
	require.Equal(t, "610\nnil\n<fn fib>\n<native fn>\n", got)
}

func TestVMArityMismatch(t *testing.T) {
	rerr := runtimeError(t, "fun f(a, b) {}\nf(1);")
	require.Equal(t, "Expected 2 arguments but got 1.", rerr.Message)
	require.Equal(t, 2, rerr.Frame.Line)
}

func TestVMCallNonCallable(t *testing.T) {
	rerr := runtimeError(t, `"str"();`)
	require.Equal(t, "Can only call functions and classes.", rerr.Message)
}

func TestVMClosuresCaptureVariables(t *testing.T) {
	got := run(t, `
fun makeCounter() {
  var i = 0;
  fun count() {
    i = i + 1;
    return i;
  }
  return count;
}
var c = makeCounter();
c();
print c();
var d = makeCounter();
print d();
`)
	require.Equal(t, "2\n1\n", got)
}

func TestVMLoopClosuresSeeClosedValue(t *testing.T) {
	got := run(t, `
var fs;
var gs;
{
  var shared = "before";
  fun f() { return shared; }
  fun g() { shared = "after"; }
  fs = f;
  gs = g;
}
gs();
print fs();
for (var i = 0; i < 3; i = i + 1) {
  var j = i;
  fun h() { return j; }
  if (i == 0) fs = h;
}
print fs();
`)
	require.Equal(t, "after\n0\n", got)
}

func TestVMSharedUpvalue(t *testing.T) {
	got := run(t, `
fun pair() {
  var x = 1;
  fun get() { return x; }
  fun set(v) { x = v; }
  set(42);
  print get();
  return get;
}
print pair()();
`)
	require.Equal(t, "42\n42\n", got)
}

func TestVMClassesAndMethods(t *testing.T) {
	got := run(t, `
class Point {
  init(x, y) { this.x = x; this.y = y; }
  sum() { return this.x + this.y; }
}
var p = Point(1, 2);
print p.sum();
var m = p.sum;
p.x = 10;
print m();
print p;
print Point;
`)
	require.Equal(t, "3\n12\nPoint instance\nPoint\n", got)
}

func TestVMFieldShadowsMethod(t *testing.T) {
	got := run(t, `
class A { m() { return "method"; } }
fun f() { return "field"; }
var a = A();
a.m = f;
print a.m();
`)
	require.Equal(t, "field\n", got)
}

func TestVMInheritanceAndSuper(t *testing.T) {
	got := run(t, `
class A {
  method() { return "A.method"; }
  other() { return "A.other"; }
}
class B < A {
  method() { return "B>" + super.method(); }
}
class C < B {
  method() {
    var m = super.method;
    return "C>" + m();
  }
}
var c = C();
print c.method();
print c.other();
`)
	require.Equal(t, "C>B>A.method\nA.other\n", got)
}

func TestVMInitializerReturnsReceiver(t *testing.T) {
	got := run(t, `
class A {
  init() { this.v = 1; return; }
}
var a = A();
print a.init() == a;
`)
	require.Equal(t, "true\n", got)
}

func TestVMClassErrors(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"var x = 1; class A < x {}", "Superclass must be a class."},
		{"class A {} A(1);", "Expected 0 arguments but got 1."},
		{"class A {} print A().missing;", "Undefined property 'missing'."},
		{"class A {} A().missing();", "Undefined property 'missing'."},
		{"var s = 1; print s.field;", "Only instances have properties."},
		{"var s = 1; s.field = 2;", "Only instances have fields."},
		{"var s = 1; s.m();", "Only instances have methods."},
		{"print -\"x\";", "Operand must be a number."},
		{"print 1 < \"x\";", "Operands must be numbers."},
	}
	for _, tc := range cases {
		rerr := runtimeError(t, tc.src)
		if rerr.Message != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.src, tc.want, rerr.Message)
		}
	}
}

func TestVMTraceback(t *testing.T) {
	rerr := runtimeError(t, `
fun inner() {
  return nil + 1;
}
fun outer() {
  inner();
}
outer();
`)
	want := []vm.FrameInfo{
		{Function: "inner", Line: 3},
		{Function: "outer", Line: 6},
		{Function: "script", Script: true, Line: 8},
	}
	opts := cmp.FilterPath(func(p cmp.Path) bool { return p.Last().String() == ".IP" }, cmp.Ignore())
	if diff := cmp.Diff(want, rerr.Stack, opts); diff != "" {
		t.Fatalf("stack mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "Operands must be two numbers or two strings.\n[line 3] in inner()\n[line 6] in outer()\n[line 8] in script", rerr.Error())
}

func TestVMStackOverflow(t *testing.T) {
	rerr := runtimeError(t, "fun f() { f(); } f();")
	require.Equal(t, "Stack overflow.", rerr.Message)
	require.Len(t, rerr.Stack, 64)
}

func TestVMRecoversAfterRuntimeError(t *testing.T) {
	machine, out := newMachine(t, vm.Config{})
	require.NoError(t, machine.Interpret("var kept = 1;"))
	require.Error(t, machine.Interpret("fun f() { return missing; } f();"))
	require.NoError(t, machine.Interpret("print kept + 1;"))
	require.Equal(t, "2\n", out.String())
}

func TestVMDeepExpressionOverflowsValueStack(t *testing.T) {
	machine, _ := newMachine(t, vm.Config{StackSlots: 1024})
	depth := 1200
	src := "print " + strings.Repeat("1 + (", depth) + "1" + strings.Repeat(")", depth) + ";"
	err := machine.Interpret(src)
	var rerr *vm.RuntimeError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	require.Equal(t, "Stack overflow.", rerr.Message)
	require.Equal(t, "script", rerr.Frame.Function)

	require.NoError(t, machine.Interpret("print 1;"))
}

func TestVMErrorClosesCapturedVariables(t *testing.T) {
	machine, out := newMachine(t, vm.Config{})
	err := machine.Interpret(`
var get;
var set;
{
  var x = "captured";
  fun g() { return x; }
  fun s(v) { x = v; }
  get = g;
  set = s;
  nil();
}
`)
	require.Error(t, err)

	require.NoError(t, machine.Interpret(`
{
  var a = "other";
  print get();
  set("changed");
  print a;
  print get();
}
`))
	require.Equal(t, "captured\nother\nchanged\n", out.String())
}

func TestVMCompileErrorPassesThrough(t *testing.T) {
	machine, _ := newMachine(t, vm.Config{})
	err := machine.Interpret("print ;")
	var cerr *compiler.Error
	require.True(t, errors.As(err, &cerr))
}

func TestVMNatives(t *testing.T) {
	got := run(t, `
print typeof(1);
print typeof("s");
print typeof(nil);
print typeof(clock);
class A {}
print typeof(A);
print typeof(A());
print str(12) + "!";
print len("four");
print clock() >= 0;
`)
	require.Equal(t, "number\nstring\nnil\nfunction\nclass\ninstance\n12!\n4\ntrue\n", got)

	rerr := runtimeError(t, "len(1);")
	require.Equal(t, "Argument to len must be a string.", rerr.Message)
	require.NotNil(t, rerr.Cause)

	rerr = runtimeError(t, "typeof();")
	require.Equal(t, "Expected 1 arguments but got 0.", rerr.Message)
}

func TestVMInstructionLimit(t *testing.T) {
	machine, _ := newMachine(t, vm.Config{InstructionLimit: 100})
	err := machine.Interpret("while (true) {}")
	var rerr *vm.RuntimeError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, "Instruction limit exceeded.", rerr.Message)

	machine.SetInstructionLimit(0)
	require.NoError(t, machine.Interpret("var i = 0; while (i < 100) i = i + 1;"))
}

const gcProgram = `
class Node {
  init(value, next) { this.value = value; this.next = next; }
}
fun build(n) {
  var head = nil;
  for (var i = 0; i < n; i = i + 1) head = Node("v" + str(i), head);
  return head;
}
fun adder(x) { fun add(y) { return x + y; } return add; }
var list = build(50);
var total = 0;
for (var n = list; n != nil; n = n.next) total = total + 1;
var add5 = adder(5);
var result = add5(total);
for (var i = 0; i < 30; i = i + 1) { var tmp = build(3); }
`

func TestVMSurvivesStressGC(t *testing.T) {
	machine, _ := newMachine(t, vm.Config{GC: value.GCConfig{Stress: true}})
	require.NoError(t, machine.Interpret(gcProgram))
	result, ok := machine.Global("result")
	require.True(t, ok)
	require.Equal(t, value.Number(55), result)

	head, ok := machine.Global("list")
	require.True(t, ok)
	require.Equal(t, "v49", head.AsInstance().Fields[mustString(t, machine, "value")].AsString().Chars)
	require.Greater(t, machine.Heap().Stats().Collections, 0)
}

func TestVMReclaimsGarbage(t *testing.T) {
	machine, _ := newMachine(t, vm.Config{})
	require.NoError(t, machine.Interpret(gcProgram))
	before := machine.Heap().ObjectCount()
	require.NoError(t, machine.Interpret("list = nil; add5 = nil;"))
	machine.Heap().Collect()
	require.Less(t, machine.Heap().ObjectCount(), before)
	_, ok := machine.Heap().LookupString("v10")
	require.False(t, ok, "unreachable strings are dropped from the intern table")
}

func TestVMTraceDoesNotChangeResults(t *testing.T) {
	plain, _ := newMachine(t, vm.Config{})
	require.NoError(t, plain.Interpret(gcProgram))

	traced, _ := newMachine(t, vm.Config{})
	var trace bytes.Buffer
	hookCalls := 0
	traced.SetTraceWriter(&trace)
	traced.SetTraceHook(func(vm.TraceInfo) { hookCalls++ })
	require.NoError(t, traced.Interpret(gcProgram))

	require.Equal(t, plain.GlobalNames(), traced.GlobalNames())
	for _, name := range []string{"total", "result"} {
		a, _ := plain.Global(name)
		b, _ := traced.Global(name)
		require.Equal(t, a, b)
	}
	require.Greater(t, hookCalls, 0)
	require.Contains(t, trace.String(), "OP_CLOSURE")
	require.Contains(t, trace.String(), "[ ")
}

func TestVMDisassemble(t *testing.T) {
	machine, _ := newMachine(t, vm.Config{})
	require.NoError(t, machine.Interpret("fun f() { return 1; } print f();"))
	var out strings.Builder
	require.NoError(t, machine.Disassemble(&out))
	text := out.String()
	require.Contains(t, text, "== script ==")
	require.Contains(t, text, "== f ==")
	require.Contains(t, text, "OP_RETURN")
}

func TestVMGlobals(t *testing.T) {
	machine, _ := newMachine(t, vm.Config{})
	require.NoError(t, machine.Interpret(`var b = "x"; var a = 1;`))
	names := machine.GlobalNames()
	require.Equal(t, []string{"a", "b", "clock", "len", "str", "typeof"}, names)
	require.Equal(t, value.Number(1), machine.Globals()["a"])

	machine.DefineGlobal("c", value.Bool(true))
	v, ok := machine.Global("c")
	require.True(t, ok)
	require.Equal(t, value.Bool(true), v)
}

func mustString(t *testing.T, machine *vm.VM, s string) *value.String {
	t.Helper()
	str, ok := machine.Heap().LookupString(s)
	if !ok {
		t.Fatalf("string %q not interned", s)
	}
	return str
}
