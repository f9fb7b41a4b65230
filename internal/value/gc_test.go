package value

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/xirelogy/go-lox/internal/bytecode"
)

type testRoots struct {
	values []Value
}

func (r *testRoots) MarkRoots(h *Heap) {
	for _, v := range r.values {
		h.MarkValue(v)
	}
}

func TestInternedStringsShareIdentity(t *testing.T) {
	h := NewHeap(GCConfig{})
	a := h.InternString("abc")
	b := h.InternString("ab" + "c")
	require.Same(t, a, b)
	require.Equal(t, 1, h.ObjectCount())
}

func TestCollectKeepsReachableGraph(t *testing.T) {
	h := NewHeap(GCConfig{Stress: true})
	roots := &testRoots{}
	h.AddRoots(roots)

	name := h.InternString("Point")
	roots.values = append(roots.values, ObjVal(name))
	class := h.NewClass(name)
	roots.values = append(roots.values, ObjVal(class))

	fn := h.NewFunction()
	roots.values = append(roots.values, ObjVal(fn))
	fn.Name = h.InternString("init")
	fn.Chunk.Consts = append(fn.Chunk.Consts, ObjVal(h.InternString("const")), Number(3))
	closure := h.NewClosure(fn)
	class.Methods[fn.Name] = closure
	h.Grow(class, SizeTableEntry)

	inst := h.NewInstance(class)
	roots.values = []Value{ObjVal(inst)}
	field := h.InternString("x")
	h.PushRoot(ObjVal(field))
	inst.Fields[field] = ObjVal(h.InternString("payload"))
	h.PopRoot()
	h.Grow(inst, SizeTableEntry)

	garbage := h.InternString("garbage")
	h.Collect()

	for _, o := range []Obj{name, class, fn, fn.Name, closure, inst, field, fn.Chunk.Consts[0].Obj} {
		require.True(t, h.IsLive(o), "%s %s should survive", o.Type(), o.String())
	}
	require.Equal(t, "payload", inst.Fields[field].AsString().Chars)
	require.Equal(t, Number(3), fn.Chunk.Consts[1])

	require.False(t, h.IsLive(garbage))
	_, ok := h.LookupString("garbage")
	require.False(t, ok, "intern table must not keep unreferenced strings")
	require.Greater(t, h.Stats().Collections, 0)
}

func TestCollectReclaimsCycles(t *testing.T) {
	h := NewHeap(GCConfig{})
	roots := &testRoots{}
	h.AddRoots(roots)

	class := h.NewClass(h.InternString("Node"))
	roots.values = []Value{ObjVal(class)}
	a := h.NewInstance(class)
	roots.values = append(roots.values, ObjVal(a))
	b := h.NewInstance(class)
	next := h.InternString("next")
	a.Fields[next] = ObjVal(b)
	b.Fields[next] = ObjVal(a)

	h.Collect()
	require.True(t, h.IsLive(a))
	require.True(t, h.IsLive(b))

	roots.values = roots.values[:1]
	h.Collect()
	require.False(t, h.IsLive(a))
	require.False(t, h.IsLive(b))
	require.True(t, h.IsLive(class))
}

func TestTemporaryRoots(t *testing.T) {
	h := NewHeap(GCConfig{Stress: true})
	s := h.InternString("temp")
	h.PushRoot(ObjVal(s))
	h.InternString("other")
	require.True(t, h.IsLive(s))
	h.PopRoot()
	h.Collect()
	require.False(t, h.IsLive(s))
	require.Panics(t, func() { h.PopRoot() })
}

func TestMarkingFreedObjectPanics(t *testing.T) {
	h := NewHeap(GCConfig{})
	s := h.InternString("gone")
	h.Collect()
	require.False(t, h.IsLive(s))
	require.Panics(t, func() { h.MarkObject(s) })
}

func TestThresholdGrowth(t *testing.T) {
	h := NewHeap(GCConfig{InitialThreshold: 256, GrowthFactor: 2})
	roots := &testRoots{}
	h.AddRoots(roots)
	require.Equal(t, 256, h.NextGC())

	for i := 0; i < 20; i++ {
		roots.values = append(roots.values, ObjVal(h.NewFunction()))
	}
	require.GreaterOrEqual(t, h.Stats().Collections, 1)
	require.GreaterOrEqual(t, h.NextGC(), 256)

	h.Collect()
	require.Equal(t, h.BytesAllocated()*2, h.NextGC())

	roots.values = nil
	h.Collect()
	require.Equal(t, 0, h.ObjectCount())
	require.Equal(t, 0, h.BytesAllocated())
	require.Equal(t, 256, h.NextGC())
}

func TestFreeReleasesEverything(t *testing.T) {
	h := NewHeap(GCConfig{})
	h.AddRoots(&testRoots{values: []Value{ObjVal(h.InternString("kept"))}})
	fn := h.NewFunction()
	h.NewClosure(fn)
	h.Free()
	require.Equal(t, 0, h.ObjectCount())
	require.Equal(t, 0, h.BytesAllocated())
	require.False(t, h.IsLive(fn))
}

func TestPrototypeRoundTrip(t *testing.T) {
	h := NewHeap(GCConfig{Stress: true})
	inner := h.NewFunction()
	h.PushRoot(ObjVal(inner))
	inner.Name = h.InternString("inner")
	inner.Arity = 1
	inner.Upvalues = []bytecode.Upvalue{{IsLocal: true, Index: 1}}
	inner.Chunk.Write(bytecode.OP_NIL, 2)
	inner.Chunk.Write(bytecode.OP_RETURN, 2)

	script := h.NewFunction()
	h.PushRoot(ObjVal(script))
	script.Chunk.Consts = append(script.Chunk.Consts,
		Nil(), Bool(true), Number(4), ObjVal(h.InternString("s")), ObjVal(inner))
	script.Chunk.Write(bytecode.OP_NIL, 1)
	script.Chunk.Write(bytecode.OP_RETURN, 1)

	proto, err := ToPrototype(script)
	require.NoError(t, err)
	require.NoError(t, bytecode.Validate(proto))

	back := FromPrototype(h, proto)
	again, err := ToPrototype(back)
	require.NoError(t, err)
	if diff := cmp.Diff(proto, again); diff != "" {
		t.Fatalf("prototype mismatch (-want +got):\n%s", diff)
	}
	require.Same(t, script.Chunk.Consts[3].Obj, back.Chunk.Consts[3].Obj)

	className := h.InternString("C")
	script.Chunk.Consts = append(script.Chunk.Consts, ObjVal(className))
	script.Chunk.Consts = append(script.Chunk.Consts, ObjVal(h.NewClass(className)))
	_, err = ToPrototype(script)
	require.Error(t, err)
	h.PopRoot()
	h.PopRoot()
}
