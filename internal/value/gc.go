package value

import (
	"fmt"
	"time"
)

// GCStats accumulates collector activity over the life of a heap.
type GCStats struct {
	Collections  int
	ObjectsFreed int
	BytesFreed   int
	LastPause    time.Duration
	TotalPause   time.Duration
}

// Stats returns a snapshot of collector statistics.
func (h *Heap) Stats() GCStats {
	return h.stats
}

// Collect runs a full mark-and-sweep cycle. Objects reachable from a
// registered root source or a temporary root survive; everything else is
// reclaimed. Interned strings are not roots: the intern table drops strings
// that nothing else references.
func (h *Heap) Collect() {
	if h.collecting {
		return
	}
	h.collecting = true
	defer func() { h.collecting = false }()

	start := time.Now()
	beforeBytes := h.bytesAllocated
	beforeCount := h.objectCount
	log.Debugf("gc begin: %d bytes, %d objects", beforeBytes, beforeCount)

	h.markRoots()
	h.traceReferences()
	h.pruneStrings()
	h.sweep()

	next := int(float64(h.bytesAllocated) * h.cfg.GrowthFactor)
	if next < h.cfg.InitialThreshold {
		next = h.cfg.InitialThreshold
	}
	h.nextGC = next

	pause := time.Since(start)
	h.stats.Collections++
	h.stats.ObjectsFreed += beforeCount - h.objectCount
	h.stats.BytesFreed += beforeBytes - h.bytesAllocated
	h.stats.LastPause = pause
	h.stats.TotalPause += pause
	log.Debugf("gc end: freed %d bytes (%d -> %d), %d objects, next at %d, pause %s",
		beforeBytes-h.bytesAllocated, beforeBytes, h.bytesAllocated,
		beforeCount-h.objectCount, h.nextGC, pause)
}

func (h *Heap) markRoots() {
	for _, v := range h.tempRoots {
		h.MarkValue(v)
	}
	for _, src := range h.roots {
		src.MarkRoots(h)
	}
}

// MarkValue marks the object referenced by v, if any.
func (h *Heap) MarkValue(v Value) {
	if v.Kind == KindObj {
		h.MarkObject(v.Obj)
	}
}

// MarkObject grays o so its references are traced. Marking an object that
// has already been reclaimed is a fatal invariant violation.
func (h *Heap) MarkObject(o Obj) {
	if o == nil {
		return
	}
	hdr := o.header()
	if hdr.freed {
		panic(fmt.Sprintf("gc: marking freed %s object", o.Type()))
	}
	if hdr.marked {
		return
	}
	hdr.marked = true
	h.gray = append(h.gray, o)
}

func (h *Heap) markString(s *String) {
	if s != nil {
		h.MarkObject(s)
	}
}

func (h *Heap) markClosure(c *Closure) {
	if c != nil {
		h.MarkObject(c)
	}
}

func (h *Heap) traceReferences() {
	for len(h.gray) > 0 {
		o := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blacken(o)
	}
}

func (h *Heap) blacken(o Obj) {
	switch obj := o.(type) {
	case *String:
	case *Function:
		h.markString(obj.Name)
		for _, c := range obj.Chunk.Consts {
			h.MarkValue(c)
		}
	case *Closure:
		h.MarkObject(obj.Function)
		for _, uv := range obj.Upvalues {
			if uv != nil {
				h.MarkObject(uv)
			}
		}
	case *Upvalue:
		h.MarkValue(obj.Closed)
	case *Class:
		h.markString(obj.Name)
		for name, m := range obj.Methods {
			h.markString(name)
			h.markClosure(m)
		}
		if obj.Superclass != nil {
			h.MarkObject(obj.Superclass)
		}
	case *Instance:
		h.MarkObject(obj.Class)
		for name, v := range obj.Fields {
			h.markString(name)
			h.MarkValue(v)
		}
	case *BoundMethod:
		h.MarkValue(obj.Receiver)
		h.markClosure(obj.Method)
	case *Native:
		h.markString(obj.Name)
	default:
		panic(fmt.Sprintf("gc: unknown object type %T", o))
	}
}

func (h *Heap) pruneStrings() {
	for chars, s := range h.strings {
		if !s.marked {
			delete(h.strings, chars)
		}
	}
}

func (h *Heap) sweep() {
	var prev Obj
	o := h.objects
	for o != nil {
		hdr := o.header()
		if hdr.marked {
			hdr.marked = false
			prev = o
			o = hdr.next
			continue
		}
		unreached := o
		o = hdr.next
		if prev == nil {
			h.objects = o
		} else {
			prev.header().next = o
		}
		h.release(unreached)
	}
}
