package runtime

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/xirelogy/go-lox/internal/value"
)

// Spec describes a native function visible to scripts as a global.
type Spec struct {
	Name  string
	Arity int
	Fn    value.NativeFn
}

var byName = map[string]Spec{}

// Register installs a native. Registering the same name twice panics.
func Register(spec Spec) {
	if spec.Fn == nil {
		panic(fmt.Sprintf("native %s has nil function", spec.Name))
	}
	if spec.Arity < 0 || spec.Arity > 255 {
		panic(fmt.Sprintf("native %s has invalid arity %d", spec.Name, spec.Arity))
	}
	if _, exists := byName[spec.Name]; exists {
		panic(fmt.Sprintf("native %s already registered", spec.Name))
	}
	byName[spec.Name] = spec
}

// LookupByName finds a native by its script-visible name.
func LookupByName(name string) (Spec, bool) {
	spec, ok := byName[name]
	return spec, ok
}

// All returns every registered native ordered by name.
func All() []Spec {
	names := maps.Keys(byName)
	slices.Sort(names)
	out := make([]Spec, 0, len(names))
	for _, name := range names {
		out = append(out, byName[name])
	}
	return out
}
