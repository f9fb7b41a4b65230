package compiler

import (
	"fmt"
	"strings"
)

// Diagnostic is a single compile error.
type Diagnostic struct {
	Line    int
	Where   string // " at 'x'", " at end", or empty for scanner errors
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[line %d] Error%s: %s", d.Line, d.Where, d.Message)
}

// Error collects every diagnostic reported while compiling one source.
type Error struct {
	Diagnostics []Diagnostic
}

func (e *Error) Error() string {
	lines := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}
